package extract

import (
	"context"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/extension"
	east "github.com/yuin/goldmark/extension/ast"
	"github.com/yuin/goldmark/text"
)

// MarkdownExtractor renders markdown to plain text using goldmark's AST.
// Top-level blocks are separated by a blank line so paragraph-aware chunking sees the
// document's own structure; markup, HTML and thematic breaks are dropped.
type MarkdownExtractor struct {
	parser goldmark.Markdown
}

// NewMarkdownExtractor creates a markdown extractor with table support.
func NewMarkdownExtractor() *MarkdownExtractor {
	return &MarkdownExtractor{
		parser: goldmark.New(
			goldmark.WithExtensions(extension.Table),
		),
	}
}

// Extract parses content and returns its text.
func (m *MarkdownExtractor) Extract(ctx context.Context, content []byte) (string, error) {
	source, err := extractPlainText(ctx, content)
	if err != nil {
		return "", err
	}
	src := []byte(source)

	doc := m.parser.Parser().Parse(text.NewReader(src))
	return childBlocks(doc, src, "\n\n"), nil
}

func childBlocks(parent ast.Node, src []byte, sep string) string {
	var parts []string
	for n := parent.FirstChild(); n != nil; n = n.NextSibling() {
		if s := blockText(n, src); s != "" {
			parts = append(parts, s)
		}
	}
	return strings.Join(parts, sep)
}

func blockText(n ast.Node, src []byte) string {
	switch node := n.(type) {
	case *ast.Heading, *ast.Paragraph, *ast.TextBlock:
		return strings.TrimSpace(inlineText(node, src))

	case *ast.FencedCodeBlock, *ast.CodeBlock:
		var b strings.Builder
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			line := lines.At(i)
			b.Write(line.Value(src))
		}
		return strings.TrimRight(b.String(), "\n")

	case *ast.List:
		var items []string
		i := node.Start
		for li := node.FirstChild(); li != nil; li = li.NextSibling() {
			item := childBlocks(li, src, "\n")
			if item == "" {
				continue
			}
			if node.IsOrdered() {
				items = append(items, fmt.Sprintf("%d. %s", i, item))
				i++
			} else {
				items = append(items, "- "+item)
			}
		}
		return strings.Join(items, "\n")

	case *ast.Blockquote:
		return childBlocks(node, src, "\n\n")

	case *east.Table:
		var rows []string
		for row := node.FirstChild(); row != nil; row = row.NextSibling() {
			if r := tableRowText(row, src); r != "" {
				rows = append(rows, r)
			}
		}
		return strings.Join(rows, "\n")

	case *ast.ThematicBreak, *ast.HTMLBlock:
		return ""

	default:
		return childBlocks(node, src, "\n\n")
	}
}

// inlineText concatenates the text of n's inline descendants.
func inlineText(n ast.Node, src []byte) string {
	var b strings.Builder

	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch v := node.(type) {
		case *ast.Text:
			b.Write(v.Segment.Value(src))
			if v.HardLineBreak() {
				b.WriteString("\n")
			} else if v.SoftLineBreak() {
				b.WriteString(" ")
			}
		case *ast.String:
			b.Write(v.Value)
		case *ast.AutoLink:
			b.Write(v.Label(src))
			return ast.WalkSkipChildren, nil
		case *ast.RawHTML:
			return ast.WalkSkipChildren, nil
		}
		return ast.WalkContinue, nil
	})

	return b.String()
}

// tableRowText formats a table row with pipe separators between cells.
func tableRowText(row ast.Node, src []byte) string {
	var cells []string
	for cell := row.FirstChild(); cell != nil; cell = cell.NextSibling() {
		if _, ok := cell.(*east.TableCell); !ok {
			continue
		}
		cells = append(cells, strings.TrimSpace(inlineText(cell, src)))
	}
	return strings.Join(cells, " | ")
}
