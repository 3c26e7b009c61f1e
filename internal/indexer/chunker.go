package indexer

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"docrag/internal/config"
	"docrag/internal/service"
)

const (
	defaultChunkSize      = 800
	defaultMinChunkLength = 50
	// windowTrimRatio is how far into a window the last space must be before the window
	// is trimmed back to it.
	windowTrimRatio = 0.7
)

var (
	paragraphBreak = regexp.MustCompile(`\n\s*\n`)
	sentenceSpan   = regexp.MustCompile(`[^.!?]*[.!?]+|[^.!?]+`)
	whitespaceRun  = regexp.MustCompile(`\s+`)
)

// NewChunker builds the chunker selected by cfg.ChunkStrategy.
func NewChunker(cfg config.RetrievalConfig) (Chunker, error) {
	switch cfg.ChunkStrategy {
	case "", "paragraph":
		return NewParagraphChunker(cfg.ChunkSize, cfg.MinChunkLength), nil
	case "window":
		return NewWindowChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	default:
		return nil, fmt.Errorf("unknown chunk strategy %q", cfg.ChunkStrategy)
	}
}

// ParagraphChunker groups paragraphs into chunks of at most MaxSize runes, falling back to
// sentences for paragraphs that are too long on their own. Sentences are never split, so a
// single sentence longer than MaxSize becomes an oversized chunk.
type ParagraphChunker struct {
	MaxSize   int
	MinLength int
}

// NewParagraphChunker creates a paragraph-aware chunker. Non-positive sizes use defaults.
func NewParagraphChunker(maxSize, minLength int) *ParagraphChunker {
	if maxSize <= 0 {
		maxSize = defaultChunkSize
	}
	if minLength < 0 {
		minLength = defaultMinChunkLength
	}
	return &ParagraphChunker{MaxSize: maxSize, MinLength: minLength}
}

// piece is a paragraph or sentence with its rune offset in the source text.
type piece struct {
	text   string
	offset int
}

// Chunk splits text into paragraph-aligned chunks.
func (c *ParagraphChunker) Chunk(documentRef, text string) ([]Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, service.ErrEmptyContent
	}

	var (
		chunks  []Chunk
		current strings.Builder
		curLen  int
		curOff  int
	)

	flush := func() {
		if curLen == 0 {
			return
		}
		chunks = append(chunks, Chunk{
			DocumentRef: documentRef,
			Text:        current.String(),
			Length:      curLen,
			Offset:      curOff,
		})
		current.Reset()
		curLen = 0
	}

	add := func(p piece, sep string) {
		n := utf8.RuneCountInString(p.text)
		if curLen > 0 && curLen+utf8.RuneCountInString(sep)+n > c.MaxSize {
			flush()
		}
		if curLen == 0 {
			curOff = p.offset
		} else {
			current.WriteString(sep)
			curLen += utf8.RuneCountInString(sep)
		}
		current.WriteString(p.text)
		curLen += n
	}

	for _, para := range splitParagraphs(text) {
		if utf8.RuneCountInString(para.text) <= c.MaxSize {
			add(para, "\n\n")
			continue
		}

		flush()
		for _, sentence := range splitSentences(para) {
			add(sentence, " ")
		}
	}
	flush()

	chunks = c.dropShort(chunks)
	return finalize(chunks), nil
}

// dropShort removes chunks below MinLength. A non-empty document keeps at least its
// longest chunk.
func (c *ParagraphChunker) dropShort(chunks []Chunk) []Chunk {
	if c.MinLength <= 0 || len(chunks) == 0 {
		return chunks
	}

	kept := make([]Chunk, 0, len(chunks))
	longest := 0
	for i, ch := range chunks {
		if ch.Length > chunks[longest].Length {
			longest = i
		}
		if ch.Length >= c.MinLength {
			kept = append(kept, ch)
		}
	}
	if len(kept) == 0 {
		return []Chunk{chunks[longest]}
	}
	return kept
}

// splitParagraphs returns the trimmed, non-empty paragraphs of text.
func splitParagraphs(text string) []piece {
	var out []piece
	start := 0
	appendSpan := func(from, to int) {
		raw := text[from:to]
		trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
		lead := len(raw) - len(trimmed)
		trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
		if trimmed == "" {
			return
		}
		out = append(out, piece{
			text:   trimmed,
			offset: utf8.RuneCountInString(text[:from+lead]),
		})
	}

	for _, loc := range paragraphBreak.FindAllStringIndex(text, -1) {
		appendSpan(start, loc[0])
		start = loc[1]
	}
	appendSpan(start, len(text))
	return out
}

// splitSentences splits a paragraph on sentence terminators, keeping them.
func splitSentences(para piece) []piece {
	var out []piece
	for _, loc := range sentenceSpan.FindAllStringIndex(para.text, -1) {
		raw := para.text[loc[0]:loc[1]]
		trimmed := strings.TrimLeftFunc(raw, unicode.IsSpace)
		lead := len(raw) - len(trimmed)
		trimmed = strings.TrimRightFunc(trimmed, unicode.IsSpace)
		if trimmed == "" {
			continue
		}
		out = append(out, piece{
			text:   trimmed,
			offset: para.offset + utf8.RuneCountInString(para.text[:loc[0]+lead]),
		})
	}
	return out
}

// WindowChunker cuts whitespace-collapsed text into windows of Size runes that overlap by
// Overlap runes.
type WindowChunker struct {
	Size    int
	Overlap int
}

// NewWindowChunker creates a fixed-window chunker. Overlap must be smaller than size.
func NewWindowChunker(size, overlap int) (*WindowChunker, error) {
	if size <= 0 {
		return nil, fmt.Errorf("chunk size must be greater than 0, got %d", size)
	}
	if overlap < 0 || overlap >= size {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", size, overlap)
	}
	return &WindowChunker{Size: size, Overlap: overlap}, nil
}

// Chunk splits text into overlapping windows.
// Offsets refer to the whitespace-collapsed text.
func (c *WindowChunker) Chunk(documentRef, text string) ([]Chunk, error) {
	collapsed := strings.TrimSpace(whitespaceRun.ReplaceAllString(text, " "))
	if collapsed == "" {
		return nil, service.ErrEmptyContent
	}

	runes := []rune(collapsed)
	total := len(runes)
	minCut := int(float64(c.Size) * windowTrimRatio)

	var chunks []Chunk
	for start := 0; start < total; {
		end := start + c.Size
		if end > total {
			end = total
		}

		cut := end
		if end < total && runes[end] != ' ' && runes[end-1] != ' ' {
			// Mid-word: back up to the last space if it is far enough into the window
			// and the next window can still start after this one.
			for i := end - 1; i > start; i-- {
				if runes[i] == ' ' {
					if i-start >= minCut && i-c.Overlap > start {
						cut = i
					}
					break
				}
			}
		}

		from := start
		for from < cut && runes[from] == ' ' {
			from++
		}
		window := strings.TrimRight(string(runes[from:cut]), " ")
		if window != "" {
			chunks = append(chunks, Chunk{
				DocumentRef: documentRef,
				Text:        window,
				Length:      utf8.RuneCountInString(window),
				Offset:      from,
			})
		}

		if end == total {
			break
		}
		// The next window overlaps what this one emitted, trimmed or not.
		start = cut - c.Overlap
	}

	return finalize(chunks), nil
}

// finalize assigns indices in emission order and the total count to every chunk.
func finalize(chunks []Chunk) []Chunk {
	for i := range chunks {
		chunks[i].Index = i
		chunks[i].TotalChunks = len(chunks)
	}
	return chunks
}
