package extract

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/ledongthuc/pdf"

	"docrag/internal/contextutil"
	"docrag/internal/service"
)

// extractPDF returns the plain text of every readable page, pages separated by a blank
// line. Pages that fail to decode are skipped; a document with no readable page fails.
func extractPDF(ctx context.Context, content []byte) (text string, err error) {
	logger := contextutil.LoggerFromContext(ctx)

	// The parser panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text = ""
			err = fmt.Errorf("%w: malformed PDF: %v", service.ErrExtractionFailed, r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("failed to create PDF reader: %w", err)
	}

	pages := reader.NumPage()
	parts := make([]string, 0, pages)
	for i := 1; i <= pages; i++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}

		fonts := make(map[string]*pdf.Font)
		pageText, err := page.GetPlainText(fonts)
		if err != nil {
			logger.WarnContext(ctx, "failed to extract text from page", "page", i, "error", err)
			continue
		}
		if pageText = strings.TrimSpace(pageText); pageText != "" {
			parts = append(parts, pageText)
		}
	}

	if len(parts) == 0 && pages > 0 {
		return "", fmt.Errorf("no text extracted from %d pages", pages)
	}
	return strings.Join(parts, "\n\n"), nil
}
