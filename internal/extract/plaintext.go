package extract

import (
	"context"
	"strings"
	"unicode/utf8"
)

// extractPlainText normalises line endings, drops a UTF-8 BOM and replaces invalid
// byte sequences.
func extractPlainText(_ context.Context, content []byte) (string, error) {
	text := string(content)
	text = strings.TrimPrefix(text, "\uFEFF")
	if !utf8.ValidString(text) {
		text = strings.ToValidUTF8(text, "\uFFFD")
	}
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	return text, nil
}
