package extract

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"path/filepath"
	"strings"

	"docrag/internal/contextutil"
	"docrag/internal/service"
)

// Extractor turns raw document bytes into plain text.
type Extractor interface {
	Extract(ctx context.Context, content []byte) (string, error)
}

// ExtractorFunc adapts a function to Extractor.
type ExtractorFunc func(ctx context.Context, content []byte) (string, error)

// Extract calls f.
func (f ExtractorFunc) Extract(ctx context.Context, content []byte) (string, error) {
	return f(ctx, content)
}

// Registry picks an Extractor by MIME type, falling back to the file extension when the
// MIME type is missing or generic.
type Registry struct {
	byMIME map[string]Extractor
	byExt  map[string]string // extension -> canonical MIME type
}

// NewRegistry returns a registry with plain text, markdown and PDF support.
func NewRegistry() *Registry {
	r := &Registry{
		byMIME: make(map[string]Extractor),
		byExt:  make(map[string]string),
	}

	plain := ExtractorFunc(extractPlainText)
	r.Register("text/plain", plain, ".txt", ".text", ".log")
	r.Register("text/csv", plain, ".csv")
	r.Register("application/json", plain, ".json")
	r.Register("text/markdown", NewMarkdownExtractor(), ".md", ".markdown")
	r.Register("application/pdf", ExtractorFunc(extractPDF), ".pdf")
	r.Alias("text/x-markdown", "text/markdown")
	return r
}

// Register adds ext for mimeType and maps each extension to it.
func (r *Registry) Register(mimeType string, ext Extractor, extensions ...string) {
	r.byMIME[mimeType] = ext
	for _, e := range extensions {
		r.byExt[strings.ToLower(e)] = mimeType
	}
}

// Alias makes alias resolve to the extractor registered for target.
func (r *Registry) Alias(alias, target string) {
	if ext, ok := r.byMIME[target]; ok {
		r.byMIME[alias] = ext
	}
}

// DetectType returns the MIME type the registry will use for a document, or "" when none
// of its extractors apply.
func (r *Registry) DetectType(mimeType, filename string) string {
	mt := normalizeMIME(mimeType)
	if _, ok := r.byMIME[mt]; ok {
		return mt
	}
	if mt == "" || mt == "application/octet-stream" || strings.HasPrefix(mt, "text/") {
		if byExt, ok := r.byExt[strings.ToLower(filepath.Ext(filename))]; ok {
			return byExt
		}
	}
	return ""
}

// Supports reports whether a document of this type can be extracted.
func (r *Registry) Supports(mimeType, filename string) bool {
	return r.DetectType(mimeType, filename) != ""
}

// Extract returns the plain text of content.
// Unknown types fail with service.ErrUnsupportedFormat, parser failures with
// service.ErrExtractionFailed.
func (r *Registry) Extract(ctx context.Context, content []byte, mimeType, filename string) (string, error) {
	logger := contextutil.LoggerFromContext(ctx)

	mt := r.DetectType(mimeType, filename)
	if mt == "" {
		return "", fmt.Errorf("%w: %q (%s)", service.ErrUnsupportedFormat, mimeType, filename)
	}

	text, err := r.byMIME[mt].Extract(ctx, content)
	if err != nil {
		logger.WarnContext(ctx, "text extraction failed", "filename", filename, "mime_type", mt, "error", err)
		if errors.Is(err, service.ErrExtractionFailed) {
			return "", err
		}
		return "", fmt.Errorf("%w: %s: %w", service.ErrExtractionFailed, filename, err)
	}

	logger.DebugContext(ctx, "text extracted", "filename", filename, "mime_type", mt, "bytes", len(content), "text_length", len(text))
	return text, nil
}

func normalizeMIME(mimeType string) string {
	mimeType = strings.TrimSpace(mimeType)
	if mimeType == "" {
		return ""
	}
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return strings.ToLower(mimeType)
	}
	return mt
}
