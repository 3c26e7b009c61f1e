package extract

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"docrag/internal/service"
)

func TestRegistry_DetectType(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		name     string
		mimeType string
		filename string
		want     string
	}{
		{name: "plain text", mimeType: "text/plain", filename: "a.txt", want: "text/plain"},
		{name: "mime parameters ignored", mimeType: "text/plain; charset=utf-8", filename: "a", want: "text/plain"},
		{name: "markdown by mime", mimeType: "text/markdown", filename: "README", want: "text/markdown"},
		{name: "markdown alias", mimeType: "text/x-markdown", filename: "README", want: "text/x-markdown"},
		{name: "generic mime falls back to extension", mimeType: "application/octet-stream", filename: "notes.md", want: "text/markdown"},
		{name: "missing mime falls back to extension", mimeType: "", filename: "paper.PDF", want: "application/pdf"},
		{name: "text subtype falls back to extension", mimeType: "text/x-log", filename: "server.log", want: "text/plain"},
		{name: "unsupported", mimeType: "image/png", filename: "photo.png", want: ""},
		{name: "unknown extension", mimeType: "", filename: "archive.zip", want: ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.DetectType(tt.mimeType, tt.filename))
			assert.Equal(t, tt.want != "", r.Supports(tt.mimeType, tt.filename))
		})
	}
}

func TestRegistry_Extract(t *testing.T) {
	r := NewRegistry()
	ctx := context.Background()

	t.Run("plain text normalises line endings and BOM", func(t *testing.T) {
		got, err := r.Extract(ctx, []byte("\uFEFFline one\r\nline two\r"), "text/plain", "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "line one\nline two\n", got)
	})

	t.Run("invalid utf-8 is replaced", func(t *testing.T) {
		got, err := r.Extract(ctx, []byte{'o', 'k', 0xff}, "text/plain", "a.txt")
		require.NoError(t, err)
		assert.Equal(t, "ok\uFFFD", got)
	})

	t.Run("unsupported format", func(t *testing.T) {
		_, err := r.Extract(ctx, []byte{0x89, 'P', 'N', 'G'}, "image/png", "photo.png")
		assert.ErrorIs(t, err, service.ErrUnsupportedFormat)
		assert.True(t, service.IsClientError(err))
	})

	t.Run("broken pdf", func(t *testing.T) {
		_, err := r.Extract(ctx, []byte("this is not a pdf"), "application/pdf", "broken.pdf")
		assert.ErrorIs(t, err, service.ErrExtractionFailed)
	})

	t.Run("extractor errors are wrapped", func(t *testing.T) {
		custom := NewRegistry()
		boom := errors.New("boom")
		custom.Register("application/x-custom", ExtractorFunc(func(context.Context, []byte) (string, error) {
			return "", boom
		}), ".custom")

		_, err := custom.Extract(ctx, []byte("x"), "", "file.custom")
		assert.ErrorIs(t, err, service.ErrExtractionFailed)
		assert.ErrorIs(t, err, boom)
	})
}
