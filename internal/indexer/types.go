package indexer

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_ingester.go -package=mocks docrag/internal/indexer Ingester

import (
	"context"
	"fmt"
	"time"

	"docrag/internal/service"
)

// Chunk represents a piece of a document's extracted text.
type Chunk struct {
	DocumentRef string // Filename of the source document
	Index       int    // Chunk index within document (starts at 0)
	TotalChunks int    // Same value on every chunk of a document
	Text        string // Chunk text content
	Length      int    // Length of Text in runes
	Offset      int    // Rune offset of the chunk in the (normalised) text
}

// Chunker splits extracted text into ordered chunks.
type Chunker interface {
	Chunk(documentRef, text string) ([]Chunk, error)
}

// Document is a single upload handed to the pipeline.
type Document struct {
	Filename string
	MIMEType string
	Content  []byte
}

// IngestionStatus summarises how an ingestion ended.
type IngestionStatus string

const (
	StatusSuccess IngestionStatus = "success"
	StatusPartial IngestionStatus = "partial"
	StatusFailed  IngestionStatus = "failed"
)

// Stage names where a chunk failed.
const (
	StageEmbed  = "embed"
	StageUpsert = "upsert"
)

// ChunkError records why one chunk was not stored.
type ChunkError struct {
	ChunkIndex int    `json:"chunk_index"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
}

// IngestionReport is the outcome of ingesting one document.
type IngestionReport struct {
	Filename        string          `json:"filename"`
	FileType        string          `json:"file_type"`
	ChunksTotal     int             `json:"chunks_total"`
	ChunksSucceeded int             `json:"chunks_succeeded"`
	ChunksFailed    int             `json:"chunks_failed"`
	ChunksDegraded  int             `json:"chunks_degraded"`
	TextLength      int             `json:"text_length"`
	Errors          []ChunkError    `json:"errors,omitempty"`
	Status          IngestionStatus `json:"status"`
	IngestedAt      time.Time       `json:"ingested_at"`
	Stats           ChunkStats      `json:"stats"`
	IndexVersion    string          `json:"index_version"`
}

// Err returns nil for a fully successful ingestion, an error wrapping
// service.ErrPartialIngestion when some chunks failed and one wrapping
// service.ErrIngestionFailed when none were stored.
func (r *IngestionReport) Err() error {
	switch r.Status {
	case StatusPartial:
		return fmt.Errorf("%w: %d of %d chunks failed", service.ErrPartialIngestion, r.ChunksFailed, r.ChunksTotal)
	case StatusFailed:
		return fmt.Errorf("%w: %d of %d chunks failed", service.ErrIngestionFailed, r.ChunksFailed, r.ChunksTotal)
	default:
		return nil
	}
}

// DocumentChunk is a listing entry for one stored chunk.
type DocumentChunk struct {
	PointID     string `json:"id"`
	Filename    string `json:"filename"`
	FileType    string `json:"file_type"`
	ChunkIndex  int    `json:"chunk_index"`
	TotalChunks int    `json:"total_chunks"`
	Preview     string `json:"text_preview"`
	Timestamp   string `json:"timestamp"`
}

// DocumentPage is one page of stored chunks.
type DocumentPage struct {
	Documents  []DocumentChunk `json:"documents"`
	NextOffset string          `json:"next_offset,omitempty"`
	HasMore    bool            `json:"has_more"`
}

// Ingester is the ingestion surface used by handlers and the CLI.
type Ingester interface {
	Ingest(ctx context.Context, doc Document) (*IngestionReport, error)
	DeleteDocument(ctx context.Context, filename string) (int, error)
	ListDocuments(ctx context.Context, limit int, offset string) (*DocumentPage, error)
}
