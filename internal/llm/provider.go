package llm

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_embedder.go -package=mocks docrag/internal/llm Embedder

import "context"

// EmbedStatus tells whether a vector came from the model or is a placeholder.
type EmbedStatus string

const (
	EmbedStatusOK       EmbedStatus = "ok"
	EmbedStatusDegraded EmbedStatus = "degraded"
)

// EmbedResult is one item of a batch embedding.
// A degraded result carries a zero vector of the right length and the reason in Err.
type EmbedResult struct {
	Vector []float32
	Status EmbedStatus
	Err    error
}

// Embedder turns text into fixed-length vectors.
//
// EmbedBatch returns one result per input, in input order. A returned error means the
// whole batch failed; per-item trouble is reported through EmbedResult instead.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([]EmbedResult, error)
	Dimension() int
}
