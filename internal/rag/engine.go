package rag

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_engine.go -package=mocks docrag/internal/rag Engine

import (
	"context"
	"fmt"
	"strings"
	"time"

	"docrag/internal/contextutil"
	"docrag/internal/llm"
	"docrag/internal/service"
	"docrag/internal/vectorstore"
)

const (
	defaultLimit = 5
	maxLimit     = 50
)

// Engine answers semantic queries against the indexed documents.
type Engine interface {
	// Query embeds the request text and returns the nearest stored chunks.
	Query(ctx context.Context, req QueryRequest) (QueryResponse, error)
}

// Settings are the engine defaults. Zero values fall back to package defaults.
type Settings struct {
	DefaultLimit   int
	ScoreThreshold float32
	EmbedTimeout   time.Duration
	StoreTimeout   time.Duration
}

// ragEngine implements the Engine interface.
type ragEngine struct {
	embedder    llm.Embedder
	vectorStore vectorstore.VectorStore
	collection  string
	settings    Settings
}

// NewEngine creates a new query engine.
func NewEngine(embedder llm.Embedder, vectorStore vectorstore.VectorStore, collection string, settings Settings) Engine {
	if settings.DefaultLimit <= 0 {
		settings.DefaultLimit = defaultLimit
	}
	if settings.DefaultLimit > maxLimit {
		settings.DefaultLimit = maxLimit
	}
	return &ragEngine{
		embedder:    embedder,
		vectorStore: vectorStore,
		collection:  collection,
		settings:    settings,
	}
}

// Query runs a semantic search.
// An empty result is not an error. Embedding and store failures propagate unchanged in
// kind, so callers can tell an unreachable store from a bad query.
func (e *ragEngine) Query(ctx context.Context, req QueryRequest) (QueryResponse, error) {
	logger := contextutil.LoggerFromContext(ctx)

	text := strings.TrimSpace(req.Text)
	if text == "" {
		return QueryResponse{}, &service.ValidationError{Field: "query", Message: "query is required"}
	}
	if req.Limit < 0 {
		return QueryResponse{}, &service.ValidationError{Field: "limit", Message: "limit must not be negative"}
	}

	limit := req.Limit
	if limit == 0 {
		limit = e.settings.DefaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	threshold := e.settings.ScoreThreshold
	if req.ScoreThreshold != nil {
		threshold = *req.ScoreThreshold
	}

	logger.InfoContext(ctx, "query started", "query_length", len(text), "limit", limit, "score_threshold", threshold, "filename", req.Filename)

	embedCtx, cancel := contextutil.WithTimeout(ctx, e.settings.EmbedTimeout)
	vector, err := e.embedder.Embed(embedCtx, text)
	cancel()
	if err != nil {
		logger.ErrorContext(ctx, "failed to embed query", "error", err)
		return QueryResponse{}, fmt.Errorf("failed to embed query: %w", err)
	}

	search := vectorstore.SearchRequest{
		Vector:         vector,
		Limit:          limit,
		ScoreThreshold: &threshold,
	}
	if req.Filename != "" {
		search.Filter = map[string]any{vectorstore.FieldFilename: req.Filename}
	}

	storeCtx, cancel := contextutil.WithTimeout(ctx, e.settings.StoreTimeout)
	hits, err := e.vectorStore.Search(storeCtx, e.collection, search)
	cancel()
	if err != nil {
		logger.ErrorContext(ctx, "failed to search vector store", "error", err)
		return QueryResponse{}, fmt.Errorf("failed to search vector store: %w", err)
	}

	results := make([]Result, 0, len(hits))
	for _, hit := range hits {
		chunkText := vectorstore.PayloadString(hit.Meta, vectorstore.FieldText)
		results = append(results, Result{
			PointID:     hit.PointID,
			Score:       hit.Score,
			Filename:    vectorstore.PayloadString(hit.Meta, vectorstore.FieldFilename),
			FileType:    vectorstore.PayloadString(hit.Meta, vectorstore.FieldFileType),
			ChunkIndex:  vectorstore.PayloadInt(hit.Meta, vectorstore.FieldChunkIndex, 0),
			TotalChunks: vectorstore.PayloadInt(hit.Meta, vectorstore.FieldTotalChunks, 1),
			Snippet:     snippet(text, chunkText, snippetLength),
			Text:        chunkText,
			Timestamp:   vectorstore.PayloadString(hit.Meta, vectorstore.FieldTimestamp),
		})
	}

	if len(results) > 0 {
		logger.InfoContext(ctx, "query completed", "results_count", len(results), "top_score", results[0].Score)
	} else {
		logger.InfoContext(ctx, "query completed", "results_count", 0)
	}

	return QueryResponse{
		Query:        text,
		Results:      results,
		TotalResults: len(results),
	}, nil
}
