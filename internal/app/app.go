// Package app wires configuration into the ingestion and query components.
// The API server and the CLI share it.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"docrag/internal/config"
	"docrag/internal/contextutil"
	"docrag/internal/extract"
	"docrag/internal/indexer"
	"docrag/internal/llm"
	"docrag/internal/rag"
	"docrag/internal/storage"
	"docrag/internal/vectorstore"
)

// App holds the wired components of a docrag deployment.
type App struct {
	Config      *config.Config
	DB          *sql.DB // nil when DB_PATH is empty
	Ingestions  storage.IngestionStore
	VectorStore vectorstore.VectorStore
	Embedder    llm.Embedder
	Extractor   *extract.Registry
	Pipeline    *indexer.Pipeline
	Engine      rag.Engine
	Distance    vectorstore.Distance

	closers []io.Closer
}

// NewLogger builds the process logger from the configured level and format.
func NewLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}
	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		handler = slog.NewTextHandler(w, opts)
	}
	return slog.New(handler)
}

// New opens the history database and vector store and builds the pipeline and engine.
// Nothing is contacted over the network; call ProbeEmbedder to check the backend.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	logger := contextutil.LoggerFromContext(ctx)
	a := &App{Config: cfg}

	distance, err := vectorstore.ParseDistance(cfg.Retrieval.DistanceMetric)
	if err != nil {
		return nil, err
	}
	a.Distance = distance

	if cfg.DBPath != "" {
		db, err := storage.New(cfg.DBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		a.closers = append(a.closers, db)
		if err := storage.Migrate(db); err != nil {
			_ = a.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
		a.DB = db
		a.Ingestions = storage.NewIngestionRepo(db)
		logger.InfoContext(ctx, "database initialized", "path", cfg.DBPath)
	}

	switch cfg.VectorStore {
	case "memory":
		a.VectorStore = vectorstore.NewMemoryStore()
	default:
		store, err := vectorstore.NewQdrantStore(cfg.QdrantURL, cfg.QdrantAPIKey)
		if err != nil {
			_ = a.Close()
			return nil, err
		}
		a.closers = append(a.closers, store)
		a.VectorStore = store
	}
	logger.InfoContext(ctx, "vector store configured", "backend", cfg.VectorStore, "collection", cfg.Collection)

	dimension := cfg.Retrieval.VectorDimension
	model := cfg.EmbeddingModelName
	switch cfg.EmbeddingBackend {
	case "local":
		a.Embedder = llm.NewLocalEmbedder(cfg.LocalModelPath, dimension)
		model = "local:" + cfg.LocalModelPath
	default:
		a.Embedder = llm.NewEmbeddingsClient(
			cfg.EmbeddingBaseURL,
			cfg.EmbeddingAPIKey,
			cfg.EmbeddingModelName,
			llm.APIStyle(cfg.EmbeddingAPIStyle),
			dimension,
			llm.WithRateLimit(cfg.EmbeddingRateLimit),
		)
	}
	logger.InfoContext(ctx, "embedder configured", "backend", cfg.EmbeddingBackend, "model", model, "dimension", dimension)

	chunker, err := indexer.NewChunker(cfg.Retrieval)
	if err != nil {
		_ = a.Close()
		return nil, err
	}

	r := cfg.Retrieval
	indexVersion := indexer.IndexVersion(r.ChunkStrategy, r.ChunkSize, r.ChunkOverlap, r.MinChunkLength, model, dimension, string(distance))

	a.Extractor = extract.NewRegistry()
	a.Pipeline = indexer.NewPipeline(a.Extractor, chunker, a.Embedder, a.VectorStore, a.Ingestions, cfg.Collection, indexer.Options{
		Distance:       distance,
		EmbedTimeout:   cfg.EmbedTimeout,
		StoreTimeout:   cfg.StoreTimeout,
		IngestDegraded: cfg.IngestDegraded,
		IndexVersion:   indexVersion,
	})
	a.Engine = rag.NewEngine(a.Embedder, a.VectorStore, cfg.Collection, rag.Settings{
		DefaultLimit:   r.SearchLimit,
		ScoreThreshold: r.ScoreThreshold,
		EmbedTimeout:   cfg.EmbedTimeout,
		StoreTimeout:   cfg.StoreTimeout,
	})
	logger.InfoContext(ctx, "pipeline initialized", "chunk_strategy", r.ChunkStrategy, "chunk_size", r.ChunkSize, "index_version", indexVersion)

	return a, nil
}

// ProbeEmbedder embeds a short probe text and checks the vector length against the
// configured dimension.
func (a *App) ProbeEmbedder(ctx context.Context) error {
	probeCtx, cancel := contextutil.WithTimeout(ctx, a.Config.EmbedTimeout)
	defer cancel()

	vec, err := a.Embedder.Embed(probeCtx, "dimension probe")
	if err != nil {
		return fmt.Errorf("failed to validate embedding backend: %w", err)
	}
	if len(vec) != a.Config.Retrieval.VectorDimension {
		return fmt.Errorf("embedding vector size mismatch: expected %d, got %d", a.Config.Retrieval.VectorDimension, len(vec))
	}
	return nil
}

// EnsureCollection creates the configured collection when it is absent.
func (a *App) EnsureCollection(ctx context.Context) error {
	storeCtx, cancel := contextutil.WithTimeout(ctx, a.Config.StoreTimeout)
	defer cancel()
	return a.VectorStore.EnsureCollection(storeCtx, a.Config.Collection, a.Config.Retrieval.VectorDimension, a.Distance)
}

// Close releases the database and vector store connections.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i].Close(); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
