package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	nethttp "net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"docrag/internal/app"
	"docrag/internal/config"
	"docrag/internal/http"
	"docrag/internal/service"
)

//go:generate swagger generate spec -o swagger.json

// General API information
//
// This API ingests documents into a vector store and answers semantic search queries over them.
//
// swagger:meta
//
// ---
// swagger: '2.0'
// info:
//   title: docrag API
//   description: |
//     Semantic document retrieval. Upload PDF, markdown or plain text documents; they are
//     chunked, embedded and stored in Qdrant. Search returns the closest chunks for a query.
//   version: 1.0.0
// schemes:
//   - http
//   - https
// consumes:
//   - application/json
//   - multipart/form-data
// produces:
//   - application/json

const shutdownTimeout = 15 * time.Second

func main() {
	// Load configuration first (needed for log level)
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := app.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)
	slog.Debug("Logging configured", "level", cfg.LogLevel.String(), "format", cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to initialize: %v", err)
	}
	defer func() {
		if err := a.Close(); err != nil {
			slog.Warn("Failed to close resources", "error", err)
		}
	}()

	// Fail fast on a misconfigured embedding backend
	if err := a.ProbeEmbedder(ctx); err != nil {
		log.Fatalf("Embedding backend check failed: %v", err)
	}
	slog.Info("Embedding backend validated", "backend", cfg.EmbeddingBackend, "vector_size", cfg.Retrieval.VectorDimension)

	// A down store is tolerated: ingestion creates the collection lazily.
	// A dimension clash is not.
	if err := a.EnsureCollection(ctx); err != nil {
		if errors.Is(err, service.ErrDimensionMismatch) {
			log.Fatalf("Collection %q is incompatible: %v", cfg.Collection, err)
		}
		slog.Warn("Vector store not ready at startup", "collection", cfg.Collection, "error", err)
	} else {
		slog.Info("Collection ready", "collection", cfg.Collection, "vector_size", cfg.Retrieval.VectorDimension, "distance", a.Distance)
	}

	deps := &http.Deps{
		Ingester:       a.Pipeline,
		Engine:         a.Engine,
		VectorStore:    a.VectorStore,
		Collection:     cfg.Collection,
		Dimension:      cfg.Retrieval.VectorDimension,
		Distance:       a.Distance,
		MaxUploadBytes: cfg.MaxUploadBytes,
	}
	if a.DB != nil {
		deps.Ingestions = a.Ingestions
		deps.Database = a.DB
	}

	server := &nethttp.Server{
		Addr:              ":" + cfg.APIPort,
		Handler:           http.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		slog.Info("Starting API server", "addr", server.Addr)
		serverErr <- server.ListenAndServe()
	}()

	select {
	case err := <-serverErr:
		if !errors.Is(err, nethttp.ErrServerClosed) {
			log.Fatalf("API server failed: %v", err)
		}
	case <-ctx.Done():
		slog.Info("Shutting down API server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("Graceful shutdown failed", "error", err)
		}
	}
}
