package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"docrag/internal/handlers"
	"docrag/internal/indexer"
	"docrag/internal/rag"
	"docrag/internal/storage"
	"docrag/internal/vectorstore"
)

// Deps holds dependencies for the HTTP router.
type Deps struct {
	Ingester       indexer.Ingester
	Engine         rag.Engine
	VectorStore    vectorstore.VectorStore
	Ingestions     storage.IngestionStore // optional; /api/ingestions is not mounted when nil
	Database       handlers.Pinger        // optional
	Collection     string
	Dimension      int
	Distance       vectorstore.Distance
	MaxUploadBytes int64
}

// NewRouter creates a new HTTP router with the provided dependencies.
func NewRouter(deps *Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(LoggerMiddleware)
	r.Use(RequestLogger)
	r.Use(CORS)

	documentsHandler := handlers.NewDocumentsHandler(deps.Ingester, deps.MaxUploadBytes)
	searchHandler := handlers.NewSearchHandler(deps.Engine)
	collectionsHandler := handlers.NewCollectionsHandler(deps.VectorStore, deps.Collection, deps.Dimension, deps.Distance)
	healthHandler := handlers.NewHealthHandler(deps.VectorStore, deps.Database, deps.Collection)

	r.Route("/api", func(r chi.Router) {
		r.Post("/documents", documentsHandler.Upload)
		r.Get("/documents", documentsHandler.List)
		r.Delete("/documents", documentsHandler.Delete)

		r.Method(http.MethodPost, "/search", searchHandler)

		r.Get("/collections", collectionsHandler.Status)
		r.Post("/collections", collectionsHandler.Init)
		r.Delete("/collections", collectionsHandler.Delete)
		r.Get("/collections/all", collectionsHandler.List)

		if deps.Ingestions != nil {
			r.Method(http.MethodGet, "/ingestions", handlers.NewIngestionsHandler(deps.Ingestions))
		}

		r.Method(http.MethodGet, "/health", healthHandler)
	})

	return r
}
