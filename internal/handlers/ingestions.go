package handlers

import (
	"net/http"
	"time"

	"docrag/internal/storage"
)

const (
	defaultHistoryLimit = 20
	maxHistoryLimit     = 200
)

// IngestionsHandler serves the ingestion history.
type IngestionsHandler struct {
	ingestions storage.IngestionStore
}

// NewIngestionsHandler creates a new IngestionsHandler.
func NewIngestionsHandler(ingestions storage.IngestionStore) *IngestionsHandler {
	return &IngestionsHandler{ingestions: ingestions}
}

// IngestionEntry is one past ingestion.
//
// swagger:model IngestionEntry
type IngestionEntry struct {
	ID              string                `json:"id"`
	Filename        string                `json:"filename"`
	FileType        string                `json:"file_type"`
	Collection      string                `json:"collection"`
	Status          string                `json:"status"`
	ChunksTotal     int                   `json:"chunks_total"`
	ChunksSucceeded int                   `json:"chunks_succeeded"`
	ChunksFailed    int                   `json:"chunks_failed"`
	ChunksDegraded  int                   `json:"chunks_degraded"`
	TextLength      int                   `json:"text_length"`
	IndexVersion    string                `json:"index_version"`
	IngestedAt      string                `json:"ingested_at"`
	Errors          []IngestionErrorEntry `json:"errors,omitempty"`
}

// IngestionErrorEntry is a chunk failure in the history.
type IngestionErrorEntry struct {
	ChunkIndex int    `json:"chunk_index"`
	Stage      string `json:"stage"`
	Message    string `json:"message"`
}

// IngestionsResponse lists recent ingestions.
//
// swagger:model IngestionsResponse
type IngestionsResponse struct {
	Ingestions []IngestionEntry `json:"ingestions"`
}

// ServeHTTP handles GET /api/ingestions.
//
// swagger:route GET /api/ingestions listIngestions
//
// # Ingestion history
//
// Returns the most recent ingestions, newest first.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Recent ingestions
//	  schema:
//	    "$ref": "#/definitions/IngestionsResponse"
func (h *IngestionsHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		handleError(ctx, w, err, "Invalid limit")
		return
	}
	if limit == 0 {
		limit = defaultHistoryLimit
	}
	limit = min(limit, maxHistoryLimit)

	records, err := h.ingestions.ListRecent(ctx, limit)
	if err != nil {
		handleError(ctx, w, err, "Failed to list ingestions")
		return
	}

	resp := IngestionsResponse{Ingestions: make([]IngestionEntry, 0, len(records))}
	for _, rec := range records {
		entry := IngestionEntry{
			ID:              rec.ID,
			Filename:        rec.Filename,
			FileType:        rec.FileType,
			Collection:      rec.Collection,
			Status:          rec.Status,
			ChunksTotal:     rec.ChunksTotal,
			ChunksSucceeded: rec.ChunksSucceeded,
			ChunksFailed:    rec.ChunksFailed,
			ChunksDegraded:  rec.ChunksDegraded,
			TextLength:      rec.TextLength,
			IndexVersion:    rec.IndexVersion,
			IngestedAt:      rec.IngestedAt.UTC().Format(time.RFC3339),
		}
		for _, e := range rec.Errors {
			entry.Errors = append(entry.Errors, IngestionErrorEntry(e))
		}
		resp.Ingestions = append(resp.Ingestions, entry)
	}
	writeJSON(w, http.StatusOK, resp)
}
