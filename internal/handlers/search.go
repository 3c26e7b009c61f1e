package handlers

import (
	"encoding/json"
	"net/http"

	"docrag/internal/contextutil"
	"docrag/internal/rag"
)

// SearchHandler handles HTTP requests for semantic search.
type SearchHandler struct {
	engine rag.Engine
}

// NewSearchHandler creates a new SearchHandler.
func NewSearchHandler(engine rag.Engine) *SearchHandler {
	return &SearchHandler{
		engine: engine,
	}
}

// ServeHTTP handles HTTP requests for search.
//
// Embeds the query and returns the closest stored chunks.
//
// swagger:route POST /api/search search
//
// # Semantic search
//
// Returns chunks ordered by similarity to the query, best first.
//
// ---
// consumes:
// - application/json
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Search results (possibly empty)
//	  schema:
//	    "$ref": "#/definitions/QueryResponse"
//	'400':
//	  description: Invalid request
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'502':
//	  description: Embedding service error
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'503':
//	  description: Vector store unavailable
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *SearchHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	var req rag.QueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		logger.WarnContext(ctx, "invalid request body", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid request body", "")
		return
	}

	resp, err := h.engine.Query(ctx, req)
	if err != nil {
		handleError(ctx, w, err, "Search failed")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}
