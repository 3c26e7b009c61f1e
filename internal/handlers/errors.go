package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"docrag/internal/contextutil"
	"docrag/internal/service"
)

// ErrorResponse represents an error response.
//
// swagger:model ErrorResponse
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// statusForError maps the service error taxonomy to an HTTP status code.
func statusForError(err error) int {
	switch {
	case service.IsClientError(err):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrDimensionMismatch):
		return http.StatusConflict
	case errors.Is(err, service.ErrIngestionFailed):
		return http.StatusInternalServerError
	case errors.Is(err, service.ErrEmbeddingFailure), errors.Is(err, service.ErrExternalService):
		return http.StatusBadGateway
	case errors.Is(err, service.ErrStoreUnavailable), errors.Is(err, service.ErrCollectionNotFound):
		return http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

// handleError logs err and writes the matching status. Client errors carry their message;
// server errors get defaultMsg so internals do not leak.
func handleError(ctx context.Context, w http.ResponseWriter, err error, defaultMsg string) {
	logger := contextutil.LoggerFromContext(ctx)
	status := statusForError(err)

	if status >= http.StatusInternalServerError {
		logger.ErrorContext(ctx, defaultMsg, "error", err, "status", status)
	} else {
		logger.WarnContext(ctx, defaultMsg, "error", err, "status", status)
	}

	switch status {
	case http.StatusBadRequest, http.StatusNotFound, http.StatusConflict:
		writeError(w, status, defaultMsg, err.Error())
	case http.StatusBadGateway:
		writeError(w, status, "Embedding service error", "")
	case http.StatusServiceUnavailable:
		writeError(w, status, "Vector store unavailable", "")
	default:
		writeError(w, status, defaultMsg, "")
	}
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, statusCode int, message, details string) {
	writeJSON(w, statusCode, ErrorResponse{Error: message, Details: details})
}

// writeJSON writes v with the given status.
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(v)
}
