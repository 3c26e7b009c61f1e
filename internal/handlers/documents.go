package handlers

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"docrag/internal/contextutil"
	"docrag/internal/indexer"
	"docrag/internal/service"
)

const (
	defaultMaxUploadBytes = 32 << 20
	formFileField         = "file"
)

// DocumentsHandler handles upload, listing and deletion of documents.
type DocumentsHandler struct {
	ingester       indexer.Ingester
	maxUploadBytes int64
}

// NewDocumentsHandler creates a new DocumentsHandler.
// A non-positive maxUploadBytes uses a 32 MiB limit.
func NewDocumentsHandler(ingester indexer.Ingester, maxUploadBytes int64) *DocumentsHandler {
	if maxUploadBytes <= 0 {
		maxUploadBytes = defaultMaxUploadBytes
	}
	return &DocumentsHandler{
		ingester:       ingester,
		maxUploadBytes: maxUploadBytes,
	}
}

// IngestResponse is the result of a document upload.
//
// swagger:model IngestResponse
type IngestResponse struct {
	*indexer.IngestionReport

	// Warning is set when only part of the document was stored
	Warning string `json:"warning,omitempty"`

	// Error is set when no chunk was stored
	Error string `json:"error,omitempty"`
}

// DeleteResponse is the result of a document deletion.
//
// swagger:model DeleteResponse
type DeleteResponse struct {
	Filename      string `json:"filename"`
	ChunksDeleted int    `json:"chunks_deleted"`
}

// Upload handles POST /api/documents.
//
// swagger:route POST /api/documents uploadDocument
//
// # Ingest a document
//
// Extracts, chunks, embeds and stores the uploaded file.
//
// ---
// consumes:
// - multipart/form-data
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Document ingested, fully or partially
//	  schema:
//	    "$ref": "#/definitions/IngestResponse"
//	'400':
//	  description: Empty, unsupported or unreadable document
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'500':
//	  description: No chunk could be stored
//	  schema:
//	    "$ref": "#/definitions/IngestResponse"
//	'504':
//	  description: Timed out; the report lists the chunks stored before the deadline
//	  schema:
//	    "$ref": "#/definitions/IngestResponse"
func (h *DocumentsHandler) Upload(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	r.Body = http.MaxBytesReader(w, r.Body, h.maxUploadBytes)
	file, header, err := r.FormFile(formFileField)
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			logger.WarnContext(ctx, "upload too large", "limit", maxErr.Limit)
			writeError(w, http.StatusRequestEntityTooLarge, "File too large", fmt.Sprintf("limit is %d bytes", maxErr.Limit))
			return
		}
		logger.WarnContext(ctx, "invalid upload", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid upload", `multipart field "file" is required`)
		return
	}
	defer func() {
		if closeErr := file.Close(); closeErr != nil {
			logger.WarnContext(ctx, "failed to close upload", "error", closeErr)
		}
	}()

	content, err := io.ReadAll(file)
	if err != nil {
		logger.ErrorContext(ctx, "failed to read upload", "error", err)
		writeError(w, http.StatusBadRequest, "Invalid upload", "failed to read file")
		return
	}

	mimeType := header.Header.Get("Content-Type")
	if mediaType, _, parseErr := mime.ParseMediaType(mimeType); parseErr == nil {
		mimeType = mediaType
	}

	report, err := h.ingester.Ingest(ctx, indexer.Document{
		Filename: header.Filename,
		MIMEType: mimeType,
		Content:  content,
	})
	if err != nil {
		if report != nil {
			// Every chunk failed or the request was cut short; the report still says
			// which chunks were stored.
			status := statusForError(err)
			logger.ErrorContext(ctx, "ingestion failed", "filename", header.Filename, "status", status, "error", err)
			writeJSON(w, status, IngestResponse{IngestionReport: report, Error: err.Error()})
			return
		}
		handleError(ctx, w, err, "Failed to ingest document")
		return
	}

	resp := IngestResponse{IngestionReport: report}
	if partialErr := report.Err(); errors.Is(partialErr, service.ErrPartialIngestion) {
		resp.Warning = partialErr.Error()
	}
	writeJSON(w, http.StatusOK, resp)
}

// List handles GET /api/documents.
//
// swagger:route GET /api/documents listDocuments
//
// # List stored chunks
//
// Pages through stored chunks. Pass next_offset back as offset for the next page.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: One page of chunks
//	  schema:
//	    "$ref": "#/definitions/DocumentPage"
//	'400':
//	  description: Invalid limit
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *DocumentsHandler) List(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit, err := parseLimit(r.URL.Query().Get("limit"))
	if err != nil {
		handleError(ctx, w, err, "Invalid limit")
		return
	}

	page, err := h.ingester.ListDocuments(ctx, limit, r.URL.Query().Get("offset"))
	if err != nil {
		handleError(ctx, w, err, "Failed to list documents")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// Delete handles DELETE /api/documents.
//
// swagger:route DELETE /api/documents deleteDocument
//
// # Delete a document
//
// Removes every chunk stored for the filename.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Document deleted
//	  schema:
//	    "$ref": "#/definitions/DeleteResponse"
//	'404':
//	  description: No chunks stored for the filename
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *DocumentsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	filename := strings.TrimSpace(r.URL.Query().Get("filename"))
	if filename == "" {
		handleError(ctx, w, &service.ValidationError{Field: "filename", Message: "filename is required"}, "Invalid request")
		return
	}

	deleted, err := h.ingester.DeleteDocument(ctx, filename)
	if err != nil {
		handleError(ctx, w, err, "Failed to delete document")
		return
	}
	if deleted == 0 {
		logger.InfoContext(ctx, "document not found", "filename", filename)
		writeError(w, http.StatusNotFound, "Document not found", filename)
		return
	}
	writeJSON(w, http.StatusOK, DeleteResponse{Filename: filename, ChunksDeleted: deleted})
}

// parseLimit reads an optional non-negative limit query parameter. Empty means 0.
func parseLimit(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, &service.ValidationError{Field: "limit", Message: "limit must be a non-negative integer"}
	}
	return limit, nil
}
