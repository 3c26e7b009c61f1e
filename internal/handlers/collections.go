package handlers

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"docrag/internal/contextutil"
	"docrag/internal/service"
	"docrag/internal/vectorstore"
)

// CollectionsHandler reports, initialises and deletes collections.
type CollectionsHandler struct {
	vectorStore vectorstore.VectorStore
	collection  string
	dimension   int
	distance    vectorstore.Distance
}

// NewCollectionsHandler creates a new CollectionsHandler for one collection.
// dimension and distance are used when the collection has to be created.
func NewCollectionsHandler(vectorStore vectorstore.VectorStore, collection string, dimension int, distance vectorstore.Distance) *CollectionsHandler {
	return &CollectionsHandler{
		vectorStore: vectorStore,
		collection:  collection,
		dimension:   dimension,
		distance:    distance,
	}
}

// CollectionResponse describes the collection.
//
// swagger:model CollectionResponse
type CollectionResponse struct {
	Name        string `json:"name"`
	Available   bool   `json:"available"`
	Status      string `json:"status,omitempty"`
	VectorSize  int    `json:"vector_size,omitempty"`
	Distance    string `json:"distance,omitempty"`
	PointsCount int    `json:"points_count"`
	Error       string `json:"error,omitempty"`
}

// Status handles GET /api/collections.
//
// swagger:route GET /api/collections collectionStatus
//
// # Collection status
//
// Always answers 200; an unreachable store is reported with available=false.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Collection status
//	  schema:
//	    "$ref": "#/definitions/CollectionResponse"
func (h *CollectionsHandler) Status(w http.ResponseWriter, r *http.Request) {
	info := h.vectorStore.GetCollectionInfo(r.Context(), h.collection)
	writeJSON(w, http.StatusOK, toCollectionResponse(info))
}

// Init handles POST /api/collections.
//
// swagger:route POST /api/collections initCollection
//
// # Initialise the collection
//
// Creates the collection when absent. Idempotent.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Collection ready
//	  schema:
//	    "$ref": "#/definitions/CollectionResponse"
//	'409':
//	  description: Existing collection has a different vector size
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *CollectionsHandler) Init(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	if err := h.vectorStore.EnsureCollection(ctx, h.collection, h.dimension, h.distance); err != nil {
		handleError(ctx, w, err, "Failed to initialise collection")
		return
	}
	logger.InfoContext(ctx, "collection ready", "collection", h.collection, "dimension", h.dimension, "distance", h.distance)

	info := h.vectorStore.GetCollectionInfo(ctx, h.collection)
	writeJSON(w, http.StatusOK, toCollectionResponse(info))
}

// CollectionListResponse names every collection in the store.
//
// swagger:model CollectionListResponse
type CollectionListResponse struct {
	Collections []string `json:"collections"`
	Configured  string   `json:"configured"`
}

// List handles GET /api/collections/all.
//
// swagger:route GET /api/collections/all listCollections
//
// # List collections
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Collection names
//	  schema:
//	    "$ref": "#/definitions/CollectionListResponse"
//	'503':
//	  description: Vector store unavailable
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *CollectionsHandler) List(w http.ResponseWriter, r *http.Request) {
	names, err := h.vectorStore.ListCollections(r.Context())
	if err != nil {
		handleError(r.Context(), w, err, "Failed to list collections")
		return
	}
	if names == nil {
		names = []string{}
	}
	writeJSON(w, http.StatusOK, CollectionListResponse{Collections: names, Configured: h.collection})
}

// DeleteCollectionResponse confirms a dropped collection.
//
// swagger:model DeleteCollectionResponse
type DeleteCollectionResponse struct {
	Name    string `json:"name"`
	Message string `json:"message"`
}

// Delete handles DELETE /api/collections?name=.
//
// swagger:route DELETE /api/collections deleteCollection
//
// # Delete a collection
//
// Drops the named collection with every stored chunk. Deleting the configured collection
// is allowed; the next upload or init recreates it empty.
//
// ---
// produces:
// - application/json
// responses:
//
//	'200':
//	  description: Collection deleted
//	  schema:
//	    "$ref": "#/definitions/DeleteCollectionResponse"
//	'400':
//	  description: Missing name
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
//	'404':
//	  description: Collection not found
//	  schema:
//	    "$ref": "#/definitions/ErrorResponse"
func (h *CollectionsHandler) Delete(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	logger := contextutil.LoggerFromContext(ctx)

	name := strings.TrimSpace(r.URL.Query().Get("name"))
	if name == "" {
		writeError(w, http.StatusBadRequest, "Collection name is required", "")
		return
	}

	if err := h.vectorStore.DeleteCollection(ctx, name); err != nil {
		if errors.Is(err, service.ErrNotFound) {
			writeError(w, http.StatusNotFound, "Collection not found", name)
			return
		}
		handleError(ctx, w, err, "Failed to delete collection")
		return
	}
	logger.InfoContext(ctx, "collection deleted", "collection", name)

	writeJSON(w, http.StatusOK, DeleteCollectionResponse{
		Name:    name,
		Message: fmt.Sprintf("Collection %s deleted", name),
	})
}

func toCollectionResponse(info vectorstore.CollectionInfo) CollectionResponse {
	return CollectionResponse{
		Name:        info.Name,
		Available:   info.Available,
		Status:      info.Status,
		VectorSize:  info.VectorSize,
		Distance:    string(info.Distance),
		PointsCount: info.PointsCount,
		Error:       info.Error,
	}
}
