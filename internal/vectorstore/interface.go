package vectorstore

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_vector_store.go -package=mocks docrag/internal/vectorstore VectorStore

import (
	"context"
	"fmt"
	"strings"
)

// Distance is the similarity function a collection ranks by.
type Distance string

const (
	DistanceCosine Distance = "Cosine"
	DistanceEuclid Distance = "Euclid"
	DistanceDot    Distance = "Dot"
)

// ParseDistance maps a case-insensitive metric name to a Distance.
func ParseDistance(s string) (Distance, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "cosine":
		return DistanceCosine, nil
	case "euclid", "euclidean":
		return DistanceEuclid, nil
	case "dot":
		return DistanceDot, nil
	default:
		return "", fmt.Errorf("unknown distance metric %q", s)
	}
}

// Point represents a vector point with metadata.
type Point struct {
	ID   string
	Vec  []float32
	Meta map[string]any
}

// SearchRequest describes a similarity search.
// A nil ScoreThreshold returns the top Limit results regardless of score.
// Filter values are matched for equality against payload fields.
type SearchRequest struct {
	Vector         []float32
	Limit          int
	ScoreThreshold *float32
	Filter         map[string]any
}

// SearchResult represents a search result from vector search.
// Score is a similarity: higher is always closer. For Euclid collections it is the
// negated distance.
type SearchResult struct {
	PointID string
	Score   float32
	Meta    map[string]any
}

// ScrollPage is one page of a collection listing. NextOffset is empty once the
// collection is exhausted. Vectors are not included.
type ScrollPage struct {
	Points     []Point
	NextOffset string
}

// CollectionInfo contains information about a collection.
// Available is false when the store could not be reached; Error then carries the reason.
type CollectionInfo struct {
	Name        string
	Available   bool
	Status      string
	VectorSize  int
	Distance    Distance
	PointsCount int
	Error       string
}

// VectorStore defines the interface for vector storage operations.
type VectorStore interface {
	// EnsureCollection creates the collection when absent. An existing collection with a
	// different dimension fails with service.ErrDimensionMismatch and is left untouched.
	EnsureCollection(ctx context.Context, collection string, dimension int, distance Distance) error

	// CollectionExists checks if a collection exists.
	CollectionExists(ctx context.Context, collection string) (bool, error)

	// ListCollections returns the names of all collections in the store, sorted.
	ListCollections(ctx context.Context) ([]string, error)

	// DeleteCollection drops a collection with all of its points. A missing collection
	// fails with service.ErrNotFound.
	DeleteCollection(ctx context.Context, collection string) error

	// Upsert inserts or updates points in the collection.
	// Every vector must match the collection dimension; nothing is written otherwise.
	Upsert(ctx context.Context, collection string, points []Point) error

	// Search performs a similarity search, best match first.
	Search(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error)

	// DeleteByField removes every point whose payload field key equals value.
	DeleteByField(ctx context.Context, collection string, key string, value any) error

	// Count returns the number of points matching filter (all points for a nil filter).
	Count(ctx context.Context, collection string, filter map[string]any) (int, error)

	// Scroll lists points page by page starting at offset ("" for the first page).
	Scroll(ctx context.Context, collection string, limit int, offset string) (ScrollPage, error)

	// GetCollectionInfo reports collection status. It never fails; an unreachable store
	// yields Available=false.
	GetCollectionInfo(ctx context.Context, collection string) CollectionInfo
}
