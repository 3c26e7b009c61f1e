package vectorstore

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"sort"
	"sync"

	"docrag/internal/contextutil"
	"docrag/internal/service"
)

// MemoryStore is an in-process VectorStore using brute-force scoring.
// It backs VECTOR_STORE=memory and the pipeline tests.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	dimension int
	distance  Distance
	points    map[string]Point
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// EnsureCollection creates the collection when absent and validates its dimension otherwise.
func (s *MemoryStore) EnsureCollection(ctx context.Context, collection string, dimension int, distance Distance) error {
	logger := contextutil.LoggerFromContext(ctx)

	if dimension <= 0 {
		return &service.ValidationError{Field: "dimension", Message: "must be greater than 0"}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if c, ok := s.collections[collection]; ok {
		if c.dimension != dimension {
			return fmt.Errorf("%w: collection %s has dimension %d, requested %d", service.ErrDimensionMismatch, collection, c.dimension, dimension)
		}
		return nil
	}

	s.collections[collection] = &memoryCollection{
		dimension: dimension,
		distance:  distance,
		points:    make(map[string]Point),
	}
	logger.InfoContext(ctx, "collection created", "collection", collection, "vector_size", dimension, "distance", distance)
	return nil
}

// CollectionExists checks if a collection exists.
func (s *MemoryStore) CollectionExists(_ context.Context, collection string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.collections[collection]
	return ok, nil
}

// Upsert inserts or replaces points by ID.
func (s *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", service.ErrCollectionNotFound, collection)
	}
	if err := validateDimensions(points, c.dimension); err != nil {
		return err
	}

	for _, p := range points {
		c.points[p.ID] = Point{
			ID:   p.ID,
			Vec:  append([]float32(nil), p.Vec...),
			Meta: copyMeta(p.Meta),
		}
	}
	return nil
}

// Search scores every point and returns the best matches.
func (s *MemoryStore) Search(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error) {
	if req.Limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return nil, fmt.Errorf("%w: %s", service.ErrCollectionNotFound, collection)
	}
	if len(req.Vector) != c.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, collection expects %d", service.ErrDimensionMismatch, len(req.Vector), c.dimension)
	}

	results := make([]SearchResult, 0)
	for _, p := range c.points {
		if !matchesFilter(p.Meta, req.Filter) {
			continue
		}
		score := similarity(c.distance, req.Vector, p.Vec)
		if req.ScoreThreshold != nil && score < *req.ScoreThreshold {
			continue
		}
		results = append(results, SearchResult{PointID: p.ID, Score: score, Meta: copyMeta(p.Meta)})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].PointID < results[j].PointID
	})
	if len(results) > req.Limit {
		results = results[:req.Limit]
	}
	return results, nil
}

// DeleteByField removes points whose payload key equals value.
func (s *MemoryStore) DeleteByField(ctx context.Context, collection string, key string, value any) error {
	logger := contextutil.LoggerFromContext(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: %s", service.ErrCollectionNotFound, collection)
	}

	filter := map[string]any{key: value}
	deleted := 0
	for id, p := range c.points {
		if matchesFilter(p.Meta, filter) {
			delete(c.points, id)
			deleted++
		}
	}
	logger.InfoContext(ctx, "deleted points by field", "collection", collection, "key", key, "count", deleted)
	return nil
}

// Count returns the number of points matching filter.
func (s *MemoryStore) Count(_ context.Context, collection string, filter map[string]any) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return 0, fmt.Errorf("%w: %s", service.ErrCollectionNotFound, collection)
	}
	n := 0
	for _, p := range c.points {
		if matchesFilter(p.Meta, filter) {
			n++
		}
	}
	return n, nil
}

// Scroll pages through points ordered by ID. The offset is the first ID of the page.
func (s *MemoryStore) Scroll(_ context.Context, collection string, limit int, offset string) (ScrollPage, error) {
	if limit <= 0 {
		return ScrollPage{}, fmt.Errorf("limit must be greater than 0")
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return ScrollPage{}, fmt.Errorf("%w: %s", service.ErrCollectionNotFound, collection)
	}

	ids := make([]string, 0, len(c.points))
	for id := range c.points {
		if id >= offset {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	page := ScrollPage{}
	for i, id := range ids {
		if i == limit {
			page.NextOffset = id
			break
		}
		p := c.points[id]
		page.Points = append(page.Points, Point{ID: p.ID, Meta: copyMeta(p.Meta)})
	}
	return page, nil
}

// ListCollections returns the collection names in sorted order.
func (s *MemoryStore) ListCollections(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.collections))
	for name := range s.collections {
		names = append(names, name)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteCollection drops a collection and its points.
func (s *MemoryStore) DeleteCollection(ctx context.Context, collection string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.collections[collection]
	if !ok {
		return fmt.Errorf("%w: collection %s", service.ErrNotFound, collection)
	}
	delete(s.collections, collection)
	contextutil.LoggerFromContext(ctx).InfoContext(ctx, "collection deleted", "collection", collection, "points", len(c.points))
	return nil
}

// GetCollectionInfo reports collection metadata.
func (s *MemoryStore) GetCollectionInfo(_ context.Context, collection string) CollectionInfo {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.collections[collection]
	if !ok {
		return CollectionInfo{Name: collection, Available: false, Status: "missing", Error: service.ErrCollectionNotFound.Error()}
	}
	return CollectionInfo{
		Name:        collection,
		Available:   true,
		Status:      "green",
		VectorSize:  c.dimension,
		Distance:    c.distance,
		PointsCount: len(c.points),
	}
}

func validateDimensions(points []Point, dimension int) error {
	for _, p := range points {
		if len(p.Vec) != dimension {
			return fmt.Errorf("%w: point %s has %d dimensions, collection expects %d", service.ErrDimensionMismatch, p.ID, len(p.Vec), dimension)
		}
	}
	return nil
}

// similarity returns a higher-is-closer score for the metric.
func similarity(distance Distance, a, b []float32) float32 {
	switch distance {
	case DistanceDot:
		return dot(a, b)
	case DistanceEuclid:
		var sum float64
		for i := range a {
			d := float64(a[i] - b[i])
			sum += d * d
		}
		return -float32(math.Sqrt(sum))
	default:
		na, nb := norm(a), norm(b)
		if na == 0 || nb == 0 {
			return 0
		}
		return float32(float64(dot(a, b)) / (na * nb))
	}
}

func dot(a, b []float32) float32 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return float32(sum)
}

func norm(v []float32) float64 {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	return math.Sqrt(sum)
}

func matchesFilter(meta map[string]any, filter map[string]any) bool {
	for key, want := range filter {
		got, ok := meta[key]
		if !ok || !valuesEqual(got, want) {
			return false
		}
	}
	return true
}

// valuesEqual compares payload values loosely so int/int64/float64 and their string
// forms agree, mirroring how payloads round-trip through Qdrant.
func valuesEqual(a, b any) bool {
	if reflect.DeepEqual(a, b) {
		return true
	}
	return fmt.Sprint(a) == fmt.Sprint(b) && isScalar(a) && isScalar(b)
}

func isScalar(v any) bool {
	switch v.(type) {
	case string, bool, int, int32, int64, float32, float64:
		return true
	}
	return false
}

func copyMeta(meta map[string]any) map[string]any {
	if meta == nil {
		return nil
	}
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		out[k] = v
	}
	return out
}
