package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"reflect"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/qdrant/go-client/qdrant"
	"golang.org/x/sync/singleflight"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"docrag/internal/contextutil"
	"docrag/internal/service"
)

// ensureTimeout bounds one shared check-and-create round trip.
const ensureTimeout = 30 * time.Second

// QdrantStore implements VectorStore using Qdrant.
type QdrantStore struct {
	client *qdrant.Client

	ensure singleflight.Group

	mu          sync.RWMutex
	collections map[string]collectionParams
}

type collectionParams struct {
	dimension int
	distance  Distance
}

// NewQdrantStore creates a new Qdrant vector store client.
// urlStr should be in the format "http://host:port" (e.g., "http://localhost:6333").
// The gRPC port (typically 6334) will be derived from the HTTP port.
// An https scheme enables TLS.
func NewQdrantStore(urlStr, apiKey string) (*QdrantStore, error) {
	host, port, useTLS, err := parseQdrantURL(urlStr)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: apiKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Qdrant client: %w", err)
	}

	return &QdrantStore{
		client:      client,
		collections: make(map[string]collectionParams),
	}, nil
}

// Close releases the underlying gRPC connection.
func (s *QdrantStore) Close() error {
	return s.client.Close()
}

func parseQdrantURL(urlStr string) (host string, port int, useTLS bool, err error) {
	parsedURL, err := url.Parse(urlStr)
	if err != nil {
		return "", 0, false, fmt.Errorf("invalid Qdrant URL: %w", err)
	}

	host = parsedURL.Hostname()
	if host == "" {
		host = "localhost"
	}

	port = 6334 // Default gRPC port
	if parsedURL.Port() != "" {
		httpPort, convErr := strconv.Atoi(parsedURL.Port())
		if convErr == nil {
			// gRPC port is typically HTTP port + 1
			port = httpPort + 1
		}
	}

	return host, port, parsedURL.Scheme == "https", nil
}

// EnsureCollection ensures a collection exists with the specified vector size.
// Concurrent callers for the same collection share one check-and-create round trip.
// A create that loses a race with another process is recovered by re-reading the
// winner's configuration.
func (s *QdrantStore) EnsureCollection(ctx context.Context, collection string, dimension int, distance Distance) error {
	if dimension <= 0 {
		return &service.ValidationError{Field: "dimension", Message: "must be greater than 0"}
	}

	key := fmt.Sprintf("%s/%d/%s", collection, dimension, distance)
	return runShared(ctx, &s.ensure, key, ensureTimeout, func(ctx context.Context) error {
		return s.ensureCollection(ctx, collection, dimension, distance)
	})
}

// runShared runs fn once per key for every concurrent caller. fn gets a context that
// keeps the first caller's values but not its cancellation, bounded by timeout, so a
// caller that gives up does not fail the others. Each caller still returns as soon as
// its own ctx is done.
func runShared(ctx context.Context, group *singleflight.Group, key string, timeout time.Duration, fn func(context.Context) error) error {
	ch := group.DoChan(key, func() (any, error) {
		flightCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		return nil, fn(flightCtx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *QdrantStore) ensureCollection(ctx context.Context, collection string, dimension int, distance Distance) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}

	if !exists {
		logger.InfoContext(ctx, "creating collection", "collection", collection, "vector_size", dimension, "distance", distance)
		err := s.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     uint64(dimension),
				Distance: toQdrantDistance(distance),
			}),
		})
		if err == nil {
			s.remember(collection, collectionParams{dimension: dimension, distance: distance})
			logger.InfoContext(ctx, "collection created", "collection", collection, "vector_size", dimension)
			return nil
		}

		// Another writer may have created it between the check and the create.
		exists, existsErr := s.CollectionExists(ctx, collection)
		if existsErr != nil || !exists {
			return classifyError("create collection", err)
		}
		logger.InfoContext(ctx, "collection created concurrently", "collection", collection)
	}

	params, err := s.fetchParams(ctx, collection)
	if err != nil {
		return err
	}
	if params.dimension != dimension {
		return fmt.Errorf("%w: collection %s has dimension %d, requested %d", service.ErrDimensionMismatch, collection, params.dimension, dimension)
	}

	logger.InfoContext(ctx, "collection validated", "collection", collection, "vector_size", dimension)
	return nil
}

// CollectionExists checks if a collection exists.
func (s *QdrantStore) CollectionExists(ctx context.Context, collection string) (bool, error) {
	exists, err := s.client.CollectionExists(ctx, collection)
	if err != nil {
		return false, classifyError("check collection existence", err)
	}
	return exists, nil
}

// ListCollections returns the names of all collections, sorted.
func (s *QdrantStore) ListCollections(ctx context.Context) ([]string, error) {
	names, err := s.client.ListCollections(ctx)
	if err != nil {
		return nil, classifyError("list collections", err)
	}
	sort.Strings(names)
	return names, nil
}

// DeleteCollection drops a collection and forgets its cached parameters, so a collection
// recreated under the same name is re-read.
func (s *QdrantStore) DeleteCollection(ctx context.Context, collection string) error {
	logger := contextutil.LoggerFromContext(ctx)

	exists, err := s.CollectionExists(ctx, collection)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: collection %s", service.ErrNotFound, collection)
	}

	err = s.client.DeleteCollection(ctx, collection)
	s.forget(collection)
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete collection", "collection", collection, "error", err)
		return classifyError("delete collection", err)
	}

	logger.InfoContext(ctx, "collection deleted", "collection", collection)
	return nil
}

// Upsert inserts or updates points in the collection.
// Vector lengths are checked against the collection dimension before anything is sent.
func (s *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	logger := contextutil.LoggerFromContext(ctx)

	if len(points) == 0 {
		return nil
	}

	params, err := s.lookupParams(ctx, collection)
	if err != nil {
		return err
	}
	if err := validateDimensions(points, params.dimension); err != nil {
		return err
	}

	qdrantPoints := make([]*qdrant.PointStruct, 0, len(points))
	for _, point := range points {
		qdrantPoint := &qdrant.PointStruct{
			Id:      qdrant.NewID(point.ID),
			Vectors: qdrant.NewVectors(point.Vec...),
		}

		if len(point.Meta) > 0 {
			payload, err := qdrant.TryValueMap(normalizePayload(point.Meta))
			if err != nil {
				return fmt.Errorf("invalid payload for point %s: %w", point.ID, err)
			}
			qdrantPoint.Payload = payload
		}

		qdrantPoints = append(qdrantPoints, qdrantPoint)
	}

	_, err = s.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrantPoints,
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to upsert points", "collection", collection, "count", len(points), "error", err)
		return classifyError("upsert points", err)
	}

	logger.DebugContext(ctx, "upserted points", "collection", collection, "count", len(points))
	return nil
}

// Search performs a similarity search with optional equality filters.
// For Euclid collections the threshold and the returned scores are negated distances.
func (s *QdrantStore) Search(ctx context.Context, collection string, req SearchRequest) ([]SearchResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if req.Limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than 0")
	}

	params, err := s.lookupParams(ctx, collection)
	if err != nil {
		return nil, err
	}
	if len(req.Vector) != params.dimension {
		return nil, fmt.Errorf("%w: query vector has %d dimensions, collection expects %d", service.ErrDimensionMismatch, len(req.Vector), params.dimension)
	}

	euclid := params.distance == DistanceEuclid
	queryReq := &qdrant.QueryPoints{
		CollectionName: collection,
		Query:          qdrant.NewQuery(req.Vector...),
		Limit:          qdrant.PtrOf(uint64(req.Limit)),
		Filter:         buildFilter(req.Filter),
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if req.ScoreThreshold != nil {
		threshold := *req.ScoreThreshold
		if euclid {
			// Qdrant treats the threshold as a maximum distance for Euclid.
			threshold = -threshold
		}
		queryReq.ScoreThreshold = qdrant.PtrOf(threshold)
	}

	scoredPoints, err := s.client.Query(ctx, queryReq)
	if err != nil {
		logger.ErrorContext(ctx, "failed to search points", "collection", collection, "limit", req.Limit, "error", err)
		return nil, classifyError("search points", err)
	}

	results := make([]SearchResult, 0, len(scoredPoints))
	for _, result := range scoredPoints {
		score := result.GetScore()
		if euclid {
			score = -score
		}
		results = append(results, SearchResult{
			PointID: pointIDString(result.GetId()),
			Score:   score,
			Meta:    convertPayloadToMap(result.GetPayload()),
		})
	}

	logger.DebugContext(ctx, "search completed", "collection", collection, "limit", req.Limit, "results", len(results))
	return results, nil
}

// DeleteByField removes every point whose payload key equals value.
func (s *QdrantStore) DeleteByField(ctx context.Context, collection string, key string, value any) error {
	logger := contextutil.LoggerFromContext(ctx)

	filter := buildFilter(map[string]any{key: value})
	_, err := s.client.Delete(ctx, &qdrant.DeletePoints{
		CollectionName: collection,
		Wait:           qdrant.PtrOf(true),
		Points:         qdrant.NewPointsSelectorFilter(filter),
	})
	if err != nil {
		logger.ErrorContext(ctx, "failed to delete points", "collection", collection, "key", key, "error", err)
		return classifyError("delete points", err)
	}

	logger.InfoContext(ctx, "deleted points by field", "collection", collection, "key", key)
	return nil
}

// Count returns the exact number of points matching filter.
func (s *QdrantStore) Count(ctx context.Context, collection string, filter map[string]any) (int, error) {
	n, err := s.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: collection,
		Filter:         buildFilter(filter),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, classifyError("count points", err)
	}
	return int(n), nil
}

// Scroll pages through points without their vectors.
func (s *QdrantStore) Scroll(ctx context.Context, collection string, limit int, offset string) (ScrollPage, error) {
	if limit <= 0 {
		return ScrollPage{}, fmt.Errorf("limit must be greater than 0")
	}

	req := &qdrant.ScrollPoints{
		CollectionName: collection,
		Limit:          qdrant.PtrOf(uint32(limit)),
		WithPayload:    qdrant.NewWithPayload(true),
		WithVectors:    qdrant.NewWithVectors(false),
	}
	if offset != "" {
		req.Offset = scrollOffsetID(offset)
	}

	points, next, err := s.client.ScrollAndOffset(ctx, req)
	if err != nil {
		return ScrollPage{}, classifyError("scroll points", err)
	}

	page := ScrollPage{Points: make([]Point, 0, len(points))}
	for _, p := range points {
		page.Points = append(page.Points, Point{
			ID:   pointIDString(p.GetId()),
			Meta: convertPayloadToMap(p.GetPayload()),
		})
	}
	if next != nil {
		page.NextOffset = pointIDString(next)
	}
	return page, nil
}

// GetCollectionInfo returns information about a collection including point count.
// Failures are reported through the returned value.
func (s *QdrantStore) GetCollectionInfo(ctx context.Context, collection string) CollectionInfo {
	logger := contextutil.LoggerFromContext(ctx)

	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		classified := classifyError("get collection info", err)
		logger.WarnContext(ctx, "collection info unavailable", "collection", collection, "error", classified)
		status := "unavailable"
		if errors.Is(classified, service.ErrCollectionNotFound) {
			status = "missing"
		}
		return CollectionInfo{Name: collection, Available: false, Status: status, Error: classified.Error()}
	}

	params := paramsFromInfo(info)
	if params.dimension > 0 {
		s.remember(collection, params)
	}

	// Extract point count (PointsCount is a pointer to uint64)
	var pointsCount int
	if info.PointsCount != nil {
		pointsCount = int(*info.PointsCount)
	}

	// Extract status (Status is an enum, not a pointer)
	statusName := "unknown"
	if info.Status != 0 {
		statusName = info.Status.String()
	}

	return CollectionInfo{
		Name:        collection,
		Available:   true,
		Status:      statusName,
		VectorSize:  params.dimension,
		Distance:    params.distance,
		PointsCount: pointsCount,
	}
}

// lookupParams returns cached collection parameters, reading them from Qdrant on a miss.
func (s *QdrantStore) lookupParams(ctx context.Context, collection string) (collectionParams, error) {
	s.mu.RLock()
	params, ok := s.collections[collection]
	s.mu.RUnlock()
	if ok {
		return params, nil
	}
	return s.fetchParams(ctx, collection)
}

func (s *QdrantStore) fetchParams(ctx context.Context, collection string) (collectionParams, error) {
	info, err := s.client.GetCollectionInfo(ctx, collection)
	if err != nil {
		return collectionParams{}, classifyError("get collection info", err)
	}
	params := paramsFromInfo(info)
	if params.dimension == 0 {
		return collectionParams{}, fmt.Errorf("could not determine vector size of collection %s", collection)
	}
	s.remember(collection, params)
	return params, nil
}

func (s *QdrantStore) remember(collection string, params collectionParams) {
	s.mu.Lock()
	s.collections[collection] = params
	s.mu.Unlock()
}

func (s *QdrantStore) forget(collection string) {
	s.mu.Lock()
	delete(s.collections, collection)
	s.mu.Unlock()
}

func paramsFromInfo(info *qdrant.CollectionInfo) collectionParams {
	var params collectionParams
	if config := info.GetConfig(); config != nil && config.GetParams() != nil {
		if vectorsConfig := config.GetParams().GetVectorsConfig(); vectorsConfig != nil {
			if vp := vectorsConfig.GetParams(); vp != nil {
				params.dimension = int(vp.GetSize())
				params.distance = fromQdrantDistance(vp.GetDistance())
			}
		}
	}
	return params
}

func toQdrantDistance(d Distance) qdrant.Distance {
	switch d {
	case DistanceEuclid:
		return qdrant.Distance_Euclid
	case DistanceDot:
		return qdrant.Distance_Dot
	default:
		return qdrant.Distance_Cosine
	}
}

func fromQdrantDistance(d qdrant.Distance) Distance {
	switch d {
	case qdrant.Distance_Euclid:
		return DistanceEuclid
	case qdrant.Distance_Dot:
		return DistanceDot
	default:
		return DistanceCosine
	}
}

// classifyError maps gRPC failures onto the service error taxonomy.
func classifyError(op string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	// status.FromError looks through the client's QdrantError wrapper.
	if st, ok := status.FromError(err); ok {
		switch st.Code() {
		case codes.NotFound:
			return fmt.Errorf("failed to %s: %w: %s", op, service.ErrCollectionNotFound, st.Message())
		case codes.Unavailable, codes.DeadlineExceeded, codes.Canceled:
			return fmt.Errorf("failed to %s: %w: %s", op, service.ErrStoreUnavailable, st.Message())
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// buildFilter turns equality pairs into a Qdrant must-filter. Integers match as
// integers, booleans as booleans and everything else as keywords.
func buildFilter(filter map[string]any) *qdrant.Filter {
	if len(filter) == 0 {
		return nil
	}

	must := make([]*qdrant.Condition, 0, len(filter))
	for key, value := range filter {
		switch v := value.(type) {
		case bool:
			must = append(must, qdrant.NewMatchBool(key, v))
		case int:
			must = append(must, qdrant.NewMatchInt(key, int64(v)))
		case int32:
			must = append(must, qdrant.NewMatchInt(key, int64(v)))
		case int64:
			must = append(must, qdrant.NewMatchInt(key, v))
		case string:
			must = append(must, qdrant.NewMatchKeyword(key, v))
		default:
			must = append(must, qdrant.NewMatchKeyword(key, fmt.Sprint(v)))
		}
	}
	return &qdrant.Filter{Must: must}
}

// normalizePayload converts values qdrant.NewValue cannot encode.
func normalizePayload(meta map[string]any) map[string]any {
	out := make(map[string]any, len(meta))
	for k, v := range meta {
		switch val := v.(type) {
		case []string:
			list := make([]any, len(val))
			for i, s := range val {
				list[i] = s
			}
			out[k] = list
		case fmt.Stringer:
			out[k] = val.String()
		default:
			if rv := reflect.ValueOf(v); rv.IsValid() && rv.Kind() == reflect.String {
				out[k] = rv.String()
				continue
			}
			out[k] = v
		}
	}
	return out
}

func scrollOffsetID(offset string) *qdrant.PointId {
	if n, err := strconv.ParseUint(offset, 10, 64); err == nil {
		return qdrant.NewIDNum(n)
	}
	return qdrant.NewID(offset)
}

func pointIDString(id *qdrant.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

// convertPayloadToMap converts Qdrant payload to map[string]any.
func convertPayloadToMap(payload map[string]*qdrant.Value) map[string]any {
	result := make(map[string]any, len(payload))
	for k, v := range payload {
		if v == nil {
			continue
		}
		result[k] = convertValue(v)
	}
	return result
}

// convertValue converts a Qdrant Value to Go any type.
func convertValue(v *qdrant.Value) any {
	switch val := v.Kind.(type) {
	case *qdrant.Value_BoolValue:
		return val.BoolValue
	case *qdrant.Value_IntegerValue:
		return val.IntegerValue
	case *qdrant.Value_DoubleValue:
		return val.DoubleValue
	case *qdrant.Value_StringValue:
		return val.StringValue
	case *qdrant.Value_ListValue:
		list := make([]any, len(val.ListValue.Values))
		for i, item := range val.ListValue.Values {
			list[i] = convertValue(item)
		}
		return list
	case *qdrant.Value_StructValue:
		return convertPayloadToMap(val.StructValue.Fields)
	default:
		return nil
	}
}
