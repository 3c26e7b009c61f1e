package llm

import (
	"context"
	"errors"
	"fmt"
	"hash/fnv"
	"math"
	"os"
	"regexp"
	"strings"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
	"gopkg.in/yaml.v3"

	"docrag/internal/contextutil"
	"docrag/internal/service"
)

// ErrNoTokens is recorded on degraded results for texts without indexable words.
var ErrNoTokens = errors.New("text has no indexable tokens")

// LocalEmbedder is an in-process feature-hashing TF-IDF vectoriser.
//
// Terms are hashed into a fixed number of buckets, so the dimension is set by
// configuration rather than by a vocabulary. An optional weight file maps terms to IDF
// weights; terms missing from it get the file's default weight (1 without a file).
//
// The model is loaded lazily on first use. Concurrent first callers share one load and a
// failed load is retried by the next caller.
type LocalEmbedder struct {
	modelPath string
	dimension int

	model atomic.Pointer[hashingModel]
	group singleflight.Group
	loads atomic.Int32
}

// NewLocalEmbedder creates a local embedder producing vectors of length dimension.
// modelPath may be empty.
func NewLocalEmbedder(modelPath string, dimension int) *LocalEmbedder {
	return &LocalEmbedder{modelPath: modelPath, dimension: dimension}
}

// Dimension returns the vector length.
func (e *LocalEmbedder) Dimension() int {
	return e.dimension
}

// LoadCount reports how many model loads have been started.
func (e *LocalEmbedder) LoadCount() int {
	return int(e.loads.Load())
}

// Embed returns the vector for text. Texts that would degrade fail instead.
func (e *LocalEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	results, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if results[0].Status != EmbedStatusOK {
		return nil, fmt.Errorf("%w: %w", service.ErrEmbeddingFailure, results[0].Err)
	}
	return results[0].Vector, nil
}

// EmbedBatch embeds each text. Items without indexable tokens degrade to zero vectors.
func (e *LocalEmbedder) EmbedBatch(ctx context.Context, texts []string) ([]EmbedResult, error) {
	logger := contextutil.LoggerFromContext(ctx)

	model, err := e.ensureModel(ctx)
	if err != nil {
		return nil, err
	}

	results := make([]EmbedResult, len(texts))
	degraded := 0
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		vec, ok := model.embed(text)
		if !ok {
			degraded++
			results[i] = EmbedResult{Vector: vec, Status: EmbedStatusDegraded, Err: ErrNoTokens}
			continue
		}
		results[i] = EmbedResult{Vector: vec, Status: EmbedStatusOK}
	}

	if degraded > 0 {
		logger.WarnContext(ctx, "degraded embeddings", "count", degraded, "total", len(texts))
	}
	return results, nil
}

func (e *LocalEmbedder) ensureModel(ctx context.Context) (*hashingModel, error) {
	if m := e.model.Load(); m != nil {
		return m, nil
	}

	ch := e.group.DoChan("model", func() (any, error) {
		if m := e.model.Load(); m != nil {
			return m, nil
		}
		e.loads.Add(1)
		m, err := loadHashingModel(e.modelPath, e.dimension)
		if err != nil {
			return nil, err
		}
		e.model.Store(m)
		return m, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, fmt.Errorf("%w: failed to load local model: %w", service.ErrEmbeddingFailure, res.Err)
		}
		return res.Val.(*hashingModel), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

type hashingModel struct {
	dimension    int
	idf          map[string]float64
	defaultIDF   float64
	tokenPattern *regexp.Regexp
	stopwords    map[string]struct{}
}

// weightFile is the on-disk IDF table. JSON files parse as well since JSON is YAML.
type weightFile struct {
	DefaultIDF float64            `yaml:"default_idf"`
	IDF        map[string]float64 `yaml:"idf"`
}

func loadHashingModel(path string, dimension int) (*hashingModel, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("dimension must be greater than 0, got %d", dimension)
	}

	m := &hashingModel{
		dimension:    dimension,
		idf:          map[string]float64{},
		defaultIDF:   1,
		tokenPattern: regexp.MustCompile(`\p{L}+(?:['’]\p{L}+)*|\p{N}+`),
		stopwords:    defaultStopwords(),
	}
	if path == "" {
		return m, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read weight file: %w", err)
	}
	var wf weightFile
	if err := yaml.Unmarshal(data, &wf); err != nil {
		return nil, fmt.Errorf("failed to parse weight file %s: %w", path, err)
	}
	if wf.DefaultIDF > 0 {
		m.defaultIDF = wf.DefaultIDF
	}
	for term, w := range wf.IDF {
		m.idf[strings.ToLower(term)] = w
	}
	return m, nil
}

// embed returns an L2-normalised hashed TF-IDF vector and false when text has no tokens.
func (m *hashingModel) embed(text string) ([]float32, bool) {
	vec := make([]float64, m.dimension)
	tokens := m.tokenize(text)
	if len(tokens) == 0 {
		return make([]float32, m.dimension), false
	}

	tf := make(map[string]int, len(tokens))
	for _, tok := range tokens {
		tf[tok]++
	}
	for term, count := range tf {
		idx, sign := m.bucket(term)
		weight, ok := m.idf[term]
		if !ok {
			weight = m.defaultIDF
		}
		vec[idx] += sign * float64(count) / float64(len(tokens)) * weight
	}

	norm := 0.0
	for _, v := range vec {
		norm += v * v
	}
	norm = math.Sqrt(norm)

	out := make([]float32, m.dimension)
	if norm == 0 {
		// Hash collisions with opposite signs cancelled out.
		return out, false
	}
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out, true
}

// bucket hashes term to an index and a sign so collisions tend to cancel rather than pile up.
func (m *hashingModel) bucket(term string) (int, float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(term))
	sum := h.Sum64()
	sign := 1.0
	if sum>>63 == 1 {
		sign = -1.0
	}
	return int(sum % uint64(m.dimension)), sign
}

func (m *hashingModel) tokenize(text string) []string {
	raw := m.tokenPattern.FindAllString(strings.ToLower(text), -1)
	out := raw[:0]
	for _, t := range raw {
		if _, isStop := m.stopwords[t]; isStop {
			continue
		}
		out = append(out, t)
	}
	return out
}

func defaultStopwords() map[string]struct{} {
	words := []string{
		"a", "an", "the", "and", "or", "but", "if", "then", "else", "for", "to", "of", "in", "on", "at", "by", "with", "as", "is", "are", "was", "were", "be", "been", "being", "it", "this", "that", "these", "those", "from", "up", "down", "over", "under", "again", "further", "than", "so", "such", "into", "about", "between", "through", "during", "before", "after", "above", "below", "out", "off", "own", "same", "too", "very", "can", "will", "just", "don", "should", "now",
	}
	m := make(map[string]struct{}, len(words))
	for _, w := range words {
		m[w] = struct{}{}
	}
	return m
}
