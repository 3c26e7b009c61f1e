package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"docrag/internal/contextutil"
	"docrag/internal/service"
)

// APIStyle selects the wire format of the embeddings backend.
type APIStyle string

const (
	// APIStyleOpenAI posts a batch to /v1/embeddings.
	APIStyleOpenAI APIStyle = "openai"
	// APIStyleOllama posts one prompt at a time to /api/embeddings.
	APIStyleOllama APIStyle = "ollama"
)

// EmbeddingsClient is a client for an HTTP embeddings API.
// Every failure is a hard error: there is no partial salvage and no placeholder vectors.
type EmbeddingsClient struct {
	BaseURL      string
	APIKey       string
	Model        string
	Style        APIStyle
	ExpectedSize int // Expected vector size for validation
	client       *http.Client
	breaker      *gobreaker.CircuitBreaker
	limiter      *rate.Limiter
}

// EmbeddingsOption customises an EmbeddingsClient.
type EmbeddingsOption func(*EmbeddingsClient)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) EmbeddingsOption {
	return func(ec *EmbeddingsClient) {
		ec.client = c
	}
}

// WithRateLimit caps outgoing requests per second. Zero or negative disables limiting.
func WithRateLimit(rps float64) EmbeddingsOption {
	return func(ec *EmbeddingsClient) {
		if rps <= 0 {
			ec.limiter = nil
			return
		}
		burst := int(rps)
		if burst < 1 {
			burst = 1
		}
		ec.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// NewEmbeddingsClient creates a new embeddings client.
// expectedSize is the deployment's vector dimension; every returned vector is validated
// against it.
func NewEmbeddingsClient(baseURL, apiKey, model string, style APIStyle, expectedSize int, opts ...EmbeddingsOption) *EmbeddingsClient {
	c := &EmbeddingsClient{
		BaseURL:      strings.TrimRight(baseURL, "/"),
		APIKey:       apiKey,
		Model:        model,
		Style:        style,
		ExpectedSize: expectedSize,
		client:       newHTTPClient(),
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "EmbeddingsAPI",
		MaxRequests: 3,
		Interval:    10 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 5 && failureRatio >= 0.6
		},
		// Only transport and backend failures should open the circuit.
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, service.ErrDimensionMismatch) || errors.Is(err, context.Canceled)
		},
	})
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			MaxIdleConns:        20,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// EmbeddingsRequest represents the request payload for the OpenAI-style embeddings API.
type EmbeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

// EmbeddingData represents a single embedding in the response.
type EmbeddingData struct {
	Embedding []float64 `json:"embedding"`
}

// EmbeddingsResponse represents the response from the OpenAI-style embeddings API.
type EmbeddingsResponse struct {
	Data []EmbeddingData `json:"data"`
}

// OllamaEmbeddingRequest is the Ollama /api/embeddings payload.
type OllamaEmbeddingRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
}

// OllamaEmbeddingResponse is the Ollama /api/embeddings response.
type OllamaEmbeddingResponse struct {
	Embedding []float64 `json:"embedding"`
}

// Dimension returns the vector length this client enforces.
func (c *EmbeddingsClient) Dimension() int {
	return c.ExpectedSize
}

// Embed returns the embedding of a single text.
func (c *EmbeddingsClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedTexts(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds texts and reports every item as ok; any failure fails the batch.
func (c *EmbeddingsClient) EmbedBatch(ctx context.Context, texts []string) ([]EmbedResult, error) {
	vectors, err := c.EmbedTexts(ctx, texts)
	if err != nil {
		return nil, err
	}
	results := make([]EmbedResult, len(vectors))
	for i, vec := range vectors {
		results[i] = EmbedResult{Vector: vec, Status: EmbedStatusOK}
	}
	return results, nil
}

// EmbedTexts generates embeddings for the given texts.
// Returns a slice of float32 vectors, one per input text.
// Validates that all returned vectors match the expected size.
func (c *EmbeddingsClient) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	logger := contextutil.LoggerFromContext(ctx)

	if len(texts) == 0 {
		return nil, &service.ValidationError{Field: "texts", Message: "empty input array"}
	}

	var (
		raw [][]float64
		err error
	)
	switch c.Style {
	case APIStyleOllama:
		raw = make([][]float64, 0, len(texts))
		for _, text := range texts {
			var vec []float64
			vec, err = c.embedOllama(ctx, text)
			if err != nil {
				break
			}
			raw = append(raw, vec)
		}
	default:
		raw, err = c.embedOpenAI(ctx, texts)
	}
	if err != nil {
		logger.ErrorContext(ctx, "embedding request failed", "model", c.Model, "style", c.Style, "count", len(texts), "error", err)
		return nil, err
	}

	// Convert []float64 to []float32 and validate size
	result := make([][]float32, len(raw))
	for i, data := range raw {
		if len(data) != c.ExpectedSize {
			return nil, fmt.Errorf("%w: embedding %d has size %d, expected %d", service.ErrDimensionMismatch, i, len(data), c.ExpectedSize)
		}
		vec := make([]float32, len(data))
		for j, v := range data {
			vec[j] = float32(v)
		}
		result[i] = vec
	}

	return result, nil
}

func (c *EmbeddingsClient) embedOpenAI(ctx context.Context, texts []string) ([][]float64, error) {
	var embeddingsResp EmbeddingsResponse
	err := c.call(ctx, "/v1/embeddings", EmbeddingsRequest{Model: c.Model, Input: texts}, &embeddingsResp)
	if err != nil {
		return nil, err
	}

	if len(embeddingsResp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", service.ErrEmbeddingFailure, len(texts), len(embeddingsResp.Data))
	}

	out := make([][]float64, len(embeddingsResp.Data))
	for i, data := range embeddingsResp.Data {
		if len(data.Embedding) == 0 {
			return nil, fmt.Errorf("%w: embedding %d is empty", service.ErrEmbeddingFailure, i)
		}
		out[i] = data.Embedding
	}
	return out, nil
}

func (c *EmbeddingsClient) embedOllama(ctx context.Context, text string) ([]float64, error) {
	var ollamaResp OllamaEmbeddingResponse
	err := c.call(ctx, "/api/embeddings", OllamaEmbeddingRequest{Model: c.Model, Prompt: text}, &ollamaResp)
	if err != nil {
		return nil, err
	}
	if len(ollamaResp.Embedding) == 0 {
		return nil, fmt.Errorf("%w: backend returned an empty embedding", service.ErrEmbeddingFailure)
	}
	return ollamaResp.Embedding, nil
}

// call posts payload to path through the rate limiter and circuit breaker and decodes
// the JSON answer into out.
func (c *EmbeddingsClient) call(ctx context.Context, path string, payload, out any) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("%w: rate limiter: %w", service.ErrEmbeddingFailure, err)
		}
	}

	_, err := c.breaker.Execute(func() (interface{}, error) {
		return nil, c.post(ctx, path, payload, out)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("%w: %w", service.ErrEmbeddingFailure, err)
	}
	return err
}

func (c *EmbeddingsClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewBuffer(body))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", service.ErrEmbeddingFailure, ctxErr)
		}
		return fmt.Errorf("%w: failed to send request: %w", service.ErrEmbeddingFailure, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: bad status %d: %s", service.ErrEmbeddingFailure, resp.StatusCode, string(raw))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %w", service.ErrEmbeddingFailure, err)
	}
	return nil
}
