package llm

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"docrag/internal/service"
)

func TestNewEmbeddingsClient(t *testing.T) {
	client := NewEmbeddingsClient("http://localhost:8080/", "test-key", "test-model", APIStyleOpenAI, 768)
	if client == nil {
		t.Fatal("NewEmbeddingsClient() returned nil")
	}
	if client.BaseURL != "http://localhost:8080" {
		t.Errorf("NewEmbeddingsClient() BaseURL = %v, want http://localhost:8080", client.BaseURL)
	}
	if client.Dimension() != 768 {
		t.Errorf("NewEmbeddingsClient() Dimension = %v, want 768", client.Dimension())
	}
	if client.limiter != nil {
		t.Error("limiter should be nil without WithRateLimit")
	}
}

func TestEmbeddingsClient_EmbedTexts(t *testing.T) {
	tests := []struct {
		name         string
		style        APIStyle
		texts        []string
		expectedSize int
		serverResp   func(t *testing.T) http.HandlerFunc
		wantErr      error
		wantCount    int
	}{
		{
			name:         "successful openai embedding",
			style:        APIStyleOpenAI,
			texts:        []string{"Hello", "World"},
			expectedSize: 8,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if r.Method != http.MethodPost {
						t.Errorf("expected POST, got %s", r.Method)
					}
					if r.URL.Path != "/v1/embeddings" {
						t.Errorf("expected /v1/embeddings, got %s", r.URL.Path)
					}
					if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
						t.Errorf("Authorization = %q", got)
					}
					var req EmbeddingsRequest
					_ = json.NewDecoder(r.Body).Decode(&req)
					if req.Model != "test-model" || len(req.Input) != 2 {
						t.Errorf("unexpected request %+v", req)
					}
					resp := EmbeddingsResponse{Data: []EmbeddingData{
						{Embedding: make([]float64, 8)},
						{Embedding: make([]float64, 8)},
					}}
					w.Header().Set("Content-Type", "application/json")
					_ = json.NewEncoder(w).Encode(resp)
				}
			},
			wantCount: 2,
		},
		{
			name:         "successful ollama embedding",
			style:        APIStyleOllama,
			texts:        []string{"Hello", "World", "Again"},
			expectedSize: 4,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					if r.URL.Path != "/api/embeddings" {
						t.Errorf("expected /api/embeddings, got %s", r.URL.Path)
					}
					var req OllamaEmbeddingRequest
					_ = json.NewDecoder(r.Body).Decode(&req)
					if req.Prompt == "" {
						t.Error("prompt should not be empty")
					}
					_ = json.NewEncoder(w).Encode(OllamaEmbeddingResponse{Embedding: []float64{0.1, 0.2, 0.3, 0.4}})
				}
			},
			wantCount: 3,
		},
		{
			name:         "empty input",
			style:        APIStyleOpenAI,
			texts:        []string{},
			expectedSize: 8,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					t.Error("server should not be called")
				}
			},
			wantErr: service.ErrInvalidInput,
		},
		{
			name:         "wrong embedding count",
			style:        APIStyleOpenAI,
			texts:        []string{"Hello", "World"},
			expectedSize: 8,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					_ = json.NewEncoder(w).Encode(EmbeddingsResponse{Data: []EmbeddingData{{Embedding: make([]float64, 8)}}})
				}
			},
			wantErr: service.ErrEmbeddingFailure,
		},
		{
			name:         "wrong vector size",
			style:        APIStyleOpenAI,
			texts:        []string{"Hello"},
			expectedSize: 768,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					_ = json.NewEncoder(w).Encode(EmbeddingsResponse{Data: []EmbeddingData{{Embedding: make([]float64, 512)}}})
				}
			},
			wantErr: service.ErrDimensionMismatch,
		},
		{
			name:         "server error",
			style:        APIStyleOpenAI,
			texts:        []string{"Hello"},
			expectedSize: 8,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					w.WriteHeader(http.StatusInternalServerError)
					_, _ = w.Write([]byte("internal server error"))
				}
			},
			wantErr: service.ErrEmbeddingFailure,
		},
		{
			name:         "malformed JSON",
			style:        APIStyleOpenAI,
			texts:        []string{"Hello"},
			expectedSize: 8,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(`{"data": [`))
				}
			},
			wantErr: service.ErrEmbeddingFailure,
		},
		{
			name:         "non-numeric embedding",
			style:        APIStyleOllama,
			texts:        []string{"Hello"},
			expectedSize: 2,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(`{"embedding": ["a", "b"]}`))
				}
			},
			wantErr: service.ErrEmbeddingFailure,
		},
		{
			name:         "empty embedding array",
			style:        APIStyleOllama,
			texts:        []string{"Hello"},
			expectedSize: 2,
			serverResp: func(t *testing.T) http.HandlerFunc {
				return func(w http.ResponseWriter, r *http.Request) {
					_, _ = w.Write([]byte(`{"embedding": []}`))
				}
			},
			wantErr: service.ErrEmbeddingFailure,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(tt.serverResp(t))
			defer server.Close()

			client := NewEmbeddingsClient(server.URL, "test-key", "test-model", tt.style, tt.expectedSize)
			embeddings, err := client.EmbedTexts(context.Background(), tt.texts)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("EmbedTexts() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("EmbedTexts() unexpected error: %v", err)
			}
			if len(embeddings) != tt.wantCount {
				t.Errorf("EmbedTexts() returned %d embeddings, want %d", len(embeddings), tt.wantCount)
			}
			for i, vec := range embeddings {
				if len(vec) != tt.expectedSize {
					t.Errorf("embedding %d has size %d, want %d", i, len(vec), tt.expectedSize)
				}
			}
		})
	}
}

func TestEmbeddingsClient_UnreachableBackend(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewEmbeddingsClient(url, "", "m", APIStyleOpenAI, 4)
	_, err := client.Embed(context.Background(), "hello")
	if !errors.Is(err, service.ErrEmbeddingFailure) {
		t.Errorf("Embed() error = %v, want ErrEmbeddingFailure", err)
	}
}

func TestEmbeddingsClient_EmbedBatchMarksOK(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(EmbeddingsResponse{Data: []EmbeddingData{
			{Embedding: []float64{1, 0}},
			{Embedding: []float64{0, 1}},
		}})
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "", "m", APIStyleOpenAI, 2)
	results, err := client.EmbedBatch(context.Background(), []string{"a", "b"})
	if err != nil {
		t.Fatalf("EmbedBatch() error = %v", err)
	}
	for i, r := range results {
		if r.Status != EmbedStatusOK || r.Err != nil {
			t.Errorf("result %d = %+v, want ok", i, r)
		}
	}
	if results[1].Vector[1] != 1 {
		t.Errorf("results out of order: %+v", results)
	}
}

func TestEmbeddingsClient_CircuitOpensAfterFailures(t *testing.T) {
	var calls atomic.Int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "", "m", APIStyleOpenAI, 2)
	for i := 0; i < 5; i++ {
		_, _ = client.Embed(context.Background(), "x")
	}
	before := calls.Load()

	_, err := client.Embed(context.Background(), "x")
	if !errors.Is(err, service.ErrEmbeddingFailure) {
		t.Errorf("Embed() error = %v, want ErrEmbeddingFailure", err)
	}
	if calls.Load() != before {
		t.Error("open circuit should not reach the backend")
	}
}

func TestEmbeddingsClient_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewEmbeddingsClient(server.URL, "", "m", APIStyleOpenAI, 2)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Embed(ctx, "x")
	if !errors.Is(err, service.ErrEmbeddingFailure) || !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Embed() error = %v, want embedding failure wrapping deadline", err)
	}
}

func TestWithRateLimit(t *testing.T) {
	client := NewEmbeddingsClient("http://localhost", "", "m", APIStyleOpenAI, 2, WithRateLimit(0.5))
	if client.limiter == nil {
		t.Fatal("limiter should be configured")
	}
	if client.limiter.Burst() != 1 {
		t.Errorf("burst = %d, want 1", client.limiter.Burst())
	}
}
