package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/mock/gomock"

	"docrag/internal/rag"
	rag_mocks "docrag/internal/rag/mocks"
	"docrag/internal/service"
)

func TestSearchHandler_ServeHTTP(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		setup      func(m *rag_mocks.MockEngine)
		wantStatus int
		wantCount  int
	}{
		{
			name: "results",
			body: `{"query":"vector databases","limit":3,"score_threshold":0.2,"filename":"a.txt"}`,
			setup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().Query(gomock.Any(), gomock.Any()).
					DoAndReturn(func(_ context.Context, req rag.QueryRequest) (rag.QueryResponse, error) {
						if req.Text != "vector databases" || req.Limit != 3 || req.Filename != "a.txt" {
							t.Errorf("request = %+v", req)
						}
						if req.ScoreThreshold == nil || *req.ScoreThreshold != 0.2 {
							t.Errorf("ScoreThreshold = %v", req.ScoreThreshold)
						}
						return rag.QueryResponse{
							Query:        req.Text,
							Results:      []rag.Result{{PointID: "p1", Score: 0.9}, {PointID: "p2", Score: 0.5}},
							TotalResults: 2,
						}, nil
					})
			},
			wantStatus: http.StatusOK,
			wantCount:  2,
		},
		{
			name: "no results is not an error",
			body: `{"query":"nothing matches"}`,
			setup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().Query(gomock.Any(), gomock.Any()).Return(rag.QueryResponse{Query: "nothing matches", Results: []rag.Result{}}, nil)
			},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid JSON",
			body:       `{"query":`,
			setup:      func(*rag_mocks.MockEngine) {},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "empty query",
			body: `{"query":""}`,
			setup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().Query(gomock.Any(), gomock.Any()).
					Return(rag.QueryResponse{}, &service.ValidationError{Field: "query", Message: "query is required"})
			},
			wantStatus: http.StatusBadRequest,
		},
		{
			name: "embedding failure",
			body: `{"query":"q"}`,
			setup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().Query(gomock.Any(), gomock.Any()).Return(rag.QueryResponse{}, service.ErrEmbeddingFailure)
			},
			wantStatus: http.StatusBadGateway,
		},
		{
			name: "store unavailable",
			body: `{"query":"q"}`,
			setup: func(m *rag_mocks.MockEngine) {
				m.EXPECT().Query(gomock.Any(), gomock.Any()).Return(rag.QueryResponse{}, service.ErrStoreUnavailable)
			},
			wantStatus: http.StatusServiceUnavailable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			engine := rag_mocks.NewMockEngine(ctrl)
			tt.setup(engine)

			req := httptest.NewRequest(http.MethodPost, "/api/search", bytes.NewBufferString(tt.body))
			req.Header.Set("Content-Type", "application/json")
			w := httptest.NewRecorder()

			NewSearchHandler(engine).ServeHTTP(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("ServeHTTP() status = %d, want %d", w.Code, tt.wantStatus)
			}
			if tt.wantStatus != http.StatusOK {
				return
			}

			var resp rag.QueryResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if len(resp.Results) != tt.wantCount {
				t.Errorf("len(Results) = %d, want %d", len(resp.Results), tt.wantCount)
			}
		})
	}
}
