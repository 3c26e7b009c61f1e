package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/mock/gomock"

	vectorstore_mocks "docrag/internal/vectorstore/mocks"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) PingContext(ctx context.Context) error { return f(ctx) }

func TestHealthHandler_ServeHTTP(t *testing.T) {
	dbOK := pingerFunc(func(context.Context) error { return nil })
	dbDown := pingerFunc(func(context.Context) error { return errors.New("database is locked") })

	tests := []struct {
		name       string
		exists     bool
		existsErr  error
		database   Pinger
		wantStatus int
		wantHealth string
		wantChecks map[string]string
	}{
		{
			name:       "healthy",
			exists:     true,
			database:   dbOK,
			wantStatus: http.StatusOK,
			wantHealth: "healthy",
			wantChecks: map[string]string{"vector_store": "ok", "database": "ok"},
		},
		{
			name:       "collection not created yet",
			exists:     false,
			database:   dbOK,
			wantStatus: http.StatusOK,
			wantHealth: "degraded",
			wantChecks: map[string]string{"vector_store": "no_collection", "database": "ok"},
		},
		{
			name:       "database down",
			exists:     true,
			database:   dbDown,
			wantStatus: http.StatusOK,
			wantHealth: "degraded",
			wantChecks: map[string]string{"vector_store": "ok", "database": "error"},
		},
		{
			name:       "vector store down",
			existsErr:  errors.New("connection refused"),
			wantStatus: http.StatusServiceUnavailable,
			wantHealth: "unhealthy",
			wantChecks: map[string]string{"vector_store": "error"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			store := vectorstore_mocks.NewMockVectorStore(ctrl)
			store.EXPECT().CollectionExists(gomock.Any(), "docs").Return(tt.exists, tt.existsErr)

			handler := NewHealthHandler(store, tt.database, "docs")
			w := httptest.NewRecorder()
			handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))

			if w.Code != tt.wantStatus {
				t.Fatalf("ServeHTTP() status = %d, want %d", w.Code, tt.wantStatus)
			}
			var resp HealthResponse
			if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if resp.Status != tt.wantHealth {
				t.Errorf("Status = %q, want %q", resp.Status, tt.wantHealth)
			}
			if len(resp.Checks) != len(tt.wantChecks) {
				t.Errorf("Checks = %v, want %v", resp.Checks, tt.wantChecks)
			}
			for k, v := range tt.wantChecks {
				if resp.Checks[k] != v {
					t.Errorf("Checks[%q] = %q, want %q", k, resp.Checks[k], v)
				}
			}
			if tt.wantHealth != "healthy" && len(resp.Issues) == 0 {
				t.Error("Issues should be reported")
			}
		})
	}
}

func TestHealthHandler_MethodNotAllowed(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := vectorstore_mocks.NewMockVectorStore(ctrl)

	w := httptest.NewRecorder()
	NewHealthHandler(store, nil, "docs").ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/health", nil))

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("ServeHTTP() status = %d, want %d", w.Code, http.StatusMethodNotAllowed)
	}
}
