package storage

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"
	"time"
)

func setupIngestionRepo(t *testing.T) (*IngestionRepo, *sql.DB) {
	t.Helper()

	db, err := New(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})

	if err := Migrate(db); err != nil {
		t.Fatalf("Migrate() error = %v", err)
	}
	return NewIngestionRepo(db), db
}

func TestIngestionRepo_RecordAndGet(t *testing.T) {
	repo, _ := setupIngestionRepo(t)
	ctx := context.Background()

	ingestedAt := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := &IngestionRecord{
		Filename:        "report.pdf",
		FileType:        "application/pdf",
		Collection:      "documents",
		Status:          "partial",
		ChunksTotal:     4,
		ChunksSucceeded: 3,
		ChunksFailed:    1,
		TextLength:      2048,
		IndexVersion:    "abc123",
		IngestedAt:      ingestedAt,
		Errors: []IngestionError{
			{ChunkIndex: 2, Stage: "upsert", Message: "vector store unavailable"},
		},
	}

	if err := repo.Record(ctx, rec); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if rec.ID == "" {
		t.Fatal("Record() should assign an ID")
	}

	got, err := repo.GetByID(ctx, rec.ID)
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Filename != "report.pdf" || got.Status != "partial" {
		t.Errorf("GetByID() = %+v", got)
	}
	if got.ChunksSucceeded != 3 || got.ChunksFailed != 1 {
		t.Errorf("counts = %d/%d, want 3/1", got.ChunksSucceeded, got.ChunksFailed)
	}
	if !got.IngestedAt.Equal(ingestedAt) {
		t.Errorf("IngestedAt = %v, want %v", got.IngestedAt, ingestedAt)
	}
	if len(got.Errors) != 1 || got.Errors[0].ChunkIndex != 2 || got.Errors[0].Stage != "upsert" {
		t.Errorf("Errors = %+v", got.Errors)
	}
}

func TestIngestionRepo_GetByID_NotFound(t *testing.T) {
	repo, _ := setupIngestionRepo(t)

	_, err := repo.GetByID(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("GetByID() error = %v, want ErrNotFound", err)
	}
}

func TestIngestionRepo_ListRecent(t *testing.T) {
	repo, _ := setupIngestionRepo(t)
	ctx := context.Background()

	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"a.txt", "b.txt", "c.txt"} {
		rec := &IngestionRecord{
			Filename:    name,
			FileType:    "text/plain",
			Collection:  "documents",
			Status:      "success",
			ChunksTotal: 1, ChunksSucceeded: 1,
			IngestedAt: base.Add(time.Duration(i) * time.Hour),
		}
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatalf("Record(%s) error = %v", name, err)
		}
	}

	tests := []struct {
		name      string
		limit     int
		wantFirst string
		wantLen   int
	}{
		{name: "newest first", limit: 10, wantFirst: "c.txt", wantLen: 3},
		{name: "limit applied", limit: 2, wantFirst: "c.txt", wantLen: 2},
		{name: "non-positive limit uses default", limit: 0, wantFirst: "c.txt", wantLen: 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			records, err := repo.ListRecent(ctx, tt.limit)
			if err != nil {
				t.Fatalf("ListRecent() error = %v", err)
			}
			if len(records) != tt.wantLen {
				t.Fatalf("len = %d, want %d", len(records), tt.wantLen)
			}
			if records[0].Filename != tt.wantFirst {
				t.Errorf("first = %s, want %s", records[0].Filename, tt.wantFirst)
			}
		})
	}
}

func TestIngestionRepo_ListRecent_Empty(t *testing.T) {
	repo, _ := setupIngestionRepo(t)

	records, err := repo.ListRecent(context.Background(), 5)
	if err != nil {
		t.Fatalf("ListRecent() error = %v", err)
	}
	if records == nil || len(records) != 0 {
		t.Errorf("ListRecent() = %v, want empty non-nil slice", records)
	}
}

func TestIngestionRepo_DeleteByFilename(t *testing.T) {
	repo, db := setupIngestionRepo(t)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		rec := &IngestionRecord{
			Filename: "notes.md", FileType: "text/markdown", Collection: "documents",
			Status: "partial", ChunksTotal: 2, ChunksSucceeded: 1, ChunksFailed: 1,
			IngestedAt: time.Now(),
			Errors:     []IngestionError{{ChunkIndex: 1, Stage: "embed", Message: "degraded"}},
		}
		if err := repo.Record(ctx, rec); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	other := &IngestionRecord{Filename: "other.md", FileType: "text/markdown", Collection: "documents", Status: "success", IngestedAt: time.Now()}
	if err := repo.Record(ctx, other); err != nil {
		t.Fatalf("Record() error = %v", err)
	}

	n, err := repo.DeleteByFilename(ctx, "notes.md")
	if err != nil {
		t.Fatalf("DeleteByFilename() error = %v", err)
	}
	if n != 2 {
		t.Errorf("DeleteByFilename() = %d, want 2", n)
	}

	var orphanErrors int
	if err := db.QueryRow("SELECT COUNT(*) FROM ingestion_errors").Scan(&orphanErrors); err != nil {
		t.Fatalf("count errors: %v", err)
	}
	if orphanErrors != 0 {
		t.Errorf("ingestion_errors rows = %d, want 0", orphanErrors)
	}

	if _, err := repo.GetByID(ctx, other.ID); err != nil {
		t.Errorf("other document history should survive: %v", err)
	}
}
