package indexer

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"go.uber.org/mock/gomock"

	"docrag/internal/extract"
	"docrag/internal/llm"
	llm_mocks "docrag/internal/llm/mocks"
	"docrag/internal/service"
	"docrag/internal/storage"
	storage_mocks "docrag/internal/storage/mocks"
	"docrag/internal/vectorstore"
	vectorstore_mocks "docrag/internal/vectorstore/mocks"
)

const testDim = 4

var fixedNow = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

type pipelineMocks struct {
	embedder   *llm_mocks.MockEmbedder
	store      *vectorstore_mocks.MockVectorStore
	ingestions *storage_mocks.MockIngestionStore
}

func newTestPipeline(t *testing.T, opts Options) (*Pipeline, pipelineMocks) {
	t.Helper()
	ctrl := gomock.NewController(t)

	m := pipelineMocks{
		embedder:   llm_mocks.NewMockEmbedder(ctrl),
		store:      vectorstore_mocks.NewMockVectorStore(ctrl),
		ingestions: storage_mocks.NewMockIngestionStore(ctrl),
	}
	m.embedder.EXPECT().Dimension().Return(testDim).AnyTimes()

	p := NewPipeline(extract.NewRegistry(), NewParagraphChunker(100, 0), m.embedder, m.store, m.ingestions, "docs", opts)
	p.now = func() time.Time { return fixedNow }
	return p, m
}

// threeParagraphs produces three chunks with a 100-rune paragraph chunker.
func threeParagraphs() []byte {
	return []byte(strings.Repeat("a", 80) + "\n\n" + strings.Repeat("b", 80) + "\n\n" + strings.Repeat("c", 80))
}

func okResults(n int) []llm.EmbedResult {
	results := make([]llm.EmbedResult, n)
	for i := range results {
		results[i] = llm.EmbedResult{Vector: []float32{float32(i + 1), 0, 0, 0}, Status: llm.EmbedStatusOK}
	}
	return results
}

func TestNewPipeline(t *testing.T) {
	p, _ := newTestPipeline(t, Options{})

	if p.Collection() != "docs" {
		t.Errorf("Collection() = %s, want docs", p.Collection())
	}
	if p.opts.Distance != vectorstore.DistanceCosine {
		t.Errorf("default distance = %s, want Cosine", p.opts.Distance)
	}
}

func TestPipeline_Ingest_Success(t *testing.T) {
	p, m := newTestPipeline(t, Options{IndexVersion: "v-test"})
	ctx := context.Background()

	var stored []vectorstore.Point
	gomock.InOrder(
		m.store.EXPECT().EnsureCollection(gomock.Any(), "docs", testDim, vectorstore.DistanceCosine).Return(nil),
		m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Len(3)).Return(okResults(3), nil),
	)
	m.store.EXPECT().Upsert(gomock.Any(), "docs", gomock.Len(1)).
		DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
			stored = append(stored, points...)
			return nil
		}).Times(3)
	m.ingestions.EXPECT().Record(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, rec *storage.IngestionRecord) error {
			if rec.Status != "success" || rec.ChunksSucceeded != 3 || rec.Collection != "docs" {
				t.Errorf("Record() got %+v", rec)
			}
			return nil
		})

	report, err := p.Ingest(ctx, Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.Status != StatusSuccess || report.Err() != nil {
		t.Errorf("Status = %s, Err() = %v", report.Status, report.Err())
	}
	if report.ChunksTotal != 3 || report.ChunksSucceeded != 3 || report.ChunksFailed != 0 {
		t.Errorf("report counts = %+v", report)
	}
	if report.TextLength != 244 {
		t.Errorf("TextLength = %d, want 244", report.TextLength)
	}

	if len(stored) != 3 {
		t.Fatalf("stored %d points, want 3", len(stored))
	}
	for i, pt := range stored {
		key := ChunkKey(fixedNow, "notes.txt", i)
		if pt.ID != PointID(key) {
			t.Errorf("point[%d].ID = %s, want %s", i, pt.ID, PointID(key))
		}
		if pt.Meta[vectorstore.FieldChunkKey] != key {
			t.Errorf("point[%d] chunk_key = %v", i, pt.Meta[vectorstore.FieldChunkKey])
		}
		if pt.Meta[vectorstore.FieldChunkIndex] != i || pt.Meta[vectorstore.FieldTotalChunks] != 3 {
			t.Errorf("point[%d] index meta = %v/%v", i, pt.Meta[vectorstore.FieldChunkIndex], pt.Meta[vectorstore.FieldTotalChunks])
		}
		if pt.Meta[vectorstore.FieldFileType] != "text/plain" || pt.Meta[vectorstore.FieldIndexVersion] != "v-test" {
			t.Errorf("point[%d] meta = %v", i, pt.Meta)
		}
		if pt.Meta[vectorstore.FieldEmbeddingStatus] != "ok" {
			t.Errorf("point[%d] embedding_status = %v", i, pt.Meta[vectorstore.FieldEmbeddingStatus])
		}
	}
}

func TestPipeline_Ingest_PartialFailure(t *testing.T) {
	p, m := newTestPipeline(t, Options{})

	m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(okResults(3), nil)
	m.store.EXPECT().EnsureCollection(gomock.Any(), "docs", testDim, gomock.Any()).Return(nil)

	calls := 0
	m.store.EXPECT().Upsert(gomock.Any(), "docs", gomock.Any()).
		DoAndReturn(func(context.Context, string, []vectorstore.Point) error {
			calls++
			if calls == 2 {
				return service.ErrStoreUnavailable
			}
			return nil
		}).Times(3)
	m.ingestions.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	report, err := p.Ingest(context.Background(), Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
	if err != nil {
		t.Fatalf("Ingest() error = %v, want nil for partial success", err)
	}
	if report.Status != StatusPartial {
		t.Errorf("Status = %s, want partial", report.Status)
	}
	if report.ChunksSucceeded != 2 || report.ChunksFailed != 1 {
		t.Errorf("succeeded/failed = %d/%d, want 2/1", report.ChunksSucceeded, report.ChunksFailed)
	}
	if len(report.Errors) != 1 || report.Errors[0].ChunkIndex != 1 || report.Errors[0].Stage != StageUpsert {
		t.Errorf("Errors = %+v", report.Errors)
	}
	if !errors.Is(report.Err(), service.ErrPartialIngestion) {
		t.Errorf("report.Err() = %v, want ErrPartialIngestion", report.Err())
	}
}

func TestPipeline_Ingest_AllChunksFail(t *testing.T) {
	p, m := newTestPipeline(t, Options{})

	m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(okResults(3), nil)
	m.store.EXPECT().EnsureCollection(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.store.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(service.ErrStoreUnavailable).Times(3)
	m.ingestions.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	report, err := p.Ingest(context.Background(), Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
	if !errors.Is(err, service.ErrIngestionFailed) {
		t.Fatalf("Ingest() error = %v, want ErrIngestionFailed", err)
	}
	if report == nil || report.Status != StatusFailed || report.ChunksFailed != 3 {
		t.Errorf("report = %+v", report)
	}
}

func TestPipeline_Ingest_Degraded(t *testing.T) {
	degraded := func() []llm.EmbedResult {
		results := okResults(3)
		results[2] = llm.EmbedResult{Vector: make([]float32, testDim), Status: llm.EmbedStatusDegraded, Err: llm.ErrNoTokens}
		return results
	}

	t.Run("counted as failed by default", func(t *testing.T) {
		p, m := newTestPipeline(t, Options{})

		m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(degraded(), nil)
		m.store.EXPECT().EnsureCollection(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		m.store.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)
		m.ingestions.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

		report, err := p.Ingest(context.Background(), Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if report.ChunksDegraded != 1 || report.ChunksFailed != 1 || report.ChunksSucceeded != 2 {
			t.Errorf("report = %+v", report)
		}
		if report.Errors[0].Stage != StageEmbed || report.Errors[0].ChunkIndex != 2 {
			t.Errorf("Errors = %+v", report.Errors)
		}
	})

	t.Run("stored and flagged when enabled", func(t *testing.T) {
		p, m := newTestPipeline(t, Options{IngestDegraded: true})

		var statuses []any
		m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(degraded(), nil)
		m.store.EXPECT().EnsureCollection(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
		m.store.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).
			DoAndReturn(func(_ context.Context, _ string, points []vectorstore.Point) error {
				statuses = append(statuses, points[0].Meta[vectorstore.FieldEmbeddingStatus])
				return nil
			}).Times(3)
		m.ingestions.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

		report, err := p.Ingest(context.Background(), Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
		if err != nil {
			t.Fatalf("Ingest() error = %v", err)
		}
		if report.Status != StatusSuccess || report.ChunksDegraded != 1 {
			t.Errorf("report = %+v", report)
		}
		if statuses[2] != "degraded" {
			t.Errorf("embedding_status = %v, want degraded", statuses[2])
		}
	})
}

func TestPipeline_Ingest_Rejected(t *testing.T) {
	tests := []struct {
		name    string
		doc     Document
		wantErr error
	}{
		{name: "missing filename", doc: Document{Filename: " ", MIMEType: "text/plain", Content: []byte("x")}, wantErr: service.ErrInvalidInput},
		{name: "unsupported type", doc: Document{Filename: "a.png", MIMEType: "image/png", Content: []byte("x")}, wantErr: service.ErrUnsupportedFormat},
		{name: "empty content", doc: Document{Filename: "a.txt", MIMEType: "text/plain"}, wantErr: service.ErrEmptyContent},
		{name: "whitespace only", doc: Document{Filename: "a.txt", MIMEType: "text/plain", Content: []byte(" \n\n\t ")}, wantErr: service.ErrEmptyContent},
		{name: "broken pdf", doc: Document{Filename: "a.pdf", MIMEType: "application/pdf", Content: []byte("nope")}, wantErr: service.ErrExtractionFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// No mock expectations: nothing may reach the embedder, store or registry.
			p, _ := newTestPipeline(t, Options{})

			report, err := p.Ingest(context.Background(), tt.doc)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Ingest() error = %v, want %v", err, tt.wantErr)
			}
			if report != nil {
				t.Errorf("Ingest() report = %+v, want nil", report)
			}
		})
	}
}

func TestPipeline_Ingest_EmbeddingFailure(t *testing.T) {
	p, m := newTestPipeline(t, Options{})

	m.store.EXPECT().EnsureCollection(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(nil, service.ErrEmbeddingFailure)

	_, err := p.Ingest(context.Background(), Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
	if !errors.Is(err, service.ErrEmbeddingFailure) {
		t.Errorf("Ingest() error = %v, want ErrEmbeddingFailure", err)
	}
}

// A mismatched collection fails the upload without calling the embedder.
func TestPipeline_Ingest_CollectionDimensionMismatch(t *testing.T) {
	p, m := newTestPipeline(t, Options{})

	m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Times(0)
	m.store.EXPECT().EnsureCollection(gomock.Any(), "docs", testDim, gomock.Any()).Return(service.ErrDimensionMismatch)

	_, err := p.Ingest(context.Background(), Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
	if !errors.Is(err, service.ErrDimensionMismatch) {
		t.Errorf("Ingest() error = %v, want ErrDimensionMismatch", err)
	}
}

func TestPipeline_Ingest_Canceled(t *testing.T) {
	p, m := newTestPipeline(t, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(okResults(3), nil)
	m.store.EXPECT().EnsureCollection(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.store.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, string, []vectorstore.Point) error {
			cancel()
			return nil
		}).Times(1)
	m.ingestions.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	report, err := p.Ingest(ctx, Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Ingest() error = %v, want context.Canceled", err)
	}
	if report.ChunksSucceeded != 1 || report.ChunksFailed != 2 || report.Status != StatusPartial {
		t.Errorf("report = %+v", report)
	}
}

func TestPipeline_Ingest_RegistryFailureIgnored(t *testing.T) {
	p, m := newTestPipeline(t, Options{})

	m.embedder.EXPECT().EmbedBatch(gomock.Any(), gomock.Any()).Return(okResults(3), nil)
	m.store.EXPECT().EnsureCollection(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	m.store.EXPECT().Upsert(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(3)
	m.ingestions.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("disk full"))

	report, err := p.Ingest(context.Background(), Document{Filename: "notes.txt", MIMEType: "text/plain", Content: threeParagraphs()})
	if err != nil {
		t.Fatalf("Ingest() error = %v", err)
	}
	if report.Status != StatusSuccess {
		t.Errorf("Status = %s, want success", report.Status)
	}
}

func TestPipeline_DeleteDocument(t *testing.T) {
	t.Run("deletes chunks and history", func(t *testing.T) {
		p, m := newTestPipeline(t, Options{})

		filter := map[string]any{vectorstore.FieldFilename: "notes.txt"}
		m.store.EXPECT().Count(gomock.Any(), "docs", filter).Return(3, nil)
		m.store.EXPECT().DeleteByField(gomock.Any(), "docs", vectorstore.FieldFilename, "notes.txt").Return(nil)
		m.ingestions.EXPECT().DeleteByFilename(gomock.Any(), "notes.txt").Return(1, nil)

		n, err := p.DeleteDocument(context.Background(), "notes.txt")
		if err != nil {
			t.Fatalf("DeleteDocument() error = %v", err)
		}
		if n != 3 {
			t.Errorf("DeleteDocument() = %d, want 3", n)
		}
	})

	t.Run("unknown document", func(t *testing.T) {
		p, m := newTestPipeline(t, Options{})

		m.store.EXPECT().Count(gomock.Any(), "docs", gomock.Any()).Return(0, nil)
		m.ingestions.EXPECT().DeleteByFilename(gomock.Any(), "ghost.txt").Return(0, nil)

		n, err := p.DeleteDocument(context.Background(), "ghost.txt")
		if err != nil || n != 0 {
			t.Errorf("DeleteDocument() = %d, %v", n, err)
		}
	})

	t.Run("missing collection", func(t *testing.T) {
		p, m := newTestPipeline(t, Options{})

		m.store.EXPECT().Count(gomock.Any(), "docs", gomock.Any()).Return(0, service.ErrCollectionNotFound)

		n, err := p.DeleteDocument(context.Background(), "notes.txt")
		if err != nil || n != 0 {
			t.Errorf("DeleteDocument() = %d, %v", n, err)
		}
	})

	t.Run("store unavailable", func(t *testing.T) {
		p, m := newTestPipeline(t, Options{})

		m.store.EXPECT().Count(gomock.Any(), "docs", gomock.Any()).Return(0, service.ErrStoreUnavailable)

		_, err := p.DeleteDocument(context.Background(), "notes.txt")
		if !errors.Is(err, service.ErrStoreUnavailable) {
			t.Errorf("DeleteDocument() error = %v, want ErrStoreUnavailable", err)
		}
	})

	t.Run("empty filename", func(t *testing.T) {
		p, _ := newTestPipeline(t, Options{})

		_, err := p.DeleteDocument(context.Background(), "")
		var vErr *service.ValidationError
		if !errors.As(err, &vErr) || vErr.Field != "filename" {
			t.Errorf("DeleteDocument() error = %v, want ValidationError on filename", err)
		}
	})
}

func TestPipeline_ListDocuments(t *testing.T) {
	p, m := newTestPipeline(t, Options{})

	long := strings.Repeat("é", 250)
	m.store.EXPECT().Scroll(gomock.Any(), "docs", defaultListLimit, "").Return(vectorstore.ScrollPage{
		Points: []vectorstore.Point{
			{ID: "p1", Meta: map[string]any{
				vectorstore.FieldFilename:    "a.txt",
				vectorstore.FieldFileType:    "text/plain",
				vectorstore.FieldChunkIndex:  int64(1),
				vectorstore.FieldTotalChunks: int64(2),
				vectorstore.FieldText:        long,
				vectorstore.FieldTimestamp:   "2025-06-01T10:00:00Z",
			}},
			{ID: "p2", Meta: map[string]any{vectorstore.FieldFilename: "b.txt", vectorstore.FieldText: "short"}},
		},
		NextOffset: "p3",
	}, nil)

	page, err := p.ListDocuments(context.Background(), 0, "")
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if !page.HasMore || page.NextOffset != "p3" || len(page.Documents) != 2 {
		t.Fatalf("page = %+v", page)
	}

	first := page.Documents[0]
	if first.ChunkIndex != 1 || first.TotalChunks != 2 || first.Filename != "a.txt" {
		t.Errorf("first = %+v", first)
	}
	if first.Preview != strings.Repeat("é", 200)+"..." {
		t.Errorf("preview not truncated to 200 runes: %d", len([]rune(first.Preview)))
	}
	if second := page.Documents[1]; second.Preview != "short" || second.TotalChunks != 1 {
		t.Errorf("second = %+v", second)
	}
}

func TestPipeline_ListDocuments_MissingCollection(t *testing.T) {
	p, m := newTestPipeline(t, Options{})

	m.store.EXPECT().Scroll(gomock.Any(), "docs", maxListLimit, "").Return(vectorstore.ScrollPage{}, service.ErrCollectionNotFound)

	page, err := p.ListDocuments(context.Background(), 10000, "")
	if err != nil {
		t.Fatalf("ListDocuments() error = %v", err)
	}
	if page.HasMore || page.Documents == nil || len(page.Documents) != 0 {
		t.Errorf("page = %+v, want empty", page)
	}
}
