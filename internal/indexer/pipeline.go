package indexer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"docrag/internal/contextutil"
	"docrag/internal/llm"
	"docrag/internal/service"
	"docrag/internal/storage"
	"docrag/internal/vectorstore"
)

const (
	defaultListLimit = 50
	maxListLimit     = 500
	previewLength    = 200
)

// TextExtractor turns an uploaded document into plain text.
type TextExtractor interface {
	DetectType(mimeType, filename string) string
	Extract(ctx context.Context, content []byte, mimeType, filename string) (string, error)
}

// Options tunes a Pipeline. Zero timeouts leave calls bounded only by the caller's context.
type Options struct {
	Distance       vectorstore.Distance
	EmbedTimeout   time.Duration
	StoreTimeout   time.Duration
	IngestDegraded bool   // store degraded embeddings instead of counting them as failures
	IndexVersion   string // written to every point and ingestion record
}

var _ Ingester = (*Pipeline)(nil)

// Pipeline orchestrates document ingestion into the vector store and the ingestion registry.
type Pipeline struct {
	extractor   TextExtractor
	chunker     Chunker
	embedder    llm.Embedder
	vectorStore vectorstore.VectorStore
	ingestions  storage.IngestionStore // optional
	collection  string
	opts        Options
	now         func() time.Time
}

// NewPipeline creates a new ingestion pipeline. ingestions may be nil to skip the registry.
func NewPipeline(
	extractor TextExtractor,
	chunker Chunker,
	embedder llm.Embedder,
	vectorStore vectorstore.VectorStore,
	ingestions storage.IngestionStore,
	collection string,
	opts Options,
) *Pipeline {
	if opts.Distance == "" {
		opts.Distance = vectorstore.DistanceCosine
	}
	return &Pipeline{
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		vectorStore: vectorStore,
		ingestions:  ingestions,
		collection:  collection,
		opts:        opts,
		now:         time.Now,
	}
}

// Collection returns the collection the pipeline writes to.
func (p *Pipeline) Collection() string {
	return p.collection
}

// Ingest extracts, chunks, embeds and stores one document.
//
// Chunks are upserted one at a time so a failing chunk does not abort the rest. When some
// chunks fail the report has Status partial and the error is nil; report.Err() exposes
// service.ErrPartialIngestion. When every chunk fails the report is returned together
// with an error wrapping service.ErrIngestionFailed. Errors before any chunk is written
// (validation, extraction, collection setup, embedding) return a nil report.
func (p *Pipeline) Ingest(ctx context.Context, doc Document) (*IngestionReport, error) {
	logger := contextutil.LoggerFromContext(ctx)

	filename := strings.TrimSpace(doc.Filename)
	if filename == "" {
		return nil, &service.ValidationError{Field: "filename", Message: "filename is required"}
	}
	fileType := p.extractor.DetectType(doc.MIMEType, filename)
	if fileType == "" {
		return nil, fmt.Errorf("%w: %q (%s)", service.ErrUnsupportedFormat, doc.MIMEType, filename)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("%w: %s", service.ErrEmptyContent, filename)
	}

	text, err := p.extractor.Extract(ctx, doc.Content, fileType, filename)
	if err != nil {
		return nil, fmt.Errorf("failed to extract text: %w", err)
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: no text extracted from %s", service.ErrEmptyContent, filename)
	}

	chunks, err := p.chunker.Chunk(filename, text)
	if err != nil {
		return nil, fmt.Errorf("failed to chunk document: %w", err)
	}

	// A collection with the wrong vector size is rejected before the embedding round trip.
	storeCtx, cancel := contextutil.WithTimeout(ctx, p.opts.StoreTimeout)
	err = p.vectorStore.EnsureCollection(storeCtx, p.collection, p.embedder.Dimension(), p.opts.Distance)
	cancel()
	if err != nil {
		return nil, fmt.Errorf("failed to ensure collection: %w", err)
	}

	results, err := p.embed(ctx, chunks)
	if err != nil {
		return nil, err
	}

	report := &IngestionReport{
		Filename:     filename,
		FileType:     fileType,
		ChunksTotal:  len(chunks),
		TextLength:   utf8.RuneCountInString(text),
		IngestedAt:   p.now().UTC(),
		Stats:        computeChunkStats(chunks),
		IndexVersion: p.opts.IndexVersion,
	}
	fail := func(index int, stage string, err error) {
		report.ChunksFailed++
		report.Errors = append(report.Errors, ChunkError{ChunkIndex: index, Stage: stage, Message: err.Error()})
	}

	var canceled error
	for i, chunk := range chunks {
		if err := ctx.Err(); err != nil {
			canceled = err
			for _, rest := range chunks[i:] {
				fail(rest.Index, StageUpsert, err)
			}
			break
		}

		res := results[i]
		status := llm.EmbedStatusOK
		if res.Status == llm.EmbedStatusDegraded {
			report.ChunksDegraded++
			status = llm.EmbedStatusDegraded
			if !p.opts.IngestDegraded {
				fail(chunk.Index, StageEmbed, degradedError(res.Err))
				continue
			}
		} else if res.Err != nil {
			fail(chunk.Index, StageEmbed, res.Err)
			continue
		}

		point := p.buildPoint(report, chunk, res.Vector, status)

		upsertCtx, cancel := contextutil.WithTimeout(ctx, p.opts.StoreTimeout)
		err := p.vectorStore.Upsert(upsertCtx, p.collection, []vectorstore.Point{point})
		cancel()
		if err != nil {
			logger.WarnContext(ctx, "failed to upsert chunk", "filename", filename, "chunk_index", chunk.Index, "error", err)
			fail(chunk.Index, StageUpsert, err)
			continue
		}
		report.ChunksSucceeded++
	}

	switch {
	case report.ChunksFailed == 0:
		report.Status = StatusSuccess
	case report.ChunksSucceeded == 0:
		report.Status = StatusFailed
	default:
		report.Status = StatusPartial
	}

	p.record(ctx, report)

	logger.InfoContext(ctx, "ingested document",
		"filename", filename,
		"file_type", fileType,
		"status", report.Status,
		"chunks", report.ChunksTotal,
		"succeeded", report.ChunksSucceeded,
		"failed", report.ChunksFailed,
		"degraded", report.ChunksDegraded,
	)

	if canceled != nil {
		return report, fmt.Errorf("ingestion of %s interrupted after %d chunks: %w", filename, report.ChunksSucceeded, canceled)
	}
	if report.Status == StatusFailed {
		return report, report.Err()
	}
	return report, nil
}

// embed runs one batch embedding for every chunk.
func (p *Pipeline) embed(ctx context.Context, chunks []Chunk) ([]llm.EmbedResult, error) {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	embedCtx, cancel := contextutil.WithTimeout(ctx, p.opts.EmbedTimeout)
	defer cancel()

	results, err := p.embedder.EmbedBatch(embedCtx, texts)
	if err != nil {
		return nil, fmt.Errorf("failed to generate embeddings: %w", err)
	}
	if len(results) != len(chunks) {
		return nil, fmt.Errorf("%w: expected %d embeddings, got %d", service.ErrEmbeddingFailure, len(chunks), len(results))
	}
	return results, nil
}

func (p *Pipeline) buildPoint(report *IngestionReport, chunk Chunk, vec []float32, status llm.EmbedStatus) vectorstore.Point {
	key := ChunkKey(report.IngestedAt, report.Filename, chunk.Index)
	return vectorstore.Point{
		ID:  PointID(key),
		Vec: vec,
		Meta: map[string]any{
			vectorstore.FieldText:            chunk.Text,
			vectorstore.FieldFilename:        report.Filename,
			vectorstore.FieldFileType:        report.FileType,
			vectorstore.FieldChunkIndex:      chunk.Index,
			vectorstore.FieldTotalChunks:     chunk.TotalChunks,
			vectorstore.FieldChunkLength:     chunk.Length,
			vectorstore.FieldChunkOffset:     chunk.Offset,
			vectorstore.FieldTimestamp:       report.IngestedAt.Format(time.RFC3339Nano),
			vectorstore.FieldChunkKey:        key,
			vectorstore.FieldFullTextLength:  report.TextLength,
			vectorstore.FieldEmbeddingStatus: string(status),
			vectorstore.FieldIndexVersion:    report.IndexVersion,
		},
	}
}

// record writes the report to the ingestion registry. Registry failures are logged and
// never fail an ingestion whose points are already stored.
func (p *Pipeline) record(ctx context.Context, report *IngestionReport) {
	if p.ingestions == nil {
		return
	}

	rec := &storage.IngestionRecord{
		Filename:        report.Filename,
		FileType:        report.FileType,
		Collection:      p.collection,
		Status:          string(report.Status),
		ChunksTotal:     report.ChunksTotal,
		ChunksSucceeded: report.ChunksSucceeded,
		ChunksFailed:    report.ChunksFailed,
		ChunksDegraded:  report.ChunksDegraded,
		TextLength:      report.TextLength,
		IndexVersion:    report.IndexVersion,
		IngestedAt:      report.IngestedAt,
	}
	for _, e := range report.Errors {
		rec.Errors = append(rec.Errors, storage.IngestionError{ChunkIndex: e.ChunkIndex, Stage: e.Stage, Message: e.Message})
	}

	if err := p.ingestions.Record(context.WithoutCancel(ctx), rec); err != nil {
		contextutil.LoggerFromContext(ctx).WarnContext(ctx, "failed to record ingestion", "filename", report.Filename, "error", err)
	}
}

// DeleteDocument removes every chunk of filename and its ingestion history.
// It returns the number of chunks removed; a missing collection counts as zero.
func (p *Pipeline) DeleteDocument(ctx context.Context, filename string) (int, error) {
	logger := contextutil.LoggerFromContext(ctx)

	filename = strings.TrimSpace(filename)
	if filename == "" {
		return 0, &service.ValidationError{Field: "filename", Message: "filename is required"}
	}

	filter := map[string]any{vectorstore.FieldFilename: filename}

	storeCtx, cancel := contextutil.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()

	n, err := p.vectorStore.Count(storeCtx, p.collection, filter)
	if errors.Is(err, service.ErrCollectionNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to count document chunks: %w", err)
	}

	if n > 0 {
		if err := p.vectorStore.DeleteByField(storeCtx, p.collection, vectorstore.FieldFilename, filename); err != nil {
			return 0, fmt.Errorf("failed to delete document chunks: %w", err)
		}
	}

	if p.ingestions != nil {
		if _, err := p.ingestions.DeleteByFilename(ctx, filename); err != nil {
			logger.WarnContext(ctx, "failed to delete ingestion history", "filename", filename, "error", err)
		}
	}

	logger.InfoContext(ctx, "deleted document", "filename", filename, "chunks", n)
	return n, nil
}

// ListDocuments returns one page of stored chunks with a short text preview.
// A missing collection yields an empty page.
func (p *Pipeline) ListDocuments(ctx context.Context, limit int, offset string) (*DocumentPage, error) {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if limit > maxListLimit {
		limit = maxListLimit
	}

	storeCtx, cancel := contextutil.WithTimeout(ctx, p.opts.StoreTimeout)
	defer cancel()

	page, err := p.vectorStore.Scroll(storeCtx, p.collection, limit, offset)
	if errors.Is(err, service.ErrCollectionNotFound) {
		return &DocumentPage{Documents: []DocumentChunk{}}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}

	docs := make([]DocumentChunk, 0, len(page.Points))
	for _, pt := range page.Points {
		docs = append(docs, DocumentChunk{
			PointID:     pt.ID,
			Filename:    vectorstore.PayloadString(pt.Meta, vectorstore.FieldFilename),
			FileType:    vectorstore.PayloadString(pt.Meta, vectorstore.FieldFileType),
			ChunkIndex:  vectorstore.PayloadInt(pt.Meta, vectorstore.FieldChunkIndex, 0),
			TotalChunks: vectorstore.PayloadInt(pt.Meta, vectorstore.FieldTotalChunks, 1),
			Preview:     preview(vectorstore.PayloadString(pt.Meta, vectorstore.FieldText), previewLength),
			Timestamp:   vectorstore.PayloadString(pt.Meta, vectorstore.FieldTimestamp),
		})
	}

	return &DocumentPage{
		Documents:  docs,
		NextOffset: page.NextOffset,
		HasMore:    page.NextOffset != "",
	}, nil
}

// preview returns the first n runes of s, with "..." appended when s was cut.
func preview(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}

// degradedError makes sure a degraded result without a recorded cause still reports one.
func degradedError(err error) error {
	if err != nil {
		return err
	}
	return errors.New("degraded embedding")
}
