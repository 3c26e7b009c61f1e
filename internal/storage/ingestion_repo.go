package storage

//go:generate go run go.uber.org/mock/mockgen@latest -destination=mocks/mock_ingestion_store.go -package=mocks docrag/internal/storage IngestionStore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"docrag/internal/service"
)

// ErrNotFound is returned when a record is not found.
var ErrNotFound = service.ErrNotFound

// IngestionStore defines the interface for ingestion history operations.
type IngestionStore interface {
	// Record inserts an ingestion and its chunk errors. An empty ID is filled with a UUID.
	Record(ctx context.Context, rec *IngestionRecord) error
	// ListRecent returns the newest ingestions first, at most limit of them.
	ListRecent(ctx context.Context, limit int) ([]*IngestionRecord, error)
	// GetByID gets an ingestion by its ID. Returns ErrNotFound if not found.
	GetByID(ctx context.Context, id string) (*IngestionRecord, error)
	// DeleteByFilename removes the history of a document and returns the rows removed.
	DeleteByFilename(ctx context.Context, filename string) (int, error)
}

// IngestionRepo provides methods for ingestion history operations.
// It implements the IngestionStore interface.
type IngestionRepo struct {
	db *sql.DB
}

// NewIngestionRepo creates a new IngestionRepo.
func NewIngestionRepo(db *sql.DB) *IngestionRepo {
	return &IngestionRepo{db: db}
}

// DB returns the underlying database connection.
func (r *IngestionRepo) DB() *sql.DB {
	return r.db
}

// Record inserts an ingestion and its chunk errors in one transaction.
func (r *IngestionRepo) Record(ctx context.Context, rec *IngestionRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	_, err = tx.ExecContext(ctx,
		`INSERT INTO ingestions (id, filename, file_type, collection, status, chunks_total,
			chunks_succeeded, chunks_failed, chunks_degraded, text_length, index_version, ingested_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.Filename, rec.FileType, rec.Collection, rec.Status, rec.ChunksTotal,
		rec.ChunksSucceeded, rec.ChunksFailed, rec.ChunksDegraded, rec.TextLength, rec.IndexVersion,
		rec.IngestedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert ingestion: %w", err)
	}

	for _, e := range rec.Errors {
		_, err := tx.ExecContext(ctx,
			"INSERT INTO ingestion_errors (ingestion_id, chunk_index, stage, message) VALUES (?, ?, ?, ?)",
			rec.ID, e.ChunkIndex, e.Stage, e.Message,
		)
		if err != nil {
			return fmt.Errorf("failed to insert ingestion error: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit ingestion: %w", err)
	}
	return nil
}

const ingestionColumns = `id, filename, file_type, collection, status, chunks_total, chunks_succeeded,
	chunks_failed, chunks_degraded, text_length, COALESCE(index_version, ''), ingested_at`

// ListRecent returns the newest ingestions first.
// Returns an empty slice if there is no history (not an error).
func (r *IngestionRepo) ListRecent(ctx context.Context, limit int) ([]*IngestionRecord, error) {
	if limit <= 0 {
		limit = 20
	}

	rows, err := r.db.QueryContext(ctx,
		"SELECT "+ingestionColumns+" FROM ingestions ORDER BY ingested_at DESC, id LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingestions: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	records := []*IngestionRecord{}
	for rows.Next() {
		rec, err := scanIngestion(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	if err := r.loadErrors(ctx, records); err != nil {
		return nil, err
	}
	return records, nil
}

// GetByID gets an ingestion by its ID. Returns ErrNotFound if not found.
func (r *IngestionRepo) GetByID(ctx context.Context, id string) (*IngestionRecord, error) {
	row := r.db.QueryRowContext(ctx, "SELECT "+ingestionColumns+" FROM ingestions WHERE id = ?", id)
	rec, err := scanIngestion(row)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if err := r.loadErrors(ctx, []*IngestionRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteByFilename removes every ingestion of filename together with its chunk errors.
func (r *IngestionRepo) DeleteByFilename(ctx context.Context, filename string) (int, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// foreign_keys is a per-connection pragma, so the cascade is not relied on here.
	_, err = tx.ExecContext(ctx,
		"DELETE FROM ingestion_errors WHERE ingestion_id IN (SELECT id FROM ingestions WHERE filename = ?)",
		filename,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ingestion errors: %w", err)
	}

	res, err := tx.ExecContext(ctx, "DELETE FROM ingestions WHERE filename = ?", filename)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ingestions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to read affected rows: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit delete: %w", err)
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIngestion(row rowScanner) (*IngestionRecord, error) {
	var rec IngestionRecord
	err := row.Scan(&rec.ID, &rec.Filename, &rec.FileType, &rec.Collection, &rec.Status,
		&rec.ChunksTotal, &rec.ChunksSucceeded, &rec.ChunksFailed, &rec.ChunksDegraded,
		&rec.TextLength, &rec.IndexVersion, &rec.IngestedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan ingestion: %w", err)
	}
	return &rec, nil
}

func (r *IngestionRepo) loadErrors(ctx context.Context, records []*IngestionRecord) error {
	if len(records) == 0 {
		return nil
	}

	byID := make(map[string]*IngestionRecord, len(records))
	args := make([]any, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		args = append(args, rec.ID)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(records)), ",")

	rows, err := r.db.QueryContext(ctx,
		"SELECT ingestion_id, chunk_index, stage, message FROM ingestion_errors WHERE ingestion_id IN ("+placeholders+") ORDER BY chunk_index",
		args...,
	)
	if err != nil {
		return fmt.Errorf("failed to query ingestion errors: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	for rows.Next() {
		var id string
		var e IngestionError
		if err := rows.Scan(&id, &e.ChunkIndex, &e.Stage, &e.Message); err != nil {
			return fmt.Errorf("failed to scan ingestion error: %w", err)
		}
		if rec, ok := byID[id]; ok {
			rec.Errors = append(rec.Errors, e)
		}
	}
	return rows.Err()
}
