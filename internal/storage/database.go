package storage

import (
	"database/sql"
	"fmt"
	"net/url"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

const busyTimeoutMillis = 5000

// dsn appends the connection options every pooled connection needs. PRAGMAs issued with
// Exec only reach one connection of the pool, so they are passed as DSN parameters.
func dsn(path string) string {
	params := url.Values{}
	params.Set("_foreign_keys", "on")
	params.Set("_busy_timeout", fmt.Sprint(busyTimeoutMillis))
	params.Set("_journal_mode", "WAL")
	return "file:" + path + "?" + params.Encode()
}

// New opens a SQLite database at the given path.
// Foreign keys, WAL journaling and a busy timeout are enabled on every connection.
func New(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Set connection pool settings
	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	// Verify connection
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to connect to database %s: %w", path, err)
	}

	return db, nil
}

// Migrate runs database migrations to create the required tables.
// It is idempotent and can be run multiple times safely.
func Migrate(db *sql.DB) error {
	schema := []string{
		`CREATE TABLE IF NOT EXISTS ingestions (
			id TEXT PRIMARY KEY,
			filename TEXT NOT NULL,
			file_type TEXT NOT NULL,
			collection TEXT NOT NULL,
			status TEXT NOT NULL,
			chunks_total INTEGER NOT NULL,
			chunks_succeeded INTEGER NOT NULL,
			chunks_failed INTEGER NOT NULL,
			chunks_degraded INTEGER NOT NULL DEFAULT 0,
			text_length INTEGER NOT NULL DEFAULT 0,
			index_version TEXT,
			ingested_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_ingestions_filename ON ingestions (filename);`,
		`CREATE TABLE IF NOT EXISTS ingestion_errors (
			ingestion_id TEXT NOT NULL,
			chunk_index INTEGER NOT NULL,
			stage TEXT NOT NULL,
			message TEXT NOT NULL,
			FOREIGN KEY (ingestion_id) REFERENCES ingestions(id) ON DELETE CASCADE
		);`,
	}

	for _, stmt := range schema {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to apply migration: %w", err)
		}
	}

	return nil
}
