package storage

import "time"

// IngestionRecord is one row of the ingestion history.
type IngestionRecord struct {
	ID              string // UUID
	Filename        string
	FileType        string
	Collection      string
	Status          string // success, partial or failed
	ChunksTotal     int
	ChunksSucceeded int
	ChunksFailed    int
	ChunksDegraded  int
	TextLength      int    // Runes of extracted text
	IndexVersion    string // Hash of chunker version, embedding model and chunking params
	IngestedAt      time.Time
	Errors          []IngestionError
}

// IngestionError is a per-chunk failure recorded with an ingestion.
type IngestionError struct {
	ChunkIndex int
	Stage      string // embed or upsert
	Message    string
}
