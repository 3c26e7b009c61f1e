package rag

// QueryRequest represents a semantic search request.
type QueryRequest struct {
	// Text is the natural-language query.
	Text string `json:"query"`
	// Limit caps the number of results. Zero uses the configured default.
	Limit int `json:"limit,omitempty"`
	// ScoreThreshold drops results scoring below it. Nil uses the configured default.
	ScoreThreshold *float32 `json:"score_threshold,omitempty"`
	// Filename optionally restricts the search to one document.
	Filename string `json:"filename,omitempty"`
}

// Result is one retrieved chunk.
type Result struct {
	// PointID is the vector store ID of the chunk.
	PointID string `json:"id"`
	// Score is the similarity to the query; higher is closer.
	Score float32 `json:"score"`
	// Filename is the source document.
	Filename string `json:"filename"`
	// FileType is the MIME type the document was extracted as.
	FileType string `json:"file_type"`
	// ChunkIndex is the chunk index within the document.
	ChunkIndex int `json:"chunk_index"`
	// TotalChunks is the number of chunks the document was split into.
	TotalChunks int `json:"total_chunks"`
	// Snippet is the part of the chunk that best matches the query.
	Snippet string `json:"snippet"`
	// Text is the full chunk text.
	Text string `json:"text"`
	// Timestamp is when the document was ingested (RFC 3339).
	Timestamp string `json:"timestamp"`
}

// QueryResponse represents the response to a query.
type QueryResponse struct {
	// Query echoes the request text.
	Query string `json:"query"`
	// Results are ordered best match first.
	Results []Result `json:"results"`
	// TotalResults is len(Results).
	TotalResults int `json:"total_results"`
}
