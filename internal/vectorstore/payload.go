package vectorstore

import "fmt"

// Payload fields written with every chunk point.
const (
	FieldText            = "text"
	FieldFilename        = "filename"
	FieldFileType        = "file_type"
	FieldChunkIndex      = "chunk_index"
	FieldTotalChunks     = "total_chunks"
	FieldChunkLength     = "chunk_length"
	FieldChunkOffset     = "chunk_offset"
	FieldTimestamp       = "timestamp"
	FieldChunkKey        = "chunk_key"
	FieldFullTextLength  = "full_text_length"
	FieldEmbeddingStatus = "embedding_status"
	FieldIndexVersion    = "index_version"
)

// PayloadString returns meta[key] as a string, or "" when absent.
func PayloadString(meta map[string]any, key string) string {
	switch v := meta[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}

// PayloadInt returns meta[key] as an int. Qdrant returns integers as int64 and JSON
// decoders as float64; both are accepted. Missing or non-numeric values yield def.
func PayloadInt(meta map[string]any, key string, def int) int {
	switch v := meta[key].(type) {
	case int:
		return v
	case int32:
		return int(v)
	case int64:
		return int(v)
	case uint64:
		return int(v)
	case float32:
		return int(v)
	case float64:
		return int(v)
	default:
		return def
	}
}
