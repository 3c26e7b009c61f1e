package indexer

import (
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

var unsafeFilenameChars = regexp.MustCompile(`[^a-zA-Z0-9._-]`)

// sanitizeFilename replaces every character outside [a-zA-Z0-9._-] with an underscore.
func sanitizeFilename(name string) string {
	return unsafeFilenameChars.ReplaceAllString(name, "_")
}

// ChunkKey returns the human-readable key of a chunk: "<ingestUnixMillis>_<filename>_<index>".
func ChunkKey(ingestedAt time.Time, filename string, index int) string {
	return fmt.Sprintf("%d_%s_%d", ingestedAt.UnixMilli(), sanitizeFilename(filename), index)
}

// PointID derives the vector store ID for a chunk key. Qdrant only accepts UUIDs or
// unsigned integers, so the key is mapped to a name-based UUID.
func PointID(chunkKey string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte("docrag:chunk:"+chunkKey)).String()
}
