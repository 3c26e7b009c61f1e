package indexer

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"math"
	"sort"
)

// ChunkerVersion is the version identifier for the chunker implementation.
// Update this when chunking logic changes significantly.
const ChunkerVersion = "v2.0"

// ChunkStats contains statistics about chunk lengths (in runes) for one document.
type ChunkStats struct {
	// Min is the shortest chunk.
	Min int `json:"min"`
	// Max is the longest chunk.
	Max int `json:"max"`
	// Mean is the mean chunk length.
	Mean float64 `json:"mean"`
	// P95 is the 95th percentile chunk length.
	P95 int `json:"p95"`
}

// IndexVersion returns a short hash identifying the index build: chunker version,
// strategy, sizes, embedding model and vector layout. Points written under different
// versions are not comparable.
func IndexVersion(strategy string, chunkSize, overlap, minLength int, model string, dimension int, distance string) string {
	input := fmt.Sprintf("%s|%s|size=%d|overlap=%d|min=%d|%s|dim=%d|%s",
		ChunkerVersion, strategy, chunkSize, overlap, minLength, model, dimension, distance)
	hash := sha256.Sum256([]byte(input))
	return hex.EncodeToString(hash[:])[:16] // 16 hex chars = 64 bits
}

// computeChunkStats computes min, max, mean, and p95 from chunk lengths.
func computeChunkStats(chunks []Chunk) ChunkStats {
	if len(chunks) == 0 {
		return ChunkStats{}
	}

	sorted := make([]int, len(chunks))
	sum := 0
	for i, ch := range chunks {
		sorted[i] = ch.Length
		sum += ch.Length
	}
	sort.Ints(sorted)

	p95Index := int(math.Ceil(float64(len(sorted)) * 0.95))
	if p95Index >= len(sorted) {
		p95Index = len(sorted) - 1
	}

	mean := float64(sum) / float64(len(sorted))
	return ChunkStats{
		Min:  sorted[0],
		Max:  sorted[len(sorted)-1],
		Mean: math.Round(mean*100) / 100, // Round to 2 decimal places
		P95:  sorted[p95Index],
	}
}
