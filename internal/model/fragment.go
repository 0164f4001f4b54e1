// Package model defines the persisted and transfer types of the retrieval core.
package model

import (
	"crypto/md5"
	"encoding/hex"
	"fmt"
	"time"
)

// FragmentMetadata carries the fields every component reads as typed
// members, plus an extension bag for forward compatibility.
type FragmentMetadata struct {
	OwnerID    string            `json:"ownerId"`
	FileName   string            `json:"fileName"`
	ChunkIndex int               `json:"chunkIndex"`
	Title      string            `json:"title,omitempty"`
	Extra      map[string]string `json:"extra,omitempty"`
}

// Fragment is the persisted unit: a chunk of document text together with
// its embedding vector and metadata. OwnerID is the sole tenancy boundary
// and is immutable after creation.
type Fragment struct {
	ID        string           `json:"id"`
	Content   string           `json:"content"`
	Source    string           `json:"source"`
	Embedding []float32        `json:"embedding"`
	Metadata  FragmentMetadata `json:"metadata"`
	CreatedAt time.Time        `json:"createdAt"`
}

// FragmentID derives the deterministic fragment id from the owner, the
// originating filename, the ingestion timestamp and the chunk index.
func FragmentID(ownerID, fileName string, ingestedAt time.Time, chunkIndex int) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s:%s:%d", ownerID, fileName, ingestedAt.UnixNano())))
	return fmt.Sprintf("%s_%d", hex.EncodeToString(sum[:]), chunkIndex)
}

// IngestResult is returned by the ingestion entry point.
type IngestResult struct {
	Chunks     int    `json:"chunks"`
	FirstChunk string `json:"firstChunk"`
}

// SearchResult is one ranked entry returned by the search entry point.
type SearchResult struct {
	Title   string  `json:"title"`
	Content string  `json:"content"`
	Source  string  `json:"source"`
	Score   float64 `json:"score"`
}
