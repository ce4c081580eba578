// Package vectorindex implements the VectorIndex capability (spec §4.3):
// persisting chunks with their embeddings and answering cosine-nearest
// queries under an optional metadata filter. The interface is grounded
// on internal/persistence/databases/interfaces.go's VectorStore,
// extended with Get/Count and idempotent upsert-by-chunk-id semantics.
package vectorindex

import (
	"context"
	"errors"

	"mnemosyne/internal/model"
)

// Errors per spec §4.3 failure modes.
var (
	ErrNotFound       = errors.New("vectorindex: chunk not found")
	ErrIndexDegraded  = errors.New("vectorindex: index degraded, serving from last-known-good snapshot")
)

// Filter is a flat equality filter over chunk metadata extension keys
// plus the well-known Stage/Layer/Category fields.
type Filter struct {
	Stage    string
	Layer    string
	Category string
	Tags     map[string]string
}

func (f Filter) empty() bool {
	return f.Stage == "" && f.Layer == "" && f.Category == "" && len(f.Tags) == 0
}

func (f Filter) matches(md model.Metadata) bool {
	if f.Stage != "" && string(md.Stage) != f.Stage {
		return false
	}
	if f.Layer != "" && string(md.Layer) != f.Layer {
		return false
	}
	if f.Category != "" && md.Category != f.Category {
		return false
	}
	for k, v := range f.Tags {
		if md.Extension[k] != v {
			return false
		}
	}
	return true
}

// ScoredChunk is one search result: a chunk id plus its cosine score.
type ScoredChunk struct {
	ChunkID string
	Score   float64
}

// VectorStore is the capability interface every backend (in-memory,
// Qdrant) implements. Operations match spec §4.3's contract table.
type VectorStore interface {
	// Upsert inserts or updates chunks, keyed by Chunk.ID; returns
	// the count inserted/updated. Idempotent and atomic per batch.
	Upsert(ctx context.Context, chunks []model.Chunk) (int, error)
	// Search returns up to k results ordered by descending cosine score,
	// ties broken by chunk_id lexicographic order. filter, when non-empty,
	// is applied before ranking.
	Search(ctx context.Context, query []float32, k int, filter Filter) ([]ScoredChunk, error)
	// Delete removes the given chunk IDs. MemoryStore returns the count of
	// IDs that were present; QdrantVectorStore returns the count of IDs it
	// sent delete requests for, present or not.
	// Idempotent: deleting an absent ID is not an error.
	Delete(ctx context.Context, chunkIDs []string) (int, error)
	// Get returns the chunk for id, or ErrNotFound.
	Get(ctx context.Context, chunkID string) (model.Chunk, error)
	// Count returns the number of chunks matching filter (all, if empty).
	Count(ctx context.Context, filter Filter) (int, error)
	// ListIDs returns every chunk ID matching filter (all, if empty), for
	// batch maintenance operations such as a lifecycle sweep that need
	// the full population rather than a top-k ranking.
	ListIDs(ctx context.Context, filter Filter) ([]string, error)
}
