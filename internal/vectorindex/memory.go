package vectorindex

import (
	"context"
	"math"
	"path/filepath"
	"sort"
	"sync"

	"mnemosyne/internal/model"
)

// MemoryStore is the in-process brute-force-cosine reference
// implementation of VectorStore, generalized from the teacher's
// memory_vector.go to the spec's Chunk shape, metadata filtering, and
// WAL-backed crash safety. At the module's target scale (≤100k chunks,
// spec §4.3) exact search satisfies the semantic contract; an
// approximate index is a latency optimization, not a correctness
// requirement.
type MemoryStore struct {
	mu     sync.RWMutex
	chunks map[string]model.Chunk
	wal    *wal
}

// NewMemoryStore opens (or creates) a WAL-backed in-memory store rooted
// at dataDir, replaying any existing WAL tail before returning.
func NewMemoryStore(dataDir string) (*MemoryStore, bool, error) {
	s := &MemoryStore{chunks: make(map[string]model.Chunk)}
	walPath := filepath.Join(dataDir, "vector.wal")

	corrupted, err := replayWAL(walPath, func(rec walRecord) {
		switch rec.Op {
		case walUpsert:
			for _, c := range rec.Chunks {
				s.chunks[c.ID] = c
			}
		case walDelete:
			for _, id := range rec.ChunkIDs {
				delete(s.chunks, id)
			}
		}
	})
	if err != nil {
		return nil, false, err
	}

	w, err := openWAL(walPath)
	if err != nil {
		return nil, false, err
	}
	s.wal = w
	return s, corrupted, nil
}

func (s *MemoryStore) Close() error { return s.wal.close() }

func (s *MemoryStore) Upsert(_ context.Context, chunks []model.Chunk) (int, error) {
	if len(chunks) == 0 {
		return 0, nil
	}
	if err := s.wal.append(walRecord{Op: walUpsert, Chunks: chunks}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, c := range chunks {
		cp := c
		cp.Embedding = append([]float32(nil), c.Embedding...)
		s.chunks[c.ID] = cp
	}
	return len(chunks), nil
}

func (s *MemoryStore) Delete(_ context.Context, chunkIDs []string) (int, error) {
	if len(chunkIDs) == 0 {
		return 0, nil
	}
	if err := s.wal.append(walRecord{Op: walDelete, ChunkIDs: chunkIDs}); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, id := range chunkIDs {
		if _, ok := s.chunks[id]; ok {
			delete(s.chunks, id)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) Get(_ context.Context, chunkID string) (model.Chunk, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.chunks[chunkID]
	if !ok {
		return model.Chunk{}, ErrNotFound
	}
	return c, nil
}

func (s *MemoryStore) Count(_ context.Context, filter Filter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if filter.empty() {
		return len(s.chunks), nil
	}
	n := 0
	for _, c := range s.chunks {
		if filter.matches(c.Metadata) {
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) ListIDs(_ context.Context, filter Filter) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.chunks))
	for id, c := range s.chunks {
		if !filter.empty() && !filter.matches(c.Metadata) {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *MemoryStore) Search(_ context.Context, query []float32, k int, filter Filter) ([]ScoredChunk, error) {
	if k <= 0 {
		k = 10
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	qnorm := norm(query)
	results := make([]ScoredChunk, 0, len(s.chunks))
	for id, c := range s.chunks {
		if !filter.empty() && !filter.matches(c.Metadata) {
			continue
		}
		results = append(results, ScoredChunk{ChunkID: id, Score: cosine(query, c.Embedding, qnorm)})
	}
	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ChunkID < results[j].ChunkID
	})
	if len(results) > k {
		results = results[:k]
	}
	return results, nil
}

func norm(a []float32) float64 {
	var s float64
	for _, x := range a {
		s += float64(x) * float64(x)
	}
	return math.Sqrt(s)
}

func dot(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var s float64
	for i := 0; i < n; i++ {
		s += float64(a[i]) * float64(b[i])
	}
	return s
}

func cosine(a, b []float32, anorm float64) float64 {
	if anorm == 0 {
		anorm = norm(a)
	}
	bnorm := norm(b)
	if anorm == 0 || bnorm == 0 {
		return 0
	}
	return dot(a, b) / (anorm * bnorm)
}
