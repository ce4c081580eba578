package vectorindex

import (
	"context"
	"path/filepath"
	"testing"

	"mnemosyne/internal/model"
)

func newTestChunk(id string, embedding []float32, stage model.Stage) model.Chunk {
	return model.Chunk{
		ID:        id,
		Text:      "text-" + id,
		Embedding: embedding,
		Metadata:  model.Metadata{Stage: stage},
	}
}

func TestMemoryStore_UpsertIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, _, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	c := newTestChunk("a", []float32{1, 0, 0}, model.StageActive)
	if n, err := s.Upsert(ctx, []model.Chunk{c}); err != nil || n != 1 {
		t.Fatalf("upsert: n=%d err=%v", n, err)
	}
	c.Text = "updated"
	if n, err := s.Upsert(ctx, []model.Chunk{c}); err != nil || n != 1 {
		t.Fatalf("upsert again: n=%d err=%v", n, err)
	}

	got, err := s.Get(ctx, "a")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Text != "updated" {
		t.Fatalf("expected updated text, got %q", got.Text)
	}
	if n, _ := s.Count(ctx, Filter{}); n != 1 {
		t.Fatalf("expected count 1 after idempotent upsert, got %d", n)
	}
}

func TestMemoryStore_SearchOrderingAndTieBreak(t *testing.T) {
	dir := t.TempDir()
	s, _, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	chunks := []model.Chunk{
		newTestChunk("b", []float32{1, 0, 0}, model.StageActive),
		newTestChunk("a", []float32{1, 0, 0}, model.StageActive),
		newTestChunk("c", []float32{0, 1, 0}, model.StageActive),
	}
	if _, err := s.Upsert(ctx, chunks); err != nil {
		t.Fatalf("upsert: %v", err)
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 10, Filter{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	// a and b tie at score 1.0; lexicographic tiebreak puts "a" first.
	if results[0].ChunkID != "a" || results[1].ChunkID != "b" {
		t.Fatalf("expected tie-break order [a b ...], got %v", results)
	}
	if results[2].ChunkID != "c" {
		t.Fatalf("expected orthogonal vector last, got %v", results)
	}
}

func TestMemoryStore_SearchFilterAppliedBeforeTopK(t *testing.T) {
	dir := t.TempDir()
	s, _, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		stage := model.StageActive
		if i%2 == 0 {
			stage = model.StageArchived
		}
		id := string(rune('a' + i))
		if _, err := s.Upsert(ctx, []model.Chunk{newTestChunk(id, []float32{1, 0, 0}, stage)}); err != nil {
			t.Fatalf("upsert: %v", err)
		}
	}

	results, err := s.Search(ctx, []float32{1, 0, 0}, 10, Filter{Stage: string(model.StageActive)})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	for _, r := range results {
		c, err := s.Get(ctx, r.ChunkID)
		if err != nil {
			t.Fatalf("get %s: %v", r.ChunkID, err)
		}
		if c.Metadata.Stage != model.StageActive {
			t.Fatalf("filter leaked non-active chunk %s", r.ChunkID)
		}
	}
}

func TestMemoryStore_DeleteIdempotent(t *testing.T) {
	dir := t.TempDir()
	s, _, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()
	ctx := context.Background()

	c := newTestChunk("x", []float32{1, 0, 0}, model.StageActive)
	if _, err := s.Upsert(ctx, []model.Chunk{c}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if n, err := s.Delete(ctx, []string{"x"}); err != nil || n != 1 {
		t.Fatalf("delete: n=%d err=%v", n, err)
	}
	if n, err := s.Delete(ctx, []string{"x"}); err != nil || n != 0 {
		t.Fatalf("idempotent delete: n=%d err=%v", n, err)
	}
	if _, err := s.Get(ctx, "x"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_WALRecovery(t *testing.T) {
	dir := t.TempDir()
	s1, _, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()
	if _, err := s1.Upsert(ctx, []model.Chunk{newTestChunk("a", []float32{1, 0, 0}, model.StageActive)}); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	if err := s1.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	s2, corrupted, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if corrupted {
		t.Fatal("did not expect corruption on clean reopen")
	}
	if _, err := s2.Get(ctx, "a"); err != nil {
		t.Fatalf("expected chunk recovered from WAL, got %v", err)
	}
}

func TestMemoryStore_WALPathUsesDataDir(t *testing.T) {
	dir := t.TempDir()
	s, _, err := NewMemoryStore(dir)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	defer s.Close()
	if s.wal.path != filepath.Join(dir, "vector.wal") {
		t.Fatalf("unexpected wal path: %s", s.wal.path)
	}
}
