package ingest

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemosyne/internal/chunk"
	"mnemosyne/internal/embed"
	"mnemosyne/internal/graph"
	"mnemosyne/internal/vectorindex"
)

type fakeLookup struct {
	byHash map[string][]string // contentHash -> chunkIDs
}

func (f *fakeLookup) LookupByHash(_ context.Context, _, hash string) ([]string, bool) {
	ids, ok := f.byHash[hash]
	return ids, ok
}

func newTestPipeline(t *testing.T) (*Pipeline, *vectorindex.MemoryStore) {
	t.Helper()
	vs, _, err := vectorindex.NewMemoryStore(t.TempDir())
	require.NoError(t, err)
	gdb := graph.NewMemoryGraph()
	emb := embed.NewHashEmbedder(16, 1)
	ex := graph.NewDeterministicExtractor()
	return NewPipeline(vs, gdb, emb, ex, nil), vs
}

func TestIngest_CreatedProducesChunksAndEmbeddings(t *testing.T) {
	p, vs := newTestPipeline(t)
	ctx := context.Background()

	text := "# Project Atlas\n\nThis document describes project atlas rollout plans in enough detail to exceed the minimum chunk size so that the chunker emits at least one real window of body text here, padding further to be safe."
	res, err := p.Ingest(ctx, IngestEvent{Kind: EventCreated, SourcePath: "notes/atlas.md", Text: text})
	require.NoError(t, err)
	require.NotEmpty(t, res.ChunkIDs)

	for _, id := range res.ChunkIDs {
		c, err := vs.Get(ctx, id)
		require.NoError(t, err)
		assert.NotEmpty(t, c.Embedding)
	}
}

func TestIngest_EmptyDocumentErrors(t *testing.T) {
	p, _ := newTestPipeline(t)
	_, err := p.Ingest(context.Background(), IngestEvent{Kind: EventCreated, SourcePath: "empty.md", Text: ""})
	assert.ErrorIs(t, err, ErrEmptyDocument)
}

func TestIngest_DeletedRemovesKnownChunks(t *testing.T) {
	p, vs := newTestPipeline(t)
	ctx := context.Background()
	text := "# Deploy Notes\n\nA longer body of text about deployment steps and rollback procedures that should comfortably clear the minimum chunk token threshold for this chunker to emit a window."
	res, err := p.Ingest(ctx, IngestEvent{Kind: EventCreated, SourcePath: "notes/deploy.md", Text: text})
	require.NoError(t, err)
	require.NotEmpty(t, res.ChunkIDs)

	p.Lookup = &fakeLookup{byHash: map[string][]string{"": res.ChunkIDs}}
	delRes, err := p.Ingest(ctx, IngestEvent{Kind: EventDeleted, SourcePath: "notes/deploy.md"})
	require.NoError(t, err)
	assert.Equal(t, len(res.ChunkIDs), delRes.Deleted)

	for _, id := range res.ChunkIDs {
		_, err := vs.Get(ctx, id)
		assert.ErrorIs(t, err, vectorindex.ErrNotFound)
	}
}

func TestIngest_UnchangedChunkSkipsReembedding(t *testing.T) {
	vs, _, err := vectorindex.NewMemoryStore(t.TempDir())
	require.NoError(t, err)
	gdb := graph.NewMemoryGraph()
	emb := embed.NewHashEmbedder(16, 1)
	ex := graph.NewDeterministicExtractor()

	text := "# Stable Notes\n\nThis body of text stays the same across both ingestion attempts and should be recognized as unchanged by content hash lookup on the second pass through this pipeline."
	drafts, _ := chunk.Chunk(chunk.Document{Path: "notes/stable.md", Text: text})
	require.NotEmpty(t, drafts)

	lookup := &fakeLookup{byHash: map[string][]string{}}
	p := NewPipeline(vs, gdb, emb, ex, lookup)

	first, err := p.Ingest(context.Background(), IngestEvent{Kind: EventCreated, SourcePath: "notes/stable.md", Text: text})
	require.NoError(t, err)
	require.False(t, first.Skipped)

	for _, d := range drafts {
		lookup.byHash[d.ContentHash] = first.ChunkIDs
	}

	second, err := p.Ingest(context.Background(), IngestEvent{Kind: EventModified, SourcePath: "notes/stable.md", Text: text})
	require.NoError(t, err)
	assert.True(t, second.Skipped)
}
