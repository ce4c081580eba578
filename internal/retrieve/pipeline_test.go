package retrieve

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"mnemosyne/internal/embed"
	"mnemosyne/internal/graph"
	"mnemosyne/internal/model"
	"mnemosyne/internal/vectorindex"
)

func newTestPipeline(t *testing.T) (*Pipeline, *vectorindex.MemoryStore, *graph.MemoryGraph) {
	t.Helper()
	vs, _, err := vectorindex.NewMemoryStore(t.TempDir())
	require.NoError(t, err)
	gdb := graph.NewMemoryGraph()
	emb := embed.NewHashEmbedder(32, 1)
	ex := graph.NewDeterministicExtractor()
	return NewPipeline(vs, gdb, emb, ex), vs, gdb
}

func mustEmbed(t *testing.T, e embed.Embedder, text string) []float32 {
	t.Helper()
	v, err := e.EncodeSingle(context.Background(), text)
	require.NoError(t, err)
	return v
}

func TestPipeline_Run_VectorOnlyRecall(t *testing.T) {
	p, vs, _ := newTestPipeline(t)
	ctx := context.Background()
	emb := embed.NewHashEmbedder(32, 1)

	chunk := model.Chunk{
		ID:   "c1",
		Text: "deploy the release to production",
		Embedding: mustEmbed(t, emb, "deploy the release to production"),
		Metadata: model.Metadata{Stage: model.StageActive, LastAccessed: time.Now()},
		TokenCount: 10,
	}
	_, err := vs.Upsert(ctx, []model.Chunk{chunk})
	require.NoError(t, err)

	resp, err := p.Run(ctx, "deploy the release to production")
	require.NoError(t, err)
	require.Equal(t, model.ModeExecution, resp.Mode.Name)
	require.NotEmpty(t, resp.Core)
	require.Equal(t, "c1", resp.Core[0].ID)
}

func TestPipeline_Run_NoCandidatesReturnsEmptyResponse(t *testing.T) {
	p, _, _ := newTestPipeline(t)
	resp, err := p.Run(context.Background(), "fix the deploy")
	require.NoError(t, err)
	require.Empty(t, resp.Core)
	require.Empty(t, resp.Extended)
}

func TestPipeline_Run_ArchivedChunkFilteredUnlessHistorical(t *testing.T) {
	p, vs, _ := newTestPipeline(t)
	ctx := context.Background()
	emb := embed.NewHashEmbedder(32, 1)

	text := "deploy the rollout sequence to staging region two"
	chunk := model.Chunk{
		ID:         "archived1",
		Text:       text,
		Embedding:  mustEmbed(t, emb, text),
		Metadata:   model.Metadata{Stage: model.StageArchived, LastAccessed: time.Now()},
		TokenCount: 8,
	}
	_, err := vs.Upsert(ctx, []model.Chunk{chunk})
	require.NoError(t, err)

	resp, err := p.Run(ctx, text)
	require.NoError(t, err)
	require.Empty(t, resp.Core, "archived chunk should be filtered for a non-historical query")
}

func TestPipeline_Run_DeduplicatesIdenticalText(t *testing.T) {
	p, vs, _ := newTestPipeline(t)
	ctx := context.Background()
	emb := embed.NewHashEmbedder(32, 1)
	text := "build the release artifact"
	vec := mustEmbed(t, emb, text)

	_, err := vs.Upsert(ctx, []model.Chunk{
		{ID: "d1", Text: text, Embedding: vec, Metadata: model.Metadata{Stage: model.StageActive}, TokenCount: 5, ContentHash: "same"},
		{ID: "d2", Text: text, Embedding: vec, Metadata: model.Metadata{Stage: model.StageActive}, TokenCount: 5, ContentHash: "same"},
	})
	require.NoError(t, err)

	resp, err := p.Run(ctx, text)
	require.NoError(t, err)
	require.Len(t, resp.Core, 1)
}
