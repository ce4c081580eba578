package retrieve

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mnemosyne/internal/model"
)

func TestFuseRRF_CombinesAcrossTiers(t *testing.T) {
	rankings := []TierRanking{
		{Tier: TierVector, ChunkIDs: []string{"a", "b", "c"}},
		{Tier: TierGraph, ChunkIDs: []string{"b", "a"}},
	}
	out := FuseRRF(rankings, nil)
	require.Len(t, out, 3)
	// "a" appears at rank 1 in vector, rank 2 in graph: 1/61 + 1/62.
	// "b" appears at rank 2 in vector, rank 1 in graph: 1/62 + 1/61.
	// Equal scores; tie-break falls through to chunk_id ascending.
	assert.InDelta(t, out[0].Score, out[1].Score, 1e-9)
	assert.Equal(t, "a", out[0].ChunkID)
	assert.Equal(t, "b", out[1].ChunkID)
	assert.Equal(t, "c", out[2].ChunkID)
}

func TestFuseRRF_TieBreakVerifiedThenRecency(t *testing.T) {
	rankings := []TierRanking{{Tier: TierVector, ChunkIDs: []string{"x", "y"}}}
	meta := map[string]model.Metadata{
		"x": {Verified: false, LastAccessed: time.Unix(100, 0)},
		"y": {Verified: false, LastAccessed: time.Unix(100, 0)},
	}
	// Equal rank (different positions actually differ); use same rank by
	// supplying single-element rankings per id instead.
	rankings = []TierRanking{
		{Tier: TierVector, ChunkIDs: []string{"x"}},
		{Tier: TierGraph, ChunkIDs: []string{"y"}},
	}
	out := FuseRRF(rankings, meta)
	require.Len(t, out, 2)
	assert.InDelta(t, out[0].Score, out[1].Score, 1e-9)
	assert.Equal(t, "x", out[0].ChunkID) // chunk_id ascending tie-break

	// A verified candidate outranks an unverified one at equal score.
	meta["y"] = model.Metadata{Verified: true, LastAccessed: time.Unix(100, 0)}
	out = FuseRRF(rankings, meta)
	require.Len(t, out, 2)
	assert.Equal(t, "y", out[0].ChunkID)

	// At equal score and verified, the more recent last_accessed wins.
	meta["y"] = model.Metadata{Verified: false, LastAccessed: time.Unix(200, 0)}
	out = FuseRRF(rankings, meta)
	require.Len(t, out, 2)
	assert.Equal(t, "y", out[0].ChunkID)
}

func TestApplyLifecycleMultiplier(t *testing.T) {
	assert.Equal(t, 1.0, ApplyLifecycleMultiplier(1.0, model.StageActive))
	assert.InDelta(t, 0.7, ApplyLifecycleMultiplier(1.0, model.StageDemoted), 1e-9)
	assert.InDelta(t, 0.3, ApplyLifecycleMultiplier(1.0, model.StageArchived), 1e-9)
	assert.InDelta(t, 0.3, ApplyLifecycleMultiplier(1.0, model.StageRehydratable), 1e-9)
}
