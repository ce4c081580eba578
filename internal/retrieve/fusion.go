package retrieve

import (
	"sort"

	"mnemosyne/internal/model"
)

const rrfK = 60

// TierRanking is one tier's ordered candidate list (1-based rank
// implied by slice position), feeding Reciprocal Rank Fusion.
type TierRanking struct {
	Tier    Tier
	ChunkIDs []string
}

// FusedCandidate is one RRF output row, grounded on the teacher's
// fusedCandidate (internal/rag/retrieve/fusion.go), generalized from a
// two-source (FTS/vector) fusion to an arbitrary tier count and to the
// spec's exact tie-break rule (verified, then last_accessed, then
// chunk_id).
type FusedCandidate struct {
	ChunkID      string
	Score        float64
	Verified     bool
	LastAccessed int64 // unix seconds, for deterministic comparisons
}

// FuseRRF combines per-tier rankings with Reciprocal Rank Fusion:
// score(c) = Σ_tier 1/(60+rank_tier(c)); tiers absent for a candidate
// contribute 0 (spec §4.5.3 step 4).
func FuseRRF(rankings []TierRanking, meta map[string]model.Metadata) []FusedCandidate {
	scores := make(map[string]float64)
	for _, r := range rankings {
		for i, id := range r.ChunkIDs {
			rank := i + 1
			scores[id] += 1.0 / float64(rrfK+rank)
		}
	}
	out := make([]FusedCandidate, 0, len(scores))
	for id, score := range scores {
		md := meta[id]
		out = append(out, FusedCandidate{
			ChunkID:      id,
			Score:        score,
			Verified:     md.Verified,
			LastAccessed: md.LastAccessed.Unix(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		if out[i].Verified != out[j].Verified {
			return out[i].Verified
		}
		if out[i].LastAccessed != out[j].LastAccessed {
			return out[i].LastAccessed > out[j].LastAccessed
		}
		return out[i].ChunkID < out[j].ChunkID
	})
	return out
}

// ApplyLifecycleMultiplier scales a fused score by the stage multiplier
// (spec §4.6: demoted ×0.7, archived ×0.3, rehydratable treated as
// archived for ranking purposes since both serve only a summary).
func ApplyLifecycleMultiplier(score float64, stage model.Stage) float64 {
	switch stage {
	case model.StageDemoted:
		return score * 0.7
	case model.StageArchived, model.StageRehydratable:
		return score * 0.3
	default:
		return score
	}
}
