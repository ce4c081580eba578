package retrieve

import (
	"context"

	"mnemosyne/internal/model"
)

// verifyTopN is the stage-A candidate window (spec §4.5.4: "verify the
// top 20 fused candidates").
const verifyTopN = 20

// conditionalThreshold (τ) gates planning-mode verification: only
// candidates below this fused score get the stage-B check (spec
// §4.5.4).
const conditionalThreshold = 0.3

// verify runs the two-stage verification pass over fused, per the
// mode's Verification setting:
//   - on (execution): every one of the top verifyTopN candidates is
//     checked.
//   - conditional (planning): only candidates scoring below τ are
//     checked — the high-scoring ones are trusted without the stage-B
//     cost.
//   - off (brainstorming): skipped entirely.
//
// A failed check does not remove the candidate; it demotes
// verified=false on the returned map, leaving ranking/filtering to
// whoever reads it next.
func (p *Pipeline) verify(ctx context.Context, fused []FusedCandidate, mode model.ModeProfile) map[string]bool {
	if mode.Verification == model.VerificationOff {
		return nil
	}

	n := len(fused)
	if n > verifyTopN {
		n = verifyTopN
	}

	out := make(map[string]bool, n)
	for i := 0; i < n; i++ {
		c := fused[i]
		if mode.Verification == model.VerificationConditional && c.Score >= conditionalThreshold {
			continue
		}
		out[c.ChunkID] = p.groundTruthCheck(ctx, c.ChunkID)
	}
	return out
}

// groundTruthCheck is stage B (spec §4.5.4): confirm at least one
// entity the chunk mentions also appears as a graph node with ≥1
// edge — a chunk whose mentioned entities never made it into the
// entity graph with any real connectivity has no ground-truth support
// for its claims. There is no dedicated teacher file for this step (no
// example repo implements a verification pass); consulting p.Graph
// here follows the teacher's general habit of treating the store of
// record, not cached candidate data, as ground truth.
func (p *Pipeline) groundTruthCheck(ctx context.Context, chunkID string) bool {
	entityIDs, err := p.Graph.MentionedEntities(ctx, chunkID)
	if err != nil {
		return false
	}
	for _, entityID := range entityIDs {
		degree, err := p.Graph.Degree(ctx, entityID)
		if err != nil {
			continue
		}
		if degree >= 1 {
			return true
		}
	}
	return false
}
