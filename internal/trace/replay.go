package trace

import (
	"context"
	"time"

	"mnemosyne/internal/embed"
	"mnemosyne/internal/graph"
	"mnemosyne/internal/model"
	"mnemosyne/internal/retrieve"
	"mnemosyne/internal/vectorindex"
)

// SnapshotProvider resolves the vector/graph state that was in effect
// at or before a given timestamp, per spec §4.7's determinism
// requirement ("replay re-runs against the indices as they stood at
// the original query time, not today's"). A real deployment backs this
// with periodic snapshots; tests can supply a provider that always
// returns the current live state.
type SnapshotProvider interface {
	VectorStoreAt(ctx context.Context, ts time.Time) (vectorindex.VectorStore, bool)
	GraphAt(ctx context.Context, ts time.Time) (graph.GraphDB, bool)
}

// ReplayResult compares a fresh run of the trace's query against the
// originally recorded output.
type ReplayResult struct {
	Original  model.QueryTrace
	Replayed  retrieve.Response
	Identical bool
	Diff      []string
}

// Replay re-executes a recorded query deterministically: same snapshot,
// same embedder (the pipeline's, assumed content-addressed and
// therefore deterministic), same PPR parameters and seed order pinned
// via the trace's recorded PPRAlpha/PPRMaxIter/PPRTol/PPRSeedOrder. If
// no snapshot exists at the trace's timestamp, replay fails closed with
// ErrReplayUnavailable rather than silently running against live
// indices (spec §4.7).
func Replay(ctx context.Context, store TraceStore, snapshots SnapshotProvider, emb embed.Embedder, extractor graph.EntityExtractor, queryID string) (ReplayResult, error) {
	orig, err := store.Get(ctx, queryID)
	if err != nil {
		return ReplayResult{}, err
	}

	vs, ok := snapshots.VectorStoreAt(ctx, orig.Timestamp)
	if !ok {
		return ReplayResult{}, ErrReplayUnavailable
	}
	gdb, ok := snapshots.GraphAt(ctx, orig.Timestamp)
	if !ok {
		return ReplayResult{}, ErrReplayUnavailable
	}

	pipeline := retrieve.NewPipeline(vs, gdb, emb, extractor)
	resp, err := pipeline.Run(ctx, orig.Query)
	if err != nil {
		return ReplayResult{}, err
	}

	diff := diffAgainstOriginal(orig, resp)
	return ReplayResult{Original: orig, Replayed: resp, Identical: len(diff) == 0, Diff: diff}, nil
}

func diffAgainstOriginal(orig model.QueryTrace, resp retrieve.Response) []string {
	var diffs []string
	if string(orig.ModeDetected) != string(resp.Mode.Name) {
		diffs = append(diffs, "mode_detected: "+string(orig.ModeDetected)+" -> "+string(resp.Mode.Name))
	}
	replayedIDs := make(map[string]bool, len(resp.Core))
	for _, c := range resp.Core {
		replayedIDs[c.ID] = true
	}
	for _, ref := range orig.RetrievedChunks {
		if !replayedIDs[ref.ChunkID] {
			diffs = append(diffs, "missing_chunk: "+ref.ChunkID)
		}
	}
	return diffs
}
