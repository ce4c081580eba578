// Package lifecycle implements the LifecycleManager (spec §4.6): the
// TTL-driven stage state machine that ages chunks from active through
// demoted, archived, and rehydratable, and the access-accounting buffer
// that feeds last_accessed/access_count back into chunk metadata.
package lifecycle

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"mnemosyne/internal/model"
)

// Thresholds are the age boundaries, in days since last_accessed, at
// which a chunk transitions to the next stage (spec §4.6: demoted@7d,
// archived@30d, rehydratable@90d).
const (
	DemotedAfterDays      = 7
	ArchivedAfterDays     = 30
	RehydratableAfterDays = 90
)

// NextStage computes the stage a chunk should be in given its current
// stage, its last_accessed timestamp, and whether its source document
// still exists. Source deletion tombstones the chunk immediately
// regardless of age (spec §4.6 "tombstoned on source deletion").
//
// The state machine only moves forward: a chunk already further along
// than its age would dictate (e.g. manually archived early) is left
// alone, since recency alone never resurrects a chunk — that is
// rehydrate's job (see Rehydrate).
func NextStage(current model.Stage, lastAccessed, now time.Time, sourceExists bool) (model.Stage, bool) {
	if !sourceExists {
		return model.Stage(StageTombstoned), current != model.Stage(StageTombstoned)
	}

	age := now.Sub(lastAccessed)
	target := current
	switch {
	case age >= RehydratableAfterDays*24*time.Hour:
		target = model.StageRehydratable
	case age >= ArchivedAfterDays*24*time.Hour:
		target = model.StageArchived
	case age >= DemotedAfterDays*24*time.Hour:
		target = model.StageDemoted
	default:
		target = model.StageActive
	}

	if stageRank(target) <= stageRank(current) {
		return current, false
	}
	return target, true
}

// StageTombstoned extends model.Stage with the terminal state a
// source-deleted chunk enters. It lives here rather than in model
// because only the lifecycle state machine ever produces it — a chunk
// in every other package is always one of model's four stages.
const StageTombstoned = "tombstoned"

func stageRank(s model.Stage) int {
	switch s {
	case model.StageActive:
		return 0
	case model.StageDemoted:
		return 1
	case model.StageArchived:
		return 2
	case model.StageRehydratable:
		return 3
	case model.Stage(StageTombstoned):
		return 4
	default:
		return 0
	}
}

// SourceChecker reports whether a chunk's source document still exists,
// e.g. a filesystem stat or a content-store lookup.
type SourceChecker func(ctx context.Context, sourcePath string) bool

// ChunkStore is the subset of vectorindex.VectorStore the sweep needs:
// enough to read and rewrite a chunk's metadata without the manager
// depending on the concrete store package.
type ChunkStore interface {
	Get(ctx context.Context, id string) (model.Chunk, error)
	Upsert(ctx context.Context, chunks []model.Chunk) (int, error)
	Delete(ctx context.Context, ids []string) (int, error)
}

// Summarizer compresses a chunk's text down to the short form stored
// once a chunk reaches archived/rehydratable (spec §4.6 "archived and
// rehydratable stages store a summary, not full text, and are
// re-embedded from the summary").
type Summarizer interface {
	Summarize(ctx context.Context, text string) (string, error)
}

// Embedder is the minimal capability Manager needs to re-embed a
// summary; satisfied by embed.Embedder.
type Embedder interface {
	EncodeSingle(ctx context.Context, text string) ([]float32, error)
}

// defaultSummaryRunes bounds TruncatingSummarizer's output.
const defaultSummaryRunes = 400

// TruncatingSummarizer is the no-external-dependency Summarizer a
// deployment without an LLM summarization capability falls back to: it
// takes the first defaultSummaryRunes runes of text and appends an
// ellipsis marker if anything was cut. Swap in an LLM-backed
// Summarizer (e.g. calling the same embedding_client endpoint) for
// higher-fidelity summaries; the interface is what matters, not this
// implementation.
type TruncatingSummarizer struct{}

func (TruncatingSummarizer) Summarize(_ context.Context, text string) (string, error) {
	r := []rune(text)
	if len(r) <= defaultSummaryRunes {
		return text, nil
	}
	return string(r[:defaultSummaryRunes]) + "...", nil
}

// TransitionEmitter publishes a stage transition for out-of-process
// consumers (e.g. a curation UI watching for newly archived chunks).
// Satisfied by KafkaTransitionEmitter; nil is a valid no-op.
type TransitionEmitter interface {
	Emit(ctx context.Context, t Transition) error
}

// Transition is one chunk's stage change, as published to the
// lifecycle.transitions topic.
type Transition struct {
	ChunkID    string     `json:"chunk_id"`
	SourcePath string     `json:"source_path"`
	From       model.Stage `json:"from"`
	To         model.Stage `json:"to"`
	At         time.Time  `json:"at"`
}

// Manager runs lifecycle sweeps over a chunk store, grounded on the
// teacher's background-sweep services (e.g. internal/workspaces'
// periodic reconciliation loop) generalized to this module's stage
// state machine.
type Manager struct {
	Store      ChunkStore
	Checker    SourceChecker
	Summarizer Summarizer
	Embedder   Embedder
	Accounting *AccessBuffer
	Emitter    TransitionEmitter
}

// NewManager constructs a Manager. summarizer/embedder may be nil, in
// which case Sweep leaves text/embedding untouched on a stage
// transition — acceptable for tests and for deployments that accept a
// period of stale full-text storage before a backfill job catches up.
// emitter may be nil, in which case transitions are not published.
func NewManager(store ChunkStore, checker SourceChecker, summarizer Summarizer, embedder Embedder, buf *AccessBuffer, emitter TransitionEmitter) *Manager {
	return &Manager{Store: store, Checker: checker, Summarizer: summarizer, Embedder: embedder, Accounting: buf, Emitter: emitter}
}

// SweepResult tallies one sweep's outcome.
type SweepResult struct {
	Transitioned map[string]model.Stage
	Tombstoned   []string
	Errors       map[string]error
}

// Sweep evaluates every chunk ID supplied against NextStage and applies
// the resulting transition: a plain stage update for active/demoted
// transitions, or a summarize-and-re-embed for the archived/
// rehydratable transitions, or a delete for tombstoning.
func (m *Manager) Sweep(ctx context.Context, ids []string, now time.Time) SweepResult {
	res := SweepResult{Transitioned: map[string]model.Stage{}, Errors: map[string]error{}}
	for _, id := range ids {
		c, err := m.Store.Get(ctx, id)
		if err != nil {
			res.Errors[id] = err
			continue
		}
		exists := true
		if m.Checker != nil {
			exists = m.Checker(ctx, c.Metadata.SourcePath)
		}
		next, changed := NextStage(c.Metadata.Stage, c.Metadata.LastAccessed, now, exists)
		if !changed {
			continue
		}
		from := c.Metadata.Stage
		if next == model.Stage(StageTombstoned) {
			if _, err := m.Store.Delete(ctx, []string{id}); err != nil {
				res.Errors[id] = err
				continue
			}
			res.Tombstoned = append(res.Tombstoned, id)
			m.emit(ctx, id, c.Metadata.SourcePath, from, next, now)
			continue
		}

		if (next == model.StageArchived || next == model.StageRehydratable) && c.Metadata.Summary == "" {
			if err := m.summarizeAndReembed(ctx, &c); err != nil {
				res.Errors[id] = err
				continue
			}
		}
		c.Metadata.Stage = next
		if _, err := m.Store.Upsert(ctx, []model.Chunk{c}); err != nil {
			res.Errors[id] = err
			continue
		}
		res.Transitioned[id] = next
		m.emit(ctx, id, c.Metadata.SourcePath, from, next, now)
	}
	return res
}

// emit publishes a transition if an emitter is configured, logging and
// swallowing any publish error so a broker outage never fails a sweep.
func (m *Manager) emit(ctx context.Context, chunkID, sourcePath string, from, to model.Stage, at time.Time) {
	if m.Emitter == nil {
		return
	}
	if err := m.Emitter.Emit(ctx, Transition{ChunkID: chunkID, SourcePath: sourcePath, From: from, To: to, At: at}); err != nil {
		log.Warn().Err(err).Str("chunk_id", chunkID).Msg("lifecycle transition publish failed")
	}
}

func (m *Manager) summarizeAndReembed(ctx context.Context, c *model.Chunk) error {
	if m.Summarizer == nil || m.Embedder == nil {
		return nil
	}
	summary, err := m.Summarizer.Summarize(ctx, c.Text)
	if err != nil {
		return err
	}
	vec, err := m.Embedder.EncodeSingle(ctx, summary)
	if err != nil {
		return err
	}
	c.Metadata.Summary = summary
	c.Metadata.SummaryAt = time.Now().UTC()
	c.Text = summary
	c.Embedding = vec
	return nil
}

// Rehydrate restores a rehydratable chunk to active status, re-fetching
// its source text rather than re-expanding the summary, per spec §4.6
// ("rehydration re-reads the source, it does not un-summarize"). The
// caller supplies the freshly re-read full text and embedding.
func (m *Manager) Rehydrate(ctx context.Context, id, fullText string, embedding []float32) error {
	c, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	c.Text = fullText
	c.Embedding = embedding
	c.Metadata.Stage = model.StageActive
	c.Metadata.Summary = ""
	c.Metadata.LastAccessed = time.Now().UTC()
	_, err = m.Store.Upsert(ctx, []model.Chunk{c})
	return err
}

// TagLifecycle is the curator-facing stub spec §4.6 names: an explicit
// operator override that forces a chunk to a stage outside the normal
// age-driven sweep (e.g. pinning a chunk active, or archiving it early).
func (m *Manager) TagLifecycle(ctx context.Context, id string, stage model.Stage) error {
	c, err := m.Store.Get(ctx, id)
	if err != nil {
		return err
	}
	c.Metadata.Stage = stage
	_, err = m.Store.Upsert(ctx, []model.Chunk{c})
	return err
}
