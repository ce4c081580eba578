// Package engine wires every capability package into the six named
// operations the dispatch layer exposes (spec §5, §7): vector_search,
// memory_store, graph_query, entity_extraction, hipporag_retrieve, and
// detect_mode. It owns the bounded worker pool, per-chunk striped
// locking, and the deadline/cancellation policy shared by every
// operation.
package engine

import (
	"context"
	"crypto/sha256"
	"errors"
	"runtime"
	"sync"
	"time"

	"mnemosyne/internal/config"
	"mnemosyne/internal/embed"
	"mnemosyne/internal/graph"
	"mnemosyne/internal/ingest"
	"mnemosyne/internal/lifecycle"
	"mnemosyne/internal/retrieve"
	"mnemosyne/internal/trace"
	"mnemosyne/internal/vectorindex"
)

// ErrorKind classifies an EngineError, distinct from model.ErrorType
// (which classifies a completed query's outcome, not an operation's
// immediate failure).
type ErrorKind string

const (
	ErrorKindValidation ErrorKind = "validation"
	ErrorKindNotFound   ErrorKind = "not_found"
	ErrorKindSystem     ErrorKind = "system"
	ErrorKindTimeout    ErrorKind = "timeout"
)

// EngineError is the error type every engine operation returns,
// grounded on the teacher's habit of wrapping failures with the
// operation name and a stable kind for the dispatch layer to branch on
// (mirrored by internal/persistence's sentinel-error-plus-%w pattern
// generalized with an explicit Kind field and QueryID for trace
// correlation).
type EngineError struct {
	Kind    ErrorKind
	Op      string
	QueryID string
	Err     error
}

func (e *EngineError) Error() string {
	if e.QueryID != "" {
		return e.Op + " (" + e.QueryID + "): " + e.Err.Error()
	}
	return e.Op + ": " + e.Err.Error()
}

func (e *EngineError) Unwrap() error { return e.Err }

func newErr(kind ErrorKind, op, queryID string, err error) *EngineError {
	return &EngineError{Kind: kind, Op: op, QueryID: queryID, Err: err}
}

// Engine holds every wired component. Construct with New.
type Engine struct {
	cfg       *config.Config
	vector    vectorindex.VectorStore
	gdb       graph.GraphDB
	embedder  embed.Embedder
	extractor graph.EntityExtractor
	retrieval *retrieve.Pipeline
	ingestion *ingest.Pipeline
	lifecycle *lifecycle.Manager
	traces    trace.TraceStore

	workers chan struct{} // bounded worker pool permits
	locks   *stripedLocks
}

// Deps bundles the already-constructed components New wires together.
// Splitting construction like this (rather than New taking every
// primitive parameter) mirrors the teacher's service-struct-from-
// dependencies pattern in internal/rag/service/service.go.
type Deps struct {
	Config    *config.Config
	Vector    vectorindex.VectorStore
	Graph     graph.GraphDB
	Embedder  embed.Embedder
	Extractor graph.EntityExtractor
	Ingestion *ingest.Pipeline
	Lifecycle *lifecycle.Manager
	Traces    trace.TraceStore
}

// New constructs an Engine. The worker pool is capped at
// min(4, NumCPU) per spec §5.
func New(d Deps) *Engine {
	n := runtime.NumCPU()
	if n > 4 {
		n = 4
	}
	if n < 1 {
		n = 1
	}
	return &Engine{
		cfg:       d.Config,
		vector:    d.Vector,
		gdb:       d.Graph,
		embedder:  d.Embedder,
		extractor: d.Extractor,
		retrieval: retrieve.NewPipeline(d.Vector, d.Graph, d.Embedder, d.Extractor),
		ingestion: d.Ingestion,
		lifecycle: d.Lifecycle,
		traces:    d.Traces,
		workers:   make(chan struct{}, n),
		locks:     newStripedLocks(64),
	}
}

// acquire blocks until a worker-pool slot is free, honoring ctx
// cancellation, and returns a release func.
func (e *Engine) acquire(ctx context.Context) (func(), error) {
	select {
	case e.workers <- struct{}{}:
		return func() { <-e.workers }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// deadline returns a context bounded by 2x the mode's latency budget,
// per spec §5's cooperative-cancellation policy.
func deadline(ctx context.Context, budgetMs int) (context.Context, context.CancelFunc) {
	if budgetMs <= 0 {
		budgetMs = 1000
	}
	return context.WithTimeout(ctx, time.Duration(budgetMs)*2*time.Millisecond)
}

// stripedLocks gives per-chunk-ID mutual exclusion without one lock per
// chunk, grounded on the general striped-lock idiom the teacher applies
// to its in-memory caches (hash the key into a fixed-size lock table).
type stripedLocks struct {
	locks []sync.Mutex
}

func newStripedLocks(n int) *stripedLocks {
	return &stripedLocks{locks: make([]sync.Mutex, n)}
}

func (s *stripedLocks) lockFor(key string) *sync.Mutex {
	h := sha256.Sum256([]byte(key))
	idx := int(h[0]) % len(s.locks)
	return &s.locks[idx]
}

// withChunkLock runs fn while holding the stripe lock for chunkID.
func (e *Engine) withChunkLock(chunkID string, fn func()) {
	l := e.locks.lockFor(chunkID)
	l.Lock()
	defer l.Unlock()
	fn()
}

var errNilDependency = errors.New("engine: required dependency not configured")
