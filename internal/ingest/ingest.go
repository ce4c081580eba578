// Package ingest orchestrates the write path: chunk a source document,
// embed the chunks, and pair them into the vector and entity-graph
// indices transactionally, per spec §4.2. Grounded on the teacher's
// internal/rag/ingest package (api.go/idempotency.go/index_vector.go),
// generalized from its FTS+vector+graph triple to this module's
// vector+graph pair.
package ingest

import (
	"context"
	"errors"
	"time"

	"mnemosyne/internal/chunk"
	"mnemosyne/internal/embed"
	"mnemosyne/internal/graph"
	"mnemosyne/internal/model"
	"mnemosyne/internal/vectorindex"
)

// ErrEmptyDocument is returned when a document has no chunkable text.
var ErrEmptyDocument = errors.New("ingest: document produced no chunks")

// EventKind enumerates the acceptable IngestEvent triggers (spec §4.2
// "Created/Modified/Deleted").
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
)

// IngestEvent is one unit of write work.
type IngestEvent struct {
	Kind       EventKind
	SourcePath string
	Text       string // empty for EventDeleted
	Tags       model.Tags
	Category   string
}

// Result summarizes one IngestEvent's outcome.
type Result struct {
	SourcePath string
	ChunkIDs   []string
	Skipped    bool // true when idempotency resolved to "unchanged"
	Deleted    int
}

// DocumentLookup resolves whether a source path's current content hash
// already matches an indexed chunk, for idempotent re-ingestion.
// Grounded on the teacher's ingest.DocumentLookup.
type DocumentLookup interface {
	LookupByHash(ctx context.Context, sourcePath, contentHash string) (chunkIDs []string, ok bool)
}

// Pipeline wires the write-path dependencies together.
type Pipeline struct {
	Vector    vectorindex.VectorStore
	Graph     graph.GraphDB
	Embedder  embed.Embedder
	Extractor graph.EntityExtractor
	Lookup    DocumentLookup
}

// NewPipeline constructs a write-path Pipeline.
func NewPipeline(vs vectorindex.VectorStore, gdb graph.GraphDB, emb embed.Embedder, ex graph.EntityExtractor, lookup DocumentLookup) *Pipeline {
	return &Pipeline{Vector: vs, Graph: gdb, Embedder: emb, Extractor: ex, Lookup: lookup}
}

// Ingest applies one IngestEvent. Created/Modified share a path: chunk,
// check idempotency per-chunk, embed the changed chunks, and pair the
// vector upsert with a graph update. If the graph half fails after the
// vector half succeeded, the chunks just upserted are deleted from the
// vector store again; graph nodes and edges written before the failure
// are not removed.
func (p *Pipeline) Ingest(ctx context.Context, ev IngestEvent) (Result, error) {
	switch ev.Kind {
	case EventDeleted:
		return p.ingestDeleted(ctx, ev)
	case EventCreated, EventModified:
		return p.ingestUpsert(ctx, ev)
	default:
		return Result{}, errors.New("ingest: unknown event kind")
	}
}

func (p *Pipeline) ingestUpsert(ctx context.Context, ev IngestEvent) (Result, error) {
	drafts, _ := chunk.Chunk(chunk.Document{Path: ev.SourcePath, Text: ev.Text})
	if len(drafts) == 0 {
		return Result{}, ErrEmptyDocument
	}

	var toEmbed []chunk.Draft
	var chunkIDs []string
	now := time.Now().UTC()

	for _, d := range drafts {
		id := model.ChunkID(d.SourcePath, d.Index, d.ContentHash)
		chunkIDs = append(chunkIDs, id)
		if p.Lookup != nil {
			if existing, ok := p.Lookup.LookupByHash(ctx, d.SourcePath, d.ContentHash); ok && containsID(existing, id) {
				continue // unchanged chunk, skip re-embedding
			}
		}
		toEmbed = append(toEmbed, d)
	}

	if len(toEmbed) == 0 {
		return Result{SourcePath: ev.SourcePath, ChunkIDs: chunkIDs, Skipped: true}, nil
	}

	texts := make([]string, len(toEmbed))
	for i, d := range toEmbed {
		texts[i] = d.Text
	}
	vecs, err := p.Embedder.EncodeBatch(ctx, texts)
	if err != nil {
		return Result{}, err
	}

	chunks := make([]model.Chunk, len(toEmbed))
	for i, d := range toEmbed {
		chunks[i] = model.Chunk{
			ID:          model.ChunkID(d.SourcePath, d.Index, d.ContentHash),
			Text:        d.Text,
			Embedding:   vecs[i],
			ContentHash: d.ContentHash,
			TokenCount:  d.TokenCount,
			Metadata: model.Metadata{
				SourcePath:   d.SourcePath,
				ChunkIndex:   d.Index,
				Stage:        model.StageActive,
				Layer:        model.LayerShortTerm,
				Tags:         ev.Tags,
				Category:     ev.Category,
				LastAccessed: now,
				Kind:         d.Kind,
			},
		}
	}

	if _, err := p.Vector.Upsert(ctx, chunks); err != nil {
		return Result{}, err
	}

	if err := p.pairGraph(ctx, chunks); err != nil {
		// Roll back the vector half; graph writes already made stay in place.
		ids := make([]string, len(chunks))
		for i, c := range chunks {
			ids[i] = c.ID
		}
		_, _ = p.Vector.Delete(ctx, ids)
		return Result{}, err
	}

	return Result{SourcePath: ev.SourcePath, ChunkIDs: chunkIDs}, nil
}

func (p *Pipeline) pairGraph(ctx context.Context, chunks []model.Chunk) error {
	if p.Graph == nil || p.Extractor == nil {
		return nil
	}
	for _, c := range chunks {
		if err := p.Graph.AddChunkNode(ctx, c.ID, c.Metadata); err != nil {
			return err
		}
		extracted, err := p.Extractor.Extract(ctx, c.Text)
		if err != nil {
			return err
		}
		for _, e := range extracted {
			surface := graph.NormalizeSurface(e.Surface)
			entity, err := p.Graph.AddEntity(ctx, model.Entity{ID: surface, CanonicalName: e.Surface, Type: e.Type, FirstSeen: time.Now().UTC(), MentionCount: 1})
			if err != nil {
				return err
			}
			if err := p.Graph.AddEdge(ctx, c.ID, entity.ID, model.EdgeMentions, 1.0, 1.0); err != nil {
				return err
			}
		}
	}
	return nil
}

func (p *Pipeline) ingestDeleted(ctx context.Context, ev IngestEvent) (Result, error) {
	var toDelete []string
	if p.Lookup != nil {
		if existing, ok := p.Lookup.LookupByHash(ctx, ev.SourcePath, ""); ok {
			toDelete = existing
		}
	}
	if len(toDelete) == 0 {
		return Result{SourcePath: ev.SourcePath}, nil
	}
	n, err := p.Vector.Delete(ctx, toDelete)
	if err != nil {
		return Result{}, err
	}
	return Result{SourcePath: ev.SourcePath, Deleted: n}, nil
}

func containsID(ids []string, target string) bool {
	for _, id := range ids {
		if id == target {
			return true
		}
	}
	return false
}
