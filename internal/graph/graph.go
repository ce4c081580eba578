// Package graph implements the GraphIndex + EntityExtractor capability
// (spec §4.4): typed entity/edge storage, BFS multi-hop neighbor
// discovery, and Personalized PageRank over the entity-mention graph.
package graph

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"mnemosyne/internal/model"
)

// Node is a minimal graph node: either a chunk or an entity, keyed by
// the same ID space as model.Chunk.ID / model.Entity.ID. Grounded on
// internal/persistence/databases/interfaces.go's Node.
type Node struct {
	ID     string
	Labels []string
}

// NeighborResult is one BFS hit: the node, its hop distance from the
// seed, and one shortest path from seed to node (spec §4.4 "neighbors").
type NeighborResult struct {
	NodeID   string
	Distance int
	Path     []string
}

// PPRResult is the outcome of a personalized_pagerank call: the
// per-node score mapping plus whether the iteration converged within
// max_iter (recorded in the trace per spec §4.4).
type PPRResult struct {
	Scores    map[string]float64
	Converged bool
	Iters     int
}

// RankedChunk is one row of rank_chunks_by_ppr's output.
type RankedChunk struct {
	ChunkID      string
	Score        float64
	LastAccessed time.Time
}

// GraphDB is the capability interface for entity-graph storage and
// traversal, grounded on internal/persistence/databases/interfaces.go's
// GraphDB (UpsertNode/UpsertEdge/Neighbors/GetNode), extended with
// typed entities/edges, BFS-with-path, and PPR per spec §4.4.
type GraphDB interface {
	AddChunkNode(ctx context.Context, chunkID string, metadata model.Metadata) error
	AddEntity(ctx context.Context, e model.Entity) (model.Entity, error)
	AddEdge(ctx context.Context, from, to string, edgeType model.EdgeType, weight, confidence float64) error
	Neighbors(ctx context.Context, entityID string, depth int, edgeTypes []model.EdgeType) ([]NeighborResult, error)
	PersonalizedPageRank(ctx context.Context, seeds []string, alpha float64, maxIter int, tol float64) (PPRResult, error)
	RankChunksByPPR(ctx context.Context, scores map[string]float64, topK int) ([]RankedChunk, error)
	GetEntity(ctx context.Context, entityID string) (model.Entity, bool)
	// MentionedEntities returns the entity IDs chunkID mentions, per the
	// EdgeMentions edges recorded at ingest time.
	MentionedEntities(ctx context.Context, chunkID string) ([]string, error)
	// Degree returns the number of edges incident to nodeID, counting
	// both outgoing edges and edges from other nodes that target it.
	Degree(ctx context.Context, nodeID string) (int, error)
}

// MemoryGraph is the in-process adjacency-list implementation: nodes
// keyed by ID, edges stored per-source keyed by (dest,type) so a
// duplicate upsert can apply the spec's max-upgrade rule.
type MemoryGraph struct {
	mu sync.RWMutex

	entities map[string]model.Entity
	chunks   map[string]model.Metadata
	// mentions[chunkID] = set of entity IDs the chunk mentions (EdgeMentions).
	mentions map[string]map[string]bool
	// edges[from][edgeKey(to,type)] = edge
	edges map[string]map[string]model.Edge
}

func NewMemoryGraph() *MemoryGraph {
	return &MemoryGraph{
		entities: make(map[string]model.Entity),
		chunks:   make(map[string]model.Metadata),
		mentions: make(map[string]map[string]bool),
		edges:    make(map[string]map[string]model.Edge),
	}
}

func edgeKey(to string, t model.EdgeType) string { return string(t) + "\x00" + to }

func (g *MemoryGraph) AddChunkNode(_ context.Context, chunkID string, metadata model.Metadata) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chunks[chunkID] = metadata
	if _, ok := g.mentions[chunkID]; !ok {
		g.mentions[chunkID] = make(map[string]bool)
	}
	return nil
}

// AddEntity inserts or merges with an existing entity_id, incrementing
// mention_count on merge, per spec §4.4.
func (g *MemoryGraph) AddEntity(_ context.Context, e model.Entity) (model.Entity, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	existing, ok := g.entities[e.ID]
	if !ok {
		if e.FirstSeen.IsZero() {
			e.FirstSeen = time.Time{}
		}
		if e.MentionCount == 0 {
			e.MentionCount = 1
		}
		g.entities[e.ID] = e
		return e, nil
	}
	inc := e.MentionCount
	if inc == 0 {
		inc = 1
	}
	existing.MentionCount += inc
	g.entities[e.ID] = existing
	return existing, nil
}

// AddEdge inserts an edge; a duplicate (same from/to/type) upgrades
// weight and confidence by max, per spec §4.4.
func (g *MemoryGraph) AddEdge(_ context.Context, from, to string, edgeType model.EdgeType, weight, confidence float64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if edgeType == model.EdgeMentions {
		if _, ok := g.mentions[from]; !ok {
			g.mentions[from] = make(map[string]bool)
		}
		g.mentions[from][to] = true
	}
	if _, ok := g.edges[from]; !ok {
		g.edges[from] = make(map[string]model.Edge)
	}
	k := edgeKey(to, edgeType)
	if existing, ok := g.edges[from][k]; ok {
		g.edges[from][k] = model.Edge{
			From: from, To: to, Type: edgeType,
			Weight:     maxF(existing.Weight, weight),
			Confidence: maxF(existing.Confidence, confidence),
		}
		return nil
	}
	g.edges[from][k] = model.Edge{From: from, To: to, Type: edgeType, Weight: weight, Confidence: confidence}
	return nil
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}

func (g *MemoryGraph) GetEntity(_ context.Context, entityID string) (model.Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entities[entityID]
	return e, ok
}

// MentionedEntities returns the entity IDs chunkID mentions, in no
// particular order.
func (g *MemoryGraph) MentionedEntities(_ context.Context, chunkID string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	mentioned := g.mentions[chunkID]
	out := make([]string, 0, len(mentioned))
	for entityID := range mentioned {
		out = append(out, entityID)
	}
	return out, nil
}

// Degree counts edges incident to nodeID: outgoing edges stored under
// g.edges[nodeID], plus edges from any other node that target it.
func (g *MemoryGraph) Degree(_ context.Context, nodeID string) (int, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := len(g.edges[nodeID])
	for from, edges := range g.edges {
		if from == nodeID {
			continue
		}
		for _, e := range edges {
			if e.To == nodeID {
				n++
			}
		}
	}
	return n, nil
}

// Neighbors performs a BFS out to depth hops, filtered to edgeTypes
// (all types, if empty), returning each reachable node with its shortest
// distance and one shortest path. Grounded on spec §4.4's "Multi-hop
// expansion".
func (g *MemoryGraph) Neighbors(_ context.Context, entityID string, depth int, edgeTypes []model.EdgeType) ([]NeighborResult, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return bfs(g.edges, entityID, depth, edgeTypes), nil
}

// RankChunksByPPR aggregates PPR scores of entities each chunk mentions
// into a per-chunk score (spec §4.4 "Chunk aggregation"), ties broken
// by last_accessed descending, then chunk_id.
func (g *MemoryGraph) RankChunksByPPR(_ context.Context, scores map[string]float64, topK int) ([]RankedChunk, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	ranked := make([]RankedChunk, 0, len(g.chunks))
	for chunkID, md := range g.chunks {
		var sum float64
		for entityID := range g.mentions[chunkID] {
			sum += scores[entityID]
		}
		if sum == 0 {
			continue
		}
		ranked = append(ranked, RankedChunk{ChunkID: chunkID, Score: sum, LastAccessed: md.LastAccessed})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if !ranked[i].LastAccessed.Equal(ranked[j].LastAccessed) {
			return ranked[i].LastAccessed.After(ranked[j].LastAccessed)
		}
		return ranked[i].ChunkID < ranked[j].ChunkID
	})
	if topK > 0 && len(ranked) > topK {
		ranked = ranked[:topK]
	}
	return ranked, nil
}

// normalizeSurface maps an entity surface form to its canonical entity
// id; exported to EntityExtractor callers as NormalizeSurface.
func normalizeSurface(surface string) string {
	lower := strings.ToLower(surface)
	var b strings.Builder
	lastUnderscore := false
	for _, r := range lower {
		switch {
		case r == ' ' || r == '\t' || r == '\n':
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		case isPunct(r):
			continue
		default:
			b.WriteRune(r)
			lastUnderscore = false
		}
	}
	return strings.Trim(b.String(), "_")
}

func isPunct(r rune) bool {
	switch r {
	case '.', ',', ';', ':', '!', '?', '"', '\'', '(', ')', '[', ']', '{', '}':
		return true
	}
	return false
}
