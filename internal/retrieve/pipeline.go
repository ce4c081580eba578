package retrieve

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strings"

	"golang.org/x/sync/errgroup"

	"mnemosyne/internal/embed"
	"mnemosyne/internal/graph"
	"mnemosyne/internal/model"
	"mnemosyne/internal/vectorindex"
)

// Errors per spec §4.5.5 failure semantics.
var (
	ErrVectorTierFailed = errors.New("retrieve: vector tier failed")
)

// Response is the pipeline's output: core and extended chunks, the
// detected mode and its confidence, and the routing decision. It carries
// no trace id; the caller records any trace.
type Response struct {
	Core        []model.Chunk
	Extended    []model.Chunk
	Mode        model.ModeProfile
	ModeConfidence float64
	Route       Route
	GraphDegraded bool
	Verified    map[string]bool // chunk_id -> verification outcome when verification ran
}

// Pipeline wires the capability interfaces RetrievalCore depends on,
// grounded on internal/rag/service/service.go's dependency-injected
// service construction.
type Pipeline struct {
	Vector    vectorindex.VectorStore
	Graph     graph.GraphDB
	Embedder  embed.Embedder
	Extractor graph.EntityExtractor
	Modes     map[model.ModeName]model.ModeProfile
}

// NewPipeline constructs a Pipeline with the spec's canonical mode
// profiles unless overridden by the caller.
func NewPipeline(vs vectorindex.VectorStore, gdb graph.GraphDB, emb embed.Embedder, ex graph.EntityExtractor) *Pipeline {
	return &Pipeline{Vector: vs, Graph: gdb, Embedder: emb, Extractor: ex, Modes: model.CanonicalModes()}
}

// Run executes the full RECALL/FILTER/DEDUPLICATE/RANK/COMPRESS
// pipeline for query, per spec §4.5.3.
func (p *Pipeline) Run(ctx context.Context, query string) (Response, error) {
	mode, confidence := DetectMode(query, p.Modes)

	entities, _ := p.Extractor.Extract(ctx, query)
	surfaces := make([]string, 0, len(entities))
	for _, e := range entities {
		surfaces = append(surfaces, graph.NormalizeSurface(e.Surface))
	}
	route := RouteQuery(query, mode, surfaces, p.knownEntityLookup(ctx))

	recallSize := 3 * (mode.CoreSize + mode.ExtendedSize)
	if recallSize <= 0 {
		recallSize = 30
	}

	rankings, graphDegraded, err := p.recall(ctx, query, route, recallSize, mode)
	if err != nil {
		return Response{}, err
	}
	if len(rankings) == 0 {
		return Response{Mode: mode, ModeConfidence: confidence, Route: route, GraphDegraded: graphDegraded}, nil
	}

	candidateIDs := unionIDs(rankings)
	chunksByID, err := p.fetchChunks(ctx, candidateIDs)
	if err != nil {
		return Response{}, err
	}

	filtered := filterStage(candidateIDs, chunksByID, mode, route.Historical)
	deduped := deduplicateStage(filtered, chunksByID)

	meta := make(map[string]model.Metadata, len(chunksByID))
	for id, c := range chunksByID {
		meta[id] = c.Metadata
	}
	fused := FuseRRF(filterRankings(rankings, deduped), meta)
	for i := range fused {
		fused[i].Score = ApplyLifecycleMultiplier(fused[i].Score, chunksByID[fused[i].ChunkID].Metadata.Stage)
	}
	sort.Slice(fused, func(i, j int) bool {
		if fused[i].Score != fused[j].Score {
			return fused[i].Score > fused[j].Score
		}
		if fused[i].Verified != fused[j].Verified {
			return fused[i].Verified
		}
		if fused[i].LastAccessed != fused[j].LastAccessed {
			return fused[i].LastAccessed > fused[j].LastAccessed
		}
		return fused[i].ChunkID < fused[j].ChunkID
	})

	verifiedFlags := p.verify(ctx, fused, mode)

	core, extended := compressAndCurate(fused, chunksByID, mode)

	return Response{
		Core: core, Extended: extended,
		Mode: mode, ModeConfidence: confidence,
		Route: route, GraphDegraded: graphDegraded,
		Verified: verifiedFlags,
	}, nil
}

func (p *Pipeline) knownEntityLookup(ctx context.Context) EntityLookup {
	return func(surface string) bool {
		_, ok := p.Graph.GetEntity(ctx, surface)
		return ok
	}
}

// recall queries each selected tier in parallel (spec §4.5.3 step 1).
// A graph-tier failure degrades to vector-only per spec §4.5.5; a
// vector-tier failure fails the whole query.
func (p *Pipeline) recall(ctx context.Context, query string, route Route, limit int, mode model.ModeProfile) ([]TierRanking, bool, error) {
	g, gctx := errgroup.WithContext(ctx)
	var vectorIDs []string
	var graphDegraded bool

	wantVector := containsTier(route.Tiers, TierVector)
	wantGraph := containsTier(route.Tiers, TierGraph)
	wantPPR := containsTier(route.Tiers, TierMultiHopPPR) && mode.Name != model.ModeExecution

	if wantVector {
		g.Go(func() error {
			vec, err := p.Embedder.EncodeSingle(gctx, query)
			if err != nil {
				return ErrVectorTierFailed
			}
			results, err := p.Vector.Search(gctx, vec, limit, vectorindex.Filter{})
			if err != nil {
				return ErrVectorTierFailed
			}
			ids := make([]string, len(results))
			for i, r := range results {
				ids[i] = r.ChunkID
			}
			vectorIDs = ids
			return nil
		})
	}

	var graphIDs []string
	if wantGraph {
		g.Go(func() error {
			entities, err := p.Extractor.Extract(gctx, query)
			if err != nil {
				graphDegraded = true
				return nil
			}
			seeds := make([]string, 0, len(entities))
			for _, e := range entities {
				seeds = append(seeds, graph.NormalizeSurface(e.Surface))
			}
			if len(seeds) == 0 {
				return nil
			}
			maxIter := 100
			if !wantPPR {
				maxIter = 1
			}
			res, err := p.Graph.PersonalizedPageRank(gctx, seeds, 0.85, maxIter, 1e-6)
			if err != nil {
				graphDegraded = true
				return nil
			}
			ranked, err := p.Graph.RankChunksByPPR(gctx, res.Scores, limit)
			if err != nil {
				graphDegraded = true
				return nil
			}
			ids := make([]string, len(ranked))
			for i, r := range ranked {
				ids[i] = r.ChunkID
			}
			graphIDs = ids
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, false, err
	}

	var rankings []TierRanking
	if wantVector {
		rankings = append(rankings, TierRanking{Tier: TierVector, ChunkIDs: vectorIDs})
	}
	if wantGraph && graphIDs != nil {
		rankings = append(rankings, TierRanking{Tier: TierGraph, ChunkIDs: graphIDs})
	}
	return rankings, graphDegraded, nil
}

func containsTier(tiers []Tier, t Tier) bool {
	for _, x := range tiers {
		if x == t {
			return true
		}
	}
	return false
}

func unionIDs(rankings []TierRanking) []string {
	seen := make(map[string]bool)
	var out []string
	for _, r := range rankings {
		for _, id := range r.ChunkIDs {
			if !seen[id] {
				seen[id] = true
				out = append(out, id)
			}
		}
	}
	return out
}

func (p *Pipeline) fetchChunks(ctx context.Context, ids []string) (map[string]model.Chunk, error) {
	out := make(map[string]model.Chunk, len(ids))
	for _, id := range ids {
		c, err := p.Vector.Get(ctx, id)
		if err != nil {
			continue // chunk may have been deleted between recall and fetch
		}
		out[id] = c
	}
	return out, nil
}

// filterStage applies metadata filters: stage != archived unless the
// query is historical (spec §4.5.3 step 2). Verification is a separate,
// later stage (see verify.go) and is not a pre-filter here.
func filterStage(ids []string, chunks map[string]model.Chunk, mode model.ModeProfile, historical bool) []string {
	var out []string
	for _, id := range ids {
		c, ok := chunks[id]
		if !ok {
			continue
		}
		if !historical && c.Metadata.Stage == model.StageArchived {
			continue
		}
		out = append(out, id)
	}
	return out
}

// deduplicateStage collapses chunks whose content-hash or normalized
// text matches, keeping the first-seen (highest-scored, since ids
// arrive in tier-ranked order) representative (spec §4.5.3 step 3).
func deduplicateStage(ids []string, chunks map[string]model.Chunk) []string {
	seenHash := make(map[string]bool)
	seenText := make(map[string]bool)
	var out []string
	for _, id := range ids {
		c := chunks[id]
		h := c.ContentHash
		if h == "" {
			h = contentHashFallback(c.Text)
		}
		norm := normalizeText(c.Text)
		if seenHash[h] || seenText[norm] {
			continue
		}
		seenHash[h] = true
		seenText[norm] = true
		out = append(out, id)
	}
	return out
}

func contentHashFallback(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(strings.ToLower(text)), " ")
}

// filterRankings restricts each tier's ranking to the IDs that survived
// FILTER/DEDUPLICATE, preserving relative order (so rank numbers used by
// RRF reflect the post-filter ranking).
func filterRankings(rankings []TierRanking, keep []string) []TierRanking {
	keepSet := make(map[string]bool, len(keep))
	for _, id := range keep {
		keepSet[id] = true
	}
	out := make([]TierRanking, 0, len(rankings))
	for _, r := range rankings {
		var ids []string
		for _, id := range r.ChunkIDs {
			if keepSet[id] {
				ids = append(ids, id)
			}
		}
		out = append(out, TierRanking{Tier: r.Tier, ChunkIDs: ids})
	}
	return out
}

// compressAndCurate takes the top core_size for core, next extended_size
// for extended, drops the rest, and enforces the mode's token_budget by
// evicting extended members lowest-ranked first, then trimming the
// core's last member if still over (never below 1 core result) — spec
// §4.5.3 step 5.
func compressAndCurate(fused []FusedCandidate, chunks map[string]model.Chunk, mode model.ModeProfile) ([]model.Chunk, []model.Chunk) {
	var core, extended []model.Chunk
	for i, fc := range fused {
		c, ok := chunks[fc.ChunkID]
		if !ok {
			continue
		}
		switch {
		case len(core) < mode.CoreSize:
			core = append(core, c)
		case len(extended) < mode.ExtendedSize:
			extended = append(extended, c)
		default:
			_ = i
		}
	}

	budget := mode.TokenBudget
	if budget <= 0 {
		return core, extended
	}
	total := sumTokens(core) + sumTokens(extended)
	for total > budget && len(extended) > 0 {
		last := extended[len(extended)-1]
		extended = extended[:len(extended)-1]
		total -= last.TokenCount
	}
	for total > budget && len(core) > 1 {
		last := core[len(core)-1]
		core = core[:len(core)-1]
		total -= last.TokenCount
	}
	return core, extended
}

func sumTokens(chunks []model.Chunk) int {
	var sum int
	for _, c := range chunks {
		sum += c.TokenCount
	}
	return sum
}
