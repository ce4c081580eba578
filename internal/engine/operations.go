package engine

import (
	"context"
	"fmt"
	"time"

	"mnemosyne/internal/graph"
	"mnemosyne/internal/ingest"
	"mnemosyne/internal/lifecycle"
	"mnemosyne/internal/model"
	"mnemosyne/internal/retrieve"
	"mnemosyne/internal/trace"
	"mnemosyne/internal/vectorindex"
)

// VectorSearchRequest/Response implement the vector_search tool.
type VectorSearchRequest struct {
	Query string
	K     int
}

type VectorSearchResponse struct {
	Results []vectorindex.ScoredChunk
}

// VectorSearch embeds the query and searches the vector tier directly,
// bypassing mode detection/routing — a lower-level primitive than
// hipporag_retrieve, for callers that already know they want plain
// semantic search (spec §7).
func (e *Engine) VectorSearch(ctx context.Context, req VectorSearchRequest) (VectorSearchResponse, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return VectorSearchResponse{}, newErr(ErrorKindTimeout, "vector_search", "", err)
	}
	defer release()

	if req.Query == "" {
		return VectorSearchResponse{}, newErr(ErrorKindValidation, "vector_search", "", fmt.Errorf("query required"))
	}
	k := req.K
	if k <= 0 {
		k = 10
	}

	vec, err := e.embedder.EncodeSingle(ctx, req.Query)
	if err != nil {
		return VectorSearchResponse{}, newErr(ErrorKindSystem, "vector_search", "", err)
	}
	results, err := e.vector.Search(ctx, vec, k, vectorindex.Filter{})
	if err != nil {
		return VectorSearchResponse{}, newErr(ErrorKindSystem, "vector_search", "", err)
	}
	return VectorSearchResponse{Results: results}, nil
}

// MemoryStoreRequest/Response implement the memory_store tool: the
// write-path entry point, delegating to internal/ingest.
type MemoryStoreRequest struct {
	SourcePath string
	Text       string
	Tags       model.Tags
	Category   string
	Deleted    bool
}

type MemoryStoreResponse struct {
	ChunkIDs []string
	Skipped  bool
}

func (e *Engine) MemoryStore(ctx context.Context, req MemoryStoreRequest) (MemoryStoreResponse, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return MemoryStoreResponse{}, newErr(ErrorKindTimeout, "memory_store", "", err)
	}
	defer release()

	if e.ingestion == nil {
		return MemoryStoreResponse{}, newErr(ErrorKindSystem, "memory_store", "", errNilDependency)
	}
	if req.SourcePath == "" {
		return MemoryStoreResponse{}, newErr(ErrorKindValidation, "memory_store", "", fmt.Errorf("source_path required"))
	}

	kind := ingest.EventModified
	if req.Deleted {
		kind = ingest.EventDeleted
	}

	var res ingest.Result
	e.withChunkLock(req.SourcePath, func() {
		res, err = e.ingestion.Ingest(ctx, ingest.IngestEvent{
			Kind: kind, SourcePath: req.SourcePath, Text: req.Text, Tags: req.Tags, Category: req.Category,
		})
	})
	if err != nil {
		return MemoryStoreResponse{}, newErr(ErrorKindSystem, "memory_store", "", err)
	}
	return MemoryStoreResponse{ChunkIDs: res.ChunkIDs, Skipped: res.Skipped}, nil
}

// GraphQueryRequest/Response implement the graph_query tool: a direct
// BFS neighbor lookup, bypassing the retrieval pipeline.
type GraphQueryRequest struct {
	EntityID  string
	Depth     int
	EdgeTypes []model.EdgeType
}

type GraphQueryResponse struct {
	Neighbors []graph.NeighborResult
}

func (e *Engine) GraphQuery(ctx context.Context, req GraphQueryRequest) (GraphQueryResponse, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return GraphQueryResponse{}, newErr(ErrorKindTimeout, "graph_query", "", err)
	}
	defer release()

	if req.EntityID == "" {
		return GraphQueryResponse{}, newErr(ErrorKindValidation, "graph_query", "", fmt.Errorf("entity_id required"))
	}
	depth := req.Depth
	if depth <= 0 || depth > 3 {
		depth = 3
	}
	neighbors, err := e.gdb.Neighbors(ctx, req.EntityID, depth, req.EdgeTypes)
	if err != nil {
		return GraphQueryResponse{}, newErr(ErrorKindSystem, "graph_query", "", err)
	}
	return GraphQueryResponse{Neighbors: neighbors}, nil
}

// EntityExtractionRequest/Response implement the entity_extraction tool.
type EntityExtractionRequest struct {
	Text string
}

type EntityExtractionResponse struct {
	Entities []graph.ExtractedEntity
}

func (e *Engine) EntityExtraction(ctx context.Context, req EntityExtractionRequest) (EntityExtractionResponse, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return EntityExtractionResponse{}, newErr(ErrorKindTimeout, "entity_extraction", "", err)
	}
	defer release()

	entities, err := e.extractor.Extract(ctx, req.Text)
	if err != nil {
		return EntityExtractionResponse{}, newErr(ErrorKindSystem, "entity_extraction", "", err)
	}
	return EntityExtractionResponse{Entities: entities}, nil
}

// HippoRAGRetrieveRequest/Response implement the hipporag_retrieve
// tool: the full RetrievalCore pipeline, with a 2x-latency-budget
// deadline and graceful degradation on graph-tier failure (spec §5,
// §4.5.5).
type HippoRAGRetrieveRequest struct {
	Query   string
	QueryID string
}

type HippoRAGRetrieveResponse struct {
	retrieve.Response
	Degraded bool
}

func (e *Engine) HippoRAGRetrieve(ctx context.Context, req HippoRAGRetrieveRequest) (HippoRAGRetrieveResponse, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return HippoRAGRetrieveResponse{}, newErr(ErrorKindTimeout, "hipporag_retrieve", req.QueryID, err)
	}
	defer release()

	if req.Query == "" {
		return HippoRAGRetrieveResponse{}, newErr(ErrorKindValidation, "hipporag_retrieve", req.QueryID, fmt.Errorf("query required"))
	}

	// Pick a conservative default budget before mode is known; the
	// pipeline's own mode detection governs the actual response shape.
	dctx, cancel := deadline(ctx, 1000)
	defer cancel()

	start := time.Now()
	resp, err := e.retrieval.Run(dctx, req.Query)
	if err != nil {
		if dctx.Err() != nil {
			return HippoRAGRetrieveResponse{}, newErr(ErrorKindTimeout, "hipporag_retrieve", req.QueryID, dctx.Err())
		}
		return HippoRAGRetrieveResponse{}, newErr(ErrorKindSystem, "hipporag_retrieve", req.QueryID, err)
	}

	if e.traces != nil {
		_ = e.traces.Record(ctx, buildTrace(req, resp, time.Since(start)))
	}

	return HippoRAGRetrieveResponse{Response: resp, Degraded: resp.GraphDegraded}, nil
}

func buildTrace(req HippoRAGRetrieveRequest, resp retrieve.Response, elapsed time.Duration) model.QueryTrace {
	var refs []model.RetrievedChunkRef
	for i, c := range resp.Core {
		refs = append(refs, model.RetrievedChunkRef{ChunkID: c.ID, SourceTier: "core", Rank: i + 1})
	}
	for i, c := range resp.Extended {
		refs = append(refs, model.RetrievedChunkRef{ChunkID: c.ID, SourceTier: "extended", Rank: i + 1})
	}
	routing := resp.Route.RoutingLogic
	if resp.GraphDegraded {
		routing += "+graph_unavailable"
	}
	return model.QueryTrace{
		QueryID:         req.QueryID,
		Timestamp:       time.Now().UTC(),
		Query:           req.Query,
		ModeDetected:    resp.Mode.Name,
		ModeConfidence:  resp.ModeConfidence,
		RoutingLogic:    routing,
		RetrievedChunks: refs,
		TotalLatencyMs:  elapsed.Milliseconds(),
	}
}

// DetectModeRequest/Response implement the detect_mode tool.
type DetectModeRequest struct {
	Query string
}

type DetectModeResponse struct {
	Mode       model.ModeName
	Confidence float64
}

func (e *Engine) DetectMode(ctx context.Context, req DetectModeRequest) (DetectModeResponse, error) {
	release, err := e.acquire(ctx)
	if err != nil {
		return DetectModeResponse{}, newErr(ErrorKindTimeout, "detect_mode", "", err)
	}
	defer release()

	if req.Query == "" {
		return DetectModeResponse{}, newErr(ErrorKindValidation, "detect_mode", "", fmt.Errorf("query required"))
	}
	profile, confidence := retrieve.DetectMode(req.Query, e.retrieval.Modes)
	return DetectModeResponse{Mode: profile.Name, Confidence: confidence}, nil
}

// RunLifecycleSweep evaluates every indexed chunk against the
// lifecycle state machine and applies due transitions. Not one of the
// six dispatch-exposed tools; called on a timer by cmd/mnemo-mcp per
// config.LifecycleConfig.SweepIntervalHours. It also runs error
// attribution over traces left unclassified since the prior sweep, per
// spec §4.7 ("on the next scheduled run, or on demand").
func (e *Engine) RunLifecycleSweep(ctx context.Context) (lifecycle.SweepResult, error) {
	if e.lifecycle == nil {
		return lifecycle.SweepResult{}, newErr(ErrorKindSystem, "lifecycle_sweep", "", errNilDependency)
	}
	ids, err := e.vector.ListIDs(ctx, vectorindex.Filter{})
	if err != nil {
		return lifecycle.SweepResult{}, newErr(ErrorKindSystem, "lifecycle_sweep", "", err)
	}
	result := e.lifecycle.Sweep(ctx, ids, time.Now().UTC())

	if e.traces != nil {
		if _, err := e.RunAttributionSweep(ctx); err != nil {
			if result.Errors == nil {
				result.Errors = make(map[string]error)
			}
			result.Errors["attribution"] = err
		}
	}
	return result, nil
}

// AttributionSweepResult tallies one pass of RunAttributionSweep.
type AttributionSweepResult struct {
	Classified  int
	ByErrorType map[model.ErrorType]int
}

// RunAttributionSweep classifies every trace that carries a failure
// signal (a hard error, or a failed verification) and has not yet been
// classified, per spec §4.7's context_bug/model_bug/system_error
// taxonomy. Demand-callable on its own, and folded into
// RunLifecycleSweep so attribution keeps pace with the lifecycle timer
// without needing a second ticker in cmd/mnemo-mcp.
func (e *Engine) RunAttributionSweep(ctx context.Context) (AttributionSweepResult, error) {
	if e.traces == nil {
		return AttributionSweepResult{}, newErr(ErrorKindSystem, "attribution_sweep", "", errNilDependency)
	}
	traces, err := e.traces.ListSince(ctx, time.Time{})
	if err != nil {
		return AttributionSweepResult{}, newErr(ErrorKindSystem, "attribution_sweep", "", err)
	}

	result := AttributionSweepResult{ByErrorType: make(map[model.ErrorType]int)}
	for _, t := range traces {
		if t.ErrorType != "" {
			continue
		}
		failed := t.Error != "" || (t.VerificationResult != nil && !*t.VerificationResult)
		if !failed {
			continue
		}

		stages := make([]model.Stage, 0, len(t.RetrievedChunks))
		for _, ref := range t.RetrievedChunks {
			chunk, err := e.vector.Get(ctx, ref.ChunkID)
			if err != nil {
				continue
			}
			stages = append(stages, chunk.Metadata.Stage)
		}

		errType := trace.Classify(t, stages)
		if err := e.traces.MarkError(ctx, t.QueryID, errType, t.Error); err != nil {
			continue
		}
		result.Classified++
		result.ByErrorType[errType]++
	}
	return result, nil
}
