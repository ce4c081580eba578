// Package dispatch exposes the six internal/engine operations over a
// line-delimited JSON envelope protocol on stdio, mirroring the
// request/response shape and stdio read-loop idiom of the teacher's
// cmd/mcp-manifold server. The teacher's own server imports two MCP
// framework libraries (github.com/metoro-io/mcp-golang,
// github.com/mark3labs/mcp-go) that do not appear anywhere in its
// go.mod/go.sum — neither resolves as a real dependency of that repo
// as committed — so this package reimplements the same envelope shape
// directly on encoding/json + bufio rather than wiring an ungroundable
// library (see DESIGN.md).
package dispatch

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"mnemosyne/internal/engine"
)

// Request is one line of newline-delimited JSON read from the client.
type Request struct {
	ID     string          `json:"id"`
	Tool   string          `json:"tool"`
	Params json.RawMessage `json:"params"`
}

// Content is one piece of a tool response payload, matching the
// {type:"text",text:...} shape the teacher's MCP responses use.
type Content struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// Response is one line of newline-delimited JSON written back to the client.
type Response struct {
	ID      string    `json:"id"`
	Content []Content `json:"content"`
	IsError bool      `json:"isError"`
}

// ToolSpec describes one registered tool for the tools/list response.
type ToolSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

var tools = []ToolSpec{
	{"vector_search", "Search the vector tier directly for semantically similar chunks"},
	{"memory_store", "Ingest or update a document's chunks into the vector and entity-graph indices"},
	{"graph_query", "Look up entity-graph neighbors for a known entity"},
	{"entity_extraction", "Extract candidate entities from a block of text"},
	{"hipporag_retrieve", "Run the full retrieval pipeline: mode detection, routing, fusion, and verification"},
	{"detect_mode", "Classify a query's operating mode without running retrieval"},
}

// Dispatcher routes decoded requests to engine operations.
type Dispatcher struct {
	Engine *engine.Engine
}

// NewDispatcher constructs a Dispatcher over an already-wired Engine.
func NewDispatcher(e *engine.Engine) *Dispatcher {
	return &Dispatcher{Engine: e}
}

// Serve reads newline-delimited JSON requests from r and writes
// newline-delimited JSON responses to w until r is exhausted or ctx is
// canceled. A single request's failure is reported as an error
// response and does not terminate the loop, matching the teacher's
// fault-isolation-per-call behavior in its tool handlers.
func (d *Dispatcher) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 8*1024*1024)
	enc := json.NewEncoder(w)

	for scanner.Scan() {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var req Request
		if err := json.Unmarshal(line, &req); err != nil {
			if encErr := enc.Encode(errorResponse("", fmt.Errorf("malformed request: %w", err))); encErr != nil {
				return encErr
			}
			continue
		}
		if req.ID == "" {
			req.ID = uuid.NewString()
		}

		resp := d.handle(ctx, req)
		if err := enc.Encode(resp); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (d *Dispatcher) handle(ctx context.Context, req Request) Response {
	result, err := d.call(ctx, req)
	if err != nil {
		log.Error().Err(err).Str("tool", req.Tool).Str("id", req.ID).Msg("tool call failed")
		return errorResponse(req.ID, err)
	}
	return textResponse(req.ID, result)
}

func (d *Dispatcher) call(ctx context.Context, req Request) (any, error) {
	switch req.Tool {
	case "tools/list":
		return tools, nil
	case "tools/call":
		var p struct {
			Name      string          `json:"name"`
			Arguments json.RawMessage `json:"arguments"`
		}
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return d.call(ctx, Request{ID: req.ID, Tool: p.Name, Params: p.Arguments})
	case "vector_search":
		var p engine.VectorSearchRequest
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return d.Engine.VectorSearch(ctx, p)
	case "memory_store":
		var p engine.MemoryStoreRequest
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return d.Engine.MemoryStore(ctx, p)
	case "graph_query":
		var p engine.GraphQueryRequest
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return d.Engine.GraphQuery(ctx, p)
	case "entity_extraction":
		var p engine.EntityExtractionRequest
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return d.Engine.EntityExtraction(ctx, p)
	case "hipporag_retrieve":
		var p engine.HippoRAGRetrieveRequest
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		if p.QueryID == "" {
			p.QueryID = req.ID
		}
		return d.Engine.HippoRAGRetrieve(ctx, p)
	case "detect_mode":
		var p engine.DetectModeRequest
		if err := unmarshalParams(req.Params, &p); err != nil {
			return nil, err
		}
		return d.Engine.DetectMode(ctx, p)
	default:
		return nil, fmt.Errorf("unknown tool %q", req.Tool)
	}
}

func unmarshalParams(raw json.RawMessage, dst any) error {
	if len(raw) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return fmt.Errorf("invalid params: %w", err)
	}
	return nil
}

func textResponse(id string, payload any) Response {
	text, err := json.Marshal(payload)
	if err != nil {
		return errorResponse(id, err)
	}
	return Response{ID: id, Content: []Content{{Type: "text", Text: string(text)}}}
}

func errorResponse(id string, err error) Response {
	return Response{ID: id, Content: []Content{{Type: "text", Text: err.Error()}}, IsError: true}
}
