package dispatch

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"mnemosyne/internal/config"
	"mnemosyne/internal/embed"
	"mnemosyne/internal/engine"
	"mnemosyne/internal/graph"
	"mnemosyne/internal/ingest"
	"mnemosyne/internal/trace"
	"mnemosyne/internal/vectorindex"
)

func newTestDispatcher(t *testing.T) *Dispatcher {
	t.Helper()
	vs, _, err := vectorindex.NewMemoryStore(t.TempDir())
	require.NoError(t, err)
	gdb := graph.NewMemoryGraph()
	emb := embed.NewHashEmbedder(32, 1)
	ex := graph.NewDeterministicExtractor()

	e := engine.New(engine.Deps{
		Config:    config.Default(),
		Vector:    vs,
		Graph:     gdb,
		Embedder:  emb,
		Extractor: ex,
		Ingestion: ingest.NewPipeline(vs, gdb, emb, ex, nil),
		Traces:    trace.NewMemoryStore(),
	})
	return NewDispatcher(e)
}

func runLine(t *testing.T, d *Dispatcher, line string) Response {
	t.Helper()
	var out bytes.Buffer
	err := d.Serve(context.Background(), strings.NewReader(line+"\n"), &out)
	require.NoError(t, err)

	var resp Response
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(out.Bytes()), &resp))
	return resp
}

func TestDispatcher_ToolsList(t *testing.T) {
	d := newTestDispatcher(t)
	resp := runLine(t, d, `{"id":"1","tool":"tools/list"}`)
	require.False(t, resp.IsError)
	require.Len(t, resp.Content, 1)
	require.Contains(t, resp.Content[0].Text, "hipporag_retrieve")
}

func TestDispatcher_MemoryStoreThenDetectMode(t *testing.T) {
	d := newTestDispatcher(t)

	storeReq := `{"id":"s1","tool":"memory_store","params":{"SourcePath":"notes/a.md","Text":"# Notes\n\nDeploy the release to production once the checklist below has been fully verified and signed off by the on-call engineer."}}`
	resp := runLine(t, d, storeReq)
	require.False(t, resp.IsError, resp.Content)

	modeResp := runLine(t, d, `{"id":"m1","tool":"detect_mode","params":{"Query":"deploy the release to production"}}`)
	require.False(t, modeResp.IsError)
	require.Contains(t, modeResp.Content[0].Text, "execution")
}

func TestDispatcher_UnknownToolReturnsErrorNotFatal(t *testing.T) {
	d := newTestDispatcher(t)
	var out bytes.Buffer
	input := `{"id":"bad","tool":"nonexistent"}` + "\n" + `{"id":"ok","tool":"detect_mode","params":{"Query":"plan the roadmap"}}` + "\n"
	err := d.Serve(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	scanner := bufio.NewScanner(&out)
	var responses []Response
	for scanner.Scan() {
		var r Response
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &r))
		responses = append(responses, r)
	}
	require.Len(t, responses, 2)
	require.True(t, responses[0].IsError)
	require.False(t, responses[1].IsError)
}

func TestDispatcher_MalformedLineDoesNotStopStream(t *testing.T) {
	d := newTestDispatcher(t)
	var out bytes.Buffer
	input := "not json\n" + `{"id":"ok","tool":"detect_mode","params":{"Query":"plan the roadmap"}}` + "\n"
	err := d.Serve(context.Background(), strings.NewReader(input), &out)
	require.NoError(t, err)

	scanner := bufio.NewScanner(&out)
	var count int
	for scanner.Scan() {
		count++
	}
	require.Equal(t, 2, count)
}
