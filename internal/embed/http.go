package embed

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/net/http2"

	"mnemosyne/internal/config"
)

// HTTPEmbedder calls an external embedding endpoint shaped like an OpenAI
// embeddings API. Grounded on internal/embedding/client.go's EmbedText,
// generalized to implement the Embedder interface and to honor the
// Headers-map-over-legacy-APIHeader precedence exercised by that
// package's client_test.go.
type HTTPEmbedder struct {
	cfg    config.EmbeddingConfig
	client *http.Client
	name   string
}

// NewHTTPEmbedder constructs an HTTPEmbedder from an embedding client config.
// The transport prefers HTTP/2 (embedding calls batch many texts per request,
// and most embedding servers sit behind an HTTP/2-capable proxy) and is
// wrapped with otelhttp so outbound calls show up as spans under whatever
// trace the caller's context carries.
func NewHTTPEmbedder(cfg config.EmbeddingConfig) *HTTPEmbedder {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	_ = http2.ConfigureTransport(transport)
	client := &http.Client{Transport: otelhttp.NewTransport(transport)}
	return &HTTPEmbedder{cfg: cfg, client: client, name: cfg.Model}
}

func (e *HTTPEmbedder) Name() string   { return e.name }
func (e *HTTPEmbedder) Dimension() int { return e.cfg.Dim }

type embedReq struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResp struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
}

func (e *HTTPEmbedder) EncodeBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	reqBody, err := json.Marshal(embedReq{Model: e.cfg.Model, Input: texts})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	timeout := time.Duration(e.cfg.TimeoutS) * time.Second
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	cctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	url := e.cfg.BaseURL + e.cfg.Path
	req, err := http.NewRequestWithContext(cctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrModelUnavailable, err)
	}
	e.applyHeaders(req)
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrModelUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", ErrModelUnavailable, err)
	}
	if resp.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: %s: %s", ErrModelUnavailable, resp.Status, string(body))
	}

	var er embedResp
	if err := json.Unmarshal(body, &er); err != nil {
		return nil, fmt.Errorf("%w: parse response: %v", ErrModelUnavailable, err)
	}
	if len(er.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings, want %d", ErrModelUnavailable, len(er.Data), len(texts))
	}
	out := make([][]float32, len(er.Data))
	for i := range er.Data {
		v := er.Data[i].Embedding
		if len(v) > 0 {
			normalize(v)
		}
		out[i] = v
	}
	return out, nil
}

func (e *HTTPEmbedder) EncodeSingle(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EncodeBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, nil
	}
	return out[0], nil
}

// applyHeaders sets the Headers map first, then fills in the legacy
// APIHeader/APIKey pair only if that header name wasn't already supplied
// by the Headers map (spec: Headers takes precedence).
func (e *HTTPEmbedder) applyHeaders(req *http.Request) {
	for k, v := range e.cfg.Headers {
		req.Header.Set(k, v)
	}
	if e.cfg.APIHeader == "" {
		return
	}
	if _, already := e.cfg.Headers[e.cfg.APIHeader]; already {
		return
	}
	if e.cfg.APIHeader == "Authorization" {
		req.Header.Set("Authorization", "Bearer "+e.cfg.APIKey)
	} else {
		req.Header.Set(e.cfg.APIHeader, e.cfg.APIKey)
	}
}

// Ping verifies the embedding endpoint is reachable, grounded on
// CheckReachability in the same teacher file.
func (e *HTTPEmbedder) Ping(ctx context.Context) error {
	_, err := e.EncodeBatch(ctx, []string{"ping"})
	if err != nil {
		return fmt.Errorf("embedding endpoint reachability check failed: %w", err)
	}
	return nil
}
