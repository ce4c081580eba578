// Command mnemo-mcp runs the memory engine as a stdio tool server,
// grounded on the teacher's cmd/mcp-manifold/main.go: build the server,
// register its tools, then select on an error channel and an OS signal
// channel for graceful shutdown.
package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mnemosyne/internal/config"
	"mnemosyne/internal/dispatch"
	"mnemosyne/internal/embed"
	"mnemosyne/internal/engine"
	"mnemosyne/internal/graph"
	"mnemosyne/internal/ingest"
	"mnemosyne/internal/lifecycle"
	"mnemosyne/internal/obs"
	"mnemosyne/internal/trace"
	"mnemosyne/internal/vectorindex"
)

func main() {
	cfgPath := "mnemosyne.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}
	cfg, err := loadConfig(cfgPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	logger := obs.NewLogger(cfg.Logging.Level)
	logger.Info("starting mnemo-mcp", map[string]any{"config": cfgPath})

	shutdownOTel, err := obs.InitOTel(ctx, cfg.OTel)
	if err != nil {
		log.Fatalf("init otel: %v", err)
	}
	defer shutdownOTel(ctx)

	e, cleanup, err := buildEngine(ctx, cfg)
	if err != nil {
		log.Fatalf("build engine: %v", err)
	}
	defer cleanup()

	d := dispatch.NewDispatcher(e)

	go runLifecycleSweepLoop(ctx, e, cfg.Lifecycle.SweepIntervalHours, logger)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	errChan := make(chan error, 1)
	go func() {
		if err := d.Serve(ctx, os.Stdin, os.Stdout); err != nil {
			errChan <- fmt.Errorf("dispatch serve error: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		log.Fatalf("server error: %v", err)
	case sig := <-sigChan:
		log.Printf("received signal %v, shutting down", sig)
		cancel()
	}

	log.Println("mnemo-mcp stopped")
}

func runLifecycleSweepLoop(ctx context.Context, e *engine.Engine, intervalHours int, logger obs.Logger) {
	if intervalHours <= 0 {
		intervalHours = 6
	}
	ticker := time.NewTicker(time.Duration(intervalHours) * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			res, err := e.RunLifecycleSweep(ctx)
			if err != nil {
				logger.Error("lifecycle sweep failed", map[string]any{"error": err.Error()})
				continue
			}
			logger.Info("lifecycle sweep complete", map[string]any{
				"transitioned": len(res.Transitioned),
				"tombstoned":   len(res.Tombstoned),
				"errors":       len(res.Errors),
			})
		}
	}
}

func loadConfig(path string) (*config.Config, error) {
	if _, err := os.Stat(path); err != nil {
		return config.Default(), nil
	}
	return config.Load(path)
}

// buildEngine wires every capability package per cfg's backend
// selections, mirroring the teacher's registerAllTools composition
// root (one function assembling every dependency before the server
// starts serving).
func buildEngine(ctx context.Context, cfg *config.Config) (*engine.Engine, func(), error) {
	var cleanups []func()
	cleanup := func() {
		for i := len(cleanups) - 1; i >= 0; i-- {
			cleanups[i]()
		}
	}

	vs, gdb, err := buildStores(ctx, cfg, &cleanups)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	var emb embed.Embedder
	if cfg.EmbeddingClient.BaseURL != "" {
		emb = embed.NewHTTPEmbedder(cfg.EmbeddingClient)
	} else {
		emb = embed.NewHashEmbedder(cfg.Embedding.Dim, 1)
	}
	extractor := graph.NewDeterministicExtractor()

	ingestion := ingest.NewPipeline(vs, gdb, emb, extractor, nil)

	traces, err := buildTraceStore(ctx, cfg, &cleanups)
	if err != nil {
		cleanup()
		return nil, nil, err
	}

	accessBuf, err := lifecycle.NewAccessBuffer(cfg.Redis)
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	emitter := lifecycle.NewKafkaTransitionEmitter(cfg.Kafka)
	if emitter != nil {
		cleanups = append(cleanups, func() { _ = emitter.Close() })
	}
	sourceChecker := func(_ context.Context, sourcePath string) bool {
		_, err := os.Stat(sourcePath)
		return err == nil
	}
	lifecycleMgr := lifecycle.NewManager(vs, sourceChecker, lifecycle.TruncatingSummarizer{}, emb, accessBuf, emitter)

	e := engine.New(engine.Deps{
		Config:    cfg,
		Vector:    vs,
		Graph:     gdb,
		Embedder:  emb,
		Extractor: extractor,
		Ingestion: ingestion,
		Lifecycle: lifecycleMgr,
		Traces:    traces,
	})

	return e, cleanup, nil
}

func buildStores(ctx context.Context, cfg *config.Config, cleanups *[]func()) (vectorindex.VectorStore, graph.GraphDB, error) {
	var vs vectorindex.VectorStore
	switch cfg.VectorBackend {
	case "qdrant":
		qv, err := vectorindex.NewQdrantVectorStore(ctx, cfg.QdrantHost, cfg.QdrantPort, cfg.QdrantCollection, cfg.Embedding.Dim)
		if err != nil {
			return nil, nil, fmt.Errorf("connect qdrant: %w", err)
		}
		vs = qv
	default:
		store, _, err := vectorindex.NewMemoryStore(filepath.Join(cfg.DataDir, "vectors"))
		if err != nil {
			return nil, nil, fmt.Errorf("open vector store: %w", err)
		}
		vs = store
	}

	snapshotPath := filepath.Join(cfg.DataDir, "graph.snapshot.json")
	gdb, err := graph.LoadSnapshot(snapshotPath)
	if err != nil {
		gdb = graph.NewMemoryGraph()
	}
	*cleanups = append(*cleanups, func() { _ = gdb.Snapshot(snapshotPath) })

	return vs, gdb, nil
}

func buildTraceStore(ctx context.Context, cfg *config.Config, cleanups *[]func()) (trace.TraceStore, error) {
	if cfg.TraceBackend != "postgres" {
		return trace.NewMemoryStore(), nil
	}
	pool, err := pgxpool.New(ctx, cfg.TraceDSN)
	if err != nil {
		return nil, fmt.Errorf("connect trace postgres: %w", err)
	}
	store := trace.NewPostgresStore(pool)
	if err := store.Init(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("init trace schema: %w", err)
	}
	*cleanups = append(*cleanups, pool.Close)
	return store, nil
}
