package trace

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"mnemosyne/internal/model"
)

// PostgresStore is a pgx-backed TraceStore, grounded on the teacher's
// internal/persistence/databases/chat_store_postgres.go: a pool-backed
// struct, an idempotent Init() DDL, pgx.ErrNoRows-to-sentinel-error
// translation, and JSON-serialized complex columns for the fields that
// don't map cleanly to scalar SQL types.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore wraps an already-connected pool.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Init creates the traces table if absent.
func (s *PostgresStore) Init(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS query_traces (
    query_id TEXT PRIMARY KEY,
    ts TIMESTAMPTZ NOT NULL,
    query TEXT NOT NULL,
    user_context JSONB NOT NULL DEFAULT '{}',
    mode_detected TEXT NOT NULL,
    mode_confidence DOUBLE PRECISION NOT NULL,
    stores_queried JSONB NOT NULL DEFAULT '[]',
    routing_logic TEXT NOT NULL DEFAULT '',
    retrieved_chunks JSONB NOT NULL DEFAULT '[]',
    phase_latencies JSONB NOT NULL DEFAULT '{}',
    verification_result BOOLEAN,
    output TEXT NOT NULL DEFAULT '',
    total_latency_ms BIGINT NOT NULL DEFAULT 0,
    error TEXT NOT NULL DEFAULT '',
    error_type TEXT NOT NULL DEFAULT '',
    ppr_alpha DOUBLE PRECISION NOT NULL DEFAULT 0,
    ppr_max_iter INTEGER NOT NULL DEFAULT 0,
    ppr_tol DOUBLE PRECISION NOT NULL DEFAULT 0,
    ppr_seed_order JSONB NOT NULL DEFAULT '[]',
    catalogue_version TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS query_traces_ts_idx ON query_traces(ts DESC);
`)
	return err
}

func (s *PostgresStore) Record(ctx context.Context, t model.QueryTrace) error {
	userContext, _ := json.Marshal(t.UserContext)
	storesQueried, _ := json.Marshal(t.StoresQueried)
	retrievedChunks, _ := json.Marshal(t.RetrievedChunks)
	phaseLatencies, _ := json.Marshal(serializeDurations(t.PhaseLatencies))
	seedOrder, _ := json.Marshal(t.PPRSeedOrder)

	_, err := s.pool.Exec(ctx, `
INSERT INTO query_traces (
    query_id, ts, query, user_context, mode_detected, mode_confidence,
    stores_queried, routing_logic, retrieved_chunks, phase_latencies,
    verification_result, output, total_latency_ms, error, error_type,
    ppr_alpha, ppr_max_iter, ppr_tol, ppr_seed_order, catalogue_version
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
ON CONFLICT (query_id) DO UPDATE SET
    verification_result = EXCLUDED.verification_result,
    output = EXCLUDED.output,
    total_latency_ms = EXCLUDED.total_latency_ms,
    error = EXCLUDED.error,
    error_type = EXCLUDED.error_type
`,
		t.QueryID, t.Timestamp, t.Query, userContext, string(t.ModeDetected), t.ModeConfidence,
		storesQueried, t.RoutingLogic, retrievedChunks, phaseLatencies,
		t.VerificationResult, t.Output, t.TotalLatencyMs, t.Error, string(t.ErrorType),
		t.PPRAlpha, t.PPRMaxIter, t.PPRTol, seedOrder, t.CatalogueVersion,
	)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, queryID string) (model.QueryTrace, error) {
	row := s.pool.QueryRow(ctx, `
SELECT query_id, ts, query, user_context, mode_detected, mode_confidence,
       stores_queried, routing_logic, retrieved_chunks, phase_latencies,
       verification_result, output, total_latency_ms, error, error_type,
       ppr_alpha, ppr_max_iter, ppr_tol, ppr_seed_order, catalogue_version
FROM query_traces WHERE query_id = $1`, queryID)
	t, err := scanTrace(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.QueryTrace{}, ErrNotFound
	}
	return t, err
}

func (s *PostgresStore) ListSince(ctx context.Context, since time.Time) ([]model.QueryTrace, error) {
	rows, err := s.pool.Query(ctx, `
SELECT query_id, ts, query, user_context, mode_detected, mode_confidence,
       stores_queried, routing_logic, retrieved_chunks, phase_latencies,
       verification_result, output, total_latency_ms, error, error_type,
       ppr_alpha, ppr_max_iter, ppr_tol, ppr_seed_order, catalogue_version
FROM query_traces WHERE ts >= $1 ORDER BY ts ASC`, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []model.QueryTrace
	for rows.Next() {
		t, err := scanTrace(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PostgresStore) MarkError(ctx context.Context, queryID string, errType model.ErrorType, errText string) error {
	cmd, err := s.pool.Exec(ctx, `UPDATE query_traces SET error_type = $2, error = $3 WHERE query_id = $1`, queryID, string(errType), errText)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanTrace(row pgx.Row) (model.QueryTrace, error) {
	var t model.QueryTrace
	var userContext, storesQueried, retrievedChunks, phaseLatencies, seedOrder []byte
	var modeDetected, errType string
	if err := row.Scan(
		&t.QueryID, &t.Timestamp, &t.Query, &userContext, &modeDetected, &t.ModeConfidence,
		&storesQueried, &t.RoutingLogic, &retrievedChunks, &phaseLatencies,
		&t.VerificationResult, &t.Output, &t.TotalLatencyMs, &t.Error, &errType,
		&t.PPRAlpha, &t.PPRMaxIter, &t.PPRTol, &seedOrder, &t.CatalogueVersion,
	); err != nil {
		return model.QueryTrace{}, err
	}
	t.ModeDetected = model.ModeName(modeDetected)
	t.ErrorType = model.ErrorType(errType)
	_ = json.Unmarshal(userContext, &t.UserContext)
	_ = json.Unmarshal(storesQueried, &t.StoresQueried)
	_ = json.Unmarshal(retrievedChunks, &t.RetrievedChunks)
	var durMs map[string]int64
	_ = json.Unmarshal(phaseLatencies, &durMs)
	t.PhaseLatencies = deserializeDurations(durMs)
	_ = json.Unmarshal(seedOrder, &t.PPRSeedOrder)
	return t, nil
}

func serializeDurations(m map[string]time.Duration) map[string]int64 {
	out := make(map[string]int64, len(m))
	for k, v := range m {
		out[k] = v.Milliseconds()
	}
	return out
}

func deserializeDurations(m map[string]int64) map[string]time.Duration {
	out := make(map[string]time.Duration, len(m))
	for k, v := range m {
		out[k] = time.Duration(v) * time.Millisecond
	}
	return out
}
