// Package trace implements QueryTrace capture, replay, and error
// attribution (spec §4.7): a TraceStore capability interface with
// in-memory and Postgres-backed implementations, deterministic replay
// of a past query against a snapshot of the indices as they stood at
// the time, and the context_bug/model_bug/system_error classifier.
package trace

import (
	"context"
	"errors"
	"sort"
	"time"

	"mnemosyne/internal/model"
)

// ErrNotFound is returned by Get for an unknown query_id.
var ErrNotFound = errors.New("trace: query not found")

// ErrReplayUnavailable is returned by Replay when no snapshot exists at
// or before the trace's timestamp, so deterministic replay cannot be
// guaranteed (spec §4.7 "Replay fails closed: missing a snapshot errors
// rather than replaying against today's indices").
var ErrReplayUnavailable = errors.New("trace: replay unavailable, no snapshot at timestamp")

// TraceStore is the capability interface for persisting and querying
// QueryTrace records, grounded on the teacher's persistence-layer
// capability interfaces (internal/persistence/databases/interfaces.go)
// generalized to this module's single aggregate type.
type TraceStore interface {
	Record(ctx context.Context, t model.QueryTrace) error
	Get(ctx context.Context, queryID string) (model.QueryTrace, error)
	ListSince(ctx context.Context, since time.Time) ([]model.QueryTrace, error)
	MarkError(ctx context.Context, queryID string, errType model.ErrorType, errText string) error
}

// Stats is the 30-day statistics API's response shape (spec §4.7).
type Stats struct {
	TotalQueries       int
	ErrorCount         int
	ErrorsByType       map[model.ErrorType]int
	ModeDistribution   map[model.ModeName]int
	AvgLatencyMs       float64
	P95LatencyMs       float64
	AvgModeConfidence  float64
}

// ComputeStats aggregates traces from the last 30 days, per spec §4.7.
// Callers fetch the window with ListSince(now.AddDate(0,0,-30)) and pass
// the result here; this keeps ComputeStats store-independent and easy
// to test.
func ComputeStats(traces []model.QueryTrace) Stats {
	s := Stats{ErrorsByType: map[model.ErrorType]int{}, ModeDistribution: map[model.ModeName]int{}}
	if len(traces) == 0 {
		return s
	}
	var totalLatency, totalConfidence float64
	latencies := make([]int64, 0, len(traces))
	for _, t := range traces {
		s.TotalQueries++
		s.ModeDistribution[t.ModeDetected]++
		totalLatency += float64(t.TotalLatencyMs)
		totalConfidence += t.ModeConfidence
		latencies = append(latencies, t.TotalLatencyMs)
		if t.ErrorType != "" {
			s.ErrorCount++
			s.ErrorsByType[t.ErrorType]++
		}
	}
	s.AvgLatencyMs = totalLatency / float64(len(traces))
	s.AvgModeConfidence = totalConfidence / float64(len(traces))
	s.P95LatencyMs = float64(percentile95(latencies))
	return s
}

func percentile95(latencies []int64) int64 {
	if len(latencies) == 0 {
		return 0
	}
	sorted := append([]int64(nil), latencies...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(float64(len(sorted)) * 0.95)
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}
