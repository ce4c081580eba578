package obs

import (
	"context"

	"go.opentelemetry.io/otel/metric"
)

// Metrics is a placeholder-free observability capability for counters and
// histograms, kept deliberately small so that callers can inject either
// the otel-backed implementation or NoopMetrics in tests.
type Metrics interface {
	IncCounter(name string, labels map[string]string)
	ObserveHistogram(name string, value float64, labels map[string]string)
}

// NoopMetrics implements Metrics without side effects.
type NoopMetrics struct{}

func (NoopMetrics) IncCounter(string, map[string]string)                {}
func (NoopMetrics) ObserveHistogram(string, float64, map[string]string) {}

// OtelMetrics reports through an otel metric.Meter. Counters and
// histograms are created lazily and cached by name.
type OtelMetrics struct {
	meter      metric.Meter
	counters   map[string]metric.Float64Counter
	histograms map[string]metric.Float64Histogram
}

// NewOtelMetrics constructs a Metrics implementation backed by the given meter.
func NewOtelMetrics(meter metric.Meter) *OtelMetrics {
	return &OtelMetrics{
		meter:      meter,
		counters:   make(map[string]metric.Float64Counter),
		histograms: make(map[string]metric.Float64Histogram),
	}
}

func (m *OtelMetrics) IncCounter(name string, labels map[string]string) {
	c, ok := m.counters[name]
	if !ok {
		var err error
		c, err = m.meter.Float64Counter(name)
		if err != nil {
			return
		}
		m.counters[name] = c
	}
	c.Add(context.Background(), 1, metric.WithAttributes(attrsFromLabels(labels)...))
}

func (m *OtelMetrics) ObserveHistogram(name string, value float64, labels map[string]string) {
	h, ok := m.histograms[name]
	if !ok {
		var err error
		h, err = m.meter.Float64Histogram(name)
		if err != nil {
			return
		}
		m.histograms[name] = h
	}
	h.Record(context.Background(), value, metric.WithAttributes(attrsFromLabels(labels)...))
}
