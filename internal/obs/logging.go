// Package obs provides the ambient logging, metrics, and tracing
// capabilities shared by every component of the engine.
package obs

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/trace"
)

// Logger is the minimal structured-logging capability satisfied by
// zerolog and by no-op test doubles.
type Logger interface {
	Info(msg string, fields map[string]any)
	Error(msg string, fields map[string]any)
	Debug(msg string, fields map[string]any)
}

// NewLogger returns a zerolog-backed Logger writing leveled JSON to stderr.
func NewLogger(level string) Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zl := zerolog.New(os.Stderr).With().Timestamp().Logger().Level(lvl)
	return zerologLogger{zl}
}

type zerologLogger struct{ zl zerolog.Logger }

func (l zerologLogger) Info(msg string, fields map[string]any)  { l.log(l.zl.Info(), msg, fields) }
func (l zerologLogger) Error(msg string, fields map[string]any) { l.log(l.zl.Error(), msg, fields) }
func (l zerologLogger) Debug(msg string, fields map[string]any) { l.log(l.zl.Debug(), msg, fields) }

func (zerologLogger) log(ev *zerolog.Event, msg string, fields map[string]any) {
	for k, v := range fields {
		ev = ev.Interface(k, v)
	}
	ev.Msg(msg)
}

// NoopLogger drops everything; used as the default in tests.
type NoopLogger struct{}

func (NoopLogger) Info(string, map[string]any)  {}
func (NoopLogger) Error(string, map[string]any) {}
func (NoopLogger) Debug(string, map[string]any) {}

// WithTrace enriches fields with trace_id/span_id drawn from ctx, when a
// sampled span is present. Mirrors the teacher's LoggerWithTrace helper.
func WithTrace(ctx context.Context, fields map[string]any) map[string]any {
	if ctx == nil {
		return fields
	}
	sc := trace.SpanContextFromContext(ctx)
	if !sc.HasTraceID() {
		return fields
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["trace_id"] = sc.TraceID().String()
	if sc.HasSpanID() {
		fields["span_id"] = sc.SpanID().String()
	}
	return fields
}

// Clock abstracts time for deterministic tests.
type Clock interface {
	Now() time.Time
}

// SystemClock implements Clock using time.Now.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
