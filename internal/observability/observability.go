// Package observability records operation outcomes for the submission and
// queue workflows. Recorders are process-local (expvar) or Prometheus-backed.
package observability

import (
	"context"
	"time"
)

// Operation names recorded by fieldmission components.
const (
	OpSubmit       = "submit"
	OpSync         = "sync"
	OpQueueEnqueue = "queue.enqueue"
	OpQueueUpdate  = "queue.update"
	OpQueueDelete  = "queue.delete"
	OpQueueClear   = "queue.clear"
)

// MetricsRecorder observes the duration and result of an operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer starts spans around operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, TraceSpan)
}

// TraceSpan is ended exactly once with the operation error, if any.
type TraceSpan interface {
	End(err error)
}

// NoopRecorder discards observations.
type NoopRecorder struct{}

// Observe implements MetricsRecorder.
func (NoopRecorder) Observe(context.Context, string, bool, time.Duration) {}

// NoopTracer returns spans that do nothing.
type NoopTracer struct{}

// Start implements Tracer.
func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, TraceSpan) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Instrument wraps fn in a span and a metrics observation. Nil recorder or
// tracer are treated as no-ops.
func Instrument(ctx context.Context, metrics MetricsRecorder, tracer Tracer, operation string, fn func(context.Context) error) error {
	if metrics == nil {
		metrics = NoopRecorder{}
	}
	if tracer == nil {
		tracer = NoopTracer{}
	}
	start := time.Now()
	ctx, span := tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	metrics.Observe(ctx, operation, err == nil, time.Since(start))
	return err
}

// Multi fans observations out to several recorders.
type Multi []MetricsRecorder

// Observe implements MetricsRecorder.
func (m Multi) Observe(ctx context.Context, operation string, success bool, duration time.Duration) {
	for _, r := range m {
		if r != nil {
			r.Observe(ctx, operation, success, duration)
		}
	}
}
