package telemetry

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const engineScopeName = "github.com/ALT-F4-LLC/workgraph/lifecycle"

// Engine holds the tracer and counters of lifecycle operations. Instruments
// are resolved from the global providers when NewEngine is called, so with
// no SDK installed they are no-ops.
type Engine struct {
	tracer      trace.Tracer
	ops         metric.Int64Counter
	errs        metric.Int64Counter
	cascaded    metric.Int64Counter
	rescheduled metric.Int64Counter
	staleWrites metric.Int64Counter
}

// NewEngine creates the lifecycle instruments.
func NewEngine() *Engine {
	m := Meter(engineScopeName)
	ops, _ := m.Int64Counter("workgraph.lifecycle.operations",
		metric.WithDescription("Total lifecycle operations executed"),
	)
	errs, _ := m.Int64Counter("workgraph.lifecycle.errors",
		metric.WithDescription("Lifecycle operations rejected or failed"),
	)
	cascaded, _ := m.Int64Counter("workgraph.cascade.closed",
		metric.WithDescription("Duplicates closed by a cascade"),
	)
	rescheduled, _ := m.Int64Counter("workgraph.scheduler.rescheduled",
		metric.WithDescription("Issues moved by rescheduling"),
	)
	staleWrites, _ := m.Int64Counter("workgraph.store.stale_writes",
		metric.WithDescription("Saves rejected by lock version checks"),
	)
	return &Engine{
		tracer:      Tracer(engineScopeName),
		ops:         ops,
		errs:        errs,
		cascaded:    cascaded,
		rescheduled: rescheduled,
		staleWrites: staleWrites,
	}
}

// Start opens a span for the named operation and counts it.
func (e *Engine) Start(ctx context.Context, op string, issueID int) (context.Context, trace.Span) {
	attrs := []attribute.KeyValue{
		attribute.String("workgraph.operation", op),
		attribute.Int("workgraph.issue.id", issueID),
	}
	ctx, span := e.tracer.Start(ctx, "lifecycle."+op, trace.WithAttributes(attrs...))
	e.ops.Add(ctx, 1, metric.WithAttributes(attrs[0]))
	return ctx, span
}

// End closes span, recording err when it is non-nil.
func (e *Engine) End(ctx context.Context, span trace.Span, op string, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		e.errs.Add(ctx, 1, metric.WithAttributes(attribute.String("workgraph.operation", op)))
	}
	span.End()
}

// Cascaded records n duplicates closed by a cascade.
func (e *Engine) Cascaded(ctx context.Context, n int) {
	if n > 0 {
		e.cascaded.Add(ctx, int64(n))
	}
}

// Rescheduled records n issues moved by the scheduler.
func (e *Engine) Rescheduled(ctx context.Context, n int) {
	if n > 0 {
		e.rescheduled.Add(ctx, int64(n))
	}
}

// StaleWrite records a save rejected for a lock version mismatch.
func (e *Engine) StaleWrite(ctx context.Context) {
	e.staleWrites.Add(ctx, 1)
}
