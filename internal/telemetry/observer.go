package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/udisondev/gas/internal/action"
)

const instrumentation = "github.com/udisondev/gas"

// TraceObserver turns executed queue actions into spans. Invalidated actions
// and iteration-limit drops become events on the span carried by ctx, which
// is normally the update span from StartUpdate.
type TraceObserver struct {
	action.NopObserver
	tracer trace.Tracer
}

// NewTraceObserver creates an observer on tp, or on the global provider when
// tp is nil.
func NewTraceObserver(tp trace.TracerProvider) *TraceObserver {
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	return &TraceObserver{tracer: tp.Tracer(instrumentation)}
}

// StartUpdate opens the span that parents one world update.
func (o *TraceObserver) StartUpdate(ctx context.Context, tick int64, dt float64) (context.Context, trace.Span) {
	return o.tracer.Start(ctx, "gas.update", trace.WithAttributes(
		attribute.Int64("gas.tick", tick),
		attribute.Float64("gas.dt", dt),
	))
}

func (o *TraceObserver) ActionExecuted(ctx context.Context, rec action.Record) {
	_, span := o.tracer.Start(ctx, "gas.action",
		trace.WithTimestamp(rec.Started),
		trace.WithAttributes(
			attribute.String("gas.action", rec.Action.Description()),
			attribute.String("gas.priority", rec.Priority.String()),
		),
	)
	if rec.Err != nil {
		span.RecordError(rec.Err)
		span.SetStatus(codes.Error, rec.Err.Error())
	}
	span.End(trace.WithTimestamp(rec.Started.Add(rec.Elapsed)))
}

func (o *TraceObserver) ActionInvalidated(ctx context.Context, a action.RootAction, p action.Priority) {
	trace.SpanFromContext(ctx).AddEvent("gas.action.invalidated", trace.WithAttributes(
		attribute.String("gas.action", a.Description()),
		attribute.String("gas.priority", p.String()),
	))
}

func (o *TraceObserver) IterationLimit(ctx context.Context, dropped int) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent("gas.queue.iteration_limit", trace.WithAttributes(attribute.Int("gas.dropped", dropped)))
	span.SetStatus(codes.Error, "action queue iteration limit")
}
