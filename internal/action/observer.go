package action

import (
	"context"
	"log/slog"
	"time"
)

// Record describes one executed action.
type Record struct {
	Action   RootAction
	Priority Priority
	Started  time.Time
	Elapsed  time.Duration
	Err      error
}

// Observer receives queue lifecycle notifications. Hooks are for tracing
// only and must not enqueue or mutate game state.
type Observer interface {
	ActionQueued(a RootAction, p Priority)
	ActionExecuted(ctx context.Context, rec Record)
	ActionInvalidated(ctx context.Context, a RootAction, p Priority)
	IterationLimit(ctx context.Context, dropped int)
}

// NopObserver ignores every notification. Embed it to implement a subset.
type NopObserver struct{}

func (NopObserver) ActionQueued(RootAction, Priority)                       {}
func (NopObserver) ActionExecuted(context.Context, Record)                  {}
func (NopObserver) ActionInvalidated(context.Context, RootAction, Priority) {}
func (NopObserver) IterationLimit(context.Context, int)                     {}

// Observers fans notifications out in order.
type Observers []Observer

func (obs Observers) ActionQueued(a RootAction, p Priority) {
	for _, o := range obs {
		o.ActionQueued(a, p)
	}
}

func (obs Observers) ActionExecuted(ctx context.Context, rec Record) {
	for _, o := range obs {
		o.ActionExecuted(ctx, rec)
	}
}

func (obs Observers) ActionInvalidated(ctx context.Context, a RootAction, p Priority) {
	for _, o := range obs {
		o.ActionInvalidated(ctx, a, p)
	}
}

func (obs Observers) IterationLimit(ctx context.Context, dropped int) {
	for _, o := range obs {
		o.IterationLimit(ctx, dropped)
	}
}

// LogObserver traces queue activity at debug level.
type LogObserver struct {
	Logger *slog.Logger
}

func (o LogObserver) logger() *slog.Logger {
	if o.Logger == nil {
		return slog.Default()
	}
	return o.Logger
}

func (o LogObserver) ActionQueued(a RootAction, p Priority) {
	o.logger().Debug("action queued", "action", a.Description(), "priority", p)
}

func (o LogObserver) ActionExecuted(ctx context.Context, rec Record) {
	o.logger().DebugContext(ctx, "action executed",
		"action", rec.Action.Description(),
		"priority", rec.Priority,
		"elapsed", rec.Elapsed,
		"failed", rec.Err != nil)
}

func (o LogObserver) ActionInvalidated(ctx context.Context, a RootAction, p Priority) {
	o.logger().DebugContext(ctx, "action invalidated", "action", a.Description(), "priority", p)
}

func (o LogObserver) IterationLimit(ctx context.Context, dropped int) {
	o.logger().WarnContext(ctx, "action queue dropped actions", "dropped", dropped)
}
