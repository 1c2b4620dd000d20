package gas

import (
	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
)

// ClampWorker forces the committed current value into the attribute's
// overflow bounds. Every system runs it after its PostChange inline workers
// unless built WithoutClamp; registering it explicitly clamps mid-pipeline.
type ClampWorker struct{}

func (ClampWorker) PreValidateWorkFor(change AttributeChange) bool {
	return change.Attribute != nil && change.Attribute.Overflow != attribute.Unlimited
}

func (ClampWorker) ValidateWorkFor(ctx *WorkerContext) bool { return ctx.Phase == PostChange }

func (ClampWorker) Intercept(ctx *WorkerContext, value *attribute.Value) error {
	clamped, _, err := ctx.Change.Attribute.Clamp(*value)
	if err != nil {
		return err
	}
	*value = clamped
	return nil
}

// ScaleWorker keeps a paired attribute proportional to a base change: when
// the watched base moves by Δ, the paired current value is scaled by
// Δ/oldBase. The follow-up modification does not run events.
type ScaleWorker struct {
	WorkerFilter
	// Paired defaults to the changed attribute itself.
	Paired   *attribute.Attribute
	Priority action.Priority
}

func (w ScaleWorker) ValidateWorkFor(ctx *WorkerContext) bool {
	if ctx.Phase != PostChange || ctx.Delta.Base == 0 || ctx.Old.Base == 0 {
		return false
	}
	return w.WorkerFilter.ValidateWorkFor(ctx)
}

func (w ScaleWorker) Actions(ctx *WorkerContext, ops Ops) []action.RootAction {
	paired := w.Paired
	if paired == nil {
		paired = ctx.Change.Attribute
	}
	proportion := ctx.Delta.Base / ctx.Old.Base
	return []action.RootAction{
		ops.ScaleAttribute(ctx.Target, paired, proportion, false, priorityOr(w.Priority)),
	}
}

// ThresholdWorker applies Effect when the watched attribute's current value
// drops to Threshold or below. The action runs at Critical priority.
type ThresholdWorker struct {
	Attribute *attribute.Attribute
	Threshold float64
	Effect    *effect.GameplayEffect
}

func (w ThresholdWorker) PreValidateWorkFor(change AttributeChange) bool {
	return change.Attribute == w.Attribute
}

func (w ThresholdWorker) ValidateWorkFor(ctx *WorkerContext) bool {
	return ctx.Phase == PostChange && ctx.Old.Current > w.Threshold && ctx.New.Current <= w.Threshold
}

func (w ThresholdWorker) Actions(ctx *WorkerContext, ops Ops) []action.RootAction {
	source := ctx.Change.Source()
	if source == nil {
		source = ctx.Target
	}
	return []action.RootAction{
		ops.ApplyEffect(w.Effect, source, ctx.Target, 0, action.Critical),
	}
}

// GroupWorker bundles workers under one registration. Validation is the OR
// of the children; inline children intercept in order and deferred
// children's actions are concatenated.
type GroupWorker struct {
	Workers []AttributeWorker
}

func (g GroupWorker) PreValidateWorkFor(change AttributeChange) bool {
	for _, w := range g.Workers {
		if w.PreValidateWorkFor(change) {
			return true
		}
	}
	return false
}

func (g GroupWorker) ValidateWorkFor(ctx *WorkerContext) bool {
	for _, w := range g.Workers {
		if w.PreValidateWorkFor(ctx.Change) && w.ValidateWorkFor(ctx) {
			return true
		}
	}
	return false
}

func (g GroupWorker) Intercept(ctx *WorkerContext, value *attribute.Value) error {
	for _, w := range g.Workers {
		iw, ok := w.(InlineWorker)
		if !ok || !w.PreValidateWorkFor(ctx.Change) || !w.ValidateWorkFor(ctx) {
			continue
		}
		if err := iw.Intercept(ctx, value); err != nil {
			return err
		}
	}
	return nil
}

func (g GroupWorker) Actions(ctx *WorkerContext, ops Ops) []action.RootAction {
	var out []action.RootAction
	for _, w := range g.Workers {
		dw, ok := w.(DeferredWorker)
		if !ok || !w.PreValidateWorkFor(ctx.Change) || !w.ValidateWorkFor(ctx) {
			continue
		}
		out = append(out, dw.Actions(ctx, ops)...)
	}
	return out
}

func priorityOr(p action.Priority) action.Priority {
	if p == 0 {
		return action.Normal
	}
	return p
}
