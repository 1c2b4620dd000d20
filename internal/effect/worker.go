package effect

import (
	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/tag"
)

// Operations builds deferred actions that mutate engine state. Workers never
// mutate directly; they return what these methods build and the owner
// enqueues it.
type Operations interface {
	ModifyAttribute(target Actor, attr *attribute.Attribute, delta attribute.Value, runEvents bool, p action.Priority) action.RootAction
	ApplyEffect(ge *GameplayEffect, source, target Actor, level int, p action.Priority) action.RootAction
	RemoveEffectsWithTag(target Actor, t tag.Tag, p action.Priority) action.RootAction
}

// Event is raised at a container lifecycle point.
type Event struct {
	Spec   *Spec
	Stacks int
	Ops    Operations
	// Valid reports whether the container is still alive. It is nil for
	// removal events.
	Valid func() bool
}

// Guard ties a to ev's container, so the action is skipped
// if the container is removed before the queue reaches it.
func (ev Event) Guard(a action.RootAction) action.RootAction {
	if ev.Valid == nil || a == nil {
		return a
	}
	return guarded{RootAction: a, valid: ev.Valid}
}

type guarded struct {
	action.RootAction
	valid func() bool
}

func (g guarded) IsValid() bool { return g.valid() && g.RootAction.IsValid() }

// Worker reacts to container lifecycle points with deferred actions.
type Worker interface {
	OnApplication(ev Event) []action.RootAction
	OnTick(ev Event) []action.RootAction
	OnRemoval(ev Event) []action.RootAction
}

// BaseWorker implements Worker with no-ops. Embed it and override what you
// need.
type BaseWorker struct{}

func (BaseWorker) OnApplication(Event) []action.RootAction { return nil }
func (BaseWorker) OnTick(Event) []action.RootAction        { return nil }
func (BaseWorker) OnRemoval(Event) []action.RootAction     { return nil }

// ImpactEvent describes an attribute change an effect actually committed.
type ImpactEvent struct {
	Spec      *Spec
	Attribute *attribute.Attribute
	Delta     attribute.Value
	Ops       Operations
}

// ImpactWorker reacts to impacts its owner caused.
type ImpactWorker interface {
	ValidateImpact(ev ImpactEvent) bool
	OnImpact(ev ImpactEvent) []action.RootAction
}

func priorityOr(p action.Priority) action.Priority {
	if p == 0 {
		return action.Normal
	}
	return p
}

// ApplyEffectWorker applies another effect at one lifecycle point. The
// applied effect's source is the parent's target.
type ApplyEffectWorker struct {
	BaseWorker
	Effect *GameplayEffect
	On     Trigger
	// ToSource sends the effect back to the parent's source.
	ToSource bool
	// Priority defaults to Normal.
	Priority action.Priority
}

func (w ApplyEffectWorker) build(ev Event) []action.RootAction {
	target := ev.Spec.Target
	if w.ToSource {
		target = ev.Spec.Source
	}
	if target == nil || w.Effect == nil {
		return nil
	}
	return []action.RootAction{
		ev.Guard(ev.Ops.ApplyEffect(w.Effect, ev.Spec.Target, target, ev.Spec.Level, priorityOr(w.Priority))),
	}
}

func (w ApplyEffectWorker) OnApplication(ev Event) []action.RootAction {
	if w.On != OnApplication {
		return nil
	}
	return w.build(ev)
}

func (w ApplyEffectWorker) OnTick(ev Event) []action.RootAction {
	if w.On != OnTick {
		return nil
	}
	return w.build(ev)
}

func (w ApplyEffectWorker) OnRemoval(ev Event) []action.RootAction {
	if w.On != OnRemoval {
		return nil
	}
	return w.build(ev)
}

// RemoveEffectsWorker strips effects carrying Tag from the target.
type RemoveEffectsWorker struct {
	BaseWorker
	Tag      tag.Tag
	On       Trigger
	Priority action.Priority
}

func (w RemoveEffectsWorker) build(ev Event) []action.RootAction {
	if w.Tag.IsZero() || ev.Spec.Target == nil {
		return nil
	}
	return []action.RootAction{
		ev.Guard(ev.Ops.RemoveEffectsWithTag(ev.Spec.Target, w.Tag, priorityOr(w.Priority))),
	}
}

func (w RemoveEffectsWorker) OnApplication(ev Event) []action.RootAction {
	if w.On != OnApplication {
		return nil
	}
	return w.build(ev)
}

func (w RemoveEffectsWorker) OnTick(ev Event) []action.RootAction {
	if w.On != OnTick {
		return nil
	}
	return w.build(ev)
}

func (w RemoveEffectsWorker) OnRemoval(ev Event) []action.RootAction {
	if w.On != OnRemoval {
		return nil
	}
	return w.build(ev)
}

// LifestealWorker returns a share of the damage its owner deals back to the
// owner as healing.
type LifestealWorker struct {
	// ImpactType restricts which impacts count; zero matches any.
	ImpactType tag.Tag
	// Attribute is the source attribute healed.
	Attribute *attribute.Attribute
	Ratio     float64
}

func (w LifestealWorker) ValidateImpact(ev ImpactEvent) bool {
	if ev.Spec == nil || ev.Spec.Source == nil || ev.Spec.SelfInflicted() {
		return false
	}
	if !w.ImpactType.IsZero() && ev.Spec.Effect.Impact.ImpactType != w.ImpactType {
		return false
	}
	return ev.Delta.Current < 0 && w.Ratio > 0
}

func (w LifestealWorker) OnImpact(ev ImpactEvent) []action.RootAction {
	heal := attribute.Value{Current: -ev.Delta.Current * w.Ratio}
	return []action.RootAction{
		ev.Ops.ModifyAttribute(ev.Spec.Source, w.Attribute, heal, true, action.Normal),
	}
}
