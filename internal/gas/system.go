package gas

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/udisondev/gas/internal/ability"
	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

var (
	ErrUnknownAttribute  = errors.New("unknown attribute")
	ErrNoAbilitySystem   = errors.New("target has no ability system")
	ErrAbilityNotGranted = errors.New("ability not granted")
	ErrAbilityActive     = errors.New("ability already active")
	ErrAbilityBlocked    = errors.New("ability activation blocked")
	ErrCannotAfford      = errors.New("cannot afford ability cost")
	ErrCriticalSection   = errors.New("another ability holds a critical section")
	ErrSystemRemoved     = errors.New("system removed from world")
)

// maxContainedDepth bounds contained-effect recursion.
const maxContainedDepth = 16

// System is one entity's gameplay component: its attribute cache, worker
// pipeline, tags, effect shelf and abilities. All mutation goes through its
// methods; workers reach it only through queued actions.
type System struct {
	world       *World
	name        string
	level       int
	affiliation tag.Tag
	logger      *slog.Logger
	removed     bool

	attrs map[*attribute.Attribute]*attribute.Value
	order []*attribute.Attribute
	tags  tag.Set

	pre    []AttributeWorker
	post   []AttributeWorker
	impact []effect.ImpactWorker
	clamp  bool

	shelf []*Container
	depth int

	abilities    map[string]*grantedAbility
	abilityOrder []string
	abilityHooks ability.Hooks
}

// SystemOption configures a System.
type SystemOption func(*System)

// WithLevel sets the system level used as default effect level.
func WithLevel(level int) SystemOption {
	return func(s *System) { s.level = max(level, 1) }
}

// WithAffiliation sets the team tag.
func WithAffiliation(t tag.Tag) SystemOption {
	return func(s *System) { s.affiliation = t }
}

// WithoutClamp disables the final overflow clamp.
func WithoutClamp() SystemOption {
	return func(s *System) { s.clamp = false }
}

// WithAbilityHooks observes every activation of the system.
func WithAbilityHooks(h ability.Hooks) SystemOption {
	return func(s *System) { s.abilityHooks = h }
}

func newSystem(w *World, name string) *System {
	return &System{
		world:     w,
		name:      name,
		level:     1,
		logger:    w.logger.With("system", name),
		attrs:     make(map[*attribute.Attribute]*attribute.Value),
		clamp:     true,
		abilities: make(map[string]*grantedAbility),
	}
}

func (s *System) String() string { return s.name }

// Name implements effect.Actor.
func (s *System) Name() string { return s.name }

// Level implements effect.Actor.
func (s *System) Level() int { return s.level }

// SetLevel changes the system level.
func (s *System) SetLevel(level int) { s.level = max(level, 1) }

// Affiliation implements effect.Actor.
func (s *System) Affiliation() tag.Tag { return s.affiliation }

// SetAffiliation changes the team tag.
func (s *System) SetAffiliation(t tag.Tag) { s.affiliation = t }

// Tags implements effect.Actor.
func (s *System) Tags() tag.View { return &s.tags }

// World returns the owning world.
func (s *System) World() *World { return s.world }

// Removed reports whether the system was removed from its world.
func (s *System) Removed() bool { return s.removed }

// AddTags grants loose tags not tied to any effect.
func (s *System) AddTags(tags ...tag.Tag) { s.tags.Add(tags...) }

// RemoveTags revokes loose tags.
func (s *System) RemoveTags(tags ...tag.Tag) { s.tags.Remove(tags...) }

// HasTag reports whether t is present with positive weight.
func (s *System) HasTag(t tag.Tag) bool { return s.tags.HasTag(t) }

// AddAttribute registers attr with an initial value, clamped to its bounds.
// Re-adding an attribute overwrites its value.
func (s *System) AddAttribute(attr *attribute.Attribute, v attribute.Value) error {
	if attr == nil {
		return errors.New("nil attribute")
	}
	clamped, _, err := attr.Clamp(v)
	if err != nil {
		return err
	}
	if cur, ok := s.attrs[attr]; ok {
		*cur = clamped
		return nil
	}
	s.attrs[attr] = &clamped
	s.order = append(s.order, attr)
	return nil
}

// HasAttribute reports whether attr is registered.
func (s *System) HasAttribute(attr *attribute.Attribute) bool {
	_, ok := s.attrs[attr]
	return ok
}

// AttributeValue implements effect.Actor.
func (s *System) AttributeValue(attr *attribute.Attribute) (attribute.Value, bool) {
	v, ok := s.attrs[attr]
	if !ok {
		return attribute.Value{}, false
	}
	return *v, true
}

// Attributes returns registered attributes in registration order.
func (s *System) Attributes() []*attribute.Attribute {
	return append([]*attribute.Attribute(nil), s.order...)
}

// AddAttributeWorker registers w for phase. w must be inline, deferred or
// both.
func (s *System) AddAttributeWorker(phase Phase, w AttributeWorker) error {
	_, inline := w.(InlineWorker)
	_, deferred := w.(DeferredWorker)
	if !inline && !deferred {
		return fmt.Errorf("attribute worker %T is neither inline nor deferred", w)
	}
	if phase == PreChange {
		s.pre = append(s.pre, w)
	} else {
		s.post = append(s.post, w)
	}
	return nil
}

// AddImpactWorker registers w for impacts this system causes.
func (s *System) AddImpactWorker(w effect.ImpactWorker) {
	s.impact = append(s.impact, w)
}

// ModifyAttribute runs change through the worker pipeline and commits it.
// It returns the committed delta.
//
// PreChange inline workers adjust the proposed delta, PostChange inline
// workers adjust the new value, and both run synchronously. Deferred
// workers and impact workers only enqueue actions; they are skipped when
// runEvents is false.
func (s *System) ModifyAttribute(change AttributeChange, runEvents bool) (attribute.Value, error) {
	if s.removed {
		return attribute.Value{}, ErrSystemRemoved
	}
	cur, ok := s.attrs[change.Attribute]
	if !ok {
		return attribute.Value{}, fmt.Errorf("%w: %s on %s", ErrUnknownAttribute, change.Attribute, s.name)
	}
	old := *cur
	delta := change.Delta
	ctx := &WorkerContext{
		Target: ActorView{s: s},
		Change: change,
		Phase:  PreChange,
		Old:    old,
		Delta:  delta,
		New:    old.Add(delta),
	}

	var actions []action.RootAction
	for _, w := range s.pre {
		if !w.PreValidateWorkFor(change) || !w.ValidateWorkFor(ctx) {
			continue
		}
		if iw, ok := w.(InlineWorker); ok {
			if err := iw.Intercept(ctx, &delta); err != nil {
				s.logger.Warn("inline worker failed", "attribute", change.Attribute.Name, "phase", PreChange, "error", err)
			}
			ctx.Delta = delta
			ctx.New = old.Add(delta)
		}
		if dw, ok := w.(DeferredWorker); ok && runEvents {
			actions = append(actions, dw.Actions(ctx, s.world.ops)...)
		}
	}

	next := old.Add(delta)
	ctx.Phase = PostChange
	ctx.New = next
	ctx.Delta = delta
	for _, w := range s.post {
		if _, ok := w.(InlineWorker); !ok || !w.PreValidateWorkFor(change) || !w.ValidateWorkFor(ctx) {
			continue
		}
		if err := w.(InlineWorker).Intercept(ctx, &next); err != nil {
			s.logger.Warn("inline worker failed", "attribute", change.Attribute.Name, "phase", PostChange, "error", err)
		}
		ctx.New = next
		ctx.Delta = next.Sub(old)
	}
	if s.clamp {
		s.clampFinal(ctx, &next)
		ctx.Delta = next.Sub(old)
	}
	*cur = next
	committed := next.Sub(old)

	s.logger.Debug("attribute modified",
		"attribute", change.Attribute.Name,
		"old", old,
		"new", next,
		"effect", specName(change.Spec))

	if !runEvents {
		return committed, nil
	}
	for _, w := range s.post {
		dw, ok := w.(DeferredWorker)
		if !ok || !w.PreValidateWorkFor(change) || !w.ValidateWorkFor(ctx) {
			continue
		}
		actions = append(actions, dw.Actions(ctx, s.world.ops)...)
	}
	actions = append(actions, s.impactActions(change, committed)...)
	s.world.queue.EnqueueAll(actions)
	return committed, nil
}

// clampFinal runs after every PostChange inline worker so the committed
// value always honours the overflow policy.
func (s *System) clampFinal(ctx *WorkerContext, next *attribute.Value) {
	var c ClampWorker
	if !c.PreValidateWorkFor(ctx.Change) {
		return
	}
	if err := c.Intercept(ctx, next); err != nil {
		s.logger.Warn("clamp failed", "attribute", ctx.Change.Attribute.Name, "error", err)
	}
	ctx.New = *next
}

func (s *System) impactActions(change AttributeChange, committed attribute.Value) []action.RootAction {
	if change.Spec == nil || change.Reversal || committed.IsZero() {
		return nil
	}
	src, ok := FindAttributeSystem(change.Spec.Source)
	if !ok || len(src.impact) == 0 {
		return nil
	}
	ev := effect.ImpactEvent{
		Spec:      change.Spec,
		Attribute: change.Attribute,
		Delta:     committed,
		Ops:       s.world.ops,
	}
	var out []action.RootAction
	for _, w := range src.impact {
		if w.ValidateImpact(ev) {
			out = append(out, w.OnImpact(ev)...)
		}
	}
	return out
}

func specName(spec *effect.Spec) string {
	if spec == nil {
		return ""
	}
	return spec.Effect.Name
}
