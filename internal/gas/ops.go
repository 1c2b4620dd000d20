package gas

import (
	"context"
	"fmt"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

// Ops builds the deferred actions workers may return. It implements
// effect.Operations. Targets that do not resolve to a live system yield nil.
type Ops struct{}

var _ effect.Operations = Ops{}

func (Ops) ModifyAttribute(target effect.Actor, attr *attribute.Attribute, delta attribute.Value, runEvents bool, p action.Priority) action.RootAction {
	s, ok := resolveView(target, FindAttributeSystem)
	if !ok || attr == nil {
		return nil
	}
	return ModifyAttributeAction(s, attr, delta, runEvents, p)
}

// ScaleAttribute scales the target's current value by (1 + proportion) when
// the action runs.
func (Ops) ScaleAttribute(target effect.Actor, attr *attribute.Attribute, proportion float64, runEvents bool, p action.Priority) action.RootAction {
	s, ok := resolveView(target, FindAttributeSystem)
	if !ok || attr == nil {
		return nil
	}
	return ScaleAttributeAction(s, attr, proportion, runEvents, p)
}

func (Ops) ApplyEffect(ge *effect.GameplayEffect, source, target effect.Actor, level int, p action.Priority) action.RootAction {
	if ge == nil || target == nil {
		return nil
	}
	return ApplyEffectAction(effect.NewSpec(ge, nil, unwrapActor(source), unwrapActor(target), level), p)
}

func (Ops) RemoveEffectsWithTag(target effect.Actor, t tag.Tag, p action.Priority) action.RootAction {
	s, ok := resolveView(target, FindAbilitySystem)
	if !ok {
		return nil
	}
	return RemoveEffectsWithTagAction(s, t, p)
}

// ModifyAttributeAction adds delta to attr on s.
func ModifyAttributeAction(s *System, attr *attribute.Attribute, delta attribute.Value, runEvents bool, p action.Priority) action.RootAction {
	return action.New(p,
		fmt.Sprintf("modify %s.%s by %s", s.name, attr.Name, delta),
		func(context.Context) error {
			_, err := s.ModifyAttribute(AttributeChange{Attribute: attr, Delta: delta}, runEvents)
			return err
		},
		func() bool { return !s.removed && s.HasAttribute(attr) },
	)
}

// ScaleAttributeAction scales attr's current value on s by proportion,
// reading the value when the action runs.
func ScaleAttributeAction(s *System, attr *attribute.Attribute, proportion float64, runEvents bool, p action.Priority) action.RootAction {
	return action.New(p,
		fmt.Sprintf("scale %s.%s by %+.4f", s.name, attr.Name, proportion),
		func(context.Context) error {
			v, ok := s.AttributeValue(attr)
			if !ok {
				return fmt.Errorf("%w: %s on %s", ErrUnknownAttribute, attr.Name, s.name)
			}
			delta := attribute.Value{Current: v.Current * proportion}
			_, err := s.ModifyAttribute(AttributeChange{Attribute: attr, Delta: delta}, runEvents)
			return err
		},
		func() bool { return !s.removed && s.HasAttribute(attr) },
	)
}

// ApplyEffectAction applies spec to its target system.
func ApplyEffectAction(spec *effect.Spec, p action.Priority) action.RootAction {
	return action.New(p,
		"apply "+spec.String(),
		func(context.Context) error {
			s, ok := FindAbilitySystem(spec.Target)
			if !ok {
				return fmt.Errorf("%w: %s", ErrNoAbilitySystem, spec.Target.Name())
			}
			_, err := s.ApplyGameplayEffect(spec)
			return err
		},
		func() bool {
			_, ok := FindAbilitySystem(spec.Target)
			return ok
		},
	)
}

// RemoveEffectAction removes c from its system if it is still active.
func RemoveEffectAction(s *System, c *Container, p action.Priority) action.RootAction {
	return action.New(p,
		fmt.Sprintf("remove %s from %s", c.Effect().Name, s.name),
		func(context.Context) error {
			s.RemoveGameplayEffect(c)
			return nil
		},
		func() bool { return !s.removed && c.Active() },
	)
}

// RemoveEffectsWithTagAction removes every container on s carrying t.
func RemoveEffectsWithTagAction(s *System, t tag.Tag, p action.Priority) action.RootAction {
	return action.New(p,
		fmt.Sprintf("remove effects tagged %s from %s", t, s.name),
		func(context.Context) error {
			s.RemoveEffectsWithTag(t)
			return nil
		},
		func() bool { return !s.removed },
	)
}
