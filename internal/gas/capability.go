package gas

import (
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

// AttributeSystemHolder is implemented by objects that carry a system for
// attribute lookups, such as host entities wrapping one.
type AttributeSystemHolder interface {
	AttributeSystem() *System
}

// AbilitySystemHolder is implemented by objects that carry a system able to
// receive effects and run abilities.
type AbilitySystemHolder interface {
	AbilitySystem() *System
}

// AttributeSystem implements AttributeSystemHolder.
func (s *System) AttributeSystem() *System { return s }

// AbilitySystem implements AbilitySystemHolder.
func (s *System) AbilitySystem() *System { return s }

// FindAttributeSystem resolves v to a live system.
func FindAttributeSystem(v any) (*System, bool) {
	switch t := v.(type) {
	case *System:
		return t, t != nil && !t.removed
	case AttributeSystemHolder:
		s := t.AttributeSystem()
		return s, s != nil && !s.removed
	default:
		return nil, false
	}
}

// FindAbilitySystem resolves v to a live system.
func FindAbilitySystem(v any) (*System, bool) {
	switch t := v.(type) {
	case *System:
		return t, t != nil && !t.removed
	case AbilitySystemHolder:
		s := t.AbilitySystem()
		return s, s != nil && !s.removed
	default:
		return nil, false
	}
}

// ActorView is the read-only handle workers receive for a system. It answers
// effect.Actor queries and cannot be turned back into a *System outside this
// package; deferred workers act on it through Ops.
type ActorView struct {
	s *System
}

var _ effect.Actor = ActorView{}

func viewOf(a effect.Actor) effect.Actor {
	if s, ok := a.(*System); ok && s != nil {
		return ActorView{s: s}
	}
	return a
}

func (v ActorView) Name() string         { return v.s.name }
func (v ActorView) Level() int           { return v.s.level }
func (v ActorView) Affiliation() tag.Tag { return v.s.affiliation }
func (v ActorView) Tags() tag.View       { return tagView{set: &v.s.tags} }
func (v ActorView) String() string       { return v.s.name }

func (v ActorView) AttributeValue(attr *attribute.Attribute) (attribute.Value, bool) {
	return v.s.AttributeValue(attr)
}

// tagView hides the mutable set behind tag.View.
type tagView struct {
	set *tag.Set
}

func (t tagView) HasTag(x tag.Tag) bool { return t.set.HasTag(x) }
func (t tagView) Weight(x tag.Tag) int  { return t.set.Weight(x) }

// unwrapActor returns the system behind a view so specs built by Ops carry
// the real source and target.
func unwrapActor(a effect.Actor) effect.Actor {
	if v, ok := a.(ActorView); ok {
		return v.s
	}
	return a
}

// resolveView handles views before falling back to find.
func resolveView(v any, find func(any) (*System, bool)) (*System, bool) {
	if av, ok := v.(ActorView); ok {
		return av.s, av.s != nil && !av.s.removed
	}
	return find(v)
}
