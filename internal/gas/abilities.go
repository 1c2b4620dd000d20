package gas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/udisondev/gas/internal/ability"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/sched"
	"github.com/udisondev/gas/internal/tag"
)

type grantedAbility struct {
	spec  *ability.Spec
	proxy *ability.Proxy
}

// GrantAbility grants a at level. Granting an already granted ability
// updates its level.
func (s *System) GrantAbility(a *ability.Ability, level int) (*ability.Spec, error) {
	if a == nil {
		return nil, errors.New("grant: nil ability")
	}
	if err := a.Validate(); err != nil {
		return nil, err
	}
	if g, ok := s.abilities[a.Name]; ok {
		g.spec.SetLevel(level)
		return g.spec, nil
	}
	g := &grantedAbility{spec: ability.NewSpec(a, s, level)}
	s.abilities[a.Name] = g
	s.abilityOrder = append(s.abilityOrder, a.Name)
	s.logger.Debug("ability granted", "ability", a.Name, "level", g.spec.Level())
	return g.spec, nil
}

// RevokeAbility cancels and removes the named ability.
func (s *System) RevokeAbility(name string) bool {
	g, ok := s.abilities[name]
	if !ok {
		return false
	}
	if g.proxy != nil {
		g.proxy.Cancel()
	}
	delete(s.abilities, name)
	s.abilityOrder = slices.DeleteFunc(s.abilityOrder, func(n string) bool { return n == name })
	return true
}

// Ability returns the spec of a granted ability.
func (s *System) Ability(name string) (*ability.Spec, bool) {
	g, ok := s.abilities[name]
	if !ok {
		return nil, false
	}
	return g.spec, true
}

// Abilities returns the granted ability specs in grant order.
func (s *System) Abilities() []*ability.Spec {
	out := make([]*ability.Spec, 0, len(s.abilityOrder))
	for _, name := range s.abilityOrder {
		out = append(out, s.abilities[name].spec)
	}
	return out
}

// SetAbilityHooks replaces the hooks passed to new activations.
func (s *System) SetAbilityHooks(h ability.Hooks) { s.abilityHooks = h }

// ActiveAbilities returns the running proxies in grant order.
func (s *System) ActiveAbilities() []*ability.Proxy {
	var out []*ability.Proxy
	for _, name := range s.abilityOrder {
		if p := s.abilities[name].proxy; p != nil {
			out = append(out, p)
		}
	}
	return out
}

// InCriticalSection reports whether any running ability is inside a
// critical section.
func (s *System) InCriticalSection() bool {
	for _, p := range s.ActiveAbilities() {
		if p.InCriticalSection() {
			return true
		}
	}
	return false
}

// CanActivateAbility reports why the named ability cannot activate now, or
// nil if it can.
func (s *System) CanActivateAbility(name string) error {
	if s.removed {
		return ErrSystemRemoved
	}
	g, ok := s.abilities[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrAbilityNotGranted, name)
	}
	if g.proxy != nil {
		return fmt.Errorf("%w: %s", ErrAbilityActive, name)
	}
	a := g.spec.Ability
	if !a.LevelAllowed(g.spec.Level()) {
		return fmt.Errorf("%w: %s level %d out of bounds", ErrAbilityBlocked, name, g.spec.Level())
	}
	if tag.HasAny(&s.tags, a.Tags.ActivationBlocked...) {
		return fmt.Errorf("%w: %s blocked by tags", ErrAbilityBlocked, name)
	}
	if !a.Tags.ActivationRequired.Met(&s.tags) {
		return fmt.Errorf("%w: %s requires %s", ErrAbilityBlocked, name, a.Tags.ActivationRequired)
	}
	if cd := a.Cooldown; cd != nil {
		if s.FindContainer(cd) != nil || (len(cd.Tags.Granted) > 0 && tag.HasAny(&s.tags, cd.Tags.Granted...)) {
			return fmt.Errorf("%w: %s on cooldown", ErrAbilityBlocked, name)
		}
	}
	if err := s.canAfford(g.spec); err != nil {
		return err
	}
	if hasCriticalTask(a) && s.InCriticalSection() {
		return fmt.Errorf("%w: %s", ErrCriticalSection, name)
	}
	return nil
}

// canAfford checks that the cost impact would not push a decreasing
// attribute component below zero.
func (s *System) canAfford(spec *ability.Spec) error {
	cost := spec.Ability.Cost
	if cost == nil || cost.Impact.Attribute == nil {
		return nil
	}
	attr := cost.Impact.Attribute
	cur, ok := s.AttributeValue(attr)
	if !ok {
		return fmt.Errorf("%w: %s cost needs %s", ErrCannotAfford, spec.Name(), attr.Name)
	}
	es := effect.NewSpec(cost, spec, s, s, spec.Level())
	mag, err := es.Magnitude(1)
	if err != nil {
		return err
	}
	delta, err := es.ImpactDelta(cur, mag)
	if err != nil {
		return err
	}
	next := cur.Add(delta)
	if (delta.Current < 0 && next.Current < 0) || (delta.Base < 0 && next.Base < 0) {
		return fmt.Errorf("%w: %s needs %s, have %s", ErrCannotAfford, spec.Name(), delta.Negate(), cur)
	}
	return nil
}

func hasCriticalTask(a *ability.Ability) bool {
	for _, st := range a.Stages {
		for _, t := range st.Tasks {
			if t.IsCriticalSection() {
				return true
			}
		}
	}
	return false
}

// TryActivateAbility activates the named ability under ctx and runs it
// until its first suspension point. The returned proxy may already be
// completed.
func (s *System) TryActivateAbility(ctx context.Context, name string) (*ability.Proxy, error) {
	if err := s.CanActivateAbility(name); err != nil {
		return nil, err
	}
	g := s.abilities[name]
	a := g.spec.Ability
	if len(a.Tags.CancelAbilitiesWithTags) > 0 {
		s.CancelAbilitiesWithTags(a.Tags.CancelAbilitiesWithTags...)
	}
	s.tags.Add(a.Tags.GrantedWhileActive...)

	p := ability.NewProxy(g.spec, abilityOwner{s}, s.abilityHooks)
	g.proxy = p
	s.logger.Debug("ability activated", "ability", name, "level", g.spec.Level())
	if err := p.Start(ctx); err != nil {
		g.proxy = nil
		s.tags.Remove(a.Tags.GrantedWhileActive...)
		return nil, err
	}
	return p, nil
}

// CancelAbility cancels the named running ability.
func (s *System) CancelAbility(name string) bool {
	g, ok := s.abilities[name]
	if !ok || g.proxy == nil {
		return false
	}
	g.proxy.Cancel()
	return true
}

// CancelAbilitiesWithTags cancels every running ability whose asset tag is
// in tags. It returns the number cancelled.
func (s *System) CancelAbilitiesWithTags(tags ...tag.Tag) int {
	n := 0
	for _, p := range s.ActiveAbilities() {
		if tag.Contains(tags, p.Spec().Ability.Tags.Asset) {
			p.Cancel()
			n++
		}
	}
	return n
}

// InjectAbility applies inj to the named running ability.
func (s *System) InjectAbility(name string, inj ability.Injection) bool {
	g, ok := s.abilities[name]
	if !ok || g.proxy == nil {
		return false
	}
	return g.proxy.Inject(inj)
}

func (s *System) cancelAllAbilities() {
	for _, p := range s.ActiveAbilities() {
		p.Cancel()
	}
}

// abilityOwner adapts a System to ability.Owner.
type abilityOwner struct{ s *System }

func (o abilityOwner) Actor() effect.Actor         { return o.s }
func (o abilityOwner) Scheduler() *sched.Scheduler { return o.s.world.sched }
func (o abilityOwner) Logger() *slog.Logger        { return o.s.logger }

func (o abilityOwner) ApplyUsageEffects(spec *ability.Spec) error {
	a := spec.Ability
	for _, ge := range []*effect.GameplayEffect{a.Cost, a.Cooldown} {
		if ge == nil {
			continue
		}
		if _, err := o.s.ApplyGameplayEffect(effect.NewSpec(ge, spec, o.s, o.s, spec.Level())); err != nil {
			return fmt.Errorf("ability %s: %w", a.Name, err)
		}
	}
	return nil
}

func (o abilityOwner) ApplyEffect(ge *effect.GameplayEffect, target effect.Actor, spec *ability.Spec) error {
	t, ok := FindAbilitySystem(target)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNoAbilitySystem, target.Name())
	}
	_, err := t.ApplyGameplayEffect(effect.NewSpec(ge, spec, o.s, t, spec.Level()))
	return err
}

func (o abilityOwner) AbilityEnded(p *ability.Proxy) {
	a := p.Spec().Ability
	if g, ok := o.s.abilities[a.Name]; ok && g.proxy == p {
		g.proxy = nil
	}
	o.s.tags.Remove(a.Tags.GrantedWhileActive...)
	o.s.logger.Debug("ability ended", "ability", a.Name, "cancelled", p.Cancelled(), "failed", p.Failed())
}
