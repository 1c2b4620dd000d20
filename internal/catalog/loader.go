package catalog

import (
	"fmt"
	"slices"

	"github.com/udisondev/gas/internal/ability"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/gas"
	"github.com/udisondev/gas/internal/tag"
)

// loader accumulates resolution errors so one pass reports everything.
type loader struct {
	c    *Catalog
	errs []error
}

func (l *loader) fail(err error) {
	if err != nil {
		l.errs = append(l.errs, err)
	}
}

func (l *loader) errorf(format string, args ...any) {
	l.errs = append(l.errs, fmt.Errorf(format, args...))
}

// parse runs an enum parser and records its error against owner.
func parse[T any](l *loader, owner string, fn func(string) (T, error), s string) T {
	v, err := fn(s)
	if err != nil {
		l.errorf("%s: %w", owner, err)
	}
	return v
}

func (l *loader) attribute(owner, name string) *attribute.Attribute {
	if name == "" {
		return nil
	}
	attr, ok := l.c.attributes[name]
	if !ok {
		l.errorf("%s: %w: attribute %q", owner, ErrUnknownReference, name)
	}
	return attr
}

func (l *loader) effect(owner, name string) *effect.GameplayEffect {
	if name == "" {
		return nil
	}
	ge, ok := l.c.effects[name]
	if !ok {
		l.errorf("%s: %w: effect %q", owner, ErrUnknownReference, name)
	}
	return ge
}

func (l *loader) tagList(names []string) []tag.Tag { return l.c.tags.GetAll(names...) }

func (l *loader) requirement(owner string, d *RequirementDoc) tag.Requirement {
	if d == nil {
		return tag.Requirement{}
	}
	r := tag.Requirement{
		Op:   parse(l, owner, tag.ParseOp, d.Op),
		Tags: l.tagList(d.Tags),
	}
	for i := range d.Children {
		r.Children = append(r.Children, l.requirement(owner, &d.Children[i]))
	}
	return r
}

func (l *loader) requirements(owner string, d RequirementsDoc) effect.Requirements {
	return effect.Requirements{
		Application: l.requirement(owner, d.Application),
		Ongoing:     l.requirement(owner, d.Ongoing),
		Removal:     l.requirement(owner, d.Removal),
	}
}

func (l *loader) magnitude(owner string, d *MagnitudeDoc) effect.Magnitude {
	if d == nil {
		return effect.Magnitude{}
	}
	m := effect.Magnitude{Coefficient: d.Coefficient, Dynamic: d.Dynamic}
	switch {
	case d.Scaler != "":
		s, err := create(scalers, "scaler", d.Scaler, newParams(l.c, owner, d.Params))
		l.fail(err)
		m.Scaler = s
	case d.Value != nil:
		m.Scaler = effect.ConstantScaler(*d.Value)
	}

	for _, md := range d.Modifiers {
		switch md.Type {
		case "Stacks":
			m.Modifiers = append(m.Modifiers, effect.StackModifier{})
		case "", "Attribute":
			m.Modifiers = append(m.Modifiers, effect.AttributeModifier{
				Attribute:   l.attribute(owner, md.Attribute),
				From:        parse(l, owner, effect.ParseCapture, md.From),
				Component:   parse(l, owner, effect.ParseComponent, md.Component),
				Operation:   parse(l, owner, effect.ParseImpactOperation, md.Operation),
				Coefficient: md.Coefficient,
			})
		default:
			l.errorf("%s: %w: magnitude modifier %q", owner, ErrUnknownType, md.Type)
		}
	}
	return m
}

func (l *loader) addAttribute(d AttributeDoc) {
	if d.Name == "" {
		l.errorf("attribute without name")
		return
	}
	if _, dup := l.c.attributes[d.Name]; dup {
		l.fail(fmt.Errorf("%w: attribute %q", ErrDuplicate, d.Name))
		return
	}
	policy, err := attribute.ParseOverflowPolicy(d.Overflow)
	if err != nil {
		l.errorf("attribute %s: %w: %v", d.Name, effect.ErrDataIntegrity, err)
		return
	}
	l.c.attributes[d.Name] = attribute.NewBounded(d.Name, policy, d.Floor, d.Ceil)
	l.c.attributeOrder = append(l.c.attributeOrder, d.Name)
}

func (l *loader) fillEffect(ge *effect.GameplayEffect, d EffectDoc) {
	owner := "effect " + d.Name
	ge.Description = d.Description
	ge.Icon = d.Icon
	ge.Tags = effect.Tags{
		Asset:   l.c.tags.Get(d.Tags.Asset),
		Context: l.tagList(d.Tags.Context),
		Granted: l.tagList(d.Tags.Granted),
	}

	imp := d.Impact
	ge.Impact = effect.ImpactSpecification{
		Attribute:              l.attribute(owner, imp.Attribute),
		Operation:              parse(l, owner, effect.ParseImpactOperation, imp.Operation),
		Target:                 parse(l, owner, effect.ParseImpactTarget, imp.Target),
		Magnitude:              l.magnitude(owner, imp.Magnitude),
		Affiliation:            parse(l, owner, effect.ParseAffiliationPolicy, imp.Affiliation),
		ImpactType:             l.c.tags.Get(imp.ImpactType),
		ReApplication:          parse(l, owner, effect.ParseReApplicationPolicy, imp.ReApplication),
		ReverseImpactOnRemoval: imp.ReverseOnRemoval,
	}
	for _, cd := range imp.Contained {
		ge.Impact.Contained = append(ge.Impact.Contained, effect.ContainedEffect{
			Effect:  l.effect(owner, cd.Effect),
			Trigger: parse(l, owner, effect.ParseTrigger, cd.Trigger),
		})
	}

	dur := d.Duration
	ge.Duration = effect.DurationSpecification{
		Policy:   parse(l, owner, effect.ParseDurationPolicy, dur.Policy),
		Duration: l.magnitude(owner, dur.Duration),
		Stacking: parse(l, owner, effect.ParseStackingPolicy, dur.Stacking),
		Ticks: effect.TickSpecification{
			Mode:     parse(l, owner, effect.ParseTickMode, dur.Ticks.Mode),
			Value:    l.magnitude(owner, dur.Ticks.Value),
			Rounding: parse(l, owner, effect.ParseRounding, dur.Ticks.Rounding),
		},
		TickOnApplication:    dur.TickOnApplication,
		ShareTicks:           dur.ShareTicks,
		MaxStacks:            dur.MaxStacks,
		StacksPerApplication: dur.StacksPerApplication,
	}

	for _, wd := range d.Workers {
		w, err := create(effectWorkers, "effect worker", wd.Type, newParams(l.c, owner, wd.Params))
		if err != nil {
			l.fail(err)
			continue
		}
		ge.Workers = append(ge.Workers, w)
	}

	ge.SourceRequirements = l.requirements(owner, d.SourceRequirements)
	ge.TargetRequirements = l.requirements(owner, d.TargetRequirements)
}

func (l *loader) addAbility(d AbilityDoc) {
	if d.Name == "" {
		l.errorf("ability without name")
		return
	}
	if _, dup := l.c.abilities[d.Name]; dup {
		l.fail(fmt.Errorf("%w: ability %q", ErrDuplicate, d.Name))
		return
	}
	owner := "ability " + d.Name
	a := &ability.Ability{
		Name:        d.Name,
		Description: d.Description,
		Tags: ability.Tags{
			Asset:                   l.c.tags.Get(d.Tags.Asset),
			ActivationRequired:      l.requirement(owner, d.Tags.ActivationRequired),
			ActivationBlocked:       l.tagList(d.Tags.ActivationBlocked),
			GrantedWhileActive:      l.tagList(d.Tags.GrantedWhileActive),
			CancelAbilitiesWithTags: l.tagList(d.Tags.CancelAbilitiesWithTags),
		},
		Cost:     l.effect(owner, d.Cost),
		Cooldown: l.effect(owner, d.Cooldown),
		MinLevel: d.MinLevel,
		MaxLevel: d.MaxLevel,
	}
	for i, sd := range d.Stages {
		policy, ok := ability.PolicyByName(sd.Policy)
		if !ok {
			l.errorf("%s: stage %d: %w: stage policy %q", owner, i, ErrUnknownType, sd.Policy)
		}
		st := ability.Stage{Name: sd.Name, Policy: policy, ApplyUsageEffects: sd.ApplyUsageEffects}
		for _, td := range sd.Tasks {
			t, err := create(tasks, "task", td.Type, newParams(l.c, owner, td.Params))
			if err != nil {
				l.fail(err)
				continue
			}
			st.Tasks = append(st.Tasks, t)
		}
		a.Stages = append(a.Stages, st)
	}
	l.c.abilities[d.Name] = a
}

func (l *loader) addArchetype(d ArchetypeDoc) {
	if d.Name == "" {
		l.errorf("archetype without name")
		return
	}
	if _, dup := l.c.archetypes[d.Name]; dup {
		l.fail(fmt.Errorf("%w: archetype %q", ErrDuplicate, d.Name))
		return
	}
	owner := "archetype " + d.Name
	a := &Archetype{
		Name:        d.Name,
		Level:       max(d.Level, 1),
		Affiliation: l.c.tags.Get(d.Affiliation),
		Tags:        l.tagList(d.Tags),
		NoClamp:     d.NoClamp,
	}

	for name, vd := range d.Attributes {
		attr := l.attribute(owner, name)
		if attr == nil {
			continue
		}
		v := attribute.Of(vd.Current)
		if vd.Base != nil {
			v.Base = *vd.Base
		}
		a.Attributes = append(a.Attributes, AttributeValue{Attribute: attr, Value: v})
	}
	// Authored attribute order keeps spawned systems deterministic.
	slices.SortFunc(a.Attributes, func(x, y AttributeValue) int {
		return slices.Index(l.c.attributeOrder, x.Attribute.Name) - slices.Index(l.c.attributeOrder, y.Attribute.Name)
	})

	for _, wd := range d.Workers {
		phase, err := gas.ParsePhase(wd.Phase)
		if err != nil {
			l.errorf("%s: %w", owner, err)
			continue
		}
		w, err := create(attributeWorkers, "attribute worker", wd.Type, newParams(l.c, owner, wd.Params))
		if err != nil {
			l.fail(err)
			continue
		}
		a.Workers = append(a.Workers, WorkerBinding{Phase: phase, Worker: w})
	}
	for _, wd := range d.ImpactWorkers {
		w, err := create(impactWorkers, "impact worker", wd.Type, newParams(l.c, owner, wd.Params))
		if err != nil {
			l.fail(err)
			continue
		}
		a.ImpactWorkers = append(a.ImpactWorkers, w)
	}
	for _, g := range d.Abilities {
		ab, ok := l.c.abilities[g.Ability]
		if !ok {
			l.errorf("%s: %w: ability %q", owner, ErrUnknownReference, g.Ability)
			continue
		}
		a.Abilities = append(a.Abilities, Grant{Ability: ab, Level: max(g.Level, 1)})
	}

	l.c.archetypes[d.Name] = a
	l.c.archetypeOrder = append(l.c.archetypeOrder, d.Name)
}
