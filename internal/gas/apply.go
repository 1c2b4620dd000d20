package gas

import (
	"errors"
	"fmt"
	"slices"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

// Outcome is what an application did.
type Outcome int8

const (
	Rejected Outcome = iota
	Executed
	Created
	ReApplied
)

var outcomeNames = []string{"Rejected", "Executed", "Created", "ReApplied"}

func (o Outcome) String() string {
	if int(o) >= 0 && int(o) < len(outcomeNames) {
		return outcomeNames[o]
	}
	return fmt.Sprintf("Outcome(%d)", int8(o))
}

// ApplyResult reports an application.
type ApplyResult struct {
	Outcome Outcome
	// Container is the created or re-applied container.
	Container *Container
	// Impact is the committed impact of this application.
	Impact attribute.Value
	// Reason explains a rejection.
	Reason string
}

var emptyTags tag.Set

// ApplyGameplayEffect applies spec to s. A nil spec target is set to s.
//
// Instant effects execute once. Durational and infinite effects re-apply to
// an existing container for the same effect unless their re-application
// policy is Append, and otherwise create a new container. Rejections are
// reported through the result, not as errors.
func (s *System) ApplyGameplayEffect(spec *effect.Spec) (ApplyResult, error) {
	if s.removed {
		return ApplyResult{}, ErrSystemRemoved
	}
	if spec == nil || spec.Effect == nil {
		return ApplyResult{}, errors.New("apply: nil spec")
	}
	if spec.Target == nil {
		spec.Target = s
	} else if t, ok := FindAbilitySystem(spec.Target); !ok || t != s {
		return ApplyResult{}, fmt.Errorf("apply %s: target is not %s", spec, s.name)
	}
	if s.depth >= maxContainedDepth {
		return ApplyResult{}, fmt.Errorf("%w: effect %s: contained effects nested deeper than %d",
			effect.ErrDataIntegrity, spec.Effect.Name, maxContainedDepth)
	}
	s.depth++
	defer func() { s.depth-- }()

	reason, err := s.admit(spec)
	if err != nil {
		return ApplyResult{}, err
	}
	if reason != "" {
		s.logger.Debug("effect rejected", "effect", spec.Effect.Name, "reason", reason)
		return ApplyResult{Outcome: Rejected, Reason: reason}, nil
	}

	ge := spec.Effect
	if ge.Duration.Policy == effect.Instant {
		impact, err := s.executeImpact(spec, nil, nil)
		if err != nil {
			return ApplyResult{}, err
		}
		s.enqueueEvents(spec, 1, nil, effect.OnApplication)
		s.applyContained(spec, effect.OnApplication)
		s.logger.Debug("effect executed", "effect", ge.Name, "impact", impact)
		return ApplyResult{Outcome: Executed, Impact: impact}, nil
	}

	if ge.Impact.ReApplication != effect.Append {
		if c := s.FindContainer(ge); c != nil {
			return s.reapply(c, spec)
		}
	}
	return s.create(spec)
}

func (s *System) admit(spec *effect.Spec) (string, error) {
	ge := spec.Effect
	ok, err := ge.Impact.Affiliation.Allows(spec.Source, spec.Target)
	if err != nil {
		return "", err
	}
	if !ok {
		return "affiliation " + ge.Impact.Affiliation.String(), nil
	}
	if !ge.TargetRequirements.Application.Met(s.Tags()) {
		return "target application requirements", nil
	}
	if !ge.SourceRequirements.Application.Met(sourceTags(spec)) {
		return "source application requirements", nil
	}
	if s.removalMet(spec) {
		return "removal requirements met", nil
	}
	return "", nil
}

func sourceTags(spec *effect.Spec) tag.View {
	if spec.Source == nil {
		return &emptyTags
	}
	return spec.Source.Tags()
}

func (s *System) ongoingMet(spec *effect.Spec) bool {
	ge := spec.Effect
	return ge.TargetRequirements.Ongoing.Met(s.Tags()) && ge.SourceRequirements.Ongoing.Met(sourceTags(spec))
}

func (s *System) removalMet(spec *effect.Spec) bool {
	ge := spec.Effect
	tr, sr := ge.TargetRequirements.Removal, ge.SourceRequirements.Removal
	return (!tr.IsEmpty() && tr.Met(s.Tags())) || (!sr.IsEmpty() && sr.Met(sourceTags(spec)))
}

func (s *System) create(spec *effect.Spec) (ApplyResult, error) {
	ge := spec.Effect
	duration, err := spec.Duration()
	if err != nil {
		return ApplyResult{}, err
	}
	ticks, period, err := spec.TickSchedule()
	if err != nil {
		return ApplyResult{}, err
	}

	c := newContainer(s.world.newID(), spec, duration, ticks, period)
	c.ongoing = s.ongoingMet(spec)
	s.shelf = append(s.shelf, c)
	s.tags.Add(ge.Tags.Granted...)

	added, packets, _ := c.addStacks(ge.StacksPerApplication(), duration)
	res := ApplyResult{Outcome: Created, Container: c}
	if !ge.Periodic() && c.ongoing {
		if res.Impact, err = s.applyStackImpact(c, added, packets); err != nil {
			return res, err
		}
	}
	if ge.Duration.TickOnApplication && c.ongoing {
		s.runExecutions(c, c.fireOnApplication())
	}
	s.enqueueEvents(spec, c.Stacks(), c, effect.OnApplication)
	s.applyContained(spec, effect.OnApplication)

	s.logger.Debug("effect applied",
		"effect", ge.Name,
		"container", c.id,
		"duration", duration,
		"ticks", ticks,
		"period", period,
		"stacks", c.Stacks())
	return res, nil
}

// reapply runs the re-application policy on c. Refresh and Extend act on
// the stacks present before this application.
func (s *System) reapply(c *Container, spec *effect.Spec) (ApplyResult, error) {
	ge := c.spec.Effect
	policy := ge.Impact.ReApplication
	duration, err := spec.Duration()
	if err != nil {
		return ApplyResult{}, err
	}

	switch {
	case policy.Refreshes():
		c.refresh(duration)
	case policy.Extends():
		c.extend(duration)
	}

	res := ApplyResult{Outcome: ReApplied, Container: c}
	if !policy.Stacks() {
		s.logger.Debug("effect re-applied", "effect", ge.Name, "container", c.id, "policy", policy)
		return res, nil
	}
	added, packets, evicted := c.addStacks(ge.StacksPerApplication(), duration)
	if added > 0 && !ge.Periodic() && c.ongoing {
		if res.Impact, err = s.applyStackImpact(c, added, packets); err != nil {
			return res, err
		}
	}
	s.reversePackets(c, evicted)
	if added > 0 {
		s.enqueueEvents(c.spec, c.Stacks(), c, effect.OnApplication)
		s.applyContained(c.spec, effect.OnApplication)
	}
	s.logger.Debug("effect re-applied",
		"effect", ge.Name,
		"container", c.id,
		"policy", policy,
		"added", added,
		"stacks", c.Stacks())
	return res, nil
}

// applyStackImpact applies a non-periodic impact for freshly added stacks:
// once per packet for partitioned containers, once per stack otherwise.
func (s *System) applyStackImpact(c *Container, added int, packets []*packet) (attribute.Value, error) {
	var total attribute.Value
	if c.partitioned() {
		for _, p := range packets {
			d, err := s.executeImpact(c.spec, c, p)
			if err != nil {
				return total, err
			}
			total = total.Add(d)
		}
		return total, nil
	}
	for range added {
		d, err := s.executeImpact(c.spec, c, nil)
		if err != nil {
			return total, err
		}
		total = total.Add(d)
	}
	return total, nil
}

// executeImpact applies one instance of spec's impact and, for containers,
// tracks the committed delta against c or p.
func (s *System) executeImpact(spec *effect.Spec, c *Container, p *packet) (attribute.Value, error) {
	attr := spec.Effect.Impact.Attribute
	if attr == nil {
		return attribute.Value{}, nil
	}
	cur, ok := s.AttributeValue(attr)
	if !ok {
		s.logger.Debug("impact skipped", "effect", spec.Effect.Name, "attribute", attr.Name, "reason", "attribute missing")
		return attribute.Value{}, nil
	}
	stacks := 1
	if c != nil {
		stacks = max(c.Stacks(), 1)
	}
	mag, err := spec.Magnitude(stacks)
	if err != nil {
		return attribute.Value{}, err
	}
	delta, err := spec.ImpactDelta(cur, mag)
	if err != nil {
		return attribute.Value{}, err
	}
	committed, err := s.ModifyAttribute(AttributeChange{Attribute: attr, Delta: delta, Spec: spec}, true)
	if err != nil {
		return attribute.Value{}, err
	}
	if c != nil {
		c.track(p, committed)
	}
	return committed, nil
}

func (s *System) runExecutions(c *Container, execs []execution) {
	if !c.ongoing || len(execs) == 0 {
		return
	}
	for _, ex := range execs {
		for range ex.count {
			if _, err := s.executeImpact(c.spec, c, ex.p); err != nil {
				s.logger.Warn("periodic impact failed", "effect", c.spec.Effect.Name, "container", c.id, "error", err)
				return
			}
		}
	}
	s.enqueueEvents(c.spec, c.Stacks(), c, effect.OnTick)
	s.applyContained(c.spec, effect.OnTick)
}

func (s *System) reverse(spec *effect.Spec, delta attribute.Value) {
	attr := spec.Effect.Impact.Attribute
	if attr == nil || delta.IsZero() || !s.HasAttribute(attr) {
		return
	}
	change := AttributeChange{Attribute: attr, Delta: delta, Spec: spec, Reversal: true}
	if _, err := s.ModifyAttribute(change, true); err != nil {
		s.logger.Warn("impact reversal failed", "effect", spec.Effect.Name, "error", err)
	}
}

func (s *System) reversePackets(c *Container, packets []*packet) {
	if !c.spec.Effect.Impact.ReverseImpactOnRemoval {
		return
	}
	for _, p := range packets {
		s.reverse(c.spec, p.tracked.Negate())
		p.tracked = attribute.Value{}
	}
}

func (s *System) enqueueEvents(spec *effect.Spec, stacks int, c *Container, trig effect.Trigger) {
	workers := spec.Effect.Workers
	if len(workers) == 0 {
		return
	}
	ev := effect.Event{Spec: spec, Stacks: stacks, Ops: s.world.ops}
	if c != nil && trig != effect.OnRemoval {
		ev.Valid = c.Active
	}
	var actions []action.RootAction
	for _, w := range workers {
		switch trig {
		case effect.OnApplication:
			actions = append(actions, w.OnApplication(ev)...)
		case effect.OnTick:
			actions = append(actions, w.OnTick(ev)...)
		case effect.OnRemoval:
			actions = append(actions, w.OnRemoval(ev)...)
		}
	}
	s.world.queue.EnqueueAll(actions)
}

func (s *System) applyContained(spec *effect.Spec, trig effect.Trigger) {
	for _, ce := range spec.Effect.Impact.Contained {
		if ce.Trigger != trig || ce.Effect == nil {
			continue
		}
		child := effect.NewSpec(ce.Effect, spec.Origin, spec.Source, s, spec.Level)
		if _, err := s.ApplyGameplayEffect(child); err != nil {
			s.logger.Warn("contained effect failed",
				"effect", spec.Effect.Name,
				"contained", ce.Effect.Name,
				"trigger", trig,
				"error", err)
		}
	}
}

// Tick advances every container by dt seconds. Containers whose removal
// requirements are met, and containers that expire, are removed after the
// pass.
func (s *System) Tick(dt float64) {
	if len(s.shelf) == 0 {
		return
	}
	var doomed []*Container
	for _, c := range slices.Clone(s.shelf) {
		if !c.active {
			continue
		}
		if s.removalMet(c.spec) {
			doomed = append(doomed, c)
			continue
		}
		c.ongoing = s.ongoingMet(c.spec)
		u := c.updateTimeRemaining(dt)
		s.runExecutions(c, u.execs)
		s.reversePackets(c, u.expired)
		if u.done {
			doomed = append(doomed, c)
		}
	}
	for _, c := range doomed {
		s.removeContainer(c)
	}
}

func (s *System) removeContainer(c *Container) {
	if !c.active {
		return
	}
	c.active = false
	s.shelf = slices.DeleteFunc(s.shelf, func(o *Container) bool { return o == c })

	ge := c.spec.Effect
	s.enqueueEvents(c.spec, c.Stacks(), c, effect.OnRemoval)
	s.tags.Remove(ge.Tags.Granted...)
	if ge.Impact.ReverseImpactOnRemoval {
		s.reverse(c.spec, c.TrackedImpact().Negate())
		c.tracked = attribute.Value{}
		for _, p := range c.packets {
			p.tracked = attribute.Value{}
		}
	}
	s.applyContained(c.spec, effect.OnRemoval)
	s.logger.Debug("effect removed", "effect", ge.Name, "container", c.id)
}

// Containers returns the active containers in application order.
func (s *System) Containers() []*Container { return slices.Clone(s.shelf) }

// FindContainer returns the oldest active container for ge.
func (s *System) FindContainer(ge *effect.GameplayEffect) *Container {
	for _, c := range s.shelf {
		if c.spec.Effect == ge {
			return c
		}
	}
	return nil
}

// RemoveGameplayEffect removes c if it is active on s.
func (s *System) RemoveGameplayEffect(c *Container) bool {
	if c == nil || !c.active || !slices.Contains(s.shelf, c) {
		return false
	}
	s.removeContainer(c)
	return true
}

// RemoveEffectsWithTag removes every container whose effect has t as asset
// tag or grants it. It returns the number removed.
func (s *System) RemoveEffectsWithTag(t tag.Tag) int {
	var matched []*Container
	for _, c := range s.shelf {
		ge := c.spec.Effect
		if ge.Tags.Asset == t || tag.Contains(ge.Tags.Granted, t) {
			matched = append(matched, c)
		}
	}
	for _, c := range matched {
		s.removeContainer(c)
	}
	return len(matched)
}

// StackEffect adds amount stacks to c, or removes the oldest -amount stacks
// when negative. Removed stacks have their impact reversed when the effect
// reverses on removal. A container left without stacks is removed. It
// returns the new stack count.
func (s *System) StackEffect(c *Container, amount int) (int, error) {
	if c == nil || !c.active {
		return 0, errors.New("stack: container not active")
	}
	ge := c.spec.Effect
	switch {
	case amount > 0:
		duration, err := c.spec.Duration()
		if err != nil {
			return c.Stacks(), err
		}
		added, packets, evicted := c.addStacks(amount, duration)
		if added > 0 && !ge.Periodic() && c.ongoing {
			if _, err := s.applyStackImpact(c, added, packets); err != nil {
				return c.Stacks(), err
			}
		}
		s.reversePackets(c, evicted)
	case amount < 0:
		if c.partitioned() {
			s.reversePackets(c, c.removeStacks(-amount))
			break
		}
		before := c.stacks
		removed := min(-amount, before)
		if ge.Impact.ReverseImpactOnRemoval && before > 0 && removed > 0 {
			share := attribute.Value{
				Current: c.tracked.Current * float64(removed) / float64(before),
				Base:    c.tracked.Base * float64(removed) / float64(before),
			}
			s.reverse(c.spec, share.Negate())
			c.tracked = c.tracked.Sub(share)
		}
		c.removeStacks(removed)
	}
	if c.Stacks() == 0 {
		s.removeContainer(c)
		return 0, nil
	}
	return c.Stacks(), nil
}
