package effect

import (
	"errors"
	"fmt"

	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/tag"
)

// Tags classifies an effect and lists the tags it grants while active.
type Tags struct {
	Asset   tag.Tag
	Context []tag.Tag
	Granted []tag.Tag
}

// ContainedEffect is a sub-effect applied to the same target at a lifecycle
// point of the parent.
type ContainedEffect struct {
	Effect  *GameplayEffect
	Trigger Trigger
}

// ImpactSpecification describes what an effect does to one attribute.
type ImpactSpecification struct {
	// Attribute may be nil for effects that only grant tags or run workers.
	Attribute              *attribute.Attribute
	Operation              ImpactOperation
	Target                 ImpactTarget
	Magnitude              Magnitude
	Affiliation            AffiliationPolicy
	ImpactType             tag.Tag
	ReApplication          ReApplicationPolicy
	ReverseImpactOnRemoval bool
	Contained              []ContainedEffect
}

// TickSpecification derives the periodic schedule of a container.
type TickSpecification struct {
	Mode     TickMode
	Value    Magnitude
	Rounding Rounding
}

// DurationSpecification describes how long an effect stays and how it stacks.
type DurationSpecification struct {
	Policy            DurationPolicy
	Duration          Magnitude
	Stacking          StackingPolicy
	Ticks             TickSpecification
	TickOnApplication bool
	// ShareTicks makes a partitioned container tick once for all stacks.
	ShareTicks bool
	// MaxStacks caps the stack count; 0 means unlimited.
	MaxStacks int
	// StacksPerApplication defaults to 1.
	StacksPerApplication int
}

// Requirements are tag predicates checked against one side of a spec.
// Application gates creation, Ongoing gates ticking and Removal removes the
// container once met.
type Requirements struct {
	Application tag.Requirement
	Ongoing     tag.Requirement
	Removal     tag.Requirement
}

// GameplayEffect is an authored, immutable effect definition.
type GameplayEffect struct {
	Name        string
	Description string
	Icon        string

	Tags     Tags
	Impact   ImpactSpecification
	Duration DurationSpecification
	Workers  []Worker

	SourceRequirements Requirements
	TargetRequirements Requirements
}

func (ge *GameplayEffect) String() string {
	if ge == nil {
		return "<nil>"
	}
	return ge.Name
}

// Periodic reports whether the effect applies its impact on ticks rather
// than once on application.
func (ge *GameplayEffect) Periodic() bool {
	return ge.Duration.Policy != Instant && ge.Duration.Ticks.Mode != NoTicks
}

// StacksPerApplication returns the number of stacks one application adds.
func (ge *GameplayEffect) StacksPerApplication() int {
	return max(ge.Duration.StacksPerApplication, 1)
}

// Validate checks enum ranges and policy combinations. It returns every
// problem found, joined.
func (ge *GameplayEffect) Validate() error {
	return ge.validate(make(map[*GameplayEffect]bool))
}

func (ge *GameplayEffect) validate(seen map[*GameplayEffect]bool) error {
	if ge == nil {
		return fmt.Errorf("%w: nil effect", ErrDataIntegrity)
	}
	if seen[ge] {
		return nil
	}
	seen[ge] = true

	var errs []error
	add := func(format string, args ...any) {
		errs = append(errs, fmt.Errorf("%w: effect %s: "+format, append([]any{ErrDataIntegrity, ge.Name}, args...)...))
	}

	imp := ge.Impact
	dur := ge.Duration
	if !impactOperationNames.valid(imp.Operation) {
		add("impact operation %d", imp.Operation)
	}
	if !impactTargetNames.valid(imp.Target) {
		add("impact target %d", imp.Target)
	}
	if !affiliationNames.valid(imp.Affiliation) {
		add("affiliation policy %d", imp.Affiliation)
	}
	if !reApplicationNames.valid(imp.ReApplication) {
		add("re-application policy %d", imp.ReApplication)
	}
	if !durationPolicyNames.valid(dur.Policy) {
		add("duration policy %d", dur.Policy)
	}
	if !stackingPolicyNames.valid(dur.Stacking) {
		add("stacking policy %d", dur.Stacking)
	}
	if !tickModeNames.valid(dur.Ticks.Mode) {
		add("tick mode %d", dur.Ticks.Mode)
	}
	if !roundingNames.valid(dur.Ticks.Rounding) {
		add("rounding %d", dur.Ticks.Rounding)
	}
	if dur.MaxStacks < 0 {
		add("negative max stacks %d", dur.MaxStacks)
	}
	if imp.Attribute != nil && imp.Magnitude.IsZero() {
		add("impact on %s without magnitude", imp.Attribute.Name)
	}

	switch dur.Policy {
	case Durational:
		if dur.Duration.IsZero() {
			add("durational effect without duration")
		}
	case Infinite:
		if dur.Ticks.Mode == FixedTicks {
			add("infinite effect cannot use a fixed tick count")
		}
	case Instant:
		if dur.Ticks.Mode != NoTicks {
			add("instant effect cannot tick")
		}
		if imp.ReverseImpactOnRemoval {
			add("instant effect cannot reverse its impact")
		}
	}
	if dur.Ticks.Mode != NoTicks && dur.Ticks.Value.IsZero() {
		add("tick mode %s without tick value", dur.Ticks.Mode)
	}

	for i, c := range imp.Contained {
		if !triggerNames.valid(c.Trigger) {
			add("contained effect %d: trigger %d", i, c.Trigger)
		}
		if c.Effect == nil {
			add("contained effect %d is nil", i)
			continue
		}
		if err := c.Effect.validate(seen); err != nil {
			errs = append(errs, err)
		}
	}
	for i, w := range ge.Workers {
		if w == nil {
			add("worker %d is nil", i)
		}
	}
	return errors.Join(errs...)
}
