// Package ability runs authored abilities as staged, cancellable task
// sequences on the cooperative scheduler.
package ability

import (
	"errors"
	"fmt"

	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

// Tags gate activation and mark the owner while an ability runs.
type Tags struct {
	Asset tag.Tag
	// ActivationRequired must be met by the owner's tags.
	ActivationRequired tag.Requirement
	// ActivationBlocked blocks activation if the owner has any of them.
	ActivationBlocked []tag.Tag
	// GrantedWhileActive are added for the lifetime of an activation.
	GrantedWhileActive []tag.Tag
	// CancelAbilitiesWithTags cancels running abilities whose asset tag is
	// listed when this one activates.
	CancelAbilitiesWithTags []tag.Tag
}

// Stage is one phase of an ability.
type Stage struct {
	Name string
	// Policy defaults to All.
	Policy StagePolicy
	Tasks  []Task
	// ApplyUsageEffects applies cost and cooldown when the stage ends, once
	// per activation.
	ApplyUsageEffects bool
}

func (s *Stage) policy() StagePolicy {
	if s.Policy == nil {
		return All
	}
	return s.Policy
}

// Ability is an authored ability definition.
type Ability struct {
	Name        string
	Description string
	Tags        Tags
	Stages      []Stage
	Cost        *effect.GameplayEffect
	Cooldown    *effect.GameplayEffect
	// MinLevel and MaxLevel bound the spec level; 0 means unbounded.
	MinLevel int
	MaxLevel int
}

func (a *Ability) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.Name
}

// Validate checks the definition and its usage effects.
func (a *Ability) Validate() error {
	var errs []error
	if a.Name == "" {
		errs = append(errs, errors.New("ability without name"))
	}
	if a.MaxLevel > 0 && a.MaxLevel < a.MinLevel {
		errs = append(errs, fmt.Errorf("ability %s: max level %d below min level %d", a.Name, a.MaxLevel, a.MinLevel))
	}
	for i, st := range a.Stages {
		for j, task := range st.Tasks {
			if task == nil {
				errs = append(errs, fmt.Errorf("ability %s: stage %d task %d is nil", a.Name, i, j))
			}
		}
	}
	for _, ge := range []*effect.GameplayEffect{a.Cost, a.Cooldown} {
		if ge == nil {
			continue
		}
		if err := ge.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("ability %s: %w", a.Name, err))
		}
	}
	return errors.Join(errs...)
}

// LevelAllowed reports whether level is inside the ability's bounds.
func (a *Ability) LevelAllowed(level int) bool {
	if a.MinLevel > 0 && level < a.MinLevel {
		return false
	}
	if a.MaxLevel > 0 && level > a.MaxLevel {
		return false
	}
	return true
}

// Spec binds an ability to an owner and a level.
type Spec struct {
	Ability *Ability
	Owner   effect.Actor
	level   int

	usageApplied bool
}

// NewSpec creates a spec. Levels below 1 become 1.
func NewSpec(a *Ability, owner effect.Actor, level int) *Spec {
	return &Spec{Ability: a, Owner: owner, level: max(level, 1)}
}

// Name implements effect.Origin.
func (s *Spec) Name() string { return s.Ability.Name }

// Level implements effect.Origin.
func (s *Spec) Level() int { return s.level }

// SetLevel changes the level used by later activations.
func (s *Spec) SetLevel(level int) { s.level = max(level, 1) }

// UsageApplied reports whether cost and cooldown were applied during the
// current activation.
func (s *Spec) UsageApplied() bool { return s.usageApplied }
