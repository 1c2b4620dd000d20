package effect

import (
	"fmt"
	"math"

	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/tag"
)

// UnboundedTicks is the tick count of an infinite periodic effect.
const UnboundedTicks = -1

const tickEpsilon = 1e-9

// Actor is the read-only view of an entity that effects are evaluated
// against.
type Actor interface {
	Name() string
	Level() int
	Affiliation() tag.Tag
	Tags() tag.View
	AttributeValue(attr *attribute.Attribute) (attribute.Value, bool)
}

// Origin is whatever caused a spec: usually an ability spec, sometimes an
// effect worker.
type Origin interface {
	Name() string
	Level() int
}

// Spec binds an effect to an origin, a source and a target. Magnitude and
// duration are captured on first use unless authored as dynamic.
type Spec struct {
	Effect *GameplayEffect
	Origin Origin
	Source Actor
	Target Actor
	Level  int

	magnitude *float64
	duration  *float64
	tickValue *float64
}

// NewSpec creates a spec. A non-positive level falls back to the origin's
// level, then to the source's, then to 1.
func NewSpec(ge *GameplayEffect, origin Origin, source, target Actor, level int) *Spec {
	if level <= 0 && origin != nil {
		level = origin.Level()
	}
	if level <= 0 && source != nil {
		level = source.Level()
	}
	return &Spec{
		Effect: ge,
		Origin: origin,
		Source: source,
		Target: target,
		Level:  max(level, 1),
	}
}

func (s *Spec) String() string {
	src := "<env>"
	if s.Source != nil {
		src = s.Source.Name()
	}
	dst := "<none>"
	if s.Target != nil {
		dst = s.Target.Name()
	}
	return fmt.Sprintf("%s(%s->%s L%d)", s.Effect, src, dst, s.Level)
}

// ContextTags returns the effect's context tags.
func (s *Spec) ContextTags() []tag.Tag { return s.Effect.Tags.Context }

// SelfInflicted reports whether source and target are the same actor.
func (s *Spec) SelfInflicted() bool {
	return s.Source != nil && s.Target != nil && s.Source == s.Target
}

func (s *Spec) magnitudeContext(stacks int) MagnitudeContext {
	return MagnitudeContext{Level: s.Level, Stacks: stacks, Source: s.Source, Target: s.Target}
}

func (s *Spec) capture(slot **float64, m Magnitude, stacks int) (float64, error) {
	if !m.Dynamic && *slot != nil {
		return **slot, nil
	}
	v, err := m.Evaluate(s.magnitudeContext(stacks))
	if err != nil {
		return 0, fmt.Errorf("effect %s: %w", s.Effect.Name, err)
	}
	if !m.Dynamic {
		*slot = &v
	}
	return v, nil
}

// Magnitude returns the impact magnitude for the given stack count.
func (s *Spec) Magnitude(stacks int) (float64, error) {
	return s.capture(&s.magnitude, s.Effect.Impact.Magnitude, stacks)
}

// Duration returns the total duration in seconds: 0 for instant effects and
// +Inf for infinite ones.
func (s *Spec) Duration() (float64, error) {
	switch s.Effect.Duration.Policy {
	case Instant:
		return 0, nil
	case Infinite:
		return math.Inf(1), nil
	case Durational:
		d, err := s.capture(&s.duration, s.Effect.Duration.Duration, 1)
		if err != nil {
			return 0, err
		}
		return math.Max(d, 0), nil
	default:
		return 0, integrityErr("duration policy", int(s.Effect.Duration.Policy))
	}
}

// TickSchedule returns the number of ticks and the period between them.
// Infinite effects report UnboundedTicks. Effects without ticks report 0, 0.
func (s *Spec) TickSchedule() (ticks int, period float64, err error) {
	ts := s.Effect.Duration.Ticks
	if ts.Mode == NoTicks || s.Effect.Duration.Policy == Instant {
		return 0, 0, nil
	}
	duration, err := s.Duration()
	if err != nil {
		return 0, 0, err
	}
	value, err := s.capture(&s.tickValue, ts.Value, 1)
	if err != nil {
		return 0, 0, err
	}

	switch ts.Mode {
	case FixedTicks:
		if math.IsInf(duration, 1) {
			return 0, 0, fmt.Errorf("%w: effect %s: infinite duration with fixed tick count", ErrDataIntegrity, s.Effect.Name)
		}
		n, err := round(ts.Rounding, value)
		if err != nil {
			return 0, 0, err
		}
		if n <= 0 || duration <= 0 {
			return 0, 0, nil
		}
		return n, duration / float64(n), nil
	case FixedPeriod:
		if value <= 0 {
			return 0, 0, fmt.Errorf("%w: effect %s: non-positive tick period %v", ErrDataIntegrity, s.Effect.Name, value)
		}
		if math.IsInf(duration, 1) {
			return UnboundedTicks, value, nil
		}
		n, err := round(ts.Rounding, duration/value)
		if err != nil {
			return 0, 0, err
		}
		return n, value, nil
	default:
		return 0, 0, integrityErr("tick mode", int(ts.Mode))
	}
}

func round(r Rounding, v float64) (int, error) {
	switch r {
	case Floor:
		return int(math.Floor(v + tickEpsilon)), nil
	case Ceil:
		return int(math.Ceil(v - tickEpsilon)), nil
	default:
		return 0, integrityErr("rounding", int(r))
	}
}

// ImpactDelta converts a magnitude into the change to apply to current.
func (s *Spec) ImpactDelta(current attribute.Value, magnitude float64) (attribute.Value, error) {
	imp := s.Effect.Impact

	var next attribute.Value
	switch imp.Operation {
	case Add:
		next = current.Add(attribute.Value{Current: magnitude, Base: magnitude})
	case Multiply:
		next = current.Scale(magnitude)
	case Override:
		next = attribute.Value{Current: magnitude, Base: magnitude}
	default:
		return attribute.Value{}, integrityErr("impact operation", int(imp.Operation))
	}
	delta := next.Sub(current)

	switch imp.Target {
	case TargetCurrent:
		return attribute.Value{Current: delta.Current}, nil
	case TargetBase:
		return attribute.Value{Base: delta.Base}, nil
	case TargetCurrentAndBase:
		return delta, nil
	default:
		return attribute.Value{}, integrityErr("impact target", int(imp.Target))
	}
}

// Recapture drops captured magnitudes so the next use re-evaluates them.
func (s *Spec) Recapture() {
	s.magnitude = nil
	s.duration = nil
	s.tickValue = nil
}
