package effect

import (
	"errors"
	"fmt"
	"strings"
)

// ErrDataIntegrity marks authored data the engine cannot interpret, such as
// an enum value outside its declared range. It indicates a broken asset, not
// a recoverable runtime condition.
var ErrDataIntegrity = errors.New("effect data integrity")

func integrityErr(kind string, v int) error {
	return fmt.Errorf("%w: unknown %s %d", ErrDataIntegrity, kind, v)
}

// enumNames maps parse keys to values for one enum.
type enumNames[T ~int8] []string

func (n enumNames[T]) name(v T) string {
	if int(v) >= 0 && int(v) < len(n) {
		return n[int(v)]
	}
	return fmt.Sprintf("%d", int8(v))
}

func (n enumNames[T]) parse(kind, s string) (T, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	for i, name := range n {
		if strings.EqualFold(name, s) {
			return T(i), nil
		}
	}
	return 0, fmt.Errorf("%w: unknown %s %q", ErrDataIntegrity, kind, s)
}

func (n enumNames[T]) valid(v T) bool { return int(v) >= 0 && int(v) < len(n) }

// DurationPolicy decides whether an effect leaves a container behind.
type DurationPolicy int8

const (
	Instant DurationPolicy = iota
	Infinite
	Durational
)

var durationPolicyNames = enumNames[DurationPolicy]{"Instant", "Infinite", "Durational"}

func (p DurationPolicy) String() string { return durationPolicyNames.name(p) }

func ParseDurationPolicy(s string) (DurationPolicy, error) {
	return durationPolicyNames.parse("duration policy", s)
}

// StackingPolicy selects the container kind for durational effects.
type StackingPolicy int8

const (
	NonStacking StackingPolicy = iota
	IncrementalStacking
	PartitionedStacking
	IndependentDurations
)

var stackingPolicyNames = enumNames[StackingPolicy]{
	"NonStacking", "IncrementalStacking", "PartitionedStacking", "IndependentDurations",
}

func (p StackingPolicy) String() string { return stackingPolicyNames.name(p) }

func ParseStackingPolicy(s string) (StackingPolicy, error) {
	return stackingPolicyNames.parse("stacking policy", s)
}

// ReApplicationPolicy decides what applying an already-present effect does.
type ReApplicationPolicy int8

const (
	Append ReApplicationPolicy = iota
	Refresh
	Extend
	Stack
	StackRefresh
	StackExtend
)

var reApplicationNames = enumNames[ReApplicationPolicy]{
	"Append", "Refresh", "Extend", "Stack", "StackRefresh", "StackExtend",
}

func (p ReApplicationPolicy) String() string { return reApplicationNames.name(p) }

// Stacks reports whether the policy adds stacks.
func (p ReApplicationPolicy) Stacks() bool {
	return p == Stack || p == StackRefresh || p == StackExtend
}

// Refreshes reports whether the policy resets remaining duration.
func (p ReApplicationPolicy) Refreshes() bool { return p == Refresh || p == StackRefresh }

// Extends reports whether the policy adds to remaining duration.
func (p ReApplicationPolicy) Extends() bool { return p == Extend || p == StackExtend }

func ParseReApplicationPolicy(s string) (ReApplicationPolicy, error) {
	return reApplicationNames.parse("re-application policy", s)
}

// ImpactOperation is how the magnitude combines with the attribute.
type ImpactOperation int8

const (
	Add ImpactOperation = iota
	Multiply
	Override
)

var impactOperationNames = enumNames[ImpactOperation]{"Add", "Multiply", "Override"}

func (o ImpactOperation) String() string { return impactOperationNames.name(o) }

func ParseImpactOperation(s string) (ImpactOperation, error) {
	return impactOperationNames.parse("impact operation", s)
}

// ImpactTarget selects which attribute components an impact writes.
type ImpactTarget int8

const (
	TargetCurrent ImpactTarget = iota
	TargetBase
	TargetCurrentAndBase
)

var impactTargetNames = enumNames[ImpactTarget]{"Current", "Base", "CurrentAndBase"}

func (t ImpactTarget) String() string { return impactTargetNames.name(t) }

func ParseImpactTarget(s string) (ImpactTarget, error) {
	return impactTargetNames.parse("impact target", s)
}

// AffiliationPolicy restricts who an effect may land on relative to its source.
type AffiliationPolicy int8

const (
	AnyAffiliation AffiliationPolicy = iota
	SelfOnly
	ExcludeSelf
	Allies
	Enemies
)

var affiliationNames = enumNames[AffiliationPolicy]{"Any", "SelfOnly", "ExcludeSelf", "Allies", "Enemies"}

func (p AffiliationPolicy) String() string { return affiliationNames.name(p) }

func ParseAffiliationPolicy(s string) (AffiliationPolicy, error) {
	return affiliationNames.parse("affiliation policy", s)
}

// Allows reports whether source may affect target under p. A nil source
// (environment) is treated as foreign to every target.
func (p AffiliationPolicy) Allows(source, target Actor) (bool, error) {
	self := source != nil && target != nil && source == target
	switch p {
	case AnyAffiliation:
		return true, nil
	case SelfOnly:
		return self, nil
	case ExcludeSelf:
		return !self, nil
	case Allies:
		if self {
			return true, nil
		}
		if source == nil || target == nil {
			return false, nil
		}
		a := source.Affiliation()
		return !a.IsZero() && a == target.Affiliation(), nil
	case Enemies:
		if self {
			return false, nil
		}
		if source == nil || target == nil {
			return true, nil
		}
		a := source.Affiliation()
		return a.IsZero() || a != target.Affiliation(), nil
	default:
		return false, integrityErr("affiliation policy", int(p))
	}
}

// TickMode selects how the periodic schedule is derived.
type TickMode int8

const (
	NoTicks     TickMode = iota
	FixedTicks           // magnitude is the tick count; period = duration / ticks
	FixedPeriod          // magnitude is the period; ticks = duration / period
)

var tickModeNames = enumNames[TickMode]{"None", "FixedTicks", "FixedPeriod"}

func (m TickMode) String() string { return tickModeNames.name(m) }

func ParseTickMode(s string) (TickMode, error) {
	return tickModeNames.parse("tick mode", s)
}

// Rounding resolves fractional tick counts.
type Rounding int8

const (
	Floor Rounding = iota
	Ceil
)

var roundingNames = enumNames[Rounding]{"Floor", "Ceil"}

func (r Rounding) String() string { return roundingNames.name(r) }

func ParseRounding(s string) (Rounding, error) {
	return roundingNames.parse("rounding", s)
}

// Trigger names a lifecycle point of an effect container.
type Trigger int8

const (
	OnApplication Trigger = iota
	OnTick
	OnRemoval
)

var triggerNames = enumNames[Trigger]{"OnApplication", "OnTick", "OnRemoval"}

func (t Trigger) String() string { return triggerNames.name(t) }

func ParseTrigger(s string) (Trigger, error) {
	return triggerNames.parse("trigger", s)
}

// Capture picks which side of a spec an attribute is read from.
type Capture int8

const (
	CaptureSource Capture = iota
	CaptureTarget
)

var captureNames = enumNames[Capture]{"Source", "Target"}

func (c Capture) String() string { return captureNames.name(c) }

func ParseCapture(s string) (Capture, error) {
	return captureNames.parse("capture", s)
}

// Component picks one half of an attribute value.
type Component int8

const (
	ComponentCurrent Component = iota
	ComponentBase
)

var componentNames = enumNames[Component]{"Current", "Base"}

func (c Component) String() string { return componentNames.name(c) }

func ParseComponent(s string) (Component, error) {
	return componentNames.parse("component", s)
}
