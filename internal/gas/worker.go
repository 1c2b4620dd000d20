package gas

import (
	"fmt"
	"strings"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

// Phase is when a worker sees a change.
type Phase int8

const (
	// PreChange runs before the change is committed. Inline workers receive
	// the proposed delta.
	PreChange Phase = iota
	// PostChange runs after the commit. Inline workers receive the new
	// attribute value.
	PostChange
)

func (p Phase) String() string {
	if p == PreChange {
		return "PreChange"
	}
	return "PostChange"
}

// ParsePhase parses "PreChange" or "PostChange"; empty means PostChange.
func ParsePhase(s string) (Phase, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "prechange", "pre":
		return PreChange, nil
	case "", "postchange", "post":
		return PostChange, nil
	default:
		return PostChange, fmt.Errorf("unknown worker phase %q", s)
	}
}

// AttributeChange is a proposed modification of one attribute.
type AttributeChange struct {
	Attribute *attribute.Attribute
	Delta     attribute.Value
	// Spec is the effect causing the change; nil for direct modifications.
	Spec *effect.Spec
	// Reversal marks the undo of a removed effect's tracked impact.
	Reversal bool
}

// Source returns a read-only view of the actor that caused the change, if
// any.
func (c AttributeChange) Source() effect.Actor {
	if c.Spec == nil || c.Spec.Source == nil {
		return nil
	}
	return viewOf(c.Spec.Source)
}

// WorkerContext is the read-only view of a change in flight.
type WorkerContext struct {
	// Target is a read-only ActorView of the changing system.
	Target effect.Actor
	Change AttributeChange
	Phase  Phase
	Old    attribute.Value
	// Delta is the proposed delta in PreChange and New-Old in PostChange.
	Delta attribute.Value
	New   attribute.Value
}

// AttributeWorker intercepts attribute changes. A worker must also implement
// InlineWorker, DeferredWorker or both.
type AttributeWorker interface {
	// PreValidateWorkFor is a cheap check on the change alone.
	PreValidateWorkFor(change AttributeChange) bool
	// ValidateWorkFor is the full check against the change in flight.
	ValidateWorkFor(ctx *WorkerContext) bool
}

// InlineWorker mutates the change synchronously. It has no access to
// anything that could modify attributes.
type InlineWorker interface {
	AttributeWorker
	Intercept(ctx *WorkerContext, value *attribute.Value) error
}

// DeferredWorker returns actions to queue instead of mutating.
type DeferredWorker interface {
	AttributeWorker
	Actions(ctx *WorkerContext, ops Ops) []action.RootAction
}

// TargetFilter selects which components a change must touch.
type TargetFilter int8

const (
	AnyTarget TargetFilter = iota
	TargetCurrent
	TargetBase
	TargetCurrentAndBase
	TargetCurrentOrBase
)

var targetFilterNames = []string{"Any", "Current", "Base", "CurrentAndBase", "CurrentOrBase"}

func (f TargetFilter) String() string {
	if int(f) >= 0 && int(f) < len(targetFilterNames) {
		return targetFilterNames[f]
	}
	return fmt.Sprintf("TargetFilter(%d)", int8(f))
}

// ParseTargetFilter parses a target filter name; empty means Any.
func ParseTargetFilter(s string) (TargetFilter, error) {
	if s == "" {
		return AnyTarget, nil
	}
	for i, name := range targetFilterNames {
		if strings.EqualFold(name, s) {
			return TargetFilter(i), nil
		}
	}
	return AnyTarget, fmt.Errorf("%w: unknown target filter %q", effect.ErrDataIntegrity, s)
}

// SignPolicy selects which delta signs a worker reacts to.
type SignPolicy int8

const (
	AnySign SignPolicy = iota
	Negative
	Positive
	ZeroBiased  // >= 0
	ZeroNeutral // == 0
)

var signPolicyNames = []string{"Any", "Negative", "Positive", "ZeroBiased", "ZeroNeutral"}

func (p SignPolicy) String() string {
	if int(p) >= 0 && int(p) < len(signPolicyNames) {
		return signPolicyNames[p]
	}
	return fmt.Sprintf("SignPolicy(%d)", int8(p))
}

// ParseSignPolicy parses a sign policy name; empty means Any.
func ParseSignPolicy(s string) (SignPolicy, error) {
	if s == "" {
		return AnySign, nil
	}
	for i, name := range signPolicyNames {
		if strings.EqualFold(name, s) {
			return SignPolicy(i), nil
		}
	}
	return AnySign, fmt.Errorf("%w: unknown sign policy %q", effect.ErrDataIntegrity, s)
}

func (p SignPolicy) matches(v float64) bool {
	switch p {
	case Negative:
		return v < 0
	case Positive:
		return v > 0
	case ZeroBiased:
		return v >= 0
	case ZeroNeutral:
		return v == 0
	default:
		return true
	}
}

// WorkerFilter holds the common validation rules. Embed it in a worker to
// get PreValidateWorkFor and a ValidateWorkFor to call from your own.
type WorkerFilter struct {
	// Attributes the worker watches; empty watches all.
	Attributes []*attribute.Attribute
	// ContextTags must appear on the causing effect: any of them, or all
	// with RequireAllContextTags.
	ContextTags           []tag.Tag
	RequireAllContextTags bool
	// ExcludeSelfModification skips effects whose source is the target.
	ExcludeSelfModification bool
	Target                  TargetFilter
	// ExclusiveTarget requires the untargeted component to stay unchanged.
	// With TargetCurrentOrBase it requires exactly one component changed.
	ExclusiveTarget bool
	Sign            SignPolicy
	// ImpactTypes restricts the causing effect's impact type; empty allows
	// any.
	ImpactTypes []tag.Tag
}

func (f WorkerFilter) PreValidateWorkFor(change AttributeChange) bool {
	if len(f.Attributes) == 0 {
		return true
	}
	for _, a := range f.Attributes {
		if a == change.Attribute {
			return true
		}
	}
	return false
}

func (f WorkerFilter) ValidateWorkFor(ctx *WorkerContext) bool {
	spec := ctx.Change.Spec
	if len(f.ContextTags) > 0 {
		if spec == nil {
			return false
		}
		if !contextMatches(spec.ContextTags(), f.ContextTags, f.RequireAllContextTags) {
			return false
		}
	}
	if f.ExcludeSelfModification && spec != nil && spec.SelfInflicted() {
		return false
	}
	if len(f.ImpactTypes) > 0 {
		if spec == nil || !tag.Contains(f.ImpactTypes, spec.Effect.Impact.ImpactType) {
			return false
		}
	}
	return f.targetMatches(ctx.Delta) && f.signMatches(ctx.Delta)
}

func contextMatches(have, want []tag.Tag, all bool) bool {
	for _, w := range want {
		found := tag.Contains(have, w)
		if all && !found {
			return false
		}
		if !all && found {
			return true
		}
	}
	return all
}

func (f WorkerFilter) targetMatches(d attribute.Value) bool {
	cur, base := d.Current != 0, d.Base != 0
	switch f.Target {
	case TargetCurrent:
		return cur && (!f.ExclusiveTarget || !base)
	case TargetBase:
		return base && (!f.ExclusiveTarget || !cur)
	case TargetCurrentAndBase:
		return cur && base
	case TargetCurrentOrBase:
		if f.ExclusiveTarget {
			return cur != base
		}
		return cur || base
	default:
		return true
	}
}

func (f WorkerFilter) signMatches(d attribute.Value) bool {
	switch f.Target {
	case TargetCurrent:
		return f.Sign.matches(d.Current)
	case TargetBase:
		return f.Sign.matches(d.Base)
	case TargetCurrentAndBase:
		return f.Sign.matches(d.Current) && f.Sign.matches(d.Base)
	case TargetCurrentOrBase:
		return f.Sign.matches(d.Current) || f.Sign.matches(d.Base)
	default:
		switch {
		case d.Current != 0 && d.Base != 0:
			return f.Sign.matches(d.Current) || f.Sign.matches(d.Base)
		case d.Base != 0:
			return f.Sign.matches(d.Base)
		default:
			return f.Sign.matches(d.Current)
		}
	}
}
