package effect

import (
	"fmt"
	"math"

	"github.com/udisondev/gas/internal/attribute"
)

// Scaler maps a level to a base magnitude.
type Scaler interface {
	Evaluate(level int) (float64, error)
}

// ConstantScaler ignores level.
type ConstantScaler float64

func (c ConstantScaler) Evaluate(int) (float64, error) { return float64(c), nil }

// LinearScaler returns Base + PerLevel*(level-1).
type LinearScaler struct {
	Base     float64
	PerLevel float64
}

func (l LinearScaler) Evaluate(level int) (float64, error) {
	return l.Base + l.PerLevel*float64(max(level, 1)-1), nil
}

// TableScaler indexes Values by level-1. Levels past the end use the last
// entry.
type TableScaler struct {
	Values []float64
}

func (t TableScaler) Evaluate(level int) (float64, error) {
	if len(t.Values) == 0 {
		return 0, nil
	}
	i := min(max(level, 1)-1, len(t.Values)-1)
	return t.Values[i], nil
}

// MagnitudeContext is what a magnitude may read while evaluating.
type MagnitudeContext struct {
	Level  int
	Stacks int
	Source Actor
	Target Actor
}

func (c MagnitudeContext) actor(from Capture) (Actor, error) {
	switch from {
	case CaptureSource:
		return c.Source, nil
	case CaptureTarget:
		return c.Target, nil
	default:
		return nil, integrityErr("capture", int(from))
	}
}

// MagnitudeModifier transforms an intermediate magnitude.
type MagnitudeModifier interface {
	Modify(value float64, ctx MagnitudeContext) (float64, error)
}

// AttributeModifier folds a captured attribute into the magnitude:
// value (op) Coefficient*attr.
type AttributeModifier struct {
	Attribute   *attribute.Attribute
	From        Capture
	Component   Component
	Operation   ImpactOperation
	Coefficient float64
}

func (m AttributeModifier) Modify(value float64, ctx MagnitudeContext) (float64, error) {
	actor, err := ctx.actor(m.From)
	if err != nil {
		return value, err
	}
	if actor == nil || m.Attribute == nil {
		return value, nil
	}
	v, ok := actor.AttributeValue(m.Attribute)
	if !ok {
		return value, nil
	}

	var captured float64
	switch m.Component {
	case ComponentCurrent:
		captured = v.Current
	case ComponentBase:
		captured = v.Base
	default:
		return value, integrityErr("component", int(m.Component))
	}
	coef := m.Coefficient
	if coef == 0 {
		coef = 1
	}
	captured *= coef

	switch m.Operation {
	case Add:
		return value + captured, nil
	case Multiply:
		return value * captured, nil
	case Override:
		return captured, nil
	default:
		return value, integrityErr("impact operation", int(m.Operation))
	}
}

// StackModifier multiplies the magnitude by the container's stack count.
// Pair it with a dynamic Magnitude so the count is read at each use.
type StackModifier struct{}

func (StackModifier) Modify(value float64, ctx MagnitudeContext) (float64, error) {
	return value * float64(max(ctx.Stacks, 1)), nil
}

// Magnitude is an authored magnitude calculation.
type Magnitude struct {
	Scaler      Scaler
	Coefficient float64 // 0 means 1
	Modifiers   []MagnitudeModifier
	// Dynamic re-evaluates on every use instead of capturing once per spec.
	Dynamic bool
}

// Fixed returns a constant magnitude.
func Fixed(v float64) Magnitude { return Magnitude{Scaler: ConstantScaler(v)} }

// IsZero reports whether nothing was authored.
func (m Magnitude) IsZero() bool { return m.Scaler == nil && len(m.Modifiers) == 0 }

// Evaluate computes the magnitude for ctx.
func (m Magnitude) Evaluate(ctx MagnitudeContext) (float64, error) {
	var v float64
	if m.Scaler != nil {
		base, err := m.Scaler.Evaluate(ctx.Level)
		if err != nil {
			return 0, fmt.Errorf("evaluating scaler: %w", err)
		}
		v = base
	}
	if m.Coefficient != 0 {
		v *= m.Coefficient
	}
	for _, mod := range m.Modifiers {
		next, err := mod.Modify(v, ctx)
		if err != nil {
			return 0, fmt.Errorf("applying magnitude modifier: %w", err)
		}
		v = next
	}
	if math.IsNaN(v) {
		return 0, fmt.Errorf("%w: magnitude evaluated to NaN", ErrDataIntegrity)
	}
	return v, nil
}
