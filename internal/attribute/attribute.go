package attribute

import (
	"fmt"
	"math"
	"strings"
)

// Value is a (current, base) pair. Arithmetic is component-wise.
type Value struct {
	Current float64
	Base    float64
}

// Of returns a Value with both components set to v.
func Of(v float64) Value { return Value{Current: v, Base: v} }

func (v Value) Add(o Value) Value { return Value{Current: v.Current + o.Current, Base: v.Base + o.Base} }
func (v Value) Sub(o Value) Value { return Value{Current: v.Current - o.Current, Base: v.Base - o.Base} }
func (v Value) Mul(o Value) Value { return Value{Current: v.Current * o.Current, Base: v.Base * o.Base} }

// Scale multiplies both components by f.
func (v Value) Scale(f float64) Value { return Value{Current: v.Current * f, Base: v.Base * f} }

// Negate flips the sign of both components.
func (v Value) Negate() Value { return Value{Current: -v.Current, Base: -v.Base} }

// IsZero reports whether both components are exactly zero.
func (v Value) IsZero() bool { return v.Current == 0 && v.Base == 0 }

// ApproxEqual compares both components within eps.
func (v Value) ApproxEqual(o Value, eps float64) bool {
	return math.Abs(v.Current-o.Current) <= eps && math.Abs(v.Base-o.Base) <= eps
}

func (v Value) String() string {
	return fmt.Sprintf("{%g/%g}", v.Current, v.Base)
}

// OverflowPolicy bounds an attribute's current value.
type OverflowPolicy int8

const (
	Unlimited   OverflowPolicy = iota // no bounds
	ZeroToBase                        // [0, base]
	FloorToBase                       // [floor, base]
	ZeroToCeil                        // [0, ceil]
	FloorToCeil                       // [floor, ceil]
)

var overflowNames = [...]string{"Unlimited", "ZeroToBase", "FloorToBase", "ZeroToCeil", "FloorToCeil"}

func (p OverflowPolicy) String() string {
	if int(p) < len(overflowNames) && p >= 0 {
		return overflowNames[p]
	}
	return fmt.Sprintf("OverflowPolicy(%d)", int8(p))
}

// ParseOverflowPolicy parses a policy name case-insensitively.
func ParseOverflowPolicy(s string) (OverflowPolicy, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Unlimited, nil
	}
	for i, n := range overflowNames {
		if strings.EqualFold(n, s) {
			return OverflowPolicy(i), nil
		}
	}
	return Unlimited, fmt.Errorf("unknown overflow policy %q", s)
}

// Attribute is an authored attribute definition. Attributes are compared by
// pointer identity; create each one once and share it.
type Attribute struct {
	Name     string
	Overflow OverflowPolicy
	Floor    float64
	Ceil     float64
}

// New creates an unbounded attribute.
func New(name string) *Attribute {
	return &Attribute{Name: name}
}

// NewBounded creates an attribute with an overflow policy.
func NewBounded(name string, policy OverflowPolicy, floor, ceil float64) *Attribute {
	return &Attribute{Name: name, Overflow: policy, Floor: floor, Ceil: ceil}
}

func (a *Attribute) String() string {
	if a == nil {
		return "<nil>"
	}
	return a.Name
}

// Bounds returns the [lo, hi] range for the current value given the
// attribute's base. bounded is false for Unlimited.
func (a *Attribute) Bounds(base float64) (lo, hi float64, bounded bool, err error) {
	switch a.Overflow {
	case Unlimited:
		return math.Inf(-1), math.Inf(1), false, nil
	case ZeroToBase:
		return 0, base, true, nil
	case FloorToBase:
		return a.Floor, base, true, nil
	case ZeroToCeil:
		return 0, a.Ceil, true, nil
	case FloorToCeil:
		return a.Floor, a.Ceil, true, nil
	default:
		return 0, 0, false, fmt.Errorf("attribute %s: unknown overflow policy %d", a.Name, a.Overflow)
	}
}

// Clamp returns v with its current component forced into the overflow bounds.
// The second result reports whether anything changed.
func (a *Attribute) Clamp(v Value) (Value, bool, error) {
	lo, hi, bounded, err := a.Bounds(v.Base)
	if err != nil || !bounded {
		return v, false, err
	}
	if hi < lo {
		hi = lo
	}
	c := math.Min(math.Max(v.Current, lo), hi)
	if c == v.Current {
		return v, false, nil
	}
	return Value{Current: c, Base: v.Base}, true, nil
}
