package tag

import (
	"fmt"
	"strings"
)

// Op selects how a requirement node combines its tags and children.
type Op int8

const (
	OpAll  Op = iota // every tag present, every child met
	OpAny            // at least one tag present or one child met
	OpNone           // no tag present and no child met
)

func (o Op) String() string {
	switch o {
	case OpAll:
		return "all"
	case OpAny:
		return "any"
	case OpNone:
		return "none"
	default:
		return fmt.Sprintf("Op(%d)", int8(o))
	}
}

// ParseOp parses "all", "any" or "none".
func ParseOp(s string) (Op, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "all":
		return OpAll, nil
	case "any":
		return OpAny, nil
	case "none":
		return OpNone, nil
	default:
		return OpAll, fmt.Errorf("unknown requirement op %q", s)
	}
}

// Requirement is a predicate tree over a tag View.
// The zero Requirement is always met.
type Requirement struct {
	Op       Op
	Tags     []Tag
	Children []Requirement
}

// Require builds an all-of node.
func Require(tags ...Tag) Requirement { return Requirement{Op: OpAll, Tags: tags} }

// RequireAny builds an any-of node.
func RequireAny(tags ...Tag) Requirement { return Requirement{Op: OpAny, Tags: tags} }

// Avoid builds a none-of node.
func Avoid(tags ...Tag) Requirement { return Requirement{Op: OpNone, Tags: tags} }

// And combines requirements into an all-of node.
func And(children ...Requirement) Requirement {
	return Requirement{Op: OpAll, Children: children}
}

// IsEmpty reports whether the node carries no tags and no children.
func (r Requirement) IsEmpty() bool { return len(r.Tags) == 0 && len(r.Children) == 0 }

// Met evaluates the requirement against v.
func (r Requirement) Met(v View) bool {
	if r.IsEmpty() {
		return true
	}
	switch r.Op {
	case OpAny:
		if HasAny(v, r.Tags...) {
			return true
		}
		for _, c := range r.Children {
			if c.Met(v) {
				return true
			}
		}
		return false
	case OpNone:
		if HasAny(v, r.Tags...) {
			return false
		}
		for _, c := range r.Children {
			if !c.IsEmpty() && c.Met(v) {
				return false
			}
		}
		return true
	default:
		if !HasAll(v, r.Tags...) {
			return false
		}
		for _, c := range r.Children {
			if !c.Met(v) {
				return false
			}
		}
		return true
	}
}

func (r Requirement) String() string {
	if r.IsEmpty() {
		return "*"
	}
	parts := make([]string, 0, len(r.Tags)+len(r.Children))
	for _, t := range r.Tags {
		parts = append(parts, t.Name)
	}
	for _, c := range r.Children {
		parts = append(parts, c.String())
	}
	return r.Op.String() + "(" + strings.Join(parts, ",") + ")"
}
