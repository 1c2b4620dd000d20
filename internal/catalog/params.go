package catalog

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

// Params gives factories typed access to their authored parameters and to
// the catalog being loaded. The first conversion error sticks and is
// reported after the factory returns.
type Params struct {
	owner  string
	values map[string]string
	c      *Catalog
	err    error
}

func newParams(c *Catalog, owner string, values map[string]string) *Params {
	return &Params{owner: owner, values: values, c: c}
}

// Err returns the first conversion error.
func (p *Params) Err() error { return p.err }

func (p *Params) fail(key string, err error) {
	if p.err == nil {
		p.err = fmt.Errorf("%s: param %q: %w", p.owner, key, err)
	}
}

// Has reports whether key was authored.
func (p *Params) Has(key string) bool {
	_, ok := p.values[key]
	return ok
}

func (p *Params) String(key, def string) string {
	if v, ok := p.values[key]; ok {
		return strings.TrimSpace(v)
	}
	return def
}

func (p *Params) Float(key string, def float64) float64 {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	if err != nil {
		p.fail(key, err)
		return def
	}
	return f
}

func (p *Params) Int(key string, def int) int {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, err)
		return def
	}
	return n
}

func (p *Params) Bool(key string, def bool) bool {
	v, ok := p.values[key]
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		p.fail(key, err)
		return def
	}
	return b
}

// Floats parses a comma-separated list.
func (p *Params) Floats(key string) []float64 {
	var out []float64
	for _, s := range p.list(key) {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			p.fail(key, err)
			return nil
		}
		out = append(out, f)
	}
	return out
}

func (p *Params) list(key string) []string {
	v, ok := p.values[key]
	if !ok {
		return nil
	}
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// Attribute resolves a required attribute reference.
func (p *Params) Attribute(key string) *attribute.Attribute {
	name := p.String(key, "")
	if name == "" {
		p.fail(key, errors.New("missing attribute"))
		return nil
	}
	attr, ok := p.c.attributes[name]
	if !ok {
		p.fail(key, fmt.Errorf("%w: attribute %q", ErrUnknownReference, name))
	}
	return attr
}

// OptionalAttribute resolves an attribute reference or returns nil.
func (p *Params) OptionalAttribute(key string) *attribute.Attribute {
	if !p.Has(key) {
		return nil
	}
	return p.Attribute(key)
}

// Attributes resolves a comma-separated attribute list.
func (p *Params) Attributes(key string) []*attribute.Attribute {
	var out []*attribute.Attribute
	for _, name := range p.list(key) {
		attr, ok := p.c.attributes[name]
		if !ok {
			p.fail(key, fmt.Errorf("%w: attribute %q", ErrUnknownReference, name))
			continue
		}
		out = append(out, attr)
	}
	return out
}

// Effect resolves a required effect reference. Effects may reference each
// other in any order.
func (p *Params) Effect(key string) *effect.GameplayEffect {
	name := p.String(key, "")
	if name == "" {
		p.fail(key, errors.New("missing effect"))
		return nil
	}
	ge, ok := p.c.effects[name]
	if !ok {
		p.fail(key, fmt.Errorf("%w: effect %q", ErrUnknownReference, name))
	}
	return ge
}

// Tag returns the registered tag or the zero tag when absent.
func (p *Params) Tag(key string) tag.Tag {
	name := p.String(key, "")
	if name == "" {
		return tag.Tag{}
	}
	return p.c.tags.Get(name)
}

// Tags registers and returns a comma-separated tag list.
func (p *Params) Tags(key string) []tag.Tag {
	return p.c.tags.GetAll(p.list(key)...)
}

func (p *Params) Trigger(key string) effect.Trigger {
	t, err := effect.ParseTrigger(p.String(key, ""))
	if err != nil {
		p.fail(key, err)
	}
	return t
}

func (p *Params) Priority(key string) action.Priority {
	pr, err := action.ParsePriority(p.String(key, ""))
	if err != nil {
		p.fail(key, fmt.Errorf("%w: %v", effect.ErrDataIntegrity, err))
	}
	return pr
}
