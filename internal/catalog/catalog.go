// Package catalog loads authored attributes, effects, abilities and
// archetypes from YAML and spawns archetypes into a gas.World.
package catalog

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/udisondev/gas/internal/ability"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

var (
	ErrUnknownType      = errors.New("unknown catalog type")
	ErrUnknownReference = errors.New("unknown catalog reference")
	ErrDuplicate        = errors.New("duplicate catalog entry")
)

// Catalog holds resolved definitions. Definitions are shared by pointer and
// must not be modified after loading.
type Catalog struct {
	tags *tag.Registry

	attributes map[string]*attribute.Attribute
	effects    map[string]*effect.GameplayEffect
	abilities  map[string]*ability.Ability
	archetypes map[string]*Archetype

	attributeOrder []string
	archetypeOrder []string
}

// Load reads a catalog file. Tags are interned in reg, which must be the
// registry of every World the catalog spawns into.
func Load(path string, reg *tag.Registry) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog %s: %w", path, err)
	}
	c, err := Parse(data, reg)
	if err != nil {
		return nil, fmt.Errorf("loading catalog %s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and resolves a catalog document. Unknown YAML keys are
// rejected. All problems found are returned joined.
func Parse(data []byte, reg *tag.Registry) (*Catalog, error) {
	var doc Document
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return Build(doc, reg)
}

// Build resolves an already decoded document.
func Build(doc Document, reg *tag.Registry) (*Catalog, error) {
	c := &Catalog{
		tags:       reg,
		attributes: make(map[string]*attribute.Attribute),
		effects:    make(map[string]*effect.GameplayEffect),
		abilities:  make(map[string]*ability.Ability),
		archetypes: make(map[string]*Archetype),
	}
	l := &loader{c: c}

	reg.GetAll(doc.Tags...)

	for _, d := range doc.Attributes {
		l.addAttribute(d)
	}

	// Effects are created first so that workers, contained effects and
	// abilities can reference them regardless of order.
	for _, d := range doc.Effects {
		if d.Name == "" {
			l.errorf("effect without name")
			continue
		}
		if _, dup := c.effects[d.Name]; dup {
			l.fail(fmt.Errorf("%w: effect %q", ErrDuplicate, d.Name))
			continue
		}
		c.effects[d.Name] = &effect.GameplayEffect{Name: d.Name}
	}
	filled := make(map[string]bool, len(c.effects))
	for _, d := range doc.Effects {
		if ge, ok := c.effects[d.Name]; ok && !filled[d.Name] {
			filled[d.Name] = true
			l.fillEffect(ge, d)
		}
	}

	for _, d := range doc.Abilities {
		l.addAbility(d)
	}
	for _, d := range doc.Archetypes {
		l.addArchetype(d)
	}

	if len(l.errs) == 0 {
		for _, ge := range c.effects {
			l.fail(ge.Validate())
		}
		for _, a := range c.abilities {
			l.fail(a.Validate())
		}
	}

	if err := errors.Join(l.errs...); err != nil {
		return nil, err
	}
	return c, nil
}

// Tags returns the registry the catalog was loaded against.
func (c *Catalog) Tags() *tag.Registry { return c.tags }

func (c *Catalog) Attribute(name string) (*attribute.Attribute, bool) {
	a, ok := c.attributes[name]
	return a, ok
}

func (c *Catalog) Effect(name string) (*effect.GameplayEffect, bool) {
	ge, ok := c.effects[name]
	return ge, ok
}

func (c *Catalog) Ability(name string) (*ability.Ability, bool) {
	a, ok := c.abilities[name]
	return a, ok
}

func (c *Catalog) Archetype(name string) (*Archetype, bool) {
	a, ok := c.archetypes[name]
	return a, ok
}

// Archetypes returns archetype names in authored order.
func (c *Catalog) Archetypes() []string {
	return append([]string(nil), c.archetypeOrder...)
}

// Len returns the number of attributes, effects and abilities.
func (c *Catalog) Len() (attributes, effects, abilities int) {
	return len(c.attributes), len(c.effects), len(c.abilities)
}
