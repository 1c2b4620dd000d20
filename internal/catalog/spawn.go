package catalog

import (
	"errors"
	"fmt"

	"github.com/udisondev/gas/internal/ability"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/gas"
	"github.com/udisondev/gas/internal/tag"
)

// Archetype is a named starting configuration for a System.
type Archetype struct {
	Name          string
	Level         int
	Affiliation   tag.Tag
	Tags          []tag.Tag
	Attributes    []AttributeValue
	Workers       []WorkerBinding
	ImpactWorkers []effect.ImpactWorker
	Abilities     []Grant
	NoClamp       bool
}

type AttributeValue struct {
	Attribute *attribute.Attribute
	Value     attribute.Value
}

type WorkerBinding struct {
	Phase  gas.Phase
	Worker gas.AttributeWorker
}

type Grant struct {
	Ability *ability.Ability
	Level   int
}

// Spawn creates a system called name from an archetype. On failure the
// half-built system is removed from the world.
func (c *Catalog) Spawn(w *gas.World, archetype, name string) (*gas.System, error) {
	a, ok := c.archetypes[archetype]
	if !ok {
		return nil, fmt.Errorf("%w: archetype %q", ErrUnknownReference, archetype)
	}
	if w.Tags() != c.tags {
		return nil, errors.New("catalog was loaded against a different tag registry")
	}

	opts := []gas.SystemOption{gas.WithLevel(a.Level), gas.WithAffiliation(a.Affiliation)}
	if a.NoClamp {
		opts = append(opts, gas.WithoutClamp())
	}
	s, err := w.NewSystem(name, opts...)
	if err != nil {
		return nil, fmt.Errorf("spawning %s: %w", archetype, err)
	}
	if err := a.apply(s); err != nil {
		w.RemoveSystem(s)
		return nil, fmt.Errorf("spawning %s as %s: %w", archetype, name, err)
	}

	w.Logger().Debug("archetype spawned", "archetype", archetype, "system", name)
	return s, nil
}

func (a *Archetype) apply(s *gas.System) error {
	s.AddTags(a.Tags...)
	for _, av := range a.Attributes {
		if err := s.AddAttribute(av.Attribute, av.Value); err != nil {
			return err
		}
	}
	for _, b := range a.Workers {
		if err := s.AddAttributeWorker(b.Phase, b.Worker); err != nil {
			return err
		}
	}
	for _, iw := range a.ImpactWorkers {
		s.AddImpactWorker(iw)
	}
	for _, g := range a.Abilities {
		if _, err := s.GrantAbility(g.Ability, g.Level); err != nil {
			return err
		}
	}
	return nil
}
