package gas

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
)

var (
	health    = attribute.NewBounded("Health", attribute.ZeroToBase, 0, 0)
	maxHealth = attribute.New("MaxHealth")
	mana      = attribute.New("Mana")
	armor     = attribute.New("Armor")
)

func newTestWorld(t *testing.T, opts ...Option) *World {
	t.Helper()
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	w := NewWorld(opts...)
	t.Cleanup(w.Close)
	return w
}

func newTestSystem(t *testing.T, w *World, name string, opts ...SystemOption) *System {
	t.Helper()
	s, err := w.NewSystem(name, opts...)
	require.NoError(t, err)
	require.NoError(t, s.AddAttribute(health, attribute.Of(100)))
	require.NoError(t, s.AddAttribute(mana, attribute.Of(50)))
	require.NoError(t, s.AddAttribute(armor, attribute.Of(10)))
	return s
}

func step(t *testing.T, w *World, dt float64, n int) {
	t.Helper()
	for range n {
		_, err := w.Update(context.Background(), dt)
		require.NoError(t, err)
	}
}

func flush(t *testing.T, w *World) action.Stats {
	t.Helper()
	stats, err := w.Flush(context.Background())
	require.NoError(t, err)
	return stats
}

func value(t *testing.T, s *System, attr *attribute.Attribute) attribute.Value {
	t.Helper()
	v, ok := s.AttributeValue(attr)
	require.True(t, ok, "attribute %s missing on %s", attr, s)
	return v
}

func damage(amount float64) *effect.GameplayEffect {
	return &effect.GameplayEffect{
		Name: "Damage",
		Impact: effect.ImpactSpecification{
			Attribute: health,
			Operation: effect.Add,
			Target:    effect.TargetCurrent,
			Magnitude: effect.Fixed(-amount),
		},
	}
}

func TestWorld_NewSystem(t *testing.T) {
	w := newTestWorld(t)

	s, err := w.NewSystem("hero", WithLevel(3))
	require.NoError(t, err)
	assert.Equal(t, 3, s.Level())

	_, err = w.NewSystem("hero")
	assert.Error(t, err)
	_, err = w.NewSystem("")
	assert.Error(t, err)

	got, ok := w.System("hero")
	require.True(t, ok)
	assert.Same(t, s, got)
	assert.Len(t, w.Systems(), 1)
}

func TestWorld_RemoveSystemInvalidatesQueuedActions(t *testing.T) {
	w := newTestWorld(t)
	s := newTestSystem(t, w, "hero")

	w.Queue().Enqueue(ModifyAttributeAction(s, mana, attribute.Value{Current: -10}, true, action.Normal))
	w.RemoveSystem(s)

	stats := flush(t, w)
	assert.Equal(t, 1, stats.Invalidated)
	assert.Equal(t, 50.0, value(t, s, mana).Current)

	_, ok := FindAbilitySystem(s)
	assert.False(t, ok)
	_, err := s.ApplyGameplayEffect(effect.NewSpec(damage(1), nil, nil, s, 1))
	assert.ErrorIs(t, err, ErrSystemRemoved)
}

type holder struct{ s *System }

func (h holder) AbilitySystem() *System { return h.s }

func TestFindAbilitySystem(t *testing.T) {
	w := newTestWorld(t)
	s := newTestSystem(t, w, "hero")

	got, ok := FindAbilitySystem(holder{s})
	require.True(t, ok)
	assert.Same(t, s, got)

	var nilSys *System
	_, ok = FindAbilitySystem(nilSys)
	assert.False(t, ok)
	_, ok = FindAbilitySystem("hero")
	assert.False(t, ok)
	_, ok = FindAttributeSystem(holder{s})
	assert.False(t, ok)
}

func TestWorld_DigestIsDeterministic(t *testing.T) {
	run := func() [32]byte {
		w := newTestWorld(t)
		s := newTestSystem(t, w, "hero")
		s.AddTags(w.Tags().Get("State.Alive"))
		dot := &effect.GameplayEffect{
			Name:   "Burn",
			Impact: damage(2).Impact,
			Duration: effect.DurationSpecification{
				Policy:   effect.Durational,
				Duration: effect.Fixed(6),
				Ticks:    effect.TickSpecification{Mode: effect.FixedPeriod, Value: effect.Fixed(1)},
			},
		}
		_, err := s.ApplyGameplayEffect(effect.NewSpec(dot, nil, nil, s, 1))
		require.NoError(t, err)
		step(t, w, 0.5, 5)
		return w.Digest()
	}

	a, b := run(), run()
	assert.Equal(t, a, b)

	w := newTestWorld(t)
	newTestSystem(t, w, "hero")
	assert.NotEqual(t, a, w.Digest())
}
