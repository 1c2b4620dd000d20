package gas

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gas/internal/ability"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/tag"
)

func manaCost(amount float64) *effect.GameplayEffect {
	return &effect.GameplayEffect{
		Name: "ManaCost",
		Impact: effect.ImpactSpecification{
			Attribute: mana,
			Target:    effect.TargetCurrent,
			Magnitude: effect.Fixed(-amount),
		},
	}
}

func cooldown(t tag.Tag, seconds float64) *effect.GameplayEffect {
	return &effect.GameplayEffect{
		Name: "Cooldown",
		Tags: effect.Tags{Granted: []tag.Tag{t}},
		Duration: effect.DurationSpecification{
			Policy:   effect.Durational,
			Duration: effect.Fixed(seconds),
		},
	}
}

func fireball(w *World) *ability.Ability {
	return &ability.Ability{
		Name:     "Fireball",
		Tags:     ability.Tags{Asset: w.Tags().Get("Ability.Fireball")},
		Cost:     manaCost(10),
		Cooldown: cooldown(w.Tags().Get("Cooldown.Fireball"), 2),
		Stages: []ability.Stage{
			{Name: "cast", Tasks: []ability.Task{ability.WaitTask{Ticks: 1}}, ApplyUsageEffects: true},
			{Name: "hit", Tasks: []ability.Task{ability.ApplyEffectTask{Effect: damage(25)}}},
		},
	}
}

func TestAbility_ActivationThroughSystem(t *testing.T) {
	w := newTestWorld(t)
	caster := newTestSystem(t, w, "caster")
	target := newTestSystem(t, w, "target")

	_, err := caster.GrantAbility(fireball(w), 1)
	require.NoError(t, err)

	var stages []int
	caster.SetAbilityHooks(ability.Hooks{
		StageStarted: func(_ *ability.Proxy, i int) { stages = append(stages, i) },
	})

	p, err := caster.TryActivateAbility(context.Background(), "Fireball")
	require.NoError(t, err)
	p.SetTargets([]effect.Actor{target})
	assert.False(t, p.Completed())
	assert.Equal(t, 50.0, value(t, caster, mana).Current, "cost is paid when the cast stage ends")

	_, err = caster.TryActivateAbility(context.Background(), "Fireball")
	assert.ErrorIs(t, err, ErrAbilityActive)

	step(t, w, 1, 1)
	assert.True(t, p.Completed())
	assert.False(t, p.Cancelled())
	assert.Equal(t, []int{0, 1}, stages)
	assert.Equal(t, 40.0, value(t, caster, mana).Current)
	assert.Equal(t, 75.0, value(t, target, health).Current)
	assert.Empty(t, caster.ActiveAbilities())

	err = caster.CanActivateAbility("Fireball")
	assert.ErrorIs(t, err, ErrAbilityBlocked, "on cooldown")

	step(t, w, 1, 2)
	assert.NoError(t, caster.CanActivateAbility("Fireball"))
}

func TestAbility_CancelSkipsUsage(t *testing.T) {
	w := newTestWorld(t)
	s := newTestSystem(t, w, "caster")
	casting := w.Tags().Get("State.Casting")
	a := fireball(w)
	a.Tags.GrantedWhileActive = []tag.Tag{casting}
	_, err := s.GrantAbility(a, 1)
	require.NoError(t, err)

	p, err := s.TryActivateAbility(context.Background(), "Fireball")
	require.NoError(t, err)
	assert.True(t, s.HasTag(casting))

	require.True(t, s.CancelAbility("Fireball"))
	assert.True(t, p.Completed())
	assert.True(t, p.Cancelled())
	assert.False(t, s.HasTag(casting))
	assert.Equal(t, 50.0, value(t, s, mana).Current)
	assert.NoError(t, s.CanActivateAbility("Fireball"))
}

func TestAbility_Gating(t *testing.T) {
	w := newTestWorld(t)
	s := newTestSystem(t, w, "caster")
	silenced := w.Tags().Get("State.Silenced")
	armed := w.Tags().Get("State.Armed")

	_, err := s.TryActivateAbility(context.Background(), "Nothing")
	assert.ErrorIs(t, err, ErrAbilityNotGranted)

	a := fireball(w)
	a.Tags.ActivationBlocked = []tag.Tag{silenced}
	a.Tags.ActivationRequired = tag.Require(armed)
	a.MinLevel = 2
	spec, err := s.GrantAbility(a, 1)
	require.NoError(t, err)

	assert.ErrorIs(t, s.CanActivateAbility("Fireball"), ErrAbilityBlocked)
	spec.SetLevel(2)
	assert.ErrorIs(t, s.CanActivateAbility("Fireball"), ErrAbilityBlocked)
	s.AddTags(armed)
	assert.NoError(t, s.CanActivateAbility("Fireball"))
	s.AddTags(silenced)
	assert.ErrorIs(t, s.CanActivateAbility("Fireball"), ErrAbilityBlocked)
	s.RemoveTags(silenced)

	a.Cost = manaCost(80)
	assert.ErrorIs(t, s.CanActivateAbility("Fireball"), ErrCannotAfford)
}

func TestAbility_CriticalSectionExcludesOtherChannels(t *testing.T) {
	w := newTestWorld(t)
	s := newTestSystem(t, w, "caster")

	channel := func(name string) *ability.Ability {
		return &ability.Ability{
			Name:   name,
			Stages: []ability.Stage{{Tasks: []ability.Task{ability.ChannelTask{Seconds: 3}}}},
		}
	}
	_, err := s.GrantAbility(channel("Drain"), 1)
	require.NoError(t, err)
	_, err = s.GrantAbility(channel("Blizzard"), 1)
	require.NoError(t, err)
	_, err = s.GrantAbility(&ability.Ability{
		Name:   "Shout",
		Stages: []ability.Stage{{Tasks: []ability.Task{ability.WaitTask{Ticks: 1}}}},
	}, 1)
	require.NoError(t, err)

	_, err = s.TryActivateAbility(context.Background(), "Drain")
	require.NoError(t, err)
	assert.True(t, s.InCriticalSection())

	_, err = s.TryActivateAbility(context.Background(), "Blizzard")
	assert.ErrorIs(t, err, ErrCriticalSection)
	_, err = s.TryActivateAbility(context.Background(), "Shout")
	assert.NoError(t, err, "abilities without critical tasks are not excluded")

	step(t, w, 1, 3)
	assert.False(t, s.InCriticalSection())
	assert.NoError(t, s.CanActivateAbility("Blizzard"))
}

func TestAbility_CancelAbilitiesWithTags(t *testing.T) {
	w := newTestWorld(t)
	s := newTestSystem(t, w, "caster")
	channelTag := w.Tags().Get("Ability.Channel")

	_, err := s.GrantAbility(&ability.Ability{
		Name:   "Drain",
		Tags:   ability.Tags{Asset: channelTag},
		Stages: []ability.Stage{{Tasks: []ability.Task{ability.WaitTask{Ticks: 10}}}},
	}, 1)
	require.NoError(t, err)
	_, err = s.GrantAbility(&ability.Ability{
		Name:   "Dodge",
		Tags:   ability.Tags{CancelAbilitiesWithTags: []tag.Tag{channelTag}},
		Stages: []ability.Stage{{Tasks: []ability.Task{ability.WaitTask{Ticks: 1}}}},
	}, 1)
	require.NoError(t, err)

	drain, err := s.TryActivateAbility(context.Background(), "Drain")
	require.NoError(t, err)
	_, err = s.TryActivateAbility(context.Background(), "Dodge")
	require.NoError(t, err)
	assert.True(t, drain.Cancelled())
}

func TestAbility_InjectAndRemoveSystem(t *testing.T) {
	w := newTestWorld(t)
	s := newTestSystem(t, w, "caster")
	_, err := s.GrantAbility(&ability.Ability{
		Name: "Combo",
		Stages: []ability.Stage{
			{Tasks: []ability.Task{ability.WaitTask{Ticks: 10}}},
			{Tasks: []ability.Task{ability.WaitTask{Ticks: 10}}},
		},
	}, 1)
	require.NoError(t, err)

	p, err := s.TryActivateAbility(context.Background(), "Combo")
	require.NoError(t, err)
	assert.True(t, s.InjectAbility("Combo", ability.SkipStageInjection{}))
	assert.Equal(t, 1, p.Stage())
	assert.False(t, s.InjectAbility("Missing", ability.CancelInjection{}))

	w.RemoveSystem(s)
	assert.True(t, p.Cancelled())
	assert.ErrorIs(t, s.CanActivateAbility("Combo"), ErrSystemRemoved)
}
