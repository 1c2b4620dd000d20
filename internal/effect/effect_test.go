package effect

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/tag"
)

type testActor struct {
	name  string
	level int
	team  tag.Tag
	tags  tag.Set
	attrs map[*attribute.Attribute]attribute.Value
}

func newTestActor(name string, team tag.Tag) *testActor {
	return &testActor{name: name, level: 1, team: team, attrs: make(map[*attribute.Attribute]attribute.Value)}
}

func (a *testActor) Name() string         { return a.name }
func (a *testActor) Level() int           { return a.level }
func (a *testActor) Affiliation() tag.Tag { return a.team }
func (a *testActor) Tags() tag.View       { return &a.tags }

func (a *testActor) AttributeValue(attr *attribute.Attribute) (attribute.Value, bool) {
	v, ok := a.attrs[attr]
	return v, ok
}

func TestScalers(t *testing.T) {
	tests := []struct {
		name   string
		scaler Scaler
		level  int
		want   float64
	}{
		{"constant", ConstantScaler(7), 5, 7},
		{"linear level 1", LinearScaler{Base: 10, PerLevel: 2}, 1, 10},
		{"linear level 4", LinearScaler{Base: 10, PerLevel: 2}, 4, 16},
		{"table in range", TableScaler{Values: []float64{1, 2, 3}}, 2, 2},
		{"table past end", TableScaler{Values: []float64{1, 2, 3}}, 9, 3},
		{"table empty", TableScaler{}, 3, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.scaler.Evaluate(tt.level)
			require.NoError(t, err)
			assert.InDelta(t, tt.want, got, 1e-9)
		})
	}
}

func TestLuaScaler(t *testing.T) {
	s, err := NewLuaScaler("12 + level * 3")
	require.NoError(t, err)

	v, err := s.Evaluate(1)
	require.NoError(t, err)
	assert.InDelta(t, 15, v, 1e-9)

	v, err = s.Evaluate(4)
	require.NoError(t, err)
	assert.InDelta(t, 24, v, 1e-9)

	chunk, err := NewLuaScaler("if level > 2 then return 100 end return math.max(level, 0) * 10")
	require.NoError(t, err)
	v, err = chunk.Evaluate(2)
	require.NoError(t, err)
	assert.InDelta(t, 20, v, 1e-9)
	v, err = chunk.Evaluate(3)
	require.NoError(t, err)
	assert.InDelta(t, 100, v, 1e-9)

	_, err = NewLuaScaler("")
	assert.ErrorIs(t, err, ErrDataIntegrity)

	_, err = NewLuaScaler("level +")
	assert.ErrorIs(t, err, ErrDataIntegrity)

	str, err := NewLuaScaler(`"not a number"`)
	require.NoError(t, err)
	_, err = str.Evaluate(1)
	assert.ErrorIs(t, err, ErrDataIntegrity)

	named, err := NewLuaScaler("returnBonus or level * 2")
	require.NoError(t, err, "identifiers starting with return are expressions")
	v, err = named.Evaluate(3)
	require.NoError(t, err)
	assert.InDelta(t, 6, v, 1e-9)
}

func TestLuaScaler_RuntimeErrorsDoNotGrowStack(t *testing.T) {
	s, err := NewLuaScaler("level + missing")
	require.NoError(t, err)

	top := s.state.Top()
	for range 5 {
		_, err := s.Evaluate(1)
		assert.Error(t, err)
	}
	assert.Equal(t, top, s.state.Top())
}

func TestMagnitude_Modifiers(t *testing.T) {
	power := attribute.New("power")
	src := newTestActor("src", tag.Tag{})
	src.attrs[power] = attribute.Value{Current: 40, Base: 20}

	m := Magnitude{
		Scaler:      ConstantScaler(10),
		Coefficient: -1,
		Modifiers: []MagnitudeModifier{
			AttributeModifier{Attribute: power, From: CaptureSource, Component: ComponentBase, Operation: Add, Coefficient: -0.5},
			StackModifier{},
		},
	}
	v, err := m.Evaluate(MagnitudeContext{Level: 1, Stacks: 3, Source: src})
	require.NoError(t, err)
	assert.InDelta(t, (-10-10)*3, v, 1e-9)

	bad := Magnitude{Modifiers: []MagnitudeModifier{AttributeModifier{Attribute: power, From: Capture(9)}}}
	_, err = bad.Evaluate(MagnitudeContext{Source: src})
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestSpec_CapturesMagnitudeOnce(t *testing.T) {
	power := attribute.New("power")
	src := newTestActor("src", tag.Tag{})
	src.attrs[power] = attribute.Of(10)

	ge := &GameplayEffect{
		Name: "snapshot",
		Impact: ImpactSpecification{
			Magnitude: Magnitude{Modifiers: []MagnitudeModifier{
				AttributeModifier{Attribute: power, From: CaptureSource, Operation: Override},
			}},
		},
	}
	spec := NewSpec(ge, nil, src, nil, 0)
	v, err := spec.Magnitude(1)
	require.NoError(t, err)
	assert.InDelta(t, 10, v, 1e-9)

	src.attrs[power] = attribute.Of(99)
	v, err = spec.Magnitude(1)
	require.NoError(t, err)
	assert.InDelta(t, 10, v, 1e-9, "snapshot magnitude must not change")

	ge.Impact.Magnitude.Dynamic = true
	v, err = spec.Magnitude(1)
	require.NoError(t, err)
	assert.InDelta(t, 99, v, 1e-9)
}

func TestSpec_LevelFallback(t *testing.T) {
	src := newTestActor("src", tag.Tag{})
	src.level = 7
	ge := &GameplayEffect{Name: "x"}

	assert.Equal(t, 7, NewSpec(ge, nil, src, nil, 0).Level)
	assert.Equal(t, 3, NewSpec(ge, nil, src, nil, 3).Level)
	assert.Equal(t, 1, NewSpec(ge, nil, nil, nil, 0).Level)
}

func TestSpec_ImpactDelta(t *testing.T) {
	cur := attribute.Value{Current: 80, Base: 100}
	tests := []struct {
		name   string
		op     ImpactOperation
		target ImpactTarget
		mag    float64
		want   attribute.Value
	}{
		{"add current", Add, TargetCurrent, -30, attribute.Value{Current: -30}},
		{"add base", Add, TargetBase, 10, attribute.Value{Base: 10}},
		{"add both", Add, TargetCurrentAndBase, 5, attribute.Value{Current: 5, Base: 5}},
		{"multiply current", Multiply, TargetCurrent, 0.5, attribute.Value{Current: -40}},
		{"multiply both", Multiply, TargetCurrentAndBase, 2, attribute.Value{Current: 80, Base: 100}},
		{"override current", Override, TargetCurrent, 1, attribute.Value{Current: -79}},
		{"override base", Override, TargetBase, 150, attribute.Value{Base: 50}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ge := &GameplayEffect{Impact: ImpactSpecification{Operation: tt.op, Target: tt.target}}
			got, err := NewSpec(ge, nil, nil, nil, 1).ImpactDelta(cur, tt.mag)
			require.NoError(t, err)
			assert.True(t, tt.want.ApproxEqual(got, 1e-9), "want %v got %v", tt.want, got)
		})
	}

	ge := &GameplayEffect{Impact: ImpactSpecification{Operation: ImpactOperation(42)}}
	_, err := NewSpec(ge, nil, nil, nil, 1).ImpactDelta(cur, 1)
	assert.ErrorIs(t, err, ErrDataIntegrity)

	ge = &GameplayEffect{Impact: ImpactSpecification{Target: ImpactTarget(42)}}
	_, err = NewSpec(ge, nil, nil, nil, 1).ImpactDelta(cur, 1)
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestSpec_TickSchedule(t *testing.T) {
	tests := []struct {
		name       string
		dur        DurationSpecification
		wantTicks  int
		wantPeriod float64
		wantErr    bool
	}{
		{
			name:       "fixed ticks",
			dur:        DurationSpecification{Policy: Durational, Duration: Fixed(10), Ticks: TickSpecification{Mode: FixedTicks, Value: Fixed(4)}},
			wantTicks:  4,
			wantPeriod: 2.5,
		},
		{
			name:       "fixed period floor",
			dur:        DurationSpecification{Policy: Durational, Duration: Fixed(10), Ticks: TickSpecification{Mode: FixedPeriod, Value: Fixed(3)}},
			wantTicks:  3,
			wantPeriod: 3,
		},
		{
			name:       "fixed period ceil",
			dur:        DurationSpecification{Policy: Durational, Duration: Fixed(10), Ticks: TickSpecification{Mode: FixedPeriod, Value: Fixed(3), Rounding: Ceil}},
			wantTicks:  4,
			wantPeriod: 3,
		},
		{
			name:       "exact period is not over-rounded",
			dur:        DurationSpecification{Policy: Durational, Duration: Fixed(0.3), Ticks: TickSpecification{Mode: FixedPeriod, Value: Fixed(0.1), Rounding: Ceil}},
			wantTicks:  3,
			wantPeriod: 0.1,
		},
		{
			name:       "infinite period",
			dur:        DurationSpecification{Policy: Infinite, Ticks: TickSpecification{Mode: FixedPeriod, Value: Fixed(1)}},
			wantTicks:  UnboundedTicks,
			wantPeriod: 1,
		},
		{
			name:    "infinite fixed ticks",
			dur:     DurationSpecification{Policy: Infinite, Ticks: TickSpecification{Mode: FixedTicks, Value: Fixed(3)}},
			wantErr: true,
		},
		{
			name:    "zero period",
			dur:     DurationSpecification{Policy: Durational, Duration: Fixed(5), Ticks: TickSpecification{Mode: FixedPeriod, Value: Fixed(0)}},
			wantErr: true,
		},
		{
			name: "no ticks",
			dur:  DurationSpecification{Policy: Durational, Duration: Fixed(5)},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ge := &GameplayEffect{Name: tt.name, Duration: tt.dur}
			ticks, period, err := NewSpec(ge, nil, nil, nil, 1).TickSchedule()
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrDataIntegrity)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantTicks, ticks)
			assert.InDelta(t, tt.wantPeriod, period, 1e-9)
		})
	}
}

func TestSpec_Duration(t *testing.T) {
	d, err := NewSpec(&GameplayEffect{}, nil, nil, nil, 1).Duration()
	require.NoError(t, err)
	assert.Zero(t, d)

	d, err = NewSpec(&GameplayEffect{Duration: DurationSpecification{Policy: Infinite}}, nil, nil, nil, 1).Duration()
	require.NoError(t, err)
	assert.True(t, math.IsInf(d, 1))

	ge := &GameplayEffect{Duration: DurationSpecification{Policy: Durational, Duration: Magnitude{Scaler: LinearScaler{Base: 2, PerLevel: 1}}}}
	d, err = NewSpec(ge, nil, nil, nil, 3).Duration()
	require.NoError(t, err)
	assert.InDelta(t, 4, d, 1e-9)

	ge = &GameplayEffect{Duration: DurationSpecification{Policy: DurationPolicy(9)}}
	_, err = NewSpec(ge, nil, nil, nil, 1).Duration()
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestGameplayEffect_Validate(t *testing.T) {
	hp := attribute.New("hp")

	ok := &GameplayEffect{
		Name:   "ok",
		Impact: ImpactSpecification{Attribute: hp, Magnitude: Fixed(-5)},
		Duration: DurationSpecification{
			Policy:   Durational,
			Duration: Fixed(5),
			Ticks:    TickSpecification{Mode: FixedPeriod, Value: Fixed(1)},
		},
	}
	require.NoError(t, ok.Validate())

	tests := []struct {
		name string
		ge   *GameplayEffect
	}{
		{"bad operation", &GameplayEffect{Impact: ImpactSpecification{Operation: 9}}},
		{"durational without duration", &GameplayEffect{Duration: DurationSpecification{Policy: Durational}}},
		{"infinite fixed ticks", &GameplayEffect{Duration: DurationSpecification{Policy: Infinite, Ticks: TickSpecification{Mode: FixedTicks, Value: Fixed(2)}}}},
		{"instant ticking", &GameplayEffect{Duration: DurationSpecification{Ticks: TickSpecification{Mode: FixedPeriod, Value: Fixed(1)}}}},
		{"instant reversal", &GameplayEffect{Impact: ImpactSpecification{ReverseImpactOnRemoval: true}}},
		{"missing magnitude", &GameplayEffect{Impact: ImpactSpecification{Attribute: hp}}},
		{"nil contained", &GameplayEffect{Impact: ImpactSpecification{Contained: []ContainedEffect{{}}}}},
		{"bad contained", &GameplayEffect{Impact: ImpactSpecification{Contained: []ContainedEffect{{Effect: &GameplayEffect{Impact: ImpactSpecification{Target: 7}}}}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.ge.Validate(), ErrDataIntegrity)
		})
	}

	cyclic := &GameplayEffect{Name: "cyclic"}
	cyclic.Impact.Contained = []ContainedEffect{{Effect: cyclic, Trigger: OnRemoval}}
	assert.NoError(t, cyclic.Validate())
}

func TestAffiliationPolicy_Allows(t *testing.T) {
	red := tag.Tag{Key: 1, Name: "team.red"}
	blue := tag.Tag{Key: 2, Name: "team.blue"}
	a := newTestActor("a", red)
	ally := newTestActor("ally", red)
	enemy := newTestActor("enemy", blue)
	loner := newTestActor("loner", tag.Tag{})

	tests := []struct {
		policy AffiliationPolicy
		source Actor
		target Actor
		want   bool
	}{
		{AnyAffiliation, a, enemy, true},
		{SelfOnly, a, a, true},
		{SelfOnly, a, ally, false},
		{ExcludeSelf, a, a, false},
		{ExcludeSelf, a, ally, true},
		{Allies, a, ally, true},
		{Allies, a, a, true},
		{Allies, a, enemy, false},
		{Allies, loner, newTestActor("other", tag.Tag{}), false},
		{Enemies, a, enemy, true},
		{Enemies, a, ally, false},
		{Enemies, a, a, false},
		{Enemies, nil, a, true},
	}
	for _, tt := range tests {
		got, err := tt.policy.Allows(tt.source, tt.target)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got, "%s", tt.policy)
	}

	_, err := AffiliationPolicy(77).Allows(a, a)
	assert.ErrorIs(t, err, ErrDataIntegrity)
}

func TestParseEnums(t *testing.T) {
	p, err := ParseStackingPolicy("partitionedstacking")
	require.NoError(t, err)
	assert.Equal(t, PartitionedStacking, p)

	r, err := ParseReApplicationPolicy("StackExtend")
	require.NoError(t, err)
	assert.True(t, r.Stacks())
	assert.True(t, r.Extends())
	assert.False(t, r.Refreshes())

	d, err := ParseDurationPolicy("")
	require.NoError(t, err)
	assert.Equal(t, Instant, d)

	_, err = ParseImpactTarget("Sideways")
	assert.ErrorIs(t, err, ErrDataIntegrity)

	assert.Equal(t, "FixedPeriod", FixedPeriod.String())
	assert.Equal(t, "42", TickMode(42).String())
}

type recordingOps struct {
	applied []string
	removed []tag.Tag
	healed  []attribute.Value
}

func (o *recordingOps) ModifyAttribute(_ Actor, _ *attribute.Attribute, delta attribute.Value, _ bool, p action.Priority) action.RootAction {
	return action.New(p, "modify", func(context.Context) error {
		o.healed = append(o.healed, delta)
		return nil
	}, nil)
}

func (o *recordingOps) ApplyEffect(ge *GameplayEffect, source, target Actor, _ int, p action.Priority) action.RootAction {
	return action.New(p, "apply", func(context.Context) error {
		o.applied = append(o.applied, source.Name()+">"+ge.Name+">"+target.Name())
		return nil
	}, nil)
}

func (o *recordingOps) RemoveEffectsWithTag(_ Actor, t tag.Tag, p action.Priority) action.RootAction {
	return action.New(p, "remove", func(context.Context) error {
		o.removed = append(o.removed, t)
		return nil
	}, nil)
}

func run(t *testing.T, actions []action.RootAction) {
	t.Helper()
	q := action.NewQueue()
	q.EnqueueAll(actions)
	_, err := q.ProcessAll(context.Background(), 0)
	require.NoError(t, err)
}

func TestApplyEffectWorker(t *testing.T) {
	src := newTestActor("src", tag.Tag{})
	dst := newTestActor("dst", tag.Tag{})
	burn := &GameplayEffect{Name: "burn"}
	parent := &GameplayEffect{Name: "parent"}
	ops := &recordingOps{}
	spec := NewSpec(parent, nil, src, dst, 1)

	w := ApplyEffectWorker{Effect: burn, On: OnTick}
	ev := Event{Spec: spec, Stacks: 1, Ops: ops}

	assert.Empty(t, w.OnApplication(ev))
	assert.Empty(t, w.OnRemoval(ev))
	acts := w.OnTick(ev)
	require.Len(t, acts, 1)
	assert.Equal(t, action.Normal, acts[0].Priority())
	run(t, acts)
	assert.Equal(t, []string{"dst>burn>dst"}, ops.applied)

	back := ApplyEffectWorker{Effect: burn, On: OnRemoval, ToSource: true, Priority: action.High}
	acts = back.OnRemoval(ev)
	require.Len(t, acts, 1)
	assert.Equal(t, action.High, acts[0].Priority())
	run(t, acts)
	assert.Equal(t, "dst>burn>src", ops.applied[1])
}

func TestEventGuard_SkipsWhenContainerGone(t *testing.T) {
	ops := &recordingOps{}
	alive := true
	ev := Event{
		Spec:  NewSpec(&GameplayEffect{Name: "p"}, nil, newTestActor("s", tag.Tag{}), newTestActor("t", tag.Tag{}), 1),
		Ops:   ops,
		Valid: func() bool { return alive },
	}
	w := RemoveEffectsWorker{Tag: tag.Tag{Key: 5, Name: "status.poison"}, On: OnApplication, Priority: action.Cleanup}
	acts := w.OnApplication(ev)
	require.Len(t, acts, 1)
	assert.Equal(t, action.Cleanup, acts[0].Priority())

	alive = false
	run(t, acts)
	assert.Empty(t, ops.removed)
}

func TestLifestealWorker(t *testing.T) {
	hp := attribute.New("hp")
	physical := tag.Tag{Key: 3, Name: "damage.physical"}
	src := newTestActor("src", tag.Tag{})
	dst := newTestActor("dst", tag.Tag{})
	ops := &recordingOps{}

	ge := &GameplayEffect{Name: "slash", Impact: ImpactSpecification{Attribute: hp, ImpactType: physical}}
	w := LifestealWorker{ImpactType: physical, Attribute: hp, Ratio: 0.25}

	ev := ImpactEvent{Spec: NewSpec(ge, nil, src, dst, 1), Attribute: hp, Delta: attribute.Value{Current: -40}, Ops: ops}
	require.True(t, w.ValidateImpact(ev))
	run(t, w.OnImpact(ev))
	require.Len(t, ops.healed, 1)
	assert.InDelta(t, 10, ops.healed[0].Current, 1e-9)

	heal := ev
	heal.Delta = attribute.Value{Current: 5}
	assert.False(t, w.ValidateImpact(heal))

	self := ev
	self.Spec = NewSpec(ge, nil, src, src, 1)
	assert.False(t, w.ValidateImpact(self))

	other := ev
	other.Spec = NewSpec(&GameplayEffect{Name: "spell"}, nil, src, dst, 1)
	assert.False(t, w.ValidateImpact(other))
}
