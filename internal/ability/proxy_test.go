package ability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gas/internal/attribute"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/sched"
	"github.com/udisondev/gas/internal/tag"
)

type testActor struct{ name string }

func (a *testActor) Name() string         { return a.name }
func (a *testActor) Level() int           { return 1 }
func (a *testActor) Affiliation() tag.Tag { return tag.Tag{} }
func (a *testActor) Tags() tag.View       { return &tag.Set{} }

func (a *testActor) AttributeValue(*attribute.Attribute) (attribute.Value, bool) {
	return attribute.Value{}, false
}

type testOwner struct {
	actor   *testActor
	sched   *sched.Scheduler
	usage   int
	applied []string
	ended   []*Proxy
}

func newTestOwner(t *testing.T) *testOwner {
	t.Helper()
	s := sched.New(slog.Default())
	t.Cleanup(s.Close)
	return &testOwner{actor: &testActor{name: "owner"}, sched: s}
}

func (o *testOwner) Actor() effect.Actor         { return o.actor }
func (o *testOwner) Scheduler() *sched.Scheduler { return o.sched }
func (o *testOwner) Logger() *slog.Logger        { return slog.Default() }
func (o *testOwner) AbilityEnded(p *Proxy)       { o.ended = append(o.ended, p) }

func (o *testOwner) ApplyUsageEffects(*Spec) error {
	o.usage++
	return nil
}

func (o *testOwner) ApplyEffect(ge *effect.GameplayEffect, target effect.Actor, _ *Spec) error {
	o.applied = append(o.applied, ge.Name+">"+target.Name())
	return nil
}

// recordingTask logs its lifecycle into a shared slice.
type recordingTask struct {
	name     string
	ticks    int
	err      error
	critical bool
	log      *[]string
}

func (r recordingTask) Prepare(*Proxy)          { *r.log = append(*r.log, "prepare "+r.name) }
func (r recordingTask) Clean(*Proxy)            { *r.log = append(*r.log, "clean "+r.name) }
func (r recordingTask) IsCriticalSection() bool { return r.critical }

func (r recordingTask) Activate(ctx context.Context, run *TaskRun) error {
	*r.log = append(*r.log, "start "+r.name)
	if err := run.WaitTicks(ctx, r.ticks); err != nil {
		*r.log = append(*r.log, "cancelled "+r.name)
		return err
	}
	*r.log = append(*r.log, "finish "+r.name)
	return r.err
}

func start(t *testing.T, o *testOwner, a *Ability, hooks Hooks) *Proxy {
	t.Helper()
	p := NewProxy(NewSpec(a, o.actor, 1), o, hooks)
	require.NoError(t, p.Start(context.Background()))
	return p
}

func TestProxy_StageWaitsForAllTasksAndCleansBeforeNext(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	a := &Ability{
		Name: "combo",
		Stages: []Stage{
			{Policy: All, Tasks: []Task{
				recordingTask{name: "a", ticks: 1, log: &log},
				recordingTask{name: "b", ticks: 2, log: &log},
			}},
			{Tasks: []Task{recordingTask{name: "c", ticks: 1, log: &log}}},
		},
	}
	p := start(t, o, a, Hooks{})

	assert.Equal(t, []string{"prepare a", "prepare b", "start a", "start b"}, log)
	assert.Equal(t, 0, p.Stage())

	o.sched.Advance(1)
	assert.Equal(t, 0, p.Stage(), "stage 0 must wait for b")
	assert.NotContains(t, log, "clean a")

	o.sched.Advance(1)
	assert.Equal(t, []string{
		"prepare a", "prepare b", "start a", "start b",
		"finish a", "finish b", "clean a", "clean b",
		"prepare c", "start c",
	}, log)
	assert.Equal(t, 1, p.Stage())

	o.sched.Advance(1)
	assert.True(t, p.Completed())
	assert.False(t, p.Cancelled())
	assert.False(t, p.Failed())
	assert.Equal(t, "clean c", log[len(log)-1])
	require.Len(t, o.ended, 1)
	assert.Same(t, p, o.ended[0])

	select {
	case <-p.Done():
	default:
		t.Fatal("done channel must be closed")
	}
}

func TestProxy_AnyPolicyCancelsRemainingTasks(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	a := &Ability{
		Name: "race",
		Stages: []Stage{{Policy: Any, Tasks: []Task{
			recordingTask{name: "fast", ticks: 1, log: &log},
			recordingTask{name: "slow", ticks: 5, log: &log},
		}}},
	}
	p := start(t, o, a, Hooks{})

	o.sched.Advance(1)
	assert.Contains(t, log, "cancelled slow")
	assert.Contains(t, log, "clean slow")
	assert.True(t, p.Completed())
	assert.False(t, p.Failed(), "cancellation is not a failure")
	assert.Equal(t, 0, o.sched.Live())
}

func TestProxy_FirstPolicyFollowsFirstTask(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	a := &Ability{
		Name: "lead",
		Stages: []Stage{{Policy: First, Tasks: []Task{
			recordingTask{name: "lead", ticks: 2, log: &log},
			recordingTask{name: "side", ticks: 1, log: &log},
		}}},
	}
	p := start(t, o, a, Hooks{})

	o.sched.Advance(1)
	assert.False(t, p.Completed())
	o.sched.Advance(1)
	assert.True(t, p.Completed())
}

func TestProxy_FailedTaskStillAdvances(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	type ended struct {
		stage  int
		failed bool
	}
	var ends []ended
	a := &Ability{
		Name: "shaky",
		Stages: []Stage{
			{Tasks: []Task{
				recordingTask{name: "boom", ticks: 1, err: errors.New("boom"), log: &log},
				FuncTask{Fn: func(context.Context, *TaskRun) error { panic("kaboom") }},
			}},
			{Tasks: []Task{recordingTask{name: "after", ticks: 0, log: &log}}},
		},
	}
	p := start(t, o, a, Hooks{
		StageEnded: func(_ *Proxy, stage int, failed bool) { ends = append(ends, ended{stage, failed}) },
	})

	o.sched.Advance(1)
	assert.True(t, p.Completed())
	assert.True(t, p.Failed())
	assert.Contains(t, log, "finish after")
	assert.Equal(t, []ended{{0, true}, {1, false}}, ends)
}

func TestProxy_CancelRunsCleanAndStopsChain(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	var cancelled *bool
	a := &Ability{
		Name: "channel",
		Stages: []Stage{
			{Tasks: []Task{recordingTask{name: "long", ticks: 100, log: &log}}},
			{Tasks: []Task{recordingTask{name: "never", ticks: 1, log: &log}}},
		},
	}
	p := start(t, o, a, Hooks{
		Completed: func(_ *Proxy, c bool) { cancelled = &c },
	})

	p.Cancel()
	assert.True(t, p.Completed())
	assert.True(t, p.Cancelled())
	require.NotNil(t, cancelled)
	assert.True(t, *cancelled)
	assert.Contains(t, log, "clean long")
	assert.NotContains(t, log, "prepare never")
	assert.Equal(t, 0, o.sched.Live())

	p.Cancel()
	assert.Len(t, o.ended, 1, "second cancel is a no-op")
}

func TestProxy_ParentContextCancellation(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	a := &Ability{
		Name:   "wait",
		Stages: []Stage{{Tasks: []Task{recordingTask{name: "w", ticks: 100, log: &log}}}},
	}
	ctx, cancel := context.WithCancel(context.Background())
	p := NewProxy(NewSpec(a, o.actor, 1), o, Hooks{})
	require.NoError(t, p.Start(ctx))
	require.Error(t, p.Start(ctx))

	cancel()
	assert.False(t, p.Completed())
	o.sched.Advance(0)
	assert.True(t, p.Completed())
	assert.True(t, p.Cancelled())
}

func TestProxy_UsageEffectsAppliedOnce(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	a := &Ability{
		Name: "costly",
		Stages: []Stage{
			{ApplyUsageEffects: true, Tasks: []Task{recordingTask{name: "a", ticks: 1, log: &log}}},
			{ApplyUsageEffects: true, Tasks: []Task{recordingTask{name: "b", ticks: 1, log: &log}}},
		},
	}
	p := start(t, o, a, Hooks{})
	o.sched.Advance(1)
	assert.Equal(t, 1, o.usage)
	assert.True(t, p.Spec().UsageApplied())
	o.sched.Advance(1)
	assert.Equal(t, 1, o.usage)
	assert.True(t, p.Completed())

	cancelled := start(t, o, a, Hooks{})
	assert.False(t, cancelled.Spec().UsageApplied(), "flag resets per activation")
	cancelled.Cancel()
	assert.Equal(t, 1, o.usage, "cancelled stage must not charge usage")
}

func TestProxy_MaintainedStage(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	a := &Ability{
		Name: "aura",
		Stages: []Stage{
			{Tasks: []Task{FuncTask{Fn: func(ctx context.Context, run *TaskRun) error {
				run.Maintain()
				if err := run.WaitTicks(ctx, 3); err != nil {
					return err
				}
				log = append(log, "aura done")
				return nil
			}}}},
			{Tasks: []Task{recordingTask{name: "cast", ticks: 1, log: &log}}},
		},
	}
	p := start(t, o, a, Hooks{})

	assert.Equal(t, 1, p.Stage())
	assert.Equal(t, 1, p.Maintained())
	assert.Contains(t, log, "start cast")

	o.sched.Advance(1)
	assert.Contains(t, log, "finish cast")
	assert.False(t, p.Completed(), "maintained stage still running")

	o.sched.Advance(1)
	o.sched.Advance(1)
	assert.Equal(t, "aura done", log[len(log)-1])
	assert.True(t, p.Completed())
	assert.Equal(t, 0, p.Maintained())
}

func TestProxy_Injection(t *testing.T) {
	o := newTestOwner(t)
	var log []string
	type injected struct {
		inj Injection
		ok  bool
	}
	var got []injected
	a := &Ability{
		Name: "skippable",
		Stages: []Stage{
			{Tasks: []Task{recordingTask{name: "windup", ticks: 10, log: &log}}},
			{Tasks: []Task{recordingTask{name: "strike", ticks: 10, log: &log}}},
		},
	}
	p := start(t, o, a, Hooks{
		Injected: func(_ *Proxy, inj Injection, ok bool) { got = append(got, injected{inj, ok}) },
	})

	assert.True(t, p.Inject(SkipStageInjection{}))
	assert.Equal(t, 1, p.Stage())
	assert.Contains(t, log, "clean windup")
	assert.False(t, p.Failed())

	assert.True(t, p.Inject(CancelInjection{}))
	assert.True(t, p.Completed())

	assert.False(t, p.Inject(SkipStageInjection{}), "no stage left to skip")
	assert.False(t, p.Inject(CancelInjection{}))

	custom := InjectionFunc(func(_ *Proxy, st *Stage) bool { return st.Name == "none" })
	assert.True(t, p.Inject(custom))
	require.Len(t, got, 5)
	assert.Equal(t, []bool{true, true, false, false, true}, []bool{got[0].ok, got[1].ok, got[2].ok, got[3].ok, got[4].ok})
}

func TestProxy_CriticalSection(t *testing.T) {
	o := newTestOwner(t)
	pulse := &effect.GameplayEffect{Name: "pulse"}
	a := &Ability{
		Name:   "drain",
		Stages: []Stage{{Tasks: []Task{ChannelTask{Seconds: 1, Interval: 0.25, Pulse: pulse}}}},
	}
	p := start(t, o, a, Hooks{})
	assert.True(t, p.InCriticalSection())

	for range 4 {
		o.sched.Advance(0.25)
	}
	assert.True(t, p.Completed())
	assert.False(t, p.InCriticalSection())
	assert.Len(t, o.applied, 4)
	assert.Equal(t, "pulse>owner", o.applied[0])
}

func TestProxy_TargetThenApply(t *testing.T) {
	o := newTestOwner(t)
	hit := &effect.GameplayEffect{Name: "hit"}
	a := &Ability{
		Name: "volley",
		Stages: []Stage{
			{Tasks: []Task{TargetTask{Targeter: StaticTargeter{&testActor{name: "x"}, &testActor{name: "y"}}}}},
			{Tasks: []Task{ApplyEffectTask{Effect: hit}}},
			{Tasks: []Task{ApplyEffectTask{Effect: hit, ToSelf: true}}},
		},
	}
	p := start(t, o, a, Hooks{})
	assert.True(t, p.Completed())
	assert.Equal(t, []string{"hit>x", "hit>y", "hit>owner"}, o.applied)
}

type cancelledTargeter struct{}

func (cancelledTargeter) Acquire(context.Context, *TaskRun) ([]effect.Actor, error) {
	return nil, fmt.Errorf("aborted: %w", context.Canceled)
}

func TestTargetTask_SwallowsCancellation(t *testing.T) {
	o := newTestOwner(t)
	a := &Ability{Name: "aim", Stages: []Stage{{Tasks: []Task{TargetTask{Targeter: cancelledTargeter{}}}}}}
	p := start(t, o, a, Hooks{})
	assert.True(t, p.Completed())
	assert.False(t, p.Failed())
	assert.Empty(t, p.Targets())
}

func TestProxy_EmptyStages(t *testing.T) {
	o := newTestOwner(t)
	var started []int
	a := &Ability{Name: "noop", Stages: []Stage{{Policy: Any}, {Policy: First}, {}}}
	p := start(t, o, a, Hooks{StageStarted: func(_ *Proxy, i int) { started = append(started, i) }})
	assert.True(t, p.Completed())
	assert.Equal(t, []int{0, 1, 2}, started)
}

func TestAbility_Validate(t *testing.T) {
	assert.NoError(t, (&Ability{Name: "ok", MinLevel: 1, MaxLevel: 3}).Validate())
	assert.Error(t, (&Ability{}).Validate())
	assert.Error(t, (&Ability{Name: "x", MinLevel: 5, MaxLevel: 2}).Validate())
	assert.Error(t, (&Ability{Name: "x", Stages: []Stage{{Tasks: []Task{nil}}}}).Validate())
	bad := &effect.GameplayEffect{Name: "bad", Duration: effect.DurationSpecification{Policy: effect.Durational}}
	assert.ErrorIs(t, (&Ability{Name: "x", Cost: bad}).Validate(), effect.ErrDataIntegrity)

	a := &Ability{Name: "bounded", MinLevel: 2, MaxLevel: 4}
	assert.False(t, a.LevelAllowed(1))
	assert.True(t, a.LevelAllowed(3))
	assert.False(t, a.LevelAllowed(5))
}

func TestPolicyByName(t *testing.T) {
	p, ok := PolicyByName("")
	require.True(t, ok)
	assert.Equal(t, "All", p.Name())
	p, ok = PolicyByName("Any")
	require.True(t, ok)
	assert.Equal(t, "Any", p.Name())
	_, ok = PolicyByName("Most")
	assert.False(t, ok)
}
