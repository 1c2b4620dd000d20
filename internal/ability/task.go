package ability

import (
	"context"
	"errors"
	"fmt"

	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/sched"
)

// Task is one unit of work inside a stage. Tasks are authored data shared
// by every activation; keep per-activation state on the Proxy.
type Task interface {
	// Prepare runs for every task of a stage before any of them activates.
	Prepare(p *Proxy)
	// Activate runs as a coroutine under the stage context.
	Activate(ctx context.Context, run *TaskRun) error
	// Clean runs after the stage resolves, even on failure or cancellation.
	Clean(p *Proxy)
	IsCriticalSection() bool
}

// BaseTask provides no-op Prepare and Clean.
type BaseTask struct{}

func (BaseTask) Prepare(*Proxy)          {}
func (BaseTask) Clean(*Proxy)            {}
func (BaseTask) IsCriticalSection() bool { return false }

// TaskRun is a task's handle on its running coroutine.
type TaskRun struct {
	proxy *Proxy
	stage *stageRun
	index int
	co    *sched.Coroutine
}

// Proxy returns the activation the task belongs to.
func (r *TaskRun) Proxy() *Proxy { return r.proxy }

// Stage returns the index of the task's stage.
func (r *TaskRun) Stage() int { return r.stage.index }

// Index returns the task's position in its stage.
func (r *TaskRun) Index() int { return r.index }

// WaitTicks suspends for n scheduler ticks.
func (r *TaskRun) WaitTicks(ctx context.Context, n int) error { return r.co.WaitTicks(ctx, n) }

// WaitSeconds suspends for d seconds of scheduler time.
func (r *TaskRun) WaitSeconds(ctx context.Context, d float64) error { return r.co.WaitSeconds(ctx, d) }

// Yield suspends until the next tick.
func (r *TaskRun) Yield(ctx context.Context) error { return r.co.Yield(ctx) }

// Now returns the scheduler clock.
func (r *TaskRun) Now() float64 { return r.co.Scheduler().Now() }

// Maintain tells the stage policy this task no longer blocks the next
// stage. The task keeps running and the activation waits for it.
func (r *TaskRun) Maintain() { r.proxy.maintain(r.stage, r.index) }

// FuncTask adapts a function to Task.
type FuncTask struct {
	BaseTask
	Label    string
	Critical bool
	Fn       func(ctx context.Context, run *TaskRun) error
}

func (t FuncTask) Activate(ctx context.Context, run *TaskRun) error {
	if t.Fn == nil {
		return nil
	}
	return t.Fn(ctx, run)
}

func (t FuncTask) IsCriticalSection() bool { return t.Critical }

// WaitTask waits a number of ticks.
type WaitTask struct {
	BaseTask
	Ticks int
}

func (t WaitTask) Activate(ctx context.Context, run *TaskRun) error {
	return run.WaitTicks(ctx, t.Ticks)
}

// DelayTask waits a number of seconds.
type DelayTask struct {
	BaseTask
	Seconds float64
}

func (t DelayTask) Activate(ctx context.Context, run *TaskRun) error {
	return run.WaitSeconds(ctx, t.Seconds)
}

// ChannelTask holds a critical section for Seconds, optionally applying
// Pulse to the activation's targets every Interval seconds.
type ChannelTask struct {
	BaseTask
	Seconds  float64
	Interval float64
	Pulse    *effect.GameplayEffect
}

func (t ChannelTask) IsCriticalSection() bool { return true }

func (t ChannelTask) Activate(ctx context.Context, run *TaskRun) error {
	start := run.Now()
	end := start + t.Seconds
	next := start + t.Interval
	for run.Now()+timeEpsilon < end {
		if err := run.Yield(ctx); err != nil {
			return err
		}
		if t.Pulse == nil || t.Interval <= 0 {
			continue
		}
		for next <= run.Now()+timeEpsilon && next <= end+timeEpsilon {
			if err := applyToTargets(run.Proxy(), t.Pulse, false); err != nil {
				return err
			}
			next += t.Interval
		}
	}
	return nil
}

const timeEpsilon = 1e-9

// Targeter picks targets for an activation.
type Targeter interface {
	Acquire(ctx context.Context, run *TaskRun) ([]effect.Actor, error)
}

// SelfTargeter targets the owner.
type SelfTargeter struct{}

func (SelfTargeter) Acquire(_ context.Context, run *TaskRun) ([]effect.Actor, error) {
	return []effect.Actor{run.Proxy().Owner().Actor()}, nil
}

// StaticTargeter returns a fixed target list.
type StaticTargeter []effect.Actor

func (s StaticTargeter) Acquire(context.Context, *TaskRun) ([]effect.Actor, error) {
	return s, nil
}

// TargetTask stores the targeter's result on the proxy. Cancelling the
// acquisition is not a failure.
type TargetTask struct {
	BaseTask
	Targeter Targeter
}

func (t TargetTask) Activate(ctx context.Context, run *TaskRun) error {
	if t.Targeter == nil {
		return errors.New("target task without targeter")
	}
	targets, err := t.Targeter.Acquire(ctx, run)
	if err != nil {
		if isCancellation(err) {
			return nil
		}
		return fmt.Errorf("acquiring targets: %w", err)
	}
	run.Proxy().SetTargets(targets)
	return nil
}

// ApplyEffectTask applies Effect to the activation's targets, or to the
// owner when ToSelf is set or no targets were chosen.
type ApplyEffectTask struct {
	BaseTask
	Effect *effect.GameplayEffect
	ToSelf bool
}

func (t ApplyEffectTask) Activate(ctx context.Context, run *TaskRun) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return applyToTargets(run.Proxy(), t.Effect, t.ToSelf)
}

func applyToTargets(p *Proxy, ge *effect.GameplayEffect, toSelf bool) error {
	if ge == nil {
		return nil
	}
	targets := p.Targets()
	if toSelf || len(targets) == 0 {
		targets = []effect.Actor{p.Owner().Actor()}
	}
	var errs []error
	for _, target := range targets {
		if err := p.Owner().ApplyEffect(ge, target, p.Spec()); err != nil {
			errs = append(errs, fmt.Errorf("applying %s to %s: %w", ge.Name, target.Name(), err))
		}
	}
	return errors.Join(errs...)
}
