package ability

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/sched"
)

// Owner is what a proxy needs from the system that activated it.
type Owner interface {
	Actor() effect.Actor
	Scheduler() *sched.Scheduler
	Logger() *slog.Logger
	// ApplyUsageEffects applies the ability's cost and cooldown.
	ApplyUsageEffects(spec *Spec) error
	// ApplyEffect applies ge from the owner to target on behalf of spec.
	ApplyEffect(ge *effect.GameplayEffect, target effect.Actor, spec *Spec) error
	// AbilityEnded is called once when the activation is over.
	AbilityEnded(p *Proxy)
}

// Hooks observe a proxy. Any field may be nil.
type Hooks struct {
	StageStarted func(p *Proxy, stage int)
	StageEnded   func(p *Proxy, stage int, failed bool)
	Injected     func(p *Proxy, inj Injection, ok bool)
	Completed    func(p *Proxy, cancelled bool)
}

// Proxy is one in-flight activation of an ability.
//
// Stages run in order. A stage prepares its tasks, runs them as coroutines
// under a stage context derived from the activation context, waits for its
// policy, cleans every task and then starts the next stage. A stage whose
// policy says Advance keeps running as a maintained stage; the activation
// completes only after the stage chain and every maintained stage are done.
//
// A proxy is driven from the scheduler's thread and is not safe for
// concurrent use.
type Proxy struct {
	spec   *Spec
	owner  Owner
	hooks  Hooks
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc

	index      int
	current    *stageRun
	live       []*stageRun
	maintained int
	chainDone  bool
	completed  bool
	cancelled  bool
	failed     bool

	targets []effect.Actor
	done    chan struct{}
}

type stageRun struct {
	index  int
	stage  *Stage
	ctx    context.Context
	cancel context.CancelFunc
	cos    []*sched.Coroutine

	status     StageStatus
	failed     bool
	starting   bool
	resolved   bool
	maintained bool
	ended      bool
}

// NewProxy creates an idle proxy at stage -1.
func NewProxy(spec *Spec, owner Owner, hooks Hooks) *Proxy {
	logger := owner.Logger()
	if logger == nil {
		logger = slog.Default()
	}
	return &Proxy{
		spec:   spec,
		owner:  owner,
		hooks:  hooks,
		logger: logger.With("ability", spec.Ability.Name),
		index:  -1,
		done:   make(chan struct{}),
	}
}

// Spec returns the activated spec.
func (p *Proxy) Spec() *Spec { return p.spec }

// Owner returns the activating owner.
func (p *Proxy) Owner() Owner { return p.owner }

// Stage returns the index of the current stage, -1 before start.
func (p *Proxy) Stage() int { return p.index }

// Maintained returns the number of stages still running behind the current
// one.
func (p *Proxy) Maintained() int { return p.maintained }

// Done is closed once the activation is over.
func (p *Proxy) Done() <-chan struct{} { return p.done }

// Completed reports whether the activation is over.
func (p *Proxy) Completed() bool { return p.completed }

// Cancelled reports whether the activation ended through cancellation.
func (p *Proxy) Cancelled() bool { return p.cancelled }

// Failed reports whether any stage failed.
func (p *Proxy) Failed() bool { return p.failed }

// Targets returns the targets chosen by a targeting task.
func (p *Proxy) Targets() []effect.Actor { return p.targets }

// SetTargets replaces the activation's targets.
func (p *Proxy) SetTargets(targets []effect.Actor) { p.targets = targets }

// Context returns the activation context, nil before Start.
func (p *Proxy) Context() context.Context { return p.ctx }

// Start runs the activation until its first suspension point.
func (p *Proxy) Start(ctx context.Context) error {
	if p.ctx != nil {
		return fmt.Errorf("ability %s: proxy already started", p.spec.Ability.Name)
	}
	p.ctx, p.cancel = context.WithCancel(ctx)
	p.spec.usageApplied = false
	p.advance()
	return nil
}

// Cancel cancels the activation. Running tasks are resumed immediately so
// they can unwind; cleanup and hooks still run.
func (p *Proxy) Cancel() {
	if p.ctx == nil || p.completed {
		return
	}
	p.cancel()
	for _, sr := range slices.Clone(p.live) {
		p.resolve(sr)
	}
}

// SkipStage ends the current stage early, cancelling its running tasks.
// It reports whether there was a stage to skip.
func (p *Proxy) SkipStage() bool {
	sr := p.current
	if sr == nil || sr.resolved || sr.ended {
		return false
	}
	p.resolve(sr)
	return true
}

// InCriticalSection reports whether a running task declares a critical
// section.
func (p *Proxy) InCriticalSection() bool {
	for _, sr := range p.live {
		for i, task := range sr.stage.Tasks {
			if !sr.status.Done[i] && task.IsCriticalSection() {
				return true
			}
		}
	}
	return false
}

// Inject applies inj to the current stage, or to an empty stage if none is
// running, and reports the outcome through the Injected hook.
func (p *Proxy) Inject(inj Injection) bool {
	stage := &Stage{Name: "none"}
	if p.current != nil {
		stage = p.current.stage
	}
	ok := inj.Inject(p, stage)
	if p.hooks.Injected != nil {
		p.hooks.Injected(p, inj, ok)
	}
	return ok
}

func (p *Proxy) advance() {
	p.current = nil
	p.index++
	if p.ctx.Err() != nil || p.index >= len(p.spec.Ability.Stages) {
		p.chainDone = true
		p.tryComplete()
		return
	}
	p.runStage(p.index)
}

func (p *Proxy) runStage(i int) {
	stage := &p.spec.Ability.Stages[i]
	ctx, cancel := context.WithCancel(p.ctx)
	n := len(stage.Tasks)
	sr := &stageRun{
		index:  i,
		stage:  stage,
		ctx:    ctx,
		cancel: cancel,
		status: StageStatus{
			Done:        make([]bool, n),
			Maintaining: make([]bool, n),
		},
		starting: true,
	}
	p.current = sr
	p.live = append(p.live, sr)

	for _, task := range stage.Tasks {
		if err := p.guard("prepare", func() { task.Prepare(p) }); err != nil {
			sr.failed = true
		}
	}
	if p.hooks.StageStarted != nil {
		p.hooks.StageStarted(p, i)
	}

	s := p.owner.Scheduler()
	for j, task := range stage.Tasks {
		run := &TaskRun{proxy: p, stage: sr, index: j}
		name := fmt.Sprintf("%s/%d/%d", p.spec.Ability.Name, i, j)
		co := s.Spawn(ctx, name, func(ctx context.Context, co *sched.Coroutine) error {
			run.co = co
			return task.Activate(ctx, run)
		}, func(err error) {
			p.taskDone(sr, j, err)
		})
		sr.cos = append(sr.cos, co)
	}
	for _, co := range sr.cos {
		s.Wake(co)
	}
	sr.starting = false
	p.evaluate(sr)
}

func (p *Proxy) taskDone(sr *stageRun, j int, err error) {
	sr.status.Done[j] = true
	sr.status.Finished++
	if sr.status.Maintaining[j] {
		sr.status.Maintaining[j] = false
		sr.status.Maintained--
	}
	if err != nil && !isCancellation(err) {
		sr.failed = true
		p.logger.Warn("ability task failed",
			"stage", sr.index,
			"task", j,
			"error", err)
	}
	if sr.starting {
		return
	}
	p.evaluate(sr)
}

func (p *Proxy) maintain(sr *stageRun, j int) {
	if sr.status.Done[j] || sr.status.Maintaining[j] {
		return
	}
	sr.status.Maintaining[j] = true
	sr.status.Maintained++
	if sr.starting {
		return
	}
	p.evaluate(sr)
}

func (p *Proxy) evaluate(sr *stageRun) {
	if sr.ended {
		return
	}
	if !sr.resolved {
		if sr.ctx.Err() != nil {
			p.resolve(sr)
			return
		}
		switch sr.stage.policy().Resolve(sr.status) {
		case Complete:
			p.resolve(sr)
			return
		case Advance:
			if !sr.maintained {
				sr.maintained = true
				p.maintained++
				p.advance()
			}
			return
		default:
			return
		}
	}
	p.finishIfDone(sr)
}

// resolve cancels what is still running in sr and ends it once every task
// has unwound.
func (p *Proxy) resolve(sr *stageRun) {
	if sr.ended {
		return
	}
	sr.resolved = true
	sr.cancel()
	s := p.owner.Scheduler()
	for _, co := range sr.cos {
		if !co.Done() {
			s.Wake(co)
		}
	}
	p.finishIfDone(sr)
}

func (p *Proxy) finishIfDone(sr *stageRun) {
	if sr.ended || sr.status.Finished < sr.status.Total() {
		return
	}
	p.endStage(sr)
}

func (p *Proxy) endStage(sr *stageRun) {
	sr.ended = true
	sr.cancel()
	for _, task := range sr.stage.Tasks {
		if err := p.guard("clean", func() { task.Clean(p) }); err != nil {
			sr.failed = true
		}
	}
	p.live = slices.DeleteFunc(p.live, func(o *stageRun) bool { return o == sr })
	if p.current == sr {
		p.current = nil
	}
	if sr.failed {
		p.failed = true
	}

	if sr.stage.ApplyUsageEffects && !p.spec.usageApplied && p.ctx.Err() == nil {
		p.spec.usageApplied = true
		if err := p.owner.ApplyUsageEffects(p.spec); err != nil {
			p.logger.Warn("applying usage effects", "stage", sr.index, "error", err)
		}
	}
	if p.hooks.StageEnded != nil {
		p.hooks.StageEnded(p, sr.index, sr.failed)
	}

	if sr.maintained {
		p.maintained--
		p.tryComplete()
		return
	}
	p.advance()
}

func (p *Proxy) tryComplete() {
	if p.completed || !p.chainDone || p.maintained > 0 {
		return
	}
	p.completed = true
	p.cancelled = p.ctx.Err() != nil
	p.cancel()
	if p.hooks.Completed != nil {
		p.hooks.Completed(p, p.cancelled)
	}
	p.owner.AbilityEnded(p)
	close(p.done)
}

func (p *Proxy) guard(what string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("task %s panicked: %v", what, r)
			p.logger.Warn("ability task hook panicked", "hook", what, "panic", r)
		}
	}()
	fn()
	return nil
}

func isCancellation(err error) bool {
	return errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) ||
		errors.Is(err, sched.ErrClosed)
}
