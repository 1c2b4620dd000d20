// Package sched runs cooperative coroutines on one logical thread.
//
// Each coroutine is backed by a goroutine, but only one of them runs at a
// time: control is handed over explicitly through per-coroutine channels, so
// code inside a coroutine may touch engine state without locks. Suspension
// points are WaitTicks, WaitSeconds and Yield; all of them honour the
// context they are given.
package sched

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
)

// ErrClosed is returned from suspension points once the scheduler is closed.
var ErrClosed = errors.New("sched: scheduler closed")

const timeEpsilon = 1e-9

// Func is the body of a coroutine.
type Func func(ctx context.Context, co *Coroutine) error

type state int8

const (
	stateNew state = iota
	stateRunning
	stateParked
	stateDone
)

// Coroutine is a suspended or running cooperative task.
type Coroutine struct {
	s      *Scheduler
	name   string
	ctx    context.Context
	fn     Func
	onDone func(error)

	resume chan struct{}
	yield  chan struct{}
	abort  bool

	state   state
	parkSeq uint64
	waitCtx context.Context
	wakeAt  uint64  // tick, 0 when waiting on time
	wakeT   float64 // scheduler time, <0 when waiting on ticks
	err     error
}

// Name returns the label given at spawn time.
func (co *Coroutine) Name() string { return co.name }

// Done reports whether the coroutine has returned.
func (co *Coroutine) Done() bool { return co.state == stateDone }

// Err returns the coroutine's result once Done.
func (co *Coroutine) Err() error { return co.err }

// Scheduler owns the parked set and the logical clock.
// It is not safe for concurrent use: drive it from one goroutine, or from
// inside its own coroutines.
type Scheduler struct {
	tick   uint64
	now    float64
	parked []*Coroutine
	fresh  map[*Coroutine]struct{}
	live   int
	closed bool
	logger *slog.Logger
}

// New creates a scheduler at tick 0.
func New(logger *slog.Logger) *Scheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		fresh:  make(map[*Coroutine]struct{}),
		logger: logger,
	}
}

// Tick returns the number of Advance calls so far.
func (s *Scheduler) Tick() uint64 { return s.tick }

// Now returns the accumulated delta time in seconds.
func (s *Scheduler) Now() float64 { return s.now }

// Live returns the number of coroutines that have not returned.
func (s *Scheduler) Live() int { return s.live }

// Parked returns the number of suspended coroutines.
func (s *Scheduler) Parked() int { return len(s.parked) }

// Spawn creates a coroutine without starting it. onDone, if set, runs on the
// scheduler's thread right after fn returns.
func (s *Scheduler) Spawn(ctx context.Context, name string, fn Func, onDone func(error)) *Coroutine {
	co := &Coroutine{
		s:      s,
		name:   name,
		ctx:    ctx,
		fn:     fn,
		onDone: onDone,
		resume: make(chan struct{}),
		yield:  make(chan struct{}),
		wakeT:  -1,
	}
	s.fresh[co] = struct{}{}
	s.live++
	go co.main()
	return co
}

// Go spawns a coroutine and runs it until its first suspension point.
func (s *Scheduler) Go(ctx context.Context, name string, fn Func, onDone func(error)) *Coroutine {
	co := s.Spawn(ctx, name, fn, onDone)
	s.Wake(co)
	return co
}

// Wake runs co now if it is new or parked. Parked coroutines observe their
// context on resume, so waking a cancelled coroutine lets it unwind.
func (s *Scheduler) Wake(co *Coroutine) {
	switch co.state {
	case stateNew:
		delete(s.fresh, co)
		s.run(co)
	case stateParked:
		s.unpark(co)
		s.run(co)
	}
}

// Advance moves the clock one tick forward by dt seconds and resumes every
// coroutine whose wait condition is satisfied or whose context is done, in
// the order they parked.
func (s *Scheduler) Advance(dt float64) {
	s.tick++
	s.now += dt

	type ready struct {
		co  *Coroutine
		seq uint64
	}
	pending := s.parked
	s.parked = nil
	var wake []ready
	for _, co := range pending {
		if co.ready() {
			wake = append(wake, ready{co: co, seq: co.parkSeq})
		} else {
			s.parked = append(s.parked, co)
		}
	}

	for _, r := range wake {
		// Someone may have woken it already; if it parked again since, its
		// new wait belongs to the next tick.
		if r.co.state != stateParked || r.co.parkSeq != r.seq {
			continue
		}
		s.run(r.co)
	}
}

// Close wakes every parked coroutine with ErrClosed and discards coroutines
// that never started.
func (s *Scheduler) Close() {
	if s.closed {
		return
	}
	s.closed = true
	for co := range s.fresh {
		delete(s.fresh, co)
		co.abort = true
		co.state = stateRunning
		co.resume <- struct{}{}
		<-co.yield
	}
	for len(s.parked) > 0 {
		co := s.parked[0]
		s.parked = s.parked[1:]
		s.run(co)
	}
}

func (s *Scheduler) run(co *Coroutine) {
	co.state = stateRunning
	co.resume <- struct{}{}
	<-co.yield
	if co.state != stateDone {
		return
	}
	if co.err != nil && !errors.Is(co.err, context.Canceled) && !errors.Is(co.err, ErrClosed) {
		s.logger.Debug("coroutine returned error", "coroutine", co.name, "error", co.err)
	}
	if co.onDone != nil {
		co.onDone(co.err)
	}
}

func (s *Scheduler) unpark(co *Coroutine) {
	for i, p := range s.parked {
		if p == co {
			s.parked = append(s.parked[:i], s.parked[i+1:]...)
			return
		}
	}
}

func (co *Coroutine) main() {
	<-co.resume
	if co.abort {
		co.state = stateDone
		co.err = ErrClosed
		co.s.live--
		co.yield <- struct{}{}
		return
	}
	err := co.call()
	co.err = err
	co.state = stateDone
	co.s.live--
	co.yield <- struct{}{}
}

func (co *Coroutine) call() (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("coroutine %s panicked: %v", co.name, r)
		}
	}()
	return co.fn(co.ctx, co)
}

func (co *Coroutine) ready() bool {
	if co.s.closed || (co.waitCtx != nil && co.waitCtx.Err() != nil) {
		return true
	}
	if co.wakeT >= 0 {
		return co.s.now+timeEpsilon >= co.wakeT
	}
	return co.s.tick >= co.wakeAt
}

// park suspends the calling coroutine. It must only be called from inside co.
func (co *Coroutine) park(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if co.s.closed {
		return ErrClosed
	}
	co.waitCtx = ctx
	co.parkSeq++
	co.state = stateParked
	co.s.parked = append(co.s.parked, co)
	co.yield <- struct{}{}
	<-co.resume
	co.waitCtx = nil
	if co.s.closed {
		return ErrClosed
	}
	return ctx.Err()
}

// WaitTicks suspends until n more Advance calls have happened.
func (co *Coroutine) WaitTicks(ctx context.Context, n int) error {
	if n <= 0 {
		return ctx.Err()
	}
	co.wakeT = -1
	co.wakeAt = co.s.tick + uint64(n)
	return co.park(ctx)
}

// WaitSeconds suspends until the scheduler clock has moved d seconds.
func (co *Coroutine) WaitSeconds(ctx context.Context, d float64) error {
	if d <= 0 {
		return ctx.Err()
	}
	co.wakeT = co.s.now + d
	return co.park(ctx)
}

// Yield suspends until the next tick.
func (co *Coroutine) Yield(ctx context.Context) error {
	return co.WaitTicks(ctx, 1)
}

// Scheduler returns the owning scheduler.
func (co *Coroutine) Scheduler() *Scheduler { return co.s }
