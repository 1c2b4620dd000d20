// Package gas owns runtime gameplay state: attribute systems, their worker
// pipelines, applied effect containers and ability activations, all driven
// by one World update loop.
package gas

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/sched"
	"github.com/udisondev/gas/internal/tag"
)

// World is the process scope of the engine: the tag registry, the deferred
// action queue, the coroutine scheduler and every system.
//
// A World is driven by one goroutine calling Update. Systems, containers and
// proxies are not safe for concurrent use.
type World struct {
	tags          *tag.Registry
	queue         *action.Queue
	sched         *sched.Scheduler
	ops           Ops
	systems       []*System
	byName        map[string]*System
	observers     action.Observers
	maxIterations int
	logger        *slog.Logger
	nextID        uint64
}

// Option configures a World.
type Option func(*World)

// WithLogger sets the world logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *World) { w.logger = l }
}

// WithRegistry shares an existing tag registry.
func WithRegistry(r *tag.Registry) Option {
	return func(w *World) { w.tags = r }
}

// WithObserver adds an action queue observer.
func WithObserver(o action.Observer) Option {
	return func(w *World) { w.observers = append(w.observers, o) }
}

// WithMaxIterations bounds each queue flush.
func WithMaxIterations(n int) Option {
	return func(w *World) { w.maxIterations = n }
}

// NewWorld creates an empty world at tick 0.
func NewWorld(opts ...Option) *World {
	w := &World{
		byName:        make(map[string]*System),
		maxIterations: action.DefaultMaxIterations,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.tags == nil {
		w.tags = tag.NewRegistry()
	}
	qopts := []action.QueueOption{action.WithLogger(w.logger)}
	if len(w.observers) > 0 {
		qopts = append(qopts, action.WithObserver(w.observers))
	}
	w.queue = action.NewQueue(qopts...)
	w.sched = sched.New(w.logger)
	w.ops = Ops{}
	return w
}

// Tags returns the tag registry.
func (w *World) Tags() *tag.Registry { return w.tags }

// Queue returns the deferred action queue.
func (w *World) Queue() *action.Queue { return w.queue }

// Scheduler returns the coroutine scheduler.
func (w *World) Scheduler() *sched.Scheduler { return w.sched }

// Ops returns the action factory handed to deferred workers.
func (w *World) Ops() Ops { return w.ops }

// Logger returns the world logger.
func (w *World) Logger() *slog.Logger { return w.logger }

// NewSystem creates a system and adds it to the world.
func (w *World) NewSystem(name string, opts ...SystemOption) (*System, error) {
	if name == "" {
		return nil, errors.New("system name is empty")
	}
	if _, ok := w.byName[name]; ok {
		return nil, fmt.Errorf("system %q already exists", name)
	}
	s := newSystem(w, name)
	for _, opt := range opts {
		opt(s)
	}
	w.systems = append(w.systems, s)
	w.byName[name] = s
	w.logger.Debug("system created", "system", name, "level", s.level)
	return s, nil
}

// System returns a system by name.
func (w *World) System(name string) (*System, bool) {
	s, ok := w.byName[name]
	return s, ok
}

// Systems returns every system in creation order.
func (w *World) Systems() []*System { return slices.Clone(w.systems) }

// RemoveSystem cancels the system's abilities and detaches it. Actions
// already queued against it become invalid.
func (w *World) RemoveSystem(s *System) {
	if s == nil || s.removed {
		return
	}
	s.cancelAllAbilities()
	s.removed = true
	w.systems = slices.DeleteFunc(w.systems, func(o *System) bool { return o == s })
	delete(w.byName, s.name)
	w.logger.Debug("system removed", "system", s.name)
}

// Update advances one tick of dt seconds: resumes coroutines, ticks every
// system's effect shelf, then flushes the action queue.
func (w *World) Update(ctx context.Context, dt float64) (action.Stats, error) {
	w.sched.Advance(dt)
	for _, s := range slices.Clone(w.systems) {
		if !s.removed {
			s.Tick(dt)
		}
	}
	return w.queue.ProcessAll(ctx, w.maxIterations)
}

// Flush runs the action queue without advancing time.
func (w *World) Flush(ctx context.Context) (action.Stats, error) {
	return w.queue.ProcessAll(ctx, w.maxIterations)
}

// Close cancels all abilities and shuts the scheduler down.
func (w *World) Close() {
	for _, s := range w.systems {
		s.cancelAllAbilities()
	}
	w.sched.Close()
}

func (w *World) newID() uint64 {
	w.nextID++
	return w.nextID
}
