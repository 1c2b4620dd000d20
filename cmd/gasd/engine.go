package main

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/effect"
	"github.com/udisondev/gas/internal/gas"
	"github.com/udisondev/gas/internal/tag"
	"github.com/udisondev/gas/internal/telemetry"
)

// deadTag marks systems that no longer act.
const deadTag = "State.Dead"

// engine drives a world at a fixed rate and lets every living system use
// its abilities on the nearest enemy.
type engine struct {
	world    *gas.World
	tracer   *telemetry.TraceObserver
	logger   *slog.Logger
	dt       float64
	maxTicks int64
	dead     tag.Tag

	ticks int64
	stats action.Stats
}

func newEngine(w *gas.World, tracer *telemetry.TraceObserver, tickRate int, maxTicks int64) *engine {
	return &engine{
		world:    w,
		tracer:   tracer,
		logger:   w.Logger(),
		dt:       1 / float64(tickRate),
		maxTicks: maxTicks,
		dead:     w.Tags().Get(deadTag),
	}
}

// run ticks until ctx is done or maxTicks is reached.
func (e *engine) run(ctx context.Context) error {
	ticker := time.NewTicker(time.Duration(e.dt * float64(time.Second)))
	defer ticker.Stop()

	for e.maxTicks == 0 || e.ticks < e.maxTicks {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		e.step(ctx)
	}
	return nil
}

// step advances the world one tick and issues new activations.
func (e *engine) step(ctx context.Context) {
	e.ticks++
	uctx, span := e.tracer.StartUpdate(ctx, e.ticks, e.dt)
	defer span.End()

	stats, err := e.world.Update(uctx, e.dt)
	e.stats.Executed += stats.Executed
	e.stats.Invalidated += stats.Invalidated
	e.stats.Failed += stats.Failed
	e.stats.Dropped += stats.Dropped
	if err != nil {
		if errors.Is(err, action.ErrIterationLimit) {
			e.logger.Warn("update hit iteration limit", "tick", e.ticks, "dropped", stats.Dropped)
		} else {
			e.logger.Error("update failed", "tick", e.ticks, "error", err)
		}
	}

	e.engage(ctx)
}

func (e *engine) engage(ctx context.Context) {
	systems := e.world.Systems()
	for _, s := range systems {
		if s.HasTag(e.dead) {
			continue
		}
		target := e.enemyOf(s, systems)
		for _, spec := range s.Abilities() {
			name := spec.Name()
			if s.CanActivateAbility(name) != nil {
				continue
			}
			p, err := s.TryActivateAbility(ctx, name)
			if err != nil {
				e.logger.Debug("activation refused", "system", s.Name(), "ability", name, "error", err)
				continue
			}
			if target != nil {
				p.SetTargets([]effect.Actor{target})
			}
			e.logger.Debug("ability activated", "system", s.Name(), "ability", name, "tick", e.ticks)
		}
	}
}

// enemyOf returns the first living system with a different affiliation.
func (e *engine) enemyOf(s *gas.System, systems []*gas.System) *gas.System {
	for _, o := range systems {
		if o == s || o.HasTag(e.dead) {
			continue
		}
		if s.Affiliation().IsZero() || o.Affiliation() != s.Affiliation() {
			return o
		}
	}
	return nil
}
