package main

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/udisondev/gas/internal/catalog"
	"github.com/udisondev/gas/internal/gas"
	"github.com/udisondev/gas/internal/telemetry"
)

func newTestEngine(t *testing.T, maxTicks int64) *engine {
	t.Helper()
	w := gas.NewWorld(gas.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	t.Cleanup(w.Close)

	cat, err := catalog.Load("../../config/catalog.yaml", w.Tags())
	require.NoError(t, err)
	for _, name := range cat.Archetypes() {
		_, err := cat.Spawn(w, name, name)
		require.NoError(t, err)
	}
	return newEngine(w, telemetry.NewTraceObserver(sdktrace.NewTracerProvider()), 20, maxTicks)
}

func TestEngine_StepFightsUntilSomeoneDies(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx := context.Background()

	for range 2000 {
		e.step(ctx)
	}

	dead := 0
	for _, s := range e.world.Systems() {
		if s.HasTag(e.dead) {
			dead++
		}
	}
	assert.Positive(t, e.stats.Executed)
	assert.GreaterOrEqual(t, dead, 1, "a duel on the sample catalog ends within 100 seconds")
}

func TestEngine_IsDeterministic(t *testing.T) {
	run := func() [32]byte {
		e := newTestEngine(t, 0)
		for range 300 {
			e.step(context.Background())
		}
		return e.world.Digest()
	}
	assert.Equal(t, run(), run())
}

func TestEngine_RunStopsAtMaxTicks(t *testing.T) {
	e := newTestEngine(t, 5)
	e.dt = 0.001
	require.NoError(t, e.run(context.Background()))
	assert.Equal(t, int64(5), e.ticks)
}

func TestEngine_RunStopsOnCancel(t *testing.T) {
	e := newTestEngine(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, e.run(ctx))
	assert.Zero(t, e.ticks)
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, parseLogLevel("debug"))
	assert.Equal(t, slog.LevelError, parseLogLevel("error"))
	assert.Equal(t, slog.LevelInfo, parseLogLevel("loud"))
}
