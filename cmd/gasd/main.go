package main

import (
	"context"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/catalog"
	"github.com/udisondev/gas/internal/config"
	"github.com/udisondev/gas/internal/db"
	"github.com/udisondev/gas/internal/gas"
	"github.com/udisondev/gas/internal/journal"
	"github.com/udisondev/gas/internal/telemetry"
)

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()
	}()

	if err := run(ctx); err != nil {
		slog.Error("fatal", "err", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Load config FIRST to determine log level
	cfgPath := config.Path()
	cfg, err := config.LoadEngine(cfgPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLogLevel(cfg.LogLevel),
	})))
	slog.Info("gasd starting",
		"config", cfgPath,
		"log_level", cfg.LogLevel,
		"tick_rate", cfg.TickRate,
		"max_ticks", cfg.MaxTicks)

	shutdownTracing, err := telemetry.Setup(ctx, cfg.Telemetry)
	if err != nil {
		return fmt.Errorf("setting up telemetry: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(sctx); err != nil {
			slog.Warn("telemetry shutdown", "error", err)
		}
	}()
	tracer := telemetry.NewTraceObserver(nil)

	observers := action.Observers{action.LogObserver{Logger: slog.Default()}, tracer}

	var (
		repo  *db.JournalRepository
		jrnl  *journal.Journal
		runID int64
	)
	if cfg.Journal.Enabled {
		database, err := db.New(ctx, cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to database: %w", err)
		}
		defer database.Close()
		slog.Info("database connected")

		if err := database.Migrate(ctx); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		slog.Info("database migrations applied")

		repo = database.Journal()
		runID, err = repo.StartRun(ctx, cfg.TickRate)
		if err != nil {
			return err
		}
		jrnl = journal.New(repo, runID, journal.WithBatchSize(cfg.Journal.BatchSize))
		observers = append(observers, jrnl)
		slog.Info("journal enabled", "run", runID, "batch_size", cfg.Journal.BatchSize)
	}

	world := gas.NewWorld(
		gas.WithLogger(slog.Default()),
		gas.WithMaxIterations(cfg.MaxIterations),
		gas.WithObserver(observers),
	)
	defer world.Close()

	cat, err := catalog.Load(cfg.CatalogPath, world.Tags())
	if err != nil {
		return err
	}
	attrs, effects, abilities := cat.Len()
	slog.Info("catalog loaded",
		"path", cfg.CatalogPath,
		"attributes", attrs,
		"effects", effects,
		"abilities", abilities)

	for _, name := range cat.Archetypes() {
		if _, err := cat.Spawn(world, name, name); err != nil {
			return err
		}
	}
	slog.Info("archetypes spawned", "systems", len(world.Systems()))

	eng := newEngine(world, tracer, cfg.TickRate, int64(cfg.MaxTicks))

	g, gctx := errgroup.WithContext(ctx)
	loopCtx, stopLoop := context.WithCancel(gctx)
	defer stopLoop()

	g.Go(func() error {
		defer stopLoop()
		slog.Info("starting update loop", "tick_rate", cfg.TickRate)
		if err := eng.run(loopCtx); err != nil {
			return fmt.Errorf("update loop: %w", err)
		}
		return nil
	})
	if jrnl != nil {
		g.Go(func() error {
			slog.Info("starting journal flusher")
			if err := jrnl.Run(loopCtx); err != nil {
				return fmt.Errorf("journal: %w", err)
			}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("engine error: %w", err)
	}

	digest := world.Digest()
	slog.Info("gasd stopped",
		"ticks", eng.ticks,
		"executed", eng.stats.Executed,
		"invalidated", eng.stats.Invalidated,
		"failed", eng.stats.Failed,
		"dropped", eng.stats.Dropped,
		"digest", hex.EncodeToString(digest[:]))

	if repo != nil {
		if err := repo.FinishRun(context.WithoutCancel(ctx), runID, eng.ticks, digest); err != nil {
			return err
		}
	}
	return nil
}

// parseLogLevel converts string log level to slog.Level.
// Defaults to Info if invalid or empty.
func parseLogLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
