package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/udisondev/gas/internal/action"
	"github.com/udisondev/gas/internal/journal"
)

// ErrRunNotFound is returned for an unknown run id.
var ErrRunNotFound = errors.New("run not found")

// Run is one daemon run as stored in gas_runs.
type Run struct {
	ID         int64
	StartedAt  time.Time
	FinishedAt *time.Time
	TickRate   int
	Ticks      int64
	Digest     []byte
}

// JournalRepository stores runs and their action journal in PostgreSQL.
// It implements journal.Store.
type JournalRepository struct {
	pool *pgxpool.Pool
}

// NewJournalRepository creates a repository on pool.
func NewJournalRepository(pool *pgxpool.Pool) *JournalRepository {
	return &JournalRepository{pool: pool}
}

// StartRun inserts a run row and returns its id.
func (r *JournalRepository) StartRun(ctx context.Context, tickRate int) (int64, error) {
	var id int64
	err := r.pool.QueryRow(ctx,
		`INSERT INTO gas_runs (tick_rate) VALUES ($1) RETURNING id`, tickRate,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("starting run: %w", err)
	}
	return id, nil
}

// FinishRun records the tick count and final world digest.
func (r *JournalRepository) FinishRun(ctx context.Context, runID, ticks int64, digest [32]byte) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE gas_runs SET finished_at = now(), ticks = $2, digest = $3 WHERE id = $1`,
		runID, ticks, digest[:],
	)
	if err != nil {
		return fmt.Errorf("finishing run %d: %w", runID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("finishing run %d: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Run loads a run by id.
func (r *JournalRepository) Run(ctx context.Context, runID int64) (Run, error) {
	var run Run
	err := r.pool.QueryRow(ctx,
		`SELECT id, started_at, finished_at, tick_rate, ticks, digest FROM gas_runs WHERE id = $1`, runID,
	).Scan(&run.ID, &run.StartedAt, &run.FinishedAt, &run.TickRate, &run.Ticks, &run.Digest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return run, fmt.Errorf("loading run %d: %w", runID, ErrRunNotFound)
		}
		return run, fmt.Errorf("loading run %d: %w", runID, err)
	}
	return run, nil
}

// Append writes entries in one transaction using a pgx batch.
func (r *JournalRepository) Append(ctx context.Context, runID int64, entries []journal.Entry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	batch := &pgx.Batch{}
	for _, e := range entries {
		var errText *string
		if e.Error != "" {
			errText = &e.Error
		}
		batch.Queue(
			`INSERT INTO action_journal
			 (run_id, kind, priority, description, started_at, elapsed_us, error, dropped)
			 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			runID, string(e.Kind), int(e.Priority), e.Description,
			e.Started, e.Elapsed.Microseconds(), errText, e.Dropped,
		)
	}
	br := tx.SendBatch(ctx, batch)
	for range entries {
		if _, err := br.Exec(); err != nil {
			br.Close() //nolint:errcheck
			return fmt.Errorf("journal batch for run %d: %w", runID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("close journal batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit journal batch: %w", err)
	}
	return nil
}

// Entries returns up to limit journal entries of a run in insertion order.
func (r *JournalRepository) Entries(ctx context.Context, runID int64, limit int) ([]journal.Entry, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT kind, priority, description, started_at, elapsed_us, COALESCE(error, ''), dropped
		 FROM action_journal WHERE run_id = $1 ORDER BY id LIMIT $2`,
		runID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("querying journal for run %d: %w", runID, err)
	}
	defer rows.Close()

	var out []journal.Entry
	for rows.Next() {
		var (
			e         journal.Entry
			kind      string
			priority  int
			elapsedUS int64
		)
		if err := rows.Scan(&kind, &priority, &e.Description, &e.Started, &elapsedUS, &e.Error, &e.Dropped); err != nil {
			return nil, fmt.Errorf("scanning journal row: %w", err)
		}
		e.Kind = journal.Kind(kind)
		e.Priority = action.Priority(priority)
		e.Elapsed = time.Duration(elapsedUS) * time.Microsecond
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating journal rows: %w", err)
	}
	return out, nil
}
