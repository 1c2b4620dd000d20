// Package journal records action queue activity and writes it to a Store in
// batches.
package journal

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/udisondev/gas/internal/action"
)

// Kind classifies a journal entry.
type Kind string

const (
	KindExecuted    Kind = "executed"
	KindFailed      Kind = "failed"
	KindInvalidated Kind = "invalidated"
	KindDropped     Kind = "dropped"
)

// Entry is one journaled queue event.
type Entry struct {
	Kind        Kind
	Priority    action.Priority
	Description string
	Started     time.Time
	Elapsed     time.Duration
	Error       string
	// Dropped is set for KindDropped entries.
	Dropped int
}

// Store persists entries for a run.
type Store interface {
	Append(ctx context.Context, runID int64, entries []Entry) error
}

const (
	DefaultBatchSize     = 256
	DefaultFlushInterval = time.Second
)

// Journal is an action.Observer that buffers queue events and hands them to
// a Store. Observer hooks only append to the buffer; writes happen in Run or
// Flush.
type Journal struct {
	action.NopObserver

	store    Store
	runID    int64
	batch    int
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time

	mu      sync.Mutex
	pending []Entry
	full    chan struct{}
	written int
}

type Option func(*Journal)

func WithBatchSize(n int) Option {
	return func(j *Journal) {
		if n > 0 {
			j.batch = n
		}
	}
}

func WithFlushInterval(d time.Duration) Option {
	return func(j *Journal) {
		if d > 0 {
			j.interval = d
		}
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(j *Journal) { j.logger = l }
}

// New creates a journal writing to store under runID.
func New(store Store, runID int64, opts ...Option) *Journal {
	j := &Journal{
		store:    store,
		runID:    runID,
		batch:    DefaultBatchSize,
		interval: DefaultFlushInterval,
		logger:   slog.Default(),
		now:      time.Now,
		full:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(j)
	}
	return j
}

func (j *Journal) record(e Entry) {
	j.mu.Lock()
	j.pending = append(j.pending, e)
	n := len(j.pending)
	j.mu.Unlock()

	if n >= j.batch {
		select {
		case j.full <- struct{}{}:
		default:
		}
	}
}

func (j *Journal) ActionExecuted(_ context.Context, rec action.Record) {
	e := Entry{
		Kind:        KindExecuted,
		Priority:    rec.Priority,
		Description: rec.Action.Description(),
		Started:     rec.Started,
		Elapsed:     rec.Elapsed,
	}
	if rec.Err != nil {
		e.Kind = KindFailed
		e.Error = rec.Err.Error()
	}
	j.record(e)
}

func (j *Journal) ActionInvalidated(_ context.Context, a action.RootAction, p action.Priority) {
	j.record(Entry{Kind: KindInvalidated, Priority: p, Description: a.Description(), Started: j.now()})
}

func (j *Journal) IterationLimit(_ context.Context, dropped int) {
	j.record(Entry{Kind: KindDropped, Description: "iteration limit", Started: j.now(), Dropped: dropped})
}

// Pending returns the number of buffered entries.
func (j *Journal) Pending() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return len(j.pending)
}

// Written returns the number of entries the store accepted.
func (j *Journal) Written() int {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.written
}

// Flush writes buffered entries in batches. On a store error the unwritten
// entries are put back in front of the buffer.
func (j *Journal) Flush(ctx context.Context) error {
	j.mu.Lock()
	entries := j.pending
	j.pending = nil
	j.mu.Unlock()

	for len(entries) > 0 {
		n := min(len(entries), j.batch)
		if err := j.store.Append(ctx, j.runID, entries[:n]); err != nil {
			j.mu.Lock()
			j.pending = append(entries, j.pending...)
			j.mu.Unlock()
			return fmt.Errorf("writing journal batch: %w", err)
		}
		entries = entries[n:]

		j.mu.Lock()
		j.written += n
		j.mu.Unlock()
	}
	return nil
}

// Run flushes whenever a batch fills up or the flush interval passes, until
// ctx is done. The final flush uses a context detached from ctx.
func (j *Journal) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := j.Flush(context.WithoutCancel(ctx)); err != nil {
				return fmt.Errorf("final journal flush: %w", err)
			}
			return nil
		case <-j.full:
		case <-ticker.C:
		}
		if err := j.Flush(ctx); err != nil {
			j.logger.Warn("journal flush failed", "run", j.runID, "pending", j.Pending(), "error", err)
		}
	}
}
