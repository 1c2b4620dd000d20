package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/udisondev/gas/internal/action"
)

type fakeStore struct {
	mu      sync.Mutex
	batches [][]Entry
	fail    error
}

func (s *fakeStore) Append(_ context.Context, runID int64, entries []Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.fail != nil {
		return s.fail
	}
	s.batches = append(s.batches, append([]Entry(nil), entries...))
	return nil
}

func (s *fakeStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func newTestJournal(store Store, opts ...Option) *Journal {
	opts = append([]Option{WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))}, opts...)
	return New(store, 7, opts...)
}

func noop(desc string, p action.Priority) action.Action {
	return action.New(p, desc, func(context.Context) error { return nil }, nil)
}

func TestJournal_RecordsQueueActivity(t *testing.T) {
	store := &fakeStore{}
	j := newTestJournal(store)
	q := action.NewQueue(
		action.WithObserver(j),
		action.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
	)
	ctx := context.Background()

	alive := true
	q.Enqueue(noop("heal", action.High))
	q.Enqueue(action.New(action.Normal, "boom", func(context.Context) error { return errors.New("boom") }, nil))
	q.Enqueue(action.New(action.Low, "stale", func(context.Context) error { return nil }, func() bool { return alive }))
	alive = false

	_, err := q.ProcessAll(ctx, 0)
	require.NoError(t, err)
	require.Equal(t, 3, j.Pending())

	require.NoError(t, j.Flush(ctx))
	require.Len(t, store.batches, 1)
	got := store.batches[0]
	assert.Equal(t, KindExecuted, got[0].Kind)
	assert.Equal(t, "heal", got[0].Description)
	assert.Equal(t, action.High, got[0].Priority)
	assert.Equal(t, KindFailed, got[1].Kind)
	assert.Equal(t, "boom", got[1].Error)
	assert.Equal(t, KindInvalidated, got[2].Kind)
	assert.Equal(t, 3, j.Written())
	assert.Zero(t, j.Pending())
}

func TestJournal_FlushSplitsBatches(t *testing.T) {
	store := &fakeStore{}
	j := newTestJournal(store, WithBatchSize(2))
	for range 5 {
		j.ActionExecuted(context.Background(), action.Record{Action: noop("x", action.Normal), Priority: action.Normal})
	}
	require.NoError(t, j.Flush(context.Background()))
	require.Len(t, store.batches, 3)
	assert.Len(t, store.batches[2], 1)
}

func TestJournal_FailedFlushKeepsEntries(t *testing.T) {
	store := &fakeStore{fail: errors.New("db down")}
	j := newTestJournal(store)
	j.IterationLimit(context.Background(), 12)

	err := j.Flush(context.Background())
	require.Error(t, err)
	assert.Equal(t, 1, j.Pending())

	store.fail = nil
	require.NoError(t, j.Flush(context.Background()))
	require.Len(t, store.batches, 1)
	assert.Equal(t, KindDropped, store.batches[0][0].Kind)
	assert.Equal(t, 12, store.batches[0][0].Dropped)
}

func TestJournal_Run(t *testing.T) {
	store := &fakeStore{}
	j := newTestJournal(store, WithBatchSize(2), WithFlushInterval(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- j.Run(ctx) }()

	rec := action.Record{Action: noop("x", action.Normal), Priority: action.Normal}
	j.ActionExecuted(ctx, rec)
	j.ActionExecuted(ctx, rec)
	assert.Eventually(t, func() bool { return store.count() == 2 }, time.Second, 5*time.Millisecond,
		"a full batch is written without waiting for the interval")

	j.ActionExecuted(ctx, rec)
	cancel()
	require.NoError(t, <-done)
	assert.Equal(t, 3, store.count(), "remaining entries are flushed on shutdown")
}
