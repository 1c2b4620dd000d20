package action

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrIterationLimit is returned by ProcessAll when the safety valve trips.
var ErrIterationLimit = errors.New("action queue iteration limit reached")

// DefaultMaxIterations bounds one ProcessAll pass when no limit is given.
const DefaultMaxIterations = 4096

// Stats summarises one ProcessAll pass.
type Stats struct {
	Executed    int
	Invalidated int
	Failed      int
	Dropped     int
}

// Queue is a priority-bucketed FIFO of deferred actions. It is empty before
// and after every ProcessAll.
//
// Enqueue is safe for concurrent use; ProcessAll must be driven from the
// update loop.
type Queue struct {
	mu         sync.Mutex
	buckets    []*bucket // ordered by priority, highest first
	size       int
	processing bool

	observer Observer
	logger   *slog.Logger
	now      func() time.Time
}

type bucket struct {
	priority Priority
	items    []RootAction
	head     int
}

func (b *bucket) empty() bool { return b.head >= len(b.items) }

// QueueOption configures a Queue.
type QueueOption func(*Queue)

// WithObserver installs observation hooks.
func WithObserver(o Observer) QueueOption {
	return func(q *Queue) { q.observer = o }
}

// WithLogger overrides the logger used for contained faults.
func WithLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) { q.logger = l }
}

// WithClock overrides the clock used to time executions.
func WithClock(now func() time.Time) QueueOption {
	return func(q *Queue) { q.now = now }
}

// NewQueue creates an empty queue.
func NewQueue(opts ...QueueOption) *Queue {
	q := &Queue{
		observer: NopObserver{},
		logger:   slog.Default(),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// Len returns the number of pending actions.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

// Enqueue inserts a at its own priority.
func (q *Queue) Enqueue(a RootAction) {
	if a == nil {
		return
	}
	q.EnqueueAt(a, a.Priority())
}

// EnqueueAt inserts a into the bucket for p, after anything already there.
func (q *Queue) EnqueueAt(a RootAction, p Priority) {
	if a == nil {
		return
	}
	q.mu.Lock()
	b := q.bucketFor(p)
	b.items = append(b.items, a)
	q.size++
	q.mu.Unlock()

	q.observer.ActionQueued(a, p)
}

// EnqueueAll inserts each action at its own priority, in order.
func (q *Queue) EnqueueAll(actions []RootAction) {
	for _, a := range actions {
		q.Enqueue(a)
	}
}

// bucketFor returns the bucket for p, creating it in order. Must be called with mu held.
func (q *Queue) bucketFor(p Priority) *bucket {
	i := 0
	for ; i < len(q.buckets); i++ {
		if q.buckets[i].priority == p {
			return q.buckets[i]
		}
		if q.buckets[i].priority < p {
			break
		}
	}
	b := &bucket{priority: p}
	q.buckets = append(q.buckets, nil)
	copy(q.buckets[i+1:], q.buckets[i:])
	q.buckets[i] = b
	return b
}

// pop removes the oldest action from the highest non-empty bucket.
func (q *Queue) pop() (RootAction, Priority, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for _, b := range q.buckets {
		if b.empty() {
			continue
		}
		a := b.items[b.head]
		b.items[b.head] = nil
		b.head++
		if b.empty() {
			b.items = b.items[:0]
			b.head = 0
		}
		q.size--
		return a, b.priority, true
	}
	return nil, 0, false
}

// drain empties the queue and returns how many actions were discarded.
func (q *Queue) drain() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := q.size
	for _, b := range q.buckets {
		clear(b.items)
		b.items = b.items[:0]
		b.head = 0
	}
	q.size = 0
	return n
}

// ProcessAll executes actions highest priority first, FIFO within a bucket,
// including actions enqueued while it runs, until the queue is empty.
//
// If maxIterations (<= 0 means DefaultMaxIterations) dequeues happen before
// the queue empties, the rest is dropped and ErrIterationLimit is returned.
// A failing action is logged and does not stop the pass.
//
// A nested call from inside an executing action returns immediately; the
// outer pass picks up whatever the action enqueued.
func (q *Queue) ProcessAll(ctx context.Context, maxIterations int) (Stats, error) {
	var stats Stats
	q.mu.Lock()
	if q.processing {
		q.mu.Unlock()
		return stats, nil
	}
	q.processing = true
	q.mu.Unlock()
	defer func() {
		q.mu.Lock()
		q.processing = false
		q.mu.Unlock()
	}()

	if maxIterations <= 0 {
		maxIterations = DefaultMaxIterations
	}

	for iterations := 0; ; iterations++ {
		if iterations >= maxIterations {
			if q.Len() == 0 {
				return stats, nil
			}
			stats.Dropped = q.drain()
			q.logger.Error("action queue iteration limit reached",
				"max_iterations", maxIterations,
				"dropped", stats.Dropped)
			q.observer.IterationLimit(ctx, stats.Dropped)
			return stats, fmt.Errorf("%w: %d actions dropped after %d iterations",
				ErrIterationLimit, stats.Dropped, maxIterations)
		}

		a, p, ok := q.pop()
		if !ok {
			return stats, nil
		}

		if !q.checkValid(a) {
			stats.Invalidated++
			q.observer.ActionInvalidated(ctx, a, p)
			continue
		}

		started := q.now()
		err := q.execute(ctx, a)
		rec := Record{
			Action:   a,
			Priority: p,
			Started:  started,
			Elapsed:  q.now().Sub(started),
			Err:      err,
		}
		if err != nil {
			stats.Failed++
			q.logger.Warn("deferred action failed",
				"action", a.Description(),
				"priority", p,
				"error", err)
		} else {
			stats.Executed++
		}
		q.observer.ActionExecuted(ctx, rec)
	}
}

func (q *Queue) checkValid(a RootAction) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Warn("action validity check panicked", "action", a.Description(), "panic", r)
			ok = false
		}
	}()
	return a.IsValid()
}

func (q *Queue) execute(ctx context.Context, a RootAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("action %q panicked: %v", a.Description(), r)
		}
	}()
	return a.Execute(ctx)
}
