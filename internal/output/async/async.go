// Package async puts a queue in front of a slow record sink.
package async

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hejijunhao/canopy/internal/output"
)

const (
	defaultQueue        = 1024
	defaultDrainTimeout = 5 * time.Second
)

// ErrClosed is returned by Write after Close.
var ErrClosed = errors.New("async output: closed")

// Option configures a Queue.
type Option func(*Queue)

// WithCapacity sets the queue capacity. Default: 1024.
func WithCapacity(n int) Option {
	return func(q *Queue) { q.capacity = n }
}

// WithShedSuggestions lets Write drop suggestion records instead of waiting
// when the queue is full. Reports and run summaries still wait: they are
// produced once per job and cannot be recomputed cheaply.
func WithShedSuggestions() Option {
	return func(q *Queue) { q.shed = true }
}

// WithDrainTimeout bounds how long Close waits for queued records.
// Default: 5s.
func WithDrainTimeout(d time.Duration) Option {
	return func(q *Queue) { q.drainTimeout = d }
}

// WithOnError sets the callback for failures of the wrapped sink.
// Default: a slog warning.
func WithOnError(f func(error)) Option {
	return func(q *Queue) { q.onError = f }
}

// Queue hands records to a background goroutine that writes them to the
// wrapped sink in order. Sink errors go to the error callback.
type Queue struct {
	inner        output.Output
	capacity     int
	shed         bool
	drainTimeout time.Duration
	onError      func(error)

	mu      sync.RWMutex // held for writing only by Close
	closed  bool
	ch      chan output.Record
	done    chan struct{}
	dropped atomic.Int64
}

// New wraps inner and starts draining.
func New(inner output.Output, opts ...Option) *Queue {
	q := &Queue{
		inner:        inner,
		capacity:     defaultQueue,
		drainTimeout: defaultDrainTimeout,
		onError:      func(err error) { slog.Warn("queued output write failed", "error", err) },
	}
	for _, opt := range opts {
		opt(q)
	}
	q.ch = make(chan output.Record, q.capacity)
	q.done = make(chan struct{})
	go q.drain()
	return q
}

// Write queues rec, waiting for room unless rec is a suggestion record and
// shedding is enabled.
func (q *Queue) Write(ctx context.Context, rec output.Record) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}

	if q.shed && rec.Kind == output.KindSuggestions {
		select {
		case q.ch <- rec:
		default:
			q.dropped.Add(1)
		}
		return nil
	}
	select {
	case q.ch <- rec:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Dropped reports how many suggestion records were shed.
func (q *Queue) Dropped() int64 { return q.dropped.Load() }

// Close stops accepting records, waits for the queue to drain and closes
// the wrapped sink.
func (q *Queue) Close() error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	select {
	case <-q.done:
	case <-time.After(q.drainTimeout):
		slog.Warn("queued output drain timed out", "pending", len(q.ch))
	}
	if n := q.dropped.Load(); n > 0 {
		slog.Warn("queued output shed suggestions", "dropped", n)
	}
	return q.inner.Close()
}

func (q *Queue) drain() {
	defer close(q.done)
	for rec := range q.ch {
		if err := q.inner.Write(context.Background(), rec); err != nil {
			q.onError(fmt.Errorf("%s %s: %w", rec.Kind, rec.ID, err))
		}
	}
}
