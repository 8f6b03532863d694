// Package webhook delivers canopy records to an HTTP endpoint in batches.
package webhook

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/hejijunhao/canopy/internal/output"
)

const (
	defaultMaxBatch = 50
	defaultInterval = 5 * time.Second
	defaultTimeout  = 10 * time.Second
	defaultBackoff  = time.Second
	maxRetries      = 3
)

// Batch is the JSON body of one POST. Seq starts at 1 and increases by one
// per batch within a session, so a receiver can detect gaps and ignore
// replays of a batch it already stored.
type Batch struct {
	Scheme  string          `json:"scheme,omitempty"`
	Session string          `json:"session"`
	Seq     int             `json:"seq"`
	SentAt  time.Time       `json:"sent_at"`
	Counts  map[string]int  `json:"counts"`
	Records []output.Record `json:"records"`
}

// Option configures a webhook Output.
type Option func(*Output)

// WithScheme stamps every batch with the concept scheme the records belong to.
func WithScheme(id string) Option {
	return func(o *Output) { o.scheme = id }
}

// WithSession overrides the random session id.
func WithSession(id string) Option {
	return func(o *Output) { o.session = id }
}

// WithHeaders sets extra HTTP headers sent with every POST.
func WithHeaders(h map[string]string) Option {
	return func(o *Output) { o.headers = h }
}

// WithMaxBatch sets how many records are held before a batch is sent. Default: 50.
func WithMaxBatch(n int) Option {
	return func(o *Output) { o.maxBatch = n }
}

// WithInterval sets how often a partial batch is sent. Default: 5s.
func WithInterval(d time.Duration) Option {
	return func(o *Output) { o.interval = d }
}

// WithTimeout sets the per-request timeout. Default: 10s.
func WithTimeout(d time.Duration) Option {
	return func(o *Output) { o.client.Timeout = d }
}

// WithBackoff sets the wait before the first retry; it doubles per attempt.
// Default: 1s.
func WithBackoff(d time.Duration) Option {
	return func(o *Output) { o.backoff = d }
}

// WithOnError sets the callback for failures of interval-triggered sends.
// Default: a slog warning.
func WithOnError(f func(error)) Option {
	return func(o *Output) { o.onError = f }
}

// Output POSTs records wrapped in a Batch. A batch goes out when it is full,
// when a run summary arrives (it closes a training or evaluation job, so the
// receiver should see it promptly) or when the interval ticks. 5xx and 429
// responses are retried with the same Idempotency-Key.
type Output struct {
	client   *http.Client
	url      string
	scheme   string
	session  string
	headers  map[string]string
	maxBatch int
	interval time.Duration
	backoff  time.Duration
	onError  func(error)

	mu      sync.Mutex
	pending []output.Record
	seq     int

	send      sync.Mutex // one POST at a time keeps batches in seq order
	stop      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New creates a webhook output targeting url and starts its interval loop.
func New(url string, opts ...Option) *Output {
	o := &Output{
		client:   &http.Client{Timeout: defaultTimeout},
		url:      url,
		session:  uuid.NewString(),
		maxBatch: defaultMaxBatch,
		interval: defaultInterval,
		backoff:  defaultBackoff,
		onError:  func(err error) { slog.Warn("webhook send failed", "error", err) },
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(o)
	}
	go o.loop()
	return o
}

// Session returns the id carried by every batch of this output.
func (o *Output) Session() string { return o.session }

// Write queues rec and sends the batch if rec completes it.
func (o *Output) Write(ctx context.Context, rec output.Record) error {
	o.mu.Lock()
	o.pending = append(o.pending, rec)
	ready := len(o.pending) >= o.maxBatch || rec.Kind == output.KindRun
	o.mu.Unlock()

	if !ready {
		return nil
	}
	return o.flush(ctx)
}

// Close stops the interval loop and sends what is left.
func (o *Output) Close() error {
	var err error
	o.closeOnce.Do(func() {
		close(o.stop)
		<-o.done
		err = o.flush(context.Background())
	})
	return err
}

func (o *Output) loop() {
	defer close(o.done)
	t := time.NewTicker(o.interval)
	defer t.Stop()
	for {
		select {
		case <-o.stop:
			return
		case <-t.C:
			if err := o.flush(context.Background()); err != nil {
				o.onError(err)
			}
		}
	}
}

// flush sends the pending records as the next batch.
func (o *Output) flush(ctx context.Context) error {
	o.send.Lock()
	defer o.send.Unlock()

	o.mu.Lock()
	if len(o.pending) == 0 {
		o.mu.Unlock()
		return nil
	}
	o.seq++
	b := Batch{
		Scheme:  o.scheme,
		Session: o.session,
		Seq:     o.seq,
		SentAt:  time.Now().UTC(),
		Counts:  map[string]int{},
		Records: o.pending,
	}
	o.pending = nil
	o.mu.Unlock()

	for _, rec := range b.Records {
		b.Counts[rec.Kind]++
	}
	body, err := json.Marshal(b)
	if err != nil {
		return fmt.Errorf("webhook: marshal batch %d: %w", b.Seq, err)
	}
	if err := o.post(ctx, body, o.session+"/"+strconv.Itoa(b.Seq)); err != nil {
		return fmt.Errorf("webhook: batch %d (%d records): %w", b.Seq, len(b.Records), err)
	}
	return nil
}

func (o *Output) post(ctx context.Context, body []byte, key string) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(o.backoff << (attempt - 1)):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", key)
		for k, v := range o.headers {
			req.Header.Set(k, v)
		}

		resp, err := o.client.Do(req)
		if err != nil {
			return err
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode >= 200 && resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
			lastErr = fmt.Errorf("HTTP %d", resp.StatusCode)
		default:
			return fmt.Errorf("HTTP %d", resp.StatusCode)
		}
	}
	return lastErr
}
