package async

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/canopy/internal/output"
)

type mockOutput struct {
	mu      sync.Mutex
	records []output.Record
	closed  bool
	err     error
	gate    chan struct{} // when set, each Write waits for a value
}

func (m *mockOutput) Write(_ context.Context, rec output.Record) error {
	if m.gate != nil {
		<-m.gate
	}
	m.mu.Lock()
	m.records = append(m.records, rec)
	m.mu.Unlock()
	return m.err
}

func (m *mockOutput) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	return nil
}

func (m *mockOutput) count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}

func (m *mockOutput) ids() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.records))
	for i, r := range m.records {
		out[i] = r.ID
	}
	return out
}

func suggestion(id string) output.Record {
	return output.Record{Kind: output.KindSuggestions, ID: id}
}

func report(id string) output.Record {
	return output.Record{Kind: output.KindReport, ID: id}
}

func TestRecordsKeepOrder(t *testing.T) {
	inner := &mockOutput{}
	q := New(inner, WithCapacity(4))

	for _, id := range []string{"d1", "d2", "r1", "d3"} {
		rec := suggestion(id)
		if id == "r1" {
			rec = report(id)
		}
		require.NoError(t, q.Write(context.Background(), rec))
	}
	require.NoError(t, q.Close())

	assert.Equal(t, []string{"d1", "d2", "r1", "d3"}, inner.ids())
	assert.True(t, inner.closed)
}

// stalled returns a queue whose sink is stuck on its first record and whose
// single slot is taken.
func stalled(t *testing.T, opts ...Option) (*Queue, *mockOutput) {
	t.Helper()
	inner := &mockOutput{gate: make(chan struct{})}
	q := New(inner, append([]Option{WithCapacity(1)}, opts...)...)
	require.NoError(t, q.Write(context.Background(), suggestion("in-flight")))
	require.Eventually(t, func() bool { return len(q.ch) == 0 }, time.Second, time.Millisecond)
	require.NoError(t, q.Write(context.Background(), suggestion("queued")))
	return q, inner
}

func TestShedDropsOnlySuggestions(t *testing.T) {
	q, inner := stalled(t, WithShedSuggestions())

	require.NoError(t, q.Write(context.Background(), suggestion("shed")))
	assert.Equal(t, int64(1), q.Dropped())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Write(ctx, report("economy")), context.DeadlineExceeded,
		"reports wait for room instead of being shed")

	close(inner.gate)
	require.NoError(t, q.Close())
	assert.Equal(t, []string{"in-flight", "queued"}, inner.ids())
}

func TestWithoutShedSuggestionsWait(t *testing.T) {
	q, inner := stalled(t)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, q.Write(ctx, suggestion("waits")), context.DeadlineExceeded)
	assert.Zero(t, q.Dropped())

	close(inner.gate)
	require.NoError(t, q.Close())
}

func TestCloseDrainsRemaining(t *testing.T) {
	inner := &mockOutput{}
	q := New(inner, WithCapacity(100))

	for i := 0; i < 50; i++ {
		require.NoError(t, q.Write(context.Background(), suggestion("d")))
	}
	require.NoError(t, q.Close())
	assert.Len(t, inner.ids(), 50)
}

func TestDrainTimeout(t *testing.T) {
	inner := &mockOutput{gate: make(chan struct{})}
	q := New(inner, WithDrainTimeout(20*time.Millisecond))
	require.NoError(t, q.Write(context.Background(), suggestion("stuck")))

	start := time.Now()
	require.NoError(t, q.Close())
	assert.Less(t, time.Since(start), time.Second)
	assert.True(t, inner.closed)
	close(inner.gate)
}

func TestSinkErrorsNameTheRecord(t *testing.T) {
	inner := &mockOutput{err: errors.New("disk full")}
	var mu sync.Mutex
	var msgs []string
	q := New(inner, WithOnError(func(err error) {
		mu.Lock()
		msgs = append(msgs, err.Error())
		mu.Unlock()
	}))

	require.NoError(t, q.Write(context.Background(), report("economy")))
	require.NoError(t, q.Close())
	assert.Equal(t, []string{"report economy: disk full"}, msgs)
}

func TestWriteAfterClose(t *testing.T) {
	q := New(&mockOutput{})
	require.NoError(t, q.Close())
	require.NoError(t, q.Close())
	assert.ErrorIs(t, q.Write(context.Background(), suggestion("late")), ErrClosed)

	select {
	case <-q.done:
	case <-time.After(time.Second):
		t.Fatal("drain goroutine did not exit after Close")
	}
}
