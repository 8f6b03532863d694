package multi

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/canopy/internal/output"
)

type mockOutput struct {
	kinds  []string
	closes int
	err    error
}

func (m *mockOutput) Write(_ context.Context, rec output.Record) error {
	m.kinds = append(m.kinds, rec.Kind)
	return m.err
}

func (m *mockOutput) Close() error {
	m.closes++
	return m.err
}

func write(t *testing.T, r *Router, kinds ...string) {
	t.Helper()
	for _, k := range kinds {
		require.NoError(t, r.Write(context.Background(), output.Record{Kind: k}))
	}
}

func TestRoutesByKind(t *testing.T) {
	hook, console := &mockOutput{}, &mockOutput{}
	r := New(
		To("webhook", hook, output.KindSuggestions, output.KindReport),
		To("console", console),
	)

	write(t, r, output.KindSuggestions, output.KindRun, output.KindReport)

	assert.Equal(t, []string{output.KindSuggestions, output.KindReport}, hook.kinds)
	assert.Equal(t, []string{output.KindSuggestions, output.KindRun, output.KindReport}, console.kinds)
}

func TestFailingRouteDoesNotBlockOthers(t *testing.T) {
	bad := &mockOutput{err: errors.New("boom")}
	good := &mockOutput{}
	r := New(To("file", bad), To("console", good))

	err := r.Write(context.Background(), output.Record{Kind: output.KindRun})
	require.Error(t, err)
	assert.Equal(t, "file: boom", err.Error())
	assert.Len(t, good.kinds, 1)
}

func TestCloseOncePerSink(t *testing.T) {
	shared, other := &mockOutput{}, &mockOutput{}
	r := New(
		To("reports", shared, output.KindReport),
		To("runs", shared, output.KindRun),
		To("console", other),
	)

	require.NoError(t, r.Close())
	assert.Equal(t, 1, shared.closes)
	assert.Equal(t, 1, other.closes)
}

func TestEmptyRouter(t *testing.T) {
	r := New()
	write(t, r, output.KindSuggestions)
	assert.NoError(t, r.Close())
}
