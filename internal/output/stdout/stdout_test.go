package stdout

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/canopy/internal/model"
	"github.com/hejijunhao/canopy/internal/output"
)

func testRecord() output.Record {
	return output.Record{
		Kind:        output.KindSuggestions,
		ID:          "doc-1",
		Text:        "the striker scored twice",
		Suggestions: []model.TopicSuggestion{{ConceptID: "sport", Score: 0.93}},
	}
}

// captureStdout redirects os.Stdout to capture output.
func captureStdout(fn func()) string {
	old := os.Stdout
	r, w, _ := os.Pipe()
	os.Stdout = w

	fn()

	w.Close()
	os.Stdout = old

	var buf bytes.Buffer
	buf.ReadFrom(r)
	return buf.String()
}

func TestOutputCompactJSON(t *testing.T) {
	result := captureStdout(func() {
		out := New(output.Standard, false)
		require.NoError(t, out.Write(context.Background(), testRecord()))
	})

	lines := strings.Split(strings.TrimSpace(result), "\n")
	require.Len(t, lines, 1, "expected NDJSON")

	var got output.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &got))
	assert.Equal(t, "doc-1", got.ID)
	assert.Empty(t, got.Text, "standard verbosity drops text")
	assert.Equal(t, "sport", got.Suggestions[0].ConceptID)
}

func TestOutputPrettyJSON(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, output.Full, true)
	require.NoError(t, out.Write(context.Background(), testRecord()))

	assert.Greater(t, strings.Count(buf.String(), "\n"), 2)
	assert.Contains(t, buf.String(), `  "kind": "suggestions"`)
	assert.Contains(t, buf.String(), "striker")
}

func TestOutputMultipleRecords(t *testing.T) {
	var buf bytes.Buffer
	out := NewWriter(&buf, output.Minimal, false)
	for i := 0; i < 3; i++ {
		require.NoError(t, out.Write(context.Background(), testRecord()))
	}
	assert.Len(t, strings.Split(strings.TrimSpace(buf.String()), "\n"), 3)
	assert.NoError(t, out.Close())
}
