package file

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/canopy/internal/model"
	"github.com/hejijunhao/canopy/internal/output"
)

func suggestion(id string) output.Record {
	return output.Record{
		Kind:        output.KindSuggestions,
		ID:          id,
		Text:        "parliament passed the budget",
		Suggestions: []model.TopicSuggestion{{ConceptID: "politics", Score: 0.81}},
	}
}

func report(concept string) output.Record {
	return output.ReportRecord(model.ClassificationReport{
		ConceptID:        concept,
		Precision:        0.5,
		FalsePositiveIDs: []string{"e7"},
	})
}

func run(id string) output.Record {
	return output.Record{Kind: output.KindRun, ID: id, Run: &output.RunSummary{ID: id, Kind: "train"}}
}

func readRecords(t *testing.T, path string) []output.Record {
	t.Helper()
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var out []output.Record
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(line), &rec))
		out = append(out, rec)
	}
	return out
}

func ids(recs []output.Record) []string {
	out := make([]string, len(recs))
	for i, r := range recs {
		out[i] = r.ID
	}
	return out
}

func writeAll(t *testing.T, out *Output, recs ...output.Record) {
	t.Helper()
	for _, r := range recs {
		require.NoError(t, out.Write(context.Background(), r))
	}
}

func TestPathFor(t *testing.T) {
	assert.Equal(t, "/x/out.jsonl", PathFor("/x/out.jsonl", output.KindSuggestions))
	assert.Equal(t, "/x/out.reports.jsonl", PathFor("/x/out.jsonl", output.KindReport))
	assert.Equal(t, "/x/out.runs.jsonl", PathFor("/x/out.jsonl", output.KindRun))
	assert.Equal(t, "/x/out.runs", PathFor("/x/out", output.KindRun))
}

func TestKindsGoToSeparateFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	require.NoError(t, err)

	writeAll(t, out, suggestion("d1"), run("r1"), report("economy"), suggestion("d2"))
	require.NoError(t, out.Close())

	assert.Equal(t, []string{"d1", "d2"}, ids(readRecords(t, path)))
	assert.Equal(t, []string{"economy"}, ids(readRecords(t, PathFor(path, output.KindReport))))
	assert.Equal(t, []string{"r1"}, ids(readRecords(t, PathFor(path, output.KindRun))))
}

func TestOnlyUsedKindsCreateFiles(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	require.NoError(t, err)
	writeAll(t, out, report("economy"))
	require.NoError(t, out.Close())

	assert.NoFileExists(t, path)
	assert.FileExists(t, PathFor(path, output.KindReport))
}

func TestSuggestionsRotateBySize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	// Each line is roughly 100 bytes, so a 150 byte cap rotates after every line.
	out, err := New(path, output.Standard, WithMaxSize(150))
	require.NoError(t, err)

	writeAll(t, out, suggestion("d1"), suggestion("d2"), suggestion("d3"))
	require.NoError(t, out.Close())

	assert.Equal(t, []string{"d3"}, ids(readRecords(t, path)))
	assert.Equal(t, []string{"d2"}, ids(readRecords(t, path+".1")))
	assert.Equal(t, []string{"d1"}, ids(readRecords(t, path+".2")))
}

func TestEachExportReplacesReports(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	reports := PathFor(path, output.KindReport)

	for _, concepts := range [][]string{{"a", "b"}, {"c"}} {
		out, err := New(path, output.Standard)
		require.NoError(t, err)
		for _, c := range concepts {
			writeAll(t, out, report(c))
		}
		require.NoError(t, out.Close())
	}

	assert.Equal(t, []string{"c"}, ids(readRecords(t, reports)))
	assert.Equal(t, []string{"a", "b"}, ids(readRecords(t, reports+".1")))
}

func TestRunsAppendAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	for _, id := range []string{"r1", "r2"} {
		out, err := New(path, output.Minimal)
		require.NoError(t, err)
		writeAll(t, out, run(id))
		require.NoError(t, out.Close())
	}
	assert.Equal(t, []string{"r1", "r2"}, ids(readRecords(t, PathFor(path, output.KindRun))))
	assert.NoFileExists(t, PathFor(path, output.KindRun)+".1")
}

func TestCloseFlushesData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard, WithBufSize(1<<16))
	require.NoError(t, err)

	writeAll(t, out, suggestion("d1"))
	data, _ := os.ReadFile(path)
	assert.Empty(t, data, "small writes stay buffered until Close")

	require.NoError(t, out.Close())
	data, _ = os.ReadFile(path)
	assert.NotEmpty(t, data)
}

func TestVerbosityAppliesPerRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Minimal)
	require.NoError(t, err)
	writeAll(t, out, suggestion("d1"), report("economy"))
	require.NoError(t, out.Close())

	assert.Empty(t, readRecords(t, path)[0].Text)
	r := readRecords(t, PathFor(path, output.KindReport))[0]
	require.NotNil(t, r.Report)
	assert.Empty(t, r.Report.FalsePositiveIDs)

	full := filepath.Join(t.TempDir(), "full.jsonl")
	out, err = New(full, output.Full)
	require.NoError(t, err)
	writeAll(t, out, suggestion("d1"))
	require.NoError(t, out.Close())
	assert.Equal(t, "parliament passed the budget", readRecords(t, full)[0].Text)
}

func TestNewRequiresDirectory(t *testing.T) {
	_, err := New(filepath.Join(t.TempDir(), "missing", "out.jsonl"), output.Standard)
	assert.Error(t, err)
}

func TestConcurrentWritesSafe(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.jsonl")
	out, err := New(path, output.Standard)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			kind := suggestion("d")
			if i%5 == 0 {
				kind = run("r")
			}
			assert.NoError(t, out.Write(context.Background(), kind))
		}()
	}
	wg.Wait()
	require.NoError(t, out.Close())

	assert.Len(t, readRecords(t, path), 40)
	assert.Len(t, readRecords(t, PathFor(path, output.KindRun)), 10)
}
