package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/canopy/internal/output"
	"github.com/hejijunhao/canopy/internal/output/webhook"
)

const (
	taxonomyYAML = `scheme: urn:test:news
concepts:
  - id: news
    children:
      - id: sport
      - id: politics
`
	examplesNDJSON = `{"id":"e1","text":"daily news bulletin headlines roundup","concepts":["news"]}
{"id":"e2","text":"football match striker scored goal stadium","concepts":["sport"]}
{"id":"e3","text":"election vote parliament minister ballot","concepts":["politics"]}
{"id":"e4","text":"the striker missed a penalty in the cup match","concepts":["sport"]}
`
)

type harness struct {
	t   *testing.T
	dir string
	db  string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "taxonomy.yaml"), []byte(taxonomyYAML), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "examples.ndjson"), []byte(examplesNDJSON), 0o644))
	return &harness{t: t, dir: dir, db: filepath.Join(dir, "canopy.db")}
}

// run executes canopy with args and stdin, returning stdout and stderr.
func (h *harness) run(stdin string, args ...string) (string, string, error) {
	h.t.Helper()
	var stdout, stderr bytes.Buffer
	root := NewRootCmd()
	root.SetArgs(append([]string{"--db", h.db}, args...))
	root.SetIn(strings.NewReader(stdin))
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	err := root.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func (h *harness) mustRun(args ...string) string {
	h.t.Helper()
	out, errOut, err := h.run("", args...)
	require.NoError(h.t, err, "canopy %v: %s", args, errOut)
	return out
}

func (h *harness) setup() {
	h.mustRun("taxonomy", "import", filepath.Join(h.dir, "taxonomy.yaml"))
	h.mustRun("example", "import", filepath.Join(h.dir, "examples.ndjson"))
	h.mustRun("train")
}

func TestTrainAndSuggest(t *testing.T) {
	h := newHarness(t)
	h.setup()

	out := h.mustRun("suggest", "--limit", "1", "the", "striker", "scored", "a", "goal")
	var rec output.Record
	require.NoError(t, json.Unmarshal([]byte(out), &rec))
	assert.Equal(t, output.KindSuggestions, rec.Kind)
	require.Len(t, rec.Suggestions, 1)
	assert.Equal(t, "sport", rec.Suggestions[0].ConceptID)
}

func TestConceptCommands(t *testing.T) {
	h := newHarness(t)
	h.setup()

	assert.Equal(t, "news\n", h.mustRun("concept", "roots"))

	h.mustRun("concept", "add", "economy")
	h.mustRun("concept", "add", "budget", "--broader", "economy,politics")
	assert.Equal(t, "economy\nnews\n", h.mustRun("concept", "roots"))

	var view struct {
		ID      string   `json:"id"`
		Broader []string `json:"broader"`
		Model   *struct {
			Version uint64 `json:"version"`
		} `json:"model"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("concept", "show", "budget")), &view))
	assert.Equal(t, []string{"economy", "politics"}, view.Broader)
	assert.Nil(t, view.Model)

	require.NoError(t, json.Unmarshal([]byte(h.mustRun("concept", "show", "sport")), &view))
	require.NotNil(t, view.Model)
	assert.Equal(t, uint64(1), view.Model.Version)

	h.mustRun("concept", "remove", "budget")
	_, _, err := h.run("", "concept", "show", "budget")
	assert.Error(t, err)
}

func TestTaxonomyExport(t *testing.T) {
	h := newHarness(t)
	h.mustRun("taxonomy", "import", filepath.Join(h.dir, "taxonomy.yaml"))

	out := h.mustRun("taxonomy", "export")
	assert.Contains(t, out, "scheme: urn:test:news")
	assert.Contains(t, out, "- id: news")
	assert.Contains(t, out, "- id: politics")
}

func TestExampleAddAndRemove(t *testing.T) {
	h := newHarness(t)
	h.mustRun("taxonomy", "import", filepath.Join(h.dir, "taxonomy.yaml"))

	h.mustRun("example", "add", "--id", "x1", "--text", "ballot count", "--concepts", "politics")
	h.mustRun("example", "remove", "x1")
	_, _, err := h.run("", "example", "remove", "x1")
	assert.Error(t, err)

	_, errOut, err := h.run(`{"id":"s1","text":"goal","concepts":["sport"]}`+"\nnot json\n", "example", "import", "-")
	assert.Error(t, err)
	assert.Contains(t, errOut, "line 2")
}

func TestEvaluateAndReports(t *testing.T) {
	h := newHarness(t)
	h.setup()

	_, _, err := h.run("", "evaluate")
	assert.Error(t, err, "cross-validation is disabled by default")

	h.mustRun("evaluate", "--folds", "2", "--all-folds")

	var rep struct {
		ConceptID string `json:"concept"`
		Folds     int    `json:"folds"`
	}
	require.NoError(t, json.Unmarshal([]byte(h.mustRun("report", "show", "sport")), &rep))
	assert.Equal(t, "sport", rep.ConceptID)
	assert.Equal(t, 2, rep.Folds)

	lines := strings.Split(strings.TrimSpace(h.mustRun("report", "export")), "\n")
	assert.Len(t, lines, 3)
	for _, l := range lines {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(l), &rec))
		assert.Equal(t, output.KindReport, rec.Kind)
		require.NotNil(t, rec.Report)
	}
}

func TestRuns(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.mustRun("train", "--incremental")

	lines := strings.Split(strings.TrimSpace(h.mustRun("runs")), "\n")
	require.Len(t, lines, 2)
	var rec output.Record
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.NotNil(t, rec.Run)
	assert.True(t, rec.Run.Incremental, "newest first")
	assert.Equal(t, 0, rec.Run.Refit)
}

func TestSuggestBatchFromStdin(t *testing.T) {
	h := newHarness(t)
	h.setup()

	input := "parliament vote on the ballot\n{\"id\":\"d2\",\"text\":\"striker goal\"}\n{\"id\":\"d3\",\"text\":\"x\",\"lang\":\"fr\"}\n"
	out, errOut, err := h.run(input, "suggest", "--batch", "-", "--limit", "1")
	require.NoError(t, err)
	assert.Contains(t, errOut, "3 documents, 1 failed")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	var recs []output.Record
	for _, l := range lines {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(l), &rec))
		recs = append(recs, rec)
	}
	assert.Equal(t, "politics", recs[0].Suggestions[0].ConceptID)
	assert.Equal(t, "d2", recs[1].ID)
	assert.Equal(t, "sport", recs[1].Suggestions[0].ConceptID)
	assert.NotEmpty(t, recs[2].Error)
}

func TestSuggestToFileWithTee(t *testing.T) {
	h := newHarness(t)
	h.setup()
	path := filepath.Join(h.dir, "out.jsonl")
	t.Setenv("CANOPY_OUTPUT_FORMAT", "file")
	t.Setenv("CANOPY_OUTPUT_PATH", path)
	t.Setenv("CANOPY_OUTPUT_TEE", "true")

	out := h.mustRun("suggest", "election", "ballot")
	assert.NotEmpty(t, out)
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, out, string(data))
}

func TestReportExportToFile(t *testing.T) {
	h := newHarness(t)
	h.setup()
	h.mustRun("evaluate", "--folds", "2", "--all-folds")
	path := filepath.Join(h.dir, "out.jsonl")
	t.Setenv("CANOPY_OUTPUT_FORMAT", "file")
	t.Setenv("CANOPY_OUTPUT_PATH", path)

	h.mustRun("report", "export")
	h.mustRun("report", "export")
	h.mustRun("runs")

	reports := filepath.Join(h.dir, "out.reports.jsonl")
	for _, p := range []string{reports, reports + ".1"} {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		assert.Len(t, strings.Split(strings.TrimSpace(string(data)), "\n"), 3, p)
	}
	assert.FileExists(t, filepath.Join(h.dir, "out.runs.jsonl"))
	assert.NoFileExists(t, path, "no suggestions were written")
}

func TestSuggestToWebhook(t *testing.T) {
	h := newHarness(t)
	h.setup()

	batches := make(chan webhook.Batch, 4)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var b webhook.Batch
		if err := json.NewDecoder(r.Body).Decode(&b); err == nil {
			batches <- b
		}
	}))
	defer srv.Close()
	t.Setenv("CANOPY_SCHEME_ID", "urn:test:news")
	t.Setenv("CANOPY_OUTPUT_FORMAT", "webhook")
	t.Setenv("CANOPY_OUTPUT_WEBHOOK_URL", srv.URL)

	out := h.mustRun("suggest", "election", "ballot")
	assert.Empty(t, out)

	require.Len(t, batches, 1)
	b := <-batches
	assert.Equal(t, "urn:test:news", b.Scheme)
	assert.Equal(t, map[string]int{output.KindSuggestions: 1}, b.Counts)
	require.Len(t, b.Records, 1)
	assert.Equal(t, "politics", b.Records[0].Suggestions[0].ConceptID)
}

func TestSuggestRequiresInput(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.run("", "suggest")
	assert.Error(t, err)
}

func TestInvalidConfiguration(t *testing.T) {
	h := newHarness(t)
	t.Setenv("CANOPY_TRAINING_MODEL", "forest")

	_, errOut, err := h.run("", "concept", "roots")
	require.Error(t, err)
	assert.Contains(t, errOut, "CANOPY_TRAINING_MODEL")
}

func TestReadOnlyScheme(t *testing.T) {
	h := newHarness(t)
	h.setup()
	t.Setenv("CANOPY_SCHEME_READ_ONLY", "true")

	_, _, err := h.run("", "concept", "add", "economy")
	assert.Error(t, err)
	h.mustRun("suggest", "football")
}
