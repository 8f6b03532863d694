package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/canopy/internal/engine"
	"github.com/hejijunhao/canopy/internal/engine/features"
	"github.com/hejijunhao/canopy/internal/model"
	"github.com/hejijunhao/canopy/internal/output"
	"github.com/hejijunhao/canopy/internal/output/stdout"
	"github.com/hejijunhao/canopy/internal/store"
)

var _ Suggester = (*engine.Engine)(nil)

func newTrainedEngine(t *testing.T) *engine.Engine {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.Add(
		model.TrainingExample{ID: "e1", Text: "daily news bulletin headlines roundup", Concepts: []string{"news"}},
		model.TrainingExample{ID: "e2", Text: "football match striker scored goal stadium", Concepts: []string{"sport"}},
		model.TrainingExample{ID: "e3", Text: "election vote parliament minister ballot", Concepts: []string{"politics"}},
	))
	e, err := engine.New(engine.Options{
		SchemeID:    "urn:test:news",
		Languages:   []string{"en", "de"},
		Extractor:   features.NewHashing(1<<12, false),
		TrainingSet: mem,
	})
	require.NoError(t, err)
	require.NoError(t, e.AddConcept("news", nil))
	require.NoError(t, e.AddConcept("sport", []string{"news"}))
	require.NoError(t, e.AddConcept("politics", []string{"news"}))
	_, err = e.UpdateModel(context.Background(), false)
	require.NoError(t, err)
	return e
}

func TestIntegrationEngineToNDJSON(t *testing.T) {
	e := newTrainedEngine(t)
	var buf bytes.Buffer
	p := New(e, stdout.NewWriter(&buf, output.Standard, false), WithWorkers(3), WithLimit(1))

	input := strings.Join([]string{
		`{"id":"a","text":"the striker scored a goal in the football match"}`,
		`{"id":"b","text":"parliament held a vote on the election ballot","lang":"de"}`,
		`{"id":"c","text":"le match","lang":"fr"}`,
		``,
	}, "\n")
	st, err := p.Run(context.Background(), strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, Stats{Documents: 3, Failed: 1}, st)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var recs []output.Record
	for _, l := range lines {
		var rec output.Record
		require.NoError(t, json.Unmarshal([]byte(l), &rec))
		recs = append(recs, rec)
	}
	require.Len(t, recs[0].Suggestions, 1)
	assert.Equal(t, "sport", recs[0].Suggestions[0].ConceptID)
	require.Len(t, recs[1].Suggestions, 1)
	assert.Equal(t, "politics", recs[1].Suggestions[0].ConceptID)
	assert.Contains(t, recs[2].Error, "language")
}
