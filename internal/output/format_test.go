package output

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/canopy/internal/model"
)

func baseRecord() Record {
	return Record{
		Kind: KindReport,
		ID:   "sport",
		Text: "the match ended",
		Report: &model.ClassificationReport{
			ConceptID:        "sport",
			Precision:        0.5,
			FalsePositiveIDs: []string{"d1"},
			FalseNegativeIDs: []string{"d2"},
		},
	}
}

func TestFormatRecordMinimal(t *testing.T) {
	in := baseRecord()
	out := FormatRecord(in, Minimal)

	assert.Empty(t, out.Text)
	assert.Nil(t, out.Report.FalsePositiveIDs)
	assert.Nil(t, out.Report.FalseNegativeIDs)
	assert.Equal(t, 0.5, out.Report.Precision)
	assert.Equal(t, []string{"d1"}, in.Report.FalsePositiveIDs, "input report must not be modified")
}

func TestFormatRecordStandard(t *testing.T) {
	out := FormatRecord(baseRecord(), Standard)
	assert.Empty(t, out.Text)
	assert.Equal(t, []string{"d1"}, out.Report.FalsePositiveIDs)
}

func TestFormatRecordFull(t *testing.T) {
	in := baseRecord()
	assert.Equal(t, in, FormatRecord(in, Full))
}

func TestFormatRecordJSONOmitsEmpty(t *testing.T) {
	rec := Record{Kind: KindSuggestions, ID: "doc-1", Suggestions: []model.TopicSuggestion{{ConceptID: "B", Score: 0.9}}}

	data, err := json.Marshal(FormatRecord(rec, Minimal))
	require.NoError(t, err)

	var m map[string]any
	require.NoError(t, json.Unmarshal(data, &m))
	assert.NotContains(t, m, "text")
	assert.NotContains(t, m, "report")
	assert.NotContains(t, m, "error")
	assert.Equal(t, "doc-1", m["id"])
}

func TestParseVerbosity(t *testing.T) {
	for in, want := range map[string]Verbosity{"minimal": Minimal, "": Standard, "Standard": Standard, "FULL": Full} {
		got, err := ParseVerbosity(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseVerbosity("loud")
	assert.Error(t, err)
}

func TestReportRecord(t *testing.T) {
	rec := ReportRecord(model.ClassificationReport{ConceptID: "A", Recall: 1})
	assert.Equal(t, KindReport, rec.Kind)
	assert.Equal(t, "A", rec.ID)
	require.NotNil(t, rec.Report)
	assert.Equal(t, 1.0, rec.Report.Recall)
}
