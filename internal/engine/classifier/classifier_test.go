package classifier

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/hejijunhao/canopy/internal/model"
)

// constScorer returns the same score for every input.
type constScorer float64

func (s constScorer) Kind() string                      { return "const" }
func (s constScorer) Score(model.FeatureVector) float64 { return float64(s) }
func (s constScorer) MarshalBinary() ([]byte, error)    { return nil, nil }

func models(scores map[string]float64) []*model.PerConceptModel {
	out := make([]*model.PerConceptModel, 0, len(scores))
	for id, s := range scores {
		out = append(out, &model.PerConceptModel{ConceptID: id, Scorer: constScorer(s)})
	}
	return out
}

func TestClassifyRanksByScoreThenID(t *testing.T) {
	c := New(nil, 0)
	got := c.Classify(model.FeatureVector{}, models(map[string]float64{
		"A": 0.2, "C": 0.7, "B": 0.7, "D": 0.9,
	}))

	ids := make([]string, len(got))
	for i, s := range got {
		ids[i] = s.ConceptID
	}
	assert.Equal(t, []string{"D", "B", "C", "A"}, ids)
	assert.Equal(t, 0.9, got[0].Score)
}

func TestClassifyCutoffs(t *testing.T) {
	floor := 0.5
	ms := models(map[string]float64{"A": 0.2, "B": 0.6, "C": 0.8, "D": 0.9})

	assert.Len(t, New(&floor, 0).Classify(model.FeatureVector{}, ms), 3)
	assert.Len(t, New(&floor, 2).Classify(model.FeatureVector{}, ms), 2)
	assert.Len(t, New(nil, 0).ClassifyN(model.FeatureVector{}, ms, 1), 1)
}

func TestClassifySkipsModelsWithoutScorer(t *testing.T) {
	ms := append(models(map[string]float64{"A": 0.4}), &model.PerConceptModel{ConceptID: "B"}, nil)
	got := New(nil, 0).Classify(model.FeatureVector{}, ms)
	assert.Equal(t, []model.TopicSuggestion{{ConceptID: "A", Score: 0.4}}, got)
}
