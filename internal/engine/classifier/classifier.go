// Package classifier ranks published per-concept models against one
// extracted feature vector.
package classifier

import (
	"sort"

	"github.com/hejijunhao/canopy/internal/model"
)

// Classifier scores a feature vector against every published model and
// applies the configured cutoffs.
type Classifier struct {
	// MinScore drops suggestions scoring below it. Nil disables the cutoff.
	MinScore *float64
	// Limit caps the number of suggestions. 0 means unlimited.
	Limit int
}

// New creates a Classifier with the given cutoffs.
func New(minScore *float64, limit int) *Classifier {
	return &Classifier{MinScore: minScore, Limit: limit}
}

// Classify returns the suggestions for x ranked by descending score, ties
// broken by ascending concept id. Models without a scorer are skipped.
func (c *Classifier) Classify(x model.FeatureVector, models []*model.PerConceptModel) []model.TopicSuggestion {
	return c.ClassifyN(x, models, c.Limit)
}

// ClassifyN is Classify with a per-call limit overriding the configured one.
func (c *Classifier) ClassifyN(x model.FeatureVector, models []*model.PerConceptModel, limit int) []model.TopicSuggestion {
	out := make([]model.TopicSuggestion, 0, len(models))
	for _, m := range models {
		if m == nil || m.Scorer == nil {
			continue
		}
		s := m.Scorer.Score(x)
		if c.MinScore != nil && s < *c.MinScore {
			continue
		}
		out = append(out, model.TopicSuggestion{ConceptID: m.ConceptID, Score: s})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ConceptID < out[j].ConceptID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}
