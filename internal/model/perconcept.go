package model

import "time"

// Scorer is a fitted binary scoring function for one concept.
type Scorer interface {
	// Kind names the model family, e.g. "logistic".
	Kind() string
	// Score returns the model output for x. Higher means more likely.
	Score(x FeatureVector) float64
	// MarshalBinary encodes the parameters as an opaque blob.
	MarshalBinary() ([]byte, error)
}

// PerConceptModel is an immutable snapshot of one concept's model. A new
// value is built for every change and swapped in as a whole.
type PerConceptModel struct {
	ConceptID string
	Kind      string
	Version   uint64
	Scorer    Scorer
	Dirty     bool
	Positives int
	Negatives int
	TrainedAt time.Time
}

// WithDirty returns a copy of m with the dirty flag set to d.
func (m *PerConceptModel) WithDirty(d bool) *PerConceptModel {
	c := *m
	c.Dirty = d
	return &c
}
