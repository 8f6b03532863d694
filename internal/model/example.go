package model

import (
	"fmt"
	"math"
	"sort"
)

// FeatureVector is a sparse vector. Indices are strictly ascending and
// Values[i] is the weight of feature Indices[i].
type FeatureVector struct {
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
}

// NewFeatureVector builds a FeatureVector from an index→value map, dropping
// zero entries.
func NewFeatureVector(m map[int]float64) FeatureVector {
	idx := make([]int, 0, len(m))
	for i, v := range m {
		if v != 0 {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	vals := make([]float64, len(idx))
	for j, i := range idx {
		vals[j] = m[i]
	}
	return FeatureVector{Indices: idx, Values: vals}
}

// DenseVector converts a dense embedding into a FeatureVector.
func DenseVector(dense []float32) FeatureVector {
	fv := FeatureVector{
		Indices: make([]int, 0, len(dense)),
		Values:  make([]float64, 0, len(dense)),
	}
	for i, v := range dense {
		if v == 0 {
			continue
		}
		fv.Indices = append(fv.Indices, i)
		fv.Values = append(fv.Values, float64(v))
	}
	return fv
}

// Len returns the number of non-zero features.
func (f FeatureVector) Len() int {
	return len(f.Indices)
}

// IsZero reports whether the vector has no features.
func (f FeatureVector) IsZero() bool {
	return len(f.Indices) == 0
}

// Norm returns the L2 norm.
func (f FeatureVector) Norm() float64 {
	var s float64
	for _, v := range f.Values {
		s += v * v
	}
	return math.Sqrt(s)
}

// Validate checks the sorted-indices invariant.
func (f FeatureVector) Validate() error {
	if len(f.Indices) != len(f.Values) {
		return fmt.Errorf("feature vector: %d indices but %d values", len(f.Indices), len(f.Values))
	}
	for i := 1; i < len(f.Indices); i++ {
		if f.Indices[i] <= f.Indices[i-1] {
			return fmt.Errorf("feature vector: indices not strictly ascending at position %d", i)
		}
	}
	return nil
}

// TrainingExample is a labelled example owned by the training set provider.
// Features may be empty when the provider only stores text.
type TrainingExample struct {
	ID       string        `json:"id"`
	Text     string        `json:"text,omitempty"`
	Features FeatureVector `json:"features,omitempty"`
	Concepts []string      `json:"concepts"`
}

// HasConcept reports whether the example is labelled with the concept.
func (e TrainingExample) HasConcept(id string) bool {
	for _, c := range e.Concepts {
		if c == id {
			return true
		}
	}
	return false
}
