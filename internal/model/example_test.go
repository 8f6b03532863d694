package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFeatureVectorSortsAndDropsZeros(t *testing.T) {
	fv := NewFeatureVector(map[int]float64{9: 1.5, 2: 0.5, 4: 0})

	assert.Equal(t, []int{2, 9}, fv.Indices)
	assert.Equal(t, []float64{0.5, 1.5}, fv.Values)
	assert.NoError(t, fv.Validate())
}

func TestDenseVector(t *testing.T) {
	fv := DenseVector([]float32{0, 3, 0, 4})

	assert.Equal(t, []int{1, 3}, fv.Indices)
	assert.InDelta(t, 5.0, fv.Norm(), 1e-9)
}

func TestFeatureVectorValidate(t *testing.T) {
	tests := []struct {
		name string
		fv   FeatureVector
		ok   bool
	}{
		{"empty", FeatureVector{}, true},
		{"ascending", FeatureVector{Indices: []int{1, 2}, Values: []float64{1, 1}}, true},
		{"duplicate", FeatureVector{Indices: []int{1, 1}, Values: []float64{1, 1}}, false},
		{"length mismatch", FeatureVector{Indices: []int{1}, Values: nil}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.fv.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestTrainingExampleHasConcept(t *testing.T) {
	e := TrainingExample{ID: "e1", Concepts: []string{"A", "B"}}
	assert.True(t, e.HasConcept("B"))
	assert.False(t, e.HasConcept("C"))
}
