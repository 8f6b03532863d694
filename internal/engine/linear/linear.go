// Package linear implements the per-concept scoring backends. Each backend
// is a Fitter producing a model.Scorer; fitted scorers are tagged with their
// kind and encode to an opaque blob so they can be persisted and restored.
package linear

import (
	"context"
	"fmt"
	"sort"

	"github.com/hejijunhao/canopy/internal/model"
)

// Sample is one labelled training point. Y is true for positives.
type Sample struct {
	ID string
	X  model.FeatureVector
	Y  bool
}

// Params bounds and tunes fitting.
type Params struct {
	LearningRate  float64
	L2            float64
	Tolerance     float64 // stop when no weight moves more than this in an epoch
	MaxIterations int     // epoch budget
}

// DefaultParams returns the fitting defaults.
func DefaultParams() Params {
	return Params{
		LearningRate:  0.5,
		L2:            1e-4,
		Tolerance:     1e-4,
		MaxIterations: 50,
	}
}

// Fitter fits a Scorer on samples, in sample order. warm, when non-nil and of
// the same kind, seeds the weights.
type Fitter interface {
	Kind() string
	Fit(ctx context.Context, samples []Sample, warm model.Scorer) (model.Scorer, error)
}

// Backend ties a kind to its constructor and decoder. Threshold is the
// natural decision boundary of the kind's scores.
type Backend struct {
	New       func(Params) Fitter
	Decode    func(blob []byte) (model.Scorer, error)
	Threshold float64
}

var registry = map[string]Backend{}

// Register adds a backend under kind. Called from init functions.
func Register(kind string, b Backend) {
	registry[kind] = b
}

// NewFitter returns the Fitter registered under kind.
func NewFitter(kind string, p Params) (Fitter, error) {
	b, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("linear: unknown model kind %q", kind)
	}
	return b.New(p), nil
}

// Decode restores a Scorer from a persisted blob.
func Decode(kind string, blob []byte) (model.Scorer, error) {
	b, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("linear: unknown model kind %q", kind)
	}
	return b.Decode(blob)
}

// Threshold returns the decision boundary registered for kind, or 0.
func Threshold(kind string) float64 {
	return registry[kind].Threshold
}

// Kinds returns the registered kinds, sorted.
func Kinds() []string {
	kinds := make([]string, 0, len(registry))
	for k := range registry {
		kinds = append(kinds, k)
	}
	sort.Strings(kinds)
	return kinds
}

// classWeights balances positives against negatives so that a concept with
// few positives is not swamped by the negatives of every other concept.
func classWeights(samples []Sample) (pos, neg float64) {
	var np, nn int
	for _, s := range samples {
		if s.Y {
			np++
		} else {
			nn++
		}
	}
	total := float64(len(samples))
	pos, neg = 1, 1
	if np > 0 && nn > 0 {
		pos = total / (2 * float64(np))
		neg = total / (2 * float64(nn))
	}
	return pos, neg
}
