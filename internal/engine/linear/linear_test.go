package linear

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hejijunhao/canopy/internal/model"
)

func vec(pairs ...float64) model.FeatureVector {
	m := make(map[int]float64)
	for i := 0; i+1 < len(pairs); i += 2 {
		m[int(pairs[i])] = pairs[i+1]
	}
	return model.NewFeatureVector(m)
}

// toySamples: features 1,2 signal positives; 3,4 negatives.
func toySamples() []Sample {
	return []Sample{
		{ID: "p1", X: vec(1, 1, 2, 0.5), Y: true},
		{ID: "n1", X: vec(3, 1, 4, 0.5)},
		{ID: "p2", X: vec(1, 0.7, 5, 0.7), Y: true},
		{ID: "n2", X: vec(3, 0.6, 5, 0.8)},
		{ID: "n3", X: vec(4, 1)},
	}
}

func fitters() []Fitter {
	p := DefaultParams()
	return []Fitter{&LogisticFitter{Params: p}, &PerceptronFitter{Params: p}}
}

func TestFitSeparatesToyData(t *testing.T) {
	for _, f := range fitters() {
		t.Run(f.Kind(), func(t *testing.T) {
			s, err := f.Fit(context.Background(), toySamples(), nil)
			require.NoError(t, err)
			assert.Equal(t, f.Kind(), s.Kind())

			pos := s.Score(vec(1, 1))
			neg := s.Score(vec(3, 1))
			assert.Greater(t, pos, neg)
		})
	}
}

func TestLogisticScoreRange(t *testing.T) {
	s, err := (&LogisticFitter{Params: DefaultParams()}).Fit(context.Background(), toySamples(), nil)
	require.NoError(t, err)

	for _, x := range []model.FeatureVector{vec(1, 1), vec(3, 1), {}} {
		v := s.Score(x)
		assert.True(t, v > 0 && v < 1, "score %f outside (0,1)", v)
	}
	assert.Greater(t, s.Score(vec(1, 1)), 0.5)
	assert.Less(t, s.Score(vec(3, 1)), 0.5)
}

func TestFitIsDeterministic(t *testing.T) {
	for _, f := range fitters() {
		t.Run(f.Kind(), func(t *testing.T) {
			a, err := f.Fit(context.Background(), toySamples(), nil)
			require.NoError(t, err)
			b, err := f.Fit(context.Background(), toySamples(), nil)
			require.NoError(t, err)

			ba, err := a.MarshalBinary()
			require.NoError(t, err)
			bb, err := b.MarshalBinary()
			require.NoError(t, err)
			assert.Equal(t, ba, bb)
		})
	}
}

func TestDecodeRestoresScorer(t *testing.T) {
	for _, f := range fitters() {
		t.Run(f.Kind(), func(t *testing.T) {
			s, err := f.Fit(context.Background(), toySamples(), nil)
			require.NoError(t, err)
			blob, err := s.MarshalBinary()
			require.NoError(t, err)

			restored, err := Decode(f.Kind(), blob)
			require.NoError(t, err)
			x := vec(1, 0.3, 3, 0.2, 5, 1)
			assert.Equal(t, s.Score(x), restored.Score(x))
		})
	}
}

func TestDecodeErrors(t *testing.T) {
	_, err := Decode("svm", []byte(`{}`))
	assert.ErrorContains(t, err, "unknown model kind")

	_, err = Decode(KindLogistic, []byte(`{"indices":[1,2],"values":[1]}`))
	assert.Error(t, err)

	_, err = Decode(KindLogistic, []byte(`not json`))
	assert.Error(t, err)
}

func TestWarmStartContinuesFromPrevious(t *testing.T) {
	f := &LogisticFitter{Params: Params{LearningRate: 0.5, MaxIterations: 1}}
	first, err := f.Fit(context.Background(), toySamples(), nil)
	require.NoError(t, err)
	second, err := f.Fit(context.Background(), toySamples(), first)
	require.NoError(t, err)

	x := vec(1, 1)
	assert.Greater(t, second.Score(x), first.Score(x))
}

func TestWarmStartIgnoresOtherKind(t *testing.T) {
	p := DefaultParams()
	perc, err := (&PerceptronFitter{Params: p}).Fit(context.Background(), toySamples(), nil)
	require.NoError(t, err)

	cold, err := (&LogisticFitter{Params: p}).Fit(context.Background(), toySamples(), nil)
	require.NoError(t, err)
	warm, err := (&LogisticFitter{Params: p}).Fit(context.Background(), toySamples(), perc)
	require.NoError(t, err)

	x := vec(1, 1, 3, 1)
	assert.Equal(t, cold.Score(x), warm.Score(x))
}

func TestFitNoSamples(t *testing.T) {
	for _, f := range fitters() {
		_, err := f.Fit(context.Background(), nil, nil)
		assert.Error(t, err, f.Kind())
	}
}

func TestFitCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, f := range fitters() {
		_, err := f.Fit(ctx, toySamples(), nil)
		assert.ErrorIs(t, err, context.Canceled, f.Kind())
	}
}

func TestRegistry(t *testing.T) {
	assert.Equal(t, []string{KindLogistic, KindPerceptron}, Kinds())

	f, err := NewFitter(KindPerceptron, DefaultParams())
	require.NoError(t, err)
	assert.Equal(t, KindPerceptron, f.Kind())

	_, err = NewFitter("forest", DefaultParams())
	assert.Error(t, err)

	assert.Equal(t, 0.5, Threshold(KindLogistic))
	assert.Equal(t, 0.0, Threshold(KindPerceptron))
}

func TestClassWeights(t *testing.T) {
	pos, neg := classWeights(toySamples())
	assert.InDelta(t, 5.0/4, pos, 1e-12)
	assert.InDelta(t, 5.0/6, neg, 1e-12)

	pos, neg = classWeights([]Sample{{Y: true}})
	assert.Equal(t, 1.0, pos)
	assert.Equal(t, 1.0, neg)
}
