package linear

import (
	"context"
	"fmt"
	"math"

	"github.com/hejijunhao/canopy/internal/model"
)

// KindPerceptron is the kind tag of averaged perceptron scorers.
const KindPerceptron = "perceptron"

func init() {
	Register(KindPerceptron, Backend{
		New: func(p Params) Fitter { return &PerceptronFitter{Params: p} },
		Decode: func(blob []byte) (model.Scorer, error) {
			ws, err := unmarshalWeights(blob)
			if err != nil {
				return nil, err
			}
			return &Perceptron{weights: ws}, nil
		},
	})
}

// Perceptron scores with the raw margin w·x + b.
type Perceptron struct {
	weights weights
}

func (p *Perceptron) Kind() string { return KindPerceptron }

func (p *Perceptron) Score(x model.FeatureVector) float64 {
	return p.weights.margin(x)
}

func (p *Perceptron) MarshalBinary() ([]byte, error) {
	return p.weights.marshal()
}

// PerceptronFitter fits an averaged perceptron. Averaging uses the usual
// trick of keeping a counter-weighted sum of updates next to the weights.
type PerceptronFitter struct {
	Params Params
}

func (f *PerceptronFitter) Kind() string { return KindPerceptron }

func (f *PerceptronFitter) Fit(ctx context.Context, samples []Sample, warm model.Scorer) (model.Scorer, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("linear: perceptron: no samples")
	}
	ws := newWeights()
	if prev, ok := warm.(*Perceptron); ok && prev != nil {
		ws = prev.weights.clone()
	}
	sum := newWeights()
	c := 1.0

	p := f.Params
	for epoch := 0; epoch < p.MaxIterations; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var maxDelta float64
		for _, s := range samples {
			y := -1.0
			if s.Y {
				y = 1.0
			}
			if y*ws.margin(s.X) <= 0 {
				step := p.LearningRate * y
				for j, i := range s.X.Indices {
					d := step * s.X.Values[j]
					ws.w[i] += d
					sum.w[i] += c * d
					maxDelta = math.Max(maxDelta, math.Abs(d))
				}
				ws.bias += step
				sum.bias += c * step
				maxDelta = math.Max(maxDelta, math.Abs(step))
			}
			c++
		}
		if maxDelta < p.Tolerance {
			break
		}
	}

	avg := weights{w: make(map[int]float64, len(ws.w)), bias: ws.bias - sum.bias/c}
	for i, v := range ws.w {
		avg.w[i] = v - sum.w[i]/c
	}
	return &Perceptron{weights: avg}, nil
}
