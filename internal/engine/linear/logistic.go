package linear

import (
	"context"
	"fmt"
	"math"

	"github.com/hejijunhao/canopy/internal/model"
)

// KindLogistic is the kind tag of logistic regression scorers.
const KindLogistic = "logistic"

func init() {
	Register(KindLogistic, Backend{
		New: func(p Params) Fitter { return &LogisticFitter{Params: p} },
		Decode: func(blob []byte) (model.Scorer, error) {
			ws, err := unmarshalWeights(blob)
			if err != nil {
				return nil, err
			}
			return &Logistic{weights: ws}, nil
		},
		Threshold: 0.5,
	})
}

// Logistic scores with sigmoid(w·x + b), a value in (0, 1).
type Logistic struct {
	weights weights
}

func (l *Logistic) Kind() string { return KindLogistic }

func (l *Logistic) Score(x model.FeatureVector) float64 {
	return sigmoid(l.weights.margin(x))
}

func (l *Logistic) MarshalBinary() ([]byte, error) {
	return l.weights.marshal()
}

// Bias returns the intercept.
func (l *Logistic) Bias() float64 { return l.weights.bias }

// Weight returns the weight of feature i.
func (l *Logistic) Weight(i int) float64 { return l.weights.w[i] }

// LogisticFitter fits Logistic scorers with class-balanced online gradient
// descent on the log loss and L2 weight decay on touched features.
type LogisticFitter struct {
	Params Params
}

func (f *LogisticFitter) Kind() string { return KindLogistic }

func (f *LogisticFitter) Fit(ctx context.Context, samples []Sample, warm model.Scorer) (model.Scorer, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("linear: logistic: no samples")
	}
	ws := newWeights()
	if prev, ok := warm.(*Logistic); ok && prev != nil {
		ws = prev.weights.clone()
	}

	p := f.Params
	posW, negW := classWeights(samples)
	for epoch := 0; epoch < p.MaxIterations; epoch++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var maxDelta float64
		for _, s := range samples {
			y, cw := 0.0, negW
			if s.Y {
				y, cw = 1.0, posW
			}
			g := cw * (sigmoid(ws.margin(s.X)) - y)
			for j, i := range s.X.Indices {
				old := ws.w[i]
				next := old - p.LearningRate*(g*s.X.Values[j]+p.L2*old)
				ws.w[i] = next
				maxDelta = math.Max(maxDelta, math.Abs(next-old))
			}
			db := p.LearningRate * g
			ws.bias -= db
			maxDelta = math.Max(maxDelta, math.Abs(db))
		}
		if maxDelta < p.Tolerance {
			break
		}
	}
	return &Logistic{weights: ws}, nil
}

func sigmoid(z float64) float64 {
	if z >= 0 {
		return 1 / (1 + math.Exp(-z))
	}
	e := math.Exp(z)
	return e / (1 + e)
}
