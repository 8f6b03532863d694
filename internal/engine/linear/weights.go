package linear

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/hejijunhao/canopy/internal/model"
)

// weights is a sparse weight vector plus bias. Fitted weights are never
// mutated after the scorer that owns them is returned.
type weights struct {
	w    map[int]float64
	bias float64
}

func newWeights() weights {
	return weights{w: make(map[int]float64)}
}

func (ws weights) clone() weights {
	c := weights{w: make(map[int]float64, len(ws.w)), bias: ws.bias}
	for i, v := range ws.w {
		c.w[i] = v
	}
	return c
}

// margin is w·x + b, summed in feature order.
func (ws weights) margin(x model.FeatureVector) float64 {
	s := ws.bias
	for j, i := range x.Indices {
		s += ws.w[i] * x.Values[j]
	}
	return s
}

// wireWeights is the persisted form, indices ascending.
type wireWeights struct {
	Bias    float64   `json:"bias"`
	Indices []int     `json:"indices"`
	Values  []float64 `json:"values"`
}

func (ws weights) marshal() ([]byte, error) {
	idx := make([]int, 0, len(ws.w))
	for i, v := range ws.w {
		if v != 0 {
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	vals := make([]float64, len(idx))
	for j, i := range idx {
		vals[j] = ws.w[i]
	}
	return json.Marshal(wireWeights{Bias: ws.bias, Indices: idx, Values: vals})
}

func unmarshalWeights(blob []byte) (weights, error) {
	var wire wireWeights
	if err := json.Unmarshal(blob, &wire); err != nil {
		return weights{}, fmt.Errorf("linear: decode weights: %w", err)
	}
	if len(wire.Indices) != len(wire.Values) {
		return weights{}, fmt.Errorf("linear: decode weights: %d indices but %d values", len(wire.Indices), len(wire.Values))
	}
	ws := weights{w: make(map[int]float64, len(wire.Indices)), bias: wire.Bias}
	for j, i := range wire.Indices {
		ws.w[i] = wire.Values[j]
	}
	return ws, nil
}
