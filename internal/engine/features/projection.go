package features

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
)

// projection is a bias-free dense layer applied after pooling, as shipped by
// sentence-transformers models in 2_Dense/model.safetensors.
type projection struct {
	weights []float32 // row-major [outDim, inDim]
	inDim   int
	outDim  int
}

// loadProjection reads a safetensors file holding a single F32
// "linear.weight" tensor.
func loadProjection(path string) (*projection, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("projection: %w", err)
	}
	return parseProjection(data)
}

func parseProjection(data []byte) (*projection, error) {
	if len(data) < 8 {
		return nil, fmt.Errorf("projection: file too small: %d bytes", len(data))
	}
	headerLen := binary.LittleEndian.Uint64(data[:8])
	if uint64(len(data)-8) < headerLen {
		return nil, fmt.Errorf("projection: header length %d exceeds file size", headerLen)
	}

	var header map[string]json.RawMessage
	if err := json.Unmarshal(data[8:8+headerLen], &header); err != nil {
		return nil, fmt.Errorf("projection: parse header: %w", err)
	}
	raw, ok := header["linear.weight"]
	if !ok {
		return nil, fmt.Errorf("projection: tensor linear.weight not found")
	}
	var meta struct {
		Dtype       string `json:"dtype"`
		Shape       []int  `json:"shape"`
		DataOffsets [2]int `json:"data_offsets"`
	}
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("projection: parse tensor metadata: %w", err)
	}
	if meta.Dtype != "F32" {
		return nil, fmt.Errorf("projection: expected dtype F32, got %s", meta.Dtype)
	}
	if len(meta.Shape) != 2 {
		return nil, fmt.Errorf("projection: expected 2D tensor, got shape %v", meta.Shape)
	}

	outDim, inDim := meta.Shape[0], meta.Shape[1]
	base := 8 + int(headerLen)
	start, end := base+meta.DataOffsets[0], base+meta.DataOffsets[1]
	if end-start != outDim*inDim*4 {
		return nil, fmt.Errorf("projection: data size %d does not match shape %v", end-start, meta.Shape)
	}
	if start < base || end > len(data) {
		return nil, fmt.Errorf("projection: data range [%d:%d] outside file of %d bytes", start, end, len(data))
	}

	weights := make([]float32, outDim*inDim)
	for i := range weights {
		off := start + i*4
		weights[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[off : off+4]))
	}
	return &projection{weights: weights, inDim: inDim, outDim: outDim}, nil
}

func (p *projection) apply(vec []float32) []float32 {
	out := make([]float32, p.outDim)
	for i := range out {
		row := p.weights[i*p.inDim : (i+1)*p.inDim]
		var sum float32
		for j, w := range row {
			sum += w * vec[j]
		}
		out[i] = sum
	}
	return out
}
