package features

import (
	"encoding/binary"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// safetensors encodes weights as a single linear.weight tensor.
func safetensors(t *testing.T, shape []int, weights []float32) []byte {
	t.Helper()
	header, err := json.Marshal(map[string]any{
		"linear.weight": map[string]any{
			"dtype":        "F32",
			"shape":        shape,
			"data_offsets": []int{0, len(weights) * 4},
		},
	})
	require.NoError(t, err)

	buf := make([]byte, 8, 8+len(header)+len(weights)*4)
	binary.LittleEndian.PutUint64(buf, uint64(len(header)))
	buf = append(buf, header...)
	for _, w := range weights {
		buf = binary.LittleEndian.AppendUint32(buf, math.Float32bits(w))
	}
	return buf
}

func TestLoadProjection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "model.safetensors")
	// 2x3: row 0 sums, row 1 picks the last component.
	require.NoError(t, os.WriteFile(path, safetensors(t, []int{2, 3}, []float32{1, 1, 1, 0, 0, 2}), 0o644))

	p, err := loadProjection(path)
	require.NoError(t, err)
	assert.Equal(t, 3, p.inDim)
	assert.Equal(t, 2, p.outDim)
	assert.Equal(t, []float32{6, 6}, p.apply([]float32{1, 2, 3}))
}

func TestParseProjectionErrors(t *testing.T) {
	good := safetensors(t, []int{1, 2}, []float32{1, 2})

	tests := []struct {
		name string
		data []byte
		want string
	}{
		{"too small", []byte{1, 2}, "too small"},
		{"header overrun", append([]byte{0xff, 0, 0, 0, 0, 0, 0, 0}, '{'), "exceeds"},
		{"shape mismatch", safetensors(t, []int{2, 2}, []float32{1, 2}), "does not match"},
		{"truncated data", good[:len(good)-4], "outside file"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseProjection(tt.data)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoadProjectionMissing(t *testing.T) {
	_, err := loadProjection(filepath.Join(t.TempDir(), "nope.safetensors"))
	assert.Error(t, err)
}
