package features

import (
	"context"
	"math"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testModelPath = "../../../models/model_quantized.onnx"
	testVocabPath = "../../../models/vocab.txt"
)

func skipIfNoModel(t *testing.T) {
	t.Helper()
	if _, err := os.Stat(testModelPath); os.IsNotExist(err) {
		t.Skip("model files not found; run 'make download-model' first")
	}
}

func TestMeanPool(t *testing.T) {
	// seqLen=3, dim=2, third token masked: mean = [2, 3], normalised.
	hidden := []float32{1, 2, 3, 4, 5, 6}
	mask := []int64{1, 1, 0}

	out := meanPool(hidden, mask, 2)

	n := math.Sqrt(13)
	assert.InDelta(t, 2/n, out[0], 1e-6)
	assert.InDelta(t, 3/n, out[1], 1e-6)
}

func TestMeanPoolAllMasked(t *testing.T) {
	out := meanPool([]float32{1, 2, 3, 4}, []int64{0, 0}, 2)
	assert.Equal(t, []float32{0, 0}, out)
}

func TestONNXExtract(t *testing.T) {
	skipIfNoModel(t)

	o, err := NewONNX(testModelPath, testVocabPath, "")
	require.NoError(t, err)
	defer o.Close()

	fv, err := o.Extract(context.Background(), "central bank raises interest rates")
	require.NoError(t, err)
	assert.NoError(t, fv.Validate())
	assert.LessOrEqual(t, fv.Len(), o.Dim())
	assert.InDelta(t, 1.0, fv.Norm(), 1e-3)
}

func TestONNXBadModelPath(t *testing.T) {
	skipIfNoModel(t)
	_, err := NewONNX("/nonexistent/model.onnx", testVocabPath, "")
	assert.Error(t, err)
}
