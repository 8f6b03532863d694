package features

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/hejijunhao/canopy/internal/model"
)

// ortEnv guards the process-wide ONNX Runtime initialisation.
var ortEnv struct {
	once sync.Once
	err  error
}

func initORT(libPath string) error {
	ortEnv.once.Do(func() {
		ort.SetSharedLibraryPath(libPath)
		ortEnv.err = ort.InitializeEnvironment()
	})
	return ortEnv.err
}

// ONNX extracts dense features from a BERT-style sentence encoder: WordPiece
// tokens are run through the model and the hidden states mean-pooled and
// L2-normalised. Safe for concurrent use.
type ONNX struct {
	session    *ort.DynamicAdvancedSession
	vocab      *vocab
	outputName string
	dim        int64
	proj       *projection
}

// NewONNX loads the model and vocabulary. libPath may be empty, in which case
// libonnxruntime.so is expected next to the model file. A dense projection in
// 2_Dense/model.safetensors beside the model is applied after pooling.
func NewONNX(modelPath, vocabPath, libPath string) (*ONNX, error) {
	if libPath == "" {
		libPath = filepath.Join(filepath.Dir(modelPath), "libonnxruntime.so")
	}
	if err := initORT(libPath); err != nil {
		return nil, fmt.Errorf("onnx: failed to initialize runtime: %w", err)
	}

	v, err := loadVocab(vocabPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: %w", err)
	}

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to read model info: %w", err)
	}
	inputNames, err := validateInputs(inputs)
	if err != nil {
		return nil, err
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("onnx: model has no outputs")
	}
	dims := outputs[0].Dimensions
	if len(dims) != 3 {
		return nil, fmt.Errorf("onnx: expected 3D output tensor, got %v", dims)
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session options: %w", err)
	}
	defer opts.Destroy()
	opts.SetIntraOpNumThreads(4)
	opts.SetInterOpNumThreads(1)

	var proj *projection
	projPath := filepath.Join(filepath.Dir(modelPath), "2_Dense", "model.safetensors")
	if _, err := os.Stat(projPath); err == nil {
		if proj, err = loadProjection(projPath); err != nil {
			return nil, fmt.Errorf("onnx: %w", err)
		}
		if int64(proj.inDim) != dims[2] {
			return nil, fmt.Errorf("onnx: output dim %d != projection input dim %d", dims[2], proj.inDim)
		}
	}

	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, []string{outputs[0].Name}, opts)
	if err != nil {
		return nil, fmt.Errorf("onnx: failed to create session: %w", err)
	}
	return &ONNX{
		session:    session,
		vocab:      v,
		outputName: outputs[0].Name,
		dim:        dims[2],
		proj:       proj,
	}, nil
}

func validateInputs(inputs []ort.InputOutputInfo) ([]string, error) {
	names := make(map[string]bool, len(inputs))
	for _, in := range inputs {
		names[in.Name] = true
	}
	required := []string{"input_ids", "attention_mask", "token_type_ids"}
	for _, name := range required {
		if !names[name] {
			return nil, fmt.Errorf("onnx: model missing required input %q", name)
		}
	}
	return required, nil
}

// Dim returns the embedding width.
func (o *ONNX) Dim() int {
	if o.proj != nil {
		return o.proj.outDim
	}
	return int(o.dim)
}

func (o *ONNX) Extract(ctx context.Context, text string) (model.FeatureVector, error) {
	if err := ctx.Err(); err != nil {
		return model.FeatureVector{}, err
	}
	enc := o.vocab.encode(text)
	hidden, err := o.infer(enc)
	if err != nil {
		return model.FeatureVector{}, err
	}
	if o.proj == nil {
		return model.DenseVector(meanPool(hidden, enc.attentionMask, o.dim)), nil
	}
	pooled := pool(hidden, enc.attentionMask, o.dim)
	return model.DenseVector(normalize(o.proj.apply(pooled))), nil
}

func (o *ONNX) infer(enc encoded) ([]float32, error) {
	seqLen := int64(len(enc.inputIDs))
	shape := ort.NewShape(1, seqLen)

	ids, err := ort.NewTensor(shape, enc.inputIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: input_ids tensor: %w", err)
	}
	defer ids.Destroy()
	mask, err := ort.NewTensor(shape, enc.attentionMask)
	if err != nil {
		return nil, fmt.Errorf("onnx: attention_mask tensor: %w", err)
	}
	defer mask.Destroy()
	types, err := ort.NewTensor(shape, enc.tokenTypeIDs)
	if err != nil {
		return nil, fmt.Errorf("onnx: token_type_ids tensor: %w", err)
	}
	defer types.Destroy()

	out, err := ort.NewEmptyTensor[float32](ort.NewShape(1, seqLen, o.dim))
	if err != nil {
		return nil, fmt.Errorf("onnx: output tensor: %w", err)
	}
	defer out.Destroy()

	if err := o.session.Run([]ort.Value{ids, mask, types}, []ort.Value{out}); err != nil {
		return nil, fmt.Errorf("onnx: inference failed: %w", err)
	}
	src := out.GetData()
	hidden := make([]float32, len(src))
	copy(hidden, src)
	return hidden, nil
}

// Close releases the session.
func (o *ONNX) Close() error {
	return o.session.Destroy()
}

// meanPool averages the hidden states of unmasked tokens of one sequence
// (hidden is [seqLen*dim]) and L2-normalises the result.
func meanPool(hidden []float32, mask []int64, dim int64) []float32 {
	return normalize(pool(hidden, mask, dim))
}

func pool(hidden []float32, mask []int64, dim int64) []float32 {
	out := make([]float32, dim)
	var count float32
	for s, m := range mask {
		if m != 1 {
			continue
		}
		count++
		off := int64(s) * dim
		for d := int64(0); d < dim; d++ {
			out[d] += hidden[off+d]
		}
	}
	if count == 0 {
		return out
	}
	for d := range out {
		out[d] /= count
	}
	return out
}

func normalize(v []float32) []float32 {
	var sq float64
	for _, x := range v {
		sq += float64(x) * float64(x)
	}
	if sq > 0 {
		inv := float32(1 / math.Sqrt(sq))
		for d := range v {
			v[d] *= inv
		}
	}
	return v
}
