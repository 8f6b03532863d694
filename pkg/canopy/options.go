package canopy

import (
	"path/filepath"

	"github.com/hejijunhao/canopy/internal/engine/linear"
)

type options struct {
	schemeID     string
	languages    []string
	extractor    Extractor
	trainingSet  TrainingSet
	modelDir     string
	modelPath    string
	vocabPath    string
	runtimePath  string
	fitterKind   string
	params       linear.Params
	sampler      string
	maxNegatives int
	workers      int
	foldIndex    int
	foldCount    int
	allFolds     bool
	readOnly     bool
	maxResults   int
	minScore     *float64
	dbDriver     string
	dbPath       string
}

// Option configures a Classifier.
type Option func(*options)

// WithSchemeID sets the concept scheme identifier. When a database is
// configured and this option is absent, the stored identifier is used.
func WithSchemeID(id string) Option {
	return func(o *options) { o.schemeID = id }
}

// WithAcceptedLanguages sets the BCP 47 languages queries may be in.
// The first one is the default query language. Default: "en".
func WithAcceptedLanguages(langs ...string) Option {
	return func(o *options) { o.languages = langs }
}

// WithExtractor sets the feature extractor. Default: a hashing extractor
// with 2^20 buckets and bigrams. The caller keeps ownership: the Classifier
// never closes an extractor passed here.
func WithExtractor(e Extractor) Option {
	return func(o *options) { o.extractor = e }
}

// WithModelDir selects the ONNX sentence embedding extractor, loading
// model_quantized.onnx and vocab.txt from dir.
func WithModelDir(dir string) Option {
	return func(o *options) { o.modelDir = dir }
}

// WithModelPaths is WithModelDir with explicit file paths.
func WithModelPaths(model, vocab string) Option {
	return func(o *options) {
		o.modelPath = model
		o.vocabPath = vocab
	}
}

// WithONNXRuntime sets the onnxruntime shared library used by the ONNX
// extractor. Default: the platform's default library name.
func WithONNXRuntime(path string) Option {
	return func(o *options) { o.runtimePath = path }
}

// WithTrainingSet sets where training examples come from. Default: the
// configured database, if any.
func WithTrainingSet(ts TrainingSet) Option {
	return func(o *options) { o.trainingSet = ts }
}

// WithFitter selects the per-concept model: "logistic" (default) or
// "perceptron".
func WithFitter(kind string) Option {
	return func(o *options) { o.fitterKind = kind }
}

// WithFitParams overrides the fitter's learning rate, L2 penalty,
// convergence tolerance and epoch budget. Zero values keep the defaults.
func WithFitParams(learningRate, l2, tolerance float64, maxIterations int) Option {
	return func(o *options) {
		if learningRate > 0 {
			o.params.LearningRate = learningRate
		}
		if l2 > 0 {
			o.params.L2 = l2
		}
		if tolerance > 0 {
			o.params.Tolerance = tolerance
		}
		if maxIterations > 0 {
			o.params.MaxIterations = maxIterations
		}
	}
}

// WithNegativeSampler selects how negatives are chosen: "hierarchical"
// (siblings' subtrees, default), "exhaustive" (every other concept) or
// "sampled" (hierarchical, capped at maxNegatives concepts).
func WithNegativeSampler(name string, maxNegatives int) Option {
	return func(o *options) {
		o.sampler = name
		o.maxNegatives = maxNegatives
	}
}

// WithWorkers sets how many concepts are fit concurrently. Default: 1.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithCrossValidation sets the held-out fold. foldCount 0 disables
// cross-validation. With allFolds, every fold is evaluated and the counts
// pooled.
func WithCrossValidation(foldIndex, foldCount int, allFolds bool) Option {
	return func(o *options) {
		o.foldIndex = foldIndex
		o.foldCount = foldCount
		o.allFolds = allFolds
	}
}

// WithReadOnly rejects taxonomy edits, training set changes and training.
func WithReadOnly() Option {
	return func(o *options) { o.readOnly = true }
}

// WithMaxSuggestions caps the suggestions returned per query. 0 = unlimited.
func WithMaxSuggestions(n int) Option {
	return func(o *options) { o.maxResults = n }
}

// WithMinScore drops suggestions scoring below floor.
func WithMinScore(floor float64) Option {
	return func(o *options) { o.minScore = &floor }
}

// WithDatabase persists the taxonomy, examples, models, reports and run
// history in a "sqlite" or "duckdb" database at path. Existing state is
// loaded by New.
func WithDatabase(driver, path string) Option {
	return func(o *options) {
		o.dbDriver = driver
		o.dbPath = path
	}
}

func defaultOptions() options {
	return options{
		languages:  []string{"en"},
		fitterKind: linear.KindLogistic,
		params:     linear.DefaultParams(),
		sampler:    "hierarchical",
		workers:    1,
	}
}

// resolvePaths determines the ONNX model and vocab paths. Explicit paths
// take precedence over modelDir. ok is false when no ONNX option was given.
func resolvePaths(o options) (model, vocab string, ok bool) {
	if o.modelPath != "" {
		return o.modelPath, o.vocabPath, true
	}
	if o.modelDir == "" {
		return "", "", false
	}
	return filepath.Join(o.modelDir, "model_quantized.onnx"),
		filepath.Join(o.modelDir, "vocab.txt"), true
}
