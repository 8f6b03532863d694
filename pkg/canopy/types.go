package canopy

import (
	"time"

	"github.com/hejijunhao/canopy/internal/engine/features"
	"github.com/hejijunhao/canopy/internal/engine/trainer"
	"github.com/hejijunhao/canopy/internal/model"
	"github.com/hejijunhao/canopy/internal/store"
)

type (
	// TopicSuggestion is a concept id with its score.
	TopicSuggestion = model.TopicSuggestion
	// ClassificationReport is the cross-validated performance of a concept.
	ClassificationReport = model.ClassificationReport
	// TrainingExample is a labelled text.
	TrainingExample = model.TrainingExample
	// Concept is a taxonomy node with its broader and narrower ids.
	Concept = model.Concept
	// FeatureVector is the sparse input to every per-concept model.
	FeatureVector = model.FeatureVector
	// Extractor turns text into a FeatureVector.
	Extractor = features.Extractor
	// TrainingSet supplies the examples labelled with a concept.
	TrainingSet = trainer.TrainingSet
	// ChangeTracker may be implemented by a TrainingSet to report which
	// concepts gained or lost examples since a given time.
	ChangeTracker = trainer.ChangeTracker
	// Run is the recorded summary of a training or evaluation job.
	Run = store.Run
)

// ModelInfo describes a published per-concept model.
type ModelInfo struct {
	ConceptID string    `json:"concept"`
	Kind      string    `json:"kind"`
	Version   uint64    `json:"version"`
	Dirty     bool      `json:"dirty"`
	Positives int       `json:"positives"`
	Negatives int       `json:"negatives"`
	TrainedAt time.Time `json:"trained_at"`
}

// Error sentinels, matched with errors.Is. Every error returned by a
// Classifier operation matches ErrClassifier.
var (
	ErrClassifier             = model.ErrClassifier
	ErrConceptNotFound        = model.ErrConceptNotFound
	ErrCyclicHierarchy        = model.ErrCyclicHierarchy
	ErrTrainingSetUnavailable = model.ErrTrainingSetUnavailable
	ErrTrainingInProgress     = model.ErrTrainingInProgress
	ErrUnsupportedLanguage    = model.ErrUnsupportedLanguage

	ErrModelUnavailable        = model.ErrModelUnavailable
	ErrExtraction              = model.ErrExtraction
	ErrMalformedText           = model.ErrMalformedText
	ErrInvalidConcept          = model.ErrInvalidConcept
	ErrInvalidArgument         = model.ErrInvalidArgument
	ErrCrossValidationDisabled = model.ErrCrossValidationDisabled
	ErrNotUpdatable            = model.ErrNotUpdatable
)

// HashingExtractor returns the built-in bag-of-words extractor with the
// given number of hash buckets, optionally adding word bigrams.
func HashingExtractor(buckets int, bigrams bool) Extractor {
	return features.NewHashing(buckets, bigrams)
}

// OpenAIExtractor returns an extractor backed by an OpenAI-compatible
// embeddings endpoint. Empty baseURL and embeddingModel use the defaults.
func OpenAIExtractor(apiKey, baseURL, embeddingModel string) Extractor {
	return features.NewOpenAI(apiKey, baseURL, embeddingModel)
}
