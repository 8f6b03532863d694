package model

import (
	"errors"
	"strings"
)

// ErrorKind classifies a ClassifierError.
type ErrorKind int

const (
	// KindClassifier is the catch-all kind: extractor failures, missing
	// models, malformed input and invalid state.
	KindClassifier ErrorKind = iota
	KindConceptNotFound
	KindCyclicHierarchy
	KindTrainingSetUnavailable
	KindTrainingInProgress
	KindUnsupportedLanguage
)

var kindNames = map[ErrorKind]string{
	KindClassifier:             "classifier error",
	KindConceptNotFound:        "concept not found",
	KindCyclicHierarchy:        "cyclic hierarchy",
	KindTrainingSetUnavailable: "training set unavailable",
	KindTrainingInProgress:     "training in progress",
	KindUnsupportedLanguage:    "unsupported language",
}

func (k ErrorKind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return "unknown error"
}

// Kind sentinels. Every ClassifierError matches ErrClassifier and the
// sentinel of its own kind through errors.Is.
var (
	ErrClassifier             = errors.New(KindClassifier.String())
	ErrConceptNotFound        = errors.New(KindConceptNotFound.String())
	ErrCyclicHierarchy        = errors.New(KindCyclicHierarchy.String())
	ErrTrainingSetUnavailable = errors.New(KindTrainingSetUnavailable.String())
	ErrTrainingInProgress     = errors.New(KindTrainingInProgress.String())
	ErrUnsupportedLanguage    = errors.New(KindUnsupportedLanguage.String())
)

// Causes reported under KindClassifier.
var (
	ErrModelUnavailable        = errors.New("no model available")
	ErrExtraction              = errors.New("feature extraction failed")
	ErrMalformedText           = errors.New("malformed text")
	ErrInvalidConcept          = errors.New("invalid concept id")
	ErrInvalidArgument         = errors.New("invalid argument")
	ErrCrossValidationDisabled = errors.New("cross validation disabled")
	ErrNotUpdatable            = errors.New("classifier is read-only")
)

var kindSentinels = map[ErrorKind]error{
	KindClassifier:             ErrClassifier,
	KindConceptNotFound:        ErrConceptNotFound,
	KindCyclicHierarchy:        ErrCyclicHierarchy,
	KindTrainingSetUnavailable: ErrTrainingSetUnavailable,
	KindTrainingInProgress:     ErrTrainingInProgress,
	KindUnsupportedLanguage:    ErrUnsupportedLanguage,
}

// ClassifierError is the single error type surfaced by the classifier.
type ClassifierError struct {
	Kind      ErrorKind
	Op        string // operation, e.g. "addConcept"
	ConceptID string
	Err       error // underlying cause, may be nil
}

// NewError builds a ClassifierError. If err already is a ClassifierError it
// is returned unchanged so kinds are never masked by outer layers.
func NewError(kind ErrorKind, op, conceptID string, err error) error {
	var ce *ClassifierError
	if errors.As(err, &ce) {
		return err
	}
	return &ClassifierError{Kind: kind, Op: op, ConceptID: conceptID, Err: err}
}

func (e *ClassifierError) Error() string {
	var b strings.Builder
	b.WriteString("canopy")
	if e.Op != "" {
		b.WriteString(": ")
		b.WriteString(e.Op)
	}
	if e.ConceptID != "" {
		b.WriteString(": ")
		b.WriteString(e.ConceptID)
	}
	b.WriteString(": ")
	b.WriteString(e.Kind.String())
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *ClassifierError) Unwrap() error {
	return e.Err
}

// Is matches the kind sentinel and the family sentinel ErrClassifier.
func (e *ClassifierError) Is(target error) bool {
	if target == ErrClassifier {
		return true
	}
	return kindSentinels[e.Kind] == target
}

// KindOf returns the kind of err, or KindClassifier when err is not a
// ClassifierError.
func KindOf(err error) ErrorKind {
	var ce *ClassifierError
	if errors.As(err, &ce) {
		return ce.Kind
	}
	return KindClassifier
}
