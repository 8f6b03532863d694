package model

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifierErrorIs(t *testing.T) {
	cause := errors.New("disk on fire")
	err := NewError(KindTrainingSetUnavailable, "updateModel", "A", cause)

	assert.ErrorIs(t, err, ErrTrainingSetUnavailable)
	assert.ErrorIs(t, err, ErrClassifier)
	assert.ErrorIs(t, err, cause)
	assert.NotErrorIs(t, err, ErrConceptNotFound)
	assert.Equal(t, KindTrainingSetUnavailable, KindOf(err))
	assert.Equal(t, "canopy: updateModel: A: training set unavailable: disk on fire", err.Error())
}

func TestClassifierErrorWrapped(t *testing.T) {
	inner := NewError(KindCyclicHierarchy, "addConcept", "B", nil)
	wrapped := fmt.Errorf("import: %w", inner)

	assert.ErrorIs(t, wrapped, ErrCyclicHierarchy)
	assert.Equal(t, KindCyclicHierarchy, KindOf(wrapped))
}

func TestNewErrorKeepsInnerKind(t *testing.T) {
	inner := NewError(KindConceptNotFound, "removeConcept", "X", nil)
	outer := NewError(KindClassifier, "import", "", inner)

	require.Same(t, inner, outer)
	assert.Equal(t, KindConceptNotFound, KindOf(outer))
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, KindClassifier, KindOf(errors.New("boom")))
}

func TestClassifierCauses(t *testing.T) {
	err := NewError(KindClassifier, "suggestTopics", "", ErrModelUnavailable)
	assert.ErrorIs(t, err, ErrModelUnavailable)
	assert.ErrorIs(t, err, ErrClassifier)
	assert.NotErrorIs(t, err, ErrUnsupportedLanguage)
}
