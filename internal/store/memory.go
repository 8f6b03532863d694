package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/hejijunhao/canopy/internal/model"
)

// Memory is an in-process training set. It records when each concept's
// examples last changed so incremental training can pick them up.
type Memory struct {
	mu       sync.RWMutex
	examples map[string]model.TrainingExample
	order    []string
	changed  map[string]time.Time
	now      func() time.Time
}

// NewMemory returns an empty Memory.
func NewMemory() *Memory {
	return &Memory{
		examples: make(map[string]model.TrainingExample),
		changed:  make(map[string]time.Time),
		now:      time.Now,
	}
}

// Add inserts examples, replacing any with the same id. Replaced examples
// keep their original position.
func (m *Memory) Add(examples ...model.TrainingExample) error {
	for _, ex := range examples {
		if ex.ID == "" {
			return model.NewError(model.KindClassifier, "addExample", "", model.ErrInvalidArgument)
		}
		if err := ex.Features.Validate(); err != nil {
			return model.NewError(model.KindClassifier, "addExample", ex.ID, fmt.Errorf("%w: %w", model.ErrInvalidArgument, err))
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	for _, ex := range examples {
		if old, ok := m.examples[ex.ID]; ok {
			m.touch(now, old.Concepts)
		} else {
			m.order = append(m.order, ex.ID)
		}
		m.examples[ex.ID] = ex
		m.touch(now, ex.Concepts)
	}
	return nil
}

// Remove deletes the example with id and reports whether it existed.
func (m *Memory) Remove(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	old, ok := m.examples[id]
	if !ok {
		return false
	}
	delete(m.examples, id)
	for i, oid := range m.order {
		if oid == id {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	m.touch(m.now(), old.Concepts)
	return true
}

func (m *Memory) touch(now time.Time, concepts []string) {
	for _, c := range concepts {
		m.changed[c] = now
	}
}

// ExamplesFor returns the examples labelled with conceptID in insertion
// order.
func (m *Memory) ExamplesFor(ctx context.Context, conceptID string) ([]model.TrainingExample, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []model.TrainingExample
	for _, id := range m.order {
		if ex := m.examples[id]; ex.HasConcept(conceptID) {
			out = append(out, ex)
		}
	}
	return out, nil
}

// UpdatedConcepts returns the concepts whose examples changed at or after
// since, sorted.
func (m *Memory) UpdatedConcepts(ctx context.Context, since time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []string
	for c, t := range m.changed {
		if !t.Before(since) {
			out = append(out, c)
		}
	}
	sort.Strings(out)
	return out, nil
}

// All returns every example in insertion order.
func (m *Memory) All() []model.TrainingExample {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]model.TrainingExample, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.examples[id])
	}
	return out
}

// Len returns the number of examples.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.examples)
}
