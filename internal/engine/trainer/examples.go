package trainer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/hejijunhao/canopy/internal/engine/features"
	"github.com/hejijunhao/canopy/internal/model"
)

// TrainingSet supplies labelled examples per concept.
type TrainingSet interface {
	ExamplesFor(ctx context.Context, conceptID string) ([]model.TrainingExample, error)
}

// ChangeTracker is implemented by training sets that know which concepts
// gained, lost or changed examples since a point in time.
type ChangeTracker interface {
	UpdatedConcepts(ctx context.Context, since time.Time) ([]string, error)
}

// ExampleSet caches the examples of a training set for the duration of one
// job. Concurrent requests for the same concept share one fetch. Examples
// without features are run through the extractor once.
type ExampleSet struct {
	source    TrainingSet
	extractor features.Extractor

	group singleflight.Group
	mu    sync.Mutex
	cache map[string][]model.TrainingExample
}

// NewExampleSet wraps source. extractor may be nil when the source always
// supplies features.
func NewExampleSet(source TrainingSet, extractor features.Extractor) *ExampleSet {
	return &ExampleSet{
		source:    source,
		extractor: extractor,
		cache:     make(map[string][]model.TrainingExample),
	}
}

// For returns the examples labelled with conceptID.
func (s *ExampleSet) For(ctx context.Context, conceptID string) ([]model.TrainingExample, error) {
	s.mu.Lock()
	exs, ok := s.cache[conceptID]
	s.mu.Unlock()
	if ok {
		return exs, nil
	}

	v, err, _ := s.group.Do(conceptID, func() (any, error) {
		raw, err := s.source.ExamplesFor(ctx, conceptID)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, model.NewError(model.KindTrainingSetUnavailable, "examplesFor", conceptID, err)
		}
		exs, err := s.featurize(ctx, conceptID, raw)
		if err != nil {
			return nil, err
		}
		s.mu.Lock()
		s.cache[conceptID] = exs
		s.mu.Unlock()
		return exs, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]model.TrainingExample), nil
}

func (s *ExampleSet) featurize(ctx context.Context, conceptID string, raw []model.TrainingExample) ([]model.TrainingExample, error) {
	out := make([]model.TrainingExample, len(raw))
	for i, e := range raw {
		out[i] = e
		if !e.Features.IsZero() || e.Text == "" {
			continue
		}
		if s.extractor == nil {
			return nil, model.NewError(model.KindClassifier, "extract", conceptID,
				fmt.Errorf("%w: example %s has no features and no extractor is configured", model.ErrExtraction, e.ID))
		}
		fv, err := s.extractor.Extract(ctx, e.Text)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, model.NewError(model.KindClassifier, "extract", conceptID,
				fmt.Errorf("%w: example %s: %w", model.ErrExtraction, e.ID, err))
		}
		out[i].Features = fv
	}
	return out, nil
}

// Samples returns the positives of conceptID and the negatives chosen by
// sampler. An example is never a negative if it carries conceptID or any
// concept of h that the sampler left out (e.g. an ancestor). Order follows
// the training set, negatives grouped by concept in sampler order; an
// example appears once.
func (s *ExampleSet) Samples(ctx context.Context, h Hierarchy, conceptID string, sampler NegativeSampler) (pos, neg []model.TrainingExample, err error) {
	pos, err = s.For(ctx, conceptID)
	if err != nil {
		return nil, nil, err
	}

	negConcepts := sampler(h, conceptID)
	allowed := make(map[string]struct{}, len(negConcepts))
	for _, c := range negConcepts {
		allowed[c] = struct{}{}
	}

	seen := make(map[string]struct{}, len(pos))
	for _, e := range pos {
		seen[e.ID] = struct{}{}
	}
	for _, c := range negConcepts {
		exs, err := s.For(ctx, c)
		if err != nil {
			return nil, nil, err
		}
		for _, e := range exs {
			if _, dup := seen[e.ID]; dup {
				continue
			}
			if protected(e, conceptID, h, allowed) {
				continue
			}
			seen[e.ID] = struct{}{}
			neg = append(neg, e)
		}
	}
	return pos, neg, nil
}

func protected(e model.TrainingExample, conceptID string, h Hierarchy, allowed map[string]struct{}) bool {
	for _, c := range e.Concepts {
		if c == conceptID {
			return true
		}
		if _, ok := allowed[c]; !ok && h.Has(c) {
			return true
		}
	}
	return false
}
