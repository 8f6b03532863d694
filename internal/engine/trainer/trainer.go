// Package trainer fits per-concept models from a training set, drawing
// negatives according to a pluggable hierarchy-aware policy.
package trainer

import (
	"context"
	"log/slog"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/hejijunhao/canopy/internal/engine/linear"
	"github.com/hejijunhao/canopy/internal/model"
)

// Trainer fits models concept by concept using a bounded worker pool.
type Trainer struct {
	fitter  linear.Fitter
	sampler NegativeSampler
	workers int
	log     *slog.Logger
}

// New creates a Trainer. A nil fitter selects logistic regression with the
// default parameters, a nil sampler selects Hierarchical and workers < 1
// selects one worker.
func New(fitter linear.Fitter, sampler NegativeSampler, workers int) *Trainer {
	if fitter == nil {
		fitter = &linear.LogisticFitter{Params: linear.DefaultParams()}
	}
	if sampler == nil {
		sampler = Hierarchical
	}
	if workers < 1 {
		workers = 1
	}
	return &Trainer{
		fitter:  fitter,
		sampler: sampler,
		workers: workers,
		log:     slog.Default().With("component", "trainer"),
	}
}

// Fitter returns the configured fitter.
func (t *Trainer) Fitter() linear.Fitter { return t.fitter }

// Sampler returns the configured negative sampler.
func (t *Trainer) Sampler() NegativeSampler { return t.sampler }

// Fit is one completed per-concept fit.
type Fit struct {
	ConceptID string
	Scorer    model.Scorer
	Positives int
	Negatives int
}

// Job describes one training pass.
type Job struct {
	Graph    Hierarchy
	Examples *ExampleSet
	Targets  []string

	// Warm holds previous scorers to continue from; nil fits from scratch.
	Warm map[string]model.Scorer

	// Exclude drops examples from training, e.g. a held-out fold.
	Exclude func(exampleID string) bool

	// Commit receives each fit as soon as it completes. Calls are serialised.
	Commit func(Fit)
}

// Result lists the concepts refit and those skipped for lack of positives.
type Result struct {
	Refit   []string
	Skipped []string
}

// Run fits every target. Fits committed before an error or cancellation are
// kept; the first error is returned alongside the partial Result.
func (t *Trainer) Run(ctx context.Context, job Job) (Result, error) {
	var (
		mu  sync.Mutex
		res Result
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(t.workers)
	for _, id := range job.Targets {
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			fit, ok, err := t.fitOne(gctx, job, id)
			if err != nil {
				return err
			}

			mu.Lock()
			defer mu.Unlock()
			if !ok {
				res.Skipped = append(res.Skipped, id)
				t.log.Info("concept skipped, no positive examples", "concept", id)
				return nil
			}
			res.Refit = append(res.Refit, id)
			if job.Commit != nil {
				job.Commit(fit)
			}
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}

	sort.Strings(res.Refit)
	sort.Strings(res.Skipped)
	return res, err
}

func (t *Trainer) fitOne(ctx context.Context, job Job, id string) (Fit, bool, error) {
	pos, neg, err := job.Examples.Samples(ctx, job.Graph, id, t.sampler)
	if err != nil {
		return Fit{}, false, err
	}
	if job.Exclude != nil {
		pos = filter(pos, job.Exclude)
		neg = filter(neg, job.Exclude)
	}
	if len(pos) == 0 {
		return Fit{}, false, nil
	}

	samples := interleave(pos, neg)
	scorer, err := t.fitter.Fit(ctx, samples, job.Warm[id])
	if err != nil {
		if ctx.Err() != nil {
			return Fit{}, false, ctx.Err()
		}
		return Fit{}, false, model.NewError(model.KindClassifier, "fit", id, err)
	}
	t.log.Debug("concept fit", "concept", id, "positives", len(pos), "negatives", len(neg))
	return Fit{ConceptID: id, Scorer: scorer, Positives: len(pos), Negatives: len(neg)}, true, nil
}

func filter(exs []model.TrainingExample, drop func(string) bool) []model.TrainingExample {
	out := make([]model.TrainingExample, 0, len(exs))
	for _, e := range exs {
		if !drop(e.ID) {
			out = append(out, e)
		}
	}
	return out
}

// interleave spreads negatives evenly between positives, keeping the
// relative order of each list, so online updates see both classes early.
func interleave(pos, neg []model.TrainingExample) []linear.Sample {
	out := make([]linear.Sample, 0, len(pos)+len(neg))
	i, j := 0, 0
	for i < len(pos) || j < len(neg) {
		// Take a positive while positives are behind their share.
		if i < len(pos) && (j >= len(neg) || i*len(neg) <= j*len(pos)) {
			out = append(out, linear.Sample{ID: pos[i].ID, X: pos[i].Features, Y: true})
			i++
			continue
		}
		out = append(out, linear.Sample{ID: neg[j].ID, X: neg[j].Features})
		j++
	}
	return out
}
