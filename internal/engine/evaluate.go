package engine

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hejijunhao/canopy/internal/engine/crossval"
	"github.com/hejijunhao/canopy/internal/engine/linear"
	"github.com/hejijunhao/canopy/internal/engine/trainer"
	"github.com/hejijunhao/canopy/internal/model"
)

// SetCrossValidationInfo holds out fold foldIndex of foldCount for
// evaluation. foldCount 0 disables cross-validation. Every report becomes
// stale.
func (e *Engine) SetCrossValidationInfo(foldIndex, foldCount int) error {
	info := crossval.Info{FoldIndex: foldIndex, FoldCount: foldCount}
	if err := info.Validate(); err != nil {
		return model.NewError(model.KindClassifier, "setCrossValidationInfo", "", errInvalid(err))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.cv = info
	for _, id := range e.graph.Concepts() {
		e.staleReports[id] = struct{}{}
	}
	return nil
}

// CrossValidationInfo returns the current fold split.
func (e *Engine) CrossValidationInfo() crossval.Info {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.cv
}

// UpdatePerformanceEstimates trains temporary models without the held-out
// fold, scores the held-out examples and stores one report per concept. It
// returns the number of concepts evaluated. Published models are never
// touched. Incrementally, only concepts whose report is missing or stale are
// evaluated.
func (e *Engine) UpdatePerformanceEstimates(ctx context.Context, incremental bool) (int, error) {
	const op = "updatePerformanceEstimates"
	if err := e.begin(op); err != nil {
		return 0, err
	}
	defer e.end()

	e.mu.RLock()
	info, ts := e.cv, e.training
	graph := e.graph.Clone()
	var targets []string
	for _, id := range graph.Concepts() {
		_, stale := e.staleReports[id]
		_, have := e.reports[id]
		if !incremental || stale || !have {
			targets = append(targets, id)
		}
	}
	startRevs := make(map[string]uint64, len(targets))
	for _, id := range targets {
		startRevs[id] = e.revisions[id]
	}
	e.mu.RUnlock()

	if !info.Enabled() {
		return 0, model.NewError(model.KindClassifier, op, "", model.ErrCrossValidationDisabled)
	}
	if ts == nil {
		return 0, model.NewError(model.KindTrainingSetUnavailable, op, "", errNoTrainingSet)
	}

	st := RunStats{ID: uuid.NewString(), Kind: "evaluate", Incremental: incremental, Started: time.Now()}
	log := e.log.With("run", st.ID, "fold", info.FoldIndex, "folds", info.FoldCount)
	log.Info("evaluation started", "targets", len(targets), "all_folds", e.allFolds)

	folds := []int{info.FoldIndex}
	if e.allFolds {
		folds = folds[:0]
		for f := 0; f < info.FoldCount; f++ {
			folds = append(folds, f)
		}
	}

	fallback := linear.Threshold(e.trainer.Fitter().Kind())
	examples := trainer.NewExampleSet(ts, e.extractor)
	tallies := make(map[string]*crossval.Tally, len(targets))
	done := make(map[string]int, len(targets))

	var runErr error
	for _, fold := range folds {
		heldOut := crossval.Info{FoldIndex: fold, FoldCount: info.FoldCount}
		scorers := make(map[string]model.Scorer)
		res, err := e.trainer.Run(ctx, trainer.Job{
			Graph:    graph,
			Examples: examples,
			Targets:  targets,
			Exclude:  heldOut.HeldOut,
			Commit:   func(f trainer.Fit) { scorers[f.ConceptID] = f.Scorer },
		})

		finished := append(append([]string{}, res.Refit...), res.Skipped...)
		for _, id := range finished {
			tally, ok := tallies[id]
			if !ok {
				tally = crossval.NewTally(id)
				tallies[id] = tally
			}
			if evalErr := e.scoreHeldOut(ctx, examples, graph, id, heldOut, scorers[id], fallback, tally); evalErr != nil {
				err = evalErr
				break
			}
			done[id]++
		}
		if err != nil {
			runErr = err
			break
		}
	}

	written := e.storeReports(tallies, done, len(folds), startRevs, fallback)
	st.Refit, st.Finished = written, time.Now()
	if runErr != nil {
		st.Err = wrapRunError(op, runErr)
		log.Error("evaluation failed", "evaluated", len(written), "error", st.Err)
	} else {
		log.Info("evaluation finished", "evaluated", len(written), "duration", st.Finished.Sub(st.Started))
	}
	e.notify(st)
	return len(written), st.Err
}

// scoreHeldOut adds the held-out examples of id to tally. Negatives are drawn
// with the trainer's sampler, as in training.
func (e *Engine) scoreHeldOut(ctx context.Context, examples *trainer.ExampleSet, h trainer.Hierarchy,
	id string, heldOut crossval.Info, scorer model.Scorer, fallback float64, tally *crossval.Tally) error {
	pos, neg, err := examples.Samples(ctx, h, id, e.trainer.Sampler())
	if err != nil {
		return err
	}

	if scorer == nil {
		var ids []string
		for _, ex := range pos {
			if heldOut.HeldOut(ex.ID) {
				ids = append(ids, ex.ID)
			}
		}
		tally.AddUnscored(ids)
		return nil
	}

	var scored []crossval.Scored
	for _, ex := range pos {
		if heldOut.HeldOut(ex.ID) {
			scored = append(scored, crossval.Scored{ID: ex.ID, Score: scorer.Score(ex.Features), Positive: true})
		}
	}
	for _, ex := range neg {
		if heldOut.HeldOut(ex.ID) {
			scored = append(scored, crossval.Scored{ID: ex.ID, Score: scorer.Score(ex.Features)})
		}
	}
	tally.AddFold(scored, crossval.BestThreshold(scored, fallback))
	return nil
}

// storeReports records a report for every concept evaluated on all folds and
// still present. A concept edited during the run keeps its report stale.
func (e *Engine) storeReports(tallies map[string]*crossval.Tally, done map[string]int, folds int,
	startRevs map[string]uint64, fallback float64) []string {
	now := time.Now()
	e.mu.Lock()
	defer e.mu.Unlock()

	var written []string
	for id, tally := range tallies {
		if done[id] != folds || !e.graph.Has(id) {
			continue
		}
		e.reports[id] = tally.Report(fallback, now)
		if e.revisions[id] == startRevs[id] {
			delete(e.staleReports, id)
		}
		written = append(written, id)
	}
	sort.Strings(written)
	return written
}

// GetPerformanceEstimates returns the stored report of id.
func (e *Engine) GetPerformanceEstimates(id string) (model.ClassificationReport, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	r, ok := e.reports[id]
	if !ok {
		return model.ClassificationReport{}, model.NewError(model.KindConceptNotFound, "getPerformanceEstimates", id, nil)
	}
	return r, nil
}

// Reports returns every stored report sorted by concept id.
func (e *Engine) Reports() []model.ClassificationReport {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.ClassificationReport, 0, len(e.reports))
	for _, r := range e.reports {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ConceptID < out[j].ConceptID })
	return out
}

// RestoreReport installs a previously persisted report.
func (e *Engine) RestoreReport(r model.ClassificationReport) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.graph.Has(r.ConceptID) {
		return model.NewError(model.KindConceptNotFound, "restoreReport", r.ConceptID, nil)
	}
	e.reports[r.ConceptID] = r
	delete(e.staleReports, r.ConceptID)
	return nil
}
