package engine

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/hejijunhao/canopy/internal/engine/taxonomy"
	"github.com/hejijunhao/canopy/internal/engine/trainer"
	"github.com/hejijunhao/canopy/internal/model"
)

// RunStats describes one completed or aborted training job.
type RunStats struct {
	ID          string
	Kind        string // "train" or "evaluate"
	Incremental bool
	Refit       []string
	Skipped     []string
	Started     time.Time
	Finished    time.Time
	Err         error
}

// RunObserver is notified after every training job.
type RunObserver func(RunStats)

// OnRun registers fn to be called after every training or evaluation job.
func (e *Engine) OnRun(fn RunObserver) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.observers = append(e.observers, fn)
}

func (e *Engine) notify(st RunStats) {
	e.mu.RLock()
	obs := append([]RunObserver(nil), e.observers...)
	e.mu.RUnlock()
	for _, fn := range obs {
		fn(st)
	}
}

// begin claims the single training slot.
func (e *Engine) begin(op string) error {
	if !e.busy.CompareAndSwap(false, true) {
		return model.NewError(model.KindTrainingInProgress, op, "", nil)
	}
	return nil
}

func (e *Engine) end() { e.busy.Store(false) }

// UpdateModel refits per-concept models and returns the number refit.
//
// From scratch, every concept is fit without warm start and models of
// concepts that ended up without positives are dropped once the run
// succeeds. Incrementally, only dirty concepts and concepts the training set
// reports as changed since the last successful run are refit, continuing
// from their current weights; other models keep their version.
//
// Each fit is published as soon as it completes, so an error or
// cancellation keeps the concepts already refit.
func (e *Engine) UpdateModel(ctx context.Context, incremental bool) (int, error) {
	const op = "updateModel"
	if e.readOnly {
		return 0, model.NewError(model.KindClassifier, op, "", model.ErrNotUpdatable)
	}
	if err := e.begin(op); err != nil {
		return 0, err
	}
	defer e.end()

	st := RunStats{ID: uuid.NewString(), Kind: "train", Incremental: incremental, Started: time.Now()}
	log := e.log.With("run", st.ID, "incremental", incremental)

	job, startRevs, err := e.prepareTraining(ctx, op, incremental)
	if err != nil {
		return 0, err
	}
	job.Commit = func(f trainer.Fit) { e.commit(f, startRevs, st.Started) }

	log.Info("training started", "targets", len(job.Targets))
	res, runErr := e.trainer.Run(ctx, job)

	e.mu.Lock()
	for _, id := range res.Skipped {
		if e.graph.Has(id) {
			e.dirty[id] = struct{}{}
		}
	}
	if runErr == nil {
		if !incremental && len(res.Skipped) > 0 {
			e.publish(func(m map[string]*model.PerConceptModel) {
				for _, id := range res.Skipped {
					delete(m, id)
				}
			})
		}
		e.lastRun = st.Started
	}
	e.mu.Unlock()

	st.Refit, st.Skipped, st.Finished = res.Refit, res.Skipped, time.Now()
	if runErr != nil {
		st.Err = wrapRunError(op, runErr)
		log.Error("training failed", "refit", len(res.Refit), "error", st.Err)
	} else {
		log.Info("training finished", "refit", len(res.Refit), "skipped", len(res.Skipped),
			"duration", st.Finished.Sub(st.Started))
	}
	e.notify(st)
	return len(res.Refit), st.Err
}

// RestoreLastRun records t as the start of the last successful training run
// so that incremental training after a restart only picks up concepts the
// ChangeTracker reports as changed since then. Earlier times are ignored.
func (e *Engine) RestoreLastRun(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if t.After(e.lastRun) {
		e.lastRun = t
	}
}

// prepareTraining snapshots the hierarchy and picks the targets under the
// writer lock.
func (e *Engine) prepareTraining(ctx context.Context, op string, incremental bool) (trainer.Job, map[string]uint64, error) {
	e.mu.RLock()
	ts := e.training
	lastRun := e.lastRun
	e.mu.RUnlock()
	if ts == nil {
		return trainer.Job{}, nil, model.NewError(model.KindTrainingSetUnavailable, op, "", errNoTrainingSet)
	}

	// Ask the training set for changes before taking the lock; it may be slow.
	var changed []string
	if tracker, ok := ts.(trainer.ChangeTracker); ok && incremental && !lastRun.IsZero() {
		ids, err := tracker.UpdatedConcepts(ctx, lastRun)
		if err != nil {
			return trainer.Job{}, nil, model.NewError(model.KindTrainingSetUnavailable, op, "", err)
		}
		changed = ids
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	graph := e.graph.Clone()
	if len(changed) > 0 {
		e.markDirty(changed...)
	}

	var targets []string
	if incremental {
		for id := range e.dirty {
			targets = append(targets, id)
		}
		sort.Strings(targets)
	} else {
		targets = graph.Concepts()
	}

	startRevs := make(map[string]uint64, len(targets))
	for _, id := range targets {
		startRevs[id] = e.revisions[id]
	}

	var warm map[string]model.Scorer
	if incremental {
		cur := e.models.Load()
		warm = make(map[string]model.Scorer, len(targets))
		for _, id := range targets {
			if m, ok := cur.byID[id]; ok {
				warm[id] = m.Scorer
			}
		}
	}

	return trainer.Job{
		Graph:    graph,
		Examples: trainer.NewExampleSet(ts, e.extractor),
		Targets:  targets,
		Warm:     warm,
	}, startRevs, nil
}

// commit publishes one fit. A fit for a concept removed while the job ran is
// dropped; a concept edited while the job ran stays dirty.
func (e *Engine) commit(f trainer.Fit, startRevs map[string]uint64, now time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.graph.Has(f.ConceptID) {
		e.log.Debug("fit dropped, concept removed", "concept", f.ConceptID)
		return
	}
	dirty := e.revisions[f.ConceptID] != startRevs[f.ConceptID]
	if !dirty {
		delete(e.dirty, f.ConceptID)
	}
	m := &model.PerConceptModel{
		ConceptID: f.ConceptID,
		Kind:      f.Scorer.Kind(),
		Version:   e.nextVersion(f.ConceptID),
		Scorer:    f.Scorer,
		Dirty:     dirty,
		Positives: f.Positives,
		Negatives: f.Negatives,
		TrainedAt: now,
	}
	e.publish(func(ms map[string]*model.PerConceptModel) { ms[f.ConceptID] = m })
}

var errNoTrainingSet = errors.New("no training set configured")

func errInvalid(err error) error {
	return fmt.Errorf("%w: %w", model.ErrInvalidArgument, err)
}

// wrapRunError keeps classifier errors as they are and files cancellation
// and anything else under the catch-all kind.
func wrapRunError(op string, err error) error {
	return model.NewError(model.KindClassifier, op, "", err)
}

var _ trainer.Hierarchy = (*taxonomy.Graph)(nil)
