package canopy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/hejijunhao/canopy/internal/engine"
	"github.com/hejijunhao/canopy/internal/engine/classifier"
	"github.com/hejijunhao/canopy/internal/engine/crossval"
	"github.com/hejijunhao/canopy/internal/engine/features"
	"github.com/hejijunhao/canopy/internal/engine/linear"
	"github.com/hejijunhao/canopy/internal/engine/taxonomy"
	"github.com/hejijunhao/canopy/internal/engine/trainer"
	"github.com/hejijunhao/canopy/internal/model"
	"github.com/hejijunhao/canopy/internal/store"
)

// Classifier is a hierarchical topic classifier. Safe for concurrent use.
type Classifier struct {
	engine    *engine.Engine
	extractor Extractor
	ownsExt   bool         // extractor was built by New
	store     *store.Store // nil without WithDatabase
}

// New creates a Classifier. With WithDatabase, the stored taxonomy, models,
// reports and last successful training time are loaded, and every run is
// recorded.
func New(opts ...Option) (*Classifier, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	fitter, err := linear.NewFitter(o.fitterKind, o.params)
	if err != nil {
		return nil, fmt.Errorf("canopy: %w", err)
	}
	sampler, ok := trainer.SamplerByName(o.sampler, o.maxNegatives)
	if !ok {
		return nil, fmt.Errorf("canopy: unknown negative sampler %q", o.sampler)
	}

	c := &Classifier{}
	cleanup := func() {
		if c.store != nil {
			c.store.Close()
		}
		if c.ownsExt {
			features.Close(c.extractor)
		}
	}

	var st store.State
	if o.dbDriver != "" {
		driver, err := store.ParseDriver(o.dbDriver)
		if err != nil {
			return nil, fmt.Errorf("canopy: %w", err)
		}
		if c.store, err = store.OpenStore(driver, o.dbPath); err != nil {
			return nil, fmt.Errorf("canopy: %w", err)
		}
		if st, err = c.store.LoadState(context.Background()); err != nil {
			cleanup()
			return nil, fmt.Errorf("canopy: %w", err)
		}
	}

	c.extractor = o.extractor
	if c.extractor == nil {
		if modelPath, vocabPath, ok := resolvePaths(o); ok {
			onnx, err := features.NewONNX(modelPath, vocabPath, o.runtimePath)
			if err != nil {
				cleanup()
				return nil, fmt.Errorf("canopy: %w", err)
			}
			c.extractor = onnx
		} else {
			c.extractor = features.NewHashing(1<<20, true)
		}
		c.ownsExt = true
	}

	graph, err := taxonomy.FromEdges(st.Edges())
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("canopy: stored taxonomy: %w", err)
	}

	schemeID := o.schemeID
	if schemeID == "" {
		schemeID = st.SchemeID
	}
	ts := o.trainingSet
	if ts == nil && c.store != nil {
		ts = c.store
	}

	c.engine, err = engine.New(engine.Options{
		SchemeID:    schemeID,
		Languages:   o.languages,
		Graph:       graph,
		Extractor:   c.extractor,
		TrainingSet: ts,
		Trainer:     trainer.New(fitter, sampler, o.workers),
		Classifier:  classifier.New(o.minScore, o.maxResults),
		CrossVal:    crossval.Info{FoldIndex: o.foldIndex, FoldCount: o.foldCount},
		AllFolds:    o.allFolds,
		ReadOnly:    o.readOnly,
	})
	if err != nil {
		cleanup()
		return nil, fmt.Errorf("canopy: %w", err)
	}

	if c.store != nil {
		if err := c.restore(st); err != nil {
			cleanup()
			return nil, err
		}
		c.engine.OnRun(c.recordRun)
	}
	return c, nil
}

func (c *Classifier) restore(st store.State) error {
	for _, m := range st.Models {
		if err := c.engine.RestoreModel(m); err != nil {
			return fmt.Errorf("canopy: restore model: %w", err)
		}
	}
	for _, r := range st.Reports {
		if err := c.engine.RestoreReport(r); err != nil {
			return fmt.Errorf("canopy: restore report: %w", err)
		}
	}
	runs, err := c.store.Runs(context.Background(), 0)
	if err != nil {
		return fmt.Errorf("canopy: %w", err)
	}
	for _, r := range runs {
		if r.Kind == "train" && r.Error == "" {
			c.engine.RestoreLastRun(r.StartedAt)
			break
		}
	}
	return nil
}

func (c *Classifier) recordRun(rs engine.RunStats) {
	r := store.Run{
		ID:          rs.ID,
		Kind:        rs.Kind,
		Incremental: rs.Incremental,
		Refit:       len(rs.Refit),
		Skipped:     len(rs.Skipped),
		StartedAt:   rs.Started,
		FinishedAt:  rs.Finished,
	}
	if rs.Err != nil {
		r.Error = rs.Err.Error()
	}
	if err := c.store.RecordRun(context.Background(), r); err != nil {
		slog.Warn("canopy: record run failed", "run", rs.ID, "error", err)
	}
}

// SchemeID returns the concept scheme identifier.
func (c *Classifier) SchemeID() string { return c.engine.GetSchemeID() }

// AcceptedLanguages returns the languages queries may be in.
func (c *Classifier) AcceptedLanguages() []string { return c.engine.GetAcceptedLanguages() }

// IsUpdatable reports whether the taxonomy, training set and models may change.
func (c *Classifier) IsUpdatable() bool { return c.engine.IsUpdatable() }

// SuggestTopics ranks the concepts for text in the default language.
func (c *Classifier) SuggestTopics(ctx context.Context, text string) ([]TopicSuggestion, error) {
	return c.engine.SuggestTopics(ctx, text)
}

// SuggestTopicsIn ranks the concepts for text in lang.
func (c *Classifier) SuggestTopicsIn(ctx context.Context, text, lang string) ([]TopicSuggestion, error) {
	return c.engine.SuggestTopicsIn(ctx, text, lang)
}

// SuggestTopicsN is SuggestTopicsIn with a per-call limit overriding
// WithMaxSuggestions; 0 means unlimited. An empty lang is the default language.
func (c *Classifier) SuggestTopicsN(ctx context.Context, text, lang string, limit int) ([]TopicSuggestion, error) {
	return c.engine.SuggestTopicsN(ctx, text, lang, limit)
}

// BroaderConcepts returns the direct broader concepts of id.
func (c *Classifier) BroaderConcepts(id string) ([]string, error) {
	return c.engine.GetBroaderConcepts(id)
}

// NarrowerConcepts returns the direct narrower concepts of id.
func (c *Classifier) NarrowerConcepts(id string) ([]string, error) {
	return c.engine.GetNarrowerConcepts(id)
}

// RootConcepts returns the concepts without a broader concept.
func (c *Classifier) RootConcepts() []string { return c.engine.GetRootConcepts() }

// Concepts returns every concept sorted by id.
func (c *Classifier) Concepts() []Concept { return c.engine.Concepts() }

// AddConcept adds id under broader, or replaces its broader concepts if it
// already exists.
func (c *Classifier) AddConcept(id string, broader []string) error {
	return c.engine.AddConcept(id, broader)
}

// RemoveConcept removes id. Its narrower concepts stay attached to their
// other broader concepts, or become roots.
func (c *Classifier) RemoveConcept(id string) error {
	return c.engine.RemoveConcept(id)
}

// LoadTaxonomy adds every concept of a YAML taxonomy file, broader concepts
// first. It returns the number of concepts added.
func (c *Classifier) LoadTaxonomy(path string) (int, error) {
	_, f, err := taxonomy.LoadFile(path)
	if err != nil {
		return 0, model.NewError(model.KindClassifier, "loadTaxonomy", "", err)
	}
	edges, err := taxonomy.Edges(f.Concepts)
	if err != nil {
		return 0, model.NewError(model.KindClassifier, "loadTaxonomy", "", err)
	}
	order, err := taxonomy.Order(edges)
	if err != nil {
		return 0, model.NewError(model.KindClassifier, "loadTaxonomy", "", err)
	}
	for i, id := range order {
		if err := c.engine.AddConcept(id, edges[id]); err != nil {
			return i, err
		}
	}
	return len(order), nil
}

// SetTrainingSet replaces the training set. Every model becomes dirty.
func (c *Classifier) SetTrainingSet(ts TrainingSet) error {
	return c.engine.SetTrainingSet(ts)
}

// AddExamples stores labelled examples in the database.
func (c *Classifier) AddExamples(ctx context.Context, examples ...TrainingExample) error {
	if c.store == nil {
		return model.NewError(model.KindTrainingSetUnavailable, "addExamples", "", errors.New("no database configured"))
	}
	if err := c.store.AddExamples(ctx, examples...); err != nil {
		return model.NewError(model.KindClassifier, "addExamples", "", err)
	}
	return nil
}

// RemoveExample deletes an example from the database. It reports whether
// the example existed.
func (c *Classifier) RemoveExample(ctx context.Context, id string) (bool, error) {
	if c.store == nil {
		return false, model.NewError(model.KindTrainingSetUnavailable, "removeExample", "", errors.New("no database configured"))
	}
	ok, err := c.store.RemoveExample(ctx, id)
	if err != nil {
		return false, model.NewError(model.KindClassifier, "removeExample", "", err)
	}
	return ok, nil
}

// Runs returns the recorded training and evaluation runs, newest first.
// limit <= 0 returns all of them.
func (c *Classifier) Runs(ctx context.Context, limit int) ([]Run, error) {
	if c.store == nil {
		return nil, nil
	}
	return c.store.Runs(ctx, limit)
}

// Model describes the published model of id. ok is false when the concept
// has no model yet.
func (c *Classifier) Model(id string) (info ModelInfo, ok bool) {
	m, ok := c.engine.Model(id)
	if !ok {
		return ModelInfo{}, false
	}
	return ModelInfo{
		ConceptID: m.ConceptID,
		Kind:      m.Kind,
		Version:   m.Version,
		Dirty:     m.Dirty,
		Positives: m.Positives,
		Negatives: m.Negatives,
		TrainedAt: m.TrainedAt,
	}, true
}

// UpdateModel trains the per-concept models and returns how many were refit.
func (c *Classifier) UpdateModel(ctx context.Context, incremental bool) (int, error) {
	return c.engine.UpdateModel(ctx, incremental)
}

// DirtyConcepts returns the concepts whose model is missing or outdated.
func (c *Classifier) DirtyConcepts() []string { return c.engine.DirtyConcepts() }

// SetCrossValidationInfo changes the held-out fold. foldCount 0 disables
// cross-validation.
func (c *Classifier) SetCrossValidationInfo(foldIndex, foldCount int) error {
	return c.engine.SetCrossValidationInfo(foldIndex, foldCount)
}

// UpdatePerformanceEstimates evaluates the concepts on the held-out fold and
// returns how many reports were written.
func (c *Classifier) UpdatePerformanceEstimates(ctx context.Context, incremental bool) (int, error) {
	return c.engine.UpdatePerformanceEstimates(ctx, incremental)
}

// PerformanceEstimates returns the report of one concept.
func (c *Classifier) PerformanceEstimates(id string) (ClassificationReport, error) {
	return c.engine.GetPerformanceEstimates(id)
}

// Reports returns every report sorted by concept id.
func (c *Classifier) Reports() []ClassificationReport { return c.engine.Reports() }

// Save writes the taxonomy, models and reports to the database.
func (c *Classifier) Save(ctx context.Context) error {
	if c.store == nil {
		return errors.New("canopy: save: no database configured")
	}
	return c.store.SaveState(ctx, store.State{
		SchemeID: c.engine.GetSchemeID(),
		Concepts: c.engine.Concepts(),
		Models:   c.engine.Models(),
		Reports:  c.engine.Reports(),
	})
}

// Close releases the database and any extractor New built itself.
func (c *Classifier) Close() error {
	var errs []error
	if c.ownsExt {
		if err := features.Close(c.extractor); err != nil {
			errs = append(errs, err)
		}
	}
	if c.store != nil {
		if err := c.store.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
