// Package engine is the classifier core: it owns the taxonomy, the published
// per-concept models and the cross-validation reports, and serialises
// training jobs against hierarchy edits.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"

	"github.com/hejijunhao/canopy/internal/engine/classifier"
	"github.com/hejijunhao/canopy/internal/engine/crossval"
	"github.com/hejijunhao/canopy/internal/engine/features"
	"github.com/hejijunhao/canopy/internal/engine/linear"
	"github.com/hejijunhao/canopy/internal/engine/taxonomy"
	"github.com/hejijunhao/canopy/internal/engine/trainer"
	"github.com/hejijunhao/canopy/internal/model"
)

// Options wires an Engine. Zero values select defaults.
type Options struct {
	SchemeID    string
	Languages   []string // BCP 47; defaults to English
	Graph       *taxonomy.Graph
	Extractor   features.Extractor
	TrainingSet trainer.TrainingSet
	Trainer     *trainer.Trainer
	Classifier  *classifier.Classifier
	CrossVal    crossval.Info
	AllFolds    bool // evaluate every fold and pool the counts
	ReadOnly    bool
}

// Engine is safe for concurrent use. Queries read an immutable model
// snapshot and never block on training.
type Engine struct {
	schemeID  string
	languages []language.Tag
	matcher   language.Matcher
	extractor features.Extractor
	trainer   *trainer.Trainer
	ranker    *classifier.Classifier
	readOnly  bool
	allFolds  bool
	log       *slog.Logger

	// mu guards everything below; models is written only while holding it.
	mu           sync.RWMutex
	graph        *taxonomy.Graph
	training     trainer.TrainingSet
	dirty        map[string]struct{}
	revisions    map[string]uint64
	versions     map[string]uint64
	reports      map[string]model.ClassificationReport
	staleReports map[string]struct{}
	cv           crossval.Info
	lastRun      time.Time
	observers    []RunObserver

	models atomic.Pointer[snapshot]
	busy   atomic.Bool
}

// New builds an Engine.
func New(o Options) (*Engine, error) {
	langs := o.Languages
	if len(langs) == 0 {
		langs = []string{"en"}
	}
	tags := make([]language.Tag, 0, len(langs))
	for _, l := range langs {
		tag, err := language.Parse(l)
		if err != nil {
			return nil, fmt.Errorf("engine: language %q: %w", l, err)
		}
		tags = append(tags, tag)
	}
	if err := o.CrossVal.Validate(); err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}

	g := o.Graph
	if g == nil {
		g = taxonomy.New()
	}
	tr := o.Trainer
	if tr == nil {
		tr = trainer.New(&linear.LogisticFitter{Params: linear.DefaultParams()}, nil, 1)
	}
	ranker := o.Classifier
	if ranker == nil {
		ranker = classifier.New(nil, 0)
	}

	e := &Engine{
		schemeID:     o.SchemeID,
		languages:    tags,
		matcher:      language.NewMatcher(tags),
		extractor:    o.Extractor,
		trainer:      tr,
		ranker:       ranker,
		readOnly:     o.ReadOnly,
		allFolds:     o.AllFolds,
		log:          slog.Default().With("component", "engine"),
		graph:        g,
		training:     o.TrainingSet,
		dirty:        make(map[string]struct{}),
		revisions:    make(map[string]uint64),
		versions:     make(map[string]uint64),
		reports:      make(map[string]model.ClassificationReport),
		staleReports: make(map[string]struct{}),
		cv:           o.CrossVal,
	}
	for _, id := range g.Concepts() {
		e.dirty[id] = struct{}{}
	}
	e.models.Store(emptySnapshot)
	return e, nil
}

// GetSchemeID returns the identifier of the concept scheme.
func (e *Engine) GetSchemeID() string { return e.schemeID }

// GetAcceptedLanguages returns the BCP 47 tags queries may use.
func (e *Engine) GetAcceptedLanguages() []string {
	out := make([]string, len(e.languages))
	for i, t := range e.languages {
		out[i] = t.String()
	}
	return out
}

// IsUpdatable reports whether the hierarchy and models may be changed.
func (e *Engine) IsUpdatable() bool { return !e.readOnly }

// SuggestTopics ranks concepts for text in the default language.
func (e *Engine) SuggestTopics(ctx context.Context, text string) ([]model.TopicSuggestion, error) {
	return e.suggest(ctx, text, e.languages[0].String(), e.ranker.Limit)
}

// SuggestTopicsIn ranks concepts for text written in lang.
func (e *Engine) SuggestTopicsIn(ctx context.Context, text, lang string) ([]model.TopicSuggestion, error) {
	return e.suggest(ctx, text, lang, e.ranker.Limit)
}

// SuggestTopicsN is SuggestTopicsIn with a per-call result limit; limit 0
// means unlimited. An empty lang selects the default language.
func (e *Engine) SuggestTopicsN(ctx context.Context, text, lang string, limit int) ([]model.TopicSuggestion, error) {
	if lang == "" {
		lang = e.languages[0].String()
	}
	return e.suggest(ctx, text, lang, limit)
}

func (e *Engine) suggest(ctx context.Context, text, lang string, limit int) ([]model.TopicSuggestion, error) {
	const op = "suggestTopics"
	if err := e.checkLanguage(lang); err != nil {
		return nil, err
	}
	if !utf8.ValidString(text) || strings.TrimSpace(text) == "" {
		return nil, model.NewError(model.KindClassifier, op, "", model.ErrMalformedText)
	}

	snap := e.models.Load()
	if len(snap.ordered) == 0 {
		return nil, model.NewError(model.KindClassifier, op, "", model.ErrModelUnavailable)
	}
	if e.extractor == nil {
		return nil, model.NewError(model.KindClassifier, op, "",
			fmt.Errorf("%w: no extractor configured", model.ErrExtraction))
	}

	x, err := e.extractor.Extract(ctx, text)
	if err != nil {
		return nil, model.NewError(model.KindClassifier, op, "", fmt.Errorf("%w: %w", model.ErrExtraction, err))
	}
	return e.ranker.ClassifyN(x, snap.ordered, limit), nil
}

func (e *Engine) checkLanguage(lang string) error {
	tag, err := language.Parse(lang)
	if err != nil {
		return model.NewError(model.KindUnsupportedLanguage, "suggestTopics", "", fmt.Errorf("%q: %w", lang, err))
	}
	if _, _, conf := e.matcher.Match(tag); conf == language.No {
		return model.NewError(model.KindUnsupportedLanguage, "suggestTopics", "", fmt.Errorf("%q", lang))
	}
	return nil
}

// GetBroaderConcepts returns the direct broader concepts of id.
func (e *Engine) GetBroaderConcepts(id string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Broader(id)
}

// GetNarrowerConcepts returns the direct narrower concepts of id.
func (e *Engine) GetNarrowerConcepts(id string) ([]string, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Narrower(id)
}

// GetRootConcepts returns the concepts without broader concepts.
func (e *Engine) GetRootConcepts() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Roots()
}

// Concept returns id with its direct neighbours.
func (e *Engine) Concept(id string) (model.Concept, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.graph.Concept(id)
}

// Concepts returns every concept with its direct neighbours, sorted by id.
func (e *Engine) Concepts() []model.Concept {
	e.mu.RLock()
	defer e.mu.RUnlock()
	ids := e.graph.Concepts()
	out := make([]model.Concept, 0, len(ids))
	for _, id := range ids {
		c, err := e.graph.Concept(id)
		if err == nil {
			out = append(out, c)
		}
	}
	return out
}

// AddConcept inserts id under broader, or re-points an existing concept.
// The concept and the broader concepts before and after the edit are marked
// dirty. Models of narrower concepts are left untouched.
func (e *Engine) AddConcept(id string, broader []string) error {
	if e.readOnly {
		return model.NewError(model.KindClassifier, "addConcept", id, model.ErrNotUpdatable)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	affected := []string{}
	if old, err := e.graph.Broader(id); err == nil {
		affected = append(affected, old...)
	}
	replaced, err := e.graph.AddConcept(id, broader)
	if err != nil {
		return err
	}

	affected = append(affected, id)
	affected = append(affected, broader...)
	e.markDirty(affected...)
	e.log.Debug("concept added", "concept", id, "broader", broader, "replaced", replaced)
	return nil
}

// RemoveConcept deletes id. Its model and report are dropped; narrower
// concepts stay in place and, like the former broader concepts, become
// dirty.
func (e *Engine) RemoveConcept(id string) error {
	if e.readOnly {
		return model.NewError(model.KindClassifier, "removeConcept", id, model.ErrNotUpdatable)
	}
	e.mu.Lock()
	defer e.mu.Unlock()

	if !e.graph.Has(id) {
		return model.NewError(model.KindConceptNotFound, "removeConcept", id, nil)
	}
	affected, _ := e.graph.Broader(id)
	for d := range e.graph.Descendants(id) {
		affected = append(affected, d)
	}
	if err := e.graph.RemoveConcept(id); err != nil {
		return err
	}

	delete(e.dirty, id)
	delete(e.revisions, id)
	delete(e.reports, id)
	delete(e.staleReports, id)
	e.publish(func(m map[string]*model.PerConceptModel) { delete(m, id) })
	e.markDirty(affected...)
	e.log.Debug("concept removed", "concept", id)
	return nil
}

// SetTrainingSet replaces the training-set provider and marks every concept
// dirty.
func (e *Engine) SetTrainingSet(ts trainer.TrainingSet) error {
	if e.readOnly {
		return model.NewError(model.KindClassifier, "setTrainingSet", "", model.ErrNotUpdatable)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.training = ts
	e.lastRun = time.Time{}
	e.markDirty(e.graph.Concepts()...)
	return nil
}

// DirtyConcepts returns the concepts whose model is stale, sorted.
func (e *Engine) DirtyConcepts() []string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]string, 0, len(e.dirty))
	for id := range e.dirty {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// markDirty flags ids as stale and bumps their revision. Published models of
// those concepts are re-published with Dirty set. Callers hold mu.
func (e *Engine) markDirty(ids ...string) {
	var touched []string
	for _, id := range ids {
		if !e.graph.Has(id) {
			continue
		}
		e.revisions[id]++
		e.dirty[id] = struct{}{}
		e.staleReports[id] = struct{}{}
		if m, ok := e.models.Load().byID[id]; ok && !m.Dirty {
			touched = append(touched, id)
		}
	}
	if len(touched) == 0 {
		return
	}
	e.publish(func(m map[string]*model.PerConceptModel) {
		for _, id := range touched {
			m[id] = m[id].WithDirty(true)
		}
	})
}
