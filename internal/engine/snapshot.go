package engine

import (
	"maps"
	"sort"

	"github.com/hejijunhao/canopy/internal/model"
)

// snapshot is an immutable view of the published models. A change builds a
// new snapshot and swaps it in whole.
type snapshot struct {
	byID    map[string]*model.PerConceptModel
	ordered []*model.PerConceptModel // sorted by concept id
}

var emptySnapshot = newSnapshot(map[string]*model.PerConceptModel{})

func newSnapshot(byID map[string]*model.PerConceptModel) *snapshot {
	ordered := make([]*model.PerConceptModel, 0, len(byID))
	for _, m := range byID {
		ordered = append(ordered, m)
	}
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ConceptID < ordered[j].ConceptID })
	return &snapshot{byID: byID, ordered: ordered}
}

// publish applies mutate to a copy of the current model set and swaps it in.
// Callers hold mu so concurrent publishes cannot lose updates.
func (e *Engine) publish(mutate func(map[string]*model.PerConceptModel)) {
	next := maps.Clone(e.models.Load().byID)
	mutate(next)
	e.models.Store(newSnapshot(next))
}

// nextVersion returns the version for a new model of id. Versions keep
// increasing across discards. Callers hold mu.
func (e *Engine) nextVersion(id string) uint64 {
	e.versions[id]++
	return e.versions[id]
}

// Models returns the published models sorted by concept id.
func (e *Engine) Models() []*model.PerConceptModel {
	snap := e.models.Load()
	out := make([]*model.PerConceptModel, len(snap.ordered))
	copy(out, snap.ordered)
	return out
}

// Model returns the published model of id.
func (e *Engine) Model(id string) (*model.PerConceptModel, bool) {
	m, ok := e.models.Load().byID[id]
	return m, ok
}

// RestoreModel publishes a previously persisted model. The concept must
// exist. The model's dirty flag is kept, and later versions of the concept
// continue from m.Version.
func (e *Engine) RestoreModel(m *model.PerConceptModel) error {
	if m == nil || m.Scorer == nil {
		return model.NewError(model.KindClassifier, "restoreModel", "", model.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.graph.Has(m.ConceptID) {
		return model.NewError(model.KindConceptNotFound, "restoreModel", m.ConceptID, nil)
	}
	if m.Version > e.versions[m.ConceptID] {
		e.versions[m.ConceptID] = m.Version
	}
	if m.Dirty {
		e.dirty[m.ConceptID] = struct{}{}
	} else {
		delete(e.dirty, m.ConceptID)
	}
	e.publish(func(ms map[string]*model.PerConceptModel) { ms[m.ConceptID] = m })
	return nil
}
