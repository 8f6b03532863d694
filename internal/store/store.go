package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hejijunhao/canopy/internal/engine/linear"
	"github.com/hejijunhao/canopy/internal/model"
)

// Store reads and writes classifier state. It also serves as a training set
// and change tracker over the stored examples.
type Store struct {
	db  Database
	now func() time.Time
}

// New wraps an open database.
func New(db Database) *Store {
	return &Store{db: db, now: time.Now}
}

// OpenStore opens the database at path and wraps it.
func OpenStore(driver Driver, path string) (*Store, error) {
	db, err := Open(driver, path)
	if err != nil {
		return nil, err
	}
	return New(db), nil
}

// DB returns the underlying database.
func (s *Store) DB() Database { return s.db }

// Close closes the database.
func (s *Store) Close() error { return s.db.Close() }

// State is the persisted classifier state, saved and loaded as a whole.
type State struct {
	SchemeID string
	Concepts []model.Concept
	Models   []*model.PerConceptModel
	Reports  []model.ClassificationReport
}

// Edges returns the concepts as id → broader ids, for rebuilding the graph.
func (st State) Edges() map[string][]string {
	edges := make(map[string][]string, len(st.Concepts))
	for _, c := range st.Concepts {
		edges[c.ID] = c.Broader
	}
	return edges
}

// SaveState replaces the stored taxonomy, models and reports in one
// transaction. Examples and runs are left alone.
func (s *Store) SaveState(ctx context.Context, st State) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	for _, q := range []string{
		`DELETE FROM concept_broader`,
		`DELETE FROM concepts`,
		`DELETE FROM models`,
		`DELETE FROM reports`,
	} {
		if _, err := tx.ExecContext(ctx, q); err != nil {
			return fmt.Errorf("store: clear state: %w", err)
		}
	}
	if err := setMeta(tx, "scheme_id", st.SchemeID); err != nil {
		return fmt.Errorf("store: save scheme: %w", err)
	}

	for _, c := range st.Concepts {
		if _, err := tx.ExecContext(ctx, `INSERT INTO concepts (id) VALUES (?)`, c.ID); err != nil {
			return fmt.Errorf("store: save concept %s: %w", c.ID, err)
		}
		for _, b := range c.Broader {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO concept_broader (concept_id, broader_id) VALUES (?, ?)`, c.ID, b); err != nil {
				return fmt.Errorf("store: save edge %s→%s: %w", c.ID, b, err)
			}
		}
	}

	for _, m := range st.Models {
		blob, err := m.Scorer.MarshalBinary()
		if err != nil {
			return fmt.Errorf("store: encode model %s: %w", m.ConceptID, err)
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO models (concept_id, kind, version, params, dirty, positives, negatives, trained_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			m.ConceptID, m.Kind, int64(m.Version), blob, boolInt(m.Dirty), m.Positives, m.Negatives,
			m.TrainedAt.UnixNano())
		if err != nil {
			return fmt.Errorf("store: save model %s: %w", m.ConceptID, err)
		}
	}

	for _, r := range st.Reports {
		body, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("store: encode report %s: %w", r.ConceptID, err)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO reports (concept_id, body, updated_at) VALUES (?, ?, ?)`,
			r.ConceptID, string(body), r.UpdatedAt.UnixNano()); err != nil {
			return fmt.Errorf("store: save report %s: %w", r.ConceptID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// LoadState reads the stored taxonomy, models and reports.
func (s *Store) LoadState(ctx context.Context) (State, error) {
	var st State
	err := s.db.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = 'scheme_id'`).Scan(&st.SchemeID)
	if err != nil && err != sql.ErrNoRows {
		return State{}, fmt.Errorf("store: load scheme: %w", err)
	}

	if st.Concepts, err = s.concepts(ctx); err != nil {
		return State{}, err
	}
	if st.Models, err = s.models(ctx); err != nil {
		return State{}, err
	}
	if st.Reports, err = s.reports(ctx); err != nil {
		return State{}, err
	}
	return st, nil
}

func (s *Store) concepts(ctx context.Context) ([]model.Concept, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM concepts ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: load concepts: %w", err)
	}
	byID := make(map[string]*model.Concept)
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan concept: %w", err)
		}
		byID[id] = &model.Concept{ID: id, Broader: []string{}, Narrower: []string{}}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load concepts: %w", err)
	}

	rows, err = s.db.QueryContext(ctx, `SELECT concept_id, broader_id FROM concept_broader ORDER BY concept_id, broader_id`)
	if err != nil {
		return nil, fmt.Errorf("store: load edges: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id, b string
		if err := rows.Scan(&id, &b); err != nil {
			return nil, fmt.Errorf("store: scan edge: %w", err)
		}
		c, okc := byID[id]
		p, okp := byID[b]
		if !okc || !okp {
			return nil, fmt.Errorf("store: edge %s→%s references a missing concept", id, b)
		}
		c.Broader = append(c.Broader, b)
		p.Narrower = append(p.Narrower, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: load edges: %w", err)
	}

	out := make([]model.Concept, 0, len(ids))
	for _, id := range ids {
		c := byID[id]
		sort.Strings(c.Narrower)
		out = append(out, *c)
	}
	return out, nil
}

func (s *Store) models(ctx context.Context) ([]*model.PerConceptModel, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT concept_id, kind, version, params, dirty, positives, negatives, trained_at
		FROM models ORDER BY concept_id`)
	if err != nil {
		return nil, fmt.Errorf("store: load models: %w", err)
	}
	defer rows.Close()

	var out []*model.PerConceptModel
	for rows.Next() {
		var (
			m         model.PerConceptModel
			version   int64
			blob      []byte
			dirty     int
			trainedAt int64
		)
		if err := rows.Scan(&m.ConceptID, &m.Kind, &version, &blob, &dirty, &m.Positives, &m.Negatives, &trainedAt); err != nil {
			return nil, fmt.Errorf("store: scan model: %w", err)
		}
		scorer, err := linear.Decode(m.Kind, blob)
		if err != nil {
			return nil, fmt.Errorf("store: decode model %s: %w", m.ConceptID, err)
		}
		m.Version = uint64(version)
		m.Scorer = scorer
		m.Dirty = dirty != 0
		m.TrainedAt = time.Unix(0, trainedAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}

func (s *Store) reports(ctx context.Context) ([]model.ClassificationReport, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT body FROM reports ORDER BY concept_id`)
	if err != nil {
		return nil, fmt.Errorf("store: load reports: %w", err)
	}
	defer rows.Close()

	var out []model.ClassificationReport
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, fmt.Errorf("store: scan report: %w", err)
		}
		var r model.ClassificationReport
		if err := json.Unmarshal([]byte(body), &r); err != nil {
			return nil, fmt.Errorf("store: decode report: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
