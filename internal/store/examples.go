package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/hejijunhao/canopy/internal/model"
)

// AddExamples inserts or replaces examples in one transaction. Every concept
// an example gains or loses is recorded as changed.
func (s *Store) AddExamples(ctx context.Context, examples ...model.TrainingExample) error {
	for _, ex := range examples {
		if ex.ID == "" {
			return model.NewError(model.KindClassifier, "addExample", "", model.ErrInvalidArgument)
		}
		if err := ex.Features.Validate(); err != nil {
			return model.NewError(model.KindClassifier, "addExample", ex.ID, fmt.Errorf("%w: %w", model.ErrInvalidArgument, err))
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	var seq int64
	if err := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(seq), 0) FROM examples`).Scan(&seq); err != nil {
		return fmt.Errorf("store: next sequence: %w", err)
	}

	var changed []string
	for _, ex := range examples {
		old, err := exampleConcepts(ctx, tx, ex.ID)
		if err != nil {
			return err
		}
		changed = append(changed, old...)

		var features any
		if !ex.Features.IsZero() {
			b, err := json.Marshal(ex.Features)
			if err != nil {
				return fmt.Errorf("store: encode features of %s: %w", ex.ID, err)
			}
			features = string(b)
		}

		seq++
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO examples (id, seq, text, features) VALUES (?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET text = excluded.text, features = excluded.features`,
			ex.ID, seq, ex.Text, features); err != nil {
			return fmt.Errorf("store: save example %s: %w", ex.ID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM example_concepts WHERE example_id = ?`, ex.ID); err != nil {
			return fmt.Errorf("store: clear labels of %s: %w", ex.ID, err)
		}
		for _, c := range uniq(ex.Concepts) {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO example_concepts (example_id, concept_id) VALUES (?, ?)`, ex.ID, c); err != nil {
				return fmt.Errorf("store: label %s with %s: %w", ex.ID, c, err)
			}
		}
		changed = append(changed, ex.Concepts...)
	}
	if err := touch(ctx, tx, s.now().UnixNano(), uniq(changed)); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// RemoveExample deletes the example with id and reports whether it existed.
func (s *Store) RemoveExample(ctx context.Context, id string) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("store: begin: %w", err)
	}
	defer tx.Rollback()

	concepts, err := exampleConcepts(ctx, tx, id)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx, `DELETE FROM examples WHERE id = ?`, id)
	if err != nil {
		return false, fmt.Errorf("store: delete example %s: %w", id, err)
	}
	n, _ := res.RowsAffected()
	if _, err := tx.ExecContext(ctx, `DELETE FROM example_concepts WHERE example_id = ?`, id); err != nil {
		return false, fmt.Errorf("store: delete labels of %s: %w", id, err)
	}
	if err := touch(ctx, tx, s.now().UnixNano(), uniq(concepts)); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("store: commit: %w", err)
	}
	return n > 0, nil
}

// ExamplesFor returns the examples labelled with conceptID in insertion
// order, each with its full label set.
func (s *Store) ExamplesFor(ctx context.Context, conceptID string) ([]model.TrainingExample, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT e.id, e.text, e.features
		FROM examples e
		JOIN example_concepts l ON l.example_id = e.id
		WHERE l.concept_id = ?
		ORDER BY e.seq`, conceptID)
	if err != nil {
		return nil, fmt.Errorf("store: examples for %s: %w", conceptID, err)
	}

	var out []model.TrainingExample
	for rows.Next() {
		var (
			ex       model.TrainingExample
			text     sql.NullString
			features sql.NullString
		)
		if err := rows.Scan(&ex.ID, &text, &features); err != nil {
			rows.Close()
			return nil, fmt.Errorf("store: scan example: %w", err)
		}
		ex.Text = text.String
		if features.Valid && features.String != "" {
			if err := json.Unmarshal([]byte(features.String), &ex.Features); err != nil {
				rows.Close()
				return nil, fmt.Errorf("store: decode features of %s: %w", ex.ID, err)
			}
		}
		out = append(out, ex)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: examples for %s: %w", conceptID, err)
	}

	for i := range out {
		labels, err := exampleConcepts(ctx, s.db, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Concepts = labels
	}
	return out, nil
}

// UpdatedConcepts returns the concepts whose examples changed at or after
// since, sorted.
func (s *Store) UpdatedConcepts(ctx context.Context, since time.Time) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT concept_id FROM concept_changes WHERE changed_at >= ? ORDER BY concept_id`, since.UnixNano())
	if err != nil {
		return nil, fmt.Errorf("store: updated concepts: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan concept: %w", err)
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// CountExamples returns the number of stored examples.
func (s *Store) CountExamples(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM examples`).Scan(&n); err != nil {
		return 0, fmt.Errorf("store: count examples: %w", err)
	}
	return n, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func exampleConcepts(ctx context.Context, q querier, exampleID string) ([]string, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT concept_id FROM example_concepts WHERE example_id = ? ORDER BY concept_id`, exampleID)
	if err != nil {
		return nil, fmt.Errorf("store: labels of %s: %w", exampleID, err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var c string
		if err := rows.Scan(&c); err != nil {
			return nil, fmt.Errorf("store: scan label: %w", err)
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func touch(ctx context.Context, e execer, now int64, concepts []string) error {
	for _, c := range concepts {
		if _, err := e.ExecContext(ctx, `
			INSERT INTO concept_changes (concept_id, changed_at) VALUES (?, ?)
			ON CONFLICT (concept_id) DO UPDATE SET changed_at = excluded.changed_at`, c, now); err != nil {
			return fmt.Errorf("store: record change of %s: %w", c, err)
		}
	}
	return nil
}

func uniq(ids []string) []string {
	out := append([]string(nil), ids...)
	sort.Strings(out)
	n := 0
	for i, id := range out {
		if i == 0 || id != out[n-1] {
			out[n] = id
			n++
		}
	}
	return out[:n]
}
