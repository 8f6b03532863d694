package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Run is the persisted summary of one training or evaluation job.
type Run struct {
	ID          string    `json:"id"`
	Kind        string    `json:"kind"`
	Incremental bool      `json:"incremental"`
	Refit       int       `json:"refit"`
	Skipped     int       `json:"skipped"`
	Error       string    `json:"error,omitempty"`
	StartedAt   time.Time `json:"started_at"`
	FinishedAt  time.Time `json:"finished_at"`
}

// RecordRun stores r.
func (s *Store) RecordRun(ctx context.Context, r Run) error {
	var errText any
	if r.Error != "" {
		errText = r.Error
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, incremental, refit, skipped, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Kind, boolInt(r.Incremental), r.Refit, r.Skipped, errText,
		r.StartedAt.UnixNano(), r.FinishedAt.UnixNano())
	if err != nil {
		return fmt.Errorf("store: record run %s: %w", r.ID, err)
	}
	return nil
}

// Runs returns the most recent runs, newest first. limit <= 0 returns all.
func (s *Store) Runs(ctx context.Context, limit int) ([]Run, error) {
	q := `SELECT id, kind, incremental, refit, skipped, error, started_at, finished_at
		FROM runs ORDER BY started_at DESC, id`
	args := []any{}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: list runs: %w", err)
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			r                 Run
			incremental       int
			errText           sql.NullString
			started, finished int64
		)
		if err := rows.Scan(&r.ID, &r.Kind, &incremental, &r.Refit, &r.Skipped, &errText, &started, &finished); err != nil {
			return nil, fmt.Errorf("store: scan run: %w", err)
		}
		r.Incremental = incremental != 0
		r.Error = errText.String
		r.StartedAt = time.Unix(0, started)
		r.FinishedAt = time.Unix(0, finished)
		out = append(out, r)
	}
	return out, rows.Err()
}
