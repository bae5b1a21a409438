package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	taste "github.com/eugener/tasteworker/internal"
)

// CreateRun inserts a new job run.
func (s *Store) CreateRun(ctx context.Context, run *taste.Run) error {
	_, err := s.write.ExecContext(ctx,
		`INSERT INTO runs (id, workers, how_many, started_at) VALUES (?, ?, ?, ?)`,
		run.ID, run.Workers, run.HowMany, run.StartedAt.UTC().Format(time.RFC3339Nano),
	)
	return err
}

// FinishRun records the final counters and finish time of a run.
func (s *Store) FinishRun(ctx context.Context, run *taste.Run) error {
	var finished any
	if run.FinishedAt != nil {
		finished = run.FinishedAt.UTC().Format(time.RFC3339Nano)
	}
	res, err := s.write.ExecContext(ctx,
		`UPDATE runs SET processed = ?, failed = ?, abandoned = ?, finished_at = ? WHERE id = ?`,
		run.Processed, run.Failed, run.Abandoned, finished, run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return taste.ErrNotFound
	}
	return nil
}

// GetRun returns a run by ID.
func (s *Store) GetRun(ctx context.Context, id string) (*taste.Run, error) {
	var (
		r         taste.Run
		startedAt string
		finished  sql.NullString
	)
	err := s.read.QueryRowContext(ctx,
		`SELECT id, workers, how_many, processed, failed, abandoned, started_at, finished_at
		 FROM runs WHERE id = ?`, id,
	).Scan(&r.ID, &r.Workers, &r.HowMany, &r.Processed, &r.Failed, &r.Abandoned, &startedAt, &finished)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, taste.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if t, e := time.Parse(time.RFC3339Nano, startedAt); e == nil {
		r.StartedAt = t
	}
	if finished.Valid {
		if t, e := time.Parse(time.RFC3339Nano, finished.String); e == nil {
			r.FinishedAt = &t
		}
	}
	return &r, nil
}
