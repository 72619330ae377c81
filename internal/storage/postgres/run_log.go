package postgres

import (
	"context"
	"fmt"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// RunLog implements storage.RunLog on the pipeline_runs table.
type RunLog struct {
	pool *Pool
}

// NewRunLog creates a RunLog.
func NewRunLog(pool *Pool) *RunLog {
	return &RunLog{pool: pool}
}

// Compile-time interface check.
var _ storage.RunLog = (*RunLog)(nil)

// Record stores a finished stage run. Returns ErrDuplicateKey if (run_id, stage) exists.
func (l *RunLog) Record(ctx context.Context, run domain.StageRun) error {
	if run.RunID == "" || run.Stage == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO pipeline_runs (
			run_id, series, stage, status, rows_written, error, started_at, finished_at
		) VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := l.pool.Exec(ctx, query,
		run.RunID, run.Series, run.Stage, run.Status, int32(run.Rows), run.Error, run.StartedAt, run.FinishedAt)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// List returns the runs of a series ordered by start time, then stage.
func (l *RunLog) List(ctx context.Context, series string) ([]domain.StageRun, error) {
	query := `
		SELECT run_id::text, series, stage, status, rows_written, error, started_at, finished_at
		FROM pipeline_runs
		WHERE series = $1
		ORDER BY started_at ASC, stage ASC
	`

	rows, err := l.pool.Query(ctx, query, series)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.StageRun
	for rows.Next() {
		var (
			r    domain.StageRun
			nrow int32
		)
		if err := rows.Scan(&r.RunID, &r.Series, &r.Stage, &r.Status, &nrow, &r.Error, &r.StartedAt, &r.FinishedAt); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.Rows = int(nrow)
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}
