package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

func ensureRunLog(ctx context.Context, db *sql.DB) error {
	_, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pipeline_runs (
			run_id        TEXT NOT NULL,
			series        TEXT NOT NULL,
			stage         TEXT NOT NULL,
			status        TEXT NOT NULL,
			rows_written  INTEGER NOT NULL DEFAULT 0,
			error         TEXT NOT NULL DEFAULT '',
			started_at    INTEGER NOT NULL,
			finished_at   INTEGER NOT NULL,
			PRIMARY KEY (run_id, stage)
		)`)
	if err != nil {
		return fmt.Errorf("ensure pipeline_runs: %w", err)
	}
	return nil
}

// RunLog implements storage.RunLog on the pipeline_runs table. Times are stored
// as Unix nanoseconds.
type RunLog struct {
	db *DB
}

// NewRunLog creates a RunLog.
func NewRunLog(db *DB) *RunLog {
	return &RunLog{db: db}
}

// Compile-time interface check.
var _ storage.RunLog = (*RunLog)(nil)

// Record stores a finished stage run.
func (l *RunLog) Record(ctx context.Context, run domain.StageRun) error {
	if run.RunID == "" || run.Stage == "" {
		return storage.ErrInvalidInput
	}
	_, err := l.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (run_id, series, stage, status, rows_written, error, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, run.RunID, run.Series, run.Stage, run.Status, run.Rows, run.Error,
		run.StartedAt.UnixNano(), run.FinishedAt.UnixNano())
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
	rows, err := l.db.QueryContext(ctx, `
		SELECT run_id, series, stage, status, rows_written, error, started_at, finished_at
		FROM pipeline_runs WHERE series = ?
		ORDER BY started_at, stage
	`, series)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []domain.StageRun
	for rows.Next() {
		var (
			r                 domain.StageRun
			started, finished int64
		)
		if err := rows.Scan(&r.RunID, &r.Series, &r.Stage, &r.Status, &r.Rows, &r.Error, &started, &finished); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt = time.Unix(0, started).UTC()
		r.FinishedAt = time.Unix(0, finished).UTC()
		runs = append(runs, r)
	}
	return runs, rows.Err()
}
