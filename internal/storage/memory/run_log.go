package memory

import (
	"context"
	"sort"
	"sync"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// RunLog is an in-memory implementation of storage.RunLog.
type RunLog struct {
	mu   sync.RWMutex
	runs []domain.StageRun
}

// NewRunLog creates an empty run log.
func NewRunLog() *RunLog {
	return &RunLog{}
}

// Record stores a finished stage run.
func (l *RunLog) Record(_ context.Context, run domain.StageRun) error {
	if run.RunID == "" || run.Stage == "" {
		return storage.ErrInvalidInput
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, r := range l.runs {
		if r.RunID == run.RunID && r.Stage == run.Stage {
			return storage.ErrDuplicateKey
		}
	}
	l.runs = append(l.runs, run)
	return nil
}

// List returns the runs of a series ordered by start time, then stage.
func (l *RunLog) List(_ context.Context, series string) ([]domain.StageRun, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.StageRun
	for _, r := range l.runs {
		if r.Series == series {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].StartedAt.Equal(out[j].StartedAt) {
			return out[i].StartedAt.Before(out[j].StartedAt)
		}
		return out[i].Stage < out[j].Stage
	})
	return out, nil
}

var _ storage.RunLog = (*RunLog)(nil)
