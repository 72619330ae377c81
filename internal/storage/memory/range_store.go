package memory

import (
	"context"
	"sync"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/ranges"
	"market-state-lab/internal/storage"
)

// RangeStore is an in-memory implementation of storage.RangeStore.
type RangeStore struct {
	name string

	mu      sync.RWMutex
	samples []domain.RangeSample
}

// NewRangeStore creates an empty in-memory range table.
func NewRangeStore(name string) *RangeStore {
	return &RangeStore{name: name}
}

// Name returns the table name.
func (s *RangeStore) Name() string { return s.name }

// Rebuild drops every sample.
func (s *RangeStore) Rebuild(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = nil
	return nil
}

// InsertBulk appends samples. Samples are raw occurrences, so there is no key to collide.
func (s *RangeStore) InsertBulk(_ context.Context, samples []domain.RangeSample) error {
	for _, r := range samples {
		if r.Feature == "" || !r.Kind.Valid() || r.Period <= 0 {
			return storage.ErrInvalidInput
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.samples = append(s.samples, samples...)
	return nil
}

// Count returns the number of samples.
func (s *RangeStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.samples), nil
}

// Aggregate computes per-feature, per-kind statistics over every stored sample.
func (s *RangeStore) Aggregate(_ context.Context) ([]domain.RangeStat, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return ranges.Aggregate(s.samples), nil
}

var _ storage.RangeStore = (*RangeStore)(nil)
