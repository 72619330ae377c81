package memory

import (
	"context"
	"sort"
	"sync"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// BarStore is an in-memory implementation of storage.BarStore. It is a test
// double: configuration never selects it as a series source.
type BarStore struct {
	mu   sync.RWMutex
	data map[int64]domain.Bar // keyed by timestamp
}

// NewBarStore creates an empty in-memory bar store.
func NewBarStore() *BarStore {
	return &BarStore{data: make(map[int64]domain.Bar)}
}

// InsertBulk adds bars. Fails entire batch on duplicate timestamp.
func (s *BarStore) InsertBulk(_ context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[int64]struct{}, len(bars))
	for _, b := range bars {
		if b == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[b.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[b.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		batch[b.Timestamp] = struct{}{}
	}
	for _, b := range bars {
		s.data[b.Timestamp] = *b
	}
	return nil
}

// Load returns bars ordered by timestamp and re-indexed from 0.
func (s *BarStore) Load(_ context.Context) ([]*domain.Bar, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Bar, 0, len(s.data))
	for _, b := range s.data {
		bar := b
		out = append(out, &bar)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp < out[j].Timestamp })
	for i, b := range out {
		b.Index = i
	}
	return out, nil
}

// Count returns the number of bars.
func (s *BarStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

var _ storage.BarStore = (*BarStore)(nil)
