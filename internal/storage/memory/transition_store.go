package memory

import (
	"context"
	"sort"
	"sync"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

type transitionKey struct {
	input string
	index int
}

// TransitionStore is an in-memory implementation of storage.TransitionStore.
type TransitionStore struct {
	name string

	mu      sync.RWMutex
	data    map[transitionKey]domain.Transition
	byInput map[string][]int
}

// NewTransitionStore creates an empty in-memory transition table.
func NewTransitionStore(name string) *TransitionStore {
	return &TransitionStore{
		name:    name,
		data:    make(map[transitionKey]domain.Transition),
		byInput: make(map[string][]int),
	}
}

// Name returns the table name.
func (s *TransitionStore) Name() string { return s.name }

// Ensure is a no-op: the table exists from construction on.
func (s *TransitionStore) Ensure(_ context.Context) error { return nil }

// InsertBulk adds records. Fails entire batch on duplicate (input key, index).
func (s *TransitionStore) InsertBulk(_ context.Context, records []domain.Transition) error {
	if len(records) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[transitionKey]struct{}, len(records))
	for _, r := range records {
		if r.InputKey == "" || r.OutputKey == "" || r.Index <= 0 {
			return storage.ErrInvalidInput
		}
		k := transitionKey{r.InputKey, r.Index}
		if _, exists := s.data[k]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[k]; exists {
			return storage.ErrDuplicateKey
		}
		batch[k] = struct{}{}
	}

	for _, r := range records {
		s.data[transitionKey{r.InputKey, r.Index}] = r
		s.byInput[r.InputKey] = append(s.byInput[r.InputKey], r.Index)
	}
	return nil
}

// ExistsInput reports whether key was already mined.
func (s *TransitionStore) ExistsInput(_ context.Context, key string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byInput[key]) > 0, nil
}

// Count returns the number of records.
func (s *TransitionStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// GetByInput returns the records of one input key ordered by index ASC.
func (s *TransitionStore) GetByInput(_ context.Context, key string) ([]domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transition, 0, len(s.byInput[key]))
	for _, idx := range s.byInput[key] {
		out = append(out, s.data[transitionKey{key, idx}])
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

// All returns every record ordered by input key, then index.
func (s *TransitionStore) All(_ context.Context) ([]domain.Transition, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Transition, 0, len(s.data))
	for _, r := range s.data {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].InputKey != out[j].InputKey {
			return out[i].InputKey < out[j].InputKey
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

var _ storage.TransitionStore = (*TransitionStore)(nil)
