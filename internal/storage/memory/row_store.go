package memory

import (
	"context"
	"sort"
	"sync"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// RowStore is an in-memory implementation of storage.RowStore.
type RowStore struct {
	name string

	mu    sync.RWMutex
	data  map[int]*domain.Row // keyed by index
	byKey map[string][]int
}

// NewRowStore creates an empty in-memory row table.
func NewRowStore(name string) *RowStore {
	return &RowStore{
		name:  name,
		data:  make(map[int]*domain.Row),
		byKey: make(map[string][]int),
	}
}

// Name returns the table name.
func (s *RowStore) Name() string { return s.name }

// Rebuild drops every row.
func (s *RowStore) Rebuild(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.data = make(map[int]*domain.Row)
	s.byKey = make(map[string][]int)
	return nil
}

// InsertBulk adds rows. Fails entire batch on duplicate index.
func (s *RowStore) InsertBulk(_ context.Context, rows []*domain.Row) error {
	if len(rows) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	batch := make(map[int]struct{}, len(rows))
	for _, r := range rows {
		if r == nil || r.Index < 0 {
			return storage.ErrInvalidInput
		}
		if _, exists := s.data[r.Index]; exists {
			return storage.ErrDuplicateKey
		}
		if _, exists := batch[r.Index]; exists {
			return storage.ErrDuplicateKey
		}
		batch[r.Index] = struct{}{}
	}

	for _, r := range rows {
		s.data[r.Index] = r.Clone()
		if r.Key != "" {
			s.byKey[r.Key] = append(s.byKey[r.Key], r.Index)
		}
	}
	return nil
}

// Count returns the number of rows.
func (s *RowStore) Count(_ context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.data), nil
}

// Iterate snapshots rows with index >= from.
func (s *RowStore) Iterate(_ context.Context, from int) (storage.RowCursor, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows := make([]*domain.Row, 0, len(s.data))
	for idx, r := range s.data {
		if idx >= from {
			rows = append(rows, r.Clone())
		}
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Index < rows[j].Index })
	return &sliceCursor{rows: rows, pos: -1}, nil
}

// Get returns the row at index.
func (s *RowStore) Get(_ context.Context, index int) (*domain.Row, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.data[index]
	if !ok {
		return nil, storage.ErrNotFound
	}
	return r.Clone(), nil
}

// IndicesByKey returns every index carrying key, ordered ASC.
func (s *RowStore) IndicesByKey(_ context.Context, key string) ([]int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]int, len(s.byKey[key]))
	copy(out, s.byKey[key])
	sort.Ints(out)
	return out, nil
}

type sliceCursor struct {
	rows []*domain.Row
	pos  int
}

func (c *sliceCursor) Next() bool {
	if c.pos+1 >= len(c.rows) {
		c.pos = len(c.rows)
		return false
	}
	c.pos++
	return true
}

func (c *sliceCursor) Row() *domain.Row {
	if c.pos < 0 || c.pos >= len(c.rows) {
		return nil
	}
	return c.rows[c.pos]
}

func (c *sliceCursor) Err() error { return nil }

func (c *sliceCursor) Close() { c.rows = nil }

var _ storage.RowStore = (*RowStore)(nil)
