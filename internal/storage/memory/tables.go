package memory

import "market-state-lab/internal/storage"

// NewTables creates in-memory derived tables for a series.
func NewTables(series string) storage.Tables {
	n := storage.NamesFor(series)
	return storage.Tables{
		Features:    NewRowStore(n.Features),
		Ranges:      NewRangeStore(n.Ranges),
		Continuous:  NewRowStore(n.Continuous),
		Discrete:    NewRowStore(n.Discrete),
		Transitions: NewTransitionStore(n.Transitions),
	}
}
