package storage

import "errors"

// Every backend maps its driver errors onto these, so stages and tests can
// match with errors.Is regardless of where a table lives.
var (
	// ErrNotFound: no row at the requested index.
	ErrNotFound = errors.New("storage: row not found")

	// ErrDuplicateKey: the bar timestamp, row index, transition (input key, index)
	// or run (run ID, stage) is already stored.
	ErrDuplicateKey = errors.New("storage: key already stored")

	// ErrInvalidInput: a record that no table accepts, such as an empty key.
	ErrInvalidInput = errors.New("storage: invalid record")
)
