// Package sqlite stores the derived series tables in a single SQLite file.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"modernc.org/sqlite"

	"market-state-lab/internal/storage"
)

// sqliteConstraint is the primary result code of every constraint violation.
const sqliteConstraint = 19

// DB wraps the SQLite handle for dependency injection.
type DB struct {
	*sql.DB
}

// Open opens or creates the database at path. One connection serializes every
// statement, matching the single-writer discipline of the stages.
func Open(ctx context.Context, path string) (*DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s: %w", pragma, err)
		}
	}
	if err := ensureRunLog(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	return &DB{DB: db}, nil
}

// NewTables creates the derived tables of a series on db.
func NewTables(db *DB, series string) storage.Tables {
	n := storage.NamesFor(series)
	return storage.Tables{
		Features:    NewRowStore(db, n.Features),
		Ranges:      NewRangeStore(db, n.Ranges),
		Continuous:  NewRowStore(db, n.Continuous),
		Discrete:    NewRowStore(db, n.Discrete),
		Transitions: NewTransitionStore(db, n.Transitions),
	}
}

// isDuplicateKeyError checks if error is a primary key or unique violation.
func isDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	var e *sqlite.Error
	if errors.As(err, &e) {
		return e.Code()&0xff == sqliteConstraint &&
			(strings.Contains(e.Error(), "UNIQUE") || strings.Contains(e.Error(), "PRIMARY KEY"))
	}
	return false
}

// quote returns name as a double-quoted SQLite identifier.
func quote(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// withTx runs fn in a transaction and commits when it returns nil.
func (db *DB) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
