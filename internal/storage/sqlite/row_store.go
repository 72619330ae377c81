package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// pageSize bounds each cursor query so no statement holds the connection
// while callers issue their own queries between rows.
const pageSize = 512

// RowStore implements storage.RowStore on one SQLite table. Values are stored
// as a JSON array.
type RowStore struct {
	db    *DB
	name  string
	ident string
}

// NewRowStore creates a RowStore for table name.
func NewRowStore(db *DB, name string) *RowStore {
	return &RowStore{db: db, name: name, ident: quote(name)}
}

// Compile-time interface check.
var _ storage.RowStore = (*RowStore)(nil)

// Name returns the table name.
func (s *RowStore) Name() string { return s.name }

// Rebuild drops and recreates the table.
func (s *RowStore) Rebuild(ctx context.Context) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmts := []string{
			fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.ident),
			fmt.Sprintf(`
				CREATE TABLE %s (
					idx        INTEGER PRIMARY KEY,
					ts         INTEGER NOT NULL,
					open       REAL NOT NULL,
					high       REAL NOT NULL,
					low        REAL NOT NULL,
					close      REAL NOT NULL,
					vals       TEXT NOT NULL,
					state_key  TEXT NOT NULL DEFAULT ''
				)`, s.ident),
			fmt.Sprintf(`CREATE INDEX %s ON %s (state_key)`, quote(s.name+"_key_idx"), s.ident),
		}
		for _, stmt := range stmts {
			if _, err := tx.ExecContext(ctx, stmt); err != nil {
				return fmt.Errorf("rebuild %s: %w", s.name, err)
			}
		}
		return nil
	})
}

// InsertBulk adds rows atomically. Fails entire batch on duplicate index.
func (s *RowStore) InsertBulk(ctx context.Context, rows []*domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r == nil || r.Index < 0 {
			return storage.ErrInvalidInput
		}
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(`
			INSERT INTO %s (idx, ts, open, high, low, close, vals, state_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		`, s.ident))
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range rows {
			vals, err := encodeValues(r.Values)
			if err != nil {
				return err
			}
			if _, err := stmt.ExecContext(ctx, r.Index, r.Timestamp, r.Open, r.High, r.Low, r.Close, vals, r.Key); err != nil {
				if isDuplicateKeyError(err) {
					return storage.ErrDuplicateKey
				}
				return fmt.Errorf("insert row %d: %w", r.Index, err)
			}
		}
		return nil
	})
}

// Count returns the number of rows.
func (s *RowStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return n, nil
}

// Iterate pages through rows with index >= from.
func (s *RowStore) Iterate(ctx context.Context, from int) (storage.RowCursor, error) {
	return &pageCursor{ctx: ctx, store: s, next: from}, nil
}

// Get returns the row at index.
func (s *RowStore) Get(ctx context.Context, index int) (*domain.Row, error) {
	query := fmt.Sprintf(`
		SELECT idx, ts, open, high, low, close, vals, state_key
		FROM %s WHERE idx = ?
	`, s.ident)

	r, err := scanRow(s.db.QueryRowContext(ctx, query, index))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s[%d]: %w", s.name, index, err)
	}
	return r, nil
}

// IndicesByKey returns every index carrying key, ordered ASC.
func (s *RowStore) IndicesByKey(ctx context.Context, key string) ([]int, error) {
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`SELECT idx FROM %s WHERE state_key = ? ORDER BY idx`, s.ident), key)
	if err != nil {
		return nil, fmt.Errorf("indices by key: %w", err)
	}
	defer rows.Close()

	var out []int
	for rows.Next() {
		var idx int
		if err := rows.Scan(&idx); err != nil {
			return nil, fmt.Errorf("scan index: %w", err)
		}
		out = append(out, idx)
	}
	return out, rows.Err()
}

// page loads up to pageSize rows with index >= from.
func (s *RowStore) page(ctx context.Context, from int) ([]*domain.Row, error) {
	query := fmt.Sprintf(`
		SELECT idx, ts, open, high, low, close, vals, state_key
		FROM %s WHERE idx >= ? ORDER BY idx LIMIT ?
	`, s.ident)

	rows, err := s.db.QueryContext(ctx, query, from, pageSize)
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.name, err)
	}
	defer rows.Close()

	var out []*domain.Row
	for rows.Next() {
		r, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("scan row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRow(sc scanner) (*domain.Row, error) {
	var (
		r    domain.Row
		vals string
	)
	if err := sc.Scan(&r.Index, &r.Timestamp, &r.Open, &r.High, &r.Low, &r.Close, &vals, &r.Key); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(vals), &r.Values); err != nil {
		return nil, fmt.Errorf("decode values of row %d: %w", r.Index, err)
	}
	return &r, nil
}

func encodeValues(v []float64) (string, error) {
	if v == nil {
		v = []float64{}
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("%w: encode values: %v", storage.ErrInvalidInput, err)
	}
	return string(b), nil
}

// pageCursor walks a table page by page using the last seen index as the key.
type pageCursor struct {
	ctx   context.Context
	store *RowStore
	next  int
	buf   []*domain.Row
	pos   int
	cur   *domain.Row
	done  bool
	err   error
}

func (c *pageCursor) Next() bool {
	if c.err != nil || c.done {
		return false
	}
	if c.pos >= len(c.buf) {
		page, err := c.store.page(c.ctx, c.next)
		if err != nil {
			c.err = err
			return false
		}
		if len(page) == 0 {
			c.done = true
			return false
		}
		c.buf, c.pos = page, 0
		c.next = page[len(page)-1].Index + 1
	}
	c.cur = c.buf[c.pos]
	c.pos++
	return true
}

func (c *pageCursor) Row() *domain.Row { return c.cur }

func (c *pageCursor) Err() error { return c.err }

func (c *pageCursor) Close() {
	c.done = true
	c.buf = nil
}
