package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

var rowColumns = []string{"idx", "ts", "open", "high", "low", "close", "vals", "state_key"}

// RowStore implements storage.RowStore on one table named after the series.
type RowStore struct {
	pool  *Pool
	name  string
	ident string
}

// NewRowStore creates a RowStore for table name.
func NewRowStore(pool *Pool, name string) *RowStore {
	return &RowStore{pool: pool, name: name, ident: quote(name)}
}

// Compile-time interface check.
var _ storage.RowStore = (*RowStore)(nil)

// Name returns the table name.
func (s *RowStore) Name() string { return s.name }

// Rebuild drops and recreates the table.
func (s *RowStore) Rebuild(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	stmts := []string{
		fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.ident),
		fmt.Sprintf(`
			CREATE TABLE %s (
				idx        integer PRIMARY KEY,
				ts         bigint NOT NULL,
				open       double precision NOT NULL,
				high       double precision NOT NULL,
				low        double precision NOT NULL,
				close      double precision NOT NULL,
				vals       double precision[] NOT NULL,
				state_key  text NOT NULL DEFAULT ''
			)`, s.ident),
		fmt.Sprintf(`CREATE INDEX ON %s (state_key)`, s.ident),
	}
	for _, stmt := range stmts {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("rebuild %s: %w", s.name, err)
		}
	}
	return tx.Commit(ctx)
}

// InsertBulk copies rows into the table. Fails entire batch on duplicate index.
func (s *RowStore) InsertBulk(ctx context.Context, rows []*domain.Row) error {
	if len(rows) == 0 {
		return nil
	}
	for _, r := range rows {
		if r == nil || r.Index < 0 {
			return storage.ErrInvalidInput
		}
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.name}, rowColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			vals := r.Values
			if vals == nil {
				vals = []float64{}
			}
			return []any{int32(r.Index), r.Timestamp, r.Open, r.High, r.Low, r.Close, vals, r.Key}, nil
		}))
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("copy into %s: %w", s.name, err)
	}
	return nil
}

// Count returns the number of rows.
func (s *RowStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return int(n), nil
}

// Iterate streams rows with index >= from.
func (s *RowStore) Iterate(ctx context.Context, from int) (storage.RowCursor, error) {
	query := fmt.Sprintf(`
		SELECT idx, ts, open, high, low, close, vals, state_key
		FROM %s
		WHERE idx >= $1
		ORDER BY idx ASC
	`, s.ident)

	rows, err := s.pool.Query(ctx, query, int32(from))
	if err != nil {
		return nil, fmt.Errorf("iterate %s: %w", s.name, err)
	}
	return &rowCursor{rows: rows}, nil
}

// Get returns the row at index.
func (s *RowStore) Get(ctx context.Context, index int) (*domain.Row, error) {
	query := fmt.Sprintf(`
		SELECT idx, ts, open, high, low, close, vals, state_key
		FROM %s
		WHERE idx = $1
	`, s.ident)

	r, err := scanRow(s.pool.QueryRow(ctx, query, int32(index)))
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get %s[%d]: %w", s.name, index, err)
	}
	return r, nil
}

// IndicesByKey returns every index carrying key, ordered ASC.
func (s *RowStore) IndicesByKey(ctx context.Context, key string) ([]int, error) {
	query := fmt.Sprintf(`SELECT idx FROM %s WHERE state_key = $1 ORDER BY idx ASC`, s.ident)

	rows, err := s.pool.Query(ctx, query, key)
	if err != nil {
		return nil, fmt.Errorf("indices by key: %w", err)
	}
	idx, err := pgx.CollectRows(rows, pgx.RowTo[int32])
	if err != nil {
		return nil, fmt.Errorf("collect indices: %w", err)
	}

	out := make([]int, len(idx))
	for i, v := range idx {
		out[i] = int(v)
	}
	return out, nil
}

func scanRow(row pgx.Row) (*domain.Row, error) {
	var (
		r   domain.Row
		idx int32
	)
	if err := row.Scan(&idx, &r.Timestamp, &r.Open, &r.High, &r.Low, &r.Close, &r.Values, &r.Key); err != nil {
		return nil, err
	}
	r.Index = int(idx)
	return &r, nil
}

// rowCursor adapts pgx.Rows to storage.RowCursor.
type rowCursor struct {
	rows pgx.Rows
	cur  *domain.Row
	err  error
}

func (c *rowCursor) Next() bool {
	if c.err != nil || !c.rows.Next() {
		return false
	}
	r, err := scanRow(c.rows)
	if err != nil {
		c.err = fmt.Errorf("scan row: %w", err)
		c.rows.Close()
		return false
	}
	c.cur = r
	return true
}

func (c *rowCursor) Row() *domain.Row { return c.cur }

func (c *rowCursor) Err() error {
	if c.err != nil {
		return c.err
	}
	return c.rows.Err()
}

func (c *rowCursor) Close() { c.rows.Close() }
