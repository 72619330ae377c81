package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// RangeStore implements storage.RangeStore using PostgreSQL.
type RangeStore struct {
	pool  *Pool
	name  string
	ident string
}

// NewRangeStore creates a RangeStore for table name.
func NewRangeStore(pool *Pool, name string) *RangeStore {
	return &RangeStore{pool: pool, name: name, ident: quote(name)}
}

// Compile-time interface check.
var _ storage.RangeStore = (*RangeStore)(nil)

// Name returns the table name.
func (s *RangeStore) Name() string { return s.name }

// Rebuild drops and recreates the table.
func (s *RangeStore) Rebuild(ctx context.Context) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.ident)); err != nil {
		return fmt.Errorf("drop %s: %w", s.name, err)
	}
	if _, err := tx.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			feature  text NOT NULL,
			period   integer NOT NULL,
			kind     text NOT NULL CHECK (kind IN ('min', 'max')),
			value    double precision NOT NULL,
			idx      integer NOT NULL
		)`, s.ident)); err != nil {
		return fmt.Errorf("create %s: %w", s.name, err)
	}
	return tx.Commit(ctx)
}

// InsertBulk copies samples into the table.
func (s *RangeStore) InsertBulk(ctx context.Context, samples []domain.RangeSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, r := range samples {
		if r.Feature == "" || !r.Kind.Valid() || r.Period <= 0 {
			return storage.ErrInvalidInput
		}
	}

	_, err := s.pool.CopyFrom(ctx, pgx.Identifier{s.name},
		[]string{"feature", "period", "kind", "value", "idx"},
		pgx.CopyFromSlice(len(samples), func(i int) ([]any, error) {
			r := samples[i]
			return []any{r.Feature, int32(r.Period), string(r.Kind), r.Value, int32(r.Index)}, nil
		}))
	if err != nil {
		return fmt.Errorf("copy into %s: %w", s.name, err)
	}
	return nil
}

// Count returns the number of samples.
func (s *RangeStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return int(n), nil
}

// Aggregate groups samples by feature and kind across every period.
func (s *RangeStore) Aggregate(ctx context.Context) ([]domain.RangeStat, error) {
	query := fmt.Sprintf(`
		SELECT feature, kind, avg(value), coalesce(stddev_pop(value), 0), count(*)
		FROM %s
		GROUP BY feature, kind
		ORDER BY feature COLLATE "C", kind COLLATE "C"
	`, s.ident)

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", s.name, err)
	}
	defer rows.Close()

	var stats []domain.RangeStat
	for rows.Next() {
		var (
			st    domain.RangeStat
			kind  string
			count int64
		)
		if err := rows.Scan(&st.Feature, &kind, &st.Mean, &st.StdDev, &count); err != nil {
			return nil, fmt.Errorf("scan range stat: %w", err)
		}
		st.Kind = domain.RangeKind(kind)
		st.Count = int(count)
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate range stats: %w", err)
	}
	return stats, nil
}
