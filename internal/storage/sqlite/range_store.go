package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"math"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// RangeStore implements storage.RangeStore using SQLite.
type RangeStore struct {
	db    *DB
	name  string
	ident string
}

// NewRangeStore creates a RangeStore for table name.
func NewRangeStore(db *DB, name string) *RangeStore {
	return &RangeStore{db: db, name: name, ident: quote(name)}
}

// Compile-time interface check.
var _ storage.RangeStore = (*RangeStore)(nil)

// Name returns the table name.
func (s *RangeStore) Name() string { return s.name }

// Rebuild drops and recreates the table.
func (s *RangeStore) Rebuild(ctx context.Context) error {
	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.ident)); err != nil {
			return fmt.Errorf("drop %s: %w", s.name, err)
		}
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`
			CREATE TABLE %s (
				feature  TEXT NOT NULL,
				period   INTEGER NOT NULL,
				kind     TEXT NOT NULL CHECK (kind IN ('min', 'max')),
				value    REAL NOT NULL,
				idx      INTEGER NOT NULL
			)`, s.ident)); err != nil {
			return fmt.Errorf("create %s: %w", s.name, err)
		}
		return nil
	})
}

// InsertBulk adds samples atomically.
func (s *RangeStore) InsertBulk(ctx context.Context, samples []domain.RangeSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, r := range samples {
		if r.Feature == "" || !r.Kind.Valid() || r.Period <= 0 {
			return storage.ErrInvalidInput
		}
	}

	return s.db.withTx(ctx, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, fmt.Sprintf(
			`INSERT INTO %s (feature, period, kind, value, idx) VALUES (?, ?, ?, ?, ?)`, s.ident))
		if err != nil {
			return fmt.Errorf("prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, r := range samples {
			if _, err := stmt.ExecContext(ctx, r.Feature, r.Period, string(r.Kind), r.Value, r.Index); err != nil {
				return fmt.Errorf("insert range sample: %w", err)
			}
		}
		return nil
	})
}

// Count returns the number of samples.
func (s *RangeStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return n, nil
}

// Aggregate groups samples by feature and kind across every period. SQLite has
// no stddev aggregate, so the population deviation is derived from avg(v) and avg(v*v).
func (s *RangeStore) Aggregate(ctx context.Context) ([]domain.RangeStat, error) {
	query := fmt.Sprintf(`
		SELECT feature, kind, avg(value), avg(value * value), count(*)
		FROM %s
		GROUP BY feature, kind
		ORDER BY feature, kind
	`, s.ident)

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", s.name, err)
	}
	defer rows.Close()

	var stats []domain.RangeStat
	for rows.Next() {
		var (
			st        domain.RangeStat
			kind      string
			meanOfSqr float64
		)
		if err := rows.Scan(&st.Feature, &kind, &st.Mean, &meanOfSqr, &st.Count); err != nil {
			return nil, fmt.Errorf("scan range stat: %w", err)
		}
		st.Kind = domain.RangeKind(kind)
		st.StdDev = math.Sqrt(math.Max(0, meanOfSqr-st.Mean*st.Mean))
		stats = append(stats, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate range stats: %w", err)
	}
	return stats, nil
}
