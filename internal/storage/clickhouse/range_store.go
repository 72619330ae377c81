package clickhouse

import (
	"context"
	"fmt"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// RangeStore implements storage.RangeStore on one MergeTree table.
type RangeStore struct {
	conn  *Conn
	name  string
	ident string
}

// NewRangeStore creates a RangeStore for table name.
func NewRangeStore(conn *Conn, name string) *RangeStore {
	return &RangeStore{conn: conn, name: name, ident: quote(name)}
}

// Compile-time interface check.
var _ storage.RangeStore = (*RangeStore)(nil)

// Name returns the table name.
func (s *RangeStore) Name() string { return s.name }

// Rebuild drops and recreates the table.
func (s *RangeStore) Rebuild(ctx context.Context) error {
	if err := s.conn.Exec(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS %s`, s.ident)); err != nil {
		return fmt.Errorf("drop %s: %w", s.name, err)
	}
	err := s.conn.Exec(ctx, fmt.Sprintf(`
		CREATE TABLE %s (
			feature  String,
			period   UInt32,
			kind     Enum8('min' = 1, 'max' = 2),
			value    Float64,
			idx      UInt64
		) ENGINE = MergeTree()
		ORDER BY (feature, kind, idx)
		SETTINGS index_granularity = 8192
	`, s.ident))
	if err != nil {
		return fmt.Errorf("create %s: %w", s.name, err)
	}
	return nil
}

// InsertBulk appends samples in one batch.
func (s *RangeStore) InsertBulk(ctx context.Context, samples []domain.RangeSample) error {
	if len(samples) == 0 {
		return nil
	}
	for _, r := range samples {
		if r.Feature == "" || !r.Kind.Valid() || r.Period <= 0 || r.Index < 0 {
			return storage.ErrInvalidInput
		}
	}

	batch, err := s.conn.PrepareBatch(ctx, fmt.Sprintf(
		`INSERT INTO %s (feature, period, kind, value, idx)`, s.ident))
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, r := range samples {
		if err := batch.Append(r.Feature, uint32(r.Period), string(r.Kind), r.Value, uint64(r.Index)); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}
	return nil
}

// Count returns the number of samples.
func (s *RangeStore) Count(ctx context.Context) (int, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, fmt.Sprintf(`SELECT count(*) FROM %s`, s.ident)).Scan(&n); err != nil {
		return 0, fmt.Errorf("count %s: %w", s.name, err)
	}
	return int(n), nil
}

// Aggregate groups samples by feature and kind across every period.
func (s *RangeStore) Aggregate(ctx context.Context) ([]domain.RangeStat, error) {
	rows, err := s.conn.Query(ctx, fmt.Sprintf(`
		SELECT feature, toString(kind) AS k, avg(value), stddevPop(value), count()
		FROM %s
		GROUP BY feature, k
		ORDER BY feature, k
	`, s.ident))
	if err != nil {
		return nil, fmt.Errorf("aggregate %s: %w", s.name, err)
	}
	defer rows.Close()

	return scanRangeStats(rows)
}

func scanRangeStats(rows chRows) ([]domain.RangeStat, error) {
	var stats []domain.RangeStat
	for rows.Next() {
		var (
			st    domain.RangeStat
			kind  string
			count uint64
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
