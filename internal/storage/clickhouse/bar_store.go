package clickhouse

import (
	"context"
	"fmt"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// BarStore implements storage.BarStore on the shared ohlc_bars table.
// MergeTree does not enforce uniqueness, so duplicates are checked before insert.
type BarStore struct {
	conn   *Conn
	series string
}

// NewBarStore creates a BarStore for one series.
func NewBarStore(conn *Conn, series string) *BarStore {
	return &BarStore{conn: conn, series: series}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds bars. Fails entire batch on duplicate timestamp.
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	// Check for intra-batch duplicates
	seen := make(map[int64]struct{}, len(bars))
	timestamps := make([]int64, 0, len(bars))
	for _, b := range bars {
		if b == nil {
			return storage.ErrInvalidInput
		}
		if _, exists := seen[b.Timestamp]; exists {
			return storage.ErrDuplicateKey
		}
		seen[b.Timestamp] = struct{}{}
		timestamps = append(timestamps, b.Timestamp)
	}

	// Check for duplicates against existing rows
	var existing uint64
	err := s.conn.QueryRow(ctx, `
		SELECT count(*) FROM ohlc_bars FINAL
		WHERE series = ? AND ts IN (?)
	`, s.series, timestamps).Scan(&existing)
	if err != nil {
		return fmt.Errorf("check exists: %w", err)
	}
	if existing > 0 {
		return storage.ErrDuplicateKey
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO ohlc_bars (series, ts, open, high, low, close, volume)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, b := range bars {
		if err := batch.Append(s.series, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// Load returns the bars of the series ordered by timestamp and indexed from 0.
func (s *BarStore) Load(ctx context.Context) ([]*domain.Bar, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT ts, open, high, low, close, volume
		FROM ohlc_bars FINAL
		WHERE series = ?
		ORDER BY ts ASC
	`, s.series)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

	return scanBars(rows)
}

// Count returns the number of bars of the series.
func (s *BarStore) Count(ctx context.Context) (int, error) {
	var n uint64
	if err := s.conn.QueryRow(ctx, `SELECT count(*) FROM ohlc_bars FINAL WHERE series = ?`, s.series).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	return int(n), nil
}

func scanBars(rows chRows) ([]*domain.Bar, error) {
	var bars []*domain.Bar
	for rows.Next() {
		b := &domain.Bar{Index: len(bars)}
		if err := rows.Scan(&b.Timestamp, &b.Open, &b.High, &b.Low, &b.Close, &b.Volume); err != nil {
			return nil, fmt.Errorf("scan bar: %w", err)
		}
		bars = append(bars, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate bars: %w", err)
	}
	return bars, nil
}
