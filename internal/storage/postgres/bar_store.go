package postgres

import (
	"context"
	"fmt"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// BarStore implements storage.BarStore on the shared ohlc_bars table.
type BarStore struct {
	pool   *Pool
	series string
}

// NewBarStore creates a BarStore for one series.
func NewBarStore(pool *Pool, series string) *BarStore {
	return &BarStore{pool: pool, series: series}
}

// Compile-time interface check.
var _ storage.BarStore = (*BarStore)(nil)

// InsertBulk adds bars atomically. Fails entire batch on duplicate timestamp.
func (s *BarStore) InsertBulk(ctx context.Context, bars []*domain.Bar) error {
	if len(bars) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO ohlc_bars (series, ts, open, high, low, close, volume)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	for _, b := range bars {
		if b == nil {
			return storage.ErrInvalidInput
		}
		if _, err := tx.Exec(ctx, query, s.series, b.Timestamp, b.Open, b.High, b.Low, b.Close, b.Volume); err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert bar: %w", err)
		}
	}

	return tx.Commit(ctx)
}

// Load returns the bars of the series ordered by timestamp and indexed from 0.
func (s *BarStore) Load(ctx context.Context) ([]*domain.Bar, error) {
	query := `
		SELECT ts, open, high, low, close, volume
		FROM ohlc_bars
		WHERE series = $1
		ORDER BY ts ASC
	`

	rows, err := s.pool.Query(ctx, query, s.series)
	if err != nil {
		return nil, fmt.Errorf("query bars: %w", err)
	}
	defer rows.Close()

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

// Count returns the number of bars of the series.
func (s *BarStore) Count(ctx context.Context) (int, error) {
	var n int64
	if err := s.pool.QueryRow(ctx, `SELECT count(*) FROM ohlc_bars WHERE series = $1`, s.series).Scan(&n); err != nil {
		return 0, fmt.Errorf("count bars: %w", err)
	}
	return int(n), nil
}
