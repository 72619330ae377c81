// Package ingestion loads OHLC bar series from files.
package ingestion

import (
	"fmt"
	"math"
	"sort"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// Prepare sorts bars by timestamp and assigns indices 0..n-1. Duplicate
// timestamps and non-finite prices are rejected with storage.ErrInvalidInput.
func Prepare(bars []*domain.Bar) ([]*domain.Bar, error) {
	sort.SliceStable(bars, func(i, j int) bool { return bars[i].Timestamp < bars[j].Timestamp })
	for i, b := range bars {
		if i > 0 && bars[i-1].Timestamp == b.Timestamp {
			return nil, fmt.Errorf("%w: duplicate bar timestamp %d", storage.ErrInvalidInput, b.Timestamp)
		}
		for _, v := range []float64{b.Open, b.High, b.Low, b.Close, b.Volume} {
			if math.IsNaN(v) || math.IsInf(v, 0) {
				return nil, fmt.Errorf("%w: non-finite value in bar at %d", storage.ErrInvalidInput, b.Timestamp)
			}
		}
		b.Index = i
	}
	return bars, nil
}
