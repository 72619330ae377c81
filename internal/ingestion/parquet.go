package ingestion

import (
	"context"
	"fmt"

	"github.com/parquet-go/parquet-go"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// parquetBar is the on-disk bar layout, shared with crawler-produced files.
type parquetBar struct {
	Timestamp    int64   `parquet:"t"` // Unix timestamp in milliseconds
	Open         float64 `parquet:"o"`
	High         float64 `parquet:"h"`
	Low          float64 `parquet:"l"`
	Close        float64 `parquet:"c"`
	Volume       int64   `parquet:"v"`
	VWAP         float64 `parquet:"vw,optional"`
	Transactions int64   `parquet:"n,optional"`
}

// ParquetSource reads bars from a parquet file.
type ParquetSource struct {
	Path string
}

// NewParquetSource creates a parquet bar source.
func NewParquetSource(path string) *ParquetSource {
	return &ParquetSource{Path: path}
}

// Load reads, sorts and re-indexes the file.
func (s *ParquetSource) Load(_ context.Context) ([]*domain.Bar, error) {
	rows, err := parquet.ReadFile[parquetBar](s.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.Path, err)
	}
	bars := make([]*domain.Bar, len(rows))
	for i, r := range rows {
		bars[i] = &domain.Bar{
			Timestamp: r.Timestamp,
			Open:      r.Open,
			High:      r.High,
			Low:       r.Low,
			Close:     r.Close,
			Volume:    float64(r.Volume),
		}
	}
	return Prepare(bars)
}

// WriteParquet writes bars in the layout ParquetSource reads. Volume is truncated
// to whole units.
func WriteParquet(path string, bars []*domain.Bar) error {
	rows := make([]parquetBar, len(bars))
	for i, b := range bars {
		rows[i] = parquetBar{
			Timestamp: b.Timestamp,
			Open:      b.Open,
			High:      b.High,
			Low:       b.Low,
			Close:     b.Close,
			Volume:    int64(b.Volume),
		}
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

var _ storage.BarSource = (*ParquetSource)(nil)
