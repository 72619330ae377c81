package ingestion

import (
	"fmt"
	"path/filepath"
	"strings"

	"market-state-lab/internal/config"
	"market-state-lab/internal/storage"
)

// FileSource returns the file-backed source named by cfg. The kind is taken from
// Source, or from the file extension when Source is empty.
func FileSource(cfg config.SeriesConfig) (storage.BarSource, error) {
	kind := cfg.Source
	if kind == "" {
		kind = strings.TrimPrefix(strings.ToLower(filepath.Ext(cfg.Path)), ".")
	}
	if cfg.Path == "" {
		return nil, fmt.Errorf("%w: series.path is required for %s sources", config.ErrInvalid, kind)
	}
	switch kind {
	case "csv":
		return NewCSVSource(cfg.Path), nil
	case "parquet":
		return NewParquetSource(cfg.Path), nil
	default:
		return nil, fmt.Errorf("%w: series.source %q is not a file source", config.ErrInvalid, kind)
	}
}
