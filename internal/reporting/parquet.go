package reporting

import (
	"fmt"

	"github.com/parquet-go/parquet-go"
)

// WriteEdgesParquet writes the aggregated transition matrix to a parquet file.
func WriteEdgesParquet(path string, edges []EdgeRow) error {
	if err := parquet.WriteFile(path, edges); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// ReadEdgesParquet reads a file written by WriteEdgesParquet.
func ReadEdgesParquet(path string) ([]EdgeRow, error) {
	edges, err := parquet.ReadFile[EdgeRow](path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return edges, nil
}
