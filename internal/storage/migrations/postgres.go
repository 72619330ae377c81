package migrations

import (
	"context"
	"fmt"
	"io/fs"
	"strings"

	"market-state-lab/internal/storage/postgres"
)

// RunPostgresMigrations creates the shared ohlc_bars and pipeline_runs tables.
// Files run in name order, each as one multi-statement Exec, and use IF NOT EXISTS
// so every connect can apply them again. Per-series derived tables are created
// by their stores, not here.
func RunPostgresMigrations(ctx context.Context, pool *postgres.Pool) error {
	for _, name := range files(PostgresFS, "postgres") {
		ddl, err := fs.ReadFile(PostgresFS, "postgres/"+name)
		if err != nil {
			return fmt.Errorf("postgres migration %s: %w", name, err)
		}
		if strings.TrimSpace(string(ddl)) == "" {
			continue
		}
		if _, err := pool.Exec(ctx, string(ddl)); err != nil {
			return fmt.Errorf("postgres migration %s: %w", name, err)
		}
	}
	return nil
}
