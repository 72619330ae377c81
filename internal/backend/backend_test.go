package backend

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"market-state-lab/internal/config"
	"market-state-lab/internal/domain"
	"market-state-lab/internal/ingestion"
	"market-state-lab/internal/storage/memory"
	"market-state-lab/internal/storage/sqlite"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "bars.csv")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, ingestion.WriteCSV(f, []*domain.Bar{
		{Timestamp: 1000, Open: 1, High: 2, Low: 0.5, Close: 1.5},
		{Timestamp: 2000, Open: 1.5, High: 2.5, Low: 1, Close: 2},
	}))
	require.NoError(t, f.Close())

	cfg := config.Default()
	cfg.Series = config.SeriesConfig{Name: "btc", Source: "csv", Path: path}
	cfg.Storage.SQLitePath = filepath.Join(dir, "lab.db")
	return cfg
}

func TestOpen_Memory(t *testing.T) {
	cfg := testConfig(t)
	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)
	defer b.Close()

	_, ok := b.Tables.Features.(*memory.RowStore)
	assert.True(t, ok)
	assert.Equal(t, "btc_features", b.Tables.Features.Name())

	bars, err := b.Source.Load(context.Background())
	require.NoError(t, err)
	assert.Len(t, bars, 2)
}

func TestOpen_SQLite(t *testing.T) {
	cfg := testConfig(t)
	cfg.Storage.Backend = "sqlite"
	b, err := Open(context.Background(), cfg, nil)
	require.NoError(t, err)

	_, ok := b.RunLog.(*sqlite.RunLog)
	assert.True(t, ok)
	assert.Equal(t, "btc_transitions", b.Tables.Transitions.Name())
	require.NoError(t, b.Close())
}

func TestOpen_RejectsMissingSettings(t *testing.T) {
	ctx := context.Background()

	cfg := testConfig(t)
	cfg.Storage.Backend = "postgres"
	cfg.Storage.PostgresDSN = ""
	_, err := Open(ctx, cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = testConfig(t)
	cfg.Series.Source = "clickhouse"
	cfg.Storage.ClickhouseDSN = ""
	_, err = Open(ctx, cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = testConfig(t)
	cfg.Storage.ClickhouseRanges = true
	cfg.Storage.ClickhouseDSN = ""
	_, err = Open(ctx, cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	cfg = testConfig(t)
	cfg.Series.Source = "ftp"
	_, err = Open(ctx, cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)

	// An in-process bar store would start empty.
	cfg = testConfig(t)
	cfg.Series.Source = "memory"
	_, err = Open(ctx, cfg, nil)
	assert.ErrorIs(t, err, config.ErrInvalid)
}
