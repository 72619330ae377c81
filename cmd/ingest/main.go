// Package main imports OHLC bars from a CSV or parquet file into the shared
// ohlc_bars table of PostgreSQL or ClickHouse.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"market-state-lab/internal/backend"
	"market-state-lab/internal/config"
	"market-state-lab/internal/ingestion"
	"market-state-lab/internal/logging"
	"market-state-lab/internal/storage"
	chstore "market-state-lab/internal/storage/clickhouse"
	"market-state-lab/internal/storage/migrations"
	pgstore "market-state-lab/internal/storage/postgres"
)

func main() {
	configPath := flag.String("config", "market-state-lab.toml", "Path to the TOML configuration")
	input := flag.String("input", "", "CSV or parquet file to import (default: series.path)")
	target := flag.String("target", "postgres", "Bar store: postgres or clickhouse")
	batch := flag.Int("batch", 5000, "Bars per insert")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()
	logger = logger.With("component", "ingest", "series", cfg.Series.Name)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	series := cfg.Series
	if *input != "" {
		series.Path, series.Source = *input, ""
	}
	src, err := ingestion.FileSource(series)
	if err != nil {
		logger.Fatalw("resolve input", "error", err)
	}
	bars, err := src.Load(ctx)
	if err != nil {
		logger.Fatalw("load bars", "path", series.Path, "error", err)
	}
	logger.Infow("bars loaded", "path", series.Path, "count", len(bars))

	var store storage.BarStore
	switch *target {
	case "postgres":
		pool, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			logger.Fatalw("connect postgres", "error", err)
		}
		defer pool.Close()
		if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
			logger.Fatalw("postgres migrations", "error", err)
		}
		store = pgstore.NewBarStore(pool, cfg.Series.Name)
	case "clickhouse":
		conn, err := backend.OpenClickhouse(ctx, cfg)
		if err != nil {
			logger.Fatalw("connect clickhouse", "error", err)
		}
		defer conn.Close()
		store = chstore.NewBarStore(conn, cfg.Series.Name)
	default:
		logger.Fatalw("unknown target", "target", *target)
	}

	if *batch <= 0 {
		*batch = len(bars)
	}
	for start := 0; start < len(bars); start += *batch {
		end := min(start+*batch, len(bars))
		if err := store.InsertBulk(ctx, bars[start:end]); err != nil {
			logger.Fatalw("insert bars", "from", start, "to", end, "error", err)
		}
		logger.Debugw("batch inserted", "from", start, "to", end)
	}

	n, err := store.Count(ctx)
	if err != nil {
		logger.Fatalw("count bars", "error", err)
	}
	logger.Infow("import complete", "target", *target, "imported", len(bars), "stored", n)
}
