// Package backend opens the storage selected by configuration: the bar source of
// a series and the backend holding its derived tables.
package backend

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"market-state-lab/internal/config"
	"market-state-lab/internal/ingestion"
	"market-state-lab/internal/logging"
	"market-state-lab/internal/storage"
	chstore "market-state-lab/internal/storage/clickhouse"
	"market-state-lab/internal/storage/memory"
	"market-state-lab/internal/storage/migrations"
	pgstore "market-state-lab/internal/storage/postgres"
	"market-state-lab/internal/storage/sqlite"
)

// Backend bundles the opened stores of one series.
type Backend struct {
	Source storage.BarSource
	Tables storage.Tables
	RunLog storage.RunLog

	closers []func() error
}

// Close releases every connection opened by Open.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.closers) - 1; i >= 0; i-- {
		errs = append(errs, b.closers[i]())
	}
	return errors.Join(errs...)
}

// Open connects the configured bar source and table backend. Postgres and
// ClickHouse migrations are applied on connect.
func Open(ctx context.Context, cfg *config.Config, logger *zap.SugaredLogger) (*Backend, error) {
	logger = logging.OrNop(logger).With("component", "backend")
	b := &Backend{}
	var pool *pgstore.Pool
	var ch *chstore.Conn

	openPostgres := func() (*pgstore.Pool, error) {
		if pool != nil {
			return pool, nil
		}
		if cfg.Storage.PostgresDSN == "" {
			return nil, fmt.Errorf("%w: storage.postgres_dsn is empty", config.ErrInvalid)
		}
		p, err := pgstore.NewPool(ctx, cfg.Storage.PostgresDSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, func() error { p.Close(); return nil })
		if err := migrations.RunPostgresMigrations(ctx, p); err != nil {
			return nil, fmt.Errorf("postgres migrations: %w", err)
		}
		pool = p
		return p, nil
	}

	openClickhouse := func() (*chstore.Conn, error) {
		if ch != nil {
			return ch, nil
		}
		conn, err := OpenClickhouse(ctx, cfg)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, conn.Close)
		ch = conn
		return conn, nil
	}

	switch cfg.Storage.Backend {
	case "memory":
		b.Tables = memory.NewTables(cfg.Series.Name)
		b.RunLog = memory.NewRunLog()
	case "postgres":
		p, err := openPostgres()
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Tables = pgstore.NewTables(p, cfg.Series.Name)
		b.RunLog = pgstore.NewRunLog(p)
	case "sqlite":
		if cfg.Storage.SQLitePath == "" {
			return nil, fmt.Errorf("%w: storage.sqlite_path is empty", config.ErrInvalid)
		}
		db, err := sqlite.Open(ctx, cfg.Storage.SQLitePath)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)
		b.Tables = sqlite.NewTables(db, cfg.Series.Name)
		b.RunLog = sqlite.NewRunLog(db)
	default:
		return nil, fmt.Errorf("%w: storage.backend %q", config.ErrInvalid, cfg.Storage.Backend)
	}
	if cfg.Storage.ClickhouseRanges {
		conn, err := openClickhouse()
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Tables.Ranges = chstore.NewRangeStore(conn, storage.NamesFor(cfg.Series.Name).Ranges)
	}
	logger.Infow("tables opened", "backend", cfg.Storage.Backend, "series", cfg.Series.Name,
		"clickhouse_ranges", cfg.Storage.ClickhouseRanges)

	switch cfg.Series.Source {
	case "postgres":
		p, err := openPostgres()
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Source = pgstore.NewBarStore(p, cfg.Series.Name)
	case "clickhouse":
		conn, err := openClickhouse()
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Source = chstore.NewBarStore(conn, cfg.Series.Name)
	default:
		src, err := ingestion.FileSource(cfg.Series)
		if err != nil {
			b.Close()
			return nil, err
		}
		b.Source = src
	}
	logger.Infow("bar source opened", "source", cfg.Series.Source)
	return b, nil
}

// OpenClickhouse applies the ClickHouse migrations and returns a connection to
// the configured database.
func OpenClickhouse(ctx context.Context, cfg *config.Config) (*chstore.Conn, error) {
	if cfg.Storage.ClickhouseDSN == "" {
		return nil, fmt.Errorf("%w: storage.clickhouse_dsn is empty", config.ErrInvalid)
	}
	conn, err := migrations.RunClickhouseMigrations(ctx, cfg.Storage.ClickhouseDSN)
	if err != nil {
		return nil, fmt.Errorf("clickhouse migrations: %w", err)
	}
	return conn, nil
}
