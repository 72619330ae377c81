// Package main runs the pipeline of one series in the background and serves the
// control surface: status, pause/resume, a websocket progress stream and metrics.
// With -interval the pipeline is re-run on a schedule until the process stops.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"market-state-lab/internal/backend"
	"market-state-lab/internal/config"
	"market-state-lab/internal/logging"
	"market-state-lab/internal/observability"
	"market-state-lab/internal/orchestrator"
	"market-state-lab/internal/task"
	"market-state-lab/internal/transport/http/control"
)

// Pipeline states reported on /status.
const (
	stateIdle      = "idle"
	stateRunning   = "running"
	stateSucceeded = "succeeded"
	stateFailed    = "failed"
)

func main() {
	configPath := flag.String("config", "market-state-lab.toml", "Path to the TOML configuration")
	addr := flag.String("addr", ":9780", "HTTP control address")
	interval := flag.Duration("interval", 0, "Re-run interval (0 runs once and keeps serving)")
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg, *addr, *interval, logger); err != nil {
		logger.Errorw("server stopped", "error", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, cfg *config.Config, addr string, interval time.Duration, logger *zap.SugaredLogger) error {
	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	var state atomic.Value
	state.Store(stateIdle)

	metrics := observability.NewMetrics("")
	ctrl := task.NewControl()
	progress := control.NewBroadcaster()

	orch, err := orchestrator.New(orchestrator.Options{
		Config:   cfg,
		Source:   b.Source,
		Tables:   b.Tables,
		RunLog:   b.RunLog,
		Metrics:  metrics,
		Progress: progress,
		Control:  ctrl,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	srv, err := control.NewServer(control.Config{
		Addr:     addr,
		Control:  ctrl,
		Progress: progress,
		Metrics:  metrics.Handler(),
		Status:   func() string { return state.Load().(string) },
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return srv.Start(gctx) })
	g.Go(func() error {
		for {
			state.Store(stateRunning)
			res, err := orch.Run(gctx)
			switch {
			case errors.Is(err, task.ErrCancelled), gctx.Err() != nil:
				return nil
			case err != nil:
				state.Store(stateFailed)
				logger.Errorw("pipeline run failed", "error", err)
			default:
				state.Store(stateSucceeded)
				logger.Infow("pipeline run finished", "run_id", res.RunID, "records", res.Transitions.Records)
			}
			if interval <= 0 {
				return nil
			}
			select {
			case <-gctx.Done():
				return nil
			case <-time.After(interval):
			}
		}
	})
	return g.Wait()
}
