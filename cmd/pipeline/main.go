// Package main runs the market state pipeline of one series:
// features → ranges → continuous → discrete → transitions → reports.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"go.uber.org/zap"

	"market-state-lab/internal/backend"
	"market-state-lab/internal/config"
	"market-state-lab/internal/domain"
	"market-state-lab/internal/logging"
	"market-state-lab/internal/observability"
	"market-state-lab/internal/orchestrator"
	"market-state-lab/internal/reporting"
	"market-state-lab/internal/storage"
)

func main() {
	configPath := flag.String("config", "market-state-lab.toml", "Path to the TOML configuration")
	stage := flag.String("stage", "all", "Stage to run: all, features, ranges, continuous, discrete, transitions")
	outputDir := flag.String("output-dir", "output", "Output directory for reports (empty to skip)")
	logLevel := flag.String("log-level", "", "Log level override (debug, info, warn, error)")
	progressEvery := flag.Int("progress-every", 10000, "Log progress every N steps (0 to disable)")
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

	// Cancel the running stage on SIGINT/SIGTERM.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, *stage, *outputDir, *progressEvery, logger); err != nil {
		logger.Errorw("pipeline failed", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, stage, outputDir string, progressEvery int, logger *zap.SugaredLogger) error {
	b, err := backend.Open(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer b.Close()

	metrics := observability.NewMetrics("")
	orch, err := orchestrator.New(orchestrator.Options{
		Config:   cfg,
		Source:   b.Source,
		Tables:   b.Tables,
		RunLog:   b.RunLog,
		Metrics:  metrics,
		Progress: logging.NewProgress(logger, progressEvery),
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	var res *orchestrator.RunResult
	if stage == "all" {
		res, err = orch.Run(ctx)
	} else {
		res, err = orch.RunStage(ctx, stage)
	}
	if res != nil {
		printSummary(res)
	}
	if err != nil {
		return err
	}

	if outputDir == "" {
		return nil
	}
	if err := writeReports(ctx, cfg, b, res, outputDir); err != nil {
		return fmt.Errorf("write reports: %w", err)
	}
	metrics.ReportsGenerated.Inc()
	logger.Infow("reports written", "dir", outputDir)
	return nil
}

// printSummary renders the finished stages as a table on stdout.
func printSummary(res *orchestrator.RunResult) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("run " + res.RunID)
	t.AppendHeader(table.Row{"Stage", "Rows", "Duration"})
	var total time.Duration
	for _, s := range res.Stages {
		t.AppendRow(table.Row{s.Stage, s.Rows, s.Duration.Round(time.Millisecond)})
		total += s.Duration
	}
	t.AppendFooter(table.Row{"total", "", total.Round(time.Millisecond)})
	t.SetStyle(table.StyleLight)
	t.Render()

	if r := res.Transitions; r.Rows > 0 {
		fmt.Printf("transitions: %d keys mined, %d rows skipped, %d records\n",
			r.KeysProcessed, r.KeysSkipped, r.Records)
	}
}

func writeReports(ctx context.Context, cfg *config.Config, b *backend.Backend, res *orchestrator.RunResult, dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	runs, err := b.RunLog.List(ctx, cfg.Series.Name)
	if err != nil {
		return err
	}
	var current []domain.StageRun
	for _, r := range runs {
		if r.RunID == res.RunID {
			current = append(current, r)
		}
	}

	report, err := reporting.NewGenerator(b.Tables.Transitions).Generate(ctx, reporting.Input{
		Series:      cfg.Series.Name,
		RunID:       res.RunID,
		Runs:        current,
		Descriptors: res.Descriptors,
	})
	if err != nil {
		return err
	}
	records, err := b.Tables.Transitions.All(ctx)
	if err != nil {
		return err
	}

	names := storage.NamesFor(cfg.Series.Name)
	files := map[string]string{
		"REPORT_" + cfg.Series.Name + ".md": reporting.RenderMarkdown(report),
		names.Transitions + ".csv":          reporting.RenderTransitionsCSV(records),
		cfg.Series.Name + "_edges.csv":      reporting.RenderEdgesCSV(report.Edges),
		cfg.Series.Name + "_states.csv":     reporting.RenderStatesCSV(report.States),
	}
	var errs []error
	for name, content := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
			errs = append(errs, err)
		}
	}
	if err := reporting.WriteEdgesParquet(filepath.Join(dir, cfg.Series.Name+"_edges.parquet"), report.Edges); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
