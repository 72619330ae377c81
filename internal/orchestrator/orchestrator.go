// Package orchestrator runs the pipeline stages in order:
// features → ranges → continuous → discrete → transitions.
// Every stage is a single-threaded loop that owns its destination table.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"market-state-lab/internal/config"
	"market-state-lab/internal/domain"
	"market-state-lab/internal/features"
	"market-state-lab/internal/logging"
	"market-state-lab/internal/normalization"
	"market-state-lab/internal/observability"
	"market-state-lab/internal/ranges"
	"market-state-lab/internal/storage"
	"market-state-lab/internal/task"
	"market-state-lab/internal/transition"
)

// Stage names, in execution order.
const (
	StageFeatures    = "features"
	StageRanges      = "ranges"
	StageContinuous  = "continuous"
	StageDiscrete    = "discrete"
	StageTransitions = transition.Stage
)

// Stages lists every stage in execution order.
var Stages = []string{StageFeatures, StageRanges, StageContinuous, StageDiscrete, StageTransitions}

// DefaultBatchSize is the number of rows buffered before a store insert.
const DefaultBatchSize = 500

// Options for creating an Orchestrator. Config, Source and Tables are required.
type Options struct {
	Config *config.Config
	Source storage.BarSource
	Tables storage.Tables

	RunLog    storage.RunLog         // optional
	Metrics   *observability.Metrics // optional
	Progress  task.Progress          // optional
	Control   *task.Control          // optional
	Logger    *zap.SugaredLogger     // optional
	BatchSize int                    // 0 uses Config.Storage.BatchSize, then DefaultBatchSize
}

// Orchestrator coordinates the stage runs of one series.
type Orchestrator struct {
	cfg         *config.Config
	source      storage.BarSource
	tables      storage.Tables
	runLog      storage.RunLog
	metrics     *observability.Metrics
	control     *task.Control
	loop        *task.Loop
	logger      *zap.SugaredLogger
	batchSize   int
	schema      *features.Schema
	builderOpts features.Options
	discretizer *normalization.Discretizer
}

// New validates the configuration and builds every stage component. Nothing is
// written until a stage runs.
func New(opts Options) (*Orchestrator, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("%w: nil config", config.ErrInvalid)
	}
	if opts.Source == nil {
		return nil, fmt.Errorf("%w: nil bar source", config.ErrInvalid)
	}
	t := opts.Tables
	if t.Features == nil || t.Ranges == nil || t.Continuous == nil || t.Discrete == nil || t.Transitions == nil {
		return nil, fmt.Errorf("%w: incomplete table set", config.ErrInvalid)
	}
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	schema, err := features.NewSchema(cfg.Features)
	if err != nil {
		return nil, err
	}
	builderOpts, err := features.OptionsFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	if _, err := ranges.NewExtractor(schema, cfg.Ranges.Periods); err != nil {
		return nil, err
	}
	disc, err := normalization.NewDiscretizer(schema, cfg.Normalize.Segments, cfg.Normalize.Scale, cfg.Normalize.KeyColumns)
	if err != nil {
		return nil, err
	}

	batch := opts.BatchSize
	if batch <= 0 {
		batch = cfg.Storage.BatchSize
	}
	if batch <= 0 {
		batch = DefaultBatchSize
	}

	var progress task.Multi
	if opts.Progress != nil {
		progress = append(progress, opts.Progress)
	}
	if opts.Metrics != nil {
		progress = append(progress, opts.Metrics)
	}
	control := opts.Control
	if control == nil {
		control = task.NewControl()
	}

	return &Orchestrator{
		cfg:         cfg,
		source:      opts.Source,
		tables:      t,
		runLog:      opts.RunLog,
		metrics:     opts.Metrics,
		control:     control,
		loop:        task.NewLoop(progress, control),
		logger:      logging.OrNop(opts.Logger).With("component", "orchestrator", "series", cfg.Series.Name),
		batchSize:   batch,
		schema:      schema,
		builderOpts: builderOpts,
		discretizer: disc,
	}, nil
}

// Schema returns the feature schema in use.
func (o *Orchestrator) Schema() *features.Schema { return o.schema }

// Control returns the pause/resume handle of the stage loops.
func (o *Orchestrator) Control() *task.Control { return o.control }

// StageResult describes one finished stage.
type StageResult struct {
	Stage    string
	Rows     int // rows or records written
	Duration time.Duration
}

// RunResult contains results from orchestrator execution.
type RunResult struct {
	RunID       string
	Stages      []StageResult
	Descriptors map[string]domain.Descriptor // set when the continuous stage ran
	Transitions transition.Result            // set when the transition stage ran
}

// Rows returns the rows written by stage, or 0 if it did not run.
func (r *RunResult) Rows(stage string) int {
	for _, s := range r.Stages {
		if s.Stage == stage {
			return s.Rows
		}
	}
	return 0
}

// Run executes every stage in order and stops at the first failure. The
// returned result holds the stages that finished.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	res := o.newResult()
	for _, stage := range Stages {
		if err := o.run(ctx, stage, res); err != nil {
			return res, err
		}
	}
	if o.metrics != nil {
		o.metrics.RecordSuccessfulRun(time.Now())
	}
	o.logger.Infow("pipeline completed", "run_id", res.RunID, "stages", len(res.Stages))
	return res, nil
}

// RunStage executes a single stage against the tables left by earlier runs.
func (o *Orchestrator) RunStage(ctx context.Context, stage string) (*RunResult, error) {
	if !validStage(stage) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownStage, stage)
	}
	res := o.newResult()
	if err := o.run(ctx, stage, res); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) newResult() *RunResult {
	return &RunResult{RunID: uuid.NewString()}
}

func validStage(stage string) bool {
	for _, s := range Stages {
		if s == stage {
			return true
		}
	}
	return false
}

// run executes stage, records it and appends its result.
func (o *Orchestrator) run(ctx context.Context, stage string, res *RunResult) error {
	o.logger.Infow("stage started", "stage", stage)
	started := time.Now()

	var (
		rows int
		err  error
	)
	switch stage {
	case StageFeatures:
		rows, err = o.runFeatures(ctx)
	case StageRanges:
		rows, err = o.runRanges(ctx)
	case StageContinuous:
		var desc map[string]domain.Descriptor
		desc, rows, err = o.runContinuous(ctx)
		res.Descriptors = desc
	case StageDiscrete:
		rows, err = o.runDiscrete(ctx)
	case StageTransitions:
		res.Transitions, err = transition.NewMiner(o.tables.Discrete, o.tables.Transitions, o.logger).Run(ctx, o.loop)
		rows = res.Transitions.Records
	}
	finished := time.Now()

	status := domain.RunSuccess
	if err != nil {
		err = stageError(stage, err)
		status = domain.RunFailed
		if errors.Is(err, task.ErrCancelled) {
			status = domain.RunCancelled
		}
	}
	o.record(ctx, domain.StageRun{
		RunID:      res.RunID,
		Series:     o.cfg.Series.Name,
		Stage:      stage,
		Status:     status,
		Rows:       rows,
		Error:      errString(err),
		StartedAt:  started,
		FinishedAt: finished,
	})
	if err != nil {
		o.logger.Errorw("stage failed", "stage", stage, "status", status, "error", err)
		return err
	}

	res.Stages = append(res.Stages, StageResult{Stage: stage, Rows: rows, Duration: finished.Sub(started)})
	o.logger.Infow("stage finished", "stage", stage, "rows", rows, "duration", finished.Sub(started))
	return nil
}

// record reports a stage run to metrics and the run log. Run log failures are
// logged and never fail the stage.
func (o *Orchestrator) record(ctx context.Context, run domain.StageRun) {
	if o.metrics != nil {
		o.metrics.RecordStageRun(run.Stage, run.Status, run.Duration())
		o.metrics.RecordRowsWritten(run.Stage, run.Rows)
		if run.Stage == StageTransitions {
			o.metrics.TransitionsMined.Add(float64(run.Rows))
		}
	}
	if o.runLog == nil {
		return
	}
	if err := o.runLog.Record(context.WithoutCancel(ctx), run); err != nil {
		o.logger.Warnw("record stage run", "stage", run.Stage, "error", err)
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
