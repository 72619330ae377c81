package orchestrator

import (
	"context"
	"fmt"
	"time"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/features"
	"market-state-lab/internal/normalization"
	"market-state-lab/internal/ranges"
	"market-state-lab/internal/storage"
)

// runFeatures rebuilds the feature table from the bar source.
func (o *Orchestrator) runFeatures(ctx context.Context) (int, error) {
	o.loop.Count(StageFeatures)
	bars, err := o.source.Load(ctx)
	if err != nil {
		return 0, fmt.Errorf("load bars: %w", err)
	}
	builder, err := features.NewBuilder(o.schema, o.builderOpts)
	if err != nil {
		return 0, err
	}
	if err := o.tables.Features.Rebuild(ctx); err != nil {
		return 0, fmt.Errorf("rebuild %s: %w", o.tables.Features.Name(), err)
	}

	w := o.rowWriter(o.tables.Features)
	err = o.loop.Run(ctx, StageFeatures, len(bars), func(step int) error {
		row, err := builder.Add(bars[step])
		if err != nil {
			return err
		}
		return w.add(ctx, row)
	})
	if err != nil {
		return w.written, err
	}
	if err := w.flush(ctx); err != nil {
		return w.written, &StageError{Stage: StageFeatures, Index: len(bars) - 1, Err: err}
	}
	return w.written, nil
}

// runRanges rebuilds the range table from the feature table.
func (o *Orchestrator) runRanges(ctx context.Context) (int, error) {
	o.loop.Count(StageRanges)
	ext, err := ranges.NewExtractor(o.schema, o.cfg.Ranges.Periods)
	if err != nil {
		return 0, err
	}
	if err := o.tables.Ranges.Rebuild(ctx); err != nil {
		return 0, fmt.Errorf("rebuild %s: %w", o.tables.Ranges.Name(), err)
	}

	var (
		pending []domain.RangeSample
		written int
	)
	flush := func() error {
		if len(pending) == 0 {
			return nil
		}
		err := o.timed(o.tables.Ranges.Name(), "insert_bulk", func() error {
			return o.tables.Ranges.InsertBulk(ctx, pending)
		})
		if err != nil {
			return fmt.Errorf("insert into %s: %w", o.tables.Ranges.Name(), err)
		}
		written += len(pending)
		pending = pending[:0]
		return nil
	}

	total, err := o.scan(ctx, o.tables.Features, StageRanges, func(step int, row *domain.Row) error {
		samples, err := ext.Observe(row)
		if err != nil {
			return err
		}
		pending = append(pending, samples...)
		if len(pending) >= o.batchSize {
			return flush()
		}
		return nil
	})
	if err != nil {
		return written, err
	}
	if err := flush(); err != nil {
		return written, &StageError{Stage: StageRanges, Index: total - 1, Err: err}
	}
	return written, nil
}

// runContinuous aggregates the range table into descriptors and rebuilds the
// continuous table from the feature table.
func (o *Orchestrator) runContinuous(ctx context.Context) (map[string]domain.Descriptor, int, error) {
	o.loop.Count(StageContinuous)
	stats, err := o.tables.Ranges.Aggregate(ctx)
	if err != nil {
		return nil, 0, fmt.Errorf("aggregate %s: %w", o.tables.Ranges.Name(), err)
	}
	cols := o.schema.Rangeable()
	names := make([]string, len(cols))
	for i, c := range cols {
		names[i] = c.Name
	}
	desc := ranges.Descriptors(stats, o.cfg.Normalize.StdDevMultiplier, names)
	for _, n := range names {
		d := desc[n]
		o.logger.Debugw("descriptor", "feature", n, "min", d.Minimum, "max", d.Maximum)
	}

	if err := o.tables.Continuous.Rebuild(ctx); err != nil {
		return desc, 0, fmt.Errorf("rebuild %s: %w", o.tables.Continuous.Name(), err)
	}
	w := o.rowWriter(o.tables.Continuous)
	total, err := o.scan(ctx, o.tables.Features, StageContinuous, func(_ int, row *domain.Row) error {
		return w.add(ctx, normalization.Continuous(row, o.schema, desc))
	})
	if err != nil {
		return desc, w.written, err
	}
	if err := w.flush(ctx); err != nil {
		return desc, w.written, &StageError{Stage: StageContinuous, Index: total - 1, Err: err}
	}
	return desc, w.written, nil
}

// runDiscrete quantizes the continuous table into the discrete table.
func (o *Orchestrator) runDiscrete(ctx context.Context) (int, error) {
	o.loop.Count(StageDiscrete)
	if err := o.tables.Discrete.Rebuild(ctx); err != nil {
		return 0, fmt.Errorf("rebuild %s: %w", o.tables.Discrete.Name(), err)
	}
	w := o.rowWriter(o.tables.Discrete)
	total, err := o.scan(ctx, o.tables.Continuous, StageDiscrete, func(_ int, row *domain.Row) error {
		return w.add(ctx, o.discretizer.Discrete(row))
	})
	if err != nil {
		return w.written, err
	}
	if err := w.flush(ctx); err != nil {
		return w.written, &StageError{Stage: StageDiscrete, Index: total - 1, Err: err}
	}
	return w.written, nil
}

// scan runs the stage loop over every row of src and returns the row count.
func (o *Orchestrator) scan(ctx context.Context, src storage.RowStore, stage string, fn func(step int, row *domain.Row) error) (int, error) {
	total, err := src.Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("count %s: %w", src.Name(), err)
	}
	cur, err := src.Iterate(ctx, 0)
	if err != nil {
		return 0, fmt.Errorf("iterate %s: %w", src.Name(), err)
	}
	defer cur.Close()

	err = o.loop.Run(ctx, stage, total, func(step int) error {
		if !cur.Next() {
			if err := cur.Err(); err != nil {
				return err
			}
			return fmt.Errorf("%w: %s ended after %d of %d rows", storage.ErrNotFound, src.Name(), step, total)
		}
		row := cur.Row()
		if row.Index != step {
			return fmt.Errorf("%w: %s has index %d at position %d", storage.ErrInvalidInput, src.Name(), row.Index, step)
		}
		return fn(step, row)
	})
	return total, err
}

// timed runs a store call and records its latency.
func (o *Orchestrator) timed(table, operation string, fn func() error) error {
	start := time.Now()
	err := fn()
	if o.metrics != nil {
		o.metrics.RecordStoreQuery(table, operation, time.Since(start), err)
	}
	return err
}

// rowWriter buffers rows for one table and inserts them in batches.
type rowWriter struct {
	o       *Orchestrator
	store   storage.RowStore
	pending []*domain.Row
	written int
}

func (o *Orchestrator) rowWriter(store storage.RowStore) *rowWriter {
	return &rowWriter{o: o, store: store, pending: make([]*domain.Row, 0, o.batchSize)}
}

func (w *rowWriter) add(ctx context.Context, row *domain.Row) error {
	w.pending = append(w.pending, row)
	if len(w.pending) < w.o.batchSize {
		return nil
	}
	return w.flush(ctx)
}

func (w *rowWriter) flush(ctx context.Context) error {
	if len(w.pending) == 0 {
		return nil
	}
	err := w.o.timed(w.store.Name(), "insert_bulk", func() error {
		return w.store.InsertBulk(ctx, w.pending)
	})
	if err != nil {
		return fmt.Errorf("insert into %s: %w", w.store.Name(), err)
	}
	w.written += len(w.pending)
	w.pending = w.pending[:0]
	return nil
}
