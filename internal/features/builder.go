package features

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"market-state-lab/internal/average"
	"market-state-lab/internal/config"
	"market-state-lab/internal/curvefit"
	"market-state-lab/internal/domain"
	"market-state-lab/internal/ring"
)

// Options configure a Builder.
type Options struct {
	Average   average.Kind
	Optimizer curvefit.Params
}

// OptionsFromConfig maps configuration onto builder options.
func OptionsFromConfig(cfg *config.Config) (Options, error) {
	kind, err := average.ParseKind(cfg.Features.Average)
	if err != nil {
		return Options{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	p := curvefit.Params{
		LearningRate:  cfg.Optimizer.LearningRate,
		MaxError:      cfg.Optimizer.MaxError,
		MaxIterations: cfg.Optimizer.MaxIterations,
	}
	if err := p.Validate(); err != nil {
		return Options{}, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}
	return Options{Average: kind, Optimizer: p}, nil
}

// bufferSource adapts ring buffers to average.Source, one buffer per channel.
type bufferSource []*ring.Buffer

func (s bufferSource) Channels() int { return len(s) }

func (s bufferSource) At(channel, index int) (float64, bool) {
	return s[channel].At(index)
}

// Builder turns bars into feature rows. Bars must arrive with indices 0, 1, 2, ...
// History is held in ring buffers sized to the schema lookback, so memory stays
// bounded on long series.
type Builder struct {
	schema *Schema
	opts   Options

	closes   *ring.Buffer
	averages map[int]*average.Engine // by average column ID
	history  []*ring.Buffer          // raw column values by column ID
	smoothed map[int]*ring.Buffer    // uncorrected smoothed values by column ID
	smoother map[int]*average.Engine // by smoothed column ID

	last int
}

// NewBuilder creates a builder for schema.
func NewBuilder(schema *Schema, opts Options) (*Builder, error) {
	if err := opts.Optimizer.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalid, err)
	}

	capacity := schema.MaxLookback() + 1
	b := &Builder{
		schema:   schema,
		opts:     opts,
		closes:   ring.New(capacity),
		averages: make(map[int]*average.Engine),
		history:  make([]*ring.Buffer, schema.Width()),
		smoothed: make(map[int]*ring.Buffer),
		smoother: make(map[int]*average.Engine),
		last:     -1,
	}

	for _, c := range schema.columns {
		b.history[c.ID] = ring.New(capacity)
		switch c.Kind {
		case KindAverage:
			e, err := average.New(opts.Average, c.Period, 1)
			if err != nil {
				return nil, fmt.Errorf("%w: column %s: %v", config.ErrInvalid, c.Name, err)
			}
			b.averages[c.ID] = e
		case KindSmoothed:
			e, err := average.New(average.SMA, c.Smoothing, 1)
			if err != nil {
				return nil, fmt.Errorf("%w: column %s: %v", config.ErrInvalid, c.Name, err)
			}
			b.smoother[c.ID] = e
			b.smoothed[c.ID] = ring.New(capacity)
		}
	}
	return b, nil
}

// Schema returns the schema the builder writes.
func (b *Builder) Schema() *Schema { return b.schema }

// Add computes the feature row of bar. bar.Index must follow the previous bar.
func (b *Builder) Add(bar *domain.Bar) (*domain.Row, error) {
	i := bar.Index
	if i != b.last+1 {
		return nil, fmt.Errorf("%w: bar index %d, expected %d", average.ErrSequence, i, b.last+1)
	}
	if err := b.closes.Push(i, bar.Close); err != nil {
		return nil, fmt.Errorf("%w: %v", average.ErrSequence, err)
	}

	row := domain.NewRow(bar, b.schema.Width())

	// Columns are laid out averages first, so every dependency is computed
	// before the columns that read it.
	for _, c := range b.schema.columns {
		v, err := b.compute(c, i, row.Values)
		if err != nil {
			return nil, fmt.Errorf("column %s at %d: %w", c.Name, i, err)
		}
		row.Values[c.ID] = v
		if err := b.history[c.ID].Push(i, v); err != nil {
			return nil, fmt.Errorf("%w: %v", average.ErrSequence, err)
		}
	}

	b.last = i
	return row, nil
}

func (b *Builder) compute(c Column, i int, values []float64) (float64, error) {
	switch c.Kind {
	case KindAverage:
		out, err := b.averages[c.ID].Compute(i, bufferSource{b.closes})
		if err != nil {
			return 0, err
		}
		return out[0], nil

	case KindSmoothed:
		return b.smooth(c, i)

	case KindSpread:
		return values[b.schema.averageID[c.Period]] - values[b.schema.averageID[c.Slow]], nil

	case KindSpeed:
		return b.speed(b.schema.averageID[c.Period], i)

	case KindDisplacement:
		return b.displace(c, i)
	}
	return 0, fmt.Errorf("unsupported column kind %v", c.Kind)
}

// smooth applies an SMA over the average's own history, then removes its lag by
// fitting one translation of the smoothed window onto the raw window. A single
// shared offset keeps the shape of the smoothed curve.
func (b *Builder) smooth(c Column, i int) (float64, error) {
	raw := b.history[b.schema.averageID[c.Period]]
	out, err := b.smoother[c.ID].Compute(i, bufferSource{raw})
	if err != nil {
		return 0, err
	}
	if err := b.smoothed[c.ID].Push(i, out[0]); err != nil {
		return 0, fmt.Errorf("%w: %v", average.ErrSequence, err)
	}

	n := min(c.Smoothing, i+1)
	target, ok1 := raw.Window(i-n+1, i)
	movable, ok2 := b.smoothed[c.ID].Window(i-n+1, i)
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("%w: smoothing window [%d,%d] not held", average.ErrSequence, i-n+1, i)
	}
	_, adjusted, _, err := curvefit.Displace(target, movable, b.opts.Optimizer)
	if err != nil {
		return 0, err
	}
	return adjusted[n-1], nil
}

func (b *Builder) speed(avgID, i int) (float64, error) {
	hist := b.history[avgID]
	if b.schema.speedMode == config.SpeedDiff {
		if i == 0 {
			return 0, nil
		}
		cur, ok1 := hist.At(i)
		prev, ok2 := hist.At(i - 1)
		if !ok1 || !ok2 {
			return 0, fmt.Errorf("%w: speed needs averages %d and %d", average.ErrSequence, i-1, i)
		}
		return cur - prev, nil
	}

	n := min(b.schema.speedWindow, i+1)
	if n < 2 {
		return 0, nil
	}
	ys, ok := hist.Window(i-n+1, i)
	if !ok {
		return 0, fmt.Errorf("%w: regression window [%d,%d] not held", average.ErrSequence, i-n+1, i)
	}
	xs := make([]float64, n)
	for k := range xs {
		xs[k] = float64(k)
	}
	_, slope := stat.LinearRegression(xs, ys, nil, false)
	return slope, nil
}

// displace fits the translation that best aligns the fast average onto the slow
// average over the slow window.
func (b *Builder) displace(c Column, i int) (float64, error) {
	n := min(c.Slow, i+1)
	fast, ok1 := b.history[b.schema.averageID[c.Period]].Window(i-n+1, i)
	slow, ok2 := b.history[b.schema.averageID[c.Slow]].Window(i-n+1, i)
	if !ok1 || !ok2 {
		return 0, fmt.Errorf("%w: displacement window [%d,%d] not held", average.ErrSequence, i-n+1, i)
	}
	offset, _, _, err := curvefit.Displace(slow, fast, b.opts.Optimizer)
	if err != nil {
		return 0, err
	}
	return offset, nil
}

// BuildAll builds the rows of a complete series.
func BuildAll(schema *Schema, opts Options, bars []*domain.Bar) ([]*domain.Row, error) {
	b, err := NewBuilder(schema, opts)
	if err != nil {
		return nil, err
	}
	rows := make([]*domain.Row, 0, len(bars))
	for _, bar := range bars {
		row, err := b.Add(bar)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// IsSequenceError reports whether err is a fatal sequential-dependency failure.
func IsSequenceError(err error) bool {
	return errors.Is(err, average.ErrSequence)
}
