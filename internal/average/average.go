// Package average computes simple, weighted and exponential moving averages
// incrementally over one or more parallel value channels.
package average

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSequence is returned when a recurrence needs a value that was never computed
// or is no longer held by the source.
var ErrSequence = errors.New("average: sequential dependency not satisfied")

// ErrPeriod is returned for a non-positive period.
var ErrPeriod = errors.New("average: period must be > 0")

// Kind selects the averaging method.
type Kind int

const (
	SMA Kind = iota
	WMA
	EMA
)

func (k Kind) String() string {
	switch k {
	case SMA:
		return "sma"
	case WMA:
		return "wma"
	case EMA:
		return "ema"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind converts "sma", "wma" or "ema" to a Kind.
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "sma":
		return SMA, nil
	case "wma":
		return WMA, nil
	case "ema":
		return EMA, nil
	default:
		return 0, fmt.Errorf("average: unknown kind %q", s)
	}
}

// Source gives indexed access to the input values of each channel.
type Source interface {
	Channels() int
	At(channel, index int) (float64, bool)
}

// Engine computes one average kind and period over all channels of a Source.
// Compute must be called with strictly increasing indices.
type Engine struct {
	kind      Kind
	period    int
	alpha     float64
	prev      []float64
	prevIndex int
}

// New creates an engine for the given kind, period and channel count.
func New(kind Kind, period, channels int) (*Engine, error) {
	if period <= 0 {
		return nil, fmt.Errorf("%w: got %d", ErrPeriod, period)
	}
	if channels <= 0 {
		return nil, fmt.Errorf("average: channels must be > 0, got %d", channels)
	}
	return &Engine{
		kind:      kind,
		period:    period,
		alpha:     2.0 / float64(period+1),
		prev:      make([]float64, channels),
		prevIndex: -1,
	}, nil
}

// Kind returns the averaging method.
func (e *Engine) Kind() Kind { return e.kind }

// Period returns the configured window period.
func (e *Engine) Period() int { return e.period }

// Compute returns the average of every channel at index.
func (e *Engine) Compute(index int, src Source) ([]float64, error) {
	if index < 0 {
		return nil, fmt.Errorf("%w: negative index %d", ErrSequence, index)
	}
	if src.Channels() != len(e.prev) {
		return nil, fmt.Errorf("average: source has %d channels, engine %d", src.Channels(), len(e.prev))
	}

	out := make([]float64, len(e.prev))
	for ch := range out {
		var (
			v   float64
			err error
		)
		switch e.kind {
		case SMA:
			v, err = e.sma(ch, index, src)
		case WMA:
			v, err = e.wma(ch, index, src)
		case EMA:
			v, err = e.ema(ch, index, src)
		default:
			err = fmt.Errorf("average: unsupported kind %v", e.kind)
		}
		if err != nil {
			return nil, err
		}
		out[ch] = v
	}

	copy(e.prev, out)
	e.prevIndex = index
	return out, nil
}

// Reset forgets the previous averages.
func (e *Engine) Reset() {
	for i := range e.prev {
		e.prev[i] = 0
	}
	e.prevIndex = -1
}

func (e *Engine) sma(ch, index int, src Source) (float64, error) {
	if index < e.period {
		return mean(src, ch, 0, index)
	}
	if e.prevIndex == index-1 {
		oldest, ok1 := src.At(ch, index-e.period)
		current, ok2 := src.At(ch, index)
		if ok1 && ok2 {
			p := float64(e.period)
			return e.prev[ch] - oldest/p + current/p, nil
		}
	}
	// Cold start or resume: full summation over the window.
	return mean(src, ch, index-e.period+1, index)
}

func (e *Engine) wma(ch, index int, src Source) (float64, error) {
	n := e.period
	if index+1 < n {
		n = index + 1
	}
	from := index - n + 1
	var num float64
	for i := from; i <= index; i++ {
		x, ok := src.At(ch, i)
		if !ok {
			return 0, fmt.Errorf("%w: wma input %d missing", ErrSequence, i)
		}
		num += x * float64(i-from+1)
	}
	return num / WeightSum(n), nil
}

func (e *Engine) ema(ch, index int, src Source) (float64, error) {
	if index < e.period {
		return mean(src, ch, 0, index)
	}
	if e.prevIndex != index-1 {
		return 0, fmt.Errorf("%w: ema at %d needs average at %d", ErrSequence, index, index-1)
	}
	x, ok := src.At(ch, index)
	if !ok {
		return 0, fmt.Errorf("%w: ema input %d missing", ErrSequence, index)
	}
	return x*e.alpha + e.prev[ch]*(1-e.alpha), nil
}

func mean(src Source, ch, from, to int) (float64, error) {
	var sum float64
	for i := from; i <= to; i++ {
		x, ok := src.At(ch, i)
		if !ok {
			return 0, fmt.Errorf("%w: input %d missing", ErrSequence, i)
		}
		sum += x
	}
	return sum / float64(to-from+1), nil
}

// WeightSum returns the sum of the linear weights 1..n.
func WeightSum(n int) float64 {
	return float64(n) * float64(n+1) / 2
}
