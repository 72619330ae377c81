package normalization

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"market-state-lab/internal/config"
)

// boundaryEps keeps values printed as segment boundaries (e.g. -0.9 with 20 segments)
// on the upper side despite binary rounding.
const boundaryEps = 1e-9

// Quantizer splits [-1, +1] into equal segments and replaces a value by the centre
// of its segment, rounded at a fixed decimal scale.
type Quantizer struct {
	segments int
	scale    int32
	reps     []float64
}

// NewQuantizer builds a quantizer. Every segment representative must survive
// rounding at scale without leaving its segment, so quantization stays idempotent.
func NewQuantizer(segments, scale int) (*Quantizer, error) {
	if segments < 2 {
		return nil, fmt.Errorf("%w: segments must be >= 2, got %d", config.ErrInvalid, segments)
	}
	if scale < 0 || scale > 9 {
		return nil, fmt.Errorf("%w: scale must be in [0,9], got %d", config.ErrInvalid, scale)
	}

	q := &Quantizer{segments: segments, scale: int32(scale), reps: make([]float64, segments)}
	width := 2.0 / float64(segments)
	for i := range q.reps {
		centre := -1 + (float64(i)+0.5)*width
		rep, _ := decimal.NewFromFloat(centre).Round(q.scale).Float64()
		q.reps[i] = rep
		if got := q.Segment(rep); got != i {
			return nil, fmt.Errorf("%w: %d segments cannot be represented at scale %d (segment %d rounds to %v)",
				config.ErrInvalid, segments, scale, i, rep)
		}
	}
	return q, nil
}

// Segments returns the segment count.
func (q *Quantizer) Segments() int { return q.segments }

// Scale returns the decimal scale of the representatives.
func (q *Quantizer) Scale() int { return int(q.scale) }

// Segment returns the segment index of x in [0, Segments). Values are clipped to
// [-1, +1] first, -1 falls in the first segment and +1 in the last.
func (q *Quantizer) Segment(x float64) int {
	if math.IsNaN(x) {
		x = 0
	}
	x = clip(x)
	idx := int(math.Floor((x+1)*float64(q.segments)/2 + boundaryEps))
	if idx >= q.segments {
		idx = q.segments - 1
	}
	if idx < 0 {
		idx = 0
	}
	return idx
}

// Quantize returns the representative of the segment of x.
func (q *Quantizer) Quantize(x float64) float64 {
	return q.reps[q.Segment(x)]
}

// Representatives returns every segment representative in ascending order.
func (q *Quantizer) Representatives() []float64 {
	out := make([]float64, len(q.reps))
	copy(out, q.reps)
	return out
}
