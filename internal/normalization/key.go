package normalization

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// ErrMalformedKey is returned by ParseKey for strings not produced by a KeyBuilder
// of the same shape.
var ErrMalformedKey = errors.New("normalization: malformed state key")

// KeyBuilder renders the state key of a discrete row. Each component is
// v·10^scale + 10^scale zero-padded to scale+1 digits, so -1 encodes as all zeros,
// 0 as 1 followed by zeros and +1 as 2 followed by zeros (scale 2: "000", "100", "200").
// Keys of one configuration have a fixed length and sort in numeric order,
// component by component.
type KeyBuilder struct {
	columns []int
	scale   int32
	offset  int64 // 10^scale
}

// NewKeyBuilder creates a key builder over the given value column IDs.
func NewKeyBuilder(columns []int, scale int) *KeyBuilder {
	cols := make([]int, len(columns))
	copy(cols, columns)
	offset := int64(1)
	for range scale {
		offset *= 10
	}
	return &KeyBuilder{columns: cols, scale: int32(scale), offset: offset}
}

// ComponentWidth returns the length of one key component.
func (k *KeyBuilder) ComponentWidth() int { return int(k.scale) + 1 }

// Key builds the key from a row's values. Values outside [-1, +1] are clamped.
func (k *KeyBuilder) Key(values []float64) string {
	var sb strings.Builder
	sb.Grow(len(k.columns) * k.ComponentWidth())
	for _, id := range k.columns {
		k.writeComponent(&sb, values[id])
	}
	return sb.String()
}

func (k *KeyBuilder) writeComponent(sb *strings.Builder, v float64) {
	n := decimal.NewFromFloat(v).Shift(k.scale).Round(0).IntPart()
	n = max(-k.offset, min(k.offset, n))
	fmt.Fprintf(sb, "%0*d", k.ComponentWidth(), n+k.offset)
}

// ParseKey splits a key back into its component values.
func (k *KeyBuilder) ParseKey(key string) ([]float64, error) {
	w := k.ComponentWidth()
	if len(key) != w*len(k.columns) {
		return nil, fmt.Errorf("%w: %q has length %d, want %d", ErrMalformedKey, key, len(key), w*len(k.columns))
	}
	out := make([]float64, len(k.columns))
	for i := range out {
		part := key[i*w : (i+1)*w]
		for j := 0; j < len(part); j++ {
			if part[j] < '0' || part[j] > '9' {
				return nil, fmt.Errorf("%w: component %q is not a number", ErrMalformedKey, part)
			}
		}
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: component %q: %v", ErrMalformedKey, part, err)
		}
		if n > 2*k.offset {
			return nil, fmt.Errorf("%w: component %q above +1", ErrMalformedKey, part)
		}
		out[i], _ = decimal.New(n-k.offset, -k.scale).Float64()
	}
	return out, nil
}
