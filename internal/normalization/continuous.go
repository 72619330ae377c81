// Package normalization maps feature rows onto [-1, +1], quantizes them into segments
// and builds the composite state key of each row.
package normalization

import (
	"math"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/features"
)

// Normalize maps v linearly from [d.Minimum, d.Maximum] onto [-1, +1] and clips
// anything outside. A descriptor without width maps v above it to +1, below it to -1
// and everything else to 0.
func Normalize(v float64, d domain.Descriptor) float64 {
	if math.IsNaN(v) {
		return 0
	}
	w := d.Width()
	if !(w > 0) {
		switch {
		case v > d.Maximum:
			return 1
		case v < d.Minimum:
			return -1
		default:
			return 0
		}
	}
	return clip(2*(v-d.Minimum)/w - 1)
}

func clip(x float64) float64 {
	switch {
	case x > 1:
		return 1
	case x < -1:
		return -1
	}
	return x
}

// Continuous returns a copy of row with every rangeable column normalized by the
// descriptor of its name. Other columns pass through. A column without a
// descriptor is treated as zero-width.
func Continuous(row *domain.Row, schema *features.Schema, descriptors map[string]domain.Descriptor) *domain.Row {
	out := row.Clone()
	out.Key = ""
	for _, c := range schema.Rangeable() {
		d, ok := descriptors[c.Name]
		if !ok {
			d = domain.Descriptor{Feature: c.Name}
		}
		out.Values[c.ID] = Normalize(out.Values[c.ID], d)
	}
	return out
}
