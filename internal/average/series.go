package average

// SliceSource exposes fully materialized channels as a Source.
type SliceSource [][]float64

// Channels returns the number of channels.
func (s SliceSource) Channels() int { return len(s) }

// At returns the value of channel at index.
func (s SliceSource) At(channel, index int) (float64, bool) {
	if channel < 0 || channel >= len(s) || index < 0 || index >= len(s[channel]) {
		return 0, false
	}
	return s[channel][index], true
}

// Series computes the average of every index of values.
func Series(kind Kind, period int, values []float64) ([]float64, error) {
	e, err := New(kind, period, 1)
	if err != nil {
		return nil, err
	}
	src := SliceSource{values}
	out := make([]float64, len(values))
	for i := range values {
		v, err := e.Compute(i, src)
		if err != nil {
			return nil, err
		}
		out[i] = v[0]
	}
	return out, nil
}
