package domain

// Row is one record of a derived series table (features, continuous, discrete).
// Values is addressed by column ID of the feature schema in use.
// Key is populated for discrete rows only.
type Row struct {
	Index     int
	Timestamp int64
	Open      float64
	High      float64
	Low       float64
	Close     float64
	Values    []float64
	Key       string
}

// NewRow creates a row carrying the bar passthrough fields and width value slots.
func NewRow(b *Bar, width int) *Row {
	return &Row{
		Index:     b.Index,
		Timestamp: b.Timestamp,
		Open:      b.Open,
		High:      b.High,
		Low:       b.Low,
		Close:     b.Close,
		Values:    make([]float64, width),
	}
}

// Clone returns a deep copy of the row.
func (r *Row) Clone() *Row {
	c := *r
	c.Values = make([]float64, len(r.Values))
	copy(c.Values, r.Values)
	return &c
}
