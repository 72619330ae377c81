package domain

// RangeKind distinguishes local minima from local maxima.
type RangeKind string

const (
	RangeMin RangeKind = "min"
	RangeMax RangeKind = "max"
)

// Valid reports whether k is a known kind.
func (k RangeKind) Valid() bool {
	return k == RangeMin || k == RangeMax
}

// RangeSample is one raw extremum occurrence of a feature over a window period.
// Corresponds to the <series>_ranges table.
type RangeSample struct {
	Feature string    // feature column name
	Period  int       // window period that qualified the sample
	Kind    RangeKind // min or max
	Value   float64   // raw feature value at Index
	Index   int       // source index of the occurrence
}

// RangeStat aggregates range samples of one feature and kind across all periods.
type RangeStat struct {
	Feature string
	Kind    RangeKind
	Mean    float64
	StdDev  float64 // population standard deviation
	Count   int
}

// Descriptor holds the normalization bounds of a feature.
type Descriptor struct {
	Feature string
	Minimum float64
	Maximum float64
}

// Width returns Maximum - Minimum.
func (d Descriptor) Width() float64 {
	return d.Maximum - d.Minimum
}
