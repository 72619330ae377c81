// Package ranges extracts local extrema of the rangeable feature columns and
// aggregates them into normalization descriptors.
package ranges

import (
	"fmt"
	"sort"

	"market-state-lab/internal/config"
	"market-state-lab/internal/domain"
	"market-state-lab/internal/features"
	"market-state-lab/internal/ring"
)

// Extractor tests every feature row against trailing windows of each period.
// Rows must be observed in index order.
type Extractor struct {
	columns []features.Column
	periods []int
	history map[int]*ring.Buffer // by column ID
	last    int
}

// NewExtractor creates an extractor over the rangeable columns of schema.
// An empty periods list falls back to the schema's average periods.
func NewExtractor(schema *features.Schema, periods []int) (*Extractor, error) {
	if len(periods) == 0 {
		periods = schema.Periods()
	}
	ps := make([]int, 0, len(periods))
	seen := make(map[int]bool, len(periods))
	maxPeriod := 0
	for _, p := range periods {
		if p <= 0 {
			return nil, fmt.Errorf("%w: range period must be > 0, got %d", config.ErrInvalid, p)
		}
		if seen[p] {
			continue
		}
		seen[p] = true
		ps = append(ps, p)
		maxPeriod = max(maxPeriod, p)
	}
	sort.Ints(ps)

	e := &Extractor{
		columns: schema.Rangeable(),
		periods: ps,
		history: make(map[int]*ring.Buffer),
		last:    -1,
	}
	for _, c := range e.columns {
		e.history[c.ID] = ring.New(maxPeriod)
	}
	return e, nil
}

// Periods returns the window periods in use.
func (e *Extractor) Periods() []int {
	out := make([]int, len(e.periods))
	copy(out, e.periods)
	return out
}

// Observe records row and returns the samples it qualifies for.
func (e *Extractor) Observe(row *domain.Row) ([]domain.RangeSample, error) {
	i := row.Index
	if i != e.last+1 {
		return nil, fmt.Errorf("ranges: row index %d, expected %d", i, e.last+1)
	}
	for _, c := range e.columns {
		if c.ID >= len(row.Values) {
			return nil, fmt.Errorf("ranges: row %d has %d values, column %s needs %d", i, len(row.Values), c.Name, c.ID+1)
		}
		if err := e.history[c.ID].Push(i, row.Values[c.ID]); err != nil {
			return nil, err
		}
	}
	e.last = i

	var out []domain.RangeSample
	for _, c := range e.columns {
		v := row.Values[c.ID]
		if v == 0 {
			continue
		}
		kind := domain.RangeMax
		if v < 0 {
			kind = domain.RangeMin
		}
		for _, p := range e.periods {
			n := min(p, i+1)
			window, ok := e.history[c.ID].Window(i-n+1, i)
			if !ok {
				return nil, fmt.Errorf("ranges: window [%d,%d] of %s not held", i-n+1, i, c.Name)
			}
			if extreme(window, v, kind) {
				out = append(out, domain.RangeSample{Feature: c.Name, Period: p, Kind: kind, Value: v, Index: i})
			}
		}
	}
	return out, nil
}

// extreme reports whether v is not exceeded by any window value in the direction of kind.
func extreme(window []float64, v float64, kind domain.RangeKind) bool {
	for _, w := range window {
		if kind == domain.RangeMin && w < v {
			return false
		}
		if kind == domain.RangeMax && w > v {
			return false
		}
	}
	return true
}

// ExtractAll runs an extractor over a complete slice of rows.
func ExtractAll(schema *features.Schema, periods []int, rows []*domain.Row) ([]domain.RangeSample, error) {
	e, err := NewExtractor(schema, periods)
	if err != nil {
		return nil, err
	}
	var out []domain.RangeSample
	for _, r := range rows {
		s, err := e.Observe(r)
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	return out, nil
}
