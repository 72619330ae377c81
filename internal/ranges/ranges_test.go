package ranges

import (
	"errors"
	"math"
	"testing"

	"market-state-lab/internal/config"
	"market-state-lab/internal/domain"
	"market-state-lab/internal/features"
)

// speedSchema has two periods, so speed_2 and speed_4 are the first rangeable columns.
func speedSchema(t *testing.T) *features.Schema {
	t.Helper()
	s, err := features.NewSchema(config.FeaturesConfig{Averages: []config.AverageConfig{{Period: 2}, {Period: 4}}})
	if err != nil {
		t.Fatalf("NewSchema failed: %v", err)
	}
	return s
}

// rowsFor builds rows whose named column follows values and every other column is zero.
func rowsFor(s *features.Schema, name string, values []float64) []*domain.Row {
	c, _ := s.Lookup(name)
	rows := make([]*domain.Row, len(values))
	for i, v := range values {
		rows[i] = &domain.Row{Index: i, Values: make([]float64, s.Width())}
		rows[i].Values[c.ID] = v
	}
	return rows
}

func TestObserve_TrailingExtrema(t *testing.T) {
	s := speedSchema(t)
	rows := rowsFor(s, "speed_2", []float64{0, -1, -3, -2, 0, 2, 5, 4, 1})

	samples, err := ExtractAll(s, []int{3}, rows)
	if err != nil {
		t.Fatalf("ExtractAll failed: %v", err)
	}

	type hit struct {
		kind  domain.RangeKind
		index int
	}
	want := []hit{
		{domain.RangeMin, 1}, // window [0,1]
		{domain.RangeMin, 2},
		{domain.RangeMax, 5}, // window [3,5]
		{domain.RangeMax, 6},
	}
	if len(samples) != len(want) {
		t.Fatalf("expected %d samples, got %d: %+v", len(want), len(samples), samples)
	}
	for i, w := range want {
		got := samples[i]
		if got.Feature != "speed_2" || got.Period != 3 || got.Kind != w.kind || got.Index != w.index {
			t.Errorf("sample %d = %+v, want %v at %d", i, got, w.kind, w.index)
		}
		if got.Value != rows[got.Index].Values[mustID(s, "speed_2")] {
			t.Errorf("sample %d value %v does not match row", i, got.Value)
		}
	}
}

func mustID(s *features.Schema, name string) int {
	c, _ := s.Lookup(name)
	return c.ID
}

func TestObserve_ZeroNeverQualifies(t *testing.T) {
	s := speedSchema(t)
	samples, err := ExtractAll(s, []int{2, 5}, rowsFor(s, "speed_4", make([]float64, 20)))
	if err != nil {
		t.Fatalf("ExtractAll failed: %v", err)
	}
	if len(samples) != 0 {
		t.Errorf("expected no samples on an all-zero series, got %d", len(samples))
	}
}

func TestObserve_OnePerPeriod(t *testing.T) {
	s := speedSchema(t)
	// A new running maximum qualifies for every period.
	samples, err := ExtractAll(s, []int{2, 3, 2}, rowsFor(s, "speed_4", []float64{1, 2, 3}))
	if err != nil {
		t.Fatalf("ExtractAll failed: %v", err)
	}
	if len(samples) != 6 {
		t.Fatalf("expected 6 samples (3 rows x 2 distinct periods), got %d", len(samples))
	}
}

func TestObserve_DefaultPeriodsAndOrder(t *testing.T) {
	s := speedSchema(t)
	e, err := NewExtractor(s, nil)
	if err != nil {
		t.Fatalf("NewExtractor failed: %v", err)
	}
	if got := e.Periods(); len(got) != 2 || got[0] != 2 || got[1] != 4 {
		t.Errorf("default periods = %v", got)
	}

	rows := rowsFor(s, "speed_2", []float64{1, 2})
	if _, err := e.Observe(rows[1]); err == nil {
		t.Error("expected error for out-of-order row")
	}

	if _, err := NewExtractor(s, []int{3, 0}); !errors.Is(err, config.ErrInvalid) {
		t.Errorf("expected ErrInvalid for zero period, got %v", err)
	}
}

func TestAggregate(t *testing.T) {
	samples := []domain.RangeSample{
		{Feature: "b", Kind: domain.RangeMax, Value: 2, Period: 3},
		{Feature: "b", Kind: domain.RangeMax, Value: 4, Period: 5},
		{Feature: "a", Kind: domain.RangeMin, Value: -1, Period: 3},
		{Feature: "a", Kind: domain.RangeMin, Value: -3, Period: 3},
		{Feature: "a", Kind: domain.RangeMax, Value: 6, Period: 5},
	}
	stats := Aggregate(samples)
	if len(stats) != 3 {
		t.Fatalf("expected 3 groups, got %d", len(stats))
	}

	want := []domain.RangeStat{
		{Feature: "a", Kind: domain.RangeMax, Mean: 6, StdDev: 0, Count: 1},
		{Feature: "a", Kind: domain.RangeMin, Mean: -2, StdDev: 1, Count: 2},
		{Feature: "b", Kind: domain.RangeMax, Mean: 3, StdDev: 1, Count: 2},
	}
	for i, w := range want {
		g := stats[i]
		if g.Feature != w.Feature || g.Kind != w.Kind || g.Count != w.Count ||
			math.Abs(g.Mean-w.Mean) > 1e-12 || math.Abs(g.StdDev-w.StdDev) > 1e-12 {
			t.Errorf("stat %d = %+v, want %+v", i, g, w)
		}
	}
}

func TestDescriptors(t *testing.T) {
	stats := []domain.RangeStat{
		{Feature: "both", Kind: domain.RangeMin, Mean: -2, StdDev: 0.5},
		{Feature: "both", Kind: domain.RangeMax, Mean: 3, StdDev: 1},
		{Feature: "lo", Kind: domain.RangeMin, Mean: -1, StdDev: 0.25},
		{Feature: "hi", Kind: domain.RangeMax, Mean: 4, StdDev: 0},
	}
	d := Descriptors(stats, 2.0, []string{"both", "lo", "hi", "none"})

	check := func(name string, lo, hi float64) {
		t.Helper()
		got, ok := d[name]
		if !ok {
			t.Fatalf("missing descriptor %s", name)
		}
		if math.Abs(got.Minimum-lo) > 1e-12 || math.Abs(got.Maximum-hi) > 1e-12 {
			t.Errorf("%s = [%v, %v], want [%v, %v]", name, got.Minimum, got.Maximum, lo, hi)
		}
	}
	check("both", -3, 5)
	check("lo", -1.5, 1.5)
	check("hi", -4, 4)
	check("none", 0, 0)
	if d["none"].Width() != 0 {
		t.Errorf("expected zero-width descriptor")
	}
}
