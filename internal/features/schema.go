// Package features builds one feature row per bar: moving averages, smoothed averages,
// pairwise spreads, per-average speeds and optional displacement fits.
package features

import (
	"fmt"
	"sort"

	"market-state-lab/internal/config"
)

// ColumnKind classifies a derived column.
type ColumnKind int

const (
	KindAverage ColumnKind = iota
	KindSmoothed
	KindSpread
	KindSpeed
	KindDisplacement
)

func (k ColumnKind) String() string {
	switch k {
	case KindAverage:
		return "average"
	case KindSmoothed:
		return "smoothed"
	case KindSpread:
		return "spread"
	case KindSpeed:
		return "speed"
	case KindDisplacement:
		return "displacement"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Column describes one slot of Row.Values.
type Column struct {
	ID        int
	Name      string
	Kind      ColumnKind
	Period    int // average period; fast period for pair columns
	Slow      int // slow period for pair columns
	Smoothing int // sub-period of smoothed columns
	Rangeable bool
}

// Schema is the fixed column layout derived from the feature configuration.
// It is built once and shared read-only by every stage.
type Schema struct {
	columns      []Column
	byName       map[string]int
	periods      []int
	averageID    map[int]int
	speedMode    string
	speedWindow  int
	displacement bool
	maxLookback  int
}

// NewSchema builds the column layout. Periods are sorted ascending first.
func NewSchema(fc config.FeaturesConfig) (*Schema, error) {
	if len(fc.Averages) == 0 {
		return nil, fmt.Errorf("%w: no averages configured", config.ErrInvalid)
	}

	defs := make([]config.AverageConfig, len(fc.Averages))
	copy(defs, fc.Averages)
	sort.Slice(defs, func(i, j int) bool { return defs[i].Period < defs[j].Period })

	s := &Schema{
		byName:       make(map[string]int),
		averageID:    make(map[int]int),
		speedMode:    fc.Speed,
		speedWindow:  fc.SpeedWindow,
		displacement: fc.Displacement,
	}
	if s.speedMode == "" {
		s.speedMode = config.SpeedDiff
	}

	for i, d := range defs {
		if d.Period <= 0 {
			return nil, fmt.Errorf("%w: average period must be > 0, got %d", config.ErrInvalid, d.Period)
		}
		if i > 0 && defs[i-1].Period == d.Period {
			return nil, fmt.Errorf("%w: duplicate average period %d", config.ErrInvalid, d.Period)
		}
		s.periods = append(s.periods, d.Period)
		s.maxLookback = max(s.maxLookback, d.Period)
	}

	for _, d := range defs {
		s.averageID[d.Period] = s.add(Column{Name: fmt.Sprintf("avg_%d", d.Period), Kind: KindAverage, Period: d.Period})
		seen := make(map[int]bool)
		for _, sm := range d.Smoothing {
			if sm <= 0 {
				return nil, fmt.Errorf("%w: smoothing period must be > 0, got %d", config.ErrInvalid, sm)
			}
			if seen[sm] {
				continue
			}
			seen[sm] = true
			s.add(Column{Name: fmt.Sprintf("avg_%d_s%d", d.Period, sm), Kind: KindSmoothed, Period: d.Period, Smoothing: sm})
			s.maxLookback = max(s.maxLookback, sm)
		}
	}

	for _, p := range s.pairs() {
		s.add(Column{Name: fmt.Sprintf("spread_%d_%d", p[0], p[1]), Kind: KindSpread, Period: p[0], Slow: p[1], Rangeable: true})
	}

	for _, p := range s.periods {
		s.add(Column{Name: fmt.Sprintf("speed_%d", p), Kind: KindSpeed, Period: p, Rangeable: true})
	}
	switch s.speedMode {
	case config.SpeedDiff:
		s.maxLookback = max(s.maxLookback, 2)
	case config.SpeedRegression:
		if s.speedWindow < 2 {
			return nil, fmt.Errorf("%w: regression speed window must be >= 2, got %d", config.ErrInvalid, s.speedWindow)
		}
		s.maxLookback = max(s.maxLookback, s.speedWindow)
	default:
		return nil, fmt.Errorf("%w: unknown speed mode %q", config.ErrInvalid, s.speedMode)
	}

	if s.displacement {
		for _, p := range s.pairs() {
			s.add(Column{Name: fmt.Sprintf("disp_%d_%d", p[0], p[1]), Kind: KindDisplacement, Period: p[0], Slow: p[1], Rangeable: true})
		}
	}

	return s, nil
}

// pairs returns every (fast, slow) pair with fast < slow over the sorted periods.
func (s *Schema) pairs() [][2]int {
	var out [][2]int
	for i := 0; i < len(s.periods); i++ {
		for j := i + 1; j < len(s.periods); j++ {
			out = append(out, [2]int{s.periods[i], s.periods[j]})
		}
	}
	return out
}

func (s *Schema) add(c Column) int {
	c.ID = len(s.columns)
	s.columns = append(s.columns, c)
	s.byName[c.Name] = c.ID
	return c.ID
}

// Width returns the number of value columns.
func (s *Schema) Width() int { return len(s.columns) }

// Columns returns the columns in ID order.
func (s *Schema) Columns() []Column {
	out := make([]Column, len(s.columns))
	copy(out, s.columns)
	return out
}

// Column returns the column with the given ID.
func (s *Schema) Column(id int) Column { return s.columns[id] }

// Lookup resolves a column name.
func (s *Schema) Lookup(name string) (Column, bool) {
	id, ok := s.byName[name]
	if !ok {
		return Column{}, false
	}
	return s.columns[id], true
}

// Names returns every column name in ID order.
func (s *Schema) Names() []string {
	out := make([]string, len(s.columns))
	for i, c := range s.columns {
		out[i] = c.Name
	}
	return out
}

// Rangeable returns the columns taking part in range extraction and normalization.
func (s *Schema) Rangeable() []Column {
	var out []Column
	for _, c := range s.columns {
		if c.Rangeable {
			out = append(out, c)
		}
	}
	return out
}

// Periods returns the sorted average periods.
func (s *Schema) Periods() []int {
	out := make([]int, len(s.periods))
	copy(out, s.periods)
	return out
}

// MaxLookback is the deepest history any column needs.
func (s *Schema) MaxLookback() int { return s.maxLookback }

// KeyColumns resolves the ordered state key columns. Every name must exist and be rangeable.
func (s *Schema) KeyColumns(names []string) ([]int, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: no key columns", config.ErrInvalid)
	}
	ids := make([]int, 0, len(names))
	seen := make(map[string]bool, len(names))
	for _, n := range names {
		c, ok := s.Lookup(n)
		if !ok {
			return nil, fmt.Errorf("%w: unknown key column %q", config.ErrInvalid, n)
		}
		if !c.Rangeable {
			return nil, fmt.Errorf("%w: key column %q is not normalizable", config.ErrInvalid, n)
		}
		if seen[n] {
			return nil, fmt.Errorf("%w: duplicate key column %q", config.ErrInvalid, n)
		}
		seen[n] = true
		ids = append(ids, c.ID)
	}
	return ids, nil
}
