package reporting

import (
	"context"
	"fmt"
	"sort"
	"time"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage"
)

// Generator produces reports from the transition table of a series.
type Generator struct {
	transitions storage.TransitionStore
	now         func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(transitions storage.TransitionStore) *Generator {
	return &Generator{
		transitions: transitions,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Input carries what the run produced besides the transition table.
type Input struct {
	Series      string
	RunID       string
	Runs        []domain.StageRun
	Descriptors map[string]domain.Descriptor
}

// Generate builds the report of one run.
func (g *Generator) Generate(ctx context.Context, in Input) (*Report, error) {
	records, err := g.transitions.All(ctx)
	if err != nil {
		return nil, fmt.Errorf("load transitions: %w", err)
	}

	edges := Edges(records)
	return &Report{
		GeneratedAt:     g.now(),
		Series:          in.Series,
		RunID:           in.RunID,
		Stages:          stageRows(in.Runs),
		Descriptors:     descriptorRows(in.Descriptors),
		States:          States(edges),
		Edges:           edges,
		TransitionCount: len(records),
	}, nil
}

func stageRows(runs []domain.StageRun) []StageRow {
	out := make([]StageRow, 0, len(runs))
	for _, r := range runs {
		out = append(out, StageRow{
			Stage:    r.Stage,
			Status:   r.Status,
			Rows:     r.Rows,
			Duration: r.Duration(),
			Error:    r.Error,
		})
	}
	return out
}

func descriptorRows(desc map[string]domain.Descriptor) []DescriptorRow {
	out := make([]DescriptorRow, 0, len(desc))
	for name, d := range desc {
		out = append(out, DescriptorRow{Feature: name, Minimum: d.Minimum, Maximum: d.Maximum})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Feature < out[j].Feature })
	return out
}

// Edges counts transition records per (input, output) pair. Probability is the
// share of the input's outgoing records.
func Edges(records []domain.Transition) []EdgeRow {
	type pair struct{ in, out string }
	counts := make(map[pair]int64)
	totals := make(map[string]int64)
	for _, r := range records {
		counts[pair{r.InputKey, r.OutputKey}]++
		totals[r.InputKey]++
	}

	edges := make([]EdgeRow, 0, len(counts))
	for p, n := range counts {
		edges = append(edges, EdgeRow{
			Input:       p.in,
			Output:      p.out,
			Count:       n,
			Probability: float64(n) / float64(totals[p.in]),
		})
	}
	sort.Slice(edges, func(i, j int) bool {
		if edges[i].Input != edges[j].Input {
			return edges[i].Input < edges[j].Input
		}
		return edges[i].Output < edges[j].Output
	})
	return edges
}

// States folds edges into one row per input state.
func States(edges []EdgeRow) []StateRow {
	byKey := make(map[string]*StateRow)
	var order []string
	for _, e := range edges {
		s, ok := byKey[e.Input]
		if !ok {
			s = &StateRow{Key: e.Input}
			byKey[e.Input] = s
			order = append(order, e.Input)
		}
		s.Occurrences += int(e.Count)
		s.Successors++
		// Edges arrive sorted by output, so strict > keeps the smallest key on ties.
		if e.Probability > s.TopProbability {
			s.TopSuccessor, s.TopProbability = e.Output, e.Probability
		}
	}

	out := make([]StateRow, 0, len(order))
	for _, k := range order {
		out = append(out, *byKey[k])
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Occurrences != out[j].Occurrences {
			return out[i].Occurrences > out[j].Occurrences
		}
		return out[i].Key < out[j].Key
	})
	return out
}
