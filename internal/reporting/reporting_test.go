package reporting

import (
	"context"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"market-state-lab/internal/domain"
	"market-state-lab/internal/storage/memory"
)

// keys A B A C A B give records (A,B,1) (B,A,2) (A,C,3) (C,A,4) (A,B,5).
func scenarioRecords() []domain.Transition {
	return []domain.Transition{
		{InputKey: "A", OutputKey: "B", Index: 1},
		{InputKey: "B", OutputKey: "A", Index: 2},
		{InputKey: "A", OutputKey: "C", Index: 3},
		{InputKey: "C", OutputKey: "A", Index: 4},
		{InputKey: "A", OutputKey: "B", Index: 5},
	}
}

func TestEdges(t *testing.T) {
	edges := Edges(scenarioRecords())
	want := []EdgeRow{
		{Input: "A", Output: "B", Count: 2, Probability: 2.0 / 3.0},
		{Input: "A", Output: "C", Count: 1, Probability: 1.0 / 3.0},
		{Input: "B", Output: "A", Count: 1, Probability: 1},
		{Input: "C", Output: "A", Count: 1, Probability: 1},
	}
	if !reflect.DeepEqual(edges, want) {
		t.Fatalf("edges = %+v\nwant %+v", edges, want)
	}
}

func TestStates(t *testing.T) {
	states := States(Edges(scenarioRecords()))
	if len(states) != 3 {
		t.Fatalf("expected 3 states, got %d", len(states))
	}
	a := states[0]
	if a.Key != "A" || a.Occurrences != 3 || a.Successors != 2 || a.TopSuccessor != "B" {
		t.Errorf("state A = %+v", a)
	}
	if states[1].Key != "B" || states[2].Key != "C" {
		t.Errorf("tie order = %s, %s", states[1].Key, states[2].Key)
	}
}

func TestStates_TieKeepsSmallestSuccessor(t *testing.T) {
	states := States(Edges([]domain.Transition{
		{InputKey: "X", OutputKey: "Z", Index: 1},
		{InputKey: "X", OutputKey: "Y", Index: 3},
	}))
	if states[0].TopSuccessor != "Y" || states[0].TopProbability != 0.5 {
		t.Errorf("state = %+v", states[0])
	}
}

func TestGenerator_Generate(t *testing.T) {
	ctx := context.Background()
	store := memory.NewTransitionStore("btc_transitions")
	if err := store.InsertBulk(ctx, scenarioRecords()); err != nil {
		t.Fatalf("InsertBulk failed: %v", err)
	}

	start := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	gen := NewGenerator(store).WithClock(func() time.Time { return start })
	r, err := gen.Generate(ctx, Input{
		Series: "btc",
		RunID:  "run-1",
		Runs: []domain.StageRun{
			{Stage: "features", Status: domain.RunSuccess, Rows: 6, StartedAt: start, FinishedAt: start.Add(1500 * time.Millisecond)},
		},
		Descriptors: map[string]domain.Descriptor{
			"speed_3":    {Feature: "speed_3", Minimum: -2, Maximum: 2},
			"spread_3_5": {Feature: "spread_3_5", Minimum: -0.5, Maximum: 0.5},
		},
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}

	if r.TransitionCount != 5 || len(r.Edges) != 4 || len(r.States) != 3 {
		t.Errorf("counts: transitions=%d edges=%d states=%d", r.TransitionCount, len(r.Edges), len(r.States))
	}
	if r.Descriptors[0].Feature != "speed_3" || r.Descriptors[1].Feature != "spread_3_5" {
		t.Errorf("descriptor order = %+v", r.Descriptors)
	}
	if r.Stages[0].Duration != 1500*time.Millisecond {
		t.Errorf("duration = %v", r.Stages[0].Duration)
	}

	md := RenderMarkdown(r)
	for _, want := range []string{
		"# Market State Report: btc",
		"Generated: 2024-01-02T03:04:05Z",
		"| features | success | 6 | 1.5s |",
		"| speed_3 | -2.000000 | 2.000000 |",
		"Transitions: 5 | States: 3 | Edges: 4",
		"| `A` | 3 | 2 | `B` | 0.6667 |",
	} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q\n%s", want, md)
		}
	}
}

func TestRenderMarkdown_Empty(t *testing.T) {
	md := RenderMarkdown(&Report{Series: "eth"})
	for _, want := range []string{"No stages recorded.", "No descriptors available.", "No transitions available."} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q", want)
		}
	}
}

func TestRenderMarkdown_TruncatesStates(t *testing.T) {
	r := &Report{}
	for i := 0; i < TopStates+3; i++ {
		r.States = append(r.States, StateRow{Key: string(rune('a' + i)), Occurrences: 1})
	}
	if md := RenderMarkdown(r); !strings.Contains(md, "3 more states omitted.") {
		t.Errorf("expected truncation note\n%s", md)
	}
}

func TestRenderCSV(t *testing.T) {
	records := scenarioRecords()[:2]
	if got := RenderTransitionsCSV(records); got != "input_key,output_key,index\nA,B,1\nB,A,2\n" {
		t.Errorf("transitions csv = %q", got)
	}

	edges := Edges(scenarioRecords())
	lines := strings.Split(strings.TrimSpace(RenderEdgesCSV(edges)), "\n")
	if len(lines) != 5 || lines[1] != "A,B,2,0.666667" {
		t.Errorf("edges csv = %q", lines)
	}

	states := States(edges)
	lines = strings.Split(strings.TrimSpace(RenderStatesCSV(states)), "\n")
	if lines[0] != "key,occurrences,successors,top_successor,top_probability" || lines[1] != "A,3,2,B,0.666667" {
		t.Errorf("states csv = %q", lines)
	}
}

func TestEdgesParquet_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "edges.parquet")
	edges := Edges(scenarioRecords())
	if err := WriteEdgesParquet(path, edges); err != nil {
		t.Fatalf("WriteEdgesParquet failed: %v", err)
	}
	got, err := ReadEdgesParquet(path)
	if err != nil {
		t.Fatalf("ReadEdgesParquet failed: %v", err)
	}
	if !reflect.DeepEqual(got, edges) {
		t.Errorf("round trip = %+v\nwant %+v", got, edges)
	}
}
