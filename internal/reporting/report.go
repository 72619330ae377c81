// Package reporting renders the results of a pipeline run: the transition edge
// list, the state frequency table and a markdown summary.
package reporting

import "time"

// Report summarizes one pipeline run of a series.
type Report struct {
	GeneratedAt time.Time
	Series      string
	RunID       string

	Stages      []StageRow      // in execution order
	Descriptors []DescriptorRow // sorted by feature
	States      []StateRow      // sorted by occurrences DESC, key ASC
	Edges       []EdgeRow       // sorted by input, output

	TransitionCount int // raw transition records
}

// StageRow is one finished stage.
type StageRow struct {
	Stage    string
	Status   string
	Rows     int
	Duration time.Duration
	Error    string
}

// DescriptorRow holds the normalization bounds of one feature.
type DescriptorRow struct {
	Feature string
	Minimum float64
	Maximum float64
}

// StateRow describes the outgoing transitions of one state key.
type StateRow struct {
	Key            string
	Occurrences    int     // transitions leaving the state
	Successors     int     // distinct successor states
	TopSuccessor   string  // most frequent successor, ties broken by key
	TopProbability float64 // share of Occurrences going to TopSuccessor
}

// EdgeRow is one aggregated edge of the transition matrix.
type EdgeRow struct {
	Input       string  `parquet:"input"`
	Output      string  `parquet:"output"`
	Count       int64   `parquet:"count"`
	Probability float64 `parquet:"probability"`
}
