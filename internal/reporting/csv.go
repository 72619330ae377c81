package reporting

import (
	"fmt"
	"strings"

	"market-state-lab/internal/domain"
)

// RenderTransitionsCSV renders raw transition records as CSV string.
func RenderTransitionsCSV(records []domain.Transition) string {
	var sb strings.Builder

	sb.WriteString("input_key,output_key,index\n")
	for _, r := range records {
		sb.WriteString(fmt.Sprintf("%s,%s,%d\n", r.InputKey, r.OutputKey, r.Index))
	}

	return sb.String()
}

// RenderEdgesCSV renders the aggregated transition matrix as CSV string.
func RenderEdgesCSV(edges []EdgeRow) string {
	var sb strings.Builder

	sb.WriteString("input_key,output_key,count,probability\n")
	for _, e := range edges {
		sb.WriteString(fmt.Sprintf("%s,%s,%d,%.6f\n", e.Input, e.Output, e.Count, e.Probability))
	}

	return sb.String()
}

// RenderStatesCSV renders the state frequency table as CSV string.
func RenderStatesCSV(states []StateRow) string {
	var sb strings.Builder

	sb.WriteString("key,occurrences,successors,top_successor,top_probability\n")
	for _, s := range states {
		sb.WriteString(fmt.Sprintf("%s,%d,%d,%s,%.6f\n",
			s.Key, s.Occurrences, s.Successors, s.TopSuccessor, s.TopProbability))
	}

	return sb.String()
}
