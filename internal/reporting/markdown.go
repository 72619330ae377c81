package reporting

import (
	"fmt"
	"strings"
	"time"
)

// TopStates is the number of states listed in the markdown summary.
const TopStates = 20

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("# Market State Report: %s\n\n", r.Series))
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	if r.RunID != "" {
		sb.WriteString(fmt.Sprintf("Run: `%s`\n\n", r.RunID))
	}

	// Stages
	sb.WriteString("## Stages\n\n")
	if len(r.Stages) > 0 {
		sb.WriteString("| Stage | Status | Rows | Duration |\n")
		sb.WriteString("|-------|--------|------|----------|\n")
		for _, s := range r.Stages {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d | %s |\n",
				s.Stage, s.Status, s.Rows, s.Duration.Round(time.Millisecond)))
		}
		for _, s := range r.Stages {
			if s.Error != "" {
				sb.WriteString(fmt.Sprintf("\n**%s:** %s\n", s.Stage, s.Error))
			}
		}
	} else {
		sb.WriteString("No stages recorded.\n")
	}
	sb.WriteString("\n")

	// Descriptors
	sb.WriteString("## Normalization Bounds\n\n")
	if len(r.Descriptors) > 0 {
		sb.WriteString("| Feature | Minimum | Maximum |\n")
		sb.WriteString("|---------|---------|---------|\n")
		for _, d := range r.Descriptors {
			sb.WriteString(fmt.Sprintf("| %s | %.6f | %.6f |\n", d.Feature, d.Minimum, d.Maximum))
		}
	} else {
		sb.WriteString("No descriptors available.\n")
	}
	sb.WriteString("\n")

	// States
	sb.WriteString("## States\n\n")
	sb.WriteString(fmt.Sprintf("Transitions: %d | States: %d | Edges: %d\n\n",
		r.TransitionCount, len(r.States), len(r.Edges)))
	if len(r.States) > 0 {
		sb.WriteString("| Key | Occurrences | Successors | Top Successor | Probability |\n")
		sb.WriteString("|-----|-------------|------------|---------------|-------------|\n")
		for i, s := range r.States {
			if i == TopStates {
				sb.WriteString(fmt.Sprintf("\n%d more states omitted.\n", len(r.States)-TopStates))
				break
			}
			sb.WriteString(fmt.Sprintf("| `%s` | %d | %d | `%s` | %.4f |\n",
				s.Key, s.Occurrences, s.Successors, s.TopSuccessor, s.TopProbability))
		}
	} else {
		sb.WriteString("No transitions available.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}
