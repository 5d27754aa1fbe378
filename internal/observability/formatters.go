// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/resume-author/internal/pipeline"
	"github.com/jonathan/resume-author/internal/pipeline/stages"
	"github.com/jonathan/resume-author/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for verbose mode
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines
		if len(line) > boxWidth-4 {
			line = line[:boxWidth-7] + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintBenchmark outputs a human-readable summary of the parsed benchmark.
func (p *Printer) PrintBenchmark(bench *types.Benchmark) {
	if bench == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Role:     %s\n", bench.RoleTitle))
	if bench.Company != "" {
		sb.WriteString(fmt.Sprintf("Company:  %s\n", bench.Company))
	}
	sb.WriteString(fmt.Sprintf("Edit:     v%d\n", bench.EditVersion))
	sb.WriteString("\n")

	if len(bench.Requirements) > 0 {
		sb.WriteString("Requirements:\n")
		count := min(len(bench.Requirements), maxItemsToShow)
		for i := 0; i < count; i++ {
			req := bench.Requirements[i]
			text := req.Text
			if len(text) > 40 {
				text = text[:37] + "..."
			}
			sb.WriteString(fmt.Sprintf("  • %s [%s]\n", text, req.Criticality))
		}
		if len(bench.Requirements) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(bench.Requirements)-maxItemsToShow))
		}
		sb.WriteString("\n")
	}

	if len(bench.Keywords) > 0 {
		keywords := strings.Join(bench.Keywords, ", ")
		if len(keywords) > 45 {
			keywords = keywords[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("Keywords: %s\n", keywords))
	}

	p.printBox("PARSED BENCHMARK", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintGaps outputs the unresolved gaps with their evidence state.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintGaps(gaps []types.Gap) {
	if len(gaps) == 0 {
		border := strings.Repeat("─", boxWidth-2)
		fmt.Fprintf(p.out, "┌%s┐\n", border)
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "✅ NO GAPS FOUND")
		fmt.Fprintf(p.out, "└%s┘\n", border)
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d gaps:\n\n", len(gaps)))

	count := min(len(gaps), maxItemsToShow)
	for i := 0; i < count; i++ {
		gap := gaps[i]
		text := gap.Requirement.Text
		if len(text) > 45 {
			text = text[:42] + "..."
		}
		sb.WriteString(fmt.Sprintf("⚠ %s\n", text))
		sb.WriteString(fmt.Sprintf("  %s [%s]\n", gap.EvidenceState, gap.Requirement.Criticality))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(gaps) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more gaps", len(gaps)-maxItemsToShow))
	}

	p.printBox("EVIDENCE GAPS", sb.String())
}

// PrintSuggestions outputs ranked suggestions with priority tiers.
func (p *Printer) PrintSuggestions(suggestions []types.Suggestion) {
	if len(suggestions) == 0 {
		return
	}

	var sb strings.Builder
	count := min(len(suggestions), maxItemsToShow)
	for i := 0; i < count; i++ {
		s := suggestions[i]
		text := s.QuestionText
		if len(text) > 48 {
			text = text[:45] + "..."
		}
		sb.WriteString(fmt.Sprintf("#%d  [%s] %s\n", i+1, s.PriorityTier, s.Intent))
		sb.WriteString(fmt.Sprintf("    %s\n", text))
		if i < count-1 {
			sb.WriteString("\n")
		}
	}
	if len(suggestions) > maxItemsToShow {
		sb.WriteString(fmt.Sprintf("\n... and %d more", len(suggestions)-maxItemsToShow))
	}

	p.printBox("SUGGESTIONS", sb.String())
}

// PrintSnapshot outputs the run state with a per-stage progress marker.
func (p *Printer) PrintSnapshot(snap *pipeline.Snapshot) {
	if snap == nil || snap.Run == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Run:     %s\n", snap.Run.ID))
	sb.WriteString(fmt.Sprintf("Status:  %s\n", snap.Run.Status))
	if snap.Run.CurrentStage != "" {
		sb.WriteString(fmt.Sprintf("Stage:   %s\n", snap.Run.CurrentStage))
	}
	sb.WriteString("\n")

	for _, node := range snap.Nodes {
		sb.WriteString(fmt.Sprintf("%s %s (v%d)\n", nodeMarker(node.Status), node.Key, node.ActiveVersion))
	}

	if snap.PendingGate != nil {
		sb.WriteString(fmt.Sprintf("\nWaiting on gate: %s\n", snap.PendingGate.ID))
	}
	if snap.Replan != nil && snap.Replan.RequiresRestart && snap.Replan.State == types.ReplanPending {
		sb.WriteString("\nReplan pending: restart confirmation required\n")
	}

	p.printBox("RUN SNAPSHOT", strings.TrimSuffix(sb.String(), "\n"))
}

func nodeMarker(status types.NodeStatus) string {
	switch status {
	case types.NodeComplete, types.NodeAutoApproved:
		return "✓"
	case types.NodeInProgress:
		return "▶"
	case types.NodeBlocked:
		return "⏸"
	default:
		return "·"
	}
}

// PrintQualityReport outputs the final quality metrics.
func (p *Printer) PrintQualityReport(report *stages.QualityReport) {
	if report == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Keyword coverage:  %.0f%%\n", report.KeywordCoverage*100))
	sb.WriteString(fmt.Sprintf("Metric bullets:    %d of %d\n", report.MetricBullets, report.TotalBullets))
	sb.WriteString(fmt.Sprintf("Unresolved gaps:   %d\n", report.UnresolvedGaps))

	if len(report.MissingKeywords) > 0 {
		missing := strings.Join(report.MissingKeywords, ", ")
		if len(missing) > 40 {
			missing = missing[:37] + "..."
		}
		sb.WriteString(fmt.Sprintf("Missing keywords:  %s\n", missing))
	}

	p.printBox("QUALITY REPORT", strings.TrimSuffix(sb.String(), "\n"))
}
