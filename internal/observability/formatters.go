// Package observability provides formatted output utilities for verbose CLI mode.
package observability

import (
	"fmt"
	"io"
	"strings"

	"github.com/danielmv/storysmith/internal/guardrails"
	"github.com/danielmv/storysmith/internal/types"
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

// PrintEnhancedContent outputs a human-readable summary of generated content.
func (p *Printer) PrintEnhancedContent(content *types.EnhancedContent) {
	if content == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Title:  %s\n", content.Title))
	sb.WriteString(fmt.Sprintf("Type:   %s\n", content.Type))
	if content.StoryPoints != nil {
		sb.WriteString(fmt.Sprintf("Points: %g\n", *content.StoryPoints))
	}
	sb.WriteString("\n")

	if len(content.AcceptanceCriteria) > 0 {
		sb.WriteString("Acceptance Criteria:\n")
		count := min(len(content.AcceptanceCriteria), maxItemsToShow)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", content.AcceptanceCriteria[i]))
		}
		if len(content.AcceptanceCriteria) > maxItemsToShow {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(content.AcceptanceCriteria)-maxItemsToShow))
		}
		sb.WriteString("\n")
	}

	if len(content.Tasks) > 0 {
		sb.WriteString("Tasks:\n")
		for _, task := range content.Tasks {
			sb.WriteString(fmt.Sprintf("  • %s\n", task))
		}
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("Test cases: %d   Gaps: %d   Dependencies: %d",
		len(content.TestCases), len(content.Gaps), len(content.Dependencies)))

	p.printBox("ENHANCED CONTENT", sb.String())
}

// PrintGuardrailProfile outputs the parsed guardrail sections.
func (p *Printer) PrintGuardrailProfile(profile *guardrails.Profile) {
	if profile == nil || profile.IsEmpty() {
		return
	}

	var sb strings.Builder
	printSection := func(name string, items []string) {
		if len(items) == 0 {
			return
		}
		sb.WriteString(name + ":\n")
		count := min(len(items), 3)
		for i := 0; i < count; i++ {
			sb.WriteString(fmt.Sprintf("  • %s\n", items[i]))
		}
		if len(items) > 3 {
			sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(items)-3))
		}
	}
	printSection("Allowed", profile.Allowed)
	printSection("Principles", profile.Principles)
	printSection("Forbidden", profile.Forbidden)
	printSection("Conformance", profile.Conformance)

	p.printBox("GUARDRAIL PROFILE", strings.TrimSuffix(sb.String(), "\n"))
}

// PrintApplySummary outputs the batch-level result of a sync.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintApplySummary(results []types.ApplyResult, summary types.ApplySummary) {
	if summary.Total == 0 {
		fmt.Fprintf(p.out, "┌%s┐\n", strings.Repeat("─", boxWidth-2))
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, "NO ITEMS APPLIED")
		fmt.Fprintf(p.out, "└%s┘\n", strings.Repeat("─", boxWidth-2))
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Applied %d/%d items\n", summary.Succeeded, summary.Total))
	sb.WriteString(fmt.Sprintf("Sub-tasks created:  %d\n", summary.SubtasksCreated))
	sb.WriteString(fmt.Sprintf("Test cases created: %d\n", summary.TestCasesCreated))
	sb.WriteString(fmt.Sprintf("Test cases updated: %d\n", summary.TestCasesUpdated))

	for _, result := range results {
		if result.Success && len(result.Warnings) == 0 {
			continue
		}
		sb.WriteString("\n")
		if !result.Success {
			sb.WriteString(fmt.Sprintf("⚠ %s rejected: %s\n", result.ItemID, result.Error))
			continue
		}
		for _, warning := range result.Warnings {
			sb.WriteString(fmt.Sprintf("⚠ %s: %s\n", result.ItemID, warning))
		}
	}

	p.printBox("SYNC RESULT", strings.TrimSuffix(sb.String(), "\n"))
}
