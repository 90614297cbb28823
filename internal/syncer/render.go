package syncer

import (
	"fmt"
	"strings"

	"github.com/danielmv/storysmith/internal/format"
	"github.com/danielmv/storysmith/internal/types"
)

// RenderDescription rebuilds the description markup from the enhanced content
// parts. It is used only when no description override exists; overrides are
// written verbatim.
func RenderDescription(enhanced *types.EnhancedContent) string {
	var sections []string

	if rgr := strings.TrimSpace(enhanced.RoleGoalReason); rgr != "" {
		sections = append(sections, "_"+rgr+"_")
	}
	if desc := strings.TrimSpace(enhanced.Description); desc != "" {
		sections = append(sections, desc)
	}
	if len(enhanced.ImplementationNotes) > 0 {
		sections = append(sections, bulletSection("Implementation Notes", enhanced.ImplementationNotes))
	}
	if enhanced.StoryPoints != nil {
		estimate := fmt.Sprintf("## Estimate\n\n- %g story points", *enhanced.StoryPoints)
		if rationale := strings.TrimSpace(enhanced.EstimateRationale); rationale != "" {
			estimate += "\n- " + rationale
		}
		sections = append(sections, estimate)
	}
	if len(enhanced.Gaps) > 0 {
		sections = append(sections, bulletSection("Gaps", enhanced.Gaps))
	}
	if len(enhanced.Dependencies) > 0 {
		sections = append(sections, bulletSection("Dependencies", enhanced.Dependencies))
	}

	return strings.Join(sections, "\n\n")
}

// appendTestCaseSection folds rendered test cases into the description markup
// for projects that map test cases onto the description field.
func appendTestCaseSection(markup string, cases []types.TestCase) string {
	cases = format.NormalizeTestCases(cases)
	if len(cases) == 0 {
		return markup
	}

	var sb strings.Builder
	sb.WriteString(markup)
	if markup != "" {
		sb.WriteString("\n\n")
	}
	sb.WriteString("## Test Cases")
	for _, tc := range cases {
		sb.WriteString("\n\n")
		sb.WriteString(format.TestCaseToGherkin(tc))
	}
	return sb.String()
}

func bulletSection(title string, items []string) string {
	var sb strings.Builder
	sb.WriteString("## " + title)
	sb.WriteString("\n")
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		sb.WriteString("\n- " + item)
	}
	return sb.String()
}
