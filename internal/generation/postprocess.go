package generation

import (
	"regexp"
	"strings"

	"github.com/danielmv/storysmith/internal/format"
	"github.com/danielmv/storysmith/internal/guardrails"
	"github.com/danielmv/storysmith/internal/types"
)

// Standard engineering tasks merged into every enhanced item, in this order.
var standardTasks = []string{"PR Review", "Dev Testing", "QA Handoff"}

// Synthetic entries appended when generated content trips a guardrail.
const (
	guardrailGap  = "Guardrail review: the generated content references a disallowed technology. Provide justification or replace it with an approved alternative."
	guardrailTask = "Request architectural approval for the flagged technology choice"
)

// roleGoalPattern recognizes a role-goal-reason opening line ("As a ..., I
// want ..., so that ...").
var roleGoalPattern = regexp.MustCompile(`(?i)^as an? .+`)

// Caps on synthesized implementation notes.
const (
	maxPrincipleNotes = 3
	maxPlatformNotes  = 5
)

// PostProcess applies the deterministic normalization pass to freshly
// generated content. It is idempotent: running it twice over the same content
// yields the same result.
func PostProcess(content *types.EnhancedContent, profile guardrails.Profile) {
	content.EnsureDefaults()
	content.Title = strings.TrimSpace(content.Title)
	content.TestCases = format.NormalizeTestCases(content.TestCases)

	mergeRoleGoalReason(content)
	applyGuardrailFindings(content, profile)
	synthesizeImplementationNotes(content, profile)
	mergeStandardTasks(content)

	if !content.HasTag(types.ProvenanceTag) {
		content.Tags = append(content.Tags, types.ProvenanceTag)
	}
}

// mergeRoleGoalReason lifts a role-goal-reason opening line out of the
// description when the model declared none, and strips a first line that
// merely restates it.
func mergeRoleGoalReason(content *types.EnhancedContent) {
	lines := strings.Split(content.Description, "\n")
	if len(lines) == 0 {
		return
	}
	first := strings.TrimSpace(lines[0])

	if content.RoleGoalReason == "" && roleGoalPattern.MatchString(first) {
		content.RoleGoalReason = first
	}

	if content.RoleGoalReason != "" && strings.EqualFold(first, strings.TrimSpace(content.RoleGoalReason)) {
		content.Description = strings.TrimSpace(strings.Join(lines[1:], "\n"))
	}
}

// applyGuardrailFindings appends one synthetic gap and one synthetic approval
// task when the content matches a forbidden term. Both are skipped when an
// existing entry already mentions guardrails or approval, so a second pass
// never duplicates them.
func applyGuardrailFindings(content *types.EnhancedContent, profile guardrails.Profile) {
	matcher := guardrails.BuildForbiddenMatcher(profile.Forbidden)
	if !guardrails.Scan(content, matcher) {
		return
	}

	if !anyMentions(content.Gaps, "guardrail") {
		content.Gaps = append(content.Gaps, guardrailGap)
	}
	if !anyMentions(content.Tasks, "approval") && !anyMentions(content.Tasks, "guardrail") {
		content.Tasks = append(content.Tasks, guardrailTask)
	}
}

// synthesizeImplementationNotes fills empty implementation notes from the
// guardrail profile: up to three principles and five allowed platforms.
func synthesizeImplementationNotes(content *types.EnhancedContent, profile guardrails.Profile) {
	if len(content.ImplementationNotes) > 0 {
		return
	}

	for i, principle := range profile.Principles {
		if i >= maxPrincipleNotes {
			break
		}
		content.ImplementationNotes = append(content.ImplementationNotes, "Follow project principle: "+principle)
	}
	for i, platform := range profile.Allowed {
		if i >= maxPlatformNotes {
			break
		}
		content.ImplementationNotes = append(content.ImplementationNotes, "Build on approved platform: "+platform)
	}
}

// mergeStandardTasks appends the fixed engineering tasks, deduplicated by
// case-insensitive name against what the model already produced.
func mergeStandardTasks(content *types.EnhancedContent) {
	for _, task := range standardTasks {
		if !containsFold(content.Tasks, task) {
			content.Tasks = append(content.Tasks, task)
		}
	}
}

func containsFold(list []string, target string) bool {
	for _, entry := range list {
		if strings.EqualFold(strings.TrimSpace(entry), target) {
			return true
		}
	}
	return false
}

func anyMentions(list []string, substr string) bool {
	for _, entry := range list {
		if strings.Contains(strings.ToLower(entry), substr) {
			return true
		}
	}
	return false
}
