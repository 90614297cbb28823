// Package types provides type definitions for structured data used throughout the storysmith system.
//
//nolint:revive // types is a standard Go package name pattern
package types

import "strings"

// ItemType classifies a work item or generated artifact.
type ItemType string

// Supported work item types.
const (
	TypeUserStory ItemType = "User Story"
	TypeSpike     ItemType = "SPIKE"
	TypeBug       ItemType = "Bug"
	TypeTask      ItemType = "Task"
	TypeTestCase  ItemType = "Test Case"
)

// ProvenanceTag marks content that was produced by the enhancement pipeline.
const ProvenanceTag = "ai-enhanced"

// WorkItemSnapshot is a point-in-time capture of a tracker item. A "before"
// snapshot is immutable once written; the "after" snapshot is a derived value
// stored separately with Enhanced populated.
type WorkItemSnapshot struct {
	SourceID                 string           `json:"source_id"`
	Title                    string           `json:"title"`
	DescriptionMarkup        string           `json:"description_markup"`
	AcceptanceCriteriaMarkup string           `json:"acceptance_criteria_markup,omitempty"`
	Tags                     []string         `json:"tags,omitempty"`
	Enhanced                 *EnhancedContent `json:"enhanced,omitempty"`
}

// EnhancedContent is the canonical generation output. Every list field is
// non-nil after EnsureDefaults; the generation orchestrator is the only writer.
type EnhancedContent struct {
	Title               string     `json:"title"`
	Type                ItemType   `json:"type"`
	RoleGoalReason      string     `json:"role_goal_reason,omitempty"`
	Description         string     `json:"description"`
	AcceptanceCriteria  []string   `json:"acceptance_criteria"`
	TestCases           []TestCase `json:"test_cases"`
	ImplementationNotes []string   `json:"implementation_notes"`
	Tasks               []string   `json:"tasks"`
	Gaps                []string   `json:"gaps"`
	Dependencies        []string   `json:"dependencies"`
	StoryPoints         *float64   `json:"story_points,omitempty"`
	EstimateRationale   string     `json:"estimate_rationale,omitempty"`
	Tags                []string   `json:"tags"`
}

// EnsureDefaults replaces nil list fields with empty slices so downstream
// consumers never have to nil-check before ranging or appending.
func (ec *EnhancedContent) EnsureDefaults() {
	if ec.AcceptanceCriteria == nil {
		ec.AcceptanceCriteria = []string{}
	}
	if ec.TestCases == nil {
		ec.TestCases = []TestCase{}
	}
	if ec.ImplementationNotes == nil {
		ec.ImplementationNotes = []string{}
	}
	if ec.Tasks == nil {
		ec.Tasks = []string{}
	}
	if ec.Gaps == nil {
		ec.Gaps = []string{}
	}
	if ec.Dependencies == nil {
		ec.Dependencies = []string{}
	}
	if ec.Tags == nil {
		ec.Tags = []string{}
	}
}

// HasTag reports whether the content carries the given tag (case-insensitive).
func (ec *EnhancedContent) HasTag(tag string) bool {
	for _, t := range ec.Tags {
		if strings.EqualFold(strings.TrimSpace(t), tag) {
			return true
		}
	}
	return false
}

// TestCase is a sum of two mutually exclusive shapes: a structured
// Given/When/Then triple, or a named free-form BDD script. Consumers must
// branch on IsScripted rather than assume one shape.
type TestCase struct {
	Given string `json:"given,omitempty"`
	When  string `json:"when,omitempty"`
	Then  string `json:"then,omitempty"`

	Name      string `json:"name,omitempty"`
	BDDScript string `json:"bdd_script,omitempty"`
}

// IsScripted reports whether the entry uses the name-and-script shape.
func (tc TestCase) IsScripted() bool {
	return strings.TrimSpace(tc.Name) != "" || strings.TrimSpace(tc.BDDScript) != ""
}

// IsBlank reports whether every field is empty after trimming. Blank entries
// are dropped during normalization.
func (tc TestCase) IsBlank() bool {
	return strings.TrimSpace(tc.Given) == "" &&
		strings.TrimSpace(tc.When) == "" &&
		strings.TrimSpace(tc.Then) == "" &&
		strings.TrimSpace(tc.Name) == "" &&
		strings.TrimSpace(tc.BDDScript) == ""
}

// DisplayName returns the name used for dedup against existing tracker
// artifacts: the explicit name for scripted entries, otherwise the Then
// clause falling back to When.
func (tc TestCase) DisplayName() string {
	if tc.IsScripted() {
		return strings.TrimSpace(tc.Name)
	}
	if then := strings.TrimSpace(tc.Then); then != "" {
		return then
	}
	return strings.TrimSpace(tc.When)
}
