package types

import "github.com/go-playground/validator/v10"

// EnhanceRequest asks the run coordinator to enhance a batch of work items.
// Template body, context snippets, and guardrail text are supplied by external
// collaborators (template/workspace CRUD is out of scope here).
type EnhanceRequest struct {
	ProjectID       string   `json:"project_id" validate:"required"`
	ItemIDs         []string `json:"item_ids" validate:"required,min=1,dive,required"`
	TemplateRef     string   `json:"template_ref,omitempty"`
	TemplateBody    string   `json:"template_body,omitempty"`
	ContextSnippets []string `json:"context_snippets,omitempty"`
	GuardrailText   string   `json:"guardrail_text,omitempty"`
}

// Validate validates the EnhanceRequest using the validator.
func (r *EnhanceRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// Override holds optional user edits for one run item, merged into the after
// snapshot immediately before sync and never persisted back.
type Override struct {
	Title              *string    `json:"title,omitempty"`
	DescriptionMarkup  *string    `json:"description_markup,omitempty"`
	StoryPoints        *float64   `json:"story_points,omitempty"`
	Tasks              []string   `json:"tasks,omitempty"`
	AcceptanceCriteria []string   `json:"acceptance_criteria,omitempty"`
	TestCases          []TestCase `json:"test_cases,omitempty"`
}

// ApplyRequest asks the sync engine to write selected run items back to the
// tracker. SelectedFields is a subset of {title, description, acceptance}.
type ApplyRequest struct {
	SelectedItemIDs []string            `json:"selected_item_ids" validate:"required,min=1,dive,required"`
	SelectedFields  []string            `json:"selected_fields" validate:"dive,oneof=title description acceptance"`
	CreateTasks     bool                `json:"create_tasks"`
	CreateTestCases bool                `json:"create_test_cases"`
	SetStoryPoints  bool                `json:"set_story_points"`
	Overrides       map[string]Override `json:"overrides,omitempty"`
}

// Validate validates the ApplyRequest using the validator.
func (r *ApplyRequest) Validate() error {
	validate := validator.New()
	return validate.Struct(r)
}

// HasField reports whether a field name is in the selected set.
func (r *ApplyRequest) HasField(name string) bool {
	for _, f := range r.SelectedFields {
		if f == name {
			return true
		}
	}
	return false
}

// ApplyResult is the per-item outcome of a sync.
type ApplyResult struct {
	ItemID           string   `json:"item_id"`
	Success          bool     `json:"success"`
	Error            string   `json:"error,omitempty"`
	SubtasksCreated  int      `json:"subtasks_created"`
	TestCasesCreated int      `json:"test_cases_created"`
	TestCasesUpdated int      `json:"test_cases_updated"`
	Warnings         []string `json:"warnings,omitempty"`
}

// ApplySummary sums per-item counts for the batch.
type ApplySummary struct {
	Total            int `json:"total"`
	Succeeded        int `json:"succeeded"`
	Failed           int `json:"failed"`
	SubtasksCreated  int `json:"subtasks_created"`
	TestCasesCreated int `json:"test_cases_created"`
	TestCasesUpdated int `json:"test_cases_updated"`
}

// Summarize builds an ApplySummary from a list of results.
func Summarize(results []ApplyResult) ApplySummary {
	summary := ApplySummary{Total: len(results)}
	for _, r := range results {
		if r.Success {
			summary.Succeeded++
		} else {
			summary.Failed++
		}
		summary.SubtasksCreated += r.SubtasksCreated
		summary.TestCasesCreated += r.TestCasesCreated
		summary.TestCasesUpdated += r.TestCasesUpdated
	}
	return summary
}
