// Package syncer writes enhanced content back to a tracker backend. Each item
// is processed in full isolation: a parent-field failure rejects that item
// only, and child-artifact failures downgrade to warnings on an otherwise
// successful result.
package syncer

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielmv/storysmith/internal/format"
	"github.com/danielmv/storysmith/internal/tracker"
	"github.com/danielmv/storysmith/internal/types"
)

// TestCaseMode selects where generated test cases are written.
type TestCaseMode string

// Supported destinations. Children is the structured-fields default; the
// other three correspond to the document-based backend's per-project mapping.
const (
	TestCasesAsChildren    TestCaseMode = "children"
	TestCasesInDescription TestCaseMode = "description"
	TestCasesInCustomField TestCaseMode = "custom_field"
	TestCasesManaged       TestCaseMode = "managed"
)

// TestCaseFieldWriter is implemented by backends that store rendered test
// cases in a dedicated custom field.
type TestCaseFieldWriter interface {
	WriteTestCases(ctx context.Context, id string, gherkin []string) error
}

// Engine applies after-snapshots to one tracker backend.
type Engine struct {
	client   tracker.Client
	testMode TestCaseMode
	testMgr  tracker.TestManager
	verbose  bool
}

// New creates an engine for the given backend. testMgr may be nil unless the
// mode is TestCasesManaged.
func New(client tracker.Client, testMode TestCaseMode, testMgr tracker.TestManager) *Engine {
	if testMode == "" {
		testMode = TestCasesAsChildren
	}
	return &Engine{client: client, testMode: testMode, testMgr: testMgr}
}

// SetVerbose enables progress output for CLI use.
func (e *Engine) SetVerbose(v bool) {
	e.verbose = v
}

// Apply writes each item's after-snapshot back to the tracker, honoring the
// request's field selection and creation toggles. One result per item; items
// never abort siblings.
func (e *Engine) Apply(ctx context.Context, items []*types.RunItem, req *types.ApplyRequest) ([]types.ApplyResult, types.ApplySummary) {
	results := make([]types.ApplyResult, 0, len(items))
	for _, item := range items {
		var override *types.Override
		if o, ok := req.Overrides[item.SourceItemID]; ok {
			override = &o
		}
		results = append(results, e.ApplyItem(ctx, item, override, req))
	}
	return results, types.Summarize(results)
}

// ApplyItem syncs one item. The returned result carries Success=false and the
// upstream error text when the parent-field patch is rejected; child artifact
// failures are recorded as warnings instead.
func (e *Engine) ApplyItem(ctx context.Context, item *types.RunItem, override *types.Override, req *types.ApplyRequest) types.ApplyResult {
	result := types.ApplyResult{ItemID: item.SourceItemID}

	if item.After == nil || item.After.Enhanced == nil {
		result.Error = "item has no generated content to apply"
		return result
	}

	enhanced, descOverride := mergeOverride(item.After.Enhanced, override)

	// Remote state is read before any write so the tag union and child dedup
	// reflect what is actually on the tracker now.
	remote, err := e.client.FetchItem(ctx, item.SourceItemID)
	if err != nil {
		result.Error = truncateError(err)
		return result
	}

	fields := e.buildPatch(enhanced, descOverride, req)
	if len(fields) > 0 {
		if err := e.client.PatchFields(ctx, item.SourceItemID, fields); err != nil {
			result.Error = truncateError(err)
			return result
		}
	}
	result.Success = true
	if e.verbose {
		fmt.Printf("[sync] %s: patched %d field(s)\n", item.SourceItemID, len(fields))
	}

	if err := e.client.MergeTags(ctx, item.SourceItemID, mergedTags(enhanced)); err != nil {
		result.Warnings = append(result.Warnings, "tag merge failed: "+truncateError(err))
	}

	existing, err := e.client.ExistingChildTitles(ctx, item.SourceItemID)
	if err != nil {
		result.Warnings = append(result.Warnings, "child discovery failed: "+truncateError(err))
		existing = []string{}
	}

	if req.CreateTasks {
		e.createSubtasks(ctx, item.SourceItemID, enhanced.Tasks, &existing, &result)
	}
	if req.CreateTestCases {
		e.createTestArtifacts(ctx, item.SourceItemID, remote.Title, enhanced.TestCases, &existing, req, &result)
	}
	return result
}

// buildPatch assembles the outgoing field map from the selected field set.
// Unselected fields never appear, selected-but-empty fields are written as-is.
func (e *Engine) buildPatch(enhanced *types.EnhancedContent, descOverride *string, req *types.ApplyRequest) map[string]any {
	fields := map[string]any{}

	if req.HasField("title") && enhanced.Title != "" {
		fields[tracker.FieldTitle] = enhanced.Title
	}
	if req.HasField("description") {
		if descOverride != nil {
			// An externally-supplied description is written verbatim.
			fields[tracker.FieldDescription] = *descOverride
		} else {
			markup := RenderDescription(enhanced)
			if e.testMode == TestCasesInDescription && req.CreateTestCases {
				markup = appendTestCaseSection(markup, enhanced.TestCases)
			}
			fields[tracker.FieldDescription] = markup
		}
	}
	if req.HasField("acceptance") {
		fields[tracker.FieldAcceptanceCriteria] = enhanced.AcceptanceCriteria
	}
	if req.SetStoryPoints && enhanced.StoryPoints != nil {
		fields[tracker.FieldStoryPoints] = *enhanced.StoryPoints
	}
	return fields
}

// createSubtasks creates the deduped task children. Names already present on
// the tracker (or created earlier in this call) are skipped silently.
func (e *Engine) createSubtasks(ctx context.Context, parentID string, tasks []string, existing *[]string, result *types.ApplyResult) {
	for _, task := range tasks {
		name := strings.TrimSpace(task)
		if name == "" || tracker.ContainsName(*existing, name) {
			continue
		}
		_, err := e.client.CreateChild(ctx, parentID, types.TypeTask, map[string]any{
			tracker.FieldTitle: name,
		})
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("sub-task %q: %s", name, truncateError(err)))
			continue
		}
		*existing = append(*existing, name)
		result.SubtasksCreated++
	}
}

// createTestArtifacts dispatches on the configured destination. Every failure
// here is a warning, never an item failure.
func (e *Engine) createTestArtifacts(ctx context.Context, parentID, parentTitle string, cases []types.TestCase, existing *[]string, req *types.ApplyRequest, result *types.ApplyResult) {
	cases = format.NormalizeTestCases(cases)
	if len(cases) == 0 {
		return
	}

	switch e.testMode {
	case TestCasesInDescription:
		// Already folded into the description patch by buildPatch.
		if req.HasField("description") {
			result.TestCasesCreated += len(cases)
		} else {
			result.Warnings = append(result.Warnings, "test cases map to the description field, which was not selected")
		}
	case TestCasesInCustomField:
		writer, ok := e.client.(TestCaseFieldWriter)
		if !ok {
			result.Warnings = append(result.Warnings, "backend does not support a test case field")
			return
		}
		gherkin := make([]string, 0, len(cases))
		for _, tc := range cases {
			gherkin = append(gherkin, format.TestCaseToGherkin(tc))
		}
		if err := writer.WriteTestCases(ctx, parentID, gherkin); err != nil {
			result.Warnings = append(result.Warnings, "test case field write failed: "+truncateError(err))
			return
		}
		result.TestCasesCreated += len(cases)
	case TestCasesManaged:
		e.syncManagedTestCases(ctx, parentID, parentTitle, cases, result)
	default:
		for _, tc := range cases {
			name := tc.DisplayName()
			if name == "" || tracker.ContainsName(*existing, name) {
				continue
			}
			_, err := e.client.CreateChild(ctx, parentID, types.TypeTestCase, map[string]any{
				tracker.FieldTitle:       name,
				tracker.FieldDescription: format.TestCaseToGherkin(tc),
			})
			if err != nil {
				result.Warnings = append(result.Warnings, fmt.Sprintf("test case %q: %s", name, truncateError(err)))
				continue
			}
			*existing = append(*existing, name)
			result.TestCasesCreated++
		}
	}
}

// syncManagedTestCases creates or updates first-class test entities. An exact
// name match updates in place; the script and parent link are written either
// way.
func (e *Engine) syncManagedTestCases(ctx context.Context, parentID, parentTitle string, cases []types.TestCase, result *types.ApplyResult) {
	if e.testMgr == nil {
		result.Warnings = append(result.Warnings, "test management subsystem is not configured")
		return
	}

	objective := "Acceptance test for: " + parentTitle
	for _, tc := range cases {
		name := tc.DisplayName()
		if name == "" {
			continue
		}

		id, err := e.testMgr.SearchTestCaseByName(ctx, name)
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("test case %q: search failed: %s", name, truncateError(err)))
			continue
		}

		updated := id != ""
		if updated {
			err = e.testMgr.UpdateTestCase(ctx, id, name, objective)
		} else {
			id, err = e.testMgr.CreateTestCase(ctx, name, objective)
		}
		if err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("test case %q: %s", name, truncateError(err)))
			continue
		}

		if err := e.testMgr.WriteTestScript(ctx, id, format.TestCaseToGherkin(tc)); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("test case %q: script write failed: %s", name, truncateError(err)))
		}
		if err := e.testMgr.LinkTestCaseToItem(ctx, id, parentID); err != nil {
			result.Warnings = append(result.Warnings, fmt.Sprintf("test case %q: link failed: %s", name, truncateError(err)))
		}

		if updated {
			result.TestCasesUpdated++
		} else {
			result.TestCasesCreated++
		}
	}
}

// mergedTags is the tag union written to the tracker: generated tags plus the
// provenance marker.
func mergedTags(enhanced *types.EnhancedContent) []string {
	tags := append([]string{}, enhanced.Tags...)
	if !enhanced.HasTag(types.ProvenanceTag) {
		tags = append(tags, types.ProvenanceTag)
	}
	return tags
}

// mergeOverride copies the enhanced content and folds in the per-item
// override, each field independently. The returned pointer is non-nil when
// the description was overridden and must be written verbatim.
func mergeOverride(enhanced *types.EnhancedContent, override *types.Override) (*types.EnhancedContent, *string) {
	merged := *enhanced
	merged.EnsureDefaults()
	if override == nil {
		return &merged, nil
	}

	if override.Title != nil {
		merged.Title = *override.Title
	}
	if override.StoryPoints != nil {
		merged.StoryPoints = override.StoryPoints
	}
	if override.Tasks != nil {
		merged.Tasks = override.Tasks
	}
	if override.AcceptanceCriteria != nil {
		merged.AcceptanceCriteria = override.AcceptanceCriteria
	}
	if override.TestCases != nil {
		merged.TestCases = override.TestCases
	}
	return &merged, override.DescriptionMarkup
}

const maxResultError = 512

func truncateError(err error) string {
	msg := err.Error()
	if len(msg) > maxResultError {
		msg = msg[:maxResultError]
	}
	return msg
}
