package syncer

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmv/storysmith/internal/tracker"
	"github.com/danielmv/storysmith/internal/types"
)

// fakeTracker is an in-memory tracker backend that records every call.
type fakeTracker struct {
	item        *types.WorkItemSnapshot
	children    []string
	tags        []string
	patches     []map[string]any
	failPatch   error
	failCreate  error
	nextChildID int
}

func newFakeTracker(title string) *fakeTracker {
	return &fakeTracker{
		item: &types.WorkItemSnapshot{SourceID: "101", Title: title},
	}
}

func (f *fakeTracker) FetchItem(_ context.Context, _ string) (*types.WorkItemSnapshot, error) {
	snapshot := *f.item
	snapshot.Tags = append([]string{}, f.tags...)
	return &snapshot, nil
}

func (f *fakeTracker) PatchFields(_ context.Context, _ string, fields map[string]any) error {
	if f.failPatch != nil {
		return f.failPatch
	}
	f.patches = append(f.patches, fields)
	return nil
}

func (f *fakeTracker) CreateChild(_ context.Context, _ string, _ types.ItemType, fields map[string]any) (string, error) {
	if f.failCreate != nil {
		return "", f.failCreate
	}
	title, _ := fields[tracker.FieldTitle].(string)
	f.children = append(f.children, title)
	f.nextChildID++
	return fmt.Sprintf("child-%d", f.nextChildID), nil
}

func (f *fakeTracker) ExistingChildTitles(_ context.Context, _ string) ([]string, error) {
	return append([]string{}, f.children...), nil
}

func (f *fakeTracker) MergeTags(_ context.Context, _ string, tags []string) error {
	for _, tag := range tags {
		if !tracker.ContainsName(f.tags, tag) {
			f.tags = append(f.tags, tag)
		}
	}
	return nil
}

// fakeTestManager is an in-memory test-management subsystem.
type fakeTestManager struct {
	cases   map[string]string // id -> name
	scripts map[string]string
	links   []string
	created int
	updated int
	nextID  int
}

func newFakeTestManager() *fakeTestManager {
	return &fakeTestManager{cases: map[string]string{}, scripts: map[string]string{}}
}

func (f *fakeTestManager) SearchTestCaseByName(_ context.Context, name string) (string, error) {
	for id, existing := range f.cases {
		if tracker.NormalizeName(existing) == tracker.NormalizeName(name) {
			return id, nil
		}
	}
	return "", nil
}

func (f *fakeTestManager) CreateTestCase(_ context.Context, name, _ string) (string, error) {
	f.nextID++
	id := fmt.Sprintf("TC-%d", f.nextID)
	f.cases[id] = name
	f.created++
	return id, nil
}

func (f *fakeTestManager) UpdateTestCase(_ context.Context, id, name, _ string) error {
	f.cases[id] = name
	f.updated++
	return nil
}

func (f *fakeTestManager) WriteTestScript(_ context.Context, id, script string) error {
	f.scripts[id] = script
	return nil
}

func (f *fakeTestManager) LinkTestCaseToItem(_ context.Context, testCaseID, _ string) error {
	f.links = append(f.links, testCaseID)
	return nil
}

func generatedItem(enhanced *types.EnhancedContent) *types.RunItem {
	return &types.RunItem{
		SourceItemID: "101",
		Status:       types.ItemGenerated,
		After: &types.WorkItemSnapshot{
			SourceID: "101",
			Title:    "Add login",
			Enhanced: enhanced,
		},
	}
}

func TestApplyItemTitleOnlyPatch(t *testing.T) {
	fake := newFakeTracker("Add login")
	engine := New(fake, TestCasesAsChildren, nil)

	item := generatedItem(&types.EnhancedContent{
		Title:              "Add login with OAuth",
		Description:        "full description",
		AcceptanceCriteria: []string{"must work"},
	})
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title"},
	}

	result := engine.ApplyItem(context.Background(), item, nil, req)
	require.True(t, result.Success, "unexpected error: %s", result.Error)

	require.Len(t, fake.patches, 1)
	patch := fake.patches[0]
	assert.Equal(t, "Add login with OAuth", patch[tracker.FieldTitle])
	assert.NotContains(t, patch, tracker.FieldDescription)
	assert.NotContains(t, patch, tracker.FieldAcceptanceCriteria)
	assert.NotContains(t, patch, tracker.FieldStoryPoints)
}

func TestApplyItemCreatesDedupedSubtasks(t *testing.T) {
	fake := newFakeTracker("Add login")
	engine := New(fake, TestCasesAsChildren, nil)

	item := generatedItem(&types.EnhancedContent{
		Title: "Add login",
		Tasks: []string{"Implement OAuth flow", "PR Review", "implement oauth flow"},
	})
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title"},
		CreateTasks:     true,
	}

	result := engine.ApplyItem(context.Background(), item, nil, req)
	require.True(t, result.Success)
	assert.Equal(t, 2, result.SubtasksCreated)
	assert.Equal(t, []string{"Implement OAuth flow", "PR Review"}, fake.children)

	// Second application of the same snapshot creates zero duplicates.
	second := engine.ApplyItem(context.Background(), item, nil, req)
	require.True(t, second.Success)
	assert.Equal(t, 0, second.SubtasksCreated)
	assert.Equal(t, []string{"Implement OAuth flow", "PR Review"}, fake.children)
}

func TestApplyItemPatchFailureRejectsBeforeChildren(t *testing.T) {
	fake := newFakeTracker("Add login")
	fake.failPatch = tracker.NewAPIError("ado", "patch fields", 403, "forbidden")
	engine := New(fake, TestCasesAsChildren, nil)

	item := generatedItem(&types.EnhancedContent{
		Title: "Add login",
		Tasks: []string{"Implement OAuth flow"},
	})
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title"},
		CreateTasks:     true,
	}

	result := engine.ApplyItem(context.Background(), item, nil, req)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "forbidden")
	assert.Empty(t, fake.children, "no child creation after a rejected patch")
}

func TestApplyItemChildFailureIsWarningOnly(t *testing.T) {
	fake := newFakeTracker("Add login")
	fake.failCreate = tracker.NewAPIError("ado", "create child", 500, "boom")
	engine := New(fake, TestCasesAsChildren, nil)

	item := generatedItem(&types.EnhancedContent{
		Title: "Add login",
		Tasks: []string{"Implement OAuth flow"},
	})
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title"},
		CreateTasks:     true,
	}

	result := engine.ApplyItem(context.Background(), item, nil, req)
	assert.True(t, result.Success)
	assert.Equal(t, 0, result.SubtasksCreated)
	require.NotEmpty(t, result.Warnings)
	assert.Contains(t, result.Warnings[0], "Implement OAuth flow")
}

func TestApplyItemManagedTestCaseUpdateInPlace(t *testing.T) {
	fake := newFakeTracker("Add login")
	testMgr := newFakeTestManager()
	existingID, err := testMgr.CreateTestCase(context.Background(), "Verify login", "old objective")
	require.NoError(t, err)
	testMgr.created = 0 // only count engine-driven creations

	engine := New(fake, TestCasesManaged, testMgr)

	item := generatedItem(&types.EnhancedContent{
		Title: "Add login",
		TestCases: []types.TestCase{
			{Name: "Verify login", BDDScript: "Given a user\nWhen they log in\nThen it works"},
		},
	})
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title"},
		CreateTestCases: true,
	}

	result := engine.ApplyItem(context.Background(), item, nil, req)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.TestCasesUpdated)
	assert.Equal(t, 0, result.TestCasesCreated)
	assert.Equal(t, 0, testMgr.created)
	assert.Equal(t, 1, testMgr.updated)
	assert.Contains(t, testMgr.links, existingID, "updated test case is still linked to the parent")
	assert.Contains(t, testMgr.scripts[existingID], "Given a user")
}

func TestApplyItemManagedTestCaseCreation(t *testing.T) {
	fake := newFakeTracker("Add login")
	testMgr := newFakeTestManager()
	engine := New(fake, TestCasesManaged, testMgr)

	item := generatedItem(&types.EnhancedContent{
		Title: "Add login",
		TestCases: []types.TestCase{
			{Given: "a user", When: "they log in", Then: "the dashboard loads"},
		},
	})
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title"},
		CreateTestCases: true,
	}

	result := engine.ApplyItem(context.Background(), item, nil, req)
	require.True(t, result.Success)
	assert.Equal(t, 1, result.TestCasesCreated)
	assert.Equal(t, 0, result.TestCasesUpdated)
	// Structured cases are deduplicated by their Then clause.
	assert.Equal(t, "the dashboard loads", testMgr.cases["TC-1"])
}

func TestApplyItemOverrideMerge(t *testing.T) {
	fake := newFakeTracker("Add login")
	engine := New(fake, TestCasesAsChildren, nil)

	item := generatedItem(&types.EnhancedContent{
		Title:       "Generated title",
		Description: "Generated description",
	})
	overrideTitle := "Edited title"
	overrideDesc := "Edited description, written by a human"
	override := &types.Override{
		Title:             &overrideTitle,
		DescriptionMarkup: &overrideDesc,
	}
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title", "description"},
	}

	result := engine.ApplyItem(context.Background(), item, override, req)
	require.True(t, result.Success)

	require.Len(t, fake.patches, 1)
	patch := fake.patches[0]
	assert.Equal(t, "Edited title", patch[tracker.FieldTitle])
	// Overridden descriptions are written verbatim, not rebuilt.
	assert.Equal(t, overrideDesc, patch[tracker.FieldDescription])

	// The persisted snapshot is untouched.
	assert.Equal(t, "Generated title", item.After.Enhanced.Title)
}

func TestApplyItemMergesProvenanceTag(t *testing.T) {
	fake := newFakeTracker("Add login")
	fake.tags = []string{"backend"}
	engine := New(fake, TestCasesAsChildren, nil)

	item := generatedItem(&types.EnhancedContent{
		Title: "Add login",
		Tags:  []string{"auth", "Backend"},
	})
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title"},
	}

	result := engine.ApplyItem(context.Background(), item, nil, req)
	require.True(t, result.Success)
	assert.Equal(t, []string{"backend", "auth", types.ProvenanceTag}, fake.tags)
}

func TestApplyItemWithoutGeneratedContent(t *testing.T) {
	fake := newFakeTracker("Add login")
	engine := New(fake, TestCasesAsChildren, nil)

	item := &types.RunItem{SourceItemID: "101", Status: types.ItemPending}
	req := &types.ApplyRequest{SelectedItemIDs: []string{"101"}, SelectedFields: []string{"title"}}

	result := engine.ApplyItem(context.Background(), item, nil, req)
	assert.False(t, result.Success)
	assert.Contains(t, result.Error, "no generated content")
	assert.Empty(t, fake.patches)
}

func TestApplySummarizesBatch(t *testing.T) {
	fake := newFakeTracker("Add login")
	engine := New(fake, TestCasesAsChildren, nil)

	items := []*types.RunItem{
		generatedItem(&types.EnhancedContent{Title: "Add login"}),
		{SourceItemID: "102", Status: types.ItemPending},
	}
	req := &types.ApplyRequest{
		SelectedItemIDs: []string{"101", "102"},
		SelectedFields:  []string{"title"},
	}

	results, summary := engine.Apply(context.Background(), items, req)
	require.Len(t, results, 2)
	assert.Equal(t, 2, summary.Total)
	assert.Equal(t, 1, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
}
