// Package tracker defines the capability interface every tracker backend
// implements, plus the shared error and naming helpers. Backend wire formats
// stay behind this boundary: clients parse external payloads into the
// canonical snapshot types immediately and never leak untyped maps upward.
package tracker

import (
	"context"
	"fmt"
	"strings"

	"github.com/danielmv/storysmith/internal/types"
)

// Client is the capability interface shared by all tracker backends.
type Client interface {
	// FetchItem reads one work item into a canonical snapshot.
	FetchItem(ctx context.Context, id string) (*types.WorkItemSnapshot, error)
	// PatchFields applies a named-field patch to an item.
	PatchFields(ctx context.Context, id string, fields map[string]any) error
	// CreateChild creates a child item linked under the parent and returns
	// the new item's id.
	CreateChild(ctx context.Context, parentID string, kind types.ItemType, fields map[string]any) (string, error)
	// ExistingChildTitles lists the titles of children already linked to an
	// item, used for name-based dedup before creation.
	ExistingChildTitles(ctx context.Context, id string) ([]string, error)
	// MergeTags unions the given tags into the item's current tag set.
	MergeTags(ctx context.Context, id string, tags []string) error
}

// TestManager is the optional test-management capability. Only the Jira
// backend provides it, through its Zephyr integration.
// Dedup is by exact-name search; a hit triggers update-in-place.
type TestManager interface {
	// SearchTestCaseByName returns the id of the first exact-name match, or
	// empty when no test case with that name exists.
	SearchTestCaseByName(ctx context.Context, name string) (string, error)
	CreateTestCase(ctx context.Context, name, objective string) (string, error)
	UpdateTestCase(ctx context.Context, id, name, objective string) error
	WriteTestScript(ctx context.Context, id, script string) error
	LinkTestCaseToItem(ctx context.Context, testCaseID, itemID string) error
}

// Canonical field names accepted by PatchFields and CreateChild. Each backend
// maps them onto its own wire paths.
const (
	FieldTitle              = "title"
	FieldDescription        = "description"
	FieldAcceptanceCriteria = "acceptance_criteria"
	FieldStoryPoints        = "story_points"
)

// APIError represents a non-success response from a tracker backend. The body
// is truncated for operator display.
type APIError struct {
	Backend    string
	Operation  string
	StatusCode int
	Body       string
	Cause      error
}

const maxErrorBody = 512

func (e *APIError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s %s failed: %v", e.Backend, e.Operation, e.Cause)
	}
	return fmt.Sprintf("%s %s failed: status %d: %s", e.Backend, e.Operation, e.StatusCode, e.Body)
}

func (e *APIError) Unwrap() error {
	return e.Cause
}

// NewAPIError builds an APIError with a truncated body.
func NewAPIError(backend, operation string, status int, body string) *APIError {
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &APIError{Backend: backend, Operation: operation, StatusCode: status, Body: body}
}

// NormalizeName lower-cases and trims a child/test name for dedup comparison.
func NormalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// ContainsName reports whether the normalized name is present in the list of
// existing titles.
func ContainsName(existing []string, name string) bool {
	target := NormalizeName(name)
	for _, title := range existing {
		if NormalizeName(title) == target {
			return true
		}
	}
	return false
}
