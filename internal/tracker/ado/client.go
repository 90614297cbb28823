// Package ado implements the tracker capability interface for the
// structured-fields backend (Azure DevOps wire protocol): bearer-auth REST,
// JSON-patch operation lists against named field paths, semicolon-joined
// tags, and parent/child hierarchy relations.
package ado

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/danielmv/storysmith/internal/format"
	"github.com/danielmv/storysmith/internal/tracker"
	"github.com/danielmv/storysmith/internal/types"
)

const (
	backendName = "ado"
	apiVersion  = "7.0"
	// Relation types for the work item hierarchy.
	relParent = "System.LinkTypes.Hierarchy-Reverse"
	relChild  = "System.LinkTypes.Hierarchy-Forward"
)

// fieldPaths maps canonical field names onto patch-operation paths.
var fieldPaths = map[string]string{
	tracker.FieldTitle:              "/fields/System.Title",
	tracker.FieldDescription:        "/fields/System.Description",
	tracker.FieldAcceptanceCriteria: "/fields/Microsoft.VSTS.Common.AcceptanceCriteria",
	tracker.FieldStoryPoints:        "/fields/Microsoft.VSTS.Scheduling.StoryPoints",
}

// itemTypeNames maps canonical child kinds onto the backend's creation types.
var itemTypeNames = map[types.ItemType]string{
	types.TypeTask:     "Task",
	types.TypeTestCase: "Test Case",
	types.TypeBug:      "Bug",
}

// Client talks to one project of a structured-fields tracker.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

// New creates a client for the given project base URL and static bearer
// credential.
func New(baseURL, token string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
	}
}

// workItem is the wire shape of a fetched item. It never leaves this package.
type workItem struct {
	ID        int            `json:"id"`
	URL       string         `json:"url"`
	Fields    workItemFields `json:"fields"`
	Relations []relation     `json:"relations,omitempty"`
}

type workItemFields struct {
	Title              string  `json:"System.Title,omitempty"`
	Description        string  `json:"System.Description,omitempty"`
	AcceptanceCriteria string  `json:"Microsoft.VSTS.Common.AcceptanceCriteria,omitempty"`
	Tags               string  `json:"System.Tags,omitempty"`
	StoryPoints        float64 `json:"Microsoft.VSTS.Scheduling.StoryPoints,omitempty"`
}

type relation struct {
	Rel string `json:"rel"`
	URL string `json:"url"`
}

// patchOp is one entry of a JSON-patch operation list.
type patchOp struct {
	Op    string `json:"op"`
	Path  string `json:"path"`
	Value any    `json:"value"`
}

// FetchItem reads a work item (with relations) into a canonical snapshot.
func (c *Client) FetchItem(ctx context.Context, id string) (*types.WorkItemSnapshot, error) {
	item, err := c.fetchRaw(ctx, id)
	if err != nil {
		return nil, err
	}
	return snapshotOf(item), nil
}

// fieldOps renders canonical field values as patch operations. This backend
// stores rich text as HTML, so markup and list values convert here; unknown
// canonical names are rejected so a typo never turns into a silent no-op.
func fieldOps(fields map[string]any) ([]patchOp, error) {
	var ops []patchOp
	for name, value := range fields {
		path, ok := fieldPaths[name]
		if !ok {
			return nil, fmt.Errorf("unknown field %q for %s backend", name, backendName)
		}
		switch name {
		case tracker.FieldDescription:
			if markup, ok := value.(string); ok {
				value = format.MarkupToHTML(markup)
			}
		case tracker.FieldAcceptanceCriteria:
			switch v := value.(type) {
			case []string:
				value = format.ListToHTML(v)
			case string:
				value = format.MarkupToHTML(v)
			}
		}
		ops = append(ops, patchOp{Op: "add", Path: path, Value: value})
	}
	return ops, nil
}

// PatchFields applies the field map as a JSON-patch operation list.
func (c *Client) PatchFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	ops, err := fieldOps(fields)
	if err != nil {
		return err
	}

	endpoint := fmt.Sprintf("%s/_apis/wit/workitems/%s?api-version=%s", c.baseURL, url.PathEscape(id), apiVersion)
	return c.doJSON(ctx, http.MethodPatch, endpoint, "application/json-patch+json", ops, nil, "patch fields")
}

// CreateChild creates a child item of the given kind with a reverse-hierarchy
// relation pointing at the parent, and returns the new item's id.
func (c *Client) CreateChild(ctx context.Context, parentID string, kind types.ItemType, fields map[string]any) (string, error) {
	typeName, ok := itemTypeNames[kind]
	if !ok {
		typeName = "Task"
	}

	ops, err := fieldOps(fields)
	if err != nil {
		return "", err
	}
	ops = append(ops, patchOp{
		Op:   "add",
		Path: "/relations/-",
		Value: relation{
			Rel: relParent,
			URL: fmt.Sprintf("%s/_apis/wit/workItems/%s", c.baseURL, url.PathEscape(parentID)),
		},
	})

	endpoint := fmt.Sprintf("%s/_apis/wit/workitems/$%s?api-version=%s", c.baseURL, url.PathEscape(typeName), apiVersion)
	var created workItem
	if err := c.doJSON(ctx, http.MethodPost, endpoint, "application/json-patch+json", ops, &created, "create child"); err != nil {
		return "", err
	}
	return strconv.Itoa(created.ID), nil
}

// ExistingChildTitles walks the forward-hierarchy relations of an item and
// returns the titles of all linked children.
func (c *Client) ExistingChildTitles(ctx context.Context, id string) ([]string, error) {
	item, err := c.fetchRaw(ctx, id)
	if err != nil {
		return nil, err
	}

	var childIDs []string
	for _, rel := range item.Relations {
		if rel.Rel != relChild {
			continue
		}
		if childID := lastPathSegment(rel.URL); childID != "" {
			childIDs = append(childIDs, childID)
		}
	}
	if len(childIDs) == 0 {
		return []string{}, nil
	}

	children, err := c.FetchItems(ctx, childIDs)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(children))
	for _, child := range children {
		titles = append(titles, child.Title)
	}
	return titles, nil
}

// MergeTags unions tags into the semicolon-joined tag field. The current tag
// set is read in the same request cycle so the union reflects remote state.
func (c *Client) MergeTags(ctx context.Context, id string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	item, err := c.fetchRaw(ctx, id)
	if err != nil {
		return err
	}

	merged := splitTags(item.Fields.Tags)
	for _, tag := range tags {
		if !tracker.ContainsName(merged, tag) {
			merged = append(merged, strings.TrimSpace(tag))
		}
	}

	endpoint := fmt.Sprintf("%s/_apis/wit/workitems/%s?api-version=%s", c.baseURL, url.PathEscape(id), apiVersion)
	ops := []patchOp{{Op: "add", Path: "/fields/System.Tags", Value: strings.Join(merged, "; ")}}
	return c.doJSON(ctx, http.MethodPatch, endpoint, "application/json-patch+json", ops, nil, "merge tags")
}

// FetchItems batch-fetches work items by id list.
func (c *Client) FetchItems(ctx context.Context, ids []string) ([]*types.WorkItemSnapshot, error) {
	endpoint := fmt.Sprintf("%s/_apis/wit/workitems?ids=%s&api-version=%s",
		c.baseURL, url.QueryEscape(strings.Join(ids, ",")), apiVersion)

	var out struct {
		Value []workItem `json:"value"`
	}
	if err := c.doJSON(ctx, http.MethodGet, endpoint, "", nil, &out, "batch fetch"); err != nil {
		return nil, err
	}

	snapshots := make([]*types.WorkItemSnapshot, 0, len(out.Value))
	for i := range out.Value {
		snapshots = append(snapshots, snapshotOf(&out.Value[i]))
	}
	return snapshots, nil
}

// SearchItemIDs runs a WIQL query and returns the matching item ids in
// result order.
func (c *Client) SearchItemIDs(ctx context.Context, wiql string) ([]string, error) {
	endpoint := fmt.Sprintf("%s/_apis/wit/wiql?api-version=%s", c.baseURL, apiVersion)
	body := map[string]string{"query": wiql}

	var out struct {
		WorkItems []struct {
			ID int `json:"id"`
		} `json:"workItems"`
	}
	if err := c.doJSON(ctx, http.MethodPost, endpoint, "application/json", body, &out, "wiql query"); err != nil {
		return nil, err
	}

	ids := make([]string, 0, len(out.WorkItems))
	for _, wi := range out.WorkItems {
		ids = append(ids, strconv.Itoa(wi.ID))
	}
	return ids, nil
}

// fetchRaw reads a work item in wire form, relations included.
func (c *Client) fetchRaw(ctx context.Context, id string) (*workItem, error) {
	endpoint := fmt.Sprintf("%s/_apis/wit/workitems/%s?$expand=relations&api-version=%s",
		c.baseURL, url.PathEscape(id), apiVersion)

	var item workItem
	if err := c.doJSON(ctx, http.MethodGet, endpoint, "", nil, &item, "fetch item"); err != nil {
		return nil, err
	}
	return &item, nil
}

// doJSON performs one authenticated request and decodes the response into
// out when provided. Non-2xx responses become APIErrors with a truncated
// body; tracker calls are not retried here, the backend's own timeout
// behavior applies.
func (c *Client) doJSON(ctx context.Context, method, endpoint, contentType string, body, out any, operation string) error {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to encode %s request: %w", operation, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("failed to create %s request: %w", operation, err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return &tracker.APIError{Backend: backendName, Operation: operation, Cause: err}
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return &tracker.APIError{Backend: backendName, Operation: operation, Cause: err}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return tracker.NewAPIError(backendName, operation, resp.StatusCode, string(respBody))
	}

	if out != nil {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &tracker.APIError{Backend: backendName, Operation: operation, Cause: err}
		}
	}
	return nil
}

// snapshotOf converts the wire item into the canonical snapshot at the
// package boundary. Stored HTML becomes flat text so nothing downstream sees
// this backend's rich-text dialect.
func snapshotOf(item *workItem) *types.WorkItemSnapshot {
	return &types.WorkItemSnapshot{
		SourceID:                 strconv.Itoa(item.ID),
		Title:                    item.Fields.Title,
		DescriptionMarkup:        format.HTMLToText(item.Fields.Description),
		AcceptanceCriteriaMarkup: format.HTMLToText(item.Fields.AcceptanceCriteria),
		Tags:                     splitTags(item.Fields.Tags),
	}
}

func splitTags(joined string) []string {
	var tags []string
	for _, tag := range strings.Split(joined, ";") {
		tag = strings.TrimSpace(tag)
		if tag != "" {
			tags = append(tags, tag)
		}
	}
	return tags
}

func lastPathSegment(rawURL string) string {
	idx := strings.LastIndex(rawURL, "/")
	if idx < 0 || idx == len(rawURL)-1 {
		return ""
	}
	return rawURL[idx+1:]
}
