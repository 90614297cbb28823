// Package jira implements the tracker capability interface for the
// document-based backend (Jira wire protocol): bearer-auth REST, ADF
// block-document field values, sanitized labels, and an optional separate
// test-management subsystem with its own base URL and credential.
package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/danielmv/storysmith/internal/format"
	"github.com/danielmv/storysmith/internal/tracker"
	"github.com/danielmv/storysmith/internal/types"
)

const backendName = "jira"

// TestCasesMapping selects where generated test cases land for a project.
// The three modes are mutually exclusive.
type TestCasesMapping string

// Supported test case destinations.
const (
	MappingDescription TestCasesMapping = "description"
	MappingCustomField TestCasesMapping = "custom_field"
	MappingZephyr      TestCasesMapping = "zephyr"
)

// Config holds the per-project connection settings. The test-management
// subsystem authenticates separately from the main tracker.
type Config struct {
	BaseURL    string
	Token      string
	ProjectKey string

	// AcceptanceFieldID is the custom field that stores acceptance criteria.
	AcceptanceFieldID string
	// TestCaseFieldID is the custom field used in MappingCustomField mode.
	TestCaseFieldID string

	TestCasesMapping TestCasesMapping
	TestMgmtBaseURL  string
	TestMgmtToken    string
}

// Client talks to one Jira project, with an optional Zephyr-style
// test-management subclient.
type Client struct {
	cfg  Config
	http *http.Client
	test *TestMgmtClient
}

// New creates a client from config. The test-management subclient exists
// only when the mapping asks for it and a subsystem URL is configured.
func New(cfg Config) *Client {
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	c := &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
	}
	if cfg.TestCasesMapping == MappingZephyr && cfg.TestMgmtBaseURL != "" {
		c.test = newTestMgmtClient(cfg.TestMgmtBaseURL, cfg.TestMgmtToken, cfg.ProjectKey)
	}
	return c
}

// Mapping returns the configured test case destination.
func (c *Client) Mapping() TestCasesMapping {
	return c.cfg.TestCasesMapping
}

// TestManager returns the test-management capability, or nil when the
// project is not configured for first-class test entities.
func (c *Client) TestManager() tracker.TestManager {
	if c.test == nil {
		return nil
	}
	return c.test
}

// issue is the wire shape of a fetched issue; it never leaves this package.
type issue struct {
	Key    string      `json:"key"`
	Fields issueFields `json:"fields"`
}

type issueFields struct {
	Summary     string          `json:"summary"`
	Description json.RawMessage `json:"description,omitempty"`
	Labels      []string        `json:"labels,omitempty"`
	Subtasks    []issue         `json:"subtasks,omitempty"`
}

// FetchItem reads an issue into a canonical snapshot. The ADF description is
// converted to flat markup at this boundary.
func (c *Client) FetchItem(ctx context.Context, id string) (*types.WorkItemSnapshot, error) {
	iss, err := c.fetchIssue(ctx, id)
	if err != nil {
		return nil, err
	}

	return &types.WorkItemSnapshot{
		SourceID:          iss.Key,
		Title:             iss.Fields.Summary,
		DescriptionMarkup: format.BlocksToMarkup(blocksFromADF(iss.Fields.Description)),
		Tags:              iss.Fields.Labels,
	}, nil
}

// PatchFields updates issue fields. Description and acceptance criteria are
// supplied to the wire in the block-document representation.
func (c *Client) PatchFields(ctx context.Context, id string, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}

	wire := map[string]any{}
	for name, value := range fields {
		switch name {
		case tracker.FieldTitle:
			wire["summary"] = value
		case tracker.FieldDescription:
			wire["description"] = adfFromMarkup(asString(value))
		case tracker.FieldAcceptanceCriteria:
			if c.cfg.AcceptanceFieldID == "" {
				return fmt.Errorf("%s: acceptance criteria custom field is not configured", backendName)
			}
			wire[c.cfg.AcceptanceFieldID] = adfFromList(asStringList(value))
		case tracker.FieldStoryPoints:
			// Story points ride on the estimation custom field common to
			// company-managed projects.
			wire["customfield_10016"] = value
		default:
			return fmt.Errorf("unknown field %q for %s backend", name, backendName)
		}
	}

	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s", c.cfg.BaseURL, url.PathEscape(id))
	return c.doJSON(ctx, http.MethodPut, endpoint, map[string]any{"fields": wire}, nil, "update issue")
}

// CreateChild creates a sub-task (or linked issue of the given kind) under
// the parent and returns its key.
func (c *Client) CreateChild(ctx context.Context, parentID string, kind types.ItemType, fields map[string]any) (string, error) {
	issueType := "Sub-task"
	if kind == types.TypeTestCase {
		issueType = "Test"
	}

	wire := map[string]any{
		"project":   map[string]string{"key": c.cfg.ProjectKey},
		"parent":    map[string]string{"key": parentID},
		"issuetype": map[string]string{"name": issueType},
	}
	for name, value := range fields {
		switch name {
		case tracker.FieldTitle:
			wire["summary"] = value
		case tracker.FieldDescription:
			wire["description"] = adfFromMarkup(asString(value))
		default:
			return "", fmt.Errorf("unknown field %q for %s child creation", name, backendName)
		}
	}

	endpoint := c.cfg.BaseURL + "/rest/api/3/issue"
	var created issue
	if err := c.doJSON(ctx, http.MethodPost, endpoint, map[string]any{"fields": wire}, &created, "create child"); err != nil {
		return "", err
	}
	return created.Key, nil
}

// ExistingChildTitles lists the summaries of sub-tasks already attached to
// an issue.
func (c *Client) ExistingChildTitles(ctx context.Context, id string) ([]string, error) {
	iss, err := c.fetchIssue(ctx, id)
	if err != nil {
		return nil, err
	}
	titles := make([]string, 0, len(iss.Fields.Subtasks))
	for _, sub := range iss.Fields.Subtasks {
		titles = append(titles, sub.Fields.Summary)
	}
	return titles, nil
}

// MergeTags unions sanitized labels into the issue's current label set.
func (c *Client) MergeTags(ctx context.Context, id string, tags []string) error {
	if len(tags) == 0 {
		return nil
	}

	iss, err := c.fetchIssue(ctx, id)
	if err != nil {
		return err
	}

	merged := append([]string{}, iss.Fields.Labels...)
	for _, tag := range tags {
		label := SanitizeLabel(tag)
		if label != "" && !tracker.ContainsName(merged, label) {
			merged = append(merged, label)
		}
	}

	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s", c.cfg.BaseURL, url.PathEscape(id))
	body := map[string]any{"fields": map[string]any{"labels": merged}}
	return c.doJSON(ctx, http.MethodPut, endpoint, body, nil, "merge labels")
}

// WriteTestCases stores rendered test case text according to the configured
// mapping when the destination is the custom field.
func (c *Client) WriteTestCases(ctx context.Context, id string, gherkin []string) error {
	if c.cfg.TestCaseFieldID == "" {
		return fmt.Errorf("%s: test case custom field is not configured", backendName)
	}
	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s", c.cfg.BaseURL, url.PathEscape(id))
	body := map[string]any{"fields": map[string]any{
		c.cfg.TestCaseFieldID: adfFromMarkup(strings.Join(gherkin, "\n\n")),
	}}
	return c.doJSON(ctx, http.MethodPut, endpoint, body, nil, "write test cases field")
}

// SearchItemIDs runs a JQL query and returns all matching issue keys,
// following pagination.
func (c *Client) SearchItemIDs(ctx context.Context, jql string) ([]string, error) {
	var keys []string
	startAt := 0
	for {
		endpoint := fmt.Sprintf("%s/rest/api/3/search?jql=%s&startAt=%d&maxResults=50&fields=summary",
			c.cfg.BaseURL, url.QueryEscape(jql), startAt)

		var page struct {
			StartAt    int     `json:"startAt"`
			MaxResults int     `json:"maxResults"`
			Total      int     `json:"total"`
			Issues     []issue `json:"issues"`
		}
		if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &page, "search issues"); err != nil {
			return nil, err
		}
		for _, iss := range page.Issues {
			keys = append(keys, iss.Key)
		}

		startAt += len(page.Issues)
		if len(page.Issues) == 0 || startAt >= page.Total {
			break
		}
	}
	return keys, nil
}

func (c *Client) fetchIssue(ctx context.Context, id string) (*issue, error) {
	endpoint := fmt.Sprintf("%s/rest/api/3/issue/%s?fields=summary,description,labels,subtasks",
		c.cfg.BaseURL, url.PathEscape(id))

	var iss issue
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &iss, "fetch issue"); err != nil {
		return nil, err
	}
	return &iss, nil
}

func (c *Client) doJSON(ctx context.Context, method, endpoint string, body, out any, operation string) error {
	return doJSON(ctx, c.http, c.cfg.Token, method, endpoint, body, out, operation)
}

// doJSON is shared with the test-management subclient, which carries its own
// token.
func doJSON(ctx context.Context, client *http.Client, token, method, endpoint string, body, out any, operation string) error {
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
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
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

	if out != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, out); err != nil {
			return &tracker.APIError{Backend: backendName, Operation: operation, Cause: err}
		}
	}
	return nil
}

var labelInvalid = regexp.MustCompile(`[^a-zA-Z0-9]+`)

// SanitizeLabel converts arbitrary tag text into a legal label: runs of
// non-alphanumeric characters collapse to a single hyphen.
func SanitizeLabel(tag string) string {
	label := labelInvalid.ReplaceAllString(strings.TrimSpace(tag), "-")
	return strings.Trim(label, "-")
}

func asString(value any) string {
	if s, ok := value.(string); ok {
		return s
	}
	return fmt.Sprintf("%v", value)
}

func asStringList(value any) []string {
	switch v := value.(type) {
	case []string:
		return v
	case string:
		return format.ExtractListItems(v)
	default:
		return nil
	}
}
