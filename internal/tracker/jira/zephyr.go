package jira

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/danielmv/storysmith/internal/tracker"
)

const testMgmtBackend = "jira-testmgmt"

// TestMgmtClient implements the test-management capability against a
// Zephyr-style subsystem. It authenticates with its own token, separate from
// the tracker credential.
type TestMgmtClient struct {
	baseURL    string
	token      string
	projectKey string
	http       *http.Client
}

func newTestMgmtClient(baseURL, token, projectKey string) *TestMgmtClient {
	return &TestMgmtClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		token:      token,
		projectKey: projectKey,
		http:       &http.Client{Timeout: 30 * time.Second},
	}
}

// testCase is the subsystem's wire shape. Fields beyond the ones we manage
// are carried opaquely on update so a read-modify-write never drops them.
type testCase struct {
	Key       string `json:"key,omitempty"`
	Name      string `json:"name"`
	Objective string `json:"objective,omitempty"`
	Project   struct {
		Key string `json:"key,omitempty"`
	} `json:"project,omitempty"`
}

// SearchTestCaseByName returns the key of the first test case whose name
// matches exactly, in result order. Search is substring-based server-side, so
// the exact comparison happens here.
func (c *TestMgmtClient) SearchTestCaseByName(ctx context.Context, name string) (string, error) {
	query := fmt.Sprintf(`projectKey = "%s" AND name = "%s"`, c.projectKey, strings.ReplaceAll(name, `"`, `\"`))
	endpoint := fmt.Sprintf("%s/rest/atm/1.0/testcase/search?query=%s&maxResults=20",
		c.baseURL, url.QueryEscape(query))

	var results []testCase
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &results, "search test case"); err != nil {
		return "", err
	}

	target := tracker.NormalizeName(name)
	for _, tc := range results {
		if tracker.NormalizeName(tc.Name) == target {
			return tc.Key, nil
		}
	}
	return "", nil
}

// CreateTestCase creates a named test case in the configured project and
// returns its key.
func (c *TestMgmtClient) CreateTestCase(ctx context.Context, name, objective string) (string, error) {
	body := map[string]any{
		"projectKey": c.projectKey,
		"name":       name,
		"objective":  objective,
	}

	var created struct {
		Key string `json:"key"`
	}
	endpoint := c.baseURL + "/rest/atm/1.0/testcase"
	if err := c.doJSON(ctx, http.MethodPost, endpoint, body, &created, "create test case"); err != nil {
		return "", err
	}
	return created.Key, nil
}

// UpdateTestCase overwrites the name and objective of an existing test case.
// The current record is read first so unmanaged fields survive the PUT.
func (c *TestMgmtClient) UpdateTestCase(ctx context.Context, id, name, objective string) error {
	endpoint := fmt.Sprintf("%s/rest/atm/1.0/testcase/%s", c.baseURL, url.PathEscape(id))

	var current map[string]any
	if err := c.doJSON(ctx, http.MethodGet, endpoint, nil, &current, "fetch test case"); err != nil {
		return err
	}
	if current == nil {
		current = map[string]any{}
	}
	current["name"] = name
	current["objective"] = objective
	// Read-only fields are rejected on write.
	delete(current, "key")
	delete(current, "createdOn")
	delete(current, "majorVersion")

	return c.doJSON(ctx, http.MethodPut, endpoint, current, nil, "update test case")
}

// WriteTestScript attaches a BDD-type script body to a test case, replacing
// any existing script.
func (c *TestMgmtClient) WriteTestScript(ctx context.Context, id, script string) error {
	endpoint := fmt.Sprintf("%s/rest/atm/1.0/testcase/%s/testscript", c.baseURL, url.PathEscape(id))
	body := map[string]any{
		"type": "bdd",
		"text": script,
	}
	return c.doJSON(ctx, http.MethodPost, endpoint, body, nil, "write test script")
}

// LinkTestCaseToItem associates a test case with a tracker issue.
func (c *TestMgmtClient) LinkTestCaseToItem(ctx context.Context, testCaseID, itemID string) error {
	endpoint := fmt.Sprintf("%s/rest/atm/1.0/testcase/%s/links/issues", c.baseURL, url.PathEscape(testCaseID))
	body := map[string]any{"issueKey": itemID}
	return c.doJSON(ctx, http.MethodPost, endpoint, body, nil, "link test case")
}

func (c *TestMgmtClient) doJSON(ctx context.Context, method, endpoint string, body, out any, operation string) error {
	err := doJSON(ctx, c.http, c.token, method, endpoint, body, out, operation)
	var apiErr *tracker.APIError
	if errors.As(err, &apiErr) {
		apiErr.Backend = testMgmtBackend
	}
	return err
}
