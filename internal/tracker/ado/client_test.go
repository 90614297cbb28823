package ado

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmv/storysmith/internal/tracker"
)

func TestFieldOps(t *testing.T) {
	ops, err := fieldOps(map[string]any{
		tracker.FieldTitle: "Add login",
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "add", ops[0].Op)
	assert.Equal(t, "/fields/System.Title", ops[0].Path)
	assert.Equal(t, "Add login", ops[0].Value)
}

func TestFieldOpsConvertsRichTextToHTML(t *testing.T) {
	ops, err := fieldOps(map[string]any{
		tracker.FieldDescription: "intro\n\n- one\n- two",
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "<p>intro</p><ul><li>one</li><li>two</li></ul>", ops[0].Value)
}

func TestFieldOpsConvertsAcceptanceListToHTML(t *testing.T) {
	ops, err := fieldOps(map[string]any{
		tracker.FieldAcceptanceCriteria: []string{"first", "a < b"},
	})
	require.NoError(t, err)
	require.Len(t, ops, 1)
	assert.Equal(t, "<ul><li>first</li><li>a &lt; b</li></ul>", ops[0].Value)
}

func TestFieldOpsRejectsUnknownField(t *testing.T) {
	_, err := fieldOps(map[string]any{"priority": 1})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "priority")
}

func TestSplitTags(t *testing.T) {
	assert.Equal(t, []string{"auth", "backend"}, splitTags("auth; backend"))
	assert.Equal(t, []string{"auth"}, splitTags("auth;"))
	assert.Nil(t, splitTags(""))
}

func TestLastPathSegment(t *testing.T) {
	assert.Equal(t, "42", lastPathSegment("https://tracker/_apis/wit/workItems/42"))
	assert.Equal(t, "", lastPathSegment("trailing/"))
	assert.Equal(t, "", lastPathSegment("nopath"))
}

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "secret")
}

func TestFetchItemFlattensHTML(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_apis/wit/workitems/7", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		fmt.Fprint(w, `{
			"id": 7,
			"fields": {
				"System.Title": "Add login",
				"System.Description": "<p>first</p><p>second</p>",
				"System.Tags": "auth; backend"
			}
		}`)
	})
	client := newTestClient(t, mux)

	snapshot, err := client.FetchItem(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, "7", snapshot.SourceID)
	assert.Equal(t, "first\nsecond", snapshot.DescriptionMarkup)
	assert.Equal(t, []string{"auth", "backend"}, snapshot.Tags)
}

func TestExistingChildTitlesWalksRelations(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /_apis/wit/workitems/7", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{
			"id": 7,
			"fields": {"System.Title": "parent"},
			"relations": [
				{"rel": "System.LinkTypes.Hierarchy-Forward", "url": "https://tracker/_apis/wit/workItems/8"},
				{"rel": "System.LinkTypes.Hierarchy-Reverse", "url": "https://tracker/_apis/wit/workItems/1"},
				{"rel": "System.LinkTypes.Hierarchy-Forward", "url": "https://tracker/_apis/wit/workItems/9"}
			]
		}`)
	})
	mux.HandleFunc("GET /_apis/wit/workitems", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "8,9", r.URL.Query().Get("ids"))
		fmt.Fprint(w, `{"value": [
			{"id": 8, "fields": {"System.Title": "PR Review"}},
			{"id": 9, "fields": {"System.Title": "Dev Testing"}}
		]}`)
	})
	client := newTestClient(t, mux)

	titles, err := client.ExistingChildTitles(context.Background(), "7")
	require.NoError(t, err)
	assert.Equal(t, []string{"PR Review", "Dev Testing"}, titles)
}

func TestErrorResponsesBecomeAPIErrors(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"message": "work item does not exist"}`, http.StatusNotFound)
	}))

	_, err := client.FetchItem(context.Background(), "999")
	require.Error(t, err)

	var apiErr *tracker.APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.StatusCode)
	assert.Equal(t, "ado", apiErr.Backend)
}
