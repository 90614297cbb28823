package generation

import (
	"context"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielmv/storysmith/internal/llm"
	"github.com/danielmv/storysmith/internal/types"
)

const validModelOutput = `{
	"title": "Add login with OAuth",
	"type": "User Story",
	"description": "As a customer, I want to log in, so that I can see my orders.\nImplement the login flow.",
	"acceptance_criteria": ["login succeeds with valid credentials"],
	"test_cases": [{"given": "a user", "when": "they log in", "then": "the dashboard loads"}],
	"tasks": ["Implement OAuth flow"],
	"tags": []
}`

// stubClient scripts the JSON responses returned to the orchestrator.
type stubClient struct {
	jsonResponses []string
	jsonErrs      []error
	jsonCalls     int

	retrievalOut string
	retrievalErr error
}

func (s *stubClient) GenerateContent(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
	return "", nil
}

func (s *stubClient) GenerateJSON(_ context.Context, _ string, _ llm.ModelTier) (string, error) {
	idx := s.jsonCalls
	s.jsonCalls++
	var err error
	if idx < len(s.jsonErrs) {
		err = s.jsonErrs[idx]
	}
	if err != nil {
		return "", err
	}
	if idx < len(s.jsonResponses) {
		return s.jsonResponses[idx], nil
	}
	return s.jsonResponses[len(s.jsonResponses)-1], nil
}

func (s *stubClient) GenerateWithRetrieval(_ context.Context, _ string, _ llm.Retriever, _ llm.ModelTier) (string, error) {
	return s.retrievalOut, s.retrievalErr
}

func (s *stubClient) GetModel(_ llm.ModelTier) string { return "stub" }
func (s *stubClient) Close() error                    { return nil }

func fastRetry() llm.RetryConfig {
	return llm.RetryConfig{MaxRetries: 2, CallTimeout: time.Second, BaseDelay: time.Millisecond}
}

func testItem() *types.WorkItemSnapshot {
	return &types.WorkItemSnapshot{
		SourceID:          "101",
		Title:             "Add login",
		DescriptionMarkup: "<p>Old description</p>",
	}
}

func TestEnhanceProducesPostProcessedContent(t *testing.T) {
	client := &stubClient{jsonResponses: []string{validModelOutput}}
	orch := NewWithRetry(client, fastRetry())

	content, err := orch.Enhance(context.Background(), testItem(), Options{})
	require.NoError(t, err)

	assert.Equal(t, "Add login with OAuth", content.Title)
	assert.Equal(t, types.TypeUserStory, content.Type)
	assert.Equal(t, "As a customer, I want to log in, so that I can see my orders.", content.RoleGoalReason)
	assert.Equal(t,
		[]string{"Implement OAuth flow", "PR Review", "Dev Testing", "QA Handoff"},
		content.Tasks)
	assert.True(t, content.HasTag(types.ProvenanceTag))
	assert.Equal(t, 1, client.jsonCalls)
}

func TestEnhanceStripsCodeFences(t *testing.T) {
	client := &stubClient{jsonResponses: []string{"```json\n" + validModelOutput + "\n```"}}
	orch := NewWithRetry(client, fastRetry())

	content, err := orch.Enhance(context.Background(), testItem(), Options{})
	require.NoError(t, err)
	assert.Equal(t, "Add login with OAuth", content.Title)
}

func TestEnhanceRetriesTransientFailures(t *testing.T) {
	client := &stubClient{
		jsonErrs:      []error{&llm.UpstreamError{StatusCode: http.StatusTooManyRequests}, nil},
		jsonResponses: []string{"", validModelOutput},
	}
	orch := NewWithRetry(client, fastRetry())

	_, err := orch.Enhance(context.Background(), testItem(), Options{})
	require.NoError(t, err)
	assert.Equal(t, 2, client.jsonCalls)
}

func TestEnhanceSurfacesExhaustedRetries(t *testing.T) {
	client := &stubClient{
		jsonErrs: []error{
			&llm.UpstreamError{StatusCode: 503},
			&llm.UpstreamError{StatusCode: 503},
			&llm.UpstreamError{StatusCode: 503},
		},
	}
	orch := NewWithRetry(client, fastRetry())

	_, err := orch.Enhance(context.Background(), testItem(), Options{})
	require.Error(t, err)

	var apiErr *APICallError
	assert.ErrorAs(t, err, &apiErr)
	assert.Equal(t, 3, client.jsonCalls)
}

func TestEnhanceRejectsNonSchemaOutput(t *testing.T) {
	tests := []struct {
		name   string
		output string
	}{
		{"prose instead of JSON", "I could not produce the requested structure."},
		{"schema violation", `{"title": "t", "type": "Epic", "description": ""}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := &stubClient{jsonResponses: []string{tt.output}}
			orch := NewWithRetry(client, fastRetry())

			_, err := orch.Enhance(context.Background(), testItem(), Options{})
			require.Error(t, err)

			var parseErr *ParseError
			assert.ErrorAs(t, err, &parseErr)
		})
	}
}

func TestEnhanceRetrievalFailureIsNonFatal(t *testing.T) {
	client := &stubClient{
		jsonResponses: []string{validModelOutput},
		retrievalErr:  &llm.UpstreamError{StatusCode: 500},
	}
	orch := NewWithRetry(client, fastRetry())

	content, err := orch.Enhance(context.Background(), testItem(), Options{
		ContextSnippets: []string{"platform uses PostgreSQL"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Add login with OAuth", content.Title)
}

func TestExtractEnhancedContent(t *testing.T) {
	content, err := extractEnhancedContent(validModelOutput)
	require.NoError(t, err)
	assert.Equal(t, "Add login with OAuth", content.Title)

	_, err = extractEnhancedContent("no json here")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no structured output")
}
