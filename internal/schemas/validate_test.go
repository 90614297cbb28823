package schemas

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateEnhancedContentAccepts(t *testing.T) {
	valid := `{
		"title": "Add login",
		"type": "User Story",
		"description": "Implement the login flow.",
		"acceptance_criteria": ["works"],
		"test_cases": [
			{"given": "a user", "when": "they log in", "then": "it works"},
			{"name": "Verify login", "bdd_script": "Given ..."}
		],
		"tasks": [],
		"story_points": 3,
		"tags": ["auth"]
	}`
	assert.NoError(t, ValidateEnhancedContent(valid))
}

func TestValidateEnhancedContentAcceptsNulls(t *testing.T) {
	valid := `{
		"title": "Add login",
		"type": "Bug",
		"description": "",
		"story_points": null,
		"role_goal_reason": null
	}`
	assert.NoError(t, ValidateEnhancedContent(valid))
}

func TestValidateEnhancedContentRejects(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{
			name:    "missing required fields",
			payload: `{"title": "Add login"}`,
		},
		{
			name:    "unknown top-level property",
			payload: `{"title": "t", "type": "Bug", "description": "", "surprise": true}`,
		},
		{
			name:    "unknown item type",
			payload: `{"title": "t", "type": "Epic", "description": ""}`,
		},
		{
			name:    "empty title",
			payload: `{"title": "", "type": "Bug", "description": ""}`,
		},
		{
			name:    "unknown test case property",
			payload: `{"title": "t", "type": "Bug", "description": "", "test_cases": [{"steps": []}]}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateEnhancedContent(tt.payload)
			require.Error(t, err)

			var ve *ValidationError
			require.ErrorAs(t, err, &ve)
			assert.NotEmpty(t, ve.Errors)
		})
	}
}
