package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEnhanceRequestValidate(t *testing.T) {
	valid := &EnhanceRequest{ProjectID: "platform", ItemIDs: []string{"101"}}
	assert.NoError(t, valid.Validate())

	tests := []struct {
		name string
		req  *EnhanceRequest
	}{
		{"missing project", &EnhanceRequest{ItemIDs: []string{"101"}}},
		{"no items", &EnhanceRequest{ProjectID: "platform"}},
		{"empty item id", &EnhanceRequest{ProjectID: "platform", ItemIDs: []string{""}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, tt.req.Validate())
		})
	}
}

func TestApplyRequestValidate(t *testing.T) {
	valid := &ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"title", "description", "acceptance"},
	}
	assert.NoError(t, valid.Validate())

	unknownField := &ApplyRequest{
		SelectedItemIDs: []string{"101"},
		SelectedFields:  []string{"story_points"},
	}
	assert.Error(t, unknownField.Validate())

	noItems := &ApplyRequest{SelectedFields: []string{"title"}}
	assert.Error(t, noItems.Validate())
}

func TestApplyRequestHasField(t *testing.T) {
	req := &ApplyRequest{SelectedFields: []string{"title", "acceptance"}}
	assert.True(t, req.HasField("title"))
	assert.False(t, req.HasField("description"))
}
