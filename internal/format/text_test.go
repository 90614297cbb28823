package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTMLToText(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "plain text passes through",
			input:    "  just some text  ",
			expected: "just some text",
		},
		{
			name:     "paragraphs become lines",
			input:    "<p>first</p><p>second</p>",
			expected: "first\nsecond",
		},
		{
			name:     "list items stay distinguishable",
			input:    "<div>intro</div><ul><li>one</li><li>two</li></ul>",
			expected: "intro\none\ntwo",
		},
		{
			name:     "br splits a paragraph",
			input:    "<p>line one<br>line two</p>",
			expected: "line one\nline two",
		},
		{
			name:     "blank lines are dropped",
			input:    "<p>a</p><p>  </p><p>b</p>",
			expected: "a\nb",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, HTMLToText(tt.input))
		})
	}
}

func TestExtractListItems(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{
			name:     "empty input",
			input:    "",
			expected: []string{},
		},
		{
			name:     "html list",
			input:    "<ul><li>first</li><li> second </li><li></li></ul>",
			expected: []string{"first", "second"},
		},
		{
			name:     "line based with bullets",
			input:    "- one\n* two\n\n  three",
			expected: []string{"one", "two", "three"},
		},
		{
			name:     "li mention without real items falls back to lines",
			input:    "mentions <li but no list",
			expected: []string{"mentions <li but no list"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractListItems(tt.input))
		})
	}
}

func TestStripMarkup(t *testing.T) {
	markup := "## Notes\n\nSome **bold** text.\n\n- item one\n- item two"
	assert.Equal(t, "Notes\nSome bold text.\nitem one\nitem two", StripMarkup(markup))
}
