package format

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkupToBlocks(t *testing.T) {
	tests := []struct {
		name   string
		markup string
		blocks []Block
	}{
		{
			name:   "empty input",
			markup: "",
			blocks: []Block{},
		},
		{
			name:   "single paragraph",
			markup: "Implement the login flow.",
			blocks: []Block{
				{Type: BlockParagraph, Runs: []TextRun{{Text: "Implement the login flow."}}},
			},
		},
		{
			name:   "multi-line paragraph joins with a space",
			markup: "first line\nsecond line",
			blocks: []Block{
				{Type: BlockParagraph, Runs: []TextRun{{Text: "first line second line"}}},
			},
		},
		{
			name:   "bullet list",
			markup: "- one\n- two",
			blocks: []Block{
				{Type: BlockBulletList, Items: [][]TextRun{
					{{Text: "one"}},
					{{Text: "two"}},
				}},
			},
		},
		{
			name:   "mixed bullet markers",
			markup: "- one\n* two",
			blocks: []Block{
				{Type: BlockBulletList, Items: [][]TextRun{
					{{Text: "one"}},
					{{Text: "two"}},
				}},
			},
		},
		{
			name:   "paragraph with a dash line is not a list",
			markup: "intro\n- trailing item",
			blocks: []Block{
				{Type: BlockParagraph, Runs: []TextRun{{Text: "intro - trailing item"}}},
			},
		},
		{
			name:   "heading",
			markup: "## Overview",
			blocks: []Block{
				{Type: BlockHeading, Level: 2, Runs: []TextRun{{Text: "Overview"}}},
			},
		},
		{
			name:   "bold and italic runs",
			markup: "plain **bold** and _italic_ end",
			blocks: []Block{
				{Type: BlockParagraph, Runs: []TextRun{
					{Text: "plain "},
					{Text: "bold", Bold: true},
					{Text: " and "},
					{Text: "italic", Italic: true},
					{Text: " end"},
				}},
			},
		},
		{
			name:   "unmatched bold delimiter stays literal",
			markup: "price is **broken",
			blocks: []Block{
				{Type: BlockParagraph, Runs: []TextRun{{Text: "price is **broken"}}},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := MarkupToBlocks(tt.markup)
			assert.Equal(t, tt.blocks, doc.Blocks)
		})
	}
}

func TestMarkupRoundTrip(t *testing.T) {
	// Rendering and re-parsing must preserve bullet membership and span
	// boundaries for well-formed input.
	inputs := []string{
		"A paragraph with **bold** and _italic_ spans.",
		"# Title\n\nBody text here.",
		"- first item\n- **second** item\n- third _item_",
		"Intro paragraph.\n\n- alpha\n- beta\n\nClosing paragraph.",
	}

	for _, markup := range inputs {
		doc := MarkupToBlocks(markup)
		rendered := BlocksToMarkup(doc)
		reparsed := MarkupToBlocks(rendered)
		require.Equal(t, doc, reparsed, "round trip changed structure for %q", markup)
	}
}

func TestPlainText(t *testing.T) {
	doc := MarkupToBlocks("# Head\n\npara **bold**\n\n- one\n- two")
	assert.Equal(t, "Head\npara bold\none\ntwo", PlainText(doc))
}

func TestBlocksToMarkupDefaultHeadingLevel(t *testing.T) {
	doc := BlockDoc{Blocks: []Block{
		{Type: BlockHeading, Runs: []TextRun{{Text: "Untitled"}}},
	}}
	assert.Equal(t, "### Untitled", BlocksToMarkup(doc))
}
