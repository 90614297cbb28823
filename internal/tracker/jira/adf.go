package jira

import (
	"encoding/json"

	"github.com/danielmv/storysmith/internal/format"
)

// adfNode is the wire shape of one block-document node. The same struct
// covers documents, blocks, and inline text; unknown node types are ignored
// on read rather than rejected.
type adfNode struct {
	Type    string         `json:"type"`
	Version int            `json:"version,omitempty"`
	Text    string         `json:"text,omitempty"`
	Attrs   map[string]any `json:"attrs,omitempty"`
	Marks   []adfMark      `json:"marks,omitempty"`
	Content []adfNode      `json:"content,omitempty"`
}

type adfMark struct {
	Type string `json:"type"`
}

// adfFromBlocks renders a block document as an ADF document node.
func adfFromBlocks(doc format.BlockDoc) adfNode {
	root := adfNode{Type: "doc", Version: 1, Content: []adfNode{}}

	for _, block := range doc.Blocks {
		switch block.Type {
		case format.BlockHeading:
			level := block.Level
			if level < 1 || level > 6 {
				level = 3
			}
			root.Content = append(root.Content, adfNode{
				Type:    "heading",
				Attrs:   map[string]any{"level": level},
				Content: textNodes(block.Runs),
			})
		case format.BlockBulletList:
			list := adfNode{Type: "bulletList", Content: []adfNode{}}
			for _, item := range block.Items {
				list.Content = append(list.Content, adfNode{
					Type: "listItem",
					Content: []adfNode{{
						Type:    "paragraph",
						Content: textNodes(item),
					}},
				})
			}
			root.Content = append(root.Content, list)
		default:
			root.Content = append(root.Content, adfNode{
				Type:    "paragraph",
				Content: textNodes(block.Runs),
			})
		}
	}
	return root
}

// adfFromMarkup is the markup -> ADF convenience path used for field values.
func adfFromMarkup(markup string) adfNode {
	return adfFromBlocks(format.MarkupToBlocks(markup))
}

// adfFromList renders plain strings as a one-list ADF document.
func adfFromList(items []string) adfNode {
	doc := format.BlockDoc{Blocks: []format.Block{{Type: format.BlockBulletList}}}
	for _, item := range items {
		doc.Blocks[0].Items = append(doc.Blocks[0].Items, []format.TextRun{{Text: item}})
	}
	return adfFromBlocks(doc)
}

// blocksFromADF parses a raw ADF document into a block document. Unknown
// nodes are skipped; a nil or unparseable payload yields an empty document,
// never an error.
func blocksFromADF(raw json.RawMessage) format.BlockDoc {
	doc := format.BlockDoc{Blocks: []format.Block{}}
	if len(raw) == 0 {
		return doc
	}

	var root adfNode
	if err := json.Unmarshal(raw, &root); err != nil {
		return doc
	}

	for _, node := range root.Content {
		switch node.Type {
		case "heading":
			level := 3
			if v, ok := node.Attrs["level"].(float64); ok {
				level = int(v)
			}
			doc.Blocks = append(doc.Blocks, format.Block{
				Type:  format.BlockHeading,
				Level: level,
				Runs:  runsOf(node),
			})
		case "bulletList", "orderedList":
			block := format.Block{Type: format.BlockBulletList, Items: [][]format.TextRun{}}
			for _, item := range node.Content {
				block.Items = append(block.Items, runsOf(item))
			}
			doc.Blocks = append(doc.Blocks, block)
		case "paragraph":
			doc.Blocks = append(doc.Blocks, format.Block{
				Type: format.BlockParagraph,
				Runs: runsOf(node),
			})
		}
	}
	return doc
}

// runsOf collects the text runs nested anywhere under a node.
func runsOf(node adfNode) []format.TextRun {
	runs := []format.TextRun{}
	var walk func(n adfNode)
	walk = func(n adfNode) {
		if n.Type == "text" {
			run := format.TextRun{Text: n.Text}
			for _, mark := range n.Marks {
				switch mark.Type {
				case "strong":
					run.Bold = true
				case "em":
					run.Italic = true
				}
			}
			runs = append(runs, run)
			return
		}
		for _, child := range n.Content {
			walk(child)
		}
	}
	for _, child := range node.Content {
		walk(child)
	}
	return runs
}

func textNodes(runs []format.TextRun) []adfNode {
	nodes := []adfNode{}
	for _, run := range runs {
		if run.Text == "" {
			continue
		}
		node := adfNode{Type: "text", Text: run.Text}
		if run.Bold {
			node.Marks = append(node.Marks, adfMark{Type: "strong"})
		}
		if run.Italic {
			node.Marks = append(node.Marks, adfMark{Type: "em"})
		}
		nodes = append(nodes, node)
	}
	return nodes
}
