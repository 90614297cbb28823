// Package format provides lossy-tolerant conversion between the three rich
// content representations used by the pipeline: flat markup (bold/italic/
// lists/headings), a block-document tree as used by document-based trackers,
// and plain Given/When/Then text. Functions in this package never return an
// error and never panic on malformed input; they sit between generation and a
// tracker write, so a rendering edge case must degrade, not block a sync.
package format

import "strings"

// BlockType identifies the kind of a document block.
type BlockType string

// Block kinds in a BlockDoc.
const (
	BlockParagraph  BlockType = "paragraph"
	BlockHeading    BlockType = "heading"
	BlockBulletList BlockType = "bulletList"
)

// TextRun is a span of text with optional bold/italic marks.
type TextRun struct {
	Text   string `json:"text"`
	Bold   bool   `json:"bold,omitempty"`
	Italic bool   `json:"italic,omitempty"`
}

// Block is one node of a block document: a paragraph or heading holds Runs,
// a bullet list holds Items (one run list per list item).
type Block struct {
	Type  BlockType   `json:"type"`
	Level int         `json:"level,omitempty"`
	Runs  []TextRun   `json:"runs,omitempty"`
	Items [][]TextRun `json:"items,omitempty"`
}

// BlockDoc is an ordered tree of blocks, the canonical intermediate form for
// document-based tracker payloads.
type BlockDoc struct {
	Blocks []Block `json:"blocks"`
}

// MarkupToBlocks converts flat markup into a block document. Paragraphs are
// separated by blank lines; a paragraph is a bullet list iff every non-empty
// line starts with "-" or "*"; a paragraph is a heading iff it starts with
// "#". Unmatched inline delimiters degrade to literal text.
func MarkupToBlocks(markup string) BlockDoc {
	doc := BlockDoc{Blocks: []Block{}}

	for _, para := range splitParagraphs(markup) {
		lines := nonEmptyLines(para)
		if len(lines) == 0 {
			continue
		}

		switch {
		case isBulletParagraph(lines):
			block := Block{Type: BlockBulletList, Items: [][]TextRun{}}
			for _, line := range lines {
				block.Items = append(block.Items, parseInline(stripBulletPrefix(line)))
			}
			doc.Blocks = append(doc.Blocks, block)

		case strings.HasPrefix(lines[0], "#"):
			level := 0
			text := lines[0]
			for level < len(text) && text[level] == '#' {
				level++
			}
			doc.Blocks = append(doc.Blocks, Block{
				Type:  BlockHeading,
				Level: level,
				Runs:  parseInline(strings.TrimSpace(text[level:])),
			})
			// Remaining lines of a heading paragraph become a plain paragraph.
			if len(lines) > 1 {
				doc.Blocks = append(doc.Blocks, Block{
					Type: BlockParagraph,
					Runs: parseInline(strings.Join(lines[1:], " ")),
				})
			}

		default:
			doc.Blocks = append(doc.Blocks, Block{
				Type: BlockParagraph,
				Runs: parseInline(strings.Join(lines, " ")),
			})
		}
	}

	return doc
}

// BlocksToMarkup renders a block document back into flat markup.
func BlocksToMarkup(doc BlockDoc) string {
	var paragraphs []string
	for _, block := range doc.Blocks {
		switch block.Type {
		case BlockHeading:
			level := block.Level
			if level <= 0 {
				level = 3
			}
			paragraphs = append(paragraphs, strings.Repeat("#", level)+" "+renderRuns(block.Runs))
		case BlockBulletList:
			var lines []string
			for _, item := range block.Items {
				lines = append(lines, "- "+renderRuns(item))
			}
			paragraphs = append(paragraphs, strings.Join(lines, "\n"))
		default:
			paragraphs = append(paragraphs, renderRuns(block.Runs))
		}
	}
	return strings.Join(paragraphs, "\n\n")
}

// PlainText extracts the unmarked text content of a block document, one line
// per paragraph/heading/list item.
func PlainText(doc BlockDoc) string {
	var lines []string
	for _, block := range doc.Blocks {
		if block.Type == BlockBulletList {
			for _, item := range block.Items {
				lines = append(lines, runsText(item))
			}
			continue
		}
		lines = append(lines, runsText(block.Runs))
	}
	return strings.Join(lines, "\n")
}

// parseInline parses **bold** and _italic_ delimiters left-to-right into
// marked runs. A delimiter with no later closing partner is kept literal.
func parseInline(text string) []TextRun {
	var runs []TextRun
	var buf strings.Builder
	bold, italic := false, false

	flush := func() {
		if buf.Len() > 0 {
			runs = append(runs, TextRun{Text: buf.String(), Bold: bold, Italic: italic})
			buf.Reset()
		}
	}

	for i := 0; i < len(text); {
		if strings.HasPrefix(text[i:], "**") {
			if bold || strings.Contains(text[i+2:], "**") {
				flush()
				bold = !bold
				i += 2
				continue
			}
			// Unmatched opener: literal.
			buf.WriteString("**")
			i += 2
			continue
		}
		if text[i] == '_' {
			if italic || strings.Contains(text[i+1:], "_") {
				flush()
				italic = !italic
				i++
				continue
			}
			buf.WriteByte('_')
			i++
			continue
		}
		buf.WriteByte(text[i])
		i++
	}
	flush()

	if runs == nil {
		runs = []TextRun{}
	}
	return runs
}

// renderRuns converts runs back to delimited markup.
func renderRuns(runs []TextRun) string {
	var sb strings.Builder
	for _, run := range runs {
		text := run.Text
		if run.Italic {
			text = "_" + text + "_"
		}
		if run.Bold {
			text = "**" + text + "**"
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// runsText concatenates run text without marks.
func runsText(runs []TextRun) string {
	var sb strings.Builder
	for _, run := range runs {
		sb.WriteString(run.Text)
	}
	return sb.String()
}

func splitParagraphs(markup string) []string {
	normalized := strings.ReplaceAll(markup, "\r\n", "\n")
	var paragraphs []string
	var current []string
	for _, line := range strings.Split(normalized, "\n") {
		if strings.TrimSpace(line) == "" {
			if len(current) > 0 {
				paragraphs = append(paragraphs, strings.Join(current, "\n"))
				current = nil
			}
			continue
		}
		current = append(current, line)
	}
	if len(current) > 0 {
		paragraphs = append(paragraphs, strings.Join(current, "\n"))
	}
	return paragraphs
}

func nonEmptyLines(para string) []string {
	var lines []string
	for _, line := range strings.Split(para, "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func isBulletParagraph(lines []string) bool {
	for _, line := range lines {
		if !strings.HasPrefix(line, "-") && !strings.HasPrefix(line, "*") {
			return false
		}
		rest := line[1:]
		if rest != "" && !strings.HasPrefix(rest, " ") {
			return false
		}
	}
	return len(lines) > 0
}

func stripBulletPrefix(line string) string {
	line = strings.TrimSpace(line)
	for _, prefix := range []string{"- ", "* ", "• ", "-", "*", "•"} {
		if strings.HasPrefix(line, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(line, prefix))
		}
	}
	return line
}
