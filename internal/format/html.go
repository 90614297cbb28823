package format

import (
	"html"
	"strings"
)

// MarkupToHTML renders flat markup as the simple HTML fragment dialect used
// by structured-fields trackers: headings, paragraphs, unordered lists, and
// b/i inline tags.
func MarkupToHTML(markup string) string {
	return BlocksToHTML(MarkupToBlocks(markup))
}

// BlocksToHTML renders a block document as an HTML fragment.
func BlocksToHTML(doc BlockDoc) string {
	var sb strings.Builder
	for _, block := range doc.Blocks {
		switch block.Type {
		case BlockHeading:
			level := block.Level
			if level < 1 || level > 4 {
				level = 3
			}
			tag := []string{"h1", "h2", "h3", "h4"}[level-1]
			sb.WriteString("<" + tag + ">" + runsToHTML(block.Runs) + "</" + tag + ">")
		case BlockBulletList:
			sb.WriteString("<ul>")
			for _, item := range block.Items {
				sb.WriteString("<li>" + runsToHTML(item) + "</li>")
			}
			sb.WriteString("</ul>")
		default:
			sb.WriteString("<p>" + runsToHTML(block.Runs) + "</p>")
		}
	}
	return sb.String()
}

func runsToHTML(runs []TextRun) string {
	var sb strings.Builder
	for _, run := range runs {
		text := html.EscapeString(run.Text)
		if run.Italic {
			text = "<i>" + text + "</i>"
		}
		if run.Bold {
			text = "<b>" + text + "</b>"
		}
		sb.WriteString(text)
	}
	return sb.String()
}

// ListToHTML renders plain list entries as an unordered HTML list.
func ListToHTML(items []string) string {
	if len(items) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString("<ul>")
	for _, item := range items {
		sb.WriteString("<li>" + html.EscapeString(item) + "</li>")
	}
	sb.WriteString("</ul>")
	return sb.String()
}
