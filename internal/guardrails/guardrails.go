// Package guardrails parses free-form project technology guardrail text into
// a structured profile and scores generated content against its forbidden
// terms. Profiles are derived per generation call and never cached across
// projects.
package guardrails

import (
	"regexp"
	"strings"

	"github.com/danielmv/storysmith/internal/types"
)

// Profile is the structured form of a project's guardrail text.
type Profile struct {
	Allowed     []string `json:"allowed"`
	Principles  []string `json:"principles"`
	Forbidden   []string `json:"forbidden"`
	Conformance []string `json:"conformance"`
}

// IsEmpty reports whether no section captured any entries.
func (p *Profile) IsEmpty() bool {
	return len(p.Allowed) == 0 && len(p.Principles) == 0 &&
		len(p.Forbidden) == 0 && len(p.Conformance) == 0
}

// Section header patterns. Matching is case-insensitive on the whole line.
var (
	allowedHeader     = regexp.MustCompile(`(?i)^\s*#*\s*(allowed|primary)\b`)
	principlesHeader  = regexp.MustCompile(`(?i)^\s*#*\s*principles\b`)
	forbiddenHeader   = regexp.MustCompile(`(?i)^\s*#*\s*(forbidden|disallowed)\b`)
	conformanceHeader = regexp.MustCompile(`(?i)^\s*#*\s*(conformance|rules)\b`)
)

// ParseSections runs a line-oriented parse of guardrail text. A header line
// switches the active section; subsequent bullet lines append to it. Lines
// before any header are ignored.
func ParseSections(text string) Profile {
	profile := Profile{
		Allowed:     []string{},
		Principles:  []string{},
		Forbidden:   []string{},
		Conformance: []string{},
	}

	var active *[]string
	for _, line := range strings.Split(text, "\n") {
		switch {
		case allowedHeader.MatchString(line):
			active = &profile.Allowed
			continue
		case principlesHeader.MatchString(line):
			active = &profile.Principles
			continue
		case forbiddenHeader.MatchString(line):
			active = &profile.Forbidden
			continue
		case conformanceHeader.MatchString(line):
			active = &profile.Conformance
			continue
		}

		if active == nil {
			continue
		}
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "-") || strings.HasPrefix(trimmed, "•") {
			entry := strings.TrimSpace(strings.TrimLeft(trimmed, "-• "))
			if entry != "" {
				*active = append(*active, entry)
			}
		}
	}

	return profile
}

var (
	parenthetical = regexp.MustCompile(`\([^)]*\)`)
	splitTerms    = regexp.MustCompile(`[,|/]`)
)

// BuildForbiddenMatcher compiles the forbidden term list into a
// case-insensitive whole-word alternation. Parenthetical asides and leading
// label prefixes are stripped, and compound entries are split on commas,
// pipes, and slashes. Returns nil when no usable terms remain or the pattern
// fails to compile; a broken guardrail list must never be fatal.
func BuildForbiddenMatcher(forbidden []string) *regexp.Regexp {
	if len(forbidden) == 0 {
		return nil
	}

	var terms []string
	for _, entry := range forbidden {
		entry = parenthetical.ReplaceAllString(entry, "")
		if idx := strings.Index(entry, ":"); idx >= 0 {
			entry = entry[idx+1:]
		}
		for _, term := range splitTerms.Split(entry, -1) {
			term = strings.TrimSpace(term)
			if term != "" {
				terms = append(terms, regexp.QuoteMeta(term))
			}
		}
	}
	if len(terms) == 0 {
		return nil
	}

	// RE2 has no lookarounds and \b misbehaves around non-word characters
	// like "#" (think "C#"), so boundaries are spelled out explicitly.
	matcher, err := regexp.Compile(`(?i)(^|[^\w])(` + strings.Join(terms, "|") + `)([^\w]|$)`)
	if err != nil {
		return nil
	}
	return matcher
}

// Scan reports whether any forbidden term appears in the generated title,
// description, implementation notes, or task text.
func Scan(content *types.EnhancedContent, matcher *regexp.Regexp) bool {
	if matcher == nil || content == nil {
		return false
	}

	var sb strings.Builder
	sb.WriteString(content.Title)
	sb.WriteString("\n")
	sb.WriteString(content.Description)
	sb.WriteString("\n")
	sb.WriteString(strings.Join(content.ImplementationNotes, "\n"))
	sb.WriteString("\n")
	sb.WriteString(strings.Join(content.Tasks, "\n"))

	return matcher.MatchString(sb.String())
}
