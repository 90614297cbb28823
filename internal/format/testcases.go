package format

import (
	"strings"

	"github.com/danielmv/storysmith/internal/types"
)

// gherkinPrefixes are stripped (once, case-insensitively) from the start of
// structured test case fields; models frequently echo the keyword into the
// field value.
var gherkinPrefixes = []string{"given", "when", "then", "and"}

// NormalizeTestCases strips redundant Given/When/Then prefixes and drops
// entries whose fields are all blank after trimming. An entry with at least
// one non-blank field is always retained.
func NormalizeTestCases(cases []types.TestCase) []types.TestCase {
	normalized := []types.TestCase{}
	for _, tc := range cases {
		tc.Given = stripGherkinPrefix(tc.Given)
		tc.When = stripGherkinPrefix(tc.When)
		tc.Then = stripGherkinPrefix(tc.Then)
		tc.Name = strings.TrimSpace(tc.Name)
		tc.BDDScript = strings.TrimSpace(tc.BDDScript)
		if tc.IsBlank() {
			continue
		}
		normalized = append(normalized, tc)
	}
	return normalized
}

// TestCaseToGherkin renders a test case as plain Given/When/Then text. For
// scripted entries the stored script is returned verbatim (prefixed with the
// name when present).
func TestCaseToGherkin(tc types.TestCase) string {
	if tc.IsScripted() {
		if tc.Name != "" && tc.BDDScript != "" {
			return tc.Name + "\n" + tc.BDDScript
		}
		if tc.BDDScript != "" {
			return tc.BDDScript
		}
		return tc.Name
	}

	var lines []string
	if tc.Given != "" {
		lines = append(lines, "Given "+tc.Given)
	}
	if tc.When != "" {
		lines = append(lines, "When "+tc.When)
	}
	if tc.Then != "" {
		lines = append(lines, "Then "+tc.Then)
	}
	return strings.Join(lines, "\n")
}

// stripGherkinPrefix removes a single leading Gherkin keyword, if present.
func stripGherkinPrefix(field string) string {
	trimmed := strings.TrimSpace(field)
	lower := strings.ToLower(trimmed)
	for _, prefix := range gherkinPrefixes {
		if strings.HasPrefix(lower, prefix) {
			rest := trimmed[len(prefix):]
			// Only strip when the keyword is a whole word.
			if rest == "" || rest[0] == ' ' || rest[0] == ',' || rest[0] == ':' {
				return strings.TrimSpace(strings.TrimLeft(rest, " ,:"))
			}
		}
	}
	return trimmed
}
