package generation

import (
	"context"
	"strings"
)

// maxRetrievedChars bounds the text handed back to the model from one
// corpus search.
const maxRetrievedChars = 6000

// snippetRetriever serves corpus searches from the ordered context snippets
// supplied with the enhancement request. Snippets are read-only; a retriever
// is built per item and never shared across runs.
type snippetRetriever struct {
	snippets []string
}

// Search returns the snippets that mention any term of the query, in their
// original order, capped at maxRetrievedChars. An empty query returns the
// leading snippets up to the cap.
func (r *snippetRetriever) Search(_ context.Context, query string) (string, error) {
	terms := strings.Fields(strings.ToLower(query))

	var sb strings.Builder
	for _, snippet := range r.snippets {
		if len(terms) > 0 && !mentionsAny(snippet, terms) {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n---\n")
		}
		sb.WriteString(snippet)
		if sb.Len() >= maxRetrievedChars {
			break
		}
	}

	result := sb.String()
	if len(result) > maxRetrievedChars {
		result = result[:maxRetrievedChars]
	}
	return result, nil
}

func mentionsAny(snippet string, terms []string) bool {
	lower := strings.ToLower(snippet)
	for _, term := range terms {
		if strings.Contains(lower, term) {
			return true
		}
	}
	return false
}
