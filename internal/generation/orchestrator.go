// Package generation orchestrates the two-phase model call that turns a work
// item snapshot into canonical enhanced content: an optional bounded
// retrieval call, then a tool-free generation call constrained to the
// enhancement schema, followed by deterministic post-processing. This
// package never mutates tracker state.
package generation

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/danielmv/storysmith/internal/format"
	"github.com/danielmv/storysmith/internal/guardrails"
	"github.com/danielmv/storysmith/internal/llm"
	"github.com/danielmv/storysmith/internal/prompts"
	"github.com/danielmv/storysmith/internal/schemas"
	"github.com/danielmv/storysmith/internal/types"
)

// Options carries the per-run inputs supplied by external collaborators.
type Options struct {
	TemplateBody    string
	ContextSnippets []string
	GuardrailText   string
	Verbose         bool
}

// Orchestrator runs the enhancement pipeline for single items.
type Orchestrator struct {
	client llm.Client
	retry  llm.RetryConfig
}

// New creates an orchestrator around an LLM client with the default retry
// discipline.
func New(client llm.Client) *Orchestrator {
	return &Orchestrator{client: client, retry: llm.DefaultRetryConfig()}
}

// NewWithRetry creates an orchestrator with an explicit retry configuration.
func NewWithRetry(client llm.Client, retry llm.RetryConfig) *Orchestrator {
	return &Orchestrator{client: client, retry: retry}
}

// payload is the JSON document embedded into the generation prompt.
type payload struct {
	WorkItemPlain        string   `json:"workItemPlain"`
	SelectedContextFiles []string `json:"selectedContextFiles,omitempty"`
	FallbackContext      string   `json:"fallbackContext,omitempty"`
	RetrievedSummary     string   `json:"retrievedSummary,omitempty"`
}

// Enhance produces canonical enhanced content for one work item snapshot.
// Retrieval failures are non-fatal; generation failures (after bounded
// retries) and unparseable output fail the item.
func (o *Orchestrator) Enhance(ctx context.Context, item *types.WorkItemSnapshot, opts Options) (*types.EnhancedContent, error) {
	profile := guardrails.ParseSections(opts.GuardrailText)
	workItemPlain := renderWorkItemPlain(item)

	// Retrieval phase: one bounded call, only when a knowledge corpus was
	// supplied. A failure here means "no supporting context", never an
	// aborted item.
	retrievedSummary := ""
	if len(opts.ContextSnippets) > 0 {
		summary, err := o.retrieve(ctx, workItemPlain, opts.ContextSnippets)
		if err != nil {
			if opts.Verbose {
				fmt.Printf("Warning: retrieval phase failed: %v. Continuing without context.\n", err)
			}
		} else {
			retrievedSummary = summary
		}
	}

	// Generation phase: tool-free, schema-constrained, retried with backoff.
	prompt := buildEnhancementPrompt(workItemPlain, opts, retrievedSummary)
	raw, err := llm.CallWithRetry(ctx, o.retry, func(callCtx context.Context) (string, error) {
		return o.client.GenerateJSON(callCtx, prompt, llm.TierAdvanced)
	})
	if err != nil {
		return nil, &APICallError{Message: "enhancement generation failed", Cause: err}
	}

	content, err := extractEnhancedContent(raw)
	if err != nil {
		return nil, err
	}

	PostProcess(content, profile)
	return content, nil
}

// retrieve runs the single-shot retrieval call with the corpus search tool.
func (o *Orchestrator) retrieve(ctx context.Context, workItemPlain string, snippets []string) (string, error) {
	template := prompts.MustGet("enhancement.json", "summarize-context")
	prompt := prompts.Format(template, map[string]string{
		"WorkItemPlain": workItemPlain,
	})

	callCtx, cancel := context.WithTimeout(ctx, o.retry.CallTimeout)
	defer cancel()
	return o.client.GenerateWithRetrieval(callCtx, prompt, &snippetRetriever{snippets: snippets}, llm.TierStandard)
}

// extractEnhancedContent prefers a directly parseable structured payload and
// falls back to code-fence cleaning before giving up with a "no structured
// output" failure. The raw JSON is schema-validated before unmarshal so a
// malformed payload is never silently substituted with defaults.
func extractEnhancedContent(raw string) (*types.EnhancedContent, error) {
	candidate := raw
	if !json.Valid([]byte(candidate)) {
		candidate = llm.CleanJSONBlock(raw)
	}
	if !json.Valid([]byte(candidate)) {
		return nil, &ParseError{Message: "no structured output"}
	}

	if err := schemas.ValidateEnhancedContent(candidate); err != nil {
		return nil, &ParseError{Message: "model output does not match the enhancement schema", Cause: err}
	}

	var content types.EnhancedContent
	if err := json.Unmarshal([]byte(candidate), &content); err != nil {
		return nil, &ParseError{Message: "failed to decode enhanced content", Cause: err}
	}
	return &content, nil
}

// buildEnhancementPrompt assembles the generation prompt around the fixed
// JSON payload contract.
func buildEnhancementPrompt(workItemPlain string, opts Options, retrievedSummary string) string {
	body, _ := json.MarshalIndent(payload{
		WorkItemPlain:        workItemPlain,
		SelectedContextFiles: opts.ContextSnippets,
		FallbackContext:      opts.TemplateBody,
		RetrievedSummary:     retrievedSummary,
	}, "", "  ")

	template := prompts.MustGet("enhancement.json", "enhance-work-item")
	prompt := prompts.Format(template, map[string]string{
		"Payload": string(body),
	})
	if opts.GuardrailText != "" {
		prompt += "\n\nProject technology guardrails:\n" + opts.GuardrailText
	}
	return prompt
}

// renderWorkItemPlain flattens a snapshot into the plain-text "before" form
// sent to the model.
func renderWorkItemPlain(item *types.WorkItemSnapshot) string {
	text := "Title: " + item.Title + "\n\nDescription:\n" + format.HTMLToText(item.DescriptionMarkup)
	if item.AcceptanceCriteriaMarkup != "" {
		text += "\n\nAcceptance Criteria:\n" + format.HTMLToText(item.AcceptanceCriteriaMarkup)
	}
	return text
}
