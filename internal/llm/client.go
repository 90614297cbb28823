package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Retriever answers a single corpus search issued by the model during the
// retrieval phase.
type Retriever interface {
	Search(ctx context.Context, query string) (string, error)
}

// Client is an abstraction over LLM providers
type Client interface {
	// GenerateContent generates text content using the specified model tier
	GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateJSON generates JSON content using the specified model tier with tools disabled
	GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error)
	// GenerateWithRetrieval runs one call in which the model may invoke the
	// corpus search tool at most once before producing its answer
	GenerateWithRetrieval(ctx context.Context, prompt string, retriever Retriever, tier ModelTier) (string, error)
	// GetModel returns the underlying provider model for a tier
	GetModel(tier ModelTier) string
	// Close releases any resources held by the client
	Close() error
}

// NewClient creates a new LLM client based on configuration
func NewClient(ctx context.Context, config *Config, apiKey string) (Client, error) {
	if config == nil {
		config = DefaultConfig()
	}

	switch config.Provider {
	case ProviderGemini:
		return NewGeminiClient(ctx, config, apiKey)
	default:
		return NewGeminiClient(ctx, config, apiKey)
	}
}

// GeminiClient implements Client for Google Gemini
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a new Gemini client
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	return &GeminiClient{
		client: client,
		config: config,
	}, nil
}

// GenerateContent generates text content using the specified model tier
func (c *GeminiClient) GenerateContent(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	model, err := c.model(tier)
	if err != nil {
		return "", err
	}

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	return extractTextFromResponse(resp)
}

// GenerateJSON generates JSON content using the specified model tier. Tools
// stay disabled so the response is constrained to the requested schema shape.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, tier ModelTier) (string, error) {
	model, err := c.model(tier)
	if err != nil {
		return "", err
	}
	model.ResponseMIMEType = "application/json"

	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	text, err := extractTextFromResponse(resp)
	if err != nil {
		return "", err
	}

	// Clean any markdown code block wrappers
	return CleanJSONBlock(text), nil
}

// GenerateWithRetrieval lets the model call the corpus search tool exactly
// once. A second tool call is answered with an empty result instead of a
// further invocation, keeping the retrieval phase single-shot.
func (c *GeminiClient) GenerateWithRetrieval(ctx context.Context, prompt string, retriever Retriever, tier ModelTier) (string, error) {
	model, err := c.model(tier)
	if err != nil {
		return "", err
	}

	model.Tools = []*genai.Tool{{
		FunctionDeclarations: []*genai.FunctionDeclaration{{
			Name:        "search_corpus",
			Description: "Search the project knowledge corpus for context relevant to the work item.",
			Parameters: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"query": {Type: genai.TypeString, Description: "Search query"},
				},
				Required: []string{"query"},
			},
		}},
	}}

	session := model.StartChat()
	resp, err := session.SendMessage(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}

	invoked := false
	for {
		call := firstFunctionCall(resp)
		if call == nil {
			break
		}

		result := ""
		if !invoked {
			invoked = true
			query, _ := call.Args["query"].(string)
			if found, searchErr := retriever.Search(ctx, query); searchErr == nil {
				result = found
			}
		}

		resp, err = session.SendMessage(ctx, genai.FunctionResponse{
			Name:     call.Name,
			Response: map[string]any{"result": result},
		})
		if err != nil {
			return "", fmt.Errorf("failed to send tool response: %w", err)
		}
	}

	return extractTextFromResponse(resp)
}

// GetModel returns the model name for a tier
func (c *GeminiClient) GetModel(tier ModelTier) string {
	return c.config.GetModel(tier)
}

// Close releases resources held by the client
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func (c *GeminiClient) model(tier ModelTier) (*genai.GenerativeModel, error) {
	modelName := c.config.GetModel(tier)
	if modelName == "" {
		return nil, fmt.Errorf("no model configured for tier %s", tier)
	}

	model := c.client.GenerativeModel(modelName)
	model.SetTemperature(0.1) // Low temperature for consistent output
	return model, nil
}

// firstFunctionCall returns the first tool call in a response, if any.
func firstFunctionCall(resp *genai.GenerateContentResponse) *genai.FunctionCall {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return nil
	}
	for _, part := range resp.Candidates[0].Content.Parts {
		if call, ok := part.(genai.FunctionCall); ok {
			return &call
		}
	}
	return nil
}

// extractTextFromResponse extracts text from Gemini API response
func extractTextFromResponse(resp *genai.GenerateContentResponse) (string, error) {
	if len(resp.Candidates) == 0 {
		return "", fmt.Errorf("no candidates in response")
	}

	candidate := resp.Candidates[0]
	if candidate.Content == nil || len(candidate.Content.Parts) == 0 {
		return "", fmt.Errorf("no content in response")
	}

	var parts []string
	for _, part := range candidate.Content.Parts {
		if text, ok := part.(genai.Text); ok {
			parts = append(parts, string(text))
		}
	}

	if len(parts) == 0 {
		return "", fmt.Errorf("no text parts in response")
	}

	return strings.Join(parts, ""), nil
}
