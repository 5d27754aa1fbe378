// Package llm wraps the generative model used for suggestion enrichment and
// section drafting. All callers must treat it as optional: every code path
// has a deterministic fallback when no client is configured or a call fails.
package llm

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Client is the abstraction stage implementations and the suggestion
// enricher depend on.
type Client interface {
	// GenerateText returns plain text for a prompt.
	GenerateText(ctx context.Context, prompt string, tier Tier) (string, error)
	// GenerateJSON returns a JSON document for a prompt, stripped of any
	// markdown fencing.
	GenerateJSON(ctx context.Context, prompt string, tier Tier) (string, error)
	// Close releases underlying resources.
	Close() error
}

// GeminiClient implements Client on Google Gemini.
type GeminiClient struct {
	client *genai.Client
	config *Config
}

// NewGeminiClient creates a Gemini-backed client.
func NewGeminiClient(ctx context.Context, config *Config, apiKey string) (*GeminiClient, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API key is required")
	}
	if config == nil {
		config = DefaultConfig()
	}
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}
	return &GeminiClient{client: client, config: config}, nil
}

// GenerateText returns plain text for a prompt.
func (c *GeminiClient) GenerateText(ctx context.Context, prompt string, tier Tier) (string, error) {
	model := c.client.GenerativeModel(c.config.Model(tier))
	model.SetTemperature(0.1) // consistency over flair
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	return textFromResponse(resp)
}

// GenerateJSON returns a JSON document for a prompt.
func (c *GeminiClient) GenerateJSON(ctx context.Context, prompt string, tier Tier) (string, error) {
	model := c.client.GenerativeModel(c.config.Model(tier))
	model.SetTemperature(0.1)
	model.ResponseMIMEType = "application/json"
	resp, err := model.GenerateContent(ctx, genai.Text(prompt))
	if err != nil {
		return "", fmt.Errorf("failed to generate content: %w", err)
	}
	text, err := textFromResponse(resp)
	if err != nil {
		return "", err
	}
	return StripJSONFence(text), nil
}

// Close releases the underlying API client.
func (c *GeminiClient) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	return nil
}

func textFromResponse(resp *genai.GenerateContentResponse) (string, error) {
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

// StripJSONFence removes markdown code-block wrappers some models add
// around JSON output.
func StripJSONFence(text string) string {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	return strings.TrimSpace(text)
}
