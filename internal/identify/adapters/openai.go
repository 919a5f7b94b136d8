// Package adapters provides the default production implementations of the
// external ports declared in internal/identify/ports.go. Every adapter here
// is a thin transport wrapper; all retry, rate-limiting, and circuit
// breaking lives in the identify package itself (§5/§6), not here.
package adapters

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// OpenAIClient implements identify.LLMClient over the chat-completions API.
// It is the default LLMClient for C4 (aggregation), C7 (valuation), and C9
// (enhancement) when no Gemini-only deployment is configured (§9: "LLM calls
// are ports, not details").
type OpenAIClient struct {
	client *openai.Client
	model  string
}

// NewOpenAIClient builds an OpenAIClient against the public OpenAI API.
func NewOpenAIClient(apiKey, model string) *OpenAIClient {
	if model == "" {
		model = openai.GPT4oMini
	}
	return &OpenAIClient{client: openai.NewClient(apiKey), model: model}
}

// Complete sends prompt as a single user message and returns the first
// choice's content.
func (c *OpenAIClient) Complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		return "", fmt.Errorf("openai: complete: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("openai: no completion returned")
	}
	return resp.Choices[0].Message.Content, nil
}
