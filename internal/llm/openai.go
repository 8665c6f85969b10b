package llm

import (
	"context"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAI answers through the chat completions API.
type OpenAI struct {
	client    *openai.Client
	model     string
	maxTokens int
}

func NewOpenAI(apiKey, model string) *OpenAI {
	return &OpenAI{
		client:    openai.NewClient(apiKey),
		model:     model,
		maxTokens: 1024,
	}
}

// SetTestTransport points the client at a test server.
func (c *OpenAI) SetTestTransport(url string) {
	cfg := openai.DefaultConfig("test")
	cfg.BaseURL = url
	c.client = openai.NewClientWithConfig(cfg)
}

func (c *OpenAI) Generate(ctx context.Context, system, knowledge, query string) (string, error) {
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: UserPrompt(knowledge, query)},
		},
	})
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty completion choices")
	}
	return resp.Choices[0].Message.Content, nil
}
