package services

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"

	"naszgpt-backend/internal/models"
)

type OpenAIClient struct {
	client *openai.Client
}

// NewOpenAIClient builds a client for the OpenAI chat API. baseURL may point
// at any compatible endpoint; empty keeps the default.
func NewOpenAIClient(apiKey, baseURL string) *OpenAIClient {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return &OpenAIClient{client: openai.NewClientWithConfig(cfg)}
}

func (c *OpenAIClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.Messages))
	for _, m := range req.Messages {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openAIRole(m.Role),
			Content: m.Content,
		})
	}

	start := time.Now()
	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:               req.Model,
		Messages:            msgs,
		Temperature:         req.Temperature,
		MaxCompletionTokens: req.MaxCompletionTokens,
	})
	if err != nil {
		return nil, err
	}
	latency := time.Since(start)

	if len(resp.Choices) == 0 {
		return nil, errors.New("response contained no choices")
	}
	choice := resp.Choices[0]

	return &CompletionResult{
		Content:          choice.Message.Content,
		FinishReason:     string(choice.FinishReason),
		Truncated:        choice.FinishReason == openai.FinishReasonLength,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Latency:          latency,
	}, nil
}

func openAIRole(r models.Role) string {
	switch r {
	case models.RoleSystem:
		return openai.ChatMessageRoleSystem
	case models.RoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleUser
	}
}
