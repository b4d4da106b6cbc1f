package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"

	"naszgpt-backend/internal/models"
)

// GeminiClient serves catalog models whose provider is "gemini".
type GeminiClient struct {
	client   *genai.Client
	rateChan chan struct{} // Token bucket
}

func NewGeminiClient(ctx context.Context, apiKey string, concurrentReqs int) (*GeminiClient, error) {
	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create Gemini client: %w", err)
	}

	if concurrentReqs <= 0 {
		concurrentReqs = 1
	}
	rateChan := make(chan struct{}, concurrentReqs)
	for i := 0; i < concurrentReqs; i++ {
		rateChan <- struct{}{}
	}

	return &GeminiClient{client: client, rateChan: rateChan}, nil
}

func (c *GeminiClient) Close() error {
	return c.client.Close()
}

// acquireRate blocks until a rate slot is available
func (c *GeminiClient) acquireRate(ctx context.Context) error {
	select {
	case <-c.rateChan:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *GeminiClient) releaseRate() {
	c.rateChan <- struct{}{}
}

func (c *GeminiClient) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	system, history, last, err := splitForGemini(req.Messages)
	if err != nil {
		return nil, err
	}

	if err := c.acquireRate(ctx); err != nil {
		return nil, err
	}
	defer c.releaseRate()

	model := c.client.GenerativeModel(req.Model)
	model.SetTemperature(req.Temperature)
	if req.MaxCompletionTokens > 0 {
		model.SetMaxOutputTokens(int32(req.MaxCompletionTokens))
	}
	if system != "" {
		model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(system)}}
	}

	cs := model.StartChat()
	cs.History = history

	start := time.Now()
	resp, err := cs.SendMessage(ctx, genai.Text(last))
	if err != nil {
		return nil, err
	}
	return geminiResult(resp, time.Since(start))
}

// geminiResult converts a response into a CompletionResult. A response
// without candidates, for example one blocked by safety filters, is an error.
func geminiResult(resp *genai.GenerateContentResponse, latency time.Duration) (*CompletionResult, error) {
	if resp == nil || len(resp.Candidates) == 0 {
		if resp != nil && resp.PromptFeedback != nil && resp.PromptFeedback.BlockReason != genai.BlockReasonUnspecified {
			return nil, fmt.Errorf("gemini returned no candidates: prompt blocked (%s)", resp.PromptFeedback.BlockReason)
		}
		return nil, errors.New("gemini returned no candidates")
	}

	reason := resp.Candidates[0].FinishReason
	res := &CompletionResult{
		Content:      extractText(resp),
		FinishReason: reason.String(),
		Truncated:    reason == genai.FinishReasonMaxTokens,
		Latency:      latency,
	}
	if u := resp.UsageMetadata; u != nil {
		res.PromptTokens = int(u.PromptTokenCount)
		res.CompletionTokens = int(u.CandidatesTokenCount)
		res.TotalTokens = int(u.TotalTokenCount)
	}
	return res, nil
}

// splitForGemini maps the message list onto Gemini's chat shape: system text
// goes to the system instruction, earlier turns become history and the final
// user message is sent.
func splitForGemini(msgs []models.Message) (system string, history []*genai.Content, last string, err error) {
	var sys []string
	var turns []models.Message
	for _, m := range msgs {
		if m.Role == models.RoleSystem {
			sys = append(sys, m.Content)
			continue
		}
		turns = append(turns, m)
	}
	if len(turns) == 0 || turns[len(turns)-1].Role != models.RoleUser {
		return "", nil, "", errors.New("conversation must end with a user message")
	}

	earlier := turns[:len(turns)-1]
	// Gemini history has to open with a user turn; an odd history window can
	// start on a reply.
	for len(earlier) > 0 && earlier[0].Role != models.RoleUser {
		earlier = earlier[1:]
	}
	for _, m := range earlier {
		role := "user"
		if m.Role == models.RoleAssistant {
			role = "model"
		}
		history = append(history, &genai.Content{Role: role, Parts: []genai.Part{genai.Text(m.Content)}})
	}
	return strings.Join(sys, "\n\n"), history, turns[len(turns)-1].Content, nil
}

func extractText(resp *genai.GenerateContentResponse) string {
	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var text strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if t, ok := part.(genai.Text); ok {
			text.WriteString(string(t))
		}
	}
	return text.String()
}
