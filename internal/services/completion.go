package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"naszgpt-backend/internal/metrics"
	"naszgpt-backend/internal/models"
)

// CompletionRequest is one chat completion call. Messages start with the
// system prompt and end with the newest user message.
type CompletionRequest struct {
	Model               string
	Messages            []models.Message
	MaxCompletionTokens int
	Temperature         float32
}

type CompletionResult struct {
	Content          string
	FinishReason     string
	Truncated        bool
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Latency          time.Duration
}

type CompletionClient interface {
	Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error)
}

// CompletionRouter sends each request to the client registered for the
// provider the catalog lists for the requested model.
type CompletionRouter struct {
	catalog   *Catalog
	providers map[string]CompletionClient
}

func NewCompletionRouter(catalog *Catalog) *CompletionRouter {
	return &CompletionRouter{
		catalog:   catalog,
		providers: make(map[string]CompletionClient),
	}
}

// Register must be called before the router serves requests.
func (r *CompletionRouter) Register(provider string, client CompletionClient) {
	r.providers[provider] = client
}

func (r *CompletionRouter) Supports(provider string) bool {
	_, ok := r.providers[provider]
	return ok
}

func (r *CompletionRouter) Complete(ctx context.Context, req CompletionRequest) (*CompletionResult, error) {
	info, ok := r.catalog.Get(req.Model)
	if !ok {
		return nil, &ValidationError{Fields: map[string]string{"model": fmt.Sprintf("Unknown model %q", req.Model)}}
	}
	client, ok := r.providers[info.Provider]
	if !ok {
		return nil, &CompletionError{
			Provider: info.Provider,
			Model:    req.Model,
			Err:      errors.New("provider is not configured"),
		}
	}

	start := time.Now()
	res, err := client.Complete(ctx, req)
	elapsed := time.Since(start)
	metrics.LLMCallDuration.WithLabelValues(info.Provider, req.Model).Observe(elapsed.Seconds())

	if err != nil {
		metrics.LLMCallTotal.WithLabelValues(info.Provider, req.Model, "error").Inc()
		var ce *CompletionError
		if errors.As(err, &ce) {
			return nil, err
		}
		return nil, &CompletionError{Provider: info.Provider, Model: req.Model, Err: err}
	}

	metrics.LLMCallTotal.WithLabelValues(info.Provider, req.Model, "ok").Inc()
	metrics.LLMTokensUsed.WithLabelValues(req.Model, "prompt").Add(float64(res.PromptTokens))
	metrics.LLMTokensUsed.WithLabelValues(req.Model, "completion").Add(float64(res.CompletionTokens))

	if res.Latency == 0 {
		res.Latency = elapsed
	}
	if res.TotalTokens == 0 {
		res.TotalTokens = res.PromptTokens + res.CompletionTokens
	}
	return res, nil
}
