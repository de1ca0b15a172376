package engine

import (
	"context"
	"time"

	"github.com/kalambet/jobpilot/internal/openai"
)

// OpenAIEngine adapts an OpenAI-compatible API to the Engine interface.
type OpenAIEngine struct {
	client *openai.Client
}

// NewOpenAIEngine creates an engine for the API at baseURL. An empty baseURL
// targets OpenAI.
func NewOpenAIEngine(apiKey, baseURL string) *OpenAIEngine {
	return &OpenAIEngine{client: openai.NewClient(apiKey, baseURL)}
}

func (e *OpenAIEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	req := openai.ChatRequest{
		Model:       model,
		Messages:    make([]openai.Message, len(messages)),
		Temperature: opts.Temperature,
	}
	for i, m := range messages {
		req.Messages[i] = openai.Message{Role: m.Role, Content: m.Content}
	}
	if opts.Schema != nil {
		req.ResponseFormat = &openai.ResponseFormat{Type: "json_object"}
	}
	return e.client.ChatCompletion(ctx, req)
}

func (e *OpenAIEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OpenAIEngine) IsRunning(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := e.client.ListModels(ctx)
	return err == nil
}
