package engine

import (
	"context"

	"github.com/kalambet/jobpilot/internal/ollama"
)

// OllamaEngine runs chat and embeddings on a local Ollama server and can
// pull missing models, so it also satisfies ModelManager.
type OllamaEngine struct {
	client *ollama.Client
}

func NewOllamaEngine(baseURL string) *OllamaEngine {
	return &OllamaEngine{client: ollama.New(baseURL)}
}

func (e *OllamaEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	msgs := make([]ollama.Message, len(messages))
	for i, m := range messages {
		msgs[i] = ollama.Message(m)
	}
	return e.client.Chat(ctx, model, msgs, ollama.ChatOptions{
		Format:      ollamaFormat(opts.Schema),
		Temperature: opts.Temperature,
	})
}

// ollamaFormat maps a Schema onto Ollama's structured-output format.
func ollamaFormat(s *Schema) *ollama.Schema {
	if s == nil {
		return nil
	}
	f := &ollama.Schema{Type: s.Type, Required: s.Required}
	if len(s.Properties) > 0 {
		f.Properties = make(map[string]ollama.SchemaProperty, len(s.Properties))
		for name, p := range s.Properties {
			f.Properties[name] = ollama.SchemaProperty(p)
		}
	}
	return f
}

func (e *OllamaEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

func (e *OllamaEngine) IsRunning(ctx context.Context) bool {
	return e.client.IsRunning(ctx)
}

func (e *OllamaEngine) ListModels(ctx context.Context) ([]string, error) {
	return e.client.ListModels(ctx)
}

func (e *OllamaEngine) HasModel(ctx context.Context, name string) bool {
	return e.client.HasModel(ctx, name)
}

func (e *OllamaEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	var cb func(ollama.PullProgress)
	if onProgress != nil {
		cb = func(p ollama.PullProgress) {
			onProgress(PullProgress{Status: p.Status, Total: p.Total, Completed: p.Completed})
		}
	}
	return e.client.PullModel(ctx, name, cb)
}
