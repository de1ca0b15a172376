package engine

import (
	"context"

	"github.com/kalambet/jobpilot/internal/gemini"
)

// GeminiEngine adapts the Gemini API to the Engine interface.
type GeminiEngine struct {
	client *gemini.Client
}

// NewGeminiEngine creates an engine authenticated with apiKey. Call Close
// when done.
func NewGeminiEngine(ctx context.Context, apiKey string) (*GeminiEngine, error) {
	c, err := gemini.New(ctx, apiKey)
	if err != nil {
		return nil, err
	}
	return &GeminiEngine{client: c}, nil
}

// Chat folds system messages into the system instruction and the remaining
// messages into a single user turn, which is all the stages send.
func (e *GeminiEngine) Chat(ctx context.Context, model string, messages []Message, opts ChatOptions) (string, error) {
	req := gemini.Request{Model: model, JSON: opts.Schema != nil}
	for _, m := range messages {
		switch m.Role {
		case "system":
			req.System = joinParts(req.System, m.Content)
		default:
			req.User = joinParts(req.User, m.Content)
		}
	}
	if opts.Temperature != nil {
		t := float32(*opts.Temperature)
		req.Temperature = &t
	}
	return e.client.Generate(ctx, req)
}

func (e *GeminiEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return e.client.Embed(ctx, model, text)
}

// IsRunning always reports true: the client is created only with a key and
// the API has no cheap unauthenticated probe.
func (e *GeminiEngine) IsRunning(context.Context) bool {
	return true
}

// Close releases the underlying client.
func (e *GeminiEngine) Close() error {
	return e.client.Close()
}

func joinParts(a, b string) string {
	if a == "" {
		return b
	}
	return a + "\n\n" + b
}
