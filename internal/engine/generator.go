package engine

import (
	"context"
	"fmt"
	"time"
)

// DefaultTimeout bounds a single generation call when none is configured.
const DefaultTimeout = 120 * time.Second

// Generator binds an Engine to a chat model and turns a Prompt into text.
type Generator struct {
	engine  Engine
	model   string
	timeout time.Duration
}

// GeneratorOption configures a Generator.
type GeneratorOption func(*Generator)

// WithTimeout bounds each call. Non-positive values keep DefaultTimeout.
func WithTimeout(d time.Duration) GeneratorOption {
	return func(g *Generator) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// NewGenerator returns a Generator for model on e.
func NewGenerator(e Engine, model string, opts ...GeneratorOption) *Generator {
	g := &Generator{engine: e, model: model, timeout: DefaultTimeout}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Generate runs one chat call. Cancelling ctx does not interrupt the call;
// only the generator's timeout does. Context values are preserved.
func (g *Generator) Generate(ctx context.Context, p Prompt, temperature float64) (string, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), g.timeout)
	defer cancel()

	out, err := g.engine.Chat(ctx, g.model, p.Messages(), ChatOptions{Temperature: &temperature})
	if err != nil {
		return "", fmt.Errorf("generating with %s: %w", g.model, err)
	}
	return out, nil
}
