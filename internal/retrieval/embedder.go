package retrieval

import (
	"context"
	"fmt"

	"github.com/kalambet/jobpilot/internal/engine"
	"golang.org/x/sync/errgroup"
)

// embedConcurrency bounds parallel embedding calls during ingestion.
const embedConcurrency = 4

// Embedder wraps an Engine to generate text embeddings.
type Embedder struct {
	engine engine.Engine
	model  string
}

// NewEmbedder creates an Embedder using the given Engine and model name.
func NewEmbedder(e engine.Engine, model string) *Embedder {
	return &Embedder{engine: e, model: model}
}

// Model returns the embedding model name.
func (e *Embedder) Model() string {
	return e.model
}

// Embed returns the embedding vector for a single text.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec, err := e.engine.Embed(ctx, e.model, text)
	if err != nil {
		return nil, fmt.Errorf("embedding text: %w", err)
	}
	if len(vec) == 0 {
		return nil, fmt.Errorf("embedding text: model %s returned an empty vector", e.model)
	}
	return vec, nil
}

// EmbedBatch embeds texts concurrently and returns the vectors in input
// order. Empty input returns nil. All vectors must share one dimension.
func (e *Embedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	results := make([][]float32, len(texts))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(embedConcurrency)

	for i, text := range texts {
		g.Go(func() error {
			vec, err := e.Embed(gCtx, text)
			if err != nil {
				return fmt.Errorf("chunk %d: %w", i, err)
			}
			results[i] = vec
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	for i, v := range results {
		if len(v) != len(results[0]) {
			return nil, fmt.Errorf("chunk %d: dimension %d differs from %d", i, len(v), len(results[0]))
		}
	}
	return results, nil
}
