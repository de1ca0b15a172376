// Package reranking re-scores retrieved resume passages against the stage
// query with a small LLM before they are injected into a prompt.
package reranking

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/kalambet/jobpilot/internal/engine"
	"github.com/kalambet/jobpilot/internal/parse"
	"github.com/kalambet/jobpilot/internal/retrieval"
)

const defaultConcurrency = 3

// Options configures an LLMReranker.
type Options struct {
	Enabled   bool
	Timeout   time.Duration
	Threshold float64
	// TopK stops scoring once this many chunks have been scored. Zero (or
	// >= len(chunks)) scores every chunk.
	TopK int
}

// NewReranker returns an LLMReranker if enabled and an engine is available,
// NoOpReranker otherwise.
func NewReranker(eng engine.Engine, model string, opts Options) retrieval.Reranker {
	if !opts.Enabled || eng == nil {
		return &NoOpReranker{}
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &LLMReranker{
		engine:    eng,
		model:     model,
		timeout:   opts.Timeout,
		threshold: opts.Threshold,
		topK:      opts.TopK,
	}
}

// LLMReranker asks the model to score (query, passage) relevance pairs.
// Scoring runs concurrently (bounded to defaultConcurrency goroutines).
// Results are filtered by threshold and sorted by score descending.
type LLMReranker struct {
	engine    engine.Engine
	model     string
	timeout   time.Duration
	threshold float64
	topK      int
}

// Rerank scores each chunk against the query and returns a filtered, sorted
// result set. If the timeout fires before enough chunks are scored it
// returns an error and no chunks; the retriever then keeps the search order.
func (r *LLMReranker) Rerank(ctx context.Context, query string, chunks []retrieval.ContextChunk) ([]retrieval.ContextChunk, error) {
	if len(chunks) == 0 {
		return chunks, nil
	}

	timeoutCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	earlyReturnAt := r.topK
	if earlyReturnAt <= 0 || earlyReturnAt >= len(chunks) {
		earlyReturnAt = 0
	}

	// Buffered so workers never block on send after collection stops.
	results := make(chan retrieval.ContextChunk, len(chunks))
	sem := make(chan struct{}, defaultConcurrency)

	var wg sync.WaitGroup
	for _, ch := range chunks {
		wg.Add(1)
		go func(chunk retrieval.ContextChunk) {
			defer wg.Done()
			select {
			case sem <- struct{}{}:
			case <-timeoutCtx.Done():
				return
			}
			defer func() { <-sem }()

			score, err := r.scoreChunk(timeoutCtx, query, chunk)
			if err != nil {
				if timeoutCtx.Err() != nil {
					return
				}
				slog.Debug("reranker: score failed, retaining original", "chunk", chunk.ID, "error", err)
				results <- chunk
				return
			}
			chunk.Score = float32(score)
			results <- chunk
		}(ch)
	}

	go func() {
		wg.Wait()
		close(results)
	}()

	scored := make([]retrieval.ContextChunk, 0, len(chunks))
	early := false
collect:
	for {
		select {
		case ch, ok := <-results:
			if !ok {
				break collect
			}
			scored = append(scored, ch)
			if earlyReturnAt > 0 && len(scored) >= earlyReturnAt {
				early = true
				cancel()
				break collect
			}
		case <-timeoutCtx.Done():
			return nil, fmt.Errorf("reranking %d chunks: %w", len(chunks), timeoutCtx.Err())
		}
	}
	// Workers that saw the deadline exit without sending.
	if !early && len(scored) < len(chunks) {
		if err := timeoutCtx.Err(); err != nil {
			return nil, fmt.Errorf("reranking %d chunks: %w", len(chunks), err)
		}
	}

	filtered := make([]retrieval.ContextChunk, 0, len(scored))
	for _, ch := range scored {
		if float64(ch.Score) >= r.threshold {
			filtered = append(filtered, ch)
		}
	}

	// Workers finish in arbitrary order; ties fall back to resume position.
	slices.SortFunc(filtered, func(a, b retrieval.ContextChunk) int {
		if c := cmp.Compare(b.Score, a.Score); c != 0 {
			return c
		}
		if c := cmp.Compare(a.ChunkIndex, b.ChunkIndex); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return filtered, nil
}

var scoreSchema = &engine.Schema{
	Type: "object",
	Properties: map[string]engine.SchemaProperty{
		"score": {Type: "number", Description: "Relevance score 0.0-1.0"},
	},
	Required: []string{"score"},
}

func (r *LLMReranker) scoreChunk(ctx context.Context, query string, chunk retrieval.ContextChunk) (float64, error) {
	prompt := "Rate how relevant the following resume passage is to the query on a scale of 0.0 to 1.0.\n" +
		"Query: " + query + "\n" +
		"Passage: " + chunk.Text + "\n" +
		`Respond with only a JSON object: {"score": <float>}`

	temp := 0.0
	resp, err := r.engine.Chat(ctx, r.model, []engine.Message{
		{Role: "user", Content: prompt},
	}, engine.ChatOptions{Schema: scoreSchema, Temperature: &temp})
	if err != nil {
		return float64(chunk.Score), err
	}

	score, parseErr := parseScore(resp)
	if parseErr != nil {
		slog.Debug("reranker: parse failed, using original score", "resp", resp, "error", parseErr)
		return float64(chunk.Score), nil
	}
	return score, nil
}

// parseScore extracts a relevance score from a model reply. Small local
// models wrap JSON in code fences or prepend filler, so after fence
// stripping the outermost braces are decoded. The score is clamped to [0,1].
func parseScore(resp string) (float64, error) {
	s := parse.Clean(resp)
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start == -1 || end <= start {
		return 0, fmt.Errorf("no JSON object in response")
	}

	var obj struct {
		Score json.Number `json:"score"`
	}
	if err := json.Unmarshal([]byte(s[start:end+1]), &obj); err != nil {
		return 0, fmt.Errorf("unmarshal score: %w", err)
	}
	f, err := obj.Score.Float64()
	if err != nil {
		return 0, fmt.Errorf("score %q: %w", obj.Score, err)
	}
	return min(max(f, 0), 1), nil
}

// NoOpReranker passes chunks through unchanged. Used when reranking is disabled.
type NoOpReranker struct{}

func (n *NoOpReranker) Rerank(_ context.Context, _ string, chunks []retrieval.ContextChunk) ([]retrieval.ContextChunk, error) {
	return chunks, nil
}
