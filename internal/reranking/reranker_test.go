package reranking

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kalambet/jobpilot/internal/engine"
	"github.com/kalambet/jobpilot/internal/retrieval"
)

type mockEngine struct {
	chatFn func(ctx context.Context, prompt string) (string, error)
	calls  atomic.Int32
}

func (m *mockEngine) Chat(ctx context.Context, model string, msgs []engine.Message, opts engine.ChatOptions) (string, error) {
	m.calls.Add(1)
	if m.chatFn == nil {
		return `{"score": 0.5}`, nil
	}
	return m.chatFn(ctx, msgs[len(msgs)-1].Content)
}

func (m *mockEngine) Embed(ctx context.Context, model string, text string) ([]float32, error) {
	return nil, errors.New("not implemented")
}

func (m *mockEngine) IsRunning(ctx context.Context) bool { return true }

// scoreByPassage answers each scoring prompt with the score of the passage
// it mentions, so results do not depend on goroutine scheduling.
func scoreByPassage(scores map[string]float64) *mockEngine {
	return &mockEngine{chatFn: func(_ context.Context, prompt string) (string, error) {
		for text, s := range scores {
			if strings.Contains(prompt, "Passage: "+text+"\n") {
				return fmt.Sprintf(`{"score": %g}`, s), nil
			}
		}
		return "", fmt.Errorf("unexpected prompt %q", prompt)
	}}
}

// hang blocks until the scoring context ends.
func hang(ctx context.Context, _ string) (string, error) {
	<-ctx.Done()
	return "", ctx.Err()
}

var passages = []string{
	"Led migration of billing services to Go.",
	"Volunteer at the local animal shelter.",
	"Designed PostgreSQL schemas for 40M rows.",
}

func resumeChunks(texts ...string) []retrieval.ContextChunk {
	chunks := make([]retrieval.ContextChunk, len(texts))
	for i, text := range texts {
		chunks[i] = retrieval.ContextChunk{
			ID:         fmt.Sprintf("chunk-%d", i),
			SourceType: retrieval.SourceResume,
			ChunkIndex: i,
			Text:       text,
			Score:      0.5,
		}
	}
	return chunks
}

func newLLMReranker(eng engine.Engine, threshold float64, timeout time.Duration, topK int) *LLMReranker {
	return NewReranker(eng, "llama3.1", Options{
		Enabled:   true,
		Timeout:   timeout,
		Threshold: threshold,
		TopK:      topK,
	}).(*LLMReranker)
}

func texts(chunks []retrieval.ContextChunk) []string {
	out := make([]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.Text
	}
	return out
}

func TestNewReranker_Disabled(t *testing.T) {
	if _, ok := NewReranker(&mockEngine{}, "m", Options{}).(*NoOpReranker); !ok {
		t.Error("disabled reranker should be a NoOpReranker")
	}
	if _, ok := NewReranker(nil, "m", Options{Enabled: true}).(*NoOpReranker); !ok {
		t.Error("reranker without an engine should be a NoOpReranker")
	}
	r := NewReranker(&mockEngine{}, "m", Options{Enabled: true}).(*LLMReranker)
	if r.timeout != 10*time.Second {
		t.Errorf("default timeout = %v, want 10s", r.timeout)
	}
}

func TestLLMReranker_OrdersAndFilters(t *testing.T) {
	tests := []struct {
		name      string
		scores    []float64
		threshold float64
		want      []string
	}{
		{
			name:      "reorders by score",
			scores:    []float64{0.9, 0.3, 0.7},
			threshold: 0.3,
			want:      []string{passages[0], passages[2], passages[1]},
		},
		{
			name:      "drops below threshold",
			scores:    []float64{0.8, 0.1, 0.7},
			threshold: 0.3,
			want:      []string{passages[0], passages[2]},
		},
		{
			name:      "all below threshold",
			scores:    []float64{0.1, 0.2, 0.05},
			threshold: 0.3,
			want:      []string{},
		},
		{
			name:      "ties keep resume order",
			scores:    []float64{0.6, 0.6, 0.6},
			threshold: 0.3,
			want:      passages,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			byText := make(map[string]float64, len(passages))
			for i, p := range passages {
				byText[p] = tt.scores[i]
			}
			r := newLLMReranker(scoreByPassage(byText), tt.threshold, 5*time.Second, 0)

			got, err := r.Rerank(context.Background(), "Go backend experience", resumeChunks(passages...))
			if err != nil {
				t.Fatalf("Rerank: %v", err)
			}
			if strings.Join(texts(got), "|") != strings.Join(tt.want, "|") {
				t.Errorf("order = %q, want %q", texts(got), tt.want)
			}
		})
	}
}

func TestLLMReranker_Timeout(t *testing.T) {
	r := newLLMReranker(&mockEngine{chatFn: hang}, 0.3, 200*time.Millisecond, 0)

	start := time.Now()
	result, err := r.Rerank(context.Background(), "query", resumeChunks(passages...))
	elapsed := time.Since(start)

	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
	if elapsed > 500*time.Millisecond {
		t.Errorf("Rerank took %v, want well under 500ms", elapsed)
	}
	if result != nil {
		t.Errorf("expected nil result on timeout, got %d chunks", len(result))
	}
}

func TestLLMReranker_UnparseableReplyKeepsScore(t *testing.T) {
	eng := &mockEngine{chatFn: func(context.Context, string) (string, error) {
		return "I think this passage is quite relevant!", nil
	}}
	chunks := resumeChunks(passages[0])
	chunks[0].Score = 0.9

	got, err := newLLMReranker(eng, 0.3, 5*time.Second, 0).Rerank(context.Background(), "query", chunks)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 1 || got[0].Score != 0.9 {
		t.Errorf("got %+v, want the chunk with its original score", got)
	}
}

func TestLLMReranker_ChatErrorKeepsChunk(t *testing.T) {
	eng := &mockEngine{chatFn: func(context.Context, string) (string, error) {
		return "", errors.New("model overloaded")
	}}

	got, err := newLLMReranker(eng, 0.3, 5*time.Second, 0).Rerank(context.Background(), "query", resumeChunks(passages[0]))
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(got) != 1 || got[0].Score != 0.5 {
		t.Errorf("got %+v, want the chunk with its search score", got)
	}
}

func TestLLMReranker_EarlyReturn(t *testing.T) {
	const total, quick = 10, 5
	var answered atomic.Int32
	eng := &mockEngine{chatFn: func(ctx context.Context, prompt string) (string, error) {
		if answered.Add(1) <= quick {
			return `{"score": 0.8}`, nil
		}
		return hang(ctx, prompt)
	}}

	texts := make([]string, total)
	for i := range texts {
		texts[i] = fmt.Sprintf("resume passage %d", i)
	}
	r := newLLMReranker(eng, 0.3, 10*time.Second, quick)

	done := make(chan []retrieval.ContextChunk, 1)
	go func() {
		result, _ := r.Rerank(context.Background(), "query", resumeChunks(texts...))
		done <- result
	}()

	select {
	case result := <-done:
		if len(result) != quick {
			t.Errorf("got %d chunks, want %d", len(result), quick)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Rerank waited for the timeout instead of returning early")
	}
}

func TestLLMReranker_EmptyChunks(t *testing.T) {
	eng := &mockEngine{}
	result, err := newLLMReranker(eng, 0.3, 5*time.Second, 0).Rerank(context.Background(), "query", nil)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if len(result) != 0 {
		t.Errorf("got %d chunks, want 0", len(result))
	}
	if n := eng.calls.Load(); n != 0 {
		t.Errorf("engine called %d times for empty input", n)
	}
}

func TestParseScore(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    float64
		wantErr bool
	}{
		{"plain", `{"score": 0.7}`, 0.7, false},
		{"fenced", "```json\n{\"score\": 0.8}\n```", 0.8, false},
		{"filler", `The relevance score is: {"score": 0.6}`, 0.6, false},
		{"string number", `{"score": "0.4"}`, 0.4, false},
		{"clamped high", `{"score": 7}`, 1, false},
		{"clamped low", `{"score": -2}`, 0, false},
		{"no object", "relevant", 0, true},
		{"not a number", `{"score": "high"}`, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseScore(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && got != tt.want {
				t.Errorf("parseScore(%q) = %g, want %g", tt.in, got, tt.want)
			}
		})
	}
}

func TestNoOpReranker(t *testing.T) {
	chunks := resumeChunks(passages...)
	chunks[0].Score, chunks[1].Score, chunks[2].Score = 0.3, 0.9, 0.1

	got, err := (&NoOpReranker{}).Rerank(context.Background(), "query", chunks)
	if err != nil {
		t.Fatalf("Rerank: %v", err)
	}
	if strings.Join(texts(got), "|") != strings.Join(passages, "|") {
		t.Errorf("order changed: %q", texts(got))
	}
}
