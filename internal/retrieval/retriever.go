package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"
)

// ContextChunk is a retrieved context fragment with its similarity score.
type ContextChunk struct {
	ID         string
	SourceID   string
	SourceType string
	ChunkIndex int
	Text       string
	Score      float32
	CreatedAt  time.Time
}

// QueryEmbedder turns a query into a vector. *Embedder implements it.
type QueryEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Reranker re-scores retrieved chunks by relevance to the query. It may drop
// chunks; returning an error keeps the vector-search order.
type Reranker interface {
	Rerank(ctx context.Context, query string, chunks []ContextChunk) ([]ContextChunk, error)
}

// Retriever combines embedding and vector search to find relevant context.
type Retriever struct {
	embedder   QueryEmbedder
	store      VectorStore
	sourceType string
	reranker   Reranker
	logger     *slog.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithSourceType restricts retrieval to one source type. The default is
// SourceResume.
func WithSourceType(sourceType string) RetrieverOption {
	return func(r *Retriever) { r.sourceType = sourceType }
}

// WithReranker re-scores search hits before they are returned.
func WithReranker(rr Reranker) RetrieverOption {
	return func(r *Retriever) { r.reranker = rr }
}

// WithLogger sets the logger used for degraded-path warnings.
func WithLogger(l *slog.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a Retriever backed by the given embedder and VectorStore.
func NewRetriever(embedder QueryEmbedder, store VectorStore, opts ...RetrieverOption) *Retriever {
	r := &Retriever{
		embedder:   embedder,
		store:      store,
		sourceType: SourceResume,
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve embeds the query and returns the top-K most similar context
// chunks. An empty store yields no chunks without calling the embedder.
func (r *Retriever) Retrieve(ctx context.Context, query string, topK int) ([]ContextChunk, error) {
	if topK <= 0 {
		return nil, nil
	}
	n, err := r.store.Count(ctx, r.sourceType)
	if err != nil {
		return nil, fmt.Errorf("counting %s chunks: %w", r.sourceType, err)
	}
	if n == 0 {
		return nil, nil
	}

	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, err
	}

	scored, err := r.store.Search(ctx, vec, topK, r.sourceType)
	if err != nil {
		return nil, err
	}
	chunks := scoredToChunks(scored)

	if r.reranker != nil && len(chunks) > 1 {
		reranked, err := r.reranker.Rerank(ctx, query, chunks)
		if err != nil {
			r.logger.Warn("rerank failed, keeping search order", "error", err)
		} else {
			chunks = reranked
		}
	}
	return chunks, nil
}

// RetrieveText returns the top-K passages for query joined by a blank line,
// or "" when nothing is stored.
func (r *Retriever) RetrieveText(ctx context.Context, query string, topK int) (string, error) {
	chunks, err := r.Retrieve(ctx, query, topK)
	if err != nil {
		return "", err
	}
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Text
	}
	return strings.Join(texts, "\n\n"), nil
}

// RetrieveByIDs returns context chunks for the given record IDs.
func (r *Retriever) RetrieveByIDs(ctx context.Context, ids []string) ([]ContextChunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	records, err := r.store.GetByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	chunks := make([]ContextChunk, len(records))
	for i, rec := range records {
		chunks[i] = toChunk(rec, 0)
	}
	return chunks, nil
}

func scoredToChunks(scored []ScoredRecord) []ContextChunk {
	chunks := make([]ContextChunk, len(scored))
	for i, s := range scored {
		chunks[i] = toChunk(s.Record, s.Score)
	}
	return chunks
}

func toChunk(r Record, score float32) ContextChunk {
	return ContextChunk{
		ID:         r.ID,
		SourceID:   r.SourceID,
		SourceType: r.SourceType,
		ChunkIndex: r.ChunkIndex,
		Text:       r.TextChunk,
		Score:      score,
		CreatedAt:  r.CreatedAt,
	}
}
