package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/kalambet/jobpilot/internal/config"
	"github.com/kalambet/jobpilot/internal/engine"
	"github.com/kalambet/jobpilot/internal/ingest"
	"github.com/kalambet/jobpilot/internal/pipeline"
	"github.com/kalambet/jobpilot/internal/reranking"
	"github.com/kalambet/jobpilot/internal/retrieval"
	"github.com/kalambet/jobpilot/internal/storage"
)

// services is the wired application shared by the server and by local
// analysis runs.
type services struct {
	engine    engine.Engine
	store     *storage.Store
	retriever *retrieval.Retriever
	ingester  *ingest.Ingester
	pipeline  *pipeline.Pipeline
}

func setupLogging(level string) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = slog.LevelInfo
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})))
}

func detectConfig(cfg config.Config) engine.DetectConfig {
	return engine.DetectConfig{
		Provider:      cfg.LLM.Provider,
		OllamaBaseURL: cfg.Ollama.BaseURL,
		OpenAIBaseURL: cfg.OpenAI.BaseURL,
		OpenAIAPIKey:  cfg.OpenAI.APIKey,
		GeminiAPIKey:  cfg.Gemini.APIKey,
	}
}

// newServices connects to the inference backend, opens storage and builds
// the retrieval and generation stack. Model pull progress goes to progress.
func newServices(ctx context.Context, cfg config.Config, progress io.Writer, opts ...pipeline.Option) (*services, error) {
	eng, err := engine.Detect(ctx, detectConfig(cfg))
	if err != nil {
		return nil, fmt.Errorf("detecting inference engine: %w", err)
	}
	if err := engine.EnsureReady(ctx, eng, cfg.LLM.ChatModel(), cfg.LLM.EmbeddingModel(), progress); err != nil {
		closeEngine(eng)
		return nil, err
	}

	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		closeEngine(eng)
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	embedder := retrieval.NewEmbedder(eng, cfg.LLM.EmbeddingModel())
	vectors := retrieval.NewSQLiteStore(store.DB())
	reranker := reranking.NewReranker(eng, cfg.LLM.ChatModel(), reranking.Options{
		Enabled:   cfg.Retrieval.RerankingEnabled,
		Timeout:   cfg.Retrieval.Timeout(),
		Threshold: cfg.Retrieval.RerankingThreshold,
		TopK:      cfg.Retrieval.TopK,
	})
	retriever := retrieval.NewRetriever(embedder, vectors, retrieval.WithReranker(reranker))
	splitter := ingest.NewSplitter(cfg.Ingest.ChunkSize, cfg.Ingest.ChunkOverlap)

	gen := engine.NewGenerator(eng, cfg.LLM.ChatModel(), engine.WithTimeout(cfg.LLM.GenerationTimeout()))
	opts = append([]pipeline.Option{pipeline.WithLogger(slog.Default()), pipeline.WithTopK(cfg.Retrieval.TopK)}, opts...)

	slog.Info("services ready",
		"provider", cfg.LLM.Provider,
		"chat_model", cfg.LLM.ChatModel(),
		"embed_model", cfg.LLM.EmbeddingModel(),
		"reranking", cfg.Retrieval.RerankingEnabled,
		"data_dir", cfg.Storage.DataDir,
	)
	return &services{
		engine:    eng,
		store:     store,
		retriever: retriever,
		ingester:  ingest.NewIngester(splitter, embedder, vectors, store),
		pipeline:  pipeline.New(retriever, gen, opts...),
	}, nil
}

func (s *services) Close() error {
	err := s.store.Close()
	if cerr := closeEngine(s.engine); cerr != nil {
		err = errors.Join(err, cerr)
	}
	return err
}

// closeEngine releases backends that hold a client connection.
func closeEngine(e engine.Engine) error {
	if c, ok := e.(io.Closer); ok {
		return c.Close()
	}
	return nil
}
