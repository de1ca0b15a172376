package engine

import (
	"context"
	"fmt"
)

const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

// DetectConfig holds parameters for backend selection.
type DetectConfig struct {
	// Provider selects the backend explicitly. Empty means auto-detect.
	Provider      string
	OllamaBaseURL string
	OpenAIBaseURL string
	OpenAIAPIKey  string
	GeminiAPIKey  string
}

// Detect returns the configured backend. With no explicit provider it
// prefers a running local Ollama, then OpenAI, then Gemini, depending on
// which credentials are present.
func Detect(ctx context.Context, cfg DetectConfig) (Engine, error) {
	switch cfg.Provider {
	case ProviderOllama:
		return NewOllamaEngine(cfg.OllamaBaseURL), nil
	case ProviderOpenAI:
		return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	case ProviderGemini:
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey)
	case "":
	default:
		return nil, fmt.Errorf("unknown provider %q", cfg.Provider)
	}

	local := NewOllamaEngine(cfg.OllamaBaseURL)
	if local.IsRunning(ctx) {
		return local, nil
	}
	if cfg.OpenAIAPIKey != "" {
		return NewOpenAIEngine(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL), nil
	}
	if cfg.GeminiAPIKey != "" {
		return NewGeminiEngine(ctx, cfg.GeminiAPIKey)
	}
	return local, nil
}
