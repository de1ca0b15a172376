package config

import (
	"errors"
	"fmt"
	"io/fs"
	"slices"
	"time"

	"github.com/joho/godotenv"
)

// Supported llm.provider values.
const (
	ProviderOllama = "ollama"
	ProviderOpenAI = "openai"
	ProviderGemini = "gemini"
)

type Config struct {
	Server    ServerConfig
	LLM       LLMConfig
	Ollama    OllamaConfig
	OpenAI    OpenAIConfig
	Gemini    GeminiConfig
	Storage   StorageConfig
	Retrieval RetrievalConfig
	Ingest    IngestConfig
	Log       LogConfig
}

type ServerConfig struct {
	Port       int
	MCPEnabled bool
	APIToken   string
}

type LLMConfig struct {
	Provider   string
	Model      string
	EmbedModel string
	Timeout    string
}

type OllamaConfig struct {
	BaseURL string
}

type OpenAIConfig struct {
	BaseURL string
	APIKey  string
}

type GeminiConfig struct {
	APIKey string
}

type StorageConfig struct {
	DataDir string
}

type RetrievalConfig struct {
	TopK               int
	RerankingEnabled   bool
	RerankingThreshold float64
	RerankingTimeout   string
}

type IngestConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

type LogConfig struct {
	Level string
}

// providerModels holds the chat and embedding model used when llm.model or
// llm.embed_model is left empty.
var providerModels = map[string][2]string{
	ProviderOllama: {"llama3.1", "nomic-embed-text"},
	ProviderOpenAI: {"gpt-4o-mini", "text-embedding-3-small"},
	ProviderGemini: {"gemini-1.5-flash", "text-embedding-004"},
}

// ChatModel returns the configured chat model or the provider default.
func (c LLMConfig) ChatModel() string {
	if c.Model != "" {
		return c.Model
	}
	return providerModels[c.Provider][0]
}

// EmbeddingModel returns the configured embedding model or the provider default.
func (c LLMConfig) EmbeddingModel() string {
	if c.EmbedModel != "" {
		return c.EmbedModel
	}
	return providerModels[c.Provider][1]
}

// GenerationTimeout parses llm.timeout. Zero means the engine default.
func (c LLMConfig) GenerationTimeout() time.Duration {
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0
	}
	return d
}

// Timeout parses retrieval.reranking_timeout. Zero means the reranker default.
func (c RetrievalConfig) Timeout() time.Duration {
	d, err := time.ParseDuration(c.RerankingTimeout)
	if err != nil {
		return 0
	}
	return d
}

func defaults() Config {
	return Config{
		Server: ServerConfig{
			Port: 8000,
		},
		LLM: LLMConfig{
			Provider: ProviderOllama,
			Timeout:  "120s",
		},
		Ollama: OllamaConfig{
			BaseURL: "http://localhost:11434",
		},
		OpenAI: OpenAIConfig{
			BaseURL: "https://api.openai.com/v1",
		},
		Storage: StorageConfig{
			DataDir: defaultDataDir(),
		},
		Retrieval: RetrievalConfig{
			TopK:               5,
			RerankingThreshold: 0.3,
			RerankingTimeout:   "10s",
		},
		Ingest: IngestConfig{
			ChunkSize:    500,
			ChunkOverlap: 50,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// Load reads configuration in increasing precedence: defaults, the JSON
// file at $XDG_CONFIG_HOME/jobpilot/config.json, then JOBPILOT_*
// environment variables. A .env file in the working directory is loaded
// into the environment first; variables already set are kept.
//
// Secrets (API keys, the server token) are read from the environment only.
func Load() (Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return Config{}, err
	}
	return loadWith(newFileBackend(configFilePath()))
}

func loadDotEnv(path string) error {
	err := godotenv.Load(path)
	if err == nil || errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("loading %s: %w", path, err)
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the provider selection and numeric ranges.
func (c Config) Validate() error {
	if _, ok := providerModels[c.LLM.Provider]; !ok {
		valid := []string{ProviderOllama, ProviderOpenAI, ProviderGemini}
		return fmt.Errorf("invalid llm.provider %q: must be one of %v", c.LLM.Provider, valid)
	}
	switch {
	case c.LLM.Provider == ProviderOpenAI && c.OpenAI.APIKey == "":
		return errors.New("missing required config: OpenAI API key. Set it via environment variable JOBPILOT_OPENAI_API_KEY or OPENAI_API_KEY")
	case c.LLM.Provider == ProviderGemini && c.Gemini.APIKey == "":
		return errors.New("missing required config: Gemini API key. Set it via environment variable JOBPILOT_GEMINI_API_KEY or GEMINI_API_KEY")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server.port %d", c.Server.Port)
	}
	if c.Ingest.ChunkSize <= 0 || c.Ingest.ChunkOverlap < 0 || c.Ingest.ChunkOverlap >= c.Ingest.ChunkSize {
		return fmt.Errorf("invalid ingest chunking: size %d, overlap %d", c.Ingest.ChunkSize, c.Ingest.ChunkOverlap)
	}
	if c.Retrieval.TopK <= 0 {
		return fmt.Errorf("invalid retrieval.top_k %d", c.Retrieval.TopK)
	}
	if c.Retrieval.RerankingThreshold < 0 || c.Retrieval.RerankingThreshold > 1 {
		return fmt.Errorf("invalid retrieval.reranking_threshold %v: must be within [0, 1]", c.Retrieval.RerankingThreshold)
	}
	if !slices.Contains([]string{"debug", "info", "warn", "error"}, c.Log.Level) {
		return fmt.Errorf("invalid log.level %q", c.Log.Level)
	}
	return nil
}
