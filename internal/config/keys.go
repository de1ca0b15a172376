package config

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"strconv"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kFloat
)

type keySpec struct {
	key string
	typ keyType
	env string
	// alias is a conventional variable read when env is unset.
	alias   string
	secret  bool
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "server.port", typ: kInt, env: "JOBPILOT_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "server.mcp_enabled", typ: kBool, env: "JOBPILOT_SERVER_MCP_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Server.MCPEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Server.MCPEnabled },
	},
	{
		key: "server.api_token", typ: kString, env: "JOBPILOT_API_TOKEN",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Server.APIToken = v.(string) },
		extract: func(cfg Config) any { return cfg.Server.APIToken },
	},
	{
		key: "llm.provider", typ: kString, env: "JOBPILOT_LLM_PROVIDER",
		apply:   func(cfg *Config, v any) { cfg.LLM.Provider = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Provider },
	},
	{
		key: "llm.model", typ: kString, env: "JOBPILOT_LLM_MODEL", alias: "OPENAI_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.Model = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.ChatModel() },
	},
	{
		key: "llm.embed_model", typ: kString, env: "JOBPILOT_LLM_EMBED_MODEL",
		apply:   func(cfg *Config, v any) { cfg.LLM.EmbedModel = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.EmbeddingModel() },
	},
	{
		key: "llm.timeout", typ: kString, env: "JOBPILOT_LLM_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.LLM.Timeout = v.(string) },
		extract: func(cfg Config) any { return cfg.LLM.Timeout },
	},
	{
		key: "ollama.base_url", typ: kString, env: "JOBPILOT_OLLAMA_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.Ollama.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.Ollama.BaseURL },
	},
	{
		key: "openai.base_url", typ: kString, env: "JOBPILOT_OPENAI_BASE_URL",
		apply:   func(cfg *Config, v any) { cfg.OpenAI.BaseURL = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.BaseURL },
	},
	{
		key: "openai.api_key", typ: kString, env: "JOBPILOT_OPENAI_API_KEY", alias: "OPENAI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.OpenAI.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.OpenAI.APIKey },
	},
	{
		key: "gemini.api_key", typ: kString, env: "JOBPILOT_GEMINI_API_KEY", alias: "GEMINI_API_KEY",
		secret: true,
		apply:   func(cfg *Config, v any) { cfg.Gemini.APIKey = v.(string) },
		extract: func(cfg Config) any { return cfg.Gemini.APIKey },
	},
	{
		key: "storage.data_dir", typ: kString, env: "JOBPILOT_STORAGE_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Storage.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Storage.DataDir },
	},
	{
		key: "retrieval.top_k", typ: kInt, env: "JOBPILOT_RETRIEVAL_TOP_K",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.TopK = v.(int) },
		extract: func(cfg Config) any { return cfg.Retrieval.TopK },
	},
	{
		key: "retrieval.reranking_enabled", typ: kBool, env: "JOBPILOT_RETRIEVAL_RERANKING_ENABLED",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankingEnabled = v.(bool) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankingEnabled },
	},
	{
		key: "retrieval.reranking_threshold", typ: kFloat, env: "JOBPILOT_RETRIEVAL_RERANKING_THRESHOLD",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankingThreshold = v.(float64) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankingThreshold },
	},
	{
		key: "retrieval.reranking_timeout", typ: kString, env: "JOBPILOT_RETRIEVAL_RERANKING_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Retrieval.RerankingTimeout = v.(string) },
		extract: func(cfg Config) any { return cfg.Retrieval.RerankingTimeout },
	},
	{
		key: "ingest.chunk_size", typ: kInt, env: "JOBPILOT_INGEST_CHUNK_SIZE",
		apply:   func(cfg *Config, v any) { cfg.Ingest.ChunkSize = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.ChunkSize },
	},
	{
		key: "ingest.chunk_overlap", typ: kInt, env: "JOBPILOT_INGEST_CHUNK_OVERLAP",
		apply:   func(cfg *Config, v any) { cfg.Ingest.ChunkOverlap = v.(int) },
		extract: func(cfg Config) any { return cfg.Ingest.ChunkOverlap },
	},
	{
		key: "log.level", typ: kString, env: "JOBPILOT_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		if s.secret {
			continue
		}
		raw, ok := b.Lookup(s.key)
		if !ok {
			continue
		}
		v, err := coerce(s.typ, raw)
		if err != nil {
			return fmt.Errorf("reading %s: %w", s.key, err)
		}
		s.apply(cfg, v)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		name := s.env
		raw := os.Getenv(name)
		if raw == "" && s.alias != "" {
			name = s.alias
			raw = os.Getenv(name)
		}
		if raw == "" {
			continue
		}
		v, err := coerce(s.typ, raw)
		if err != nil {
			slog.Warn("ignoring unparsable environment variable", "name", name, "value", raw, "error", err)
			continue
		}
		s.apply(cfg, v)
	}
}

// coerce converts a string (environment, CLI) or a decoded JSON value to typ.
func coerce(typ keyType, raw any) (any, error) {
	if s, ok := raw.(string); ok {
		switch typ {
		case kInt:
			return strconv.Atoi(s)
		case kBool:
			return strconv.ParseBool(s)
		case kFloat:
			return strconv.ParseFloat(s, 64)
		default:
			return s, nil
		}
	}
	switch typ {
	case kString:
		return fmt.Sprint(raw), nil
	case kInt:
		f, ok := raw.(float64)
		if !ok || f != math.Trunc(f) || f < math.MinInt32 || f > math.MaxInt32 {
			return nil, fmt.Errorf("%v is not an integer", raw)
		}
		return int(f), nil
	case kBool:
		if v, ok := raw.(bool); ok {
			return v, nil
		}
	case kFloat:
		if v, ok := raw.(float64); ok {
			return v, nil
		}
	}
	return nil, fmt.Errorf("unexpected %T value", raw)
}
