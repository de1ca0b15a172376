package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestDetect_ExplicitProvider(t *testing.T) {
	e, err := Detect(context.Background(), DetectConfig{Provider: ProviderOllama, OllamaBaseURL: "http://localhost:11434"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}

	e, err = Detect(context.Background(), DetectConfig{Provider: ProviderOpenAI, OpenAIAPIKey: "k"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OpenAIEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenAIEngine", e)
	}
}

func TestDetect_UnknownProvider(t *testing.T) {
	if _, err := Detect(context.Background(), DetectConfig{Provider: "bard"}); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}

func TestDetect_GeminiRequiresKey(t *testing.T) {
	if _, err := Detect(context.Background(), DetectConfig{Provider: ProviderGemini}); err == nil {
		t.Fatal("expected error for gemini without key")
	}
}

func TestDetect_AutoPrefersRunningOllama(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write(tagsJSON("llama3.1:latest"))
	}))
	defer srv.Close()

	e, err := Detect(context.Background(), DetectConfig{OllamaBaseURL: srv.URL, OpenAIAPIKey: "k"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OllamaEngine); !ok {
		t.Errorf("Detect returned %T, want *OllamaEngine", e)
	}
}

func TestDetect_AutoFallsBackToOpenAI(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	e, err := Detect(context.Background(), DetectConfig{OllamaBaseURL: srv.URL, OpenAIAPIKey: "k"})
	if err != nil {
		t.Fatalf("Detect: %v", err)
	}
	if _, ok := e.(*OpenAIEngine); !ok {
		t.Errorf("Detect returned %T, want *OpenAIEngine", e)
	}
}
