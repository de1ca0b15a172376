// Package api exposes the application pipeline over HTTP and MCP.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/kalambet/jobpilot/internal/ingest"
	"github.com/kalambet/jobpilot/internal/retrieval"
	"github.com/kalambet/jobpilot/internal/storage"
)

const (
	maxRequestBodySize = 1 << 20  // 1MB
	maxUploadSize      = 10 << 20 // 10MB
)

// ServiceName is reported by the health endpoint.
const ServiceName = "jobpilot"

// Store persists analyses and queues background runs. *storage.Store
// implements it.
type Store interface {
	SaveAnalysis(a storage.Analysis) error
	GetAnalysis(id string) (storage.Analysis, error)
	ListAnalyses(limit int) ([]storage.Analysis, error)
	EnqueueJob(job storage.Job) error
}

// Recaller searches stored resume chunks. *retrieval.Retriever implements it.
type Recaller interface {
	Retrieve(ctx context.Context, query string, topK int) ([]retrieval.ContextChunk, error)
}

// AppDeps holds the collaborators of the HTTP API.
type AppDeps struct {
	Store    Store
	Analyzer ingest.Analyzer
	Ingester ingest.ResumeIngester
	Recaller Recaller
	Token    string
}

var validate = newValidator()

// newValidator reports fields by their JSON names.
func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// NewAppHandler returns the REST API. Every route except /health requires
// the bearer token when one is configured.
func NewAppHandler(deps AppDeps) http.Handler {
	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(deps.Token))

		r.Post("/upload-resume", handleUploadResume(deps))
		r.Post("/ingest-resume", handleIngestResume(deps))
		r.Post("/analyze", handleAnalyze(deps))
		r.Post("/analyses", handleEnqueueAnalysis(deps))
		r.Get("/analyses", handleListAnalyses(deps))
		r.Get("/analyses/{id}", handleGetAnalysis(deps))
		r.Get("/recall", handleRecall(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "service": ServiceName})
}

// decodeRequest reads a JSON body into v and runs its validate tags. It
// writes the 400 response itself and reports whether the caller may go on.
func decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	defer r.Body.Close()

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
		return false
	}
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%s is %s", verrs[0].Field(), verrs[0].Tag())
			return false
		}
		httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request: %v", err)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	writeJSON(w, code, map[string]any{
		"error": map[string]any{
			"message": fmt.Sprintf(format, args...),
			"type":    errType,
		},
	})
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v <= 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}
