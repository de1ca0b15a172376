package api

import (
	"net/http"
	"strings"

	"github.com/kalambet/jobpilot/internal/retrieval"
)

const (
	defaultRecallLimit = 5
	maxRecallLimit     = 50
)

// ChunkResult is one scored resume chunk.
type ChunkResult struct {
	ID         string  `json:"id"`
	SourceID   string  `json:"source_id"`
	SourceType string  `json:"source_type"`
	ChunkIndex int     `json:"chunk_index"`
	Text       string  `json:"text"`
	Score      float32 `json:"score"`
}

func chunkResults(chunks []retrieval.ContextChunk) []ChunkResult {
	out := make([]ChunkResult, len(chunks))
	for i, c := range chunks {
		out[i] = ChunkResult{
			ID:         c.ID,
			SourceID:   c.SourceID,
			SourceType: c.SourceType,
			ChunkIndex: c.ChunkIndex,
			Text:       c.Text,
			Score:      c.Score,
		}
	}
	return out
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecallLimit
	}
	return min(limit, maxRecallLimit)
}

func handleRecall(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := strings.TrimSpace(r.URL.Query().Get("q"))
		if query == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "q is required")
			return
		}
		limit := parseIntParam(r, "limit", defaultRecallLimit, maxRecallLimit)

		chunks, err := deps.Recaller.Retrieve(r.Context(), query, limit)
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "recall failed: %v", err)
			return
		}
		writeJSON(w, http.StatusOK, chunkResults(chunks))
	}
}
