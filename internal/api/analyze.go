package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/ingest"
	"github.com/kalambet/jobpilot/internal/pipeline"
	"github.com/kalambet/jobpilot/internal/stages"
	"github.com/kalambet/jobpilot/internal/storage"
)

// AnalyzeRequest is the body of POST /analyze and POST /analyses.
type AnalyzeRequest struct {
	JobDescription string `json:"job_description" validate:"required"`
	ResumeText     string `json:"resume_text"`
}

// AnalyzeResponse is the client view of a completed analysis.
type AnalyzeResponse struct {
	AnalysisID         string   `json:"analysis_id"`
	JobTitle           string   `json:"job_title"`
	Company            string   `json:"company"`
	MatchScore         int      `json:"match_score"`
	MatchedSkills      []string `json:"matched_skills"`
	MissingSkills      []string `json:"missing_skills"`
	CoverLetter        string   `json:"cover_letter"`
	EmailDraft         string   `json:"email_draft"`
	InterviewQuestions []string `json:"interview_questions"`
	PrepTips           string   `json:"prep_tips"`
}

// NewAnalyzeResponse flattens a record for clients.
func NewAnalyzeResponse(id string, rec analysis.Record) AnalyzeResponse {
	return AnalyzeResponse{
		AnalysisID:         id,
		JobTitle:           rec.ParsedJob.Title,
		Company:            rec.ParsedJob.Company,
		MatchScore:         rec.MatchScore,
		MatchedSkills:      rec.MatchedSkills,
		MissingSkills:      rec.MissingSkills,
		CoverLetter:        rec.CoverLetter,
		EmailDraft:         rec.EmailDraft,
		InterviewQuestions: rec.InterviewQuestions,
		PrepTips:           rec.PrepTips,
	}
}

// AnalysisSummary is one stored analysis without its record.
type AnalysisSummary struct {
	ID         string    `json:"id"`
	Status     string    `json:"status"`
	JobTitle   string    `json:"job_title,omitempty"`
	Company    string    `json:"company,omitempty"`
	MatchScore int       `json:"match_score"`
	Error      string    `json:"error,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AnalysisDetail is a stored analysis with its record, once there is one.
type AnalysisDetail struct {
	AnalysisSummary
	Record json.RawMessage `json:"record,omitempty"`
}

func summarize(a storage.Analysis) AnalysisSummary {
	return AnalysisSummary{
		ID:         a.ID,
		Status:     a.Status,
		JobTitle:   a.JobTitle,
		Company:    a.Company,
		MatchScore: a.MatchScore,
		Error:      a.Error,
		CreatedAt:  a.CreatedAt,
		UpdatedAt:  a.UpdatedAt,
	}
}

// AnalyzeAndSave runs the pipeline and stores the outcome under a new ID.
// Failed runs are stored too so they show up in the history.
func AnalyzeAndSave(ctx context.Context, store Store, analyzer ingest.Analyzer, jobDescription, resumeText string) (string, analysis.Record, error) {
	id := uuid.New().String()
	rec, err := analyzer.Run(ctx, jobDescription, resumeText)
	if err != nil {
		failed := analysis.New(jobDescription, resumeText)
		failed.Error = err.Error()
		body, _ := json.Marshal(failed)
		if saveErr := store.SaveAnalysis(storage.Analysis{
			ID:         id,
			Status:     storage.AnalysisFailed,
			RecordJSON: string(body),
			Error:      err.Error(),
		}); saveErr != nil {
			slog.Warn("saving failed analysis", "analysis_id", id, "error", saveErr)
		}
		return id, analysis.Record{}, err
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return id, rec, fmt.Errorf("encoding record: %w", err)
	}
	status := storage.AnalysisCompleted
	if rec.Error != "" {
		status = storage.AnalysisFailed
	}
	if err := store.SaveAnalysis(storage.Analysis{
		ID:         id,
		Status:     status,
		JobTitle:   rec.ParsedJob.Title,
		Company:    rec.ParsedJob.Company,
		MatchScore: rec.MatchScore,
		RecordJSON: string(body),
		Error:      rec.Error,
	}); err != nil {
		return id, rec, fmt.Errorf("saving analysis %s: %w", id, err)
	}
	return id, rec, nil
}

// runStatus maps a pipeline failure to an HTTP status. A caller cancel wins
// even when it surfaced through a stage call. Upstream failures are checked
// before deadlines because a generator timeout wraps DeadlineExceeded.
func runStatus(err error) (int, string) {
	var ue *stages.UpstreamError
	switch {
	case errors.Is(err, context.Canceled):
		return http.StatusServiceUnavailable, "cancelled"
	case errors.As(err, &ue):
		return http.StatusBadGateway, "upstream_error"
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable, "cancelled"
	default:
		return http.StatusInternalServerError, "api_error"
	}
}

func handleAnalyze(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if !decodeRequest(w, r, &req) {
			return
		}
		if err := pipeline.ValidateInput(req.JobDescription); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}

		if strings.TrimSpace(req.ResumeText) != "" {
			if _, err := deps.Ingester.Ingest(r.Context(), "", req.ResumeText); err != nil {
				httpError(w, http.StatusBadGateway, "api_error", "failed to ingest resume: %v", err)
				return
			}
		}

		start := time.Now()
		id, rec, err := AnalyzeAndSave(r.Context(), deps.Store, deps.Analyzer, req.JobDescription, req.ResumeText)
		if err != nil {
			code, errType := runStatus(err)
			httpError(w, code, errType, "analysis failed: %v", err)
			return
		}
		if rec.Error != "" {
			httpError(w, http.StatusInternalServerError, "api_error", "analysis failed: %s", rec.Error)
			return
		}
		slog.Info("analysis completed", "analysis_id", id, "match_score", rec.MatchScore, "duration_ms", time.Since(start).Milliseconds())

		writeJSON(w, http.StatusOK, NewAnalyzeResponse(id, rec))
	}
}

func handleEnqueueAnalysis(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AnalyzeRequest
		if !decodeRequest(w, r, &req) {
			return
		}

		id, err := ingest.EnqueueAnalysis(deps.Store, req.JobDescription, req.ResumeText)
		if errors.Is(err, pipeline.ErrEmptyJobDescription) {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "%v", err)
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to queue analysis: %v", err)
			return
		}

		writeJSON(w, http.StatusAccepted, map[string]string{
			"id":     id,
			"status": storage.AnalysisQueued,
		})
	}
}

func handleListAnalyses(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		analyses, err := deps.Store.ListAnalyses(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list analyses: %v", err)
			return
		}

		out := make([]AnalysisSummary, len(analyses))
		for i, a := range analyses {
			out[i] = summarize(a)
		}
		writeJSON(w, http.StatusOK, out)
	}
}

func handleGetAnalysis(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		a, err := deps.Store.GetAnalysis(id)
		if errors.Is(err, storage.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "analysis not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get analysis: %v", err)
			return
		}

		detail := AnalysisDetail{AnalysisSummary: summarize(a)}
		if a.RecordJSON != "" {
			detail.Record = json.RawMessage(a.RecordJSON)
		}
		writeJSON(w, http.StatusOK, detail)
	}
}
