package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/pipeline"
	"github.com/kalambet/jobpilot/internal/storage"
)

// JobTypeAnalyze is the queue type of background analyses.
const JobTypeAnalyze = "analyze"

// JobStore abstracts the job queue and analysis persistence.
type JobStore interface {
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
	GetAnalysis(id string) (storage.Analysis, error)
	SaveAnalysis(a storage.Analysis) error
}

// Analyzer runs the application pipeline. *pipeline.Pipeline implements it.
type Analyzer interface {
	Run(ctx context.Context, jobDescription, resumeText string) (analysis.Record, error)
}

// ResumeIngester stores a resume before analysis. *Ingester implements it.
type ResumeIngester interface {
	Ingest(ctx context.Context, filename, text string) (Result, error)
}

// AnalyzePayload is the JSON payload of an analyze job.
type AnalyzePayload struct {
	AnalysisID     string `json:"analysis_id"`
	JobDescription string `json:"job_description"`
	ResumeText     string `json:"resume_text,omitempty"`
}

// AnalysisQueue is what EnqueueAnalysis needs from the store.
type AnalysisQueue interface {
	SaveAnalysis(a storage.Analysis) error
	EnqueueJob(job storage.Job) error
}

// EnqueueAnalysis records a queued analysis and schedules it. It returns
// the analysis ID.
func EnqueueAnalysis(q AnalysisQueue, jobDescription, resumeText string) (string, error) {
	if err := pipeline.ValidateInput(jobDescription); err != nil {
		return "", err
	}
	id := uuid.New().String()
	payload, err := json.Marshal(AnalyzePayload{AnalysisID: id, JobDescription: jobDescription, ResumeText: resumeText})
	if err != nil {
		return "", fmt.Errorf("encoding payload: %w", err)
	}
	if err := q.SaveAnalysis(storage.Analysis{ID: id, Status: storage.AnalysisQueued}); err != nil {
		return "", fmt.Errorf("saving analysis: %w", err)
	}
	if err := q.EnqueueJob(storage.Job{ID: uuid.New().String(), Type: JobTypeAnalyze, PayloadJSON: string(payload)}); err != nil {
		return "", fmt.Errorf("enqueueing analysis %s: %w", id, err)
	}
	return id, nil
}

// permanentError marks job failures that retrying cannot fix.
type permanentError struct{ err error }

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// Worker processes analyze jobs from the SQLite job queue.
type Worker struct {
	store    JobStore
	analyzer Analyzer
	ingester ResumeIngester
	poll     time.Duration
	logger   *slog.Logger
}

// NewWorker creates a Worker with the given dependencies. ingester may be
// nil, in which case resume text carried by a job is only passed through.
// If pollInterval is <= 0, it defaults to 500ms.
func NewWorker(store JobStore, analyzer Analyzer, ingester ResumeIngester, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = 500 * time.Millisecond
	}
	return &Worker{
		store:    store,
		analyzer: analyzer,
		ingester: ingester,
		poll:     pollInterval,
		logger:   slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single analyze job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobTypeAnalyze})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	payload, err := w.processJob(ctx, job)
	if err == nil {
		if err := w.store.CompleteJob(job.ID); err != nil {
			return true, fmt.Errorf("completing job %s: %w", job.ID, err)
		}
		return true, nil
	}

	w.logger.Warn("job failed", "job_id", job.ID, "analysis_id", payload.AnalysisID, "attempt", job.Attempts+1, "error", err)

	var perm *permanentError
	final := errors.As(err, &perm) || job.Attempts+1 >= job.MaxAttempts
	if payload.AnalysisID != "" {
		w.recordFailure(payload, err, final)
	}
	if errors.As(err, &perm) {
		if err := w.store.CompleteJob(job.ID); err != nil {
			return true, fmt.Errorf("completing job %s: %w", job.ID, err)
		}
		return true, nil
	}
	if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
		w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
	}
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) (AnalyzePayload, error) {
	var payload AnalyzePayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return AnalyzePayload{}, &permanentError{fmt.Errorf("parsing payload: %w", err)}
	}
	if err := pipeline.ValidateInput(payload.JobDescription); err != nil {
		return payload, &permanentError{err}
	}

	if w.ingester != nil && strings.TrimSpace(payload.ResumeText) != "" {
		if _, err := w.ingester.Ingest(ctx, "", payload.ResumeText); err != nil {
			return payload, fmt.Errorf("ingesting resume: %w", err)
		}
	}

	rec, err := w.analyzer.Run(ctx, payload.JobDescription, payload.ResumeText)
	if err != nil {
		return payload, err
	}

	body, err := json.Marshal(rec)
	if err != nil {
		return payload, &permanentError{fmt.Errorf("encoding record: %w", err)}
	}
	prev, err := w.store.GetAnalysis(payload.AnalysisID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return payload, fmt.Errorf("loading analysis %s: %w", payload.AnalysisID, err)
	}
	if err := w.store.SaveAnalysis(storage.Analysis{
		ID:         payload.AnalysisID,
		Status:     storage.AnalysisCompleted,
		JobTitle:   rec.ParsedJob.Title,
		Company:    rec.ParsedJob.Company,
		MatchScore: rec.MatchScore,
		RecordJSON: string(body),
		CreatedAt:  prev.CreatedAt,
	}); err != nil {
		return payload, fmt.Errorf("saving analysis %s: %w", payload.AnalysisID, err)
	}
	w.logger.Info("analysis completed", "analysis_id", payload.AnalysisID, "match_score", rec.MatchScore)
	return payload, nil
}

// recordFailure stores the error on the analysis. Until the last attempt the
// analysis stays queued so clients keep polling.
func (w *Worker) recordFailure(payload AnalyzePayload, cause error, final bool) {
	prev, err := w.store.GetAnalysis(payload.AnalysisID)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		w.logger.Error("loading analysis", "analysis_id", payload.AnalysisID, "error", err)
		return
	}

	a := storage.Analysis{
		ID:        payload.AnalysisID,
		Status:    storage.AnalysisQueued,
		Error:     cause.Error(),
		CreatedAt: prev.CreatedAt,
	}
	if final {
		rec := analysis.New(payload.JobDescription, payload.ResumeText)
		rec.Error = cause.Error()
		if body, err := json.Marshal(rec); err == nil {
			a.RecordJSON = string(body)
		}
		a.Status = storage.AnalysisFailed
	}
	if err := w.store.SaveAnalysis(a); err != nil {
		w.logger.Error("saving failed analysis", "analysis_id", payload.AnalysisID, "error", err)
	}
}
