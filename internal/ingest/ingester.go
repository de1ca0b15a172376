// Package ingest turns resume text into embedded chunks in the vector store
// and runs queued analyses in the background.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/kalambet/jobpilot/internal/retrieval"
	"github.com/kalambet/jobpilot/internal/storage"
)

// MinResumeChars is the least trimmed text an uploaded document must yield.
const MinResumeChars = 50

var (
	ErrEmptyResume    = errors.New("resume text cannot be empty")
	ErrResumeTooShort = errors.New("could not extract enough text from the file, try a different format")
)

// ValidateResume checks that extracted document text is long enough to be a
// resume.
func ValidateResume(text string) error {
	if utf8.RuneCountInString(strings.TrimSpace(text)) < MinResumeChars {
		return ErrResumeTooShort
	}
	return nil
}

// BatchEmbedder embeds many texts, returning vectors in input order.
type BatchEmbedder interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// SourceReplacer swaps every chunk of a source type in one transaction.
type SourceReplacer interface {
	ReplaceSource(ctx context.Context, sourceType string, records []retrieval.Record) error
}

// ResumeSaver records ingested resume documents.
type ResumeSaver interface {
	SaveResume(r storage.Resume) error
}

// Result describes a completed ingestion.
type Result struct {
	ResumeID   string
	Filename   string
	Characters int
	Chunks     int
}

// Message is the human-readable summary returned to API and CLI callers.
func (r Result) Message() string {
	return fmt.Sprintf("Resume ingested: %d chunks stored.", r.Chunks)
}

// Ingester splits, embeds and stores resumes. Each ingestion replaces the
// previously stored resume.
type Ingester struct {
	splitter *Splitter
	embedder BatchEmbedder
	vectors  SourceReplacer
	resumes  ResumeSaver
	logger   *slog.Logger
}

// NewIngester creates an Ingester. resumes may be nil when the document
// itself need not be kept.
func NewIngester(splitter *Splitter, embedder BatchEmbedder, vectors SourceReplacer, resumes ResumeSaver) *Ingester {
	if splitter == nil {
		splitter = NewSplitter(DefaultChunkSize, DefaultChunkOverlap)
	}
	return &Ingester{
		splitter: splitter,
		embedder: embedder,
		vectors:  vectors,
		resumes:  resumes,
		logger:   slog.Default(),
	}
}

// Ingest chunks text, embeds every chunk and atomically replaces the stored
// resume chunks. Embedding completes before the store is touched, so a
// failure leaves the previous resume in place.
func (in *Ingester) Ingest(ctx context.Context, filename, text string) (Result, error) {
	if strings.TrimSpace(text) == "" {
		return Result{}, ErrEmptyResume
	}

	chunks := in.splitter.Split(text)
	vecs, err := in.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return Result{}, fmt.Errorf("embedding resume chunks: %w", err)
	}

	resumeID := uuid.New().String()
	now := time.Now().UTC()
	records := make([]retrieval.Record, len(chunks))
	for i, c := range chunks {
		records[i] = retrieval.Record{
			ID:         uuid.New().String(),
			SourceID:   resumeID,
			SourceType: retrieval.SourceResume,
			ChunkIndex: i,
			TextChunk:  c,
			Embedding:  vecs[i],
			CreatedAt:  now,
		}
	}

	if err := in.vectors.ReplaceSource(ctx, retrieval.SourceResume, records); err != nil {
		return Result{}, fmt.Errorf("storing resume chunks: %w", err)
	}

	res := Result{
		ResumeID:   resumeID,
		Filename:   filename,
		Characters: utf8.RuneCountInString(text),
		Chunks:     len(chunks),
	}
	if in.resumes != nil {
		if err := in.resumes.SaveResume(storage.Resume{
			ID:         resumeID,
			Filename:   filename,
			Content:    text,
			ChunkCount: len(chunks),
			CreatedAt:  now,
		}); err != nil {
			// Vectors are already live; the document row is informational.
			in.logger.Warn("saving resume document failed", "resume_id", resumeID, "error", err)
		}
	}

	in.logger.Info("resume ingested", "resume_id", resumeID, "chunks", res.Chunks, "characters", res.Characters)
	return res, nil
}
