// Package pipeline runs the application analysis stages in order over a
// fresh record.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/composer"
	"github.com/kalambet/jobpilot/internal/stages"
)

// ErrEmptyJobDescription is returned by ValidateInput for a blank description.
var ErrEmptyJobDescription = errors.New("job description is empty")

// ValidateInput is the caller-side precondition for Run.
func ValidateInput(jobDescription string) error {
	if strings.TrimSpace(jobDescription) == "" {
		return ErrEmptyJobDescription
	}
	return nil
}

// RunError reports the stage at which a run stopped. No partial record is
// returned alongside it.
type RunError struct {
	// Step is the last step the run completed before failing.
	Step  analysis.Step
	Stage string
	Err   error
}

func (e *RunError) Error() string {
	return fmt.Sprintf("pipeline stopped after %s in %s: %v", e.Step, e.Stage, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

// Event is emitted after each completed stage.
type Event struct {
	Stage    string
	Step     analysis.Step
	Index    int
	Total    int
	Duration time.Duration
	Fallback bool
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithProgress registers fn to receive an Event after each stage.
func WithProgress(fn func(Event)) Option {
	return func(p *Pipeline) { p.progress = fn }
}

// WithStages replaces the default stage list.
func WithStages(s ...stages.Stage) Option {
	return func(p *Pipeline) { p.stages = s }
}

// WithComposer sets the prompt composer shared by all stages.
func WithComposer(c *composer.Composer) Option {
	return func(p *Pipeline) { p.composer = c }
}

// WithTopK sets how many resume passages each retrieval returns.
func WithTopK(k int) Option {
	return func(p *Pipeline) { p.topK = k }
}

// WithLogger sets the logger. The default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// Pipeline runs stages in order. It holds no per-run state and is safe for
// concurrent use.
type Pipeline struct {
	retriever stages.Retriever
	generator stages.Generator
	composer  *composer.Composer
	stages    []stages.Stage
	progress  func(Event)
	logger    *slog.Logger
	topK      int
}

// New creates a Pipeline over the default five stages.
func New(r stages.Retriever, g stages.Generator, opts ...Option) *Pipeline {
	p := &Pipeline{
		retriever: r,
		generator: g,
		composer:  composer.New(0),
		stages:    stages.Default(),
		logger:    slog.Default(),
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run threads a fresh record through every stage. Cancellation of ctx is
// observed between stages. On any stage failure Run returns a zero record
// and a *RunError.
func (p *Pipeline) Run(ctx context.Context, jobDescription, resumeText string) (analysis.Record, error) {
	caps := stages.Capabilities{
		Retriever: p.retriever,
		Generator: p.generator,
		Composer:  p.composer,
		Logger:    p.logger,
		K:         p.topK,
	}

	rec := analysis.New(jobDescription, resumeText)
	start := time.Now()
	for i, s := range p.stages {
		if err := ctx.Err(); err != nil {
			return analysis.Record{}, &RunError{Step: rec.CurrentStep, Stage: s.Name(), Err: err}
		}

		stageStart := time.Now()
		next, err := s.Execute(ctx, rec, caps)
		if err != nil {
			return analysis.Record{}, &RunError{Step: rec.CurrentStep, Stage: s.Name(), Err: err}
		}

		ev := Event{
			Stage:    s.Name(),
			Step:     next.CurrentStep,
			Index:    i + 1,
			Total:    len(p.stages),
			Duration: time.Since(stageStart),
			Fallback: len(next.Fallbacks) > len(rec.Fallbacks),
		}
		p.logger.Debug("stage complete",
			"stage", ev.Stage,
			"step", ev.Step,
			"duration_ms", ev.Duration.Milliseconds(),
			"fallback", ev.Fallback,
		)
		if p.progress != nil {
			p.progress(ev)
		}
		rec = next
	}

	p.logger.Info("analysis complete",
		"title", rec.ParsedJob.Title,
		"company", rec.ParsedJob.Company,
		"match_score", rec.MatchScore,
		"fallbacks", len(rec.Fallbacks),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return rec, nil
}
