// Package stages implements the five transformation steps of an
// application analysis. Each stage reads fields written by earlier stages,
// optionally retrieves resume context, makes one generation call and
// returns an advanced copy of the record.
package stages

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/composer"
	"github.com/kalambet/jobpilot/internal/engine"
)

// DefaultK is the number of resume passages retrieved per query.
const DefaultK = 5

// Retriever returns the top-k resume passages for query joined by a blank
// line, or "" when nothing is indexed.
type Retriever interface {
	RetrieveText(ctx context.Context, query string, k int) (string, error)
}

// Generator turns a prompt into text at the given sampling temperature.
type Generator interface {
	Generate(ctx context.Context, p engine.Prompt, temperature float64) (string, error)
}

// Capabilities are the collaborators injected into every stage call.
type Capabilities struct {
	Retriever Retriever
	Generator Generator
	Composer  *composer.Composer
	Logger    *slog.Logger
	// K is the number of passages per retrieval. Zero means DefaultK.
	K int
}

func (c Capabilities) k() int {
	if c.K <= 0 {
		return DefaultK
	}
	return c.K
}

func (c Capabilities) composer() *composer.Composer {
	if c.Composer == nil {
		return composer.New(0)
	}
	return c.Composer
}

func (c Capabilities) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

// Stage is one step of the pipeline.
type Stage interface {
	// Name identifies the stage in logs, errors and Record.Fallbacks.
	Name() string
	// Step is the record step reached when the stage completes.
	Step() analysis.Step
	// Execute returns an advanced copy of r. The input record is not modified.
	Execute(ctx context.Context, r analysis.Record, caps Capabilities) (analysis.Record, error)
}

const (
	CapabilityRetriever = "retriever"
	CapabilityGenerator = "generator"
)

// UpstreamError reports a failed retriever or generator call. It is fatal
// to the run, unlike a malformed response, which falls back to defaults.
type UpstreamError struct {
	Stage      string
	Capability string
	Err        error
}

func (e *UpstreamError) Error() string {
	return fmt.Sprintf("%s: %s failed: %v", e.Stage, e.Capability, e.Err)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func retrieve(ctx context.Context, stage string, caps Capabilities, query string) (string, error) {
	if caps.Retriever == nil {
		return "", &UpstreamError{Stage: stage, Capability: CapabilityRetriever, Err: fmt.Errorf("no retriever configured")}
	}
	text, err := caps.Retriever.RetrieveText(ctx, query, caps.k())
	if err != nil {
		return "", &UpstreamError{Stage: stage, Capability: CapabilityRetriever, Err: err}
	}
	return text, nil
}

func generate(ctx context.Context, stage string, caps Capabilities, p engine.Prompt, temperature float64) (string, error) {
	if caps.Generator == nil {
		return "", &UpstreamError{Stage: stage, Capability: CapabilityGenerator, Err: fmt.Errorf("no generator configured")}
	}
	out, err := caps.Generator.Generate(ctx, p, temperature)
	if err != nil {
		return "", &UpstreamError{Stage: stage, Capability: CapabilityGenerator, Err: err}
	}
	return out, nil
}

// fellBack logs a parse fallback and records it on r.
func fellBack(caps Capabilities, r *analysis.Record, stage string, err error) {
	caps.logger().Warn("structured response fell back to default", "stage", stage, "error", err)
	r.MarkFallback(stage)
}

// Default returns the five stages in execution order.
func Default() []Stage {
	return []Stage{ParseJD{}, SkillGap{}, CoverLetter{}, Email{}, InterviewPrep{}}
}
