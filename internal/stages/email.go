package stages

import (
	"context"

	"github.com/kalambet/jobpilot/internal/analysis"
)

const (
	EmailTemperature = 0.5
	EmailQuery       = "name address phone email contact"
)

// Email drafts a short application email.
type Email struct{}

func (Email) Name() string        { return "email" }
func (Email) Step() analysis.Step { return analysis.StepEmailDone }

func (s Email) Execute(ctx context.Context, r analysis.Record, caps Capabilities) (analysis.Record, error) {
	if err := r.CanAdvance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	contact, err := retrieve(ctx, s.Name(), caps, EmailQuery)
	if err != nil {
		return analysis.Record{}, err
	}
	draft, err := generate(ctx, s.Name(), caps, caps.composer().Email(r, contact), EmailTemperature)
	if err != nil {
		return analysis.Record{}, err
	}

	out := r.Clone()
	out.EmailDraft = draft
	if err := out.Advance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	return out, nil
}
