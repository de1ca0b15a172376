package stages

import (
	"context"
	"strings"

	"github.com/kalambet/jobpilot/internal/analysis"
)

const (
	CoverLetterTemperature = 0.7
	// ContactQuery targets the resume header: identity facts rarely appear
	// next to project descriptions.
	ContactQuery = "name address phone email contact location"
)

// CoverLetter writes a tailored cover letter.
type CoverLetter struct{}

func (CoverLetter) Name() string        { return "cover_letter" }
func (CoverLetter) Step() analysis.Step { return analysis.StepCoverLetterDone }

// ExperienceQuery is the retrieval query for role-relevant experience.
func ExperienceQuery(title string) string {
	return strings.TrimSpace(title + " experience projects achievements")
}

func (s CoverLetter) Execute(ctx context.Context, r analysis.Record, caps Capabilities) (analysis.Record, error) {
	if err := r.CanAdvance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	experience, err := retrieve(ctx, s.Name(), caps, ExperienceQuery(r.ParsedJob.Title))
	if err != nil {
		return analysis.Record{}, err
	}
	contact, err := retrieve(ctx, s.Name(), caps, ContactQuery)
	if err != nil {
		return analysis.Record{}, err
	}

	letter, err := generate(ctx, s.Name(), caps, caps.composer().CoverLetter(r, experience, contact), CoverLetterTemperature)
	if err != nil {
		return analysis.Record{}, err
	}

	out := r.Clone()
	out.CoverLetter = letter
	if err := out.Advance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	return out, nil
}
