package stages

import (
	"context"
	"encoding/json"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/parse"
)

const (
	InterviewPrepTemperature = 0.6
	DefaultPrepTips          = "Focus on your experience with the matched skills."
)

type interviewPayload struct {
	TechnicalQuestions  json.RawMessage `json:"technical_questions"`
	BehavioralQuestions json.RawMessage `json:"behavioral_questions"`
	PrepTips            json.RawMessage `json:"prep_tips"`
}

// InterviewPrep produces likely interview questions and preparation tips
// from the parsed responsibilities and skill gaps. It does not retrieve.
type InterviewPrep struct{}

func (InterviewPrep) Name() string        { return "interview_prep" }
func (InterviewPrep) Step() analysis.Step { return analysis.StepComplete }

func (s InterviewPrep) Execute(ctx context.Context, r analysis.Record, caps Capabilities) (analysis.Record, error) {
	if err := r.CanAdvance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	raw, err := generate(ctx, s.Name(), caps, caps.composer().InterviewPrep(r), InterviewPrepTemperature)
	if err != nil {
		return analysis.Record{}, err
	}

	out := r.Clone()
	res := parse.Decode(raw, interviewPayload{})
	if res.Fallback {
		fellBack(caps, &out, s.Name(), res.Err)
	}
	p := res.Value

	// Technical questions first.
	questions := parse.Strings(p.TechnicalQuestions, nil)
	questions = append(questions, parse.Strings(p.BehavioralQuestions, nil)...)
	out.InterviewQuestions = nonNil(questions)
	out.PrepTips = parse.Text(p.PrepTips, DefaultPrepTips)

	if err := out.Advance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	return out, nil
}
