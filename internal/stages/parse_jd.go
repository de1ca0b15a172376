package stages

import (
	"context"
	"encoding/json"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/parse"
)

const (
	ParseJDTemperature = 0.1
	unknown            = "Unknown"
)

type jobPayload struct {
	JobTitle         json.RawMessage `json:"job_title"`
	Title            json.RawMessage `json:"title"`
	Company          json.RawMessage `json:"company"`
	SkillsRequired   json.RawMessage `json:"skills_required"`
	Responsibilities json.RawMessage `json:"responsibilities"`
	ExperienceYears  json.RawMessage `json:"experience_years"`
	Location         json.RawMessage `json:"location"`
}

// ParseJD extracts structured job facts from the raw description.
type ParseJD struct{}

func (ParseJD) Name() string        { return "parse_jd" }
func (ParseJD) Step() analysis.Step { return analysis.StepJDParsed }

func (s ParseJD) Execute(ctx context.Context, r analysis.Record, caps Capabilities) (analysis.Record, error) {
	if err := r.CanAdvance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	raw, err := generate(ctx, s.Name(), caps, caps.composer().ParseJD(r.JobDescription), ParseJDTemperature)
	if err != nil {
		return analysis.Record{}, err
	}

	out := r.Clone()
	res := parse.Decode(raw, jobPayload{})
	if res.Fallback {
		fellBack(caps, &out, s.Name(), res.Err)
	}
	p := res.Value

	title := parse.Text(p.JobTitle, "")
	if title == "" {
		title = parse.Text(p.Title, unknown)
	}
	out.ParsedJob = analysis.ParsedJob{
		Title:            title,
		Company:          parse.Text(p.Company, unknown),
		RequiredSkills:   analysis.Dedupe(parse.Strings(p.SkillsRequired, nil)),
		Responsibilities: nonNil(parse.Strings(p.Responsibilities, nil)),
		ExperienceYears:  parse.Text(p.ExperienceYears, unknown),
		Location:         parse.Text(p.Location, unknown),
	}

	if err := out.Advance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	return out, nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
