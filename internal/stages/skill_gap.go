package stages

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/parse"
)

const (
	SkillGapTemperature = 0.1
	// skillQueryTerms is how many required skills seed the retrieval query.
	skillQueryTerms = 5
	defaultSummary  = "Could not analyze."
)

type skillGapPayload struct {
	MatchedSkills json.RawMessage `json:"matched_skills"`
	MissingSkills json.RawMessage `json:"missing_skills"`
	MatchScore    json.RawMessage `json:"match_score"`
	Summary       json.RawMessage `json:"summary"`
}

// SkillGap compares the required skills to retrieved resume passages.
type SkillGap struct{}

func (SkillGap) Name() string        { return "skill_gap" }
func (SkillGap) Step() analysis.Step { return analysis.StepSkillsAnalyzed }

// SkillQuery is the retrieval query for the first five required skills.
func SkillQuery(required []string) string {
	return "skills experience " + strings.Join(required[:min(skillQueryTerms, len(required))], " ")
}

func (s SkillGap) Execute(ctx context.Context, r analysis.Record, caps Capabilities) (analysis.Record, error) {
	if err := r.CanAdvance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	required := r.ParsedJob.RequiredSkills

	resume, err := retrieve(ctx, s.Name(), caps, SkillQuery(required))
	if err != nil {
		return analysis.Record{}, err
	}
	raw, err := generate(ctx, s.Name(), caps, caps.composer().SkillGap(required, resume), SkillGapTemperature)
	if err != nil {
		return analysis.Record{}, err
	}

	out := r.Clone()
	res := parse.Decode(raw, skillGapPayload{})
	if res.Fallback {
		fellBack(caps, &out, s.Name(), res.Err)
		out.MatchedSkills = []string{}
		out.MissingSkills = analysis.Dedupe(required)
		out.MatchScore = 0
		out.SkillSummary = defaultSummary
	} else {
		p := res.Value
		out.MatchedSkills = analysis.Dedupe(parse.Strings(p.MatchedSkills, nil))
		out.MissingSkills = analysis.Dedupe(parse.Strings(p.MissingSkills, nil))
		out.MatchScore = parse.Score(p.MatchScore)
		out.SkillSummary = parse.Text(p.Summary, "")
	}

	if err := out.Advance(s.Step()); err != nil {
		return analysis.Record{}, err
	}
	return out, nil
}
