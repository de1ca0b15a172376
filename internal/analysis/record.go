// Package analysis defines the per-run record threaded through the
// application pipeline and the ordered steps it advances through.
package analysis

import (
	"fmt"
	"slices"
	"strings"
)

// Step labels the last completed stage of a run.
type Step string

const (
	StepStart           Step = "start"
	StepJDParsed        Step = "jd_parsed"
	StepSkillsAnalyzed  Step = "skills_analyzed"
	StepCoverLetterDone Step = "cover_letter_done"
	StepEmailDone       Step = "email_done"
	StepComplete        Step = "complete"
)

// steps is the only legal progression. No branching, looping or skipping.
var steps = []Step{
	StepStart,
	StepJDParsed,
	StepSkillsAnalyzed,
	StepCoverLetterDone,
	StepEmailDone,
	StepComplete,
}

// Steps returns the ordered step labels, start first.
func Steps() []Step {
	return slices.Clone(steps)
}

// Next returns the step that follows s, or false when s is terminal or unknown.
func (s Step) Next() (Step, bool) {
	i := slices.Index(steps, s)
	if i < 0 || i == len(steps)-1 {
		return "", false
	}
	return steps[i+1], true
}

// ParsedJob holds the structured facts extracted from a job description.
type ParsedJob struct {
	Title            string   `json:"title"`
	Company          string   `json:"company"`
	RequiredSkills   []string `json:"required_skills"`
	Responsibilities []string `json:"responsibilities"`
	ExperienceYears  string   `json:"experience_years"`
	Location         string   `json:"location"`
}

// Record is the state of one pipeline run. It is created fresh per run,
// each field group is written once by its owning stage, and it is never
// shared between runs.
type Record struct {
	JobDescription string `json:"job_description"`
	ResumeText     string `json:"resume_text"`

	ParsedJob ParsedJob `json:"parsed_job"`

	MatchedSkills []string `json:"matched_skills"`
	MissingSkills []string `json:"missing_skills"`
	MatchScore    int      `json:"match_score"`
	SkillSummary  string   `json:"skill_summary"`

	CoverLetter string `json:"cover_letter"`
	EmailDraft  string `json:"email_draft"`

	InterviewQuestions []string `json:"interview_questions"`
	PrepTips           string   `json:"prep_tips"`

	Error       string `json:"error,omitempty"`
	CurrentStep Step   `json:"current_step"`

	// Fallbacks names the stages whose structured response could not be
	// parsed and were replaced by their default payload.
	Fallbacks []string `json:"fallbacks,omitempty"`
}

// New returns a fresh record at StepStart.
func New(jobDescription, resumeText string) Record {
	return Record{
		JobDescription:     jobDescription,
		ResumeText:         resumeText,
		ParsedJob:          ParsedJob{RequiredSkills: []string{}, Responsibilities: []string{}},
		MatchedSkills:      []string{},
		MissingSkills:      []string{},
		InterviewQuestions: []string{},
		CurrentStep:        StepStart,
	}
}

// Clone returns a deep copy so a stage can mutate the result without
// aliasing the backing arrays of the record it was given.
func (r Record) Clone() Record {
	c := r
	c.ParsedJob.RequiredSkills = cloneStrings(r.ParsedJob.RequiredSkills)
	c.ParsedJob.Responsibilities = cloneStrings(r.ParsedJob.Responsibilities)
	c.MatchedSkills = cloneStrings(r.MatchedSkills)
	c.MissingSkills = cloneStrings(r.MissingSkills)
	c.InterviewQuestions = cloneStrings(r.InterviewQuestions)
	c.Fallbacks = slices.Clone(r.Fallbacks)
	return c
}

// TransitionError reports an attempt to advance a record out of order.
type TransitionError struct {
	From Step
	To   Step
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid step transition %s -> %s", e.From, e.To)
}

// CanAdvance reports whether to is the immediate successor of the current step.
func (r Record) CanAdvance(to Step) error {
	next, ok := r.CurrentStep.Next()
	if !ok || next != to {
		return &TransitionError{From: r.CurrentStep, To: to}
	}
	return nil
}

// Advance moves the record to step to. Only the immediate successor of the
// current step is accepted, which keeps earlier stage outputs write-once.
func (r *Record) Advance(to Step) error {
	if err := r.CanAdvance(to); err != nil {
		return err
	}
	r.CurrentStep = to
	return nil
}

// MarkFallback records that stage fell back to its default payload.
func (r *Record) MarkFallback(stage string) {
	if !slices.Contains(r.Fallbacks, stage) {
		r.Fallbacks = append(r.Fallbacks, stage)
	}
}

// Dedupe removes blank entries and case-insensitive duplicates, keeping the
// first occurrence and the original order. The result is never nil.
func Dedupe(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, it := range items {
		v := strings.TrimSpace(it)
		if v == "" {
			continue
		}
		k := strings.ToLower(v)
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, v)
	}
	return out
}

func cloneStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return slices.Clone(s)
}
