// Package composer builds the prompts for each pipeline stage from the
// analysis record and retrieved resume context, keeping injected context
// within a token budget.
package composer

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/engine"
)

const defaultMaxContextTokens = 3000

// noContext is substituted when retrieval returns nothing so the model falls
// back to placeholders instead of inventing facts.
const noContext = "(no resume information available)"

// Composer assembles stage prompts.
type Composer struct {
	MaxContextTokens int
}

// New creates a Composer with the given token budget for injected resume
// context. If maxContextTokens <= 0, the default (3000) is used.
func New(maxContextTokens int) *Composer {
	if maxContextTokens <= 0 {
		maxContextTokens = defaultMaxContextTokens
	}
	return &Composer{MaxContextTokens: maxContextTokens}
}

const parseJDSystem = `You are a job description parser. Extract key information and return ONLY valid JSON.
Return this exact structure:
{
  "job_title": "...",
  "company": "...",
  "skills_required": ["skill1", "skill2"],
  "responsibilities": ["resp1", "resp2"],
  "experience_years": "...",
  "location": "..."
}
Use "Unknown" for anything the description does not state.`

// ParseJD builds the extraction prompt for a raw job description.
func (c *Composer) ParseJD(jobDescription string) engine.Prompt {
	return engine.Prompt{
		System: parseJDSystem,
		User:   "Parse this job description:\n\n" + jobDescription,
	}
}

const skillGapSystem = `You are a technical recruiter doing a skills gap analysis.
Compare the required skills against the candidate's resume and return ONLY valid JSON:
{
  "matched_skills": ["skill1", "skill2"],
  "missing_skills": ["skill3"],
  "match_score": 85,
  "summary": "Brief 1-2 sentence assessment"
}
match_score is an integer from 0 to 100 based on overall fit.
Use the skill names exactly as given in the required list.`

// SkillGap builds the comparison prompt for the required skills against
// retrieved resume passages.
func (c *Composer) SkillGap(requiredSkills []string, resumeContext string) engine.Prompt {
	return engine.Prompt{
		System: skillGapSystem,
		User: fmt.Sprintf("Required skills: %s\n\nCandidate's resume (relevant sections):\n%s",
			jsonList(requiredSkills), c.fit(resumeContext, c.MaxContextTokens)),
	}
}

const coverLetterSystem = `You are an expert career coach writing cover letters.

Extract the candidate's full name, address, phone and email from the contact info provided
and use them to format the letter:

[Candidate Full Name]
[Address]
[Phone] | [Email]

[Date]

[Hiring Manager / Company]

Dear Hiring Manager,

...letter body...

Sincerely,
[Candidate Full Name]

Rules:
- Keep it under 350 words
- Focus on matched skills and specific achievements
- Do NOT use generic phrases like "I am excited to apply"
- Be confident and specific
- Address the missing skills tactfully, without apologising
- If contact info is missing, leave a placeholder like [Your Name]`

// CoverLetter builds the free-text cover letter prompt. Contact passages get
// a quarter of the context budget, experience passages the rest.
func (c *Composer) CoverLetter(r analysis.Record, experience, contact string) engine.Prompt {
	contactBudget := c.MaxContextTokens / 4
	contact = c.fit(contact, contactBudget)
	experience = c.fit(experience, c.MaxContextTokens-EstimateTokens(contact))

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job: %s at %s\n", r.ParsedJob.Title, r.ParsedJob.Company)
	fmt.Fprintf(&sb, "Matched Skills: %s\n", strings.Join(r.MatchedSkills, ", "))
	fmt.Fprintf(&sb, "Skills to address carefully: %s\n\n", strings.Join(r.MissingSkills, ", "))
	fmt.Fprintf(&sb, "Candidate contact info (from resume):\n%s\n\n", contact)
	fmt.Fprintf(&sb, "Relevant resume experience:\n%s\n\n", experience)
	sb.WriteString("Write the cover letter:")

	return engine.Prompt{System: coverLetterSystem, User: sb.String()}
}

const emailSystem = `Write a concise, professional job application email. Under 150 words.

Format:
Subject: Application for [Job Title] - [Candidate Name]

Dear Hiring Team,

...body...

Best regards,
[Candidate Full Name]
[Phone] | [Email]

Extract and use the real candidate name, phone and email from the contact info provided.
If not found, use placeholders like [Your Name].`

// EmailTopSkills is how many matched skills the email mentions.
const EmailTopSkills = 5

// Email builds the application email prompt.
func (c *Composer) Email(r analysis.Record, contact string) engine.Prompt {
	top := r.MatchedSkills[:min(EmailTopSkills, len(r.MatchedSkills))]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Job: %s at %s\n", r.ParsedJob.Title, r.ParsedJob.Company)
	fmt.Fprintf(&sb, "Match Score: %d/100\n", r.MatchScore)
	fmt.Fprintf(&sb, "Top matched skills: %s\n\n", strings.Join(top, ", "))
	fmt.Fprintf(&sb, "Candidate contact info:\n%s\n\n", c.fit(contact, c.MaxContextTokens))
	sb.WriteString("Generate the email:")

	return engine.Prompt{System: emailSystem, User: sb.String()}
}

const interviewSystem = `You are a senior technical interviewer.
Generate interview preparation for this role. Return ONLY valid JSON:
{
  "technical_questions": ["q1", "q2", "q3", "q4", "q5"],
  "behavioral_questions": ["q1", "q2", "q3"],
  "prep_tips": "2-3 specific tips based on the role and skill gaps"
}
Give exactly 5 technical and 3 behavioral questions.`

const (
	InterviewResponsibilities = 4
	InterviewMissingSkills    = 5
)

// InterviewPrep builds the interview preparation prompt from the parsed
// responsibilities and the skill gaps. It uses no resume context.
func (c *Composer) InterviewPrep(r analysis.Record) engine.Prompt {
	resp := r.ParsedJob.Responsibilities[:min(InterviewResponsibilities, len(r.ParsedJob.Responsibilities))]
	missing := r.MissingSkills[:min(InterviewMissingSkills, len(r.MissingSkills))]

	var sb strings.Builder
	fmt.Fprintf(&sb, "Role: %s at %s\n", r.ParsedJob.Title, r.ParsedJob.Company)
	fmt.Fprintf(&sb, "Key Responsibilities: %s\n", jsonList(resp))
	fmt.Fprintf(&sb, "Skill Gaps to prepare for: %s\n\n", strings.Join(missing, ", "))
	sb.WriteString("Generate interview prep:")

	return engine.Prompt{System: interviewSystem, User: sb.String()}
}

// fit keeps whole passages, in retrieval order, while they fit the budget.
// A first passage larger than the budget is cut to size.
func (c *Composer) fit(context string, budget int) string {
	context = strings.TrimSpace(context)
	if context == "" {
		return noContext
	}
	if budget <= 0 {
		budget = 1
	}
	if EstimateTokens(context) <= budget {
		return context
	}

	var kept []string
	remaining := budget
	for _, p := range strings.Split(context, "\n\n") {
		tokens := EstimateTokens(p) + 1
		if tokens > remaining {
			break
		}
		kept = append(kept, p)
		remaining -= tokens
	}
	if len(kept) == 0 {
		n := min(len(context), budget*4)
		for n > 0 && n < len(context) && !utf8.RuneStart(context[n]) {
			n--
		}
		return context[:n]
	}
	return strings.Join(kept, "\n\n")
}

// EstimateTokens provides a rough token count using 4 chars per token heuristic.
func EstimateTokens(text string) int {
	return (len(text) + 3) / 4
}

func jsonList(items []string) string {
	if items == nil {
		items = []string{}
	}
	b, _ := json.Marshal(items)
	return string(b)
}
