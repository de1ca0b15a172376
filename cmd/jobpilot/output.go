package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/kalambet/jobpilot/internal/api"
)

const (
	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorBold   = "\033[1m"
)

func colorize(color, text string) string {
	if noColor {
		return text
	}
	return color + text + colorReset
}

func printSuccess(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorGreen, "✓ "+fmt.Sprintf(format, args...)))
}

func printError(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorRed, "✗ "+fmt.Sprintf(format, args...)))
}

func printWarning(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorYellow, "⚠ "+fmt.Sprintf(format, args...)))
}

func printStatus(label string, format string, args ...any) {
	l := colorize(colorBold, label+":")
	fmt.Fprintf(os.Stderr, "  %s %s\n", l, fmt.Sprintf(format, args...))
}

func printStep(format string, args ...any) {
	fmt.Fprintln(os.Stderr, colorize(colorCyan, "→ "+fmt.Sprintf(format, args...)))
}

// scoreColor picks green for strong matches and red for weak ones.
func scoreColor(score int) string {
	switch {
	case score >= 70:
		return colorGreen
	case score >= 40:
		return colorYellow
	default:
		return colorRed
	}
}

func writeSection(w io.Writer, title, body string) {
	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, title))
	fmt.Fprintln(w, strings.TrimSpace(body))
}

func writeList(w io.Writer, title string, items []string) {
	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, title))
	if len(items) == 0 {
		fmt.Fprintln(w, "  (none)")
		return
	}
	for _, it := range items {
		fmt.Fprintf(w, "  - %s\n", it)
	}
}

// writeAnalysis renders a finished analysis for the terminal.
func writeAnalysis(w io.Writer, a api.AnalyzeResponse) {
	title := a.JobTitle
	if title == "" {
		title = "Unknown role"
	}
	if a.Company != "" {
		title += " at " + a.Company
	}
	fmt.Fprintf(w, "%s\n", colorize(colorBold, title))
	if a.AnalysisID != "" {
		fmt.Fprintf(w, "Analysis: %s\n", a.AnalysisID)
	}
	fmt.Fprintf(w, "Match score: %s\n", colorize(scoreColor(a.MatchScore), fmt.Sprintf("%d/100", a.MatchScore)))

	writeList(w, "Matched skills", a.MatchedSkills)
	writeList(w, "Missing skills", a.MissingSkills)
	writeSection(w, "Cover letter", a.CoverLetter)
	writeSection(w, "Email draft", a.EmailDraft)

	fmt.Fprintf(w, "\n%s\n", colorize(colorBold, "Interview questions"))
	for i, q := range a.InterviewQuestions {
		fmt.Fprintf(w, "  %d. %s\n", i+1, q)
	}
	writeSection(w, "Preparation tips", a.PrepTips)
}
