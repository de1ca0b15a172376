package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/api"
	"github.com/kalambet/jobpilot/internal/config"
	"github.com/kalambet/jobpilot/internal/extract"
	"github.com/kalambet/jobpilot/internal/ingest"
	"github.com/kalambet/jobpilot/internal/pipeline"
	"github.com/kalambet/jobpilot/internal/storage"
)

// --- ingest ---

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Index a resume for retrieval",
	Long: `Index a resume for retrieval. The new resume replaces the previous one.

Examples:
  jobpilot ingest --file ./resume.pdf
  jobpilot ingest --text "Senior Go engineer with 8 years of experience..."`,
	RunE: func(cmd *cobra.Command, args []string) error {
		text, _ := cmd.Flags().GetString("text")
		file, _ := cmd.Flags().GetString("file")
		if (text == "") == (file == "") {
			return errors.New("exactly one of --text or --file is required")
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		if file != "" {
			data, err := os.ReadFile(file)
			if err != nil {
				return fmt.Errorf("reading file: %w", err)
			}
			resp, err := client.upload(ctx, "/upload-resume", file, data)
			if err != nil {
				return err
			}
			var result api.UploadResponse
			if err := decodeJSON(resp, &result); err != nil {
				return err
			}
			printSuccess("%s", result.Message)
			printStatus("File", "%s", result.Filename)
			printStatus("Characters", "%d", result.CharactersExtracted)
			return nil
		}

		resp, err := client.post(ctx, "/ingest-resume", api.IngestRequest{ResumeText: text})
		if err != nil {
			return err
		}
		var result api.IngestResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		printSuccess("%s", result.Message)
		return nil
	},
}

func init() {
	ingestCmd.Flags().String("text", "", "resume text to ingest")
	ingestCmd.Flags().String("file", "", "resume file to upload (.pdf, .docx or .txt)")
}

// --- analyze ---

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Analyze a job description against your resume",
	Long: `Run the full analysis: parse the job description, match skills, write a
cover letter and recruiter email, and prepare interview questions.

Examples:
  jobpilot analyze --jd ./posting.txt
  jobpilot analyze --jd-url https://example.com/jobs/123 --resume ./resume.pdf
  jobpilot analyze --jd ./posting.txt --async
  jobpilot analyze --jd ./posting.txt --local`,
	RunE: func(cmd *cobra.Command, args []string) error {
		jdFile, _ := cmd.Flags().GetString("jd")
		jdURL, _ := cmd.Flags().GetString("jd-url")
		resumeFile, _ := cmd.Flags().GetString("resume")
		local, _ := cmd.Flags().GetBool("local")
		async, _ := cmd.Flags().GetBool("async")
		asJSON, _ := cmd.Flags().GetBool("json")
		if local && async {
			return errors.New("--local and --async cannot be combined")
		}

		ctx := cmd.Context()
		jd, err := readJobDescription(ctx, &http.Client{Timeout: extract.FetchTimeout}, jdFile, jdURL)
		if err != nil {
			return err
		}
		var resumeText string
		if resumeFile != "" {
			if resumeText, err = readResume(resumeFile); err != nil {
				return err
			}
		}

		out := cmd.OutOrStdout()
		if local {
			return analyzeLocal(ctx, jd, resumeFile, resumeText, out, asJSON)
		}

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		req := api.AnalyzeRequest{JobDescription: jd, ResumeText: resumeText}

		if async {
			resp, err := client.post(ctx, "/analyses", req)
			if err != nil {
				return err
			}
			var queued map[string]string
			if err := decodeJSON(resp, &queued); err != nil {
				return err
			}
			printSuccess("Queued analysis %s", queued["id"])
			printStep("Check progress with: jobpilot analyses show %s", queued["id"])
			return nil
		}

		printStep("Analyzing job description, this can take a few minutes...")
		resp, err := client.post(ctx, "/analyze", req)
		if err != nil {
			return err
		}
		var result api.AnalyzeResponse
		if err := decodeJSON(resp, &result); err != nil {
			return err
		}
		return render(out, result, asJSON)
	},
}

func init() {
	analyzeCmd.Flags().String("jd", "", "job description file (.txt, .pdf or .docx)")
	analyzeCmd.Flags().String("jd-url", "", "URL of a job posting to fetch")
	analyzeCmd.Flags().String("resume", "", "resume file to ingest before analyzing")
	analyzeCmd.Flags().Bool("local", false, "run the pipeline in this process instead of the server")
	analyzeCmd.Flags().Bool("async", false, "queue the analysis on the server and return immediately")
	analyzeCmd.Flags().Bool("json", false, "print the result as JSON")
}

// readJobDescription loads the posting from exactly one of file or rawURL.
// Files with a known document extension go through text extraction; other
// files are read as plain text.
func readJobDescription(ctx context.Context, client *http.Client, file, rawURL string) (string, error) {
	if (file == "") == (rawURL == "") {
		return "", errors.New("exactly one of --jd or --jd-url is required")
	}

	var jd string
	if rawURL != "" {
		text, err := extract.FetchJobPosting(ctx, client, rawURL)
		if err != nil {
			return "", err
		}
		jd = text
	} else {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("reading job description: %w", err)
		}
		jd = string(data)
		if _, err := extract.Format(file); err == nil {
			if jd, err = extract.Text(file, data); err != nil {
				return "", fmt.Errorf("reading job description: %w", err)
			}
		}
	}

	if err := pipeline.ValidateInput(jd); err != nil {
		return "", err
	}
	return jd, nil
}

func readResume(file string) (string, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return "", fmt.Errorf("reading resume: %w", err)
	}
	text, err := extract.Text(file, data)
	if err != nil {
		return "", fmt.Errorf("reading resume: %w", err)
	}
	if err := ingest.ValidateResume(text); err != nil {
		return "", err
	}
	return text, nil
}

// analyzeLocal builds the pipeline in-process and stores the result in the
// local database, the same way the server does.
func analyzeLocal(ctx context.Context, jd, resumeFile, resumeText string, w io.Writer, asJSON bool) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	setupLogging(cfg.Log.Level)

	svc, err := newServices(ctx, cfg, os.Stderr, pipeline.WithProgress(reportProgress))
	if err != nil {
		return err
	}
	defer svc.Close()

	if resumeText != "" {
		res, err := svc.ingester.Ingest(ctx, filepath.Base(resumeFile), resumeText)
		if err != nil {
			return fmt.Errorf("ingesting resume: %w", err)
		}
		printSuccess("%s", res.Message())
	}

	id, rec, err := api.AnalyzeAndSave(ctx, svc.store, svc.pipeline, jd, resumeText)
	if err != nil {
		return fmt.Errorf("analysis failed: %w", err)
	}
	return render(w, api.NewAnalyzeResponse(id, rec), asJSON)
}

func reportProgress(ev pipeline.Event) {
	printStep("[%d/%d] %s (%s)", ev.Index, ev.Total, ev.Stage, ev.Duration.Round(time.Millisecond))
	if ev.Fallback {
		printWarning("%s returned an unusable response; defaults were used", ev.Stage)
	}
}

func render(w io.Writer, a api.AnalyzeResponse, asJSON bool) error {
	if asJSON {
		return writeIndented(w, a)
	}
	writeAnalysis(w, a)
	return nil
}

func writeIndented(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// --- analyses ---

var analysesCmd = &cobra.Command{
	Use:   "analyses",
	Short: "Browse stored analyses",
}

var analysesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recent analyses",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), fmt.Sprintf("/analyses?limit=%d", limit))
		if err != nil {
			return err
		}
		var analyses []api.AnalysisSummary
		if err := decodeJSON(resp, &analyses); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(analyses) == 0 {
			fmt.Fprintln(out, "No analyses found.")
			return nil
		}
		for _, a := range analyses {
			fmt.Fprintln(out, summaryLine(a))
		}
		return nil
	},
}

var analysesShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show a stored analysis",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		asJSON, _ := cmd.Flags().GetBool("json")

		client, err := newAPIClient()
		if err != nil {
			return err
		}
		resp, err := client.get(cmd.Context(), "/analyses/"+url.PathEscape(args[0]))
		if err != nil {
			return err
		}
		var detail api.AnalysisDetail
		if err := decodeJSON(resp, &detail); err != nil {
			return err
		}
		return showDetail(cmd.OutOrStdout(), detail, asJSON)
	},
}

func init() {
	analysesListCmd.Flags().Int("limit", 20, "maximum number of analyses to list")
	analysesShowCmd.Flags().Bool("json", false, "print the stored record as JSON")
	analysesCmd.AddCommand(analysesListCmd)
	analysesCmd.AddCommand(analysesShowCmd)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func summaryLine(a api.AnalysisSummary) string {
	label := a.JobTitle
	if a.Company != "" {
		label += " @ " + a.Company
	}
	if a.Error != "" {
		label = a.Error
	}
	score := "  -"
	if a.Status == storage.AnalysisCompleted {
		score = fmt.Sprintf("%3d", a.MatchScore)
	}
	return fmt.Sprintf("%s  %-9s  %s  %s  %s",
		colorize(colorCyan, shortID(a.ID)),
		a.Status,
		score,
		a.CreatedAt.Local().Format("2006-01-02 15:04"),
		label,
	)
}

func showDetail(w io.Writer, d api.AnalysisDetail, asJSON bool) error {
	if asJSON {
		return writeIndented(w, d)
	}
	if d.Status != storage.AnalysisCompleted || len(d.Record) == 0 {
		fmt.Fprintf(w, "Analysis %s: %s\n", d.ID, d.Status)
		if d.Error != "" {
			fmt.Fprintf(w, "Error: %s\n", d.Error)
		}
		return nil
	}
	var rec analysis.Record
	if err := json.Unmarshal(d.Record, &rec); err != nil {
		return fmt.Errorf("decoding analysis record: %w", err)
	}
	writeAnalysis(w, api.NewAnalyzeResponse(d.ID, rec))
	return nil
}

// --- recall ---

var recallCmd = &cobra.Command{
	Use:   "recall <query>",
	Short: "Search your resume for passages relevant to a query",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		query := strings.Join(args, " ")
		limit, _ := cmd.Flags().GetInt("limit")

		client, err := newAPIClient()
		if err != nil {
			return err
		}

		params := url.Values{"q": {query}, "limit": {fmt.Sprint(limit)}}
		resp, err := client.get(cmd.Context(), "/recall?"+params.Encode())
		if err != nil {
			return err
		}
		var results []api.ChunkResult
		if err := decodeJSON(resp, &results); err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if len(results) == 0 {
			fmt.Fprintln(out, "No results found.")
			return nil
		}
		for i, r := range results {
			fmt.Fprintf(out, "\n%s [score: %.3f]\n", colorize(colorBold, fmt.Sprintf("Result %d", i+1)), r.Score)
			text := r.Text
			if runes := []rune(text); len(runes) > 500 {
				text = string(runes[:500]) + "..."
			}
			fmt.Fprintf(out, "  %s\n", text)
		}
		return nil
	},
}

func init() {
	recallCmd.Flags().Int("limit", 5, "maximum number of results")
}

// --- config ---

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, k := range config.ShowAll(cfg) {
			fmt.Fprintf(out, "  %s = %s\n", colorize(colorBold, k.Key), k.Value)
		}
		return nil
	},
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		key, value := args[0], args[1]
		if err := config.SetKey(key, value); err != nil {
			return fmt.Errorf("%w (valid keys: %s)", err, strings.Join(config.ValidKeys(), ", "))
		}
		printSuccess("Set %s = %s", key, value)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configSetCmd)
}
