package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/api"
	"github.com/kalambet/jobpilot/internal/ingest"
	"github.com/kalambet/jobpilot/internal/pipeline"
)

type recordedRequest struct {
	Method      string
	Path        string
	Body        string
	Auth        string
	ContentType string
}

type testServer struct {
	server   *httptest.Server
	requests []recordedRequest
}

func newTestServer(t *testing.T, responses map[string]string) *testServer {
	t.Helper()
	ts := &testServer{}

	ts.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body bytes.Buffer
		body.ReadFrom(r.Body)

		ts.requests = append(ts.requests, recordedRequest{
			Method:      r.Method,
			Path:        r.URL.RequestURI(),
			Body:        body.String(),
			Auth:        r.Header.Get("Authorization"),
			ContentType: r.Header.Get("Content-Type"),
		})

		key := r.Method + " " + r.URL.Path
		if resp, ok := responses[key]; ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(resp))
			return
		}

		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error":{"message":"not found","type":"not_found"}}`))
	}))

	t.Cleanup(ts.server.Close)
	return ts
}

func (ts *testServer) client() *apiClient {
	return &apiClient{
		baseURL:    ts.server.URL,
		token:      "test-token",
		httpClient: ts.server.Client(),
	}
}

// useServer points every command at ts for the duration of the test.
func (ts *testServer) useServer(t *testing.T) {
	t.Helper()
	old := newAPIClient
	newAPIClient = func() (*apiClient, error) { return ts.client(), nil }
	t.Cleanup(func() { newAPIClient = old })
}

func (ts *testServer) last(t *testing.T) recordedRequest {
	t.Helper()
	if len(ts.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return ts.requests[len(ts.requests)-1]
}

func resetFlags(cmd *cobra.Command) {
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		f.Value.Set(f.DefValue)
		f.Changed = false
	})
	for _, c := range cmd.Commands() {
		resetFlags(c)
	}
}

// execute runs the root command with args and returns what it wrote to stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	oldColor := noColor
	t.Cleanup(func() {
		noColor = oldColor
		rootCmd.SetArgs(nil)
		rootCmd.SetOut(nil)
		resetFlags(rootCmd)
	})
	resetFlags(rootCmd)

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(append([]string{"--no-color"}, args...))
	err := rootCmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	return path
}

var ctx = context.Background()

const testResume = "Jane Doe\nSenior Go engineer. Eight years building distributed systems with Kubernetes and PostgreSQL."

const testAnalysis = `{
	"analysis_id": "a1b2c3d4-0000-0000-0000-000000000000",
	"job_title": "Backend Engineer",
	"company": "Acme",
	"match_score": 80,
	"matched_skills": ["Go", "PostgreSQL"],
	"missing_skills": ["Rust"],
	"cover_letter": "Dear Hiring Manager,",
	"email_draft": "Subject: Backend Engineer",
	"interview_questions": ["Tell me about a system you scaled."],
	"prep_tips": "Review Acme's product."
}`

func TestIngestCommand_Text(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /ingest-resume": `{"message":"Resume ingested: 2 chunks stored.","chunks":2}`,
	})
	ts.useServer(t)

	if _, err := execute(t, "ingest", "--text", testResume); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	req := ts.last(t)
	if req.Method != "POST" || req.Path != "/ingest-resume" {
		t.Errorf("request = %s %s, want POST /ingest-resume", req.Method, req.Path)
	}
	if req.Auth != "Bearer test-token" {
		t.Errorf("auth = %q", req.Auth)
	}
	var body api.IngestRequest
	if err := json.Unmarshal([]byte(req.Body), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if body.ResumeText != testResume {
		t.Errorf("resume_text = %q", body.ResumeText)
	}
}

func TestIngestCommand_File(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /upload-resume": `{"message":"Resume ingested: 2 chunks stored.","filename":"resume.txt","characters_extracted":96,"preview":"Jane..."}`,
	})
	ts.useServer(t)
	path := writeFile(t, "resume.txt", testResume)

	if _, err := execute(t, "ingest", "--file", path); err != nil {
		t.Fatalf("ingest: %v", err)
	}

	req := ts.last(t)
	if req.Path != "/upload-resume" {
		t.Errorf("path = %q, want /upload-resume", req.Path)
	}
	if !strings.HasPrefix(req.ContentType, "multipart/form-data") {
		t.Errorf("content type = %q, want multipart/form-data", req.ContentType)
	}
	if !strings.Contains(req.Body, `filename="resume.txt"`) || !strings.Contains(req.Body, "Senior Go engineer") {
		t.Errorf("multipart body missing file part: %q", req.Body)
	}
}

func TestIngestCommand_MissingArgs(t *testing.T) {
	_, err := execute(t, "ingest")
	if err == nil {
		t.Fatal("expected error for missing args")
	}
	if !strings.Contains(err.Error(), "required") {
		t.Errorf("error = %q, want it to mention 'required'", err.Error())
	}
}

func TestAnalyzeCommand_Remote(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /analyze": testAnalysis,
	})
	ts.useServer(t)
	jd := writeFile(t, "posting.md", "Backend Engineer at Acme. Go and PostgreSQL required.")

	out, err := execute(t, "analyze", "--jd", jd)
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var body api.AnalyzeRequest
	if err := json.Unmarshal([]byte(ts.last(t).Body), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !strings.Contains(body.JobDescription, "Backend Engineer at Acme") {
		t.Errorf("job_description = %q", body.JobDescription)
	}
	if body.ResumeText != "" {
		t.Errorf("resume_text = %q, want empty", body.ResumeText)
	}

	for _, want := range []string{
		"Backend Engineer at Acme",
		"Match score: 80/100",
		"  - PostgreSQL",
		"  - Rust",
		"Dear Hiring Manager,",
		"  1. Tell me about a system you scaled.",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalyzeCommand_WithResume(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /analyze": testAnalysis,
	})
	ts.useServer(t)
	jd := writeFile(t, "posting.md", "Backend Engineer at Acme.")
	resume := writeFile(t, "resume.txt", testResume)

	if _, err := execute(t, "analyze", "--jd", jd, "--resume", resume, "--json"); err != nil {
		t.Fatalf("analyze: %v", err)
	}

	var body api.AnalyzeRequest
	if err := json.Unmarshal([]byte(ts.last(t).Body), &body); err != nil {
		t.Fatalf("decoding body: %v", err)
	}
	if !strings.Contains(body.ResumeText, "Senior Go engineer") {
		t.Errorf("resume_text = %q", body.ResumeText)
	}
}

func TestAnalyzeCommand_JSON(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /analyze": testAnalysis,
	})
	ts.useServer(t)
	jd := writeFile(t, "posting.md", "Backend Engineer at Acme.")

	out, err := execute(t, "analyze", "--jd", jd, "--json")
	if err != nil {
		t.Fatalf("analyze: %v", err)
	}
	var got api.AnalyzeResponse
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	if got.MatchScore != 80 || got.Company != "Acme" {
		t.Errorf("got %+v", got)
	}
}

func TestAnalyzeCommand_Async(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"POST /analyses": `{"id":"an-1","status":"queued"}`,
	})
	ts.useServer(t)
	jd := writeFile(t, "posting.md", "Backend Engineer at Acme.")

	if _, err := execute(t, "analyze", "--jd", jd, "--async"); err != nil {
		t.Fatalf("analyze: %v", err)
	}
	if req := ts.last(t); req.Method != "POST" || req.Path != "/analyses" {
		t.Errorf("request = %s %s, want POST /analyses", req.Method, req.Path)
	}
}

func TestAnalyzeCommand_ServerError(t *testing.T) {
	ts := newTestServer(t, nil)
	ts.useServer(t)
	jd := writeFile(t, "posting.md", "Backend Engineer at Acme.")

	_, err := execute(t, "analyze", "--jd", jd)
	if err == nil {
		t.Fatal("expected error for 404 response")
	}
	if !strings.Contains(err.Error(), "not found") {
		t.Errorf("error = %q, want server message", err)
	}
}

func TestAnalyzeCommand_FlagConflicts(t *testing.T) {
	jd := writeFile(t, "posting.md", "Backend Engineer at Acme.")

	tests := []struct {
		name string
		args []string
		want string
	}{
		{"no source", []string{"analyze"}, "exactly one of --jd or --jd-url"},
		{"two sources", []string{"analyze", "--jd", jd, "--jd-url", "https://example.com/job"}, "exactly one of --jd or --jd-url"},
		{"local and async", []string{"analyze", "--jd", jd, "--local", "--async"}, "cannot be combined"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := execute(t, tt.args...)
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error = %q, want it to contain %q", err, tt.want)
			}
		})
	}
}

func TestReadJobDescription_URL(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Write([]byte(`<html><body><nav>Home | Careers</nav><h1>Backend Engineer</h1><p>Acme needs Go experience.</p></body></html>`))
	}))
	defer srv.Close()

	jd, err := readJobDescription(ctx, srv.Client(), "", srv.URL)
	if err != nil {
		t.Fatalf("readJobDescription: %v", err)
	}
	if !strings.Contains(jd, "Backend Engineer") || !strings.Contains(jd, "Acme needs Go experience.") {
		t.Errorf("jd = %q", jd)
	}
	if strings.Contains(jd, "Careers") {
		t.Errorf("navigation should be stripped, got %q", jd)
	}
}

func TestReadJobDescription_Blank(t *testing.T) {
	path := writeFile(t, "posting.md", "   \n\t ")
	_, err := readJobDescription(ctx, nil, path, "")
	if !errors.Is(err, pipeline.ErrEmptyJobDescription) {
		t.Errorf("err = %v, want ErrEmptyJobDescription", err)
	}
}

func TestReadResume(t *testing.T) {
	text, err := readResume(writeFile(t, "resume.txt", testResume))
	if err != nil {
		t.Fatalf("readResume: %v", err)
	}
	if !strings.Contains(text, "Jane Doe") {
		t.Errorf("text = %q", text)
	}

	_, err = readResume(writeFile(t, "short.txt", "Jane Doe, Go"))
	if !errors.Is(err, ingest.ErrResumeTooShort) {
		t.Errorf("err = %v, want ErrResumeTooShort", err)
	}
}

func TestAnalysesList(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /analyses": `[
			{"id":"a1b2c3d4-1111","status":"completed","job_title":"Backend Engineer","company":"Acme","match_score":80,"created_at":"2026-01-02T10:00:00Z"},
			{"id":"e5f6a7b8-2222","status":"failed","match_score":0,"error":"parse_job failed","created_at":"2026-01-02T11:00:00Z"}
		]`,
	})
	ts.useServer(t)

	out, err := execute(t, "analyses", "list", "--limit", "5")
	if err != nil {
		t.Fatalf("analyses list: %v", err)
	}
	if got := ts.last(t).Path; got != "/analyses?limit=5" {
		t.Errorf("path = %q", got)
	}
	for _, want := range []string{"a1b2c3d4", "Backend Engineer @ Acme", " 80", "e5f6a7b8", "parse_job failed"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestAnalysesList_Empty(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /analyses": `[]`})
	ts.useServer(t)

	out, err := execute(t, "analyses", "list")
	if err != nil {
		t.Fatalf("analyses list: %v", err)
	}
	if !strings.Contains(out, "No analyses found.") {
		t.Errorf("output = %q", out)
	}
}

func TestAnalysesShow(t *testing.T) {
	rec := analysis.New("Backend Engineer at Acme.", "")
	rec.ParsedJob = analysis.ParsedJob{Title: "Backend Engineer", Company: "Acme"}
	rec.MatchScore = 72
	rec.CoverLetter = "Dear Acme team,"
	rec.InterviewQuestions = []string{"Why Acme?"}
	recJSON, _ := json.Marshal(rec)
	detail, _ := json.Marshal(api.AnalysisDetail{
		AnalysisSummary: api.AnalysisSummary{ID: "an-1", Status: "completed", MatchScore: 72},
		Record:          recJSON,
	})

	ts := newTestServer(t, map[string]string{"GET /analyses/an-1": string(detail)})
	ts.useServer(t)

	out, err := execute(t, "analyses", "show", "an-1")
	if err != nil {
		t.Fatalf("analyses show: %v", err)
	}
	for _, want := range []string{"Backend Engineer at Acme", "Match score: 72/100", "Dear Acme team,", "1. Why Acme?"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestShowDetail_NotCompleted(t *testing.T) {
	var buf bytes.Buffer
	err := showDetail(&buf, api.AnalysisDetail{
		AnalysisSummary: api.AnalysisSummary{ID: "an-2", Status: "failed", Error: "generator timed out"},
	}, false)
	if err != nil {
		t.Fatalf("showDetail: %v", err)
	}
	if !strings.Contains(buf.String(), "an-2: failed") || !strings.Contains(buf.String(), "generator timed out") {
		t.Errorf("output = %q", buf.String())
	}
}

func TestRecallCommand(t *testing.T) {
	ts := newTestServer(t, map[string]string{
		"GET /recall": `[{"id":"c1","source_id":"r1","source_type":"resume","chunk_index":0,"text":"Built Go services","score":0.91}]`,
	})
	ts.useServer(t)

	out, err := execute(t, "recall", "go", "&", "rust")
	if err != nil {
		t.Fatalf("recall: %v", err)
	}
	if got := ts.last(t).Path; !strings.Contains(got, "q=go+%26+rust") || !strings.Contains(got, "limit=5") {
		t.Errorf("path = %q, want encoded query and default limit", got)
	}
	if !strings.Contains(out, "[score: 0.910]") || !strings.Contains(out, "Built Go services") {
		t.Errorf("output = %q", out)
	}
}

func TestNoColorFlag(t *testing.T) {
	old := noColor
	defer func() { noColor = old }()

	noColor = true
	result := colorize(colorGreen, "test message")
	if result != "test message" {
		t.Errorf("result = %q, want %q", result, "test message")
	}

	noColor = false
	result = colorize(colorGreen, "test message")
	if !strings.Contains(result, "\033[") {
		t.Errorf("colorize with noColor=false should contain ANSI codes, got %q", result)
	}
}

func TestAPIClientAuth(t *testing.T) {
	ts := newTestServer(t, map[string]string{"GET /health": `{"status":"ok"}`})

	c := ts.client()
	resp, err := c.get(ctx, "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := ts.last(t).Auth; got != "Bearer test-token" {
		t.Errorf("auth = %q", got)
	}

	c.token = ""
	resp, err = c.get(ctx, "/health")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if got := ts.last(t).Auth; got != "" {
		t.Errorf("auth without token = %q, want none", got)
	}
}

func TestDecodeJSON_ErrorResponse(t *testing.T) {
	tests := []struct {
		name string
		body string
		want string
	}{
		{"envelope", `{"error":{"message":"job_description is required","type":"invalid_request_error"}}`, "server returned 400: job_description is required"},
		{"plain", `bad request`, "server returned 400: bad request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rec.WriteHeader(http.StatusBadRequest)
			rec.WriteString(tt.body)

			var v map[string]any
			err := decodeJSON(rec.Result(), &v)
			if err == nil {
				t.Fatal("expected error")
			}
			if err.Error() != tt.want {
				t.Errorf("error = %q, want %q", err, tt.want)
			}
		})
	}
}

func TestCountLabel(t *testing.T) {
	tests := []struct {
		count, limit int
		want         string
	}{
		{0, 100, "0"},
		{42, 100, "42"},
		{100, 100, "100+"},
	}
	for _, tt := range tests {
		if got := countLabel(tt.count, tt.limit); got != tt.want {
			t.Errorf("countLabel(%d, %d) = %q, want %q", tt.count, tt.limit, got, tt.want)
		}
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("a1b2c3d4-e5f6"); got != "a1b2c3d4" {
		t.Errorf("shortID = %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("shortID = %q", got)
	}
}

func TestPIDFile(t *testing.T) {
	pf := pidFileIn(filepath.Join(t.TempDir(), "data"))
	if err := pf.write(); err != nil {
		t.Fatalf("write: %v", err)
	}
	pid, err := pf.read()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if pid != os.Getpid() {
		t.Errorf("pid = %d, want %d", pid, os.Getpid())
	}
	pf.remove()
	if _, err := pf.read(); err == nil {
		t.Error("expected error after removal")
	}
}

func TestProbeHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			http.NotFound(w, r)
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	code, err := probeHealth(srv.URL)
	if err != nil || code != http.StatusServiceUnavailable {
		t.Errorf("probeHealth = %d, %v; want 503", code, err)
	}

	srv.Close()
	if _, err := probeHealth(srv.URL); err == nil {
		t.Error("expected error for a stopped server")
	}
}
