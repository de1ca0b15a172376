package api

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/kalambet/jobpilot/internal/analysis"
	"github.com/kalambet/jobpilot/internal/ingest"
	"github.com/kalambet/jobpilot/internal/retrieval"
	"github.com/kalambet/jobpilot/internal/storage"
)

// --- helpers ---

type testMCP struct {
	deps     MCPDeps
	store    *storage.Store
	analyzer *fakeAnalyzer
	ingester *fakeIngester
	recaller *fakeRecaller
}

func newTestMCPDeps(t *testing.T) *testMCP {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("opening store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	m := &testMCP{
		store:    store,
		analyzer: &fakeAnalyzer{},
		ingester: &fakeIngester{},
		recaller: &fakeRecaller{},
	}
	m.deps = MCPDeps{
		Store:    store,
		Analyzer: m.analyzer,
		Ingester: m.ingester,
		Recaller: m.recaller,
	}
	return m
}

func toolText(t *testing.T, result *mcp.CallToolResult) string {
	t.Helper()
	if len(result.Content) == 0 {
		t.Fatal("no content in result")
	}
	tc, ok := result.Content[0].(mcp.TextContent)
	if !ok {
		t.Fatalf("expected TextContent, got %T", result.Content[0])
	}
	return tc.Text
}

func makeCallToolRequest(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{
		Params: mcp.CallToolParams{
			Name:      name,
			Arguments: args,
		},
	}
}

func makeReadResourceRequest(uri string) mcp.ReadResourceRequest {
	return mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{
			URI: uri,
		},
	}
}

// --- tests ---

func TestNewMCPServer(t *testing.T) {
	m := newTestMCPDeps(t)
	if s := NewMCPServer(m.deps); s == nil {
		t.Fatal("NewMCPServer returned nil")
	}
}

func TestMCPTool_AnalyzeJob(t *testing.T) {
	m := newTestMCPDeps(t)

	result, err := mcpAnalyzeJob(m.deps)(context.Background(), makeCallToolRequest("analyze_job", map[string]any{
		"job_description": acmeJD,
		"resume_text":     sampleResume,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var resp AnalyzeResponse
	if err := json.Unmarshal([]byte(toolText(t, result)), &resp); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if resp.Company != "Acme Corp" || resp.AnalysisID == "" {
		t.Errorf("resp = %+v", resp)
	}
	if got := m.ingester.texts(); len(got) != 1 || got[0] != sampleResume {
		t.Errorf("ingested = %v", got)
	}
	if _, err := m.store.GetAnalysis(resp.AnalysisID); err != nil {
		t.Errorf("analysis not stored: %v", err)
	}
}

func TestMCPTool_AnalyzeJob_BlankDescription(t *testing.T) {
	m := newTestMCPDeps(t)

	result, _ := mcpAnalyzeJob(m.deps)(context.Background(), makeCallToolRequest("analyze_job", map[string]any{
		"job_description": "   ",
	}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCPTool_AnalyzeJob_MissingDescription(t *testing.T) {
	m := newTestMCPDeps(t)

	result, _ := mcpAnalyzeJob(m.deps)(context.Background(), makeCallToolRequest("analyze_job", map[string]any{}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCPTool_AnalyzeJob_PipelineError(t *testing.T) {
	m := newTestMCPDeps(t)
	m.analyzer.runFn = func(context.Context, string, string) (analysis.Record, error) {
		return analysis.Record{}, errors.New("generator offline")
	}

	result, _ := mcpAnalyzeJob(m.deps)(context.Background(), makeCallToolRequest("analyze_job", map[string]any{
		"job_description": acmeJD,
	}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if !strings.Contains(toolText(t, result), "generator offline") {
		t.Errorf("text = %q", toolText(t, result))
	}
}

func TestMCPTool_QueueAnalysis(t *testing.T) {
	m := newTestMCPDeps(t)

	result, _ := mcpQueueAnalysis(m.deps)(context.Background(), makeCallToolRequest("queue_analysis", map[string]any{
		"job_description": acmeJD,
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	id := strings.TrimPrefix(toolText(t, result), "Queued analysis ")
	a, err := m.store.GetAnalysis(id)
	if err != nil {
		t.Fatalf("GetAnalysis(%q): %v", id, err)
	}
	if a.Status != storage.AnalysisQueued {
		t.Errorf("Status = %q", a.Status)
	}
	job, err := m.store.ClaimNextJob([]string{ingest.JobTypeAnalyze})
	if err != nil || job == nil {
		t.Fatalf("no job queued: %v", err)
	}
}

func TestMCPTool_IngestResume(t *testing.T) {
	m := newTestMCPDeps(t)

	result, _ := mcpIngestResume(m.deps)(context.Background(), makeCallToolRequest("ingest_resume", map[string]any{
		"resume_text": sampleResume,
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if got := toolText(t, result); got != "Resume ingested: 3 chunks stored." {
		t.Errorf("text = %q", got)
	}
}

func TestMCPTool_IngestResume_Blank(t *testing.T) {
	m := newTestMCPDeps(t)

	result, _ := mcpIngestResume(m.deps)(context.Background(), makeCallToolRequest("ingest_resume", map[string]any{
		"resume_text": " \n ",
	}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
	if len(m.ingester.texts()) != 0 {
		t.Error("ingester called for blank resume")
	}
}

func TestMCPTool_RecallResume_ReturnsChunks(t *testing.T) {
	m := newTestMCPDeps(t)
	m.recaller.chunks = []retrieval.ContextChunk{
		{ID: "c1", SourceID: "r1", SourceType: retrieval.SourceResume, Text: "Built Go services", Score: 0.95},
		{ID: "c2", SourceID: "r1", SourceType: retrieval.SourceResume, ChunkIndex: 1, Text: "PostgreSQL tuning", Score: 0.8},
	}

	result, err := mcpRecallResume(m.deps)(context.Background(), makeCallToolRequest("recall_resume", map[string]any{
		"query": "go experience",
		"limit": 500,
	}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}

	var chunks []ChunkResult
	if err := json.Unmarshal([]byte(toolText(t, result)), &chunks); err != nil {
		t.Fatalf("failed to parse response: %v", err)
	}
	if len(chunks) != 2 || chunks[1].ChunkIndex != 1 {
		t.Fatalf("chunks = %+v", chunks)
	}
	if m.recaller.gotK != maxRecallLimit {
		t.Errorf("topK = %d, want %d", m.recaller.gotK, maxRecallLimit)
	}
}

func TestMCPTool_RecallResume_EmptyResult(t *testing.T) {
	m := newTestMCPDeps(t)

	result, _ := mcpRecallResume(m.deps)(context.Background(), makeCallToolRequest("recall_resume", map[string]any{
		"query": "nonexistent topic",
	}))
	if result.IsError {
		t.Fatalf("unexpected error: %s", toolText(t, result))
	}
	if text := toolText(t, result); text != "[]" {
		t.Fatalf("expected empty array, got: %s", text)
	}
	if m.recaller.gotK != defaultRecallLimit {
		t.Errorf("topK = %d, want %d", m.recaller.gotK, defaultRecallLimit)
	}
}

func TestMCPTool_RecallResume_Error(t *testing.T) {
	m := newTestMCPDeps(t)
	m.recaller.err = errors.New("embedding failed")

	result, _ := mcpRecallResume(m.deps)(context.Background(), makeCallToolRequest("recall_resume", map[string]any{
		"query": "go",
	}))
	if !result.IsError {
		t.Fatal("expected tool error")
	}
}

func TestMCPResource_Recent(t *testing.T) {
	m := newTestMCPDeps(t)
	for range 12 {
		if _, _, err := AnalyzeAndSave(context.Background(), m.store, m.analyzer, acmeJD, ""); err != nil {
			t.Fatalf("AnalyzeAndSave: %v", err)
		}
	}

	contents, err := mcpResourceRecent(m.deps)(context.Background(), makeReadResourceRequest("analyses://recent"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(contents) != 1 {
		t.Fatalf("contents = %d", len(contents))
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok {
		t.Fatalf("expected TextResourceContents, got %T", contents[0])
	}
	if tc.URI != "analyses://recent" || tc.MIMEType != "application/json" {
		t.Errorf("URI/MIME = %q/%q", tc.URI, tc.MIMEType)
	}
	var summaries []AnalysisSummary
	if err := json.Unmarshal([]byte(tc.Text), &summaries); err != nil {
		t.Fatalf("decoding: %v", err)
	}
	if len(summaries) != recentAnalysesLimit {
		t.Errorf("got %d summaries, want %d", len(summaries), recentAnalysesLimit)
	}
}

func TestMCPServer_ConcurrentCalls(t *testing.T) {
	m := newTestMCPDeps(t)
	m.recaller.chunks = []retrieval.ContextChunk{{ID: "c1", Text: "test", Score: 0.9}}

	analyze := mcpAnalyzeJob(m.deps)
	recall := mcpRecallResume(m.deps)

	var wg sync.WaitGroup
	errs := make(chan string, 10)
	for range 5 {
		wg.Add(2)
		go func() {
			defer wg.Done()
			res, err := analyze(context.Background(), makeCallToolRequest("analyze_job", map[string]any{"job_description": acmeJD}))
			if err != nil || res.IsError {
				errs <- "analyze_job failed"
			}
		}()
		go func() {
			defer wg.Done()
			res, err := recall(context.Background(), makeCallToolRequest("recall_resume", map[string]any{"query": "go"}))
			if err != nil || res.IsError {
				errs <- "recall_resume failed"
			}
		}()
	}
	wg.Wait()
	close(errs)

	for msg := range errs {
		t.Error(msg)
	}
	analyses, _ := m.store.ListAnalyses(20)
	if len(analyses) != 5 {
		t.Errorf("stored %d analyses, want 5", len(analyses))
	}
}
