package api

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/kalambet/jobpilot/internal/ingest"
	"github.com/kalambet/jobpilot/internal/pipeline"
)

const recentAnalysesLimit = 10

// MCPDeps holds dependencies for the MCP server.
type MCPDeps struct {
	Store    Store
	Analyzer ingest.Analyzer
	Ingester ingest.ResumeIngester
	Recaller Recaller
}

// NewMCPServer creates an MCP server with the jobpilot tools and resources
// registered.
func NewMCPServer(deps MCPDeps) *server.MCPServer {
	s := server.NewMCPServer(
		ServiceName,
		"1.0.0",
		server.WithToolCapabilities(true),
		server.WithResourceCapabilities(false, true),
		server.WithInstructions("jobpilot drafts job application material from a job description and the stored resume."),
		server.WithRecovery(),
	)

	s.AddTool(
		mcp.NewTool("analyze_job",
			mcp.WithDescription("Analyze a job description against the stored resume and draft a cover letter, email and interview prep."),
			mcp.WithString("job_description", mcp.Description("Full job description text"), mcp.Required()),
			mcp.WithString("resume_text", mcp.Description("Optional resume text to ingest before analysis")),
		),
		mcpAnalyzeJob(deps),
	)

	s.AddTool(
		mcp.NewTool("queue_analysis",
			mcp.WithDescription("Queue a background analysis and return its ID for later lookup."),
			mcp.WithString("job_description", mcp.Description("Full job description text"), mcp.Required()),
			mcp.WithString("resume_text", mcp.Description("Optional resume text to ingest before analysis")),
		),
		mcpQueueAnalysis(deps),
	)

	s.AddTool(
		mcp.NewTool("ingest_resume",
			mcp.WithDescription("Store resume text, replacing the previously stored resume."),
			mcp.WithString("resume_text", mcp.Description("Plain resume text"), mcp.Required()),
		),
		mcpIngestResume(deps),
	)

	s.AddTool(
		mcp.NewTool("recall_resume",
			mcp.WithDescription("Semantically search the stored resume and return relevant chunks."),
			mcp.WithString("query", mcp.Description("Search query"), mcp.Required()),
			mcp.WithNumber("limit", mcp.Description("Maximum number of results (default 5)")),
		),
		mcpRecallResume(deps),
	)

	s.AddResource(
		mcp.NewResource(
			"analyses://recent",
			"Recent Analyses",
			mcp.WithResourceDescription("Last 10 stored analyses (summaries only)"),
			mcp.WithMIMEType("application/json"),
		),
		mcpResourceRecent(deps),
	)

	return s
}

func mcpAnalyzeJob(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jd, err := req.RequireString("job_description")
		if err != nil {
			return mcpError("job_description is required"), nil
		}
		if err := pipeline.ValidateInput(jd); err != nil {
			return mcpError(err.Error()), nil
		}

		resume := req.GetString("resume_text", "")
		if strings.TrimSpace(resume) != "" {
			if _, err := deps.Ingester.Ingest(ctx, "", resume); err != nil {
				return mcpError(fmt.Sprintf("failed to ingest resume: %v", err)), nil
			}
		}

		id, rec, err := AnalyzeAndSave(ctx, deps.Store, deps.Analyzer, jd, resume)
		if err != nil {
			return mcpError(fmt.Sprintf("analysis failed: %v", err)), nil
		}
		if rec.Error != "" {
			return mcpError(fmt.Sprintf("analysis failed: %s", rec.Error)), nil
		}

		b, err := json.Marshal(NewAnalyzeResponse(id, rec))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal analysis: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpQueueAnalysis(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		jd, err := req.RequireString("job_description")
		if err != nil {
			return mcpError("job_description is required"), nil
		}

		id, err := ingest.EnqueueAnalysis(deps.Store, jd, req.GetString("resume_text", ""))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to queue analysis: %v", err)), nil
		}
		return mcpText(fmt.Sprintf("Queued analysis %s", id)), nil
	}
}

func mcpIngestResume(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		text, err := req.RequireString("resume_text")
		if err != nil || strings.TrimSpace(text) == "" {
			return mcpError("resume_text is required"), nil
		}

		res, err := deps.Ingester.Ingest(ctx, "", text)
		if err != nil {
			return mcpError(fmt.Sprintf("failed to ingest resume: %v", err)), nil
		}
		return mcpText(res.Message()), nil
	}
}

func mcpRecallResume(deps MCPDeps) server.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		query, err := req.RequireString("query")
		if err != nil {
			return mcpError("query is required"), nil
		}

		chunks, err := deps.Recaller.Retrieve(ctx, query, clampLimit(req.GetInt("limit", defaultRecallLimit)))
		if err != nil {
			return mcpError(fmt.Sprintf("recall failed: %v", err)), nil
		}
		if len(chunks) == 0 {
			return mcpText("[]"), nil
		}

		b, err := json.Marshal(chunkResults(chunks))
		if err != nil {
			return mcpError(fmt.Sprintf("failed to marshal results: %v", err)), nil
		}
		return mcpText(string(b)), nil
	}
}

func mcpResourceRecent(deps MCPDeps) server.ResourceHandlerFunc {
	return func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		analyses, err := deps.Store.ListAnalyses(recentAnalysesLimit)
		if err != nil {
			return nil, fmt.Errorf("failed to list analyses: %w", err)
		}

		summaries := make([]AnalysisSummary, len(analyses))
		for i, a := range analyses {
			summaries[i] = summarize(a)
		}
		b, err := json.Marshal(summaries)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal analyses: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      req.Params.URI,
				MIMEType: "application/json",
				Text:     string(b),
			},
		}, nil
	}
}

func mcpText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: text},
		},
	}
}

func mcpError(msg string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{
			mcp.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
