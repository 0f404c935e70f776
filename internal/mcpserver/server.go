// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Keepsake runs and reports for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/keepsake/internal/apperr"
	"github.com/starford/keepsake/internal/reportservice"
)

const (
	namingSchemeURI = "keepsake://naming-scheme"
	defaultLimit    = 50
)

// Server wraps the MCP server with Keepsake tools.
type Server struct {
	mcp *server.MCPServer
	svc *reportservice.Service
}

// New creates a new MCP server with all Keepsake tools registered.
func New(svc *reportservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"Keepsake",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List download, reconcile, fix and watch runs, newest first."),
		mcp.WithString("kind", mcp.Description("Optional run kind filter"),
			mcp.Enum("download", "reconcile", "fix", "watch")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 50)")),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("list_discrepancies",
		mcp.WithDescription("List discrepancy reports. Without a run id, lists the current report "+
			"of every file. Read the keepsake://naming-scheme resource to interpret flags."),
		mcp.WithString("run", mcp.Description("Optional run id")),
		mcp.WithBoolean("needs_fix", mcp.Description("Only reports that need a fix (default true)")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of reports (default 50)")),
	), s.listDiscrepancies)

	s.mcp.AddTool(mcp.NewTool("get_report",
		mcp.WithDescription("Get the full discrepancy report of one file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("File name in the download directory (e.g. 2023-06-01_12-00-00-A.jpg)")),
		mcp.WithString("run", mcp.Description("Optional run id; the most recent report is used when omitted")),
	), s.getReport)

	s.mcp.AddTool(mcp.NewTool("list_failures",
		mcp.WithDescription("List per-asset failures, join failures and correction outcomes of a run."),
		mcp.WithString("run", mcp.Required(), mcp.Description("Run id")),
	), s.listFailures)

	s.mcp.AddTool(mcp.NewTool("get_naming_scheme",
		mcp.WithDescription("Returns the file naming scheme and the meaning of report flags."),
	), s.getNamingScheme)

	// Resource: naming scheme.
	s.mcp.AddResource(
		mcp.NewResource(namingSchemeURI, "Naming Scheme",
			mcp.WithResourceDescription("Archive file naming and discrepancy report semantics."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readNamingSchemeResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}

func errorResult(err error, what string) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", what))
	}
	return mcp.NewToolResultError(err.Error())
}

func limitArg(req mcp.CallToolRequest) int {
	limit := req.GetInt("limit", defaultLimit)
	if limit <= 0 {
		return defaultLimit
	}
	return limit
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, total, err := s.svc.ListRuns(ctx, req.GetString("kind", ""), limitArg(req), 0)
	if err != nil {
		return errorResult(err, "runs"), nil
	}
	return jsonResult(map[string]any{"runs": runs, "total": total})
}

func (s *Server) listDiscrepancies(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID := req.GetString("run", "")
	reports, total, err := s.svc.ListReports(ctx, runID, req.GetBool("needs_fix", true), limitArg(req), 0)
	if err != nil {
		return errorResult(err, "run "+runID), nil
	}
	if total == 0 {
		return mcp.NewToolResultText("no discrepancies found"), nil
	}
	return jsonResult(map[string]any{"reports": reports, "total": total})
}

func (s *Server) getReport(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rep, err := s.svc.GetReport(ctx, req.GetString("run", ""), path)
	if err != nil {
		return errorResult(err, path), nil
	}
	return jsonResult(rep)
}

func (s *Server) listFailures(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runID, err := req.RequireString("run")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	list, err := s.svc.ListFailures(ctx, runID)
	if err != nil {
		return errorResult(err, "run "+runID), nil
	}
	return jsonResult(list)
}

func (s *Server) getNamingScheme(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(NamingScheme), nil
}

func (s *Server) readNamingSchemeResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      namingSchemeURI,
			MIMEType: "text/markdown",
			Text:     NamingScheme,
		},
	}, nil
}
