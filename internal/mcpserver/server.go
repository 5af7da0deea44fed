// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes mdnorm tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/mdnorm/internal/models"
	"github.com/starford/mdnorm/internal/normalizer"
	"github.com/starford/mdnorm/internal/resolve"
)

const rulesURI = "mdnorm://rules"

// Runner is the run service surface the MCP tools need.
type Runner interface {
	Preview(path string, content []byte) (*normalizer.Result, error)
	ResolveReference(name string) (resolve.Decision, error)
	Runs(limit int) ([]models.Report, error)
}

// Server wraps the MCP server with mdnorm tools.
type Server struct {
	mcp *server.MCPServer
	svc Runner
}

// New creates a new MCP server with all mdnorm tools registered.
func New(svc Runner, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"mdnorm",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("normalize_preview",
		mcp.WithDescription("Normalise Markdown content as if it were stored at the given path "+
			"in the corpus, without writing anything. Returns the rewritten document."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Corpus-relative path the content would live at (e.g. posts/a.md)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Full Markdown document including any frontmatter")),
	), s.normalizePreview)

	s.mcp.AddTool(mcp.NewTool("resolve_reference",
		mcp.WithDescription("Resolve a wiki reference against the alias table and the corpus."),
		mcp.WithString("name", mcp.Required(), mcp.Description("Reference text without brackets, e.g. Name, Name#Heading or Name|Shown")),
	), s.resolveReference)

	s.mcp.AddTool(mcp.NewTool("list_runs",
		mcp.WithDescription("List recent normalisation runs, newest first."),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (default 10)")),
	), s.listRuns)

	s.mcp.AddTool(mcp.NewTool("get_rules",
		mcp.WithDescription("Returns the rules mdnorm applies to links, wiki references and tags. "+
			"Read this before writing documents so they need no rewriting."),
	), s.getRules)

	s.mcp.AddResource(
		mcp.NewResource(rulesURI, "Normalisation Rules",
			mcp.WithResourceDescription("How mdnorm rewrites links, wiki references and tags."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRulesResource,
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

func (s *Server) normalizePreview(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res, err := s.svc.Preview(path, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if !res.Changed {
		return mcp.NewToolResultText("unchanged"), nil
	}

	var b strings.Builder
	b.Write(res.Output)
	if len(res.Applied) > 0 || len(res.AddedTags) > 0 {
		b.WriteString("\n<!-- mdnorm changes\n")
		for _, a := range res.Applied {
			fmt.Fprintf(&b, "%s %s: %s -> %s (%s)\n", a.Action, a.Kind, a.Raw, a.Result, a.Reason)
		}
		if len(res.AddedTags) > 0 {
			fmt.Fprintf(&b, "tags added: %s\n", strings.Join(res.AddedTags, ", "))
		}
		b.WriteString("-->\n")
	}
	return mcp.NewToolResultText(b.String()), nil
}

func (s *Server) resolveReference(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	name, err := req.RequireString("name")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	d, err := s.svc.ResolveReference(name)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if d.Action == resolve.Keep {
		return mcp.NewToolResultText(fmt.Sprintf("unresolved: %s", d.Text)), nil
	}
	return mcp.NewToolResultText(fmt.Sprintf("%s (%s)", d.Text, d.Reason)), nil
}

func (s *Server) listRuns(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	runs, err := s.svc.Runs(req.GetInt("limit", 10))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(runs) == 0 {
		return mcp.NewToolResultText("no runs recorded"), nil
	}
	out, _ := json.MarshalIndent(runs, "", "  ")
	return mcp.NewToolResultText(string(out)), nil
}

func (s *Server) getRules(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(RulesContract), nil
}

func (s *Server) readRulesResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      rulesURI,
			MIMEType: "text/markdown",
			Text:     RulesContract,
		},
	}, nil
}
