// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes the GTS registry to LLM clients over stdio.
package mcpserver

import (
	"context"
	"errors"
	"fmt"
	"strings"

	json "github.com/goccy/go-json"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/gtsreg/internal/apperr"
	"github.com/starford/gtsreg/internal/index"
	"github.com/starford/gtsreg/internal/workspace"
)

// Server wraps the MCP server with registry tools.
type Server struct {
	mcp *server.MCPServer
	svc *workspace.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *workspace.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"gtsreg",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("list_entities",
		mcp.WithDescription("List registered GTS entities, optionally filtered by kind, identifier substring or validation state."),
		mcp.WithString("kind", mcp.Description("Entity kind"), mcp.Enum("object", "schema")),
		mcp.WithString("query", mcp.Description("Identifier substring")),
		mcp.WithBoolean("invalid", mcp.Description("Only entities with validation errors")),
	), s.listEntities)

	s.mcp.AddTool(mcp.NewTool("get_entity",
		mcp.WithDescription("Get an entity's content, validation result and referrers."),
		mcp.WithString("id", mcp.Required(), mcp.Description("GTS identifier (e.g. gts.acme.shop.orders.order.v1~)")),
	), s.getEntity)

	s.mcp.AddTool(mcp.NewTool("find_referrers",
		mcp.WithDescription("Find the entities that reference an identifier or declare it as their schema."),
		mcp.WithString("id", mcp.Required(), mcp.Description("GTS identifier")),
	), s.findReferrers)

	s.mcp.AddTool(mcp.NewTool("get_diagnostics",
		mcp.WithDescription("Located validation errors of one file, or of every file when path is empty."),
		mcp.WithString("path", mcp.Description("Relative path of the file")),
	), s.getDiagnostics)

	s.mcp.AddTool(mcp.NewTool("validate_document",
		mcp.WithDescription("Validate unsaved content as if it were stored at path. Nothing is written."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path the content belongs to")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Document text")),
	), s.validateDocument)

	s.mcp.AddTool(mcp.NewTool("read_document",
		mcp.WithDescription("Read the raw text of a workspace file."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path (e.g. types/order.json)")),
	), s.readDocument)

	s.mcp.AddTool(mcp.NewTool("write_document",
		mcp.WithDescription("Create or replace a workspace file and return its diagnostics. "+
			"Read the conventions first via get_conventions or the "+ConventionsURI+" resource."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Relative path (must end with .json, .jsonc or .gts)")),
		mcp.WithString("content", mcp.Required(), mcp.Description("Document text")),
	), s.writeDocument)

	s.mcp.AddTool(mcp.NewTool("get_conventions",
		mcp.WithDescription("Returns the GTS document conventions. Call this before writing documents."),
	), s.getConventions)

	s.mcp.AddResource(
		mcp.NewResource(ConventionsURI, "GTS Document Conventions",
			mcp.WithResourceDescription("Identifier format, entity shapes and diagnostic positions."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readConventionsResource,
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

func errorResult(what string, err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError("not found: " + what)
	}
	return mcp.NewToolResultError(err.Error())
}

func (s *Server) listEntities(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	items, total, err := s.svc.Entities(ctx, index.EntityFilter{
		Kind:    req.GetString("kind", ""),
		Query:   req.GetString("query", ""),
		Invalid: req.GetBool("invalid", false),
		Limit:   500,
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if total == 0 {
		return mcp.NewToolResultText("no entities found"), nil
	}
	lines := make([]string, len(items))
	for i, e := range items {
		status := "valid"
		if !e.Valid {
			status = fmt.Sprintf("%d errors", e.ErrorCount)
		}
		lines[i] = fmt.Sprintf("%s\t%s\t%s\t%s", e.ID, e.Kind, e.Path, status)
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getEntity(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.svc.Entity(ctx, id)
	if err != nil {
		return errorResult(id, err), nil
	}
	return jsonResult(e)
}

func (s *Server) findReferrers(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	refs, err := s.svc.Referrers(ctx, id)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	if len(refs) == 0 {
		return mcp.NewToolResultText("no referrers found"), nil
	}
	lines := make([]string, len(refs))
	for i, r := range refs {
		lines[i] = r.SourceID + "\t" + r.FilePath + r.Pointer
	}
	return mcp.NewToolResultText(strings.Join(lines, "\n")), nil
}

func (s *Server) getDiagnostics(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path := req.GetString("path", "")
	if path == "" {
		return jsonResult(s.svc.AllDiagnostics(ctx))
	}
	diags, err := s.svc.Diagnostics(ctx, path)
	if err != nil {
		return errorResult(path, err), nil
	}
	return jsonResult(diags)
}

func (s *Server) validateDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	diags, err := s.svc.ValidateDocument(ctx, path, []byte(content))
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(diags)
}

func (s *Server) readDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	f, err := s.svc.GetFile(ctx, path)
	if err != nil {
		return errorResult(path, err), nil
	}
	return mcp.NewToolResultText(f.Content), nil
}

func (s *Server) writeDocument(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	path, err := req.RequireString("path")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	content, err := req.RequireString("content")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	f, err := s.svc.UpdateFile(ctx, path, []byte(content), "")
	if errors.Is(err, apperr.ErrNotFound) {
		f, err = s.svc.CreateFile(ctx, path, []byte(content))
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return jsonResult(f.Diagnostics)
}

func (s *Server) getConventions(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(Conventions), nil
}

func (s *Server) readConventionsResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      ConventionsURI,
			MIMEType: "text/markdown",
			Text:     Conventions,
		},
	}, nil
}
