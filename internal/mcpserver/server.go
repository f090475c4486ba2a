// Package mcpserver provides an MCP (Model Context Protocol) server that
// exposes reference queries for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/blockref/internal/apperr"
	"github.com/starford/blockref/internal/refservice"
)

const syntaxURI = "blockref://reference-syntax"

// Server wraps the MCP server with reference tools.
type Server struct {
	mcp *server.MCPServer
	svc *refservice.Service
}

// New creates a new MCP server with all tools registered.
func New(svc *refservice.Service, version string) *Server {
	s := &Server{svc: svc}

	s.mcp = server.NewMCPServer(
		"blockref",
		version,
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("query_anchor",
		mcp.WithDescription("Resolve a block or heading anchor and list every document line that references it."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document key: file name without .md (e.g. Meeting Notes)")),
		mcp.WithString("anchor", mcp.Required(), mcp.Description("Block id prefixed with ^ (e.g. ^abc123) or heading text")),
	), s.queryAnchor)

	s.mcp.AddTool(mcp.NewTool("document_references",
		mcp.WithDescription("List the anchors a document defines and the references it makes, with resolved reference counts."),
		mcp.WithString("document", mcp.Required(), mcp.Description("Document key: file name without .md")),
	), s.documentReferences)

	s.mcp.AddTool(mcp.NewTool("list_documents",
		mcp.WithDescription("List indexed documents, optionally restricted to a folder."),
		mcp.WithString("folder", mcp.Description("Optional folder prefix (e.g. projects/)")),
	), s.listDocuments)

	s.mcp.AddTool(mcp.NewTool("reindex",
		mcp.WithDescription("Rebuild the whole reference index from the vault, or re-read a single document."),
		mcp.WithString("path", mcp.Description("Optional vault-relative path (e.g. notes/A.md); only that document is re-read")),
	), s.reindex)

	s.mcp.AddResource(
		mcp.NewResource(syntaxURI, "Reference Syntax",
			mcp.WithResourceDescription("Anchor and link forms the index resolves."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readSyntaxResource,
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

func (s *Server) queryAnchor(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	anchor, err := req.RequireString("anchor")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	e, err := s.svc.Anchor(doc, anchor)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(e)
}

func (s *Server) documentReferences(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	doc, err := req.RequireString("document")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	dv, err := s.svc.Document(doc)
	if err != nil {
		return toolError(err), nil
	}
	return jsonResult(dv)
}

func (s *Server) listDocuments(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	folder := ""
	if f, err := req.RequireString("folder"); err == nil && f != "" {
		folder = strings.TrimSuffix(f, "/") + "/"
	}

	var paths []string
	for _, d := range s.svc.Index().Documents() {
		if folder == "" || strings.HasPrefix(d.Path, folder) {
			paths = append(paths, d.Path)
		}
	}
	if len(paths) == 0 {
		return mcp.NewToolResultText("no documents found"), nil
	}
	return mcp.NewToolResultText(strings.Join(paths, "\n")), nil
}

func (s *Server) reindex(_ context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if path, err := req.RequireString("path"); err == nil && path != "" {
		if err := s.svc.Refresh(path); err != nil {
			return toolError(err), nil
		}
		dv, _ := s.svc.Index().QueryPath(path)
		return mcp.NewToolResultText(fmt.Sprintf("reindexed %s: %d anchors, %d references",
			path, len(dv.Anchors), len(dv.References))), nil
	}

	syncErr := s.svc.Sync()
	st := s.svc.Index().Stats()
	msg := fmt.Sprintf("indexed %d documents, %d anchors, %d of %d references resolved",
		st.Documents, st.Anchors, st.Resolved, st.References)
	if syncErr != nil {
		msg += "\nfailures:\n" + syncErr.Error()
	}
	return mcp.NewToolResultText(msg), nil
}

func (s *Server) readSyntaxResource(_ context.Context, _ mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      syntaxURI,
			MIMEType: "text/markdown",
			Text:     ReferenceSyntax,
		},
	}, nil
}

func toolError(err error) *mcp.CallToolResult {
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %v", err))
	}
	return mcp.NewToolResultError(err.Error())
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
