// Package mcpserver exposes the Tool Catalog (internal/tools.Registry) as a
// Model Context Protocol server: a second transport over the exact same
// closed tool set the Chat Actor dispatches internally, so IDEs and other
// MCP-speaking agents can drive the workspace with identical semantics.
package mcpserver

import (
	"context"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/tools"
)

// WorkspaceResolver maps an MCP request's caller identity to the
// workspace/user pair a tool call runs scoped to. External MCP clients
// authenticate out of band (stdio parent process, or an HTTP auth
// middleware in front of the streamable server); this package never
// invents its own auth scheme for that.
type WorkspaceResolver func(ctx context.Context) (workspaceID, userID string)

// Server wraps a tools.Registry as an MCP server instance.
type Server struct {
	mcp      *server.MCPServer
	catalog  *tools.Registry
	resolver WorkspaceResolver
}

// New builds an MCP server exposing every definition currently registered
// in catalog. Tools registered on catalog after New is called are not
// picked up — the MCP tool list is a snapshot, matching the Model Gateway's
// own snapshot-at-turn-start schema enumeration (Actor.toolDefinitions in
// internal/actor).
func New(name, version string, catalog *tools.Registry, resolver WorkspaceResolver) *Server {
	s := &Server{
		mcp:      server.NewMCPServer(name, version, server.WithToolCapabilities(false)),
		catalog:  catalog,
		resolver: resolver,
	}
	for _, def := range catalog.List() {
		s.registerTool(def)
	}
	return s
}

func (s *Server) registerTool(def tools.Definition) {
	schema, err := json.Marshal(def.Schema)
	if err != nil {
		schema = []byte(`{"type":"object"}`)
	}
	t := mcp.NewToolWithRawSchema(string(def.Name), def.Description, schema)

	s.mcp.AddTool(t, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		workspaceID, userID := s.resolver(ctx)
		args := req.GetArguments()

		inv := tools.Invocation{
			WorkspaceID: workspaceID,
			UserID:      userID,
			Config:      domain.ToolConfig{},
			Args:        args,
		}
		// An MCP client call is never itself inside a chat's plan mode, so
		// targetIsPlan is always false here, mirroring the direct HTTP
		// tool-invoke endpoint (internal/httpapi.handleToolInvoke).
		result, err := s.catalog.Dispatch(ctx, def.Name, inv, func() bool { return false })
		if err != nil {
			return mcp.NewToolResultError(err.Error()), nil
		}
		if result.IsError {
			return mcp.NewToolResultError(result.Err), nil
		}
		return mcp.NewToolResultText(result.ForLLM), nil
	})
}

// ServeStdio runs the MCP server over stdio until the transport closes
// (EOF on stdin), for an MCP client that spawns this process directly.
func (s *Server) ServeStdio(ctx context.Context) error {
	return server.ServeStdio(s.mcp)
}

// HTTPHandler returns the streamable-HTTP transport's http.Handler, for
// mounting alongside internal/httpapi's REST surface.
func (s *Server) HTTPHandler() *server.StreamableHTTPServer {
	return server.NewStreamableHTTPServer(s.mcp)
}
