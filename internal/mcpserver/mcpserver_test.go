package mcpserver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/tools"
)

func fixedResolver(workspaceID, userID string) WorkspaceResolver {
	return func(ctx context.Context) (string, string) { return workspaceID, userID }
}

func TestNew_RegistersEveryDefinition(t *testing.T) {
	catalog := tools.NewRegistry()
	catalog.Register(tools.Definition{
		Name:        tools.ToolLs,
		Description: "list files",
		Schema:      map[string]any{"type": "object"},
		Run: func(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
			return tools.NewResult("ok", nil), nil
		},
	})
	catalog.Register(tools.Definition{
		Name:        tools.ToolCat,
		Description: "read file",
		Schema:      nil, // exercises the marshal-fallback path
		Run: func(ctx context.Context, inv tools.Invocation) (tools.Result, error) {
			return tools.NewResult("ok", nil), nil
		},
	})

	s := New("clawbench-tools", "test", catalog, fixedResolver("ws-1", "user-1"))
	require.NotNil(t, s)
	assert.NotNil(t, s.mcp)
	assert.Equal(t, catalog, s.catalog)
}

func TestWorkspaceResolver_ReturnsFixedPair(t *testing.T) {
	resolver := fixedResolver("ws-42", "user-42")
	ws, user := resolver(context.Background())
	assert.Equal(t, "ws-42", ws)
	assert.Equal(t, "user-42", user)
}
