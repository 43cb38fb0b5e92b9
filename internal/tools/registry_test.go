package tools

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clawdesk/clawbench/internal/domain"
)

func TestDispatchUnknownTool(t *testing.T) {
	reg := newTestRegistry(newMemStore())
	_, err := reg.Dispatch(context.Background(), Name("nonexistent"), Invocation{WorkspaceID: "ws1"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown tool")
}

func TestListIsSortedAndClosed(t *testing.T) {
	reg := newTestRegistry(newMemStore())
	defs := reg.List()
	require.NotEmpty(t, defs)
	for i := 1; i < len(defs); i++ {
		assert.Less(t, string(defs[i-1].Name), string(defs[i].Name))
	}
	for _, name := range []Name{ToolLs, ToolRead, ToolWrite, ToolEdit, ToolCat, ToolGrep, ToolGlob, ToolFind, ToolFileInfo, ToolAskUser, ToolExitPlanMode, ToolMemoryList, ToolMemoryRead} {
		_, ok := reg.Get(name)
		assert.True(t, ok, "tool %s not registered", name)
	}
}

func TestPlanModeGuardBlocksMutations(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/notes.md", domain.FileTypeDocument, false, "n")
	reg := newTestRegistry(store)

	inv := Invocation{
		WorkspaceID: "ws1",
		UserID:      "u1",
		Config:      domain.ToolConfig{PlanMode: true, ActivePlanPath: "/plans/p.plan"},
		Args:        map[string]any{"path": "/notes.md", "content": "x"},
	}

	res, err := reg.Dispatch(context.Background(), ToolWrite, inv, func() bool { return false })
	require.NoError(t, err)
	assert.False(t, res.Success())
	assert.Contains(t, res.Err, "plan_mode")
	assert.Contains(t, res.Err, "exit_plan_mode")

	// The blocked file is untouched.
	readRes := run(t, reg, ToolRead, map[string]any{"path": "/notes.md"})
	assert.Equal(t, "n", readRes.ForLLM)
}

func TestPlanModeGuardAllowsPlanTarget(t *testing.T) {
	store := newMemStore()
	reg := newTestRegistry(store)

	inv := Invocation{
		WorkspaceID: "ws1",
		UserID:      "u1",
		Config:      domain.ToolConfig{PlanMode: true, ActivePlanPath: "/plans/p.plan"},
		Args:        map[string]any{"path": "/plans/p.plan", "content": "the plan"},
	}

	res, err := reg.Dispatch(context.Background(), ToolWrite, inv, func() bool { return true })
	require.NoError(t, err)
	assert.True(t, res.Success(), res.Err)

	// The created file really is a Plan file, so exit_plan_mode accepts it.
	created, err := store.Resolve(context.Background(), "ws1", "/plans/p.plan")
	require.NoError(t, err)
	assert.Equal(t, domain.FileTypePlan, created.Type)

	res = run(t, reg, ToolExitPlanMode, map[string]any{"plan_path": "/plans/p.plan"})
	require.True(t, res.Success(), res.Err)
}

func TestPlanModeGuardIgnoresReadOnlyTools(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/notes.md", domain.FileTypeDocument, false, "n")
	reg := newTestRegistry(store)

	inv := Invocation{
		WorkspaceID: "ws1",
		UserID:      "u1",
		Config:      domain.ToolConfig{PlanMode: true},
		Args:        map[string]any{"path": "/notes.md"},
	}
	res, err := reg.Dispatch(context.Background(), ToolRead, inv, func() bool { return false })
	require.NoError(t, err)
	assert.True(t, res.Success(), res.Err)
}

func TestAskUserAndExitPlanMode(t *testing.T) {
	store := newMemStore()
	store.seed("ws1", "/plans/p.plan", domain.FileTypePlan, false, "the plan")
	store.seed("ws1", "/doc.md", domain.FileTypeDocument, false, "d")
	reg := newTestRegistry(store)

	res := run(t, reg, ToolAskUser, map[string]any{"question": "proceed?", "choices": []any{"yes", "no"}})
	require.True(t, res.Success(), res.Err)
	payload := res.ForUser.(map[string]any)
	assert.Equal(t, "ask_user", payload["action"])
	assert.Equal(t, "proceed?", payload["question"])

	res = run(t, reg, ToolExitPlanMode, map[string]any{"plan_path": "/plans/p.plan"})
	require.True(t, res.Success(), res.Err)
	payload = res.ForUser.(map[string]any)
	assert.Equal(t, "exit_plan_mode", payload["action"])

	// exit_plan_mode on a non-Plan file is rejected.
	res = run(t, reg, ToolExitPlanMode, map[string]any{"plan_path": "/doc.md"})
	assert.False(t, res.Success())
}
