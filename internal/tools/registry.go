// Package tools implements the Tool Catalog: a closed, enumerated
// set of filesystem-style operations the agent can invoke, each pre-scoped
// to a workspace and mediated through the Virtual Filesystem.
package tools

import (
	"context"
	"sort"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/otelx"
)

// Name is one of the closed set of registered tool names.
type Name string

const (
	ToolLs                Name = "ls"
	ToolRead              Name = "read"
	ToolReadMultipleFiles Name = "read_multiple_files"
	ToolCat               Name = "cat"
	ToolWrite             Name = "write"
	ToolEdit              Name = "edit"
	ToolRm                Name = "rm"
	ToolMv                Name = "mv"
	ToolTouch             Name = "touch"
	ToolMkdir             Name = "mkdir"
	ToolGrep              Name = "grep"
	ToolGlob              Name = "glob"
	ToolFind              Name = "find"
	ToolFileInfo          Name = "file_info"
	ToolAskUser           Name = "ask_user"
	ToolExitPlanMode      Name = "exit_plan_mode"
	ToolMemoryList        Name = "memory_list"
	ToolMemoryRead        Name = "memory_read"
	ToolWebFetch          Name = "web_fetch"
	ToolWebSearch         Name = "web_search"
)

// Invocation is the full context passed to an Executor: the caller, the
// workspace it is scoped to, the plan-mode configuration, and the raw
// argument map decoded from the model's tool call.
type Invocation struct {
	WorkspaceID string
	UserID      string
	Config      domain.ToolConfig
	Args        map[string]any
}

// Executor is the signature every registered tool implements. It never
// receives raw filesystem access — only the Invocation and the catalog's
// pre-scoped dependencies closed over at registration time.
type Executor func(ctx context.Context, inv Invocation) (Result, error)

// Definition pairs a tool's schema (surfaced to the Model Gateway) with its
// Executor (enum-dispatch, not reflection, Design Notes).
type Definition struct {
	Name        Name
	Description string
	Schema      map[string]any
	Run         Executor
	// Mutates reports whether this tool can write to the filesystem; used
	// by the plan-mode guard to decide which calls to intercept.
	Mutates bool
}

// Registry is the closed set of tools available to the Chat Actor and the
// MCP transport alike — one implementation, two transports.
type Registry struct {
	defs map[Name]Definition
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[Name]Definition)}
}

func (r *Registry) Register(d Definition) {
	r.defs[d.Name] = d
}

func (r *Registry) Get(name Name) (Definition, bool) {
	d, ok := r.defs[name]
	return d, ok
}

// List returns all registered definitions sorted by name, for stable
// schema enumeration to the Model Gateway and the MCP transport.
func (r *Registry) List() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

const planModeError = "tool_config.plan_mode is true: mutating tools may only target Plan files. " +
	"Use ask_user to confirm intent, then call exit_plan_mode before mutating other files."

// Dispatch looks up name and executes it, enforcing the plan-mode guard
// before handing control to the tool's own logic. targetIsPlan is
// resolved by the caller (the Chat Actor), since only it knows which path
// the tool's args target before the tool itself parses them.
func (r *Registry) Dispatch(ctx context.Context, name Name, inv Invocation, targetIsPlan func() bool) (Result, error) {
	def, ok := r.defs[name]
	if !ok {
		return Result{}, errs.Newf(errs.Validation, "unknown tool %q", name)
	}
	ctx, span := otelx.Tracer("tools").Start(ctx, "tool."+string(name))
	defer span.End()
	if inv.Config.PlanMode && def.Mutates {
		if targetIsPlan == nil || !targetIsPlan() {
			return ErrorResult(planModeError), nil
		}
	}
	return def.Run(ctx, inv)
}
