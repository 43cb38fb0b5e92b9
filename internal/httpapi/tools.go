package httpapi

import (
	"net/http"

	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/tools"
)

type toolInvokeRequest struct {
	Tool string         `json:"tool"`
	Args map[string]any `json:"args"`
}

// handleToolInvoke is the Tool API: POST /workspaces/{id}/tools with
// {tool, args} -> {success, result?, error?}. A tool call made through this
// endpoint is never plan-mode-gated since it is not bound to any chat's
// mode/activePlanPath; it always runs as an unrestricted workspace-scoped
// call.
func (s *Server) handleToolInvoke(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	var req toolInvokeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.Tool == "" {
		writeError(w, errs.New(errs.Validation, "tool is required"))
		return
	}

	inv := tools.Invocation{
		WorkspaceID: r.PathValue("id"),
		UserID:      userID,
		Config:      domain.ToolConfig{},
		Args:        req.Args,
	}
	result, err := s.deps.ToolCat.Dispatch(r.Context(), tools.Name(req.Tool), inv, func() bool { return false })
	if err != nil {
		// Validation (unknown tool) is the only error Dispatch itself
		// returns; propagate it as a structured 4xx, not inside the
		// success envelope.
		writeError(w, err)
		return
	}
	if result.IsError {
		writeJSON(w, http.StatusOK, map[string]any{"success": false, "error": result.Err})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": result.ForUser})
}
