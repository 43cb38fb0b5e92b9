package httpapi

import (
	"net/http"

	"github.com/clawdesk/clawbench/internal/actor"
	"github.com/clawdesk/clawbench/internal/domain"
	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/registry"
)

func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := s.deps.Chats.Messages(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}

type sendMessageRequest struct {
	WorkspaceID string               `json:"workspace_id"`
	Message     string               `json:"message"`
	Attachments []domain.Attachment  `json:"attachments"`
	Model       string               `json:"model"`
	Persona     string               `json:"persona"`
	AgentType   domain.AgentType     `json:"agent_type"`
	Mode        domain.Mode          `json:"mode"`
}

// handleSendMessage spawns (or reuses) chatID's Chat Actor and hands it the
// user's message. The actual turn runs asynchronously; progress is only
// observable via GET /chats/{id}/events.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	chatID := r.PathValue("id")

	var req sendMessageRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.WorkspaceID == "" {
		writeError(w, errs.New(errs.Validation, "workspace_id is required"))
		return
	}
	if req.Message == "" {
		writeError(w, errs.New(errs.Validation, "message is required"))
		return
	}

	busy, err := s.deps.Registry.Busy(r.Context(), chatID)
	if err != nil {
		writeError(w, err)
		return
	}
	if busy {
		writeError(w, errs.New(errs.Conflict, "chat already has an active session"))
		return
	}

	agentType := req.AgentType
	if agentType == "" {
		agentType = domain.AgentAssistant
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModeChat
	}

	spawnReq := registry.SpawnRequest{
		WorkspaceID: req.WorkspaceID,
		ChatID:      chatID,
		UserID:      userID,
		AgentType:   agentType,
		Model:       req.Model,
		Mode:        mode,
	}
	cmd := actor.Command{
		Kind:        actor.CmdSend,
		Message:     req.Message,
		Attachments: req.Attachments,
		Model:       req.Model,
		Persona:     req.Persona,
		Ack:         make(chan error, 1),
	}
	if err := s.deps.Registry.Send(r.Context(), spawnReq, cmd); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]any{"accepted": true})
}

func (s *Server) handleCancelChat(w http.ResponseWriter, r *http.Request) {
	chatID := r.PathValue("id")

	cmd := actor.Command{Kind: actor.CmdCancel, Ack: make(chan error, 1)}
	found, err := s.deps.Registry.SendExisting(r.Context(), chatID, cmd)
	if err != nil {
		writeError(w, err)
		return
	}
	if !found {
		writeError(w, errs.New(errs.NotFound, "chat has no active session"))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}
