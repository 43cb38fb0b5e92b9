package httpapi

import (
	"net/http"
	"strconv"

	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/vfs"
)

func (s *Server) handleListFiles(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	path := r.URL.Query().Get("path")
	recursive, _ := strconv.ParseBool(r.URL.Query().Get("recursive"))

	entries, err := s.deps.Files.List(r.Context(), workspaceID, path, recursive)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleReadFile(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("id")
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, errs.New(errs.Validation, "path query parameter is required"))
		return
	}

	file, err := s.deps.Files.Resolve(r.Context(), workspaceID, path)
	if err != nil {
		writeError(w, err)
		return
	}
	content, version, err := s.deps.Files.ReadContent(r.Context(), file)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"file":    file,
		"content": string(content),
		"version": version,
	})
}

type writeFileRequest struct {
	Path    string `json:"path"`
	Content string `json:"content"`
}

func (s *Server) handleWriteFile(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	var req writeFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	file, version, err := s.deps.Files.Write(r.Context(), r.PathValue("id"), req.Path, []byte(req.Content), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"file": file, "version": version})
}

type editFileRequest struct {
	Path          string `json:"path"`
	Op            string `json:"op"` // "replace" | "insert"
	Old           string `json:"old"`
	New           string `json:"new"`
	InsertLine    int    `json:"insert_line"`
	InsertContent string `json:"insert_content"`
	ExpectedHash  string `json:"expected_hash"`
}

func (s *Server) handleEditFile(w http.ResponseWriter, r *http.Request) {
	userID := userIDFromContext(r.Context())
	var req editFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}

	var op vfs.EditOp
	switch req.Op {
	case "replace":
		op = vfs.EditOp{IsReplace: true, Old: req.Old, New: req.New}
	case "insert":
		op = vfs.EditOp{InsertLine: req.InsertLine, InsertContent: req.InsertContent}
	default:
		writeError(w, errs.Newf(errs.Validation, "unknown edit op %q", req.Op))
		return
	}

	version, err := s.deps.Files.Edit(r.Context(), r.PathValue("id"), req.Path, op, userID, req.ExpectedHash)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, version)
}

func (s *Server) handleRmFile(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Query().Get("path")
	if path == "" {
		writeError(w, errs.New(errs.Validation, "path query parameter is required"))
		return
	}
	if err := s.deps.Files.Rm(r.Context(), r.PathValue("id"), path); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

type mvFileRequest struct {
	Src string `json:"src"`
	Dst string `json:"dst"`
}

func (s *Server) handleMvFile(w http.ResponseWriter, r *http.Request) {
	var req mvFileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	file, err := s.deps.Files.Mv(r.Context(), r.PathValue("id"), req.Src, req.Dst)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, file)
}
