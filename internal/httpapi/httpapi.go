// Package httpapi is the external HTTP surface: a JSON REST API plus a
// single SSE stream on a Go 1.22 method-pattern http.ServeMux, with
// bearer-or-cookie authentication.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/clawdesk/clawbench/internal/authsvc"
	"github.com/clawdesk/clawbench/internal/cache"
	"github.com/clawdesk/clawbench/internal/chatstore"
	"github.com/clawdesk/clawbench/internal/errs"
	"github.com/clawdesk/clawbench/internal/registry"
	"github.com/clawdesk/clawbench/internal/sessions"
	"github.com/clawdesk/clawbench/internal/tools"
	"github.com/clawdesk/clawbench/internal/vfs"
	"github.com/clawdesk/clawbench/internal/workspacesvc"
)

// Deps bundles the process-wide collaborators the HTTP surface reads from.
// Deps is built once at startup and never mutated by a handler.
type Deps struct {
	Auth       authsvc.Service
	Workspaces workspacesvc.Service
	Files      vfs.Store
	Chats      chatstore.Store
	Sessions   sessions.Store
	ToolCat    *tools.Registry
	Registry   *registry.Registry
	Cache      cache.Store

	CookieSecure bool
}

// Server wires Deps into a routable mux.
type Server struct {
	deps Deps
	mux  *http.ServeMux
}

func NewServer(deps Deps) *Server {
	s := &Server{deps: deps}
	s.mux = http.NewServeMux()
	s.registerRoutes()
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealth)

	s.mux.HandleFunc("POST /auth/register", s.handleRegister)
	s.mux.HandleFunc("POST /auth/login", s.handleLogin)
	s.mux.HandleFunc("POST /auth/refresh", s.handleRefresh)
	s.mux.HandleFunc("POST /auth/logout", s.handleLogout)

	s.mux.HandleFunc("POST /workspaces", s.requireAuth(s.handleCreateWorkspace))
	s.mux.HandleFunc("GET /workspaces", s.requireAuth(s.handleListWorkspaces))
	s.mux.HandleFunc("GET /workspaces/{id}", s.requireAuth(s.handleGetWorkspace))
	s.mux.HandleFunc("GET /workspaces/{id}/roles", s.requireAuth(s.handleListRoles))
	s.mux.HandleFunc("POST /workspaces/{id}/roles", s.requireAuth(s.handleCreateRole))
	s.mux.HandleFunc("GET /workspaces/{id}/members", s.requireAuth(s.handleListMembers))
	s.mux.HandleFunc("POST /workspaces/{id}/members", s.requireAuth(s.handleAddMember))
	s.mux.HandleFunc("DELETE /workspaces/{id}/members/{userID}", s.requireAuth(s.handleRemoveMember))
	s.mux.HandleFunc("GET /workspaces/{id}/invitations", s.requireAuth(s.handleListInvitations))
	s.mux.HandleFunc("POST /workspaces/{id}/invitations", s.requireAuth(s.handleInvite))
	s.mux.HandleFunc("POST /invitations/{id}/accept", s.requireAuth(s.handleAcceptInvitation))

	s.mux.HandleFunc("GET /workspaces/{id}/files", s.requireAuth(s.handleListFiles))
	s.mux.HandleFunc("GET /workspaces/{id}/files/content", s.requireAuth(s.handleReadFile))
	s.mux.HandleFunc("POST /workspaces/{id}/files", s.requireAuth(s.handleWriteFile))
	s.mux.HandleFunc("POST /workspaces/{id}/files/edit", s.requireAuth(s.handleEditFile))
	s.mux.HandleFunc("DELETE /workspaces/{id}/files", s.requireAuth(s.handleRmFile))
	s.mux.HandleFunc("POST /workspaces/{id}/files/move", s.requireAuth(s.handleMvFile))

	s.mux.HandleFunc("POST /workspaces/{id}/tools", s.requireAuth(s.handleToolInvoke))

	s.mux.HandleFunc("GET /chats/{id}/messages", s.requireAuth(s.handleListMessages))
	s.mux.HandleFunc("POST /chats/{id}/messages", s.requireAuth(s.handleSendMessage))
	s.mux.HandleFunc("POST /chats/{id}/cancel", s.requireAuth(s.handleCancelChat))
	s.mux.HandleFunc("GET /chats/{id}/events", s.requireAuth(s.handleChatEvents))

	s.mux.HandleFunc("GET /chats/{id}/session", s.requireAuth(s.handleGetSession))
	s.mux.HandleFunc("GET /workspaces/{id}/sessions/stats", s.requireAuth(s.handleSessionStats))
}

// --- JSON envelope helpers -------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("httpapi: encode response", "error", err)
	}
}

// writeError maps err to the error taxonomy's HTTP status and the
// {error, code, details?} envelope every 4xx response carries.
func writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	status := errs.HTTPStatus(kind)

	body := map[string]any{
		"error": err.Error(),
		"code":  errs.Code(kind),
	}
	var e *errs.Error
	if errors.As(err, &e) && e.Details != nil {
		body["details"] = e.Details
	}
	if status >= 500 {
		slog.Error("httpapi: internal error", "error", err)
		writeJSON(w, status, map[string]any{"error": "internal error", "code": errs.Code(errs.Internal)})
		return
	}
	writeJSON(w, status, body)
}

func decodeJSON(r *http.Request, dst any) error {
	if r.Body == nil {
		return errs.New(errs.Validation, "request body is required")
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errs.Wrap(errs.Validation, err, "malformed request body")
	}
	return nil
}

// --- auth middleware & token extraction ------------------------------------

type ctxKey int

const userIDKey ctxKey = iota

// extractAccessToken implements the "Bearer or access_token cookie, header
// takes precedence" rule.
func extractAccessToken(r *http.Request) string {
	if auth := r.Header.Get("Authorization"); auth != "" {
		if tok, ok := strings.CutPrefix(auth, "Bearer "); ok {
			return tok
		}
	}
	if c, err := r.Cookie("access_token"); err == nil {
		return c.Value
	}
	return ""
}

func (s *Server) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		tok := extractAccessToken(r)
		if tok == "" {
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "missing credentials", "code": errs.Code(errs.Authentication)})
			return
		}
		userID, err := s.deps.Auth.Authenticate(r.Context(), tok)
		if err != nil {
			writeError(w, err)
			return
		}
		ctx := context.WithValue(r.Context(), userIDKey, userID)
		next(w, r.WithContext(ctx))
	}
}

func userIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(userIDKey).(string)
	return id
}

// --- cookie packaging -------------------------------------------------------

const (
	accessCookieMaxAge  = 900
	refreshCookieMaxAge = 2_592_000
)

func (s *Server) setAuthCookies(w http.ResponseWriter, pair *authsvc.TokenPair) {
	http.SetCookie(w, &http.Cookie{
		Name: "access_token", Value: pair.AccessToken, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode, Secure: s.deps.CookieSecure,
		MaxAge: accessCookieMaxAge,
	})
	http.SetCookie(w, &http.Cookie{
		Name: "refresh_token", Value: pair.RefreshToken, Path: "/",
		HttpOnly: true, SameSite: http.SameSiteLaxMode, Secure: s.deps.CookieSecure,
		MaxAge: refreshCookieMaxAge,
	})
}

func (s *Server) clearAuthCookies(w http.ResponseWriter) {
	for _, name := range []string{"access_token", "refresh_token"} {
		http.SetCookie(w, &http.Cookie{
			Name: name, Value: "", Path: "/",
			HttpOnly: true, SameSite: http.SameSiteLaxMode, Secure: s.deps.CookieSecure,
			MaxAge: -1,
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	health, err := s.deps.Cache.Health(r.Context())
	body := map[string]any{
		"status": "ok",
		"time":   time.Now().UTC(),
	}
	if err == nil {
		body["cache"] = health
	}
	writeJSON(w, http.StatusOK, body)
}
