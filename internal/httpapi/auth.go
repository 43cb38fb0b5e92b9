package httpapi

import (
	"net/http"

	"github.com/clawdesk/clawbench/internal/authsvc"
)

type registerRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.deps.Auth.Register(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"id": u.ID, "email": u.Email})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	pair, err := s.deps.Auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenPairResponse(pair))
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFromRequest(r)
	if token == "" {
		var req refreshRequest
		_ = decodeJSON(r, &req)
		token = req.RefreshToken
	}
	pair, err := s.deps.Auth.Refresh(r.Context(), token)
	if err != nil {
		writeError(w, err)
		return
	}
	s.setAuthCookies(w, pair)
	writeJSON(w, http.StatusOK, tokenPairResponse(pair))
}

func (s *Server) handleLogout(w http.ResponseWriter, r *http.Request) {
	token := refreshTokenFromRequest(r)
	if token != "" {
		_ = s.deps.Auth.Logout(r.Context(), token)
	}
	s.clearAuthCookies(w)
	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func refreshTokenFromRequest(r *http.Request) string {
	if c, err := r.Cookie("refresh_token"); err == nil {
		return c.Value
	}
	return ""
}

func tokenPairResponse(pair *authsvc.TokenPair) map[string]any {
	return map[string]any{
		"access_token":       pair.AccessToken,
		"access_expires_at":  pair.AccessExpiresAt,
		"refresh_token":      pair.RefreshToken,
		"refresh_expires_at": pair.RefreshExpiresAt,
	}
}
