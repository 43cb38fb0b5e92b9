package httpapi

import "net/http"

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sess, err := s.deps.Sessions.GetByChatID(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sess)
}

// handleSessionStats reports counts by status, used by a
// workspace dashboard to show how many sessions are live vs terminal.
func (s *Server) handleSessionStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.deps.Sessions.Stats(r.Context(), r.PathValue("id"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stats": stats})
}
