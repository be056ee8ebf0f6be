package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"monrelay/internal/relay"
)

// SessionsHandler exposes the relay's live-session view for operators.
type SessionsHandler struct {
	Relay *relay.Relay
}

// GetSessions returns every live viewer and agent session.
func (h *SessionsHandler) GetSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.Relay.GetAllSessions()

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

// GetSessionByHost resolves a host key (or bare IP) to its agent session.
func (h *SessionsHandler) GetSessionByHost(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "hostKey")

	info, ok := h.Relay.GetSessionByHostname(key)
	if !ok {
		http.Error(w, "no session for host", http.StatusNotFound)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
