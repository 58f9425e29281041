package server

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"
)

// LogoutHandler removes the session's tokens and clears the session cookie.
func (s *Server) LogoutHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if id := sessionID(r); id != "" {
			if err := s.store.DeleteSession(r.Context(), id); err != nil {
				log.Err(err).Msg("Failed to delete session")
			}
		}
		s.ClearSessionCookie(w)
		http.Redirect(w, r, safeReturnURL(r.URL.Query().Get(redirectURIParam)), http.StatusSeeOther)
	}
}

// UserinfoHandler returns the userinfo claims stored for the caller's session.
func (s *Server) UserinfoHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := sessionID(r)
		if id == "" {
			writeJSONError(w, "unauthorized", "authentication required", http.StatusUnauthorized)
			return
		}

		record, err := s.store.GetTokenRecord(r.Context(), id)
		if err != nil {
			log.Err(err).Msg("Failed to read session")
			writeJSONError(w, "server_error", "internal error", http.StatusInternalServerError)
			return
		}
		if record == nil {
			writeJSONError(w, "unauthorized", "authentication required", http.StatusUnauthorized)
			return
		}

		claims, err := s.store.GetUserinfoClaims(r.Context(), id)
		if err != nil {
			log.Err(err).Msg("Failed to read userinfo claims")
			writeJSONError(w, "server_error", "internal error", http.StatusInternalServerError)
			return
		}
		if claims == "" {
			claims = "{}"
		}

		w.Header().Set("Content-Type", contentTypeJSON)
		w.Header().Set("Cache-Control", "no-store")
		_, _ = w.Write([]byte(claims))
	}
}

func (s *Server) HealthzHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", contentTypeJSON)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}
}
