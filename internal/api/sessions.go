package api

import (
	"net/http"
)

type openSessionRequest struct {
	UserID    string `json:"userId"`
	Address   string `json:"address"`
	UserAgent string `json:"userAgent"`
	IPAddress string `json:"ipAddress"`
}

// handleOpenSession records a wallet sign-in. The user is upserted first so
// a session always references a user row, and any session still active for
// the address is closed out before the new one opens. Clients may send a
// cached userId; the address is authoritative and the stored id wins when
// the two disagree.
func (s *Server) handleOpenSession(w http.ResponseWriter, r *http.Request) {
	var req openSessionRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" {
		writeError(w, http.StatusBadRequest, "address is required")
		return
	}

	user, err := s.store.UpsertUser(r.Context(), req.Address)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	userAgent := req.UserAgent
	if userAgent == "" {
		userAgent = r.UserAgent()
	}
	ip := req.IPAddress
	if ip == "" {
		ip = r.RemoteAddr
	}

	session, err := s.store.OpenSession(r.Context(), user.ID, user.Address, userAgent, ip)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]interface{}{"session": session})
}

// handleEndSession stamps the sign-out time and returns the session
// duration in whole seconds. Ending an already-ended session returns its
// stored duration unchanged.
func (s *Server) handleEndSession(w http.ResponseWriter, r *http.Request) {
	sessionID := r.PathValue("sessionId")

	duration, err := s.store.EndSession(r.Context(), sessionID)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"sessionId": sessionID,
		"duration":  duration,
	})
}
