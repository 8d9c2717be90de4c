package api

import (
	"net/http"

	"devrelive/internal/logging"
)

// handleLiveKitToken mints a media-room access token for human-to-human
// calls. Requires room and username query parameters.
func (s *Server) handleLiveKitToken(w http.ResponseWriter, r *http.Request) {
	if s.minter == nil {
		writeError(w, http.StatusServiceUnavailable, "media rooms are not configured")
		return
	}

	q := r.URL.Query()
	room := q.Get("room")
	username := q.Get("username")
	if room == "" || username == "" {
		writeError(w, http.StatusBadRequest, "room and username are required")
		return
	}

	token, err := s.minter.Mint(room, username)
	if err != nil {
		logging.Get(logging.CategoryAPI).Error("Token mint failed for room %s: %v", room, err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}
