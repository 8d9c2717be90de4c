package api

import (
	"net/http"
)

const recentCallsLimit = 10

// handleAdminStats returns the dashboard rollup: independent counts plus
// the most recent calls. Read-only; counts are gathered concurrently and
// are not a consistent snapshot.
func (s *Server) handleAdminStats(w http.ResponseWriter, r *http.Request) {
	stats, recent, err := s.store.Dashboard(r.Context(), recentCallsLimit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"stats":       stats,
		"recentCalls": recent,
	})
}
