package api

import (
	"net/http"
	"strconv"

	"devrelive/internal/store"
)

type upsertUserRequest struct {
	Address string `json:"address"`
}

func (s *Server) handleUpsertUser(w http.ResponseWriter, r *http.Request) {
	var req upsertUserRequest
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
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// handleListUsers answers two queries: with ?address= it is a by-address
// lookup returning one user or 404, without it the admin listing.
func (s *Server) handleListUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	if address := q.Get("address"); address != "" {
		user, err := s.store.GetUserByAddress(r.Context(), address)
		if err != nil {
			writeStoreError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
		return
	}

	limit, _ := strconv.Atoi(q.Get("limit"))
	users, err := s.store.ListUsers(r.Context(), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user, err := s.store.GetUserByAddress(r.Context(), r.PathValue("address"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

func (s *Server) handleUpdateUser(w http.ResponseWriter, r *http.Request) {
	var upd store.ProfileUpdate
	if err := decodeStrict(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	user, err := s.store.UpdateUserProfile(r.Context(), r.PathValue("address"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"user": user})
}

// handleUserHistory returns the user's calls, most recent first, with the
// total count for pagination.
func (s *Server) handleUserHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	skip, _ := strconv.Atoi(q.Get("skip"))

	filter := store.CallFilter{
		HostAddress: r.PathValue("address"),
		Limit:       limit,
		Skip:        skip,
	}

	calls, err := s.store.ListCalls(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	total, err := s.store.CountCalls(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls": calls,
		"total": total,
	})
}

func (s *Server) handleUserSessions(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	sessions, err := s.store.ListSessionsByAddress(r.Context(), r.PathValue("address"), limit)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}
