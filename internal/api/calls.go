package api

import (
	"net/http"
	"strconv"

	"devrelive/internal/store"
)

// handleCreateCall persists a completed (or in-progress) call record. The
// body is the call document itself; ids and timestamps are filled in by
// the store when absent.
func (s *Server) handleCreateCall(w http.ResponseWriter, r *http.Request) {
	var call store.CallHistory
	if err := decodeStrict(r, &call); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if call.ChannelName == "" || call.HostAddress == "" {
		writeError(w, http.StatusBadRequest, "channelName and hostAddress are required")
		return
	}

	created, err := s.store.CreateCall(r.Context(), &call)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleListCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	skip, _ := strconv.Atoi(q.Get("skip"))

	filter := store.CallFilter{
		HostAddress: q.Get("address"),
		HostUserID:  q.Get("userId"),
		Status:      q.Get("status"),
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

func (s *Server) handleGetCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.store.GetCall(r.Context(), r.PathValue("callId"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (s *Server) handlePatchCall(w http.ResponseWriter, r *http.Request) {
	var upd store.CallUpdate
	if err := decodeStrict(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	call, err := s.store.UpdateCall(r.Context(), r.PathValue("callId"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}
