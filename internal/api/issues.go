package api

import (
	"net/http"
	"strconv"

	"devrelive/internal/store"
)

type createIssueRequest struct {
	UserID      string `json:"userId"`
	Address     string `json:"address"`
	Topic       string `json:"topic"`
	Description string `json:"description"`
	CallID      string `json:"callId"`
	Priority    string `json:"priority"`
}

// handleCreateIssue opens a support ticket. The issue id is assigned by
// the store from a monotonic counter, so concurrent creates never collide.
func (s *Server) handleCreateIssue(w http.ResponseWriter, r *http.Request) {
	var req createIssueRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.Topic == "" {
		writeError(w, http.StatusBadRequest, "address and topic are required")
		return
	}

	issue, err := s.store.CreateIssue(r.Context(), &store.Issue{
		UserID:      req.UserID,
		Address:     req.Address,
		Topic:       req.Topic,
		Description: req.Description,
		CallID:      req.CallID,
		Priority:    req.Priority,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, issue)
}

func (s *Server) handleListIssues(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	skip, _ := strconv.Atoi(q.Get("skip"))

	issues, err := s.store.ListIssues(r.Context(), store.IssueFilter{
		Address:  q.Get("address"),
		UserID:   q.Get("userId"),
		Status:   q.Get("status"),
		Priority: q.Get("priority"),
		Limit:    limit,
		Skip:     skip,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"issues": issues})
}

func (s *Server) handleGetIssue(w http.ResponseWriter, r *http.Request) {
	issue, err := s.store.GetIssue(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}

func (s *Server) handleUpdateIssue(w http.ResponseWriter, r *http.Request) {
	var upd store.IssueUpdate
	if err := decodeStrict(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	issue, err := s.store.UpdateIssue(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, issue)
}
