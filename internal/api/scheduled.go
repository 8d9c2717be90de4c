package api

import (
	"net/http"
	"strconv"
	"time"

	"devrelive/internal/store"
)

type createScheduledCallRequest struct {
	UserID          string    `json:"userId"`
	Address         string    `json:"address"`
	Title           string    `json:"title"`
	Topic           string    `json:"topic"`
	Notes           string    `json:"notes"`
	ScheduledAt     time.Time `json:"scheduledAt"`
	DurationMinutes int       `json:"durationMinutes"`
	DevRel          string    `json:"devrel"`
	DevRelAddress   string    `json:"devrelAddress"`
}

func (s *Server) handleCreateScheduledCall(w http.ResponseWriter, r *http.Request) {
	var req createScheduledCallRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.Title == "" || req.ScheduledAt.IsZero() {
		writeError(w, http.StatusBadRequest, "address, title and scheduledAt are required")
		return
	}

	call, err := s.store.CreateScheduledCall(r.Context(), &store.ScheduledCall{
		UserID:          req.UserID,
		Address:         req.Address,
		Title:           req.Title,
		Topic:           req.Topic,
		Notes:           req.Notes,
		ScheduledAt:     req.ScheduledAt,
		DurationMinutes: req.DurationMinutes,
		DevRel:          req.DevRel,
		DevRelAddress:   req.DevRelAddress,
	})
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, call)
}

func (s *Server) handleListScheduledCalls(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))

	filter := store.ScheduledCallFilter{
		Address: q.Get("address"),
		UserID:  q.Get("userId"),
		Status:  q.Get("status"),
		Limit:   limit,
	}
	if from := q.Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			writeError(w, http.StatusBadRequest, "from must be an RFC3339 timestamp")
			return
		}
		filter.From = &t
	}

	calls, err := s.store.ListScheduledCalls(r.Context(), filter)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"scheduledCalls": calls})
}

func (s *Server) handleGetScheduledCall(w http.ResponseWriter, r *http.Request) {
	call, err := s.store.GetScheduledCall(r.Context(), r.PathValue("id"))
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

func (s *Server) handleUpdateScheduledCall(w http.ResponseWriter, r *http.Request) {
	var upd store.ScheduledCallUpdate
	if err := decodeStrict(r, &upd); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	call, err := s.store.UpdateScheduledCall(r.Context(), r.PathValue("id"), upd)
	if err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, call)
}

// handleCancelScheduledCall soft-cancels a booking: the record survives
// with status cancelled.
func (s *Server) handleCancelScheduledCall(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	if err := s.store.CancelScheduledCall(r.Context(), id); err != nil {
		writeStoreError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"scheduledCallId": id,
		"status":          store.ScheduleStatusCancelled,
	})
}
