// Package api exposes the REST surface: auth, users, sessions, calls,
// issues, scheduled calls, admin stats and media-room tokens. All
// responses are JSON; failures carry an {error} envelope.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"devrelive/internal/logging"
	"devrelive/internal/store"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		_ = json.NewEncoder(w).Encode(v)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeStrict parses a JSON request body, rejecting unknown fields so a
// misspelled key fails loudly instead of being silently dropped.
func decodeStrict(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// writeStoreError maps store failures to client responses. Infrastructure
// errors are logged server-side and surfaced as a generic message.
func writeStoreError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	logging.Get(logging.CategoryAPI).Error("Store operation failed: %v", err)
	writeError(w, http.StatusInternalServerError, "internal server error")
}
