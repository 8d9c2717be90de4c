package api

import (
	"errors"
	"net/http"
	"strings"

	"devrelive/internal/auth"
	"devrelive/internal/logging"
)

// handleNonce issues a single-use sign-in nonce.
func (s *Server) handleNonce(w http.ResponseWriter, r *http.Request) {
	nonce, err := s.nonces.Issue()
	if err != nil {
		logging.Get(logging.CategoryAuth).Error("Nonce generation failed: %v", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"nonce": nonce})
}

type verifyRequest struct {
	Address   string `json:"address"`
	Message   string `json:"message"`
	Signature string `json:"signature"`
}

// handleVerify checks a signed sign-in message. A missing or already-used
// nonce is a 400; a signature that fails both key recovery and the
// smart-account check is a 401. Success upserts the user.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := decodeStrict(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.Message == "" || req.Signature == "" {
		writeError(w, http.StatusBadRequest, "address, message and signature are required")
		return
	}

	if err := s.verifier.Verify(r.Context(), req.Address, req.Message, req.Signature); err != nil {
		switch {
		case errors.Is(err, auth.ErrMalformedMessage), errors.Is(err, auth.ErrNonceNotFound):
			writeError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, auth.ErrInvalidSignature):
			writeError(w, http.StatusUnauthorized, err.Error())
		default:
			logging.Get(logging.CategoryAuth).Error("Verify failed for %s: %v", req.Address, err)
			writeError(w, http.StatusInternalServerError, "internal server error")
		}
		return
	}

	user, err := s.store.UpsertUser(r.Context(), strings.ToLower(req.Address))
	if err != nil {
		writeStoreError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"ok":      true,
		"address": user.Address,
		"user":    user,
	})
}
