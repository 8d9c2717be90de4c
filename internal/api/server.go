package api

import (
	"net/http"

	"go.uber.org/zap"

	"devrelive/internal/auth"
	"devrelive/internal/livekit"
	"devrelive/internal/store"
)

// Server holds the handler dependencies and builds the route table.
type Server struct {
	store    *store.Store
	nonces   *auth.NonceStore
	verifier *auth.Verifier
	minter   *livekit.TokenMinter // nil when LiveKit is unconfigured
	log      *zap.Logger
}

// NewServer wires the REST layer. minter may be nil; the livekit endpoint
// then reports the feature as unavailable.
func NewServer(st *store.Store, nonces *auth.NonceStore, verifier *auth.Verifier, minter *livekit.TokenMinter, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	return &Server{store: st, nonces: nonces, verifier: verifier, minter: minter, log: log}
}

// Handler returns the full route table wrapped in recovery and request
// logging middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/auth/nonce", s.handleNonce)
	mux.HandleFunc("POST /api/auth/verify", s.handleVerify)

	mux.HandleFunc("POST /api/users", s.handleUpsertUser)
	mux.HandleFunc("GET /api/users", s.handleListUsers)
	mux.HandleFunc("GET /api/users/{address}", s.handleGetUser)
	mux.HandleFunc("PUT /api/users/{address}", s.handleUpdateUser)
	mux.HandleFunc("GET /api/users/{address}/history", s.handleUserHistory)
	mux.HandleFunc("GET /api/users/{address}/sessions", s.handleUserSessions)

	mux.HandleFunc("POST /api/sessions", s.handleOpenSession)
	mux.HandleFunc("PUT /api/sessions/{sessionId}/end", s.handleEndSession)

	mux.HandleFunc("POST /api/calls", s.handleCreateCall)
	mux.HandleFunc("GET /api/calls", s.handleListCalls)
	mux.HandleFunc("GET /api/calls/{callId}", s.handleGetCall)
	mux.HandleFunc("PATCH /api/calls/{callId}", s.handlePatchCall)

	mux.HandleFunc("POST /api/issues", s.handleCreateIssue)
	mux.HandleFunc("GET /api/issues", s.handleListIssues)
	mux.HandleFunc("GET /api/issues/{id}", s.handleGetIssue)
	mux.HandleFunc("PUT /api/issues/{id}", s.handleUpdateIssue)

	mux.HandleFunc("POST /api/scheduled-calls", s.handleCreateScheduledCall)
	mux.HandleFunc("GET /api/scheduled-calls", s.handleListScheduledCalls)
	mux.HandleFunc("GET /api/scheduled-calls/{id}", s.handleGetScheduledCall)
	mux.HandleFunc("PUT /api/scheduled-calls/{id}", s.handleUpdateScheduledCall)
	mux.HandleFunc("DELETE /api/scheduled-calls/{id}", s.handleCancelScheduledCall)

	mux.HandleFunc("GET /api/admin/stats", s.handleAdminStats)
	mux.HandleFunc("GET /api/livekit", s.handleLiveKitToken)

	return s.withRecovery(s.withLogging(mux))
}
