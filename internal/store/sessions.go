package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"devrelive/internal/logging"
)

const sessionColumns = `session_id, user_id, address, signed_in_at, signed_out_at,
	is_active, duration_seconds, user_agent, ip_address, created_at, updated_at`

// OpenSession creates a new active wallet session for a sign-in. Any
// previously active sessions for the address are deactivated first, which
// keeps the single-active-session-per-address invariant. The deactivate and
// insert are not wrapped in one transaction; two racing sign-ins for the
// same address can briefly leave two active rows (accepted gap).
func (s *Store) OpenSession(ctx context.Context, userID, address, userAgent, ipAddress string) (*WalletSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	address = strings.ToLower(address)
	now := time.Now()

	_, err := s.db.ExecContext(ctx,
		`UPDATE wallet_sessions SET is_active = 0, signed_out_at = ?, updated_at = ?
		 WHERE address = ? AND is_active = 1`,
		fmtTime(now), fmtTime(now), address,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to deactivate prior sessions: %w", err)
	}

	session := &WalletSession{
		SessionID:  "sess_" + randomHex(8),
		UserID:     userID,
		Address:    address,
		SignedInAt: now,
		IsActive:   true,
		UserAgent:  userAgent,
		IPAddress:  ipAddress,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO wallet_sessions (session_id, user_id, address, signed_in_at, is_active,
			user_agent, ip_address, created_at, updated_at)
		 VALUES (?, ?, ?, ?, 1, ?, ?, ?, ?)`,
		session.SessionID, userID, address, fmtTime(now), userAgent, ipAddress,
		fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	logging.Store("Opened session %s for %s", session.SessionID, address)
	return session, nil
}

// EndSession closes a session on sign-out: marks it inactive, stamps the
// sign-out time and returns the elapsed whole seconds. Safe to retry; an
// already-ended session returns its stored duration unchanged.
func (s *Store) EndSession(ctx context.Context, sessionID string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, err := s.getSessionLocked(ctx, sessionID)
	if err != nil {
		return 0, err
	}

	if !session.IsActive && session.SignedOutAt != nil {
		return session.Duration, nil
	}

	now := time.Now()
	duration := int(now.Sub(session.SignedInAt).Seconds())
	if duration < 0 {
		duration = 0
	}

	_, err = s.db.ExecContext(ctx,
		`UPDATE wallet_sessions SET is_active = 0, signed_out_at = ?, duration_seconds = ?, updated_at = ?
		 WHERE session_id = ?`,
		fmtTime(now), duration, fmtTime(now), sessionID,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to end session: %w", err)
	}

	logging.Store("Ended session %s after %ds", sessionID, duration)
	return duration, nil
}

// GetSession looks up a session by id.
func (s *Store) GetSession(ctx context.Context, sessionID string) (*WalletSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getSessionLocked(ctx, sessionID)
}

func (s *Store) getSessionLocked(ctx context.Context, sessionID string) (*WalletSession, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+sessionColumns+" FROM wallet_sessions WHERE session_id = ?", sessionID)
	return scanSession(row)
}

// ListSessionsByAddress returns the most recent sessions for an address.
func (s *Store) ListSessionsByAddress(ctx context.Context, address string, limit int) ([]*WalletSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 20
	}
	if limit > 100 {
		limit = 100
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+sessionColumns+` FROM wallet_sessions
		 WHERE address = ? ORDER BY signed_in_at DESC LIMIT ?`,
		strings.ToLower(address), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	var sessions []*WalletSession
	for rows.Next() {
		session, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, session)
	}
	return sessions, rows.Err()
}

// CountActiveSessions returns the number of currently active sessions.
func (s *Store) CountActiveSessions(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM wallet_sessions WHERE is_active = 1").Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count active sessions: %w", err)
	}
	return count, nil
}

func scanSession(row rowScanner) (*WalletSession, error) {
	var ws WalletSession
	var signedInAt, createdAt, updatedAt string
	var signedOutAt sql.NullString
	var isActive int
	var duration sql.NullInt64

	err := row.Scan(&ws.SessionID, &ws.UserID, &ws.Address, &signedInAt, &signedOutAt,
		&isActive, &duration, &ws.UserAgent, &ws.IPAddress, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan session: %w", err)
	}

	ws.SignedInAt = parseTime(signedInAt)
	ws.SignedOutAt = parseTimePtr(signedOutAt)
	ws.IsActive = isActive != 0
	if duration.Valid {
		ws.Duration = int(duration.Int64)
	}
	ws.CreatedAt = parseTime(createdAt)
	ws.UpdatedAt = parseTime(updatedAt)
	return &ws, nil
}
