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

const callColumns = `call_id, channel_name, topic, host_address, host_user_id, participants,
	transcript, status, started_at, ended_at, duration_seconds, has_human_devrel,
	escalated_to, resolution, created_at, updated_at`

// CreateCall persists a call record. In the normal flow this happens when
// the host hangs up, with transcript and duration computed by the caller and
// submitted in one write.
func (s *Store) CreateCall(ctx context.Context, call *CallHistory) (*CallHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if call.CallID == "" {
		call.CallID = "call_" + randomHex(8)
	}
	call.HostAddress = strings.ToLower(call.HostAddress)
	if call.Status == "" {
		call.Status = CallStatusEnded
	}
	if call.StartedAt.IsZero() {
		call.StartedAt = now
	}
	if call.Participants == nil {
		call.Participants = []Participant{}
	}
	if call.Transcript == nil {
		call.Transcript = []TranscriptTurn{}
	}
	call.CreatedAt = now
	call.UpdatedAt = now

	hasHuman := 0
	if call.HasHumanDevRel {
		hasHuman = 1
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_history (call_id, channel_name, topic, host_address, host_user_id,
			participants, transcript, status, started_at, ended_at, duration_seconds,
			has_human_devrel, escalated_to, resolution, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.CallID, call.ChannelName, call.Topic, call.HostAddress, call.HostUserID,
		marshalJSON(call.Participants), marshalJSON(call.Transcript), call.Status,
		fmtTime(call.StartedAt), fmtTimePtr(call.EndedAt), call.Duration,
		hasHuman, call.EscalatedTo, call.Resolution, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create call: %w", err)
	}

	logging.Store("Saved call %s (%d transcript turns, %ds)", call.CallID, len(call.Transcript), call.Duration)
	return call, nil
}

// GetCall fetches a single call with full transcript.
func (s *Store) GetCall(ctx context.Context, callID string) (*CallHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+callColumns+" FROM call_history WHERE call_id = ?", callID)
	return scanCall(row)
}

// CallUpdate carries the fields a PATCH may touch.
type CallUpdate struct {
	Status         *string    `json:"status"`
	Resolution     *string    `json:"resolution"`
	EndedAt        *time.Time `json:"endTime"`
	Duration       *int       `json:"duration"`
	HasHumanDevRel *bool      `json:"hasHumanDevRel"`
	EscalatedTo    *string    `json:"escalatedTo"`
}

// UpdateCall applies a partial update to a call record.
func (s *Store) UpdateCall(ctx context.Context, callID string, upd CallUpdate) (*CallHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{"updated_at = ?"}
	args := []interface{}{fmtTime(time.Now())}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.Resolution != nil {
		sets = append(sets, "resolution = ?")
		args = append(args, *upd.Resolution)
	}
	if upd.EndedAt != nil {
		sets = append(sets, "ended_at = ?")
		args = append(args, fmtTime(*upd.EndedAt))
	}
	if upd.Duration != nil {
		sets = append(sets, "duration_seconds = ?")
		args = append(args, *upd.Duration)
	}
	if upd.HasHumanDevRel != nil {
		v := 0
		if *upd.HasHumanDevRel {
			v = 1
		}
		sets = append(sets, "has_human_devrel = ?")
		args = append(args, v)
	}
	if upd.EscalatedTo != nil {
		sets = append(sets, "escalated_to = ?")
		args = append(args, *upd.EscalatedTo)
	}
	args = append(args, callID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE call_history SET "+strings.Join(sets, ", ")+" WHERE call_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+callColumns+" FROM call_history WHERE call_id = ?", callID)
	return scanCall(row)
}

// CallFilter narrows call listings. Zero values mean "no constraint".
type CallFilter struct {
	HostAddress string
	HostUserID  string
	Status      string
	Limit       int
	Skip        int
}

func (f CallFilter) where() (string, []interface{}) {
	var conds []string
	var args []interface{}
	if f.HostAddress != "" {
		conds = append(conds, "host_address = ?")
		args = append(args, strings.ToLower(f.HostAddress))
	}
	if f.HostUserID != "" {
		conds = append(conds, "host_user_id = ?")
		args = append(args, f.HostUserID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListCalls returns calls most-recent-first, filtered and paginated.
func (s *Store) ListCalls(ctx context.Context, f CallFilter) ([]*CallHistory, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}
	skip := f.Skip
	if skip < 0 {
		skip = 0
	}

	where, args := f.where()
	args = append(args, limit, skip)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+callColumns+" FROM call_history"+where+
			" ORDER BY started_at DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list calls: %w", err)
	}
	defer rows.Close()

	var calls []*CallHistory
	for rows.Next() {
		call, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

// CountCalls returns the number of calls matching the filter.
func (s *Store) CountCalls(ctx context.Context, f CallFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.where()
	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM call_history"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count calls: %w", err)
	}
	return count, nil
}

// RecentCalls returns the newest calls for the admin dashboard.
func (s *Store) RecentCalls(ctx context.Context, limit int) ([]*CallHistory, error) {
	return s.ListCalls(ctx, CallFilter{Limit: limit})
}

func scanCall(row rowScanner) (*CallHistory, error) {
	var c CallHistory
	var participants, transcript string
	var startedAt, createdAt, updatedAt string
	var endedAt sql.NullString
	var hasHuman int

	err := row.Scan(&c.CallID, &c.ChannelName, &c.Topic, &c.HostAddress, &c.HostUserID,
		&participants, &transcript, &c.Status, &startedAt, &endedAt, &c.Duration,
		&hasHuman, &c.EscalatedTo, &c.Resolution, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan call: %w", err)
	}

	unmarshalJSON(participants, &c.Participants)
	unmarshalJSON(transcript, &c.Transcript)
	if c.Participants == nil {
		c.Participants = []Participant{}
	}
	if c.Transcript == nil {
		c.Transcript = []TranscriptTurn{}
	}
	c.StartedAt = parseTime(startedAt)
	c.EndedAt = parseTimePtr(endedAt)
	c.HasHumanDevRel = hasHuman != 0
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
