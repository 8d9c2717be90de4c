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

const scheduledColumns = `scheduled_call_id, user_id, address, title, topic, notes,
	scheduled_at, duration_minutes, devrel, devrel_address, status, call_id,
	created_at, updated_at`

// CreateScheduledCall books a future call.
func (s *Store) CreateScheduledCall(ctx context.Context, call *ScheduledCall) (*ScheduledCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	if call.ScheduledCallID == "" {
		call.ScheduledCallID = "sched_" + randomHex(8)
	}
	call.Address = strings.ToLower(call.Address)
	call.DevRelAddress = strings.ToLower(call.DevRelAddress)
	if call.DurationMinutes <= 0 {
		call.DurationMinutes = 30
	}
	if call.Status == "" {
		call.Status = ScheduleStatusPending
	}
	call.CreatedAt = now
	call.UpdatedAt = now

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO scheduled_calls (scheduled_call_id, user_id, address, title, topic,
			notes, scheduled_at, duration_minutes, devrel, devrel_address, status, call_id,
			created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		call.ScheduledCallID, call.UserID, call.Address, call.Title, call.Topic,
		call.Notes, fmtTime(call.ScheduledAt), call.DurationMinutes, call.DevRel,
		call.DevRelAddress, call.Status, call.CallID, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduled call: %w", err)
	}

	logging.Store("Booked scheduled call %s at %s", call.ScheduledCallID, call.ScheduledAt.Format(time.RFC3339))
	return call, nil
}

// GetScheduledCall looks up a booking by id.
func (s *Store) GetScheduledCall(ctx context.Context, id string) (*ScheduledCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+scheduledColumns+" FROM scheduled_calls WHERE scheduled_call_id = ?", id)
	return scanScheduledCall(row)
}

// ScheduledCallUpdate carries the fields a PUT may touch.
type ScheduledCallUpdate struct {
	Title           *string    `json:"title"`
	Topic           *string    `json:"topic"`
	Notes           *string    `json:"notes"`
	ScheduledAt     *time.Time `json:"scheduledAt"`
	DurationMinutes *int       `json:"durationMinutes"`
	DevRel          *string    `json:"devrel"`
	Status          *string    `json:"status"`
	CallID          *string    `json:"callId"`
}

// UpdateScheduledCall applies a partial update to a booking.
func (s *Store) UpdateScheduledCall(ctx context.Context, id string, upd ScheduledCallUpdate) (*ScheduledCall, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sets := []string{"updated_at = ?"}
	args := []interface{}{fmtTime(time.Now())}

	if upd.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *upd.Title)
	}
	if upd.Topic != nil {
		sets = append(sets, "topic = ?")
		args = append(args, *upd.Topic)
	}
	if upd.Notes != nil {
		sets = append(sets, "notes = ?")
		args = append(args, *upd.Notes)
	}
	if upd.ScheduledAt != nil {
		sets = append(sets, "scheduled_at = ?")
		args = append(args, fmtTime(*upd.ScheduledAt))
	}
	if upd.DurationMinutes != nil {
		sets = append(sets, "duration_minutes = ?")
		args = append(args, *upd.DurationMinutes)
	}
	if upd.DevRel != nil {
		sets = append(sets, "devrel = ?")
		args = append(args, *upd.DevRel)
	}
	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
	}
	if upd.CallID != nil {
		sets = append(sets, "call_id = ?")
		args = append(args, *upd.CallID)
	}
	args = append(args, id)

	res, err := s.db.ExecContext(ctx,
		"UPDATE scheduled_calls SET "+strings.Join(sets, ", ")+" WHERE scheduled_call_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update scheduled call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+scheduledColumns+" FROM scheduled_calls WHERE scheduled_call_id = ?", id)
	return scanScheduledCall(row)
}

// CancelScheduledCall soft-cancels a booking: the record is kept and
// remains retrievable, only its status changes.
func (s *Store) CancelScheduledCall(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		"UPDATE scheduled_calls SET status = ?, updated_at = ? WHERE scheduled_call_id = ?",
		ScheduleStatusCancelled, fmtTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("failed to cancel scheduled call: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ScheduledCallFilter narrows booking listings.
type ScheduledCallFilter struct {
	Address string
	UserID  string
	Status  string
	From    *time.Time
	Limit   int
}

// ListScheduledCalls returns bookings soonest-first.
func (s *Store) ListScheduledCalls(ctx context.Context, f ScheduledCallFilter) ([]*ScheduledCall, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	if limit > 100 {
		limit = 100
	}

	var conds []string
	var args []interface{}
	if f.Address != "" {
		conds = append(conds, "address = ?")
		args = append(args, strings.ToLower(f.Address))
	}
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	if f.From != nil {
		conds = append(conds, "scheduled_at >= ?")
		args = append(args, fmtTime(*f.From))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+scheduledColumns+" FROM scheduled_calls"+where+
			" ORDER BY scheduled_at ASC LIMIT ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list scheduled calls: %w", err)
	}
	defer rows.Close()

	var calls []*ScheduledCall
	for rows.Next() {
		call, err := scanScheduledCall(rows)
		if err != nil {
			return nil, err
		}
		calls = append(calls, call)
	}
	return calls, rows.Err()
}

func scanScheduledCall(row rowScanner) (*ScheduledCall, error) {
	var c ScheduledCall
	var scheduledAt, createdAt, updatedAt string

	err := row.Scan(&c.ScheduledCallID, &c.UserID, &c.Address, &c.Title, &c.Topic,
		&c.Notes, &scheduledAt, &c.DurationMinutes, &c.DevRel, &c.DevRelAddress,
		&c.Status, &c.CallID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan scheduled call: %w", err)
	}

	c.ScheduledAt = parseTime(scheduledAt)
	c.CreatedAt = parseTime(createdAt)
	c.UpdatedAt = parseTime(updatedAt)
	return &c, nil
}
