package store

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestCreateScheduledCallDefaults(t *testing.T) {
	s := newTestStore(t)

	call, err := s.CreateScheduledCall(context.Background(), &ScheduledCall{
		UserID:      "u1",
		Address:     "0xBB01000000000000000000000000000000000001",
		Title:       "pairing session",
		ScheduledAt: time.Now().Add(24 * time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateScheduledCall: %v", err)
	}
	if !strings.HasPrefix(call.ScheduledCallID, "sched_") {
		t.Errorf("unexpected id form: %s", call.ScheduledCallID)
	}
	if call.DurationMinutes != 30 {
		t.Errorf("expected default 30 minutes, got %d", call.DurationMinutes)
	}
	if call.Status != ScheduleStatusPending {
		t.Errorf("expected default status pending, got %s", call.Status)
	}
	if call.Address != strings.ToLower("0xBB01000000000000000000000000000000000001") {
		t.Errorf("address not lowercased: %s", call.Address)
	}
}

func TestCancelScheduledCallKeepsRecord(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	call, err := s.CreateScheduledCall(ctx, &ScheduledCall{
		UserID:      "u1",
		Address:     "0xbb02",
		Title:       "onboarding",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateScheduledCall: %v", err)
	}

	if err := s.CancelScheduledCall(ctx, call.ScheduledCallID); err != nil {
		t.Fatalf("CancelScheduledCall: %v", err)
	}

	got, err := s.GetScheduledCall(ctx, call.ScheduledCallID)
	if err != nil {
		t.Fatalf("record should survive cancellation: %v", err)
	}
	if got.Status != ScheduleStatusCancelled {
		t.Errorf("expected status cancelled, got %s", got.Status)
	}

	if err := s.CancelScheduledCall(ctx, "sched_missing"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestUpdateScheduledCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	call, err := s.CreateScheduledCall(ctx, &ScheduledCall{
		UserID:      "u1",
		Address:     "0xbb03",
		Title:       "review",
		ScheduledAt: time.Now().Add(time.Hour),
	})
	if err != nil {
		t.Fatalf("CreateScheduledCall: %v", err)
	}

	status := ScheduleStatusConfirmed
	devrel := "jane"
	minutes := 45
	upd, err := s.UpdateScheduledCall(ctx, call.ScheduledCallID, ScheduledCallUpdate{
		Status:          &status,
		DevRel:          &devrel,
		DurationMinutes: &minutes,
	})
	if err != nil {
		t.Fatalf("UpdateScheduledCall: %v", err)
	}
	if upd.Status != ScheduleStatusConfirmed || upd.DevRel != "jane" || upd.DurationMinutes != 45 {
		t.Errorf("update not applied: %+v", upd)
	}
}

func TestListScheduledCallsOrderAndFrom(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now()
	later := now.Add(48 * time.Hour)
	sooner := now.Add(2 * time.Hour)
	past := now.Add(-2 * time.Hour)

	for _, at := range []time.Time{later, sooner, past} {
		if _, err := s.CreateScheduledCall(ctx, &ScheduledCall{
			UserID: "u1", Address: "0xbb04", Title: "t", ScheduledAt: at,
		}); err != nil {
			t.Fatalf("CreateScheduledCall: %v", err)
		}
	}

	all, err := s.ListScheduledCalls(ctx, ScheduledCallFilter{Address: "0xbb04"})
	if err != nil {
		t.Fatalf("ListScheduledCalls: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 bookings, got %d", len(all))
	}
	if !all[0].ScheduledAt.Before(all[1].ScheduledAt) {
		t.Error("bookings not soonest-first")
	}

	upcoming, err := s.ListScheduledCalls(ctx, ScheduledCallFilter{Address: "0xbb04", From: &now})
	if err != nil {
		t.Fatalf("ListScheduledCalls from: %v", err)
	}
	if len(upcoming) != 2 {
		t.Errorf("expected 2 upcoming bookings, got %d", len(upcoming))
	}
}
