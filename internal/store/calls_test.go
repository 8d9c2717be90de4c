package store

import (
	"context"
	"strings"
	"testing"
	"time"
)

func TestCreateCallDefaults(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	call, err := s.CreateCall(ctx, &CallHistory{
		ChannelName: "base-support",
		HostAddress: "0xAAAA000000000000000000000000000000000001",
	})
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}
	if !strings.HasPrefix(call.CallID, "call_") {
		t.Errorf("unexpected call id form: %s", call.CallID)
	}
	if call.Status != CallStatusEnded {
		t.Errorf("expected default status ended, got %s", call.Status)
	}
	if call.HostAddress != strings.ToLower("0xAAAA000000000000000000000000000000000001") {
		t.Errorf("host address not lowercased: %s", call.HostAddress)
	}

	got, err := s.GetCall(ctx, call.CallID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if got.Participants == nil || got.Transcript == nil {
		t.Error("nested documents should round-trip as empty lists, not null")
	}
}

func TestCreateCallPreservesTranscript(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	started := time.Now().Add(-5 * time.Minute)
	ended := time.Now()
	call, err := s.CreateCall(ctx, &CallHistory{
		ChannelName: "base-support",
		HostAddress: "0xbbbb000000000000000000000000000000000001",
		Transcript: []TranscriptTurn{
			{Role: "user", Text: "my deploy reverts", Timestamp: started},
			{Role: "ai", Text: "let's look at the trace", Timestamp: started.Add(time.Second)},
		},
		StartedAt: started,
		EndedAt:   &ended,
		Duration:  300,
	})
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	got, err := s.GetCall(ctx, call.CallID)
	if err != nil {
		t.Fatalf("GetCall: %v", err)
	}
	if len(got.Transcript) != 2 {
		t.Fatalf("expected 2 transcript turns, got %d", len(got.Transcript))
	}
	if got.Transcript[0].Role != "user" || got.Transcript[1].Role != "ai" {
		t.Errorf("transcript order lost: %+v", got.Transcript)
	}
	if got.Duration != 300 {
		t.Errorf("duration lost: %d", got.Duration)
	}
	if got.EndedAt == nil {
		t.Error("ended_at lost")
	}
}

func TestUpdateCall(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	call, err := s.CreateCall(ctx, &CallHistory{
		ChannelName: "base-support",
		HostAddress: "0xcccc000000000000000000000000000000000001",
		Status:      CallStatusActive,
	})
	if err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	status := CallStatusEscalated
	escalatedTo := "devrel-jane"
	human := true
	updated, err := s.UpdateCall(ctx, call.CallID, CallUpdate{
		Status:         &status,
		EscalatedTo:    &escalatedTo,
		HasHumanDevRel: &human,
	})
	if err != nil {
		t.Fatalf("UpdateCall: %v", err)
	}
	if updated.Status != CallStatusEscalated || updated.EscalatedTo != "devrel-jane" || !updated.HasHumanDevRel {
		t.Errorf("patch not applied: %+v", updated)
	}

	if _, err := s.UpdateCall(ctx, "call_missing", CallUpdate{Status: &status}); err != ErrNotFound {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestListCallsFilterAndCount(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice := "0xdddd000000000000000000000000000000000001"
	bob := "0xdddd000000000000000000000000000000000002"
	for i := 0; i < 3; i++ {
		if _, err := s.CreateCall(ctx, &CallHistory{ChannelName: "c", HostAddress: alice}); err != nil {
			t.Fatalf("CreateCall: %v", err)
		}
	}
	if _, err := s.CreateCall(ctx, &CallHistory{ChannelName: "c", HostAddress: bob, Status: CallStatusEscalated}); err != nil {
		t.Fatalf("CreateCall: %v", err)
	}

	calls, err := s.ListCalls(ctx, CallFilter{HostAddress: strings.ToUpper(alice)})
	if err != nil {
		t.Fatalf("ListCalls: %v", err)
	}
	if len(calls) != 3 {
		t.Errorf("expected 3 calls for alice, got %d", len(calls))
	}

	total, err := s.CountCalls(ctx, CallFilter{})
	if err != nil {
		t.Fatalf("CountCalls: %v", err)
	}
	if total != 4 {
		t.Errorf("expected 4 calls total, got %d", total)
	}

	escalated, err := s.ListCalls(ctx, CallFilter{Status: CallStatusEscalated})
	if err != nil {
		t.Fatalf("ListCalls status: %v", err)
	}
	if len(escalated) != 1 || escalated[0].HostAddress != bob {
		t.Errorf("status filter wrong: %+v", escalated)
	}

	page, err := s.ListCalls(ctx, CallFilter{Limit: 2, Skip: 2})
	if err != nil {
		t.Fatalf("ListCalls paged: %v", err)
	}
	if len(page) != 2 {
		t.Errorf("expected page of 2, got %d", len(page))
	}
}
