package store

import (
	"context"
	"testing"
)

func TestDashboard(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	addr := "0xcc01000000000000000000000000000000000001"
	user, err := s.UpsertUser(ctx, addr)
	if err != nil {
		t.Fatalf("UpsertUser: %v", err)
	}
	if _, err := s.OpenSession(ctx, user.ID, addr, "", ""); err != nil {
		t.Fatalf("OpenSession: %v", err)
	}
	for i := 0; i < 12; i++ {
		if _, err := s.CreateCall(ctx, &CallHistory{ChannelName: "c", HostAddress: addr}); err != nil {
			t.Fatalf("CreateCall: %v", err)
		}
	}
	issue, err := s.CreateIssue(ctx, &Issue{UserID: user.ID, Address: addr, Topic: "t"})
	if err != nil {
		t.Fatalf("CreateIssue: %v", err)
	}
	if _, err := s.CreateIssue(ctx, &Issue{UserID: user.ID, Address: addr, Topic: "t2", Status: IssueStatusEscalated}); err != nil {
		t.Fatalf("CreateIssue escalated: %v", err)
	}
	resolved := IssueStatusResolved
	if _, err := s.UpdateIssue(ctx, issue.IssueID, IssueUpdate{Status: &resolved}); err != nil {
		t.Fatalf("UpdateIssue: %v", err)
	}

	stats, recent, err := s.Dashboard(ctx, 10)
	if err != nil {
		t.Fatalf("Dashboard: %v", err)
	}

	if stats.TotalUsers != 1 {
		t.Errorf("TotalUsers = %d", stats.TotalUsers)
	}
	if stats.TotalCalls != 12 {
		t.Errorf("TotalCalls = %d", stats.TotalCalls)
	}
	if stats.ActiveSessions != 1 {
		t.Errorf("ActiveSessions = %d", stats.ActiveSessions)
	}
	if stats.OpenIssues != 0 {
		t.Errorf("OpenIssues = %d", stats.OpenIssues)
	}
	if stats.EscalatedIssues != 1 {
		t.Errorf("EscalatedIssues = %d", stats.EscalatedIssues)
	}
	if stats.ResolvedToday != 1 {
		t.Errorf("ResolvedToday = %d", stats.ResolvedToday)
	}
	if len(recent) != 10 {
		t.Errorf("expected 10 recent calls, got %d", len(recent))
	}
}
