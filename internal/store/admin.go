package store

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"devrelive/internal/logging"
)

// Dashboard gathers the admin rollup: independent counts plus the most
// recent calls. Queries fan out concurrently; any single failure fails the
// whole read (no partial dashboards).
func (s *Store) Dashboard(ctx context.Context, recentLimit int) (*DashboardStats, []*CallHistory, error) {
	timer := logging.StartTimer(logging.CategoryAdmin, "Dashboard")
	defer timer.Stop()

	if recentLimit <= 0 {
		recentLimit = 10
	}

	var stats DashboardStats
	var recent []*CallHistory

	midnight := time.Now().Truncate(24 * time.Hour)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		stats.TotalUsers, err = s.CountUsers(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.TotalCalls, err = s.CountCalls(ctx, CallFilter{})
		return err
	})
	g.Go(func() (err error) {
		stats.ActiveSessions, err = s.CountActiveSessions(ctx)
		return err
	})
	g.Go(func() (err error) {
		stats.OpenIssues, err = s.CountIssues(ctx, IssueFilter{Status: IssueStatusOpen})
		return err
	})
	g.Go(func() (err error) {
		stats.EscalatedIssues, err = s.CountIssues(ctx, IssueFilter{Status: IssueStatusEscalated})
		return err
	})
	g.Go(func() (err error) {
		stats.ResolvedToday, err = s.CountIssuesResolvedSince(ctx, midnight)
		return err
	})
	g.Go(func() (err error) {
		recent, err = s.RecentCalls(ctx, recentLimit)
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, nil, err
	}
	return &stats, recent, nil
}
