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

const issueColumns = `issue_id, user_id, address, topic, description, call_id, status,
	priority, assigned_to, assigned_to_name, resolution, resolved_at, closed_at,
	created_at, updated_at`

// nextIssueID reserves the next value from the monotonic issue counter and
// formats it as ISS-NNNN. Runs inside a transaction so two concurrent
// creations can never observe the same value.
func nextIssueID(ctx context.Context, tx *sql.Tx) (string, error) {
	if _, err := tx.ExecContext(ctx, "UPDATE issue_counter SET value = value + 1 WHERE id = 1"); err != nil {
		return "", fmt.Errorf("failed to advance issue counter: %w", err)
	}
	var value int
	if err := tx.QueryRowContext(ctx, "SELECT value FROM issue_counter WHERE id = 1").Scan(&value); err != nil {
		return "", fmt.Errorf("failed to read issue counter: %w", err)
	}
	return fmt.Sprintf("ISS-%04d", value), nil
}

// CreateIssue opens a new issue with a sequential human-readable id.
func (s *Store) CreateIssue(ctx context.Context, issue *Issue) (*Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin tx: %w", err)
	}
	defer tx.Rollback()

	issue.IssueID, err = nextIssueID(ctx, tx)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	issue.Address = strings.ToLower(issue.Address)
	if issue.Status == "" {
		issue.Status = IssueStatusOpen
	}
	if issue.Priority == "" {
		issue.Priority = IssuePriorityMedium
	}
	issue.CreatedAt = now
	issue.UpdatedAt = now

	_, err = tx.ExecContext(ctx,
		`INSERT INTO issues (issue_id, user_id, address, topic, description, call_id,
			status, priority, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.IssueID, issue.UserID, issue.Address, issue.Topic, issue.Description,
		issue.CallID, issue.Status, issue.Priority, fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit issue: %w", err)
	}

	logging.Store("Created issue %s for %s", issue.IssueID, issue.Address)
	return issue, nil
}

// GetIssue looks up an issue by its human-readable id.
func (s *Store) GetIssue(ctx context.Context, issueID string) (*Issue, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	row := s.db.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE issue_id = ?", issueID)
	return scanIssue(row)
}

// IssueUpdate carries the fields a PUT may touch.
type IssueUpdate struct {
	Status         *string `json:"status"`
	Priority       *string `json:"priority"`
	Resolution     *string `json:"resolution"`
	AssignedTo     *string `json:"assignedTo"`
	AssignedToName *string `json:"assignedToName"`
	Description    *string `json:"description"`
}

// UpdateIssue applies a partial update. A status transition to resolved or
// closed stamps the corresponding timestamp.
func (s *Store) UpdateIssue(ctx context.Context, issueID string, upd IssueUpdate) (*Issue, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	sets := []string{"updated_at = ?"}
	args := []interface{}{fmtTime(now)}

	if upd.Status != nil {
		sets = append(sets, "status = ?")
		args = append(args, *upd.Status)
		switch *upd.Status {
		case IssueStatusResolved:
			sets = append(sets, "resolved_at = ?")
			args = append(args, fmtTime(now))
		case IssueStatusClosed:
			sets = append(sets, "closed_at = ?")
			args = append(args, fmtTime(now))
		}
	}
	if upd.Priority != nil {
		sets = append(sets, "priority = ?")
		args = append(args, *upd.Priority)
	}
	if upd.Resolution != nil {
		sets = append(sets, "resolution = ?")
		args = append(args, *upd.Resolution)
	}
	if upd.AssignedTo != nil {
		sets = append(sets, "assigned_to = ?")
		args = append(args, *upd.AssignedTo)
	}
	if upd.AssignedToName != nil {
		sets = append(sets, "assigned_to_name = ?")
		args = append(args, *upd.AssignedToName)
	}
	if upd.Description != nil {
		sets = append(sets, "description = ?")
		args = append(args, *upd.Description)
	}
	args = append(args, issueID)

	res, err := s.db.ExecContext(ctx,
		"UPDATE issues SET "+strings.Join(sets, ", ")+" WHERE issue_id = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update issue: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	row := s.db.QueryRowContext(ctx,
		"SELECT "+issueColumns+" FROM issues WHERE issue_id = ?", issueID)
	return scanIssue(row)
}

// IssueFilter narrows issue listings. Zero values mean "no constraint".
type IssueFilter struct {
	Address  string
	UserID   string
	Status   string
	Priority string
	Limit    int
	Skip     int
}

func (f IssueFilter) where() (string, []interface{}) {
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
	if f.Priority != "" {
		conds = append(conds, "priority = ?")
		args = append(args, f.Priority)
	}
	if len(conds) == 0 {
		return "", args
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

// ListIssues returns issues newest-first, filtered and paginated.
func (s *Store) ListIssues(ctx context.Context, f IssueFilter) ([]*Issue, error) {
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
		"SELECT "+issueColumns+" FROM issues"+where+
			" ORDER BY created_at DESC LIMIT ? OFFSET ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	var issues []*Issue
	for rows.Next() {
		issue, err := scanIssue(rows)
		if err != nil {
			return nil, err
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// CountIssues returns the number of issues matching the filter.
func (s *Store) CountIssues(ctx context.Context, f IssueFilter) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where, args := f.where()
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM issues"+where, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return count, nil
}

// CountIssuesResolvedSince counts issues resolved at or after the cutoff.
func (s *Store) CountIssuesResolvedSince(ctx context.Context, cutoff time.Time) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM issues WHERE status = ? AND resolved_at >= ?",
		IssueStatusResolved, fmtTime(cutoff)).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count resolved issues: %w", err)
	}
	return count, nil
}

func scanIssue(row rowScanner) (*Issue, error) {
	var i Issue
	var createdAt, updatedAt string
	var resolvedAt, closedAt sql.NullString

	err := row.Scan(&i.IssueID, &i.UserID, &i.Address, &i.Topic, &i.Description,
		&i.CallID, &i.Status, &i.Priority, &i.AssignedTo, &i.AssignedToName,
		&i.Resolution, &resolvedAt, &closedAt, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan issue: %w", err)
	}

	i.ResolvedAt = parseTimePtr(resolvedAt)
	i.ClosedAt = parseTimePtr(closedAt)
	i.CreatedAt = parseTime(createdAt)
	i.UpdatedAt = parseTime(updatedAt)
	return &i, nil
}
