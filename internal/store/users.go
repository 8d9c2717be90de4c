package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"devrelive/internal/logging"
)

const userColumns = `id, address, username, bio, avatar_url, email, preferences, is_admin,
	total_calls, total_messages, total_duration_seconds, created_at, last_seen_at, updated_at`

// UpsertUser returns the user for the given wallet address, creating one on
// first sign-in. Existing users get their last-seen timestamp bumped.
func (s *Store) UpsertUser(ctx context.Context, address string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	address = strings.ToLower(address)
	now := time.Now()

	existing, err := s.getUserByAddressLocked(ctx, address)
	if err == nil {
		_, err = s.db.ExecContext(ctx,
			"UPDATE users SET last_seen_at = ?, updated_at = ? WHERE address = ?",
			fmtTime(now), fmtTime(now), address,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to bump last seen: %w", err)
		}
		existing.LastSeenAt = now
		existing.UpdatedAt = now
		return existing, nil
	}
	if !errors.Is(err, ErrNotFound) {
		return nil, err
	}

	user := &User{
		ID:         uuid.NewString(),
		Address:    address,
		CreatedAt:  now,
		LastSeenAt: now,
		UpdatedAt:  now,
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO users (id, address, preferences, created_at, last_seen_at, updated_at)
		 VALUES (?, ?, '{}', ?, ?, ?)`,
		user.ID, user.Address, fmtTime(now), fmtTime(now), fmtTime(now),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logging.Store("Created user %s for address %s", user.ID, address)
	return user, nil
}

// GetUserByAddress looks up a user by lowercased wallet address.
func (s *Store) GetUserByAddress(ctx context.Context, address string) (*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getUserByAddressLocked(ctx, strings.ToLower(address))
}

func (s *Store) getUserByAddressLocked(ctx context.Context, address string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+userColumns+" FROM users WHERE address = ?", address)
	return scanUser(row)
}

// ProfileUpdate carries the client-updatable profile fields. Nil pointers
// leave the stored value untouched.
type ProfileUpdate struct {
	Username    *string          `json:"username"`
	Bio         *string          `json:"bio"`
	AvatarURL   *string          `json:"avatarUrl"`
	Email       *string          `json:"email"`
	Preferences *map[string]bool `json:"preferences"`
}

// UpdateUserProfile applies a partial profile update and bumps last-seen.
func (s *Store) UpdateUserProfile(ctx context.Context, address string, upd ProfileUpdate) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	address = strings.ToLower(address)

	sets := []string{"last_seen_at = ?", "updated_at = ?"}
	now := fmtTime(time.Now())
	args := []interface{}{now, now}

	if upd.Username != nil {
		sets = append(sets, "username = ?")
		args = append(args, *upd.Username)
	}
	if upd.Bio != nil {
		sets = append(sets, "bio = ?")
		args = append(args, *upd.Bio)
	}
	if upd.AvatarURL != nil {
		sets = append(sets, "avatar_url = ?")
		args = append(args, *upd.AvatarURL)
	}
	if upd.Email != nil {
		sets = append(sets, "email = ?")
		args = append(args, *upd.Email)
	}
	if upd.Preferences != nil {
		sets = append(sets, "preferences = ?")
		args = append(args, marshalJSON(*upd.Preferences))
	}
	args = append(args, address)

	res, err := s.db.ExecContext(ctx,
		"UPDATE users SET "+strings.Join(sets, ", ")+" WHERE address = ?", args...)
	if err != nil {
		return nil, fmt.Errorf("failed to update user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}

	return s.getUserByAddressLocked(ctx, address)
}

// IncrementUserStats adds to a user's cumulative call counters. Invoked
// asynchronously after a call record is written; callers treat a failure as
// a logged eventual-consistency gap, not a rollback trigger.
func (s *Store) IncrementUserStats(ctx context.Context, address string, calls, messages, durationSeconds int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET
			total_calls = total_calls + ?,
			total_messages = total_messages + ?,
			total_duration_seconds = total_duration_seconds + ?,
			updated_at = ?
		 WHERE address = ?`,
		calls, messages, durationSeconds, fmtTime(time.Now()), strings.ToLower(address),
	)
	if err != nil {
		return fmt.Errorf("failed to increment stats: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListUsers returns users most recently seen first.
func (s *Store) ListUsers(ctx context.Context, limit int) ([]*User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = 50
	}
	if limit > 200 {
		limit = 200
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT "+userColumns+" FROM users ORDER BY last_seen_at DESC LIMIT ?", limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	users := []*User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

// CountUsers returns the total user count.
func (s *Store) CountUsers(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var count int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users").Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count users: %w", err)
	}
	return count, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanUser(row rowScanner) (*User, error) {
	var u User
	var prefs string
	var isAdmin int
	var createdAt, lastSeenAt, updatedAt string

	err := row.Scan(&u.ID, &u.Address, &u.Username, &u.Bio, &u.AvatarURL, &u.Email,
		&prefs, &isAdmin, &u.Stats.TotalCalls, &u.Stats.TotalMessages,
		&u.Stats.TotalDuration, &createdAt, &lastSeenAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}

	u.IsAdmin = isAdmin != 0
	unmarshalJSON(prefs, &u.Preferences)
	u.CreatedAt = parseTime(createdAt)
	u.LastSeenAt = parseTime(lastSeenAt)
	u.UpdatedAt = parseTime(updatedAt)
	return &u, nil
}
