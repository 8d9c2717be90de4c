// Package store implements the DevReLive document store on SQLite.
// Entities keep their document shape: nested lists (transcripts,
// participants, preferences) are stored as JSON columns rather than
// normalized into side tables.
package store

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"devrelive/internal/logging"
)

// ErrNotFound is returned when a lookup matches no document.
var ErrNotFound = errors.New("not found")

// Store is the shared document store. All persistent entities live here;
// request handlers share it by reference and it is torn down on shutdown.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// New initializes the SQLite database at the given path.
func New(path string) (*Store, error) {
	timer := logging.StartTimer(logging.CategoryStore, "store.New")
	defer timer.Stop()

	logging.Store("Initializing document store at path: %s", path)

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		logging.StoreDebug("Failed to set sqlite busy_timeout: %v", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite journal_mode=WAL: %v", err)
	}
	// NORMAL is safe under WAL and considerably faster than FULL.
	if _, err := db.Exec("PRAGMA synchronous = NORMAL"); err != nil {
		logging.StoreDebug("Failed to set sqlite synchronous=NORMAL: %v", err)
	}

	s := &Store{db: db, dbPath: path}
	if err := s.initialize(); err != nil {
		db.Close()
		return nil, err
	}

	if err := RunMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}

	logging.Store("Document store ready (users, sessions, calls, issues, schedule)")
	return s, nil
}

// initialize creates the required tables.
func (s *Store) initialize() error {
	usersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		address TEXT NOT NULL UNIQUE,
		username TEXT DEFAULT '',
		bio TEXT DEFAULT '',
		avatar_url TEXT DEFAULT '',
		email TEXT DEFAULT '',
		preferences TEXT DEFAULT '{}',
		is_admin INTEGER DEFAULT 0,
		total_calls INTEGER DEFAULT 0,
		total_messages INTEGER DEFAULT 0,
		total_duration_seconds INTEGER DEFAULT 0,
		created_at TEXT NOT NULL,
		last_seen_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_users_address ON users(address);
	`

	sessionsTable := `
	CREATE TABLE IF NOT EXISTS wallet_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		address TEXT NOT NULL,
		signed_in_at TEXT NOT NULL,
		signed_out_at TEXT,
		is_active INTEGER DEFAULT 1,
		duration_seconds INTEGER,
		user_agent TEXT DEFAULT '',
		ip_address TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_address ON wallet_sessions(address);
	CREATE INDEX IF NOT EXISTS idx_sessions_user ON wallet_sessions(user_id, signed_in_at DESC);
	CREATE INDEX IF NOT EXISTS idx_sessions_active ON wallet_sessions(is_active);
	`

	callsTable := `
	CREATE TABLE IF NOT EXISTS call_history (
		call_id TEXT PRIMARY KEY,
		channel_name TEXT NOT NULL,
		topic TEXT DEFAULT '',
		host_address TEXT NOT NULL,
		host_user_id TEXT DEFAULT '',
		participants TEXT DEFAULT '[]',
		transcript TEXT DEFAULT '[]',
		status TEXT DEFAULT 'active',
		started_at TEXT NOT NULL,
		ended_at TEXT,
		duration_seconds INTEGER DEFAULT 0,
		has_human_devrel INTEGER DEFAULT 0,
		escalated_to TEXT DEFAULT '',
		resolution TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_calls_host ON call_history(host_address, started_at DESC);
	CREATE INDEX IF NOT EXISTS idx_calls_status ON call_history(status);
	`

	issuesTable := `
	CREATE TABLE IF NOT EXISTS issues (
		issue_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		address TEXT NOT NULL,
		topic TEXT NOT NULL,
		description TEXT DEFAULT '',
		call_id TEXT DEFAULT '',
		status TEXT DEFAULT 'open',
		priority TEXT DEFAULT 'medium',
		assigned_to TEXT DEFAULT '',
		assigned_to_name TEXT DEFAULT '',
		resolution TEXT DEFAULT '',
		resolved_at TEXT,
		closed_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_issues_user ON issues(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_issues_status ON issues(status);
	CREATE INDEX IF NOT EXISTS idx_issues_priority ON issues(priority);
	`

	// Monotonic counter backing human-readable issue ids. A count-then-format
	// scheme races under concurrent creation; the counter row does not.
	issueCounterTable := `
	CREATE TABLE IF NOT EXISTS issue_counter (
		id INTEGER PRIMARY KEY CHECK (id = 1),
		value INTEGER NOT NULL DEFAULT 0
	);
	INSERT OR IGNORE INTO issue_counter (id, value) VALUES (1, 0);
	`

	scheduledTable := `
	CREATE TABLE IF NOT EXISTS scheduled_calls (
		scheduled_call_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		address TEXT NOT NULL,
		title TEXT NOT NULL,
		topic TEXT DEFAULT '',
		notes TEXT DEFAULT '',
		scheduled_at TEXT NOT NULL,
		duration_minutes INTEGER DEFAULT 30,
		devrel TEXT DEFAULT '',
		devrel_address TEXT DEFAULT '',
		status TEXT DEFAULT 'pending',
		call_id TEXT DEFAULT '',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_scheduled_user ON scheduled_calls(user_id, scheduled_at);
	CREATE INDEX IF NOT EXISTS idx_scheduled_address ON scheduled_calls(address);
	`

	for _, table := range []string{usersTable, sessionsTable, callsTable, issuesTable, issueCounterTable, scheduledTable} {
		if _, err := s.db.Exec(table); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// DB exposes the underlying handle for migrations and tests.
func (s *Store) DB() *sql.DB {
	return s.db
}

// Ping verifies the database is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// =============================================================================
// HELPERS
// =============================================================================

// randomHex returns n random bytes hex-encoded (2n characters).
func randomHex(n int) string {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(fmt.Sprintf("store: crypto/rand failed: %v", err))
	}
	return hex.EncodeToString(b)
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func fmtTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseTime(s string) time.Time {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}
	}
	return t
}

func parseTimePtr(s sql.NullString) *time.Time {
	if !s.Valid || s.String == "" {
		return nil
	}
	t := parseTime(s.String)
	return &t
}

func marshalJSON(v interface{}) string {
	data, err := json.Marshal(v)
	if err != nil {
		return "null"
	}
	return string(data)
}

func unmarshalJSON(data string, v interface{}) {
	if data == "" {
		return
	}
	// Corrupt JSON leaves the destination zero-valued; callers treat that
	// as an empty document rather than failing the whole read.
	_ = json.Unmarshal([]byte(data), v)
}
