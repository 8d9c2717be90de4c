package store

// Versioned schema migrations. The base schema is created with
// CREATE TABLE IF NOT EXISTS; migrations handle databases created by older
// builds that are missing newer columns.

import (
	"database/sql"
	"fmt"

	"devrelive/internal/logging"
)

// Schema versions:
// v1: users, wallet_sessions, call_history, issues, scheduled_calls
// v2: call topic/escalation columns, user admin flag
// v3: issue_counter table replacing count-derived issue ids
const CurrentSchemaVersion = 3

// Migration defines a column-add schema migration.
type Migration struct {
	Table  string
	Column string
	Def    string
}

// pendingMigrations lists columns added after the v1 schema.
var pendingMigrations = []Migration{
	// Call escalation fields (added with human-DevRel handoff)
	{"call_history", "topic", "TEXT DEFAULT ''"},
	{"call_history", "has_human_devrel", "INTEGER DEFAULT 0"},
	{"call_history", "escalated_to", "TEXT DEFAULT ''"},
	{"call_history", "resolution", "TEXT DEFAULT ''"},
	// Admin dashboard flag
	{"users", "is_admin", "INTEGER DEFAULT 0"},
	// Session request context (optional, from headers)
	{"wallet_sessions", "user_agent", "TEXT DEFAULT ''"},
	{"wallet_sessions", "ip_address", "TEXT DEFAULT ''"},
}

// RunMigrations applies schema migrations for existing databases.
func RunMigrations(db *sql.DB) error {
	timer := logging.StartTimer(logging.CategoryStore, "RunMigrations")
	defer timer.Stop()

	applied := 0
	skipped := 0

	for _, m := range pendingMigrations {
		if !tableExists(db, m.Table) {
			skipped++
			continue
		}
		if columnExists(db, m.Table, m.Column) {
			skipped++
			continue
		}

		query := fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s %s", m.Table, m.Column, m.Def)
		if _, err := db.Exec(query); err != nil {
			// Column may already exist in a different form; don't fail startup.
			logging.Get(logging.CategoryStore).Warn("Migration failed (may already exist): %s.%s: %v", m.Table, m.Column, err)
			skipped++
			continue
		}
		logging.Store("Migration applied: added %s.%s", m.Table, m.Column)
		applied++
	}

	logging.Store("Schema migrations complete: applied=%d, skipped=%d", applied, skipped)
	return nil
}

// columnExists checks if a column exists in a table using PRAGMA table_info.
func columnExists(db *sql.DB, table, column string) bool {
	rows, err := db.Query(fmt.Sprintf("PRAGMA table_info(%s)", table))
	if err != nil {
		return false
	}
	defer rows.Close()

	for rows.Next() {
		var cid int
		var name, ctype string
		var notnull, pk int
		var dfltValue interface{}
		if err := rows.Scan(&cid, &name, &ctype, &notnull, &dfltValue, &pk); err != nil {
			continue
		}
		if name == column {
			return true
		}
	}
	return false
}

// tableExists checks if a table exists in the database.
func tableExists(db *sql.DB, table string) bool {
	var count int
	query := "SELECT COUNT(*) FROM sqlite_master WHERE type='table' AND name=?"
	if err := db.QueryRow(query, table).Scan(&count); err != nil {
		return false
	}
	return count > 0
}
