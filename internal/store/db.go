// Package store owns the document store backing a wispd profile and
// the atomic server-side procedures that protect its invariants:
// username uniqueness (users + usernames reservation rows) and
// friendship symmetry (paired rows in friends). Every
// uniqueness/symmetry-sensitive mutation runs inside a single SQLite
// transaction, so concurrent callers observe all-or-nothing outcomes.
package store

import (
	"database/sql"
	"fmt"

	_ "github.com/mattn/go-sqlite3"
)

// Options tunes store behavior.
type Options struct {
	// FreeDailyMessageLimit caps messages per UTC day for free-plan
	// senders. Zero means the default of 100.
	FreeDailyMessageLimit int
}

// DB wraps a SQLite database connection for the profile-owned wisp.db.
type DB struct {
	*sql.DB

	freeDailyLimit int
}

// Open creates a new SQLite connection with WAL mode and recommended pragmas.
func Open(path string, opts Options) (*DB, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite allows one writer at a time. A single pooled connection
	// serializes transactions instead of surfacing SQLITE_BUSY to
	// concurrent callers.
	db.SetMaxOpenConns(1)
	// Verify connection.
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	limit := opts.FreeDailyMessageLimit
	if limit <= 0 {
		limit = 100
	}
	return &DB{DB: db, freeDailyLimit: limit}, nil
}
