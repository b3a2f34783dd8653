package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wisp/internal/apperr"
)

// NormalizeUsername applies the canonical handle form: trimmed,
// lowercase. An empty result is unusable.
func NormalizeUsername(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// CreateUser provisions a user document with secure defaults (free
// plan, zero counters, no privileges) and reserves its username, both
// in one transaction.
func (db *DB) CreateUser(ctx context.Context, username, email string) (*User, error) {
	handle := NormalizeUsername(username)
	if handle == "" {
		return nil, apperr.InvalidArg("username is required")
	}

	u := &User{
		UID:       uuid.New().String(),
		Username:  handle,
		Email:     strings.TrimSpace(email),
		Plan:      PlanFree,
		CreatedAt: time.Now().UnixMilli(),
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "begin create user", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	err = tx.QueryRowContext(ctx, `SELECT uid FROM usernames WHERE name = ?`, handle).Scan(&existing)
	if err == nil {
		return nil, apperr.AlreadyExists("this username is already taken")
	}
	if err != sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.CodeInternal, "check username", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO users (uid, username, email, plan, daily_message_count, is_banned, is_admin, created_at)
		VALUES (?, ?, ?, ?, 0, 0, 0, ?)`,
		u.UID, u.Username, u.Email, u.Plan, u.CreatedAt); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "insert user", err)
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO usernames (name, uid) VALUES (?, ?)`, handle, u.UID); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "reserve username", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "commit create user", err)
	}
	return u, nil
}

// GetUser returns a user document by id, or NOT_FOUND.
func (db *DB) GetUser(ctx context.Context, uid string) (*User, error) {
	var u User
	err := db.QueryRowContext(ctx, `
		SELECT uid, username, email, plan, daily_message_count, is_banned, is_admin, created_at
		FROM users WHERE uid = ?`, uid).
		Scan(&u.UID, &u.Username, &u.Email, &u.Plan, &u.DailyMessageCount, &u.IsBanned, &u.IsAdmin, &u.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("user profile not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "get user", err)
	}
	return &u, nil
}

// LookupUsername resolves a handle through the reservation index.
func (db *DB) LookupUsername(ctx context.Context, name string) (string, error) {
	var uid string
	err := db.QueryRowContext(ctx, `SELECT uid FROM usernames WHERE name = ?`, NormalizeUsername(name)).Scan(&uid)
	if err == sql.ErrNoRows {
		return "", apperr.NotFound("no user with that username")
	}
	if err != nil {
		return "", apperr.Wrap(apperr.CodeInternal, "lookup username", err)
	}
	return uid, nil
}

// RenameUser atomically changes a user's handle. The reservation-row
// existence check inside the transaction is the serialization point:
// of two concurrent renames to the same handle exactly one commits,
// the other observes the new reservation and fails ALREADY_EXISTS.
// Renaming to the current handle succeeds as a no-op.
func (db *DB) RenameUser(ctx context.Context, uid, newHandle string) error {
	handle := NormalizeUsername(newHandle)
	if handle == "" {
		return apperr.InvalidArg("new username is required")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "begin rename", err)
	}
	defer func() { _ = tx.Rollback() }()

	var oldHandle string
	err = tx.QueryRowContext(ctx, `SELECT username FROM users WHERE uid = ?`, uid).Scan(&oldHandle)
	if err == sql.ErrNoRows {
		return apperr.NotFound("user profile not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "load current username", err)
	}

	if oldHandle == handle {
		// Nothing to do; success without touching the reservation index.
		return nil
	}

	var takenBy string
	err = tx.QueryRowContext(ctx, `SELECT uid FROM usernames WHERE name = ?`, handle).Scan(&takenBy)
	if err == nil {
		return apperr.AlreadyExists("this username is already taken")
	}
	if err != sql.ErrNoRows {
		return apperr.Wrap(apperr.CodeInternal, "check new username", err)
	}

	if _, err := tx.ExecContext(ctx, `INSERT INTO usernames (name, uid) VALUES (?, ?)`, handle, uid); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "reserve new username", err)
	}
	if oldHandle != "" {
		if _, err := tx.ExecContext(ctx, `DELETE FROM usernames WHERE name = ?`, oldHandle); err != nil {
			return apperr.Wrap(apperr.CodeInternal, "release old username", err)
		}
	}
	if _, err := tx.ExecContext(ctx, `UPDATE users SET username = ? WHERE uid = ?`, handle, uid); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "update user handle", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "commit rename", err)
	}
	return nil
}

// ResetDailyCounts zeroes every non-zero daily message counter and
// returns how many users were reset.
func (db *DB) ResetDailyCounts(ctx context.Context) (int64, error) {
	res, err := db.ExecContext(ctx, `UPDATE users SET daily_message_count = 0 WHERE daily_message_count > 0`)
	if err != nil {
		return 0, apperr.Wrap(apperr.CodeInternal, "reset daily counts", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// SavedChats returns the other-party ids of the chats uid has messaged,
// newest first.
func (db *DB) SavedChats(ctx context.Context, uid string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT other_uid FROM saved_chats WHERE uid = ? ORDER BY created_at DESC`, uid)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list saved chats", err)
	}
	defer func() { _ = rows.Close() }()

	var others []string
	for rows.Next() {
		var o string
		if err := rows.Scan(&o); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "scan saved chat", err)
		}
		others = append(others, o)
	}
	return others, rows.Err()
}
