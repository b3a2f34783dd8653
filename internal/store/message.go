package store

import (
	"context"
	"database/sql"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wisp/internal/apperr"
	"github.com/matheus3301/wisp/internal/channel"
)

const previewLen = 100

// Outgoing describes a message write requested by a sender. The server
// assigns the id and timestamp; ClientMessageID is echoed back so the
// sender can reconcile its provisional entry.
type Outgoing struct {
	SenderID        string
	ReceiverID      string
	Body            string
	ClientMessageID string
}

// AppendMessage inserts a message, implicitly creating the channel,
// bumping the sender's daily counter and recording the saved chat, all
// in one transaction. Banned senders are rejected PERMISSION_DENIED;
// free-plan senders at their daily limit are rejected
// RESOURCE_EXHAUSTED with no partial writes.
func (db *DB) AppendMessage(ctx context.Context, out Outgoing) (*Message, error) {
	if strings.TrimSpace(out.Body) == "" {
		return nil, apperr.InvalidArg("message text is required")
	}
	key, err := channel.Key(out.SenderID, out.ReceiverID)
	if err != nil {
		return nil, err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "begin append", err)
	}
	defer func() { _ = tx.Rollback() }()

	var plan string
	var count int
	var banned bool
	err = tx.QueryRowContext(ctx, `
		SELECT plan, daily_message_count, is_banned FROM users WHERE uid = ?`, out.SenderID).
		Scan(&plan, &count, &banned)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("sender profile not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "load sender", err)
	}
	if banned {
		return nil, apperr.PermissionDenied("your account is banned")
	}
	if plan == PlanFree && count >= db.freeDailyLimit {
		return nil, apperr.ResourceExhausted("you have reached your daily message limit for the free plan")
	}

	var one int
	if err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE uid = ?`, out.ReceiverID).Scan(&one); err == sql.ErrNoRows {
		return nil, apperr.NotFound("recipient profile not found")
	} else if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "check recipient", err)
	}

	now := time.Now().UnixMilli()
	m := &Message{
		ID:              uuid.New().String(),
		ChannelKey:      key,
		SenderID:        out.SenderID,
		ReceiverID:      out.ReceiverID,
		Body:            out.Body,
		ClientMessageID: out.ClientMessageID,
		CreatedAt:       now,
	}

	a, b, _ := channel.Participants(key)
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO channels (key, user_a, user_b, created_at, last_message_at, last_message_preview)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET
			last_message_at = MAX(channels.last_message_at, excluded.last_message_at),
			last_message_preview = CASE WHEN excluded.last_message_at >= channels.last_message_at
				THEN excluded.last_message_preview ELSE channels.last_message_preview END`,
		key, a, b, now, now, truncate(m.Body, previewLen)); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "upsert channel", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO messages (id, channel_key, sender_id, receiver_id, body, client_message_id, seen, edited, created_at)
		VALUES (?, ?, ?, ?, ?, ?, 0, 0, ?)`,
		m.ID, m.ChannelKey, m.SenderID, m.ReceiverID, m.Body, m.ClientMessageID, m.CreatedAt); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "insert message", err)
	}

	if _, err := tx.ExecContext(ctx, `
		UPDATE users SET daily_message_count = daily_message_count + 1 WHERE uid = ?`, out.SenderID); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "bump daily count", err)
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO saved_chats (uid, other_uid, created_at) VALUES (?, ?, ?)`,
		out.SenderID, out.ReceiverID, now); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "save chat reference", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "commit append", err)
	}
	return m, nil
}

// LatestMessages returns the newest messages of a channel, newest
// first. This is the live subscription's initial window.
func (db *DB) LatestMessages(ctx context.Context, channelKey string, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, channel_key, sender_id, receiver_id, body, client_message_id, seen, edited, created_at
		FROM messages
		WHERE channel_key = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, channelKey, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "latest messages", err)
	}
	return scanMessages(rows)
}

// MessagesBefore returns up to limit messages strictly older than the
// cursor, newest first (keyset pagination).
func (db *DB) MessagesBefore(ctx context.Context, channelKey string, before Cursor, limit int) ([]Message, error) {
	if limit <= 0 {
		limit = 20
	}
	if before.IsZero() {
		return db.LatestMessages(ctx, channelKey, limit)
	}
	rows, err := db.QueryContext(ctx, `
		SELECT id, channel_key, sender_id, receiver_id, body, client_message_id, seen, edited, created_at
		FROM messages
		WHERE channel_key = ? AND (created_at < ? OR (created_at = ? AND id < ?))
		ORDER BY created_at DESC, id DESC
		LIMIT ?`, channelKey, before.Ts, before.Ts, before.ID, limit)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "messages before", err)
	}
	return scanMessages(rows)
}

// GetMessage returns a single message of a channel.
func (db *DB) GetMessage(ctx context.Context, channelKey, id string) (*Message, error) {
	var m Message
	err := db.QueryRowContext(ctx, `
		SELECT id, channel_key, sender_id, receiver_id, body, client_message_id, seen, edited, created_at
		FROM messages WHERE channel_key = ? AND id = ?`, channelKey, id).
		Scan(&m.ID, &m.ChannelKey, &m.SenderID, &m.ReceiverID, &m.Body, &m.ClientMessageID, &m.Seen, &m.Edited, &m.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("message not found")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "get message", err)
	}
	return &m, nil
}

// EditMessage rewrites a message body and flags it edited. Sender only.
func (db *DB) EditMessage(ctx context.Context, channelKey, id, callerUID, body string) (*Message, error) {
	if strings.TrimSpace(body) == "" {
		return nil, apperr.InvalidArg("message text is required")
	}
	m, err := db.GetMessage(ctx, channelKey, id)
	if err != nil {
		return nil, err
	}
	if m.SenderID != callerUID {
		return nil, apperr.PermissionDenied("only the sender can edit a message")
	}
	if _, err := db.ExecContext(ctx, `
		UPDATE messages SET body = ?, edited = 1 WHERE channel_key = ? AND id = ?`,
		body, channelKey, id); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "edit message", err)
	}
	m.Body = body
	m.Edited = true
	return m, nil
}

// DeleteMessage removes a message permanently. Sender only. The removed
// message is returned so the caller can emit a removal event.
func (db *DB) DeleteMessage(ctx context.Context, channelKey, id, callerUID string) (*Message, error) {
	m, err := db.GetMessage(ctx, channelKey, id)
	if err != nil {
		return nil, err
	}
	if m.SenderID != callerUID {
		return nil, apperr.PermissionDenied("only the sender can delete a message")
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM messages WHERE channel_key = ? AND id = ?`, channelKey, id); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "delete message", err)
	}
	return m, nil
}

// MarkSeen flips the seen flag on messages addressed to recipientUID.
// Already-seen ids and ids belonging to other recipients are skipped,
// so re-running on the same set is a no-op. The messages actually
// updated are returned for event emission.
func (db *DB) MarkSeen(ctx context.Context, channelKey, recipientUID string, ids []string) ([]Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "begin mark seen", err)
	}
	defer func() { _ = tx.Rollback() }()

	var updated []Message
	for _, id := range ids {
		res, err := tx.ExecContext(ctx, `
			UPDATE messages SET seen = 1
			WHERE channel_key = ? AND id = ? AND receiver_id = ? AND seen = 0`,
			channelKey, id, recipientUID)
		if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "mark seen", err)
		}
		if n, _ := res.RowsAffected(); n == 0 {
			continue
		}
		var m Message
		if err := tx.QueryRowContext(ctx, `
			SELECT id, channel_key, sender_id, receiver_id, body, client_message_id, seen, edited, created_at
			FROM messages WHERE channel_key = ? AND id = ?`, channelKey, id).
			Scan(&m.ID, &m.ChannelKey, &m.SenderID, &m.ReceiverID, &m.Body, &m.ClientMessageID, &m.Seen, &m.Edited, &m.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "reload seen message", err)
		}
		updated = append(updated, m)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "commit mark seen", err)
	}
	return updated, nil
}

// DeleteChannel removes the channel, its messages, and both
// participants' saved-chat references in one transaction. Participants
// only.
func (db *DB) DeleteChannel(ctx context.Context, callerUID, channelKey string) error {
	if _, err := channel.Other(channelKey, callerUID); err != nil {
		return err
	}
	a, b, err := channel.Participants(channelKey)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "begin delete channel", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM messages WHERE channel_key = ?`, channelKey); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "delete messages", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM channels WHERE key = ?`, channelKey); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "delete channel", err)
	}
	for _, pair := range [][2]string{{a, b}, {b, a}} {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM saved_chats WHERE uid = ? AND other_uid = ?`, pair[0], pair[1]); err != nil {
			return apperr.Wrap(apperr.CodeInternal, "delete saved chat", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "commit delete channel", err)
	}
	return nil
}

// GetChannel returns channel bookkeeping, or nil when the channel has
// never seen a message.
func (db *DB) GetChannel(ctx context.Context, channelKey string) (*Channel, error) {
	var c Channel
	err := db.QueryRowContext(ctx, `
		SELECT key, user_a, user_b, created_at, last_message_at, last_message_preview
		FROM channels WHERE key = ?`, channelKey).
		Scan(&c.Key, &c.UserA, &c.UserB, &c.CreatedAt, &c.LastMessageAt, &c.LastMessagePreview)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "get channel", err)
	}
	return &c, nil
}

func scanMessages(rows *sql.Rows) ([]Message, error) {
	defer func() { _ = rows.Close() }()
	var msgs []Message
	for rows.Next() {
		var m Message
		if err := rows.Scan(&m.ID, &m.ChannelKey, &m.SenderID, &m.ReceiverID, &m.Body,
			&m.ClientMessageID, &m.Seen, &m.Edited, &m.CreatedAt); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "scan message", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen]
}
