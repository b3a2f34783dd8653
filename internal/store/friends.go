package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/matheus3301/wisp/internal/apperr"
)

// SendFriendRequest creates a pending request from sender to receiver.
// Duplicate pending requests in either direction and requests between
// existing friends are rejected.
func (db *DB) SendFriendRequest(ctx context.Context, senderID, receiverID string) (*FriendRequest, error) {
	if senderID == receiverID {
		return nil, apperr.InvalidArg("cannot send a friend request to yourself")
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "begin send request", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, uid := range []string{senderID, receiverID} {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE uid = ?`, uid).Scan(&one); err == sql.ErrNoRows {
			return nil, apperr.NotFound("user profile not found")
		} else if err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "check user", err)
		}
	}

	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM friends WHERE uid = ? AND friend_uid = ?`, senderID, receiverID).Scan(&one)
	if err == nil {
		return nil, apperr.FailedPrecondition("you are already friends")
	}
	if err != sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.CodeInternal, "check friendship", err)
	}

	err = tx.QueryRowContext(ctx, `
		SELECT 1 FROM friend_requests
		WHERE status = 'pending'
		  AND ((sender_id = ? AND receiver_id = ?) OR (sender_id = ? AND receiver_id = ?))`,
		senderID, receiverID, receiverID, senderID).Scan(&one)
	if err == nil {
		return nil, apperr.AlreadyExists("a pending request already exists")
	}
	if err != sql.ErrNoRows {
		return nil, apperr.Wrap(apperr.CodeInternal, "check pending request", err)
	}

	now := time.Now().UnixMilli()
	req := &FriendRequest{
		ID:         uuid.New().String(),
		SenderID:   senderID,
		ReceiverID: receiverID,
		Status:     RequestPending,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO friend_requests (id, sender_id, receiver_id, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		req.ID, req.SenderID, req.ReceiverID, req.Status, req.CreatedAt, req.UpdatedAt); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "insert request", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "commit send request", err)
	}
	return req, nil
}

// AcceptFriendRequest marks the request accepted and inserts both
// friendship edges, all in one transaction. Only the addressed receiver
// may accept, and only while the request is pending.
func (db *DB) AcceptFriendRequest(ctx context.Context, callerUID, requestID string) (*FriendRequest, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "begin accept", err)
	}
	defer func() { _ = tx.Rollback() }()

	req, err := getRequestTx(ctx, tx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != callerUID {
		return nil, apperr.PermissionDenied("you do not have permission to accept this request")
	}
	if req.Status != RequestPending {
		return nil, apperr.FailedPrecondition("this request is no longer pending")
	}

	now := time.Now().UnixMilli()
	if _, err := tx.ExecContext(ctx, `
		UPDATE friend_requests SET status = 'accepted', updated_at = ? WHERE id = ?`, now, req.ID); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "mark accepted", err)
	}
	for _, pair := range [][2]string{{req.SenderID, req.ReceiverID}, {req.ReceiverID, req.SenderID}} {
		if _, err := tx.ExecContext(ctx, `
			INSERT OR IGNORE INTO friends (uid, friend_uid, created_at) VALUES (?, ?, ?)`,
			pair[0], pair[1], now); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "insert friendship edge", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "commit accept", err)
	}
	req.Status = RequestAccepted
	req.UpdatedAt = now
	return req, nil
}

// RejectFriendRequest marks a pending request rejected. Receiver only.
func (db *DB) RejectFriendRequest(ctx context.Context, callerUID, requestID string) (*FriendRequest, error) {
	req, err := db.GetFriendRequest(ctx, requestID)
	if err != nil {
		return nil, err
	}
	if req.ReceiverID != callerUID {
		return nil, apperr.PermissionDenied("you do not have permission to reject this request")
	}
	if req.Status != RequestPending {
		return nil, apperr.FailedPrecondition("this request is no longer pending")
	}

	now := time.Now().UnixMilli()
	if _, err := db.ExecContext(ctx, `
		UPDATE friend_requests SET status = 'rejected', updated_at = ? WHERE id = ? AND status = 'pending'`,
		now, requestID); err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "mark rejected", err)
	}
	req.Status = RequestRejected
	req.UpdatedAt = now
	return req, nil
}

// DeleteFriendRequest removes a still-pending request. Either party may
// withdraw it; terminal requests are immutable history.
func (db *DB) DeleteFriendRequest(ctx context.Context, callerUID, requestID string) error {
	req, err := db.GetFriendRequest(ctx, requestID)
	if err != nil {
		return err
	}
	if req.SenderID != callerUID && req.ReceiverID != callerUID {
		return apperr.PermissionDenied("you are not a party to this request")
	}
	if req.Status != RequestPending {
		return apperr.FailedPrecondition("only pending requests can be deleted")
	}
	if _, err := db.ExecContext(ctx, `DELETE FROM friend_requests WHERE id = ? AND status = 'pending'`, requestID); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "delete request", err)
	}
	return nil
}

// Unfriend removes both directions of the friendship edge atomically.
// A failure before commit leaves both sets unchanged.
func (db *DB) Unfriend(ctx context.Context, uidA, uidB string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.CodeInternal, "begin unfriend", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, uid := range []string{uidA, uidB} {
		var one int
		if err := tx.QueryRowContext(ctx, `SELECT 1 FROM users WHERE uid = ?`, uid).Scan(&one); err == sql.ErrNoRows {
			return apperr.NotFound("one or both user profiles do not exist")
		} else if err != nil {
			return apperr.Wrap(apperr.CodeInternal, "check user", err)
		}
	}

	for _, pair := range [][2]string{{uidA, uidB}, {uidB, uidA}} {
		if _, err := tx.ExecContext(ctx, `
			DELETE FROM friends WHERE uid = ? AND friend_uid = ?`, pair[0], pair[1]); err != nil {
			return apperr.Wrap(apperr.CodeInternal, "remove friendship edge", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.CodeInternal, "commit unfriend", err)
	}
	return nil
}

// GetFriendRequest returns a request by id, or NOT_FOUND.
func (db *DB) GetFriendRequest(ctx context.Context, requestID string) (*FriendRequest, error) {
	var req FriendRequest
	err := db.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, status, created_at, updated_at
		FROM friend_requests WHERE id = ?`, requestID).
		Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("the friend request does not exist")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "get request", err)
	}
	return &req, nil
}

// PendingRequestsFor lists pending requests addressed to uid.
func (db *DB) PendingRequestsFor(ctx context.Context, uid string) ([]FriendRequest, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, sender_id, receiver_id, status, created_at, updated_at
		FROM friend_requests WHERE receiver_id = ? AND status = 'pending'
		ORDER BY created_at ASC`, uid)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list requests", err)
	}
	defer func() { _ = rows.Close() }()

	var reqs []FriendRequest
	for rows.Next() {
		var req FriendRequest
		if err := rows.Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "scan request", err)
		}
		reqs = append(reqs, req)
	}
	return reqs, rows.Err()
}

// Friends returns the friend set of uid.
func (db *DB) Friends(ctx context.Context, uid string) ([]string, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT friend_uid FROM friends WHERE uid = ? ORDER BY created_at ASC`, uid)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "list friends", err)
	}
	defer func() { _ = rows.Close() }()

	var friends []string
	for rows.Next() {
		var f string
		if err := rows.Scan(&f); err != nil {
			return nil, apperr.Wrap(apperr.CodeInternal, "scan friend", err)
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// AreFriends reports whether the edge uidA -> uidB exists.
func (db *DB) AreFriends(ctx context.Context, uidA, uidB string) (bool, error) {
	var one int
	err := db.QueryRowContext(ctx, `SELECT 1 FROM friends WHERE uid = ? AND friend_uid = ?`, uidA, uidB).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, apperr.Wrap(apperr.CodeInternal, "check friendship", err)
	}
	return true, nil
}

func getRequestTx(ctx context.Context, tx *sql.Tx, requestID string) (*FriendRequest, error) {
	var req FriendRequest
	err := tx.QueryRowContext(ctx, `
		SELECT id, sender_id, receiver_id, status, created_at, updated_at
		FROM friend_requests WHERE id = ?`, requestID).
		Scan(&req.ID, &req.SenderID, &req.ReceiverID, &req.Status, &req.CreatedAt, &req.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFound("the friend request does not exist")
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.CodeInternal, "get request", err)
	}
	return &req, nil
}
