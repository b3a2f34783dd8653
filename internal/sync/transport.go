package sync

import (
	"context"
	"errors"

	"github.com/matheus3301/wisp/internal/store"
)

// ErrChannelDeleted ends a subscription whose channel was deleted
// out from under it.
var ErrChannelDeleted = errors.New("channel deleted")

// ChangeType classifies a message change delivered by a subscription.
type ChangeType string

const (
	Added    ChangeType = "added"
	Modified ChangeType = "modified"
	Removed  ChangeType = "removed"
)

// Change is a single message mutation observed on a channel.
type Change struct {
	Type    ChangeType
	Message store.Message
}

// Batch groups the changes delivered together by the transport. A
// Snapshot batch replaces the subscribed window wholesale; WindowSize
// is the number of messages the snapshot query returned, which the
// session uses to decide whether more history exists.
type Batch struct {
	Changes    []Change
	Snapshot   bool
	WindowSize int
}

// Subscription is a live feed of changes for one channel. Events is
// closed when the subscription ends; Err reports why, nil meaning a
// clean Close.
type Subscription interface {
	Events() <-chan Batch
	Err() error
	Close()
}

// Transport is the session's view of the server. The daemon provides
// an in-process implementation backed by its store and event bus; a
// remote client provides one backed by the HTTP API.
type Transport interface {
	Subscribe(ctx context.Context, channelKey string, pageSize int) (Subscription, error)
	FetchOlder(ctx context.Context, channelKey string, before store.Cursor, limit int) ([]store.Message, error)
	Send(ctx context.Context, out store.Outgoing) (*store.Message, error)
	Edit(ctx context.Context, channelKey, messageID, callerUID, body string) error
	Delete(ctx context.Context, channelKey, messageID, callerUID string) error
	MarkSeen(ctx context.Context, channelKey, recipientUID string, ids []string) error
}
