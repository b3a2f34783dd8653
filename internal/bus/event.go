package bus

import "time"

// Event kinds published on the bus. Subscribers filter by namespace
// prefix, e.g. "message." receives every message event.
const (
	KindMessageAdded    = "message.added"
	KindMessageModified = "message.modified"
	KindMessageRemoved  = "message.removed"

	KindChannelDeleted       = "channel.deleted"
	KindChannelViewUpdated   = "channel.view_updated"
	KindChannelStatusChanged = "channel.status_changed"

	KindUserCreated = "user.created"
	KindUserRenamed = "user.renamed"

	KindFriendRequestSent     = "friend.request_sent"
	KindFriendRequestAccepted = "friend.request_accepted"
	KindFriendRequestRejected = "friend.request_rejected"
	KindFriendRequestDeleted  = "friend.request_deleted"
	KindFriendRemoved         = "friend.removed"

	KindQuotaReset = "quota.reset"
)

// Event represents a domain event published on the bus.
type Event struct {
	Kind      string
	Timestamp time.Time
	Payload   any
}

// Emit constructs an Event stamped with the current time.
func Emit(kind string, payload any) Event {
	return Event{Kind: kind, Timestamp: time.Now(), Payload: payload}
}
