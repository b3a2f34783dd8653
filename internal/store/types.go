package store

// Plans a user can be on. Only the free plan is metered.
const (
	PlanFree   = "free"
	PlanWeb    = "web"
	PlanMobile = "mobile"
	PlanOmnium = "omnium"
)

// Friend request statuses. pending is the only non-terminal state.
const (
	RequestPending  = "pending"
	RequestAccepted = "accepted"
	RequestRejected = "rejected"
)

// User is a user document. Friend and saved-chat sets are stored in
// their own tables and loaded separately.
type User struct {
	UID               string
	Username          string
	Email             string
	Plan              string
	DailyMessageCount int
	IsBanned          bool
	IsAdmin           bool
	CreatedAt         int64
}

// FriendRequest is a pending/terminal friendship proposal.
type FriendRequest struct {
	ID         string
	SenderID   string
	ReceiverID string
	Status     string
	CreatedAt  int64
	UpdatedAt  int64
}

// Channel is a two-party message thread, created implicitly on first
// message.
type Channel struct {
	Key                string
	UserA              string
	UserB              string
	CreatedAt          int64
	LastMessageAt      int64
	LastMessagePreview string
}

// Message is one entry in a channel. Timestamps are unix milliseconds
// assigned by the server on insert.
type Message struct {
	ID              string
	ChannelKey      string
	SenderID        string
	ReceiverID      string
	Body            string
	ClientMessageID string
	Seen            bool
	Edited          bool
	CreatedAt       int64

	// Pending marks a locally-originated entry still awaiting its
	// server echo. Never persisted; set only on in-memory view entries.
	Pending bool
}

// Cursor is a keyset pagination position: the oldest loaded message.
// Ordering ties on CreatedAt are broken by ID.
type Cursor struct {
	Ts int64
	ID string
}

// IsZero reports whether the cursor points nowhere.
func (c Cursor) IsZero() bool {
	return c.Ts == 0 && c.ID == ""
}

// CursorOf returns the pagination cursor addressing m.
func CursorOf(m Message) Cursor {
	return Cursor{Ts: m.CreatedAt, ID: m.ID}
}
