package api

import "github.com/matheus3301/wisp/internal/store"

// Wire shapes for store documents. The store structs stay tag-free so
// schema changes and wire changes remain independent.

type userJSON struct {
	UID               string `json:"uid"`
	Username          string `json:"username"`
	Email             string `json:"email,omitempty"`
	Plan              string `json:"plan"`
	DailyMessageCount int    `json:"daily_message_count"`
	CreatedAt         int64  `json:"created_at"`
}

func toUserJSON(u *store.User) userJSON {
	return userJSON{
		UID:               u.UID,
		Username:          u.Username,
		Email:             u.Email,
		Plan:              u.Plan,
		DailyMessageCount: u.DailyMessageCount,
		CreatedAt:         u.CreatedAt,
	}
}

type requestJSON struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

func toRequestJSON(fr *store.FriendRequest) requestJSON {
	return requestJSON{
		ID:         fr.ID,
		SenderID:   fr.SenderID,
		ReceiverID: fr.ReceiverID,
		Status:     fr.Status,
		CreatedAt:  fr.CreatedAt,
		UpdatedAt:  fr.UpdatedAt,
	}
}

type messageJSON struct {
	ID              string `json:"id"`
	ChannelKey      string `json:"channel_key"`
	SenderID        string `json:"sender_id"`
	ReceiverID      string `json:"receiver_id"`
	Body            string `json:"body"`
	ClientMessageID string `json:"client_message_id,omitempty"`
	Seen            bool   `json:"seen"`
	Edited          bool   `json:"edited"`
	CreatedAt       int64  `json:"created_at"`
}

func toMessageJSON(m store.Message) messageJSON {
	return messageJSON{
		ID:              m.ID,
		ChannelKey:      m.ChannelKey,
		SenderID:        m.SenderID,
		ReceiverID:      m.ReceiverID,
		Body:            m.Body,
		ClientMessageID: m.ClientMessageID,
		Seen:            m.Seen,
		Edited:          m.Edited,
		CreatedAt:       m.CreatedAt,
	}
}

func toMessageList(msgs []store.Message) []messageJSON {
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, toMessageJSON(m))
	}
	return out
}
