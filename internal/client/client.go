// Package client is the HTTP client for the wispd API, used by wispctl
// and by remote channel sessions.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/matheus3301/wisp/internal/apperr"
	"github.com/matheus3301/wisp/internal/store"
)

// Client talks to a wispd instance over HTTP.
type Client struct {
	base  string
	http  *http.Client
	token string
	uid   string
}

// New creates an unauthenticated client for the daemon at baseURL.
func New(baseURL string) *Client {
	return &Client{
		base: baseURL,
		http: &http.Client{Timeout: 30 * time.Second},
	}
}

// SetAuth attaches the caller's token and uid to subsequent requests.
func (c *Client) SetAuth(token, uid string) {
	c.token = token
	c.uid = uid
}

// UID returns the authenticated user id, empty before SetAuth.
func (c *Client) UID() string { return c.uid }

// User mirrors the API's user shape.
type User struct {
	UID               string `json:"uid"`
	Username          string `json:"username"`
	Email             string `json:"email,omitempty"`
	Plan              string `json:"plan"`
	DailyMessageCount int    `json:"daily_message_count"`
	CreatedAt         int64  `json:"created_at"`
}

// FriendRequest mirrors the API's friend request shape.
type FriendRequest struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Status     string `json:"status"`
	CreatedAt  int64  `json:"created_at"`
	UpdatedAt  int64  `json:"updated_at"`
}

// Message mirrors the API's message shape.
type Message struct {
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

func (m Message) toStore() store.Message {
	return store.Message{
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

type apiError struct {
	Code    apperr.Code `json:"code"`
	Message string      `json:"message"`
}

// do performs a JSON request. Error responses come back as typed
// apperr errors so callers can branch on the code.
func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, buf)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return apperr.Wrap(apperr.CodeUnavailable, "daemon unreachable", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var ae apiError
		if err := json.NewDecoder(resp.Body).Decode(&ae); err != nil || ae.Code == "" {
			return apperr.New(apperr.CodeUnknown, fmt.Sprintf("unexpected status %d", resp.StatusCode))
		}
		return apperr.New(ae.Code, ae.Message)
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

type registerResponse struct {
	User  User   `json:"user"`
	Token string `json:"token"`
}

// Register provisions a user and authenticates the client as them.
func (c *Client) Register(ctx context.Context, username, email string) (*User, error) {
	var out registerResponse
	err := c.do(ctx, http.MethodPost, "/register", map[string]string{
		"username": username,
		"email":    email,
	}, &out)
	if err != nil {
		return nil, err
	}
	c.SetAuth(out.Token, out.User.UID)
	return &out.User, nil
}

// Token returns the access token minted at registration.
func (c *Client) Token() string { return c.token }

// Me returns the authenticated user's profile.
func (c *Client) Me(ctx context.Context) (*User, error) {
	var u User
	if err := c.do(ctx, http.MethodGet, "/api/v1/me", nil, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

// Rename claims a new handle for the authenticated user.
func (c *Client) Rename(ctx context.Context, username string) (*User, error) {
	var u User
	err := c.do(ctx, http.MethodPut, "/api/v1/profile/username", map[string]string{"username": username}, &u)
	if err != nil {
		return nil, err
	}
	return &u, nil
}

// SendFriendRequest proposes friendship to the user with the handle.
func (c *Client) SendFriendRequest(ctx context.Context, username string) (*FriendRequest, error) {
	var fr FriendRequest
	err := c.do(ctx, http.MethodPost, "/api/v1/friends/requests", map[string]string{"username": username}, &fr)
	if err != nil {
		return nil, err
	}
	return &fr, nil
}

// PendingRequests lists friend requests awaiting the caller's decision.
func (c *Client) PendingRequests(ctx context.Context) ([]FriendRequest, error) {
	var out []FriendRequest
	if err := c.do(ctx, http.MethodGet, "/api/v1/friends/requests", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AcceptFriendRequest accepts a pending request addressed to the caller.
func (c *Client) AcceptFriendRequest(ctx context.Context, id string) (*FriendRequest, error) {
	var fr FriendRequest
	if err := c.do(ctx, http.MethodPost, "/api/v1/friends/requests/"+id+"/accept", nil, &fr); err != nil {
		return nil, err
	}
	return &fr, nil
}

// RejectFriendRequest rejects a pending request addressed to the caller.
func (c *Client) RejectFriendRequest(ctx context.Context, id string) (*FriendRequest, error) {
	var fr FriendRequest
	if err := c.do(ctx, http.MethodPost, "/api/v1/friends/requests/"+id+"/reject", nil, &fr); err != nil {
		return nil, err
	}
	return &fr, nil
}

// Friends lists the caller's friend uids.
func (c *Client) Friends(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/api/v1/friends", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Unfriend severs the friendship with the given user.
func (c *Client) Unfriend(ctx context.Context, uid string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/friends/"+uid, nil, nil)
}

// Channels lists the peers of the caller's saved chats.
func (c *Client) Channels(ctx context.Context) ([]string, error) {
	var out []string
	if err := c.do(ctx, http.MethodGet, "/api/v1/channels", nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteChannel removes the conversation with the given peer.
func (c *Client) DeleteChannel(ctx context.Context, peerUID string) error {
	return c.do(ctx, http.MethodDelete, "/api/v1/channels/"+peerUID, nil, nil)
}
