package client

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/matheus3301/wisp/internal/apperr"
	"github.com/matheus3301/wisp/internal/channel"
	"github.com/matheus3301/wisp/internal/store"
	"github.com/matheus3301/wisp/internal/sync"
)

// The client implements the channel session transport, so a session
// can run against a remote daemon the same way it runs in-process.

type messagePage struct {
	Messages []Message `json:"messages"`
	HasMore  bool      `json:"has_more"`
}

func (c *Client) listMessages(ctx context.Context, peerUID string, before store.Cursor, limit int) ([]store.Message, error) {
	q := url.Values{}
	q.Set("limit", fmt.Sprint(limit))
	if !before.IsZero() {
		q.Set("before_ts", fmt.Sprint(before.Ts))
		q.Set("before_id", before.ID)
	}
	var page messagePage
	err := c.do(ctx, http.MethodGet, "/api/v1/channels/"+peerUID+"/messages?"+q.Encode(), nil, &page)
	if err != nil {
		return nil, err
	}
	out := make([]store.Message, 0, len(page.Messages))
	for _, m := range page.Messages {
		out = append(out, m.toStore())
	}
	return out, nil
}

// Send submits a message to its receiver's channel.
func (c *Client) Send(ctx context.Context, out store.Outgoing) (*store.Message, error) {
	var m Message
	err := c.do(ctx, http.MethodPost, "/api/v1/channels/"+out.ReceiverID+"/messages", map[string]string{
		"body":              out.Body,
		"client_message_id": out.ClientMessageID,
	}, &m)
	if err != nil {
		return nil, err
	}
	sm := m.toStore()
	return &sm, nil
}

// Edit rewrites one of the caller's messages.
func (c *Client) Edit(ctx context.Context, channelKey, messageID, _, body string) error {
	peer, err := channel.Other(channelKey, c.uid)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPatch, "/api/v1/channels/"+peer+"/messages/"+messageID, map[string]string{"body": body}, nil)
}

// Delete removes one of the caller's messages.
func (c *Client) Delete(ctx context.Context, channelKey, messageID, _ string) error {
	peer, err := channel.Other(channelKey, c.uid)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodDelete, "/api/v1/channels/"+peer+"/messages/"+messageID, nil, nil)
}

// MarkSeen flags inbound messages as read.
func (c *Client) MarkSeen(ctx context.Context, channelKey, _ string, ids []string) error {
	peer, err := channel.Other(channelKey, c.uid)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPost, "/api/v1/channels/"+peer+"/seen", map[string][]string{"ids": ids}, nil)
}

// FetchOlder pages backwards through channel history.
func (c *Client) FetchOlder(ctx context.Context, channelKey string, before store.Cursor, limit int) ([]store.Message, error) {
	peer, err := channel.Other(channelKey, c.uid)
	if err != nil {
		return nil, err
	}
	return c.listMessages(ctx, peer, before, limit)
}

// Subscribe opens the daemon's event stream, seeds a snapshot from the
// latest page and forwards this channel's message events.
func (c *Client) Subscribe(ctx context.Context, channelKey string, pageSize int) (sync.Subscription, error) {
	peer, err := channel.Other(channelKey, c.uid)
	if err != nil {
		return nil, err
	}
	ctx, cancel := context.WithCancel(ctx)

	// Open the stream before the snapshot fetch so no event is missed.
	// The streaming request cannot use the pooled client: its timeout
	// would cut the stream off.
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base+"/api/v1/events", nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "text/event-stream")
	resp, err := (&http.Client{}).Do(req)
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.CodeUnavailable, "daemon unreachable", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, apperr.New(apperr.CodeUnavailable, fmt.Sprintf("event stream status %d", resp.StatusCode))
	}

	window, err := c.listMessages(ctx, peer, store.Cursor{}, pageSize)
	if err != nil {
		resp.Body.Close()
		cancel()
		return nil, err
	}

	s := &subscription{events: make(chan sync.Batch, 16), cancel: cancel}
	go s.stream(ctx, resp.Body, channelKey, window)
	return s, nil
}

type subscription struct {
	events chan sync.Batch
	cancel context.CancelFunc
	err    error
}

func (s *subscription) Events() <-chan sync.Batch { return s.events }
func (s *subscription) Err() error                { return s.err }
func (s *subscription) Close()                    { s.cancel() }

func (s *subscription) send(ctx context.Context, b sync.Batch) bool {
	select {
	case s.events <- b:
		return true
	case <-ctx.Done():
		return false
	}
}

// streamEvent is the wire shape of one server-sent event.
type streamEvent struct {
	Kind    string `json:"kind"`
	Payload struct {
		ChannelKey string   `json:"channel_key"`
		Message    *Message `json:"message"`
	} `json:"payload"`
}

func (s *subscription) stream(ctx context.Context, body io.ReadCloser, channelKey string, window []store.Message) {
	defer func() {
		body.Close()
		close(s.events)
	}()

	snapshot := sync.Batch{Snapshot: true, WindowSize: len(window)}
	for _, m := range window {
		snapshot.Changes = append(snapshot.Changes, sync.Change{Type: sync.Added, Message: m})
	}
	if !s.send(ctx, snapshot) {
		return
	}

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	var data strings.Builder
	for scanner.Scan() {
		line := scanner.Text()
		if after, ok := strings.CutPrefix(line, "data:"); ok {
			data.WriteString(strings.TrimPrefix(after, " "))
			continue
		}
		if line != "" || data.Len() == 0 {
			continue
		}
		payload := data.String()
		data.Reset()

		var evt streamEvent
		if err := json.Unmarshal([]byte(payload), &evt); err != nil {
			continue
		}
		if evt.Payload.ChannelKey != channelKey {
			continue
		}
		if evt.Kind == "channel.deleted" {
			s.err = sync.ErrChannelDeleted
			return
		}
		if evt.Payload.Message == nil {
			continue
		}
		change := sync.Change{Message: evt.Payload.Message.toStore()}
		switch evt.Kind {
		case "message.added":
			change.Type = sync.Added
		case "message.modified":
			change.Type = sync.Modified
		case "message.removed":
			change.Type = sync.Removed
		default:
			continue
		}
		if !s.send(ctx, sync.Batch{Changes: []sync.Change{change}}) {
			return
		}
	}
	if ctx.Err() == nil {
		s.err = apperr.Wrap(apperr.CodeUnavailable, "event stream ended", scanner.Err())
	}
}
