package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/matheus3301/wisp/internal/apperr"
	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/channel"
	"github.com/matheus3301/wisp/internal/live"
)

// wireEvent is one server-sent event on the /events stream.
type wireEvent struct {
	Kind      string `json:"kind"`
	Timestamp int64  `json:"timestamp"`
	Payload   any    `json:"payload,omitempty"`
}

// handleEvents streams the caller's bus events as server-sent events
// until the client disconnects.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, apperr.Internal("streaming unsupported"))
		return
	}
	uid := UIDFrom(r.Context())
	sub := s.bus.Subscribe("", 256)
	defer sub.Cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(30 * time.Second)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-heartbeat.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case evt := <-sub.C:
			we, ok := s.eventFor(uid, evt)
			if !ok {
				continue
			}
			data, err := json.Marshal(we)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", we.Kind, data)
			flusher.Flush()
		}
	}
}

// eventFor converts a bus event to its wire shape, dropping events the
// caller is not a party to.
func (s *Server) eventFor(uid string, evt bus.Event) (wireEvent, bool) {
	we := wireEvent{Kind: evt.Kind, Timestamp: evt.Timestamp.UnixMilli()}
	switch p := evt.Payload.(type) {
	case live.MessageEvent:
		if p.Message.SenderID != uid && p.Message.ReceiverID != uid {
			return we, false
		}
		we.Payload = struct {
			ChannelKey string      `json:"channel_key"`
			Message    messageJSON `json:"message"`
		}{p.ChannelKey, toMessageJSON(p.Message)}
	case live.ChannelEvent:
		a, b, err := channel.Participants(p.ChannelKey)
		if err != nil || (a != uid && b != uid) {
			return we, false
		}
		we.Payload = struct {
			ChannelKey string `json:"channel_key"`
		}{p.ChannelKey}
	case FriendEvent:
		if p.SenderID != uid && p.ReceiverID != uid {
			return we, false
		}
		we.Payload = p
	case UserEvent:
		we.Payload = p
	default:
		// Daemon-internal events stay off the wire.
		return we, false
	}
	return we, true
}
