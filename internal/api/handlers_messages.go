package api

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/matheus3301/wisp/internal/apperr"
	"github.com/matheus3301/wisp/internal/channel"
	"github.com/matheus3301/wisp/internal/store"
)

// channelKeyFrom resolves the {peer} path segment against the caller.
func channelKeyFrom(r *http.Request) (key, self, peer string, err error) {
	self = UIDFrom(r.Context())
	peer = mux.Vars(r)["peer"]
	key, err = channel.Key(self, peer)
	return key, self, peer, err
}

type messagePage struct {
	Messages []messageJSON `json:"messages"`
	HasMore  bool          `json:"has_more"`
}

// handleListMessages returns a page of messages, newest first. Without
// a cursor it returns the latest window; with before_ts/before_id it
// pages backwards through history.
func (s *Server) handleListMessages(w http.ResponseWriter, r *http.Request) {
	key, _, _, err := channelKeyFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	limit := s.pageSize
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > 100 {
			writeError(w, apperr.InvalidArg("limit must be between 1 and 100"))
			return
		}
		limit = n
	}

	var msgs []store.Message
	if ts := r.URL.Query().Get("before_ts"); ts != "" {
		n, err := strconv.ParseInt(ts, 10, 64)
		if err != nil {
			writeError(w, apperr.InvalidArg("before_ts must be a unix millisecond timestamp"))
			return
		}
		cursor := store.Cursor{Ts: n, ID: r.URL.Query().Get("before_id")}
		msgs, err = s.feed.FetchOlder(r.Context(), key, cursor, limit)
		if err != nil {
			writeError(w, err)
			return
		}
	} else {
		msgs, err = s.db.LatestMessages(r.Context(), key, limit)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, messagePage{
		Messages: toMessageList(msgs),
		HasMore:  len(msgs) == limit,
	})
}

type sendMessageBody struct {
	Body            string `json:"body"`
	ClientMessageID string `json:"client_message_id"`
}

// handleSendMessage appends a message. Only friends can message each
// other; the store enforces plan quota and ban status.
func (s *Server) handleSendMessage(w http.ResponseWriter, r *http.Request) {
	_, self, peer, err := channelKeyFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body sendMessageBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	ok, err := s.db.AreFriends(r.Context(), self, peer)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apperr.PermissionDenied("recipient is not a friend"))
		return
	}
	m, err := s.feed.Send(r.Context(), store.Outgoing{
		SenderID:        self,
		ReceiverID:      peer,
		Body:            body.Body,
		ClientMessageID: body.ClientMessageID,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMessageJSON(*m))
}

type editMessageBody struct {
	Body string `json:"body"`
}

func (s *Server) handleEditMessage(w http.ResponseWriter, r *http.Request) {
	key, self, _, err := channelKeyFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body editMessageBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	id := mux.Vars(r)["id"]
	if err := s.feed.Edit(r.Context(), key, id, self, body.Body); err != nil {
		writeError(w, err)
		return
	}
	m, err := s.db.GetMessage(r.Context(), key, id)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMessageJSON(*m))
}

func (s *Server) handleDeleteMessage(w http.ResponseWriter, r *http.Request) {
	key, self, _, err := channelKeyFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.feed.Delete(r.Context(), key, mux.Vars(r)["id"], self); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type markSeenBody struct {
	IDs []string `json:"ids"`
}

func (s *Server) handleMarkSeen(w http.ResponseWriter, r *http.Request) {
	key, self, _, err := channelKeyFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	var body markSeenBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	if err := s.feed.MarkSeen(r.Context(), key, self, body.IDs); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListChannels(w http.ResponseWriter, r *http.Request) {
	peers, err := s.db.SavedChats(r.Context(), UIDFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if peers == nil {
		peers = []string{}
	}
	writeJSON(w, http.StatusOK, peers)
}

func (s *Server) handleDeleteChannel(w http.ResponseWriter, r *http.Request) {
	key, self, _, err := channelKeyFrom(r)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := s.feed.DeleteChannel(r.Context(), self, key); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
