package api

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/matheus3301/wisp/internal/bus"
)

// FriendEvent is the bus payload for friend.* events.
type FriendEvent struct {
	RequestID  string `json:"request_id,omitempty"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
}

type sendRequestBody struct {
	Username string `json:"username"`
}

// handleSendRequest proposes friendship to a user addressed by handle.
func (s *Server) handleSendRequest(w http.ResponseWriter, r *http.Request) {
	var body sendRequestBody
	if err := decodeJSON(r, &body); err != nil {
		writeError(w, err)
		return
	}
	receiverUID, err := s.db.LookupUsername(r.Context(), body.Username)
	if err != nil {
		writeError(w, err)
		return
	}
	req, err := s.db.SendFriendRequest(r.Context(), UIDFrom(r.Context()), receiverUID)
	if err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(bus.Emit(bus.KindFriendRequestSent, FriendEvent{
		RequestID:  req.ID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
	}))
	writeJSON(w, http.StatusCreated, toRequestJSON(req))
}

func (s *Server) handleListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := s.db.PendingRequestsFor(r.Context(), UIDFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]requestJSON, 0, len(reqs))
	for i := range reqs {
		out = append(out, toRequestJSON(&reqs[i]))
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleAcceptRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.db.AcceptFriendRequest(r.Context(), UIDFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(bus.Emit(bus.KindFriendRequestAccepted, FriendEvent{
		RequestID:  req.ID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
	}))
	writeJSON(w, http.StatusOK, toRequestJSON(req))
}

func (s *Server) handleRejectRequest(w http.ResponseWriter, r *http.Request) {
	req, err := s.db.RejectFriendRequest(r.Context(), UIDFrom(r.Context()), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(bus.Emit(bus.KindFriendRequestRejected, FriendEvent{
		RequestID:  req.ID,
		SenderID:   req.SenderID,
		ReceiverID: req.ReceiverID,
	}))
	writeJSON(w, http.StatusOK, toRequestJSON(req))
}

func (s *Server) handleDeleteRequest(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	if err := s.db.DeleteFriendRequest(r.Context(), UIDFrom(r.Context()), id); err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(bus.Emit(bus.KindFriendRequestDeleted, FriendEvent{RequestID: id}))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListFriends(w http.ResponseWriter, r *http.Request) {
	friends, err := s.db.Friends(r.Context(), UIDFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	if friends == nil {
		friends = []string{}
	}
	writeJSON(w, http.StatusOK, friends)
}

// handleUnfriend severs the friendship in both directions.
func (s *Server) handleUnfriend(w http.ResponseWriter, r *http.Request) {
	self := UIDFrom(r.Context())
	other := mux.Vars(r)["uid"]
	if err := s.db.Unfriend(r.Context(), self, other); err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(bus.Emit(bus.KindFriendRemoved, FriendEvent{SenderID: self, ReceiverID: other}))
	w.WriteHeader(http.StatusNoContent)
}
