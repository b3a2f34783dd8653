package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/bus"
)

type registerRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

type registerResponse struct {
	User  userJSON `json:"user"`
	Token string   `json:"token"`
}

// handleRegister provisions a user with secure defaults and mints an
// access token.
func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.db.CreateUser(r.Context(), req.Username, req.Email)
	if err != nil {
		writeError(w, err)
		return
	}
	token, err := SignToken(s.secret, u.UID, u.Username, TokenTTL)
	if err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(bus.Emit(bus.KindUserCreated, UserEvent{UID: u.UID, Username: u.Username}))
	s.logger.Info("user registered", zap.String("uid", u.UID), zap.String("username", u.Username))
	writeJSON(w, http.StatusCreated, registerResponse{User: toUserJSON(u), Token: token})
}

func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	u, err := s.db.GetUser(r.Context(), UIDFrom(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toUserJSON(u))
}

type renameRequest struct {
	Username string `json:"username"`
}

// handleRename claims a new handle. The reservation table makes the
// rename atomic: on conflict nothing changes and the caller gets 409.
func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var req renameRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, err)
		return
	}
	uid := UIDFrom(r.Context())
	if err := s.db.RenameUser(r.Context(), uid, req.Username); err != nil {
		writeError(w, err)
		return
	}
	u, err := s.db.GetUser(r.Context(), uid)
	if err != nil {
		writeError(w, err)
		return
	}
	s.bus.Publish(bus.Emit(bus.KindUserRenamed, UserEvent{UID: uid, Username: u.Username}))
	writeJSON(w, http.StatusOK, toUserJSON(u))
}

// UserEvent is the bus payload for user.* events.
type UserEvent struct {
	UID      string `json:"uid"`
	Username string `json:"username"`
}
