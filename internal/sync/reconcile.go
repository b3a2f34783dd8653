package sync

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/matheus3301/wisp/internal/apperr"
	"github.com/matheus3301/wisp/internal/store"
)

// localIDPrefix marks a provisional message id. The server never
// issues ids with this prefix.
const localIDPrefix = "local-"

// SendText appends a provisional entry to the view and submits the
// message. On failure the entry is removed and the transport's typed
// error is returned unchanged.
func (s *Session) SendText(ctx context.Context, body string) error {
	if strings.TrimSpace(body) == "" {
		return apperr.InvalidArg("message body is empty")
	}

	cid := uuid.NewString()
	provisional := store.Message{
		ID:              localIDPrefix + cid,
		ChannelKey:      s.key,
		SenderID:        s.self,
		ReceiverID:      s.peer,
		Body:            body,
		ClientMessageID: cid,
		CreatedAt:       time.Now().UnixMilli(),
		Pending:         true,
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperr.FailedPrecondition("session is closed")
	}
	s.messages = append(s.messages, provisional)
	s.sortLocked()
	s.mu.Unlock()
	s.notify()

	m, err := s.tp.Send(ctx, store.Outgoing{
		SenderID:        s.self,
		ReceiverID:      s.peer,
		Body:            body,
		ClientMessageID: cid,
	})
	if err != nil {
		// Roll the provisional entry back so the view never shows a
		// message the server rejected.
		s.mu.Lock()
		if i := s.indexOfLocked(provisional.ID); i >= 0 {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
		}
		s.mu.Unlock()
		s.notify()
		return err
	}

	// Confirm eagerly; the echoed added event will find the server id
	// already present and replace in place.
	s.mu.Lock()
	if !s.closed {
		if s.indexOfLocked(m.ID) < 0 {
			if j := s.indexOfLocked(provisional.ID); j >= 0 {
				s.messages[j] = *m
			} else {
				s.messages = append(s.messages, *m)
			}
			s.sortLocked()
		} else if j := s.indexOfLocked(provisional.ID); j >= 0 {
			s.messages = append(s.messages[:j], s.messages[j+1:]...)
		}
	}
	s.mu.Unlock()
	s.notify()
	return nil
}

// Edit rewrites one of the caller's messages, optimistically in the
// view first. The original body is restored if the server refuses.
func (s *Session) Edit(ctx context.Context, messageID, body string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperr.FailedPrecondition("session is closed")
	}
	i := s.indexOfLocked(messageID)
	if i < 0 {
		s.mu.Unlock()
		return apperr.NotFound("message not in view")
	}
	if s.messages[i].Pending {
		s.mu.Unlock()
		return apperr.FailedPrecondition("message not yet confirmed")
	}
	orig := s.messages[i]
	s.messages[i].Body = body
	s.messages[i].Edited = true
	s.mu.Unlock()
	s.notify()

	if err := s.tp.Edit(ctx, s.key, messageID, s.self, body); err != nil {
		s.mu.Lock()
		if j := s.indexOfLocked(messageID); j >= 0 {
			s.messages[j] = orig
		}
		s.mu.Unlock()
		s.notify()
		return err
	}
	return nil
}

// Delete removes one of the caller's messages, optimistically in the
// view first. The entry is restored if the server refuses.
func (s *Session) Delete(ctx context.Context, messageID string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperr.FailedPrecondition("session is closed")
	}
	i := s.indexOfLocked(messageID)
	if i < 0 {
		s.mu.Unlock()
		return apperr.NotFound("message not in view")
	}
	if s.messages[i].Pending {
		s.mu.Unlock()
		return apperr.FailedPrecondition("message not yet confirmed")
	}
	removed := s.messages[i]
	s.messages = append(s.messages[:i], s.messages[i+1:]...)
	s.mu.Unlock()
	s.notify()

	if err := s.tp.Delete(ctx, s.key, messageID, s.self); err != nil {
		s.mu.Lock()
		if s.indexOfLocked(messageID) < 0 {
			s.messages = append(s.messages, removed)
			s.sortLocked()
		}
		s.mu.Unlock()
		s.notify()
		return err
	}
	return nil
}
