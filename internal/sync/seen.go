package sync

import (
	"context"

	"go.uber.org/zap"
)

// sweepSeen marks every unseen inbound message seen. Runs after each
// applied batch; a failed sweep is only logged, since the flags stay
// false and the next batch retries. MarkSeen is idempotent server-side,
// so overlapping sweeps are harmless.
func (s *Session) sweepSeen(ctx context.Context) {
	s.mu.Lock()
	var ids []string
	for _, m := range s.messages {
		if !m.Pending && m.SenderID == s.peer && !m.Seen {
			ids = append(ids, m.ID)
		}
	}
	closed := s.closed
	s.mu.Unlock()

	if closed || len(ids) == 0 {
		return
	}
	if err := s.tp.MarkSeen(ctx, s.key, s.self, ids); err != nil {
		s.log.Warn("mark seen failed", zap.Int("count", len(ids)), zap.Error(err))
	}
}
