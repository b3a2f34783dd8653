package sync

import (
	"context"

	"github.com/matheus3301/wisp/internal/store"
)

// Anchor lets a scroll container hold its visual position while older
// history is prepended: the session measures content height before and
// after the prepend and offsets by the difference.
type Anchor interface {
	ContentHeight() int
	OffsetBy(delta int)
}

// LoadOlder fetches the page before the oldest confirmed message and
/// prepends it. Single-flight: a call while a fetch is in progress, or
// when no more history exists, is a no-op. Results arriving after
// Close are discarded.
func (s *Session) LoadOlder(ctx context.Context, anchor Anchor) error {
	s.mu.Lock()
	if s.closed || s.loadingMore || !s.hasMore {
		s.mu.Unlock()
		return nil
	}
	var cursor store.Cursor
	for _, m := range s.messages {
		if !m.Pending {
			// Sorted ascending, so the first confirmed entry is oldest.
			cursor = store.CursorOf(m)
			break
		}
	}
	if cursor.IsZero() {
		s.mu.Unlock()
		return nil
	}
	s.loadingMore = true
	s.mu.Unlock()

	var before int
	if anchor != nil {
		before = anchor.ContentHeight()
	}

	older, err := s.tp.FetchOlder(ctx, s.key, cursor, s.pageSize)

	s.mu.Lock()
	s.loadingMore = false
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	added := 0
	for _, m := range older {
		if s.indexOfLocked(m.ID) < 0 {
			s.messages = append(s.messages, m)
			added++
		}
	}
	s.sortLocked()
	s.hasMore = len(older) == s.pageSize
	s.maxWindow += added
	s.mu.Unlock()
	s.notify()

	if anchor != nil {
		anchor.OffsetBy(anchor.ContentHeight() - before)
	}
	return nil
}
