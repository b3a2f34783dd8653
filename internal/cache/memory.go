package cache

import (
	"context"
	"sync"
	"time"

	"github.com/matheus3301/wisp/internal/store"
)

// Memory is an in-process Cache with TTL eviction on read. It is the
// default when no Redis address is configured.
type Memory struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]Entry
	now     func() time.Time
}

// NewMemory creates a memory cache whose entries expire after ttl.
func NewMemory(ttl time.Duration) *Memory {
	return &Memory{
		ttl:     ttl,
		entries: make(map[string]Entry),
		now:     time.Now,
	}
}

func (m *Memory) Get(_ context.Context, channelKey string) (*Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[channelKey]
	if !ok {
		return nil, nil
	}
	if m.now().Sub(e.SavedAt) > m.ttl {
		delete(m.entries, channelKey)
		return nil, nil
	}
	out := e
	out.Messages = append([]store.Message(nil), e.Messages...)
	return &out, nil
}

func (m *Memory) Put(_ context.Context, channelKey string, msgs []store.Message) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[channelKey] = Entry{
		Messages: append([]store.Message(nil), msgs...),
		SavedAt:  m.now(),
	}
	return nil
}

func (m *Memory) Delete(_ context.Context, channelKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.entries, channelKey)
	return nil
}
