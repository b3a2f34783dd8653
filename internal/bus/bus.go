// Package bus provides the in-process publish/subscribe event bus that
// connects the store's write path to live channel subscriptions and the
// API watch stream.
package bus

import (
	"strings"
	"sync"
	"sync/atomic"
)

// Bus is an in-process publish/subscribe event bus with namespace filtering.
type Bus struct {
	mu   sync.RWMutex
	subs map[int]*Sub
	next int
}

// Sub is a live subscription to a namespace prefix. Publish never
// blocks: when C's buffer is full the event is dropped and the
// subscription is marked, so consumers that need a gapless stream can
// detect the overflow and resynchronize from the store.
type Sub struct {
	C <-chan Event

	bus       *Bus
	id        int
	namespace string
	ch        chan Event
	dropped   atomic.Bool
}

// Cancel removes the subscription from the bus.
func (s *Sub) Cancel() {
	s.bus.mu.Lock()
	delete(s.bus.subs, s.id)
	s.bus.mu.Unlock()
}

// Dropped reports whether any event was discarded because the
// subscriber fell behind.
func (s *Sub) Dropped() bool {
	return s.dropped.Load()
}

// New creates a new event bus.
func New() *Bus {
	return &Bus{
		subs: make(map[int]*Sub),
	}
}

// Publish sends an event to all subscribers whose namespace is a prefix
// of event.Kind. Non-blocking: slow subscribers lose events and are
// marked as dropped.
func (b *Bus) Publish(evt Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, sub := range b.subs {
		if strings.HasPrefix(evt.Kind, sub.namespace) {
			select {
			case sub.ch <- evt:
			default:
				sub.dropped.Store(true)
			}
		}
	}
}

// Subscribe registers a subscription for the given namespace prefix.
// bufSize controls the channel buffer.
func (b *Bus) Subscribe(namespace string, bufSize int) *Sub {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	sub := &Sub{
		C:         ch,
		bus:       b,
		id:        b.next,
		namespace: namespace,
		ch:        ch,
	}
	b.subs[sub.id] = sub
	b.next++
	return sub
}
