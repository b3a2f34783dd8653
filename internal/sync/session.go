// Package sync maintains the client-side view of one channel: a single
// ordered, duplicate-free message list assembled from snapshot batches,
// live change events, pagination fetches and the caller's own
// optimistic writes.
package sync

import (
	"context"
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/apperr"
	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/cache"
	"github.com/matheus3301/wisp/internal/channel"
	"github.com/matheus3301/wisp/internal/status"
	"github.com/matheus3301/wisp/internal/store"
)

// DefaultPageSize is the channel window size when Options leaves it zero.
const DefaultPageSize = 20

// skewToleranceMillis bounds the timestamp distance when matching a
// server echo to a provisional message that lost its client id.
const skewToleranceMillis = 2000

// ViewUpdate is the bus payload published whenever the view changes.
type ViewUpdate struct {
	ChannelKey string
}

// Options configures a Session.
type Options struct {
	Transport Transport
	Bus       *bus.Bus    // optional, receives view and status events
	Cache     cache.Cache // optional, seeds the view on open
	Log       *zap.Logger
	SelfUID   string
	PeerUID   string
	PageSize  int
}

// Session is the view of one channel for one user. All methods are
// safe for concurrent use.
type Session struct {
	tp       Transport
	bus      *bus.Bus
	cache    cache.Cache
	log      *zap.Logger
	self     string
	peer     string
	key      string
	pageSize int

	machine *status.Machine
	updates chan struct{}

	mu          sync.Mutex
	messages    []store.Message
	maxWindow   int
	hasMore     bool
	gotSnapshot bool
	loadingMore bool
	closed      bool
	streamErr   error

	sub    Subscription
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSession creates a closed-over view for the channel between
// SelfUID and PeerUID. Call Open to start it.
func NewSession(opts Options) (*Session, error) {
	if opts.Transport == nil {
		return nil, apperr.InvalidArg("transport is required")
	}
	key, err := channel.Key(opts.SelfUID, opts.PeerUID)
	if err != nil {
		return nil, err
	}
	pageSize := opts.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	return &Session{
		tp:       opts.Transport,
		bus:      opts.Bus,
		cache:    opts.Cache,
		log:      log.Named("sync").With(zap.String("channel", key)),
		self:     opts.SelfUID,
		peer:     opts.PeerUID,
		key:      key,
		pageSize: pageSize,
		machine:  status.NewMachine(key, opts.Bus),
		updates:  make(chan struct{}, 1),
	}, nil
}

// ChannelKey returns the channel this session views.
func (s *Session) ChannelKey() string { return s.key }

// Open seeds the view from the cache when possible, then subscribes to
// the live feed. The subscription lives until ctx is canceled, Close is
// called, or the channel is deleted.
func (s *Session) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return apperr.FailedPrecondition("session is closed")
	}
	if s.sub != nil {
		s.mu.Unlock()
		return apperr.FailedPrecondition("session is already open")
	}
	s.mu.Unlock()

	if s.cache != nil {
		if e, err := s.cache.Get(ctx, s.key); err == nil && e != nil {
			s.mu.Lock()
			if len(s.messages) == 0 {
				s.messages = append(s.messages, e.Messages...)
				s.sortLocked()
			}
			s.mu.Unlock()
			s.notify()
		}
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub, err := s.tp.Subscribe(subCtx, s.key, s.pageSize)
	if err != nil {
		cancel()
		return err
	}

	s.mu.Lock()
	s.sub = sub
	s.cancel = cancel
	s.done = make(chan struct{})
	s.mu.Unlock()

	go s.run(subCtx, sub)
	return nil
}

func (s *Session) run(ctx context.Context, sub Subscription) {
	defer close(s.done)
	for b := range sub.Events() {
		s.apply(b)
		s.sweepSeen(ctx)
		s.writeCache(ctx)
		s.notify()
	}

	err := sub.Err()
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.streamErr = err
	if err != nil {
		s.closed = errors.Is(err, ErrChannelDeleted)
	}
	s.mu.Unlock()

	switch {
	case err == nil:
		// Upstream context canceled: a clean shutdown.
		_ = s.machine.Transition(status.Closed)
	case errors.Is(err, ErrChannelDeleted):
		s.log.Info("channel deleted, closing view")
		_ = s.machine.Transition(status.Closed)
	default:
		s.log.Warn("live feed failed", zap.Error(err))
		_ = s.machine.Transition(status.Degraded)
	}
	s.notify()
}

func (s *Session) apply(b Batch) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if b.Snapshot {
		s.applySnapshotLocked(b)
	} else {
		for _, c := range b.Changes {
			s.applyChangeLocked(c)
		}
	}
	s.sortLocked()

	if b.Snapshot {
		switch s.machine.Current() {
		case status.Opening, status.Degraded:
			_ = s.machine.Transition(status.Live)
		}
	}
}

// applySnapshotLocked replaces the live window with the snapshot while
// preserving unconfirmed provisional entries and history paginated in
// below the window.
func (s *Session) applySnapshotLocked(b Batch) {
	snap := make([]store.Message, 0, len(b.Changes))
	for _, c := range b.Changes {
		snap = append(snap, c.Message)
	}

	snapIDs := make(map[string]bool, len(snap))
	var snapMin store.Cursor
	for _, m := range snap {
		snapIDs[m.ID] = true
		if c := store.CursorOf(m); snapMin.IsZero() || lessCursor(c, snapMin) {
			snapMin = c
		}
	}

	// Provisional entries the snapshot confirms are dropped before the
	// snapshot copies are appended.
	consumed := make([]bool, len(s.messages))
	for _, m := range snap {
		if j := s.matchPendingLocked(m, consumed); j >= 0 {
			consumed[j] = true
		}
	}

	kept := make([]store.Message, 0, len(s.messages))
	for i, m := range s.messages {
		switch {
		case consumed[i]:
		case m.Pending:
			kept = append(kept, m)
		case snapIDs[m.ID]:
		case !s.gotSnapshot:
			// Before the first snapshot the view holds cache-seeded
			// entries; the snapshot is authoritative over those.
		case !snapMin.IsZero() && lessCursor(store.CursorOf(m), snapMin):
			// Paginated history older than the snapshot window.
			kept = append(kept, m)
		default:
			// Inside the window but missing from it: removed server-side.
		}
	}
	s.messages = append(kept, snap...)

	if !s.gotSnapshot {
		s.gotSnapshot = true
		s.maxWindow = b.WindowSize
		s.hasMore = b.WindowSize >= s.pageSize
		return
	}
	if b.WindowSize > s.maxWindow {
		s.maxWindow = b.WindowSize
	}
	// A full window means more history may exist. A shrunk window, as
	// after deletions, never clears hasMore on its own.
	if b.WindowSize >= s.pageSize {
		s.hasMore = true
	}
}

func (s *Session) applyChangeLocked(c Change) {
	m := c.Message
	switch c.Type {
	case Added:
		if i := s.indexOfLocked(m.ID); i >= 0 {
			s.messages[i] = m
			return
		}
		if j := s.matchPendingLocked(m, nil); j >= 0 {
			s.messages[j] = m
			return
		}
		s.messages = append(s.messages, m)
	case Modified:
		if i := s.indexOfLocked(m.ID); i >= 0 {
			s.messages[i] = m
		}
	case Removed:
		if i := s.indexOfLocked(m.ID); i >= 0 {
			s.messages = append(s.messages[:i], s.messages[i+1:]...)
		}
	}
}

// matchPendingLocked finds the provisional entry a server echo
// confirms: exact client id first, then same body from self within the
// skew tolerance. skip entries already consumed by this batch.
func (s *Session) matchPendingLocked(m store.Message, skip []bool) int {
	if m.SenderID != s.self {
		return -1
	}
	if m.ClientMessageID != "" {
		for i, p := range s.messages {
			if p.Pending && (skip == nil || !skip[i]) && p.ClientMessageID == m.ClientMessageID {
				return i
			}
		}
	}
	for i, p := range s.messages {
		if !p.Pending || (skip != nil && skip[i]) {
			continue
		}
		if p.Body == m.Body && absMillis(p.CreatedAt-m.CreatedAt) <= skewToleranceMillis {
			return i
		}
	}
	return -1
}

func (s *Session) indexOfLocked(id string) int {
	for i := range s.messages {
		if s.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *Session) sortLocked() {
	sort.SliceStable(s.messages, func(i, j int) bool {
		a, b := s.messages[i], s.messages[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		return a.ID < b.ID
	})
}

func (s *Session) notify() {
	select {
	case s.updates <- struct{}{}:
	default:
	}
	if s.bus != nil {
		s.bus.Publish(bus.Emit(bus.KindChannelViewUpdated, ViewUpdate{ChannelKey: s.key}))
	}
}

func (s *Session) writeCache(ctx context.Context) {
	if s.cache == nil {
		return
	}
	s.mu.Lock()
	window := make([]store.Message, 0, s.pageSize)
	for _, m := range s.messages {
		if !m.Pending {
			window = append(window, m)
		}
	}
	if len(window) > s.pageSize {
		window = window[len(window)-s.pageSize:]
	}
	s.mu.Unlock()
	if err := s.cache.Put(ctx, s.key, window); err != nil {
		s.log.Warn("cache write failed", zap.Error(err))
	}
}

// Updates signals after each view change, coalesced. Consumers re-read
// Messages on each tick.
func (s *Session) Updates() <-chan struct{} { return s.updates }

// Messages returns a copy of the current view, ordered oldest first.
func (s *Session) Messages() []store.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]store.Message(nil), s.messages...)
}

// HasMore reports whether older history is believed to exist.
func (s *Session) HasMore() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hasMore
}

// Status returns the view lifecycle state.
func (s *Session) Status() status.State { return s.machine.Current() }

// Err reports why the live feed ended, nil while it is running or
// after a clean Close.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamErr
}

// Close ends the subscription. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	_ = s.machine.Transition(status.Closed)
	s.notify()
}

func lessCursor(a, b store.Cursor) bool {
	if a.Ts != b.Ts {
		return a.Ts < b.Ts
	}
	return a.ID < b.ID
}

func absMillis(d int64) int64 {
	if d < 0 {
		return -d
	}
	return d
}
