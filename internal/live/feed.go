// Package live implements the in-process transport between a channel
// session and the daemon's store: writes go through the store's atomic
// procedures and are announced on the bus, reads combine a store
// snapshot with the bus change feed.
package live

import (
	"context"

	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/store"
	"github.com/matheus3301/wisp/internal/sync"
)

const (
	// busBuffer sizes the per-subscription bus channel. Overflow marks
	// the subscription dropped and triggers a store resync.
	busBuffer = 256
	// eventsBuffer sizes the batch channel handed to the session.
	eventsBuffer = 16
)

// MessageEvent is the bus payload for message.* events.
type MessageEvent struct {
	ChannelKey string
	Message    store.Message
}

// ChannelEvent is the bus payload for channel.deleted events.
type ChannelEvent struct {
	ChannelKey string
}

// Feed implements sync.Transport against the daemon's own store and bus.
type Feed struct {
	db  *store.DB
	bus *bus.Bus
	log *zap.Logger
}

// NewFeed creates an in-process transport.
func NewFeed(db *store.DB, b *bus.Bus, log *zap.Logger) *Feed {
	return &Feed{db: db, bus: b, log: log.Named("live")}
}

// Send appends a message and announces it.
func (f *Feed) Send(ctx context.Context, out store.Outgoing) (*store.Message, error) {
	m, err := f.db.AppendMessage(ctx, out)
	if err != nil {
		return nil, err
	}
	f.bus.Publish(bus.Emit(bus.KindMessageAdded, MessageEvent{ChannelKey: m.ChannelKey, Message: *m}))
	return m, nil
}

// Edit rewrites a message body and announces the modification.
func (f *Feed) Edit(ctx context.Context, channelKey, messageID, callerUID, body string) error {
	m, err := f.db.EditMessage(ctx, channelKey, messageID, callerUID, body)
	if err != nil {
		return err
	}
	f.bus.Publish(bus.Emit(bus.KindMessageModified, MessageEvent{ChannelKey: channelKey, Message: *m}))
	return nil
}

// Delete removes a message and announces the removal.
func (f *Feed) Delete(ctx context.Context, channelKey, messageID, callerUID string) error {
	m, err := f.db.DeleteMessage(ctx, channelKey, messageID, callerUID)
	if err != nil {
		return err
	}
	f.bus.Publish(bus.Emit(bus.KindMessageRemoved, MessageEvent{ChannelKey: channelKey, Message: *m}))
	return nil
}

// MarkSeen flips unseen inbound messages and announces each update.
// Already-seen ids publish nothing, so retries are quiet.
func (f *Feed) MarkSeen(ctx context.Context, channelKey, recipientUID string, ids []string) error {
	updated, err := f.db.MarkSeen(ctx, channelKey, recipientUID, ids)
	if err != nil {
		return err
	}
	for i := range updated {
		f.bus.Publish(bus.Emit(bus.KindMessageModified, MessageEvent{ChannelKey: channelKey, Message: updated[i]}))
	}
	return nil
}

// FetchOlder returns up to limit messages strictly older than the cursor.
func (f *Feed) FetchOlder(ctx context.Context, channelKey string, before store.Cursor, limit int) ([]store.Message, error) {
	return f.db.MessagesBefore(ctx, channelKey, before, limit)
}

// DeleteChannel removes the conversation and tells open subscriptions
// to shut down. Not part of the session transport; the API layer calls
// it directly.
func (f *Feed) DeleteChannel(ctx context.Context, callerUID, channelKey string) error {
	if err := f.db.DeleteChannel(ctx, callerUID, channelKey); err != nil {
		return err
	}
	f.bus.Publish(bus.Emit(bus.KindChannelDeleted, ChannelEvent{ChannelKey: channelKey}))
	return nil
}

// Subscribe opens a live feed for one channel: a snapshot batch of the
// latest pageSize messages, then one batch per bus change. The feed
// goroutine ends when ctx is canceled, Close is called, or the channel
// is deleted.
func (f *Feed) Subscribe(ctx context.Context, channelKey string, pageSize int) (sync.Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	// Subscribe before the snapshot query so no change can fall in
	// between.
	msgSub := f.bus.Subscribe("message.", busBuffer)
	chanSub := f.bus.Subscribe("channel.", busBuffer)

	msgs, err := f.db.LatestMessages(ctx, channelKey, pageSize)
	if err != nil {
		msgSub.Cancel()
		chanSub.Cancel()
		cancel()
		return nil, err
	}

	s := &subscription{
		events: make(chan sync.Batch, eventsBuffer),
		cancel: cancel,
	}
	go f.forward(ctx, channelKey, pageSize, msgSub, chanSub, s, msgs)
	return s, nil
}

func (f *Feed) forward(ctx context.Context, channelKey string, pageSize int, msgSub, chanSub *bus.Sub, s *subscription, snapshot []store.Message) {
	defer func() {
		msgSub.Cancel()
		chanSub.Cancel()
		close(s.events)
	}()

	if !s.send(ctx, snapshotBatch(snapshot)) {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case evt := <-msgSub.C:
			if msgSub.Dropped() {
				// Fell behind the bus: the stream has a gap. Replace
				// the subscription and resync from the store.
				msgSub.Cancel()
				msgSub = f.bus.Subscribe("message.", busBuffer)
				f.log.Warn("subscription fell behind, resyncing", zap.String("channel", channelKey))
				msgs, err := f.db.LatestMessages(ctx, channelKey, pageSize)
				if err != nil {
					s.err = err
					return
				}
				if !s.send(ctx, snapshotBatch(msgs)) {
					return
				}
				continue
			}
			me, ok := evt.Payload.(MessageEvent)
			if !ok || me.ChannelKey != channelKey {
				continue
			}
			change := sync.Change{Message: me.Message}
			switch evt.Kind {
			case bus.KindMessageAdded:
				change.Type = sync.Added
			case bus.KindMessageModified:
				change.Type = sync.Modified
			case bus.KindMessageRemoved:
				change.Type = sync.Removed
			default:
				continue
			}
			if !s.send(ctx, sync.Batch{Changes: []sync.Change{change}}) {
				return
			}
		case evt := <-chanSub.C:
			if evt.Kind != bus.KindChannelDeleted {
				continue
			}
			if ce, ok := evt.Payload.(ChannelEvent); ok && ce.ChannelKey == channelKey {
				s.err = sync.ErrChannelDeleted
				return
			}
		}
	}
}

func snapshotBatch(msgs []store.Message) sync.Batch {
	b := sync.Batch{Snapshot: true, WindowSize: len(msgs)}
	for i := range msgs {
		b.Changes = append(b.Changes, sync.Change{Type: sync.Added, Message: msgs[i]})
	}
	return b
}

type subscription struct {
	events chan sync.Batch
	cancel context.CancelFunc
	err    error
}

func (s *subscription) Events() <-chan sync.Batch { return s.events }

// Err reports why the stream ended. Valid after Events is closed.
func (s *subscription) Err() error { return s.err }

func (s *subscription) Close() { s.cancel() }

func (s *subscription) send(ctx context.Context, b sync.Batch) bool {
	select {
	case s.events <- b:
		return true
	case <-ctx.Done():
		return false
	}
}
