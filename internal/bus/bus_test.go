package bus

import (
	"testing"
	"time"
)

func TestPublishSubscribe(t *testing.T) {
	b := New()
	sub := b.Subscribe("message.", 10)
	defer sub.Cancel()

	b.Publish(Emit(KindMessageAdded, "payload"))

	select {
	case evt := <-sub.C:
		if evt.Kind != KindMessageAdded {
			t.Errorf("got kind %q, want %q", evt.Kind, KindMessageAdded)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestNamespaceFiltering(t *testing.T) {
	b := New()
	sub := b.Subscribe("friend.", 10)
	defer sub.Cancel()

	b.Publish(Emit(KindMessageAdded, nil))
	b.Publish(Emit(KindFriendRequestAccepted, nil))

	select {
	case evt := <-sub.C:
		if evt.Kind != KindFriendRequestAccepted {
			t.Errorf("got kind %q, want %q", evt.Kind, KindFriendRequestAccepted)
		}
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}

	// Ensure the message event was not delivered.
	select {
	case evt := <-sub.C:
		t.Errorf("unexpected event: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected: no more events.
	}
}

func TestCancel(t *testing.T) {
	b := New()
	sub := b.Subscribe("user.", 10)
	sub.Cancel()

	b.Publish(Emit(KindUserRenamed, nil))

	select {
	case evt := <-sub.C:
		t.Errorf("received event after cancel: %v", evt)
	case <-time.After(50 * time.Millisecond):
		// Expected.
	}
}

func TestDropOnFullBuffer(t *testing.T) {
	b := New()
	sub := b.Subscribe("test.", 1)
	defer sub.Cancel()

	// Fill buffer.
	b.Publish(Event{Kind: "test.one"})
	// This one exceeds the buffer and is discarded.
	b.Publish(Event{Kind: "test.two"})

	evt := <-sub.C
	if evt.Kind != "test.one" {
		t.Errorf("got %q, want test.one", evt.Kind)
	}
	if !sub.Dropped() {
		t.Error("overflow not recorded on subscription")
	}
}
