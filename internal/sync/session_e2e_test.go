package sync_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/live"
	"github.com/matheus3301/wisp/internal/store"
	"github.com/matheus3301/wisp/internal/sync"
)

// Two sessions sharing one daemon: a message sent on one side shows up
// on the other, and the reader's seen receipt flows back to the sender.
func TestTwoSessionsOverFeed(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.Options{})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	ctx := context.Background()
	alice, err := db.CreateUser(ctx, "alice", "")
	if err != nil {
		t.Fatal(err)
	}
	bob, err := db.CreateUser(ctx, "bob", "")
	if err != nil {
		t.Fatal(err)
	}

	feed := live.NewFeed(db, bus.New(), zap.NewNop())

	open := func(selfUID, peerUID string) *sync.Session {
		s, err := sync.NewSession(sync.Options{
			Transport: feed,
			SelfUID:   selfUID,
			PeerUID:   peerUID,
		})
		if err != nil {
			t.Fatal(err)
		}
		if err := s.Open(ctx); err != nil {
			t.Fatal(err)
		}
		t.Cleanup(s.Close)
		return s
	}

	aliceView := open(alice.UID, bob.UID)
	bobView := open(bob.UID, alice.UID)

	if err := aliceView.SendText(ctx, "hi bob"); err != nil {
		t.Fatal(err)
	}

	wait(t, "bob receives the message", func() bool {
		msgs := bobView.Messages()
		return len(msgs) == 1 && msgs[0].Body == "hi bob"
	})
	wait(t, "alice sees exactly one confirmed copy", func() bool {
		msgs := aliceView.Messages()
		return len(msgs) == 1 && !msgs[0].Pending
	})

	// Bob's open view sweeps the message seen; the receipt reaches alice.
	wait(t, "seen receipt propagates", func() bool {
		msgs := aliceView.Messages()
		return len(msgs) == 1 && msgs[0].Seen
	})
}

func wait(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting until %s", what)
}
