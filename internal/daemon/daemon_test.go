package daemon

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/api"
	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/channel"
	"github.com/matheus3301/wisp/internal/client"
	"github.com/matheus3301/wisp/internal/config"
	"github.com/matheus3301/wisp/internal/live"
	"github.com/matheus3301/wisp/internal/store"
	"github.com/matheus3301/wisp/internal/sync"
)

func newAPIServer(t *testing.T) *api.Server {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "wisp.db"), store.Options{FreeDailyMessageLimit: 100})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	logger := zap.NewNop()
	b := bus.New()
	feed := live.NewFeed(db, b, logger)
	return api.NewServer(db, feed, b, logger, "test-secret", 20)
}

// TestServerLifecycle starts the HTTP server on a real TCP port and
// verifies it serves requests and shuts down cleanly.
func TestServerLifecycle(t *testing.T) {
	// Reserve a free port, then hand the address to the server.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()

	srv := NewServer(Params{ProfileName: "test", ListenAddr: addr}, config.Default(), newAPIServer(t), zap.NewNop())
	if srv.Addr() != addr {
		t.Fatalf("Addr() = %q, want %q", srv.Addr(), addr)
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + addr + "/healthz")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("server never became reachable: %v", err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status = %d, want 200", resp.StatusCode)
	}
	_ = resp.Body.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	srv.Stop(ctx)

	if err := <-errCh; err != nil {
		t.Errorf("Start() returned error after graceful stop: %v", err)
	}
}

// TestClientAgainstDaemonAPI drives the full stack over HTTP the way
// wispctl does: register two users, befriend them, open a live channel
// view for one, and have the other send a message through the API.
func TestClientAgainstDaemonAPI(t *testing.T) {
	ts := httptest.NewServer(newAPIServer(t).Router())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	alice := client.New(ts.URL)
	aliceUser, err := alice.Register(ctx, "alice", "alice@example.com")
	if err != nil {
		t.Fatal(err)
	}
	bob := client.New(ts.URL)
	bobUser, err := bob.Register(ctx, "bob", "bob@example.com")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := alice.SendFriendRequest(ctx, "bob"); err != nil {
		t.Fatal(err)
	}
	pending, err := bob.PendingRequests(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(pending) != 1 {
		t.Fatalf("pending requests = %d, want 1", len(pending))
	}
	if _, err := bob.AcceptFriendRequest(ctx, pending[0].ID); err != nil {
		t.Fatal(err)
	}

	key, err := channel.Key(aliceUser.UID, bobUser.UID)
	if err != nil {
		t.Fatal(err)
	}
	session, err := sync.NewSession(sync.Options{
		Transport: alice,
		SelfUID:   aliceUser.UID,
		PeerUID:   bobUser.UID,
		Log:       zap.NewNop(),
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := session.Open(ctx); err != nil {
		t.Fatal(err)
	}
	defer session.Close()

	if _, err := bob.Send(ctx, store.Outgoing{
		SenderID:        bobUser.UID,
		ReceiverID:      aliceUser.UID,
		Body:            "hello over http",
		ClientMessageID: "cm-1",
	}); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(3 * time.Second)
	for {
		msgs := session.Messages()
		if len(msgs) == 1 && msgs[0].Body == "hello over http" && msgs[0].ChannelKey == key {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("message never reached alice's view: %v", msgs)
		}
		time.Sleep(10 * time.Millisecond)
	}

	chats, err := bob.Channels(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0] != aliceUser.UID {
		t.Errorf("bob channels = %v, want [%s]", chats, aliceUser.UID)
	}
}
