package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"go.uber.org/zap"

	"github.com/matheus3301/wisp/internal/bus"
	"github.com/matheus3301/wisp/internal/channel"
	"github.com/matheus3301/wisp/internal/live"
	"github.com/matheus3301/wisp/internal/store"
)

const testSecret = "test-secret"

type testEnv struct {
	t      *testing.T
	srv    *httptest.Server
	client *http.Client
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db, err := store.Open(filepath.Join(t.TempDir(), "test.db"), store.Options{FreeDailyMessageLimit: 5})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Migrate(); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	b := bus.New()
	feed := live.NewFeed(db, b, zap.NewNop())
	server := NewServer(db, feed, b, zap.NewNop(), testSecret, 20)
	srv := httptest.NewServer(server.Router())
	t.Cleanup(srv.Close)
	return &testEnv{t: t, srv: srv, client: srv.Client()}
}

func (e *testEnv) do(method, path, token string, body any) (*http.Response, []byte) {
	e.t.Helper()
	var buf io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			e.t.Fatal(err)
		}
		buf = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, buf)
	if err != nil {
		e.t.Fatal(err)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := e.client.Do(req)
	if err != nil {
		e.t.Fatal(err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		e.t.Fatal(err)
	}
	return resp, data
}

func (e *testEnv) register(username string) (uid, token string) {
	e.t.Helper()
	resp, data := e.do(http.MethodPost, "/register", "", registerRequest{Username: username})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("register %s: status %d, body %s", username, resp.StatusCode, data)
	}
	var out registerResponse
	if err := json.Unmarshal(data, &out); err != nil {
		e.t.Fatal(err)
	}
	return out.User.UID, out.Token
}

// befriend runs the full request/accept flow.
func (e *testEnv) befriend(senderToken, receiverToken, receiverUsername string) {
	e.t.Helper()
	resp, data := e.do(http.MethodPost, "/api/v1/friends/requests", senderToken, sendRequestBody{Username: receiverUsername})
	if resp.StatusCode != http.StatusCreated {
		e.t.Fatalf("send request: status %d, body %s", resp.StatusCode, data)
	}
	var req requestJSON
	if err := json.Unmarshal(data, &req); err != nil {
		e.t.Fatal(err)
	}
	resp, data = e.do(http.MethodPost, "/api/v1/friends/requests/"+req.ID+"/accept", receiverToken, nil)
	if resp.StatusCode != http.StatusOK {
		e.t.Fatalf("accept request: status %d, body %s", resp.StatusCode, data)
	}
}

func TestRegisterAndAuth(t *testing.T) {
	e := newTestEnv(t)
	_, token := e.register("alice")

	resp, data := e.do(http.MethodGet, "/api/v1/me", token, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("me: status %d, body %s", resp.StatusCode, data)
	}
	var u userJSON
	if err := json.Unmarshal(data, &u); err != nil {
		t.Fatal(err)
	}
	if u.Username != "alice" || u.Plan != store.PlanFree {
		t.Errorf("me = %+v", u)
	}

	// No token, bad token.
	resp, _ = e.do(http.MethodGet, "/api/v1/me", "", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("unauthenticated status = %d, want 401", resp.StatusCode)
	}
	resp, _ = e.do(http.MethodGet, "/api/v1/me", "not.a.token", nil)
	if resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("bad token status = %d, want 401", resp.StatusCode)
	}
}

func TestRegisterDuplicate(t *testing.T) {
	e := newTestEnv(t)
	e.register("alice")
	resp, data := e.do(http.MethodPost, "/register", "", registerRequest{Username: "Alice"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("duplicate register status = %d, body %s, want 409", resp.StatusCode, data)
	}
	var body errorBody
	if err := json.Unmarshal(data, &body); err != nil {
		t.Fatal(err)
	}
	if body.Code != "ALREADY_EXISTS" {
		t.Errorf("error code = %s", body.Code)
	}
}

func TestRenameConflict(t *testing.T) {
	e := newTestEnv(t)
	_, aliceTok := e.register("alice")
	_, bobTok := e.register("bob")

	resp, _ := e.do(http.MethodPut, "/api/v1/profile/username", bobTok, renameRequest{Username: "robert"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("rename status = %d", resp.StatusCode)
	}
	// The old handle is free again.
	resp, _ = e.do(http.MethodPut, "/api/v1/profile/username", aliceTok, renameRequest{Username: "bob"})
	if resp.StatusCode != http.StatusOK {
		t.Errorf("claim released handle status = %d, want 200", resp.StatusCode)
	}
	// The new one is taken.
	resp, _ = e.do(http.MethodPut, "/api/v1/profile/username", aliceTok, renameRequest{Username: "robert"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("claim taken handle status = %d, want 409", resp.StatusCode)
	}
}

func TestFriendFlow(t *testing.T) {
	e := newTestEnv(t)
	aliceUID, aliceTok := e.register("alice")
	bobUID, bobTok := e.register("bob")
	e.befriend(aliceTok, bobTok, "bob")

	for _, tc := range []struct{ token, want string }{
		{aliceTok, bobUID},
		{bobTok, aliceUID},
	} {
		resp, data := e.do(http.MethodGet, "/api/v1/friends", tc.token, nil)
		if resp.StatusCode != http.StatusOK {
			t.Fatalf("friends status = %d", resp.StatusCode)
		}
		var friends []string
		if err := json.Unmarshal(data, &friends); err != nil {
			t.Fatal(err)
		}
		if len(friends) != 1 || friends[0] != tc.want {
			t.Errorf("friends = %v, want [%s]", friends, tc.want)
		}
	}

	// Unfriend severs both directions.
	resp, _ := e.do(http.MethodDelete, "/api/v1/friends/"+bobUID, aliceTok, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("unfriend status = %d", resp.StatusCode)
	}
	resp, data := e.do(http.MethodGet, "/api/v1/friends", bobTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatal("friends after unfriend")
	}
	var friends []string
	if err := json.Unmarshal(data, &friends); err != nil {
		t.Fatal(err)
	}
	if len(friends) != 0 {
		t.Errorf("bob's friends after unfriend = %v, want none", friends)
	}
}

func TestAcceptWrongParty(t *testing.T) {
	e := newTestEnv(t)
	_, aliceTok := e.register("alice")
	e.register("bob")

	resp, data := e.do(http.MethodPost, "/api/v1/friends/requests", aliceTok, sendRequestBody{Username: "bob"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("send request status = %d", resp.StatusCode)
	}
	var req requestJSON
	if err := json.Unmarshal(data, &req); err != nil {
		t.Fatal(err)
	}

	// The sender cannot accept their own request.
	resp, _ = e.do(http.MethodPost, "/api/v1/friends/requests/"+req.ID+"/accept", aliceTok, nil)
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("self-accept status = %d, want 403", resp.StatusCode)
	}
	// Accepting a missing request is 404.
	resp, _ = e.do(http.MethodPost, "/api/v1/friends/requests/nope/accept", aliceTok, nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("missing request status = %d, want 404", resp.StatusCode)
	}
}

func TestMessagingRequiresFriendship(t *testing.T) {
	e := newTestEnv(t)
	_, aliceTok := e.register("alice")
	bobUID, bobTok := e.register("bob")

	resp, _ := e.do(http.MethodPost, "/api/v1/channels/"+bobUID+"/messages", aliceTok, sendMessageBody{Body: "hi"})
	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("message to non-friend status = %d, want 403", resp.StatusCode)
	}

	e.befriend(aliceTok, bobTok, "bob")
	resp, data := e.do(http.MethodPost, "/api/v1/channels/"+bobUID+"/messages", aliceTok, sendMessageBody{Body: "hi"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("message to friend status = %d, body %s", resp.StatusCode, data)
	}
	var m messageJSON
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Body != "hi" || m.ID == "" {
		t.Errorf("message = %+v", m)
	}
}

func TestMessagePagination(t *testing.T) {
	e := newTestEnv(t)
	aliceUID, aliceTok := e.register("alice")
	bobUID, bobTok := e.register("bob")
	e.befriend(aliceTok, bobTok, "bob")

	// The free-plan quota is 5 per user in this env; send 8 split
	// across both sides.
	for i := 0; i < 8; i++ {
		token, target := aliceTok, bobUID
		if i%2 == 1 {
			token, target = bobTok, aliceUID
		}
		resp, data := e.do(http.MethodPost, "/api/v1/channels/"+target+"/messages", token, sendMessageBody{Body: fmt.Sprintf("m%d", i)})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("send %d: status %d, body %s", i, resp.StatusCode, data)
		}
	}

	resp, data := e.do(http.MethodGet, "/api/v1/channels/"+bobUID+"/messages?limit=5", aliceTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("list status = %d", resp.StatusCode)
	}
	var page messagePage
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 5 || !page.HasMore {
		t.Fatalf("page = %d messages, hasMore %v, want 5 and true", len(page.Messages), page.HasMore)
	}

	oldest := page.Messages[len(page.Messages)-1]
	url := fmt.Sprintf("/api/v1/channels/%s/messages?limit=5&before_ts=%d&before_id=%s", bobUID, oldest.CreatedAt, oldest.ID)
	resp, data = e.do(http.MethodGet, url, aliceTok, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("older page status = %d", resp.StatusCode)
	}
	if err := json.Unmarshal(data, &page); err != nil {
		t.Fatal(err)
	}
	if len(page.Messages) != 3 || page.HasMore {
		t.Errorf("older page = %d messages, hasMore %v, want 3 and false", len(page.Messages), page.HasMore)
	}
}

func TestQuotaExceeded(t *testing.T) {
	e := newTestEnv(t)
	_, aliceTok := e.register("alice")
	bobUID, bobTok := e.register("bob")
	e.befriend(aliceTok, bobTok, "bob")

	for i := 0; i < 5; i++ {
		resp, _ := e.do(http.MethodPost, "/api/v1/channels/"+bobUID+"/messages", aliceTok, sendMessageBody{Body: "x"})
		if resp.StatusCode != http.StatusCreated {
			t.Fatalf("send %d failed: %d", i, resp.StatusCode)
		}
	}
	resp, data := e.do(http.MethodPost, "/api/v1/channels/"+bobUID+"/messages", aliceTok, sendMessageBody{Body: "over"})
	if resp.StatusCode != http.StatusTooManyRequests {
		t.Errorf("over-quota status = %d, body %s, want 429", resp.StatusCode, data)
	}
}

func TestEditAndDeleteMessage(t *testing.T) {
	e := newTestEnv(t)
	_, aliceTok := e.register("alice")
	bobUID, bobTok := e.register("bob")
	e.befriend(aliceTok, bobTok, "bob")

	resp, data := e.do(http.MethodPost, "/api/v1/channels/"+bobUID+"/messages", aliceTok, sendMessageBody{Body: "draft"})
	if resp.StatusCode != http.StatusCreated {
		t.Fatal("send failed")
	}
	var m messageJSON
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}

	// Only the sender can edit.
	aliceUID, err := channel.Other(m.ChannelKey, bobUID)
	if err != nil {
		t.Fatal(err)
	}
	resp, _ = e.do(http.MethodPatch, "/api/v1/channels/"+aliceUID+"/messages/"+m.ID, bobTok, editMessageBody{Body: "hax"})
	if resp.StatusCode != http.StatusForbidden {
		t.Errorf("non-sender edit status = %d, want 403", resp.StatusCode)
	}

	resp, data = e.do(http.MethodPatch, "/api/v1/channels/"+bobUID+"/messages/"+m.ID, aliceTok, editMessageBody{Body: "final"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("edit status = %d, body %s", resp.StatusCode, data)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatal(err)
	}
	if m.Body != "final" || !m.Edited {
		t.Errorf("edited message = %+v", m)
	}

	resp, _ = e.do(http.MethodDelete, "/api/v1/channels/"+bobUID+"/messages/"+m.ID, aliceTok, nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Errorf("delete status = %d", resp.StatusCode)
	}
}
