package chatroom

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"fluxy/types"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

type recordingSink struct {
	mu   sync.Mutex
	msgs []types.Message
	err  error
}

func (s *recordingSink) CreateMessage(ctx context.Context, serverID, channelID, author int64, content string) (*types.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	m := types.Message{ID: int64(len(s.msgs) + 1), ChannelID: channelID, UserID: author, Content: content}
	s.msgs = append(s.msgs, m)
	return &m, nil
}

func (s *recordingSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.msgs)
}

// fakeGate admits everyone except the users in deny.
type fakeGate struct {
	deny map[int64]bool
	err  error
}

func (g *fakeGate) CanJoinChannel(ctx context.Context, user, serverID, channelID int64) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	return !g.deny[user], nil
}

func newSocketServer(t *testing.T, h *Handler) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/ws", func(c *gin.Context) {
		if uid, err := strconv.ParseInt(c.Query("uid"), 10, 64); err == nil {
			c.Set("userID", uid)
		}
		c.Set("userUsername", c.Query("name"))
		c.Set("userEmail", c.Query("email"))
		c.Next()
	}, h.HandleSocket)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial %s: %v", query, err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func expectLine(t *testing.T, conn *websocket.Conn, want string) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	mt, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("waiting for %q: %v", want, err)
	}
	if mt != websocket.TextMessage || string(data) != want {
		t.Fatalf("got %q (type %d), want %q", data, mt, want)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(10 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func TestSocketChatFlow(t *testing.T) {
	reg := newRunningRegistry(t)
	sink := &recordingSink{}
	srv := newSocketServer(t, NewHandler(reg, sink, &fakeGate{}))

	alice := dial(t, srv, "uid=111&name=alice&server_id=1&channel_id=10")
	expectLine(t, alice, "alice joined the chat")

	bob := dial(t, srv, "uid=222&email=bob@example.com&server_id=1&channel_id=10")
	expectLine(t, bob, "bob@example.com joined the chat")
	expectLine(t, alice, "bob@example.com joined the chat")

	if ids := sortedConnected(reg); len(ids) != 2 {
		t.Fatalf("expected two connected users, got %v", ids)
	}

	if err := alice.WriteMessage(websocket.BinaryMessage, []byte{0x01}); err != nil {
		t.Fatalf("write binary: %v", err)
	}
	if err := alice.WriteMessage(websocket.TextMessage, []byte("hi")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	expectLine(t, alice, "alice: hi")
	expectLine(t, bob, "alice: hi")
	waitFor(t, "message persisted", func() bool { return sink.count() == 1 })

	bob.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	expectLine(t, alice, "bob@example.com left the chat")
	waitFor(t, "bob's session to end", func() bool { return reg.SessionCount(222) == 0 })
	if n := reg.SessionCount(111); n != 1 {
		t.Fatalf("alice should still hold one session, got %d", n)
	}
}

func TestSocketOtherChannelIsolated(t *testing.T) {
	reg := newRunningRegistry(t)
	srv := newSocketServer(t, NewHandler(reg, &recordingSink{}, &fakeGate{}))

	a := dial(t, srv, "uid=1&name=a&server_id=1&channel_id=10")
	expectLine(t, a, "a joined the chat")
	b := dial(t, srv, "uid=2&name=b&server_id=1&channel_id=11")
	expectLine(t, b, "b joined the chat")

	if err := b.WriteMessage(websocket.TextMessage, []byte("elsewhere")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectLine(t, b, "b: elsewhere")

	a.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := a.ReadMessage(); err == nil {
		t.Fatalf("channel 10 received %q from channel 11", data)
	}
}

func TestSocketPersistFailureStillBroadcasts(t *testing.T) {
	reg := newRunningRegistry(t)
	sink := &recordingSink{err: errors.New("store down")}
	srv := newSocketServer(t, NewHandler(reg, sink, &fakeGate{}))

	a := dial(t, srv, "uid=1&name=a&server_id=1&channel_id=10")
	expectLine(t, a, "a joined the chat")
	if err := a.WriteMessage(websocket.TextMessage, []byte("still delivered")); err != nil {
		t.Fatalf("write: %v", err)
	}
	expectLine(t, a, "a: still delivered")
}

func TestSocketRateLimit(t *testing.T) {
	reg := newRunningRegistry(t)
	sink := &recordingSink{}
	h := NewHandler(reg, sink, &fakeGate{})
	h.ChatRateMax = 2
	h.ChatRateWindow = time.Minute
	srv := newSocketServer(t, h)

	a := dial(t, srv, "uid=1&name=a&server_id=1&channel_id=10")
	expectLine(t, a, "a joined the chat")
	for _, line := range []string{"one", "two", "three"} {
		if err := a.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	expectLine(t, a, "a: one")
	expectLine(t, a, "a: two")
	a.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := a.ReadMessage(); err == nil {
		t.Fatalf("rate-limited frame was broadcast: %q", data)
	}
	waitFor(t, "two persisted messages", func() bool { return sink.count() == 2 })
}

func TestSocketRejectsBadRequests(t *testing.T) {
	reg := newRunningRegistry(t)
	srv := newSocketServer(t, NewHandler(reg, &recordingSink{}, &fakeGate{}))

	cases := []struct {
		query string
		code  int
	}{
		{"name=a&server_id=1&channel_id=1", http.StatusUnauthorized},
		{"uid=1&name=a&server_id=x&channel_id=1", http.StatusBadRequest},
		{"uid=1&name=a&server_id=1", http.StatusBadRequest},
		{"uid=1&name=a&server_id=0&channel_id=0", http.StatusBadRequest},
		{"uid=1&name=a&server_id=1&channel_id=-3", http.StatusBadRequest},
	}
	for _, tc := range cases {
		url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + tc.query
		_, resp, err := websocket.DefaultDialer.Dial(url, nil)
		if err == nil {
			t.Fatalf("%s: expected handshake failure", tc.query)
		}
		if resp == nil || resp.StatusCode != tc.code {
			t.Fatalf("%s: expected status %d, got %+v", tc.query, tc.code, resp)
		}
	}
}

func handshakeStatus(t *testing.T, srv *httptest.Server, query string) int {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?" + query
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		conn.Close()
		t.Fatalf("%s: expected handshake failure", query)
	}
	if resp == nil {
		t.Fatalf("%s: no response: %v", query, err)
	}
	return resp.StatusCode
}

func TestSocketRequiresChannelAccess(t *testing.T) {
	reg := newRunningRegistry(t)
	gate := &fakeGate{deny: map[int64]bool{7: true}}
	srv := newSocketServer(t, NewHandler(reg, &recordingSink{}, gate))

	if code := handshakeStatus(t, srv, "uid=7&name=eve&server_id=1&channel_id=10"); code != http.StatusForbidden {
		t.Fatalf("outsider: expected 403, got %d", code)
	}
	if n := reg.SessionCount(7); n != 0 {
		t.Fatalf("refused user should hold no session, got %d", n)
	}
	if ids := reg.ConnectedUsers(); len(ids) != 0 {
		t.Fatalf("refused user should not be connected, got %v", ids)
	}

	gate.err = errors.New("store down")
	if code := handshakeStatus(t, srv, "uid=1&name=a&server_id=1&channel_id=10"); code != http.StatusInternalServerError {
		t.Fatalf("failing gate: expected 500, got %d", code)
	}
}

func TestSocketAnswersPing(t *testing.T) {
	reg := newRunningRegistry(t)
	srv := newSocketServer(t, NewHandler(reg, &recordingSink{}, &fakeGate{}))

	a := dial(t, srv, "uid=1&name=a&server_id=1&channel_id=10")
	expectLine(t, a, "a joined the chat")

	pongs := make(chan string, 1)
	a.SetPongHandler(func(appData string) error {
		pongs <- appData
		return nil
	})
	if err := a.WriteControl(websocket.PingMessage, []byte("are-you-there"), time.Now().Add(time.Second)); err != nil {
		t.Fatalf("write ping: %v", err)
	}
	if err := a.WriteMessage(websocket.TextMessage, []byte("after ping")); err != nil {
		t.Fatalf("write text: %v", err)
	}
	// The pong is written before the text frame is read, so reading the
	// broadcast runs the pong handler first.
	expectLine(t, a, "a: after ping")

	select {
	case got := <-pongs:
		if got != "are-you-there" {
			t.Fatalf("pong payload = %q", got)
		}
	default:
		t.Fatalf("no pong received")
	}
}

func TestSocketPresenceFollowsConnection(t *testing.T) {
	reg := newRunningRegistry(t)
	srv := newSocketServer(t, NewHandler(reg, &recordingSink{}, &fakeGate{}))

	a := dial(t, srv, "uid=111&name=a&server_id=1&channel_id=10")
	expectLine(t, a, "a joined the chat")

	if ids := reg.ConnectedUsers(); len(ids) != 1 || ids[0] != 111 {
		t.Fatalf("expected 111 connected while socket is open, got %v", ids)
	}
	if n := reg.SessionCount(111); n != 1 {
		t.Fatalf("expected one session, got %d", n)
	}

	a.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	a.Close()
	waitFor(t, "111 to disconnect", func() bool {
		return len(reg.ConnectedUsers()) == 0 && reg.SessionCount(111) == 0
	})
}
