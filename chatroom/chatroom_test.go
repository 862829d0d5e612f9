package chatroom

import (
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

type fakeHandle struct {
	mu       sync.Mutex
	got      []string
	accept   bool
	blocking chan struct{}
}

func newFakeHandle() *fakeHandle { return &fakeHandle{accept: true} }

func (f *fakeHandle) Deliver(content string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.accept {
		return false
	}
	f.got = append(f.got, content)
	return true
}

func (f *fakeHandle) lines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.got...)
}

func newRunningRegistry(t *testing.T) *Registry {
	t.Helper()
	r := NewRegistry()
	go r.Run()
	t.Cleanup(r.Stop)
	return r
}

func sortedConnected(r *Registry) []int64 {
	ids := r.ConnectedUsers()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func TestJoinLeaveRestoresCount(t *testing.T) {
	r := newRunningRegistry(t)
	a, b := newFakeHandle(), newFakeHandle()

	r.Join(a, 111, 1, 10)
	r.Join(b, 111, 1, 11)
	if n := r.SessionCount(111); n != 2 {
		t.Fatalf("expected 2 sessions, got %d", n)
	}

	r.Leave(111, b)
	if n := r.SessionCount(111); n != 1 {
		t.Fatalf("expected 1 session after leave, got %d", n)
	}
	if diff := cmp.Diff([]int64{111}, sortedConnected(r)); diff != "" {
		t.Fatalf("user should stay connected (-want +got):\n%s", diff)
	}

	r.Leave(111, a)
	if n := r.SessionCount(111); n != 0 {
		t.Fatalf("expected 0 sessions, got %d", n)
	}
	if ids := r.ConnectedUsers(); len(ids) != 0 {
		t.Fatalf("expected nobody connected, got %v", ids)
	}
}

func TestLeaveWithUnknownHandleKeepsCount(t *testing.T) {
	r := newRunningRegistry(t)
	a := newFakeHandle()
	r.Join(a, 111, 1, 10)

	r.Leave(111, newFakeHandle())
	if n := r.SessionCount(111); n != 1 {
		t.Fatalf("unknown handle should not decrement, got %d", n)
	}
}

func TestLoginOnlyJoin(t *testing.T) {
	r := newRunningRegistry(t)
	r.Join(nil, 111, 0, 0)
	if n := r.SessionCount(111); n != 0 {
		t.Fatalf("login-only join must not create a session, got %d", n)
	}
	if diff := cmp.Diff([]int64{111}, sortedConnected(r)); diff != "" {
		t.Fatalf("connected (-want +got):\n%s", diff)
	}
}

func TestJoinWithoutHandleIsIgnored(t *testing.T) {
	r := newRunningRegistry(t)
	a := newFakeHandle()
	r.Join(a, 111, 1, 10)
	r.Join(nil, 222, 1, 10)

	r.Broadcast(1, 10, "hi")
	st := r.Stats()
	if st.Sessions != 1 || st.Deliveries != 1 {
		t.Fatalf("nil handle should not be stored: %+v", st)
	}
	if n := r.SessionCount(222); n != 0 {
		t.Fatalf("expected no session for 222, got %d", n)
	}
	if diff := cmp.Diff([]int64{111}, sortedConnected(r)); diff != "" {
		t.Fatalf("connected (-want +got):\n%s", diff)
	}
}

func TestUserConnectedIdempotent(t *testing.T) {
	r := newRunningRegistry(t)
	r.UserConnected(200)
	once := sortedConnected(r)
	r.UserConnected(200)
	twice := sortedConnected(r)
	if diff := cmp.Diff(once, twice); diff != "" {
		t.Fatalf("second mark changed connected set (-once +twice):\n%s", diff)
	}
	if n := r.SessionCount(200); n != 0 {
		t.Fatalf("UserConnected must not touch counts, got %d", n)
	}
}

func TestExplicitLogoutDropsUser(t *testing.T) {
	r := newRunningRegistry(t)
	a := newFakeHandle()
	r.Join(a, 111, 1, 10)
	r.Join(newFakeHandle(), 111, 1, 10)

	r.Leave(111, nil)
	if ids := r.ConnectedUsers(); len(ids) != 0 {
		t.Fatalf("logout should remove user, got %v", ids)
	}
	if n := r.SessionCount(111); n != 0 {
		t.Fatalf("logout should drop counter, got %d", n)
	}

	// the open socket still receives broadcasts until its own Leave
	r.Broadcast(1, 10, "still here")
	r.Stats()
	if diff := cmp.Diff([]string{"still here"}, a.lines()); diff != "" {
		t.Fatalf("lines (-want +got):\n%s", diff)
	}
}

func TestBroadcastExactMatch(t *testing.T) {
	r := newRunningRegistry(t)
	same, otherChannel, otherServer := newFakeHandle(), newFakeHandle(), newFakeHandle()
	r.Join(same, 1, 1, 10)
	r.Join(otherChannel, 2, 1, 11)
	r.Join(otherServer, 3, 2, 10)

	r.Broadcast(1, 10, "hi")
	st := r.Stats()

	if diff := cmp.Diff([]string{"hi"}, same.lines()); diff != "" {
		t.Fatalf("subscriber lines (-want +got):\n%s", diff)
	}
	if len(otherChannel.lines()) != 0 || len(otherServer.lines()) != 0 {
		t.Fatalf("broadcast leaked to other subscriptions")
	}
	if st.Broadcasts != 1 || st.Deliveries != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}
}

func TestBroadcastSurvivesFailedDelivery(t *testing.T) {
	r := newRunningRegistry(t)
	bad, good := newFakeHandle(), newFakeHandle()
	bad.accept = false
	r.Join(bad, 1, 1, 10)
	r.Join(good, 2, 1, 10)

	r.Broadcast(1, 10, "hello")
	st := r.Stats()
	if diff := cmp.Diff([]string{"hello"}, good.lines()); diff != "" {
		t.Fatalf("good handle lines (-want +got):\n%s", diff)
	}
	if st.DroppedDeliveries != 1 || st.Sessions != 2 {
		t.Fatalf("failed handle should be counted, not removed: %+v", st)
	}
}

func TestBroadcastToFullQueueDoesNotBlock(t *testing.T) {
	r := newRunningRegistry(t)
	c := &Client{ID: "full", SendQueue: make(chan string, 1), Done: make(chan struct{})}
	r.Join(c, 1, 1, 10)

	done := make(chan struct{})
	go func() {
		for i := 0; i < 5; i++ {
			r.Broadcast(1, 10, "x")
		}
		r.Stats()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("broadcast blocked on a full send queue")
	}
	if st := r.Stats(); st.Deliveries != 1 || st.DroppedDeliveries != 4 {
		t.Fatalf("unexpected stats %+v", st)
	}

	c.Close()
	if c.Deliver("after close") {
		t.Fatalf("closed client should refuse delivery")
	}
}

func TestConcurrentJoinLeave(t *testing.T) {
	r := newRunningRegistry(t)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h := newFakeHandle()
			r.Join(h, 111, 1, 10)
			r.Leave(111, h)
		}()
	}
	wg.Wait()
	if n := r.SessionCount(111); n != 0 {
		t.Fatalf("expected count back to 0, got %d", n)
	}
	if ids := r.ConnectedUsers(); len(ids) != 0 {
		t.Fatalf("expected nobody connected, got %v", ids)
	}
}

func TestStoppedRegistryDoesNotHang(t *testing.T) {
	r := NewRegistry()
	go r.Run()
	r.Stop()

	done := make(chan struct{})
	go func() {
		r.Join(newFakeHandle(), 1, 1, 1)
		r.Broadcast(1, 1, "x")
		_ = r.ConnectedUsers()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("calls on a stopped registry blocked")
	}
}

func TestChatLimiter(t *testing.T) {
	l := newChatLimiter(3, 10*time.Second)
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		if !l.allow(start.Add(time.Duration(i) * time.Second)) {
			t.Fatalf("frame %d should be allowed", i)
		}
	}
	if l.allow(start.Add(3 * time.Second)) {
		t.Fatalf("fourth frame inside the window should be dropped")
	}
	if !l.allow(start.Add(11 * time.Second)) {
		t.Fatalf("frame after the window slides should be allowed")
	}
}
