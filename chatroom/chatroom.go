// Package chatroom tracks live websocket sessions per (server, channel),
// fans chat lines out to them and keeps the connected-users view.
package chatroom

import (
	"log"
	"sync"

	"github.com/samber/lo"
)

// Handle is the delivery side of one live connection. Deliver must not
// block; it reports whether the content was accepted.
type Handle interface {
	Deliver(content string) bool
}

type session struct {
	handle  Handle
	user    int64
	server  int64
	channel int64
}

type Stats struct {
	Sessions          int
	ConnectedUsers    int
	Broadcasts        uint64
	Deliveries        uint64
	DroppedDeliveries uint64
}

const commandBuffer = 1024

// Registry is a single-goroutine actor. Every exported method hands a
// command to Run and the commands are applied in arrival order, so the
// state below is only ever touched by that goroutine.
type Registry struct {
	cmds     chan func()
	done     chan struct{}
	stopOnce sync.Once

	sessions  []*session
	connected map[int64]struct{}
	counts    map[int64]int
	stats     Stats
}

func NewRegistry() *Registry {
	return &Registry{
		cmds:      make(chan func(), commandBuffer),
		done:      make(chan struct{}),
		connected: make(map[int64]struct{}),
		counts:    make(map[int64]int),
	}
}

// Run processes commands until Stop is called.
func (r *Registry) Run() {
	for {
		select {
		case cmd := <-r.cmds:
			cmd()
		case <-r.done:
			return
		}
	}
}

func (r *Registry) Stop() {
	r.stopOnce.Do(func() { close(r.done) })
}

// send queues cmd and reports false once the registry is stopped.
func (r *Registry) send(cmd func()) bool {
	select {
	case r.cmds <- cmd:
		return true
	case <-r.done:
		return false
	}
}

// call queues cmd and waits until Run has applied it.
func (r *Registry) call(cmd func()) bool {
	applied := make(chan struct{})
	if !r.send(func() { cmd(); close(applied) }) {
		return false
	}
	select {
	case <-applied:
		return true
	case <-r.done:
		return false
	}
}

// Join registers h on (server, channel). server == 0 && channel == 0 only
// marks the user as connected. A subscription without a handle is ignored.
func (r *Registry) Join(h Handle, user, server, channel int64) {
	r.call(func() {
		if server == 0 && channel == 0 {
			r.connected[user] = struct{}{}
			return
		}
		if h == nil {
			log.Printf("Join: user %d on %d/%d has no handle, ignored", user, server, channel)
			return
		}
		r.connected[user] = struct{}{}
		r.sessions = append(r.sessions, &session{handle: h, user: user, server: server, channel: channel})
		r.counts[user]++
	})
}

// Leave drops the session held by h. A nil h is an explicit logout: the
// user leaves the connected set even if sockets are still open.
func (r *Registry) Leave(user int64, h Handle) {
	r.call(func() {
		if h == nil {
			delete(r.connected, user)
			delete(r.counts, user)
			return
		}

		removed := false
		for i, s := range r.sessions {
			if s.handle == h {
				r.sessions = append(r.sessions[:i], r.sessions[i+1:]...)
				removed = true
				break
			}
		}
		if !removed {
			return
		}
		if r.counts[user] <= 1 {
			delete(r.counts, user)
			delete(r.connected, user)
		} else {
			r.counts[user]--
		}
	})
}

func (r *Registry) UserConnected(user int64) {
	r.call(func() {
		r.connected[user] = struct{}{}
	})
}

func (r *Registry) ConnectedUsers() []int64 {
	var out []int64
	r.call(func() {
		out = lo.Keys(r.connected)
	})
	return out
}

func (r *Registry) SessionCount(user int64) int {
	var n int
	r.call(func() { n = r.counts[user] })
	return n
}

func (r *Registry) Stats() Stats {
	var st Stats
	r.call(func() {
		st = r.stats
		st.Sessions = len(r.sessions)
		st.ConnectedUsers = len(r.connected)
	})
	return st
}

// Broadcast queues content for every session on exactly (server, channel).
// It returns once queued; delivery failures are logged and dropped.
func (r *Registry) Broadcast(server, channel int64, content string) {
	r.send(func() {
		r.stats.Broadcasts++
		for _, s := range r.sessions {
			if s.server != server || s.channel != channel {
				continue
			}
			if s.handle.Deliver(content) {
				r.stats.Deliveries++
				continue
			}
			r.stats.DroppedDeliveries++
			log.Printf("Broadcast: delivery to user %d on %d/%d dropped", s.user, server, channel)
		}
	})
}
