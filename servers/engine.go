// Package servers applies role-gated changes to servers, channels, members,
// messages and invite codes.
//
// A denied or dangling request returns a nil error and writes nothing.
// Callers that need to tell "denied" from "done" re-read state. The
// exceptions return one of the sentinel errors below. Storage failures are
// always returned.
package servers

import (
	"errors"
	"sync"
	"time"

	"fluxy/authz"
	"fluxy/store"
)

var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrInvalidRole      = errors.New("invalid role: use 'admin' or 'membre'")
	ErrNotMember        = errors.New("user is not a member of this server")
	ErrServerNotFound   = errors.New("server not found")
	ErrAlreadyMember    = errors.New("already a member of this server")
	ErrOwnerCannotLeave = errors.New("owner cannot leave the server; transfer ownership first")
	ErrCannotKickOwner  = errors.New("the owner cannot be kicked")
	ErrNothingToUpdate  = errors.New("nothing to update")
	ErrEmptyName        = errors.New("name is required")
	ErrInviteExhausted  = errors.New("could not generate a unique invite code")
)

const maxInviteAttempts = 100

type Engine struct {
	store store.Store
	authz *authz.Checker
	locks *serverLocks

	newInviteCode func() (string, error)
	clock         func() time.Time
}

func New(s store.Store) *Engine {
	return &Engine{
		store:         s,
		authz:         authz.New(s),
		locks:         newServerLocks(),
		newInviteCode: randomInviteCode,
	}
}

// serverLocks hands out one mutex per server id so a permission check and
// the write it guards are not interleaved with another change to the same
// server. Entries are refcounted and dropped when the last holder leaves.
type serverLocks struct {
	mu    sync.Mutex
	locks map[int64]*serverLock
}

type serverLock struct {
	mu   sync.Mutex
	refs int
}

func newServerLocks() *serverLocks {
	return &serverLocks{locks: make(map[int64]*serverLock)}
}

func (l *serverLocks) lock(serverID int64) (unlock func()) {
	l.mu.Lock()
	sl, ok := l.locks[serverID]
	if !ok {
		sl = &serverLock{}
		l.locks[serverID] = sl
	}
	sl.refs++
	l.mu.Unlock()

	sl.mu.Lock()
	return func() {
		sl.mu.Unlock()
		l.mu.Lock()
		if sl.refs <= 1 {
			delete(l.locks, serverID)
		} else {
			sl.refs--
		}
		l.mu.Unlock()
	}
}

func (l *serverLocks) held() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.locks)
}
