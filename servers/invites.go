package servers

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"

	"fluxy/store"
)

const (
	inviteCodeLength = 9
	inviteAlphabet   = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
)

func randomInviteCode() (string, error) {
	buf := make([]byte, inviteCodeLength)
	max := big.NewInt(int64(len(inviteAlphabet)))
	for i := range buf {
		n, err := rand.Int(rand.Reader, max)
		if err != nil {
			return "", err
		}
		buf[i] = inviteAlphabet[n.Int64()]
	}
	return string(buf), nil
}

// CreateInvite gives the server a fresh code, replacing any previous one.
// An empty code with a nil error means the actor may not create invites.
func (e *Engine) CreateInvite(ctx context.Context, actor, serverID int64) (string, error) {
	unlock := e.locks.lock(serverID)
	defer unlock()

	allowed, err := e.authz.IsOwnerOrAdmin(ctx, serverID, actor)
	if err != nil || !allowed {
		return "", err
	}

	for attempt := 0; attempt < maxInviteAttempts; attempt++ {
		code, err := e.newInviteCode()
		if err != nil {
			return "", fmt.Errorf("generate invite: %w", err)
		}
		taken, err := e.store.InviteExists(ctx, code)
		if err != nil {
			return "", fmt.Errorf("check invite: %w", err)
		}
		if taken {
			continue
		}
		if err := e.store.InviteSet(ctx, serverID, code); err != nil {
			return "", fmt.Errorf("store invite: %w", err)
		}
		return code, nil
	}
	return "", ErrInviteExhausted
}

// RedeemInvite adds user to the server holding code. Unknown codes are
// ignored and the code stays valid after use.
func (e *Engine) RedeemInvite(ctx context.Context, user int64, code string) error {
	srv, err := e.store.ServerByInvite(ctx, code)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil
		}
		return fmt.Errorf("lookup invite: %w", err)
	}
	return e.AddMember(ctx, srv.ID, user)
}

func (e *Engine) DeleteInvite(ctx context.Context, code string) error {
	if err := e.store.InviteDelete(ctx, code); err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}
