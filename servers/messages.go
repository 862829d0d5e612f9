package servers

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fluxy/store"
	"fluxy/types"
)

// CreateMessage stores content from author in channelID. The author must
// be a member of serverID and the channel must belong to it; otherwise
// nothing is written and nil, nil is returned.
func (e *Engine) CreateMessage(ctx context.Context, serverID, channelID, author int64, content string) (*types.Message, error) {
	unlock := e.locks.lock(serverID)
	defer unlock()

	member, err := e.authz.IsMember(ctx, serverID, author)
	if err != nil || !member {
		return nil, err
	}
	inServer, err := e.authz.IsChannelOfServer(ctx, serverID, channelID)
	if err != nil || !inServer {
		return nil, err
	}

	msg := &types.Message{
		ChannelID: channelID,
		UserID:    author,
		Content:   content,
		Time:      e.now().UTC(),
	}
	if err := e.store.MessageCreate(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}
	return msg, nil
}

func (e *Engine) EditMessage(ctx context.Context, actor, messageID int64, content string) error {
	msg, unlock, err := e.lockedMessage(ctx, messageID)
	if err != nil || msg == nil {
		return err
	}
	defer unlock()

	if msg.UserID != actor {
		return nil
	}
	if err := e.store.MessageUpdate(ctx, messageID, content); err != nil {
		return fmt.Errorf("edit message: %w", err)
	}
	return nil
}

// DeleteMessage lets the author, any admin or the owner of the server
// holding the message remove it.
func (e *Engine) DeleteMessage(ctx context.Context, actor, messageID int64) error {
	msg, unlock, err := e.lockedMessage(ctx, messageID)
	if err != nil || msg == nil {
		return err
	}
	defer unlock()

	if msg.UserID != actor {
		ch, err := e.channel(ctx, msg.ChannelID)
		if err != nil || ch == nil {
			return err
		}
		allowed, err := e.authz.IsOwnerOrAdmin(ctx, ch.ServerID, actor)
		if err != nil || !allowed {
			return err
		}
	}
	if err := e.store.MessageDelete(ctx, messageID); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

// lockedMessage takes the lock of the server holding messageID and loads
// the message again under it. A nil message means there is nothing to do;
// the lock is already released in that case.
func (e *Engine) lockedMessage(ctx context.Context, messageID int64) (*types.Message, func(), error) {
	msg, err := e.message(ctx, messageID)
	if err != nil || msg == nil {
		return nil, nil, err
	}
	ch, err := e.channel(ctx, msg.ChannelID)
	if err != nil {
		return nil, nil, err
	}
	if ch == nil {
		// Orphaned by an earlier partial purge; no server to serialize on.
		return msg, func() {}, nil
	}

	unlock := e.locks.lock(ch.ServerID)
	msg, err = e.message(ctx, messageID)
	if err != nil || msg == nil {
		unlock()
		return nil, nil, err
	}
	return msg, unlock, nil
}

func (e *Engine) message(ctx context.Context, messageID int64) (*types.Message, error) {
	msg, err := e.store.MessageGet(ctx, messageID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load message: %w", err)
	}
	return msg, nil
}

func (e *Engine) now() time.Time {
	if e.clock != nil {
		return e.clock()
	}
	return time.Now()
}
