package servers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fluxy/store"
	"fluxy/types"
)

// CreateChannel appends a channel after the server's existing ones.
// Returns nil, nil when actor is neither owner nor admin.
func (e *Engine) CreateChannel(ctx context.Context, actor, serverID int64, name string) (*types.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	unlock := e.locks.lock(serverID)
	defer unlock()

	allowed, err := e.authz.IsOwnerOrAdmin(ctx, serverID, actor)
	if err != nil || !allowed {
		return nil, err
	}

	existing, err := e.store.ChannelsByServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("count channels: %w", err)
	}
	ch := &types.Channel{
		ServerID: serverID,
		Name:     name,
		Position: int64(len(existing) + 1),
	}
	if err := e.store.ChannelCreate(ctx, ch); err != nil {
		return nil, fmt.Errorf("create channel: %w", err)
	}
	return ch, nil
}

func (e *Engine) RenameChannel(ctx context.Context, actor, channelID int64, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	ch, err := e.channel(ctx, channelID)
	if err != nil || ch == nil {
		return err
	}
	unlock := e.locks.lock(ch.ServerID)
	defer unlock()

	allowed, err := e.authz.IsOwnerOrAdmin(ctx, ch.ServerID, actor)
	if err != nil || !allowed {
		return err
	}
	if err := e.store.ChannelRename(ctx, channelID, name); err != nil {
		return fmt.Errorf("rename channel: %w", err)
	}
	return nil
}

// DeleteChannel removes the channel's messages and then the channel.
func (e *Engine) DeleteChannel(ctx context.Context, actor, channelID int64) error {
	ch, err := e.channel(ctx, channelID)
	if err != nil || ch == nil {
		return err
	}
	unlock := e.locks.lock(ch.ServerID)
	defer unlock()

	allowed, err := e.authz.IsOwnerOrAdmin(ctx, ch.ServerID, actor)
	if err != nil || !allowed {
		return err
	}
	return e.purgeChannel(ctx, channelID)
}

// purgeChannel expects the caller to hold the server lock.
func (e *Engine) purgeChannel(ctx context.Context, channelID int64) error {
	if err := e.store.MessagesDeleteByChannel(ctx, channelID); err != nil {
		return fmt.Errorf("delete messages of channel %d: %w", channelID, err)
	}
	if err := e.store.ChannelDelete(ctx, channelID); err != nil {
		return fmt.Errorf("delete channel %d: %w", channelID, err)
	}
	return nil
}

// channel returns nil, nil for an unknown channel.
func (e *Engine) channel(ctx context.Context, channelID int64) (*types.Channel, error) {
	ch, err := e.store.ChannelGet(ctx, channelID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}
	return ch, nil
}
