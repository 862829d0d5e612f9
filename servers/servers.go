package servers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"fluxy/store"
	"fluxy/types"
)

// CreateServer makes owner the sole member of a new server.
func (e *Engine) CreateServer(ctx context.Context, owner int64, name, image string) (*types.Server, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	srv := &types.Server{
		Name:      name,
		OwnerID:   owner,
		AdminIDs:  []int64{},
		MemberIDs: []int64{owner},
	}
	if strings.TrimSpace(image) != "" {
		srv.Image = image
	}
	if err := e.store.ServerCreate(ctx, srv); err != nil {
		return nil, fmt.Errorf("create server: %w", err)
	}
	return srv, nil
}

// UpdateServer sets name and/or image. A blank name is ignored; an empty
// image clears the current one.
func (e *Engine) UpdateServer(ctx context.Context, actor, serverID int64, name, image *string) error {
	if name == nil && image == nil {
		return ErrNothingToUpdate
	}
	unlock := e.locks.lock(serverID)
	defer unlock()

	allowed, err := e.authz.IsOwnerOrAdmin(ctx, serverID, actor)
	if err != nil || !allowed {
		return err
	}

	var patch store.ServerPatch
	if name != nil && strings.TrimSpace(*name) != "" {
		patch.Name = name
	}
	patch.Image = image
	if patch.Name == nil && patch.Image == nil {
		return nil
	}
	if err := e.store.ServerUpdate(ctx, serverID, patch); err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	return nil
}

func (e *Engine) RenameServer(ctx context.Context, actor, serverID int64, name string) error {
	return e.UpdateServer(ctx, actor, serverID, &name, nil)
}

// DeleteServer removes every channel (messages first) and then the server.
// Each step is idempotent, so a failed cascade can simply be run again.
func (e *Engine) DeleteServer(ctx context.Context, actor, serverID int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()

	owner, err := e.authz.IsOwner(ctx, serverID, actor)
	if err != nil || !owner {
		return err
	}

	channels, err := e.store.ChannelsByServer(ctx, serverID)
	if err != nil {
		return fmt.Errorf("list channels for delete: %w", err)
	}
	for _, ch := range channels {
		if err := e.purgeChannel(ctx, ch.ID); err != nil {
			return err
		}
	}
	if err := e.store.ServerDelete(ctx, serverID); err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	return nil
}

// TransferOwnership hands the server to newOwner. The admin set is left
// as it was; newOwner is added to the members if missing.
func (e *Engine) TransferOwnership(ctx context.Context, actor, serverID, newOwner int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()

	owner, err := e.authz.IsOwner(ctx, serverID, actor)
	if err != nil || !owner {
		return err
	}
	if err := e.store.ServerSetOwner(ctx, serverID, newOwner); err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	if err := e.store.MemberAdd(ctx, serverID, newOwner); err != nil {
		return fmt.Errorf("transfer ownership: %w", err)
	}
	return nil
}

func (e *Engine) loadServer(ctx context.Context, serverID int64) (*types.Server, error) {
	srv, err := e.store.ServerGet(ctx, serverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrServerNotFound
		}
		return nil, fmt.Errorf("load server: %w", err)
	}
	return srv, nil
}
