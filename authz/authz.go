// Package authz answers role questions about a server. Every call reads the
// store afresh; a missing server or channel yields false, not an error.
package authz

import (
	"context"
	"errors"
	"fmt"

	"fluxy/store"
	"fluxy/types"

	"github.com/samber/lo"
)

// Reader is the slice of the store the predicates need.
type Reader interface {
	ServerGet(ctx context.Context, id int64) (*types.Server, error)
	ChannelsByServer(ctx context.Context, serverID int64) ([]types.Channel, error)
}

type Checker struct {
	store Reader
}

func New(r Reader) *Checker {
	return &Checker{store: r}
}

func (c *Checker) loadServer(ctx context.Context, serverID int64) (*types.Server, error) {
	if serverID <= 0 {
		return nil, nil
	}
	srv, err := c.store.ServerGet(ctx, serverID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("authz: %w", err)
	}
	return srv, nil
}

func (c *Checker) IsOwner(ctx context.Context, serverID, userID int64) (bool, error) {
	srv, err := c.loadServer(ctx, serverID)
	if err != nil || srv == nil {
		return false, err
	}
	return srv.OwnerID == userID, nil
}

func (c *Checker) IsAdmin(ctx context.Context, serverID, userID int64) (bool, error) {
	srv, err := c.loadServer(ctx, serverID)
	if err != nil || srv == nil {
		return false, err
	}
	return lo.Contains(srv.AdminIDs, userID), nil
}

func (c *Checker) IsMember(ctx context.Context, serverID, userID int64) (bool, error) {
	srv, err := c.loadServer(ctx, serverID)
	if err != nil || srv == nil {
		return false, err
	}
	return lo.Contains(srv.MemberIDs, userID), nil
}

// IsOwnerOrAdmin evaluates IsOwner then IsAdmin, each against current state.
func (c *Checker) IsOwnerOrAdmin(ctx context.Context, serverID, userID int64) (bool, error) {
	owner, err := c.IsOwner(ctx, serverID, userID)
	if err != nil || owner {
		return owner, err
	}
	return c.IsAdmin(ctx, serverID, userID)
}

func (c *Checker) IsChannelOfServer(ctx context.Context, serverID, channelID int64) (bool, error) {
	channels, err := c.store.ChannelsByServer(ctx, serverID)
	if err != nil {
		return false, fmt.Errorf("authz: %w", err)
	}
	for _, ch := range channels {
		if ch.ID == channelID {
			return true, nil
		}
	}
	return false, nil
}
