package servers

import (
	"context"
	"fmt"
	"sort"

	"fluxy/types"

	"github.com/samber/lo"
)

func (e *Engine) UserServers(ctx context.Context, user int64) ([]types.ServerSummary, error) {
	list, err := e.store.ServersByMember(ctx, user)
	if err != nil {
		return nil, fmt.Errorf("user servers: %w", err)
	}
	out := make([]types.ServerSummary, 0, len(list))
	for _, srv := range list {
		image := srv.Image
		if image == "" {
			image = types.DefaultServerImage
		}
		out = append(out, types.ServerSummary{
			ID:      srv.ID,
			Name:    srv.Name,
			Image:   image,
			IsOwner: srv.OwnerID == user,
			IsAdmin: lo.Contains(srv.AdminIDs, user),
		})
	}
	return out, nil
}

func (e *Engine) HasServers(ctx context.Context, user int64) (bool, error) {
	list, err := e.store.ServersByMember(ctx, user)
	if err != nil {
		return false, fmt.Errorf("has servers: %w", err)
	}
	return len(list) > 0, nil
}

func (e *Engine) ServerChannels(ctx context.Context, serverID int64) ([]types.Channel, error) {
	channels, err := e.store.ChannelsByServer(ctx, serverID)
	if err != nil {
		return nil, fmt.Errorf("server channels: %w", err)
	}
	sort.SliceStable(channels, func(i, j int) bool {
		return channels[i].Position < channels[j].Position
	})
	return channels, nil
}

func (e *Engine) ChannelMessages(ctx context.Context, channelID int64) ([]types.Message, error) {
	msgs, err := e.store.MessagesByChannel(ctx, channelID)
	if err != nil {
		return nil, fmt.Errorf("channel messages: %w", err)
	}
	sort.SliceStable(msgs, func(i, j int) bool { return msgs[i].ID < msgs[j].ID })
	return msgs, nil
}

// ServerMembers lists the owner, then admins, then plain members, each user
// once under the first role that applies. Status comes from online.
func (e *Engine) ServerMembers(ctx context.Context, serverID int64, online []int64) ([]types.Member, error) {
	srv, err := e.loadServer(ctx, serverID)
	if err != nil {
		return nil, err
	}

	connected := make(map[int64]struct{}, len(online))
	for _, id := range online {
		connected[id] = struct{}{}
	}
	seen := make(map[int64]struct{})
	var out []types.Member
	add := func(id int64, role string) {
		if _, dup := seen[id]; dup {
			return
		}
		seen[id] = struct{}{}
		status := types.StatusOffline
		if _, ok := connected[id]; ok {
			status = types.StatusOnline
		}
		out = append(out, types.Member{UserID: id, Role: role, Status: status})
	}

	add(srv.OwnerID, types.RoleOwner)
	for _, id := range srv.AdminIDs {
		add(id, types.RoleAdmin)
	}
	for _, id := range srv.MemberIDs {
		add(id, types.RoleMember)
	}
	return out, nil
}

// CanRead reports whether user may list serverID's channels and members.
func (e *Engine) CanRead(ctx context.Context, user, serverID int64) (bool, error) {
	return e.authz.IsMember(ctx, serverID, user)
}

// CanReadChannel resolves channelID to its server and applies CanRead.
// An unknown channel is not readable.
func (e *Engine) CanReadChannel(ctx context.Context, user, channelID int64) (bool, error) {
	ch, err := e.channel(ctx, channelID)
	if err != nil || ch == nil {
		return false, err
	}
	return e.authz.IsMember(ctx, ch.ServerID, user)
}

// CanJoinChannel reports whether user may subscribe to the live stream of
// channelID: the channel must belong to serverID and user must be a member.
func (e *Engine) CanJoinChannel(ctx context.Context, user, serverID, channelID int64) (bool, error) {
	member, err := e.authz.IsMember(ctx, serverID, user)
	if err != nil || !member {
		return false, err
	}
	return e.authz.IsChannelOfServer(ctx, serverID, channelID)
}
