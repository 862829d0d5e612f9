package servers

import (
	"context"
	"fmt"
	"strings"

	"fluxy/types"

	"github.com/samber/lo"
)

// AddMember puts user in the server's member set with no role check.
func (e *Engine) AddMember(ctx context.Context, serverID, user int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()
	if err := e.store.MemberAdd(ctx, serverID, user); err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (e *Engine) JoinServer(ctx context.Context, user, serverID int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()

	srv, err := e.loadServer(ctx, serverID)
	if err != nil {
		return err
	}
	if lo.Contains(srv.MemberIDs, user) {
		return ErrAlreadyMember
	}
	if err := e.store.MemberAdd(ctx, serverID, user); err != nil {
		return fmt.Errorf("join server: %w", err)
	}
	return nil
}

// PromoteAdmin is owner-only and requires target to already be a member.
func (e *Engine) PromoteAdmin(ctx context.Context, actor, serverID, target int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()
	return e.promote(ctx, actor, serverID, target)
}

func (e *Engine) promote(ctx context.Context, actor, serverID, target int64) error {
	owner, err := e.authz.IsOwner(ctx, serverID, actor)
	if err != nil || !owner {
		return err
	}
	member, err := e.authz.IsMember(ctx, serverID, target)
	if err != nil || !member {
		return err
	}
	if err := e.store.AdminAdd(ctx, serverID, target); err != nil {
		return fmt.Errorf("promote admin: %w", err)
	}
	return nil
}

func (e *Engine) DemoteAdmin(ctx context.Context, actor, serverID, target int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()
	return e.demote(ctx, actor, serverID, target)
}

func (e *Engine) demote(ctx context.Context, actor, serverID, target int64) error {
	owner, err := e.authz.IsOwner(ctx, serverID, actor)
	if err != nil || !owner {
		return err
	}
	if err := e.store.AdminRemove(ctx, serverID, target); err != nil {
		return fmt.Errorf("demote admin: %w", err)
	}
	return nil
}

// UpdateMemberRole maps "admin" to a promotion and "membre" (or "member")
// to a demotion. Unlike the plain helpers it reports why it refused.
func (e *Engine) UpdateMemberRole(ctx context.Context, actor, serverID, target int64, role string) error {
	role = strings.ToLower(strings.TrimSpace(role))
	if role != types.RoleAdmin && role != types.RoleMember && role != "member" {
		return ErrInvalidRole
	}

	unlock := e.locks.lock(serverID)
	defer unlock()

	owner, err := e.authz.IsOwner(ctx, serverID, actor)
	if err != nil {
		return err
	}
	if !owner {
		return ErrPermissionDenied
	}

	if role == types.RoleAdmin {
		member, err := e.authz.IsMember(ctx, serverID, target)
		if err != nil {
			return err
		}
		if !member {
			return ErrNotMember
		}
		return e.promote(ctx, actor, serverID, target)
	}
	return e.demote(ctx, actor, serverID, target)
}

// RemoveMember pulls target from the admin and member sets. It silently
// refuses when target is the owner, when a non-owner admin targets another
// admin, or when a plain member targets someone else.
func (e *Engine) RemoveMember(ctx context.Context, actor, serverID, target int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()
	return e.removeMember(ctx, actor, serverID, target)
}

func (e *Engine) removeMember(ctx context.Context, actor, serverID, target int64) error {
	targetOwner, err := e.authz.IsOwner(ctx, serverID, target)
	if err != nil || targetOwner {
		return err
	}

	// The owner may still sit in the admin set after a transfer; ownership
	// wins over the admin-vs-admin rule.
	actorOwner, err := e.authz.IsOwner(ctx, serverID, actor)
	if err != nil {
		return err
	}
	if !actorOwner && actor != target {
		actorAdmin, err := e.authz.IsAdmin(ctx, serverID, actor)
		if err != nil || !actorAdmin {
			return err
		}
		targetAdmin, err := e.authz.IsAdmin(ctx, serverID, target)
		if err != nil || targetAdmin {
			return err
		}
	}

	if err := e.store.MemberRemove(ctx, serverID, target); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	return nil
}

func (e *Engine) LeaveServer(ctx context.Context, user, serverID int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()

	owner, err := e.authz.IsOwner(ctx, serverID, user)
	if err != nil {
		return err
	}
	if owner {
		return ErrOwnerCannotLeave
	}
	return e.removeMember(ctx, user, serverID, user)
}

func (e *Engine) KickMember(ctx context.Context, actor, serverID, target int64) error {
	unlock := e.locks.lock(serverID)
	defer unlock()

	actorOwner, err := e.authz.IsOwner(ctx, serverID, actor)
	if err != nil {
		return err
	}
	actorAdmin, err := e.authz.IsAdmin(ctx, serverID, actor)
	if err != nil {
		return err
	}
	if !actorOwner && !actorAdmin {
		return ErrPermissionDenied
	}

	targetOwner, err := e.authz.IsOwner(ctx, serverID, target)
	if err != nil {
		return err
	}
	if targetOwner {
		return ErrCannotKickOwner
	}
	if !actorOwner {
		targetAdmin, err := e.authz.IsAdmin(ctx, serverID, target)
		if err != nil {
			return err
		}
		if targetAdmin {
			return ErrPermissionDenied
		}
	}
	return e.removeMember(ctx, actor, serverID, target)
}
