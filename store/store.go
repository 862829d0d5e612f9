// Package store persists servers, channels and messages.
//
// Two backends implement Store: SQLite for single-node deployments and
// tests, MongoDB for the document layout the web client was built against.
// Writes mirror document-store update operators ($set, $addToSet, $pull,
// $unset) so both backends behave the same under the mutation engine.
package store

import (
	"context"
	"errors"

	"fluxy/types"
)

// ErrNotFound is returned when a record looked up by id or code does not exist.
var ErrNotFound = errors.New("not found")

// Record kinds accepted by LastID.
const (
	KindServer  = "server"
	KindChannel = "channel"
	KindMessage = "message"
)

// ServerPatch lists the server fields to $set. Nil fields are left alone.
type ServerPatch struct {
	Name  *string
	Image *string
}

type Store interface {
	// ServerCreate assigns s.ID from a store-native counter and inserts s.
	ServerCreate(ctx context.Context, s *types.Server) error
	ServerGet(ctx context.Context, id int64) (*types.Server, error)
	ServersByMember(ctx context.Context, userID int64) ([]types.Server, error)
	ServerUpdate(ctx context.Context, id int64, patch ServerPatch) error
	ServerSetOwner(ctx context.Context, id, userID int64) error
	ServerDelete(ctx context.Context, id int64) error

	MemberAdd(ctx context.Context, serverID, userID int64) error
	// MemberRemove pulls the user from both the admin and member sets.
	MemberRemove(ctx context.Context, serverID, userID int64) error
	AdminAdd(ctx context.Context, serverID, userID int64) error
	AdminRemove(ctx context.Context, serverID, userID int64) error

	InviteSet(ctx context.Context, serverID int64, code string) error
	InviteExists(ctx context.Context, code string) (bool, error)
	ServerByInvite(ctx context.Context, code string) (*types.Server, error)
	InviteDelete(ctx context.Context, code string) error

	ChannelCreate(ctx context.Context, c *types.Channel) error
	ChannelGet(ctx context.Context, id int64) (*types.Channel, error)
	ChannelsByServer(ctx context.Context, serverID int64) ([]types.Channel, error)
	ChannelRename(ctx context.Context, id int64, name string) error
	ChannelDelete(ctx context.Context, id int64) error

	MessageCreate(ctx context.Context, m *types.Message) error
	MessageGet(ctx context.Context, id int64) (*types.Message, error)
	MessagesByChannel(ctx context.Context, channelID int64) ([]types.Message, error)
	MessageUpdate(ctx context.Context, id int64, content string) error
	MessageDelete(ctx context.Context, id int64) error
	MessagesDeleteByChannel(ctx context.Context, channelID int64) error

	// LastID returns the highest id assigned for kind, or 0 when empty.
	LastID(ctx context.Context, kind string) (int64, error)

	Close() error
}
