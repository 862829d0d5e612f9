package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"fluxy/db"
	"fluxy/types"
)

var sqliteSchema = []string{
	`CREATE TABLE IF NOT EXISTS servers (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		name TEXT NOT NULL,
		image TEXT NOT NULL DEFAULT '',
		owner_id INTEGER NOT NULL,
		invite TEXT UNIQUE
	)`,
	`CREATE TABLE IF NOT EXISTS server_members (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		UNIQUE (server_id, user_id),
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS server_admins (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		UNIQUE (server_id, user_id),
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		server_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		position INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		channel_id INTEGER NOT NULL,
		user_id INTEGER NOT NULL,
		content TEXT NOT NULL,
		time TEXT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_server_members_user ON server_members(user_id)`,
	`CREATE INDEX IF NOT EXISTS idx_channels_server ON channels(server_id)`,
	`CREATE INDEX IF NOT EXISTS idx_messages_channel ON messages(channel_id)`,
}

// SQLite is a Store backed by a single SQLite file. Channels and messages
// carry no foreign keys so cascades stay explicit, step-by-step deletes.
type SQLite struct {
	conn *sql.DB
}

// NewSQLite wraps an open connection and ensures the schema exists.
func NewSQLite(conn *sql.DB) (*SQLite, error) {
	if err := db.ApplySchema(conn, sqliteSchema); err != nil {
		return nil, err
	}
	return &SQLite{conn: conn}, nil
}

func (s *SQLite) Close() error {
	return s.conn.Close()
}

func (s *SQLite) ServerCreate(ctx context.Context, srv *types.Server) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin server insert: %w", err)
	}
	defer tx.Rollback()

	var invite sql.NullString
	if srv.Invite != "" {
		invite = sql.NullString{String: srv.Invite, Valid: true}
	}
	var id int64
	err = tx.QueryRowContext(ctx,
		`INSERT INTO servers (name, image, owner_id, invite) VALUES (?, ?, ?, ?) RETURNING id`,
		srv.Name, srv.Image, srv.OwnerID, invite,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	for _, uid := range srv.MemberIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO server_members (server_id, user_id) VALUES (?, ?)`, id, uid); err != nil {
			return fmt.Errorf("insert server member: %w", err)
		}
	}
	for _, uid := range srv.AdminIDs {
		if _, err := tx.ExecContext(ctx, `INSERT OR IGNORE INTO server_admins (server_id, user_id) VALUES (?, ?)`, id, uid); err != nil {
			return fmt.Errorf("insert server admin: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit server insert: %w", err)
	}
	srv.ID = id
	return nil
}

func (s *SQLite) ServerGet(ctx context.Context, id int64) (*types.Server, error) {
	var srv types.Server
	var invite sql.NullString
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, name, image, owner_id, invite FROM servers WHERE id = ?`, id,
	).Scan(&srv.ID, &srv.Name, &srv.Image, &srv.OwnerID, &invite)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load server: %w", err)
	}
	srv.Invite = invite.String

	srv.AdminIDs, err = s.userIDs(ctx, `SELECT user_id FROM server_admins WHERE server_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	srv.MemberIDs, err = s.userIDs(ctx, `SELECT user_id FROM server_members WHERE server_id = ? ORDER BY id`, id)
	if err != nil {
		return nil, err
	}
	return &srv, nil
}

func (s *SQLite) userIDs(ctx context.Context, query string, args ...interface{}) ([]int64, error) {
	rows, err := s.conn.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

func (s *SQLite) ServersByMember(ctx context.Context, userID int64) ([]types.Server, error) {
	// Collect ids first: the pool holds one connection, so rows must be closed
	// before the per-server lookups run.
	ids, err := s.userIDs(ctx,
		`SELECT s.id FROM servers s JOIN server_members m ON m.server_id = s.id WHERE m.user_id = ? ORDER BY s.id`,
		userID)
	if err != nil {
		return nil, err
	}

	servers := make([]types.Server, 0, len(ids))
	for _, id := range ids {
		srv, err := s.ServerGet(ctx, id)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		servers = append(servers, *srv)
	}
	return servers, nil
}

func (s *SQLite) ServerUpdate(ctx context.Context, id int64, patch ServerPatch) error {
	var sets []string
	var args []interface{}
	if patch.Name != nil {
		sets = append(sets, "name = ?")
		args = append(args, *patch.Name)
	}
	if patch.Image != nil {
		sets = append(sets, "image = ?")
		args = append(args, *patch.Image)
	}
	if len(sets) == 0 {
		return nil
	}
	args = append(args, id)
	if _, err := s.conn.ExecContext(ctx, `UPDATE servers SET `+strings.Join(sets, ", ")+` WHERE id = ?`, args...); err != nil {
		return fmt.Errorf("update server: %w", err)
	}
	return nil
}

func (s *SQLite) ServerSetOwner(ctx context.Context, id, userID int64) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE servers SET owner_id = ? WHERE id = ?`, userID, id); err != nil {
		return fmt.Errorf("update server owner: %w", err)
	}
	return nil
}

func (s *SQLite) ServerDelete(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM servers WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	return nil
}

func (s *SQLite) MemberAdd(ctx context.Context, serverID, userID int64) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO server_members (server_id, user_id) SELECT id, ? FROM servers WHERE id = ?`,
		userID, serverID)
	if err != nil {
		return fmt.Errorf("add member: %w", err)
	}
	return nil
}

func (s *SQLite) MemberRemove(ctx context.Context, serverID, userID int64) error {
	tx, err := s.conn.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin member removal: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM server_admins WHERE server_id = ? AND user_id = ?`, serverID, userID); err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM server_members WHERE server_id = ? AND user_id = ?`, serverID, userID); err != nil {
		return fmt.Errorf("remove member: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit member removal: %w", err)
	}
	return nil
}

func (s *SQLite) AdminAdd(ctx context.Context, serverID, userID int64) error {
	_, err := s.conn.ExecContext(ctx,
		`INSERT OR IGNORE INTO server_admins (server_id, user_id) SELECT id, ? FROM servers WHERE id = ?`,
		userID, serverID)
	if err != nil {
		return fmt.Errorf("add admin: %w", err)
	}
	return nil
}

func (s *SQLite) AdminRemove(ctx context.Context, serverID, userID int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM server_admins WHERE server_id = ? AND user_id = ?`, serverID, userID); err != nil {
		return fmt.Errorf("remove admin: %w", err)
	}
	return nil
}

func (s *SQLite) InviteSet(ctx context.Context, serverID int64, code string) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE servers SET invite = ? WHERE id = ?`, code, serverID); err != nil {
		return fmt.Errorf("set invite: %w", err)
	}
	return nil
}

func (s *SQLite) InviteExists(ctx context.Context, code string) (bool, error) {
	var one int
	err := s.conn.QueryRowContext(ctx, `SELECT 1 FROM servers WHERE invite = ? LIMIT 1`, code).Scan(&one)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, fmt.Errorf("lookup invite: %w", err)
	}
	return true, nil
}

func (s *SQLite) ServerByInvite(ctx context.Context, code string) (*types.Server, error) {
	var id int64
	err := s.conn.QueryRowContext(ctx, `SELECT id FROM servers WHERE invite = ?`, code).Scan(&id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("lookup invite: %w", err)
	}
	return s.ServerGet(ctx, id)
}

func (s *SQLite) InviteDelete(ctx context.Context, code string) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE servers SET invite = NULL WHERE invite = ?`, code); err != nil {
		return fmt.Errorf("delete invite: %w", err)
	}
	return nil
}

func (s *SQLite) ChannelCreate(ctx context.Context, c *types.Channel) error {
	err := s.conn.QueryRowContext(ctx,
		`INSERT INTO channels (server_id, name, position) VALUES (?, ?, ?) RETURNING id`,
		c.ServerID, c.Name, c.Position,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	return nil
}

func (s *SQLite) ChannelGet(ctx context.Context, id int64) (*types.Channel, error) {
	var c types.Channel
	err := s.conn.QueryRowContext(ctx,
		`SELECT id, server_id, name, position FROM channels WHERE id = ?`, id,
	).Scan(&c.ID, &c.ServerID, &c.Name, &c.Position)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}
	return &c, nil
}

func (s *SQLite) ChannelsByServer(ctx context.Context, serverID int64) ([]types.Channel, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, server_id, name, position FROM channels WHERE server_id = ? ORDER BY position, id`, serverID)
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer rows.Close()

	channels := []types.Channel{}
	for rows.Next() {
		var c types.Channel
		if err := rows.Scan(&c.ID, &c.ServerID, &c.Name, &c.Position); err != nil {
			return nil, fmt.Errorf("scan channel: %w", err)
		}
		channels = append(channels, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}

func (s *SQLite) ChannelRename(ctx context.Context, id int64, name string) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE channels SET name = ? WHERE id = ?`, name, id); err != nil {
		return fmt.Errorf("rename channel: %w", err)
	}
	return nil
}

func (s *SQLite) ChannelDelete(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM channels WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

func (s *SQLite) MessageCreate(ctx context.Context, m *types.Message) error {
	if m.Time.IsZero() {
		m.Time = time.Now().UTC()
	}
	err := s.conn.QueryRowContext(ctx,
		`INSERT INTO messages (channel_id, user_id, content, time) VALUES (?, ?, ?, ?) RETURNING id`,
		m.ChannelID, m.UserID, m.Content, m.Time.UTC().Format(time.RFC3339),
	).Scan(&m.ID)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func scanMessage(scan func(dest ...interface{}) error) (types.Message, error) {
	var m types.Message
	var ts string
	if err := scan(&m.ID, &m.ChannelID, &m.UserID, &m.Content, &ts); err != nil {
		return m, err
	}
	if parsed, err := time.Parse(time.RFC3339, ts); err == nil {
		m.Time = parsed
	}
	return m, nil
}

func (s *SQLite) MessageGet(ctx context.Context, id int64) (*types.Message, error) {
	row := s.conn.QueryRowContext(ctx,
		`SELECT id, channel_id, user_id, content, time FROM messages WHERE id = ?`, id)
	m, err := scanMessage(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}
	return &m, nil
}

func (s *SQLite) MessagesByChannel(ctx context.Context, channelID int64) ([]types.Message, error) {
	rows, err := s.conn.QueryContext(ctx,
		`SELECT id, channel_id, user_id, content, time FROM messages WHERE channel_id = ? ORDER BY id`, channelID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	messages := []types.Message{}
	for rows.Next() {
		m, err := scanMessage(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (s *SQLite) MessageUpdate(ctx context.Context, id int64, content string) error {
	if _, err := s.conn.ExecContext(ctx, `UPDATE messages SET content = ? WHERE id = ?`, content, id); err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	return nil
}

func (s *SQLite) MessageDelete(ctx context.Context, id int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (s *SQLite) MessagesDeleteByChannel(ctx context.Context, channelID int64) error {
	if _, err := s.conn.ExecContext(ctx, `DELETE FROM messages WHERE channel_id = ?`, channelID); err != nil {
		return fmt.Errorf("delete channel messages: %w", err)
	}
	return nil
}

var sqliteTables = map[string]string{
	KindServer:  "servers",
	KindChannel: "channels",
	KindMessage: "messages",
}

func (s *SQLite) LastID(ctx context.Context, kind string) (int64, error) {
	table, ok := sqliteTables[kind]
	if !ok {
		return 0, fmt.Errorf("unknown record kind %q", kind)
	}
	var id int64
	if err := s.conn.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM `+table).Scan(&id); err != nil {
		return 0, fmt.Errorf("last %s id: %w", kind, err)
	}
	return id, nil
}
