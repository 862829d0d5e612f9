package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"fluxy/types"

	b "go.mongodb.org/mongo-driver/bson"
	mdb "go.mongodb.org/mongo-driver/mongo"
	mdbopts "go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collServer   = "server"
	collChannel  = "channel"
	collMessage  = "message"
	collCounters = "counters"
)

type serverDoc struct {
	ID        int64   `bson:"id"`
	Name      string  `bson:"name"`
	Image     string  `bson:"image,omitempty"`
	OwnerID   int64   `bson:"owner_id"`
	AdminIDs  []int64 `bson:"admin_id"`
	MemberIDs []int64 `bson:"member_id"`
	Lien      string  `bson:"lien,omitempty"`
}

func (d *serverDoc) toServer() *types.Server {
	srv := &types.Server{
		ID:        d.ID,
		Name:      d.Name,
		Image:     d.Image,
		OwnerID:   d.OwnerID,
		AdminIDs:  d.AdminIDs,
		MemberIDs: d.MemberIDs,
		Invite:    d.Lien,
	}
	if srv.AdminIDs == nil {
		srv.AdminIDs = []int64{}
	}
	if srv.MemberIDs == nil {
		srv.MemberIDs = []int64{}
	}
	return srv
}

type channelDoc struct {
	ID       int64  `bson:"id"`
	ServerID int64  `bson:"server_id"`
	Position int64  `bson:"position"`
	Name     string `bson:"name"`
}

type messageDoc struct {
	ID        int64  `bson:"id"`
	ChannelID int64  `bson:"channel_id"`
	Message   string `bson:"message"`
	User      int64  `bson:"user"`
	Time      string `bson:"time"`
}

func (d *messageDoc) toMessage() types.Message {
	m := types.Message{ID: d.ID, ChannelID: d.ChannelID, UserID: d.User, Content: d.Message}
	if parsed, err := time.Parse(time.RFC3339, d.Time); err == nil {
		m.Time = parsed
	}
	return m
}

// Mongo is a Store backed by the "server", "channel" and "message"
// collections. Ids come from a "counters" collection incremented atomically.
type Mongo struct {
	db *mdb.Database
}

// NewMongo creates indexes and seeds id counters from existing documents.
func NewMongo(ctx context.Context, database *mdb.Database) (*Mongo, error) {
	m := &Mongo{db: database}
	if err := m.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	for _, kind := range []string{KindServer, KindChannel, KindMessage} {
		last, err := m.LastID(ctx, kind)
		if err != nil {
			return nil, err
		}
		_, err = m.db.Collection(collCounters).UpdateOne(ctx,
			b.M{"_id": kind},
			b.M{"$max": b.M{"seq": last}},
			mdbopts.Update().SetUpsert(true))
		if err != nil {
			return nil, fmt.Errorf("seed %s counter: %w", kind, err)
		}
	}
	return m, nil
}

func (m *Mongo) ensureIndexes(ctx context.Context) error {
	indexes := []struct {
		coll  string
		model mdb.IndexModel
	}{
		{collServer, mdb.IndexModel{Keys: b.D{{Key: "id", Value: 1}}, Options: mdbopts.Index().SetUnique(true)}},
		{collServer, mdb.IndexModel{Keys: b.D{{Key: "member_id", Value: 1}}}},
		{collServer, mdb.IndexModel{Keys: b.D{{Key: "lien", Value: 1}}, Options: mdbopts.Index().SetUnique(true).SetSparse(true)}},
		{collChannel, mdb.IndexModel{Keys: b.D{{Key: "id", Value: 1}}, Options: mdbopts.Index().SetUnique(true)}},
		{collChannel, mdb.IndexModel{Keys: b.D{{Key: "server_id", Value: 1}}}},
		{collMessage, mdb.IndexModel{Keys: b.D{{Key: "id", Value: 1}}, Options: mdbopts.Index().SetUnique(true)}},
		{collMessage, mdb.IndexModel{Keys: b.D{{Key: "channel_id", Value: 1}}}},
	}
	for _, idx := range indexes {
		if _, err := m.db.Collection(idx.coll).Indexes().CreateOne(ctx, idx.model); err != nil {
			return fmt.Errorf("create %s index: %w", idx.coll, err)
		}
	}
	return nil
}

// Close is a no-op; the client owner disconnects.
func (m *Mongo) Close() error {
	return nil
}

func (m *Mongo) nextID(ctx context.Context, kind string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.db.Collection(collCounters).FindOneAndUpdate(ctx,
		b.M{"_id": kind},
		b.M{"$inc": b.M{"seq": int64(1)}},
		mdbopts.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(mdbopts.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", kind, err)
	}
	return counter.Seq, nil
}

func (m *Mongo) updateOne(ctx context.Context, coll string, filter, update b.M) error {
	if _, err := m.db.Collection(coll).UpdateOne(ctx, filter, update); err != nil {
		return fmt.Errorf("update %s: %w", coll, err)
	}
	return nil
}

func (m *Mongo) ServerCreate(ctx context.Context, srv *types.Server) error {
	id, err := m.nextID(ctx, KindServer)
	if err != nil {
		return err
	}
	doc := serverDoc{
		ID:        id,
		Name:      srv.Name,
		Image:     srv.Image,
		OwnerID:   srv.OwnerID,
		AdminIDs:  srv.AdminIDs,
		MemberIDs: srv.MemberIDs,
		Lien:      srv.Invite,
	}
	if doc.AdminIDs == nil {
		doc.AdminIDs = []int64{}
	}
	if doc.MemberIDs == nil {
		doc.MemberIDs = []int64{}
	}
	if _, err := m.db.Collection(collServer).InsertOne(ctx, &doc); err != nil {
		return fmt.Errorf("insert server: %w", err)
	}
	srv.ID = id
	return nil
}

func (m *Mongo) findServer(ctx context.Context, filter b.M) (*types.Server, error) {
	var doc serverDoc
	if err := m.db.Collection(collServer).FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mdb.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load server: %w", err)
	}
	return doc.toServer(), nil
}

func (m *Mongo) ServerGet(ctx context.Context, id int64) (*types.Server, error) {
	return m.findServer(ctx, b.M{"id": id})
}

func (m *Mongo) ServersByMember(ctx context.Context, userID int64) ([]types.Server, error) {
	cur, err := m.db.Collection(collServer).Find(ctx, b.M{"member_id": userID},
		mdbopts.Find().SetSort(b.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query servers: %w", err)
	}
	defer cur.Close(ctx)

	servers := []types.Server{}
	for cur.Next(ctx) {
		var doc serverDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode server: %w", err)
		}
		servers = append(servers, *doc.toServer())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate servers: %w", err)
	}
	return servers, nil
}

func (m *Mongo) ServerUpdate(ctx context.Context, id int64, patch ServerPatch) error {
	set := b.M{}
	if patch.Name != nil {
		set["name"] = *patch.Name
	}
	if patch.Image != nil {
		set["image"] = *patch.Image
	}
	if len(set) == 0 {
		return nil
	}
	return m.updateOne(ctx, collServer, b.M{"id": id}, b.M{"$set": set})
}

func (m *Mongo) ServerSetOwner(ctx context.Context, id, userID int64) error {
	return m.updateOne(ctx, collServer, b.M{"id": id}, b.M{"$set": b.M{"owner_id": userID}})
}

func (m *Mongo) ServerDelete(ctx context.Context, id int64) error {
	if _, err := m.db.Collection(collServer).DeleteOne(ctx, b.M{"id": id}); err != nil {
		return fmt.Errorf("delete server: %w", err)
	}
	return nil
}

func (m *Mongo) MemberAdd(ctx context.Context, serverID, userID int64) error {
	return m.updateOne(ctx, collServer, b.M{"id": serverID}, b.M{"$addToSet": b.M{"member_id": userID}})
}

func (m *Mongo) MemberRemove(ctx context.Context, serverID, userID int64) error {
	return m.updateOne(ctx, collServer, b.M{"id": serverID},
		b.M{"$pull": b.M{"admin_id": userID, "member_id": userID}})
}

func (m *Mongo) AdminAdd(ctx context.Context, serverID, userID int64) error {
	return m.updateOne(ctx, collServer, b.M{"id": serverID}, b.M{"$addToSet": b.M{"admin_id": userID}})
}

func (m *Mongo) AdminRemove(ctx context.Context, serverID, userID int64) error {
	return m.updateOne(ctx, collServer, b.M{"id": serverID}, b.M{"$pull": b.M{"admin_id": userID}})
}

func (m *Mongo) InviteSet(ctx context.Context, serverID int64, code string) error {
	return m.updateOne(ctx, collServer, b.M{"id": serverID}, b.M{"$set": b.M{"lien": code}})
}

func (m *Mongo) InviteExists(ctx context.Context, code string) (bool, error) {
	n, err := m.db.Collection(collServer).CountDocuments(ctx, b.M{"lien": code}, mdbopts.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("lookup invite: %w", err)
	}
	return n > 0, nil
}

func (m *Mongo) ServerByInvite(ctx context.Context, code string) (*types.Server, error) {
	return m.findServer(ctx, b.M{"lien": code})
}

func (m *Mongo) InviteDelete(ctx context.Context, code string) error {
	return m.updateOne(ctx, collServer, b.M{"lien": code}, b.M{"$unset": b.M{"lien": ""}})
}

func (m *Mongo) ChannelCreate(ctx context.Context, c *types.Channel) error {
	id, err := m.nextID(ctx, KindChannel)
	if err != nil {
		return err
	}
	doc := channelDoc{ID: id, ServerID: c.ServerID, Position: c.Position, Name: c.Name}
	if _, err := m.db.Collection(collChannel).InsertOne(ctx, &doc); err != nil {
		return fmt.Errorf("insert channel: %w", err)
	}
	c.ID = id
	return nil
}

func (m *Mongo) ChannelGet(ctx context.Context, id int64) (*types.Channel, error) {
	var doc channelDoc
	if err := m.db.Collection(collChannel).FindOne(ctx, b.M{"id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mdb.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load channel: %w", err)
	}
	return &types.Channel{ID: doc.ID, ServerID: doc.ServerID, Name: doc.Name, Position: doc.Position}, nil
}

func (m *Mongo) ChannelsByServer(ctx context.Context, serverID int64) ([]types.Channel, error) {
	cur, err := m.db.Collection(collChannel).Find(ctx, b.M{"server_id": serverID},
		mdbopts.Find().SetSort(b.D{{Key: "position", Value: 1}, {Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query channels: %w", err)
	}
	defer cur.Close(ctx)

	channels := []types.Channel{}
	for cur.Next(ctx) {
		var doc channelDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode channel: %w", err)
		}
		channels = append(channels, types.Channel{ID: doc.ID, ServerID: doc.ServerID, Name: doc.Name, Position: doc.Position})
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate channels: %w", err)
	}
	return channels, nil
}

func (m *Mongo) ChannelRename(ctx context.Context, id int64, name string) error {
	return m.updateOne(ctx, collChannel, b.M{"id": id}, b.M{"$set": b.M{"name": name}})
}

func (m *Mongo) ChannelDelete(ctx context.Context, id int64) error {
	if _, err := m.db.Collection(collChannel).DeleteOne(ctx, b.M{"id": id}); err != nil {
		return fmt.Errorf("delete channel: %w", err)
	}
	return nil
}

func (m *Mongo) MessageCreate(ctx context.Context, msg *types.Message) error {
	id, err := m.nextID(ctx, KindMessage)
	if err != nil {
		return err
	}
	if msg.Time.IsZero() {
		msg.Time = time.Now().UTC()
	}
	doc := messageDoc{
		ID:        id,
		ChannelID: msg.ChannelID,
		Message:   msg.Content,
		User:      msg.UserID,
		Time:      msg.Time.UTC().Format(time.RFC3339),
	}
	if _, err := m.db.Collection(collMessage).InsertOne(ctx, &doc); err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	msg.ID = id
	return nil
}

func (m *Mongo) MessageGet(ctx context.Context, id int64) (*types.Message, error) {
	var doc messageDoc
	if err := m.db.Collection(collMessage).FindOne(ctx, b.M{"id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mdb.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load message: %w", err)
	}
	msg := doc.toMessage()
	return &msg, nil
}

func (m *Mongo) MessagesByChannel(ctx context.Context, channelID int64) ([]types.Message, error) {
	cur, err := m.db.Collection(collMessage).Find(ctx, b.M{"channel_id": channelID},
		mdbopts.Find().SetSort(b.D{{Key: "id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer cur.Close(ctx)

	messages := []types.Message{}
	for cur.Next(ctx) {
		var doc messageDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode message: %w", err)
		}
		messages = append(messages, doc.toMessage())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate messages: %w", err)
	}
	return messages, nil
}

func (m *Mongo) MessageUpdate(ctx context.Context, id int64, content string) error {
	return m.updateOne(ctx, collMessage, b.M{"id": id}, b.M{"$set": b.M{"message": content}})
}

func (m *Mongo) MessageDelete(ctx context.Context, id int64) error {
	if _, err := m.db.Collection(collMessage).DeleteOne(ctx, b.M{"id": id}); err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	return nil
}

func (m *Mongo) MessagesDeleteByChannel(ctx context.Context, channelID int64) error {
	if _, err := m.db.Collection(collMessage).DeleteMany(ctx, b.M{"channel_id": channelID}); err != nil {
		return fmt.Errorf("delete channel messages: %w", err)
	}
	return nil
}

var mongoCollections = map[string]string{
	KindServer:  collServer,
	KindChannel: collChannel,
	KindMessage: collMessage,
}

func (m *Mongo) LastID(ctx context.Context, kind string) (int64, error) {
	coll, ok := mongoCollections[kind]
	if !ok {
		return 0, fmt.Errorf("unknown record kind %q", kind)
	}
	var doc struct {
		ID int64 `bson:"id"`
	}
	err := m.db.Collection(coll).FindOne(ctx, b.M{},
		mdbopts.FindOne().SetSort(b.D{{Key: "id", Value: -1}}).SetProjection(b.M{"id": 1})).Decode(&doc)
	if err != nil {
		if errors.Is(err, mdb.ErrNoDocuments) {
			return 0, nil
		}
		return 0, fmt.Errorf("last %s id: %w", kind, err)
	}
	return doc.ID, nil
}
