package authz

import (
	"context"
	"errors"
	"testing"

	"fluxy/store"
	"fluxy/types"
)

type fakeReader struct {
	servers  map[int64]*types.Server
	channels map[int64][]types.Channel
	err      error
	reads    int
}

func (f *fakeReader) ServerGet(ctx context.Context, id int64) (*types.Server, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	srv, ok := f.servers[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *srv
	return &cp, nil
}

func (f *fakeReader) ChannelsByServer(ctx context.Context, serverID int64) ([]types.Channel, error) {
	f.reads++
	if f.err != nil {
		return nil, f.err
	}
	return f.channels[serverID], nil
}

func newFake() *fakeReader {
	return &fakeReader{
		servers: map[int64]*types.Server{
			1: {ID: 1, OwnerID: 200, AdminIDs: []int64{150}, MemberIDs: []int64{200, 150, 111}},
		},
		channels: map[int64][]types.Channel{
			1: {{ID: 10, ServerID: 1}, {ID: 11, ServerID: 1}},
			2: {{ID: 20, ServerID: 2}},
		},
	}
}

func TestRolePredicates(t *testing.T) {
	ctx := context.Background()
	c := New(newFake())

	cases := []struct {
		name string
		fn   func(context.Context, int64, int64) (bool, error)
		user int64
		want bool
	}{
		{"owner is owner", c.IsOwner, 200, true},
		{"admin is not owner", c.IsOwner, 150, false},
		{"admin is admin", c.IsAdmin, 150, true},
		{"owner is not admin", c.IsAdmin, 200, false},
		{"member is member", c.IsMember, 111, true},
		{"stranger is not member", c.IsMember, 999, false},
		{"owner passes owner-or-admin", c.IsOwnerOrAdmin, 200, true},
		{"admin passes owner-or-admin", c.IsOwnerOrAdmin, 150, true},
		{"member fails owner-or-admin", c.IsOwnerOrAdmin, 111, false},
	}
	for _, tc := range cases {
		got, err := tc.fn(ctx, 1, tc.user)
		if err != nil {
			t.Fatalf("%s: unexpected error %v", tc.name, err)
		}
		if got != tc.want {
			t.Fatalf("%s: got %v want %v", tc.name, got, tc.want)
		}
	}
}

func TestMissingServerIsFalse(t *testing.T) {
	ctx := context.Background()
	c := New(newFake())
	for _, fn := range []func(context.Context, int64, int64) (bool, error){c.IsOwner, c.IsAdmin, c.IsMember} {
		got, err := fn(ctx, 42, 200)
		if err != nil || got {
			t.Fatalf("expected false,nil for missing server, got %v,%v", got, err)
		}
	}
}

func TestChannelOfServer(t *testing.T) {
	ctx := context.Background()
	c := New(newFake())
	if ok, _ := c.IsChannelOfServer(ctx, 1, 11); !ok {
		t.Fatalf("expected channel 11 to belong to server 1")
	}
	if ok, _ := c.IsChannelOfServer(ctx, 1, 20); ok {
		t.Fatalf("expected channel 20 to be rejected for server 1")
	}
	if ok, _ := c.IsChannelOfServer(ctx, 7, 10); ok {
		t.Fatalf("expected unknown server to have no channels")
	}
}

func TestPredicatesReadEveryTime(t *testing.T) {
	ctx := context.Background()
	f := newFake()
	c := New(f)

	if ok, _ := c.IsAdmin(ctx, 1, 111); ok {
		t.Fatalf("111 should not start as admin")
	}
	f.servers[1].AdminIDs = append(f.servers[1].AdminIDs, 111)
	if ok, _ := c.IsAdmin(ctx, 1, 111); !ok {
		t.Fatalf("expected fresh read to see promotion")
	}
	if f.reads != 2 {
		t.Fatalf("expected 2 store reads, got %d", f.reads)
	}
}

func TestStorageErrorPropagates(t *testing.T) {
	f := newFake()
	f.err = errors.New("connection refused")
	c := New(f)
	if _, err := c.IsOwner(context.Background(), 1, 200); err == nil {
		t.Fatalf("expected storage error to propagate")
	}
	if _, err := c.IsChannelOfServer(context.Background(), 1, 10); err == nil {
		t.Fatalf("expected storage error to propagate")
	}
}
