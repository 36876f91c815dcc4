package session

import (
	"context"
	"testing"
	"time"

	"ojack/blackjack"
	"ojack/internal/ledger"
	"ojack/internal/room"
	"ojack/internal/store"
)

type fixture struct {
	st    *store.MemoryStore
	hub   *store.Hub
	users *ledger.Service
	rooms *room.Service
	coord *Coordinator
}

func newFixture(t *testing.T, seed ...ledger.User) (*fixture, context.Context) {
	t.Helper()
	ctx := context.Background()
	st := store.NewMemoryStore()
	if err := st.Save(ctx, store.KeyUsers, seed); err != nil {
		t.Fatal(err)
	}
	hub := store.NewHub()
	wrapped := store.WithHub(st, hub)
	users := ledger.NewService(wrapped, nil)
	rooms := room.NewService(wrapped, users, nil, room.Timers{
		AutoDeal:    10 * time.Millisecond,
		AutoAdvance: 10 * time.Millisecond,
		RoomTimeout: time.Hour,
	})
	t.Cleanup(rooms.Close)
	coord := NewCoordinator(wrapped, hub, users, rooms, 20*time.Millisecond, time.Hour)
	go coord.Run()
	t.Cleanup(coord.Stop)
	return &fixture{st: st, hub: hub, users: users, rooms: rooms, coord: coord}, ctx
}

func recvUpdate(t *testing.T, s *Session) Update {
	t.Helper()
	select {
	case u := <-s.Updates():
		return u
	case <-time.After(2 * time.Second):
		t.Fatal("no update")
		return Update{}
	}
}

func TestAttachSendsInitialState(t *testing.T) {
	f, _ := newFixture(t, ledger.User{ID: "u1", Username: "alice", Balance: 700})
	s := f.coord.Attach("tok1", "u1")
	defer f.coord.Detach(s)

	u := recvUpdate(t, s)
	if u.User == nil || u.User.Username != "alice" {
		t.Fatalf("user = %+v", u.User)
	}
	if u.Room != nil {
		t.Fatal("no room expected")
	}
}

func TestHubWriteTriggersBroadcast(t *testing.T) {
	f, ctx := newFixture(t, ledger.User{ID: "u1", Username: "alice", Balance: 700})
	s := f.coord.Attach("tok1", "u1")
	defer f.coord.Detach(s)
	recvUpdate(t, s) // initial

	if _, err := f.rooms.CreateRoom(ctx, ledger.User{ID: "u1", Username: "alice"}, "Table", false, "", 10); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		u := recvUpdate(t, s)
		if len(u.Rooms) == 1 && u.Rooms[0].Name == "Table" {
			return
		}
	}
	t.Fatal("broadcast never carried the new room")
}

func TestEnterRoomAndEviction(t *testing.T) {
	f, ctx := newFixture(t,
		ledger.User{ID: "u1", Username: "alice", Balance: 700},
		ledger.User{ID: "u2", Username: "bob", Balance: 700},
	)
	r, err := f.rooms.CreateRoom(ctx, ledger.User{ID: "u1", Username: "alice"}, "Table", false, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.rooms.JoinRoom(ctx, ledger.User{ID: "u2", Username: "bob"}, r.ID, ""); err != nil {
		t.Fatal(err)
	}

	s := f.coord.Attach("tok2", "u2")
	defer f.coord.Detach(s)
	recvUpdate(t, s)
	f.coord.EnterRoom(s, r.ID, false)

	u := recvUpdate(t, s)
	if u.Room == nil || u.Room.ID != r.ID {
		t.Fatalf("room = %+v, want %s", u.Room, r.ID)
	}
	if s.RoomID() != r.ID {
		t.Fatalf("session room = %q", s.RoomID())
	}

	// dissolve the room out from under the session
	if err := f.rooms.LeaveRoom(ctx, "u2", r.ID); err != nil {
		t.Fatal(err)
	}
	if err := f.rooms.LeaveRoom(ctx, "u1", r.ID); err != nil {
		t.Fatal(err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		u = recvUpdate(t, s)
		if u.Evicted {
			break
		}
	}
	if !u.Evicted {
		t.Fatal("session never evicted")
	}
	if s.RoomID() != "" {
		t.Fatalf("session still bound to %q", s.RoomID())
	}
}

func TestLeaveRoomClearsSeat(t *testing.T) {
	f, ctx := newFixture(t,
		ledger.User{ID: "u1", Username: "alice", Balance: 700},
		ledger.User{ID: "u2", Username: "bob", Balance: 700},
	)
	r, err := f.rooms.CreateRoom(ctx, ledger.User{ID: "u1", Username: "alice"}, "Table", false, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := f.rooms.JoinRoom(ctx, ledger.User{ID: "u2", Username: "bob"}, r.ID, ""); err != nil {
		t.Fatal(err)
	}
	s := f.coord.Attach("tok2", "u2")
	f.coord.EnterRoom(s, r.ID, false)

	if err := f.coord.LeaveRoom(ctx, s); err != nil {
		t.Fatal(err)
	}
	got, err := f.rooms.Room(ctx, r.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.PlayerIndex("u2") >= 0 {
		t.Fatal("u2 still seated after leave")
	}
	if s.RoomID() != "" {
		t.Fatal("session still bound to room")
	}
}

// TestAttachRebindsSeatedUser covers reconnecting while still seated:
// the fresh session must come up bound to the room, not the lobby.
func TestAttachRebindsSeatedUser(t *testing.T) {
	f, ctx := newFixture(t, ledger.User{ID: "u1", Username: "alice", Balance: 700})
	r, err := f.rooms.CreateRoom(ctx, ledger.User{ID: "u1", Username: "alice"}, "Table", false, "", 10)
	if err != nil {
		t.Fatal(err)
	}

	// first connection drops without leaving the room
	first := f.coord.Attach("tok1", "u1")
	f.coord.EnterRoom(first, r.ID, false)
	f.coord.Detach(first)

	second := f.coord.Attach("tok2", "u1")
	defer f.coord.Detach(second)
	if second.RoomID() != r.ID {
		t.Fatalf("session room = %q, want %q", second.RoomID(), r.ID)
	}
	if second.Spectating() {
		t.Fatal("seated user marked spectating")
	}
	u := recvUpdate(t, second)
	if u.Room == nil || u.Room.ID != r.ID {
		t.Fatalf("initial update room = %+v, want %s", u.Room, r.ID)
	}
}

func TestSweepEvictsPrunedRooms(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemoryStore()
	seed := []ledger.User{{ID: "u1", Username: "alice", Balance: 700}}
	if err := st.Save(ctx, store.KeyUsers, seed); err != nil {
		t.Fatal(err)
	}
	users := ledger.NewService(st, nil)
	rooms := room.NewService(st, users, nil, room.Timers{RoomTimeout: time.Minute})
	t.Cleanup(rooms.Close)
	coord := NewCoordinator(st, nil, users, rooms, time.Hour, time.Hour)

	r, err := rooms.CreateRoom(ctx, ledger.User{ID: "u1", Username: "alice"}, "Old", false, "", 10)
	if err != nil {
		t.Fatal(err)
	}
	s := coord.Attach("tok1", "u1")
	coord.EnterRoom(s, r.ID, false)
	for len(s.Updates()) > 0 {
		<-s.Updates()
	}

	var list []blackjack.Room
	if _, err := st.Load(ctx, store.KeyRooms, &list); err != nil {
		t.Fatal(err)
	}
	list[0].LastUpdate = time.Now().Add(-time.Hour).UnixMilli()
	if err := st.Save(ctx, store.KeyRooms, list); err != nil {
		t.Fatal(err)
	}

	coord.sweep()
	u := recvUpdate(t, s)
	if !u.Evicted {
		t.Fatalf("update = %+v, want eviction", u)
	}
}
