// Package session tracks connected users: which room they are in,
// whether they spectate, and the stream of state updates pushed to them
// as the shared store changes under everyone's feet.
package session

import (
	"context"
	"log"
	"sync"
	"time"

	"ojack/blackjack"
	"ojack/internal/ledger"
	"ojack/internal/room"
	"ojack/internal/store"
)

// Update is one push of fresh state to a connected client. Evicted is
// set when the client's room vanished (pruned or dissolved) and the
// client must fall back to the lobby.
type Update struct {
	User    *ledger.User     `json:"user,omitempty"`
	Rooms   []blackjack.Room `json:"rooms,omitempty"`
	Room    *blackjack.Room  `json:"room,omitempty"`
	Evicted bool             `json:"evicted,omitempty"`
}

// Session is one connected client.
type Session struct {
	Token  string
	UserID string

	mu         sync.Mutex
	roomID     string
	spectating bool
	updates    chan Update
}

// Updates is the stream the gateway forwards to the socket.
func (s *Session) Updates() <-chan Update {
	return s.updates
}

// RoomID returns the room the session currently watches, if any.
func (s *Session) RoomID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roomID
}

// Spectating reports whether the session watches without a seat.
func (s *Session) Spectating() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.spectating
}

func (s *Session) setRoom(roomID string, spectating bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roomID = roomID
	s.spectating = spectating
}

func (s *Session) push(u Update) {
	select {
	case s.updates <- u:
	default:
		// slow client; the next tick carries newer state anyway
	}
}

// Coordinator owns the session set and the background loops: a poll
// tick for cross-process store changes, a hub subscription for same
// process writes, and the periodic inactive-room sweep.
type Coordinator struct {
	st    store.Store
	hub   *store.Hub
	users *ledger.Service
	rooms *room.Service

	pollInterval    time.Duration
	cleanupInterval time.Duration

	mu       sync.Mutex
	sessions map[string]*Session

	stop chan struct{}
	done chan struct{}
}

func NewCoordinator(st store.Store, hub *store.Hub, users *ledger.Service, rooms *room.Service, pollInterval, cleanupInterval time.Duration) *Coordinator {
	if pollInterval <= 0 {
		pollInterval = 800 * time.Millisecond
	}
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &Coordinator{
		st:              st,
		hub:             hub,
		users:           users,
		rooms:           rooms,
		pollInterval:    pollInterval,
		cleanupInterval: cleanupInterval,
		sessions:        make(map[string]*Session),
		stop:            make(chan struct{}),
		done:            make(chan struct{}),
	}
}

// Run drives the background loops until Stop. Call it on its own
// goroutine.
func (c *Coordinator) Run() {
	defer close(c.done)

	poll := time.NewTicker(c.pollInterval)
	defer poll.Stop()
	cleanup := time.NewTicker(c.cleanupInterval)
	defer cleanup.Stop()

	var hubCh <-chan string
	if c.hub != nil {
		ch, cancel := c.hub.Subscribe()
		defer cancel()
		hubCh = ch
	}

	c.sweep()
	for {
		select {
		case <-c.stop:
			return
		case <-poll.C:
			c.broadcast()
		case <-hubCh:
			c.broadcast()
		case <-cleanup.C:
			c.sweep()
		}
	}
}

// Stop shuts the loops down and waits for Run to return.
func (c *Coordinator) Stop() {
	close(c.stop)
	<-c.done
}

// Attach registers a connected client and sends it an initial update.
// A user still seated or spectating somewhere is rebound to that room,
// so a reconnect resumes where the last connection left off.
func (c *Coordinator) Attach(token, userID string) *Session {
	s := &Session{
		Token:   token,
		UserID:  userID,
		updates: make(chan Update, 8),
	}
	c.mu.Lock()
	c.sessions[token] = s
	c.mu.Unlock()

	c.rebind(s)
	c.pushState(s)
	return s
}

// rebind points the session at whichever room still holds the user.
func (c *Coordinator) rebind(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	rooms, err := c.rooms.Rooms(ctx)
	if err != nil {
		log.Printf("[Session] rebind: %v", err)
		return
	}
	for _, r := range rooms {
		if r.PlayerIndex(s.UserID) >= 0 {
			s.setRoom(r.ID, false)
			return
		}
		if r.IsSpectator(s.UserID) {
			s.setRoom(r.ID, true)
			return
		}
	}
}

// Detach unregisters a client. Its seat in the room is kept; the
// player can reconnect and resume.
func (c *Coordinator) Detach(s *Session) {
	c.mu.Lock()
	delete(c.sessions, s.Token)
	c.mu.Unlock()
}

// EnterRoom binds the session to a room after a join or spectate.
func (c *Coordinator) EnterRoom(s *Session, roomID string, spectating bool) {
	s.setRoom(roomID, spectating)
	c.pushState(s)
}

// LeaveRoom unbinds the session and removes the user from the room.
func (c *Coordinator) LeaveRoom(ctx context.Context, s *Session) error {
	roomID := s.RoomID()
	s.setRoom("", false)
	if roomID == "" {
		return nil
	}
	return c.rooms.LeaveRoom(ctx, s.UserID, roomID)
}

// Logout leaves any current room and detaches the session.
func (c *Coordinator) Logout(ctx context.Context, s *Session) error {
	err := c.LeaveRoom(ctx, s)
	c.Detach(s)
	return err
}

// broadcast pushes fresh state to every session from one store read.
func (c *Coordinator) broadcast() {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	users, err := c.users.Users(ctx)
	if err != nil {
		log.Printf("[Session] broadcast users: %v", err)
		return
	}
	rooms, err := c.rooms.Rooms(ctx)
	if err != nil {
		log.Printf("[Session] broadcast rooms: %v", err)
		return
	}
	byID := make(map[string]*ledger.User, len(users))
	for i := range users {
		byID[users[i].ID] = &users[i]
	}
	roomByID := make(map[string]*blackjack.Room, len(rooms))
	for i := range rooms {
		roomByID[rooms[i].ID] = &rooms[i]
	}

	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		u := Update{
			User:  byID[s.UserID],
			Rooms: rooms,
		}
		if roomID := s.RoomID(); roomID != "" {
			if r, ok := roomByID[roomID]; ok {
				u.Room = r
			} else {
				// the room is gone; send the client back to the lobby
				s.setRoom("", false)
				u.Evicted = true
			}
		}
		s.push(u)
	}
}

// pushState sends one session a fresh snapshot immediately.
func (c *Coordinator) pushState(s *Session) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	u := Update{}
	if user, err := c.users.Get(ctx, s.UserID); err == nil {
		u.User = &user
	}
	rooms, err := c.rooms.Rooms(ctx)
	if err != nil {
		log.Printf("[Session] push state: %v", err)
		return
	}
	u.Rooms = rooms
	if roomID := s.RoomID(); roomID != "" {
		for i := range rooms {
			if rooms[i].ID == roomID {
				u.Room = &rooms[i]
				break
			}
		}
		if u.Room == nil {
			s.setRoom("", false)
			u.Evicted = true
		}
	}
	s.push(u)
}

// sweep prunes inactive rooms and evicts their sessions.
func (c *Coordinator) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	removed, err := c.rooms.PruneInactive(ctx)
	if err != nil {
		log.Printf("[Session] prune: %v", err)
		return
	}
	if len(removed) == 0 {
		return
	}
	gone := make(map[string]bool, len(removed))
	for _, r := range removed {
		gone[r.ID] = true
	}

	c.mu.Lock()
	sessions := make([]*Session, 0, len(c.sessions))
	for _, s := range c.sessions {
		sessions = append(sessions, s)
	}
	c.mu.Unlock()

	for _, s := range sessions {
		if gone[s.RoomID()] {
			s.setRoom("", false)
			s.push(Update{Evicted: true})
		}
	}
	c.broadcast()
}
