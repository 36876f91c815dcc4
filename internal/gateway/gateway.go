// Package gateway exposes the game over WebSocket. Clients speak JSON
// envelopes: one request envelope in, state pushes and responses out.
package gateway

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"ojack/blackjack"
	"ojack/internal/auth"
	"ojack/internal/ledger"
	"ojack/internal/notify"
	"ojack/internal/room"
	"ojack/internal/session"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin: func(r *http.Request) bool {
		return true // TODO: Restrict in production
	},
}

// clientEnvelope is a single client request. Type selects the action;
// the remaining fields carry its arguments.
type clientEnvelope struct {
	Type string `json:"type"`

	// auth
	Token    string `json:"token,omitempty"`
	Username string `json:"username,omitempty"`
	FullName string `json:"fullName,omitempty"`
	Email    string `json:"email,omitempty"`
	Password string `json:"password,omitempty"`

	// rooms
	RoomID    string `json:"roomId,omitempty"`
	Name      string `json:"name,omitempty"`
	IsPrivate bool   `json:"isPrivate,omitempty"`
	Code      string `json:"code,omitempty"`
	MinBet    int    `json:"minBet,omitempty"`
	Amount    int    `json:"amount,omitempty"`

	// admin
	UserID   string `json:"userId,omitempty"`
	Note     string `json:"note,omitempty"`
	BotToken string `json:"botToken,omitempty"`
	ChatID   string `json:"chatId,omitempty"`
}

// serverEnvelope is one message to the client.
type serverEnvelope struct {
	Type    string           `json:"type"`
	Error   string           `json:"error,omitempty"`
	Token   string           `json:"token,omitempty"`
	User    *ledger.User     `json:"user,omitempty"`
	Users   []ledger.User    `json:"users,omitempty"`
	Rooms   []blackjack.Room `json:"rooms,omitempty"`
	Room    *blackjack.Room  `json:"room,omitempty"`
	Evicted bool             `json:"evicted,omitempty"`
	BotName string           `json:"botName,omitempty"`
}

// Gateway upgrades sockets and routes client envelopes to the services.
type Gateway struct {
	mu          sync.RWMutex
	connections map[uint64]*Connection
	nextConnID  uint64

	auth  *auth.Service
	users *ledger.Service
	rooms *room.Service
	coord *session.Coordinator
	tg    *notify.Telegram
}

func New(authSvc *auth.Service, users *ledger.Service, rooms *room.Service, coord *session.Coordinator, tg *notify.Telegram) *Gateway {
	return &Gateway{
		connections: make(map[uint64]*Connection),
		auth:        authSvc,
		users:       users,
		rooms:       rooms,
		coord:       coord,
		tg:          tg,
	}
}

// Connection is one WebSocket client.
type Connection struct {
	id      uint64
	conn    *websocket.Conn
	send    chan []byte
	gateway *Gateway
	closed  chan struct{}

	mu      sync.Mutex
	session *session.Session
}

// HandleWebSocket upgrades the request and starts the pumps.
func (g *Gateway) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[Gateway] upgrade error: %v", err)
		return
	}

	g.mu.Lock()
	g.nextConnID++
	c := &Connection{
		id:      g.nextConnID,
		conn:    conn,
		send:    make(chan []byte, 256),
		gateway: g,
		closed:  make(chan struct{}),
	}
	g.connections[c.id] = c
	total := len(g.connections)
	g.mu.Unlock()

	log.Printf("[Gateway] client connected: conn_%d, total: %d", c.id, total)

	go c.readPump()
	go c.writePump()
}

func (c *Connection) readPump() {
	defer func() {
		c.gateway.removeConnection(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(65536)
	c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("[Gateway] read error: %v", err)
			}
			break
		}
		c.handleMessage(message)
	}
}

func (c *Connection) writePump() {
	ticker := time.NewTicker(30 * time.Second)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Connection) handleMessage(data []byte) {
	var env clientEnvelope
	if err := json.Unmarshal(data, &env); err != nil {
		c.sendError("invalid message format")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch env.Type {
	case "register":
		c.handleRegister(ctx, &env)
	case "login":
		c.handleLogin(ctx, &env)
	case "auth":
		c.handleAuth(&env)
	case "logout":
		c.handleLogout(ctx)
	default:
		sess := c.currentSession()
		if sess == nil {
			c.sendError("not authenticated")
			return
		}
		c.handleGameMessage(ctx, sess, &env)
	}
}

func (c *Connection) handleGameMessage(ctx context.Context, sess *session.Session, env *clientEnvelope) {
	var (
		updated blackjack.Room
		err     error
	)
	switch env.Type {
	case "createRoom":
		var u ledger.User
		u, err = c.gateway.users.Get(ctx, sess.UserID)
		if err == nil {
			updated, err = c.gateway.rooms.CreateRoom(ctx, u, env.Name, env.IsPrivate, env.Code, env.MinBet)
			if err == nil {
				c.gateway.coord.EnterRoom(sess, updated.ID, false)
			}
		}
	case "joinRoom":
		var u ledger.User
		u, err = c.gateway.users.Get(ctx, sess.UserID)
		if err == nil {
			updated, err = c.gateway.rooms.JoinRoom(ctx, u, env.RoomID, env.Code)
			if err == nil {
				c.gateway.coord.EnterRoom(sess, updated.ID, false)
			}
		}
	case "spectateRoom":
		var u ledger.User
		u, err = c.gateway.users.Get(ctx, sess.UserID)
		if err == nil {
			updated, err = c.gateway.rooms.SpectateRoom(ctx, u, env.RoomID)
			if err == nil {
				c.gateway.coord.EnterRoom(sess, updated.ID, true)
			}
		}
	case "leaveRoom":
		err = c.gateway.coord.LeaveRoom(ctx, sess)
	case "startGame":
		updated, err = c.gateway.rooms.StartGame(ctx, sess.UserID, env.RoomID)
	case "placeBet":
		updated, err = c.gateway.rooms.PlaceBet(ctx, sess.UserID, env.RoomID, env.Amount)
	case "hit":
		updated, err = c.gateway.rooms.Hit(ctx, sess.UserID, env.RoomID)
	case "stand":
		updated, err = c.gateway.rooms.Stand(ctx, sess.UserID, env.RoomID)
	case "nextRound":
		updated, err = c.gateway.rooms.NextRound(ctx, sess.UserID, env.RoomID)
	case "listUsers":
		c.handleListUsers(ctx, sess)
		return
	case "setBalance", "addBalance", "subtractBalance", "resetBalance", "withdraw":
		c.handleAdminBalance(ctx, sess, env)
		return
	case "setTelegram":
		err = c.gateway.users.SetTelegramConfig(ctx, sess.UserID, notify.Config{
			BotToken: env.BotToken,
			ChatID:   env.ChatID,
		})
		if err == nil {
			c.sendEnvelope(serverEnvelope{Type: "ok"})
			return
		}
	case "testTelegram":
		c.handleTestTelegram(ctx, env)
		return
	default:
		c.sendError("unknown message type " + env.Type)
		return
	}

	if err != nil {
		// stale actions raced another client and resolve silently
		if blackjack.IsStale(err) {
			return
		}
		c.sendError(err.Error())
		return
	}
	if updated.ID != "" {
		c.sendEnvelope(serverEnvelope{Type: "state", Room: &updated})
	} else {
		c.sendEnvelope(serverEnvelope{Type: "ok"})
	}
}

func (c *Connection) handleRegister(ctx context.Context, env *clientEnvelope) {
	user, token, err := c.gateway.auth.Register(ctx, auth.Registration{
		Username: env.Username,
		FullName: env.FullName,
		Email:    env.Email,
		Password: env.Password,
	})
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.attachSession(token, user.ID)
	c.sendEnvelope(serverEnvelope{Type: "welcome", Token: token, User: &user})
}

func (c *Connection) handleLogin(ctx context.Context, env *clientEnvelope) {
	user, token, err := c.gateway.auth.Login(ctx, env.Username, env.Password)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.attachSession(token, user.ID)
	c.sendEnvelope(serverEnvelope{Type: "welcome", Token: token, User: &user})
}

// handleAuth resumes an existing session token after a reconnect.
func (c *Connection) handleAuth(env *clientEnvelope) {
	userID, err := c.gateway.auth.Resolve(env.Token)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.attachSession(env.Token, userID)
	c.sendEnvelope(serverEnvelope{Type: "welcome", Token: env.Token})
}

func (c *Connection) handleLogout(ctx context.Context) {
	sess := c.currentSession()
	if sess == nil {
		return
	}
	if err := c.gateway.coord.Logout(ctx, sess); err != nil {
		log.Printf("[Gateway] logout: %v", err)
	}
	c.gateway.auth.Logout(sess.Token)
	c.mu.Lock()
	c.session = nil
	c.mu.Unlock()
	c.sendEnvelope(serverEnvelope{Type: "ok"})
}

func (c *Connection) handleListUsers(ctx context.Context, sess *session.Session) {
	actor, err := c.gateway.users.Get(ctx, sess.UserID)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	if !actor.IsAdmin {
		c.sendError(ledger.ErrNotAdmin.Error())
		return
	}
	users, err := c.gateway.users.Users(ctx)
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendEnvelope(serverEnvelope{Type: "users", Users: users})
}

func (c *Connection) handleAdminBalance(ctx context.Context, sess *session.Session, env *clientEnvelope) {
	var (
		updated ledger.User
		err     error
	)
	switch env.Type {
	case "setBalance":
		updated, err = c.gateway.users.SetBalance(ctx, sess.UserID, env.UserID, env.Amount, env.Note)
	case "addBalance":
		updated, err = c.gateway.users.AddBalance(ctx, sess.UserID, env.UserID, env.Amount, env.Note)
	case "subtractBalance":
		updated, err = c.gateway.users.SubtractBalance(ctx, sess.UserID, env.UserID, env.Amount, env.Note)
	case "resetBalance":
		updated, err = c.gateway.users.ResetBalance(ctx, sess.UserID, env.UserID, env.Note)
	case "withdraw":
		updated, err = c.gateway.users.Withdraw(ctx, sess.UserID, env.UserID, env.Note)
	}
	if err != nil {
		c.sendError(err.Error())
		return
	}
	c.sendEnvelope(serverEnvelope{Type: "user", User: &updated})
}

func (c *Connection) handleTestTelegram(ctx context.Context, env *clientEnvelope) {
	botName, err := c.gateway.tg.TestConnection(ctx, notify.Config{
		BotToken: env.BotToken,
		ChatID:   env.ChatID,
	})
	if err != nil {
		c.sendEnvelope(serverEnvelope{Type: "botInfo", BotName: botName, Error: err.Error()})
		return
	}
	c.sendEnvelope(serverEnvelope{Type: "botInfo", BotName: botName})
}

// attachSession binds the connection to a coordinator session and
// starts forwarding its update stream.
func (c *Connection) attachSession(token, userID string) {
	sess := c.gateway.coord.Attach(token, userID)
	c.mu.Lock()
	old := c.session
	c.session = sess
	c.mu.Unlock()
	if old != nil {
		c.gateway.coord.Detach(old)
	}

	go func() {
		for {
			select {
			case <-c.closed:
				return
			case u := <-sess.Updates():
				c.sendEnvelope(serverEnvelope{
					Type:    "state",
					User:    u.User,
					Rooms:   u.Rooms,
					Room:    u.Room,
					Evicted: u.Evicted,
				})
			}
		}
	}()
}

func (c *Connection) currentSession() *session.Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session
}

func (c *Connection) sendEnvelope(env serverEnvelope) {
	data, err := json.Marshal(env)
	if err != nil {
		log.Printf("[Gateway] marshal envelope: %v", err)
		return
	}
	select {
	case c.send <- data:
	default:
		// drop if buffer full
	}
}

func (c *Connection) sendError(msg string) {
	c.sendEnvelope(serverEnvelope{Type: "error", Error: msg})
}

func (g *Gateway) removeConnection(c *Connection) {
	g.mu.Lock()
	delete(g.connections, c.id)
	total := len(g.connections)
	g.mu.Unlock()

	close(c.closed)
	if sess := c.currentSession(); sess != nil {
		g.coord.Detach(sess)
	}
	log.Printf("[Gateway] client disconnected: conn_%d, total: %d", c.id, total)
}
