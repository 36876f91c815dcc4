package blackjack

import (
	"fmt"
	"time"

	"ojack/card"
)

// PlayerInGame is one occupied seat.
type PlayerInGame struct {
	UserID   string       `json:"userId"`
	Username string       `json:"username"`
	Hand     []card.Card  `json:"hand"`
	Bet      int          `json:"bet"`
	Status   PlayerStatus `json:"status"`
}

// Spectator watches a room without holding a seat.
type Spectator struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
}

// Room is the full shared state of one table. It is the unit of
// persistence: every field round-trips through JSON unchanged, and
// LastUpdate orders concurrent writers (last writer wins).
type Room struct {
	ID               string         `json:"id"`
	Name             string         `json:"name"`
	CreatorID        string         `json:"creatorId"`
	CreatorName      string         `json:"creatorName"`
	IsPrivate        bool           `json:"isPrivate"`
	Code             string         `json:"code,omitempty"`
	Players          []PlayerInGame `json:"players"`
	Spectators       []Spectator    `json:"spectators"`
	MaxPlayers       int            `json:"maxPlayers"`
	GameStatus       GameStatus     `json:"gameStatus"`
	Deck             []card.Card    `json:"deck"`
	CurrentTurnIndex int            `json:"currentTurnIndex"`
	RoundNumber      int            `json:"roundNumber"`
	MinBet           int            `json:"minBet"`
	Pot              int            `json:"pot"`
	Winners          []string       `json:"winners"`
	Message          string         `json:"message"`
	LastUpdate       int64          `json:"lastUpdate"`
}

// NewRoom creates a waiting room with the creator seated alone.
func NewRoom(id, name, creatorID, creatorName string, isPrivate bool, code string, minBet int) *Room {
	if minBet <= 0 {
		minBet = DefaultMinBet
	}
	r := &Room{
		ID:          id,
		Name:        name,
		CreatorID:   creatorID,
		CreatorName: creatorName,
		IsPrivate:   isPrivate,
		Code:        code,
		Players: []PlayerInGame{{
			UserID:   creatorID,
			Username: creatorName,
			Hand:     []card.Card{},
			Status:   StatusWaiting,
		}},
		Spectators: []Spectator{},
		MaxPlayers: DefaultMaxPlayers,
		GameStatus: GameWaiting,
		MinBet:     minBet,
		Message:    "Waiting for players...",
	}
	r.touch()
	return r
}

func (r *Room) touch() {
	r.LastUpdate = time.Now().UnixMilli()
}

func (r *Room) setGameStatus(to GameStatus) error {
	if !r.GameStatus.canTransition(to) {
		return fmt.Errorf("%w: %s -> %s", ErrWrongPhase, r.GameStatus, to)
	}
	r.GameStatus = to
	return nil
}

// PlayerIndex returns the seat index of userID, or -1.
func (r *Room) PlayerIndex(userID string) int {
	for i := range r.Players {
		if r.Players[i].UserID == userID {
			return i
		}
	}
	return -1
}

// Player returns the seat of userID, or nil. The pointer stays valid
// only until the Players slice is next mutated.
func (r *Room) Player(userID string) *PlayerInGame {
	if i := r.PlayerIndex(userID); i >= 0 {
		return &r.Players[i]
	}
	return nil
}

// IsSpectator reports whether userID is watching the room.
func (r *Room) IsSpectator(userID string) bool {
	for _, s := range r.Spectators {
		if s.UserID == userID {
			return true
		}
	}
	return false
}

// CurrentPlayer returns the seat whose turn it is, or nil when the turn
// index is out of range (no playable seat remains).
func (r *Room) CurrentPlayer() *PlayerInGame {
	if r.CurrentTurnIndex < 0 || r.CurrentTurnIndex >= len(r.Players) {
		return nil
	}
	return &r.Players[r.CurrentTurnIndex]
}

// Empty reports whether no seats are occupied; the caller deletes the room.
func (r *Room) Empty() bool {
	return len(r.Players) == 0
}

// AddPlayer seats a user. Joining is only possible while the room is
// waiting; a user already seated re-enters without error. Spectating
// users are promoted to a seat.
func (r *Room) AddPlayer(userID, username, code string) error {
	if r.PlayerIndex(userID) >= 0 {
		return nil
	}
	if r.IsPrivate && code != r.Code {
		return ErrBadCode
	}
	if r.GameStatus != GameWaiting {
		return ErrGameInProgress
	}
	if len(r.Players) >= r.MaxPlayers {
		return ErrRoomFull
	}
	r.dropSpectator(userID)
	r.Players = append(r.Players, PlayerInGame{
		UserID:   userID,
		Username: username,
		Hand:     []card.Card{},
		Status:   StatusWaiting,
	})
	r.Message = fmt.Sprintf("%s joined the room", username)
	r.touch()
	return nil
}

// AddSpectator adds a watcher. Seated players cannot also spectate.
func (r *Room) AddSpectator(userID, username string) error {
	if r.PlayerIndex(userID) >= 0 {
		return ErrAlreadySeated
	}
	if r.IsSpectator(userID) {
		return nil
	}
	r.Spectators = append(r.Spectators, Spectator{UserID: userID, Username: username})
	r.touch()
	return nil
}

func (r *Room) dropSpectator(userID string) {
	kept := r.Spectators[:0]
	for _, s := range r.Spectators {
		if s.UserID != userID {
			kept = append(kept, s)
		}
	}
	r.Spectators = kept
}

// RemoveUser removes userID from seats and spectators. If a departure
// during an active game leaves fewer than two seats, the game reverts
// to waiting and all hands and bets are cleared.
func (r *Room) RemoveUser(userID string) {
	r.dropSpectator(userID)
	idx := r.PlayerIndex(userID)
	if idx < 0 {
		r.touch()
		return
	}
	name := r.Players[idx].Username
	r.Players = append(r.Players[:idx], r.Players[idx+1:]...)
	if r.CurrentTurnIndex > idx {
		r.CurrentTurnIndex--
	}
	if r.GameStatus != GameWaiting && len(r.Players) < MinPlayersToStart {
		r.resetToWaiting(fmt.Sprintf("%s left. Not enough players, game reset.", name))
		return
	}
	r.Message = fmt.Sprintf("%s left the room", name)
	r.touch()
}

// resetToWaiting abandons the current game. Bets already committed are
// cleared without settlement.
func (r *Room) resetToWaiting(message string) {
	r.GameStatus = GameWaiting
	for i := range r.Players {
		r.Players[i].Hand = []card.Card{}
		r.Players[i].Bet = 0
		r.Players[i].Status = StatusWaiting
	}
	r.Deck = nil
	r.CurrentTurnIndex = 0
	r.Pot = 0
	r.Winners = nil
	r.Message = message
	r.touch()
}
