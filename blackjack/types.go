package blackjack

import "fmt"

const (
	// DefaultMaxPlayers is the seat cap for every room.
	DefaultMaxPlayers = 8

	// MinPlayersToStart is the minimum number of seated players required
	// to start a game or deal a round.
	MinPlayersToStart = 2

	// NumDecks is the number of standard decks shuffled into each shoe.
	NumDecks = 2

	// DefaultMinBet is the minimum wager used when a room is created
	// without an explicit one.
	DefaultMinBet = 10
)

// GameStatus is the room-level phase.
type GameStatus byte

const (
	GameWaiting GameStatus = iota
	GameBetting
	GamePlaying
	GameRoundEnd
)

var gameStatusNames = map[GameStatus]string{
	GameWaiting:  "waiting",
	GameBetting:  "betting",
	GamePlaying:  "playing",
	GameRoundEnd: "roundEnd",
}

var gameStatusValues = map[string]GameStatus{
	"waiting":  GameWaiting,
	"betting":  GameBetting,
	"playing":  GamePlaying,
	"roundEnd": GameRoundEnd,
}

// gameTransitions is the set of legal phase moves. Anything not listed
// here is a programming error, not a player-input error.
var gameTransitions = map[GameStatus][]GameStatus{
	GameWaiting:  {GameBetting},
	GameBetting:  {GamePlaying, GameWaiting},
	GamePlaying:  {GameRoundEnd, GameWaiting},
	GameRoundEnd: {GameBetting, GameWaiting},
}

func (s GameStatus) String() string {
	if name, ok := gameStatusNames[s]; ok {
		return name
	}
	return "waiting"
}

func (s GameStatus) canTransition(to GameStatus) bool {
	for _, t := range gameTransitions[s] {
		if t == to {
			return true
		}
	}
	return false
}

func (s GameStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

// UnmarshalJSON accepts the wire strings; unknown values fall back to
// waiting so that a corrupt blob degrades instead of wedging the room.
func (s *GameStatus) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("blackjack: invalid game status %q", data)
	}
	*s = gameStatusValues[string(data[1:len(data)-1])]
	return nil
}

// PlayerStatus is the per-seat state within a round.
type PlayerStatus byte

const (
	StatusWaiting PlayerStatus = iota
	StatusReady
	StatusPlaying
	StatusStand
	StatusBust
	StatusBlackjack
	StatusFiveCard
)

var playerStatusNames = map[PlayerStatus]string{
	StatusWaiting:   "waiting",
	StatusReady:     "ready",
	StatusPlaying:   "playing",
	StatusStand:     "stand",
	StatusBust:      "bust",
	StatusBlackjack: "blackjack",
	StatusFiveCard:  "fiveCard",
}

var playerStatusValues = map[string]PlayerStatus{
	"waiting":   StatusWaiting,
	"ready":     StatusReady,
	"playing":   StatusPlaying,
	"stand":     StatusStand,
	"bust":      StatusBust,
	"blackjack": StatusBlackjack,
	"fiveCard":  StatusFiveCard,
}

func (s PlayerStatus) String() string {
	if name, ok := playerStatusNames[s]; ok {
		return name
	}
	return "waiting"
}

// Terminal reports whether the seat has finished acting for the round.
func (s PlayerStatus) Terminal() bool {
	switch s {
	case StatusStand, StatusBust, StatusBlackjack, StatusFiveCard:
		return true
	}
	return false
}

func (s PlayerStatus) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *PlayerStatus) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("blackjack: invalid player status %q", data)
	}
	*s = playerStatusValues[string(data[1:len(data)-1])]
	return nil
}
