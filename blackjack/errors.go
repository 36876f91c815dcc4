package blackjack

import "errors"

var (
	ErrWrongPhase          = errors.New("room not in expected phase")
	ErrOutOfTurn           = errors.New("action out of turn")
	ErrNotSeated           = errors.New("player not seated in room")
	ErrHandFrozen          = errors.New("hand already finished")
	ErrNotAllReady         = errors.New("not every player is ready")
	ErrNotCreator          = errors.New("only the room creator may do this")
	ErrNotEnoughPlayers    = errors.New("not enough players")
	ErrAlreadySeated       = errors.New("player already holds a seat")
	ErrRoomFull            = errors.New("room is full")
	ErrGameInProgress      = errors.New("game already in progress")
	ErrBadCode             = errors.New("room code mismatch")
	ErrInsufficientBalance = errors.New("balance below minimum bet")
	ErrDeckExhausted       = errors.New("deck exhausted")
)

// IsStale classifies errors that mean the caller acted on an outdated view
// of the room. Concurrent sessions race on the shared store, so these are
// expected and must be swallowed as silent no-ops, never surfaced.
func IsStale(err error) bool {
	return errors.Is(err, ErrWrongPhase) ||
		errors.Is(err, ErrOutOfTurn) ||
		errors.Is(err, ErrNotSeated) ||
		errors.Is(err, ErrHandFrozen) ||
		errors.Is(err, ErrNotAllReady)
}
