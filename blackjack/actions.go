package blackjack

import (
	"fmt"

	"ojack/card"
)

// StartGame moves a waiting room into its first betting phase. Only the
// creator may start, and at least two players must be seated.
func (r *Room) StartGame(userID string) error {
	if r.GameStatus != GameWaiting {
		return ErrWrongPhase
	}
	if userID != r.CreatorID {
		return ErrNotCreator
	}
	if len(r.Players) < MinPlayersToStart {
		return ErrNotEnoughPlayers
	}
	for i := range r.Players {
		r.Players[i].Hand = []card.Card{}
		r.Players[i].Bet = 0
		r.Players[i].Status = StatusWaiting
	}
	if err := r.setGameStatus(GameBetting); err != nil {
		return err
	}
	r.Pot = 0
	r.Winners = nil
	r.CurrentTurnIndex = 0
	r.Message = "Place your bets!"
	r.touch()
	return nil
}

// PlaceBet commits a wager during the betting phase. The amount is
// clamped to [MinBet, balance]; the ledger is only debited at round end.
func (r *Room) PlaceBet(userID string, amount, balance int) error {
	if r.GameStatus != GameBetting {
		return ErrWrongPhase
	}
	p := r.Player(userID)
	if p == nil {
		return ErrNotSeated
	}
	if balance < r.MinBet {
		return ErrInsufficientBalance
	}
	bet := amount
	if bet < r.MinBet {
		bet = r.MinBet
	}
	if bet > balance {
		bet = balance
	}
	p.Bet = bet
	p.Status = StatusReady
	r.Message = fmt.Sprintf("%s bet %d", p.Username, bet)
	r.touch()
	return nil
}

// AllReady reports whether every seated player has committed a bet.
func (r *Room) AllReady() bool {
	for i := range r.Players {
		if r.Players[i].Status != StatusReady {
			return false
		}
	}
	return len(r.Players) > 0
}

// Deal starts the round from the supplied shoe: two cards to each seat
// in order, naturals marked immediately, and the turn handed to the
// first seat still playing. It returns allDone=true when the deal left
// nobody to act, in which case the caller settles the round at once.
func (r *Room) Deal(shoe []card.Card) (allDone bool, err error) {
	if r.GameStatus != GameBetting {
		return false, ErrWrongPhase
	}
	if len(r.Players) < MinPlayersToStart {
		return false, ErrNotEnoughPlayers
	}
	if !r.AllReady() {
		return false, ErrNotAllReady
	}
	r.Deck = shoe
	pot := 0
	for i := range r.Players {
		p := &r.Players[i]
		c1, ok1 := r.draw()
		c2, ok2 := r.draw()
		if !ok1 || !ok2 {
			return false, ErrDeckExhausted
		}
		p.Hand = []card.Card{c1, c2}
		if card.IsBlackjack(p.Hand) {
			p.Status = StatusBlackjack
		} else {
			p.Status = StatusPlaying
		}
		pot += p.Bet
	}
	r.Pot = pot
	r.RoundNumber++
	if err := r.setGameStatus(GamePlaying); err != nil {
		return false, err
	}
	first := 0
	for first < len(r.Players) && r.Players[first].Status != StatusPlaying {
		first++
	}
	r.CurrentTurnIndex = first
	if first >= len(r.Players) {
		r.touch()
		return true, nil
	}
	r.Message = fmt.Sprintf("Cards dealt! %s is playing...", r.Players[first].Username)
	r.touch()
	return false, nil
}

func (r *Room) draw() (card.Card, bool) {
	n := len(r.Deck)
	if n == 0 {
		return card.Card{}, false
	}
	c := r.Deck[n-1]
	r.Deck = r.Deck[:n-1]
	return c, true
}

// Hit deals one card from the shoe to the acting player. Going over 21
// busts the hand, a fifth card at 21 or under is a five-card charlie,
// and landing exactly on 21 stands automatically.
func (r *Room) Hit(userID string) error {
	idx, err := r.turnOf(userID)
	if err != nil {
		return err
	}
	p := &r.Players[idx]
	c, ok := r.draw()
	if !ok {
		return ErrDeckExhausted
	}
	p.Hand = append(p.Hand, c)
	switch v := card.HandValue(p.Hand); {
	case v > 21:
		p.Status = StatusBust
		r.Message = fmt.Sprintf("%s busted with %d!", p.Username, v)
	case len(p.Hand) >= card.MaxHandCards:
		p.Status = StatusFiveCard
		r.Message = fmt.Sprintf("%s made a five-card charlie!", p.Username)
	case v == 21:
		p.Status = StatusStand
		r.Message = fmt.Sprintf("%s hit 21 and stands", p.Username)
	default:
		r.Message = fmt.Sprintf("%s drew a card (%d)", p.Username, v)
	}
	r.touch()
	return nil
}

// Stand ends the acting player's turn.
func (r *Room) Stand(userID string) error {
	idx, err := r.turnOf(userID)
	if err != nil {
		return err
	}
	p := &r.Players[idx]
	p.Status = StatusStand
	r.Message = fmt.Sprintf("%s stands with %d", p.Username, card.HandValue(p.Hand))
	r.touch()
	return nil
}

func (r *Room) turnOf(userID string) (int, error) {
	if r.GameStatus != GamePlaying {
		return -1, ErrWrongPhase
	}
	idx := r.PlayerIndex(userID)
	if idx < 0 {
		return -1, ErrNotSeated
	}
	if idx != r.CurrentTurnIndex {
		return -1, ErrOutOfTurn
	}
	if r.Players[idx].Status != StatusPlaying {
		return -1, ErrHandFrozen
	}
	return idx, nil
}

// AdvanceTurn scans forward from the current seat for the next player
// still playing. It returns false when none remains and the round must
// settle; the turn index is then left past the last seat.
func (r *Room) AdvanceTurn() bool {
	if r.GameStatus != GamePlaying {
		return false
	}
	next := r.CurrentTurnIndex + 1
	for next < len(r.Players) && r.Players[next].Status != StatusPlaying {
		next++
	}
	r.CurrentTurnIndex = next
	if next >= len(r.Players) {
		return false
	}
	r.Message = fmt.Sprintf("%s is playing...", r.Players[next].Username)
	r.touch()
	return true
}

// TurnDone reports whether the acting seat has finished and the turn
// should move on.
func (r *Room) TurnDone() bool {
	p := r.CurrentPlayer()
	return p == nil || p.Status.Terminal()
}
