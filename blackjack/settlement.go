package blackjack

import (
	"fmt"
	"strings"

	"ojack/card"
)

// PlayerOutcome is one seat's settlement line.
type PlayerOutcome struct {
	UserID    string `json:"userId"`
	Username  string `json:"username"`
	Bet       int    `json:"bet"`
	Value     int    `json:"value"`
	Blackjack bool   `json:"blackjack"`
	FiveCard  bool   `json:"fiveCard"`
	Winner    bool   `json:"winner"`
	Delta     int    `json:"delta"`
}

// RoundResult carries the settled round for the ledger and notifier.
type RoundResult struct {
	RoundNumber int             `json:"roundNumber"`
	Winners     []string        `json:"winners"`
	WinnerShare int             `json:"winnerShare"`
	LosersPot   int             `json:"losersPot"`
	AllBusted   bool            `json:"allBusted"`
	Outcomes    []PlayerOutcome `json:"outcomes"`
	Message     string          `json:"message"`
}

// EndRound settles the round. Natural blackjacks win outright; otherwise
// the highest effective hand value among non-busted players wins, split
// on ties. Each winner takes floor(losersPot/len(winners)), the integer
// remainder is forfeited, and every loser pays their full bet but never
// below a zero balance. If everyone busted, bets are returned untouched.
//
// balances maps userID to the current ledger balance and is only read;
// the caller applies the deltas.
func (r *Room) EndRound(balances map[string]int) (*RoundResult, error) {
	if r.GameStatus != GamePlaying {
		return nil, ErrWrongPhase
	}

	var active []*PlayerInGame
	for i := range r.Players {
		if r.Players[i].Status != StatusBust {
			active = append(active, &r.Players[i])
		}
	}

	var winners []string
	var msg string
	switch {
	case len(active) == 0:
		msg = "Everyone busted! Bets returned."
	default:
		for _, p := range active {
			if card.IsBlackjack(p.Hand) {
				winners = append(winners, p.UserID)
			}
		}
		if len(winners) == 0 {
			best := 0
			for _, p := range active {
				if v := card.EffectiveHandValue(p.Hand); v > best {
					best = v
				}
			}
			for _, p := range active {
				if card.EffectiveHandValue(p.Hand) == best {
					winners = append(winners, p.UserID)
				}
			}
		}
		if len(winners) == 1 {
			w := r.Player(winners[0])
			label := ""
			if card.IsBlackjack(w.Hand) {
				label = " - BLACKJACK!"
			} else if card.IsFiveCardCharlie(w.Hand) {
				label = " - five-card charlie!"
			}
			msg = fmt.Sprintf("%s wins! (%d%s)", w.Username, card.EffectiveHandValue(w.Hand), label)
		} else {
			names := make([]string, 0, len(winners))
			for _, id := range winners {
				names = append(names, r.Player(id).Username)
			}
			msg = "Push: " + strings.Join(names, ", ")
		}
	}

	isWinner := make(map[string]bool, len(winners))
	for _, id := range winners {
		isWinner[id] = true
	}
	losersPot := 0
	for i := range r.Players {
		if !isWinner[r.Players[i].UserID] {
			losersPot += r.Players[i].Bet
		}
	}
	share := 0
	if len(winners) > 0 {
		share = losersPot / len(winners)
	}

	result := &RoundResult{
		RoundNumber: r.RoundNumber,
		Winners:     winners,
		WinnerShare: share,
		LosersPot:   losersPot,
		AllBusted:   len(winners) == 0,
		Message:     msg,
	}
	for i := range r.Players {
		p := &r.Players[i]
		out := PlayerOutcome{
			UserID:    p.UserID,
			Username:  p.Username,
			Bet:       p.Bet,
			Value:     card.EffectiveHandValue(p.Hand),
			Blackjack: card.IsBlackjack(p.Hand),
			FiveCard:  card.IsFiveCardCharlie(p.Hand),
			Winner:    isWinner[p.UserID],
		}
		if !result.AllBusted {
			if out.Winner {
				out.Delta = share
			} else {
				loss := p.Bet
				if bal, ok := balances[p.UserID]; ok && loss > bal {
					loss = bal
				}
				out.Delta = -loss
			}
		}
		result.Outcomes = append(result.Outcomes, out)
	}

	if err := r.setGameStatus(GameRoundEnd); err != nil {
		return nil, err
	}
	r.Winners = winners
	r.Message = msg
	r.touch()
	return result, nil
}

// PrepareNextRound drops seats that can no longer cover the minimum bet,
// resets the survivors, and opens a new betting phase. With fewer than
// two eligible seats the room falls back to waiting. The round counter
// is not reset; it increments on the next deal.
func (r *Room) PrepareNextRound(balances map[string]int) error {
	if r.GameStatus != GameRoundEnd {
		return ErrWrongPhase
	}
	kept := r.Players[:0]
	for _, p := range r.Players {
		if balances[p.UserID] < r.MinBet {
			continue
		}
		p.Hand = []card.Card{}
		p.Bet = 0
		p.Status = StatusWaiting
		kept = append(kept, p)
	}
	r.Players = kept
	r.Deck = nil
	r.Pot = 0
	r.Winners = nil
	r.CurrentTurnIndex = 0
	if len(r.Players) < MinPlayersToStart {
		if err := r.setGameStatus(GameWaiting); err != nil {
			return err
		}
		r.Message = "Not enough players. Waiting for new players..."
	} else {
		if err := r.setGameStatus(GameBetting); err != nil {
			return err
		}
		r.Message = "New round! Place your bets!"
	}
	r.touch()
	return nil
}
