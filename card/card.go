package card

import "strconv"

// Rank is the printed face of a card: "A", "2".."10", "J", "Q", "K".
type Rank string

const (
	RankAce   Rank = "A"
	RankTwo   Rank = "2"
	RankThree Rank = "3"
	RankFour  Rank = "4"
	RankFive  Rank = "5"
	RankSix   Rank = "6"
	RankSeven Rank = "7"
	RankEight Rank = "8"
	RankNine  Rank = "9"
	RankTen   Rank = "10"
	RankJack  Rank = "J"
	RankQueen Rank = "Q"
	RankKing  Rank = "K"
)

var Ranks = []Rank{
	RankAce, RankTwo, RankThree, RankFour, RankFive, RankSix, RankSeven,
	RankEight, RankNine, RankTen, RankJack, RankQueen, RankKing,
}

// Value returns the counting value of the rank. Aces count as 11; the
// soft-ace reduction lives in HandValue.
func (r Rank) Value() int {
	switch r {
	case RankAce:
		return 11
	case RankJack, RankQueen, RankKing:
		return 10
	default:
		n, _ := strconv.Atoi(string(r))
		return n
	}
}

// Card is an immutable suit/rank pair. The zero value is not a valid card.
type Card struct {
	Suit Suit `json:"suit"`
	Rank Rank `json:"rank"`
}

func (c Card) String() string {
	return string(c.Rank) + c.Suit.Symbol()
}
