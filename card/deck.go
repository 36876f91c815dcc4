package card

import "math/rand"

// NewShoe builds numDecks standard 52-card sets (no jokers) and applies a
// uniform random permutation. The shoe is consumed by popping from the end
// and is never re-shuffled mid-round.
func NewShoe(numDecks int) []Card {
	deck := make([]Card, 0, numDecks*52)
	for d := 0; d < numDecks; d++ {
		for _, suit := range Suits {
			for _, rank := range Ranks {
				deck = append(deck, Card{Suit: suit, Rank: rank})
			}
		}
	}
	rand.Shuffle(len(deck), func(i, j int) { deck[i], deck[j] = deck[j], deck[i] })
	return deck
}
