package card

// MaxHandCards is the hard card limit per hand; reaching it without busting
// is a five-card charlie.
const MaxHandCards = 5

// HandValue sums rank values counting every ace as 11, then drops aces to 1
// (subtract 10) while the total exceeds 21 and a soft ace remains.
func HandValue(hand []Card) int {
	value := 0
	aces := 0
	for _, c := range hand {
		if c.Rank == RankAce {
			aces++
		}
		value += c.Rank.Value()
	}
	for value > 21 && aces > 0 {
		value -= 10
		aces--
	}
	return value
}

// IsBlackjack reports a natural: exactly two cards totaling 21.
func IsBlackjack(hand []Card) bool {
	return len(hand) == 2 && HandValue(hand) == 21
}

// IsFiveCardCharlie reports a hand that reached the card limit without
// busting.
func IsFiveCardCharlie(hand []Card) bool {
	return len(hand) == MaxHandCards && HandValue(hand) <= 21
}

// EffectiveHandValue is the ranking value: a five-card charlie always
// competes as 21, everything else at face value.
func EffectiveHandValue(hand []Card) int {
	if IsFiveCardCharlie(hand) {
		return 21
	}
	return HandValue(hand)
}
