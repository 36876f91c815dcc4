package blackjack

import (
	"encoding/json"
	"testing"

	"ojack/card"
)

func c(rank card.Rank, suit card.Suit) card.Card {
	return card.Card{Suit: suit, Rank: rank}
}

func testRoom(t *testing.T, players ...string) *Room {
	t.Helper()
	if len(players) == 0 {
		t.Fatal("need at least one player")
	}
	r := NewRoom("r1", "Test Table", players[0], players[0], false, "", 10)
	for _, name := range players[1:] {
		if err := r.AddPlayer(name, name, ""); err != nil {
			t.Fatalf("AddPlayer(%s): %v", name, err)
		}
	}
	return r
}

func TestNewRoomDefaults(t *testing.T) {
	r := NewRoom("r1", "Table", "u1", "alice", true, "4242", 0)
	if r.GameStatus != GameWaiting {
		t.Fatalf("status = %s, want waiting", r.GameStatus)
	}
	if r.MinBet != DefaultMinBet {
		t.Fatalf("minBet = %d, want %d", r.MinBet, DefaultMinBet)
	}
	if r.MaxPlayers != DefaultMaxPlayers {
		t.Fatalf("maxPlayers = %d, want %d", r.MaxPlayers, DefaultMaxPlayers)
	}
	if len(r.Players) != 1 || r.Players[0].UserID != "u1" {
		t.Fatalf("creator not seated: %+v", r.Players)
	}
	if r.LastUpdate == 0 {
		t.Fatal("lastUpdate not stamped")
	}
}

func TestAddPlayerRules(t *testing.T) {
	r := NewRoom("r1", "Table", "u1", "alice", true, "4242", 10)

	if err := r.AddPlayer("u2", "bob", "wrong"); err != ErrBadCode {
		t.Fatalf("bad code: got %v, want ErrBadCode", err)
	}
	if err := r.AddPlayer("u2", "bob", "4242"); err != nil {
		t.Fatalf("join: %v", err)
	}
	// re-joining the same seat is a no-op
	if err := r.AddPlayer("u2", "bob", "whatever"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if len(r.Players) != 2 {
		t.Fatalf("players = %d, want 2", len(r.Players))
	}

	if err := r.StartGame("u1"); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if err := r.AddPlayer("u3", "carol", "4242"); err != ErrGameInProgress {
		t.Fatalf("join mid-game: got %v, want ErrGameInProgress", err)
	}
}

func TestAddPlayerFull(t *testing.T) {
	r := testRoom(t, "p0", "p1", "p2", "p3", "p4", "p5", "p6", "p7")
	if err := r.AddPlayer("p8", "p8", ""); err != ErrRoomFull {
		t.Fatalf("got %v, want ErrRoomFull", err)
	}
}

func TestSpectatorPromotion(t *testing.T) {
	r := testRoom(t, "u1", "u2")
	if err := r.AddSpectator("u3", "carol"); err != nil {
		t.Fatalf("AddSpectator: %v", err)
	}
	if !r.IsSpectator("u3") {
		t.Fatal("u3 should be spectating")
	}
	if err := r.AddSpectator("u1", "alice"); err != ErrAlreadySeated {
		t.Fatalf("seated player spectating: got %v, want ErrAlreadySeated", err)
	}
	if err := r.AddPlayer("u3", "carol", ""); err != nil {
		t.Fatalf("promote: %v", err)
	}
	if r.IsSpectator("u3") {
		t.Fatal("u3 still spectating after taking a seat")
	}
	if r.PlayerIndex("u3") < 0 {
		t.Fatal("u3 not seated")
	}
}

func TestStartGameGuards(t *testing.T) {
	r := testRoom(t, "u1")
	if err := r.StartGame("u1"); err != ErrNotEnoughPlayers {
		t.Fatalf("solo start: got %v, want ErrNotEnoughPlayers", err)
	}
	if err := r.AddPlayer("u2", "bob", ""); err != nil {
		t.Fatal(err)
	}
	if err := r.StartGame("u2"); err != ErrNotCreator {
		t.Fatalf("non-creator start: got %v, want ErrNotCreator", err)
	}
	if err := r.StartGame("u1"); err != nil {
		t.Fatalf("StartGame: %v", err)
	}
	if r.GameStatus != GameBetting {
		t.Fatalf("status = %s, want betting", r.GameStatus)
	}
	if err := r.StartGame("u1"); err != ErrWrongPhase {
		t.Fatalf("double start: got %v, want ErrWrongPhase", err)
	}
}

func TestPlaceBetClamping(t *testing.T) {
	r := testRoom(t, "u1", "u2")
	if err := r.PlaceBet("u1", 50, 1000); err != ErrWrongPhase {
		t.Fatalf("bet while waiting: got %v, want ErrWrongPhase", err)
	}
	if err := r.StartGame("u1"); err != nil {
		t.Fatal(err)
	}

	cases := []struct {
		amount, balance, want int
	}{
		{5, 1000, 10},   // below minimum, raised
		{50, 1000, 50},  // in range
		{500, 120, 120}, // above balance, capped
	}
	for _, tc := range cases {
		if err := r.PlaceBet("u1", tc.amount, tc.balance); err != nil {
			t.Fatalf("PlaceBet(%d, %d): %v", tc.amount, tc.balance, err)
		}
		if got := r.Player("u1").Bet; got != tc.want {
			t.Fatalf("bet(%d, %d) = %d, want %d", tc.amount, tc.balance, got, tc.want)
		}
	}
	if r.Player("u1").Status != StatusReady {
		t.Fatalf("status = %s, want ready", r.Player("u1").Status)
	}

	if err := r.PlaceBet("u2", 50, 5); err != ErrInsufficientBalance {
		t.Fatalf("broke player: got %v, want ErrInsufficientBalance", err)
	}
	if err := r.PlaceBet("ghost", 50, 1000); err != ErrNotSeated {
		t.Fatalf("outsider: got %v, want ErrNotSeated", err)
	}
}

// bettingRoom returns a room in the betting phase with every player
// ready on a 20 bet.
func bettingRoom(t *testing.T, players ...string) *Room {
	t.Helper()
	r := testRoom(t, players...)
	if err := r.StartGame(players[0]); err != nil {
		t.Fatal(err)
	}
	for _, p := range players {
		if err := r.PlaceBet(p, 20, 1000); err != nil {
			t.Fatal(err)
		}
	}
	return r
}

// shoe builds a deck that deals the given cards in order. Cards are
// drawn from the end, so the list is reversed here.
func shoe(cards ...card.Card) []card.Card {
	out := make([]card.Card, len(cards))
	for i, cc := range cards {
		out[len(cards)-1-i] = cc
	}
	return out
}

func TestDealMarksNaturalsAndPicksFirstTurn(t *testing.T) {
	r := bettingRoom(t, "u1", "u2", "u3")
	// u1 gets a natural, u2 and u3 play on.
	s := shoe(
		c(card.RankAce, card.Spades), c(card.RankKing, card.Hearts),
		c(card.RankNine, card.Clubs), c(card.RankFive, card.Diamonds),
		c(card.RankTen, card.Hearts), c(card.RankSeven, card.Spades),
		c(card.RankTwo, card.Clubs),
	)
	done, err := r.Deal(s)
	if err != nil {
		t.Fatalf("Deal: %v", err)
	}
	if done {
		t.Fatal("round should continue")
	}
	if r.GameStatus != GamePlaying {
		t.Fatalf("status = %s, want playing", r.GameStatus)
	}
	if got := r.Players[0].Status; got != StatusBlackjack {
		t.Fatalf("u1 status = %s, want blackjack", got)
	}
	if r.CurrentTurnIndex != 1 {
		t.Fatalf("turn = %d, want 1 (first playing seat)", r.CurrentTurnIndex)
	}
	if r.RoundNumber != 1 {
		t.Fatalf("round = %d, want 1", r.RoundNumber)
	}
	if r.Pot != 60 {
		t.Fatalf("pot = %d, want 60", r.Pot)
	}
}

func TestDealAllNaturals(t *testing.T) {
	r := bettingRoom(t, "u1", "u2")
	s := shoe(
		c(card.RankAce, card.Spades), c(card.RankKing, card.Hearts),
		c(card.RankAce, card.Clubs), c(card.RankQueen, card.Diamonds),
	)
	done, err := r.Deal(s)
	if err != nil {
		t.Fatalf("Deal: %v", err)
	}
	if !done {
		t.Fatal("deal with no playable seat must end immediately")
	}
	if r.CurrentTurnIndex < len(r.Players) {
		t.Fatalf("turn = %d, want past last seat", r.CurrentTurnIndex)
	}
}

func TestDealRequiresEveryoneReady(t *testing.T) {
	r := testRoom(t, "u1", "u2")
	if err := r.StartGame("u1"); err != nil {
		t.Fatal(err)
	}
	if err := r.PlaceBet("u1", 20, 1000); err != nil {
		t.Fatal(err)
	}
	if _, err := r.Deal(card.NewShoe(NumDecks)); err != ErrNotAllReady {
		t.Fatalf("got %v, want ErrNotAllReady", err)
	}
}

// playingRoom deals a fixed shoe to two players: u1 holds 10+7, u2
// holds 9+5, and extraDraws stays on top for subsequent hits.
func playingRoom(t *testing.T, extraDraws ...card.Card) *Room {
	t.Helper()
	r := bettingRoom(t, "u1", "u2")
	dealt := []card.Card{
		c(card.RankTen, card.Hearts), c(card.RankSeven, card.Spades),
		c(card.RankNine, card.Clubs), c(card.RankFive, card.Diamonds),
	}
	done, err := r.Deal(shoe(append(dealt, extraDraws...)...))
	if err != nil {
		t.Fatalf("Deal: %v", err)
	}
	if done {
		t.Fatal("unexpected immediate round end")
	}
	return r
}

func TestHitBust(t *testing.T) {
	r := playingRoom(t, c(card.RankKing, card.Clubs))
	if err := r.Hit("u1"); err != nil {
		t.Fatalf("Hit: %v", err)
	}
	if got := r.Players[0].Status; got != StatusBust {
		t.Fatalf("status = %s, want bust", got)
	}
}

func TestHitAutoStandOn21(t *testing.T) {
	r := playingRoom(t, c(card.RankFour, card.Clubs))
	if err := r.Hit("u1"); err != nil {
		t.Fatalf("Hit: %v", err)
	}
	if got := r.Players[0].Status; got != StatusStand {
		t.Fatalf("status = %s, want stand", got)
	}
}

func TestHitFiveCardCharlie(t *testing.T) {
	r := bettingRoom(t, "u1", "u2")
	dealt := []card.Card{
		c(card.RankTwo, card.Hearts), c(card.RankThree, card.Spades),
		c(card.RankNine, card.Clubs), c(card.RankFive, card.Diamonds),
	}
	draws := []card.Card{
		c(card.RankTwo, card.Clubs), c(card.RankThree, card.Diamonds), c(card.RankFour, card.Hearts),
	}
	if _, err := r.Deal(shoe(append(dealt, draws...)...)); err != nil {
		t.Fatal(err)
	}
	for i := 0; i < 3; i++ {
		if err := r.Hit("u1"); err != nil {
			t.Fatalf("hit %d: %v", i, err)
		}
	}
	if got := r.Players[0].Status; got != StatusFiveCard {
		t.Fatalf("status = %s, want fiveCard", got)
	}
	if len(r.Players[0].Hand) != card.MaxHandCards {
		t.Fatalf("hand size = %d, want %d", len(r.Players[0].Hand), card.MaxHandCards)
	}
	// frozen hand cannot act again
	if err := r.Hit("u1"); err != ErrHandFrozen {
		t.Fatalf("sixth card: got %v, want ErrHandFrozen", err)
	}
}

func TestTurnEnforcement(t *testing.T) {
	r := playingRoom(t, c(card.RankTwo, card.Clubs))
	if err := r.Hit("u2"); err != ErrOutOfTurn {
		t.Fatalf("out of turn hit: got %v, want ErrOutOfTurn", err)
	}
	if err := r.Stand("ghost"); err != ErrNotSeated {
		t.Fatalf("outsider: got %v, want ErrNotSeated", err)
	}
	if err := r.Stand("u1"); err != nil {
		t.Fatalf("Stand: %v", err)
	}
	if !r.TurnDone() {
		t.Fatal("turn should be done after stand")
	}
	if !r.AdvanceTurn() {
		t.Fatal("u2 should still be playable")
	}
	if r.CurrentTurnIndex != 1 {
		t.Fatalf("turn = %d, want 1", r.CurrentTurnIndex)
	}
	if err := r.Stand("u2"); err != nil {
		t.Fatal(err)
	}
	if r.AdvanceTurn() {
		t.Fatal("no playable seat should remain")
	}
}

func TestAdvanceTurnSkipsFinishedSeats(t *testing.T) {
	r := bettingRoom(t, "u1", "u2", "u3")
	s := shoe(
		c(card.RankTen, card.Hearts), c(card.RankSeven, card.Spades),
		c(card.RankAce, card.Clubs), c(card.RankQueen, card.Diamonds), // u2 natural
		c(card.RankNine, card.Clubs), c(card.RankFive, card.Diamonds),
	)
	if _, err := r.Deal(s); err != nil {
		t.Fatal(err)
	}
	if err := r.Stand("u1"); err != nil {
		t.Fatal(err)
	}
	if !r.AdvanceTurn() {
		t.Fatal("u3 should be playable")
	}
	if r.CurrentTurnIndex != 2 {
		t.Fatalf("turn = %d, want 2 (natural skipped)", r.CurrentTurnIndex)
	}
}

func TestLeaveDuringGameResetsRoom(t *testing.T) {
	r := playingRoom(t, c(card.RankTwo, card.Clubs))
	r.RemoveUser("u2")
	if r.GameStatus != GameWaiting {
		t.Fatalf("status = %s, want waiting", r.GameStatus)
	}
	p := r.Player("u1")
	if len(p.Hand) != 0 || p.Bet != 0 || p.Status != StatusWaiting {
		t.Fatalf("seat not reset: %+v", p)
	}
	if r.Pot != 0 {
		t.Fatalf("pot = %d, want 0", r.Pot)
	}
}

func TestLeaveShiftsTurnIndex(t *testing.T) {
	r := bettingRoom(t, "u1", "u2", "u3")
	s := shoe(
		c(card.RankTen, card.Hearts), c(card.RankSeven, card.Spades),
		c(card.RankNine, card.Clubs), c(card.RankFive, card.Diamonds),
		c(card.RankEight, card.Hearts), c(card.RankSix, card.Spades),
		c(card.RankTwo, card.Clubs),
	)
	if _, err := r.Deal(s); err != nil {
		t.Fatal(err)
	}
	if err := r.Stand("u1"); err != nil {
		t.Fatal(err)
	}
	if !r.AdvanceTurn() {
		t.Fatal("u2 should be playable")
	}
	// u1 leaves; the acting seat (u2) slides from index 1 to 0
	r.RemoveUser("u1")
	if r.GameStatus != GamePlaying {
		t.Fatalf("status = %s, want playing", r.GameStatus)
	}
	if r.CurrentTurnIndex != 0 {
		t.Fatalf("turn = %d, want 0", r.CurrentTurnIndex)
	}
	if err := r.Hit("u2"); err != nil {
		t.Fatalf("acting player blocked after reindex: %v", err)
	}
}

func TestRemoveLastPlayerEmptiesRoom(t *testing.T) {
	r := testRoom(t, "u1")
	r.RemoveUser("u1")
	if !r.Empty() {
		t.Fatal("room should be empty")
	}
}

func TestRoomJSONRoundTrip(t *testing.T) {
	r := playingRoom(t, c(card.RankTwo, card.Clubs))
	blob, err := json.Marshal(r)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var back Room
	if err := json.Unmarshal(blob, &back); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if back.GameStatus != GamePlaying {
		t.Fatalf("status = %s, want playing", back.GameStatus)
	}
	if back.Players[0].Status != StatusPlaying {
		t.Fatalf("player status = %s, want playing", back.Players[0].Status)
	}
	if len(back.Deck) != len(r.Deck) {
		t.Fatalf("deck = %d cards, want %d", len(back.Deck), len(r.Deck))
	}
}

func TestGameStatusUnknownFallsBackToWaiting(t *testing.T) {
	var s GameStatus
	if err := json.Unmarshal([]byte(`"exploded"`), &s); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if s != GameWaiting {
		t.Fatalf("status = %s, want waiting", s)
	}
}
