// Package room coordinates the shared room list. Every operation is a
// fresh read-modify-write of the rooms blob, and the follow-up actions
// the game needs (dealing once everyone bet, advancing past finished
// turns, settling the round) run on fingerprinted timers so a stale
// timer never clobbers state another writer moved on.
package room

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"ojack/blackjack"
	"ojack/card"
	"ojack/internal/ledger"
	"ojack/internal/notify"
	"ojack/internal/store"
)

var (
	ErrRoomNotFound      = errors.New("room not found")
	ErrSpectateForbidden = errors.New("spectating requires super admin")
)

// Timers are the delays driving automatic game progression.
type Timers struct {
	AutoDeal    time.Duration
	AutoAdvance time.Duration
	RoomTimeout time.Duration
}

func DefaultTimers() Timers {
	return Timers{
		AutoDeal:    500 * time.Millisecond,
		AutoAdvance: time.Second,
		RoomTimeout: time.Hour,
	}
}

type Service struct {
	mu     sync.Mutex
	st     store.Store
	users  *ledger.Service
	tg     *notify.Telegram
	sched  *Scheduler
	timers Timers
}

func NewService(st store.Store, users *ledger.Service, tg *notify.Telegram, timers Timers) *Service {
	if timers.AutoDeal <= 0 {
		timers.AutoDeal = DefaultTimers().AutoDeal
	}
	if timers.AutoAdvance <= 0 {
		timers.AutoAdvance = DefaultTimers().AutoAdvance
	}
	if timers.RoomTimeout <= 0 {
		timers.RoomTimeout = DefaultTimers().RoomTimeout
	}
	return &Service{
		st:     st,
		users:  users,
		tg:     tg,
		sched:  NewScheduler(),
		timers: timers,
	}
}

// Close cancels all pending timers.
func (s *Service) Close() {
	s.sched.Stop()
}

func (s *Service) loadRooms(ctx context.Context) ([]blackjack.Room, error) {
	var rooms []blackjack.Room
	if _, err := s.st.Load(ctx, store.KeyRooms, &rooms); err != nil {
		return nil, fmt.Errorf("load rooms: %w", err)
	}
	return rooms, nil
}

func (s *Service) saveRooms(ctx context.Context, rooms []blackjack.Room) error {
	if err := s.st.Save(ctx, store.KeyRooms, rooms); err != nil {
		return fmt.Errorf("save rooms: %w", err)
	}
	return nil
}

// Rooms returns the current room list.
func (s *Service) Rooms(ctx context.Context) ([]blackjack.Room, error) {
	return s.loadRooms(ctx)
}

// Room returns one room by id.
func (s *Service) Room(ctx context.Context, roomID string) (blackjack.Room, error) {
	rooms, err := s.loadRooms(ctx)
	if err != nil {
		return blackjack.Room{}, err
	}
	for _, r := range rooms {
		if r.ID == roomID {
			return r, nil
		}
	}
	return blackjack.Room{}, ErrRoomNotFound
}

// update applies fn to the addressed room under a fresh read and writes
// the list back. Rooms left empty by fn are deleted.
func (s *Service) update(ctx context.Context, roomID string, fn func(*blackjack.Room) error) (blackjack.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateLocked(ctx, roomID, fn)
}

func (s *Service) updateLocked(ctx context.Context, roomID string, fn func(*blackjack.Room) error) (blackjack.Room, error) {
	rooms, err := s.loadRooms(ctx)
	if err != nil {
		return blackjack.Room{}, err
	}
	for i := range rooms {
		if rooms[i].ID != roomID {
			continue
		}
		if err := fn(&rooms[i]); err != nil {
			return blackjack.Room{}, err
		}
		updated := rooms[i]
		if updated.Empty() {
			rooms = append(rooms[:i], rooms[i+1:]...)
			s.sched.Cancel(roomID)
		}
		if err := s.saveRooms(ctx, rooms); err != nil {
			return blackjack.Room{}, err
		}
		return updated, nil
	}
	return blackjack.Room{}, ErrRoomNotFound
}

// CreateRoom opens a new room with the creator seated alone.
func (s *Service) CreateRoom(ctx context.Context, creator ledger.User, name string, isPrivate bool, code string, minBet int) (blackjack.Room, error) {
	if strings.TrimSpace(name) == "" {
		name = creator.Username + "'s table"
	}
	r := blackjack.NewRoom(uuid.NewString(), name, creator.ID, creator.Username, isPrivate, code, minBet)

	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, err := s.loadRooms(ctx)
	if err != nil {
		return blackjack.Room{}, err
	}
	rooms = append(rooms, *r)
	if err := s.saveRooms(ctx, rooms); err != nil {
		return blackjack.Room{}, err
	}
	log.Printf("[Room %s] created by %s (private=%v minBet=%d)", r.ID, creator.Username, isPrivate, r.MinBet)
	return *r, nil
}

// JoinRoom seats the user.
func (s *Service) JoinRoom(ctx context.Context, user ledger.User, roomID, code string) (blackjack.Room, error) {
	return s.update(ctx, roomID, func(r *blackjack.Room) error {
		return r.AddPlayer(user.ID, user.Username, code)
	})
}

// SpectateRoom adds the user as a watcher. Super admin only.
func (s *Service) SpectateRoom(ctx context.Context, user ledger.User, roomID string) (blackjack.Room, error) {
	if !user.IsSuperAdmin {
		return blackjack.Room{}, ErrSpectateForbidden
	}
	return s.update(ctx, roomID, func(r *blackjack.Room) error {
		return r.AddSpectator(user.ID, user.Username)
	})
}

// LeaveRoom removes the user from seats and spectators. The room is
// deleted once its last player leaves. Unknown rooms are a no-op so
// leaving is idempotent. A leave can itself complete the betting or
// playing phase, so the remaining seats are re-checked for a pending
// deal or advance.
func (s *Service) LeaveRoom(ctx context.Context, userID, roomID string) error {
	updated, err := s.update(ctx, roomID, func(r *blackjack.Room) error {
		r.RemoveUser(userID)
		return nil
	})
	if errors.Is(err, ErrRoomNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if !updated.Empty() {
		s.scheduleProgress(&updated)
	}
	return nil
}

// StartGame opens the betting phase. Creator only.
func (s *Service) StartGame(ctx context.Context, userID, roomID string) (blackjack.Room, error) {
	return s.update(ctx, roomID, func(r *blackjack.Room) error {
		return r.StartGame(userID)
	})
}

// PlaceBet commits the user's wager, clamped against their ledger
// balance. Once every seat is ready the deal is scheduled.
func (s *Service) PlaceBet(ctx context.Context, userID, roomID string, amount int) (blackjack.Room, error) {
	u, err := s.users.Get(ctx, userID)
	if err != nil {
		return blackjack.Room{}, err
	}
	updated, err := s.update(ctx, roomID, func(r *blackjack.Room) error {
		return r.PlaceBet(userID, amount, u.Balance)
	})
	if err != nil {
		return blackjack.Room{}, err
	}
	s.scheduleProgress(&updated)
	return updated, nil
}

// Hit deals the acting player one card; a finished turn schedules the
// advance timer.
func (s *Service) Hit(ctx context.Context, userID, roomID string) (blackjack.Room, error) {
	updated, err := s.update(ctx, roomID, func(r *blackjack.Room) error {
		return r.Hit(userID)
	})
	if err != nil {
		return blackjack.Room{}, err
	}
	s.scheduleProgress(&updated)
	return updated, nil
}

// Stand ends the acting player's turn and schedules the advance timer.
func (s *Service) Stand(ctx context.Context, userID, roomID string) (blackjack.Room, error) {
	updated, err := s.update(ctx, roomID, func(r *blackjack.Room) error {
		return r.Stand(userID)
	})
	if err != nil {
		return blackjack.Room{}, err
	}
	s.scheduleProgress(&updated)
	return updated, nil
}

// NextRound opens the next betting phase after settlement, dropping
// players who can no longer cover the minimum bet. Creator only, same
// as StartGame.
func (s *Service) NextRound(ctx context.Context, userID, roomID string) (blackjack.Room, error) {
	balances, err := s.users.Balances(ctx)
	if err != nil {
		return blackjack.Room{}, err
	}
	return s.update(ctx, roomID, func(r *blackjack.Room) error {
		if userID != r.CreatorID {
			return blackjack.ErrNotCreator
		}
		return r.PrepareNextRound(balances)
	})
}

// scheduleProgress arms whichever timer the room's new state calls for:
// the deal once every seat is ready, or the advance once the acting
// seat is finished or gone.
func (s *Service) scheduleProgress(r *blackjack.Room) {
	switch {
	case r.GameStatus == blackjack.GameBetting &&
		len(r.Players) >= blackjack.MinPlayersToStart && r.AllReady():
		s.scheduleDeal(r)
	case r.GameStatus == blackjack.GamePlaying && r.TurnDone():
		s.scheduleAdvance(r)
	}
}

func (s *Service) scheduleDeal(r *blackjack.Room) {
	fp := FingerprintOf(r)
	roomID := r.ID
	s.sched.Schedule(roomID, s.timers.AutoDeal, func() {
		s.autoDeal(roomID, fp)
	})
}

func (s *Service) scheduleAdvance(r *blackjack.Room) {
	fp := FingerprintOf(r)
	roomID := r.ID
	s.sched.Schedule(roomID, s.timers.AutoAdvance, func() {
		s.autoAdvance(roomID, fp)
	})
}

// autoDeal fires after the betting phase settles down. A fingerprint
// mismatch means someone else already moved the room on.
func (s *Service) autoDeal(roomID string, fp Fingerprint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, idx, err := s.findLocked(ctx, roomID)
	if err != nil {
		return
	}
	r := &rooms[idx]
	if FingerprintOf(r) != fp {
		return
	}
	done, err := r.Deal(card.NewShoe(blackjack.NumDecks))
	if err != nil {
		if !blackjack.IsStale(err) {
			log.Printf("[Room %s] deal failed: %v", roomID, err)
		}
		return
	}
	log.Printf("[Room %s] round %d dealt to %d players", roomID, r.RoundNumber, len(r.Players))
	if done {
		s.finishRound(ctx, rooms, idx)
		return
	}
	if err := s.saveRooms(ctx, rooms); err != nil {
		log.Printf("[Room %s] save after deal failed: %v", roomID, err)
	}
}

// autoAdvance fires a moment after the acting seat finishes, either
// handing the turn onward or settling the round.
func (s *Service) autoAdvance(roomID string, fp Fingerprint) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	s.mu.Lock()
	defer s.mu.Unlock()
	rooms, idx, err := s.findLocked(ctx, roomID)
	if err != nil {
		return
	}
	r := &rooms[idx]
	if FingerprintOf(r) != fp {
		return
	}
	if r.GameStatus != blackjack.GamePlaying || !r.TurnDone() {
		return
	}
	if r.AdvanceTurn() {
		if err := s.saveRooms(ctx, rooms); err != nil {
			log.Printf("[Room %s] save after advance failed: %v", roomID, err)
		}
		return
	}
	s.finishRound(ctx, rooms, idx)
}

// finishRound settles the addressed room. Balances are written before
// the room so a reader never sees a settled room with stale balances.
func (s *Service) finishRound(ctx context.Context, rooms []blackjack.Room, idx int) {
	r := &rooms[idx]
	balances, err := s.users.Balances(ctx)
	if err != nil {
		log.Printf("[Room %s] settlement balances: %v", r.ID, err)
		return
	}
	res, err := r.EndRound(balances)
	if err != nil {
		if !blackjack.IsStale(err) {
			log.Printf("[Room %s] settle failed: %v", r.ID, err)
		}
		return
	}

	lines := make([]ledger.SettlementLine, 0, len(res.Outcomes))
	for _, o := range res.Outcomes {
		lines = append(lines, ledger.SettlementLine{UserID: o.UserID, Bet: o.Bet, Winner: o.Winner})
	}
	if _, err := s.users.ApplySettlement(ctx, lines, res.WinnerShare); err != nil {
		log.Printf("[Room %s] apply settlement: %v", r.ID, err)
		return
	}
	if err := s.saveRooms(ctx, rooms); err != nil {
		log.Printf("[Room %s] save after settle failed: %v", r.ID, err)
		return
	}
	log.Printf("[Room %s] round %d settled: winners=%v share=%d", r.ID, res.RoundNumber, res.Winners, res.WinnerShare)
	s.notifyRound(ctx, res)
}

func (s *Service) findLocked(ctx context.Context, roomID string) ([]blackjack.Room, int, error) {
	rooms, err := s.loadRooms(ctx)
	if err != nil {
		log.Printf("[Room %s] load failed: %v", roomID, err)
		return nil, 0, err
	}
	for i := range rooms {
		if rooms[i].ID == roomID {
			return rooms, i, nil
		}
	}
	return nil, 0, ErrRoomNotFound
}

// notifyRound reports a settled round to Telegram. All-bust rounds are
// not reported, matching the refund semantics.
func (s *Service) notifyRound(ctx context.Context, res *blackjack.RoundResult) {
	if s.tg == nil || len(res.Winners) == 0 {
		return
	}
	lines := []string{fmt.Sprintf("<b>Hand #%d results</b>", res.RoundNumber), ""}
	for _, o := range res.Outcomes {
		label := ""
		if o.FiveCard {
			label = " [5CC]"
		}
		change := fmt.Sprintf("-%d", o.Bet)
		if o.Winner {
			change = fmt.Sprintf("+%d", res.WinnerShare)
		}
		lines = append(lines, fmt.Sprintf("%s: %d%s (%s coins)", o.Username, o.Value, label, change))
	}
	s.tg.SendAsync(s.users.TelegramConfig(ctx), strings.Join(lines, "\n"))
}

// PruneInactive drops rooms idle past the timeout and reports the
// sweep. Returns the removed rooms so the caller can evict sessions.
func (s *Service) PruneInactive(ctx context.Context) ([]blackjack.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rooms, err := s.loadRooms(ctx)
	if err != nil {
		return nil, err
	}
	now := time.Now().UnixMilli()
	cutoff := s.timers.RoomTimeout.Milliseconds()
	active := rooms[:0]
	var expired []blackjack.Room
	for _, r := range rooms {
		if now-r.LastUpdate >= cutoff {
			expired = append(expired, r)
		} else {
			active = append(active, r)
		}
	}
	if len(expired) == 0 {
		return nil, nil
	}
	if err := s.saveRooms(ctx, active); err != nil {
		return nil, err
	}
	names := make([]string, 0, len(expired))
	for _, r := range expired {
		s.sched.Cancel(r.ID)
		names = append(names, r.Name)
	}
	log.Printf("[Cleanup] removed %d inactive rooms: %s", len(expired), strings.Join(names, ", "))

	if s.tg != nil {
		lines := []string{
			"<b>Automatic room cleanup</b>",
			"",
			fmt.Sprintf("%d inactive rooms removed:", len(expired)),
		}
		for _, r := range expired {
			mins := (now - r.LastUpdate) / 60000
			lines = append(lines, fmt.Sprintf("- %s (%d players, idle %d min)", r.Name, len(r.Players), mins))
		}
		lines = append(lines, "", fmt.Sprintf("Active rooms remaining: %d", len(active)))
		s.tg.SendAsync(s.users.TelegramConfig(ctx), strings.Join(lines, "\n"))
	}
	return expired, nil
}
