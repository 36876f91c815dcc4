package ledger

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"ojack/internal/notify"
	"ojack/internal/store"
)

// Service reads and writes the shared user list. Every mutation is a
// fresh read-modify-write of the whole blob so concurrent servers see
// each other's updates; the mutex only serializes writers in this
// process.
type Service struct {
	mu sync.Mutex
	st store.Store
	tg *notify.Telegram
}

func NewService(st store.Store, tg *notify.Telegram) *Service {
	return &Service{st: st, tg: tg}
}

func (s *Service) loadUsers(ctx context.Context) ([]User, error) {
	var users []User
	if _, err := s.st.Load(ctx, store.KeyUsers, &users); err != nil {
		return nil, fmt.Errorf("load users: %w", err)
	}
	return users, nil
}

func (s *Service) saveUsers(ctx context.Context, users []User) error {
	if err := s.st.Save(ctx, store.KeyUsers, users); err != nil {
		return fmt.Errorf("save users: %w", err)
	}
	return nil
}

// TelegramConfig loads the stored notifier settings; missing config
// yields the zero value, which the notifier treats as disabled.
func (s *Service) TelegramConfig(ctx context.Context) notify.Config {
	var cfg notify.Config
	_, _ = s.st.Load(ctx, store.KeyTelegram, &cfg)
	return cfg
}

// SetTelegramConfig stores the notifier settings. Super admin only.
func (s *Service) SetTelegramConfig(ctx context.Context, actorID string, cfg notify.Config) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return err
	}
	return s.st.Save(ctx, store.KeyTelegram, cfg)
}

// Users returns the full user list.
func (s *Service) Users(ctx context.Context) ([]User, error) {
	return s.loadUsers(ctx)
}

// Get returns one user by id.
func (s *Service) Get(ctx context.Context, userID string) (User, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return User{}, err
	}
	for _, u := range users {
		if u.ID == userID {
			return u, nil
		}
	}
	return User{}, ErrUserNotFound
}

// Balances returns a userID to balance snapshot for settlement.
func (s *Service) Balances(ctx context.Context) (map[string]int, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]int, len(users))
	for _, u := range users {
		out[u.ID] = u.Balance
	}
	return out, nil
}

// Append adds a new user record. The caller has already validated it.
func (s *Service) Append(ctx context.Context, u User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	users, err := s.loadUsers(ctx)
	if err != nil {
		return err
	}
	return s.saveUsers(ctx, append(users, u))
}

// mutate applies fn to the named user under a fresh read and writes the
// list back. fn returns the action label for the admin notification.
func (s *Service) mutate(ctx context.Context, userID string, fn func(*User) error) (User, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return User{}, err
	}
	for i := range users {
		if users[i].ID != userID {
			continue
		}
		if err := fn(&users[i]); err != nil {
			return User{}, err
		}
		if err := s.saveUsers(ctx, users); err != nil {
			return User{}, err
		}
		return users[i], nil
	}
	return User{}, ErrUserNotFound
}

// PromoteSuperAdmin restores the admin flags on an account.
func (s *Service) PromoteSuperAdmin(ctx context.Context, userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := s.mutate(ctx, userID, func(u *User) error {
		u.IsAdmin = true
		u.IsSuperAdmin = true
		return nil
	})
	return err
}

func (s *Service) requireAdmin(ctx context.Context, actorID string) (User, error) {
	actor, err := s.Get(ctx, actorID)
	if err != nil {
		return User{}, err
	}
	if !actor.IsAdmin {
		return User{}, ErrNotAdmin
	}
	return actor, nil
}

// SetBalance replaces a user's balance. Admin only.
func (s *Service) SetBalance(ctx context.Context, actorID, userID string, amount int, note string) (User, error) {
	if amount < 0 {
		return User{}, ErrNegativeBalance
	}
	return s.adminBalanceOp(ctx, actorID, userID, fmt.Sprintf("balance set to %d", amount), note,
		func(u *User) { u.Balance = amount })
}

// AddBalance credits a bonus. Admin only.
func (s *Service) AddBalance(ctx context.Context, actorID, userID string, amount int, note string) (User, error) {
	if amount <= 0 {
		return User{}, ErrNonPositiveAmount
	}
	return s.adminBalanceOp(ctx, actorID, userID, fmt.Sprintf("bonus +%d", amount), note,
		func(u *User) { u.Balance += amount })
}

// SubtractBalance debits coins, never below zero. Admin only.
func (s *Service) SubtractBalance(ctx context.Context, actorID, userID string, amount int, note string) (User, error) {
	if amount <= 0 {
		return User{}, ErrNonPositiveAmount
	}
	return s.adminBalanceOp(ctx, actorID, userID, fmt.Sprintf("debit -%d", amount), note,
		func(u *User) {
			u.Balance -= amount
			if u.Balance < 0 {
				u.Balance = 0
			}
		})
}

// ResetBalance zeroes a user's balance. Admin only.
func (s *Service) ResetBalance(ctx context.Context, actorID, userID, note string) (User, error) {
	return s.adminBalanceOp(ctx, actorID, userID, "balance reset", note,
		func(u *User) { u.Balance = 0 })
}

// Withdraw zeroes the balance and reports the withdrawn amount. Admin only.
func (s *Service) Withdraw(ctx context.Context, actorID, userID, note string) (User, error) {
	var withdrawn int
	u, err := s.adminBalanceOp(ctx, actorID, userID, "withdrawal", note,
		func(u *User) {
			withdrawn = u.Balance
			u.Balance = 0
		})
	if err != nil {
		return User{}, err
	}
	s.notifyAdminAction(ctx, u, fmt.Sprintf("withdrew %d coins", withdrawn), note)
	return u, nil
}

func (s *Service) adminBalanceOp(ctx context.Context, actorID, userID, label, note string, apply func(*User)) (User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.requireAdmin(ctx, actorID); err != nil {
		return User{}, err
	}
	before, err := s.Get(ctx, userID)
	if err != nil {
		return User{}, err
	}
	updated, err := s.mutate(ctx, userID, func(u *User) error {
		apply(u)
		return nil
	})
	if err != nil {
		return User{}, err
	}
	s.notifyBalanceChange(ctx, before, updated, label, note)
	return updated, nil
}

// ApplySettlement moves coins after a round: each winner gains share,
// each loser pays their bet floored at a zero balance. All-bust rounds
// change nothing. The returned map holds the post-settlement balances
// of the seated players.
func (s *Service) ApplySettlement(ctx context.Context, outcomes []SettlementLine, share int) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	byID := make(map[string]*SettlementLine, len(outcomes))
	anyWinner := false
	for i := range outcomes {
		byID[outcomes[i].UserID] = &outcomes[i]
		if outcomes[i].Winner {
			anyWinner = true
		}
	}

	result := make(map[string]int, len(outcomes))
	for i := range users {
		line, ok := byID[users[i].ID]
		if !ok {
			continue
		}
		if anyWinner {
			if line.Winner {
				users[i].Balance += share
			} else {
				users[i].Balance -= line.Bet
				if users[i].Balance < 0 {
					users[i].Balance = 0
				}
			}
		}
		result[users[i].ID] = users[i].Balance
	}
	if err := s.saveUsers(ctx, users); err != nil {
		return nil, err
	}
	return result, nil
}

// SettlementLine is the per-seat input to ApplySettlement.
type SettlementLine struct {
	UserID string
	Bet    int
	Winner bool
}

func (s *Service) notifyBalanceChange(ctx context.Context, before, after User, label, note string) {
	if s.tg == nil {
		return
	}
	lines := []string{
		"<b>Admin action: balance change</b>",
		"",
		"Player: " + before.FullName + " (@" + before.Username + ")",
		"Email: " + before.Email,
		"",
		"Action: " + label,
		fmt.Sprintf("Previous balance: %d coins", before.Balance),
		fmt.Sprintf("New balance: %d coins", after.Balance),
	}
	if strings.TrimSpace(note) != "" {
		lines = append(lines, "Note: "+strings.TrimSpace(note))
	}
	lines = append(lines, "", time.Now().Format(time.RFC1123))
	s.tg.SendAsync(s.TelegramConfig(ctx), strings.Join(lines, "\n"))
}

func (s *Service) notifyAdminAction(ctx context.Context, u User, label, note string) {
	if s.tg == nil {
		return
	}
	lines := []string{
		"<b>Withdrawal processed</b>",
		"",
		"Player: " + u.FullName + " (@" + u.Username + ")",
		"Email: " + u.Email,
		"Action: " + label,
	}
	if strings.TrimSpace(note) != "" {
		lines = append(lines, "Note: "+strings.TrimSpace(note))
	}
	s.tg.SendAsync(s.TelegramConfig(ctx), strings.Join(lines, "\n"))
}
