// Package auth handles registration, login and session tokens on top
// of the shared user list.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"ojack/internal/ledger"
	"ojack/internal/notify"
)

const (
	defaultSessionTTL = 24 * time.Hour
	tokenBytes        = 32
)

var (
	ErrMissingFields      = errors.New("all fields are required")
	ErrUsernameTooShort   = errors.New("username must be at least 3 characters")
	ErrPasswordTooShort   = errors.New("password must be at least 4 characters")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrUsernameTaken      = errors.New("username already in use")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrSessionExpired     = errors.New("session expired")
)

// Registration is the input to Register.
type Registration struct {
	Username string `json:"username"`
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type sessionRecord struct {
	UserID    string
	ExpiresAt time.Time
}

// Service validates credentials against the ledger and issues session
// tokens. Sessions live in memory; a restart just forces a re-login.
type Service struct {
	mu         sync.Mutex
	users      *ledger.Service
	tg         *notify.Telegram
	sessionTTL time.Duration
	sessions   map[string]sessionRecord
}

func NewService(users *ledger.Service, tg *notify.Telegram, sessionTTL time.Duration) *Service {
	if sessionTTL <= 0 {
		sessionTTL = defaultSessionTTL
	}
	return &Service{
		users:      users,
		tg:         tg,
		sessionTTL: sessionTTL,
		sessions:   make(map[string]sessionRecord),
	}
}

func validateRegistration(r Registration) error {
	if r.Username == "" || r.Password == "" || r.FullName == "" || r.Email == "" {
		return ErrMissingFields
	}
	if len(r.Username) < 3 {
		return ErrUsernameTooShort
	}
	if len(r.Password) < 4 {
		return ErrPasswordTooShort
	}
	if !strings.Contains(r.Email, "@") {
		return ErrInvalidEmail
	}
	return nil
}

// Register creates an account with the starting balance and returns it
// with a fresh session token. A welcome notification goes to Telegram
// on a best-effort basis.
func (s *Service) Register(ctx context.Context, r Registration) (ledger.User, string, error) {
	if err := validateRegistration(r); err != nil {
		return ledger.User{}, "", err
	}

	existing, err := s.users.Users(ctx)
	if err != nil {
		return ledger.User{}, "", err
	}
	for _, u := range existing {
		if strings.EqualFold(u.Username, r.Username) {
			return ledger.User{}, "", ErrUsernameTaken
		}
		if strings.EqualFold(u.Email, r.Email) {
			return ledger.User{}, "", ErrEmailTaken
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(r.Password), bcrypt.DefaultCost)
	if err != nil {
		return ledger.User{}, "", err
	}
	user := ledger.User{
		ID:           uuid.NewString(),
		Username:     r.Username,
		FullName:     r.FullName,
		Email:        r.Email,
		PasswordHash: string(hash),
		Balance:      ledger.InitialBalance,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := s.users.Append(ctx, user); err != nil {
		return ledger.User{}, "", err
	}

	if s.tg != nil {
		lines := []string{
			"<b>New registration</b>",
			"",
			"Name: " + user.FullName,
			"Email: " + user.Email,
			"Username: @" + user.Username,
			fmt.Sprintf("Starting balance: %d coins", user.Balance),
			time.Now().Format(time.RFC1123),
		}
		s.tg.SendAsync(s.users.TelegramConfig(ctx), strings.Join(lines, "\n"))
	}

	token := s.issueSession(user.ID)
	return user, token, nil
}

// Login checks the username and password (username match is case
// insensitive) and returns the user with a fresh session token.
func (s *Service) Login(ctx context.Context, username, password string) (ledger.User, string, error) {
	if username == "" || password == "" {
		return ledger.User{}, "", ErrInvalidCredentials
	}
	users, err := s.users.Users(ctx)
	if err != nil {
		return ledger.User{}, "", err
	}
	for _, u := range users {
		if !strings.EqualFold(u.Username, username) {
			continue
		}
		if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
			return ledger.User{}, "", ErrInvalidCredentials
		}
		return u, s.issueSession(u.ID), nil
	}
	return ledger.User{}, "", ErrInvalidCredentials
}

// Resolve validates a session token and refreshes its expiry.
func (s *Service) Resolve(token string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.sessions[token]
	if !ok {
		return "", ErrSessionExpired
	}
	now := time.Now()
	if !now.Before(rec.ExpiresAt) {
		delete(s.sessions, token)
		return "", ErrSessionExpired
	}
	rec.ExpiresAt = now.Add(s.sessionTTL)
	s.sessions[token] = rec
	return rec.UserID, nil
}

// Logout invalidates a session token.
func (s *Service) Logout(token string) {
	if token == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
}

func (s *Service) issueSession(userID string) string {
	token := mustToken()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[token] = sessionRecord{
		UserID:    userID,
		ExpiresAt: time.Now().Add(s.sessionTTL),
	}
	return token
}

// EnsureSuperAdmin seeds or repairs the built-in admin account. An
// existing account with the same username keeps its balance but gets
// its admin flags restored.
func (s *Service) EnsureSuperAdmin(ctx context.Context, username, password string) error {
	if strings.TrimSpace(username) == "" || password == "" {
		log.Printf("[Auth] super admin not configured, skipping seed")
		return nil
	}
	users, err := s.users.Users(ctx)
	if err != nil {
		return err
	}
	for _, u := range users {
		if strings.EqualFold(u.Username, username) {
			if u.IsAdmin && u.IsSuperAdmin {
				return nil
			}
			return s.users.PromoteSuperAdmin(ctx, u.ID)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	admin := ledger.User{
		ID:           "superadmin_" + uuid.NewString(),
		Username:     username,
		FullName:     "Super Admin",
		Email:        username,
		PasswordHash: string(hash),
		Balance:      ledger.SuperAdminBalance,
		IsAdmin:      true,
		IsSuperAdmin: true,
		CreatedAt:    time.Now().UnixMilli(),
	}
	if err := s.users.Append(ctx, admin); err != nil {
		return err
	}
	log.Printf("[Auth] seeded super admin account %q", username)
	return nil
}

func mustToken() string {
	buf := make([]byte, tokenBytes)
	if _, err := rand.Read(buf); err != nil {
		panic(err)
	}
	return base64.RawURLEncoding.EncodeToString(buf)
}
