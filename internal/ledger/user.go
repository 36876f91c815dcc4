// Package ledger owns the user list blob: registration records,
// balances and the admin balance operations.
package ledger

import "errors"

const (
	// InitialBalance is granted to every new registration.
	InitialBalance = 1000

	// SuperAdminBalance seeds the built-in admin account.
	SuperAdminBalance = 999999
)

var (
	ErrUserNotFound      = errors.New("user not found")
	ErrNotAdmin          = errors.New("admin privileges required")
	ErrNegativeBalance   = errors.New("balance cannot be negative")
	ErrNonPositiveAmount = errors.New("amount must be positive")
)

// User is one registered account. PasswordHash keeps the stored json
// field name of the legacy plaintext slot; only bcrypt hashes go in it.
type User struct {
	ID           string `json:"id"`
	Username     string `json:"username"`
	FullName     string `json:"fullName"`
	Email        string `json:"email"`
	PasswordHash string `json:"password"`
	Balance      int    `json:"balance"`
	IsAdmin      bool   `json:"isAdmin"`
	IsSuperAdmin bool   `json:"isSuperAdmin,omitempty"`
	CreatedAt    int64  `json:"createdAt"`
}
