// Package store is the shared JSON blob store every client writes
// through. There is no server-side authority over the blobs: writers
// read, mutate and save whole values, and the latest write wins.
package store

import (
	"context"
	"errors"
)

// Well-known keys.
const (
	KeyUsers    = "bj_users"
	KeyRooms    = "bj_rooms"
	KeyTelegram = "bj_telegram"
)

var ErrClosed = errors.New("store closed")

// Store persists named JSON blobs.
type Store interface {
	// Load unmarshals the blob at key into out. It reports false and
	// leaves out untouched when the key has never been written, so
	// callers fall back to the zero value.
	Load(ctx context.Context, key string, out any) (bool, error)

	// Save marshals value and replaces the blob at key.
	Save(ctx context.Context, key string, value any) error

	Close() error
}
