package store

import (
	"fmt"
	"strings"
)

const (
	ModeMemory   = "memory"
	ModeSQLite   = "sqlite"
	ModePostgres = "postgres"
)

// Open builds the backend named by mode.
func Open(mode, sqlitePath, postgresDSN string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case ModeMemory, "mem":
		return NewMemoryStore(), nil
	case "", ModeSQLite:
		return NewSQLiteStore(sqlitePath)
	case ModePostgres, "postgresql", "pg":
		return NewPostgresStore(postgresDSN)
	default:
		return nil, fmt.Errorf("invalid store mode %q (supported: %s, %s, %s)", mode, ModeMemory, ModeSQLite, ModePostgres)
	}
}
