// Package config loads server settings from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config holds every tunable the server reads at startup.
type Config struct {
	Addr string `env:"OJACK_ADDR" envDefault:":8080"`

	// StoreMode selects the shared store backend: memory, sqlite or postgres.
	StoreMode   string `env:"OJACK_STORE_MODE" envDefault:"sqlite"`
	SQLitePath  string `env:"OJACK_SQLITE_PATH" envDefault:"ojack.db"`
	PostgresDSN string `env:"OJACK_POSTGRES_DSN"`

	SessionTTL time.Duration `env:"OJACK_SESSION_TTL" envDefault:"24h"`

	// Timers driving the shared-store polling model.
	PollInterval     time.Duration `env:"OJACK_POLL_INTERVAL"      envDefault:"800ms"`
	CleanupInterval  time.Duration `env:"OJACK_CLEANUP_INTERVAL"   envDefault:"60s"`
	RoomTimeout      time.Duration `env:"OJACK_ROOM_TIMEOUT"       envDefault:"1h"`
	AutoDealDelay    time.Duration `env:"OJACK_AUTO_DEAL_DELAY"    envDefault:"500ms"`
	AutoAdvanceDelay time.Duration `env:"OJACK_AUTO_ADVANCE_DELAY" envDefault:"1s"`

	SuperAdminUser     string `env:"OJACK_SUPER_ADMIN_USER"     envDefault:"admin"`
	SuperAdminPassword string `env:"OJACK_SUPER_ADMIN_PASSWORD"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("parse env: %w", err)
	}
	return cfg, nil
}
