// Package config loads runtime settings from the environment, with a .env
// file honored in development.
package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds every runtime setting the relay consumes.
type Config struct {
	// Port is the TCP port the HTTP server listens on.
	Port string `env:"PORT" envDefault:"8080"`

	// Env selects development or production behavior (log format).
	Env string `env:"ENV" envDefault:"development"`

	// DBPath is the SQLite message log location.
	DBPath string `env:"AGENTCHAT_DB" envDefault:"data/agent_chat.sqlite3"`

	// HistoryLimit is the number of messages replayed to a subscriber on
	// join. Clamped to [1, 1000].
	HistoryLimit int `env:"AGENTCHAT_HISTORY_LIMIT" envDefault:"200"`

	// AllowedOrigins is the comma-separated Origin allow-list for WebSocket
	// upgrades. "*" allows any origin.
	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envDefault:"*"`

	// MaxFrameSize bounds inbound WebSocket frames in bytes.
	MaxFrameSize int64 `env:"MAX_FRAME_SIZE" envDefault:"4096"`

	// RateLimitBurst and RateLimitInterval configure the per-connection
	// inbound token bucket.
	RateLimitBurst    int           `env:"RATE_LIMIT_BURST" envDefault:"5"`
	RateLimitInterval time.Duration `env:"RATE_LIMIT_INTERVAL" envDefault:"1s"`

	// ShutdownTimeout bounds graceful shutdown of the server and hub.
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
}

// IsDevelopment reports whether the relay runs in development mode.
func (c Config) IsDevelopment() bool {
	return c.Env == "development"
}

// Addr returns the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

var dotenvOnce sync.Once

// Load parses the environment into a Config, loading a .env file first when
// one exists, and sanitizes out-of-range values.
func Load() (Config, error) {
	dotenvOnce.Do(func() {
		// The .env file is optional.
		_ = godotenv.Load()
	})

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg.sanitize(), nil
}

func (c Config) sanitize() Config {
	if c.HistoryLimit < 1 {
		c.HistoryLimit = 1
	}
	if c.HistoryLimit > 1000 {
		c.HistoryLimit = 1000
	}
	if c.MaxFrameSize <= 0 {
		c.MaxFrameSize = 4096
	}
	if c.RateLimitBurst <= 0 {
		c.RateLimitBurst = 5
	}
	if c.RateLimitInterval <= 0 {
		c.RateLimitInterval = time.Second
	}
	if c.ShutdownTimeout <= 0 {
		c.ShutdownTimeout = 10 * time.Second
	}
	return c
}
