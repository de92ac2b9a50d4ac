package config

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/caarlos0/env/v11"
)

// Store backends.
const (
	StoreSQLite = "sqlite"
	StoreRedis  = "redis"
	StoreMemory = "memory"
)

type Config struct {
	HTTPAddr string     `env:"HTTP_ADDR" envDefault:":8080"`
	LogLevel slog.Level `env:"LOG_LEVEL" envDefault:"INFO"`
	SPADir   string     `env:"SPA_DIR"`

	Store    string `env:"STORE" envDefault:"sqlite"`
	DBPath   string `env:"DB_PATH" envDefault:"data/arena.db"`
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	CFAPIBase      string        `env:"CF_API_BASE" envDefault:"https://codeforces.com/api"`
	CFRateInterval time.Duration `env:"CF_RATE_INTERVAL" envDefault:"2s"`
	CFTimeout      time.Duration `env:"CF_TIMEOUT" envDefault:"15s"`
	SolvedCacheTTL time.Duration `env:"SOLVED_CACHE_TTL" envDefault:"60s"`

	ResolveTimeout  time.Duration `env:"RESOLVE_TIMEOUT" envDefault:"20s"`
	RoomTTL         time.Duration `env:"ROOM_TTL" envDefault:"9000s"`
	JanitorInterval time.Duration `env:"JANITOR_INTERVAL" envDefault:"1h"`

	AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"localhost:3000"`
}

func Load() (*Config, error) {
	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("parsing environment: %w", err)
	}
	switch cfg.Store {
	case StoreSQLite, StoreRedis, StoreMemory:
	default:
		return nil, fmt.Errorf("unknown STORE %q: want sqlite, redis or memory", cfg.Store)
	}
	if cfg.RoomTTL <= 0 {
		return nil, fmt.Errorf("ROOM_TTL must be positive, got %s", cfg.RoomTTL)
	}
	return &cfg, nil
}
