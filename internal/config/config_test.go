package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.HTTPAddr != ":8080" || cfg.Store != StoreSQLite || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.RoomTTL != 9000*time.Second || cfg.CFRateInterval != 2*time.Second {
		t.Fatalf("durations = %s, %s", cfg.RoomTTL, cfg.CFRateInterval)
	}
	if len(cfg.AllowedOrigins) != 1 || cfg.AllowedOrigins[0] != "localhost:3000" {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("STORE", "redis")
	t.Setenv("LOG_LEVEL", "DEBUG")
	t.Setenv("RESOLVE_TIMEOUT", "5s")
	t.Setenv("ALLOWED_ORIGINS", "arena.example.com,localhost:*")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Store != StoreRedis || cfg.LogLevel != slog.LevelDebug || cfg.ResolveTimeout != 5*time.Second {
		t.Fatalf("cfg = %+v", cfg)
	}
	if len(cfg.AllowedOrigins) != 2 {
		t.Fatalf("origins = %v", cfg.AllowedOrigins)
	}
}

func TestLoadRejects(t *testing.T) {
	tests := map[string][2]string{
		"unknown store": {"STORE", "mongo"},
		"zero ttl":      {"ROOM_TTL", "0s"},
		"bad duration":  {"CF_TIMEOUT", "soon"},
	}
	for name, kv := range tests {
		t.Run(name, func(t *testing.T) {
			t.Setenv(kv[0], kv[1])
			if _, err := Load(); err == nil {
				t.Fatal("Load succeeded")
			}
		})
	}
}
