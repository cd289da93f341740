package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	for _, key := range []string{"PORT", "ENV", "STORE_BACKEND", "SESSION_TIMEOUT", "ADMINS", "BOT_ENABLED", "BOT_BLOCK_AFTER", "REDIS_URL", "DATABASE_URL"} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" || cfg.Env != "development" {
		t.Fatalf("unexpected defaults %+v", cfg)
	}
	if cfg.StoreBackend != BackendPebble || cfg.DataDir != "./data/pebble" {
		t.Fatalf("unexpected store defaults %q %q", cfg.StoreBackend, cfg.DataDir)
	}
	if cfg.SessionTimeout != 300*time.Second {
		t.Fatalf("unexpected session timeout %v", cfg.SessionTimeout)
	}
	if !cfg.BotEnabled || cfg.BotName != "ModBot" || cfg.BotBlockAfter != 3 {
		t.Fatalf("unexpected bot defaults %+v", cfg)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestLoadLists(t *testing.T) {
	t.Setenv("ADMINS", " root, ,alice ")
	t.Setenv("BOT_HARMFUL_WORDS", "foo,bar")
	t.Setenv("SESSION_TIMEOUT", "60")

	cfg := Load()

	if len(cfg.Admins) != 2 || cfg.Admins[0] != "root" || cfg.Admins[1] != "alice" {
		t.Fatalf("unexpected admins %v", cfg.Admins)
	}
	if len(cfg.BotHarmfulWords) != 2 {
		t.Fatalf("unexpected words %v", cfg.BotHarmfulWords)
	}
	if cfg.SessionTimeout != time.Minute {
		t.Fatalf("unexpected timeout %v", cfg.SessionTimeout)
	}
}

func TestValidate(t *testing.T) {
	base := Config{StoreBackend: BackendPebble, SessionTimeout: time.Minute, BotBlockAfter: 3}

	cfg := base
	cfg.StoreBackend = "mongo"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected unknown backend to fail")
	}

	cfg = base
	cfg.StoreBackend = BackendPostgres
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected postgres without DATABASE_URL to fail")
	}

	cfg = base
	cfg.Env = "production"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected production without REDIS_URL to fail")
	}
	cfg.RedisURL = "redis://localhost:6379"
	if err := cfg.Validate(); err != nil {
		t.Fatal(err)
	}
}
