package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Store backends.
const (
	BackendPebble   = "pebble"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

// Config holds all configuration for the application.
type Config struct {
	Port        string
	Env         string
	DatabaseURL string
	RedisURL    string

	// Keyed store
	StoreBackend string // pebble, sqlite or postgres
	DataDir      string // Pebble directory
	SQLitePath   string

	// Sessions and presence
	SessionTimeout time.Duration

	// Moderation
	Admins          []string
	BotEnabled      bool
	BotName         string
	BotHarmfulWords []string // empty means the bot's built-in list
	BotBlockAfter   int64

	// Rate limiting
	RateLimitWhitelist []string // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled   bool     // Enable auto-blocking after repeated violations
}

// Load reads configuration from environment variables.
// In development, it loads from .env file if present.
func Load() *Config {
	// Load .env file if it exists (for development)
	_ = godotenv.Load()

	cfg := &Config{
		Port:             getEnv("PORT", "8080"),
		Env:              getEnv("ENV", "development"),
		DatabaseURL:      os.Getenv("DATABASE_URL"),
		RedisURL:         os.Getenv("REDIS_URL"),
		StoreBackend:     strings.ToLower(getEnv("STORE_BACKEND", BackendPebble)),
		DataDir:          getEnv("DATA_DIR", "./data/pebble"),
		SQLitePath:       getEnv("SQLITE_PATH", "./data/chat.db"),
		SessionTimeout:   time.Duration(getEnvInt("SESSION_TIMEOUT", 300)) * time.Second,
		Admins:           splitList(os.Getenv("ADMINS")),
		BotEnabled:       getEnv("BOT_ENABLED", "true") == "true",
		BotName:          getEnv("BOT_NAME", "ModBot"),
		BotHarmfulWords:  splitList(os.Getenv("BOT_HARMFUL_WORDS")),
		BotBlockAfter:    getEnvInt("BOT_BLOCK_AFTER", 3),
		AutoBlockEnabled: getEnv("AUTO_BLOCK_ENABLED", "false") == "true",
	}

	// Parse whitelist (comma-separated IPs or CIDRs)
	cfg.RateLimitWhitelist = splitList(os.Getenv("RATE_LIMIT_WHITELIST"))

	return cfg
}

// Validate checks the configuration after flags have been applied.
func (c *Config) Validate() error {
	switch c.StoreBackend {
	case BackendPebble, BackendSQLite:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.StoreBackend)
	}

	if c.SessionTimeout <= 0 {
		return errors.New("SESSION_TIMEOUT must be positive")
	}
	if c.BotBlockAfter < 1 {
		return errors.New("BOT_BLOCK_AFTER must be at least 1")
	}

	// In production, require redis for shared sessions and rate limiting
	if c.Env == "production" && c.RedisURL == "" {
		return errors.New("REDIS_URL is required in production")
	}
	return nil
}

// IsDevelopment returns true if running in development mode.
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	n, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}
	return n
}

func splitList(s string) []string {
	var out []string
	for _, entry := range strings.Split(s, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			out = append(out, entry)
		}
	}
	return out
}
