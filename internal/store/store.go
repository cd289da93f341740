package store

import (
	"context"
	"errors"
	"time"

	"github.com/eldtechnologies/chatrooms/internal/models"
)

// ErrNotFound is returned by keyed stores when a key has no record.
var ErrNotFound = errors.New("record not found")

// DataStore is a durable flat keyed store holding one JSON record per key.
// PebbleStore, SQLiteStore and PostgresStore implement this interface.
type DataStore interface {
	// Connection management
	Close() error
	Ping(ctx context.Context) error

	// Record operations. Put replaces the whole record atomically.
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([][]byte, error)
}

// Ephemeral holds short-lived state: chat messages, sessions, presence heartbeats
// and moderation counters. RedisStore and MemoryStore implement this interface.
type Ephemeral interface {
	Close() error
	Ping(ctx context.Context) error

	// Messages
	AddMessage(ctx context.Context, msg *models.Message) error
	GetRoomMessages(ctx context.Context, roomID string, limit int, before int64) ([]models.Message, error)
	DeleteRoomMessages(ctx context.Context, roomID string) error

	// Sessions
	PutSession(ctx context.Context, token, username string, ttl time.Duration) error
	GetSession(ctx context.Context, token string, ttl time.Duration) (string, error)
	DeleteSession(ctx context.Context, token string) error

	// Presence
	Touch(ctx context.Context, username string, at time.Time) error
	RemovePresence(ctx context.Context, username string) error
	ActiveUsers(ctx context.Context, since time.Time) ([]string, error)
	PrunePresence(ctx context.Context, before time.Time) (int64, error)

	// Moderation counters
	IncrementWarnings(ctx context.Context, username string, ttl time.Duration) (int64, error)
	ResetWarnings(ctx context.Context, username string) error
	MarkWelcomed(ctx context.Context, username string) (bool, error)
}

// prefixUpperBound returns the smallest key greater than every key with the given prefix.
// It returns nil when no such bound exists (prefix of all 0xff bytes).
func prefixUpperBound(prefix []byte) []byte {
	end := append([]byte{}, prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil
}
