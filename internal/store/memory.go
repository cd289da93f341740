package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/patrickmn/go-cache"

	"github.com/eldtechnologies/chatrooms/internal/models"
)

// MemoryStore keeps ephemeral state in process memory. It is used in
// development and tests when no Redis URL is configured.
type MemoryStore struct {
	mu    sync.Mutex
	cache *cache.Cache
}

// NewMemoryStore creates an in-memory ephemeral store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache: cache.New(messageTTL, 10*time.Minute),
	}
}

// Close drops all state.
func (s *MemoryStore) Close() error {
	s.cache.Flush()
	return nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(ctx context.Context) error {
	return nil
}

// AddMessage appends a message to its room history.
func (s *MemoryStore) AddMessage(ctx context.Context, msg *models.Message) error {
	prepareMessage(msg)

	s.mu.Lock()
	defer s.mu.Unlock()

	key := roomMessagesKey(msg.RoomID)
	var messages []models.Message
	if v, ok := s.cache.Get(key); ok {
		messages = v.([]models.Message)
	}

	cutoff := retentionCutoff(time.Now())
	kept := make([]models.Message, 0, len(messages)+1)
	for _, m := range messages {
		if m.Timestamp >= cutoff {
			kept = append(kept, m)
		}
	}
	kept = append(kept, *msg)
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].Timestamp < kept[j].Timestamp })
	if len(kept) > maxRoomBuffer {
		kept = kept[len(kept)-maxRoomBuffer:]
	}

	s.cache.Set(key, kept, messageTTL)
	return nil
}

// GetRoomMessages retrieves messages from a room, newest first.
func (s *MemoryStore) GetRoomMessages(ctx context.Context, roomID string, limit int, before int64) ([]models.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, ok := s.cache.Get(roomMessagesKey(roomID))
	if !ok {
		return []models.Message{}, nil
	}
	messages := v.([]models.Message)

	cutoff := retentionCutoff(time.Now())
	out := make([]models.Message, 0, limit)
	for i := len(messages) - 1; i >= 0 && len(out) < limit; i-- {
		m := messages[i]
		if before > 0 && m.Timestamp >= before {
			continue
		}
		if m.Timestamp < cutoff {
			break
		}
		out = append(out, m)
	}
	return out, nil
}

// DeleteRoomMessages drops the message history of a room.
func (s *MemoryStore) DeleteRoomMessages(ctx context.Context, roomID string) error {
	s.cache.Delete(roomMessagesKey(roomID))
	return nil
}

// PutSession maps a session token to a username with a TTL.
func (s *MemoryStore) PutSession(ctx context.Context, token, username string, ttl time.Duration) error {
	s.cache.Set(sessionKey(token), username, ttl)
	return nil
}

// GetSession resolves a token and slides its expiry forward by ttl.
func (s *MemoryStore) GetSession(ctx context.Context, token string, ttl time.Duration) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := sessionKey(token)
	v, ok := s.cache.Get(key)
	if !ok {
		return "", ErrNotFound
	}
	username := v.(string)
	s.cache.Set(key, username, ttl)
	return username, nil
}

// DeleteSession removes a session token.
func (s *MemoryStore) DeleteSession(ctx context.Context, token string) error {
	s.cache.Delete(sessionKey(token))
	return nil
}

func presenceItemKey(username string) string {
	return presenceKey + ":" + username
}

// Touch records a presence heartbeat for username.
func (s *MemoryStore) Touch(ctx context.Context, username string, at time.Time) error {
	s.cache.Set(presenceItemKey(username), at, cache.NoExpiration)
	return nil
}

// RemovePresence drops the heartbeat of username.
func (s *MemoryStore) RemovePresence(ctx context.Context, username string) error {
	s.cache.Delete(presenceItemKey(username))
	return nil
}

// ActiveUsers returns usernames with a heartbeat at or after since, sorted.
func (s *MemoryStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	prefix := presenceKey + ":"
	users := []string{}
	for key, item := range s.cache.Items() {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		at, ok := item.Object.(time.Time)
		if !ok || at.Before(since) {
			continue
		}
		users = append(users, key[len(prefix):])
	}
	sort.Strings(users)
	return users, nil
}

// PrunePresence removes heartbeats older than before.
func (s *MemoryStore) PrunePresence(ctx context.Context, before time.Time) (int64, error) {
	prefix := presenceKey + ":"
	var removed int64
	for key, item := range s.cache.Items() {
		if len(key) <= len(prefix) || key[:len(prefix)] != prefix {
			continue
		}
		if at, ok := item.Object.(time.Time); ok && at.Before(before) {
			s.cache.Delete(key)
			removed++
		}
	}
	return removed, nil
}

// IncrementWarnings bumps the warning counter of username and returns the new value.
func (s *MemoryStore) IncrementWarnings(ctx context.Context, username string, ttl time.Duration) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := warningsKey(username)
	// Add fails when the counter already exists, which is fine
	_ = s.cache.Add(key, int64(0), ttl)
	return s.cache.IncrementInt64(key, 1)
}

// ResetWarnings clears the warning counter of username.
func (s *MemoryStore) ResetWarnings(ctx context.Context, username string) error {
	s.cache.Delete(warningsKey(username))
	return nil
}

// MarkWelcomed records that username was greeted. It reports true the first time only.
func (s *MemoryStore) MarkWelcomed(ctx context.Context, username string) (bool, error) {
	if err := s.cache.Add(welcomedKey(username), true, cache.NoExpiration); err != nil {
		return false, nil
	}
	return true, nil
}
