package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/redis/go-redis/v9"

	"github.com/eldtechnologies/chatrooms/internal/models"
)

const (
	messageTTL    = 24 * time.Hour
	presenceKey   = "presence"
	maxRoomBuffer = 1000
)

// RedisStore handles Redis operations for messages, sessions and presence.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Client exposes the underlying client for the rate limiter.
func (s *RedisStore) Client() *redis.Client {
	return s.client
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// roomMessagesKey returns the key for a room's message sorted set.
func roomMessagesKey(roomID string) string {
	return fmt.Sprintf("room:%s:messages", roomID)
}

// sessionKey returns the key mapping a session token to a username.
func sessionKey(token string) string {
	return fmt.Sprintf("session:%s", token)
}

// warningsKey returns the key for a user's moderation warning counter.
func warningsKey(username string) string {
	return fmt.Sprintf("warnings:%s", username)
}

// welcomedKey returns the key recording that a user has been greeted.
func welcomedKey(username string) string {
	return fmt.Sprintf("welcomed:%s", username)
}

// prepareMessage fills in the ID and timestamp of a new message.
func prepareMessage(msg *models.Message) {
	if msg.ID == "" {
		msg.ID = ulid.Make().String()
	}
	if msg.Timestamp == 0 {
		msg.Timestamp = time.Now().UnixMilli()
	}
}

// retentionCutoff is the oldest timestamp still inside the retention window.
func retentionCutoff(now time.Time) int64 {
	return now.Add(-messageTTL).UnixMilli()
}

// expiredBound is the exclusive upper score of expired messages.
func expiredBound(now time.Time) string {
	return fmt.Sprintf("(%d", retentionCutoff(now))
}

// historyRange selects up to limit retained messages older than before,
// or the newest ones when before is zero.
func historyRange(now time.Time, before int64, limit int) *redis.ZRangeBy {
	maxScore := "+inf"
	if before > 0 {
		maxScore = fmt.Sprintf("(%d", before) // exclusive
	}
	return &redis.ZRangeBy{
		Min:   strconv.FormatInt(retentionCutoff(now), 10),
		Max:   maxScore,
		Count: int64(limit),
	}
}

// AddMessage stores a message in Redis.
func (s *RedisStore) AddMessage(ctx context.Context, msg *models.Message) error {
	prepareMessage(msg)

	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	key := roomMessagesKey(msg.RoomID)

	pipe := s.client.TxPipeline()
	pipe.ZAdd(ctx, key, redis.Z{
		Score:  float64(msg.Timestamp),
		Member: string(data),
	})
	// Keep only the newest messages, none older than the retention window
	pipe.ZRemRangeByScore(ctx, key, "-inf", expiredBound(time.Now()))
	pipe.ZRemRangeByRank(ctx, key, 0, -maxRoomBuffer-1)
	pipe.Expire(ctx, key, messageTTL)
	_, err = pipe.Exec(ctx)
	return err
}

// GetRoomMessages retrieves messages from a room, newest first.
func (s *RedisStore) GetRoomMessages(ctx context.Context, roomID string, limit int, before int64) ([]models.Message, error) {
	key := roomMessagesKey(roomID)

	results, err := s.client.ZRevRangeByScore(ctx, key, historyRange(time.Now(), before, limit)).Result()
	if err != nil {
		return nil, err
	}

	messages := make([]models.Message, 0, len(results))
	for _, data := range results {
		var msg models.Message
		if err := json.Unmarshal([]byte(data), &msg); err != nil {
			continue
		}
		messages = append(messages, msg)
	}

	return messages, nil
}

// DeleteRoomMessages drops the message history of a room.
func (s *RedisStore) DeleteRoomMessages(ctx context.Context, roomID string) error {
	return s.client.Del(ctx, roomMessagesKey(roomID)).Err()
}

// PutSession maps a session token to a username with a TTL.
func (s *RedisStore) PutSession(ctx context.Context, token, username string, ttl time.Duration) error {
	return s.client.Set(ctx, sessionKey(token), username, ttl).Err()
}

// GetSession resolves a token and slides its expiry forward by ttl.
func (s *RedisStore) GetSession(ctx context.Context, token string, ttl time.Duration) (string, error) {
	key := sessionKey(token)
	username, err := s.client.GetEx(ctx, key, ttl).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrNotFound
		}
		return "", err
	}
	return username, nil
}

// DeleteSession removes a session token.
func (s *RedisStore) DeleteSession(ctx context.Context, token string) error {
	return s.client.Del(ctx, sessionKey(token)).Err()
}

// Touch records a presence heartbeat for username.
func (s *RedisStore) Touch(ctx context.Context, username string, at time.Time) error {
	return s.client.ZAdd(ctx, presenceKey, redis.Z{
		Score:  float64(at.UnixMilli()),
		Member: username,
	}).Err()
}

// RemovePresence drops the heartbeat of username.
func (s *RedisStore) RemovePresence(ctx context.Context, username string) error {
	return s.client.ZRem(ctx, presenceKey, username).Err()
}

// ActiveUsers returns usernames with a heartbeat at or after since.
func (s *RedisStore) ActiveUsers(ctx context.Context, since time.Time) ([]string, error) {
	return s.client.ZRangeByScore(ctx, presenceKey, &redis.ZRangeBy{
		Min: strconv.FormatInt(since.UnixMilli(), 10),
		Max: "+inf",
	}).Result()
}

// PrunePresence removes heartbeats older than before.
func (s *RedisStore) PrunePresence(ctx context.Context, before time.Time) (int64, error) {
	max := fmt.Sprintf("(%d", before.UnixMilli())
	return s.client.ZRemRangeByScore(ctx, presenceKey, "-inf", max).Result()
}

// IncrementWarnings bumps the warning counter of username and returns the new value.
func (s *RedisStore) IncrementWarnings(ctx context.Context, username string, ttl time.Duration) (int64, error) {
	key := warningsKey(username)

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

// ResetWarnings clears the warning counter of username.
func (s *RedisStore) ResetWarnings(ctx context.Context, username string) error {
	return s.client.Del(ctx, warningsKey(username)).Err()
}

// MarkWelcomed records that username was greeted. It reports true the first time only.
func (s *RedisStore) MarkWelcomed(ctx context.Context, username string) (bool, error) {
	return s.client.SetNX(ctx, welcomedKey(username), "1", 0).Result()
}
