package middleware

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/metrics"
)

// Counter stores rate limit counters and IP block flags.
type Counter interface {
	// Increment bumps key and returns the new count. The key expires after ttl.
	Increment(ctx context.Context, key string, ttl time.Duration) (int64, error)
	SetFlag(ctx context.Context, key, value string, ttl time.Duration) error
	HasFlag(ctx context.Context, key string) bool
	ClearFlag(ctx context.Context, key string) error
}

// RedisCounter keeps counters in Redis so limits hold across instances.
type RedisCounter struct {
	client *redis.Client
}

// NewRedisCounter creates a Redis backed counter.
func NewRedisCounter(client *redis.Client) *RedisCounter {
	return &RedisCounter{client: client}
}

func (c *RedisCounter) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	pipe := c.client.TxPipeline()
	incr := pipe.Incr(ctx, key)
	pipe.Expire(ctx, key, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		return 0, err
	}
	return incr.Val(), nil
}

func (c *RedisCounter) SetFlag(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.client.Set(ctx, key, value, ttl).Err()
}

func (c *RedisCounter) HasFlag(ctx context.Context, key string) bool {
	exists, _ := c.client.Exists(ctx, key).Result()
	return exists > 0
}

func (c *RedisCounter) ClearFlag(ctx context.Context, key string) error {
	return c.client.Del(ctx, key).Err()
}

// MemoryCounter keeps counters in process memory for single instance deployments.
type MemoryCounter struct {
	cache *cache.Cache
}

// NewMemoryCounter creates an in-memory counter.
func NewMemoryCounter() *MemoryCounter {
	return &MemoryCounter{cache: cache.New(time.Hour, 10*time.Minute)}
}

func (c *MemoryCounter) Increment(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	// Add fails when the key exists; the increment below then applies to it
	_ = c.cache.Add(key, int64(0), ttl)
	return c.cache.IncrementInt64(key, 1)
}

func (c *MemoryCounter) SetFlag(ctx context.Context, key, value string, ttl time.Duration) error {
	c.cache.Set(key, value, ttl)
	return nil
}

func (c *MemoryCounter) HasFlag(ctx context.Context, key string) bool {
	_, ok := c.cache.Get(key)
	return ok
}

func (c *MemoryCounter) ClearFlag(ctx context.Context, key string) error {
	c.cache.Delete(key)
	return nil
}

// RateLimit defines limits for an endpoint pattern.
type RateLimit struct {
	Pattern  string // "METHOD /path" prefix
	Requests int
	Window   time.Duration
	KeyFunc  func(r *http.Request) string
}

// RateLimiterConfig holds configuration for the rate limiter.
type RateLimiterConfig struct {
	Whitelist        []string        // IPs or CIDRs exempt from rate limiting
	AutoBlockEnabled bool            // Enable auto-blocking after repeated violations
	Sessions         SessionResolver // Keys session limits by user; nil keys them by IP
}

// RateLimiter implements fixed window rate limiting.
type RateLimiter struct {
	counter          Counter
	limits           []RateLimit
	blocker          *IPBlocker
	logger           zerolog.Logger
	sessions         SessionResolver
	whitelist        []*net.IPNet
	whitelistIPs     map[string]bool
	autoBlockEnabled bool
}

// NewRateLimiter creates a new rate limiter.
// Limits are matched in order, so longer prefixes come first.
func NewRateLimiter(counter Counter, logger zerolog.Logger, cfg RateLimiterConfig) *RateLimiter {
	rl := &RateLimiter{
		counter:          counter,
		blocker:          NewIPBlocker(counter),
		logger:           logger,
		sessions:         cfg.Sessions,
		whitelistIPs:     make(map[string]bool),
		autoBlockEnabled: cfg.AutoBlockEnabled,
	}
	sessionKey := rl.sessionKey
	rl.limits = []RateLimit{
		{"POST /login", 20, time.Hour, ipKey},
		{"POST /profile/rename", 10, time.Hour, sessionKey},
		{"POST /heartbeat", 30, time.Minute, sessionKey},
		{"GET /profiles/", 100, time.Minute, ipKey},
		{"GET /online", 60, time.Minute, ipKey},
		{"POST /rooms/", 60, time.Minute, sessionKey},
		{"POST /rooms", 20, time.Hour, sessionKey},
		{"PATCH /rooms/", 30, time.Minute, sessionKey},
		{"GET /rooms", 120, time.Minute, sessionKey},
	}

	// Parse whitelist entries
	for _, entry := range cfg.Whitelist {
		if strings.Contains(entry, "/") {
			// CIDR notation
			_, ipNet, err := net.ParseCIDR(entry)
			if err != nil {
				logger.Warn().Str("entry", entry).Err(err).Msg("invalid CIDR in whitelist")
				continue
			}
			rl.whitelist = append(rl.whitelist, ipNet)
		} else {
			// Single IP
			rl.whitelistIPs[entry] = true
		}
	}

	if len(cfg.Whitelist) > 0 {
		logger.Info().
			Int("ips", len(rl.whitelistIPs)).
			Int("cidrs", len(rl.whitelist)).
			Msg("rate limit whitelist configured")
	}

	return rl
}

// isWhitelisted checks if an IP is in the whitelist.
func (rl *RateLimiter) isWhitelisted(ipStr string) bool {
	// Check exact IP match
	if rl.whitelistIPs[ipStr] {
		return true
	}

	// Check CIDR ranges
	ip := net.ParseIP(ipStr)
	if ip == nil {
		return false
	}
	for _, ipNet := range rl.whitelist {
		if ipNet.Contains(ip) {
			return true
		}
	}
	return false
}

// ipKey returns rate limit key based on client IP.
func ipKey(r *http.Request) string {
	return "ratelimit:ip:" + RealIP(r)
}

// sessionKey buckets requests by the user behind a valid session token.
// Missing or unknown tokens share the caller's IP bucket.
func (rl *RateLimiter) sessionKey(r *http.Request) string {
	token := tokenFromRequest(r)
	if token == "" || rl.sessions == nil {
		return ipKey(r)
	}
	username, err := rl.sessions.Resolve(r.Context(), token)
	if err != nil || username == "" {
		return ipKey(r)
	}
	return "ratelimit:user:" + username
}

// RealIP extracts the real client IP from headers or connection.
func RealIP(r *http.Request) string {
	// Check Fly.io header first
	if ip := r.Header.Get("Fly-Client-IP"); ip != "" {
		return ip
	}
	// Then X-Forwarded-For
	if ip := r.Header.Get("X-Forwarded-For"); ip != "" {
		return strings.TrimSpace(strings.Split(ip, ",")[0])
	}
	// Then X-Real-IP
	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		return ip
	}
	// Fallback to RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return ip
}

// CheckAndIncrement checks rate limit and increments counter.
// Returns (allowed, remaining, resetAt).
func (rl *RateLimiter) CheckAndIncrement(ctx context.Context, key string, limit int, window time.Duration) (bool, int, time.Time) {
	now := time.Now()

	// Use a fixed window key based on current time bucket
	bucket := now.UnixNano() / int64(window)
	windowKey := fmt.Sprintf("%s:%d", key, bucket)
	resetAt := time.Unix(0, (bucket+1)*int64(window))

	count, err := rl.counter.Increment(ctx, windowKey, window*2)
	if err != nil {
		// Fail open
		rl.logger.Error().Err(err).Str("key", key).Msg("rate limit counter failed")
		return true, limit, resetAt
	}

	remaining := limit - int(count)
	if remaining < 0 {
		remaining = 0
	}

	return count <= int64(limit), remaining, resetAt
}

// Middleware returns the rate limiting middleware.
func (rl *RateLimiter) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := RealIP(r)

		// Skip rate limiting for whitelisted IPs
		if rl.isWhitelisted(ip) {
			next.ServeHTTP(w, r)
			return
		}

		// Check IP block first
		if rl.blocker.IsBlocked(r.Context(), ip) {
			rl.logger.Warn().
				Str("type", "security").
				Str("event", "blocked_request").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Msg("blocked IP attempted request")
			metrics.BlockedRequests.WithLabelValues("ip_blocked").Inc()
			jsonError(w, http.StatusForbidden, "temporarily blocked")
			return
		}

		// Find matching limit
		limit := rl.findLimit(r)
		if limit == nil {
			next.ServeHTTP(w, r)
			return
		}

		key := limit.KeyFunc(r)
		allowed, remaining, resetAt := rl.CheckAndIncrement(r.Context(), key, limit.Requests, limit.Window)

		// Set rate limit headers
		w.Header().Set("X-RateLimit-Limit", strconv.Itoa(limit.Requests))
		w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(remaining))
		w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(resetAt.Unix(), 10))

		if !allowed {
			w.Header().Set("Retry-After", strconv.Itoa(int(time.Until(resetAt).Seconds())+1))
			metrics.RateLimitHits.WithLabelValues(normalizePath(r.URL.Path)).Inc()

			// Track violation
			rl.trackViolation(r.Context(), ip)

			rl.logger.Warn().
				Str("type", "security").
				Str("event", "rate_limit_exceeded").
				Str("ip", ip).
				Str("endpoint", r.URL.Path).
				Str("key", key).
				Msg("rate limit exceeded")

			jsonError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}

		next.ServeHTTP(w, r)
	})
}

// findLimit finds the matching rate limit for a request.
func (rl *RateLimiter) findLimit(r *http.Request) *RateLimit {
	key := r.Method + " " + r.URL.Path

	for i := range rl.limits {
		if strings.HasPrefix(key, rl.limits[i].Pattern) {
			return &rl.limits[i]
		}
	}
	return nil
}

// trackViolation tracks rate limit violations and auto-blocks repeat offenders.
func (rl *RateLimiter) trackViolation(ctx context.Context, ip string) {
	if !rl.autoBlockEnabled {
		return
	}

	key := fmt.Sprintf("violations:ip:%s", ip)
	count, _ := rl.counter.Increment(ctx, key, time.Hour)

	if count >= 10 {
		rl.blocker.Block(ctx, ip, 24*time.Hour, "repeated rate limit violations")
		rl.logger.Warn().
			Str("type", "security").
			Str("event", "ip_auto_blocked").
			Str("ip", ip).
			Int64("violations", count).
			Msg("IP auto-blocked for repeated violations")
	}
}

// IPBlocker manages temporary IP blocks.
type IPBlocker struct {
	counter Counter
}

// NewIPBlocker creates a new IP blocker.
func NewIPBlocker(counter Counter) *IPBlocker {
	return &IPBlocker{counter: counter}
}

// IsBlocked checks if an IP is blocked.
func (b *IPBlocker) IsBlocked(ctx context.Context, ip string) bool {
	return b.counter.HasFlag(ctx, fmt.Sprintf("blocked:ip:%s", ip))
}

// Block blocks an IP for the specified duration.
func (b *IPBlocker) Block(ctx context.Context, ip string, duration time.Duration, reason string) {
	_ = b.counter.SetFlag(ctx, fmt.Sprintf("blocked:ip:%s", ip), reason, duration)
}

// Unblock removes an IP block.
func (b *IPBlocker) Unblock(ctx context.Context, ip string) {
	_ = b.counter.ClearFlag(ctx, fmt.Sprintf("blocked:ip:%s", ip))
}
