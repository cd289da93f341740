// Package session issues login tokens and tracks presence heartbeats.
package session

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/eldtechnologies/chatrooms/internal/crypto"
	"github.com/eldtechnologies/chatrooms/internal/store"
)

// ErrInvalidToken is returned for unknown or expired session tokens.
var ErrInvalidToken = errors.New("invalid or expired session")

// DefaultTimeout is how long a session and a presence heartbeat stay valid.
const DefaultTimeout = 300 * time.Second

// Manager issues session tokens and keeps presence in the ephemeral store.
type Manager struct {
	eph     store.Ephemeral
	timeout time.Duration
	now     func() time.Time
}

// NewManager creates a session manager. A zero timeout uses DefaultTimeout.
func NewManager(eph store.Ephemeral, timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Manager{eph: eph, timeout: timeout, now: time.Now}
}

// Timeout returns the session and presence timeout.
func (m *Manager) Timeout() time.Duration {
	return m.timeout
}

// Login issues a new token for username and records a heartbeat.
func (m *Manager) Login(ctx context.Context, username string) (string, error) {
	token := crypto.NewSessionToken()
	if err := m.eph.PutSession(ctx, token, username, m.timeout); err != nil {
		return "", err
	}
	if err := m.eph.Touch(ctx, username, m.now()); err != nil {
		return "", err
	}
	return token, nil
}

// Resolve returns the username behind token, extends the session and
// refreshes the user's heartbeat.
func (m *Manager) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrInvalidToken
	}
	username, err := m.eph.GetSession(ctx, token, m.timeout)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return "", ErrInvalidToken
		}
		return "", err
	}
	if err := m.eph.Touch(ctx, username, m.now()); err != nil {
		return "", err
	}
	return username, nil
}

// Logout drops the token and the user's presence.
func (m *Manager) Logout(ctx context.Context, token, username string) error {
	if err := m.eph.DeleteSession(ctx, token); err != nil {
		return err
	}
	return m.eph.RemovePresence(ctx, username)
}

// Rename moves the session and presence of oldName to newName.
func (m *Manager) Rename(ctx context.Context, token, oldName, newName string) error {
	if err := m.eph.PutSession(ctx, token, newName, m.timeout); err != nil {
		return err
	}
	if err := m.eph.RemovePresence(ctx, oldName); err != nil {
		return err
	}
	return m.eph.Touch(ctx, newName, m.now())
}

// Active returns the unique, sorted usernames seen within the timeout.
func (m *Manager) Active(ctx context.Context) ([]string, error) {
	users, err := m.eph.ActiveUsers(ctx, m.now().Add(-m.timeout))
	if err != nil {
		return nil, err
	}

	seen := make(map[string]struct{}, len(users))
	unique := make([]string, 0, len(users))
	for _, u := range users {
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		unique = append(unique, u)
	}
	sort.Strings(unique)
	return unique, nil
}

// Sweep removes stale heartbeats and returns how many were dropped.
func (m *Manager) Sweep(ctx context.Context) (int64, error) {
	return m.eph.PrunePresence(ctx, m.now().Add(-m.timeout))
}
