// Package moderation keeps the admin list, blocked users and filtered words.
package moderation

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/store"
)

const (
	adminsKey   = "moderation/admins"
	blockedKey  = "moderation/blocked"
	filteredKey = "moderation/filtered_words"
)

// ErrEmpty is returned when a username or word is blank.
var ErrEmpty = errors.New("value must not be empty")

// Snapshot is a point in time copy of the moderation lists.
type Snapshot struct {
	Admins        []string `json:"admins"`
	BlockedUsers  []string `json:"blocked_users"`
	FilteredWords []string `json:"filtered_words"`
}

// Manager caches the moderation lists in memory and writes every change
// through to the keyed store.
type Manager struct {
	mu       sync.RWMutex
	db       store.DataStore
	logger   zerolog.Logger
	admins   []string
	blocked  []string
	filtered []string
}

// Load reads the moderation lists from db. Admins from config are merged
// into the stored admin list.
func Load(ctx context.Context, db store.DataStore, seedAdmins []string, logger zerolog.Logger) (*Manager, error) {
	m := &Manager{db: db, logger: logger}

	var err error
	if m.admins, err = m.loadList(ctx, adminsKey); err != nil {
		return nil, err
	}
	if m.blocked, err = m.loadList(ctx, blockedKey); err != nil {
		return nil, err
	}
	if m.filtered, err = m.loadList(ctx, filteredKey); err != nil {
		return nil, err
	}

	changed := false
	for _, admin := range seedAdmins {
		admin = strings.TrimSpace(admin)
		if admin == "" || contains(m.admins, admin) {
			continue
		}
		m.admins = append(m.admins, admin)
		changed = true
	}
	if changed {
		if err := m.saveList(ctx, adminsKey, m.admins); err != nil {
			return nil, err
		}
	}

	logger.Info().
		Int("admins", len(m.admins)).
		Int("blocked", len(m.blocked)).
		Int("filtered_words", len(m.filtered)).
		Msg("moderation lists loaded")
	return m, nil
}

func (m *Manager) loadList(ctx context.Context, key string) ([]string, error) {
	data, err := m.db.Get(ctx, key)
	if errors.Is(err, store.ErrNotFound) {
		return []string{}, nil
	}
	if err != nil {
		return nil, err
	}
	var list []string
	if err := json.Unmarshal(data, &list); err != nil {
		return nil, err
	}
	return list, nil
}

func (m *Manager) saveList(ctx context.Context, key string, list []string) error {
	data, err := json.Marshal(list)
	if err != nil {
		return err
	}
	return m.db.Put(ctx, key, data)
}

// IsAdmin reports whether username may use the moderation endpoints.
func (m *Manager) IsAdmin(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return contains(m.admins, username)
}

// IsBlocked reports whether username is blocked from chatting.
func (m *Manager) IsBlocked(username string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return contains(m.blocked, username)
}

// Block adds username to the block list.
func (m *Manager) Block(ctx context.Context, username string) error {
	return m.add(ctx, blockedKey, &m.blocked, username)
}

// Unblock removes username from the block list.
func (m *Manager) Unblock(ctx context.Context, username string) error {
	return m.remove(ctx, blockedKey, &m.blocked, username)
}

// AddFilteredWord adds a word to be masked in chat messages.
func (m *Manager) AddFilteredWord(ctx context.Context, word string) error {
	return m.add(ctx, filteredKey, &m.filtered, word)
}

// RemoveFilteredWord stops masking word.
func (m *Manager) RemoveFilteredWord(ctx context.Context, word string) error {
	return m.remove(ctx, filteredKey, &m.filtered, word)
}

// RenameUser carries admin and block entries over to a new nickname.
func (m *Manager) RenameUser(ctx context.Context, oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, l := range []struct {
		key  string
		list *[]string
	}{{adminsKey, &m.admins}, {blockedKey, &m.blocked}} {
		if !contains(*l.list, oldName) {
			continue
		}
		next := make([]string, 0, len(*l.list))
		for _, v := range *l.list {
			if v == oldName {
				v = newName
			}
			if !contains(next, v) {
				next = append(next, v)
			}
		}
		if err := m.saveList(ctx, l.key, next); err != nil {
			return err
		}
		*l.list = next
	}
	return nil
}

func (m *Manager) add(ctx context.Context, key string, list *[]string, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if contains(*list, value) {
		return nil
	}
	next := append(append([]string{}, *list...), value)
	if err := m.saveList(ctx, key, next); err != nil {
		return err
	}
	*list = next

	m.logger.Info().Str("list", key).Str("value", value).Msg("moderation entry added")
	return nil
}

func (m *Manager) remove(ctx context.Context, key string, list *[]string, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return ErrEmpty
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !contains(*list, value) {
		return nil
	}
	next := make([]string, 0, len(*list))
	for _, v := range *list {
		if v != value {
			next = append(next, v)
		}
	}
	if err := m.saveList(ctx, key, next); err != nil {
		return err
	}
	*list = next

	m.logger.Info().Str("list", key).Str("value", value).Msg("moderation entry removed")
	return nil
}

// Filter masks every filtered word in text with one '*' per character.
// Longer words are masked first so overlapping entries mask fully.
func (m *Manager) Filter(text string) string {
	m.mu.RLock()
	words := append([]string{}, m.filtered...)
	m.mu.RUnlock()

	sort.SliceStable(words, func(i, j int) bool { return len(words[i]) > len(words[j]) })
	for _, word := range words {
		if word == "" {
			continue
		}
		text = strings.ReplaceAll(text, word, strings.Repeat("*", utf8.RuneCountInString(word)))
	}
	return text
}

// Snapshot returns copies of all lists.
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return Snapshot{
		Admins:        append([]string{}, m.admins...),
		BlockedUsers:  append([]string{}, m.blocked...),
		FilteredWords: append([]string{}, m.filtered...),
	}
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
