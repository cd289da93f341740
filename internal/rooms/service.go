// Package rooms owns chat room records and their membership state machine.
package rooms

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/crypto"
	"github.com/eldtechnologies/chatrooms/internal/models"
	"github.com/eldtechnologies/chatrooms/internal/store"
)

const (
	keyPrefix     = "rooms/"
	maxNameLength = 50
)

// CreateParams describes a new room.
type CreateParams struct {
	Name     string
	Owner    string
	IsPublic bool
	Password string
	Topic    string
}

// Settings lists the mutable room settings. Nil fields are left unchanged.
// An empty Password removes the password.
type Settings struct {
	Topic                *string `json:"topic,omitempty"`
	IsPublic             *bool   `json:"is_public,omitempty"`
	Password             *string `json:"password,omitempty"`
	NotificationsEnabled *bool   `json:"notifications_enabled,omitempty"`
}

// JoinResult reports the outcome of a successful join.
type JoinResult struct {
	Room   *models.Room
	Joined bool // false when the user was already a member
}

// LeaveResult reports the outcome of a leave.
type LeaveResult struct {
	Room     *models.Room // nil when the room was deleted
	Left     bool
	Deleted  bool
	NewOwner string
}

// Option configures a Service.
type Option func(*Service)

// WithLogger sets the logger used for room lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Service) { s.logger = logger }
}

// WithHashCost sets the bcrypt cost used for room passwords.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// Service is the room store. All mutations serialize on one lock and
// each one ends with a single atomic Put or Delete on the keyed store.
type Service struct {
	mu       sync.RWMutex
	db       store.DataStore
	logger   zerolog.Logger
	hashCost int
	now      func() time.Time
}

// NewService creates a room store backed by db.
func NewService(db store.DataStore, opts ...Option) *Service {
	s := &Service{
		db:     db,
		logger: zerolog.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func roomKey(id string) string {
	return keyPrefix + id
}

// load reads a room record. Callers must hold the lock.
func (s *Service) load(ctx context.Context, id string) (*models.Room, error) {
	if id == "" {
		return nil, ErrNotFound
	}
	data, err := s.db.Get(ctx, roomKey(id))
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("load room %s: %w", id, err)
	}

	var room models.Room
	if err := json.Unmarshal(data, &room); err != nil {
		return nil, fmt.Errorf("decode room %s: %w", id, err)
	}
	return &room, nil
}

// save writes a room record. Callers must hold the write lock.
func (s *Service) save(ctx context.Context, room *models.Room) error {
	data, err := json.Marshal(room)
	if err != nil {
		return err
	}
	if err := s.db.Put(ctx, roomKey(room.ID), data); err != nil {
		return fmt.Errorf("save room %s: %w", room.ID, err)
	}
	return nil
}

func (s *Service) remove(ctx context.Context, id string) error {
	if err := s.db.Delete(ctx, roomKey(id)); err != nil {
		return fmt.Errorf("delete room %s: %w", id, err)
	}
	return nil
}

// Create creates a room owned by p.Owner.
func (s *Service) Create(ctx context.Context, p CreateParams) (*models.Room, error) {
	name := strings.TrimSpace(p.Name)
	if name == "" || utf8.RuneCountInString(name) > maxNameLength {
		return nil, ErrInvalidName
	}
	if p.Owner == "" {
		return nil, ErrDenied
	}

	room := &models.Room{
		ID:                   crypto.NewRoomID(),
		Name:                 name,
		Owner:                p.Owner,
		IsPublic:             p.IsPublic,
		Topic:                p.Topic,
		Members:              []string{p.Owner},
		InvitedUsers:         []string{},
		BannedUsers:          []string{},
		NotificationsEnabled: true,
		CreatedAt:            s.now().UTC().Truncate(time.Millisecond),
	}
	if p.Password != "" {
		hash, err := s.hashPassword(p.Password)
		if err != nil {
			return nil, err
		}
		room.PasswordHash = hash
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.save(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Info().Str("room", room.ID).Str("owner", room.Owner).Msg("room created")
	return room, nil
}

func (s *Service) hashPassword(password string) (string, error) {
	hash, err := crypto.HashPassword(password, s.hashCost)
	if errors.Is(err, crypto.ErrPasswordTooLong) {
		return "", ErrInvalidPassword
	}
	return hash, err
}

// Get returns the room with the given id.
func (s *Service) Get(ctx context.Context, id string) (*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.load(ctx, id)
}

// List returns all rooms in creation order.
func (s *Service) List(ctx context.Context) ([]*models.Room, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records, err := s.db.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	rooms := make([]*models.Room, 0, len(records))
	for _, data := range records {
		var room models.Room
		if err := json.Unmarshal(data, &room); err != nil {
			s.logger.Warn().Err(err).Msg("skipping undecodable room record")
			continue
		}
		rooms = append(rooms, &room)
	}
	return rooms, nil
}

// Delete removes a room. Only the owner may delete it; a missing room is
// reported as denied.
func (s *Service) Delete(ctx context.Context, id, requester string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.load(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return ErrNotOwner
	}
	if err != nil {
		return err
	}
	if room.Owner != requester {
		return ErrNotOwner
	}

	if err := s.remove(ctx, id); err != nil {
		return err
	}
	s.logger.Info().Str("room", id).Str("owner", requester).Msg("room deleted")
	return nil
}

// Join adds username to the room's members. Joining again is a no-op.
func (s *Service) Join(ctx context.Context, id, username, password string) (*JoinResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}

	if room.IsBanned(username) {
		return nil, ErrBanned
	}
	if !room.IsPublic && !room.IsMember(username) && !room.IsInvited(username) {
		return nil, ErrInviteRequired
	}
	if room.HasPassword() {
		if err := crypto.CheckPassword(room.PasswordHash, password); err != nil {
			if errors.Is(err, crypto.ErrPasswordMismatch) {
				return nil, ErrInvalidCredential
			}
			return nil, err
		}
	}

	if room.IsMember(username) {
		return &JoinResult{Room: room, Joined: false}, nil
	}

	room.Members = append(room.Members, username)
	room.InvitedUsers = without(room.InvitedUsers, username)
	if err := s.save(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("room", id).Str("user", username).Msg("joined room")
	return &JoinResult{Room: room, Joined: true}, nil
}

// Invite grants username a pending invite. The inviter must be a member.
func (s *Service) Invite(ctx context.Context, id, username, invitedBy string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(invitedBy) {
		return nil, ErrNotMember
	}
	if room.IsBanned(username) {
		return nil, ErrBanned
	}
	if room.IsMember(username) || room.IsInvited(username) {
		return room, nil
	}

	room.InvitedUsers = append(room.InvitedUsers, username)
	if err := s.save(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Debug().Str("room", id).Str("user", username).Str("by", invitedBy).Msg("user invited")
	return room, nil
}

// Leave removes username from the room. When the owner leaves, ownership
// passes to the earliest-joined remaining member, or the room is deleted
// if nobody remains.
func (s *Service) Leave(ctx context.Context, id, username string) (*LeaveResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if !room.IsMember(username) {
		return &LeaveResult{Room: room}, nil
	}

	room.Members = without(room.Members, username)
	result := &LeaveResult{Left: true}

	if room.Owner == username {
		if len(room.Members) == 0 {
			if err := s.remove(ctx, id); err != nil {
				return nil, err
			}
			s.logger.Info().Str("room", id).Str("owner", username).Msg("room deleted after owner left")
			result.Deleted = true
			return result, nil
		}
		room.Owner = room.Members[0]
		result.NewOwner = room.Owner
	}

	if err := s.save(ctx, room); err != nil {
		return nil, err
	}
	if result.NewOwner != "" {
		s.logger.Info().Str("room", id).Str("owner", result.NewOwner).Msg("room ownership transferred")
	}
	result.Room = room
	return result, nil
}

// Kick removes a member and bans them. Only the owner may kick, and the
// owner cannot be kicked.
func (s *Service) Kick(ctx context.Context, id, username, requester string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Owner != requester {
		return nil, ErrNotOwner
	}
	if username == room.Owner {
		return nil, fmt.Errorf("%w: the owner cannot be kicked", ErrDenied)
	}
	if !room.IsMember(username) {
		return nil, fmt.Errorf("%w: %s is not a member", ErrDenied, username)
	}

	room.Members = without(room.Members, username)
	room.InvitedUsers = without(room.InvitedUsers, username)
	if !room.IsBanned(username) {
		room.BannedUsers = append(room.BannedUsers, username)
	}
	if err := s.save(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Info().Str("room", id).Str("user", username).Str("by", requester).Msg("user kicked")
	return room, nil
}

// Unban lifts a ban. It does not re-admit or re-invite the user.
func (s *Service) Unban(ctx context.Context, id, username, requester string) (*models.Room, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Owner != requester {
		return nil, ErrNotOwner
	}
	if !room.IsBanned(username) {
		return room, nil
	}

	room.BannedUsers = without(room.BannedUsers, username)
	if err := s.save(ctx, room); err != nil {
		return nil, err
	}

	s.logger.Info().Str("room", id).Str("user", username).Str("by", requester).Msg("user unbanned")
	return room, nil
}

// UpdateSettings applies the provided settings. Only the owner may change them.
func (s *Service) UpdateSettings(ctx context.Context, id, requester string, settings Settings) (*models.Room, error) {
	// Hash before taking the lock.
	var passwordHash *string
	if settings.Password != nil {
		hash := ""
		if *settings.Password != "" {
			h, err := s.hashPassword(*settings.Password)
			if err != nil {
				return nil, err
			}
			hash = h
		}
		passwordHash = &hash
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	room, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if room.Owner != requester {
		return nil, ErrNotOwner
	}

	if settings.Topic != nil {
		room.Topic = *settings.Topic
	}
	if settings.IsPublic != nil {
		room.IsPublic = *settings.IsPublic
	}
	if passwordHash != nil {
		room.PasswordHash = *passwordHash
	}
	if settings.NotificationsEnabled != nil {
		room.NotificationsEnabled = *settings.NotificationsEnabled
	}

	if err := s.save(ctx, room); err != nil {
		return nil, err
	}
	return room, nil
}

// RenameMember rewrites oldName to newName in every room and returns the
// ids of the rooms that changed.
func (s *Service) RenameMember(ctx context.Context, oldName, newName string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	records, err := s.db.List(ctx, keyPrefix)
	if err != nil {
		return nil, fmt.Errorf("list rooms: %w", err)
	}

	var changed []string
	for _, data := range records {
		var room models.Room
		if err := json.Unmarshal(data, &room); err != nil {
			continue
		}

		touched := false
		if room.Owner == oldName {
			room.Owner = newName
			touched = true
		}
		for _, list := range [][]string{room.Members, room.InvitedUsers, room.BannedUsers} {
			for i, name := range list {
				if name == oldName {
					list[i] = newName
					touched = true
				}
			}
		}
		if !touched {
			continue
		}

		if err := s.save(ctx, &room); err != nil {
			return changed, err
		}
		changed = append(changed, room.ID)
	}
	return changed, nil
}

// without returns list with every occurrence of v removed.
func without(list []string, v string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		if s != v {
			out = append(out, s)
		}
	}
	return out
}
