// Package users keeps the nickname directory and user profiles.
package users

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/eldtechnologies/chatrooms/internal/models"
	"github.com/eldtechnologies/chatrooms/internal/store"
)

const (
	userPrefix    = "users/"
	profilePrefix = "profiles/"
)

var (
	// ErrNotFound is returned for unknown usernames.
	ErrNotFound = errors.New("user not found")
	// ErrTaken is returned when renaming to a nickname that already exists.
	ErrTaken = errors.New("nickname already taken")
	// ErrInvalidStatus is returned for unknown profile status values.
	ErrInvalidStatus = errors.New("invalid status")
)

// Directory stores users and their profiles in the keyed store.
type Directory struct {
	mu  sync.Mutex
	db  store.DataStore
	now func() time.Time
}

// NewDirectory creates a user directory backed by db.
func NewDirectory(db store.DataStore) *Directory {
	return &Directory{db: db, now: time.Now}
}

// Register adds username to the directory if it is not there yet.
// It reports whether a new user was created.
func (d *Directory) Register(ctx context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exists, err := d.exists(ctx, username)
	if err != nil || exists {
		return false, err
	}

	user := models.User{Username: username, CreatedAt: d.now().UTC()}
	if err := d.put(ctx, userPrefix+username, user); err != nil {
		return false, err
	}
	return true, nil
}

// Exists reports whether username is registered.
func (d *Directory) Exists(ctx context.Context, username string) (bool, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	return d.exists(ctx, username)
}

func (d *Directory) exists(ctx context.Context, username string) (bool, error) {
	_, err := d.db.Get(ctx, userPrefix+username)
	if errors.Is(err, store.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Count returns the number of registered users.
func (d *Directory) Count(ctx context.Context) (int, error) {
	records, err := d.db.List(ctx, userPrefix)
	if err != nil {
		return 0, err
	}
	return len(records), nil
}

// Rename moves a user and their profile to a new nickname.
func (d *Directory) Rename(ctx context.Context, oldName, newName string) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if oldName == newName {
		return nil
	}

	data, err := d.db.Get(ctx, userPrefix+oldName)
	if errors.Is(err, store.ErrNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	var user models.User
	if err := json.Unmarshal(data, &user); err != nil {
		return fmt.Errorf("decode user %s: %w", oldName, err)
	}
	taken, err := d.exists(ctx, newName)
	if err != nil {
		return err
	}
	if taken {
		return ErrTaken
	}

	profile, err := d.getProfile(ctx, oldName)
	if err != nil {
		return err
	}
	profile.Username = newName

	user.Username = newName
	if err := d.put(ctx, userPrefix+newName, user); err != nil {
		return err
	}
	if err := d.put(ctx, profilePrefix+newName, profile); err != nil {
		return err
	}
	if err := d.db.Delete(ctx, profilePrefix+oldName); err != nil {
		return err
	}
	return d.db.Delete(ctx, userPrefix+oldName)
}

// GetProfile returns the profile of username, with defaults for users who
// never saved one.
func (d *Directory) GetProfile(ctx context.Context, username string) (*models.Profile, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	exists, err := d.exists(ctx, username)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, ErrNotFound
	}
	return d.getProfile(ctx, username)
}

func (d *Directory) getProfile(ctx context.Context, username string) (*models.Profile, error) {
	profile := &models.Profile{
		Username: username,
		Image:    models.DefaultImage,
		Status:   models.StatusOffline,
	}

	data, err := d.db.Get(ctx, profilePrefix+username)
	if errors.Is(err, store.ErrNotFound) {
		return profile, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, profile); err != nil {
		return nil, fmt.Errorf("decode profile %s: %w", username, err)
	}
	return profile, nil
}

// SetStatus updates the status of username and stamps last_seen.
func (d *Directory) SetStatus(ctx context.Context, username, status string) (*models.Profile, error) {
	switch status {
	case models.StatusOnline, models.StatusAway, models.StatusOffline:
	default:
		return nil, ErrInvalidStatus
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	profile, err := d.getProfile(ctx, username)
	if err != nil {
		return nil, err
	}
	now := d.now().UTC()
	profile.Status = status
	profile.LastSeen = &now

	if err := d.put(ctx, profilePrefix+username, profile); err != nil {
		return nil, err
	}
	return profile, nil
}

func (d *Directory) put(ctx context.Context, key string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return d.db.Put(ctx, key, data)
}
