package models

import "time"

// Room represents a chat room and its membership state.
type Room struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Owner                string    `json:"owner"`
	IsPublic             bool      `json:"is_public"`
	PasswordHash         string    `json:"password_hash,omitempty"`
	Topic                string    `json:"topic,omitempty"`
	Members              []string  `json:"members"`
	InvitedUsers         []string  `json:"invited_users"`
	BannedUsers          []string  `json:"banned_users"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
}

// HasPassword reports whether joining requires a password.
func (r *Room) HasPassword() bool {
	return r.PasswordHash != ""
}

// IsMember reports whether username is currently joined.
func (r *Room) IsMember(username string) bool {
	return contains(r.Members, username)
}

// IsInvited reports whether username holds a pending invite.
func (r *Room) IsInvited(username string) bool {
	return contains(r.InvitedUsers, username)
}

// IsBanned reports whether username has been banned from the room.
func (r *Room) IsBanned(username string) bool {
	return contains(r.BannedUsers, username)
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
