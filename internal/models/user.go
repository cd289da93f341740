package models

import "time"

// User is an entry in the nickname directory.
type User struct {
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Profile status values.
const (
	StatusOnline  = "online"
	StatusAway    = "away"
	StatusOffline = "offline"
)

// DefaultImage is the avatar assigned to users who never set one.
const DefaultImage = "default.png"

// Profile holds the display state of a user.
type Profile struct {
	Username string     `json:"username"`
	Image    string     `json:"image"`
	Status   string     `json:"status"`
	LastSeen *time.Time `json:"last_seen,omitempty"`
}
