package crypto

import (
	"github.com/google/uuid"
)

// NewRoomID returns a time-ordered UUIDv7, so rooms list in creation order.
func NewRoomID() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewSessionToken returns a random UUIDv4 used as a bearer token.
func NewSessionToken() string {
	return uuid.NewString()
}
