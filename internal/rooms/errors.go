package rooms

import (
	"errors"
	"fmt"
)

// Room store errors. Callers match them with errors.Is.
var (
	ErrNotFound          = errors.New("room not found")
	ErrDenied            = errors.New("access denied")
	ErrInvalidCredential = errors.New("wrong room password")
	ErrInvalidName       = errors.New("invalid room name")
	ErrInvalidPassword   = errors.New("room password must be at most 72 bytes")
	// ErrConflict is reserved; room names are not unique.
	ErrConflict = errors.New("conflict")
)

// Refinements of ErrDenied.
var (
	ErrNotOwner       = fmt.Errorf("%w: only the room owner can do that", ErrDenied)
	ErrNotMember      = fmt.Errorf("%w: not a member of this room", ErrDenied)
	ErrBanned         = fmt.Errorf("%w: banned from this room", ErrDenied)
	ErrInviteRequired = fmt.Errorf("%w: invite required", ErrDenied)
)
