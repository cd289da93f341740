package models

// Message represents a chat message stored in the ephemeral store.
// ID is a ULID and Timestamp is Unix milliseconds.
type Message struct {
	ID        string `json:"id"`
	RoomID    string `json:"room_id"`
	From      string `json:"from"`
	Body      string `json:"body"`
	Bot       bool   `json:"bot,omitempty"`
	Timestamp int64  `json:"ts"`
}
