package handlers

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/chatbot"
	"github.com/eldtechnologies/chatrooms/internal/models"
	"github.com/eldtechnologies/chatrooms/internal/moderation"
	"github.com/eldtechnologies/chatrooms/internal/notify"
	"github.com/eldtechnologies/chatrooms/internal/rooms"
	"github.com/eldtechnologies/chatrooms/internal/session"
	"github.com/eldtechnologies/chatrooms/internal/store"
	"github.com/eldtechnologies/chatrooms/internal/users"
)

// Deps lists the components the handlers work with. Bot may be nil.
type Deps struct {
	Store      store.DataStore
	Ephemeral  store.Ephemeral
	Rooms      *rooms.Service
	Users      *users.Directory
	Sessions   *session.Manager
	Moderation *moderation.Manager
	Bot        *chatbot.Bot
	Hub        *notify.Hub
	Logger     zerolog.Logger
}

// Handler contains shared dependencies for all HTTP handlers.
type Handler struct {
	db       store.DataStore
	eph      store.Ephemeral
	rooms    *rooms.Service
	users    *users.Directory
	sessions *session.Manager
	mod      *moderation.Manager
	bot      *chatbot.Bot
	hub      *notify.Hub
	logger   zerolog.Logger
}

// NewHandler creates a new Handler with the given dependencies.
func NewHandler(d Deps) *Handler {
	return &Handler{
		db:       d.Store,
		eph:      d.Ephemeral,
		rooms:    d.Rooms,
		users:    d.Users,
		sessions: d.Sessions,
		mod:      d.Moderation,
		bot:      d.Bot,
		hub:      d.Hub,
		logger:   d.Logger,
	}
}

// JSON sends a JSON response with the given status code.
func (h *Handler) JSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Error sends a JSON error response with the given status code.
func (h *Handler) Error(w http.ResponseWriter, status int, message string) {
	h.JSON(w, status, map[string]string{"error": message})
}

// internalError logs err and sends a generic 500.
func (h *Handler) internalError(w http.ResponseWriter, r *http.Request, err error, msg string) {
	h.logger.Error().Err(err).Str("method", r.Method).Str("path", r.URL.Path).Msg(msg)
	h.Error(w, http.StatusInternalServerError, msg)
}

// roomError maps room store errors to HTTP responses.
func (h *Handler) roomError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, rooms.ErrNotFound):
		h.Error(w, http.StatusNotFound, err.Error())
	case errors.Is(err, rooms.ErrDenied):
		h.Error(w, http.StatusForbidden, err.Error())
	case errors.Is(err, rooms.ErrInvalidCredential):
		h.Error(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, rooms.ErrInvalidName):
		h.Error(w, http.StatusBadRequest, "name must be 1-50 characters")
	case errors.Is(err, rooms.ErrInvalidPassword):
		h.Error(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, rooms.ErrConflict):
		h.Error(w, http.StatusConflict, err.Error())
	default:
		h.internalError(w, r, err, "room store failure")
	}
}

// decodeJSON reads the request body into v. An empty body leaves v unchanged.
// With strict set, unknown fields are rejected.
func decodeJSON(r *http.Request, v interface{}, strict bool) error {
	dec := json.NewDecoder(r.Body)
	if strict {
		dec.DisallowUnknownFields()
	}
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// RoomResponse is the API view of a room. The password hash never leaves the server.
type RoomResponse struct {
	ID                   string    `json:"id"`
	Name                 string    `json:"name"`
	Owner                string    `json:"owner"`
	IsPublic             bool      `json:"is_public"`
	HasPassword          bool      `json:"has_password"`
	Topic                string    `json:"topic,omitempty"`
	Members              []string  `json:"members"`
	InvitedUsers         []string  `json:"invited_users"`
	BannedUsers          []string  `json:"banned_users"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	CreatedAt            time.Time `json:"created_at"`
}

func newRoomResponse(room *models.Room) RoomResponse {
	return RoomResponse{
		ID:                   room.ID,
		Name:                 room.Name,
		Owner:                room.Owner,
		IsPublic:             room.IsPublic,
		HasPassword:          room.HasPassword(),
		Topic:                room.Topic,
		Members:              nonNil(room.Members),
		InvitedUsers:         nonNil(room.InvitedUsers),
		BannedUsers:          nonNil(room.BannedUsers),
		NotificationsEnabled: room.NotificationsEnabled,
		CreatedAt:            room.CreatedAt,
	}
}

func nonNil(list []string) []string {
	if list == nil {
		return []string{}
	}
	return list
}
