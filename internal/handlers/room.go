package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatrooms/internal/api/middleware"
	"github.com/eldtechnologies/chatrooms/internal/metrics"
	"github.com/eldtechnologies/chatrooms/internal/models"
	"github.com/eldtechnologies/chatrooms/internal/notify"
	"github.com/eldtechnologies/chatrooms/internal/rooms"
	"github.com/eldtechnologies/chatrooms/internal/sanitize"
)

// RoomSummary is the listing view of a room.
type RoomSummary struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Owner       string    `json:"owner"`
	IsPublic    bool      `json:"is_public"`
	HasPassword bool      `json:"has_password"`
	Topic       string    `json:"topic,omitempty"`
	MemberCount int       `json:"member_count"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListRooms returns every room.
func (h *Handler) ListRooms(w http.ResponseWriter, r *http.Request) {
	list, err := h.rooms.List(r.Context())
	if err != nil {
		h.roomError(w, r, err)
		return
	}

	summaries := make([]RoomSummary, 0, len(list))
	for _, room := range list {
		summaries = append(summaries, RoomSummary{
			ID:          room.ID,
			Name:        room.Name,
			Owner:       room.Owner,
			IsPublic:    room.IsPublic,
			HasPassword: room.HasPassword(),
			Topic:       room.Topic,
			MemberCount: len(room.Members),
			CreatedAt:   room.CreatedAt,
		})
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{"rooms": summaries})
}

// GetRoom returns a single room.
func (h *Handler) GetRoom(w http.ResponseWriter, r *http.Request) {
	room, err := h.rooms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.roomError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, newRoomResponse(room))
}

// CreateRoomRequest represents the request to create a room.
type CreateRoomRequest struct {
	Name     string `json:"name"`
	IsPublic *bool  `json:"is_public,omitempty"` // default true
	Password string `json:"password,omitempty"`
	Topic    string `json:"topic,omitempty"`
}

// CreateRoom creates a room owned by the caller.
func (h *Handler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	var req CreateRoomRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	name, err := sanitize.RoomName(req.Name)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "name is required")
		return
	}
	isPublic := true
	if req.IsPublic != nil {
		isPublic = *req.IsPublic
	}

	owner := middleware.GetUserFromContext(r.Context())
	room, err := h.rooms.Create(r.Context(), rooms.CreateParams{
		Name:     name,
		Owner:    owner,
		IsPublic: isPublic,
		Password: req.Password,
		Topic:    sanitize.Topic(req.Topic),
	})
	if err != nil {
		h.roomError(w, r, err)
		return
	}

	metrics.RoomsCreated.Inc()
	h.logger.Info().Str("room", room.ID).Str("owner", owner).Bool("public", isPublic).Msg("room created")

	h.JSON(w, http.StatusCreated, newRoomResponse(room))
}

// UpdateRoom changes room settings. Only the owner may do this.
func (h *Handler) UpdateRoom(w http.ResponseWriter, r *http.Request) {
	var settings rooms.Settings
	if err := decodeJSON(r, &settings, true); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}
	if settings.Topic != nil {
		topic := sanitize.Topic(*settings.Topic)
		settings.Topic = &topic
	}

	room, err := h.rooms.UpdateSettings(r.Context(), chi.URLParam(r, "id"), middleware.GetUserFromContext(r.Context()), settings)
	if err != nil {
		h.roomError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, newRoomResponse(room))
}

// DeleteRoom removes a room, its history and its subscribers.
func (h *Handler) DeleteRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	username := middleware.GetUserFromContext(ctx)

	if err := h.rooms.Delete(ctx, id, username); err != nil {
		h.roomError(w, r, err)
		return
	}
	h.dropRoom(r, id, username)

	h.JSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// dropRoom cleans up after a room is gone.
func (h *Handler) dropRoom(r *http.Request, id, username string) {
	if err := h.eph.DeleteRoomMessages(r.Context(), id); err != nil {
		h.logger.Warn().Err(err).Str("room", id).Msg("failed to drop room history")
	}
	h.hub.Publish(notify.Event{Type: notify.EventDelete, RoomID: id, Username: username})
	h.hub.CloseRoom(id)
	metrics.RoomEvents.WithLabelValues(notify.EventDelete).Inc()
	h.logger.Info().Str("room", id).Str("user", username).Msg("room deleted")
}

// publish sends a membership event, honoring the room's notification setting.
func (h *Handler) publish(room *models.Room, eventType, username string, data interface{}) {
	metrics.RoomEvents.WithLabelValues(eventType).Inc()
	if !room.NotificationsEnabled {
		return
	}
	h.hub.Publish(notify.Event{Type: eventType, RoomID: room.ID, Username: username, Data: data})
}

// JoinRequest carries the room password, if any.
type JoinRequest struct {
	Password string `json:"password,omitempty"`
}

// JoinRoom adds the caller to a room.
func (h *Handler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	var req JoinRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	ctx := r.Context()
	username := middleware.GetUserFromContext(ctx)
	res, err := h.rooms.Join(ctx, chi.URLParam(r, "id"), username, req.Password)
	if err != nil {
		h.roomError(w, r, err)
		return
	}

	if res.Joined {
		h.publish(res.Room, notify.EventJoin, username, nil)
		if h.bot != nil {
			msg, err := h.bot.Welcome(ctx, res.Room.ID, username)
			if err != nil {
				h.logger.Warn().Err(err).Str("user", username).Msg("welcome failed")
			} else if msg != nil {
				h.hub.Publish(notify.Event{Type: notify.EventMessage, RoomID: msg.RoomID, Username: msg.From, Data: msg})
			}
		}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"joined": res.Joined,
		"room":   newRoomResponse(res.Room),
	})
}

// LeaveRoom removes the caller from a room. An owner leaving hands the room
// to the next member, or deletes it when nobody is left.
func (h *Handler) LeaveRoom(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	username := middleware.GetUserFromContext(ctx)

	res, err := h.rooms.Leave(ctx, id, username)
	if err != nil {
		h.roomError(w, r, err)
		return
	}

	switch {
	case res.Deleted:
		h.dropRoom(r, id, username)
	case res.Left:
		h.publish(res.Room, notify.EventLeave, username, nil)
		h.hub.Disconnect(id, username)
		if res.NewOwner != "" {
			metrics.RoomEvents.WithLabelValues(notify.EventOwner).Inc()
			h.hub.Publish(notify.Event{Type: notify.EventOwner, RoomID: id, Username: res.NewOwner})
		}
	}

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"left":      res.Left,
		"deleted":   res.Deleted,
		"new_owner": res.NewOwner,
	})
}

// MemberRequest names the target user of an invite, kick or unban.
type MemberRequest struct {
	Username string `json:"username"`
}

func (h *Handler) decodeMember(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req MemberRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return "", false
	}
	if req.Username == "" {
		h.Error(w, http.StatusBadRequest, "username is required")
		return "", false
	}
	return req.Username, true
}

// InviteUser adds a user to a room's invite list.
func (h *Handler) InviteUser(w http.ResponseWriter, r *http.Request) {
	target, ok := h.decodeMember(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	exists, err := h.users.Exists(ctx, target)
	if err != nil {
		h.internalError(w, r, err, "failed to look up user")
		return
	}
	if !exists {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}

	room, err := h.rooms.Invite(ctx, chi.URLParam(r, "id"), target, middleware.GetUserFromContext(ctx))
	if err != nil {
		h.roomError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, newRoomResponse(room))
}

// KickUser removes a member and bans them. Only the owner may do this.
func (h *Handler) KickUser(w http.ResponseWriter, r *http.Request) {
	target, ok := h.decodeMember(w, r)
	if !ok {
		return
	}

	ctx := r.Context()
	requester := middleware.GetUserFromContext(ctx)
	room, err := h.rooms.Kick(ctx, chi.URLParam(r, "id"), target, requester)
	if err != nil {
		h.roomError(w, r, err)
		return
	}

	h.publish(room, notify.EventKick, target, map[string]string{"by": requester})
	h.hub.Disconnect(room.ID, target)
	h.JSON(w, http.StatusOK, newRoomResponse(room))
}

// UnbanUser lifts a ban. Only the owner may do this.
func (h *Handler) UnbanUser(w http.ResponseWriter, r *http.Request) {
	target, ok := h.decodeMember(w, r)
	if !ok {
		return
	}

	room, err := h.rooms.Unban(r.Context(), chi.URLParam(r, "id"), target, middleware.GetUserFromContext(r.Context()))
	if err != nil {
		h.roomError(w, r, err)
		return
	}
	h.JSON(w, http.StatusOK, newRoomResponse(room))
}
