package handlers

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatrooms/internal/api/middleware"
	"github.com/eldtechnologies/chatrooms/internal/metrics"
	"github.com/eldtechnologies/chatrooms/internal/models"
	"github.com/eldtechnologies/chatrooms/internal/notify"
	"github.com/eldtechnologies/chatrooms/internal/rooms"
	"github.com/eldtechnologies/chatrooms/internal/sanitize"
)

const (
	defaultMessageLimit = 50
	maxMessageLimit     = 200
)

// memberRoom loads the room in the URL and checks the caller belongs to it.
func (h *Handler) memberRoom(w http.ResponseWriter, r *http.Request) (*models.Room, string, bool) {
	username := middleware.GetUserFromContext(r.Context())
	room, err := h.rooms.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.roomError(w, r, err)
		return nil, "", false
	}
	if !room.IsMember(username) {
		h.roomError(w, r, rooms.ErrNotMember)
		return nil, "", false
	}
	return room, username, true
}

// MessagesResponse is a page of room history, newest first.
type MessagesResponse struct {
	RoomID   string           `json:"room_id"`
	Messages []models.Message `json:"messages"`
	HasMore  bool             `json:"has_more"`
}

// GetMessages returns room history for members. Messages from blocked users
// are hidden and filtered words are masked.
func (h *Handler) GetMessages(w http.ResponseWriter, r *http.Request) {
	room, _, ok := h.memberRoom(w, r)
	if !ok {
		return
	}

	limit := defaultMessageLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		parsed, err := strconv.Atoi(l)
		if err != nil || parsed < 1 {
			h.Error(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = parsed
	}
	if limit > maxMessageLimit {
		limit = maxMessageLimit
	}

	var before int64
	if b := r.URL.Query().Get("before"); b != "" {
		parsed, err := strconv.ParseInt(b, 10, 64)
		if err != nil {
			h.Error(w, http.StatusBadRequest, "before must be a millisecond timestamp")
			return
		}
		before = parsed
	}

	// One extra to learn whether another page exists.
	msgs, err := h.eph.GetRoomMessages(r.Context(), room.ID, limit+1, before)
	if err != nil {
		h.internalError(w, r, err, "failed to load messages")
		return
	}
	hasMore := len(msgs) > limit
	if hasMore {
		msgs = msgs[:limit]
	}

	out := make([]models.Message, 0, len(msgs))
	for _, m := range msgs {
		if h.mod.IsBlocked(m.From) {
			continue
		}
		m.Body = h.mod.Filter(m.Body)
		out = append(out, m)
	}

	h.JSON(w, http.StatusOK, MessagesResponse{RoomID: room.ID, Messages: out, HasMore: hasMore})
}

// PostMessageRequest represents a new chat message.
type PostMessageRequest struct {
	Body string `json:"body"`
}

// ModerationResponse is returned when the bot rejects a message.
type ModerationResponse struct {
	Error   string          `json:"error"`
	Level   int64           `json:"warning_level"`
	Blocked bool            `json:"blocked"`
	Reply   *models.Message `json:"reply,omitempty"`
}

// PostMessage stores a message from a member and fans it out to subscribers.
func (h *Handler) PostMessage(w http.ResponseWriter, r *http.Request) {
	room, username, ok := h.memberRoom(w, r)
	if !ok {
		return
	}
	if h.mod.IsBlocked(username) {
		h.Error(w, http.StatusForbidden, "you are blocked from posting")
		return
	}

	var req PostMessageRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	body, err := sanitize.Message(req.Body)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "message body is required")
		return
	}

	ctx := r.Context()
	if h.bot != nil {
		verdict, err := h.bot.Inspect(ctx, room.ID, username, body)
		if err != nil {
			h.internalError(w, r, err, "failed to inspect message")
			return
		}
		if verdict.Harmful {
			outcome := "warned"
			if verdict.Blocked {
				outcome = "blocked"
			}
			metrics.BotWarnings.WithLabelValues(outcome).Inc()
			if verdict.Reply != nil {
				h.hub.Publish(notify.Event{Type: notify.EventMessage, RoomID: room.ID, Username: verdict.Reply.From, Data: verdict.Reply})
			}
			h.JSON(w, http.StatusUnprocessableEntity, ModerationResponse{
				Error:   "message rejected by moderation",
				Level:   verdict.Level,
				Blocked: verdict.Blocked,
				Reply:   verdict.Reply,
			})
			return
		}
	}

	msg := &models.Message{RoomID: room.ID, From: username, Body: body}
	if err := h.eph.AddMessage(ctx, msg); err != nil {
		h.internalError(w, r, err, "failed to store message")
		return
	}

	roomType := "public"
	if !room.IsPublic {
		roomType = "private"
	}
	metrics.MessagesPosted.WithLabelValues(roomType).Inc()

	out := *msg
	out.Body = h.mod.Filter(out.Body)
	h.hub.Publish(notify.Event{Type: notify.EventMessage, RoomID: room.ID, Username: username, Data: out})

	h.JSON(w, http.StatusCreated, map[string]interface{}{
		"id": msg.ID,
		"ts": msg.Timestamp,
	})
}

// RoomEvents streams a room's events over a WebSocket. Members only.
func (h *Handler) RoomEvents(w http.ResponseWriter, r *http.Request) {
	room, username, ok := h.memberRoom(w, r)
	if !ok {
		return
	}
	h.hub.ServeWS(w, r, room.ID, username)
}
