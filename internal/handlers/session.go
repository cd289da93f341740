package handlers

import (
	"net/http"
	"strings"

	"github.com/eldtechnologies/chatrooms/internal/api/middleware"
	"github.com/eldtechnologies/chatrooms/internal/metrics"
	"github.com/eldtechnologies/chatrooms/internal/models"
	"github.com/eldtechnologies/chatrooms/internal/sanitize"
)

// LoginRequest represents the login request body.
type LoginRequest struct {
	Nickname string `json:"nickname"`
}

// LoginResponse represents the login response.
type LoginResponse struct {
	Token     string `json:"token"`
	Username  string `json:"username"`
	Created   bool   `json:"created"`
	ExpiresIn int    `json:"expires_in"` // seconds of inactivity before the session ends
}

// Login registers the nickname on first use and opens a session.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	nickname, err := sanitize.Nickname(req.Nickname)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "nickname is required")
		return
	}
	if h.bot != nil && strings.EqualFold(nickname, h.bot.Name()) {
		h.Error(w, http.StatusConflict, "nickname is reserved")
		return
	}

	ctx := r.Context()
	created, err := h.users.Register(ctx, nickname)
	if err != nil {
		h.internalError(w, r, err, "failed to register user")
		return
	}
	if created {
		metrics.UsersRegistered.Inc()
	}

	token, err := h.sessions.Login(ctx, nickname)
	if err != nil {
		h.internalError(w, r, err, "failed to create session")
		return
	}
	if _, err := h.users.SetStatus(ctx, nickname, models.StatusOnline); err != nil {
		h.logger.Warn().Err(err).Str("user", nickname).Msg("failed to update status")
	}

	h.logger.Info().Str("user", nickname).Bool("created", created).Msg("user logged in")

	status := http.StatusOK
	if created {
		status = http.StatusCreated
	}
	h.JSON(w, status, LoginResponse{
		Token:     token,
		Username:  nickname,
		Created:   created,
		ExpiresIn: int(h.sessions.Timeout().Seconds()),
	})
}

// Logout ends the caller's session.
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	username := middleware.GetUserFromContext(ctx)
	token := middleware.GetTokenFromContext(ctx)

	if err := h.sessions.Logout(ctx, token, username); err != nil {
		h.internalError(w, r, err, "failed to end session")
		return
	}
	if _, err := h.users.SetStatus(ctx, username, models.StatusOffline); err != nil {
		h.logger.Warn().Err(err).Str("user", username).Msg("failed to update status")
	}

	h.JSON(w, http.StatusOK, map[string]string{"status": "logged out"})
}

// Heartbeat keeps the session alive. The session middleware already
// refreshed it by the time this runs.
func (h *Handler) Heartbeat(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, map[string]interface{}{
		"status":     "ok",
		"username":   middleware.GetUserFromContext(r.Context()),
		"expires_in": int(h.sessions.Timeout().Seconds()),
	})
}

// OnlineResponse lists users with a live session.
type OnlineResponse struct {
	Count int      `json:"count"`
	Users []string `json:"users"`
}

// Online returns the users seen within the session timeout.
func (h *Handler) Online(w http.ResponseWriter, r *http.Request) {
	active, err := h.sessions.Active(r.Context())
	if err != nil {
		h.internalError(w, r, err, "failed to list online users")
		return
	}
	if active == nil {
		active = []string{}
	}
	h.JSON(w, http.StatusOK, OnlineResponse{Count: len(active), Users: active})
}
