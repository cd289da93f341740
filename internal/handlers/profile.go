package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatrooms/internal/api/middleware"
	"github.com/eldtechnologies/chatrooms/internal/sanitize"
	"github.com/eldtechnologies/chatrooms/internal/users"
)

// GetProfile returns a user's public profile.
func (h *Handler) GetProfile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	profile, err := h.users.GetProfile(r.Context(), username)
	if errors.Is(err, users.ErrNotFound) {
		h.Error(w, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to load profile")
		return
	}

	h.JSON(w, http.StatusOK, profile)
}

// UpdateProfileRequest represents a profile update.
type UpdateProfileRequest struct {
	Status string `json:"status"`
}

// UpdateProfile changes the caller's presence status.
func (h *Handler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	var req UpdateProfileRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	username := middleware.GetUserFromContext(r.Context())
	profile, err := h.users.SetStatus(r.Context(), username, req.Status)
	if errors.Is(err, users.ErrInvalidStatus) {
		h.Error(w, http.StatusBadRequest, "status must be online, away or offline")
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to update profile")
		return
	}

	h.JSON(w, http.StatusOK, profile)
}

// RenameRequest represents a nickname change.
type RenameRequest struct {
	Nickname string `json:"nickname"`
}

// Rename changes the caller's nickname everywhere it is referenced:
// the directory, the session, room rosters and moderation lists.
func (h *Handler) Rename(w http.ResponseWriter, r *http.Request) {
	var req RenameRequest
	if err := decodeJSON(r, &req, false); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	newName, err := sanitize.Nickname(req.Nickname)
	if err != nil {
		h.Error(w, http.StatusBadRequest, "nickname is required")
		return
	}

	ctx := r.Context()
	oldName := middleware.GetUserFromContext(ctx)
	if newName == oldName {
		h.Error(w, http.StatusBadRequest, "nickname unchanged")
		return
	}
	if h.bot != nil && strings.EqualFold(newName, h.bot.Name()) {
		h.Error(w, http.StatusConflict, "nickname is reserved")
		return
	}

	switch err := h.users.Rename(ctx, oldName, newName); {
	case errors.Is(err, users.ErrTaken):
		h.Error(w, http.StatusConflict, "nickname already taken")
		return
	case err != nil:
		h.internalError(w, r, err, "failed to rename user")
		return
	}

	if err := h.sessions.Rename(ctx, middleware.GetTokenFromContext(ctx), oldName, newName); err != nil {
		h.internalError(w, r, err, "failed to move session")
		return
	}
	changed, err := h.rooms.RenameMember(ctx, oldName, newName)
	if err != nil {
		h.internalError(w, r, err, "failed to update rooms")
		return
	}
	if err := h.mod.RenameUser(ctx, oldName, newName); err != nil {
		h.internalError(w, r, err, "failed to update moderation lists")
		return
	}

	h.hub.RenameUser(oldName, newName)

	h.logger.Info().Str("from", oldName).Str("to", newName).Int("rooms", len(changed)).Msg("user renamed")

	h.JSON(w, http.StatusOK, map[string]interface{}{
		"username": newName,
		"rooms":    nonNil(changed),
	})
}
