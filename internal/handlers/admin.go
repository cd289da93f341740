package handlers

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/eldtechnologies/chatrooms/internal/api/middleware"
	"github.com/eldtechnologies/chatrooms/internal/moderation"
)

// ModerationState returns the admin, block and filter lists.
func (h *Handler) ModerationState(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, h.mod.Snapshot())
}

// BlockRequest names a user to block.
type BlockRequest struct {
	Username string `json:"username"`
}

// BlockUser stops a user from posting.
func (h *Handler) BlockUser(w http.ResponseWriter, r *http.Request) {
	var req BlockRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if h.mod.IsAdmin(req.Username) {
		h.Error(w, http.StatusBadRequest, "admins cannot be blocked")
		return
	}
	h.applyModeration(w, r, h.mod.Block(r.Context(), req.Username), "user blocked", req.Username)
}

// UnblockUser lifts a block. The username comes from the path or a JSON body.
func (h *Handler) UnblockUser(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")
	if username == "" {
		var req BlockRequest
		if err := decodeJSON(r, &req, true); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		username = req.Username
	}
	h.applyModeration(w, r, h.mod.Unblock(r.Context(), username), "user unblocked", username)
}

// FilterRequest names a word to mask.
type FilterRequest struct {
	Word string `json:"word"`
}

// AddFilter adds a word to the filter list.
func (h *Handler) AddFilter(w http.ResponseWriter, r *http.Request) {
	var req FilterRequest
	if err := decodeJSON(r, &req, true); err != nil {
		h.Error(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	h.applyModeration(w, r, h.mod.AddFilteredWord(r.Context(), req.Word), "filter added", req.Word)
}

// RemoveFilter removes a word from the filter list. Words the path cannot
// carry, such as ones containing "..", are sent as a JSON body instead.
func (h *Handler) RemoveFilter(w http.ResponseWriter, r *http.Request) {
	word := chi.URLParam(r, "word")
	if word == "" {
		var req FilterRequest
		if err := decodeJSON(r, &req, true); err != nil {
			h.Error(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
		word = req.Word
	}
	h.applyModeration(w, r, h.mod.RemoveFilteredWord(r.Context(), word), "filter removed", word)
}

func (h *Handler) applyModeration(w http.ResponseWriter, r *http.Request, err error, action, target string) {
	if errors.Is(err, moderation.ErrEmpty) {
		h.Error(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		h.internalError(w, r, err, "failed to update moderation lists")
		return
	}

	h.logger.Info().
		Str("admin", middleware.GetUserFromContext(r.Context())).
		Str("target", target).
		Msg(action)

	h.JSON(w, http.StatusOK, h.mod.Snapshot())
}
