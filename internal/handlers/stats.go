package handlers

import (
	"net/http"
)

// StatsResponse represents the response from the stats endpoint.
type StatsResponse struct {
	TotalUsers       int `json:"total_users"`
	TotalRooms       int `json:"total_rooms"`
	PublicRooms      int `json:"public_rooms"`
	OnlineUsers      int `json:"online_users"`
	EventSubscribers int `json:"event_subscribers"`
}

// Stats returns server-wide counts.
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	totalUsers, err := h.users.Count(ctx)
	if err != nil {
		h.internalError(w, r, err, "failed to count users")
		return
	}

	list, err := h.rooms.List(ctx)
	if err != nil {
		h.internalError(w, r, err, "failed to count rooms")
		return
	}
	public := 0
	for _, room := range list {
		if room.IsPublic {
			public++
		}
	}

	online, err := h.sessions.Active(ctx)
	if err != nil {
		h.internalError(w, r, err, "failed to count online users")
		return
	}

	h.JSON(w, http.StatusOK, StatsResponse{
		TotalUsers:       totalUsers,
		TotalRooms:       len(list),
		PublicRooms:      public,
		OnlineUsers:      len(online),
		EventSubscribers: h.hub.Subscribers(),
	})
}
