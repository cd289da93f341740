package handlers

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/eldtechnologies/chatrooms/internal/metrics"
)

const version = "0.1.0"

// Check represents the status of a health check.
type Check struct {
	Status  string `json:"status"`            // "pass" or "fail"
	Latency string `json:"latency,omitempty"` // e.g., "2ms"
	Message string `json:"message,omitempty"`
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status    string           `json:"status"` // "healthy" or "degraded"
	Version   string           `json:"version"`
	Region    string           `json:"region,omitempty"`
	Instance  string           `json:"instance,omitempty"`
	Checks    map[string]Check `json:"checks"`
	Timestamp string           `json:"timestamp"`
}

type pinger interface {
	Ping(ctx context.Context) error
}

// Health handles the health check endpoint.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
	defer cancel()

	checks := make(map[string]Check)
	allHealthy := true

	for name, p := range map[string]pinger{"store": h.db, "ephemeral": h.eph} {
		check := ping(ctx, name, p)
		if check.Status != "pass" {
			allHealthy = false
		}
		checks[name] = check
	}

	status := "healthy"
	statusCode := http.StatusOK
	if !allHealthy {
		status = "degraded"
		statusCode = http.StatusServiceUnavailable
	}

	resp := HealthResponse{
		Status:    status,
		Version:   version,
		Region:    os.Getenv("FLY_REGION"),
		Instance:  os.Getenv("FLY_ALLOC_ID"),
		Checks:    checks,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}

	h.JSON(w, statusCode, resp)
}

func ping(ctx context.Context, name string, p pinger) Check {
	if p == nil {
		return Check{Status: "fail", Message: "not configured"}
	}
	start := time.Now()
	if err := p.Ping(ctx); err != nil {
		return Check{Status: "fail", Message: "connection failed"}
	}
	latency := time.Since(start)
	metrics.StoreLatency.WithLabelValues(name).Observe(latency.Seconds())
	return Check{Status: "pass", Latency: latency.String()}
}

// RootResponse represents the root endpoint response.
type RootResponse struct {
	Name      string   `json:"name"`
	Version   string   `json:"version"`
	Endpoints []string `json:"endpoints"`
}

// Root handles the API info endpoint.
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	h.JSON(w, http.StatusOK, RootResponse{
		Name:    "chatrooms",
		Version: version,
		Endpoints: []string{
			"GET /api", "GET /health", "GET /metrics", "POST /login", "POST /logout", "POST /heartbeat", "GET /online", "GET /stats",
			"GET /profiles/{username}", "PUT /profile", "POST /profile/rename",
			"GET /rooms", "POST /rooms", "GET /rooms/{id}", "PATCH /rooms/{id}", "DELETE /rooms/{id}",
			"POST /rooms/{id}/join", "POST /rooms/{id}/leave", "POST /rooms/{id}/invite",
			"POST /rooms/{id}/kick", "POST /rooms/{id}/unban",
			"GET /rooms/{id}/messages", "POST /rooms/{id}/messages", "GET /rooms/{id}/events",
			"GET /admin/moderation", "POST /admin/blocks", "DELETE /admin/blocks/{username}",
			"POST /admin/filters", "DELETE /admin/filters/{word}",
		},
	})
}
