package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/api/middleware"
	"github.com/eldtechnologies/chatrooms/internal/handlers"
	"github.com/eldtechnologies/chatrooms/internal/session"
)

// Options configures the router's rate limiting.
type Options struct {
	Counter   middleware.Counter
	RateLimit middleware.RateLimiterConfig
}

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, deps handlers.Deps, opts Options) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(8 * 1024)) // 8KB max body
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	// Rate limiting
	counter := opts.Counter
	if counter == nil {
		counter = middleware.NewMemoryCounter()
	}
	rlCfg := opts.RateLimit
	if rlCfg.Sessions == nil && deps.Sessions != nil {
		rlCfg.Sessions = deps.Sessions
	}
	limiter := middleware.NewRateLimiter(counter, logger, rlCfg)
	r.Use(limiter.Middleware)

	// CORS - browser clients may be served from anywhere
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	h := handlers.NewHandler(deps)
	auth := middleware.NewAuthMiddleware(deps.Sessions, deps.Moderation, session.ErrInvalidToken)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no session required)
	r.Get("/", h.Root)
	r.Get("/api", h.Root)
	r.Get("/health", h.Health)
	r.Get("/stats", h.Stats)
	r.Get("/online", h.Online)
	r.Post("/login", h.Login)
	r.Get("/profiles/{username}", h.GetProfile)
	r.Get("/rooms", h.ListRooms)
	r.Get("/rooms/{id}", h.GetRoom)

	// Session routes
	r.Group(func(r chi.Router) {
		r.Use(auth.RequireSession)

		r.Post("/logout", h.Logout)
		r.Post("/heartbeat", h.Heartbeat)
		r.Put("/profile", h.UpdateProfile)
		r.Post("/profile/rename", h.Rename)

		r.Post("/rooms", h.CreateRoom)
		r.Patch("/rooms/{id}", h.UpdateRoom)
		r.Delete("/rooms/{id}", h.DeleteRoom)
		r.Post("/rooms/{id}/join", h.JoinRoom)
		r.Post("/rooms/{id}/leave", h.LeaveRoom)
		r.Post("/rooms/{id}/invite", h.InviteUser)
		r.Post("/rooms/{id}/kick", h.KickUser)
		r.Post("/rooms/{id}/unban", h.UnbanUser)
		r.Get("/rooms/{id}/messages", h.GetMessages)
		r.Post("/rooms/{id}/messages", h.PostMessage)
		r.Get("/rooms/{id}/events", h.RoomEvents)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireAdmin)

			r.Get("/moderation", h.ModerationState)
			r.Post("/blocks", h.BlockUser)
			r.Delete("/blocks", h.UnblockUser)
			r.Delete("/blocks/{username}", h.UnblockUser)
			r.Post("/filters", h.AddFilter)
			r.Delete("/filters", h.RemoveFilter)
			r.Delete("/filters/{word}", h.RemoveFilter)
		})
	})

	return r
}
