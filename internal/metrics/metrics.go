package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP metrics
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrooms_http_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrooms_http_request_duration_seconds",
			Help:    "HTTP request duration",
			Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
		},
		[]string{"method", "path"},
	)

	// Business metrics
	UsersRegistered = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrooms_users_registered_total",
			Help: "Total nicknames registered",
		},
	)

	RoomsCreated = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "chatrooms_rooms_created_total",
			Help: "Total rooms created",
		},
	)

	RoomEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrooms_room_events_total",
			Help: "Total room membership events",
		},
		[]string{"event"}, // join, leave, kick, delete
	)

	MessagesPosted = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrooms_messages_posted_total",
			Help: "Total messages posted",
		},
		[]string{"room_type"}, // "public" or "private"
	)

	BotWarnings = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrooms_bot_warnings_total",
			Help: "Total harmful messages rejected by the bot",
		},
		[]string{"outcome"}, // "warned" or "blocked"
	)

	ActiveUsers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrooms_active_users",
			Help: "Unique users with a recent heartbeat",
		},
	)

	EventSubscribers = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatrooms_event_subscribers",
			Help: "Open room event streams",
		},
	)

	// Rate limit metrics
	RateLimitHits = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrooms_rate_limit_hits_total",
			Help: "Total rate limit hits",
		},
		[]string{"endpoint"},
	)

	BlockedRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatrooms_blocked_requests_total",
			Help: "Total blocked requests",
		},
		[]string{"reason"},
	)

	// Infrastructure metrics
	StoreLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatrooms_store_latency_seconds",
			Help:    "Store health check latency",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1},
		},
		[]string{"store"}, // "data" or "ephemeral"
	)
)
