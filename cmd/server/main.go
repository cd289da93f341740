package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/eldtechnologies/chatrooms/internal/api"
	"github.com/eldtechnologies/chatrooms/internal/api/middleware"
	"github.com/eldtechnologies/chatrooms/internal/chatbot"
	"github.com/eldtechnologies/chatrooms/internal/config"
	"github.com/eldtechnologies/chatrooms/internal/handlers"
	"github.com/eldtechnologies/chatrooms/internal/jobs"
	"github.com/eldtechnologies/chatrooms/internal/metrics"
	"github.com/eldtechnologies/chatrooms/internal/moderation"
	"github.com/eldtechnologies/chatrooms/internal/notify"
	"github.com/eldtechnologies/chatrooms/internal/rooms"
	"github.com/eldtechnologies/chatrooms/internal/session"
	"github.com/eldtechnologies/chatrooms/internal/store"
	"github.com/eldtechnologies/chatrooms/internal/users"
)

var cfg = config.Load()

var rootCmd = &cobra.Command{
	Use:   "chatrooms",
	Short: "Multi-room chat server",
	RunE:  runServer,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port (env PORT)")
	flags.StringVar(&cfg.Env, "env", cfg.Env, "development or production (env ENV)")
	flags.StringVar(&cfg.StoreBackend, "store", cfg.StoreBackend, "keyed store backend: pebble, sqlite or postgres (env STORE_BACKEND)")
	flags.StringVar(&cfg.DataDir, "data-dir", cfg.DataDir, "Pebble data directory (env DATA_DIR)")
	flags.StringVar(&cfg.SQLitePath, "sqlite-path", cfg.SQLitePath, "SQLite database file (env SQLITE_PATH)")
	flags.BoolVar(&cfg.BotEnabled, "bot", cfg.BotEnabled, "enable the moderation bot (env BOT_ENABLED)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger() zerolog.Logger {
	if cfg.IsDevelopment() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	}
	return zerolog.New(os.Stdout).
		With().
		Timestamp().
		Logger()
}

// openStore opens the configured keyed store.
func openStore(ctx context.Context, logger zerolog.Logger) (store.DataStore, error) {
	switch cfg.StoreBackend {
	case config.BackendSQLite:
		s, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		logger.Info().Str("path", cfg.SQLitePath).Msg("opened SQLite store")
		return s, nil
	case config.BackendPostgres:
		logger.Info().Msg("running database migrations...")
		if err := store.RunMigrations(cfg.DatabaseURL); err != nil {
			return nil, fmt.Errorf("migrate: %w", err)
		}
		logger.Info().Msg("migrations completed")
		s, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		logger.Info().Msg("connected to PostgreSQL")
		return s, nil
	default:
		s, err := store.NewPebbleStore(ctx, cfg.DataDir, logger)
		if err != nil {
			return nil, fmt.Errorf("open pebble: %w", err)
		}
		logger.Info().Str("dir", cfg.DataDir).Msg("opened Pebble store")
		return s, nil
	}
}

// openEphemeral returns Redis-backed state when REDIS_URL is set and an
// in-process cache otherwise, plus the matching rate limit counter.
func openEphemeral(ctx context.Context, logger zerolog.Logger) (store.Ephemeral, middleware.Counter, error) {
	if cfg.RedisURL == "" {
		logger.Warn().Msg("REDIS_URL not set, keeping sessions and history in memory")
		return store.NewMemoryStore(), middleware.NewMemoryCounter(), nil
	}
	rs, err := store.NewRedisStore(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("connect redis: %w", err)
	}
	logger.Info().Msg("connected to Redis")
	return rs, middleware.NewRedisCounter(rs.Client()), nil
}

func runServer(cmd *cobra.Command, args []string) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	logger := newLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := openStore(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("store unavailable")
		return err
	}
	defer db.Close()

	eph, counter, err := openEphemeral(ctx, logger)
	if err != nil {
		logger.Error().Err(err).Msg("ephemeral store unavailable")
		return err
	}
	defer eph.Close()

	mod, err := moderation.Load(ctx, db, cfg.Admins, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to load moderation lists")
		return err
	}

	sessions := session.NewManager(eph, cfg.SessionTimeout)

	var bot *chatbot.Bot
	if cfg.BotEnabled {
		bot = chatbot.New(chatbot.Config{
			Name:       cfg.BotName,
			Words:      cfg.BotHarmfulWords,
			BlockAfter: cfg.BotBlockAfter,
		}, eph, mod, logger)
	}

	hub := notify.NewHub(logger)
	hub.OnSubscribersChanged(func(total int) {
		metrics.EventSubscribers.Set(float64(total))
	})

	scheduler, err := jobs.Start(logger, sessions)
	if err != nil {
		logger.Error().Err(err).Msg("failed to schedule jobs")
		return err
	}
	defer scheduler.Stop()

	router := api.NewRouter(logger, handlers.Deps{
		Store:      db,
		Ephemeral:  eph,
		Rooms:      rooms.NewService(db, rooms.WithLogger(logger)),
		Users:      users.NewDirectory(db),
		Sessions:   sessions,
		Moderation: mod,
		Bot:        bot,
		Hub:        hub,
		Logger:     logger,
	}, api.Options{
		Counter: counter,
		RateLimit: middleware.RateLimiterConfig{
			Whitelist:        cfg.RateLimitWhitelist,
			AutoBlockEnabled: cfg.AutoBlockEnabled,
		},
	})

	// WriteTimeout stays zero so event streams are not cut off.
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Str("store", cfg.StoreBackend).
			Bool("bot", bot != nil).
			Msg("starting chatrooms server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()

	select {
	case err := <-errc:
		if err != nil {
			logger.Error().Err(err).Msg("server failed to start")
			return err
		}
	case <-ctx.Done():
	}

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server forced to shutdown")
		return err
	}

	logger.Info().Msg("server stopped")
	return nil
}
