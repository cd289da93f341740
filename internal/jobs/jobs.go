// Package jobs runs periodic maintenance tasks.
package jobs

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/rs/zerolog"

	"github.com/eldtechnologies/chatrooms/internal/metrics"
)

// Presence is the part of the session manager the sweep needs.
type Presence interface {
	Sweep(ctx context.Context) (int64, error)
	Active(ctx context.Context) ([]string, error)
}

// Start schedules the presence sweep every minute and returns the running
// scheduler. Callers stop it with Stop.
func Start(logger zerolog.Logger, presence Presence) (*gocron.Scheduler, error) {
	s := gocron.NewScheduler(time.UTC)

	if _, err := s.Every(1).Minute().Do(SweepPresence, logger, presence); err != nil {
		return nil, err
	}
	s.StartAsync()
	return s, nil
}

// SweepPresence drops stale heartbeats and refreshes the active users gauge.
func SweepPresence(logger zerolog.Logger, presence Presence) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	removed, err := presence.Sweep(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to sweep presence")
		return
	}

	active, err := presence.Active(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("failed to count active users")
		return
	}
	metrics.ActiveUsers.Set(float64(len(active)))

	if removed > 0 {
		logger.Debug().Int64("removed", removed).Int("active", len(active)).Msg("presence swept")
	}
}
