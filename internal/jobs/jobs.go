// Package jobs runs periodic maintenance on a gocron scheduler.
package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/iliyamo/tour-booking/internal/logging"
)

// TokenPurger deletes refresh tokens that expired or were revoked before cutoff.
type TokenPurger interface {
	PurgeStale(ctx context.Context, cutoff time.Time) (int64, error)
}

// RevokedGrace is how long revoked tokens are kept before purging.
const RevokedGrace = 24 * time.Hour

type Scheduler struct {
	s gocron.Scheduler
}

// Start schedules the refresh token purge every interval and starts the
// scheduler.
func Start(tokens TokenPurger, every time.Duration) (*Scheduler, error) {
	if every <= 0 {
		every = time.Hour
	}
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("new scheduler: %w", err)
	}
	_, err = s.NewJob(
		gocron.DurationJob(every),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
			defer cancel()
			_, _ = PurgeTokens(ctx, tokens, time.Now().UTC())
		}),
		gocron.WithName("purge-refresh-tokens"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("schedule token purge: %w", err)
	}
	s.Start()
	logging.Info().Dur("every", every).Msg("scheduler started")
	return &Scheduler{s: s}, nil
}

// Shutdown stops the scheduler and waits for running jobs.
func (s *Scheduler) Shutdown() error {
	return s.s.Shutdown()
}

// PurgeTokens runs one purge pass relative to now.
func PurgeTokens(ctx context.Context, tokens TokenPurger, now time.Time) (int64, error) {
	n, err := tokens.PurgeStale(ctx, now.Add(-RevokedGrace))
	if err != nil {
		logging.Error().Err(err).Msg("refresh token purge failed")
		return 0, err
	}
	logging.Info().Int64("deleted", n).Msg("refresh tokens purged")
	return n, nil
}
