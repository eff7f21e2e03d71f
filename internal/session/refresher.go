package session

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/katatrina/gundam-live/internal/token"
	"github.com/rs/zerolog/log"
)

// Store is where the refresher reads and writes the current token.
type Store interface {
	Token(ctx context.Context) (string, error)
	Save(ctx context.Context, accessToken string) error
}

// Authenticator obtains a brand new access token, typically by logging in.
type Authenticator interface {
	Login(ctx context.Context) (string, error)
}

// Refresher periodically replaces the cached token before it expires, so a
// reconnect never has to wait on a login round trip.
type Refresher struct {
	store     Store
	auth      Authenticator
	interval  time.Duration
	window    time.Duration
	scheduler gocron.Scheduler
}

func NewRefresher(store Store, auth Authenticator, interval, window time.Duration) (*Refresher, error) {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, err
	}

	return &Refresher{
		store:     store,
		auth:      auth,
		interval:  interval,
		window:    window,
		scheduler: scheduler,
	}, nil
}

// Start runs the refresh job now and then every interval.
func (r *Refresher) Start() error {
	_, err := r.scheduler.NewJob(
		gocron.DurationJob(r.interval),
		gocron.NewTask(
			func() {
				ctx, cancel := context.WithTimeout(context.Background(), r.interval)
				defer cancel()

				if err := r.Refresh(ctx); err != nil {
					log.Error().Err(err).Str("job", "refresh_access_token").Msg("failed to refresh access token 😣")
				}
			},
		),
		gocron.WithStartAt(gocron.WithStartImmediately()),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		return err
	}

	r.scheduler.Start()
	return nil
}

func (r *Refresher) Stop() error {
	return r.scheduler.Shutdown()
}

// Refresh logs in again when the cached token is missing or expires within the window.
func (r *Refresher) Refresh(ctx context.Context) error {
	current, err := r.store.Token(ctx)
	if err != nil {
		return err
	}
	if current != "" {
		expiresAt, ok := token.ExpiresAt(current)
		if !ok || time.Until(expiresAt) > r.window {
			return nil
		}
	}

	fresh, err := r.auth.Login(ctx)
	if err != nil {
		return fmt.Errorf("failed to log in: %w", err)
	}
	if err = r.store.Save(ctx, fresh); err != nil {
		return err
	}

	log.Info().Msg("access token refreshed ✅")
	return nil
}
