package notification

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// Notifier delivers a notification somewhere a human will see it.
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// Multi sends to every notifier and joins their errors. One failing channel
// does not stop the others.
type Multi []Notifier

func (m Multi) Notify(ctx context.Context, notification Notification) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to the log.
type LogNotifier struct {
	logger zerolog.Logger
}

func NewLogNotifier(logger zerolog.Logger) *LogNotifier {
	return &LogNotifier{logger: logger}
}

func (n *LogNotifier) Notify(_ context.Context, notification Notification) error {
	n.logger.Info().
		Str("type", notification.Type).
		Str("reference_id", notification.ReferenceID).
		Msgf("%s: %s", notification.Title, notification.Message)
	return nil
}
