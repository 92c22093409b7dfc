package notify

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/infra/metrics"
)

var (
	_ adapter.Notifier = (Multi)(nil)
	_ adapter.Notifier = (*LogNotifier)(nil)
)

// Multi delivers to every notifier and joins their errors.
type Multi []adapter.Notifier

func (m Multi) Send(ctx context.Context, n adapter.Notification) error {
	var errs []error
	for _, target := range m {
		if err := target.Send(ctx, n); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// LogNotifier writes notifications to the log. Used when email is disabled.
type LogNotifier struct {
	logger *zerolog.Logger
}

func NewLogNotifier(logger *zerolog.Logger) *LogNotifier {
	l := logger.With().Str("component", "logNotifier").Logger()
	return &LogNotifier{logger: &l}
}

func (l *LogNotifier) Send(ctx context.Context, n adapter.Notification) error {
	ev := l.logger.Info().Str("to", n.To).Str("subject", n.Subject).Strs("lines", n.Lines)
	if n.ExpiresAt != nil {
		ev = ev.Time("expires_at", *n.ExpiresAt)
	}
	ev.Msg("notification")
	metrics.IncNotification("log", "sent")
	return nil
}
