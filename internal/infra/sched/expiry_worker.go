package sched

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	portuc "lms-billing/internal/domain/ports/usecase"
)

// ExpiryWorker periodically moves lapsed subscriptions to expired and
// republishes the per-status gauges.
type ExpiryWorker struct {
	interval time.Duration
	sweeper  portuc.ExpirySweeper
	log      *zerolog.Logger
}

func NewExpiryWorker(interval time.Duration, sweeper portuc.ExpirySweeper, logger *zerolog.Logger) *ExpiryWorker {
	if interval <= 0 {
		interval = time.Hour
	}
	exprLog := logger.With().Str("component", "ExpiryWorker").Logger()
	return &ExpiryWorker{
		interval: interval,
		sweeper:  sweeper,
		log:      &exprLog,
	}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (w *ExpiryWorker) Run(ctx context.Context) error {
	w.log.Info().Dur("interval", w.interval).Msg("Starting expiry worker")
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	w.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			w.log.Info().Msg("Stopping expiry worker")
			return ctx.Err()
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *ExpiryWorker) tick(ctx context.Context) {
	if _, err := w.sweeper.ExpireDue(ctx); err != nil && ctx.Err() == nil {
		w.log.Error().Err(err).Msg("expiry sweep failed")
	}
	if err := w.sweeper.RefreshStatusGauges(ctx); err != nil && ctx.Err() == nil {
		w.log.Warn().Err(err).Msg("status gauges not refreshed")
	}
}
