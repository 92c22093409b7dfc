package sched

import (
	"context"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"

	"lms-billing/internal/infra/metrics"
)

// PoolStatsWorker publishes connection pool gauges.
type PoolStatsWorker struct {
	interval time.Duration
	stat     func() *pgxpool.Stat
	log      *zerolog.Logger
}

func NewPoolStatsWorker(interval time.Duration, stat func() *pgxpool.Stat, logger *zerolog.Logger) *PoolStatsWorker {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	l := logger.With().Str("component", "PoolStatsWorker").Logger()
	return &PoolStatsWorker{interval: interval, stat: stat, log: &l}
}

func (w *PoolStatsWorker) Run(ctx context.Context) error {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		metrics.ObservePool(w.stat())
		select {
		case <-ctx.Done():
			w.log.Debug().Msg("pool stats worker stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
