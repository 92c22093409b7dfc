// File: internal/usecase/stats_uc.go
package usecase

import (
	"context"

	"github.com/rs/zerolog"

	"lms-billing/internal/domain/model"
	"lms-billing/internal/domain/ports/repository"
	"lms-billing/internal/infra/logging"
)

// Compile-time check
var _ StatsUseCase = (*statsUC)(nil)

// AdminStats is the admin dashboard summary.
type AdminStats struct {
	Revenue       model.Revenue                    `json:"revenue"`
	Subscriptions map[model.SubscriptionStatus]int `json:"subscriptions"`
}

type StatsUseCase interface {
	Revenue(ctx context.Context) (model.Revenue, error)
	CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error)
	Overview(ctx context.Context) (*AdminStats, error)
}

type statsUC struct {
	subs     repository.SubscriptionRepository
	payments repository.PaymentRepository
	log      *zerolog.Logger
}

func NewStatsUseCase(subs repository.SubscriptionRepository, payments repository.PaymentRepository, logger *zerolog.Logger) *statsUC {
	return &statsUC{subs: subs, payments: payments, log: componentLogger(logger, "statsUC")}
}

// Revenue totals minor units paid since the start of the current week, month and year.
func (u *statsUC) Revenue(ctx context.Context) (model.Revenue, error) {
	defer logging.TraceDuration(u.log, "StatsUC.Revenue")()
	var r model.Revenue
	var err error
	if r.Week, err = u.payments.SumByPeriod(ctx, repository.NoTX, "week"); err != nil {
		return model.Revenue{}, err
	}
	if r.Month, err = u.payments.SumByPeriod(ctx, repository.NoTX, "month"); err != nil {
		return model.Revenue{}, err
	}
	if r.Year, err = u.payments.SumByPeriod(ctx, repository.NoTX, "year"); err != nil {
		return model.Revenue{}, err
	}
	return r, nil
}

func (u *statsUC) CountByStatus(ctx context.Context) (map[model.SubscriptionStatus]int, error) {
	defer logging.TraceDuration(u.log, "StatsUC.CountByStatus")()
	counts, err := u.subs.CountByStatus(ctx, repository.NoTX)
	if err != nil {
		return nil, err
	}
	if counts == nil {
		counts = map[model.SubscriptionStatus]int{}
	}
	for _, st := range model.AllSubscriptionStatuses {
		if _, ok := counts[st]; !ok {
			counts[st] = 0
		}
	}
	return counts, nil
}

func (u *statsUC) Overview(ctx context.Context) (*AdminStats, error) {
	rev, err := u.Revenue(ctx)
	if err != nil {
		return nil, err
	}
	counts, err := u.CountByStatus(ctx)
	if err != nil {
		return nil, err
	}
	return &AdminStats{Revenue: rev, Subscriptions: counts}, nil
}
