package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"lms-billing/internal/config"
	"lms-billing/internal/domain/ports/adapter"
	"lms-billing/internal/infra/adapters/notify"
	"lms-billing/internal/infra/adapters/payment"
	pg "lms-billing/internal/infra/db/postgres"
	"lms-billing/internal/infra/httpapi"
	"lms-billing/internal/infra/logging"
	"lms-billing/internal/infra/metrics"
	red "lms-billing/internal/infra/redis"
	"lms-billing/internal/infra/sched"
	"lms-billing/internal/infra/security"
	"lms-billing/internal/usecase"
)

const tokenTTL = 24 * time.Hour

func runServe(parent context.Context) error {
	cfg, err := config.LoadConfig(cfgPath, devMode)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	logger := logging.New(cfg.Log, cfg.Runtime.Dev)
	if cfg.Runtime.Dev {
		logger.Warn().Msg("[DEV MODE] Enabled")
	}

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metrics.MustRegister()
	metrics.SetBuildInfo(Version, GitCommit)

	// ---- Postgres ----
	if err := pg.MigrateUp(cfg.Database.URL); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	pool, err := pg.SharedPool(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return fmt.Errorf("postgres: %w", err)
	}
	defer pg.CloseSharedPool()

	// ---- Redis ----
	redisClient, err := red.NewClient(ctx, &cfg.Redis)
	if err != nil {
		return fmt.Errorf("redis: %w", err)
	}
	defer redisClient.Close()
	locker := red.NewLocker(redisClient)
	rateLimiter := red.NewRateLimiter(redisClient)
	emailQueue := red.NewEmailQueue(redisClient, cfg.Notify.Email.Queue)

	// ---- Repositories ----
	tm := pg.NewTxManager(pool)
	userRepo := pg.NewUserRepo(pool)
	courseRepo := pg.NewCourseRepoCacheDecorator(pg.NewCourseRepo(pool), redisClient, cfg.Redis.TTL, logger)
	subRepo := pg.NewSubscriptionRepo(pool)
	payRepo := pg.NewPaymentRepo(pool)
	entRepo := pg.NewEntitlementRepo(pool)

	// ---- Adapters ----
	gateway, err := payment.New(cfg.Payment, logger)
	if err != nil {
		return fmt.Errorf("payment gateway: %w", err)
	}
	checkoutSigner, err := security.NewSigner(cfg.Payment.KeySecret)
	if err != nil {
		return fmt.Errorf("checkout signer: %w", err)
	}
	webhookSigner, err := security.NewSigner(cfg.Payment.WebhookSecret)
	if err != nil {
		return fmt.Errorf("webhook signer: %w", err)
	}
	notifier, mailer, err := buildNotifier(cfg, emailQueue, logger)
	if err != nil {
		return err
	}

	logger.Info().
		Str("provider", cfg.Payment.Provider).
		Str("key_id", logging.Redact(cfg.Payment.KeyID, cfg.Runtime.Dev)).
		Bool("email", cfg.Notify.Email.Enabled).
		Msg("adapters ready")

	// ---- Use cases ----
	entUC := usecase.NewEntitlementUseCase(entRepo, courseRepo, logger)
	enrollUC := usecase.NewEnrollmentUseCase(userRepo, courseRepo, subRepo, entUC, gateway, locker, notifier,
		usecase.EnrollmentConfig{KeyID: cfg.Payment.KeyID, Currency: cfg.Payment.Currency, LockTTL: cfg.Payment.EnrollLockTTL},
		logger)
	paymentUC := usecase.NewPaymentUseCase(tm, userRepo, courseRepo, subRepo, payRepo, entUC, checkoutSigner, notifier, logger)
	webhookUC := usecase.NewWebhookUseCase(tm, userRepo, courseRepo, subRepo, payRepo, entUC, webhookSigner, notifier, logger)
	subUC := usecase.NewSubscriptionUseCase(tm, userRepo, courseRepo, subRepo, entUC, gateway, notifier, logger)
	statsUC := usecase.NewStatsUseCase(subRepo, payRepo, logger)

	// ---- HTTP ----
	api := httpapi.NewServer(httpapi.Deps{
		Enrollment:    enrollUC,
		Payments:      paymentUC,
		Webhooks:      webhookUC,
		Subscriptions: subUC,
		Entitlements:  entUC,
		Stats:         statsUC,
		Auth:          httpapi.NewAuthManager(cfg.Auth.JWTSecret, tokenTTL),
		Limiter:       rateLimiter,
		Checks: map[string]httpapi.HealthCheck{
			"postgres": pool.Ping,
			"redis":    redisClient.Ping,
		},
	}, cfg.HTTP, cfg.Payment.SignatureHeader, logger)
	server := api.HTTPServer()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info().Str("addr", server.Addr).Msg("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		logger.Info().Msg("shutdown requested")
		return server.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		return ignoreCancel(sched.NewExpiryWorker(cfg.Scheduler.ExpiryInterval, subUC, logger).Run(gctx))
	})
	g.Go(func() error {
		stat := func() *pgxpool.Stat { return pool.Stat() }
		return ignoreCancel(sched.NewPoolStatsWorker(cfg.Scheduler.PoolStatsInterval, stat, logger).Run(gctx))
	})
	if mailer != nil {
		g.Go(func() error { return mailer.Run(gctx) })
	}

	err = g.Wait()
	logger.Info().Msg("stopped")
	return err
}

// buildNotifier picks the student channel and adds the ops chat when a bot
// token is configured. The mailer is nil when email is disabled.
func buildNotifier(cfg *config.Config, queue *red.EmailQueue, logger *zerolog.Logger) (adapter.Notifier, *notify.Mailer, error) {
	var (
		targets notify.Multi
		mailer  *notify.Mailer
	)
	if cfg.Notify.Email.Enabled {
		targets = append(targets, notify.NewEmailNotifier(queue))
		mailer = notify.NewMailer(queue, notify.NewSMTPSender(cfg.Notify.Email),
			cfg.Notify.Email.Workers, cfg.Notify.Email.MaxTries, logger)
	} else {
		targets = append(targets, notify.NewLogNotifier(logger))
	}
	if cfg.Notify.Telegram.Token != "" {
		ops, err := notify.NewTelegramOpsNotifier(cfg.Notify.Telegram.Token, cfg.Notify.Telegram.OpsChatID)
		if err != nil {
			return nil, nil, fmt.Errorf("telegram ops notifier: %w", err)
		}
		targets = append(targets, ops)
	}
	return targets, mailer, nil
}

func ignoreCancel(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
