package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"lms-billing/internal/config"
	"lms-billing/internal/domain/model"
	"lms-billing/internal/infra/metrics"
	"lms-billing/internal/usecase"
)

// HealthCheck reports a dependency failure.
type HealthCheck func(ctx context.Context) error

// Deps are the use cases and collaborators the API serves.
type Deps struct {
	Enrollment    usecase.EnrollmentUseCase
	Payments      usecase.PaymentUseCase
	Webhooks      usecase.WebhookUseCase
	Subscriptions usecase.SubscriptionUseCase
	Entitlements  usecase.EntitlementUseCase
	Stats         usecase.StatsUseCase
	Auth          *AuthManager
	Limiter       Limiter
	Checks        map[string]HealthCheck
}

type Server struct {
	enrollment      usecase.EnrollmentUseCase
	payments        usecase.PaymentUseCase
	webhooks        usecase.WebhookUseCase
	subscriptions   usecase.SubscriptionUseCase
	entitlements    usecase.EntitlementUseCase
	stats           usecase.StatsUseCase
	auth            *AuthManager
	limiter         Limiter
	checks          map[string]HealthCheck
	cfg             config.HTTPConfig
	signatureHeader string
	log             *zerolog.Logger
	now             func() time.Time
}

func NewServer(d Deps, cfg config.HTTPConfig, signatureHeader string, logger *zerolog.Logger) *Server {
	l := logger.With().Str("component", "httpapi").Logger()
	return &Server{
		enrollment:      d.Enrollment,
		payments:        d.Payments,
		webhooks:        d.Webhooks,
		subscriptions:   d.Subscriptions,
		entitlements:    d.Entitlements,
		stats:           d.Stats,
		auth:            d.Auth,
		limiter:         d.Limiter,
		checks:          d.Checks,
		cfg:             cfg,
		signatureHeader: signatureHeader,
		log:             &l,
		now:             time.Now,
	}
}

// Routes builds the router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(TraceID(), RequestLog(s.log), Recover(s.log))
	if s.cfg.RequestTimeout > 0 {
		r.Use(Timeout(s.cfg.RequestTimeout))
	}

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	// signed by the gateway, no bearer token
	r.Post("/api/payment/webhook", s.handleWebhook)

	r.Group(func(r chi.Router) {
		r.Use(s.auth.Authenticate(), RateLimit(s.limiter, s.cfg.RateLimit, s.cfg.RateWindow, s.log))

		r.Get("/api/entitlements/{courseId}", s.handleEntitlement)

		r.Group(func(r chi.Router) {
			r.Use(RequireRole(model.RoleStudent))
			r.Post("/api/courses/{id}/enroll", s.handleFreeEnroll)
			r.Post("/api/payment/initiate", s.handleInitiate)
			r.Post("/api/payment/create-subscription", s.handleCreateSubscription)
			r.Post("/api/payment/verify", s.handleVerify)
			r.Get("/api/subscription/status", s.handleStatus)
			r.Get("/api/payments/history", s.handleMyPayments)
			r.Post("/api/subscriptions/{id}/cancel", s.handleCancel)
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(RequireRole(model.RoleAdmin, model.RoleOwner))
			r.Get("/subscriptions", s.handleAdminSubscriptions)
			r.Post("/subscriptions/{id}/cancel", s.handleCancel)
			r.Get("/payments", s.handleAdminPayments)
			r.Get("/payments/student/{studentId}", s.handleAdminStudentPayments)
			r.Get("/stats", s.handleAdminStats)
		})
	})
	return r
}

// HTTPServer wraps Routes in a configured *http.Server.
func (s *Server) HTTPServer() *http.Server {
	return &http.Server{
		Addr:              fmt.Sprintf(":%d", s.cfg.Port),
		Handler:           s.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}
