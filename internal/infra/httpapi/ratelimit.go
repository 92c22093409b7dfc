package httpapi

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	"lms-billing/internal/domain"
	"lms-billing/internal/infra/logging"
	"lms-billing/internal/infra/metrics"
	red "lms-billing/internal/infra/redis"
)

// Limiter is a fixed-window counter keyed by caller and route.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// RateLimit throttles authenticated callers per route. Limiter errors fail
// open.
func RateLimit(l Limiter, limit int, window time.Duration, logger *zerolog.Logger) Middleware {
	return func(next http.Handler) http.Handler {
		if l == nil || limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := IdentityFrom(r.Context())
			if !ok {
				next.ServeHTTP(w, r)
				return
			}
			allowed, err := l.Allow(r.Context(), red.UserRouteKey(id.UserID, r.Method+" "+r.URL.Path), limit, window)
			if err != nil {
				logging.With(r.Context(), logger).Warn().Err(err).Msg("rate limiter unavailable")
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				metrics.IncRateLimited()
				w.Header().Set("Retry-After", strconv.Itoa(int(window.Seconds())))
				writeError(w, r, domain.ErrRateLimited)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
