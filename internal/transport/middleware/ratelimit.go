package middleware

import (
	"net/http"
	"time"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/go-chi/httprate"
)

var ErrTooManyRequests = &internal.AppError{
	Type:       "RATE_LIMITED",
	Code:       "TOO_MANY_REQUESTS",
	Message:    "Too many requests, try again later",
	StatusCode: http.StatusTooManyRequests,
}

// RateLimit throttles credential endpoints per client IP and route. A
// disabled config yields a pass-through middleware.
func RateLimit(cfg internal.RateLimitConfig, base *transport.BaseHandler) func(http.Handler) http.Handler {
	if !cfg.Enabled || cfg.Requests <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	window := cfg.Window
	if window <= 0 {
		window = time.Minute
	}

	return httprate.Limit(cfg.Requests, window,
		httprate.WithKeyFuncs(httprate.KeyByIP, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			base.WriteAppError(w, r, ErrTooManyRequests)
		}),
	)
}
