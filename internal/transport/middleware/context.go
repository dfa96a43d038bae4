package middleware

import (
	"log/slog"
	"net/http"

	"github.com/frahmantamala/rbac-service/pkg/logger"
)

// WithLogger seeds the request context with lg so logger.From picks it up.
func WithLogger(lg *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			next.ServeHTTP(w, r.WithContext(logger.Into(r.Context(), lg)))
		})
	}
}
