package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/pkg/logger"
)

// Recovery turns a panic into a 500 AppError response. The panic value is
// logged with its stack and never written to the client.
func Recovery(base *transport.BaseHandler) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if rec == http.ErrAbortHandler {
					panic(rec)
				}

				logger.From(r.Context()).Error("panic recovered",
					"error", rec,
					"method", r.Method,
					"url", r.URL.String(),
					"stack", string(debug.Stack()))

				cause, ok := rec.(error)
				if !ok {
					cause = errors.New(fmt.Sprint(rec))
				}
				base.WriteAppError(w, r, internal.NewInternalError("panic", cause))
			}()

			next.ServeHTTP(w, r)
		})
	}
}
