package rest

import (
	"log/slog"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/auth"
	"github.com/frahmantamala/rbac-service/internal/observability"
	"github.com/frahmantamala/rbac-service/internal/post"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/internal/transport/middleware"
	"github.com/frahmantamala/rbac-service/internal/user"
	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"
	"github.com/jmoiron/sqlx"
)

// Handlers bundles everything the route table mounts. Nil handlers leave
// their routes out.
type Handlers struct {
	Auth  *auth.Handler
	User  *user.Handler
	RBAC  *rbac.Handler
	Post  *post.Handler
	Guard *auth.Guard
}

type RouterConfig struct {
	Production  bool
	RateLimit   internal.RateLimitConfig
	MetricsPath string
}

func RegisterAllRoutes(router *chi.Mux, db *sqlx.DB, h Handlers, metrics *observability.Metrics, cfg RouterConfig, logger *slog.Logger) {
	base := transport.NewBaseHandler(logger)
	healthHandler := NewHealthHandler(db)

	router.Use(middleware.WithLogger(logger))
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(middleware.RequestID)
	router.Use(middleware.Recovery(base))
	router.Use(middleware.SecureHeaders(cfg.Production))
	router.Use(metrics.Middleware)
	router.Use(middleware.Logging)

	if metrics != nil && cfg.MetricsPath != "" {
		router.Method("GET", cfg.MetricsPath, metrics.Handler())
	}

	router.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		if h.Auth != nil {
			r.Route("/auth", func(sr chi.Router) {
				sr.Group(func(lr chi.Router) {
					lr.Use(middleware.RateLimit(cfg.RateLimit, base))
					lr.Post("/register", h.Auth.Register)
					lr.Post("/login", h.Auth.Login)
				})
				sr.Post("/refresh", h.Auth.RefreshToken)
			})
		}

		if h.Guard == nil {
			return
		}
		g := h.Guard

		r.Group(func(pr chi.Router) {
			pr.Use(g.Middleware)

			if h.User != nil {
				pr.Get("/users/me", h.User.GetCurrentUser)
				pr.With(g.Require(auth.AnyPermission(rbac.PermCreateUser))).Post("/users", h.User.CreateUser)
				pr.With(g.Require(auth.AnyPermission(rbac.PermViewUser))).Get("/users/{id}/roles", h.User.GetUserRoles)
				pr.With(g.Require(auth.AnyPermission(rbac.PermManageRoles))).Put("/users/{id}/roles", h.User.ReplaceUserRoles)
				pr.With(g.Require(auth.AnyPermission(rbac.PermManageRoles))).Post("/users/{id}/roles", h.User.AddUserRoles)
				pr.With(g.Require(auth.AnyPermission(rbac.PermEditUser))).Patch("/users/{id}/deactivate", h.User.DeactivateUser)
				pr.With(g.Require(auth.AnyPermission(rbac.PermDeleteUser))).Delete("/users/{id}", h.User.DeleteUser)
			}

			if h.RBAC != nil {
				pr.Group(func(rr chi.Router) {
					rr.Use(g.Require(auth.AnyPermission(rbac.PermManageRoles)))
					rr.Get("/roles", h.RBAC.ListRoles)
					rr.Post("/roles", h.RBAC.CreateRole)
					rr.Get("/roles/{id}/permissions", h.RBAC.GetRolePermissions)
					rr.Post("/roles/{id}/permissions", h.RBAC.AttachPermissions)
				})
				pr.Group(func(rr chi.Router) {
					rr.Use(g.Require(auth.AnyPermission(rbac.PermManagePermissions)))
					rr.Get("/permissions", h.RBAC.ListPermissions)
					rr.Post("/permissions", h.RBAC.CreatePermission)
					rr.Get("/permissions/{id}/roles", h.RBAC.GetPermissionRoles)
				})
			}

			if h.Post != nil {
				pr.With(g.Require(auth.AnyPermission(rbac.PermCreatePost))).Post("/posts", h.Post.CreatePost)
				pr.With(g.Require(auth.AnyPermission(rbac.PermViewPost))).Get("/posts/{id}", h.Post.GetPost)
				// ownership is checked by the service
				pr.Delete("/posts/{id}", h.Post.DeletePost)
			}
		})
	})
}
