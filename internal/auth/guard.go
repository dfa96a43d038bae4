package auth

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"github.com/frahmantamala/rbac-service/internal/transport"
	"github.com/frahmantamala/rbac-service/internal/user"
	"github.com/frahmantamala/rbac-service/pkg/logger"
)

type RequirementKind int

const (
	RequireNone RequirementKind = iota
	RequireRoles
	RequirePermissions
)

func (k RequirementKind) String() string {
	switch k {
	case RequireRoles:
		return "roles"
	case RequirePermissions:
		return "permissions"
	default:
		return "none"
	}
}

type MatchMode int

const (
	// MatchAny is satisfied by holding at least one value.
	MatchAny MatchMode = iota
	// MatchAll requires every value.
	MatchAll
)

// Requirement is declared per route when the route is registered.
type Requirement struct {
	Kind   RequirementKind
	Match  MatchMode
	Values []string
}

func AnyRole(names ...string) Requirement {
	return Requirement{Kind: RequireRoles, Match: MatchAny, Values: rbac.NormalizeNames(names)}
}

func AllRoles(names ...string) Requirement {
	return Requirement{Kind: RequireRoles, Match: MatchAll, Values: rbac.NormalizeNames(names)}
}

func AnyPermission(names ...string) Requirement {
	return Requirement{Kind: RequirePermissions, Match: MatchAny, Values: rbac.NormalizeNames(names)}
}

func AllPermissions(names ...string) Requirement {
	return Requirement{Kind: RequirePermissions, Match: MatchAll, Values: rbac.NormalizeNames(names)}
}

func (r Requirement) String() string {
	if r.Kind == RequireNone {
		return "none"
	}
	sep := "|"
	if r.Match == MatchAll {
		sep = "&"
	}
	return fmt.Sprintf("%s(%s)", r.Kind, strings.Join(r.Values, sep))
}

// Satisfied reports whether held meets the requirement. Values are expected
// to be normalised. A role or permission requirement without values is never
// satisfied.
func (r Requirement) Satisfied(held []string) bool {
	if r.Kind == RequireNone {
		return true
	}
	if len(r.Values) == 0 {
		return false
	}
	set := make(map[string]struct{}, len(held))
	for _, h := range held {
		set[strings.ToLower(h)] = struct{}{}
	}
	for _, v := range r.Values {
		_, ok := set[strings.ToLower(v)]
		if r.Match == MatchAny && ok {
			return true
		}
		if r.Match == MatchAll && !ok {
			return false
		}
	}
	return r.Match == MatchAll
}

// SubjectLoader reloads the user behind a verified token.
type SubjectLoader interface {
	FindByID(ctx context.Context, id int64) (*user.User, error)
}

// Decision is the outcome of Check.
type Decision struct {
	Allowed bool
	Subject *internal.Subject
	Err     error
}

// Guard authenticates bearer tokens and enforces role/permission requirements.
type Guard struct {
	*transport.BaseHandler
	tokens   TokenGenerator
	users    SubjectLoader
	resolver Resolver
	metrics  MetricsRecorder
	logger   *slog.Logger
}

func NewGuard(tokens TokenGenerator, users SubjectLoader, resolver Resolver, logger *slog.Logger) *Guard {
	return &Guard{
		BaseHandler: transport.NewBaseHandler(logger),
		tokens:      tokens,
		users:       users,
		resolver:    resolver,
		metrics:     noopMetrics{},
		logger:      logger,
	}
}

func (g *Guard) WithMetrics(m MetricsRecorder) *Guard {
	if m != nil {
		g.metrics = m
	}
	return g
}

// Authenticate turns an Authorization header into a Subject. The user is
// reloaded so deactivated and deleted accounts are refused while their
// tokens are still unexpired.
func (g *Guard) Authenticate(ctx context.Context, authorizationHeader string) (*internal.Subject, error) {
	token := transport.BearerToken(authorizationHeader)
	if token == "" {
		return nil, internal.ErrMissingToken
	}

	claims, err := g.tokens.ValidateAccessToken(token)
	if err != nil {
		return nil, internal.ErrInvalidToken
	}

	u, err := g.users.FindByID(ctx, claims.UserID)
	if err != nil {
		g.logger.Error("failed to load token subject", "user_id", claims.UserID, "error", err)
		return nil, internal.ErrInvalidToken.WithCause(err)
	}
	if u == nil || !u.CanAuthenticate() || u.Email != claims.Email {
		g.logger.Info("token subject no longer valid", "user_id", claims.UserID)
		return nil, internal.ErrInvalidToken
	}

	return &internal.Subject{UserID: u.ID, Email: u.Email, Name: u.Name}, nil
}

// Authorize enforces req for subject. A resolution failure is refused as
// Forbidden.
func (g *Guard) Authorize(ctx context.Context, subject *internal.Subject, req Requirement) error {
	if subject == nil {
		return internal.ErrMissingToken
	}
	if req.Kind == RequireNone {
		return nil
	}
	if len(req.Values) == 0 {
		g.logger.Error("requirement declares no values", "user_id", subject.UserID, "kind", req.Kind.String())
		g.metrics.GuardDecision(req.Kind.String(), false)
		return internal.ErrForbidden
	}

	var (
		held []string
		err  error
	)
	switch req.Kind {
	case RequireRoles:
		held, err = g.resolver.ResolveRoles(ctx, subject.UserID)
	case RequirePermissions:
		held, err = g.resolver.ResolvePermissions(ctx, subject.UserID)
	default:
		return internal.ErrForbidden
	}
	if err != nil {
		g.logger.Error("authorization resolution failed", "user_id", subject.UserID, "requirement", req.String(), "error", err)
		g.metrics.GuardDecision(req.Kind.String(), false)
		return internal.ErrForbidden.WithCause(err)
	}

	if !req.Satisfied(held) {
		g.logger.Warn("access denied", "user_id", subject.UserID, "requirement", req.String(), "held", held)
		g.metrics.GuardDecision(req.Kind.String(), false)
		return internal.ErrForbidden
	}

	g.metrics.GuardDecision(req.Kind.String(), true)
	return nil
}

// Check runs authentication and authorization together.
func (g *Guard) Check(ctx context.Context, authorizationHeader string, req Requirement) Decision {
	subject, err := g.Authenticate(ctx, authorizationHeader)
	if err != nil {
		return Decision{Err: err}
	}
	if err := g.Authorize(ctx, subject, req); err != nil {
		return Decision{Subject: subject, Err: err}
	}
	return Decision{Allowed: true, Subject: subject}
}

// Middleware authenticates the request and binds the Subject into its
// context. It performs no role or permission check.
func (g *Guard) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		subject, err := g.Authenticate(r.Context(), r.Header.Get("Authorization"))
		if err != nil {
			g.WriteAppError(w, r, err)
			return
		}

		ctx := internal.ContextWithSubject(r.Context(), subject)
		ctx = logger.With(ctx, "user_id", subject.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// Require enforces req against the Subject bound by Middleware.
func (g *Guard) Require(req Requirement) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			subject, ok := internal.SubjectFromContext(r.Context())
			if !ok {
				g.WriteAppError(w, r, internal.ErrMissingToken)
				return
			}
			if err := g.Authorize(r.Context(), subject, req); err != nil {
				g.WriteAppError(w, r, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
