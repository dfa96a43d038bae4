package auth

import (
	"context"

	"github.com/frahmantamala/rbac-service/internal/user"
	"github.com/golang-jwt/jwt/v5"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

// Claims represents JWT token claims
type Claims struct {
	UserID    int64  `json:"user_id"`
	Email     string `json:"email"`
	TokenType string `json:"typ"`
	jwt.RegisteredClaims
}

// TokenGenerator issues and verifies the access/refresh pair.
type TokenGenerator interface {
	GenerateAccessToken(userID int64, email string) (string, error)
	GenerateRefreshToken(userID int64, email string) (string, error)
	ValidateAccessToken(tokenString string) (*Claims, error)
	ValidateRefreshToken(tokenString string) (*Claims, error)
}

// UserStore is the slice of the credential store authentication needs.
// Lookups return nil, nil for unknown or soft-deleted users.
type UserStore interface {
	FindByEmail(ctx context.Context, email string) (*user.User, error)
	FindByID(ctx context.Context, id int64) (*user.User, error)
	Create(ctx context.Context, nu user.NewUser) (*user.User, error)
}

// Resolver answers which roles and permissions a user currently holds.
type Resolver interface {
	ResolveRoles(ctx context.Context, userID int64) ([]string, error)
	ResolvePermissions(ctx context.Context, userID int64) ([]string, error)
}

// MetricsRecorder receives authentication and authorization outcomes.
type MetricsRecorder interface {
	LoginAttempt(outcome string)
	Registration(source string)
	TokenRefresh(outcome string)
	GuardDecision(kind string, allowed bool)
}

type noopMetrics struct{}

func (noopMetrics) LoginAttempt(string)        {}
func (noopMetrics) Registration(string)        {}
func (noopMetrics) TokenRefresh(string)        {}
func (noopMetrics) GuardDecision(string, bool) {}

// AuthResult is returned by every operation that issues tokens.
type AuthResult struct {
	AccessToken  string          `json:"access_token"`
	RefreshToken string          `json:"refresh_token"`
	User         user.PublicUser `json:"user"`
}
