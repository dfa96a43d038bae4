package auth

import (
	"context"
	"log/slog"
	"sync"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/credential"
	"github.com/frahmantamala/rbac-service/internal/user"
)

// dummyPassword is hashed once so unknown emails cost the same bcrypt
// comparison as known ones.
const dummyPassword = "timing-equaliser-not-a-real-password"

// Service is the main auth service with dependencies
type Service struct {
	users   UserStore
	tokens  TokenGenerator
	hasher  credential.HasherAPI
	metrics MetricsRecorder
	logger  *slog.Logger

	dummyOnce sync.Once
	dummyHash string
}

// NewService creates a new auth service
func NewService(users UserStore, tokens TokenGenerator, hasher credential.HasherAPI, logger *slog.Logger) *Service {
	return &Service{
		users:   users,
		tokens:  tokens,
		hasher:  hasher,
		metrics: noopMetrics{},
		logger:  logger,
	}
}

func (s *Service) WithMetrics(m MetricsRecorder) *Service {
	if m != nil {
		s.metrics = m
	}
	return s
}

// Register creates an active account with the default role plus any known
// requested roles and signs the caller in.
func (s *Service) Register(ctx context.Context, dto RegisterDTO) (AuthResult, error) {
	if appErr := dto.Validate(); appErr != nil {
		return AuthResult{}, appErr
	}

	created, err := s.users.Create(ctx, user.NewUser{
		Name:     dto.Name,
		Email:    dto.Email,
		Password: dto.Password,
		IsActive: true,
		RoleIDs:  dto.RoleIDs,
		Source:   user.SourceSelf,
	})
	if err != nil {
		s.logger.Warn("registration failed", "error", err)
		return AuthResult{}, err
	}

	s.metrics.Registration(user.SourceSelf)
	return s.issue(created)
}

// Login verifies credentials. Unknown email, wrong password and inactive
// account all produce the same Unauthorized error.
func (s *Service) Login(ctx context.Context, dto LoginDTO) (AuthResult, error) {
	if appErr := dto.Validate(); appErr != nil {
		return AuthResult{}, appErr
	}

	u, err := s.users.FindByEmail(ctx, dto.Email)
	if err != nil {
		s.metrics.LoginAttempt("error")
		return AuthResult{}, err
	}

	if u == nil {
		s.hasher.Verify(ctx, dto.Password, s.dummy())
		s.logger.Info("login rejected", "reason", "unknown email")
		s.metrics.LoginAttempt("unknown_email")
		return AuthResult{}, internal.ErrInvalidCredentials
	}

	if !s.hasher.Verify(ctx, dto.Password, u.PasswordHash) {
		s.logger.Info("login rejected", "reason", "wrong password", "user_id", u.ID)
		s.metrics.LoginAttempt("wrong_password")
		return AuthResult{}, internal.ErrInvalidCredentials
	}

	if !u.CanAuthenticate() {
		s.logger.Info("login rejected", "reason", "inactive account", "user_id", u.ID)
		s.metrics.LoginAttempt("inactive")
		return AuthResult{}, internal.ErrInvalidCredentials
	}

	s.metrics.LoginAttempt("success")
	return s.issue(u)
}

// Refresh reissues both tokens for a subject that still resolves to an
// active user with the same id and email.
func (s *Service) Refresh(ctx context.Context, subjectID int64, email string) (AuthResult, error) {
	u, err := s.users.FindByID(ctx, subjectID)
	if err != nil {
		s.metrics.TokenRefresh("error")
		return AuthResult{}, err
	}
	if u == nil || !u.CanAuthenticate() || u.Email != user.NormalizeEmail(email) {
		s.logger.Info("refresh rejected", "user_id", subjectID)
		s.metrics.TokenRefresh("rejected")
		return AuthResult{}, internal.ErrInvalidToken
	}

	s.metrics.TokenRefresh("success")
	return s.issue(u)
}

// RefreshTokens validates refresh token and returns new tokens. The presented
// refresh token stays valid until it expires.
func (s *Service) RefreshTokens(ctx context.Context, dto RefreshTokenDTO) (AuthResult, error) {
	if appErr := dto.Validate(); appErr != nil {
		return AuthResult{}, appErr
	}

	claims, err := s.tokens.ValidateRefreshToken(dto.RefreshToken)
	if err != nil {
		s.metrics.TokenRefresh("invalid_token")
		return AuthResult{}, err
	}
	return s.Refresh(ctx, claims.UserID, claims.Email)
}

// ValidateAccessToken validates access token and returns claims
func (s *Service) ValidateAccessToken(tokenString string) (*Claims, error) {
	return s.tokens.ValidateAccessToken(tokenString)
}

func (s *Service) issue(u *user.User) (AuthResult, error) {
	accessToken, err := s.tokens.GenerateAccessToken(u.ID, u.Email)
	if err != nil {
		return AuthResult{}, internal.NewInternalError("failed to issue access token", err)
	}

	refreshToken, err := s.tokens.GenerateRefreshToken(u.ID, u.Email)
	if err != nil {
		return AuthResult{}, internal.NewInternalError("failed to issue refresh token", err)
	}

	return AuthResult{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		User:         u.Public(),
	}, nil
}

func (s *Service) dummy() string {
	s.dummyOnce.Do(func() {
		hash, err := s.hasher.Hash(context.Background(), dummyPassword)
		if err != nil {
			s.logger.Error("failed to prepare dummy hash", "error", err)
			return
		}
		s.dummyHash = hash
	})
	return s.dummyHash
}
