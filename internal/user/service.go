package user

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/dberr"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/core/events"
	"github.com/frahmantamala/rbac-service/internal/credential"
	"github.com/frahmantamala/rbac-service/internal/rbac"
)

// RepositoryAPI reads and transitions stored users. Lookups skip soft-deleted
// rows and return nil, nil when nothing matches.
type RepositoryAPI interface {
	FindByEmail(ctx context.Context, email string) (*userDatamodel.User, error)
	FindByID(ctx context.Context, id int64) (*userDatamodel.User, error)
	Deactivate(ctx context.Context, id int64) (bool, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) (bool, error)
}

// RoleGraph is the part of the role/permission graph the credential store uses.
type RoleGraph interface {
	CreateUserWithRoles(ctx context.Context, user *userDatamodel.User, requestedRoleIDs []int64) ([]rbac.Role, error)
	UserRoles(ctx context.Context, userID int64) ([]rbac.Role, error)
	ResolveRoles(ctx context.Context, userID int64) ([]string, error)
	ResolvePermissions(ctx context.Context, userID int64) ([]string, error)
}

type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
	PublishSync(ctx context.Context, event events.Event) error
}

type Service struct {
	repo      RepositoryAPI
	graph     RoleGraph
	hasher    credential.HasherAPI
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

func NewService(repo RepositoryAPI, graph RoleGraph, hasher credential.HasherAPI, publisher Publisher, logger *slog.Logger) *Service {
	return &Service{
		repo:      repo,
		graph:     graph,
		hasher:    hasher,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *Service) FindByEmail(ctx context.Context, email string) (*User, error) {
	row, err := s.repo.FindByEmail(ctx, NormalizeEmail(email))
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, nil
	}
	return FromDataModel(row), nil
}

func (s *Service) FindByID(ctx context.Context, id int64) (*User, error) {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user", err)
	}
	if row == nil {
		return nil, nil
	}
	return FromDataModel(row), nil
}

// Create hashes the password and stores the user with the default role and
// the known requested roles in one transaction.
func (s *Service) Create(ctx context.Context, nu NewUser) (*User, error) {
	email := NormalizeEmail(nu.Email)

	existing, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, internal.NewInternalError("failed to check email", err)
	}
	if existing != nil {
		return nil, internal.ErrEmailTaken
	}

	hash, err := s.hasher.Hash(ctx, nu.Password)
	if err != nil {
		return nil, internal.NewInternalError("failed to hash password", err)
	}

	row := &userDatamodel.User{
		Name:         nu.Name,
		Email:        email,
		PasswordHash: hash,
		IsActive:     nu.IsActive,
	}
	roles, err := s.graph.CreateUserWithRoles(ctx, row, nu.RoleIDs)
	if err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, internal.ErrEmailTaken.WithCause(err)
		}
		return nil, err
	}

	created := FromDataModel(row)
	created.Roles = rbac.RoleNames(roles)

	source := nu.Source
	if source == "" {
		source = SourceSelf
	}
	s.publish(ctx, events.NewUserRegisteredEvent(created.ID, created.Email, created.Roles, source))
	s.logger.Info("user created", "user_id", created.ID, "source", source)
	return created, nil
}

// Profile returns the user with the resolved role and permission names.
func (s *Service) Profile(ctx context.Context, id int64) (*User, error) {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if u == nil {
		return nil, internal.ErrUserNotFound
	}

	if u.Roles, err = s.graph.ResolveRoles(ctx, id); err != nil {
		return nil, err
	}
	if u.Permissions, err = s.graph.ResolvePermissions(ctx, id); err != nil {
		return nil, err
	}
	return u, nil
}

func (s *Service) GetWithRoles(ctx context.Context, id int64) (*User, []rbac.Role, error) {
	u, err := s.FindByID(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if u == nil {
		return nil, nil, internal.ErrUserNotFound
	}

	roles, err := s.graph.UserRoles(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	u.Roles = rbac.RoleNames(roles)
	return u, roles, nil
}

// Deactivate moves an active account to inactive. Its credentials stop
// authenticating immediately.
func (s *Service) Deactivate(ctx context.Context, id, actorID int64) error {
	ok, err := s.repo.Deactivate(ctx, id)
	if err != nil {
		return internal.NewInternalError("failed to deactivate user", err)
	}
	if !ok {
		return internal.ErrUserNotFound
	}

	s.publishSync(ctx, events.NewUserDeactivatedEvent(id, actorID))
	s.logger.Info("user deactivated", "user_id", id, "actor_id", actorID)
	return nil
}

// SoftDelete marks the user deleted. The row is kept but excluded from every
// lookup used for authentication and authorization.
func (s *Service) SoftDelete(ctx context.Context, id, actorID int64) error {
	ok, err := s.repo.SoftDelete(ctx, id, s.now())
	if err != nil {
		return internal.NewInternalError("failed to delete user", err)
	}
	if !ok {
		return internal.ErrUserNotFound
	}

	s.publishSync(ctx, events.NewUserDeletedEvent(id, actorID))
	s.logger.Info("user soft deleted", "user_id", id, "actor_id", actorID)
	return nil
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}

// publishSync is used for transitions whose subscribers must finish before the
// caller sees success, such as permission cache invalidation.
func (s *Service) publishSync(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishSync(ctx, event); err != nil {
		s.logger.Warn("event subscriber failed", "event_type", event.EventType(), "error", err)
	}
}
