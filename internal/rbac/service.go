package rbac

import (
	"context"
	"log/slog"
	"strings"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/dberr"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/core/events"
)

// RepositoryAPI is the storage of the role/permission graph. Lookup methods
// return nil, nil when a row does not exist.
type RepositoryAPI interface {
	UserRoleNames(ctx context.Context, userID int64) ([]string, error)
	UserPermissionNames(ctx context.Context, userID int64) ([]string, error)
	UserRoles(ctx context.Context, userID int64) ([]rbacDatamodel.Role, error)

	// CreateUserWithRoles writes user and its role links in one transaction.
	// The default role is always linked; unknown requested ids are skipped.
	CreateUserWithRoles(ctx context.Context, user *userDatamodel.User, defaultRole string, roleIDs []int64) ([]rbacDatamodel.Role, error)
	AssignUserRoles(ctx context.Context, userID int64, defaultRole string, roleIDs []int64, replace bool) ([]rbacDatamodel.Role, error)

	GetRoleByID(ctx context.Context, id int64) (*rbacDatamodel.Role, error)
	GetRoleByName(ctx context.Context, name string) (*rbacDatamodel.Role, error)
	GetPermissionByID(ctx context.Context, id int64) (*rbacDatamodel.Permission, error)
	GetPermissionByName(ctx context.Context, name string) (*rbacDatamodel.Permission, error)
	ListRoles(ctx context.Context) ([]rbacDatamodel.Role, error)
	ListPermissions(ctx context.Context) ([]rbacDatamodel.Permission, error)
	RolePermissions(ctx context.Context, roleID int64) ([]rbacDatamodel.Permission, error)
	PermissionRoles(ctx context.Context, permissionID int64) ([]rbacDatamodel.Role, error)

	CreateRole(ctx context.Context, role *rbacDatamodel.Role) error
	CreatePermission(ctx context.Context, permission *rbacDatamodel.Permission) error
	AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

// Publisher is satisfied by *events.EventBus.
type Publisher interface {
	Publish(ctx context.Context, event events.Event) error
}

type Service struct {
	repo        RepositoryAPI
	cache       *Cache
	publisher   Publisher
	defaultRole string
	logger      *slog.Logger
}

type Option func(*Service)

// WithCache routes resolution through a Redis cache. A nil cache is a no-op.
func WithCache(c *Cache) Option {
	return func(s *Service) { s.cache = c }
}

func WithPublisher(p Publisher) Option {
	return func(s *Service) { s.publisher = p }
}

func NewService(repo RepositoryAPI, defaultRole string, logger *slog.Logger, opts ...Option) *Service {
	if strings.TrimSpace(defaultRole) == "" {
		defaultRole = internal.DefaultRoleName
	}
	s := &Service{
		repo:        repo,
		defaultRole: defaultRole,
		logger:      logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) DefaultRole() string {
	return s.defaultRole
}

// ResolveRoles returns the sorted names of roles held by userID. Soft-deleted
// and unknown users resolve to an empty set.
func (s *Service) ResolveRoles(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := s.cache.Fetch(ctx, cacheKey(userID, "roles"), &names, func(ctx context.Context) ([]string, error) {
		return s.repo.UserRoleNames(ctx, userID)
	})
	if err != nil {
		s.logger.Error("failed to resolve roles", "user_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to resolve roles", err)
	}
	return NormalizeNames(names), nil
}

// ResolvePermissions returns the union of permission names granted by every
// role userID holds.
func (s *Service) ResolvePermissions(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := s.cache.Fetch(ctx, cacheKey(userID, "permissions"), &names, func(ctx context.Context) ([]string, error) {
		return s.repo.UserPermissionNames(ctx, userID)
	})
	if err != nil {
		s.logger.Error("failed to resolve permissions", "user_id", userID, "error", err)
		return nil, internal.NewInternalError("failed to resolve permissions", err)
	}
	return NormalizeNames(names), nil
}

// CreateUserWithRoles persists user together with the default role and any
// known role in requestedRoleIDs. Nothing is written when any step fails.
func (s *Service) CreateUserWithRoles(ctx context.Context, user *userDatamodel.User, requestedRoleIDs []int64) ([]Role, error) {
	roles, err := s.repo.CreateUserWithRoles(ctx, user, s.defaultRole, UniqueIDs(requestedRoleIDs))
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			s.logger.Warn("user creation rejected", "email", user.Email, "error", err)
			return nil, err
		}
		if dberr.IsUniqueViolation(err) {
			return nil, internal.ErrEmailTaken.WithCause(err)
		}
		s.logger.Error("failed to create user with roles", "email", user.Email, "error", err)
		return nil, internal.NewInternalError("failed to create user", err)
	}

	s.logger.Info("user created with roles", "user_id", user.ID, "roles", len(roles))
	return RolesFromDataModel(roles), nil
}

// AssignRoles links roleIDs to an existing user. The default role is kept in
// both modes.
func (s *Service) AssignRoles(ctx context.Context, userID int64, roleIDs []int64, mode AssignMode) ([]Role, error) {
	rows, err := s.repo.AssignUserRoles(ctx, userID, s.defaultRole, UniqueIDs(roleIDs), mode == AssignReplace)
	if err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return nil, err
		}
		s.logger.Error("failed to assign roles", "user_id", userID, "mode", mode.String(), "error", err)
		return nil, internal.NewInternalError("failed to assign roles", err)
	}

	s.invalidate(ctx)

	roles := RolesFromDataModel(rows)
	s.publish(ctx, events.NewRolesAssignedEvent(userID, RoleNames(roles), mode.String()))
	s.logger.Info("roles assigned", "user_id", userID, "mode", mode.String(), "roles", RoleNames(roles))
	return roles, nil
}

func (s *Service) UserRoles(ctx context.Context, userID int64) ([]Role, error) {
	rows, err := s.repo.UserRoles(ctx, userID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load user roles", err)
	}
	return RolesFromDataModel(rows), nil
}

func (s *Service) RoleWithPermissions(ctx context.Context, roleID int64) (*RoleWithPermissions, error) {
	role, err := s.repo.GetRoleByID(ctx, roleID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load role", err)
	}
	if role == nil {
		return nil, internal.ErrRoleNotFound
	}

	perms, err := s.repo.RolePermissions(ctx, roleID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load role permissions", err)
	}

	return &RoleWithPermissions{
		Role:        RoleFromDataModel(*role),
		Permissions: PermissionsFromDataModel(perms),
	}, nil
}

func (s *Service) PermissionWithRoles(ctx context.Context, permissionID int64) (*PermissionWithRoles, error) {
	perm, err := s.repo.GetPermissionByID(ctx, permissionID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load permission", err)
	}
	if perm == nil {
		return nil, internal.ErrPermissionNotFound
	}

	roles, err := s.repo.PermissionRoles(ctx, permissionID)
	if err != nil {
		return nil, internal.NewInternalError("failed to load permission roles", err)
	}

	return &PermissionWithRoles{
		Permission: PermissionFromDataModel(*perm),
		Roles:      RolesFromDataModel(roles),
	}, nil
}

func (s *Service) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := s.repo.ListRoles(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list roles", err)
	}
	return RolesFromDataModel(rows), nil
}

func (s *Service) ListPermissions(ctx context.Context) ([]Permission, error) {
	rows, err := s.repo.ListPermissions(ctx)
	if err != nil {
		return nil, internal.NewInternalError("failed to list permissions", err)
	}
	return PermissionsFromDataModel(rows), nil
}

func (s *Service) CreateRole(ctx context.Context, name string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, internal.NewValidationError("role name is required", internal.ErrCodeValidationFailed)
	}

	row := &rbacDatamodel.Role{Name: name}
	if err := s.repo.CreateRole(ctx, row); err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, internal.ErrDuplicateRole.WithCause(err)
		}
		return nil, internal.NewInternalError("failed to create role", err)
	}

	role := RoleFromDataModel(*row)
	return &role, nil
}

func (s *Service) CreatePermission(ctx context.Context, name string) (*Permission, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return nil, internal.NewValidationError("permission name is required", internal.ErrCodeValidationFailed)
	}

	row := &rbacDatamodel.Permission{Name: name}
	if err := s.repo.CreatePermission(ctx, row); err != nil {
		if dberr.IsUniqueViolation(err) {
			return nil, internal.ErrDuplicatePermission.WithCause(err)
		}
		return nil, internal.NewInternalError("failed to create permission", err)
	}

	perm := PermissionFromDataModel(*row)
	return &perm, nil
}

// AttachPermissions grants permissionIDs to roleID. Already attached pairs are
// left alone.
func (s *Service) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if err := s.repo.AttachPermissions(ctx, roleID, UniqueIDs(permissionIDs)); err != nil {
		if _, ok := internal.IsAppError(err); ok {
			return err
		}
		return internal.NewInternalError("failed to attach permissions", err)
	}
	s.invalidate(ctx)
	return nil
}

// Invalidate drops every cached resolution.
func (s *Service) Invalidate(ctx context.Context) {
	s.invalidate(ctx)
}

func (s *Service) invalidate(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("failed to invalidate rbac cache", "error", err)
	}
}

func (s *Service) publish(ctx context.Context, event events.Event) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, event); err != nil {
		s.logger.Warn("failed to publish event", "event_type", event.EventType(), "error", err)
	}
}
