package rbac

import (
	"context"
	"errors"
	"strings"

	"github.com/frahmantamala/rbac-service/internal"
)

// Permission names used by the HTTP route table.
const (
	PermCreatePost        = "create_post"
	PermEditPost          = "edit_post"
	PermDeletePost        = "delete_post"
	PermViewPost          = "view_post"
	PermCreateUser        = "create_user"
	PermEditUser          = "edit_user"
	PermDeleteUser        = "delete_user"
	PermViewUser          = "view_user"
	PermManageRoles       = "manage_roles"
	PermManagePermissions = "manage_permissions"
)

// Catalog maps a role name to the permission names it grants.
type Catalog map[string][]string

// DefaultPermissions is the reference permission set of a fresh install.
var DefaultPermissions = []string{
	PermCreatePost, PermEditPost, PermDeletePost, PermViewPost,
	PermCreateUser, PermEditUser, PermDeleteUser, PermViewUser,
	PermManageRoles, PermManagePermissions,
}

// DefaultCatalog holds the reference roles. "user" must stay in sync with the
// configured default role.
var DefaultCatalog = Catalog{
	"admin":     DefaultPermissions,
	"moderator": {PermCreatePost, PermEditPost, PermDeletePost, PermViewPost, PermViewUser},
	"user":      {PermCreatePost, PermViewPost},
}

// EnsureRole returns the role called name, creating it when missing.
func (s *Service) EnsureRole(ctx context.Context, name string) (*Role, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	row, err := s.repo.GetRoleByName(ctx, name)
	if err != nil {
		return nil, internal.NewInternalError("failed to load role", err)
	}
	if row != nil {
		role := RoleFromDataModel(*row)
		return &role, nil
	}

	role, err := s.CreateRole(ctx, name)
	if errors.Is(err, internal.ErrDuplicateRole) {
		// created concurrently
		return s.EnsureRole(ctx, name)
	}
	return role, err
}

// EnsurePermission returns the permission called name, creating it when missing.
func (s *Service) EnsurePermission(ctx context.Context, name string) (*Permission, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	row, err := s.repo.GetPermissionByName(ctx, name)
	if err != nil {
		return nil, internal.NewInternalError("failed to load permission", err)
	}
	if row != nil {
		perm := PermissionFromDataModel(*row)
		return &perm, nil
	}

	perm, err := s.CreatePermission(ctx, name)
	if errors.Is(err, internal.ErrDuplicatePermission) {
		return s.EnsurePermission(ctx, name)
	}
	return perm, err
}

// Bootstrap makes sure every permission and role of catalog exists with at
// least the listed grants. It can be run repeatedly.
func (s *Service) Bootstrap(ctx context.Context, permissions []string, catalog Catalog) (map[string]Role, error) {
	permIDs := make(map[string]int64, len(permissions))
	for _, name := range permissions {
		perm, err := s.EnsurePermission(ctx, name)
		if err != nil {
			return nil, err
		}
		permIDs[perm.Name] = perm.ID
	}

	roles := make(map[string]Role, len(catalog))
	for roleName, grants := range catalog {
		role, err := s.EnsureRole(ctx, roleName)
		if err != nil {
			return nil, err
		}

		ids := make([]int64, 0, len(grants))
		for _, g := range NormalizeNames(grants) {
			id, ok := permIDs[g]
			if !ok {
				perm, err := s.EnsurePermission(ctx, g)
				if err != nil {
					return nil, err
				}
				id = perm.ID
				permIDs[g] = id
			}
			ids = append(ids, id)
		}
		if len(ids) > 0 {
			if err := s.AttachPermissions(ctx, role.ID, ids); err != nil {
				return nil, err
			}
		}
		roles[role.Name] = *role
	}

	s.logger.Info("rbac catalog ensured", "permissions", len(permIDs), "roles", len(roles))
	return roles, nil
}
