package postgres

import (
	"context"
	"errors"

	"github.com/frahmantamala/rbac-service/internal"
	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type GraphRepository struct {
	db *gorm.DB
}

func NewGraphRepository(db *gorm.DB) rbac.RepositoryAPI {
	return &GraphRepository{db: db}
}

// activeHolders restricts a user_roles join to users that are not soft deleted.
func activeHolders(db *gorm.DB) *gorm.DB {
	return db.Joins("JOIN users ON users.id = user_roles.user_id").
		Where("users.is_deleted = ?", false)
}

func (r *GraphRepository) UserRoleNames(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("roles").
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Scopes(activeHolders).
		Where("user_roles.user_id = ?", userID).
		Order("roles.name ASC").
		Distinct().
		Pluck("roles.name", &names).Error
	return names, err
}

func (r *GraphRepository) UserPermissionNames(ctx context.Context, userID int64) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).
		Table("permissions").
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Joins("JOIN user_roles ON user_roles.role_id = role_permissions.role_id").
		Scopes(activeHolders).
		Where("user_roles.user_id = ?", userID).
		Order("permissions.name ASC").
		Distinct().
		Pluck("permissions.name", &names).Error
	return names, err
}

func (r *GraphRepository) UserRoles(ctx context.Context, userID int64) ([]rbacDatamodel.Role, error) {
	return userRoles(r.db.WithContext(ctx), userID)
}

func userRoles(db *gorm.DB, userID int64) ([]rbacDatamodel.Role, error) {
	var roles []rbacDatamodel.Role
	err := db.
		Joins("JOIN user_roles ON user_roles.role_id = roles.id").
		Scopes(activeHolders).
		Where("user_roles.user_id = ?", userID).
		Order("roles.id ASC").
		Find(&roles).Error
	return roles, err
}

// assignableRoles returns the default role followed by every known role in
// ids, deduplicated by id. A missing default role aborts with NotFound.
func assignableRoles(tx *gorm.DB, defaultRole string, ids []int64) ([]rbacDatamodel.Role, error) {
	var def rbacDatamodel.Role
	if err := tx.Where("name = ?", defaultRole).First(&def).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrDefaultRoleNotFound
		}
		return nil, err
	}

	roles := []rbacDatamodel.Role{def}
	if len(ids) == 0 {
		return roles, nil
	}

	var requested []rbacDatamodel.Role
	if err := tx.Where("id IN ?", ids).Order("id ASC").Find(&requested).Error; err != nil {
		return nil, err
	}
	for _, role := range requested {
		if role.ID != def.ID {
			roles = append(roles, role)
		}
	}
	return roles, nil
}

func links(userID int64, roles []rbacDatamodel.Role) []rbacDatamodel.UserRole {
	out := make([]rbacDatamodel.UserRole, 0, len(roles))
	for _, role := range roles {
		out = append(out, rbacDatamodel.UserRole{UserID: userID, RoleID: role.ID})
	}
	return out
}

func (r *GraphRepository) CreateUserWithRoles(ctx context.Context, user *userDatamodel.User, defaultRole string, roleIDs []int64) ([]rbacDatamodel.Role, error) {
	var assigned []rbacDatamodel.Role

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		roles, err := assignableRoles(tx, defaultRole, roleIDs)
		if err != nil {
			return err
		}

		if err := tx.Create(user).Error; err != nil {
			return err
		}

		rows := links(user.ID, roles)
		if err := tx.Create(&rows).Error; err != nil {
			return err
		}

		assigned = roles
		return nil
	})
	if err != nil {
		// a rolled back insert must not leak its generated id
		user.ID = 0
		return nil, err
	}
	return assigned, nil
}

func (r *GraphRepository) AssignUserRoles(ctx context.Context, userID int64, defaultRole string, roleIDs []int64, replace bool) ([]rbacDatamodel.Role, error) {
	var current []rbacDatamodel.Role

	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&userDatamodel.User{}).
			Where("id = ? AND is_deleted = ?", userID, false).
			Count(&count).Error; err != nil {
			return err
		}
		if count == 0 {
			return internal.ErrUserNotFound
		}

		roles, err := assignableRoles(tx, defaultRole, roleIDs)
		if err != nil {
			return err
		}

		if replace {
			if err := tx.Where("user_id = ?", userID).Delete(&rbacDatamodel.UserRole{}).Error; err != nil {
				return err
			}
		}

		rows := links(userID, roles)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error; err != nil {
			return err
		}

		current, err = userRoles(tx, userID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return current, nil
}

func (r *GraphRepository) GetRoleByID(ctx context.Context, id int64) (*rbacDatamodel.Role, error) {
	var role rbacDatamodel.Role
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *GraphRepository) GetRoleByName(ctx context.Context, name string) (*rbacDatamodel.Role, error) {
	var role rbacDatamodel.Role
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&role).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &role, nil
}

func (r *GraphRepository) GetPermissionByID(ctx context.Context, id int64) (*rbacDatamodel.Permission, error) {
	var perm rbacDatamodel.Permission
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &perm, nil
}

func (r *GraphRepository) GetPermissionByName(ctx context.Context, name string) (*rbacDatamodel.Permission, error) {
	var perm rbacDatamodel.Permission
	err := r.db.WithContext(ctx).Where("name = ?", name).First(&perm).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &perm, nil
}

func (r *GraphRepository) ListRoles(ctx context.Context) ([]rbacDatamodel.Role, error) {
	var roles []rbacDatamodel.Role
	err := r.db.WithContext(ctx).Order("name ASC").Find(&roles).Error
	return roles, err
}

func (r *GraphRepository) ListPermissions(ctx context.Context) ([]rbacDatamodel.Permission, error) {
	var perms []rbacDatamodel.Permission
	err := r.db.WithContext(ctx).Order("name ASC").Find(&perms).Error
	return perms, err
}

func (r *GraphRepository) RolePermissions(ctx context.Context, roleID int64) ([]rbacDatamodel.Permission, error) {
	var perms []rbacDatamodel.Permission
	err := r.db.WithContext(ctx).
		Joins("JOIN role_permissions ON role_permissions.permission_id = permissions.id").
		Where("role_permissions.role_id = ?", roleID).
		Order("permissions.name ASC").
		Find(&perms).Error
	return perms, err
}

func (r *GraphRepository) PermissionRoles(ctx context.Context, permissionID int64) ([]rbacDatamodel.Role, error) {
	var roles []rbacDatamodel.Role
	err := r.db.WithContext(ctx).
		Joins("JOIN role_permissions ON role_permissions.role_id = roles.id").
		Where("role_permissions.permission_id = ?", permissionID).
		Order("roles.name ASC").
		Find(&roles).Error
	return roles, err
}

func (r *GraphRepository) CreateRole(ctx context.Context, role *rbacDatamodel.Role) error {
	return r.db.WithContext(ctx).Create(role).Error
}

func (r *GraphRepository) CreatePermission(ctx context.Context, permission *rbacDatamodel.Permission) error {
	return r.db.WithContext(ctx).Create(permission).Error
}

func (r *GraphRepository) AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error {
	if len(permissionIDs) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var roleCount int64
		if err := tx.Model(&rbacDatamodel.Role{}).Where("id = ?", roleID).Count(&roleCount).Error; err != nil {
			return err
		}
		if roleCount == 0 {
			return internal.ErrRoleNotFound
		}

		var found []int64
		if err := tx.Model(&rbacDatamodel.Permission{}).Where("id IN ?", permissionIDs).Pluck("id", &found).Error; err != nil {
			return err
		}
		if len(found) != len(permissionIDs) {
			return internal.ErrPermissionNotFound
		}

		rows := make([]rbacDatamodel.RolePermission, 0, len(found))
		for _, id := range found {
			rows = append(rows, rbacDatamodel.RolePermission{RoleID: roleID, PermissionID: id})
		}
		return tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&rows).Error
	})
}
