package rbac

import (
	"sort"
	"strings"

	rbacDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/rbac"
)

type Role struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type Permission struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type RoleWithPermissions struct {
	Role
	Permissions []Permission `json:"permissions"`
}

type PermissionWithRoles struct {
	Permission
	Roles []Role `json:"roles"`
}

// AssignMode selects how AssignRoles treats roles the user already holds.
type AssignMode int

const (
	// AssignAdd keeps existing roles and adds the requested ones.
	AssignAdd AssignMode = iota
	// AssignReplace drops every existing role except the default one.
	AssignReplace
)

func (m AssignMode) String() string {
	if m == AssignReplace {
		return "replace"
	}
	return "add"
}

func RoleFromDataModel(r rbacDatamodel.Role) Role {
	return Role{ID: r.ID, Name: r.Name}
}

func PermissionFromDataModel(p rbacDatamodel.Permission) Permission {
	return Permission{ID: p.ID, Name: p.Name}
}

func RolesFromDataModel(rows []rbacDatamodel.Role) []Role {
	out := make([]Role, 0, len(rows))
	for _, r := range rows {
		out = append(out, RoleFromDataModel(r))
	}
	return out
}

func PermissionsFromDataModel(rows []rbacDatamodel.Permission) []Permission {
	out := make([]Permission, 0, len(rows))
	for _, p := range rows {
		out = append(out, PermissionFromDataModel(p))
	}
	return out
}

// RoleNames returns the sorted names of roles.
func RoleNames(roles []Role) []string {
	names := make([]string, 0, len(roles))
	for _, r := range roles {
		names = append(names, r.Name)
	}
	sort.Strings(names)
	return names
}

// NormalizeNames trims, lowercases, deduplicates and sorts names, dropping
// empty entries.
func NormalizeNames(names []string) []string {
	seen := make(map[string]struct{}, len(names))
	out := make([]string, 0, len(names))
	for _, n := range names {
		n = strings.ToLower(strings.TrimSpace(n))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// UniqueIDs drops duplicate and non-positive ids preserving first-seen order.
func UniqueIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := make([]int64, 0, len(ids))
	for _, id := range ids {
		if id <= 0 {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
