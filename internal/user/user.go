package user

import (
	"strings"
	"time"

	userDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/user"
)

type User struct {
	ID           int64      `json:"id"`
	Email        string     `json:"email"`
	Name         string     `json:"name"`
	PasswordHash string     `json:"-"` // Never expose password hash
	IsActive     bool       `json:"is_active"`
	IsDeleted    bool       `json:"-"`
	DeletedAt    *time.Time `json:"-"`
	Roles        []string   `json:"roles,omitempty"`
	Permissions  []string   `json:"permissions,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
}

// PublicUser is the projection returned to callers of the auth endpoints.
type PublicUser struct {
	ID    int64  `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// CanAuthenticate reports whether the account is in the only state allowed to
// sign in.
func (u *User) CanAuthenticate() bool {
	return u.IsActive && !u.IsDeleted
}

func (u *User) Public() PublicUser {
	return PublicUser{ID: u.ID, Email: u.Email, Name: u.Name}
}

func (u *User) HasPermission(permission string) bool {
	for _, p := range u.Permissions {
		if p == permission {
			return true
		}
	}
	return false
}

// NormalizeEmail trims surrounding whitespace. Case is kept, so addresses
// differing only in case are distinct accounts.
func NormalizeEmail(email string) string {
	return strings.TrimSpace(email)
}

func ToDataModel(u *User) *userDatamodel.User {
	return &userDatamodel.User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsDeleted:    u.IsDeleted,
		DeletedAt:    u.DeletedAt,
		CreatedAt:    u.CreatedAt,
	}
}

func FromDataModel(u *userDatamodel.User) *User {
	return &User{
		ID:           u.ID,
		Email:        u.Email,
		Name:         u.Name,
		PasswordHash: u.PasswordHash,
		IsActive:     u.IsActive,
		IsDeleted:    u.IsDeleted,
		DeletedAt:    u.DeletedAt,
		CreatedAt:    u.CreatedAt,
	}
}
