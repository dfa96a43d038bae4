package user

import (
	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
)

const (
	SourceSelf  = "self"
	SourceAdmin = "admin"
)

// NewUser carries everything needed to create an account. Password is
// plaintext and is hashed by the service.
type NewUser struct {
	Name     string
	Email    string
	Password string
	IsActive bool
	RoleIDs  []int64
	Source   string
}

// CreateUserDTO is the body of administrative user creation.
type CreateUserDTO struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Email    string  `json:"email" validate:"required,email,max=150"`
	Password string  `json:"password" validate:"required,min=8,max=72,maxbytes=72"`
	IsActive *bool   `json:"is_active,omitempty"`
	RoleIDs  []int64 `json:"role_ids,omitempty" validate:"omitempty,dive,gt=0"`
}

func (d CreateUserDTO) Validate() *internal.AppError {
	return validation.Struct(d)
}

func (d CreateUserDTO) ToNewUser() NewUser {
	active := true
	if d.IsActive != nil {
		active = *d.IsActive
	}
	return NewUser{
		Name:     d.Name,
		Email:    d.Email,
		Password: d.Password,
		IsActive: active,
		RoleIDs:  d.RoleIDs,
		Source:   SourceAdmin,
	}
}

type AssignRolesDTO struct {
	RoleIDs []int64 `json:"role_ids" validate:"dive,gt=0"`
}

func (d AssignRolesDTO) Validate() *internal.AppError {
	return validation.Struct(d)
}

type RoleResponse struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

type UserWithRolesResponse struct {
	PublicUser
	IsActive bool           `json:"is_active"`
	Roles    []RoleResponse `json:"roles"`
}

type MeResponse struct {
	PublicUser
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}
