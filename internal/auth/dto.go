package auth

import (
	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
)

// RegisterDTO is the public sign-up body.
type RegisterDTO struct {
	Name     string  `json:"name" validate:"required,max=120"`
	Email    string  `json:"email" validate:"required,email,max=150"`
	Password string  `json:"password" validate:"required,min=8,max=72,maxbytes=72"`
	RoleIDs  []int64 `json:"role_ids,omitempty" validate:"omitempty,dive,gt=0"`
}

// LoginDTO is the transport shape used by the HTTP handler to accept login requests.
type LoginDTO struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// RefreshTokenDTO for refresh token requests
type RefreshTokenDTO struct {
	RefreshToken string `json:"refresh_token" validate:"required"`
}

func (d RegisterDTO) Validate() *internal.AppError {
	return validation.Struct(d)
}

func (d LoginDTO) Validate() *internal.AppError {
	return validation.Struct(d)
}

func (d RefreshTokenDTO) Validate() *internal.AppError {
	return validation.Struct(d)
}
