package rbac

import (
	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/core/common/validation"
)

type CreateNameDTO struct {
	Name string `json:"name" validate:"required,max=100"`
}

func (d CreateNameDTO) Validate() *internal.AppError {
	return validation.Struct(d)
}

type AttachPermissionsDTO struct {
	PermissionIDs []int64 `json:"permission_ids" validate:"required,min=1,dive,gt=0"`
}

func (d AttachPermissionsDTO) Validate() *internal.AppError {
	return validation.Struct(d)
}
