package rbac

import (
	"context"
	"net/http"

	"github.com/frahmantamala/rbac-service/internal/transport"
)

type ServiceAPI interface {
	ListRoles(ctx context.Context) ([]Role, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
	RoleWithPermissions(ctx context.Context, roleID int64) (*RoleWithPermissions, error)
	PermissionWithRoles(ctx context.Context, permissionID int64) (*PermissionWithRoles, error)
	CreateRole(ctx context.Context, name string) (*Role, error)
	CreatePermission(ctx context.Context, name string) (*Permission, error)
	AttachPermissions(ctx context.Context, roleID int64, permissionIDs []int64) error
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
	}
}

// ListRoles handles GET /roles
func (h *Handler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.Service.ListRoles(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, roles)
}

// ListPermissions handles GET /permissions
func (h *Handler) ListPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.Service.ListPermissions(r.Context())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perms)
}

// GetRolePermissions handles GET /roles/{id}/permissions
func (h *Handler) GetRolePermissions(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	role, err := h.Service.RoleWithPermissions(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}

// GetPermissionRoles handles GET /permissions/{id}/roles
func (h *Handler) GetPermissionRoles(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	perm, err := h.Service.PermissionWithRoles(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, perm)
}

// CreateRole handles POST /roles
func (h *Handler) CreateRole(w http.ResponseWriter, r *http.Request) {
	var dto CreateNameDTO
	if appErr := h.DecodeJSON(w, r, &dto); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	role, err := h.Service.CreateRole(r.Context(), dto.Name)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, role)
}

// CreatePermission handles POST /permissions
func (h *Handler) CreatePermission(w http.ResponseWriter, r *http.Request) {
	var dto CreateNameDTO
	if appErr := h.DecodeJSON(w, r, &dto); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	perm, err := h.Service.CreatePermission(r.Context(), dto.Name)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, perm)
}

// AttachPermissions handles POST /roles/{id}/permissions and answers with the
// updated role.
func (h *Handler) AttachPermissions(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	var dto AttachPermissionsDTO
	if appErr := h.DecodeJSON(w, r, &dto); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	if err := h.Service.AttachPermissions(r.Context(), id, dto.PermissionIDs); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	role, err := h.Service.RoleWithPermissions(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, role)
}
