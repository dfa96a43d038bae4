package user

import (
	"context"
	"net/http"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/rbac"
	"github.com/frahmantamala/rbac-service/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, nu NewUser) (*User, error)
	Profile(ctx context.Context, id int64) (*User, error)
	GetWithRoles(ctx context.Context, id int64) (*User, []rbac.Role, error)
	Deactivate(ctx context.Context, id, actorID int64) error
	SoftDelete(ctx context.Context, id, actorID int64) error
}

type RoleAssigner interface {
	AssignRoles(ctx context.Context, userID int64, roleIDs []int64, mode rbac.AssignMode) ([]rbac.Role, error)
}

type Handler struct {
	*transport.BaseHandler
	Service ServiceAPI
	Roles   RoleAssigner
}

func NewHandler(baseHandler *transport.BaseHandler, service ServiceAPI, roles RoleAssigner) *Handler {
	return &Handler{
		BaseHandler: baseHandler,
		Service:     service,
		Roles:       roles,
	}
}

// GetCurrentUser handles GET /users/me
func (h *Handler) GetCurrentUser(w http.ResponseWriter, r *http.Request) {
	subject, ok := internal.SubjectFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}

	u, err := h.Service.Profile(r.Context(), subject.UserID)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, MeResponse{
		PublicUser:  u.Public(),
		Roles:       nonNil(u.Roles),
		Permissions: nonNil(u.Permissions),
	})
}

// CreateUser handles POST /users
func (h *Handler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var dto CreateUserDTO
	if appErr := h.DecodeJSON(w, r, &dto); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	u, err := h.Service.Create(r.Context(), dto.ToNewUser())
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusCreated, u)
}

// GetUserRoles handles GET /users/{id}/roles
func (h *Handler) GetUserRoles(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	u, roles, err := h.Service.GetWithRoles(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	h.WriteJSON(w, http.StatusOK, toUserWithRoles(u, roles))
}

// ReplaceUserRoles handles PUT /users/{id}/roles
func (h *Handler) ReplaceUserRoles(w http.ResponseWriter, r *http.Request) {
	h.assignRoles(w, r, rbac.AssignReplace)
}

// AddUserRoles handles POST /users/{id}/roles
func (h *Handler) AddUserRoles(w http.ResponseWriter, r *http.Request) {
	h.assignRoles(w, r, rbac.AssignAdd)
}

func (h *Handler) assignRoles(w http.ResponseWriter, r *http.Request, mode rbac.AssignMode) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	var dto AssignRolesDTO
	if appErr := h.DecodeJSON(w, r, &dto); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}
	if appErr := dto.Validate(); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	if _, err := h.Roles.AssignRoles(r.Context(), id, dto.RoleIDs, mode); err != nil {
		h.WriteAppError(w, r, err)
		return
	}

	u, roles, err := h.Service.GetWithRoles(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, toUserWithRoles(u, roles))
}

// DeactivateUser handles PATCH /users/{id}/deactivate
func (h *Handler) DeactivateUser(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.Deactivate)
}

// DeleteUser handles DELETE /users/{id}
func (h *Handler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.Service.SoftDelete)
}

func (h *Handler) transition(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id, actorID int64) error) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	var actorID int64
	if subject, ok := internal.SubjectFromContext(r.Context()); ok {
		actorID = subject.UserID
	}

	if err := apply(r.Context(), id, actorID); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func toUserWithRoles(u *User, roles []rbac.Role) UserWithRolesResponse {
	out := UserWithRolesResponse{
		PublicUser: u.Public(),
		IsActive:   u.IsActive,
		Roles:      make([]RoleResponse, 0, len(roles)),
	}
	for _, role := range roles {
		out.Roles = append(out.Roles, RoleResponse{ID: role.ID, Name: role.Name})
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
