package post

import (
	"context"
	"net/http"

	"github.com/frahmantamala/rbac-service/internal"
	"github.com/frahmantamala/rbac-service/internal/transport"
)

type ServiceAPI interface {
	Create(ctx context.Context, subject *internal.Subject, dto CreatePostDTO) (*Post, error)
	Get(ctx context.Context, id int64) (*PostWithAuthor, error)
	Delete(ctx context.Context, subject *internal.Subject, id int64) error
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

// CreatePost handles POST /posts
func (h *Handler) CreatePost(w http.ResponseWriter, r *http.Request) {
	subject, ok := internal.SubjectFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}

	var dto CreatePostDTO
	if appErr := h.DecodeJSON(w, r, &dto); appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	p, err := h.Service.Create(r.Context(), subject, dto)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusCreated, p)
}

// GetPost handles GET /posts/{id}
func (h *Handler) GetPost(w http.ResponseWriter, r *http.Request) {
	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	p, err := h.Service.Get(r.Context(), id)
	if err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	h.WriteJSON(w, http.StatusOK, p)
}

// DeletePost handles DELETE /posts/{id}
func (h *Handler) DeletePost(w http.ResponseWriter, r *http.Request) {
	subject, ok := internal.SubjectFromContext(r.Context())
	if !ok {
		h.WriteAppError(w, r, internal.ErrMissingToken)
		return
	}

	id, appErr := h.PathID(r, "id")
	if appErr != nil {
		h.WriteAppError(w, r, appErr)
		return
	}

	if err := h.Service.Delete(r.Context(), subject, id); err != nil {
		h.WriteAppError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
