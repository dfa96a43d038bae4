package post

import (
	"context"
	"log/slog"
	"time"

	"github.com/frahmantamala/rbac-service/internal"
	postDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/post"
)

// RepositoryAPI stores posts. Reads skip soft-deleted posts and posts whose
// author is soft deleted, returning nil, nil.
type RepositoryAPI interface {
	Create(ctx context.Context, p *postDatamodel.Post) error
	FindByID(ctx context.Context, id int64) (*postDatamodel.Post, error)
	FindWithAuthor(ctx context.Context, id int64) (*PostWithAuthor, error)
	SoftDelete(ctx context.Context, id int64, at time.Time) (bool, error)
}

// AccessPolicy decides whether subject may act on a resource owned by ownerID.
type AccessPolicy interface {
	AllowOwnerOr(ctx context.Context, subject *internal.Subject, ownerID int64, permission string) error
}

type Service struct {
	repo   RepositoryAPI
	policy AccessPolicy
	logger *slog.Logger
	now    func() time.Time
}

func NewService(repo RepositoryAPI, policy AccessPolicy, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		policy: policy,
		logger: logger,
		now:    time.Now,
	}
}

// Create stores a post authored by subject.
func (s *Service) Create(ctx context.Context, subject *internal.Subject, dto CreatePostDTO) (*Post, error) {
	if subject == nil {
		return nil, internal.ErrMissingToken
	}
	if appErr := dto.Validate(); appErr != nil {
		return nil, appErr
	}

	row := &postDatamodel.Post{
		Title:    dto.Title,
		Content:  dto.Content,
		AuthorID: subject.UserID,
	}
	if err := s.repo.Create(ctx, row); err != nil {
		s.logger.Error("failed to create post", "author_id", subject.UserID, "error", err)
		return nil, internal.NewInternalError("failed to create post", err)
	}

	s.logger.Info("post created", "post_id", row.ID, "author_id", row.AuthorID)
	return FromDataModel(row), nil
}

func (s *Service) Get(ctx context.Context, id int64) (*PostWithAuthor, error) {
	p, err := s.repo.FindWithAuthor(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to load post", err)
	}
	if p == nil {
		return nil, internal.ErrPostNotFound
	}
	return p, nil
}

// Delete soft deletes a post. Only the author or a holder of delete_post may
// do so.
func (s *Service) Delete(ctx context.Context, subject *internal.Subject, id int64) error {
	row, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return internal.NewInternalError("failed to load post", err)
	}
	if row == nil {
		return internal.ErrPostNotFound
	}

	if err := s.policy.AllowOwnerOr(ctx, subject, row.AuthorID, DeletePermission); err != nil {
		return err
	}

	ok, err := s.repo.SoftDelete(ctx, id, s.now())
	if err != nil {
		return internal.NewInternalError("failed to delete post", err)
	}
	if !ok {
		return internal.ErrPostNotFound
	}

	s.logger.Info("post deleted", "post_id", id, "actor_id", subject.UserID)
	return nil
}
