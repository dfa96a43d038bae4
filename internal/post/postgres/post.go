package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	postDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/post"
	"github.com/frahmantamala/rbac-service/internal/post"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

// PostRepository writes through gorm and reads the author projection with a
// plain sqlx join.
type PostRepository struct {
	db     *gorm.DB
	reader *sqlx.DB
}

func NewPostRepository(db *gorm.DB, reader *sqlx.DB) post.RepositoryAPI {
	return &PostRepository{db: db, reader: reader}
}

type postWithAuthorRow struct {
	ID          int64     `db:"id"`
	Title       string    `db:"title"`
	Content     string    `db:"content"`
	AuthorID    int64     `db:"author_id"`
	CreatedAt   time.Time `db:"created_at"`
	AuthorName  string    `db:"author_name"`
	AuthorEmail string    `db:"author_email"`
}

const findWithAuthorQuery = `
SELECT p.id, p.title, p.content, p.author_id, p.created_at,
       u.name AS author_name, u.email AS author_email
FROM posts p
JOIN users u ON u.id = p.author_id
WHERE p.id = ? AND p.is_deleted = ? AND u.is_deleted = ?`

func (r *PostRepository) Create(ctx context.Context, p *postDatamodel.Post) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *PostRepository) FindByID(ctx context.Context, id int64) (*postDatamodel.Post, error) {
	var p postDatamodel.Post
	err := r.db.WithContext(ctx).
		Where("id = ? AND is_deleted = ?", id, false).
		First(&p).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &p, nil
}

func (r *PostRepository) FindWithAuthor(ctx context.Context, id int64) (*post.PostWithAuthor, error) {
	var row postWithAuthorRow
	err := r.reader.GetContext(ctx, &row, r.reader.Rebind(findWithAuthorQuery), id, false, false)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}

	return &post.PostWithAuthor{
		Post: post.Post{
			ID:        row.ID,
			Title:     row.Title,
			Content:   row.Content,
			AuthorID:  row.AuthorID,
			CreatedAt: row.CreatedAt,
		},
		Author: post.Author{
			ID:    row.AuthorID,
			Name:  row.AuthorName,
			Email: row.AuthorEmail,
		},
	}, nil
}

func (r *PostRepository) SoftDelete(ctx context.Context, id int64, at time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&postDatamodel.Post{}).
		Where("id = ? AND is_deleted = ?", id, false).
		Updates(map[string]interface{}{
			"is_deleted": true,
			"deleted_at": at,
		})
	return res.RowsAffected > 0, res.Error
}
