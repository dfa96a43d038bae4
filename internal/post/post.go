package post

import (
	"time"

	postDatamodel "github.com/frahmantamala/rbac-service/internal/core/datamodel/post"
	"github.com/frahmantamala/rbac-service/internal/rbac"
)

// DeletePermission lets a non-owner remove someone else's post.
const DeletePermission = rbac.PermDeletePost

type Post struct {
	ID        int64      `json:"id"`
	Title     string     `json:"title"`
	Content   string     `json:"content"`
	AuthorID  int64      `json:"author_id"`
	IsDeleted bool       `json:"-"`
	DeletedAt *time.Time `json:"-"`
	CreatedAt time.Time  `json:"created_at"`
}

// Author is the public projection of the user who wrote a post.
type Author struct {
	ID    int64  `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

type PostWithAuthor struct {
	Post
	Author Author `json:"author"`
}

func ToDataModel(p *Post) *postDatamodel.Post {
	return &postDatamodel.Post{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		AuthorID:  p.AuthorID,
		IsDeleted: p.IsDeleted,
		DeletedAt: p.DeletedAt,
		CreatedAt: p.CreatedAt,
	}
}

func FromDataModel(p *postDatamodel.Post) *Post {
	return &Post{
		ID:        p.ID,
		Title:     p.Title,
		Content:   p.Content,
		AuthorID:  p.AuthorID,
		IsDeleted: p.IsDeleted,
		DeletedAt: p.DeletedAt,
		CreatedAt: p.CreatedAt,
	}
}
