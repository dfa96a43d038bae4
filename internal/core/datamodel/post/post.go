package post

import "time"

type Post struct {
	ID        int64      `gorm:"primaryKey"`
	Title     string     `gorm:"column:title;size:200;not null"`
	Content   string     `gorm:"column:content;type:text;not null"`
	AuthorID  int64      `gorm:"column:author_id;index;not null"`
	IsDeleted bool       `gorm:"column:is_deleted;not null"`
	DeletedAt *time.Time `gorm:"column:deleted_at"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (Post) TableName() string {
	return "posts"
}
