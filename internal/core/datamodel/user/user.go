package user

import "time"

// User mirrors the users table. Soft delete is carried by the explicit
// IsDeleted/DeletedAt pair and filtered by every query that authenticates.
type User struct {
	ID           int64      `gorm:"primaryKey"`
	Name         string     `gorm:"column:name;size:120;not null"`
	Email        string     `gorm:"column:email;size:150;uniqueIndex;not null"`
	PasswordHash string     `gorm:"column:password_hash;not null"`
	IsActive     bool       `gorm:"column:is_active;not null"`
	IsDeleted    bool       `gorm:"column:is_deleted;not null"`
	DeletedAt    *time.Time `gorm:"column:deleted_at"`
	CreatedAt    time.Time  `gorm:"column:created_at;autoCreateTime"`
}

func (User) TableName() string {
	return "users"
}
