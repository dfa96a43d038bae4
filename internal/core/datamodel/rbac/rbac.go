package rbac

type Role struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"column:name;size:50;uniqueIndex;not null"`
}

func (Role) TableName() string {
	return "roles"
}

type Permission struct {
	ID   int64  `gorm:"primaryKey"`
	Name string `gorm:"column:name;size:80;uniqueIndex;not null"`
}

func (Permission) TableName() string {
	return "permissions"
}

// UserRole is an explicit join row; the pair is the primary key.
type UserRole struct {
	UserID int64 `gorm:"column:user_id;primaryKey;autoIncrement:false"`
	RoleID int64 `gorm:"column:role_id;primaryKey;autoIncrement:false"`
}

func (UserRole) TableName() string {
	return "user_roles"
}

type RolePermission struct {
	RoleID       int64 `gorm:"column:role_id;primaryKey;autoIncrement:false"`
	PermissionID int64 `gorm:"column:permission_id;primaryKey;autoIncrement:false"`
}

func (RolePermission) TableName() string {
	return "role_permissions"
}
