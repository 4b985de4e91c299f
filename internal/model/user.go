package model

import "time"

// 内容作者类型
const (
	KindUser  = "user"
	KindPlace = "place"
)

// User 用户
type User struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	Username  string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Email     string `gorm:"type:varchar(128);uniqueIndex;not null"`
	Password  string `gorm:"type:varchar(128);not null"` // bcrypt hash
	Age       int
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (User) TableName() string { return "users" }
