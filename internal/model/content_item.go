package model

import (
	"time"

	"gorm.io/datatypes"
)

// ContentItem 内容主体（带位置的短内容）
// Blacklisted 置位后对所有查询隐藏但不物理删除；物理删除只走显式 purge，
// 并级联清掉派生的 received_items。
type ContentItem struct {
	ID            string  `gorm:"primaryKey;type:varchar(36)"`
	AuthorID      string  `gorm:"type:varchar(36);index:idx_item_author;not null"`
	AuthorKind    string  `gorm:"type:varchar(8);not null"` // user / place
	PlaceID       string  `gorm:"type:varchar(36);index:idx_item_place;not null"`
	Lat           float64 `gorm:"not null"`
	Lon           float64 `gorm:"not null"`
	TileAddress   string  `gorm:"type:varchar(32);index:idx_item_tile;not null"`
	TopicIDs      datatypes.JSON
	Message       string `gorm:"type:text"`
	CreatedTime   time.Time `gorm:"index;not null"`
	ExpiryTime    time.Time `gorm:"not null"`
	EffectiveDate *time.Time
	Popularity    float64 `gorm:"index"`
	Blacklisted   bool    `gorm:"not null;default:false"`

	Likes    []Like    `gorm:"foreignKey:ItemID"`
	Comments []Comment `gorm:"foreignKey:ItemID"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (ContentItem) TableName() string { return "content_items" }

// Like 点赞，(item, user) 唯一
type Like struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	ItemID    string `gorm:"type:varchar(36);index:idx_like_item;uniqueIndex:ux_like_item_user;not null"`
	UserID    string `gorm:"type:varchar(36);uniqueIndex:ux_like_item_user;not null"`
	Name      string `gorm:"type:varchar(64)"`
	CreatedAt time.Time
}

func (Like) TableName() string { return "likes" }

// Comment 评论，按创建时间有序
type Comment struct {
	ID        string `gorm:"primaryKey;type:varchar(36)"`
	ItemID    string `gorm:"type:varchar(36);index:idx_comment_item;not null"`
	AuthorID  string `gorm:"type:varchar(36);not null"`
	Text      string `gorm:"type:text"`
	CreatedAt time.Time `gorm:"index"`
}

func (Comment) TableName() string { return "comments" }
