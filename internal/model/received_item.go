package model

import (
	"time"

	"gorm.io/datatypes"
)

// ReceivedItem 投递记录：内容对某个 listener 可见的持久化事实。
// (user_id, item_id) 唯一；冗余字段在插入时快照，除显式重算外不回写。
// IsRead / Notified 单调，只能 false -> true。
type ReceivedItem struct {
	ID     string `gorm:"primaryKey;type:varchar(36)"`
	UserID string `gorm:"type:varchar(36);index:idx_recv_user;uniqueIndex:ux_recv_user_item;not null"`
	ItemID string `gorm:"type:varchar(36);index:idx_recv_item;uniqueIndex:ux_recv_user_item;not null"`

	TileAddress   string  `gorm:"type:varchar(32);index:idx_recv_tile;not null"`
	Lat           float64
	Lon           float64
	TopicIDs      datatypes.JSON
	AuthorID      string `gorm:"type:varchar(36);index:idx_recv_author;not null"`
	AuthorKind    string `gorm:"type:varchar(8);not null"`
	CreatedTime   time.Time
	EffectiveDate *time.Time
	ExpiryTime    time.Time
	Popularity    float64
	Blacklisted   bool `gorm:"not null;default:false"`

	IsRead   bool `gorm:"not null;default:false"`
	Notified bool `gorm:"not null;default:false"`

	CreatedAt time.Time
}

func (ReceivedItem) TableName() string { return "received_items" }
