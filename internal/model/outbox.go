package model

import "time"

// Outbox 发布事件外发盒，分发 worker 从这里拉取待扇出的内容
type Outbox struct {
	ID          string    `gorm:"primaryKey;type:varchar(36)"`
	ItemID      string    `gorm:"type:varchar(36);uniqueIndex"`
	AuthorID    string    `gorm:"type:varchar(36);index:idx_outbox_author"`
	CreatedAt   time.Time `gorm:"index"`
	Status      string    `gorm:"type:varchar(16);index"` // pending, processing, done
	ProcessedAt *time.Time
	FanoutCount int64
}

func (Outbox) TableName() string { return "outbox" }
