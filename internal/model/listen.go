package model

import "time"

// Listen 收听关系正向投影（listener 关注 source）
type Listen struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	ListenerID string `gorm:"type:varchar(36);index:idx_listen_listener;index:idx_listen_pair,unique;not null"`
	SourceID   string `gorm:"type:varchar(36);not null;index:idx_listen_pair,unique"`
	// 复合唯一键，避免重复收听
	// idx_listen_pair = (listener_id, source_id)
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Listen) TableName() string { return "listens" }
