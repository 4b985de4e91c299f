package model

import "time"

// Fan 收听关系反向投影（source 的听众是 listener），冗余自 Listen。
// 两个投影必须一致；不一致是可检测、可修复的异常，而不是崩溃。
type Fan struct {
	ID         string `gorm:"primaryKey;type:varchar(36)"`
	SourceID   string `gorm:"type:varchar(36);index:idx_fan_source;index:idx_fan_pair,unique;not null"`
	ListenerID string `gorm:"type:varchar(36);not null;index:idx_fan_pair,unique"`
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

func (Fan) TableName() string { return "fans" }
