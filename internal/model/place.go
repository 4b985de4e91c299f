package model

import "time"

// Place 地点频道，可作为内容作者和被关注对象
type Place struct {
	ID          string  `gorm:"primaryKey;type:varchar(36)"`
	Name        string  `gorm:"type:varchar(128);not null"`
	Lat         float64 `gorm:"not null"`
	Lon         float64 `gorm:"not null"`
	TileAddress string  `gorm:"type:varchar(32);index:idx_place_tile;not null"`
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (Place) TableName() string { return "places" }
