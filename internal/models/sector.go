package models

import "time"

type Sector struct {
	ID   uint64 `gorm:"primaryKey;autoIncrement"`
	Key  string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name string `gorm:"type:varchar(200);not null"`
	// Symbol is the sector tracking ETF used as the relative-strength benchmark.
	Symbol *string `gorm:"type:varchar(10)"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Sector) TableName() string {
	return "sectors"
}

type Industry struct {
	ID       uint64 `gorm:"primaryKey;autoIncrement"`
	Key      string `gorm:"type:varchar(100);not null;uniqueIndex"`
	Name     string `gorm:"type:varchar(200);not null"`
	SectorID uint64 `gorm:"not null;index"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Industry) TableName() string {
	return "industries"
}
