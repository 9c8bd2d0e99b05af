package models

import "time"

// Market is an index universe tracked through its ETF (sp500 -> SPY).
type Market struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Key    string `gorm:"type:varchar(50);not null;uniqueIndex"`
	Name   string `gorm:"type:varchar(100);not null"`
	Symbol string `gorm:"type:varchar(10);not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Market) TableName() string {
	return "markets"
}
