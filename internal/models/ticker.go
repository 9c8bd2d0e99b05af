package models

import "time"

type Ticker struct {
	ID     uint64 `gorm:"primaryKey;autoIncrement"`
	Symbol string `gorm:"type:varchar(10);not null;uniqueIndex"`
	Name   string `gorm:"type:varchar(200)"`

	IndustryID *uint64 `gorm:"index"`
	SectorID   *uint64 `gorm:"index"`
	MarketID   *uint64 `gorm:"index"`

	IsSectorETF bool `gorm:"not null;default:false"`
	IsMarketETF bool `gorm:"not null;default:false"`

	NextEarningsDate  *time.Time `gorm:"type:date"`
	MarketCap         *int64
	SharesOutstanding *int64

	Sector   *Sector   `gorm:"foreignKey:SectorID"`
	Industry *Industry `gorm:"foreignKey:IndustryID"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (Ticker) TableName() string {
	return "tickers"
}

// IsETF reports whether the ticker is a benchmark rather than a screenable stock.
func (t Ticker) IsETF() bool {
	return t.IsSectorETF || t.IsMarketETF
}
