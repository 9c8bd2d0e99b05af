package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickerPrice is one adjusted daily bar. (ticker_id, date) is unique.
type TickerPrice struct {
	ID       uint64    `gorm:"primaryKey;autoIncrement"`
	TickerID uint64    `gorm:"not null;uniqueIndex:idx_ticker_price_day;index"`
	Date     time.Time `gorm:"type:date;not null;uniqueIndex:idx_ticker_price_day;index"`

	Open   *decimal.Decimal `gorm:"type:numeric(12,4)"`
	High   *decimal.Decimal `gorm:"type:numeric(12,4)"`
	Low    *decimal.Decimal `gorm:"type:numeric(12,4)"`
	Close  *decimal.Decimal `gorm:"type:numeric(12,4)"`
	Volume *int64

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TickerPrice) TableName() string {
	return "ticker_prices"
}
