package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// ScreeningResult is one qualifying put expiration for one ticker in one run.
// Every row of a run shares RunID and CreatedAt.
type ScreeningResult struct {
	ID            uint64    `gorm:"primaryKey;autoIncrement"`
	RunID         string    `gorm:"type:varchar(36);not null;index"`
	TickerID      uint64    `gorm:"not null;index"`
	Symbol        string    `gorm:"type:varchar(10);not null"`
	Name          string    `gorm:"type:varchar(200)"`
	ScreeningDate time.Time `gorm:"type:date;not null;index"`

	StockPrice decimal.Decimal `gorm:"type:numeric(12,4)"`
	Industry   *string         `gorm:"type:varchar(200)"`
	Sector     *string         `gorm:"type:varchar(200)"`
	SectorETF  *string         `gorm:"column:sector_etf;type:varchar(10)"`

	Stock52WPct  decimal.Decimal  `gorm:"column:stock_52w_pct;type:numeric(10,4)"`
	Week52High   decimal.Decimal  `gorm:"column:week_52_high;type:numeric(12,4)"`
	Week52Low    decimal.Decimal  `gorm:"column:week_52_low;type:numeric(12,4)"`
	DistHighPct  decimal.Decimal  `gorm:"type:numeric(10,4)"`
	DistLowPct   decimal.Decimal  `gorm:"type:numeric(10,4)"`
	Sector52WPct *decimal.Decimal `gorm:"column:sector_52w_pct;type:numeric(10,4)"`

	PERatio           decimal.Decimal  `gorm:"column:pe_ratio;type:numeric(10,2)"`
	SectorPE          *decimal.Decimal `gorm:"column:sector_pe;type:numeric(10,2)"`
	MarketCapMillions int64
	AvgVolumeMillions decimal.Decimal `gorm:"type:numeric(14,2)"`
	ATRPct            decimal.Decimal `gorm:"column:atr_pct;type:numeric(10,4)"`
	IsLateral         bool

	Expiration      time.Time       `gorm:"type:date"`
	PutStrike       decimal.Decimal `gorm:"type:numeric(12,4)"`
	DTE             int             `gorm:"column:dte"`
	Bid             decimal.Decimal `gorm:"type:numeric(10,2)"`
	Ask             decimal.Decimal `gorm:"type:numeric(10,2)"`
	Spread          decimal.Decimal `gorm:"type:numeric(10,2)"`
	Premium         decimal.Decimal `gorm:"type:numeric(10,4)"`
	AnnualizedYield decimal.Decimal `gorm:"type:numeric(10,6);index"`
	ContractsNeeded int

	DaysToEarnings *int

	ChartLink   string `gorm:"type:varchar(500)"`
	OptionsLink string `gorm:"type:varchar(500)"`

	CreatedAt time.Time `gorm:"not null;index"`
}

func (ScreeningResult) TableName() string {
	return "screening_results"
}
