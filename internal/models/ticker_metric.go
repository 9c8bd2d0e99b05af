package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// TickerMetric is one derived value. (ticker_id, date, metric_key) is unique.
type TickerMetric struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement"`
	TickerID    uint64          `gorm:"not null;uniqueIndex:idx_ticker_metric_key;index"`
	Date        time.Time       `gorm:"type:date;not null;uniqueIndex:idx_ticker_metric_key;index"`
	MetricKey   string          `gorm:"type:varchar(100);not null;uniqueIndex:idx_ticker_metric_key;index"`
	MetricValue decimal.Decimal `gorm:"type:numeric(20,6);not null"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

func (TickerMetric) TableName() string {
	return "ticker_metrics"
}
