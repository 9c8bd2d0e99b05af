package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"putscreener/internal/models"
)

type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type ReferenceRepository interface {
	UpsertMarket(ctx context.Context, item *models.Market) error
	GetMarketByKey(ctx context.Context, key string) (*models.Market, error)
	FindOrCreateSectorTx(ctx context.Context, tx *gorm.DB, item *models.Sector) (*models.Sector, error)
	FindOrCreateIndustryTx(ctx context.Context, tx *gorm.DB, item *models.Industry) (*models.Industry, error)
	GetSectorByKey(ctx context.Context, key string) (*models.Sector, error)
}

type TickerRepository interface {
	ListTickers(ctx context.Context, params ListTickersParams) ([]models.Ticker, error)
	GetTickerBySymbol(ctx context.Context, symbol string) (*models.Ticker, error)
	EnsureTicker(ctx context.Context, item *models.Ticker) (*models.Ticker, error)
	UpdateTickerTx(ctx context.Context, tx *gorm.DB, id uint64, fields map[string]any) error
}

type PriceRepository interface {
	UpsertPricesTx(ctx context.Context, tx *gorm.DB, items []models.TickerPrice) error
	LatestPriceDate(ctx context.Context, tickerID uint64) (*time.Time, error)
	ListPrices(ctx context.Context, tickerID uint64, from, to time.Time) ([]models.TickerPrice, error)
}

type MetricRepository interface {
	UpsertMetricsTx(ctx context.Context, tx *gorm.DB, items []models.TickerMetric) error
	ListMetrics(ctx context.Context, tickerID uint64, date time.Time) ([]models.TickerMetric, error)
	// LatestMetricsOnOrBefore returns, per key, the most recent value dated on
	// or before the given date.
	LatestMetricsOnOrBefore(ctx context.Context, tickerID uint64, keys []string, date time.Time) (map[string]models.TickerMetric, error)
}

type SyncStateRepository interface {
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error
	ListSyncStates(ctx context.Context) ([]models.SyncState, error)
}

type ScreeningRepository interface {
	InsertScreeningResultsTx(ctx context.Context, tx *gorm.DB, items []models.ScreeningResult) error
	ListLatestScreeningResults(ctx context.Context) ([]models.ScreeningResult, error)
	ListScreeningResultsByRunID(ctx context.Context, runID string) ([]models.ScreeningResult, error)
	ListScreeningResultsByDate(ctx context.Context, date time.Time) ([]models.ScreeningResult, error)
}

type SettingsRepository interface {
	GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error)
	UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error
	ListSystemSettings(ctx context.Context, prefix string) ([]models.SystemSetting, error)
}

type RetentionRepository interface {
	DeleteBeforeTx(ctx context.Context, tx *gorm.DB, cutoff time.Time) (RetentionCounts, error)
}

// Repository is the full storage surface consumed by the pipeline stages.
type Repository interface {
	TxRunner
	ReferenceRepository
	TickerRepository
	PriceRepository
	MetricRepository
	SyncStateRepository
	ScreeningRepository
	SettingsRepository
	RetentionRepository
}

type ListTickersParams struct {
	ExcludeETFs bool
	Symbols     []string
}

type RetentionCounts struct {
	Prices           int64 `json:"prices"`
	Metrics          int64 `json:"metrics"`
	ScreeningResults int64 `json:"screening_results"`
}
