package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"putscreener/internal/models"
	"putscreener/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.WithContext(ctx).Transaction(fn)
}

// --- reference data ---------------------------------------------------------

func (s *Store) UpsertMarket(ctx context.Context, item *models.Market) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "symbol", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) GetMarketByKey(ctx context.Context, key string) (*models.Market, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Market
	err := s.db.WithContext(ctx).First(&item, "key = ?", strings.TrimSpace(key)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) FindOrCreateSectorTx(ctx context.Context, tx *gorm.DB, item *models.Sector) (*models.Sector, error) {
	if item == nil {
		return nil, nil
	}
	var out models.Sector
	err := tx.WithContext(ctx).
		Where(models.Sector{Key: item.Key}).
		Attrs(models.Sector{Name: item.Name, Symbol: item.Symbol}).
		FirstOrCreate(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) FindOrCreateIndustryTx(ctx context.Context, tx *gorm.DB, item *models.Industry) (*models.Industry, error) {
	if item == nil {
		return nil, nil
	}
	var out models.Industry
	err := tx.WithContext(ctx).
		Where(models.Industry{Key: item.Key}).
		Attrs(models.Industry{Name: item.Name, SectorID: item.SectorID}).
		FirstOrCreate(&out).Error
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) GetSectorByKey(ctx context.Context, key string) (*models.Sector, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Sector
	err := s.db.WithContext(ctx).First(&item, "key = ?", strings.TrimSpace(key)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// --- tickers ----------------------------------------------------------------

func (s *Store) ListTickers(ctx context.Context, params repository.ListTickersParams) ([]models.Ticker, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.Ticker{}).
		Preload("Sector").
		Preload("Industry")
	if params.ExcludeETFs {
		query = query.Where("is_sector_etf = ? AND is_market_etf = ?", false, false)
	}
	if symbols := cleanStrings(params.Symbols); len(symbols) > 0 {
		query = query.Where("symbol IN ?", symbols)
	}
	var items []models.Ticker
	if err := query.Order("symbol asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) GetTickerBySymbol(ctx context.Context, symbol string) (*models.Ticker, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.Ticker
	err := s.db.WithContext(ctx).
		Preload("Sector").
		Preload("Industry").
		First(&item, "symbol = ?", strings.ToUpper(strings.TrimSpace(symbol))).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// EnsureTicker creates the ticker when its symbol is new and refreshes the ETF
// role flags and market reference otherwise.
func (s *Store) EnsureTicker(ctx context.Context, item *models.Ticker) (*models.Ticker, error) {
	if s == nil || s.db == nil || item == nil {
		return nil, nil
	}
	item.Symbol = strings.ToUpper(strings.TrimSpace(item.Symbol))
	if item.Name == "" {
		item.Name = item.Symbol
	}
	err := s.db.WithContext(ctx).Omit(clause.Associations).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "symbol"}},
		DoUpdates: clause.AssignmentColumns([]string{"is_sector_etf", "is_market_etf", "market_id", "updated_at"}),
	}).Create(item).Error
	if err != nil {
		return nil, err
	}
	return s.GetTickerBySymbol(ctx, item.Symbol)
}

func (s *Store) UpdateTickerTx(ctx context.Context, tx *gorm.DB, id uint64, fields map[string]any) error {
	if len(fields) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Model(&models.Ticker{}).Where("id = ?", id).Updates(fields).Error
}

// --- prices -----------------------------------------------------------------

func (s *Store) UpsertPricesTx(ctx context.Context, tx *gorm.DB, items []models.TickerPrice) error {
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "ticker_id"}, {Name: "date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"open",
			"high",
			"low",
			"close",
			"volume",
			"updated_at",
		}),
	}).CreateInBatches(items, 200).Error
}

func (s *Store) LatestPriceDate(ctx context.Context, tickerID uint64) (*time.Time, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.TickerPrice
	err := s.db.WithContext(ctx).
		Select("id", "ticker_id", "date").
		Where("ticker_id = ?", tickerID).
		Order("date desc").
		Limit(1).
		Take(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	day := models.Day(item.Date)
	return &day, nil
}

func (s *Store) ListPrices(ctx context.Context, tickerID uint64, from, to time.Time) ([]models.TickerPrice, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TickerPrice
	err := s.db.WithContext(ctx).
		Where("ticker_id = ?", tickerID).
		Where("date >= ? AND date <= ?", models.Day(from), models.Day(to)).
		Order("date asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- metrics ----------------------------------------------------------------

func (s *Store) UpsertMetricsTx(ctx context.Context, tx *gorm.DB, items []models.TickerMetric) error {
	if len(items) == 0 {
		return nil
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "ticker_id"}, {Name: "date"}, {Name: "metric_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"metric_value", "updated_at"}),
	}).Create(&items).Error
}

func (s *Store) ListMetrics(ctx context.Context, tickerID uint64, date time.Time) ([]models.TickerMetric, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.TickerMetric
	err := s.db.WithContext(ctx).
		Where("ticker_id = ? AND date = ?", tickerID, models.Day(date)).
		Order("metric_key asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) LatestMetricsOnOrBefore(ctx context.Context, tickerID uint64, keys []string, date time.Time) (map[string]models.TickerMetric, error) {
	out := map[string]models.TickerMetric{}
	if s == nil || s.db == nil {
		return out, nil
	}
	keys = cleanStrings(keys)
	if len(keys) == 0 {
		return out, nil
	}
	var items []models.TickerMetric
	err := s.db.WithContext(ctx).
		Where("ticker_id = ? AND metric_key IN ? AND date <= ?", tickerID, keys, models.Day(date)).
		Order("date desc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	for _, item := range items {
		if _, ok := out[item.MetricKey]; ok {
			continue
		}
		out[item.MetricKey] = item
	}
	return out, nil
}

// --- checkpoints ------------------------------------------------------------

func (s *Store) GetSyncState(ctx context.Context, scope string) (*models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var state models.SyncState
	err := s.db.WithContext(ctx).First(&state, "scope = ?", scope).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &state, nil
}

func (s *Store) SaveSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error {
	if state == nil {
		return nil
	}
	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "scope"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"watermark_date",
			"last_success_at",
			"last_attempt_at",
			"last_error",
			"stats_json",
		}),
	}).Create(state).Error
}

func (s *Store) ListSyncStates(ctx context.Context) ([]models.SyncState, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var states []models.SyncState
	if err := s.db.WithContext(ctx).Order("scope asc").Find(&states).Error; err != nil {
		return nil, err
	}
	return states, nil
}

// --- screening results ------------------------------------------------------

func (s *Store) InsertScreeningResultsTx(ctx context.Context, tx *gorm.DB, items []models.ScreeningResult) error {
	return createInBatches(tx.WithContext(ctx), items, 200)
}

// ListLatestScreeningResults returns exactly the rows of the most recent run,
// identified by the newest created_at.
func (s *Store) ListLatestScreeningResults(ctx context.Context) ([]models.ScreeningResult, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var latest models.ScreeningResult
	err := s.db.WithContext(ctx).
		Select("id", "created_at", "run_id").
		Order("created_at desc").
		Limit(1).
		Take(&latest).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var items []models.ScreeningResult
	err = s.db.WithContext(ctx).
		Where("created_at = ?", latest.CreatedAt).
		Order("annualized_yield desc").
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListScreeningResultsByRunID(ctx context.Context, runID string) ([]models.ScreeningResult, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ScreeningResult
	err := s.db.WithContext(ctx).
		Where("run_id = ?", runID).
		Order("annualized_yield desc").
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

func (s *Store) ListScreeningResultsByDate(ctx context.Context, date time.Time) ([]models.ScreeningResult, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.ScreeningResult
	err := s.db.WithContext(ctx).
		Where("screening_date = ?", models.Day(date)).
		Order("annualized_yield desc").
		Order("id asc").
		Find(&items).Error
	if err != nil {
		return nil, err
	}
	return items, nil
}

// --- settings ---------------------------------------------------------------

func (s *Store) GetSystemSettingByKey(ctx context.Context, key string) (*models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.SystemSetting
	err := s.db.WithContext(ctx).First(&item, "key = ?", strings.TrimSpace(key)).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) UpsertSystemSetting(ctx context.Context, item *models.SystemSetting) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "key"}},
		DoUpdates: clause.AssignmentColumns([]string{"value", "description", "updated_at"}),
	}).Create(item).Error
}

func (s *Store) ListSystemSettings(ctx context.Context, prefix string) ([]models.SystemSetting, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	query := s.db.WithContext(ctx).Model(&models.SystemSetting{})
	if prefix = strings.TrimSpace(prefix); prefix != "" {
		query = query.Where("key LIKE ?", prefix+"%")
	}
	var items []models.SystemSetting
	if err := query.Order("key asc").Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// --- retention --------------------------------------------------------------

func (s *Store) DeleteBeforeTx(ctx context.Context, tx *gorm.DB, cutoff time.Time) (repository.RetentionCounts, error) {
	var counts repository.RetentionCounts
	day := models.Day(cutoff)
	res := tx.WithContext(ctx).Where("date < ?", day).Delete(&models.TickerPrice{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.Prices = res.RowsAffected
	res = tx.WithContext(ctx).Where("date < ?", day).Delete(&models.TickerMetric{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.Metrics = res.RowsAffected
	res = tx.WithContext(ctx).Where("screening_date < ?", day).Delete(&models.ScreeningResult{})
	if res.Error != nil {
		return counts, res.Error
	}
	counts.ScreeningResults = res.RowsAffected
	return counts, nil
}

func createInBatches[T any](db *gorm.DB, items []T, batchSize int) error {
	if len(items) == 0 {
		return nil
	}
	if batchSize <= 0 {
		batchSize = 200
	}
	for i := 0; i < len(items); i += batchSize {
		end := i + batchSize
		if end > len(items) {
			end = len(items)
		}
		if err := db.CreateInBatches(items[i:end], batchSize).Error; err != nil {
			return err
		}
	}
	return nil
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	seen := map[string]struct{}{}
	for _, raw := range items {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if _, ok := seen[val]; ok {
			continue
		}
		seen[val] = struct{}{}
		out = append(out, val)
	}
	return out
}

var _ repository.Repository = (*Store)(nil)
