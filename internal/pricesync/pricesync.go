// Package pricesync keeps the daily bar history of every ticker current and
// refreshes ticker metadata from the same provider round trip.
package pricesync

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"putscreener/internal/classify"
	"putscreener/internal/logger"
	"putscreener/internal/marketdata"
	"putscreener/internal/metrics"
	"putscreener/internal/models"
	"putscreener/internal/progress"
	"putscreener/internal/repository"
)

var ErrTickerNotFound = errors.New("ticker not found")

type Store interface {
	repository.TxRunner
	repository.TickerRepository
	repository.PriceRepository
	repository.MetricRepository
	repository.SyncStateRepository
	classify.Store
}

type Source interface {
	marketdata.BarSource
	marketdata.ProfileSource
}

type Config struct {
	HistoryDays    int
	RateLimitPause time.Duration
}

func DefaultConfig() Config {
	return Config{HistoryDays: 365, RateLimitPause: 100 * time.Millisecond}
}

type Synchronizer struct {
	Store      Store
	Source     Source
	Classifier *classify.Classifier
	Logger     *zap.Logger
	Config     Config
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

type Result struct {
	progress.Outcome
	BarsWritten int
}

type BatchStats struct {
	SuccessCount int        `json:"success_count"`
	FailedCount  int        `json:"failed_count"`
	Total        int        `json:"total"`
	DaysAdded    int        `json:"days_added"`
	LastSyncDate *time.Time `json:"last_sync_date"`
}

func New(store Store, source Source, log *zap.Logger, cfg Config) *Synchronizer {
	return &Synchronizer{
		Store:      store,
		Source:     source,
		Classifier: &classify.Classifier{Store: store},
		Logger:     logger.OrNop(log),
		Config:     cfg,
	}
}

func (s *Synchronizer) today() time.Time {
	if s.Now != nil {
		return models.Day(s.Now())
	}
	return models.Today()
}

func (s *Synchronizer) logger() *zap.Logger {
	return logger.OrNop(s.Logger)
}

func (s *Synchronizer) historyDays() int {
	if s.Config.HistoryDays <= 0 {
		return DefaultConfig().HistoryDays
	}
	return s.Config.HistoryDays
}

// Sync fetches bars for ticker in [from, to] and upserts them together with
// the metadata refresh in one transaction. to defaults to today and from to
// one history window before to. Provider failures are reported in the result;
// only storage errors are returned.
func (s *Synchronizer) Sync(ctx context.Context, ticker models.Ticker, from, to *time.Time) (Result, error) {
	end := s.today()
	if to != nil {
		end = models.Day(*to)
	}
	start := end.AddDate(0, 0, -s.historyDays())
	if from != nil {
		start = models.Day(*from)
	}

	bars, err := s.Source.Bars(ctx, ticker.Symbol, start, end)
	if err != nil && !errors.Is(err, marketdata.ErrNoData) {
		if ctx.Err() != nil {
			return Result{}, ctx.Err()
		}
		return Result{Outcome: progress.Fail(err)}, nil
	}
	if len(bars) == 0 {
		return Result{Outcome: progress.Fail(marketdata.ErrNoData)}, nil
	}

	profile, perr := s.Source.Profile(ctx, ticker.Symbol)
	if perr != nil {
		s.logger().Warn("metadata refresh skipped", zap.String("symbol", ticker.Symbol), zap.Error(perr))
		profile = nil
	}

	prices := toPrices(ticker.ID, bars)
	err = s.Store.InTx(ctx, func(tx *gorm.DB) error {
		if err := s.Store.UpsertPricesTx(ctx, tx, prices); err != nil {
			return fmt.Errorf("upsert prices: %w", err)
		}
		return s.refreshMetadata(ctx, tx, ticker, profile)
	})
	if err != nil {
		return Result{}, fmt.Errorf("sync %s: %w", ticker.Symbol, err)
	}
	return Result{
		Outcome:     progress.Success(fmt.Sprintf("synced %d days", len(prices))),
		BarsWritten: len(prices),
	}, nil
}

func toPrices(tickerID uint64, bars []marketdata.Bar) []models.TickerPrice {
	out := make([]models.TickerPrice, 0, len(bars))
	seen := make(map[time.Time]int, len(bars))
	for _, b := range bars {
		p := models.TickerPrice{
			TickerID: tickerID,
			Date:     models.Day(b.Date),
			Open:     price(b.Open),
			High:     price(b.High),
			Low:      price(b.Low),
			Close:    price(b.Close),
			Volume:   b.Volume,
		}
		// One row per date; a later bar for the same day replaces the earlier.
		if i, ok := seen[p.Date]; ok {
			out[i] = p
			continue
		}
		seen[p.Date] = len(out)
		out = append(out, p)
	}
	return out
}

func price(v *float64) *decimal.Decimal {
	if v == nil {
		return nil
	}
	d := decimal.NewFromFloat(*v).Round(4)
	return &d
}

// refreshMetadata applies one profile snapshot to the ticker row and records
// the point-in-time fundamentals as metrics dated today.
func (s *Synchronizer) refreshMetadata(ctx context.Context, tx *gorm.DB, ticker models.Ticker, p *marketdata.Profile) error {
	if p == nil {
		return nil
	}
	today := s.today()
	fields := map[string]any{}

	if ticker.Name == "" || ticker.Name == ticker.Symbol {
		if name := firstNonEmpty(p.LongName, p.ShortName); name != "" {
			fields["name"] = name
		}
	}
	if p.MarketCap != nil && *p.MarketCap > 0 {
		fields["market_cap"] = *p.MarketCap
	}
	if p.SharesOutstanding != nil && *p.SharesOutstanding > 0 {
		fields["shares_outstanding"] = *p.SharesOutstanding
	}
	if ticker.SectorID == nil && strings.TrimSpace(p.SectorKey) != "" && s.Classifier != nil {
		sectorID, industryID, err := s.Classifier.Resolve(ctx, tx, p.SectorKey, p.IndustryKey)
		if err != nil {
			return fmt.Errorf("classify: %w", err)
		}
		if sectorID != nil {
			fields["sector_id"] = *sectorID
		}
		if industryID != nil {
			fields["industry_id"] = *industryID
		}
	}
	if next := NextEarnings(p.EarningsDates, today); next != nil {
		fields["next_earnings_date"] = *next
	}
	if err := s.Store.UpdateTickerTx(ctx, tx, ticker.ID, fields); err != nil {
		return fmt.Errorf("update ticker: %w", err)
	}

	set := metrics.Set{}
	for key, v := range map[metrics.Key]*float64{
		metrics.KeyPERatio:       p.TrailingPE,
		metrics.KeyForwardPE:     p.ForwardPE,
		metrics.KeyBeta:          p.Beta,
		metrics.KeyDividendYield: p.DividendYield,
	} {
		if v != nil && *v != 0 {
			set[key] = decimal.NewFromFloat(*v)
		}
	}
	if err := s.Store.UpsertMetricsTx(ctx, tx, set.Records(ticker.ID, today)); err != nil {
		return fmt.Errorf("upsert fundamentals: %w", err)
	}
	return nil
}

// NextEarnings returns the earliest date on or after today, or nil.
func NextEarnings(dates []time.Time, today time.Time) *time.Time {
	var best *time.Time
	for _, d := range dates {
		day := models.Day(d)
		if day.Before(today) {
			continue
		}
		if best == nil || day.Before(*best) {
			best = &day
		}
	}
	return best
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
