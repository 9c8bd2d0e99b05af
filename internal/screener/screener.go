// Package screener runs the ordered filter chain over stored metrics and
// selects cash-secured put candidates from the live option chain.
package screener

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"putscreener/internal/logger"
	"putscreener/internal/marketdata"
	"putscreener/internal/metrics"
	"putscreener/internal/models"
	"putscreener/internal/progress"
	"putscreener/internal/repository"
)

type Store interface {
	repository.TxRunner
	repository.TickerRepository
	repository.PriceRepository
	repository.MetricRepository
	repository.ScreeningRepository
	repository.SyncStateRepository
}

// ConfigSource resolves the thresholds for a run, defaults plus overrides.
type ConfigSource interface {
	ScreeningConfig(ctx context.Context) (Config, error)
}

type Engine struct {
	Store   Store
	Options marketdata.OptionSource
	Logger  *zap.Logger
	// Config is used when Source is nil.
	Config Config
	Source ConfigSource
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

var requiredMetrics = []metrics.Key{
	metrics.Key52WPct,
	metrics.Key52WHigh,
	metrics.Key52WLow,
	metrics.KeyATRPct,
	metrics.KeyAvgVolumeUSD,
	metrics.KeyPERatio,
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now().UTC()
	}
	return time.Now().UTC()
}

func (e *Engine) logger() *zap.Logger {
	return logger.OrNop(e.Logger)
}

// Screen runs the filter chain for one ticker. Rejections come back as a
// skipped outcome with the failing filter as reason; an option-chain error is
// a failed outcome. Only storage errors are returned.
func (e *Engine) Screen(ctx context.Context, ticker models.Ticker, screeningDate time.Time, cfg Config) ([]models.ScreeningResult, progress.Outcome, error) {
	screeningDate = models.Day(screeningDate)

	latest, err := e.Store.LatestPriceDate(ctx, ticker.ID)
	if err != nil {
		return nil, progress.Outcome{}, fmt.Errorf("latest price date %s: %w", ticker.Symbol, err)
	}
	if latest == nil || latest.Before(screeningDate.AddDate(0, 0, -cfg.FreshnessDays)) {
		return nil, progress.Skip("no recent price data"), nil
	}
	dataDate := screeningDate
	if latest.Before(dataDate) {
		dataDate = *latest
	}

	rows, err := e.Store.ListMetrics(ctx, ticker.ID, dataDate)
	if err != nil {
		return nil, progress.Outcome{}, fmt.Errorf("metrics %s: %w", ticker.Symbol, err)
	}
	set := metrics.FromRecords(rows)
	if missing := set.Missing(requiredMetrics...); len(missing) > 0 {
		return nil, progress.Skip("missing metric %s", missing[0]), nil
	}

	if ticker.MarketCap == nil || *ticker.MarketCap <= 0 {
		return nil, progress.Skip("missing market cap"), nil
	}
	marketCapMillions := float64(*ticker.MarketCap) / 1_000_000
	if marketCapMillions < cfg.MarketCapMinMillions {
		return nil, progress.Skip("market cap %.0fM below floor", marketCapMillions), nil
	}

	price, ok, err := e.currentPrice(ctx, ticker.ID, dataDate, set)
	if err != nil {
		return nil, progress.Outcome{}, err
	}
	if !ok {
		return nil, progress.Skip("no current price"), nil
	}

	pct, _ := set.Float(metrics.Key52WPct)
	if pct > cfg.Stock52WPercentileMax {
		return nil, progress.Skip("52w percentile %.2f above ceiling", pct), nil
	}
	pe, _ := set.Float(metrics.KeyPERatio)
	if pe < cfg.PERatioMin || pe > cfg.PERatioMax {
		return nil, progress.Skip("pe %.2f outside band", pe), nil
	}
	avgUSD, _ := set.Float(metrics.KeyAvgVolumeUSD)
	avgVolumeMillions := avgUSD / 1_000_000
	if avgVolumeMillions < cfg.AvgVolumeUSDMinMillions {
		return nil, progress.Skip("avg volume %.0fM below floor", avgVolumeMillions), nil
	}

	sector, err := e.sectorMetrics(ctx, ticker, dataDate)
	if err != nil {
		return nil, progress.Outcome{}, err
	}
	if v, ok := sector.Float(metrics.Key52WPct); ok && pct >= v {
		return nil, progress.Skip("not weaker than sector on 52w percentile"), nil
	}
	if v, ok := sector.Float(metrics.KeyPERatio); ok && pe >= v {
		return nil, progress.Skip("pe not below sector"), nil
	}

	atrPct, _ := set.Float(metrics.KeyATRPct)
	lateral := atrPct < cfg.LateralTrendATRThreshold

	contracts, outcome := e.selectContracts(ctx, ticker.Symbol, price, cfg)
	if !outcome.OK() {
		return nil, outcome, nil
	}

	base := models.ScreeningResult{
		TickerID:          ticker.ID,
		Symbol:            ticker.Symbol,
		Name:              ticker.Name,
		ScreeningDate:     screeningDate,
		StockPrice:        decimal.NewFromFloat(price).Round(4),
		Stock52WPct:       set[metrics.Key52WPct].Round(4),
		Week52High:        set[metrics.Key52WHigh].Round(4),
		Week52Low:         set[metrics.Key52WLow].Round(4),
		PERatio:           set[metrics.KeyPERatio].Round(2),
		MarketCapMillions: int64(marketCapMillions),
		AvgVolumeMillions: decimal.NewFromFloat(avgVolumeMillions).Round(2),
		ATRPct:            set[metrics.KeyATRPct].Round(4),
		IsLateral:         lateral,
		ContractsNeeded:   ContractsNeeded(cfg.TargetPremiumThousands*1000, price),
		ChartLink:         fmt.Sprintf("https://finance.yahoo.com/quote/%s", ticker.Symbol),
		OptionsLink:       fmt.Sprintf("https://finance.yahoo.com/quote/%s/options", ticker.Symbol),
	}
	if high, ok := set.Float(metrics.Key52WHigh); ok && price > 0 {
		base.DistHighPct = decimal.NewFromFloat((high - price) / price).Round(4)
	}
	if low, ok := set.Float(metrics.Key52WLow); ok && price > 0 {
		base.DistLowPct = decimal.NewFromFloat((price - low) / price).Round(4)
	}
	if ticker.Industry != nil {
		base.Industry = &ticker.Industry.Name
	}
	if ticker.Sector != nil {
		base.Sector = &ticker.Sector.Name
		base.SectorETF = ticker.Sector.Symbol
	}
	if v, ok := sector.Get(metrics.Key52WPct); ok {
		v = v.Round(4)
		base.Sector52WPct = &v
	}
	if v, ok := sector.Get(metrics.KeyPERatio); ok {
		v = v.Round(2)
		base.SectorPE = &v
	}
	if v, ok := set.Get(metrics.KeyDaysToEarnings); ok {
		days := int(v.IntPart())
		base.DaysToEarnings = &days
	}

	out := make([]models.ScreeningResult, 0, len(contracts))
	for _, c := range contracts {
		row := base
		row.Expiration = c.Expiration
		row.DTE = c.DTE
		row.PutStrike = decimal.NewFromFloat(c.Strike).Round(4)
		row.Bid = decimal.NewFromFloat(c.Bid).Round(2)
		row.Ask = decimal.NewFromFloat(c.Ask).Round(2)
		row.Spread = decimal.NewFromFloat(c.Spread).Round(2)
		row.Premium = decimal.NewFromFloat(c.Premium).Round(4)
		row.AnnualizedYield = decimal.NewFromFloat(c.Yield).Round(6)
		out = append(out, row)
	}
	return out, progress.Success(fmt.Sprintf("%d option(s)", len(out))), nil
}

// currentPrice is the close metric of dataDate, else the close of that bar.
func (e *Engine) currentPrice(ctx context.Context, tickerID uint64, dataDate time.Time, set metrics.Set) (float64, bool, error) {
	if v, ok := set.Float(metrics.KeyClose); ok && v > 0 {
		return v, true, nil
	}
	prices, err := e.Store.ListPrices(ctx, tickerID, dataDate, dataDate)
	if err != nil {
		return 0, false, fmt.Errorf("current price: %w", err)
	}
	if len(prices) == 0 || prices[0].Close == nil || !prices[0].Close.IsPositive() {
		return 0, false, nil
	}
	return prices[0].Close.InexactFloat64(), true, nil
}

// sectorMetrics loads the sector ETF's metrics on dataDate. The set is empty
// when the ticker has no sector, the sector has no ETF, or the ETF has no
// metrics for that date.
func (e *Engine) sectorMetrics(ctx context.Context, ticker models.Ticker, dataDate time.Time) (metrics.Set, error) {
	if ticker.Sector == nil || ticker.Sector.Symbol == nil || *ticker.Sector.Symbol == "" {
		return metrics.Set{}, nil
	}
	etf, err := e.Store.GetTickerBySymbol(ctx, *ticker.Sector.Symbol)
	if err != nil {
		return nil, fmt.Errorf("sector etf: %w", err)
	}
	if etf == nil {
		return metrics.Set{}, nil
	}
	rows, err := e.Store.ListMetrics(ctx, etf.ID, dataDate)
	if err != nil {
		return nil, fmt.Errorf("sector metrics: %w", err)
	}
	return metrics.FromRecords(rows), nil
}

func (e *Engine) selectContracts(ctx context.Context, symbol string, price float64, cfg Config) ([]Contract, progress.Outcome) {
	if e.Options == nil {
		return nil, progress.Skip("no options source")
	}
	exps, err := e.Options.Expirations(ctx, symbol)
	if err != nil {
		return nil, progress.Fail(fmt.Errorf("expirations: %w", err))
	}
	if len(exps) == 0 {
		return nil, progress.Skip("no options available")
	}

	today := models.Day(e.now())
	var out []Contract
	for _, exp := range ExpirationsInWindow(exps, today, cfg.TargetDTE, cfg.DTETolerance) {
		puts, err := e.Options.Puts(ctx, symbol, exp)
		if err != nil {
			return nil, progress.Fail(fmt.Errorf("puts %s: %w", exp.Format(time.DateOnly), err))
		}
		put, ok := SelectPut(puts, price, cfg.PutStrikeDiscount)
		if !ok {
			continue
		}
		dte := daysBetween(today, exp)
		if dte <= 0 || put.Strike <= 0 {
			continue
		}
		c := buildContract(exp, dte, put)
		if c.Yield >= cfg.MinAnnualizedPremiumYield {
			out = append(out, c)
		}
	}
	if len(out) == 0 {
		return nil, progress.Skip("no puts meeting premium criteria")
	}
	return out, progress.Success("")
}

func newRunID() string {
	return uuid.NewString()
}
