package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"putscreener/internal/checkpoint"
	"putscreener/internal/logger"
	"putscreener/internal/models"
	"putscreener/internal/progress"
	"putscreener/internal/repository"
)

var (
	ErrNoPriceData         = errors.New("no price data available")
	ErrInsufficientHistory = errors.New("insufficient price history")
	ErrTickerNotFound      = errors.New("ticker not found")
)

type Store interface {
	repository.TxRunner
	repository.TickerRepository
	repository.PriceRepository
	repository.MetricRepository
	repository.SyncStateRepository
}

type Config struct {
	WindowDays int
	Period     int
	MinBars    int
	MinBars52W int
}

func DefaultConfig() Config {
	return Config{WindowDays: 365, Period: 20, MinBars: 20, MinBars52W: 50}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.WindowDays <= 0 {
		c.WindowDays = d.WindowDays
	}
	if c.Period <= 0 {
		c.Period = d.Period
	}
	if c.MinBars <= 0 {
		c.MinBars = d.MinBars
	}
	if c.MinBars52W <= 0 {
		c.MinBars52W = d.MinBars52W
	}
	return c
}

type Engine struct {
	Store  Store
	Logger *zap.Logger
	Config Config
	// Now is the clock; nil means time.Now.
	Now func() time.Time
}

// Result is the outcome of computing one ticker.
type Result struct {
	progress.Outcome
	MetricsWritten int
	Date           time.Time
}

type BatchStats struct {
	SuccessCount int        `json:"success_count"`
	FailedCount  int        `json:"failed_count"`
	Total        int        `json:"total"`
	TotalMetrics int        `json:"total_metrics"`
	LastCalcDate *time.Time `json:"last_calc_date"`
}

func (e *Engine) today() time.Time {
	if e.Now != nil {
		return models.Day(e.Now())
	}
	return models.Today()
}

func (e *Engine) logger() *zap.Logger {
	return logger.OrNop(e.Logger)
}

// Compute derives every metric for ticker as of asOf (today when nil) from a
// single read of the stored bars. The evaluation date is clamped to the
// latest stored bar. Either every metric is written or none is.
func (e *Engine) Compute(ctx context.Context, ticker models.Ticker, asOf *time.Time) (Result, error) {
	cfg := e.Config.withDefaults()
	target := e.today()
	if asOf != nil {
		target = models.Day(*asOf)
	}

	latest, err := e.Store.LatestPriceDate(ctx, ticker.ID)
	if err != nil {
		return Result{}, fmt.Errorf("latest price date %s: %w", ticker.Symbol, err)
	}
	if latest == nil {
		return Result{Outcome: progress.Skip("%s", ErrNoPriceData.Error())}, nil
	}
	eval := target
	if latest.Before(eval) {
		eval = *latest
	}

	prices, err := e.Store.ListPrices(ctx, ticker.ID, eval.AddDate(0, 0, -cfg.WindowDays), eval)
	if err != nil {
		return Result{}, fmt.Errorf("list prices %s: %w", ticker.Symbol, err)
	}
	bars := BarsFromPrices(prices)
	if len(bars) < cfg.MinBars {
		return Result{Outcome: progress.Skip("%s (%d bars)", ErrInsufficientHistory.Error(), len(bars)), Date: eval}, nil
	}

	set := Set{KeyClose: bars[len(bars)-1].Close}
	if v, ok := FiftyTwoWeek(bars, cfg.MinBars52W); ok {
		set.merge(v)
	}
	if v, ok := ATR(bars, cfg.Period); ok {
		set.merge(v)
	}
	if v, ok := Volume(bars, cfg.Period); ok {
		set.merge(v)
	}
	if days, ok := DaysToEarnings(ticker.NextEarningsDate, eval); ok {
		set[KeyDaysToEarnings] = decimalInt(days)
	}

	// Fundamentals are dated when the synchronizer fetched them. A current
	// evaluation (eval is the newest bar) takes the newest snapshot; a
	// historical one only sees snapshots up to eval.
	cutoff := eval
	if !eval.Before(*latest) && e.today().After(cutoff) {
		cutoff = e.today()
	}
	fundamentals, err := e.Store.LatestMetricsOnOrBefore(ctx, ticker.ID, keyStrings(FundamentalKeys), cutoff)
	if err != nil {
		return Result{}, fmt.Errorf("fundamentals %s: %w", ticker.Symbol, err)
	}
	for _, k := range FundamentalKeys {
		if m, ok := fundamentals[string(k)]; ok {
			set[k] = m.MetricValue
		}
	}

	records := set.Records(ticker.ID, eval)
	err = e.Store.InTx(ctx, func(tx *gorm.DB) error {
		return e.Store.UpsertMetricsTx(ctx, tx, records)
	})
	if err != nil {
		return Result{}, fmt.Errorf("write metrics %s: %w", ticker.Symbol, err)
	}
	return Result{
		Outcome:        progress.Success(fmt.Sprintf("calculated %d metrics", len(records))),
		MetricsWritten: len(records),
		Date:           eval,
	}, nil
}

// ComputeSymbol computes a single ticker by symbol.
func (e *Engine) ComputeSymbol(ctx context.Context, symbol string, asOf *time.Time) (Result, error) {
	ticker, err := e.Store.GetTickerBySymbol(ctx, symbol)
	if err != nil {
		return Result{}, err
	}
	if ticker == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrTickerNotFound, strings.ToUpper(symbol))
	}
	return e.Compute(ctx, *ticker, asOf)
}

// ComputeAll computes every ticker, ETFs included, for asOf (today when nil).
// A storage error stops the batch and leaves the checkpoint where it was.
func (e *Engine) ComputeAll(ctx context.Context, asOf *time.Time, obs progress.Observer) (BatchStats, error) {
	log := e.logger()
	target := e.today()
	if asOf != nil {
		target = models.Day(*asOf)
	}

	tickers, err := e.Store.ListTickers(ctx, repository.ListTickersParams{})
	if err != nil {
		return BatchStats{}, fmt.Errorf("list tickers: %w", err)
	}
	stats := BatchStats{Total: len(tickers)}
	log.Info("metrics calculation started", zap.Int("tickers", stats.Total), zap.String("date", target.Format(time.DateOnly)))

	for i, ticker := range tickers {
		if err := ctx.Err(); err != nil {
			checkpoint.WriteError(ctx, e.Store, log, checkpoint.ScopeMetricCalc, err)
			return stats, err
		}
		progress.Emit(obs, progress.Event{Index: i + 1, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusCalculating})

		res, err := e.Compute(ctx, ticker, &target)
		if err != nil {
			progress.Emit(obs, progress.Event{Index: i + 1, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusError, Detail: err.Error()})
			checkpoint.WriteError(ctx, e.Store, log, checkpoint.ScopeMetricCalc, err)
			return stats, err
		}
		status := progress.StatusSuccess
		if res.OK() {
			stats.SuccessCount++
			stats.TotalMetrics += res.MetricsWritten
		} else {
			stats.FailedCount++
			status = progress.StatusFailed
			log.Debug("metrics skipped", zap.String("symbol", ticker.Symbol), zap.String("reason", res.Reason))
		}
		progress.Emit(obs, progress.Event{Index: i + 1, Total: stats.Total, Symbol: ticker.Symbol, Status: status, Detail: res.Reason})
	}

	stats.LastCalcDate = &target
	if err := checkpoint.Advance(ctx, e.Store, checkpoint.ScopeMetricCalc, target, stats); err != nil {
		return stats, fmt.Errorf("save checkpoint: %w", err)
	}
	log.Info("metrics calculation finished",
		zap.Int("success", stats.SuccessCount),
		zap.Int("failed", stats.FailedCount),
		zap.Int("metrics", stats.TotalMetrics),
	)
	return stats, nil
}
