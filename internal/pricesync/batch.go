package pricesync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"putscreener/internal/checkpoint"
	"putscreener/internal/models"
	"putscreener/internal/progress"
	"putscreener/internal/repository"
)

// SyncAll brings every ticker, ETFs included, up to today. Each ticker restarts
// at its own latest stored bar so the last day is re-fetched with its final
// close; a ticker with no stored bars gets the full history window. A provider
// failure only fails that ticker; a storage error stops the batch. The
// checkpoint moves to today once every ticker was attempted.
func (s *Synchronizer) SyncAll(ctx context.Context, obs progress.Observer, forceFull bool) (BatchStats, error) {
	log := s.logger()
	today := s.today()
	window := today.AddDate(0, 0, -s.historyDays())

	var watermark *time.Time
	if !forceFull {
		wm, err := checkpoint.Watermark(ctx, s.Store, checkpoint.ScopePriceSync)
		if err != nil {
			return BatchStats{}, fmt.Errorf("read checkpoint: %w", err)
		}
		watermark = wm
	}

	tickers, err := s.Store.ListTickers(ctx, repository.ListTickersParams{})
	if err != nil {
		return BatchStats{}, fmt.Errorf("list tickers: %w", err)
	}
	stats := BatchStats{Total: len(tickers)}
	log.Info("price sync started",
		zap.Int("tickers", stats.Total),
		zap.Bool("force_full", forceFull),
		zap.Stringp("watermark", dateString(watermark)),
	)

	for i, ticker := range tickers {
		idx := i + 1
		if err := ctx.Err(); err != nil {
			checkpoint.WriteError(ctx, s.Store, log, checkpoint.ScopePriceSync, err)
			return stats, err
		}

		start := window
		if !forceFull {
			latest, err := s.Store.LatestPriceDate(ctx, ticker.ID)
			if err != nil {
				checkpoint.WriteError(ctx, s.Store, log, checkpoint.ScopePriceSync, err)
				return stats, fmt.Errorf("latest price date %s: %w", ticker.Symbol, err)
			}
			if latest != nil {
				start = *latest
			}
		}
		if start.After(today) {
			stats.SuccessCount++
			progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusUpToDate, Detail: start.Format(time.DateOnly)})
			continue
		}

		progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusSyncing, Detail: start.Format(time.DateOnly)})
		res, err := s.Sync(ctx, ticker, &start, &today)
		if err != nil {
			progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusError, Detail: err.Error()})
			checkpoint.WriteError(ctx, s.Store, log, checkpoint.ScopePriceSync, err)
			return stats, err
		}
		if res.OK() {
			stats.SuccessCount++
			stats.DaysAdded += res.BarsWritten
			log.Debug("ticker synced", zap.String("symbol", ticker.Symbol), zap.Int("bars", res.BarsWritten))
			progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusSuccess, Detail: today.Format(time.DateOnly)})
		} else {
			stats.FailedCount++
			log.Warn("ticker sync failed", zap.String("symbol", ticker.Symbol), zap.String("reason", res.Reason))
			progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusFailed, Detail: res.Reason})
		}

		if err := pause(ctx, s.Config.RateLimitPause); err != nil {
			checkpoint.WriteError(ctx, s.Store, log, checkpoint.ScopePriceSync, err)
			return stats, err
		}
	}

	stats.LastSyncDate = &today
	if err := checkpoint.Advance(ctx, s.Store, checkpoint.ScopePriceSync, today, stats); err != nil {
		return stats, fmt.Errorf("save checkpoint: %w", err)
	}
	log.Info("price sync finished",
		zap.Int("success", stats.SuccessCount),
		zap.Int("failed", stats.FailedCount),
		zap.Int("days_added", stats.DaysAdded),
	)
	return stats, nil
}

// SyncSymbol syncs one ticker over the last daysBack days.
func (s *Synchronizer) SyncSymbol(ctx context.Context, symbol string, daysBack int) (Result, error) {
	ticker, err := s.Store.GetTickerBySymbol(ctx, symbol)
	if err != nil {
		return Result{}, err
	}
	if ticker == nil {
		return Result{}, fmt.Errorf("%w: %s", ErrTickerNotFound, strings.ToUpper(symbol))
	}
	if daysBack <= 0 {
		daysBack = s.historyDays()
	}
	today := s.today()
	from := today.AddDate(0, 0, -daysBack)
	return s.Sync(ctx, *ticker, &from, &today)
}

type TickerCoverage struct {
	Symbol     string     `json:"symbol"`
	LatestDate *time.Time `json:"latest_date"`
	DaysBehind *int       `json:"days_behind"`
}

type CoverageReport struct {
	Total    int              `json:"total_tickers"`
	WithData int              `json:"with_data"`
	UpToDate int              `json:"up_to_date"`
	Coverage []TickerCoverage `json:"coverage"`
}

// Coverage reports how far behind today each ticker's newest bar is. An empty
// symbol covers every ticker.
func (s *Synchronizer) Coverage(ctx context.Context, symbol string) (CoverageReport, error) {
	var tickers []models.Ticker
	if symbol = strings.TrimSpace(symbol); symbol != "" {
		t, err := s.Store.GetTickerBySymbol(ctx, symbol)
		if err != nil {
			return CoverageReport{}, err
		}
		if t == nil {
			return CoverageReport{}, fmt.Errorf("%w: %s", ErrTickerNotFound, strings.ToUpper(symbol))
		}
		tickers = []models.Ticker{*t}
	} else {
		list, err := s.Store.ListTickers(ctx, repository.ListTickersParams{})
		if err != nil {
			return CoverageReport{}, err
		}
		tickers = list
	}

	today := s.today()
	report := CoverageReport{Total: len(tickers), Coverage: make([]TickerCoverage, 0, len(tickers))}
	for _, t := range tickers {
		latest, err := s.Store.LatestPriceDate(ctx, t.ID)
		if err != nil {
			return CoverageReport{}, err
		}
		item := TickerCoverage{Symbol: t.Symbol, LatestDate: latest}
		if latest != nil {
			behind := int(today.Sub(*latest).Hours() / 24)
			item.DaysBehind = &behind
			report.WithData++
			if behind == 0 {
				report.UpToDate++
			}
		}
		report.Coverage = append(report.Coverage, item)
	}
	return report, nil
}

func dateString(t *time.Time) *string {
	if t == nil {
		return nil
	}
	v := t.Format(time.DateOnly)
	return &v
}

func pause(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
