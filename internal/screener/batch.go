package screener

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"putscreener/internal/checkpoint"
	"putscreener/internal/models"
	"putscreener/internal/progress"
	"putscreener/internal/repository"
)

type BatchStats struct {
	// PassedCount counts tickers with at least one candidate.
	PassedCount   int                      `json:"passed_count"`
	FailedCount   int                      `json:"failed_count"`
	Total         int                      `json:"total"`
	Opportunities int                      `json:"opportunities"`
	RunID         string                   `json:"run_id"`
	Results       []models.ScreeningResult `json:"results"`
}

func (e *Engine) resolveConfig(ctx context.Context) (Config, error) {
	cfg := e.Config
	if e.Source != nil {
		loaded, err := e.Source.ScreeningConfig(ctx)
		if err != nil {
			return Config{}, err
		}
		cfg = loaded
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ScreenAll screens every non-ETF ticker for date (today when nil). The
// config is validated before the first ticker. Every candidate of the run is
// written in one transaction at the end with a shared run id and created_at.
func (e *Engine) ScreenAll(ctx context.Context, date *time.Time, obs progress.Observer) (BatchStats, error) {
	log := e.logger()
	cfg, err := e.resolveConfig(ctx)
	if err != nil {
		return BatchStats{}, err
	}
	screeningDate := models.Day(e.now())
	if date != nil {
		screeningDate = models.Day(*date)
	}

	tickers, err := e.Store.ListTickers(ctx, repository.ListTickersParams{ExcludeETFs: true})
	if err != nil {
		return BatchStats{}, fmt.Errorf("list tickers: %w", err)
	}
	stats := BatchStats{Total: len(tickers), RunID: newRunID()}
	log.Info("screening started", zap.Int("tickers", stats.Total), zap.String("date", screeningDate.Format(time.DateOnly)))

	var results []models.ScreeningResult
	for i, ticker := range tickers {
		idx := i + 1
		if err := ctx.Err(); err != nil {
			checkpoint.WriteError(ctx, e.Store, log, checkpoint.ScopeScreening, err)
			return stats, err
		}
		progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusScreening, Detail: strconv.Itoa(len(results))})

		rows, outcome, err := e.Screen(ctx, ticker, screeningDate, cfg)
		if err != nil {
			progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusError, Detail: err.Error()})
			checkpoint.WriteError(ctx, e.Store, log, checkpoint.ScopeScreening, err)
			return stats, err
		}
		if !outcome.OK() {
			stats.FailedCount++
			if outcome.Kind == progress.KindFailed {
				log.Warn("screening failed", zap.String("symbol", ticker.Symbol), zap.Error(outcome.Err))
			} else {
				log.Debug("screening rejected", zap.String("symbol", ticker.Symbol), zap.String("reason", outcome.Reason))
			}
			progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusFailed, Detail: strconv.Itoa(len(results))})
			continue
		}
		stats.PassedCount++
		results = append(results, rows...)
		log.Info("screening passed", zap.String("symbol", ticker.Symbol), zap.Int("options", len(rows)))
		progress.Emit(obs, progress.Event{Index: idx, Total: stats.Total, Symbol: ticker.Symbol, Status: progress.StatusPassed, Detail: strconv.Itoa(len(results))})
	}

	createdAt := e.now().Truncate(time.Microsecond)
	for i := range results {
		results[i].RunID = stats.RunID
		results[i].CreatedAt = createdAt
	}
	if len(results) > 0 {
		err = e.Store.InTx(ctx, func(tx *gorm.DB) error {
			return e.Store.InsertScreeningResultsTx(ctx, tx, results)
		})
		if err != nil {
			checkpoint.WriteError(ctx, e.Store, log, checkpoint.ScopeScreening, err)
			return stats, fmt.Errorf("save results: %w", err)
		}
	}
	stats.Results = results
	stats.Opportunities = len(results)

	summary := struct {
		PassedCount   int    `json:"passed_count"`
		FailedCount   int    `json:"failed_count"`
		Total         int    `json:"total"`
		Opportunities int    `json:"opportunities"`
		RunID         string `json:"run_id"`
	}{stats.PassedCount, stats.FailedCount, stats.Total, stats.Opportunities, stats.RunID}
	if err := checkpoint.Advance(ctx, e.Store, checkpoint.ScopeScreening, screeningDate, summary); err != nil {
		return stats, fmt.Errorf("save checkpoint: %w", err)
	}
	log.Info("screening finished",
		zap.Int("passed", stats.PassedCount),
		zap.Int("failed", stats.FailedCount),
		zap.Int("opportunities", stats.Opportunities),
		zap.String("run_id", stats.RunID),
	)
	return stats, nil
}

// LatestResults returns the rows of the last completed run only, which is
// empty when that run found no candidates. Without a screening checkpoint it
// falls back to the newest stored rows.
func (e *Engine) LatestResults(ctx context.Context) ([]models.ScreeningResult, error) {
	state, err := e.Store.GetSyncState(ctx, checkpoint.ScopeScreening)
	if err != nil {
		return nil, fmt.Errorf("screening checkpoint: %w", err)
	}
	if state != nil && state.LastSuccessAt != nil {
		var run struct {
			RunID string `json:"run_id"`
		}
		if err := json.Unmarshal(state.StatsJSON, &run); err == nil && run.RunID != "" {
			return e.Store.ListScreeningResultsByRunID(ctx, run.RunID)
		}
	}
	return e.Store.ListLatestScreeningResults(ctx)
}

func (e *Engine) ResultsByDate(ctx context.Context, date time.Time) ([]models.ScreeningResult, error) {
	return e.Store.ListScreeningResultsByDate(ctx, date)
}

// PriceChanges compares price with the closes one and five bars before the
// newest bar in the week ending at date. A change is nil when that bar is
// missing or its close is not positive.
func (e *Engine) PriceChanges(ctx context.Context, tickerID uint64, date time.Time, price float64) (oneDay, fiveDay *float64, err error) {
	prices, err := e.Store.ListPrices(ctx, tickerID, date.AddDate(0, 0, -7), date)
	if err != nil {
		return nil, nil, err
	}
	change := func(back int) *float64 {
		i := len(prices) - 1 - back
		if i < 0 || prices[i].Close == nil || !prices[i].Close.IsPositive() {
			return nil
		}
		prev := prices[i].Close.InexactFloat64()
		v := (price - prev) / prev
		return &v
	}
	return change(1), change(5), nil
}
