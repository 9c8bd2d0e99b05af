// Package checkpoint records the per-stage watermark in sync_state. A
// watermark only moves when a stage finishes a fully attempted batch.
package checkpoint

import (
	"context"
	"encoding/json"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"putscreener/internal/logger"
	"putscreener/internal/models"
)

const (
	ScopePriceSync  = "price_sync"
	ScopeMetricCalc = "metric_calc"
	ScopeScreening  = "screening"
)

type Store interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
	GetSyncState(ctx context.Context, scope string) (*models.SyncState, error)
	SaveSyncStateTx(ctx context.Context, tx *gorm.DB, state *models.SyncState) error
}

// Watermark returns the last completed as-of date for scope, or nil.
func Watermark(ctx context.Context, store Store, scope string) (*time.Time, error) {
	state, err := store.GetSyncState(ctx, scope)
	if err != nil || state == nil || state.WatermarkDate == nil {
		return nil, err
	}
	day := models.Day(*state.WatermarkDate)
	return &day, nil
}

// Advance moves the watermark for scope to date and stores stats.
func Advance(ctx context.Context, store Store, scope string, date time.Time, stats any) error {
	now := time.Now().UTC()
	day := models.Day(date)
	return store.InTx(ctx, func(tx *gorm.DB) error {
		return store.SaveSyncStateTx(ctx, tx, &models.SyncState{
			Scope:         scope,
			WatermarkDate: &day,
			LastSuccessAt: &now,
			LastAttemptAt: &now,
			StatsJSON:     statsJSON(stats),
		})
	})
}

// WriteError records a failed attempt without moving the watermark. It reads
// and writes on a detached context so a cancelled run can still record why.
// When the previous state cannot be read nothing is written.
func WriteError(ctx context.Context, store Store, log *zap.Logger, scope string, err error) {
	if err == nil {
		return
	}
	log = logger.OrNop(log)
	log.Warn("stage aborted", zap.String("scope", scope), zap.Error(err))

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	prev, readErr := store.GetSyncState(writeCtx, scope)
	if readErr != nil {
		log.Warn("read checkpoint before recording error failed", zap.String("scope", scope), zap.Error(readErr))
		return
	}
	now := time.Now().UTC()
	msg := err.Error()
	state := &models.SyncState{
		Scope:         scope,
		LastAttemptAt: &now,
		LastError:     &msg,
	}
	if prev != nil {
		state.WatermarkDate = prev.WatermarkDate
		state.LastSuccessAt = prev.LastSuccessAt
		state.StatsJSON = prev.StatsJSON
	}
	saveErr := store.InTx(writeCtx, func(tx *gorm.DB) error {
		return store.SaveSyncStateTx(writeCtx, tx, state)
	})
	if saveErr != nil {
		log.Warn("record checkpoint error failed", zap.String("scope", scope), zap.Error(saveErr))
	}
}

func statsJSON(stats any) datatypes.JSON {
	if stats == nil {
		return datatypes.JSON([]byte("{}"))
	}
	raw, err := json.Marshal(stats)
	if err != nil {
		return datatypes.JSON([]byte("{}"))
	}
	return datatypes.JSON(raw)
}
