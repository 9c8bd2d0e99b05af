package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"putscreener/internal/models"
	"putscreener/internal/repository"
)

const DefaultDaysToKeep = 90

type RetentionStore interface {
	repository.TxRunner
	repository.RetentionRepository
}

type RetentionService struct {
	Store  RetentionStore
	Logger *zap.Logger
	Now    func() time.Time
}

// Cleanup deletes bars, metrics and screening results dated before
// today - daysToKeep in one transaction.
func (s *RetentionService) Cleanup(ctx context.Context, daysToKeep int) (repository.RetentionCounts, error) {
	if s == nil || s.Store == nil {
		return repository.RetentionCounts{}, nil
	}
	if daysToKeep <= 0 {
		daysToKeep = DefaultDaysToKeep
	}
	today := models.Today()
	if s.Now != nil {
		today = models.Day(s.Now())
	}
	cutoff := today.AddDate(0, 0, -daysToKeep)

	var counts repository.RetentionCounts
	err := s.Store.InTx(ctx, func(tx *gorm.DB) error {
		var err error
		counts, err = s.Store.DeleteBeforeTx(ctx, tx, cutoff)
		return err
	})
	if err != nil {
		return repository.RetentionCounts{}, fmt.Errorf("cleanup before %s: %w", cutoff.Format(time.DateOnly), err)
	}
	if s.Logger != nil {
		s.Logger.Info("retention cleanup",
			zap.String("cutoff", cutoff.Format(time.DateOnly)),
			zap.Int64("prices", counts.Prices),
			zap.Int64("metrics", counts.Metrics),
			zap.Int64("screening_results", counts.ScreeningResults),
		)
	}
	return counts, nil
}
