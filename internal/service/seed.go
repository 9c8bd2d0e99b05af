package service

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"putscreener/internal/classify"
	"putscreener/internal/models"
	"putscreener/internal/repository"
)

type SeedStore interface {
	repository.TxRunner
	repository.ReferenceRepository
	repository.TickerRepository
}

type SeedService struct {
	Store  SeedStore
	Logger *zap.Logger
}

type SeedStats struct {
	Added   int `json:"added"`
	Skipped int `json:"skipped"`
	Total   int `json:"total"`
	ETFs    int `json:"etfs"`
}

// Seed creates the market and sector reference rows, their ETFs, and one
// ticker per symbol. Existing tickers are left untouched; their metadata is
// filled in by the next price sync.
func (s *SeedService) Seed(ctx context.Context, symbols []string) (SeedStats, error) {
	var stats SeedStats
	log := s.Logger
	if log == nil {
		log = zap.NewNop()
	}

	markets := map[string]*models.Market{}
	for _, m := range classify.Markets {
		item := &models.Market{Key: m.Key, Name: m.Name, Symbol: m.Symbol}
		if err := s.Store.UpsertMarket(ctx, item); err != nil {
			return stats, fmt.Errorf("market %s: %w", m.Key, err)
		}
		stored, err := s.Store.GetMarketByKey(ctx, m.Key)
		if err != nil {
			return stats, err
		}
		markets[m.Key] = stored
		etf := &models.Ticker{Symbol: m.Symbol, IsMarketETF: true}
		if stored != nil {
			etf.MarketID = &stored.ID
		}
		if _, err := s.Store.EnsureTicker(ctx, etf); err != nil {
			return stats, fmt.Errorf("market etf %s: %w", m.Symbol, err)
		}
		stats.ETFs++
	}

	classifier := &classify.Classifier{Store: s.Store}
	sectorIDs := map[string]uint64{}
	err := s.Store.InTx(ctx, func(tx *gorm.DB) error {
		for _, key := range classify.KnownSectors() {
			id, _, err := classifier.Resolve(ctx, tx, key, "")
			if err != nil {
				return err
			}
			if id != nil {
				sectorIDs[key] = *id
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("sectors: %w", err)
	}
	for _, key := range classify.KnownSectors() {
		symbol := classify.SectorETF[key]
		existing, err := s.Store.GetTickerBySymbol(ctx, symbol)
		if err != nil {
			return stats, err
		}
		if existing == nil {
			item := &models.Ticker{
				Symbol:      symbol,
				Name:        classify.SectorName(key) + " ETF",
				IsSectorETF: true,
			}
			if id, ok := sectorIDs[key]; ok {
				item.SectorID = &id
			}
			if _, err := s.Store.EnsureTicker(ctx, item); err != nil {
				return stats, fmt.Errorf("sector etf %s: %w", symbol, err)
			}
		}
		stats.ETFs++
	}

	var marketID *uint64
	if m := markets["sp500"]; m != nil {
		marketID = &m.ID
	}
	seen := map[string]struct{}{}
	for _, raw := range symbols {
		symbol := strings.ToUpper(strings.TrimSpace(raw))
		if symbol == "" {
			continue
		}
		if _, dup := seen[symbol]; dup {
			continue
		}
		seen[symbol] = struct{}{}
		stats.Total++

		existing, err := s.Store.GetTickerBySymbol(ctx, symbol)
		if err != nil {
			return stats, err
		}
		if existing != nil {
			stats.Skipped++
			continue
		}
		if _, err := s.Store.EnsureTicker(ctx, &models.Ticker{Symbol: symbol, MarketID: marketID}); err != nil {
			return stats, fmt.Errorf("ticker %s: %w", symbol, err)
		}
		stats.Added++
	}
	log.Info("seed finished", zap.Int("added", stats.Added), zap.Int("skipped", stats.Skipped), zap.Int("etfs", stats.ETFs))
	return stats, nil
}
