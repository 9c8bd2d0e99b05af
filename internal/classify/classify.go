// Package classify maps provider sector and industry keys onto the sector and
// industry reference tables, attaching the sector tracking ETF.
package classify

import (
	"context"
	"sort"
	"strings"

	"gorm.io/gorm"

	"putscreener/internal/models"
)

// SectorETF maps provider sector keys to the SPDR sector fund used as the
// relative-strength benchmark.
var SectorETF = map[string]string{
	"technology":             "XLK",
	"financial-services":     "XLF",
	"healthcare":             "XLV",
	"energy":                 "XLE",
	"industrials":            "XLI",
	"consumer-cyclical":      "XLY",
	"consumer-defensive":     "XLP",
	"utilities":              "XLU",
	"real-estate":            "XLRE",
	"basic-materials":        "XLB",
	"communication-services": "XLC",
}

var sectorNames = map[string]string{
	"technology":             "Technology",
	"financial-services":     "Financial Services",
	"healthcare":             "Healthcare",
	"energy":                 "Energy",
	"industrials":            "Industrials",
	"consumer-cyclical":      "Consumer Cyclical",
	"consumer-defensive":     "Consumer Defensive",
	"utilities":              "Utilities",
	"real-estate":            "Real Estate",
	"basic-materials":        "Basic Materials",
	"communication-services": "Communication Services",
}

// MarketIndex is one tracked index universe.
type MarketIndex struct {
	Key    string
	Name   string
	Symbol string
}

var Markets = []MarketIndex{
	{Key: "sp500", Name: "S&P 500", Symbol: "SPY"},
	{Key: "nasdaq100", Name: "NASDAQ 100", Symbol: "QQQ"},
	{Key: "russell1000", Name: "Russell 1000", Symbol: "IWM"},
}

type Store interface {
	FindOrCreateSectorTx(ctx context.Context, tx *gorm.DB, item *models.Sector) (*models.Sector, error)
	FindOrCreateIndustryTx(ctx context.Context, tx *gorm.DB, item *models.Industry) (*models.Industry, error)
}

type Classifier struct {
	Store Store
}

// Resolve finds or creates the sector and industry rows for the given keys.
// An industry is only attached when its sector resolved.
func (c *Classifier) Resolve(ctx context.Context, tx *gorm.DB, sectorKey, industryKey string) (*uint64, *uint64, error) {
	sectorKey = normalizeKey(sectorKey)
	industryKey = normalizeKey(industryKey)
	if c == nil || c.Store == nil || sectorKey == "" {
		return nil, nil, nil
	}

	sector := &models.Sector{Key: sectorKey, Name: SectorName(sectorKey)}
	if etf, ok := SectorETF[sectorKey]; ok {
		sector.Symbol = &etf
	}
	sector, err := c.Store.FindOrCreateSectorTx(ctx, tx, sector)
	if err != nil {
		return nil, nil, err
	}
	sectorID := sector.ID
	if industryKey == "" {
		return &sectorID, nil, nil
	}

	industry, err := c.Store.FindOrCreateIndustryTx(ctx, tx, &models.Industry{
		Key:      industryKey,
		Name:     titleKey(industryKey),
		SectorID: sectorID,
	})
	if err != nil {
		return nil, nil, err
	}
	industryID := industry.ID
	return &sectorID, &industryID, nil
}

// KnownSectors returns the sector keys that have a tracking ETF, sorted.
func KnownSectors() []string {
	keys := make([]string, 0, len(SectorETF))
	for k := range SectorETF {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func SectorName(key string) string {
	key = normalizeKey(key)
	if name, ok := sectorNames[key]; ok {
		return name
	}
	return titleKey(key)
}

func normalizeKey(key string) string {
	return strings.ToLower(strings.TrimSpace(key))
}

// titleKey renders "software-infrastructure" as "Software Infrastructure".
func titleKey(key string) string {
	parts := strings.FieldsFunc(key, func(r rune) bool { return r == '-' || r == '_' || r == ' ' })
	for i, p := range parts {
		parts[i] = strings.ToUpper(p[:1]) + p[1:]
	}
	return strings.Join(parts, " ")
}
