package metrics

import (
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"putscreener/internal/models"
)

// Key names one derived value stored in ticker_metrics. The set is closed:
// anything not listed here is rejected at write time.
type Key string

const (
	Key52WHigh        Key = "52w_high"
	Key52WLow         Key = "52w_low"
	Key52WPct         Key = "52w_pct"
	KeyATR            Key = "atr"
	KeyATRPct         Key = "atr_pct"
	KeyAvgVolume      Key = "avg_volume"
	KeyAvgVolumeUSD   Key = "avg_volume_usd"
	KeyDaysToEarnings Key = "days_to_earnings"
	KeyPERatio        Key = "pe_ratio"
	KeyForwardPE      Key = "forward_pe"
	KeyBeta           Key = "beta"
	KeyDividendYield  Key = "dividend_yield"
	KeyClose          Key = "close"
)

var allKeys = []Key{
	Key52WHigh, Key52WLow, Key52WPct,
	KeyATR, KeyATRPct,
	KeyAvgVolume, KeyAvgVolumeUSD,
	KeyDaysToEarnings,
	KeyPERatio, KeyForwardPE, KeyBeta, KeyDividendYield,
	KeyClose,
}

// FundamentalKeys are written by the price synchronizer from the provider
// profile and carried forward by the engine onto the evaluation date.
var FundamentalKeys = []Key{KeyPERatio, KeyForwardPE, KeyBeta, KeyDividendYield}

func AllKeys() []Key {
	out := make([]Key, len(allKeys))
	copy(out, allKeys)
	return out
}

func (k Key) Valid() bool {
	for _, known := range allKeys {
		if k == known {
			return true
		}
	}
	return false
}

func (k Key) String() string { return string(k) }

func ParseKey(s string) (Key, error) {
	k := Key(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown metric key %q", s)
	}
	return k, nil
}

func keyStrings(keys []Key) []string {
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, string(k))
	}
	return out
}

// Set is the metric values of one ticker on one date.
type Set map[Key]decimal.Decimal

func (s Set) Get(k Key) (decimal.Decimal, bool) {
	v, ok := s[k]
	return v, ok
}

func (s Set) Float(k Key) (float64, bool) {
	v, ok := s[k]
	if !ok {
		return 0, false
	}
	return v.InexactFloat64(), true
}

// Has reports whether every key is present.
func (s Set) Has(keys ...Key) bool {
	for _, k := range keys {
		if _, ok := s[k]; !ok {
			return false
		}
	}
	return true
}

// Missing lists the keys absent from s, in the order given.
func (s Set) Missing(keys ...Key) []Key {
	var out []Key
	for _, k := range keys {
		if _, ok := s[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func (s Set) merge(other Set) {
	for k, v := range other {
		s[k] = v
	}
}

// Records converts s to rows for (tickerID, date), sorted by key. Values are
// rounded to the column scale so a recompute writes identical values.
func (s Set) Records(tickerID uint64, date time.Time) []models.TickerMetric {
	keys := make([]string, 0, len(s))
	for k := range s {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	day := models.Day(date)
	out := make([]models.TickerMetric, 0, len(keys))
	for _, k := range keys {
		out = append(out, models.TickerMetric{
			TickerID:    tickerID,
			Date:        day,
			MetricKey:   k,
			MetricValue: s[Key(k)].Round(6),
		})
	}
	return out
}

// FromRecords builds a Set from stored rows, ignoring unknown keys.
func FromRecords(items []models.TickerMetric) Set {
	out := Set{}
	for _, item := range items {
		k := Key(item.MetricKey)
		if !k.Valid() {
			continue
		}
		out[k] = item.MetricValue
	}
	return out
}
