package screener

import (
	"math"
	"time"

	"putscreener/internal/marketdata"
	"putscreener/internal/models"
)

// Contract is one selected put for one expiration.
type Contract struct {
	Expiration time.Time
	DTE        int
	Strike     float64
	Bid        float64
	Ask        float64
	Premium    float64
	Spread     float64
	Yield      float64
}

// ExpirationsInWindow keeps expirations within tolerance days of
// today + target days, in listing order.
func ExpirationsInWindow(exps []time.Time, today time.Time, target, tolerance int) []time.Time {
	today = models.Day(today)
	goal := today.AddDate(0, 0, target)
	var out []time.Time
	for _, e := range exps {
		e = models.Day(e)
		if absDays(e.Sub(goal)) <= tolerance {
			out = append(out, e)
		}
	}
	return out
}

// strikeTieEpsilon absorbs float noise when two strikes sit equally far from
// the target.
const strikeTieEpsilon = 1e-9

// SelectPut picks, among strikes strictly below price, the one closest to
// price*(1-discount). Equal distances resolve to the lower strike, so the
// result does not depend on chain order.
func SelectPut(puts []marketdata.OptionQuote, price, discount float64) (marketdata.OptionQuote, bool) {
	target := price * (1 - discount)
	var (
		best     marketdata.OptionQuote
		bestDiff = math.Inf(1)
		found    bool
	)
	for _, p := range puts {
		if p.Strike >= price {
			continue
		}
		diff := math.Abs(p.Strike - target)
		closer := diff < bestDiff-strikeTieEpsilon
		tie := math.Abs(diff-bestDiff) <= strikeTieEpsilon && p.Strike < best.Strike
		if !found || closer || tie {
			best, bestDiff, found = p, diff, true
		}
	}
	return best, found
}

// AnnualizedYield is (premium/strike) * (365/dte). ok is false when dte or
// strike is not positive.
func AnnualizedYield(premium, strike float64, dte int) (float64, bool) {
	if dte <= 0 || strike <= 0 {
		return 0, false
	}
	return (premium / strike) * (365 / float64(dte)), true
}

// ContractsNeeded is how many contracts deploy target dollars of capital at
// risk, truncated.
func ContractsNeeded(target, price float64) int {
	if price <= 0 {
		return 0
	}
	return int(target / (price * 100))
}

func buildContract(exp time.Time, dte int, put marketdata.OptionQuote) Contract {
	premium := (put.Bid + put.Ask) / 2
	c := Contract{
		Expiration: exp,
		DTE:        dte,
		Strike:     put.Strike,
		Bid:        put.Bid,
		Ask:        put.Ask,
		Premium:    premium,
		Spread:     put.Ask - put.Bid,
	}
	c.Yield, _ = AnnualizedYield(premium, put.Strike, dte)
	return c
}

func absDays(d time.Duration) int {
	days := int(math.Round(d.Hours() / 24))
	if days < 0 {
		return -days
	}
	return days
}

func daysBetween(from, to time.Time) int {
	return int(math.Round(models.Day(to).Sub(models.Day(from)).Hours() / 24))
}
