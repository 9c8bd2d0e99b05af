package metrics

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"putscreener/internal/models"
)

// Bar is one daily bar with every field the calculations need.
type Bar struct {
	Date   time.Time
	High   decimal.Decimal
	Low    decimal.Decimal
	Close  decimal.Decimal
	Volume decimal.Decimal
}

// BarsFromPrices keeps the bars that carry high, low and close, sorted by
// date. A missing volume counts as zero.
func BarsFromPrices(items []models.TickerPrice) []Bar {
	out := make([]Bar, 0, len(items))
	for _, p := range items {
		if p.High == nil || p.Low == nil || p.Close == nil {
			continue
		}
		b := Bar{Date: models.Day(p.Date), High: *p.High, Low: *p.Low, Close: *p.Close}
		if p.Volume != nil {
			b.Volume = decimal.NewFromInt(*p.Volume)
		}
		out = append(out, b)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out
}

var (
	half = decimal.NewFromFloat(0.5)
	zero = decimal.Zero
)

// FiftyTwoWeek returns the window high, low and the position of the last
// close inside that range. ok is false with fewer than minBars bars.
func FiftyTwoWeek(bars []Bar, minBars int) (Set, bool) {
	if len(bars) == 0 || len(bars) < minBars {
		return nil, false
	}
	high, low := bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High.GreaterThan(high) {
			high = b.High
		}
		if b.Low.LessThan(low) {
			low = b.Low
		}
	}
	last := bars[len(bars)-1].Close
	pct := half
	if width := high.Sub(low); width.IsPositive() {
		pct = last.Sub(low).Div(width)
	}
	return Set{Key52WHigh: high, Key52WLow: low, Key52WPct: pct}, true
}

// TrueRanges returns one true range per bar. The first bar has no previous
// close, so its range is high minus low.
func TrueRanges(bars []Bar) []decimal.Decimal {
	out := make([]decimal.Decimal, len(bars))
	for i, b := range bars {
		tr := b.High.Sub(b.Low)
		if i > 0 {
			prev := bars[i-1].Close
			tr = decimal.Max(tr, b.High.Sub(prev).Abs(), b.Low.Sub(prev).Abs())
		}
		out[i] = tr
	}
	return out
}

// ATR is the simple mean of the last period true ranges, and ATR as a
// fraction of the last close (zero when that close is not positive).
func ATR(bars []Bar, period int) (Set, bool) {
	if period <= 0 || len(bars) < period {
		return nil, false
	}
	tr := TrueRanges(bars)
	atr := mean(tr[len(tr)-period:])
	pct := zero
	if last := bars[len(bars)-1].Close; last.IsPositive() {
		pct = atr.Div(last)
	}
	return Set{KeyATR: atr, KeyATRPct: pct}, true
}

// Volume returns the mean share volume and mean dollar volume of the last
// period bars.
func Volume(bars []Bar, period int) (Set, bool) {
	if period <= 0 || len(bars) < period {
		return nil, false
	}
	tail := bars[len(bars)-period:]
	shares := make([]decimal.Decimal, len(tail))
	dollars := make([]decimal.Decimal, len(tail))
	for i, b := range tail {
		shares[i] = b.Volume
		dollars[i] = b.Volume.Mul(b.Close)
	}
	return Set{KeyAvgVolume: mean(shares), KeyAvgVolumeUSD: mean(dollars)}, true
}

// DaysToEarnings counts calendar days from eval to next. Past dates yield
// ok=false.
func DaysToEarnings(next *time.Time, eval time.Time) (int, bool) {
	if next == nil {
		return 0, false
	}
	days := int(models.Day(*next).Sub(models.Day(eval)).Hours() / 24)
	if days < 0 {
		return 0, false
	}
	return days, true
}

func mean(values []decimal.Decimal) decimal.Decimal {
	if len(values) == 0 {
		return zero
	}
	sum := zero
	for _, v := range values {
		sum = sum.Add(v)
	}
	return sum.Div(decimal.NewFromInt(int64(len(values))))
}

func decimalInt(v int) decimal.Decimal {
	return decimal.NewFromInt(int64(v))
}
