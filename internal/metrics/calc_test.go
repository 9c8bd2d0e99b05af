package metrics

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"putscreener/internal/models"
	"putscreener/internal/testutil"
)

func flatBars(n int, high, low, close float64, volume int64) []Bar {
	out := make([]Bar, n)
	start := testutil.Date(2026, 1, 1)
	for i := range out {
		out[i] = Bar{
			Date:   start.AddDate(0, 0, i),
			High:   decimal.NewFromFloat(high),
			Low:    decimal.NewFromFloat(low),
			Close:  decimal.NewFromFloat(close),
			Volume: decimal.NewFromInt(volume),
		}
	}
	return out
}

func TestFiftyTwoWeek_FlatSeriesIsMidpoint(t *testing.T) {
	set, ok := FiftyTwoWeek(flatBars(60, 10, 10, 10, 100), 50)
	if !ok {
		t.Fatalf("expected ok")
	}
	if !set[Key52WPct].Equal(decimal.NewFromFloat(0.5)) {
		t.Fatalf("pct=%s want=0.5", set[Key52WPct])
	}
}

func TestFiftyTwoWeek_Position(t *testing.T) {
	bars := flatBars(50, 10, 10, 10, 100)
	bars[10].High = decimal.NewFromInt(20)
	bars[20].Low = decimal.NewFromInt(0)
	bars[49].Close = decimal.NewFromInt(15)
	set, ok := FiftyTwoWeek(bars, 50)
	if !ok {
		t.Fatalf("expected ok")
	}
	if !set[Key52WHigh].Equal(decimal.NewFromInt(20)) || !set[Key52WLow].Equal(decimal.Zero) {
		t.Fatalf("high=%s low=%s", set[Key52WHigh], set[Key52WLow])
	}
	if !set[Key52WPct].Equal(decimal.NewFromFloat(0.75)) {
		t.Fatalf("pct=%s want=0.75", set[Key52WPct])
	}
	if _, ok := FiftyTwoWeek(bars[:49], 50); ok {
		t.Fatalf("49 bars should not be enough")
	}
}

func TestATR(t *testing.T) {
	bars := flatBars(25, 11, 9, 10, 100)
	set, ok := ATR(bars, 20)
	if !ok {
		t.Fatalf("expected ok")
	}
	if !set[KeyATR].Equal(decimal.NewFromInt(2)) {
		t.Fatalf("atr=%s want=2", set[KeyATR])
	}
	if !set[KeyATRPct].Equal(decimal.NewFromFloat(0.2)) {
		t.Fatalf("atr_pct=%s want=0.2", set[KeyATRPct])
	}
}

func TestTrueRanges_UsesPreviousClose(t *testing.T) {
	bars := flatBars(2, 11, 9, 10, 0)
	bars[1].High = decimal.NewFromInt(15)
	bars[1].Low = decimal.NewFromInt(14)
	tr := TrueRanges(bars)
	if !tr[0].Equal(decimal.NewFromInt(2)) {
		t.Fatalf("tr[0]=%s want=2", tr[0])
	}
	// |15 - 10| beats 15 - 14.
	if !tr[1].Equal(decimal.NewFromInt(5)) {
		t.Fatalf("tr[1]=%s want=5", tr[1])
	}
}

func TestATR_ZeroClose(t *testing.T) {
	set, ok := ATR(flatBars(20, 1, 0, 0, 0), 20)
	if !ok || !set[KeyATRPct].IsZero() {
		t.Fatalf("atr_pct=%s ok=%v want=0", set[KeyATRPct], ok)
	}
}

func TestVolume(t *testing.T) {
	bars := flatBars(30, 11, 9, 10, 1000)
	bars[0].Volume = decimal.NewFromInt(1_000_000) // outside the window
	set, ok := Volume(bars, 20)
	if !ok {
		t.Fatalf("expected ok")
	}
	if !set[KeyAvgVolume].Equal(decimal.NewFromInt(1000)) {
		t.Fatalf("avg_volume=%s", set[KeyAvgVolume])
	}
	if !set[KeyAvgVolumeUSD].Equal(decimal.NewFromInt(10000)) {
		t.Fatalf("avg_volume_usd=%s", set[KeyAvgVolumeUSD])
	}
	if _, ok := Volume(bars[:19], 20); ok {
		t.Fatalf("19 bars should not be enough")
	}
}

func TestDaysToEarnings(t *testing.T) {
	eval := testutil.Date(2026, 10, 14)
	next := testutil.Date(2026, 10, 30)
	past := testutil.Date(2026, 10, 1)
	if d, ok := DaysToEarnings(&next, eval); !ok || d != 16 {
		t.Fatalf("days=%d ok=%v want=16", d, ok)
	}
	if d, ok := DaysToEarnings(&eval, eval); !ok || d != 0 {
		t.Fatalf("same day=%d ok=%v", d, ok)
	}
	if _, ok := DaysToEarnings(&past, eval); ok {
		t.Fatalf("past earnings should be absent")
	}
	if _, ok := DaysToEarnings(nil, eval); ok {
		t.Fatalf("nil earnings should be absent")
	}
}

func TestBarsFromPrices_DropsIncompleteAndSorts(t *testing.T) {
	vol := int64(5)
	items := []models.TickerPrice{
		{Date: testutil.Date(2026, 1, 3), High: testutil.Dec(2), Low: testutil.Dec(1), Close: testutil.Dec(1.5)},
		{Date: testutil.Date(2026, 1, 1), High: testutil.Dec(2), Low: testutil.Dec(1), Close: testutil.Dec(1.5), Volume: &vol},
		{Date: testutil.Date(2026, 1, 2), High: testutil.Dec(2), Close: testutil.Dec(1.5)},
	}
	bars := BarsFromPrices(items)
	if len(bars) != 2 {
		t.Fatalf("bars=%d want=2", len(bars))
	}
	if !bars[0].Date.Equal(testutil.Date(2026, 1, 1)) || !bars[0].Volume.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("first bar=%+v", bars[0])
	}
	if !bars[1].Volume.IsZero() {
		t.Fatalf("missing volume should be zero, got %s", bars[1].Volume)
	}
}

func TestParseKey(t *testing.T) {
	if k, err := ParseKey("atr_pct"); err != nil || k != KeyATRPct {
		t.Fatalf("k=%q err=%v", k, err)
	}
	if _, err := ParseKey("atr_percent"); err == nil {
		t.Fatalf("expected error for unknown key")
	}
	if len(AllKeys()) != 13 {
		t.Fatalf("keys=%d", len(AllKeys()))
	}
}

func TestSetRecords_SortedAndRounded(t *testing.T) {
	set := Set{KeyClose: decimal.RequireFromString("10.1234567"), Key52WPct: decimal.NewFromFloat(0.5)}
	recs := set.Records(7, time.Date(2026, 10, 14, 15, 0, 0, 0, time.UTC))
	if len(recs) != 2 || recs[0].MetricKey != "52w_pct" || recs[1].MetricKey != "close" {
		t.Fatalf("records=%+v", recs)
	}
	if recs[1].MetricValue.String() != "10.123457" {
		t.Fatalf("value=%s want=10.123457", recs[1].MetricValue)
	}
	if !recs[0].Date.Equal(testutil.Date(2026, 10, 14)) {
		t.Fatalf("date=%v", recs[0].Date)
	}
}
