package screener

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"putscreener/internal/checkpoint"
	"putscreener/internal/db"
	"putscreener/internal/marketdata"
	"putscreener/internal/metrics"
	"putscreener/internal/models"
	"putscreener/internal/progress"
	gormrepository "putscreener/internal/repository/gorm"
	"putscreener/internal/testutil"
)

var today = testutil.Date(2026, 10, 14)

type stubOptions struct {
	exps    []time.Time
	puts    []marketdata.OptionQuote
	expErr  error
	symbols []string
}

func (s *stubOptions) Expirations(_ context.Context, symbol string) ([]time.Time, error) {
	s.symbols = append(s.symbols, symbol)
	return s.exps, s.expErr
}

func (s *stubOptions) Puts(context.Context, string, time.Time) ([]marketdata.OptionQuote, error) {
	return s.puts, nil
}

func defaultChain() *stubOptions {
	return &stubOptions{
		exps: []time.Time{today.AddDate(0, 0, 30), today.AddDate(0, 0, 60)},
		puts: []marketdata.OptionQuote{
			{Strike: 85, Bid: 2.9, Ask: 3.1},
			{Strike: 88, Bid: 3.9, Ask: 4.1},
			{Strike: 92, Bid: 5.9, Ask: 6.1},
			{Strike: 95, Bid: 7.0, Ask: 7.4},
		},
	}
}

type fixture struct {
	engine *Engine
	conn   *db.DB
	opts   *stubOptions
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	conn := testutil.SetupTestDB(t)
	opts := defaultChain()
	return &fixture{
		engine: &Engine{
			Store:   gormrepository.New(conn.Gorm),
			Options: opts,
			Config:  DefaultConfig(),
			Now:     func() time.Time { return today.Add(20 * time.Hour) },
		},
		conn: conn,
		opts: opts,
	}
}

func (f *fixture) ticker(t *testing.T, item models.Ticker, barsEnd time.Time, set metrics.Set) models.Ticker {
	t.Helper()
	if item.MarketCap == nil {
		mc := int64(5_000_000_000)
		item.MarketCap = &mc
	}
	tk := testutil.CreateTicker(t, f.conn, item)
	testutil.SeedBars(t, f.conn, tk.ID, barsEnd, 10, func(int) models.TickerPrice {
		return models.TickerPrice{High: testutil.Dec(101), Low: testutil.Dec(99), Close: testutil.Dec(100)}
	})
	if set != nil {
		rows := set.Records(tk.ID, barsEnd)
		if err := f.conn.Gorm.Create(&rows).Error; err != nil {
			t.Fatalf("seed metrics: %v", err)
		}
	}
	return tk
}

func passingSet() metrics.Set {
	return metrics.Set{
		metrics.Key52WPct:       decimal.NewFromFloat(0.1),
		metrics.Key52WHigh:      decimal.NewFromInt(130),
		metrics.Key52WLow:       decimal.NewFromInt(95),
		metrics.KeyATRPct:       decimal.NewFromFloat(0.02),
		metrics.KeyAvgVolumeUSD: decimal.NewFromInt(50_000_000),
		metrics.KeyPERatio:      decimal.NewFromInt(12),
		metrics.KeyClose:        decimal.NewFromInt(100),
	}
}

func TestScreen_Passes(t *testing.T) {
	f := newFixture(t)
	tk := f.ticker(t, models.Ticker{Symbol: "KO", Name: "Coca-Cola"}, today, passingSet())

	rows, outcome, err := f.engine.Screen(context.Background(), tk, today, DefaultConfig())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if !outcome.OK() || len(rows) != 1 {
		t.Fatalf("outcome=%+v rows=%d", outcome, len(rows))
	}
	r := rows[0]
	if !r.PutStrike.Equal(decimal.NewFromInt(88)) || r.DTE != 30 {
		t.Fatalf("strike=%s dte=%d", r.PutStrike, r.DTE)
	}
	wantYield := (4.0 / 88) * (365.0 / 30)
	if y := r.AnnualizedYield.InexactFloat64(); math.Abs(y-wantYield) > 1e-6 {
		t.Fatalf("yield=%v want=%v", y, wantYield)
	}
	if !r.IsLateral {
		t.Fatalf("atr_pct 0.02 should be lateral")
	}
	if !r.DistHighPct.Equal(decimal.NewFromFloat(0.3)) || !r.DistLowPct.Equal(decimal.NewFromFloat(0.05)) {
		t.Fatalf("dist high=%s low=%s", r.DistHighPct, r.DistLowPct)
	}
	if r.ContractsNeeded != 1 || r.MarketCapMillions != 5000 {
		t.Fatalf("contracts=%d mcap=%d", r.ContractsNeeded, r.MarketCapMillions)
	}
	if r.OptionsLink != "https://finance.yahoo.com/quote/KO/options" {
		t.Fatalf("options link=%s", r.OptionsLink)
	}
}

func TestScreen_RejectsStaleData(t *testing.T) {
	f := newFixture(t)
	tk := f.ticker(t, models.Ticker{Symbol: "OLD"}, today.AddDate(0, 0, -6), passingSet())

	rows, outcome, err := f.engine.Screen(context.Background(), tk, today, DefaultConfig())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if outcome.Kind != progress.KindSkipped || len(rows) != 0 {
		t.Fatalf("outcome=%+v rows=%d", outcome, len(rows))
	}
	if len(f.opts.symbols) != 0 {
		t.Fatalf("stale ticker should not reach the option chain")
	}
}

func TestScreen_UsesLatestBarWithinTolerance(t *testing.T) {
	f := newFixture(t)
	tk := f.ticker(t, models.Ticker{Symbol: "FRI"}, today.AddDate(0, 0, -3), passingSet())
	rows, outcome, err := f.engine.Screen(context.Background(), tk, today, DefaultConfig())
	if err != nil || !outcome.OK() || len(rows) != 1 {
		t.Fatalf("rows=%d outcome=%+v err=%v", len(rows), outcome, err)
	}
}

func TestScreen_Rejections(t *testing.T) {
	cases := map[string]func(metrics.Set){
		"missing pe":    func(s metrics.Set) { delete(s, metrics.KeyPERatio) },
		"high in range": func(s metrics.Set) { s[metrics.Key52WPct] = decimal.NewFromFloat(0.5) },
		"pe above band": func(s metrics.Set) { s[metrics.KeyPERatio] = decimal.NewFromInt(40) },
		"thin volume":   func(s metrics.Set) { s[metrics.KeyAvgVolumeUSD] = decimal.NewFromInt(1_000_000) },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			set := passingSet()
			mutate(set)
			tk := f.ticker(t, models.Ticker{Symbol: "REJ"}, today, set)
			rows, outcome, err := f.engine.Screen(context.Background(), tk, today, DefaultConfig())
			if err != nil {
				t.Fatalf("err=%v", err)
			}
			if outcome.OK() || len(rows) != 0 {
				t.Fatalf("outcome=%+v rows=%d", outcome, len(rows))
			}
		})
	}
}

func TestScreen_NoQualifyingPremium(t *testing.T) {
	f := newFixture(t)
	f.opts.puts = []marketdata.OptionQuote{{Strike: 88, Bid: 0.5, Ask: 0.7}}
	tk := f.ticker(t, models.Ticker{Symbol: "LOW"}, today, passingSet())
	rows, outcome, err := f.engine.Screen(context.Background(), tk, today, DefaultConfig())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if outcome.Kind != progress.KindSkipped || len(rows) != 0 {
		t.Fatalf("outcome=%+v rows=%d", outcome, len(rows))
	}
}

func TestScreen_SmallCapRejected(t *testing.T) {
	f := newFixture(t)
	mc := int64(200_000_000)
	tk := f.ticker(t, models.Ticker{Symbol: "TINY", MarketCap: &mc}, today, passingSet())
	_, outcome, err := f.engine.Screen(context.Background(), tk, today, DefaultConfig())
	if err != nil || outcome.OK() {
		t.Fatalf("outcome=%+v err=%v", outcome, err)
	}
}

func TestScreen_SectorRelativeStrength(t *testing.T) {
	f := newFixture(t)
	etfSymbol := "XLK"
	sector := models.Sector{Key: "technology", Name: "Technology", Symbol: &etfSymbol}
	if err := f.conn.Gorm.Create(&sector).Error; err != nil {
		t.Fatalf("sector: %v", err)
	}
	f.ticker(t, models.Ticker{Symbol: "XLK", IsSectorETF: true}, today, metrics.Set{
		metrics.Key52WPct: decimal.NewFromFloat(0.05),
	})
	tk := f.ticker(t, models.Ticker{Symbol: "MSFT", SectorID: &sector.ID}, today, passingSet())
	loaded, err := f.engine.Store.GetTickerBySymbol(context.Background(), tk.Symbol)
	if err != nil || loaded == nil || loaded.Sector == nil {
		t.Fatalf("ticker=%+v err=%v", loaded, err)
	}

	_, outcome, err := f.engine.Screen(context.Background(), *loaded, today, DefaultConfig())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if outcome.OK() {
		t.Fatalf("stock at 0.10 is stronger than sector at 0.05 and must be rejected")
	}
}

func TestScreen_OptionErrorIsFailure(t *testing.T) {
	f := newFixture(t)
	f.opts.expErr = errors.New("upstream 503")
	tk := f.ticker(t, models.Ticker{Symbol: "KO"}, today, passingSet())
	_, outcome, err := f.engine.Screen(context.Background(), tk, today, DefaultConfig())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if outcome.Kind != progress.KindFailed {
		t.Fatalf("outcome=%+v want failed", outcome)
	}
}

func TestScreenAll_InvalidConfigFailsFast(t *testing.T) {
	f := newFixture(t)
	f.ticker(t, models.Ticker{Symbol: "KO"}, today, passingSet())
	f.engine.Config.PERatioMin = 30

	events := 0
	_, err := f.engine.ScreenAll(context.Background(), nil, progress.Func(func(progress.Event) { events++ }))
	if !errors.Is(err, ErrInvalidConfig) {
		t.Fatalf("err=%v want ErrInvalidConfig", err)
	}
	if events != 0 {
		t.Fatalf("events=%d want=0", events)
	}
}

func TestScreenAll_LatestRunIsolated(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticker(t, models.Ticker{Symbol: "KO"}, today, passingSet())
	f.ticker(t, models.Ticker{Symbol: "PEP"}, today, passingSet())
	f.ticker(t, models.Ticker{Symbol: "SPY", IsMarketETF: true}, today, passingSet())

	first, err := f.engine.ScreenAll(ctx, nil, nil)
	if err != nil {
		t.Fatalf("first: %v", err)
	}
	if first.Total != 2 || first.PassedCount != 2 || first.Opportunities != 2 {
		t.Fatalf("first=%+v", first)
	}

	// Next day only one expiration qualifies and KO drops out on P/E.
	next := today.AddDate(0, 0, 1)
	f.engine.Now = func() time.Time { return next.Add(20 * time.Hour) }
	if err := f.conn.Gorm.Model(&models.TickerMetric{}).
		Where("metric_key = ? AND ticker_id = (SELECT id FROM tickers WHERE symbol = ?)", "pe_ratio", "KO").
		Update("metric_value", decimal.NewFromInt(50)).Error; err != nil {
		t.Fatalf("update pe: %v", err)
	}
	second, err := f.engine.ScreenAll(ctx, nil, nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.PassedCount != 1 || second.FailedCount != 1 {
		t.Fatalf("second=%+v", second)
	}

	latest, err := f.engine.LatestResults(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 1 || latest[0].Symbol != "PEP" || latest[0].RunID != second.RunID {
		t.Fatalf("latest=%+v", latest)
	}
	byDate, err := f.engine.ResultsByDate(ctx, today)
	if err != nil {
		t.Fatalf("by date: %v", err)
	}
	if len(byDate) != 2 || byDate[0].RunID != first.RunID || byDate[1].RunID != first.RunID {
		t.Fatalf("by date=%+v", byDate)
	}
	for _, r := range byDate {
		if !r.CreatedAt.Equal(byDate[0].CreatedAt) {
			t.Fatalf("rows of one run must share created_at")
		}
	}

	wm, err := checkpoint.Watermark(ctx, f.engine.Store, checkpoint.ScopeScreening)
	if err != nil || wm == nil || !wm.Equal(next) {
		t.Fatalf("watermark=%v err=%v", wm, err)
	}
}

func TestScreen_OneRowPerQualifyingExpiration(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.opts.exps = []time.Time{today.AddDate(0, 0, 25), today.AddDate(0, 0, 33)}
	tk := f.ticker(t, models.Ticker{Symbol: "KO"}, today, passingSet())

	rows, outcome, err := f.engine.Screen(ctx, tk, today, DefaultConfig())
	if err != nil || !outcome.OK() {
		t.Fatalf("outcome=%+v err=%v", outcome, err)
	}
	if len(rows) != 2 {
		t.Fatalf("rows=%d want=2", len(rows))
	}
	if rows[0].DTE != 25 || rows[1].DTE != 33 {
		t.Fatalf("dte=%d,%d want=25,33", rows[0].DTE, rows[1].DTE)
	}
	if rows[0].Expiration.Equal(rows[1].Expiration) {
		t.Fatalf("expirations must differ: %v", rows[0].Expiration)
	}

	stats, err := f.engine.ScreenAll(ctx, nil, nil)
	if err != nil {
		t.Fatalf("screen all: %v", err)
	}
	if stats.PassedCount != 1 || stats.Opportunities != 2 {
		t.Fatalf("stats=%+v want passed=1 opportunities=2", stats)
	}
	latest, err := f.engine.LatestResults(ctx)
	if err != nil || len(latest) != 2 {
		t.Fatalf("latest=%d err=%v", len(latest), err)
	}
	if !latest[0].CreatedAt.Equal(latest[1].CreatedAt) || latest[0].RunID != latest[1].RunID {
		t.Fatalf("rows of one run must share created_at and run_id: %+v", latest)
	}
}

func TestLatestResults_EmptyWhenLastRunFoundNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.ticker(t, models.Ticker{Symbol: "KO"}, today, passingSet())

	first, err := f.engine.ScreenAll(ctx, nil, nil)
	if err != nil || first.Opportunities == 0 {
		t.Fatalf("first=%+v err=%v", first, err)
	}

	next := today.AddDate(0, 0, 1)
	f.engine.Now = func() time.Time { return next.Add(20 * time.Hour) }
	f.opts.puts = []marketdata.OptionQuote{{Strike: 88, Bid: 0.1, Ask: 0.2}}
	second, err := f.engine.ScreenAll(ctx, nil, nil)
	if err != nil {
		t.Fatalf("second: %v", err)
	}
	if second.Opportunities != 0 {
		t.Fatalf("second=%+v want no opportunities", second)
	}

	latest, err := f.engine.LatestResults(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 0 {
		t.Fatalf("latest=%d rows from an earlier run, want=0", len(latest))
	}
	old, err := f.engine.ResultsByDate(ctx, today)
	if err != nil || len(old) != first.Opportunities {
		t.Fatalf("by date=%d want=%d err=%v", len(old), first.Opportunities, err)
	}
}

func TestLatestResults_NoCheckpointFallsBackToNewestRows(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	tk := f.ticker(t, models.Ticker{Symbol: "KO"}, today, passingSet())
	row := models.ScreeningResult{TickerID: tk.ID, Symbol: "KO", ScreeningDate: today, RunID: "imported", CreatedAt: today}
	if err := f.conn.Gorm.Create(&row).Error; err != nil {
		t.Fatalf("seed result: %v", err)
	}

	latest, err := f.engine.LatestResults(ctx)
	if err != nil {
		t.Fatalf("latest: %v", err)
	}
	if len(latest) != 1 || latest[0].RunID != "imported" {
		t.Fatalf("latest=%+v", latest)
	}
}

func TestPriceChanges(t *testing.T) {
	f := newFixture(t)
	tk := testutil.CreateTicker(t, f.conn, models.Ticker{Symbol: "CHG"})
	testutil.SeedBars(t, f.conn, tk.ID, today, 7, func(i int) models.TickerPrice {
		return models.TickerPrice{Close: testutil.Dec(float64(90 + i))}
	})
	// closes: 90..96, the newest bar is 96.
	one, five, err := f.engine.PriceChanges(context.Background(), tk.ID, today, 96)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if one == nil || math.Abs(*one-(96.0-95)/95) > 1e-9 {
		t.Fatalf("one day=%v", one)
	}
	if five == nil || math.Abs(*five-(96.0-91)/91) > 1e-9 {
		t.Fatalf("five day=%v", five)
	}
}
