package pricesync

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"putscreener/internal/checkpoint"
	"putscreener/internal/db"
	"putscreener/internal/marketdata"
	"putscreener/internal/models"
	"putscreener/internal/progress"
	gormrepository "putscreener/internal/repository/gorm"
	"putscreener/internal/testutil"
)

var today = testutil.Date(2026, 10, 14)

type stubSource struct {
	mu       sync.Mutex
	bars     map[string][]marketdata.Bar
	errs     map[string]error
	profiles map[string]*marketdata.Profile
	froms    map[string][]time.Time
}

func newStub() *stubSource {
	return &stubSource{
		bars:     map[string][]marketdata.Bar{},
		errs:     map[string]error{},
		profiles: map[string]*marketdata.Profile{},
		froms:    map[string][]time.Time{},
	}
}

func (s *stubSource) Bars(_ context.Context, symbol string, from, to time.Time) ([]marketdata.Bar, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.froms[symbol] = append(s.froms[symbol], from)
	if err := s.errs[symbol]; err != nil {
		return nil, err
	}
	var out []marketdata.Bar
	for _, b := range s.bars[symbol] {
		if !b.Date.Before(from) && !b.Date.After(to) {
			out = append(out, b)
		}
	}
	return out, nil
}

func (s *stubSource) Profile(_ context.Context, symbol string) (*marketdata.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[symbol]; ok {
		return p, nil
	}
	return nil, marketdata.ErrNotFound
}

func f(v float64) *float64 { return &v }
func i64(v int64) *int64   { return &v }

func dailyBars(end time.Time, n int) []marketdata.Bar {
	out := make([]marketdata.Bar, n)
	for i := range out {
		out[i] = marketdata.Bar{
			Date:   end.AddDate(0, 0, i-(n-1)),
			Open:   f(10),
			High:   f(11),
			Low:    f(9),
			Close:  f(10.5),
			Volume: i64(1000),
		}
	}
	return out
}

func newSync(t *testing.T, src *stubSource) (*Synchronizer, *db.DB) {
	t.Helper()
	conn := testutil.SetupTestDB(t)
	s := New(gormrepository.New(conn.Gorm), src, nil, Config{HistoryDays: 365})
	s.Now = func() time.Time { return today }
	return s, conn
}

func countPrices(t *testing.T, conn *db.DB, tickerID uint64) int64 {
	t.Helper()
	var n int64
	if err := conn.Gorm.Model(&models.TickerPrice{}).Where("ticker_id = ?", tickerID).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

func TestSyncAll_ProviderFailureDoesNotAbortBatch(t *testing.T) {
	src := newStub()
	src.bars["AAA"] = dailyBars(today, 5)
	src.errs["BBB"] = errors.New("upstream 502")
	src.bars["CCC"] = dailyBars(today, 5)
	s, conn := newSync(t, src)
	for _, sym := range []string{"AAA", "BBB", "CCC"} {
		testutil.CreateTicker(t, conn, models.Ticker{Symbol: sym})
	}

	var events []progress.Event
	stats, err := s.SyncAll(context.Background(), progress.Func(func(e progress.Event) {
		events = append(events, e)
	}), false)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if stats.Total != 3 || stats.SuccessCount != 2 || stats.FailedCount != 1 {
		t.Fatalf("stats=%+v", stats)
	}
	if stats.DaysAdded != 10 {
		t.Fatalf("days_added=%d want=10", stats.DaysAdded)
	}
	if len(events) != 6 || events[3].Symbol != "BBB" || events[3].Status != progress.StatusFailed {
		t.Fatalf("events=%+v", events)
	}

	wm, err := checkpoint.Watermark(context.Background(), s.Store, checkpoint.ScopePriceSync)
	if err != nil || wm == nil || !wm.Equal(today) {
		t.Fatalf("watermark=%v err=%v", wm, err)
	}
}

func TestSyncAll_ResyncDoesNotDuplicateBars(t *testing.T) {
	src := newStub()
	src.bars["AAPL"] = dailyBars(today, 30)
	s, conn := newSync(t, src)
	ticker := testutil.CreateTicker(t, conn, models.Ticker{Symbol: "AAPL"})
	ctx := context.Background()

	if _, err := s.SyncAll(ctx, nil, false); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := s.SyncAll(ctx, nil, false); err != nil {
		t.Fatalf("second: %v", err)
	}
	if n := countPrices(t, conn, ticker.ID); n != 30 {
		t.Fatalf("bars=%d want=30", n)
	}
	froms := src.froms["AAPL"]
	if len(froms) != 2 {
		t.Fatalf("fetches=%d", len(froms))
	}
	// Second pass restarts at the latest stored bar, inclusive.
	if !froms[1].Equal(today) {
		t.Fatalf("second from=%v want=%v", froms[1], today)
	}
}

func TestSyncAll_ForceFullUsesWindow(t *testing.T) {
	src := newStub()
	src.bars["AAPL"] = dailyBars(today, 3)
	s, conn := newSync(t, src)
	testutil.CreateTicker(t, conn, models.Ticker{Symbol: "AAPL"})
	ctx := context.Background()
	if _, err := s.SyncAll(ctx, nil, false); err != nil {
		t.Fatalf("first: %v", err)
	}
	if _, err := s.SyncAll(ctx, nil, true); err != nil {
		t.Fatalf("force: %v", err)
	}
	want := today.AddDate(0, 0, -365)
	if got := src.froms["AAPL"][1]; !got.Equal(want) {
		t.Fatalf("from=%v want=%v", got, want)
	}
}

func TestSyncAll_NewTickerGetsHistoryWindow(t *testing.T) {
	src := newStub()
	src.bars["AAPL"] = dailyBars(today, 5)
	src.bars["NEW"] = dailyBars(today, 400)
	s, conn := newSync(t, src)
	testutil.CreateTicker(t, conn, models.Ticker{Symbol: "AAPL"})
	ctx := context.Background()
	if _, err := s.SyncAll(ctx, nil, false); err != nil {
		t.Fatalf("first: %v", err)
	}

	// Added after the checkpoint already reached today.
	added := testutil.CreateTicker(t, conn, models.Ticker{Symbol: "NEW"})
	if _, err := s.SyncAll(ctx, nil, false); err != nil {
		t.Fatalf("second: %v", err)
	}
	want := today.AddDate(0, 0, -365)
	if froms := src.froms["NEW"]; len(froms) != 1 || !froms[0].Equal(want) {
		t.Fatalf("froms=%v want=[%v]", froms, want)
	}
	if n := countPrices(t, conn, added.ID); n != 366 {
		t.Fatalf("bars=%d want=366", n)
	}
	if froms := src.froms["AAPL"]; !froms[1].Equal(today) {
		t.Fatalf("existing ticker from=%v want=%v", froms[1], today)
	}
}

func TestSync_NoDataFails(t *testing.T) {
	src := newStub()
	s, conn := newSync(t, src)
	ticker := testutil.CreateTicker(t, conn, models.Ticker{Symbol: "EMPTY"})
	res, err := s.Sync(context.Background(), ticker, nil, nil)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if res.OK() || !errors.Is(res.Err, marketdata.ErrNoData) {
		t.Fatalf("result=%+v", res)
	}
}

func TestSync_RefreshesMetadata(t *testing.T) {
	src := newStub()
	src.bars["AAPL"] = dailyBars(today, 3)
	src.profiles["AAPL"] = &marketdata.Profile{
		LongName:          "Apple Inc.",
		SectorKey:         "technology",
		IndustryKey:       "consumer-electronics",
		MarketCap:         i64(3_000_000_000_000),
		SharesOutstanding: i64(15_000_000_000),
		TrailingPE:        f(31.5),
		Beta:              f(0),
		EarningsDates: []time.Time{
			testutil.Date(2026, 7, 30),
			testutil.Date(2027, 1, 28),
			testutil.Date(2026, 10, 29),
		},
	}
	s, conn := newSync(t, src)
	ticker := testutil.CreateTicker(t, conn, models.Ticker{Symbol: "AAPL"})
	ctx := context.Background()

	res, err := s.Sync(ctx, ticker, nil, nil)
	if err != nil || !res.OK() {
		t.Fatalf("res=%+v err=%v", res, err)
	}
	got, err := s.Store.GetTickerBySymbol(ctx, "AAPL")
	if err != nil || got == nil {
		t.Fatalf("ticker=%v err=%v", got, err)
	}
	if got.Name != "Apple Inc." {
		t.Fatalf("name=%q", got.Name)
	}
	if got.MarketCap == nil || *got.MarketCap != 3_000_000_000_000 {
		t.Fatalf("market cap=%v", got.MarketCap)
	}
	if got.NextEarningsDate == nil || !models.Day(*got.NextEarningsDate).Equal(testutil.Date(2026, 10, 29)) {
		t.Fatalf("next earnings=%v", got.NextEarningsDate)
	}
	if got.Sector == nil || got.Sector.Key != "technology" || got.Industry == nil || got.Industry.Name != "Consumer Electronics" {
		t.Fatalf("sector=%+v industry=%+v", got.Sector, got.Industry)
	}

	rows, err := s.Store.ListMetrics(ctx, ticker.ID, today)
	if err != nil {
		t.Fatalf("metrics: %v", err)
	}
	// pe_ratio only: beta is zero and forward P/E is absent.
	if len(rows) != 1 || rows[0].MetricKey != "pe_ratio" {
		t.Fatalf("fundamentals=%+v", rows)
	}
}

func TestSync_KeepsCustomName(t *testing.T) {
	src := newStub()
	src.bars["BRK-B"] = dailyBars(today, 2)
	src.profiles["BRK-B"] = &marketdata.Profile{LongName: "Berkshire Hathaway Inc."}
	s, conn := newSync(t, src)
	ticker := testutil.CreateTicker(t, conn, models.Ticker{Symbol: "BRK-B", Name: "Berkshire B"})

	if _, err := s.Sync(context.Background(), ticker, nil, nil); err != nil {
		t.Fatalf("err=%v", err)
	}
	got, _ := s.Store.GetTickerBySymbol(context.Background(), "BRK-B")
	if got.Name != "Berkshire B" {
		t.Fatalf("name=%q want unchanged", got.Name)
	}
}

func TestSync_ProfileErrorDoesNotFailTicker(t *testing.T) {
	src := newStub()
	src.bars["XYZ"] = dailyBars(today, 4)
	s, conn := newSync(t, src)
	ticker := testutil.CreateTicker(t, conn, models.Ticker{Symbol: "XYZ"})
	res, err := s.Sync(context.Background(), ticker, nil, nil)
	if err != nil || !res.OK() || res.BarsWritten != 4 {
		t.Fatalf("res=%+v err=%v", res, err)
	}
}

func TestNextEarnings(t *testing.T) {
	dates := []time.Time{
		testutil.Date(2026, 12, 1),
		testutil.Date(2026, 10, 13),
		testutil.Date(2026, 10, 14),
	}
	next := NextEarnings(dates, today)
	if next == nil || !next.Equal(today) {
		t.Fatalf("next=%v want=%v", next, today)
	}
	if NextEarnings(dates[1:2], today) != nil {
		t.Fatalf("only past dates should yield nil")
	}
}

func TestSyncSymbol_Unknown(t *testing.T) {
	s, _ := newSync(t, newStub())
	if _, err := s.SyncSymbol(context.Background(), "nope", 30); !errors.Is(err, ErrTickerNotFound) {
		t.Fatalf("err=%v want ErrTickerNotFound", err)
	}
}

func TestCoverage(t *testing.T) {
	src := newStub()
	s, conn := newSync(t, src)
	fresh := testutil.CreateTicker(t, conn, models.Ticker{Symbol: "AAA"})
	stale := testutil.CreateTicker(t, conn, models.Ticker{Symbol: "BBB"})
	testutil.CreateTicker(t, conn, models.Ticker{Symbol: "CCC"})
	bar := func(int) models.TickerPrice { return models.TickerPrice{Close: testutil.Dec(1)} }
	testutil.SeedBars(t, conn, fresh.ID, today, 2, bar)
	testutil.SeedBars(t, conn, stale.ID, today.AddDate(0, 0, -3), 2, bar)

	report, err := s.Coverage(context.Background(), "")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if report.Total != 3 || report.WithData != 2 || report.UpToDate != 1 {
		t.Fatalf("report=%+v", report)
	}
	if b := report.Coverage[1].DaysBehind; b == nil || *b != 3 {
		t.Fatalf("days behind=%v want=3", b)
	}
}
