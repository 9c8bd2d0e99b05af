package yahoo

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"putscreener/internal/marketdata"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(srv.Client(), srv.URL, WithRetry(2, time.Millisecond))
}

func TestBars_AdjustsAndDedupes(t *testing.T) {
	day1 := time.Date(2026, 10, 12, 13, 30, 0, 0, time.UTC).Unix()
	day2 := time.Date(2026, 10, 13, 13, 30, 0, 0, time.UTC).Unix()
	day2Live := time.Date(2026, 10, 13, 19, 0, 0, 0, time.UTC).Unix()
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/v8/finance/chart/AAPL") {
			t.Errorf("path=%s", r.URL.Path)
		}
		if r.URL.Query().Get("interval") != "1d" {
			t.Errorf("interval=%s", r.URL.Query().Get("interval"))
		}
		if r.Header.Get("User-Agent") == "" {
			t.Errorf("missing user agent")
		}
		fmt.Fprintf(w, `{"chart":{"result":[{"meta":{"symbol":"AAPL","gmtoffset":-14400},
			"timestamp":[%d,%d,%d],
			"indicators":{"quote":[{"open":[10,20,21],"high":[12,22,23],"low":[9,19,20],"close":[10,20,22],"volume":[100,200,300]}],
			"adjclose":[{"adjclose":[5,20,22]}]}}],"error":null}}`, day1, day2, day2Live)
	})

	bars, err := client.Bars(context.Background(), "aapl", time.Now().AddDate(0, 0, -5), time.Now())
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(bars) != 2 {
		t.Fatalf("bars=%d want=2", len(bars))
	}
	if got := bars[0].Date.Format("2006-01-02"); got != "2026-10-12" {
		t.Fatalf("date=%s", got)
	}
	// adjclose/close = 0.5 on the first bar.
	if *bars[0].Close != 5 || *bars[0].High != 6 || *bars[0].Low != 4.5 {
		t.Fatalf("adjusted bar=%v/%v/%v", *bars[0].Close, *bars[0].High, *bars[0].Low)
	}
	if *bars[1].Close != 22 || *bars[1].Volume != 300 {
		t.Fatalf("live bar should replace earlier row: close=%v volume=%d", *bars[1].Close, *bars[1].Volume)
	}
}

func TestBars_NotFound(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"chart":{"result":null,"error":{"code":"Not Found","description":"No data found"}}}`))
	})
	_, err := client.Bars(context.Background(), "ZZZZ", time.Now(), time.Now())
	if !errors.Is(err, marketdata.ErrNotFound) {
		t.Fatalf("err=%v want ErrNotFound", err)
	}
}

func TestGetWithRetry_RecoversFromServerError(t *testing.T) {
	var calls atomic.Int32
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"optionChain":{"result":[{"expirationDates":[1792800000,1795478400]}],"error":null}}`))
	})
	exps, err := client.Expirations(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if calls.Load() != 2 {
		t.Fatalf("calls=%d want=2", calls.Load())
	}
	if len(exps) != 2 {
		t.Fatalf("expirations=%d", len(exps))
	}
	for _, e := range exps {
		if e.Hour() != 0 || e.Location() != time.UTC {
			t.Fatalf("expiration not normalized: %v", e)
		}
	}
}

func TestPuts_ParsesChain(t *testing.T) {
	exp := time.Date(2026, 11, 13, 0, 0, 0, 0, time.UTC)
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("date") != fmt.Sprint(exp.Unix()) {
			t.Errorf("date=%s", r.URL.Query().Get("date"))
		}
		_, _ = w.Write([]byte(`{"optionChain":{"result":[{"expirationDates":[],"options":[{"expirationDate":1,
			"puts":[{"strike":85,"bid":0.5,"ask":0.7},{"strike":88,"bid":1.9,"ask":2.1},{"bid":1}]}]}],"error":null}}`))
	})
	puts, err := client.Puts(context.Background(), "AAPL", exp)
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if len(puts) != 2 {
		t.Fatalf("puts=%d want=2", len(puts))
	}
	if puts[1].Strike != 88 || puts[1].Bid != 1.9 || puts[1].Ask != 2.1 {
		t.Fatalf("put=%+v", puts[1])
	}
}

func TestProfile_MapsModules(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Query().Get("modules"), "calendarEvents") {
			t.Errorf("modules=%s", r.URL.Query().Get("modules"))
		}
		_, _ = w.Write([]byte(`{"quoteSummary":{"result":[{
			"price":{"longName":"Apple Inc.","shortName":"Apple","marketCap":{"raw":3000000000000}},
			"summaryProfile":{"sectorKey":"technology","industryKey":"consumer-electronics"},
			"summaryDetail":{"trailingPE":{"raw":31.5},"beta":{"raw":1.2},"dividendYield":{"raw":0.005}},
			"defaultKeyStatistics":{"sharesOutstanding":{"raw":15000000000},"forwardPE":{"raw":28.1}},
			"calendarEvents":{"earnings":{"earningsDate":[{"raw":1793000000},{"raw":1761000000}]}}
		}],"error":null}}`))
	})
	p, err := client.Profile(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("err=%v", err)
	}
	if p.LongName != "Apple Inc." || p.SectorKey != "technology" || p.IndustryKey != "consumer-electronics" {
		t.Fatalf("profile=%+v", p)
	}
	if p.MarketCap == nil || *p.MarketCap != 3000000000000 {
		t.Fatalf("market cap=%v", p.MarketCap)
	}
	if p.ForwardPE == nil || math.Abs(*p.ForwardPE-28.1) > 1e-9 {
		t.Fatalf("forward pe=%v", p.ForwardPE)
	}
	if len(p.EarningsDates) != 2 || !p.EarningsDates[0].Before(p.EarningsDates[1]) {
		t.Fatalf("earnings dates not sorted: %v", p.EarningsDates)
	}
}
