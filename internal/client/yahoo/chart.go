package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"putscreener/internal/marketdata"
)

type chartResponse struct {
	Chart struct {
		Result []chartResult `json:"result"`
		Error  *apiErrorBody `json:"error"`
	} `json:"chart"`
}

type chartResult struct {
	Meta struct {
		Symbol    string `json:"symbol"`
		GMTOffset int64  `json:"gmtoffset"`
	} `json:"meta"`
	Timestamp  []int64 `json:"timestamp"`
	Indicators struct {
		Quote []struct {
			Open   []*float64 `json:"open"`
			High   []*float64 `json:"high"`
			Low    []*float64 `json:"low"`
			Close  []*float64 `json:"close"`
			Volume []*int64   `json:"volume"`
		} `json:"quote"`
		AdjClose []struct {
			AdjClose []*float64 `json:"adjclose"`
		} `json:"adjclose"`
	} `json:"indicators"`
}

type apiErrorBody struct {
	Code        string `json:"code"`
	Description string `json:"description"`
}

// Bars fetches daily bars from the chart API and rescales OHLC by the
// adjusted-close ratio so splits and dividends are folded into the series.
func (c *Client) Bars(ctx context.Context, symbol string, from, to time.Time) ([]marketdata.Bar, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	query.Set("period1", strconv.FormatInt(from.Unix(), 10))
	// period2 is exclusive.
	query.Set("period2", strconv.FormatInt(to.AddDate(0, 0, 1).Unix(), 10))
	query.Set("interval", "1d")
	query.Set("events", "div,splits")
	query.Set("includeAdjustedClose", "true")

	body, err := c.getWithRetry(ctx, "/v8/finance/chart/"+url.PathEscape(symbol), query)
	if err != nil {
		return nil, fmt.Errorf("chart %s: %w", symbol, err)
	}
	var resp chartResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse chart %s: %w", symbol, err)
	}
	if resp.Chart.Error != nil {
		if strings.EqualFold(resp.Chart.Error.Code, "Not Found") {
			return nil, fmt.Errorf("%w: %s", marketdata.ErrNotFound, symbol)
		}
		return nil, fmt.Errorf("chart %s: %s", symbol, resp.Chart.Error.Description)
	}
	if len(resp.Chart.Result) == 0 || len(resp.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrNoData, symbol)
	}
	return mapChart(resp.Chart.Result[0]), nil
}

func mapChart(r chartResult) []marketdata.Bar {
	quote := r.Indicators.Quote[0]
	var adj []*float64
	if len(r.Indicators.AdjClose) > 0 {
		adj = r.Indicators.AdjClose[0].AdjClose
	}
	out := make([]marketdata.Bar, 0, len(r.Timestamp))
	seen := map[time.Time]int{}
	for i, ts := range r.Timestamp {
		day := time.Unix(ts+r.Meta.GMTOffset, 0).UTC()
		day = time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, time.UTC)

		bar := marketdata.Bar{
			Date:   day,
			Open:   at(quote.Open, i),
			High:   at(quote.High, i),
			Low:    at(quote.Low, i),
			Close:  at(quote.Close, i),
			Volume: atInt(quote.Volume, i),
		}
		if a := at(adj, i); a != nil && bar.Close != nil && *bar.Close != 0 {
			factor := *a / *bar.Close
			bar.Open = scale(bar.Open, factor)
			bar.High = scale(bar.High, factor)
			bar.Low = scale(bar.Low, factor)
			bar.Close = a
		}
		// The live session can show up twice; the later row wins.
		if idx, ok := seen[day]; ok {
			out[idx] = bar
			continue
		}
		seen[day] = len(out)
		out = append(out, bar)
	}
	return out
}

func at(values []*float64, i int) *float64 {
	if i >= len(values) || values[i] == nil {
		return nil
	}
	v := *values[i]
	return &v
}

func atInt(values []*int64, i int) *int64 {
	if i >= len(values) || values[i] == nil {
		return nil
	}
	v := *values[i]
	return &v
}

func scale(v *float64, factor float64) *float64 {
	if v == nil {
		return nil
	}
	out := *v * factor
	return &out
}
