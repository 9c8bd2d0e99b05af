package yahoo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strings"
	"time"

	"putscreener/internal/marketdata"
)

const summaryModules = "price,summaryProfile,summaryDetail,defaultKeyStatistics,calendarEvents"

type rawValue struct {
	Raw *float64 `json:"raw"`
}

type summaryResponse struct {
	QuoteSummary struct {
		Result []summaryResult `json:"result"`
		Error  *apiErrorBody   `json:"error"`
	} `json:"quoteSummary"`
}

type summaryResult struct {
	Price *struct {
		LongName  string   `json:"longName"`
		ShortName string   `json:"shortName"`
		MarketCap rawValue `json:"marketCap"`
	} `json:"price"`
	SummaryProfile *struct {
		SectorKey   string `json:"sectorKey"`
		IndustryKey string `json:"industryKey"`
	} `json:"summaryProfile"`
	SummaryDetail *struct {
		TrailingPE    rawValue `json:"trailingPE"`
		ForwardPE     rawValue `json:"forwardPE"`
		Beta          rawValue `json:"beta"`
		DividendYield rawValue `json:"dividendYield"`
		MarketCap     rawValue `json:"marketCap"`
	} `json:"summaryDetail"`
	DefaultKeyStatistics *struct {
		SharesOutstanding rawValue `json:"sharesOutstanding"`
		ForwardPE         rawValue `json:"forwardPE"`
		Beta              rawValue `json:"beta"`
	} `json:"defaultKeyStatistics"`
	CalendarEvents *struct {
		Earnings struct {
			EarningsDate []rawValue `json:"earningsDate"`
		} `json:"earnings"`
	} `json:"calendarEvents"`
}

// Profile fetches fundamentals, classification and the earnings calendar in
// one quoteSummary call.
func (c *Client) Profile(ctx context.Context, symbol string) (*marketdata.Profile, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	query.Set("modules", summaryModules)
	body, err := c.getWithRetry(ctx, "/v10/finance/quoteSummary/"+url.PathEscape(symbol), query)
	if err != nil {
		return nil, fmt.Errorf("quote summary %s: %w", symbol, err)
	}
	var resp summaryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse quote summary %s: %w", symbol, err)
	}
	if resp.QuoteSummary.Error != nil {
		return nil, fmt.Errorf("quote summary %s: %s", symbol, resp.QuoteSummary.Error.Description)
	}
	if len(resp.QuoteSummary.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrNoData, symbol)
	}
	return mapSummary(resp.QuoteSummary.Result[0]), nil
}

func mapSummary(r summaryResult) *marketdata.Profile {
	p := &marketdata.Profile{}
	if r.Price != nil {
		p.LongName = strings.TrimSpace(r.Price.LongName)
		p.ShortName = strings.TrimSpace(r.Price.ShortName)
		p.MarketCap = toInt(r.Price.MarketCap.Raw)
	}
	if r.SummaryProfile != nil {
		p.SectorKey = strings.TrimSpace(r.SummaryProfile.SectorKey)
		p.IndustryKey = strings.TrimSpace(r.SummaryProfile.IndustryKey)
	}
	if r.SummaryDetail != nil {
		p.TrailingPE = r.SummaryDetail.TrailingPE.Raw
		p.ForwardPE = r.SummaryDetail.ForwardPE.Raw
		p.Beta = r.SummaryDetail.Beta.Raw
		p.DividendYield = r.SummaryDetail.DividendYield.Raw
		if p.MarketCap == nil {
			p.MarketCap = toInt(r.SummaryDetail.MarketCap.Raw)
		}
	}
	if r.DefaultKeyStatistics != nil {
		p.SharesOutstanding = toInt(r.DefaultKeyStatistics.SharesOutstanding.Raw)
		if p.ForwardPE == nil {
			p.ForwardPE = r.DefaultKeyStatistics.ForwardPE.Raw
		}
		if p.Beta == nil {
			p.Beta = r.DefaultKeyStatistics.Beta.Raw
		}
	}
	if r.CalendarEvents != nil {
		for _, v := range r.CalendarEvents.Earnings.EarningsDate {
			if v.Raw == nil {
				continue
			}
			t := time.Unix(int64(*v.Raw), 0).UTC()
			p.EarningsDates = append(p.EarningsDates, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
		}
		sort.Slice(p.EarningsDates, func(i, j int) bool { return p.EarningsDates[i].Before(p.EarningsDates[j]) })
	}
	return p
}

func toInt(v *float64) *int64 {
	if v == nil {
		return nil
	}
	out := int64(*v)
	return &out
}
