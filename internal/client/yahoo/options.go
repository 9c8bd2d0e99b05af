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

type optionsResponse struct {
	OptionChain struct {
		Result []optionsResult `json:"result"`
		Error  *apiErrorBody   `json:"error"`
	} `json:"optionChain"`
}

type optionsResult struct {
	ExpirationDates []int64 `json:"expirationDates"`
	Options         []struct {
		ExpirationDate int64 `json:"expirationDate"`
		Puts           []struct {
			Strike *float64 `json:"strike"`
			Bid    *float64 `json:"bid"`
			Ask    *float64 `json:"ask"`
		} `json:"puts"`
	} `json:"options"`
}

func (c *Client) Expirations(ctx context.Context, symbol string) ([]time.Time, error) {
	res, err := c.optionChain(ctx, symbol, nil)
	if err != nil {
		return nil, err
	}
	out := make([]time.Time, 0, len(res.ExpirationDates))
	for _, ts := range res.ExpirationDates {
		t := time.Unix(ts, 0).UTC()
		out = append(out, time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC))
	}
	return out, nil
}

func (c *Client) Puts(ctx context.Context, symbol string, expiration time.Time) ([]marketdata.OptionQuote, error) {
	day := time.Date(expiration.Year(), expiration.Month(), expiration.Day(), 0, 0, 0, 0, time.UTC)
	res, err := c.optionChain(ctx, symbol, &day)
	if err != nil {
		return nil, err
	}
	if len(res.Options) == 0 {
		return nil, nil
	}
	puts := res.Options[0].Puts
	out := make([]marketdata.OptionQuote, 0, len(puts))
	for _, p := range puts {
		if p.Strike == nil {
			continue
		}
		q := marketdata.OptionQuote{Strike: *p.Strike}
		if p.Bid != nil {
			q.Bid = *p.Bid
		}
		if p.Ask != nil {
			q.Ask = *p.Ask
		}
		out = append(out, q)
	}
	return out, nil
}

func (c *Client) optionChain(ctx context.Context, symbol string, date *time.Time) (*optionsResult, error) {
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	if symbol == "" {
		return nil, fmt.Errorf("symbol is required")
	}
	query := url.Values{}
	if date != nil {
		query.Set("date", strconv.FormatInt(date.Unix(), 10))
	}
	body, err := c.getWithRetry(ctx, "/v7/finance/options/"+url.PathEscape(symbol), query)
	if err != nil {
		return nil, fmt.Errorf("options %s: %w", symbol, err)
	}
	var resp optionsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parse options %s: %w", symbol, err)
	}
	if resp.OptionChain.Error != nil {
		return nil, fmt.Errorf("options %s: %s", symbol, resp.OptionChain.Error.Description)
	}
	if len(resp.OptionChain.Result) == 0 {
		return nil, fmt.Errorf("%w: %s", marketdata.ErrNoData, symbol)
	}
	return &resp.OptionChain.Result[0], nil
}
