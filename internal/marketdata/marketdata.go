// Package marketdata defines the market-data provider contract consumed by the
// price synchronizer and the screening engine. Providers are best effort:
// absent fields are nil and callers skip whatever depends on them.
package marketdata

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNoData means the provider answered but returned nothing usable.
	ErrNoData = errors.New("no data returned")
	// ErrNotFound means the provider does not know the symbol.
	ErrNotFound = errors.New("symbol not found")
)

// Bar is one adjusted daily bar. Date is the exchange calendar date at UTC
// midnight.
type Bar struct {
	Date   time.Time
	Open   *float64
	High   *float64
	Low    *float64
	Close  *float64
	Volume *int64
}

// Profile carries point-in-time fundamentals, classification and the forward
// corporate calendar.
type Profile struct {
	LongName          string
	ShortName         string
	SectorKey         string
	IndustryKey       string
	MarketCap         *int64
	SharesOutstanding *int64
	TrailingPE        *float64
	ForwardPE         *float64
	Beta              *float64
	DividendYield     *float64
	EarningsDates     []time.Time
}

// OptionQuote is one contract of a chain.
type OptionQuote struct {
	Strike float64
	Bid    float64
	Ask    float64
}

type BarSource interface {
	// Bars returns daily bars in [from, to], both inclusive, ascending.
	Bars(ctx context.Context, symbol string, from, to time.Time) ([]Bar, error)
}

type ProfileSource interface {
	Profile(ctx context.Context, symbol string) (*Profile, error)
}

type OptionSource interface {
	Expirations(ctx context.Context, symbol string) ([]time.Time, error)
	// Puts returns the put side of the chain for one expiration, in listing
	// order (ascending strike).
	Puts(ctx context.Context, symbol string, expiration time.Time) ([]OptionQuote, error)
}

// Provider is the full market-data surface.
type Provider interface {
	BarSource
	ProfileSource
	OptionSource
}
