package screener

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/go-playground/validator/v10"

	"putscreener/internal/config"
)

var ErrInvalidConfig = errors.New("invalid screening config")

// Config is the threshold set of one screening run.
type Config struct {
	Stock52WPercentileMax     float64 `json:"STOCK_52W_PERCENTILE_MAX" validate:"gt=0,lte=1"`
	PERatioMin                float64 `json:"PE_RATIO_MIN" validate:"gte=0"`
	PERatioMax                float64 `json:"PE_RATIO_MAX" validate:"gtefield=PERatioMin"`
	MarketCapMinMillions      float64 `json:"MARKET_CAP_MIN_MILLIONS" validate:"gte=0"`
	AvgVolumeUSDMinMillions   float64 `json:"AVG_VOLUME_USD_MIN_MILLIONS" validate:"gte=0"`
	TargetDTE                 int     `json:"TARGET_DTE" validate:"gt=0"`
	DTETolerance              int     `json:"DTE_TOLERANCE" validate:"gte=0"`
	PutStrikeDiscount         float64 `json:"PUT_STRIKE_DISCOUNT" validate:"gte=0,lt=1"`
	MinAnnualizedPremiumYield float64 `json:"MIN_ANNUALIZED_PREMIUM_YIELD" validate:"gte=0"`
	TargetPremiumThousands    float64 `json:"TARGET_PREMIUM_THOUSANDS" validate:"gt=0"`
	LateralTrendATRThreshold  float64 `json:"LATERAL_TREND_ATR_THRESHOLD" validate:"gte=0"`
	FreshnessDays             int     `json:"FRESHNESS_DAYS" validate:"gte=0"`
}

func DefaultConfig() Config {
	return Config{
		Stock52WPercentileMax:     0.20,
		PERatioMin:                5,
		PERatioMax:                20,
		MarketCapMinMillions:      1000,
		AvgVolumeUSDMinMillions:   10,
		TargetDTE:                 30,
		DTETolerance:              7,
		PutStrikeDiscount:         0.10,
		MinAnnualizedPremiumYield: 0.36,
		TargetPremiumThousands:    10,
		LateralTrendATRThreshold:  0.03,
		FreshnessDays:             5,
	}
}

// FromSettings converts the file/env layer into a Config.
func FromSettings(c config.ScreeningConfig) Config {
	return Config{
		Stock52WPercentileMax:     c.Stock52WPercentileMax,
		PERatioMin:                c.PERatioMin,
		PERatioMax:                c.PERatioMax,
		MarketCapMinMillions:      c.MarketCapMinMillions,
		AvgVolumeUSDMinMillions:   c.AvgVolumeUSDMinMillions,
		TargetDTE:                 c.TargetDTE,
		DTETolerance:              c.DTETolerance,
		PutStrikeDiscount:         c.PutStrikeDiscount,
		MinAnnualizedPremiumYield: c.MinAnnualizedPremiumYield,
		TargetPremiumThousands:    c.TargetPremiumThousands,
		LateralTrendATRThreshold:  c.LateralTrendATRThreshold,
		FreshnessDays:             c.FreshnessDays,
	}
}

var validate = validator.New()

func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			parts := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				parts = append(parts, fmt.Sprintf("%s failed %s", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(parts, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}

// fields binds each override name to its Config field.
func (c *Config) fields() map[string]func(float64) {
	return map[string]func(float64){
		"STOCK_52W_PERCENTILE_MAX":     func(v float64) { c.Stock52WPercentileMax = v },
		"PE_RATIO_MIN":                 func(v float64) { c.PERatioMin = v },
		"PE_RATIO_MAX":                 func(v float64) { c.PERatioMax = v },
		"MARKET_CAP_MIN_MILLIONS":      func(v float64) { c.MarketCapMinMillions = v },
		"AVG_VOLUME_USD_MIN_MILLIONS":  func(v float64) { c.AvgVolumeUSDMinMillions = v },
		"TARGET_DTE":                   func(v float64) { c.TargetDTE = int(v) },
		"DTE_TOLERANCE":                func(v float64) { c.DTETolerance = int(v) },
		"PUT_STRIKE_DISCOUNT":          func(v float64) { c.PutStrikeDiscount = v },
		"MIN_ANNUALIZED_PREMIUM_YIELD": func(v float64) { c.MinAnnualizedPremiumYield = v },
		"TARGET_PREMIUM_THOUSANDS":     func(v float64) { c.TargetPremiumThousands = v },
		"LATERAL_TREND_ATR_THRESHOLD":  func(v float64) { c.LateralTrendATRThreshold = v },
		"FRESHNESS_DAYS":               func(v float64) { c.FreshnessDays = int(v) },
	}
}

// OverrideKeys lists the accepted override names, sorted.
func OverrideKeys() []string {
	var c Config
	keys := make([]string, 0, 12)
	for k := range c.fields() {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func IsOverrideKey(key string) bool {
	var c Config
	_, ok := c.fields()[strings.ToUpper(strings.TrimSpace(key))]
	return ok
}

// WithOverrides returns a copy of c with the named values replaced. Unknown
// names are an error.
func (c Config) WithOverrides(values map[string]float64) (Config, error) {
	out := c
	setters := out.fields()
	for key, v := range values {
		set, ok := setters[strings.ToUpper(strings.TrimSpace(key))]
		if !ok {
			return c, fmt.Errorf("%w: unknown key %q", ErrInvalidConfig, key)
		}
		set(v)
	}
	return out, nil
}
