package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	App       AppConfig       `mapstructure:"app"`
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	DB        DBConfig        `mapstructure:"db"`
	Cron      CronConfig      `mapstructure:"cron"`
	Provider  ProviderConfig  `mapstructure:"provider"`
	Sync      SyncConfig      `mapstructure:"sync"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Screening ScreeningConfig `mapstructure:"screening"`
	Retention RetentionConfig `mapstructure:"retention"`
}

type AppConfig struct {
	Env string `mapstructure:"env"`
}

type ServerConfig struct {
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string `mapstructure:"level"`
	Encoding          string `mapstructure:"encoding"`
	Development       bool   `mapstructure:"development"`
	Sampling          bool   `mapstructure:"sampling"`
	DisableCaller     bool   `mapstructure:"disable_caller"`
	DisableStacktrace bool   `mapstructure:"disable_stacktrace"`
}

type DBConfig struct {
	// Driver is "postgres" or "sqlite".
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
}

type CronConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Pipeline string `mapstructure:"pipeline"`
	Cleanup  string `mapstructure:"cleanup"`
}

type ProviderConfig struct {
	BaseURL      string        `mapstructure:"base_url"`
	Timeout      time.Duration `mapstructure:"timeout"`
	UserAgent    string        `mapstructure:"user_agent"`
	MaxRetry     int           `mapstructure:"max_retry"`
	RetryBackoff time.Duration `mapstructure:"retry_backoff"`
}

type SyncConfig struct {
	RateLimitPause time.Duration `mapstructure:"rate_limit_pause"`
	HistoryDays    int           `mapstructure:"history_days"`
}

type MetricsConfig struct {
	WindowDays int `mapstructure:"window_days"`
	Period     int `mapstructure:"period"`
	MinBars    int `mapstructure:"min_bars"`
	MinBars52W int `mapstructure:"min_bars_52w"`
}

// ScreeningConfig holds the default thresholds. Runtime overrides live in
// system_settings under "screening.<KEY>".
type ScreeningConfig struct {
	Stock52WPercentileMax     float64 `mapstructure:"stock_52w_percentile_max"`
	PERatioMin                float64 `mapstructure:"pe_ratio_min"`
	PERatioMax                float64 `mapstructure:"pe_ratio_max"`
	MarketCapMinMillions      float64 `mapstructure:"market_cap_min_millions"`
	AvgVolumeUSDMinMillions   float64 `mapstructure:"avg_volume_usd_min_millions"`
	TargetDTE                 int     `mapstructure:"target_dte"`
	DTETolerance              int     `mapstructure:"dte_tolerance"`
	PutStrikeDiscount         float64 `mapstructure:"put_strike_discount"`
	MinAnnualizedPremiumYield float64 `mapstructure:"min_annualized_premium_yield"`
	TargetPremiumThousands    float64 `mapstructure:"target_premium_thousands"`
	LateralTrendATRThreshold  float64 `mapstructure:"lateral_trend_atr_threshold"`
	FreshnessDays             int     `mapstructure:"freshness_days"`
}

type RetentionConfig struct {
	DaysToKeep int `mapstructure:"days_to_keep"`
}

func Load(path string, envOnly bool) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, err
	}

	v := viper.New()
	v.SetEnvPrefix("PS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	v.SetDefault("app.env", "dev")
	v.SetDefault("server.http_addr", ":8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("db.driver", "postgres")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 10)
	v.SetDefault("db.max_idle_conns", 5)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.pipeline", "0 30 18 * * 1-5")
	v.SetDefault("cron.cleanup", "0 0 3 * * *")

	v.SetDefault("provider.base_url", "https://query2.finance.yahoo.com")
	v.SetDefault("provider.timeout", "15s")
	v.SetDefault("provider.user_agent", "Mozilla/5.0 (compatible; putscreener/1.0)")
	v.SetDefault("provider.max_retry", 2)
	v.SetDefault("provider.retry_backoff", "500ms")

	v.SetDefault("sync.rate_limit_pause", "100ms")
	v.SetDefault("sync.history_days", 365)

	v.SetDefault("metrics.window_days", 365)
	v.SetDefault("metrics.period", 20)
	v.SetDefault("metrics.min_bars", 20)
	v.SetDefault("metrics.min_bars_52w", 50)

	v.SetDefault("screening.stock_52w_percentile_max", 0.20)
	v.SetDefault("screening.pe_ratio_min", 5)
	v.SetDefault("screening.pe_ratio_max", 20)
	v.SetDefault("screening.market_cap_min_millions", 1000)
	v.SetDefault("screening.avg_volume_usd_min_millions", 10)
	v.SetDefault("screening.target_dte", 30)
	v.SetDefault("screening.dte_tolerance", 7)
	v.SetDefault("screening.put_strike_discount", 0.10)
	v.SetDefault("screening.min_annualized_premium_yield", 0.36)
	v.SetDefault("screening.target_premium_thousands", 10)
	v.SetDefault("screening.lateral_trend_atr_threshold", 0.03)
	v.SetDefault("screening.freshness_days", 5)

	v.SetDefault("retention.days_to_keep", 90)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
