package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"putscreener/internal/client/yahoo"
	"putscreener/internal/config"
	"putscreener/internal/db"
	"putscreener/internal/logger"
	"putscreener/internal/metrics"
	"putscreener/internal/pipeline"
	"putscreener/internal/pricesync"
	gormrepository "putscreener/internal/repository/gorm"
	"putscreener/internal/screener"
	"putscreener/internal/service"

	_ "putscreener/docs"
)

// app is the process wiring shared by every subcommand.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	db     *db.DB
	store  *gormrepository.Store

	settings    *service.SystemSettingsService
	sync        *pricesync.Synchronizer
	metrics     *metrics.Engine
	screener    *screener.Engine
	coordinator *pipeline.Coordinator
	retention   *service.RetentionService
	seed        *service.SeedService
}

var a = &app{}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		stop()
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "screener",
	Short:         "Daily cash-secured put screener",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfgPath, _ := cmd.Flags().GetString("config")
		if cfgPath == "" {
			cfgPath = os.Getenv("PS_CONFIG")
		}
		if cfgPath == "" {
			cfgPath = "config/config.yaml"
		}
		envOnly := false
		if envOnlyRaw := os.Getenv("PS_ENV_ONLY"); envOnlyRaw != "" {
			envOnly = strings.EqualFold(envOnlyRaw, "true") || envOnlyRaw == "1"
		}
		return a.open(cfgPath, envOnly)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		a.close()
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (default: $PS_CONFIG or config/config.yaml)")
}

func (a *app) open(cfgPath string, envOnly bool) error {
	cfg, err := config.Load(cfgPath, envOnly)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := logger.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	conn, err := db.Open(cfg.DB)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	if err := db.SetTimezone(conn, cfg.DB.Timezone); err != nil {
		log.Warn("failed to set timezone", zap.Error(err))
	}

	a.cfg, a.logger, a.db = cfg, log, conn
	a.store = gormrepository.New(conn.Gorm)
	a.wire()
	return nil
}

func (a *app) wire() {
	cfg := a.cfg
	httpClient := &http.Client{Timeout: cfg.Provider.Timeout}
	provider := yahoo.NewClient(httpClient, cfg.Provider.BaseURL,
		yahoo.WithUserAgent(cfg.Provider.UserAgent),
		yahoo.WithRetry(cfg.Provider.MaxRetry, cfg.Provider.RetryBackoff),
	)

	a.settings = &service.SystemSettingsService{Repo: a.store, Defaults: screener.FromSettings(cfg.Screening)}
	a.sync = pricesync.New(a.store, provider, a.logger, pricesync.Config{
		HistoryDays:    cfg.Sync.HistoryDays,
		RateLimitPause: cfg.Sync.RateLimitPause,
	})
	a.metrics = &metrics.Engine{
		Store:  a.store,
		Logger: a.logger,
		Config: metrics.Config{
			WindowDays: cfg.Metrics.WindowDays,
			Period:     cfg.Metrics.Period,
			MinBars:    cfg.Metrics.MinBars,
			MinBars52W: cfg.Metrics.MinBars52W,
		},
	}
	a.screener = &screener.Engine{
		Store:   a.store,
		Options: provider,
		Logger:  a.logger,
		Config:  a.settings.Defaults,
		Source:  a.settings,
	}
	a.coordinator = &pipeline.Coordinator{
		Sync:     a.sync,
		Metrics:  a.metrics,
		Screener: a.screener,
		Logger:   a.logger,
	}
	a.retention = &service.RetentionService{Store: a.store, Logger: a.logger}
	a.seed = &service.SeedService{Store: a.store, Logger: a.logger}
}

func (a *app) migrate() error {
	if err := db.AutoMigrate(a.db); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}
	return nil
}

func (a *app) close() {
	if a.logger != nil {
		_ = a.logger.Sync()
	}
	_ = db.Close(a.db)
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func dateFlag(cmd *cobra.Command, name string) (*time.Time, error) {
	raw, _ := cmd.Flags().GetString(name)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(time.DateOnly, raw, time.UTC)
	if err != nil {
		return nil, fmt.Errorf("--%s: want YYYY-MM-DD: %w", name, err)
	}
	return &d, nil
}
