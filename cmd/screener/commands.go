package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"putscreener/internal/pipeline"
)

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd, syncCmd, metricsCmd, screenCmd, runCmd, cleanupCmd, coverageCmd)

	seedCmd.Flags().String("file", "", "read symbols from a file, one per line")
	syncCmd.Flags().Bool("force-full", false, "refetch the full history window")
	syncCmd.Flags().String("symbol", "", "sync a single ticker")
	syncCmd.Flags().Int("days", 0, "history window for --symbol (default sync.history_days)")
	metricsCmd.Flags().String("date", "", "as-of date (YYYY-MM-DD)")
	metricsCmd.Flags().String("symbol", "", "compute a single ticker")
	screenCmd.Flags().String("date", "", "screening date (YYYY-MM-DD)")
	runCmd.Flags().Bool("force-full", false, "refetch the full history window")
	runCmd.Flags().String("date", "", "as-of and screening date (YYYY-MM-DD)")
	cleanupCmd.Flags().Int("days", 0, "days to keep (default retention.days_to_keep)")
	coverageCmd.Flags().String("symbol", "", "single ticker")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := a.migrate(); err != nil {
			return err
		}
		a.logger.Info("schema migrated", zap.String("driver", a.db.Driver))
		return nil
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed [symbols...]",
	Short: "Create markets, sector ETFs and the given tickers",
	RunE: func(cmd *cobra.Command, args []string) error {
		symbols := args
		if path, _ := cmd.Flags().GetString("file"); path != "" {
			fromFile, err := readSymbols(path)
			if err != nil {
				return err
			}
			symbols = append(symbols, fromFile...)
		}
		if err := a.migrate(); err != nil {
			return err
		}
		stats, err := a.seed.Seed(cmd.Context(), symbols)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), stats)
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Fetch daily bars and refresh ticker metadata",
	RunE: func(cmd *cobra.Command, args []string) error {
		if symbol, _ := cmd.Flags().GetString("symbol"); symbol != "" {
			days, _ := cmd.Flags().GetInt("days")
			res, err := a.sync.SyncSymbol(cmd.Context(), symbol, days)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}
		forceFull, _ := cmd.Flags().GetBool("force-full")
		return report(cmd, func() (pipeline.Report, error) {
			return a.coordinator.RunSync(cmd.Context(), forceFull)
		})
	},
}

var metricsCmd = &cobra.Command{
	Use:   "metrics",
	Short: "Compute 52-week, ATR and volume metrics",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := dateFlag(cmd, "date")
		if err != nil {
			return err
		}
		if symbol, _ := cmd.Flags().GetString("symbol"); symbol != "" {
			res, err := a.metrics.ComputeSymbol(cmd.Context(), symbol, date)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), res)
		}
		return report(cmd, func() (pipeline.Report, error) {
			return a.coordinator.RunMetrics(cmd.Context(), date)
		})
	},
}

var screenCmd = &cobra.Command{
	Use:   "screen",
	Short: "Screen tickers and store put candidates",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := dateFlag(cmd, "date")
		if err != nil {
			return err
		}
		return report(cmd, func() (pipeline.Report, error) {
			return a.coordinator.RunScreen(cmd.Context(), date)
		})
	},
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run sync, metrics and screening in sequence",
	RunE: func(cmd *cobra.Command, args []string) error {
		date, err := dateFlag(cmd, "date")
		if err != nil {
			return err
		}
		forceFull, _ := cmd.Flags().GetBool("force-full")
		return report(cmd, func() (pipeline.Report, error) {
			return a.coordinator.RunAll(cmd.Context(), pipeline.Options{ForceFull: forceFull, Date: date})
		})
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete rows older than the retention window",
	RunE: func(cmd *cobra.Command, args []string) error {
		days, _ := cmd.Flags().GetInt("days")
		if days <= 0 {
			days = a.cfg.Retention.DaysToKeep
		}
		counts, err := a.retention.Cleanup(cmd.Context(), days)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), counts)
	},
}

var coverageCmd = &cobra.Command{
	Use:   "coverage",
	Short: "Report how current each ticker's price history is",
	RunE: func(cmd *cobra.Command, args []string) error {
		symbol, _ := cmd.Flags().GetString("symbol")
		rep, err := a.sync.Coverage(cmd.Context(), symbol)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), rep)
	},
}

// report prints the run report even when a stage failed, then returns the
// failure.
func report(cmd *cobra.Command, run func() (pipeline.Report, error)) error {
	rep, err := run()
	if perr := printJSON(cmd.OutOrStdout(), rep); perr != nil && err == nil {
		err = perr
	}
	return err
}

func readSymbols(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open symbols: %w", err)
	}
	defer f.Close()
	var out []string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		out = append(out, strings.Split(line, ",")...)
	}
	return out, sc.Err()
}
