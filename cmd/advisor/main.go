// Command advisor runs the trade advisory engine: the pass loop with its API,
// single passes, ticker administration, backtests and bar export.
package main

import (
	"fmt"
	"log"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"signal-advisor/config"
	"signal-advisor/internal/logger"
)

type rootFlags struct {
	logLevel     string
	dbPath       string
	strategy     string
	strategyFile string
}

var flags rootFlags

func main() {
	log.SetFlags(log.LstdFlags | log.Lmicroseconds | log.Lshortfile)

	rootCmd := &cobra.Command{
		Use:           "advisor",
		Short:         "Indicator-driven trade advisory engine",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Log level: debug|info|warn|error (overrides LOG_LEVEL)")
	rootCmd.PersistentFlags().StringVar(&flags.dbPath, "db", "", "SQLite database path (overrides SQLITE_PATH)")
	rootCmd.PersistentFlags().StringVarP(&flags.strategy, "strategy", "s", "", "Strategy: macd|rsi|fibonacci (overrides STRATEGY)")
	rootCmd.PersistentFlags().StringVar(&flags.strategyFile, "strategy-file", "", "YAML strategy parameters (overrides STRATEGY_FILE)")

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(onceCmd())
	rootCmd.AddCommand(tickersCmd())
	rootCmd.AddCommand(backtestCmd())
	rootCmd.AddCommand(exportCmd())

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the environment, applies flag overrides and initialises
// the structured logger.
func loadConfig(service string) (*config.Config, *slog.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("config: %w", err)
	}
	if flags.logLevel != "" {
		cfg.LogLevel = flags.logLevel
	}
	if flags.dbPath != "" {
		cfg.SQLitePath = flags.dbPath
	}
	if flags.strategy != "" {
		cfg.Strategy = flags.strategy
	}
	if flags.strategyFile != "" {
		cfg.StrategyFile = flags.strategyFile
	}

	level, err := logger.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, err
	}
	return cfg, logger.Init(service, level), nil
}
