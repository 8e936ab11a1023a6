package main

import (
	"context"
	"fmt"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"signal-advisor/config"
	"signal-advisor/internal/backtest"
	"signal-advisor/internal/ledger"
	"signal-advisor/internal/marketdata"
	"signal-advisor/internal/marketdata/replay"
	"signal-advisor/internal/model"
	"signal-advisor/internal/store"
)

func backtestCmd() *cobra.Command {
	var (
		source   string
		dir      string
		symbols  []string
		since    string
		slipBps  int64
		showFill bool
	)
	cmd := &cobra.Command{
		Use:   "backtest",
		Short: "Replay archived bars through the strategy and ledger",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadConfig("advisor-backtest")
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			var sinceT time.Time
			if since != "" {
				if sinceT, err = time.Parse("2006-01-02", since); err != nil {
					return fmt.Errorf("--since: %w", err)
				}
			}

			var archive model.BarArchive
			var available []string
			switch strings.ToLower(source) {
			case "sqlite":
				st, err := openStore(cfg, lg)
				if err != nil {
					return err
				}
				defer st.Close()
				archive = st
				if available, err = st.ArchivedSymbols(ctx); err != nil {
					return err
				}
			case "parquet":
				if dir == "" {
					dir = cfg.ParquetDir
				}
				pa := &marketdata.ParquetArchive{Dir: dir}
				archive = pa
				if available, err = pa.Symbols(); err != nil {
					return err
				}
			default:
				return fmt.Errorf("unknown --source %q (sqlite|parquet)", source)
			}

			if len(symbols) == 0 {
				symbols = available
			}
			for i := range symbols {
				symbols[i] = store.NormalizeSymbol(symbols[i])
			}
			if len(symbols) == 0 {
				return fmt.Errorf("no archived bars found in %s", source)
			}

			strategyCfg, err := config.LoadStrategy(cfg.StrategyFile, cfg.Strategy)
			if err != nil {
				return fmt.Errorf("strategy config: %w", err)
			}
			rp, err := replay.Load(ctx, archive, symbols, sinceT, lg)
			if err != nil {
				return err
			}

			res, err := backtest.Run(ctx, rp, symbols, backtest.Config{
				Strategy:    strategyCfg,
				Ledger:      ledger.Config{TargetMultiplier: cfg.LedgerTargetMultiplier},
				SlippageBps: slipBps,
			}, lg)
			if err != nil {
				return err
			}

			printResult(cmd, res, symbols, showFill)
			return nil
		},
	}
	cmd.Flags().StringVar(&source, "source", "sqlite", "Bar archive: sqlite|parquet")
	cmd.Flags().StringVar(&dir, "dir", "", "Parquet directory (defaults to PARQUET_DIR)")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Symbols to replay (defaults to every archived symbol)")
	cmd.Flags().StringVar(&since, "since", "", "Only replay bars on or after this date (YYYY-MM-DD)")
	cmd.Flags().Int64Var(&slipBps, "slippage-bps", 0, "Paper fill slippage in basis points")
	cmd.Flags().BoolVar(&showFill, "fills", false, "Print every paper fill")
	return cmd
}

func printResult(cmd *cobra.Command, res backtest.Result, symbols []string, showFills bool) {
	out := cmd.OutOrStdout()
	if showFills {
		for _, f := range res.Fills {
			fmt.Fprintf(out, "  [%s] %s %s x%d @ %.2f (slippage %.4f)\n",
				f.FilledAt.Format("2006-01-02"), f.Order.Type, f.Order.Symbol,
				f.FillQty, f.FillPrice, f.Slippage)
		}
	}

	winRate := 0.0
	if res.Summary.Closed > 0 {
		winRate = float64(res.Summary.Wins) / float64(res.Summary.Closed) * 100
	}

	fmt.Fprintln(out, "╔══════════════════════════════════════╗")
	fmt.Fprintln(out, "║        BACKTEST COMPLETE             ║")
	fmt.Fprintln(out, "╠══════════════════════════════════════╣")
	fmt.Fprintf(out, "║  Strategy:          %-16s ║\n", res.Strategy)
	fmt.Fprintf(out, "║  Symbols:           %-16d ║\n", len(symbols))
	fmt.Fprintf(out, "║  Sessions:          %-16d ║\n", res.Sessions)
	fmt.Fprintf(out, "║  Failed passes:     %-16d ║\n", res.FailedPasses)
	fmt.Fprintf(out, "║  Orders:            %-16d ║\n", len(res.Orders))
	fmt.Fprintf(out, "║  Fills:             %-16d ║\n", len(res.Fills))
	fmt.Fprintf(out, "║  Open positions:    %-16d ║\n", res.Summary.Open)
	fmt.Fprintf(out, "║  Closed positions:  %-16d ║\n", res.Summary.Closed)
	fmt.Fprintf(out, "║  Win rate:          %-15.1f%% ║\n", winRate)
	fmt.Fprintf(out, "║  Realized PnL:      %-16.2f ║\n", res.Summary.RealizedPnL)
	fmt.Fprintf(out, "║  Unrealized PnL:    %-16.2f ║\n", res.UnrealizedPnL)
	fmt.Fprintln(out, "╚══════════════════════════════════════╝")
}

func exportCmd() *cobra.Command {
	var (
		out     string
		symbols []string
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Copy archived SQLite bars into per-symbol Parquet files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadConfig("advisor-cli")
			if err != nil {
				return err
			}
			if out == "" {
				out = cfg.ParquetDir
			}
			ctx := context.Background()

			st, err := openStore(cfg, lg)
			if err != nil {
				return err
			}
			defer st.Close()

			if len(symbols) == 0 {
				if symbols, err = st.ArchivedSymbols(ctx); err != nil {
					return err
				}
			}

			dst := &marketdata.ParquetArchive{Dir: out}
			for _, sym := range symbols {
				sym = store.NormalizeSymbol(sym)
				bars, err := st.ReadBars(ctx, sym, time.Time{})
				if err != nil {
					return fmt.Errorf("read %s: %w", sym, err)
				}
				if len(bars) == 0 {
					fmt.Fprintf(cmd.OutOrStdout(), "%-12s no bars, skipped\n", sym)
					continue
				}
				if err := dst.SaveBars(ctx, sym, bars); err != nil {
					return fmt.Errorf("export %s: %w", sym, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%-12s %d bars -> %s\n",
					sym, len(bars), filepath.Join(out, sym+".parquet"))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "out", "o", "", "Output directory (defaults to PARQUET_DIR)")
	cmd.Flags().StringSliceVar(&symbols, "symbols", nil, "Symbols to export (defaults to every archived symbol)")
	return cmd
}
