package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

func tickersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "tickers",
		Short: "Manage the watched tickers",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List registered tickers",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadConfig("advisor-cli")
			if err != nil {
				return err
			}
			st, err := openStore(cfg, lg)
			if err != nil {
				return err
			}
			defer st.Close()

			tickers, err := st.ListTickers(context.Background())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(tickers) == 0 {
				fmt.Fprintln(out, "No tickers registered.")
				return nil
			}
			for _, t := range tickers {
				last := "never"
				if t.LastProcessed != nil {
					last = t.LastProcessed.Format("2006-01-02 15:04")
				}
				fmt.Fprintf(out, "%-4d %-12s last processed: %s\n", t.ID, t.Symbol, last)
			}
			return nil
		},
	}

	addCmd := &cobra.Command{
		Use:   "add <symbol>...",
		Short: "Register tickers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadConfig("advisor-cli")
			if err != nil {
				return err
			}
			st, err := openStore(cfg, lg)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, sym := range args {
				t, err := st.AddTicker(context.Background(), sym)
				if err != nil {
					return fmt.Errorf("add %s: %w", sym, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Added %s (id %d)\n", t.Symbol, t.ID)
			}
			return nil
		},
	}

	removeCmd := &cobra.Command{
		Use:   "remove <symbol>...",
		Short: "Unregister tickers",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadConfig("advisor-cli")
			if err != nil {
				return err
			}
			st, err := openStore(cfg, lg)
			if err != nil {
				return err
			}
			defer st.Close()

			for _, sym := range args {
				if err := st.RemoveTicker(context.Background(), sym); err != nil {
					return fmt.Errorf("remove %s: %w", sym, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", sym)
			}
			return nil
		},
	}

	cmd.AddCommand(listCmd)
	cmd.AddCommand(addCmd)
	cmd.AddCommand(removeCmd)
	return cmd
}
