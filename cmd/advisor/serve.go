package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"signal-advisor/internal/api"
	"signal-advisor/internal/metrics"
	"signal-advisor/internal/model"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the pass loop with the HTTP API and metrics server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadConfig("advisor")
			if err != nil {
				return err
			}
			log.Println("[advisor] starting...")

			prom := metrics.NewMetrics(prometheus.DefaultRegisterer)
			health := metrics.NewHealthStatus()
			metricsSrv := metrics.NewServer(cfg.MetricsAddr, health, prometheus.DefaultGatherer, lg)
			metricsSrv.Start()

			hub := api.NewHub(500, lg)
			c, err := buildComponents(cfg, lg, prom, health, model.OrderSink(hub))
			if err != nil {
				return err
			}
			defer c.Close()

			gin.SetMode(gin.ReleaseMode)
			apiSrv := api.NewServer(c.store, hub, api.Options{
				RateLimit: cfg.APIRateLimit,
				Health:    health,
			}, lg)
			apiSrv.Start(cfg.APIAddr)

			// ---- Setup context for graceful shutdown ----
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				log.Printf("[advisor] received %v, shutting down...", sig)
				cancel()
			}()

			// ---- Periodic liveness checks ----
			var rdb *goredis.Client
			if c.publisher != nil {
				rdb = c.publisher.Client()
			}
			health.StartLivenessChecker(ctx, rdb, c.store.DB(), 10*time.Second)

			runErr := c.svc.Run(ctx)

			shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer shutdownCancel()
			apiSrv.Stop(shutdownCtx)
			metricsSrv.Stop(shutdownCtx)

			if runErr != nil {
				return fmt.Errorf("advisor loop: %w", runErr)
			}
			log.Println("[advisor] shutdown complete")
			return nil
		},
	}
}

func onceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "once",
		Short: "Run a single pass and print what it committed",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, lg, err := loadConfig("advisor")
			if err != nil {
				return err
			}
			c, err := buildComponents(cfg, lg, nil, nil)
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rep, err := c.svc.RunPass(ctx)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "pass %s: %d tickers, %d orders, %d advanced, %d skipped\n",
				rep.PassID, rep.Tickers, len(rep.Orders), len(rep.Advanced), len(rep.Skipped))
			for _, o := range rep.Orders {
				ref := "-"
				if o.PositionID != nil {
					ref = fmt.Sprint(*o.PositionID)
				}
				fmt.Fprintf(out, "  #%d %-6s %-10s qty=%-6d price=%.2f stop=%.2f position=%s  %s\n",
					o.ID, o.Type, o.Symbol, o.Quantity, o.Price, o.StopLoss, ref, o.Notes)
			}
			for sym, reason := range rep.Skipped {
				fmt.Fprintf(out, "  skipped %s: %s\n", sym, reason)
			}
			for _, w := range rep.Warnings {
				fmt.Fprintf(out, "  warning: %s\n", w)
			}
			return nil
		},
	}
}
