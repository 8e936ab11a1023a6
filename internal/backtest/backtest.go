// Package backtest replays archived bars through the live advisor pipeline
// with an in-memory store and a paper broker.
package backtest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"

	"signal-advisor/internal/advisor"
	"signal-advisor/internal/execution"
	"signal-advisor/internal/ledger"
	"signal-advisor/internal/marketdata/replay"
	"signal-advisor/internal/model"
	"signal-advisor/internal/store"
	"signal-advisor/internal/store/memory"
	"signal-advisor/internal/strategy"
)

// Config describes one backtest run.
type Config struct {
	Strategy    strategy.Config
	Ledger      ledger.Config
	SlippageBps int64
}

// Result summarises a finished run.
type Result struct {
	Strategy      string
	Sessions      int
	Passes        int
	FailedPasses  int
	Orders        []model.Order
	Positions     []model.Position
	Fills         []execution.Fill
	Summary       store.Summary
	UnrealizedPnL float64
}

// Run registers symbols, then steps rp one session at a time and runs a
// full advisor pass per session. Fills are timestamped with the replay clock.
func Run(ctx context.Context, rp *replay.Replayer, symbols []string, cfg Config, log *slog.Logger) (Result, error) {
	if log == nil {
		log = slog.Default()
	}
	strat, err := strategy.New(cfg.Strategy, log)
	if err != nil {
		return Result{}, err
	}

	st := memory.New()
	for _, sym := range symbols {
		if _, err := st.AddTicker(ctx, sym); err != nil {
			return Result{}, fmt.Errorf("backtest: register %s: %w", sym, err)
		}
	}

	paper := execution.NewPaperBroker(cfg.SlippageBps, log, execution.WithClock(rp.Now))
	svcCfg := advisor.DefaultConfig()
	if cfg.Ledger.TargetMultiplier > 0 {
		svcCfg.Ledger = cfg.Ledger
	}
	// Per-pass logs are discarded; failed passes are counted below.
	svc := advisor.New(st, rp, strat, svcCfg, slog.New(slog.NewTextHandler(io.Discard, nil)),
		advisor.WithBroker(paper),
		advisor.WithClock(rp.Now))

	res := Result{Strategy: strat.Name(), Sessions: rp.Sessions()}
	for rp.Step() {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		res.Passes++
		if _, err := svc.RunPass(ctx); err != nil {
			res.FailedPasses++
			log.Warn("backtest pass failed", slog.Time("at", rp.Now()), slog.Any("err", err))
		}
	}

	if res.Orders, err = st.ListOrders(ctx, 0); err != nil {
		return res, err
	}
	sort.Slice(res.Orders, func(i, j int) bool { return res.Orders[i].ID < res.Orders[j].ID })
	if res.Positions, err = st.ListPositions(ctx, false); err != nil {
		return res, err
	}
	res.Fills = paper.GetFills()
	res.Summary = store.Summarize(res.Positions)

	last := rp.Last()
	for i := range res.Positions {
		p := &res.Positions[i]
		res.UnrealizedPnL += p.UnrealizedPnL(last[p.Symbol])
	}
	return res, nil
}
