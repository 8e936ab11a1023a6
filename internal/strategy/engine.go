// Package strategy turns per-ticker bar history into trade orders.
//
// Every variant shares one pass runner: gate the ticker on its latest bar,
// evaluate exit rules on its open positions, then layer the variant's own
// entry/exit overlay. A pass is a pure computation over in-memory snapshots;
// it performs no I/O and never mutates its inputs. Tickers the pass acted on
// are returned as staged copies carrying the advanced timestamp.
package strategy

import (
	"fmt"
	"log/slog"

	"signal-advisor/internal/model"
)

// Snapshot is one ticker together with the bars fetched for it this pass.
type Snapshot struct {
	Ticker model.Ticker
	Bars   []model.Bar
}

// SkipReason explains why a ticker produced no overlay this pass.
type SkipReason string

const (
	// SkipNoData: the fetch returned no bars.
	SkipNoData SkipReason = "no_data"
	// SkipUnchanged: the latest bar is not newer than LastProcessed.
	SkipUnchanged SkipReason = "unchanged"
	// SkipShortWindow: too few bars for the variant's indicator. Exit rules
	// still ran; the timestamp is not advanced.
	SkipShortWindow SkipReason = "short_window"
	// SkipFault: evaluation panicked. The ticker's orders are discarded.
	SkipFault SkipReason = "fault"
)

// Pass is the result of one GenerateOrders call.
type Pass struct {
	Orders []model.Order

	// Advanced holds copies of the tickers that were fully processed, with
	// LastProcessed moved to their latest bar time. The caller persists them.
	Advanced []model.Ticker

	// Skipped maps symbol to the reason it was not fully processed.
	Skipped map[string]SkipReason
}

func (p *Pass) skip(symbol string, reason SkipReason) {
	if p.Skipped == nil {
		p.Skipped = make(map[string]SkipReason)
	}
	p.Skipped[symbol] = reason
}

// Strategy is the interface that all strategy variants implement.
type Strategy interface {
	// Name returns the unique name of the strategy.
	Name() string

	// GenerateOrders evaluates every snapshot against the open-position
	// book as it stood before the pass.
	GenerateOrders(snaps []Snapshot, open []model.Position) Pass
}

// New builds the variant selected by cfg.Kind.
func New(cfg Config, log *slog.Logger) (Strategy, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("strategy: %w", err)
	}
	if log == nil {
		log = slog.Default()
	}
	r := runner{cfg: cfg, log: log.With(slog.String("strategy", string(cfg.Kind)))}

	switch cfg.Kind {
	case KindMACD:
		return &MACDCrossover{runner: r}, nil
	case KindRSI:
		return &RSIThreshold{runner: r}, nil
	case KindFibonacci:
		return &FibonacciBand{runner: r}, nil
	}
	return nil, fmt.Errorf("strategy: unknown kind %q", cfg.Kind)
}

// tickerInput is what an overlay sees for one gated ticker.
type tickerInput struct {
	symbol string
	bars   []model.Bar
	latest model.Bar

	// held are the ticker's open positions that the exit rules did not
	// already sell this pass.
	held []model.Position
}

// overlay produces a variant's additional orders. ok=false means the bar
// window is too short for the variant's indicator.
type overlay func(in tickerInput) (orders []model.Order, ok bool)

// runner is the pass loop shared by all variants.
type runner struct {
	cfg Config
	log *slog.Logger
}

func (r runner) run(snaps []Snapshot, open []model.Position, fn overlay) Pass {
	var pass Pass

	for _, snap := range snaps {
		symbol := snap.Ticker.Symbol
		latest, ok := model.Latest(snap.Bars)
		if !ok {
			pass.skip(symbol, SkipNoData)
			continue
		}
		if !ShouldProcess(snap.Ticker, latest.Time) {
			pass.skip(symbol, SkipUnchanged)
			continue
		}

		orders, reason := r.evaluate(snap, latest, open, fn)
		pass.Orders = append(pass.Orders, orders...)
		if reason != "" {
			pass.skip(symbol, reason)
			continue
		}
		pass.Advanced = append(pass.Advanced, snap.Ticker.WithLastProcessed(latest.Time))
	}
	return pass
}

// evaluate runs exits and the overlay for one ticker. A panic is contained
// to this ticker: its orders are dropped and SkipFault is reported.
func (r runner) evaluate(snap Snapshot, latest model.Bar, open []model.Position, fn overlay) (orders []model.Order, reason SkipReason) {
	symbol := snap.Ticker.Symbol
	defer func() {
		if rec := recover(); rec != nil {
			r.log.Error("ticker evaluation panicked",
				slog.String("symbol", symbol),
				slog.Any("panic", rec),
			)
			orders, reason = nil, SkipFault
		}
	}()

	orders = EvaluateExits(symbol, latest, open, r.cfg)

	sold := make(map[int64]bool)
	for _, o := range orders {
		if o.Type == model.OrderSell && o.PositionID != nil {
			sold[*o.PositionID] = true
		}
	}
	var held []model.Position
	for _, p := range open {
		if p.Open && p.Symbol == symbol && !sold[p.ID] {
			held = append(held, p)
		}
	}

	extra, ok := fn(tickerInput{symbol: symbol, bars: snap.Bars, latest: latest, held: held})
	if !ok {
		r.log.Debug("indicator window too short",
			slog.String("symbol", symbol),
			slog.Int("bars", len(snap.Bars)),
		)
		return orders, SkipShortWindow
	}
	return append(orders, extra...), ""
}

// window returns the newest n bars, or all of them when n <= 0.
func window(bars []model.Bar, n int) []model.Bar {
	if n <= 0 || len(bars) <= n {
		return bars
	}
	return bars[len(bars)-n:]
}

// sellAll closes every held position at the latest close.
func sellAll(in tickerInput, cfg Config, notes string) []model.Order {
	orders := make([]model.Order, 0, len(in.held))
	for _, p := range in.held {
		orders = append(orders, model.Order{
			Symbol:      in.symbol,
			Type:        model.OrderSell,
			Price:       in.latest.Close,
			TargetPrice: in.latest.Close * cfg.TargetMultiplier,
			Quantity:    p.Quantity,
			IsExit:      true,
			PositionID:  model.PositionRef(p.ID),
			Notes:       notes,
		})
	}
	return orders
}

// entry builds a new-position BUY at the latest close. The position link
// is left unset until the ledger opens the position.
func entry(in tickerInput, cfg Config, qty int64, notes string) model.Order {
	price := in.latest.Close
	return model.Order{
		Symbol:      in.symbol,
		Type:        model.OrderBuy,
		Price:       price,
		StopLoss:    price * cfg.EntryStopFactor,
		TargetPrice: price * cfg.TargetMultiplier,
		Quantity:    qty,
		Notes:       notes,
	}
}
