package advisor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"signal-advisor/internal/execution"
	"signal-advisor/internal/ledger"
	"signal-advisor/internal/markethours"
	"signal-advisor/internal/marketdata"
	"signal-advisor/internal/metrics"
	"signal-advisor/internal/model"
	"signal-advisor/internal/notification"
	"signal-advisor/internal/store/memory"
	"signal-advisor/internal/strategy"
)

func quietLog() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

var t0 = time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC)

type sinkSpy struct {
	mu      sync.Mutex
	batches [][]model.Order
}

func (s *sinkSpy) PublishOrders(_ context.Context, orders []model.Order) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, orders)
	return nil
}

type notifySpy struct {
	alerts []notification.Alert
	err    error
}

func (n *notifySpy) Send(_ context.Context, a notification.Alert) error {
	n.alerts = append(n.alerts, a)
	return n.err
}

type failingBroker struct{ calls int }

func (b *failingBroker) Name() string { return "failing" }
func (b *failingBroker) Submit(context.Context, model.Order) (execution.Ack, error) {
	b.calls++
	return execution.Ack{}, errors.New("broker down")
}

// scripted is a Strategy whose pass is supplied by the test.
type scripted struct {
	fn    func(snaps []strategy.Snapshot, open []model.Position) strategy.Pass
	calls int
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) GenerateOrders(snaps []strategy.Snapshot, open []model.Position) strategy.Pass {
	s.calls++
	return s.fn(snaps, open)
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatal(err)
	}
	var total float64
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			match := label == ""
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					match = true
				}
			}
			if match {
				total += m.GetCounter().GetValue()
			}
		}
	}
	return total
}

// ───────────────────────────────────────────────────────────
// Full pass with a real strategy
// ───────────────────────────────────────────────────────────

func TestRunPass_StopLossClosesPosition(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	if _, err := st.AddTicker(ctx, "ABC"); err != nil {
		t.Fatal(err)
	}
	seed := ledger.NewPlan([]model.Order{{Symbol: "ABC", Type: model.OrderBuy, Price: 100, StopLoss: 98, Quantity: 10}},
		nil, ledger.DefaultConfig(), t0)
	if _, err := st.Commit(ctx, nil, seed); err != nil {
		t.Fatal(err)
	}

	src := marketdata.Static{"ABC": {
		{Time: t0.AddDate(0, 0, 1), Close: 101},
		{Time: t0.AddDate(0, 0, 2), Close: 99},
		{Time: t0.AddDate(0, 0, 3), Close: 90},
	}}
	strat, err := strategy.New(strategy.DefaultConfig(strategy.KindRSI), quietLog())
	if err != nil {
		t.Fatal(err)
	}

	reg := prometheus.NewRegistry()
	paper := execution.NewPaperBroker(0, quietLog())
	sink := &sinkSpy{}
	notes := &notifySpy{}
	svc := New(st, src, strat, DefaultConfig(), quietLog(),
		WithBroker(paper), WithSinks(sink), WithNotifier(notes),
		WithMetrics(metrics.NewMetrics(reg)),
		WithClock(func() time.Time { return t0.AddDate(0, 0, 3) }))

	rep, err := svc.RunPass(ctx)
	if err != nil {
		t.Fatalf("RunPass: %v", err)
	}

	// Close 90 < stop 98 → one SELL against position 1. RSI has 3 bars,
	// far short of its period, so the ticker is skipped and not advanced.
	if len(rep.Orders) != 1 {
		t.Fatalf("orders = %+v", rep.Orders)
	}
	sell := rep.Orders[0]
	if sell.Type != model.OrderSell || sell.PositionID == nil || *sell.PositionID != 1 || sell.Price != 90 {
		t.Errorf("sell = %+v", sell)
	}
	if rep.Skipped["ABC"] != strategy.SkipShortWindow || len(rep.Advanced) != 0 {
		t.Errorf("skipped=%v advanced=%v", rep.Skipped, rep.Advanced)
	}

	positions, _ := st.ListPositions(ctx, false)
	if len(positions) != 1 || positions[0].Open || positions[0].ClosePrice != 90 {
		t.Errorf("positions = %+v", positions)
	}
	tickers, _ := st.ListTickers(ctx)
	if tickers[0].LastProcessed != nil {
		t.Errorf("short-window ticker advanced to %v", tickers[0].LastProcessed)
	}

	if fills := paper.GetFills(); len(fills) != 1 || fills[0].FillPrice != 90 {
		t.Errorf("fills = %+v", fills)
	}
	if len(sink.batches) != 1 || len(sink.batches[0]) != 1 {
		t.Errorf("sink batches = %+v", sink.batches)
	}
	if len(notes.alerts) != 1 || !strings.Contains(notes.alerts[0].Message, "Trade Advised: SELL") {
		t.Errorf("alerts = %+v", notes.alerts)
	}
	if v := counterValue(t, reg, "advisor_orders_total", "SELL"); v != 1 {
		t.Errorf("SELL counter = %v", v)
	}
	if v := counterValue(t, reg, "advisor_tickers_skipped_total", "short_window"); v != 1 {
		t.Errorf("skip counter = %v", v)
	}

	// Same bars again: the position is closed, nothing left to do.
	rep, err = svc.RunPass(ctx)
	if err != nil || len(rep.Orders) != 0 {
		t.Errorf("second pass: orders=%v err=%v", rep.Orders, err)
	}
	if len(notes.alerts) != 1 {
		t.Errorf("empty pass should not notify")
	}
}

// ───────────────────────────────────────────────────────────
// Ledger outcomes and best-effort fan-out
// ───────────────────────────────────────────────────────────

func TestRunPass_OpensLinksAndWarns(t *testing.T) {
	ctx := context.Background()
	st := memory.New()
	st.AddTicker(ctx, "XYZ")

	latest := t0.AddDate(0, 0, 5)
	strat := &scripted{fn: func(snaps []strategy.Snapshot, open []model.Position) strategy.Pass {
		if len(snaps) != 1 || len(snaps[0].Bars) != 1 {
			t.Errorf("snaps = %+v", snaps)
		}
		return strategy.Pass{
			Orders: []model.Order{
				{Symbol: "XYZ", Type: model.OrderBuy, Price: 50, StopLoss: 49, Quantity: 4},
				{Symbol: "XYZ", Type: model.OrderSell, Price: 50, Quantity: 1, PositionID: model.PositionRef(999)},
			},
			Advanced: []model.Ticker{snaps[0].Ticker.WithLastProcessed(latest)},
		}
	}}

	reg := prometheus.NewRegistry()
	broker := &failingBroker{}
	notes := &notifySpy{err: errors.New("smtp down")}
	svc := New(st, marketdata.Static{"XYZ": {{Time: latest, Close: 50}}}, strat, DefaultConfig(), quietLog(),
		WithBroker(broker), WithNotifier(notes), WithMetrics(metrics.NewMetrics(reg)),
		WithClock(func() time.Time { return latest }))

	rep, err := svc.RunPass(ctx)
	if err != nil {
		t.Fatalf("broker and notifier failures must not fail the pass: %v", err)
	}
	if len(rep.Orders) != 2 || len(rep.Warnings) != 1 {
		t.Fatalf("orders=%d warnings=%d", len(rep.Orders), len(rep.Warnings))
	}
	if rep.Counts[ledger.KindOpen] != 1 || rep.Counts[ledger.KindUnresolved] != 1 {
		t.Errorf("counts = %v", rep.Counts)
	}
	if rep.BrokerFailures != 2 || broker.calls != 2 {
		t.Errorf("broker failures = %d calls = %d", rep.BrokerFailures, broker.calls)
	}

	open, _ := st.OpenPositions(ctx)
	if len(open) != 1 || open[0].TargetPrice != 60 || open[0].Quantity != 4 {
		t.Errorf("open = %+v", open)
	}
	if rep.Orders[0].PositionID == nil || *rep.Orders[0].PositionID != open[0].ID {
		t.Errorf("buy not linked: %+v", rep.Orders[0])
	}

	tickers, _ := st.ListTickers(ctx)
	if tickers[0].LastProcessed == nil || !tickers[0].LastProcessed.Equal(latest) {
		t.Errorf("ticker not advanced: %+v", tickers[0])
	}

	if v := counterValue(t, reg, "advisor_unresolved_orders_total", ""); v != 1 {
		t.Errorf("unresolved = %v", v)
	}
	if v := counterValue(t, reg, "advisor_notify_failures_total", ""); v != 1 {
		t.Errorf("notify failures = %v", v)
	}
	if v := counterValue(t, reg, "advisor_broker_failures_total", ""); v != 2 {
		t.Errorf("broker failures = %v", v)
	}
}

type brokenStore struct{ *memory.Store }

func (brokenStore) ListTickers(context.Context) ([]model.Ticker, error) {
	return nil, errors.New("disk on fire")
}

func TestRunPass_StoreFailure(t *testing.T) {
	strat := &scripted{fn: func([]strategy.Snapshot, []model.Position) strategy.Pass { return strategy.Pass{} }}
	reg := prometheus.NewRegistry()
	health := metrics.NewHealthStatus()
	svc := New(brokenStore{memory.New()}, marketdata.Static{}, strat, DefaultConfig(), quietLog(),
		WithMetrics(metrics.NewMetrics(reg)), WithHealth(health))

	if _, err := svc.RunPass(context.Background()); err == nil || !strings.Contains(err.Error(), "disk on fire") {
		t.Fatalf("err = %v", err)
	}
	if strat.calls != 0 {
		t.Error("strategy ran despite store failure")
	}
	if v := counterValue(t, reg, "advisor_passes_total", "error"); v != 1 {
		t.Errorf("error passes = %v", v)
	}
	if health.LastPassError == "" {
		t.Error("health did not record the failure")
	}
}

// ───────────────────────────────────────────────────────────
// Loop
// ───────────────────────────────────────────────────────────

func TestRun_StopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	st := memory.New()
	st.AddTicker(ctx, "ABC")

	strat := &scripted{fn: func([]strategy.Snapshot, []model.Position) strategy.Pass {
		cancel()
		return strategy.Pass{}
	}}
	cfg := DefaultConfig()
	cfg.Interval = time.Hour
	svc := New(st, marketdata.Static{}, strat, cfg, quietLog())

	done := make(chan error, 1)
	go func() { done <- svc.Run(ctx) }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not stop after cancel")
	}
	if strat.calls != 1 {
		t.Errorf("passes = %d, want 1", strat.calls)
	}
}

func TestRun_SleepsWhileMarketClosed(t *testing.T) {
	session := markethours.NSE()
	saturday := time.Date(2026, 1, 24, 11, 0, 0, 0, markethours.IST)

	strat := &scripted{fn: func([]strategy.Snapshot, []model.Position) strategy.Pass { return strategy.Pass{} }}
	cfg := DefaultConfig()
	cfg.Session = &session
	health := metrics.NewHealthStatus()
	health.SetMarketOpen(true)
	svc := New(memory.New(), marketdata.Static{}, strat, cfg, quietLog(),
		WithHealth(health), WithClock(func() time.Time { return saturday }))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := svc.Run(ctx); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strat.calls != 0 {
		t.Errorf("strategy ran %d times on a Saturday", strat.calls)
	}
	if health.MarketOpen {
		t.Error("health still reports market open")
	}
}
