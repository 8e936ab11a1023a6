package strategy

import (
	"io"
	"log/slog"
	"math"
	"strings"
	"testing"
	"time"

	"signal-advisor/internal/indicator"
	"signal-advisor/internal/model"
)

var day0 = time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)

func quietLog() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func series(closes ...float64) []model.Bar {
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{Time: day0.AddDate(0, 0, i), Open: c, High: c, Low: c, Close: c}
	}
	return out
}

func mustNew(t *testing.T, cfg Config) Strategy {
	t.Helper()
	s, err := New(cfg, quietLog())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s
}

func openPos(id int64, symbol string, entry, stop, target float64, qty int64) model.Position {
	return model.Position{
		ID: id, Symbol: symbol, EntryPrice: entry, StopLoss: stop,
		TargetPrice: target, Quantity: qty, Open: true, EntryDate: day0,
	}
}

// ────────────────────────────────────────────────────────────
// Gate
// ────────────────────────────────────────────────────────────

func TestShouldProcess(t *testing.T) {
	ts := day0.AddDate(0, 0, 5)
	fresh := model.Ticker{Symbol: "ABC"}
	seen := fresh.WithLastProcessed(ts)

	if !ShouldProcess(fresh, ts) {
		t.Error("never-processed ticker should be processed")
	}
	if ShouldProcess(seen, ts) {
		t.Error("same timestamp should be skipped")
	}
	if ShouldProcess(seen, ts.Add(-time.Hour)) {
		t.Error("older timestamp should be skipped")
	}
	if !ShouldProcess(seen, ts.Add(time.Second)) {
		t.Error("newer timestamp should be processed")
	}
}

func TestGenerateOrders_GateIdempotent(t *testing.T) {
	s := mustNew(t, DefaultConfig(KindRSI))
	bars := series(100, 99, 98, 97, 96, 95, 94, 93, 92, 91, 90, 89, 88, 87, 86, 85)
	ticker := model.Ticker{ID: 1, Symbol: "ABC"}
	open := []model.Position{openPos(1, "ABC", 100, 80, 200, 10)}

	first := s.GenerateOrders([]Snapshot{{Ticker: ticker, Bars: bars}}, open)
	if len(first.Orders) == 0 {
		t.Fatal("first pass should emit orders")
	}
	if len(first.Advanced) != 1 || !first.Advanced[0].LastProcessed.Equal(bars[len(bars)-1].Time) {
		t.Fatalf("first pass should advance ticker to latest bar, got %+v", first.Advanced)
	}
	if ticker.LastProcessed != nil {
		t.Fatal("input ticker must not be mutated")
	}

	second := s.GenerateOrders([]Snapshot{{Ticker: first.Advanced[0], Bars: bars}}, open)
	if len(second.Orders) != 0 {
		t.Errorf("second pass emitted %d orders, want 0", len(second.Orders))
	}
	if len(second.Advanced) != 0 {
		t.Errorf("second pass advanced %d tickers, want 0", len(second.Advanced))
	}
	if second.Skipped["ABC"] != SkipUnchanged {
		t.Errorf("skip reason = %q, want %q", second.Skipped["ABC"], SkipUnchanged)
	}
}

func TestGenerateOrders_EmptyBarsSkipped(t *testing.T) {
	s := mustNew(t, DefaultConfig(KindMACD))
	open := []model.Position{openPos(1, "ABC", 100, 150, 200, 10)}

	pass := s.GenerateOrders([]Snapshot{{Ticker: model.Ticker{Symbol: "ABC"}}}, open)
	if len(pass.Orders) != 0 || len(pass.Advanced) != 0 {
		t.Fatalf("empty bars should yield nothing, got %+v", pass)
	}
	if pass.Skipped["ABC"] != SkipNoData {
		t.Errorf("skip reason = %q, want %q", pass.Skipped["ABC"], SkipNoData)
	}
}

// ────────────────────────────────────────────────────────────
// Exit rules
// ────────────────────────────────────────────────────────────

func TestEvaluateExits_StopLossExclusive(t *testing.T) {
	cfg := DefaultConfig(KindRSI)
	pos := openPos(7, "ABC", 100, 90, 110, 5)

	orders := EvaluateExits("ABC", model.Bar{Close: 85}, []model.Position{pos}, cfg)
	if len(orders) != 1 {
		t.Fatalf("got %d orders, want exactly 1", len(orders))
	}
	o := orders[0]
	if o.Type != model.OrderSell || !o.IsExit || o.StopLoss != 0 || o.Quantity != 5 {
		t.Errorf("unexpected order %+v", o)
	}
	if o.PositionID == nil || *o.PositionID != 7 {
		t.Errorf("order should reference position 7, got %v", o.PositionID)
	}
	if !strings.Contains(o.Notes, "Stop loss triggered") {
		t.Errorf("notes = %q", o.Notes)
	}
}

func TestEvaluateExits_TargetReached(t *testing.T) {
	cfg := DefaultConfig(KindRSI)
	pos := openPos(3, "ABC", 100, 90, 110, 5)

	orders := EvaluateExits("ABC", model.Bar{Close: 110}, []model.Position{pos}, cfg)
	if len(orders) != 1 || orders[0].Type != model.OrderSell {
		t.Fatalf("want one SELL, got %+v", orders)
	}
	if orders[0].Price != 110 {
		t.Errorf("price = %v, want 110", orders[0].Price)
	}
	if !strings.Contains(orders[0].Notes, "Target price reached") {
		t.Errorf("notes = %q", orders[0].Notes)
	}
}

func TestEvaluateExits_TrailModify(t *testing.T) {
	cfg := DefaultConfig(KindRSI)
	pos := openPos(4, "ABC", 100, 90, 150, 5)

	orders := EvaluateExits("ABC", model.Bar{Close: 105}, []model.Position{pos}, cfg)
	if len(orders) != 1 || orders[0].Type != model.OrderModify {
		t.Fatalf("want one MODIFY, got %+v", orders)
	}
	o := orders[0]
	if math.Abs(o.StopLoss-102.9) > 1e-9 {
		t.Errorf("stop = %v, want 102.9", o.StopLoss)
	}
	if o.Price != 100 {
		t.Errorf("modify should carry entry price 100, got %v", o.Price)
	}
	if o.IsExit {
		t.Error("modify must not be an exit order")
	}

	// Candidate not strictly above the current stop: nothing.
	pos.StopLoss = 102.9
	if got := EvaluateExits("ABC", model.Bar{Close: 105}, []model.Position{pos}, cfg); len(got) != 0 {
		t.Errorf("equal candidate should emit nothing, got %+v", got)
	}
}

func TestEvaluateExits_IgnoresOtherSymbolsAndClosed(t *testing.T) {
	cfg := DefaultConfig(KindRSI)
	other := openPos(1, "XYZ", 100, 90, 110, 5)
	closed := openPos(2, "ABC", 100, 90, 110, 5)
	closed.Open = false

	if got := EvaluateExits("ABC", model.Bar{Close: 50}, []model.Position{other, closed}, cfg); len(got) != 0 {
		t.Errorf("got %+v, want no orders", got)
	}
}

func TestEvaluateExits_TrailingMonotonic(t *testing.T) {
	cfg := DefaultConfig(KindRSI)
	pos := openPos(1, "ABC", 100, 95, 1000, 5)

	prev := pos.StopLoss
	for _, close := range []float64{100, 101, 101, 103, 102.5, 106, 110, 109, 115} {
		orders := EvaluateExits("ABC", model.Bar{Close: close}, []model.Position{pos}, cfg)
		for _, o := range orders {
			if o.Type != model.OrderModify {
				t.Fatalf("close %v: unexpected %s", close, o.Type)
			}
			if o.StopLoss <= prev {
				t.Fatalf("close %v: stop %v did not rise above %v", close, o.StopLoss, prev)
			}
			pos.StopLoss = o.StopLoss
		}
		if pos.StopLoss < prev {
			t.Fatalf("stop decreased from %v to %v", prev, pos.StopLoss)
		}
		prev = pos.StopLoss
	}
	if math.Abs(prev-115*0.98) > 1e-9 {
		t.Errorf("final stop = %v, want %v", prev, 115*0.98)
	}
}

// ────────────────────────────────────────────────────────────
// RSI variant
// ────────────────────────────────────────────────────────────

func TestRSIThreshold_PullbackBuy(t *testing.T) {
	// 30 bars rising linearly from 100 to 130, then falling 1.5 per bar.
	// With k falling deltas in the 14-delta window:
	//   gains = (14-k)*30/29, losses = 1.5k
	//   k=8: RSI ≈ 34.1   k=9: RSI ≈ 27.7
	// so the first BUY lands on the 9th falling bar, index 38, close 116.5.
	var closes []float64
	for i := 0; i < 30; i++ {
		closes = append(closes, 100+30*float64(i)/29)
	}
	for k := 1; k <= 12; k++ {
		closes = append(closes, 130-1.5*float64(k))
	}
	all := series(closes...)

	cfg := DefaultConfig(KindRSI)
	s := mustNew(t, cfg)
	ticker := model.Ticker{Symbol: "ABC"}

	buyAt := -1
	for i := 0; i < len(all); i++ {
		pass := s.GenerateOrders([]Snapshot{{Ticker: ticker, Bars: all[:i+1]}}, nil)
		for _, adv := range pass.Advanced {
			ticker = adv
		}
		if len(pass.Orders) == 0 {
			continue
		}
		if buyAt >= 0 {
			continue
		}
		if len(pass.Orders) != 1 || pass.Orders[0].Type != model.OrderBuy {
			t.Fatalf("bar %d: want a single BUY, got %+v", i, pass.Orders)
		}
		buyAt = i
		o := pass.Orders[0]
		wantQty := int64(math.Floor(cfg.Capital / all[i].Close))
		if o.Quantity != wantQty {
			t.Errorf("qty = %d, want %d", o.Quantity, wantQty)
		}
		if math.Abs(o.StopLoss-all[i].Close*0.98) > 1e-9 {
			t.Errorf("stop = %v, want %v", o.StopLoss, all[i].Close*0.98)
		}
		if math.Abs(o.TargetPrice-all[i].Close*1.3) > 1e-9 {
			t.Errorf("target = %v, want %v", o.TargetPrice, all[i].Close*1.3)
		}
		if o.PositionID != nil {
			t.Error("new entry must be pending linkage")
		}
	}

	if buyAt != 38 {
		t.Fatalf("first BUY at bar %d, want 38", buyAt)
	}
	if q := int64(math.Floor(cfg.Capital / 116.5)); q != 85 {
		t.Fatalf("sanity: qty at 116.5 = %d", q)
	}
	rsi := indicator.RSI(indicator.Closes(all[:39]), 14)
	if rsi[38] >= 30 || rsi[37] < 30 {
		t.Errorf("RSI around the entry: [37]=%.2f [38]=%.2f", rsi[37], rsi[38])
	}
}

func TestRSIThreshold_OverboughtSellsAll(t *testing.T) {
	s := mustNew(t, DefaultConfig(KindRSI))
	var closes []float64
	for i := 0; i < 20; i++ {
		closes = append(closes, 100+float64(i))
	}
	open := []model.Position{
		openPos(1, "ABC", 100, 90, 500, 3),
		openPos(2, "ABC", 105, 120, 500, 4), // stop breached at 119
		openPos(3, "XYZ", 100, 90, 500, 9),
	}
	open[0].StopLoss = 119 * 0.98 // no trail either

	pass := s.GenerateOrders([]Snapshot{{Ticker: model.Ticker{Symbol: "ABC"}, Bars: series(closes...)}}, open)

	sells := map[int64]int{}
	for _, o := range pass.Orders {
		if o.Type != model.OrderSell {
			t.Fatalf("unexpected %s order: %+v", o.Type, o)
		}
		sells[*o.PositionID]++
	}
	if sells[1] != 1 || sells[2] != 1 || sells[3] != 0 {
		t.Errorf("sells per position = %v, want each ABC position closed once", sells)
	}
}

func TestRSIThreshold_ShortWindowStillExits(t *testing.T) {
	s := mustNew(t, DefaultConfig(KindRSI))
	bars := series(100, 99, 98, 97, 96, 95, 94, 93, 92, 91)
	open := []model.Position{openPos(1, "ABC", 100, 95, 200, 10)}

	pass := s.GenerateOrders([]Snapshot{{Ticker: model.Ticker{Symbol: "ABC"}, Bars: bars}}, open)
	if len(pass.Orders) != 1 || pass.Orders[0].Type != model.OrderSell {
		t.Fatalf("want stop-loss SELL, got %+v", pass.Orders)
	}
	if pass.Skipped["ABC"] != SkipShortWindow {
		t.Errorf("skip reason = %q, want %q", pass.Skipped["ABC"], SkipShortWindow)
	}
	if len(pass.Advanced) != 0 {
		t.Error("short window must not advance the ticker")
	}
}

// ────────────────────────────────────────────────────────────
// MACD variant
// ────────────────────────────────────────────────────────────

func TestLatestCrossover_NewestWins(t *testing.T) {
	pts := make([]indicator.MACDPoint, 50)
	for i := range pts {
		pts[i] = indicator.MACDPoint{MACD: -1, Signal: 0}
	}
	// Bullish crossover at 10, bearish at 20, bullish again at 40.
	for i := 10; i < 20; i++ {
		pts[i].MACD = 1
	}
	for i := 40; i < 50; i++ {
		pts[i].MACD = 1
	}

	cross, i := LatestCrossover(pts, 0)
	if cross != CrossBullish || i != 40 {
		t.Fatalf("got %s at %d, want bullish at 40", cross, i)
	}

	cross, i = LatestCrossover(pts[:30], 0)
	if cross != CrossBearish || i != 20 {
		t.Fatalf("got %s at %d, want bearish at 20", cross, i)
	}

	if cross, _ := LatestCrossover(pts[:10], 0); cross != CrossNone {
		t.Errorf("got %s, want none", cross)
	}
}

func TestMACDCrossover_OnlyNewestSignalActs(t *testing.T) {
	// Accelerating decline to bar 9, rally to 19, accelerating decline to 39,
	// rally to 49. With 2/3/2 periods this crosses bullish at 10, bearish at
	// 20 and bullish at 40. At 40: macd=-1.0625, signal=-1.4583, so
	// strength=0.39583 and qty=floor(10000*0.39583/70)=56.
	var closes []float64
	p := 100.0
	for i := 0; i < 50; i++ {
		switch {
		case i < 10:
			p -= 0.5 * float64(i+1)
		case i < 20:
			p += 2
		case i < 40:
			p -= 0.25 * float64(i-19)
		default:
			p += 3
		}
		closes = append(closes, p)
	}
	bars := series(closes...)

	cfg := DefaultConfig(KindMACD)
	cfg.MACD.MACDParams = indicator.MACDParams{Fast: 2, Slow: 3, Signal: 2}
	cfg.MACD.Window = 0
	s := mustNew(t, cfg)

	pts := indicator.MACD(bars, cfg.MACD.MACDParams)
	cross, idx := LatestCrossover(pts, cfg.MACD.Warmup())
	if cross != CrossBullish || idx != 40 {
		t.Fatalf("fixture: got %s at %d, want bullish at 40", cross, idx)
	}

	pass := s.GenerateOrders([]Snapshot{{Ticker: model.Ticker{Symbol: "ABC"}, Bars: bars}}, nil)
	if len(pass.Orders) != 1 {
		t.Fatalf("got %d orders, want 1: %+v", len(pass.Orders), pass.Orders)
	}
	o := pass.Orders[0]
	if o.Type != model.OrderBuy || o.Quantity != 56 || o.Price != 70 {
		t.Errorf("order = %+v, want BUY 56 @ 70", o)
	}
	if !strings.Contains(o.Notes, bars[40].Time.Format("2006-01-02")) {
		t.Errorf("notes %q should name the index-40 bar", o.Notes)
	}
}

func TestMACDCrossover_ShortWindow(t *testing.T) {
	s := mustNew(t, DefaultConfig(KindMACD))
	pass := s.GenerateOrders([]Snapshot{{Ticker: model.Ticker{Symbol: "ABC"}, Bars: series(1, 2, 3, 4, 5)}}, nil)
	if pass.Skipped["ABC"] != SkipShortWindow {
		t.Errorf("skip reason = %q, want %q", pass.Skipped["ABC"], SkipShortWindow)
	}
}

// ────────────────────────────────────────────────────────────
// Fibonacci variant
// ────────────────────────────────────────────────────────────

func TestFibonacciBand(t *testing.T) {
	s := mustNew(t, DefaultConfig(KindFibonacci))

	// Range 80..120: buy below 95.28, sell above 104.72.
	low := model.Bar{Time: day0, High: 100, Low: 80, Close: 90}
	high := model.Bar{Time: day0.AddDate(0, 0, 1), High: 120, Low: 100, Close: 110}

	t.Run("below buy level adds held quantity", func(t *testing.T) {
		latest := model.Bar{Time: day0.AddDate(0, 0, 2), High: 91, Low: 89, Close: 90}
		pos := openPos(1, "ABC", 100, 89, 200, 7)
		pass := s.GenerateOrders([]Snapshot{{Ticker: model.Ticker{Symbol: "ABC"}, Bars: []model.Bar{low, high, latest}}}, []model.Position{pos})

		if len(pass.Orders) != 1 {
			t.Fatalf("got %+v, want one BUY", pass.Orders)
		}
		o := pass.Orders[0]
		if o.Type != model.OrderBuy || o.Quantity != 7 || o.PositionID != nil {
			t.Errorf("order = %+v", o)
		}
	})

	t.Run("above sell level closes", func(t *testing.T) {
		latest := model.Bar{Time: day0.AddDate(0, 0, 2), High: 111, Low: 109, Close: 110}
		pos := openPos(2, "ABC", 100, 108, 200, 4)
		pass := s.GenerateOrders([]Snapshot{{Ticker: model.Ticker{Symbol: "ABC"}, Bars: []model.Bar{low, high, latest}}}, []model.Position{pos})

		if len(pass.Orders) != 1 {
			t.Fatalf("got %+v, want one SELL", pass.Orders)
		}
		o := pass.Orders[0]
		if o.Type != model.OrderSell || o.Quantity != 4 || *o.PositionID != 2 {
			t.Errorf("order = %+v", o)
		}
	})

	t.Run("no open positions no orders", func(t *testing.T) {
		latest := model.Bar{Time: day0.AddDate(0, 0, 2), High: 91, Low: 89, Close: 90}
		pass := s.GenerateOrders([]Snapshot{{Ticker: model.Ticker{Symbol: "ABC"}, Bars: []model.Bar{low, high, latest}}}, nil)
		if len(pass.Orders) != 0 {
			t.Errorf("got %+v, want none", pass.Orders)
		}
		if len(pass.Advanced) != 1 {
			t.Error("ticker should still advance")
		}
	})
}

// ────────────────────────────────────────────────────────────
// Runner
// ────────────────────────────────────────────────────────────

func TestRunner_FaultIsolated(t *testing.T) {
	r := runner{cfg: DefaultConfig(KindRSI), log: quietLog()}
	boom := func(in tickerInput) ([]model.Order, bool) {
		if in.symbol == "BAD" {
			panic("index out of range")
		}
		return []model.Order{{Symbol: in.symbol, Type: model.OrderBuy, Quantity: 1}}, true
	}

	snaps := []Snapshot{
		{Ticker: model.Ticker{Symbol: "BAD"}, Bars: series(1, 2)},
		{Ticker: model.Ticker{Symbol: "GOOD"}, Bars: series(1, 2)},
	}
	pass := r.run(snaps, nil, boom)

	if pass.Skipped["BAD"] != SkipFault {
		t.Errorf("BAD skip = %q, want %q", pass.Skipped["BAD"], SkipFault)
	}
	if len(pass.Orders) != 1 || pass.Orders[0].Symbol != "GOOD" {
		t.Errorf("orders = %+v, want only GOOD", pass.Orders)
	}
	if len(pass.Advanced) != 1 || pass.Advanced[0].Symbol != "GOOD" {
		t.Errorf("advanced = %+v, want only GOOD", pass.Advanced)
	}
}

func TestNew_Validation(t *testing.T) {
	if _, err := New(Config{Kind: "bogus"}, nil); err == nil {
		t.Error("unknown kind should fail")
	}

	cfg := DefaultConfig(KindRSI)
	cfg.RSI.Window = 10
	if _, err := New(cfg, nil); err == nil {
		t.Error("window not exceeding period should fail")
	}

	for _, k := range []Kind{KindMACD, KindRSI, KindFibonacci} {
		s, err := New(DefaultConfig(k), nil)
		if err != nil {
			t.Fatalf("%s: %v", k, err)
		}
		if s.Name() == "" {
			t.Errorf("%s: empty name", k)
		}
	}
}
