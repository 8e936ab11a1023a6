package indicator

import (
	"math"
	"testing"
	"time"

	"signal-advisor/internal/model"
)

// ────────────────────────────────────────────────────────────
// Helpers
// ────────────────────────────────────────────────────────────

func bars(closes ...float64) []model.Bar {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]model.Bar, len(closes))
	for i, c := range closes {
		out[i] = model.Bar{
			Time: start.AddDate(0, 0, i),
			Open: c, High: c + 0.5, Low: c - 0.5, Close: c,
		}
	}
	return out
}

func assertClose(t *testing.T, label string, got, want, tol float64) {
	t.Helper()
	if math.Abs(got-want) > tol {
		t.Errorf("%s: got %.6f, want %.6f (tol=%.6f, diff=%.6f)", label, got, want, tol, math.Abs(got-want))
	}
}

// ────────────────────────────────────────────────────────────
// EMA
// ────────────────────────────────────────────────────────────

func TestEMA_Correctness_Period3(t *testing.T) {
	// Prices: 1, 2, 3, 4, 5
	// EMA(3) seed at index 2: (1+2+3)/3 = 2.0
	// multiplier = 2/(3+1) = 0.5
	// index 3: (4-2)*0.5 + 2 = 3.0
	// index 4: (5-3)*0.5 + 3 = 4.0
	got := EMA([]float64{1, 2, 3, 4, 5}, 3)
	want := []float64{0, 0, 2, 3, 4}

	if len(got) != len(want) {
		t.Fatalf("len = %d, want %d", len(got), len(want))
	}
	for i := range want {
		assertClose(t, "EMA(3)", got[i], want[i], 1e-9)
	}
}

func TestEMA_Correctness_Period5(t *testing.T) {
	// Prices: 10, 11, 12, 13, 14, 20
	// seed at index 4: (10+11+12+13+14)/5 = 12.0
	// multiplier = 2/6 = 0.3333
	// index 5: (20-12)/3 + 12 = 14.6667
	got := EMA([]float64{10, 11, 12, 13, 14, 20}, 5)
	assertClose(t, "EMA(5) seed", got[4], 12.0, 1e-9)
	assertClose(t, "EMA(5) next", got[5], 14.666667, 1e-6)
}

func TestEMA_LeadingSentinels(t *testing.T) {
	series := make([]float64, 40)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	for _, period := range []int{1, 5, 12, 26} {
		got := EMA(series, period)
		if len(got) != len(series) {
			t.Fatalf("period %d: len = %d, want %d", period, len(got), len(series))
		}
		for i := 0; i < period-1; i++ {
			if got[i] != 0 {
				t.Errorf("period %d: index %d = %f, want 0 sentinel", period, i, got[i])
			}
		}
		if got[period-1] == 0 {
			t.Errorf("period %d: seed index %d should be defined", period, period-1)
		}
	}
}

func TestEMA_ShortSeries_AllZero(t *testing.T) {
	got := EMA([]float64{1, 2, 3}, 5)
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3", len(got))
	}
	for i, v := range got {
		if v != 0 {
			t.Errorf("index %d = %f, want 0", i, v)
		}
	}
}

// ────────────────────────────────────────────────────────────
// RSI
// ────────────────────────────────────────────────────────────

func TestRSI_Correctness_Period3(t *testing.T) {
	// Prices: 10, 11, 12, 11, 12
	// index 3 window deltas: +1 +1 -1 → avgGain 2/3, avgLoss 1/3, rs 2 → 66.6667
	// index 4 window deltas: +1 -1 +1 → same
	got := RSI([]float64{10, 11, 12, 11, 12}, 3)
	want := []float64{0, 0, 0, 66.666667, 66.666667}
	for i := range want {
		assertClose(t, "RSI(3)", got[i], want[i], 1e-5)
	}
}

func TestRSI_AllUp_Is100(t *testing.T) {
	series := make([]float64, 30)
	for i := range series {
		series[i] = 100 + float64(i)
	}
	got := RSI(series, DefaultRSIPeriod)
	for i := DefaultRSIPeriod; i < len(got); i++ {
		if got[i] != 100 {
			t.Fatalf("index %d: RSI = %f, want exactly 100", i, got[i])
		}
	}
}

func TestRSI_AllDown_Is0(t *testing.T) {
	series := make([]float64, 20)
	for i := range series {
		series[i] = 200 - float64(i)
	}
	got := RSI(series, 5)
	assertClose(t, "RSI all down", got[len(got)-1], 0, 1e-9)
}

func TestRSI_Flat_Is100(t *testing.T) {
	// No losses in the window: rs = +Inf, RSI = 100.
	got := RSI([]float64{50, 50, 50, 50, 50, 50}, 3)
	if got[5] != 100 {
		t.Errorf("flat RSI = %f, want 100", got[5])
	}
}

func TestRSI_LeadingSentinels(t *testing.T) {
	got := RSI([]float64{1, 3, 2, 4, 3, 5, 4}, 4)
	if len(got) != 7 {
		t.Fatalf("len = %d, want 7", len(got))
	}
	for i := 0; i < 4; i++ {
		if got[i] != 0 {
			t.Errorf("index %d = %f, want 0", i, got[i])
		}
	}
}

// ────────────────────────────────────────────────────────────
// MACD
// ────────────────────────────────────────────────────────────

func TestMACD_LinearTrend(t *testing.T) {
	// For a series rising by 1 per bar, an SMA-seeded EMA(n) sits exactly
	// (n-1)/2 below price. MACD = 12.5 - 5.5 = 7 from index 25 onward, and
	// the signal EMA of a constant 7 is 7 from index 25+8 = 33.
	closes := make([]float64, 50)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	b := bars(closes...)
	p := DefaultMACDParams()
	pts := MACD(b, p)

	if len(pts) != len(b) {
		t.Fatalf("len = %d, want %d", len(pts), len(b))
	}
	for i := 0; i < 25; i++ {
		if pts[i].MACD != 0 || pts[i].Signal != 0 {
			t.Fatalf("index %d: (%f, %f), want zero sentinels", i, pts[i].MACD, pts[i].Signal)
		}
	}
	for i := 25; i < 33; i++ {
		assertClose(t, "macd warmup", pts[i].MACD, 7, 1e-9)
		if pts[i].Signal != 0 {
			t.Fatalf("index %d: signal = %f, want 0 before warmup", i, pts[i].Signal)
		}
	}
	for i := p.Warmup(); i < len(pts); i++ {
		assertClose(t, "macd", pts[i].MACD, 7, 1e-9)
		assertClose(t, "signal", pts[i].Signal, 7, 1e-9)
	}
	if !pts[10].Time.Equal(b[10].Time) {
		t.Errorf("point time = %v, want bar time %v", pts[10].Time, b[10].Time)
	}
}

func TestMACD_ShortSeries(t *testing.T) {
	pts := MACD(bars(1, 2, 3), DefaultMACDParams())
	if len(pts) != 3 {
		t.Fatalf("len = %d, want 3", len(pts))
	}
	for _, pt := range pts {
		if pt.MACD != 0 || pt.Signal != 0 {
			t.Errorf("expected zero sentinels, got %+v", pt)
		}
	}
}

// ────────────────────────────────────────────────────────────
// Fibonacci
// ────────────────────────────────────────────────────────────

func TestFibonacciLevels(t *testing.T) {
	lv := FibonacciLevels(120, 80)
	assertClose(t, "level 0", lv.At(0), 120, 1e-9)
	assertClose(t, "level 0.236", lv.At(0.236), 110.56, 1e-9)
	assertClose(t, "level 0.382", lv.At(0.382), 104.72, 1e-9)
	assertClose(t, "level 0.5", lv.At(0.5), 100, 1e-9)
	assertClose(t, "level 0.618", lv.At(0.618), 95.28, 1e-9)
	assertClose(t, "level 1", lv.At(1), 80, 1e-9)
	assertClose(t, "off-grid 0.75", lv.At(0.75), 90, 1e-9)

	if len(lv) != len(FibonacciRatios) {
		t.Errorf("levels = %d, want %d", len(lv), len(FibonacciRatios))
	}
}

func TestHighLow(t *testing.T) {
	b := []model.Bar{
		{High: 10, Low: 5},
		{High: 14, Low: 7},
		{High: 12, Low: 3},
	}
	h, l := HighLow(b)
	if h != 14 || l != 3 {
		t.Errorf("HighLow = (%f, %f), want (14, 3)", h, l)
	}
	if h, l := HighLow(nil); h != 0 || l != 0 {
		t.Errorf("HighLow(nil) = (%f, %f), want (0, 0)", h, l)
	}
}
