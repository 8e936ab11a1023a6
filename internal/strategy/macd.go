package strategy

import (
	"fmt"
	"log/slog"
	"math"

	"signal-advisor/internal/indicator"
	"signal-advisor/internal/model"
)

// Cross is the direction of a MACD/signal crossover.
type Cross int

const (
	CrossNone Cross = iota
	CrossBullish
	CrossBearish
)

func (c Cross) String() string {
	switch c {
	case CrossBullish:
		return "bullish"
	case CrossBearish:
		return "bearish"
	}
	return "none"
}

// LatestCrossover scans pts backward from the newest point and returns the
// first crossover found along with its index. Only points at or after from
// are considered as the earlier half of a pair. Older crossovers are never
// examined once a newer one is found.
func LatestCrossover(pts []indicator.MACDPoint, from int) (Cross, int) {
	from = max(from, 0)
	for i := len(pts) - 1; i > from; i-- {
		prev, cur := pts[i-1], pts[i]
		switch {
		case prev.MACD > prev.Signal && cur.MACD < cur.Signal:
			return CrossBearish, i
		case prev.MACD < prev.Signal && cur.MACD > cur.Signal:
			return CrossBullish, i
		}
	}
	return CrossNone, -1
}

// MACDCrossover buys on the most recent bullish MACD/signal crossover,
// sized by signal strength, and sells all open positions on a bearish one.
type MACDCrossover struct {
	runner
}

func (s *MACDCrossover) Name() string { return "MACD_Crossover" }

func (s *MACDCrossover) GenerateOrders(snaps []Snapshot, open []model.Position) Pass {
	return s.run(snaps, open, s.overlay)
}

// Strength normalises the MACD/signal divergence at pt into 0..1.
func (s *MACDCrossover) Strength(pt indicator.MACDPoint) float64 {
	return math.Min(math.Abs(pt.MACD-pt.Signal)/s.cfg.MACD.MaxDivergence, 1.0)
}

func (s *MACDCrossover) overlay(in tickerInput) ([]model.Order, bool) {
	p := s.cfg.MACD
	bars := window(in.bars, p.Window)
	warmup := p.Warmup()
	if len(bars) < warmup+2 {
		return nil, false
	}

	pts := indicator.MACD(bars, p.MACDParams)
	cross, i := LatestCrossover(pts, warmup)
	price := in.latest.Close

	switch cross {
	case CrossBearish:
		return sellAll(in, s.cfg, fmt.Sprintf("Bearish signal detected at %s -> Sell at Current Price: %.2f",
			pts[i].Time.Format("2006-01-02"), price)), true

	case CrossBullish:
		strength := s.Strength(pts[i])
		qty := int64(math.Floor(s.cfg.Capital * strength / price))
		if qty < 1 {
			s.log.Debug("bullish crossover too weak to size",
				slog.String("symbol", in.symbol),
				slog.Float64("strength", strength),
			)
			return nil, true
		}
		return []model.Order{entry(in, s.cfg, qty, fmt.Sprintf("Bullish signal detected at %s -> Buy at Current Price: %.2f",
			pts[i].Time.Format("2006-01-02"), price))}, true
	}
	return nil, true
}
