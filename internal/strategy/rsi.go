package strategy

import (
	"fmt"
	"math"

	"signal-advisor/internal/indicator"
	"signal-advisor/internal/model"
)

// RSIThreshold sells all open positions when RSI is overbought and buys
// with the full capital when it is oversold.
type RSIThreshold struct {
	runner
}

func (s *RSIThreshold) Name() string { return "RSI_Threshold" }

func (s *RSIThreshold) GenerateOrders(snaps []Snapshot, open []model.Position) Pass {
	return s.run(snaps, open, s.overlay)
}

func (s *RSIThreshold) overlay(in tickerInput) ([]model.Order, bool) {
	c := s.cfg.RSI
	bars := window(in.bars, c.Window)
	if len(bars) <= c.Period {
		return nil, false
	}

	values := indicator.RSI(indicator.Closes(bars), c.Period)
	rsi := values[len(values)-1]
	price := in.latest.Close

	switch {
	case rsi > c.Overbought:
		return sellAll(in, s.cfg, fmt.Sprintf("Overbought condition detected (RSI %.2f) -> Sell at Current Price: %.2f", rsi, price)), true

	case rsi < c.Oversold:
		qty := int64(math.Floor(s.cfg.Capital / price))
		if qty < 1 {
			return nil, true
		}
		return []model.Order{entry(in, s.cfg, qty,
			fmt.Sprintf("Oversold condition detected (RSI %.2f) -> Buy at Current Price: %.2f", rsi, price))}, true
	}
	return nil, true
}
