package strategy

import (
	"fmt"

	"signal-advisor/internal/indicator"
	"signal-advisor/internal/model"
)

// FibonacciBand trades each open position against retracement levels of the
// window's high/low range. Below the buy level it adds a new entry the size
// of the held position; above the sell level it closes the position.
// Entry sizing follows the held quantity, not capital.
type FibonacciBand struct {
	runner
}

func (s *FibonacciBand) Name() string { return "Fibonacci_Retracement" }

func (s *FibonacciBand) GenerateOrders(snaps []Snapshot, open []model.Position) Pass {
	return s.run(snaps, open, s.overlay)
}

func (s *FibonacciBand) overlay(in tickerInput) ([]model.Order, bool) {
	c := s.cfg.Fibonacci
	high, low := indicator.HighLow(window(in.bars, c.Window))
	levels := indicator.FibonacciLevels(high, low)
	buyAt, sellAt := levels.At(c.BuyRatio), levels.At(c.SellRatio)
	price := in.latest.Close

	var orders []model.Order
	for _, p := range in.held {
		switch {
		case price < buyAt:
			orders = append(orders, entry(in, s.cfg, p.Quantity,
				fmt.Sprintf("Below %.1f%% retracement %.2f -> Buy at Current Price: %.2f", c.BuyRatio*100, buyAt, price)))
		case price > sellAt:
			sell := sellAll(tickerInput{symbol: in.symbol, latest: in.latest, held: []model.Position{p}}, s.cfg,
				fmt.Sprintf("Above %.1f%% retracement %.2f -> Sell at Current Price: %.2f", c.SellRatio*100, sellAt, price))
			orders = append(orders, sell...)
		}
	}
	return orders, true
}
