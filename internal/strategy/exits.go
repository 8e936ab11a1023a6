package strategy

import (
	"fmt"

	"signal-advisor/internal/model"
)

// EvaluateExits applies the shared exit rules to every open position on
// symbol, in fixed priority order:
//
//  1. close below stop-loss → SELL
//  2. close at or above target → SELL
//  3. otherwise trail the stop to max(stop, close*TrailFactor) → MODIFY,
//     only when that strictly raises the stop
//
// At most one order is produced per position.
func EvaluateExits(symbol string, latest model.Bar, open []model.Position, cfg Config) []model.Order {
	var orders []model.Order
	price := latest.Close

	for _, p := range open {
		if !p.Open || p.Symbol != symbol {
			continue
		}

		switch {
		case price < p.StopLoss:
			orders = append(orders, exitSell(p, price, cfg,
				fmt.Sprintf("Stop loss triggered -> CurrentPrice: %.2f, SL: %.2f", price, p.StopLoss)))

		case p.TargetPrice > 0 && p.TargetPrice <= price:
			orders = append(orders, exitSell(p, price, cfg,
				fmt.Sprintf("Target price reached -> CurrentPrice: %.2f, TargetPrice: %.2f", price, p.TargetPrice)))

		default:
			candidate := max(p.StopLoss, price*cfg.TrailFactor)
			if candidate > p.StopLoss {
				orders = append(orders, model.Order{
					Symbol:      p.Symbol,
					Type:        model.OrderModify,
					Price:       p.EntryPrice,
					StopLoss:    candidate,
					TargetPrice: price * cfg.TargetMultiplier,
					Quantity:    p.Quantity,
					PositionID:  model.PositionRef(p.ID),
					Notes:       fmt.Sprintf("Stop loss updated -> CurrentPrice: %.2f, SL: %.2f -> %.2f", price, p.StopLoss, candidate),
				})
			}
		}
	}
	return orders
}

func exitSell(p model.Position, price float64, cfg Config, notes string) model.Order {
	return model.Order{
		Symbol:      p.Symbol,
		Type:        model.OrderSell,
		Price:       price,
		TargetPrice: price * cfg.TargetMultiplier,
		Quantity:    p.Quantity,
		IsExit:      true,
		PositionID:  model.PositionRef(p.ID),
		Notes:       notes,
	}
}
