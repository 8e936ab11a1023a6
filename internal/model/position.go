package model

import "time"

// Position is a long holding opened by a BUY order.
// Once closed, ClosePrice and CloseDate are fixed and Open is false.
type Position struct {
	ID              int64      `json:"id"`
	Symbol          string     `json:"symbol"`
	EntryPrice      float64    `json:"entry_price"`
	StopLoss        float64    `json:"stop_loss"`
	TargetPrice     float64    `json:"target_price"`
	EntryDate       time.Time  `json:"entry_date"`
	Quantity        int64      `json:"quantity"`
	ClosePrice      float64    `json:"close_price,omitempty"`
	CloseDate       *time.Time `json:"close_date,omitempty"`
	ClosedByOrderID int64      `json:"closed_by_order_id,omitempty"`
	LastUpdated     time.Time  `json:"last_updated"`
	Open            bool       `json:"open"`
}

// RealizedPnL is (close - entry) * qty for a closed position and 0 otherwise.
func (p *Position) RealizedPnL() float64 {
	if p.Open {
		return 0
	}
	return (p.ClosePrice - p.EntryPrice) * float64(p.Quantity)
}

// UnrealizedPnL marks an open position to last.
func (p *Position) UnrealizedPnL(last float64) float64 {
	if !p.Open {
		return 0
	}
	return (last - p.EntryPrice) * float64(p.Quantity)
}
