package execution

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"signal-advisor/internal/model"
)

// Fill represents a simulated order fill.
type Fill struct {
	OrderID   string      `json:"order_id"`
	Order     model.Order `json:"order"`
	FillPrice float64     `json:"fill_price"`
	FillQty   int64       `json:"fill_qty"`
	FilledAt  time.Time   `json:"filled_at"`
	Slippage  float64     `json:"slippage"` // simulated slippage per share
}

// PaperBroker simulates execution without real broker calls.
// Useful for backtesting and paper trading.
type PaperBroker struct {
	mu       sync.RWMutex
	fills    []Fill
	orderSeq int64

	slippageBps int64 // basis points of slippage (e.g., 5 = 0.05%)
	journal     *Journal
	log         *slog.Logger
	now         func() time.Time
}

// PaperOption customises a PaperBroker.
type PaperOption func(*PaperBroker)

// WithJournal persists every fill to j.
func WithJournal(j *Journal) PaperOption {
	return func(p *PaperBroker) { p.journal = j }
}

// WithClock overrides the fill timestamp source. Backtests pass the replay clock.
func WithClock(now func() time.Time) PaperOption {
	return func(p *PaperBroker) { p.now = now }
}

// NewPaperBroker creates a paper broker. slippageBps controls simulated
// slippage in basis points.
func NewPaperBroker(slippageBps int64, log *slog.Logger, opts ...PaperOption) *PaperBroker {
	if log == nil {
		log = slog.Default()
	}
	p := &PaperBroker{
		fills:       make([]Fill, 0, 256),
		slippageBps: slippageBps,
		log:         log,
		now:         time.Now,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *PaperBroker) Name() string { return "paper" }

// GetFills returns a snapshot of all fills.
func (p *PaperBroker) GetFills() []Fill {
	p.mu.RLock()
	defer p.mu.RUnlock()
	cp := make([]Fill, len(p.fills))
	copy(cp, p.fills)
	return cp
}

// Submit fills BUY and SELL orders immediately at the order price adjusted
// for slippage. MODIFY orders only move a stop, so they are acknowledged
// without a fill.
func (p *PaperBroker) Submit(ctx context.Context, o model.Order) (Ack, error) {
	p.mu.Lock()
	p.orderSeq++
	orderID := fmt.Sprintf("PAPER-%d", p.orderSeq)

	if o.Type == model.OrderModify {
		p.mu.Unlock()
		p.log.Info("paper stop moved",
			slog.String("order", orderID),
			slog.String("symbol", o.Symbol),
			slog.Float64("stop_loss", o.StopLoss))
		return Ack{BrokerOrderID: orderID, Status: StatusAccepted}, nil
	}

	price, slippage := p.applySlippage(o)
	fill := Fill{
		OrderID:   orderID,
		Order:     o,
		FillPrice: price,
		FillQty:   o.Quantity,
		FilledAt:  p.now(),
		Slippage:  slippage,
	}
	p.fills = append(p.fills, fill)
	p.mu.Unlock()

	p.log.Info("paper fill",
		slog.String("order", orderID),
		slog.String("type", string(o.Type)),
		slog.String("symbol", o.Symbol),
		slog.Int64("qty", o.Quantity),
		slog.Float64("price", price),
		slog.Float64("slippage", slippage))

	if p.journal != nil {
		if err := p.journal.RecordFill(ctx, fill); err != nil {
			return Ack{BrokerOrderID: orderID, Status: StatusFilled}, fmt.Errorf("journal fill %s: %w", orderID, err)
		}
	}

	return Ack{
		BrokerOrderID: orderID,
		Status:        StatusFilled,
		Message:       fmt.Sprintf("paper filled at %s", decimal.NewFromFloat(price).StringFixed(2)),
	}, nil
}

// applySlippage moves a buy up and a sell down by slippageBps of the price.
func (p *PaperBroker) applySlippage(o model.Order) (price, slippage float64) {
	px := decimal.NewFromFloat(o.Price)
	if o.Price <= 0 || p.slippageBps <= 0 {
		return o.Price, 0
	}
	slip := px.Mul(decimal.NewFromInt(p.slippageBps)).Div(decimal.NewFromInt(10000)).Round(4)
	if o.Type == model.OrderBuy {
		px = px.Add(slip) // buy higher
	} else {
		px = px.Sub(slip) // sell lower
	}
	return px.InexactFloat64(), slip.InexactFloat64()
}
