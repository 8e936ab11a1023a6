// Package ledger turns a pass's orders into position transitions.
//
// NewPlan is pure: it resolves every order against a working copy of the
// pre-pass open-position book and records what must change. The store then
// applies the whole plan in one transaction, which is where new positions
// get their identity and BUY orders get linked to them.
package ledger

import (
	"fmt"
	"time"

	"signal-advisor/internal/model"
)

// Config holds ledger-side defaults.
type Config struct {
	// TargetMultiplier sets TargetPrice = entry * TargetMultiplier on
	// positions the ledger opens. It is independent of the strategy's own
	// multiplier, which only stamps the order.
	TargetMultiplier float64 `yaml:"target_multiplier"`
}

// DefaultConfig returns the stock ledger configuration.
func DefaultConfig() Config {
	return Config{TargetMultiplier: 1.2}
}

// Kind is the transition an order causes.
type Kind string

const (
	// KindOpen creates a new position. Its ID is assigned at commit.
	KindOpen Kind = "open"
	// KindModify moves an open position's stop-loss.
	KindModify Kind = "modify"
	// KindClose closes an open position.
	KindClose Kind = "close"
	// KindUnresolved records the order without touching any position.
	KindUnresolved Kind = "unresolved"
)

// Transition pairs an order with its effect on the position book.
type Transition struct {
	Kind  Kind
	Order model.Order

	// Position is the position state after the transition. For KindOpen the
	// ID is 0 until commit; for KindUnresolved it is the zero value.
	Position model.Position
}

// Warning flags an order whose position reference could not be resolved.
type Warning struct {
	Order  model.Order
	Reason string
}

func (w Warning) String() string {
	id := "nil"
	if w.Order.PositionID != nil {
		id = fmt.Sprint(*w.Order.PositionID)
	}
	return fmt.Sprintf("%s %s position=%s: %s", w.Order.Type, w.Order.Symbol, id, w.Reason)
}

// Plan is the ordered set of transitions for one pass.
type Plan struct {
	Transitions []Transition
	Warnings    []Warning
}

// Counts tallies transitions by kind.
func (p Plan) Counts() map[Kind]int {
	out := make(map[Kind]int, 4)
	for _, t := range p.Transitions {
		out[t.Kind]++
	}
	return out
}

// Empty reports whether the plan has nothing to commit.
func (p Plan) Empty() bool { return len(p.Transitions) == 0 }

// NewPlan resolves orders, in order, against the open positions.
//
//   - SELL with a resolvable position → close it at the order price.
//   - MODIFY with a resolvable position → set its stop-loss.
//   - Any order without a position reference → open a new position.
//   - SELL/MODIFY whose reference is absent or already closed → recorded
//     as unresolved and flagged with a Warning.
//
// Neither orders nor open is modified.
func NewPlan(orders []model.Order, open []model.Position, cfg Config, now time.Time) Plan {
	book := make(map[int64]model.Position, len(open))
	for _, p := range open {
		if p.Open {
			book[p.ID] = p
		}
	}

	var plan Plan
	for _, o := range orders {
		if o.CreatedAt.IsZero() {
			o.CreatedAt = now
		}

		if o.PositionID == nil {
			if o.Quantity <= 0 {
				plan.Transitions = append(plan.Transitions, Transition{Kind: KindUnresolved, Order: o})
				plan.Warnings = append(plan.Warnings, Warning{Order: o, Reason: "non-positive quantity"})
				continue
			}
			plan.Transitions = append(plan.Transitions, Transition{
				Kind:     KindOpen,
				Order:    o,
				Position: openFrom(o, cfg, now),
			})
			continue
		}

		pos, ok := book[*o.PositionID]
		if !ok || pos.Symbol != o.Symbol || o.Type == model.OrderBuy {
			reason := "position not open in snapshot"
			switch {
			case ok && pos.Symbol != o.Symbol:
				reason = fmt.Sprintf("position belongs to %s", pos.Symbol)
			case ok:
				reason = "buy order cannot reference an existing position"
			}
			plan.Transitions = append(plan.Transitions, Transition{Kind: KindUnresolved, Order: o})
			plan.Warnings = append(plan.Warnings, Warning{Order: o, Reason: reason})
			continue
		}

		switch o.Type {
		case model.OrderSell:
			closedAt := now
			pos.Open = false
			pos.ClosePrice = o.Price
			pos.CloseDate = &closedAt
			pos.LastUpdated = now
			delete(book, pos.ID)
			plan.Transitions = append(plan.Transitions, Transition{Kind: KindClose, Order: o, Position: pos})

		case model.OrderModify:
			pos.StopLoss = o.StopLoss
			pos.LastUpdated = now
			book[pos.ID] = pos
			plan.Transitions = append(plan.Transitions, Transition{Kind: KindModify, Order: o, Position: pos})

		default:
			plan.Transitions = append(plan.Transitions, Transition{Kind: KindUnresolved, Order: o})
			plan.Warnings = append(plan.Warnings, Warning{Order: o, Reason: fmt.Sprintf("unknown order type %q", o.Type)})
		}
	}
	return plan
}

func openFrom(o model.Order, cfg Config, now time.Time) model.Position {
	return model.Position{
		Symbol:      o.Symbol,
		EntryPrice:  o.Price,
		StopLoss:    o.StopLoss,
		TargetPrice: o.Price * cfg.TargetMultiplier,
		EntryDate:   now,
		Quantity:    o.Quantity,
		LastUpdated: now,
		Open:        true,
	}
}
