// Package store defines the persistence port for tickers, positions and
// orders. Implementations live in sub-packages (sqlite, memory).
package store

import (
	"context"
	"errors"
	"strings"
	"time"

	"signal-advisor/internal/ledger"
	"signal-advisor/internal/model"
)

var (
	// ErrDuplicateSymbol is returned when adding a ticker whose symbol is
	// already registered.
	ErrDuplicateSymbol = errors.New("ticker already exists")

	// ErrNotFound is returned when a ticker or row does not exist.
	ErrNotFound = errors.New("not found")
)

// Store is the persistence port used by the advisor service and the API.
type Store interface {
	ListTickers(ctx context.Context) ([]model.Ticker, error)
	AddTicker(ctx context.Context, symbol string) (model.Ticker, error)
	RemoveTicker(ctx context.Context, symbol string) error

	OpenPositions(ctx context.Context) ([]model.Position, error)
	ListPositions(ctx context.Context, openOnly bool) ([]model.Position, error)
	ListOrders(ctx context.Context, limit int) ([]model.Order, error)

	// Commit applies one pass atomically: it records every order in the
	// plan, applies its position transitions, links new BUY orders to the
	// positions they opened and advances the given tickers' LastProcessed.
	// It returns the recorded orders with ID and PositionID filled in.
	Commit(ctx context.Context, advanced []model.Ticker, plan ledger.Plan) ([]model.Order, error)

	Close() error
}

// NormalizeSymbol trims and upper-cases a ticker symbol.
func NormalizeSymbol(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Summary aggregates realized results over closed positions.
type Summary struct {
	Open        int     `json:"open"`
	Closed      int     `json:"closed"`
	Wins        int     `json:"wins"`
	Losses      int     `json:"losses"`
	RealizedPnL float64 `json:"realized_pnl"`
}

// Summarize computes a Summary over positions.
func Summarize(positions []model.Position) Summary {
	var s Summary
	for i := range positions {
		p := &positions[i]
		if p.Open {
			s.Open++
			continue
		}
		s.Closed++
		pnl := p.RealizedPnL()
		s.RealizedPnL += pnl
		if pnl > 0 {
			s.Wins++
		} else if pnl < 0 {
			s.Losses++
		}
	}
	return s
}

// Advanceable reports whether ts moves a ticker's LastProcessed forward.
func Advanceable(current *time.Time, ts *time.Time) bool {
	if ts == nil {
		return false
	}
	return current == nil || ts.After(*current)
}
