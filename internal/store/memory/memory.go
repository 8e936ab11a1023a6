// Package memory is an in-process Store used by tests and backtests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"signal-advisor/internal/ledger"
	"signal-advisor/internal/model"
	"signal-advisor/internal/store"
)

// Store keeps tickers, positions and orders in maps guarded by one mutex.
type Store struct {
	mu        sync.Mutex
	tickers   map[string]model.Ticker
	positions map[int64]model.Position
	orders    []model.Order
	seq       struct{ ticker, position, order int64 }
}

// New returns an empty store.
func New() *Store {
	return &Store{
		tickers:   make(map[string]model.Ticker),
		positions: make(map[int64]model.Position),
	}
}

var _ store.Store = (*Store)(nil)

func (s *Store) ListTickers(ctx context.Context) ([]model.Ticker, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]model.Ticker, 0, len(s.tickers))
	for _, t := range s.tickers {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out, nil
}

func (s *Store) AddTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	symbol = store.NormalizeSymbol(symbol)
	if symbol == "" {
		return model.Ticker{}, fmt.Errorf("memory: empty symbol")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickers[symbol]; ok {
		return model.Ticker{}, store.ErrDuplicateSymbol
	}
	s.seq.ticker++
	t := model.Ticker{ID: s.seq.ticker, Symbol: symbol}
	s.tickers[symbol] = t
	return t, nil
}

func (s *Store) RemoveTicker(ctx context.Context, symbol string) error {
	symbol = store.NormalizeSymbol(symbol)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tickers[symbol]; !ok {
		return store.ErrNotFound
	}
	delete(s.tickers, symbol)
	return nil
}

func (s *Store) OpenPositions(ctx context.Context) ([]model.Position, error) {
	return s.ListPositions(ctx, true)
}

func (s *Store) ListPositions(ctx context.Context, openOnly bool) ([]model.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Position
	for _, p := range s.positions {
		if openOnly && !p.Open {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// ListOrders returns up to limit orders, newest first. limit <= 0 = all.
func (s *Store) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.orders)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]model.Order, 0, n)
	for i := len(s.orders) - 1; i >= 0 && len(out) < n; i-- {
		out = append(out, s.orders[i])
	}
	return out, nil
}

func (s *Store) Commit(ctx context.Context, advanced []model.Ticker, plan ledger.Plan) ([]model.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	recorded := make([]model.Order, 0, len(plan.Transitions))
	for _, tr := range plan.Transitions {
		o := tr.Order
		s.seq.order++
		o.ID = s.seq.order

		switch tr.Kind {
		case ledger.KindOpen:
			s.seq.position++
			p := tr.Position
			p.ID = s.seq.position
			s.positions[p.ID] = p
			o.PositionID = model.PositionRef(p.ID)
		case ledger.KindClose:
			p := tr.Position
			p.ClosedByOrderID = o.ID
			s.positions[p.ID] = p
		case ledger.KindModify:
			s.positions[tr.Position.ID] = tr.Position
		}
		s.orders = append(s.orders, o)
		recorded = append(recorded, o)
	}

	for _, t := range advanced {
		cur, ok := s.tickers[t.Symbol]
		if !ok || !store.Advanceable(cur.LastProcessed, t.LastProcessed) {
			continue
		}
		ts := *t.LastProcessed
		cur.LastProcessed = &ts
		s.tickers[t.Symbol] = cur
	}
	return recorded, nil
}

func (s *Store) Close() error { return nil }
