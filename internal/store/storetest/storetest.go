// Package storetest holds behaviour tests shared by every store.Store
// implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"signal-advisor/internal/ledger"
	"signal-advisor/internal/model"
	"signal-advisor/internal/store"
)

// Run exercises s against the Store contract. s must be empty.
func Run(t *testing.T, s store.Store) {
	t.Helper()
	ctx := context.Background()
	now := time.Date(2024, 5, 10, 9, 15, 0, 0, time.UTC)

	t.Run("ticker registration", func(t *testing.T) {
		tk, err := s.AddTicker(ctx, " abc ")
		if err != nil {
			t.Fatalf("AddTicker: %v", err)
		}
		if tk.Symbol != "ABC" || tk.ID == 0 {
			t.Errorf("ticker = %+v", tk)
		}
		if _, err := s.AddTicker(ctx, "ABC"); !errors.Is(err, store.ErrDuplicateSymbol) {
			t.Errorf("duplicate add err = %v, want ErrDuplicateSymbol", err)
		}
		if _, err := s.AddTicker(ctx, "XYZ"); err != nil {
			t.Fatalf("AddTicker XYZ: %v", err)
		}
		if err := s.RemoveTicker(ctx, "NOPE"); !errors.Is(err, store.ErrNotFound) {
			t.Errorf("remove unknown err = %v, want ErrNotFound", err)
		}

		list, err := s.ListTickers(ctx)
		if err != nil {
			t.Fatalf("ListTickers: %v", err)
		}
		if len(list) != 2 || list[0].Symbol != "ABC" || list[1].Symbol != "XYZ" {
			t.Errorf("tickers = %+v", list)
		}
	})

	var openedID int64
	t.Run("commit opens and links", func(t *testing.T) {
		orders := []model.Order{{Symbol: "ABC", Type: model.OrderBuy, Price: 100, StopLoss: 98, TargetPrice: 130, Quantity: 10}}
		plan := ledger.NewPlan(orders, nil, ledger.DefaultConfig(), now)
		advanced := []model.Ticker{{Symbol: "ABC"}}
		advanced[0] = advanced[0].WithLastProcessed(now)

		got, err := s.Commit(ctx, advanced, plan)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if len(got) != 1 || got[0].ID == 0 || got[0].PositionID == nil {
			t.Fatalf("recorded = %+v", got)
		}
		openedID = *got[0].PositionID

		open, err := s.OpenPositions(ctx)
		if err != nil {
			t.Fatalf("OpenPositions: %v", err)
		}
		if len(open) != 1 || open[0].ID != openedID || open[0].TargetPrice != 120 || open[0].StopLoss != 98 {
			t.Errorf("open = %+v", open)
		}

		stored, err := s.ListOrders(ctx, 10)
		if err != nil {
			t.Fatalf("ListOrders: %v", err)
		}
		if len(stored) != 1 || stored[0].PositionID == nil || *stored[0].PositionID != openedID {
			t.Errorf("stored order not linked: %+v", stored)
		}

		tickers, _ := s.ListTickers(ctx)
		if tickers[0].LastProcessed == nil || !tickers[0].LastProcessed.Equal(now) {
			t.Errorf("ABC last processed = %v, want %v", tickers[0].LastProcessed, now)
		}
		if tickers[1].LastProcessed != nil {
			t.Errorf("XYZ should be untouched, got %v", tickers[1].LastProcessed)
		}
	})

	t.Run("commit modifies then closes", func(t *testing.T) {
		later := now.Add(24 * time.Hour)
		open, _ := s.OpenPositions(ctx)

		modify := model.Order{Symbol: "ABC", Type: model.OrderModify, Price: 100, StopLoss: 104, Quantity: 10, PositionID: model.PositionRef(openedID)}
		plan := ledger.NewPlan([]model.Order{modify}, open, ledger.DefaultConfig(), later)
		if _, err := s.Commit(ctx, nil, plan); err != nil {
			t.Fatalf("Commit modify: %v", err)
		}
		open, _ = s.OpenPositions(ctx)
		if len(open) != 1 || open[0].StopLoss != 104 {
			t.Fatalf("after modify = %+v", open)
		}

		sell := model.Order{Symbol: "ABC", Type: model.OrderSell, Price: 125, Quantity: 10, IsExit: true, PositionID: model.PositionRef(openedID)}
		plan = ledger.NewPlan([]model.Order{sell}, open, ledger.DefaultConfig(), later)
		got, err := s.Commit(ctx, nil, plan)
		if err != nil {
			t.Fatalf("Commit sell: %v", err)
		}

		open, _ = s.OpenPositions(ctx)
		if len(open) != 0 {
			t.Fatalf("position still open: %+v", open)
		}
		all, _ := s.ListPositions(ctx, false)
		if len(all) != 1 {
			t.Fatalf("positions = %+v", all)
		}
		p := all[0]
		if p.Open || p.ClosePrice != 125 || p.CloseDate == nil || !p.CloseDate.Equal(later) || p.ClosedByOrderID != got[0].ID {
			t.Errorf("closed position = %+v", p)
		}
		if sum := store.Summarize(all); sum.Closed != 1 || sum.Wins != 1 || sum.RealizedPnL != 250 {
			t.Errorf("summary = %+v", sum)
		}
	})

	t.Run("unresolved orders are recorded only", func(t *testing.T) {
		o := model.Order{Symbol: "ABC", Type: model.OrderSell, Price: 90, Quantity: 1, IsExit: true, PositionID: model.PositionRef(9999)}
		plan := ledger.NewPlan([]model.Order{o}, nil, ledger.DefaultConfig(), now)
		if len(plan.Warnings) != 1 {
			t.Fatalf("expected a warning, got %v", plan.Warnings)
		}
		got, err := s.Commit(ctx, nil, plan)
		if err != nil {
			t.Fatalf("Commit: %v", err)
		}
		if len(got) != 1 || got[0].ID == 0 {
			t.Errorf("recorded = %+v", got)
		}
		all, _ := s.ListPositions(ctx, false)
		if len(all) != 1 {
			t.Errorf("unresolved order must not touch positions, got %d", len(all))
		}
	})

	t.Run("timestamps never move back", func(t *testing.T) {
		older := []model.Ticker{model.Ticker{Symbol: "ABC"}.WithLastProcessed(now.Add(-time.Hour))}
		if _, err := s.Commit(ctx, older, ledger.Plan{}); err != nil {
			t.Fatalf("Commit: %v", err)
		}
		tickers, _ := s.ListTickers(ctx)
		if !tickers[0].LastProcessed.Equal(now) {
			t.Errorf("last processed moved back to %v", tickers[0].LastProcessed)
		}
	})

	t.Run("orders newest first", func(t *testing.T) {
		orders, err := s.ListOrders(ctx, 2)
		if err != nil {
			t.Fatalf("ListOrders: %v", err)
		}
		if len(orders) != 2 || orders[0].ID < orders[1].ID {
			t.Errorf("orders = %+v", orders)
		}
		if err := s.RemoveTicker(ctx, "xyz"); err != nil {
			t.Errorf("RemoveTicker: %v", err)
		}
	})
}
