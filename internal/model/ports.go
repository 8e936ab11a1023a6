package model

import (
	"context"
	"time"
)

// ── Port Interfaces ──
// These decouple the advisor pipeline from concrete storage and transport
// (SQLite, Parquet, Redis, WebSocket).

// BarArchive stores fetched bars so passes can be replayed offline.
type BarArchive interface {
	// SaveBars upserts bars for symbol keyed by bar time.
	SaveBars(ctx context.Context, symbol string, bars []Bar) error

	// ReadBars returns archived bars for symbol in ascending time order,
	// restricted to bars at or after since (zero time = all).
	ReadBars(ctx context.Context, symbol string, since time.Time) ([]Bar, error)
}

// OrderSink receives orders after they have been committed to the ledger.
type OrderSink interface {
	PublishOrders(ctx context.Context, orders []Order) error
}
