package execution

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// Journal persists paper fills to SQLite for analysis and audit.
type Journal struct {
	mu sync.Mutex
	db *sql.DB
}

// NewJournal opens (or creates) a SQLite journal database.
func NewJournal(dbPath string, log *slog.Logger) (*Journal, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open journal: %w", err)
	}
	db.SetMaxOpenConns(1)

	schema := `
	CREATE TABLE IF NOT EXISTS fills (
		id          INTEGER PRIMARY KEY AUTOINCREMENT,
		order_id    TEXT NOT NULL,
		symbol      TEXT NOT NULL,
		order_type  TEXT NOT NULL,
		qty         INTEGER NOT NULL,
		price       REAL NOT NULL,
		slippage    REAL DEFAULT 0,
		stop_loss   REAL DEFAULT 0,
		notes       TEXT,
		filled_at   INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_fills_symbol ON fills(symbol);
	CREATE INDEX IF NOT EXISTS idx_fills_filled_at ON fills(filled_at);
	`
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite journal schema: %w", err)
	}

	if log != nil {
		log.Info("trade journal opened", slog.String("path", dbPath))
	}
	return &Journal{db: db}, nil
}

// RecordFill persists a fill to the journal.
func (j *Journal) RecordFill(ctx context.Context, fill Fill) error {
	j.mu.Lock()
	defer j.mu.Unlock()

	_, err := j.db.ExecContext(ctx,
		`INSERT INTO fills (order_id, symbol, order_type, qty, price, slippage, stop_loss, notes, filled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		fill.OrderID,
		fill.Order.Symbol,
		string(fill.Order.Type),
		fill.FillQty,
		fill.FillPrice,
		fill.Slippage,
		fill.Order.StopLoss,
		fill.Order.Notes,
		fill.FilledAt.UnixNano(),
	)
	return err
}

// FillRecord represents a row from the fills table.
type FillRecord struct {
	ID        int64     `json:"id"`
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	OrderType string    `json:"order_type"`
	Qty       int64     `json:"qty"`
	Price     float64   `json:"price"`
	Slippage  float64   `json:"slippage"`
	StopLoss  float64   `json:"stop_loss"`
	Notes     string    `json:"notes"`
	FilledAt  time.Time `json:"filled_at"`
}

// GetFills returns the last N fills, newest first.
func (j *Journal) GetFills(ctx context.Context, limit int) ([]FillRecord, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	rows, err := j.db.QueryContext(ctx,
		`SELECT id, order_id, symbol, order_type, qty, price, slippage, stop_loss, COALESCE(notes, ''), filled_at
		 FROM fills ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query fills: %w", err)
	}
	defer rows.Close()

	var out []FillRecord
	for rows.Next() {
		var (
			r  FillRecord
			ts int64
		)
		if err := rows.Scan(&r.ID, &r.OrderID, &r.Symbol, &r.OrderType, &r.Qty,
			&r.Price, &r.Slippage, &r.StopLoss, &r.Notes, &ts); err != nil {
			return nil, fmt.Errorf("sqlite scan fill: %w", err)
		}
		r.FilledAt = time.Unix(0, ts).UTC()
		out = append(out, r)
	}
	return out, rows.Err()
}

// Close closes the journal database.
func (j *Journal) Close() error {
	return j.db.Close()
}
