// Package sqlite is the SQLite-backed Store and bar archive.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	sqlite3 "github.com/mattn/go-sqlite3"

	"signal-advisor/internal/ledger"
	"signal-advisor/internal/model"
	"signal-advisor/internal/store"
)

// Config configures the SQLite store.
type Config struct {
	DBPath string // path to SQLite database file, e.g. "data/advisor.db"
}

// Store persists tickers, positions, orders and archived bars.
// All timestamps are stored as unix nanoseconds.
type Store struct {
	db  *sql.DB
	log *slog.Logger
}

var (
	_ store.Store      = (*Store)(nil)
	_ model.BarArchive = (*Store)(nil)
)

// DB returns the underlying sql.DB for health checks.
func (s *Store) DB() *sql.DB { return s.db }

// Open creates (or opens) the database with WAL mode and ensures the schema.
func Open(cfg Config, log *slog.Logger) (*Store, error) {
	if log == nil {
		log = slog.Default()
	}
	db, err := sql.Open("sqlite3", cfg.DBPath+"?_journal_mode=WAL&_synchronous=NORMAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("sqlite open: %w", err)
	}

	// Single writer: one pass commits at a time.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := createSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite schema: %w", err)
	}

	log.Info("sqlite store opened", slog.String("path", cfg.DBPath))
	return &Store{db: db, log: log}, nil
}

func createSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS tickers (
			id             INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol         TEXT    NOT NULL UNIQUE,
			last_processed INTEGER
		);

		CREATE TABLE IF NOT EXISTS positions (
			id                 INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol             TEXT    NOT NULL,
			entry_price        REAL    NOT NULL,
			stop_loss          REAL    NOT NULL,
			target_price       REAL    NOT NULL,
			entry_date         INTEGER NOT NULL,
			quantity           INTEGER NOT NULL CHECK (quantity > 0),
			close_price        REAL,
			close_date         INTEGER,
			closed_by_order_id INTEGER,
			last_updated       INTEGER NOT NULL,
			is_open            INTEGER NOT NULL DEFAULT 1
		);
		CREATE INDEX IF NOT EXISTS idx_positions_open ON positions(is_open, symbol);

		CREATE TABLE IF NOT EXISTS orders (
			id           INTEGER PRIMARY KEY AUTOINCREMENT,
			symbol       TEXT    NOT NULL,
			type         TEXT    NOT NULL,
			price        REAL    NOT NULL,
			stop_loss    REAL    NOT NULL,
			target_price REAL    NOT NULL,
			quantity     INTEGER NOT NULL,
			is_exit      INTEGER NOT NULL,
			position_id  INTEGER,
			notes        TEXT,
			created_at   INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_orders_symbol ON orders(symbol);

		CREATE TABLE IF NOT EXISTS bars (
			symbol TEXT    NOT NULL,
			ts     INTEGER NOT NULL,
			open   REAL    NOT NULL,
			high   REAL    NOT NULL,
			low    REAL    NOT NULL,
			close  REAL    NOT NULL,
			PRIMARY KEY (symbol, ts)
		);
	`)
	return err
}

// AddTicker registers a symbol. Duplicate symbols return store.ErrDuplicateSymbol.
func (s *Store) AddTicker(ctx context.Context, symbol string) (model.Ticker, error) {
	symbol = store.NormalizeSymbol(symbol)
	if symbol == "" {
		return model.Ticker{}, errors.New("sqlite add ticker: empty symbol")
	}
	res, err := s.db.ExecContext(ctx, `INSERT INTO tickers (symbol) VALUES (?)`, symbol)
	if err != nil {
		var se sqlite3.Error
		if errors.As(err, &se) && se.ExtendedCode == sqlite3.ErrConstraintUnique {
			return model.Ticker{}, store.ErrDuplicateSymbol
		}
		return model.Ticker{}, fmt.Errorf("sqlite add ticker: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Ticker{}, fmt.Errorf("sqlite add ticker id: %w", err)
	}
	return model.Ticker{ID: id, Symbol: symbol}, nil
}

// RemoveTicker deletes a symbol. Unknown symbols return store.ErrNotFound.
func (s *Store) RemoveTicker(ctx context.Context, symbol string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tickers WHERE symbol = ?`, store.NormalizeSymbol(symbol))
	if err != nil {
		return fmt.Errorf("sqlite remove ticker: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return store.ErrNotFound
	}
	return nil
}

// Commit applies one pass inside a single transaction:
//
//	insert order → open/close/modify position → link order → advance tickers
//
// Either everything in the plan lands or nothing does.
func (s *Store) Commit(ctx context.Context, advanced []model.Ticker, plan ledger.Plan) ([]model.Order, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("sqlite commit begin: %w", err)
	}
	defer tx.Rollback()

	insOrder, err := tx.PrepareContext(ctx, `
		INSERT INTO orders (symbol, type, price, stop_loss, target_price, quantity, is_exit, position_id, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return nil, fmt.Errorf("sqlite prepare order: %w", err)
	}
	defer insOrder.Close()

	recorded := make([]model.Order, 0, len(plan.Transitions))
	for _, tr := range plan.Transitions {
		o := tr.Order
		res, err := insOrder.ExecContext(ctx, o.Symbol, string(o.Type), o.Price, o.StopLoss, o.TargetPrice,
			o.Quantity, o.IsExit, nullID(o.PositionID), o.Notes, o.CreatedAt.UnixNano())
		if err != nil {
			return nil, fmt.Errorf("sqlite insert order: %w", err)
		}
		if o.ID, err = res.LastInsertId(); err != nil {
			return nil, fmt.Errorf("sqlite order id: %w", err)
		}

		switch tr.Kind {
		case ledger.KindOpen:
			id, err := insertPosition(ctx, tx, tr.Position)
			if err != nil {
				return nil, err
			}
			if _, err := tx.ExecContext(ctx, `UPDATE orders SET position_id = ? WHERE id = ?`, id, o.ID); err != nil {
				return nil, fmt.Errorf("sqlite link order: %w", err)
			}
			o.PositionID = model.PositionRef(id)

		case ledger.KindClose:
			p := tr.Position
			if err := execOne(ctx, tx, `
				UPDATE positions SET is_open = 0, close_price = ?, close_date = ?, closed_by_order_id = ?, last_updated = ?
				WHERE id = ? AND is_open = 1`,
				p.ClosePrice, p.CloseDate.UnixNano(), o.ID, p.LastUpdated.UnixNano(), p.ID); err != nil {
				return nil, fmt.Errorf("sqlite close position %d: %w", p.ID, err)
			}

		case ledger.KindModify:
			p := tr.Position
			if err := execOne(ctx, tx, `
				UPDATE positions SET stop_loss = ?, last_updated = ? WHERE id = ? AND is_open = 1`,
				p.StopLoss, p.LastUpdated.UnixNano(), p.ID); err != nil {
				return nil, fmt.Errorf("sqlite modify position %d: %w", p.ID, err)
			}
		}
		recorded = append(recorded, o)
	}

	for _, t := range advanced {
		if t.LastProcessed == nil {
			continue
		}
		// Only ever move forward.
		if _, err := tx.ExecContext(ctx, `
			UPDATE tickers SET last_processed = ?
			WHERE symbol = ? AND (last_processed IS NULL OR last_processed < ?)`,
			t.LastProcessed.UnixNano(), t.Symbol, t.LastProcessed.UnixNano()); err != nil {
			return nil, fmt.Errorf("sqlite advance ticker %s: %w", t.Symbol, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("sqlite commit: %w", err)
	}
	return recorded, nil
}

func insertPosition(ctx context.Context, tx *sql.Tx, p model.Position) (int64, error) {
	res, err := tx.ExecContext(ctx, `
		INSERT INTO positions (symbol, entry_price, stop_loss, target_price, entry_date, quantity, last_updated, is_open)
		VALUES (?, ?, ?, ?, ?, ?, ?, 1)`,
		p.Symbol, p.EntryPrice, p.StopLoss, p.TargetPrice, p.EntryDate.UnixNano(), p.Quantity, p.LastUpdated.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("sqlite insert position: %w", err)
	}
	return res.LastInsertId()
}

// execOne runs an UPDATE that must touch exactly one row.
func execOne(ctx context.Context, tx *sql.Tx, query string, args ...any) error {
	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n != 1 {
		return fmt.Errorf("position not open: %w", store.ErrNotFound)
	}
	return nil
}

// SaveBars upserts archived bars for symbol.
func (s *Store) SaveBars(ctx context.Context, symbol string, bars []model.Bar) error {
	if len(bars) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("sqlite save bars begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT OR REPLACE INTO bars (symbol, ts, open, high, low, close)
		VALUES (?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return fmt.Errorf("sqlite prepare bars: %w", err)
	}
	defer stmt.Close()

	symbol = store.NormalizeSymbol(symbol)
	for _, b := range bars {
		if _, err := stmt.ExecContext(ctx, symbol, b.Time.UnixNano(), b.Open, b.High, b.Low, b.Close); err != nil {
			return fmt.Errorf("sqlite insert bar: %w", err)
		}
	}
	return tx.Commit()
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func nullID(id *int64) sql.NullInt64 {
	if id == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *id, Valid: true}
}

func fromNanos(ns int64) time.Time {
	return time.Unix(0, ns).UTC()
}
