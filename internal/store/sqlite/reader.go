package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"signal-advisor/internal/model"
	"signal-advisor/internal/store"
)

// ListTickers returns every registered ticker ordered by symbol.
func (s *Store) ListTickers(ctx context.Context) ([]model.Ticker, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, symbol, last_processed FROM tickers ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query tickers: %w", err)
	}
	defer rows.Close()

	var out []model.Ticker
	for rows.Next() {
		var t model.Ticker
		var last sql.NullInt64
		if err := rows.Scan(&t.ID, &t.Symbol, &last); err != nil {
			return nil, fmt.Errorf("sqlite scan ticker: %w", err)
		}
		if last.Valid {
			ts := fromNanos(last.Int64)
			t.LastProcessed = &ts
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// OpenPositions returns the open-position book.
func (s *Store) OpenPositions(ctx context.Context) ([]model.Position, error) {
	return s.ListPositions(ctx, true)
}

// ListPositions returns positions ordered by id, optionally only open ones.
func (s *Store) ListPositions(ctx context.Context, openOnly bool) ([]model.Position, error) {
	q := `SELECT id, symbol, entry_price, stop_loss, target_price, entry_date, quantity,
		close_price, close_date, closed_by_order_id, last_updated, is_open
		FROM positions`
	if openOnly {
		q += ` WHERE is_open = 1`
	}
	q += ` ORDER BY id ASC`

	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("sqlite query positions: %w", err)
	}
	defer rows.Close()

	var out []model.Position
	for rows.Next() {
		var (
			p                  model.Position
			entry, updated     int64
			closePrice         sql.NullFloat64
			closeDate, closeBy sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &p.EntryPrice, &p.StopLoss, &p.TargetPrice, &entry, &p.Quantity,
			&closePrice, &closeDate, &closeBy, &updated, &p.Open); err != nil {
			return nil, fmt.Errorf("sqlite scan position: %w", err)
		}
		p.EntryDate = fromNanos(entry)
		p.LastUpdated = fromNanos(updated)
		p.ClosePrice = closePrice.Float64
		p.ClosedByOrderID = closeBy.Int64
		if closeDate.Valid {
			ts := fromNanos(closeDate.Int64)
			p.CloseDate = &ts
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// ListOrders returns up to limit orders, newest first. limit <= 0 = all.
func (s *Store) ListOrders(ctx context.Context, limit int) ([]model.Order, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, symbol, type, price, stop_loss, target_price, quantity, is_exit, position_id, notes, created_at
		FROM orders ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("sqlite query orders: %w", err)
	}
	defer rows.Close()

	var out []model.Order
	for rows.Next() {
		var (
			o       model.Order
			typ     string
			posID   sql.NullInt64
			notes   sql.NullString
			created int64
		)
		if err := rows.Scan(&o.ID, &o.Symbol, &typ, &o.Price, &o.StopLoss, &o.TargetPrice, &o.Quantity,
			&o.IsExit, &posID, &notes, &created); err != nil {
			return nil, fmt.Errorf("sqlite scan order: %w", err)
		}
		o.Type = model.OrderType(typ)
		o.Notes = notes.String
		o.CreatedAt = fromNanos(created)
		if posID.Valid {
			o.PositionID = model.PositionRef(posID.Int64)
		}
		out = append(out, o)
	}
	return out, rows.Err()
}

// ReadBars returns archived bars for symbol at or after since, oldest first.
func (s *Store) ReadBars(ctx context.Context, symbol string, since time.Time) ([]model.Bar, error) {
	var after int64
	if !since.IsZero() {
		after = since.UnixNano()
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT ts, open, high, low, close FROM bars
		WHERE symbol = ? AND ts >= ?
		ORDER BY ts ASC`, store.NormalizeSymbol(symbol), after)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bars: %w", err)
	}
	defer rows.Close()

	var out []model.Bar
	for rows.Next() {
		var b model.Bar
		var ts int64
		if err := rows.Scan(&ts, &b.Open, &b.High, &b.Low, &b.Close); err != nil {
			return nil, fmt.Errorf("sqlite scan bar: %w", err)
		}
		b.Time = fromNanos(ts)
		out = append(out, b)
	}
	return out, rows.Err()
}

// ArchivedSymbols lists the symbols with archived bars.
func (s *Store) ArchivedSymbols(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT symbol FROM bars ORDER BY symbol ASC`)
	if err != nil {
		return nil, fmt.Errorf("sqlite query bar symbols: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var sym string
		if err := rows.Scan(&sym); err != nil {
			return nil, fmt.Errorf("sqlite scan bar symbol: %w", err)
		}
		out = append(out, sym)
	}
	return out, rows.Err()
}
