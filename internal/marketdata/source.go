// Package marketdata supplies per-ticker bar history to the advisor.
//
// A Source never fails a whole fetch because of one ticker: a ticker whose
// retrieval fails maps to an empty slice and the engine skips it.
package marketdata

import (
	"context"

	"signal-advisor/internal/model"
)

// Source fetches bars for a set of tickers, keyed by symbol.
type Source interface {
	Fetch(ctx context.Context, tickers []model.Ticker) map[string][]model.Bar
}

// Static serves fixed bar sets. Unknown symbols map to an empty slice.
type Static map[string][]model.Bar

func (s Static) Fetch(ctx context.Context, tickers []model.Ticker) map[string][]model.Bar {
	out := make(map[string][]model.Bar, len(tickers))
	for _, t := range tickers {
		out[t.Symbol] = append([]model.Bar(nil), s[t.Symbol]...)
	}
	return out
}
