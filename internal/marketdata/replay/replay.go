// Package replay steps archived bar history forward one session at a time
// so the advisor can be backtested pass by pass.
package replay

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"signal-advisor/internal/model"
)

// Replayer is a marketdata.Source over archived history. Each Fetch returns,
// per symbol, only the bars at or before the current cursor; Step moves the
// cursor to the next distinct bar time across all symbols.
type Replayer struct {
	history map[string][]model.Bar
	times   []time.Time
	pos     int
	log     *slog.Logger
}

// Load reads every symbol's history from archive, restricted to bars at or
// after since (zero = all).
func Load(ctx context.Context, archive model.BarArchive, symbols []string, since time.Time, log *slog.Logger) (*Replayer, error) {
	if log == nil {
		log = slog.Default()
	}
	history := make(map[string][]model.Bar, len(symbols))
	for _, sym := range symbols {
		bars, err := archive.ReadBars(ctx, sym, since)
		if err != nil {
			return nil, fmt.Errorf("replay load %s: %w", sym, err)
		}
		history[sym] = bars
	}
	r := New(history)
	r.log = log
	log.Info("replay loaded",
		slog.Int("symbols", len(symbols)),
		slog.Int("sessions", len(r.times)),
	)
	return r, nil
}

// New builds a Replayer over in-memory history. Bars must be in ascending order.
func New(history map[string][]model.Bar) *Replayer {
	seen := make(map[int64]time.Time)
	for _, bars := range history {
		for _, b := range bars {
			seen[b.Time.UnixNano()] = b.Time
		}
	}
	times := make([]time.Time, 0, len(seen))
	for _, t := range seen {
		times = append(times, t)
	}
	sort.Slice(times, func(i, j int) bool { return times[i].Before(times[j]) })

	return &Replayer{history: history, times: times, pos: -1, log: slog.Default()}
}

// Sessions is the number of distinct bar times in the history.
func (r *Replayer) Sessions() int { return len(r.times) }

// Step advances to the next session. It returns false once history is exhausted.
func (r *Replayer) Step() bool {
	if r.pos+1 >= len(r.times) {
		return false
	}
	r.pos++
	return true
}

// Now is the current cursor, or the zero time before the first Step.
func (r *Replayer) Now() time.Time {
	if r.pos < 0 {
		return time.Time{}
	}
	return r.times[r.pos]
}

// Fetch returns each ticker's bars up to and including the cursor.
func (r *Replayer) Fetch(ctx context.Context, tickers []model.Ticker) map[string][]model.Bar {
	out := make(map[string][]model.Bar, len(tickers))
	now := r.Now()
	for _, t := range tickers {
		bars := r.history[t.Symbol]
		if r.pos < 0 {
			out[t.Symbol] = nil
			continue
		}
		n := sort.Search(len(bars), func(i int) bool { return bars[i].Time.After(now) })
		out[t.Symbol] = bars[:n:n]
	}
	return out
}

// Last returns each symbol's final close, for marking open positions at
// the end of a run.
func (r *Replayer) Last() map[string]float64 {
	out := make(map[string]float64, len(r.history))
	for sym, bars := range r.history {
		if b, ok := model.Latest(bars); ok {
			out[sym] = b.Close
		}
	}
	return out
}
