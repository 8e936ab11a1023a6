package model

import "time"

// Ticker is a registered instrument symbol.
// LastProcessed is the timestamp of the newest bar the engine has acted on;
// nil means the ticker has never been processed.
type Ticker struct {
	ID            int64      `json:"id"`
	Symbol        string     `json:"symbol"`
	LastProcessed *time.Time `json:"last_processed,omitempty"`
}

// WithLastProcessed returns a copy of t with LastProcessed set to ts.
func (t Ticker) WithLastProcessed(ts time.Time) Ticker {
	t.LastProcessed = &ts
	return t
}
