package model

import "time"

// Bar is one daily OHLC price bar for a ticker. Bars are immutable once
// fetched and are always handled in ascending Time order.
type Bar struct {
	Time  time.Time `json:"time"`
	Open  float64   `json:"open"`
	High  float64   `json:"high"`
	Low   float64   `json:"low"`
	Close float64   `json:"close"`
}

// Latest returns the newest bar and true, or a zero Bar and false when bars is empty.
func Latest(bars []Bar) (Bar, bool) {
	if len(bars) == 0 {
		return Bar{}, false
	}
	return bars[len(bars)-1], true
}
