// Package indicator provides technical indicator calculations over bar history.
//
// Every function here is pure: it takes an ordered series and returns a new
// series of the same length. Positions that lack enough history hold a 0
// sentinel; callers must read a leading 0 as "not enough data", never as a
// real indicator value.
package indicator

import "signal-advisor/internal/model"

// Closes extracts close prices from bars, preserving order.
func Closes(bars []model.Bar) []float64 {
	out := make([]float64, len(bars))
	for i, b := range bars {
		out[i] = b.Close
	}
	return out
}

// HighLow returns the highest High and lowest Low across bars.
// Both are 0 when bars is empty.
func HighLow(bars []model.Bar) (high, low float64) {
	if len(bars) == 0 {
		return 0, 0
	}
	high, low = bars[0].High, bars[0].Low
	for _, b := range bars[1:] {
		if b.High > high {
			high = b.High
		}
		if b.Low < low {
			low = b.Low
		}
	}
	return high, low
}
