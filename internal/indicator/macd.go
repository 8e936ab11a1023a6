package indicator

import (
	"time"

	"signal-advisor/internal/model"
)

// MACDPoint is one sample of the MACD line and its signal line.
type MACDPoint struct {
	Time   time.Time `json:"time"`
	MACD   float64   `json:"macd"`
	Signal float64   `json:"signal"`
}

// MACDParams are the EMA periods used by MACD.
type MACDParams struct {
	Fast   int `yaml:"fast"`
	Slow   int `yaml:"slow"`
	Signal int `yaml:"signal"`
}

// DefaultMACDParams returns the classic 12/26/9 configuration.
func DefaultMACDParams() MACDParams {
	return MACDParams{Fast: 12, Slow: 26, Signal: 9}
}

// Warmup is the first index at which both the MACD and signal lines are defined.
func (p MACDParams) Warmup() int {
	return p.Slow + p.Signal - 2
}

// MACD computes MACD = EMA(close, fast) - EMA(close, slow) and its signal
// line over bars.
//
// The MACD line is 0 wherever the slow EMA is still undefined. The signal
// line is the EMA of the defined part of the MACD line, zero-padded in front
// so that it lines up index for index with bars.
func MACD(bars []model.Bar, p MACDParams) []MACDPoint {
	closes := Closes(bars)
	fast := EMA(closes, p.Fast)
	slow := EMA(closes, p.Slow)

	line := make([]float64, len(bars))
	start := p.Slow - 1
	for i := start; i < len(bars); i++ {
		line[i] = fast[i] - slow[i]
	}

	signal := make([]float64, len(bars))
	if start >= 0 && start < len(bars) {
		copy(signal[start:], EMA(line[start:], p.Signal))
	}

	out := make([]MACDPoint, len(bars))
	for i, b := range bars {
		out[i] = MACDPoint{Time: b.Time, MACD: line[i], Signal: signal[i]}
	}
	return out
}
