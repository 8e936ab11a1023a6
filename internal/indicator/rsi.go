package indicator

import "math"

// DefaultRSIPeriod is the conventional RSI lookback.
const DefaultRSIPeriod = 14

// RSI calculates the Relative Strength Index of series using simple
// (non-smoothed) averages over each trailing window of period deltas.
//
// The first period entries are 0. When a window has no losses the relative
// strength is +Inf and the RSI is exactly 100; a flat window therefore also
// reads 100.
func RSI(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if period <= 0 {
		return out
	}

	for i := period; i < len(series); i++ {
		gains, losses := 0.0, 0.0
		for j := i - period + 1; j <= i; j++ {
			change := series[j] - series[j-1]
			if change > 0 {
				gains += change
			} else {
				losses -= change
			}
		}

		avgGain := gains / float64(period)
		avgLoss := losses / float64(period)

		rs := math.Inf(1)
		if avgLoss != 0 {
			rs = avgGain / avgLoss
		}
		out[i] = 100 - 100/(1+rs)
	}
	return out
}
