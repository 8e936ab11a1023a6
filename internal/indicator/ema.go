package indicator

// EMA calculates the Exponential Moving Average of series.
//
// The first period-1 entries are 0. Entry period-1 is the SMA of the first
// period values, and every later entry applies the 2/(period+1) multiplier
// to the previous EMA.
func EMA(series []float64, period int) []float64 {
	out := make([]float64, len(series))
	if period <= 0 || len(series) < period {
		return out
	}

	sum := 0.0
	for i := 0; i < period; i++ {
		sum += series[i]
	}
	out[period-1] = sum / float64(period)

	multiplier := 2.0 / float64(period+1)
	for i := period; i < len(series); i++ {
		out[i] = (series[i]-out[i-1])*multiplier + out[i-1]
	}
	return out
}
