package indicator

// FibonacciRatios are the retracement ratios produced by FibonacciLevels.
var FibonacciRatios = []float64{0, 0.236, 0.382, 0.5, 0.618, 1}

// Levels maps a retracement ratio to its price.
type Levels map[float64]float64

// At returns the price for ratio r. A ratio outside FibonacciRatios is
// computed directly from the 0 and 1 levels.
func (l Levels) At(r float64) float64 {
	if v, ok := l[r]; ok {
		return v
	}
	high, low := l[0], l[1]
	return high - (high-low)*r
}

// FibonacciLevels derives retracement prices from a high/low range as
// high - (high-low)*ratio.
func FibonacciLevels(high, low float64) Levels {
	levels := make(Levels, len(FibonacciRatios))
	span := high - low
	for _, r := range FibonacciRatios {
		levels[r] = high - span*r
	}
	return levels
}
