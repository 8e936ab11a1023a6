package strategy

import (
	"time"

	"signal-advisor/internal/model"
)

// ShouldProcess reports whether a ticker's feed has advanced past the last
// bar the engine acted on. It returns false iff LastProcessed is set and
// latest is not after it.
func ShouldProcess(t model.Ticker, latest time.Time) bool {
	if t.LastProcessed != nil && !latest.After(*t.LastProcessed) {
		return false
	}
	return true
}
