package marketdata

import (
	"fmt"
	"math"
	"time"
)

// Snapshot is an immutable view of cross-asset rates at a point in time.
// Keys are ordered pair strings, e.g. "USDC/USDT"; the rate is how many units
// of the quote asset one unit of the base asset buys.
type Snapshot struct {
	Rates map[string]float64
	Ts    time.Time
}

// NewSnapshot validates the raw rates from a market-data collaborator.
// Non-positive or non-finite rates are malformed input, not data.
func NewSnapshot(rates map[string]float64, ts time.Time) (Snapshot, error) {
	for pair, r := range rates {
		if r <= 0 || math.IsNaN(r) || math.IsInf(r, 0) {
			return Snapshot{}, fmt.Errorf("malformed rate for %s: %v", pair, r)
		}
	}
	cp := make(map[string]float64, len(rates))
	for k, v := range rates {
		cp[k] = v
	}
	return Snapshot{Rates: cp, Ts: ts}, nil
}

// Rate returns the rate for a pair and whether it was present.
func (s Snapshot) Rate(pair string) (float64, bool) {
	r, ok := s.Rates[pair]
	return r, ok
}

func (s Snapshot) Empty() bool { return len(s.Rates) == 0 }
