package types

import (
	"fmt"
	"time"
)

// AssetPath is a cyclic arbitrage route: the sequence of asset symbols the
// trade walks through before returning to the first one. The closing hop back
// to the origin is implicit, so ["USDC","USDT","DAI"] means
// USDC -> USDT -> DAI -> USDC.
type AssetPath []string

func (p AssetPath) Validate() error {
	if len(p) < 3 {
		return fmt.Errorf("path needs at least 3 assets, got %d", len(p))
	}
	seen := make(map[string]struct{}, len(p))
	for _, a := range p {
		if a == "" {
			return fmt.Errorf("path contains an empty asset symbol")
		}
		if _, dup := seen[a]; dup {
			return fmt.Errorf("path revisits %s before closing the cycle", a)
		}
		seen[a] = struct{}{}
	}
	return nil
}

// Pairs returns the ordered pair keys for every leg, including the closing
// leg back to the origin asset.
func (p AssetPath) Pairs() []string {
	out := make([]string, 0, len(p))
	for i := range p {
		out = append(out, p[i]+"/"+p[(i+1)%len(p)])
	}
	return out
}

func (p AssetPath) LegCount() int { return len(p) }

func (p AssetPath) String() string {
	s := ""
	for i, a := range p {
		if i > 0 {
			s += "->"
		}
		s += a
	}
	if len(p) > 0 {
		s += "->" + p[0]
	}
	return s
}

// Opportunity is the detector's output for one path over one snapshot.
// Immutable once produced.
type Opportunity struct {
	Path           AssetPath
	GrossRate      float64
	NetProfitRatio float64 // gross - 1 - feePerLeg*legs, always fee-inclusive
	Confidence     float64 // [0, 0.95]
	Actionable     bool    // NetProfitRatio strictly above the profit threshold

	// StopLossFraction is attached by the decision cycle before sizing; the
	// detector itself leaves it zero.
	StopLossFraction float64

	Ts time.Time
}

// Leg is one pairwise exchange within an order intent.
type Leg struct {
	Pair     string  `json:"pair"`
	Side     string  `json:"side"`
	Quantity float64 `json:"quantity"`
}

// OrderIntent is what the engine hands to an Executor. The engine never
// speaks exchange wire protocols itself.
type OrderIntent struct {
	ID          string    `json:"id"`
	Path        AssetPath `json:"path"`
	Legs        []Leg     `json:"legs"`
	MaxSlippage float64   `json:"max_slippage"`
	Ts          time.Time `json:"ts"`
}

// FillConfirmation is the Executor's answer for a submitted intent.
type FillConfirmation struct {
	OrderIntentID string    `json:"order_intent_id"`
	ExecutedPrice float64   `json:"executed_price"`
	Ts            time.Time `json:"ts"`
	Success       bool      `json:"success"`
}
