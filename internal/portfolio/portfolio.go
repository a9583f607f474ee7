package portfolio

import (
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusOpen            Status = "OPEN"
	StatusClosed          Status = "CLOSED"
	StatusEmergencyClosed Status = "EMERGENCY_CLOSED"
)

// Position is capital committed to one executed trade. Owned exclusively by
// the Portfolio that created it; nothing outside the risk engine mutates it.
type Position struct {
	ID               string
	Value            decimal.Decimal // capital committed
	EntryPrice       decimal.Decimal
	Quantity         decimal.Decimal
	StopLossFraction float64
	OpenedAt         time.Time
	Status           Status
}

// TradeRecord is the closed form of a Position, appended to the history log.
type TradeRecord struct {
	PositionID string
	Value      decimal.Decimal
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Profit     decimal.Decimal
	OpenedAt   time.Time
	ClosedAt   time.Time
	Status     Status
}

// Portfolio is the only long-lived mutable state in the engine. All mutation
// goes through the risk engine entry points, and the decision cycle is the
// single goroutine that calls them.
type Portfolio struct {
	StartingBalance decimal.Decimal
	Balance         decimal.Decimal
	DailyLoss       decimal.Decimal
	ReserveFraction float64

	Open    map[string]*Position
	History []TradeRecord
}

func New(startingBalance float64, reserveFraction float64) *Portfolio {
	start := decimal.NewFromFloat(startingBalance)
	return &Portfolio{
		StartingBalance: start,
		Balance:         start,
		ReserveFraction: reserveFraction,
		Open:            make(map[string]*Position),
	}
}

// TotalExposure is the capital committed across all open positions.
func (p *Portfolio) TotalExposure() decimal.Decimal {
	total := decimal.Zero
	for _, pos := range p.Open {
		total = total.Add(pos.Value)
	}
	return total
}

func (p *Portfolio) OpenCount() int { return len(p.Open) }

// ReserveFloor is the balance that must never be committed.
func (p *Portfolio) ReserveFloor() decimal.Decimal {
	return p.StartingBalance.Mul(decimal.NewFromFloat(p.ReserveFraction))
}
