package risk

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arb-engine/internal/config"
	"github.com/you/arb-engine/internal/pkg/id"
	"github.com/you/arb-engine/internal/portfolio"
	"github.com/you/arb-engine/internal/types"
	"go.uber.org/zap"
)

// ErrPositionNotFound means a caller referenced an unknown position id.
// That is a caller bug, never silently ignored.
var ErrPositionNotFound = errors.New("position not found")

const (
	// ReasonDailyLossLimit and ReasonPositionTooSmall are the structured
	// rejection reasons sizing can return.
	ReasonDailyLossLimit   = "daily loss limit reached"
	ReasonPositionTooSmall = "position too small"
	ReasonStopLossNotSet   = "stop loss not set"

	minTradableUnit = 1 // one unit of account currency
)

// Engine applies the configured hard limits. It holds no portfolio state of
// its own; every method takes the portfolio the single-owner cycle passes in.
type Engine struct {
	cfg config.RiskConfig
	log *zap.Logger
}

func NewEngine(cfg config.RiskConfig, log *zap.Logger) *Engine {
	return &Engine{cfg: cfg, log: log}
}

// Trade is a fully specified trade proposal. Construct through NewTrade so a
// missing stop-loss is an error at build time, not a surprise at validation.
type Trade struct {
	Path             types.AssetPath
	Value            decimal.Decimal
	EntryPrice       decimal.Decimal
	StopLossFraction float64
	Volatility       float64 // [0,1] estimate, informational
}

func NewTrade(path types.AssetPath, value, entryPrice decimal.Decimal, stopLossFraction, volatility float64) (Trade, error) {
	if stopLossFraction <= 0 {
		return Trade{}, fmt.Errorf("trade requires a positive stop-loss fraction, got %v", stopLossFraction)
	}
	if value.Sign() <= 0 {
		return Trade{}, fmt.Errorf("trade value must be positive, got %s", value)
	}
	if entryPrice.Sign() <= 0 {
		return Trade{}, fmt.Errorf("trade entry price must be positive, got %s", entryPrice)
	}
	return Trade{
		Path:             path,
		Value:            value,
		EntryPrice:       entryPrice,
		StopLossFraction: stopLossFraction,
		Volatility:       clamp01(volatility),
	}, nil
}

func (t Trade) Quantity() decimal.Decimal { return t.Value.Div(t.EntryPrice) }

type SizingResult struct {
	Allowed          bool
	Reason           string
	Size             decimal.Decimal
	MaxRisk          decimal.Decimal
	AvailableCapital decimal.Decimal
}

// SizePosition converts a detected opportunity into a risk-bounded size.
// Three caps apply and the smallest wins: risk held constant over the
// stop-loss width, the per-trade fraction of reserve-adjusted capital, and
// the reserve-adjusted capital itself.
func (e *Engine) SizePosition(opp types.Opportunity, pf *portfolio.Portfolio) SizingResult {
	if opp.StopLossFraction <= 0 {
		return SizingResult{Allowed: false, Reason: ReasonStopLossNotSet}
	}

	maxRisk := decimal.NewFromFloat(e.cfg.MaxLossPerTrade)
	maxDaily := decimal.NewFromFloat(e.cfg.MaxDailyLoss)
	// A full stop-loss hit on this trade must not push realized losses past
	// the daily cap; that subsumes the plain dailyLoss >= maxDailyLoss gate.
	if pf.DailyLoss.Add(maxRisk).GreaterThan(maxDaily) {
		e.log.Info("sizing rejected", zap.String("reason", ReasonDailyLossLimit),
			zap.String("daily_loss", pf.DailyLoss.String()))
		return SizingResult{Allowed: false, Reason: ReasonDailyLossLimit}
	}

	available := pf.Balance.Mul(decimal.NewFromFloat(1 - e.cfg.ReserveFraction))

	riskCap := maxRisk.Div(decimal.NewFromFloat(opp.StopLossFraction))
	capitalCap := available.Mul(decimal.NewFromFloat(e.cfg.MaxPositionSizeFraction))

	size := decimal.Min(riskCap, capitalCap, available).Floor()
	if size.LessThan(decimal.NewFromInt(minTradableUnit)) {
		e.log.Info("sizing rejected", zap.String("reason", ReasonPositionTooSmall),
			zap.String("size", size.String()))
		return SizingResult{Allowed: false, Reason: ReasonPositionTooSmall, MaxRisk: maxRisk, AvailableCapital: available}
	}

	return SizingResult{
		Allowed:          true,
		Size:             size,
		MaxRisk:          maxRisk,
		AvailableCapital: available,
	}
}

type ValidationResult struct {
	Valid     bool
	Errors    []string
	RiskScore float64
}

// ValidateTrade checks every constraint independently and reports all
// violations at once. The risk score is observability output only; it never
// gates the trade.
func (e *Engine) ValidateTrade(t Trade, pf *portfolio.Portfolio) ValidationResult {
	var errs []string

	maxValue := pf.Balance.Mul(decimal.NewFromFloat(e.cfg.MaxPositionSizeFraction))
	if t.Value.GreaterThan(maxValue) {
		errs = append(errs, fmt.Sprintf("position size %s exceeds maximum %s", t.Value, maxValue))
	}

	maxDaily := decimal.NewFromFloat(e.cfg.MaxDailyLoss)
	if pf.DailyLoss.GreaterThanOrEqual(maxDaily) {
		errs = append(errs, ReasonDailyLossLimit)
	}

	reserve := pf.Balance.Mul(decimal.NewFromFloat(e.cfg.ReserveFraction))
	if pf.Balance.Sub(t.Value).LessThan(reserve) {
		errs = append(errs, fmt.Sprintf("trade would breach reserve fund %s", reserve))
	}

	if t.StopLossFraction <= 0 {
		errs = append(errs, "stop loss not set")
	} else if t.StopLossFraction > e.cfg.MaxStopLossFraction {
		errs = append(errs, fmt.Sprintf("stop loss %.4f wider than maximum %.4f",
			t.StopLossFraction, e.cfg.MaxStopLossFraction))
	}

	if pf.OpenCount() >= e.cfg.MaxOpenPositions {
		errs = append(errs, fmt.Sprintf("open position limit %d reached", e.cfg.MaxOpenPositions))
	}

	score := e.riskScore(t, pf)
	if len(errs) > 0 {
		e.log.Warn("trade validation failed", zap.Strings("errors", errs), zap.Float64("risk_score", score))
	}

	return ValidationResult{Valid: len(errs) == 0, Errors: errs, RiskScore: score}
}

// riskScore is a bounded heuristic: position-size share up to 30 points,
// daily-loss usage up to 30, 4 per open position, volatility up to 20.
func (e *Engine) riskScore(t Trade, pf *portfolio.Portfolio) float64 {
	score := 0.0

	if pf.Balance.Sign() > 0 {
		sizeRatio, _ := t.Value.Div(pf.Balance).Float64()
		score += clamp01(sizeRatio) * 30
	}

	if e.cfg.MaxDailyLoss > 0 {
		lossRatio, _ := pf.DailyLoss.Div(decimal.NewFromFloat(e.cfg.MaxDailyLoss)).Float64()
		score += clamp01(lossRatio) * 30
	}

	score += float64(pf.OpenCount()) * 4
	score += clamp01(t.Volatility) * 20

	if score > 100 {
		score = 100
	}
	return score
}

type ExecutionResult struct {
	OK       bool
	Errors   []string
	Position *portfolio.Position
}

// ExecuteTrade re-validates and, only if everything passes, commits the
// trade: balance is debited and the position opened. On any violation the
// portfolio is untouched.
func (e *Engine) ExecuteTrade(t Trade, pf *portfolio.Portfolio) ExecutionResult {
	vr := e.ValidateTrade(t, pf)
	if !vr.Valid {
		return ExecutionResult{OK: false, Errors: vr.Errors}
	}

	pos := &portfolio.Position{
		ID:               id.New(),
		Value:            t.Value,
		EntryPrice:       t.EntryPrice,
		Quantity:         t.Quantity(),
		StopLossFraction: t.StopLossFraction,
		OpenedAt:         time.Now(),
		Status:           portfolio.StatusOpen,
	}
	pf.Balance = pf.Balance.Sub(t.Value)
	pf.Open[pos.ID] = pos

	e.log.Info("trade executed",
		zap.String("position_id", pos.ID),
		zap.String("value", pos.Value.String()),
		zap.String("balance", pf.Balance.String()),
	)
	return ExecutionResult{OK: true, Position: pos}
}

type CloseResult struct {
	Profit decimal.Decimal
	Record portfolio.TradeRecord
}

// CloseTrade realizes a position at the exit price. Losses, and only losses,
// count toward the daily limit.
func (e *Engine) CloseTrade(positionID string, exitPrice decimal.Decimal, pf *portfolio.Portfolio) (CloseResult, error) {
	pos, ok := pf.Open[positionID]
	if !ok {
		e.log.Error("close failed", zap.String("position_id", positionID), zap.Error(ErrPositionNotFound))
		return CloseResult{}, fmt.Errorf("close %s: %w", positionID, ErrPositionNotFound)
	}

	profit := exitPrice.Sub(pos.EntryPrice).Mul(pos.Quantity)
	if profit.Sign() < 0 {
		pf.DailyLoss = pf.DailyLoss.Add(profit.Abs())
	}
	pf.Balance = pf.Balance.Add(pos.Value).Add(profit)

	rec := portfolio.TradeRecord{
		PositionID: pos.ID,
		Value:      pos.Value,
		EntryPrice: pos.EntryPrice,
		ExitPrice:  exitPrice,
		Profit:     profit,
		OpenedAt:   pos.OpenedAt,
		ClosedAt:   time.Now(),
		Status:     portfolio.StatusClosed,
	}
	delete(pf.Open, positionID)
	pf.History = append(pf.History, rec)

	e.log.Info("trade closed",
		zap.String("position_id", pos.ID),
		zap.String("profit", profit.String()),
		zap.String("daily_loss", pf.DailyLoss.String()),
	)
	return CloseResult{Profit: profit, Record: rec}, nil
}

type Level string

const (
	LevelLow      Level = "LOW"
	LevelMedium   Level = "MEDIUM"
	LevelHigh     Level = "HIGH"
	LevelCritical Level = "CRITICAL"
)

type Snapshot struct {
	TotalExposure decimal.Decimal `json:"total_exposure"`
	ExposureRatio float64         `json:"exposure_ratio"`
	Level         Level           `json:"level"`
	ReserveIntact bool            `json:"reserve_intact"`
	OpenPositions int             `json:"open_positions"`
	Balance       decimal.Decimal `json:"balance"`
	DailyLoss     decimal.Decimal `json:"daily_loss"`
}

// PortfolioRisk is a read-only risk summary for monitoring collaborators.
func (e *Engine) PortfolioRisk(pf *portfolio.Portfolio) Snapshot {
	exposure := pf.TotalExposure()
	total := pf.Balance.Add(exposure)

	ratio := 0.0
	if total.Sign() > 0 {
		ratio, _ = exposure.Div(total).Float64()
	}

	var level Level
	switch {
	case ratio < 0.2:
		level = LevelLow
	case ratio < 0.5:
		level = LevelMedium
	case ratio < 0.8:
		level = LevelHigh
	default:
		level = LevelCritical
	}

	return Snapshot{
		TotalExposure: exposure,
		ExposureRatio: ratio,
		Level:         level,
		ReserveIntact: pf.Balance.GreaterThanOrEqual(pf.ReserveFloor()),
		OpenPositions: pf.OpenCount(),
		Balance:       pf.Balance,
		DailyLoss:     pf.DailyLoss,
	}
}

type EmergencyResult struct {
	Closed  int             `json:"closed"`
	Balance decimal.Decimal `json:"balance"`
}

// EmergencyStop liquidates every open position at committed value minus the
// configured slippage penalty. All records are computed before any state is
// touched, so the portfolio is never left partially liquidated.
func (e *Engine) EmergencyStop(pf *portfolio.Portfolio) (EmergencyResult, error) {
	slip := decimal.NewFromFloat(e.cfg.EmergencySlippage)
	now := time.Now()

	records := make([]portfolio.TradeRecord, 0, len(pf.Open))
	refund := decimal.Zero
	penalty := decimal.Zero
	for _, pos := range pf.Open {
		loss := pos.Value.Mul(slip)
		exit := pos.EntryPrice.Mul(decimal.NewFromInt(1).Sub(slip))
		records = append(records, portfolio.TradeRecord{
			PositionID: pos.ID,
			Value:      pos.Value,
			EntryPrice: pos.EntryPrice,
			ExitPrice:  exit,
			Profit:     loss.Neg(),
			OpenedAt:   pos.OpenedAt,
			ClosedAt:   now,
			Status:     portfolio.StatusEmergencyClosed,
		})
		refund = refund.Add(pos.Value.Sub(loss))
		penalty = penalty.Add(loss)
	}

	pf.Balance = pf.Balance.Add(refund)
	pf.DailyLoss = pf.DailyLoss.Add(penalty)
	pf.History = append(pf.History, records...)
	pf.Open = make(map[string]*portfolio.Position)

	e.log.Warn("emergency stop executed",
		zap.Int("closed", len(records)),
		zap.String("balance", pf.Balance.String()),
		zap.String("slippage_penalty", penalty.String()),
	)
	return EmergencyResult{Closed: len(records), Balance: pf.Balance}, nil
}

// ResetDailyLimits zeroes the realized daily loss, re-enabling trading after
// the daily gate has tripped. Called by the operator at day rollover.
func (e *Engine) ResetDailyLimits(pf *portfolio.Portfolio) {
	pf.DailyLoss = decimal.Zero
	e.log.Info("daily limits reset")
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
