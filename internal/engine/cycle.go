package engine

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/you/arb-engine/internal/config"
	"github.com/you/arb-engine/internal/detector"
	"github.com/you/arb-engine/internal/execution"
	"github.com/you/arb-engine/internal/marketdata"
	"github.com/you/arb-engine/internal/metrics"
	"github.com/you/arb-engine/internal/pkg/id"
	"github.com/you/arb-engine/internal/portfolio"
	"github.com/you/arb-engine/internal/risk"
	"github.com/you/arb-engine/internal/types"
	"go.uber.org/zap"
)

type State string

const (
	StateIdle       State = "IDLE"
	StateDetecting  State = "DETECTING"
	StateSizing     State = "SIZING"
	StateValidating State = "VALIDATING"
	StateExecuting  State = "EXECUTING"
	StateSettling   State = "SETTLING"
)

type OutcomeKind string

const (
	OutcomeMonitor  OutcomeKind = "MONITOR"
	OutcomeExecuted OutcomeKind = "EXECUTED"
)

// Outcome is the result of one decision cycle. MONITOR with a reason is the
// expected majority case under near-parity prices.
type Outcome struct {
	Kind       OutcomeKind
	Reason     string
	PositionID string
}

// Publisher receives trade and risk events for external monitoring. Nil-safe
// from the cycle's perspective; see connectors/redisfeed.
type Publisher interface {
	PublishTrade(ctx context.Context, rec portfolio.TradeRecord) error
	PublishRisk(ctx context.Context, rs risk.Snapshot) error
}

// PortfolioView is the read model served to the ops surface.
type PortfolioView struct {
	Balance       decimal.Decimal         `json:"balance"`
	DailyLoss     decimal.Decimal         `json:"daily_loss"`
	OpenPositions []portfolio.Position    `json:"open_positions"`
	History       []portfolio.TradeRecord `json:"history"`
}

// Cycle owns the Portfolio. One goroutine (Run) performs every mutation:
// decision ticks, settlements, emergency stops and daily resets are all
// linearized through its event loop, so a settlement's effect on balance and
// daily loss is always visible to the next cycle's sizing.
type Cycle struct {
	cfg    *config.Config
	log    *zap.Logger
	engine *risk.Engine
	pf     *portfolio.Portfolio
	source marketdata.Source
	exec   execution.Executor
	pub    Publisher

	state   State
	pending map[string]string // order intent id -> position id

	emergencyCh chan chan emergencyReply
	riskCh      chan chan risk.Snapshot
	viewCh      chan chan PortfolioView
	resetCh     chan chan struct{}
}

type emergencyReply struct {
	res risk.EmergencyResult
	err error
}

func New(cfg *config.Config, source marketdata.Source, exec execution.Executor, pub Publisher, log *zap.Logger) *Cycle {
	return &Cycle{
		cfg:         cfg,
		log:         log,
		engine:      risk.NewEngine(cfg.Risk, log),
		pf:          portfolio.New(cfg.StartingBalance, cfg.Risk.ReserveFraction),
		source:      source,
		exec:        exec,
		pub:         pub,
		state:       StateIdle,
		pending:     make(map[string]string),
		emergencyCh: make(chan chan emergencyReply),
		riskCh:      make(chan chan risk.Snapshot),
		viewCh:      make(chan chan PortfolioView),
		resetCh:     make(chan chan struct{}),
	}
}

// Run is the single-owner event loop. It exits when ctx is cancelled.
func (c *Cycle) Run(ctx context.Context) {
	t := time.NewTicker(c.cfg.CycleTick())
	defer t.Stop()

	for {
		// An emergency stop preempts whatever tick or fill is queued next.
		// The current atomic step always finishes first because this loop
		// handles one event at a time.
		select {
		case reply := <-c.emergencyCh:
			c.handleEmergency(ctx, reply)
			continue
		default:
		}

		select {
		case <-ctx.Done():
			return
		case reply := <-c.emergencyCh:
			c.handleEmergency(ctx, reply)
		case reply := <-c.riskCh:
			reply <- c.engine.PortfolioRisk(c.pf)
		case reply := <-c.viewCh:
			reply <- c.view()
		case reply := <-c.resetCh:
			c.engine.ResetDailyLimits(c.pf)
			close(reply)
		case fill := <-c.exec.Fills():
			c.settle(ctx, fill)
		case <-t.C:
			start := time.Now()
			out := c.runOnce(ctx)
			metrics.CycleLatency.Observe(time.Since(start).Seconds())
			metrics.CycleOutcomes.WithLabelValues(string(out.Kind)).Inc()
			c.publishGauges()
			if out.Kind == OutcomeMonitor {
				c.log.Debug("cycle outcome", zap.String("kind", string(out.Kind)), zap.String("reason", out.Reason))
			} else {
				c.log.Info("cycle outcome", zap.String("kind", string(out.Kind)), zap.String("position_id", out.PositionID))
			}
		}
	}
}

// runOnce performs one pass of the state machine:
// DETECTING -> SIZING -> VALIDATING -> EXECUTING -> (async SETTLING).
// Every failed transition returns to IDLE with a MONITOR outcome.
func (c *Cycle) runOnce(ctx context.Context) Outcome {
	defer func() { c.state = StateIdle }()

	c.state = StateDetecting
	snap, err := c.source.Snapshot(ctx)
	if err != nil {
		return Outcome{Kind: OutcomeMonitor, Reason: fmt.Sprintf("no snapshot: %v", err)}
	}

	opps := detector.DetectAll(snap, c.cfg.Detector, c.log)
	var best *types.Opportunity
	for i := range opps {
		if opps[i].Actionable {
			best = &opps[i]
			break
		}
	}
	if best == nil {
		return Outcome{Kind: OutcomeMonitor, Reason: "no actionable opportunity"}
	}
	best.StopLossFraction = c.cfg.Risk.DefaultStopLossFraction

	c.state = StateSizing
	sizing := c.engine.SizePosition(*best, c.pf)
	if !sizing.Allowed {
		return Outcome{Kind: OutcomeMonitor, Reason: sizing.Reason}
	}

	c.state = StateValidating
	trade, err := risk.NewTrade(best.Path, sizing.Size, decimal.NewFromInt(1),
		best.StopLossFraction, 1-best.Confidence)
	if err != nil {
		return Outcome{Kind: OutcomeMonitor, Reason: err.Error()}
	}
	vr := c.engine.ValidateTrade(trade, c.pf)
	metrics.RiskScore.Set(vr.RiskScore)
	if !vr.Valid {
		return Outcome{Kind: OutcomeMonitor, Reason: strings.Join(vr.Errors, "; ")}
	}

	c.state = StateExecuting
	res := c.engine.ExecuteTrade(trade, c.pf)
	if !res.OK {
		return Outcome{Kind: OutcomeMonitor, Reason: strings.Join(res.Errors, "; ")}
	}
	metrics.TradesExecuted.Inc()

	intent := c.buildIntent(*best, trade, snap)
	if err := c.exec.Submit(ctx, intent); err != nil {
		// Could not hand off: unwind the position at entry so capital is not
		// stranded in a position nothing will ever settle.
		_, _ = c.engine.CloseTrade(res.Position.ID, res.Position.EntryPrice, c.pf)
		return Outcome{Kind: OutcomeMonitor, Reason: fmt.Sprintf("executor rejected intent: %v", err)}
	}

	c.state = StateSettling
	c.pending[intent.ID] = res.Position.ID
	return Outcome{Kind: OutcomeExecuted, PositionID: res.Position.ID}
}

// buildIntent converts the sized trade into executor legs, propagating the
// quantity through each leg's snapshot rate.
func (c *Cycle) buildIntent(opp types.Opportunity, trade risk.Trade, snap marketdata.Snapshot) types.OrderIntent {
	qty, _ := trade.Quantity().Float64()
	legs := make([]types.Leg, 0, opp.Path.LegCount())
	for _, pair := range opp.Path.Pairs() {
		legs = append(legs, types.Leg{Pair: pair, Side: "SELL", Quantity: qty})
		if r, ok := snap.Rate(pair); ok {
			qty *= r
		}
	}
	return types.OrderIntent{
		ID:          id.New(),
		Path:        opp.Path,
		Legs:        legs,
		MaxSlippage: c.cfg.Risk.DefaultStopLossFraction,
		Ts:          time.Now(),
	}
}

func (c *Cycle) settle(ctx context.Context, fill types.FillConfirmation) {
	posID, ok := c.pending[fill.OrderIntentID]
	if !ok {
		c.log.Error("settlement for unknown intent", zap.String("intent_id", fill.OrderIntentID))
		return
	}
	delete(c.pending, fill.OrderIntentID)

	pos, ok := c.pf.Open[posID]
	if !ok {
		// Position was already liquidated by an emergency stop.
		c.log.Warn("settlement for already-closed position", zap.String("position_id", posID))
		return
	}

	exit := pos.EntryPrice
	if fill.Success {
		// A fill that reports success with a garbage price would book the
		// whole position value as loss. Treat it like a failed fill instead.
		if p := fill.ExecutedPrice; p > 0 && !math.IsInf(p, 0) {
			exit = decimal.NewFromFloat(p)
		} else {
			c.log.Error("settlement with malformed fill price, closing at entry",
				zap.String("position_id", posID),
				zap.Float64("executed_price", p),
			)
		}
	}
	res, err := c.engine.CloseTrade(posID, exit, c.pf)
	if err != nil {
		c.log.Error("settlement failed", zap.String("position_id", posID), zap.Error(err))
		return
	}
	c.publishGauges()
	if c.pub != nil {
		if err := c.pub.PublishTrade(ctx, res.Record); err != nil {
			c.log.Warn("trade publish failed", zap.Error(err))
		}
	}
}

func (c *Cycle) handleEmergency(ctx context.Context, reply chan emergencyReply) {
	res, err := c.engine.EmergencyStop(c.pf)
	if err == nil {
		// Settlements for liquidated positions would now be NotFound noise;
		// drop the pending map wholesale.
		c.pending = make(map[string]string)
	}
	c.publishGauges()
	if c.pub != nil {
		if perr := c.pub.PublishRisk(ctx, c.engine.PortfolioRisk(c.pf)); perr != nil {
			c.log.Warn("risk publish failed", zap.Error(perr))
		}
	}
	reply <- emergencyReply{res: res, err: err}
}

func (c *Cycle) view() PortfolioView {
	open := make([]portfolio.Position, 0, len(c.pf.Open))
	for _, p := range c.pf.Open {
		open = append(open, *p)
	}
	hist := make([]portfolio.TradeRecord, len(c.pf.History))
	copy(hist, c.pf.History)
	return PortfolioView{
		Balance:       c.pf.Balance,
		DailyLoss:     c.pf.DailyLoss,
		OpenPositions: open,
		History:       hist,
	}
}

func (c *Cycle) publishGauges() {
	bal, _ := c.pf.Balance.Float64()
	loss, _ := c.pf.DailyLoss.Float64()
	metrics.Balance.Set(bal)
	metrics.DailyLoss.Set(loss)
	metrics.OpenPositions.Set(float64(c.pf.OpenCount()))
	metrics.ExposureRatio.Set(c.engine.PortfolioRisk(c.pf).ExposureRatio)
}

// EmergencyStop liquidates everything. Callable from any goroutine; the
// request is serviced by the owner loop ahead of pending ticks and fills.
func (c *Cycle) EmergencyStop(ctx context.Context) (risk.EmergencyResult, error) {
	reply := make(chan emergencyReply, 1)
	select {
	case c.emergencyCh <- reply:
	case <-ctx.Done():
		return risk.EmergencyResult{}, ctx.Err()
	}
	select {
	case r := <-reply:
		return r.res, r.err
	case <-ctx.Done():
		return risk.EmergencyResult{}, ctx.Err()
	}
}

// Risk returns the current portfolio risk snapshot.
func (c *Cycle) Risk(ctx context.Context) (risk.Snapshot, error) {
	reply := make(chan risk.Snapshot, 1)
	select {
	case c.riskCh <- reply:
	case <-ctx.Done():
		return risk.Snapshot{}, ctx.Err()
	}
	select {
	case rs := <-reply:
		return rs, nil
	case <-ctx.Done():
		return risk.Snapshot{}, ctx.Err()
	}
}

// Portfolio returns a copy of the portfolio state for the ops surface.
func (c *Cycle) Portfolio(ctx context.Context) (PortfolioView, error) {
	reply := make(chan PortfolioView, 1)
	select {
	case c.viewCh <- reply:
	case <-ctx.Done():
		return PortfolioView{}, ctx.Err()
	}
	select {
	case v := <-reply:
		return v, nil
	case <-ctx.Done():
		return PortfolioView{}, ctx.Err()
	}
}

// ResetDailyLimits zeroes the daily realized loss.
func (c *Cycle) ResetDailyLimits(ctx context.Context) error {
	reply := make(chan struct{})
	select {
	case c.resetCh <- reply:
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-reply:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
