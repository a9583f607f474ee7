package execution

import (
	"context"
	"time"

	"github.com/you/arb-engine/internal/types"
	"go.uber.org/zap"
)

// Executor is the boundary to whatever actually fills orders. The engine
// submits an intent and later receives a fill confirmation on Fills; it never
// blocks a decision cycle waiting for one.
type Executor interface {
	Submit(ctx context.Context, intent types.OrderIntent) error
	Fills() <-chan types.FillConfirmation
}

// PaperExecutor simulates fills with zero external side effects. Every
// submitted intent fills after the settle delay at the entry price adjusted
// by a fixed drift, so paper runs exercise the full settlement path.
type PaperExecutor struct {
	delay time.Duration
	drift float64 // fractional price drift applied to simulated fills
	fills chan types.FillConfirmation
	log   *zap.Logger
}

func NewPaperExecutor(delay time.Duration, driftBps float64, log *zap.Logger) *PaperExecutor {
	return &PaperExecutor{
		delay: delay,
		drift: driftBps / 10000.0,
		fills: make(chan types.FillConfirmation, 64),
		log:   log,
	}
}

func (p *PaperExecutor) Submit(ctx context.Context, intent types.OrderIntent) error {
	p.log.Info("paper fill scheduled",
		zap.String("intent_id", intent.ID),
		zap.String("path", intent.Path.String()),
		zap.Duration("delay", p.delay),
	)
	go func() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(p.delay):
		}
		fill := types.FillConfirmation{
			OrderIntentID: intent.ID,
			ExecutedPrice: 1.0 + p.drift,
			Ts:            time.Now(),
			Success:       true,
		}
		select {
		case p.fills <- fill:
		case <-ctx.Done():
		}
	}()
	return nil
}

func (p *PaperExecutor) Fills() <-chan types.FillConfirmation {
	return p.fills
}
