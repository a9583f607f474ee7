package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/you/arb-engine/internal/config"
	"github.com/you/arb-engine/internal/connectors/redisfeed"
	"github.com/you/arb-engine/internal/engine"
	"github.com/you/arb-engine/internal/execution"
	"github.com/you/arb-engine/internal/marketdata"
	"github.com/you/arb-engine/internal/metrics"
	"github.com/you/arb-engine/internal/ops"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the decision engine",
	RunE:  runEngine,
}

func newLogger() (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	cfg.Encoding = "json"
	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.LevelKey = "level"
	cfg.EncoderConfig.MessageKey = "msg"
	cfg.EncoderConfig.CallerKey = "caller"
	cfg.EncoderConfig.StacktraceKey = "stacktrace"
	cfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout(time.RFC3339)
	return cfg.Build()
}

func runEngine(_ *cobra.Command, _ []string) error {
	_ = godotenv.Load()

	log, err := newLogger()
	if err != nil {
		return err
	}
	defer log.Sync()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		log.Warn("received signal, shutting down...")
		cancel()
	}()

	metrics.Serve(ctx, cfg.Metrics.ListenAddr, nil, log)

	source, err := newSource(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("feed: %w", err)
	}

	// Paper trading is the only built-in executor; live execution belongs to
	// an external collaborator wired in at deployment time.
	if !cfg.PaperTrading {
		log.Fatal("no live executor configured; set paper_trading: true")
	}
	exec := execution.NewPaperExecutor(cfg.SettleDelay(), cfg.Paper.FillDriftBps, log)

	pub := redisfeed.NewPublisher(cfg.Redis)
	if pub != nil {
		defer pub.Close()
		log.Info("redis publisher enabled", zap.String("addr", cfg.Redis.Addr))
	}

	cyc := newCycle(cfg, source, exec, pub, log)
	ops.StartHTTP(ctx, cyc, cfg.Ops.ListenAddr, log)

	log.Info("engine started",
		zap.Bool("paper_trading", cfg.PaperTrading),
		zap.Int("paths", len(cfg.Detector.Paths)),
		zap.Duration("cycle", cfg.CycleTick()),
	)

	cyc.Run(ctx)
	log.Info("engine stopped")
	return nil
}

func newSource(ctx context.Context, cfg *config.Config, log *zap.Logger) (marketdata.Source, error) {
	switch cfg.Feed.Mode {
	case "ws":
		ws := marketdata.NewWSSource(cfg.Feed.WsURL, log)
		go ws.Run(ctx)
		return ws, nil
	default:
		return marketdata.NewStaticSource(cfg.Feed.Rates)
	}
}

func newCycle(cfg *config.Config, source marketdata.Source, exec execution.Executor, pub *redisfeed.Publisher, log *zap.Logger) *engine.Cycle {
	// A nil *Publisher must stay a nil interface, otherwise the cycle's nil
	// check never fires.
	if pub == nil {
		return engine.New(cfg, source, exec, nil, log)
	}
	return engine.New(cfg, source, exec, pub, log)
}
