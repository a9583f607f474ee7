package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/you/arb-engine/internal/config"
	"github.com/you/arb-engine/internal/detector"
	"github.com/you/arb-engine/internal/marketdata"
	"github.com/you/arb-engine/internal/metrics"
	"github.com/you/arb-engine/internal/types"
	"go.uber.org/zap"
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Stream detected opportunities without trading",
	RunE:  runMonitor,
}

// runMonitor drives feed -> detector only. No portfolio, no capital at risk;
// useful for validating paths and thresholds against a live feed.
func runMonitor(_ *cobra.Command, _ []string) error {
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

	snaps := make(chan marketdata.Snapshot, 1)
	opps := make(chan types.Opportunity, 16)
	go marketdata.Pump(ctx, source, cfg.CycleTick(), snaps, log)
	go detector.Run(ctx, cfg, snaps, opps, log)

	log.Info("monitor started",
		zap.Int("paths", len(cfg.Detector.Paths)),
		zap.Duration("cycle", cfg.CycleTick()),
	)

	for {
		select {
		case <-ctx.Done():
			log.Info("monitor stopped")
			return nil
		case opp := <-opps:
			log.Info("opportunity",
				zap.String("path", opp.Path.String()),
				zap.Float64("gross_rate", opp.GrossRate),
				zap.Float64("net_profit_ratio", opp.NetProfitRatio),
				zap.Float64("confidence", opp.Confidence),
			)
		}
	}
}
