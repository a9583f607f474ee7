package detector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/arb-engine/internal/config"
	"github.com/you/arb-engine/internal/marketdata"
	"github.com/you/arb-engine/internal/types"
	"go.uber.org/zap"
)

func snapshotOf(t *testing.T, rates map[string]float64) marketdata.Snapshot {
	t.Helper()
	s, err := marketdata.NewSnapshot(rates, time.Now())
	require.NoError(t, err)
	return s
}

var stablePath = types.AssetPath{"USDC", "USDT", "DAI"}

func TestDetect_ProfitableTriangle(t *testing.T) {
	snap := snapshotOf(t, map[string]float64{
		"USDC/USDT": 1.005,
		"USDT/DAI":  1.003,
		"DAI/USDC":  1.002,
	})

	opp, missing, err := Detect(snap, stablePath, 0.001, 0.001)
	require.NoError(t, err)
	assert.Zero(t, missing)
	assert.True(t, opp.Actionable)
	assert.InDelta(t, 0.0070, opp.NetProfitRatio, 0.0002)
	assert.InDelta(t, opp.NetProfitRatio, opp.Confidence, 1e-12)
}

func TestDetect_ParityIsNeverActionable(t *testing.T) {
	snap := snapshotOf(t, map[string]float64{
		"USDC/USDT": 1.0,
		"USDT/DAI":  1.0,
		"DAI/USDC":  1.0,
	})

	opp, _, err := Detect(snap, stablePath, 0.001, 0.001)
	require.NoError(t, err)
	assert.False(t, opp.Actionable)
	assert.InDelta(t, -0.003, opp.NetProfitRatio, 1e-12)
	assert.Zero(t, opp.Confidence)
}

func TestDetect_FeesAloneNeverPositive(t *testing.T) {
	// Rates chosen as exact binary fractions so the product is exactly 1.
	snap := snapshotOf(t, map[string]float64{
		"A/B": 2.0,
		"B/C": 0.25,
		"C/A": 2.0,
	})

	opp, _, err := Detect(snap, types.AssetPath{"A", "B", "C"}, 0.001, 0)
	require.NoError(t, err)
	assert.InDelta(t, -0.003, opp.NetProfitRatio, 1e-12)
	assert.False(t, opp.Actionable)
}

func TestDetect_ThresholdIsStrict(t *testing.T) {
	snap := snapshotOf(t, map[string]float64{
		"A/B": 1.004,
		"B/C": 1.0,
		"C/A": 1.0,
	})

	// At threshold exactly equal to the net ratio the opportunity must not
	// be actionable; one epsilon below the threshold it must be.
	probe, _, err := Detect(snap, types.AssetPath{"A", "B", "C"}, 0, 1)
	require.NoError(t, err)
	net := probe.NetProfitRatio
	require.Greater(t, net, 0.0)

	atBoundary, _, err := Detect(snap, types.AssetPath{"A", "B", "C"}, 0, net)
	require.NoError(t, err)
	assert.False(t, atBoundary.Actionable)

	above, _, err := Detect(snap, types.AssetPath{"A", "B", "C"}, 0, net-1e-12)
	require.NoError(t, err)
	assert.True(t, above.Actionable)
}

func TestDetect_MissingPairDefaultsToParity(t *testing.T) {
	snap := snapshotOf(t, map[string]float64{
		"USDC/USDT": 1.002,
	})

	opp, missing, err := Detect(snap, stablePath, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, missing)
	assert.InDelta(t, 1.002, opp.GrossRate, 1e-12)
}

func TestDetect_ConfidenceClamped(t *testing.T) {
	snap := snapshotOf(t, map[string]float64{
		"A/B": 2.0,
		"B/C": 2.0,
		"C/A": 2.0,
	})

	opp, _, err := Detect(snap, types.AssetPath{"A", "B", "C"}, 0, 0.001)
	require.NoError(t, err)
	assert.InDelta(t, 0.95, opp.Confidence, 1e-12)
}

func TestDetect_RejectsBadPaths(t *testing.T) {
	snap := snapshotOf(t, map[string]float64{"A/B": 1.0})

	_, _, err := Detect(snap, types.AssetPath{"A", "B"}, 0, 0)
	assert.Error(t, err)

	_, _, err = Detect(snap, types.AssetPath{"A", "B", "A"}, 0, 0)
	assert.Error(t, err)

	_, _, err = Detect(snap, types.AssetPath{"A", "B", ""}, 0, 0)
	assert.Error(t, err)
}

func TestRank_ProfitDescThenShorterPath(t *testing.T) {
	opps := []types.Opportunity{
		{Path: types.AssetPath{"A", "B", "C", "D"}, NetProfitRatio: 0.002},
		{Path: types.AssetPath{"A", "B", "C"}, NetProfitRatio: 0.002},
		{Path: types.AssetPath{"X", "Y", "Z"}, NetProfitRatio: 0.005},
	}

	Rank(opps)

	assert.InDelta(t, 0.005, opps[0].NetProfitRatio, 1e-12)
	assert.Equal(t, 3, opps[1].Path.LegCount())
	assert.Equal(t, 4, opps[2].Path.LegCount())
}

func TestDetectAll_SkipsInvalidPaths(t *testing.T) {
	snap := snapshotOf(t, map[string]float64{
		"USDC/USDT": 1.005,
		"USDT/DAI":  1.003,
		"DAI/USDC":  1.002,
	})
	cfg := config.DetectorConfig{
		FeePerLeg:       0.001,
		ProfitThreshold: 0.001,
		Paths: [][]string{
			{"USDC", "USDT", "DAI"},
			{"USDC", "USDT"}, // too short, skipped
		},
	}

	opps := DetectAll(snap, cfg, zap.NewNop())
	require.Len(t, opps, 1)
	assert.True(t, opps[0].Actionable)
}

func TestRun_EmitsOnlyActionableOpportunities(t *testing.T) {
	cfg := &config.Config{
		Detector: config.DetectorConfig{
			FeePerLeg:       0.001,
			ProfitThreshold: 0.001,
			Paths: [][]string{
				{"USDC", "USDT", "DAI"},
				{"USDC", "DAI", "USDT"}, // reversed: loses the same edge
			},
		},
	}
	cfg.Timings.CycleMs = 5

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	in := make(chan marketdata.Snapshot, 1)
	out := make(chan types.Opportunity, 16)
	go Run(ctx, cfg, in, out, zap.NewNop())

	in <- snapshotOf(t, map[string]float64{
		"USDC/USDT": 1.005,
		"USDT/DAI":  1.003,
		"DAI/USDC":  1.002,
		"USDC/DAI":  1.0 / 1.002,
		"DAI/USDT":  1.0 / 1.003,
		"USDT/USDC": 1.0 / 1.005,
	})

	select {
	case opp := <-out:
		assert.True(t, opp.Actionable)
		assert.Equal(t, "USDC->USDT->DAI->USDC", opp.Path.String())
	case <-time.After(2 * time.Second):
		t.Fatal("no opportunity emitted")
	}
}

func TestRun_StopsOnContextCancel(t *testing.T) {
	cfg := &config.Config{Detector: config.DetectorConfig{
		FeePerLeg: 0.001, ProfitThreshold: 0.001,
		Paths: [][]string{{"USDC", "USDT", "DAI"}},
	}}
	cfg.Timings.CycleMs = 5

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		Run(ctx, cfg, make(chan marketdata.Snapshot), make(chan types.Opportunity), zap.NewNop())
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("run did not stop")
	}
}
