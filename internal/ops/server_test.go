package ops

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/you/arb-engine/internal/config"
	"github.com/you/arb-engine/internal/engine"
	"github.com/you/arb-engine/internal/execution"
	"github.com/you/arb-engine/internal/marketdata"
	"github.com/you/arb-engine/internal/risk"
	"go.uber.org/zap"
)

func newTestServer(t *testing.T) (*httptest.Server, context.CancelFunc) {
	t.Helper()
	cfg := &config.Config{
		StartingBalance: 1000,
		PaperTrading:    true,
		Risk: config.RiskConfig{
			MaxLossPerTrade:         10,
			MaxDailyLoss:            20,
			MaxPositionSizeFraction: 0.2,
			ReserveFraction:         0.2,
			MaxOpenPositions:        3,
			MaxStopLossFraction:     0.05,
			DefaultStopLossFraction: 0.02,
			EmergencySlippage:       0.02,
		},
		Detector: config.DetectorConfig{
			FeePerLeg:       0.001,
			ProfitThreshold: 0.001,
			Paths:           [][]string{{"USDC", "USDT", "DAI"}},
		},
	}
	cfg.Timings.CycleMs = 3600000
	cfg.Timings.SettleDelayMs = 3600000

	src, err := marketdata.NewStaticSource(map[string]float64{
		"USDC/USDT": 1.0, "USDT/DAI": 1.0, "DAI/USDC": 1.0,
	})
	require.NoError(t, err)
	exec := execution.NewPaperExecutor(cfg.SettleDelay(), 0, zap.NewNop())
	c := engine.New(cfg, src, exec, nil, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	go c.Run(ctx)

	srv := httptest.NewServer(Handler(c, zap.NewNop()))
	t.Cleanup(srv.Close)
	return srv, cancel
}

func TestRiskEndpoint(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	resp, err := http.Get(srv.URL + "/api/risk")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var rs risk.Snapshot
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&rs))
	assert.Equal(t, risk.LevelLow, rs.Level)
	assert.True(t, rs.ReserveIntact)
	assert.Zero(t, rs.OpenPositions)
}

func TestPortfolioEndpoint(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	resp, err := http.Get(srv.URL + "/api/portfolio")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var view engine.PortfolioView
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&view))
	assert.Equal(t, "1000", view.Balance.String())
}

func TestEmergencyStopEndpoint(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	resp, err := http.Post(srv.URL+"/api/emergency-stop", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var res risk.EmergencyResult
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&res))
	assert.Zero(t, res.Closed)
}

func TestEmergencyStopRejectsGet(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	resp, err := http.Get(srv.URL + "/api/emergency-stop")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestResetDailyEndpoint(t *testing.T) {
	srv, cancel := newTestServer(t)
	defer cancel()

	resp, err := http.Post(srv.URL+"/api/reset-daily", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
}
