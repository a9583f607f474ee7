package metrics

import "github.com/prometheus/client_golang/prometheus"

var (
	OpportunitiesDetected = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_opportunities_detected_total",
		Help: "Opportunities evaluated across all configured paths",
	})

	MissingPairs = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_missing_pairs_total",
		Help: "Legs whose pair was absent from the snapshot and defaulted to 1.0",
	})

	TradesExecuted = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "arb_trades_executed_total",
		Help: "Trades that passed sizing and validation and were executed",
	})

	CycleOutcomes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "arb_cycle_outcomes_total",
		Help: "Decision cycle outcomes by kind",
	}, []string{"kind"})

	Balance = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_balance",
		Help: "Available cash in the portfolio",
	})

	DailyLoss = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_daily_loss",
		Help: "Cumulative realized losses since the last reset",
	})

	ExposureRatio = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_exposure_ratio",
		Help: "Open exposure over total capital",
	})

	OpenPositions = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_open_positions",
		Help: "Number of open positions",
	})

	RiskScore = prometheus.NewGauge(prometheus.GaugeOpts{
		Name: "arb_last_risk_score",
		Help: "Risk score of the most recently validated trade",
	})

	CycleLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:    "arb_cycle_latency_seconds",
		Help:    "Time to run one full decision cycle",
		Buckets: prometheus.DefBuckets,
	})
)

func init() {
	prometheus.MustRegister(
		OpportunitiesDetected,
		MissingPairs,
		TradesExecuted,
		CycleOutcomes,
		Balance,
		DailyLoss,
		ExposureRatio,
		OpenPositions,
		RiskScore,
		CycleLatency,
	)
}
