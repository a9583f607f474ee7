package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// RiskConfig holds the hard safety limits. Loaded once at startup, never
// mutated afterwards.
type RiskConfig struct {
	MaxLossPerTrade         float64 `yaml:"max_loss_per_trade"`
	MaxDailyLoss            float64 `yaml:"max_daily_loss"`
	MaxPositionSizeFraction float64 `yaml:"max_position_size_fraction"`
	ReserveFraction         float64 `yaml:"reserve_fraction"`
	MaxOpenPositions        int     `yaml:"max_open_positions"`
	MaxStopLossFraction     float64 `yaml:"max_stop_loss_fraction"`
	DefaultStopLossFraction float64 `yaml:"default_stop_loss_fraction"`
	EmergencySlippage       float64 `yaml:"emergency_slippage"`
}

type DetectorConfig struct {
	FeePerLeg       float64    `yaml:"fee_per_leg"`
	ProfitThreshold float64    `yaml:"profit_threshold"`
	Paths           [][]string `yaml:"paths"`
}

type FeedConfig struct {
	Mode  string             `yaml:"mode"` // "static" or "ws"
	WsURL string             `yaml:"ws_url"`
	Rates map[string]float64 `yaml:"rates"` // static mode only
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	DB       int    `yaml:"db"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Stream   string `yaml:"stream"`
	RiskKey  string `yaml:"risk_key"`
}

type Config struct {
	StartingBalance float64 `yaml:"starting_balance"`
	PaperTrading    bool    `yaml:"paper_trading"`

	Risk     RiskConfig     `yaml:"risk"`
	Detector DetectorConfig `yaml:"detector"`
	Feed     FeedConfig     `yaml:"feed"`
	Redis    RedisConfig    `yaml:"redis"`

	Metrics struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"metrics"`

	Ops struct {
		ListenAddr string `yaml:"listen_addr"`
	} `yaml:"ops"`

	Timings struct {
		CycleMs       int `yaml:"cycle_ms"`
		SettleDelayMs int `yaml:"settle_delay_ms"`
	} `yaml:"timings"`

	Paper struct {
		FillDriftBps float64 `yaml:"fill_drift_bps"`
	} `yaml:"paper"`
}

func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	applyDefaults(&c)
	applyEnv(&c)

	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

func applyDefaults(c *Config) {
	if c.Timings.CycleMs == 0 {
		c.Timings.CycleMs = 1000
	}
	if c.Timings.SettleDelayMs == 0 {
		c.Timings.SettleDelayMs = 500
	}
	if c.Risk.MaxOpenPositions == 0 {
		c.Risk.MaxOpenPositions = 5
	}
	if c.Risk.EmergencySlippage == 0 {
		c.Risk.EmergencySlippage = 0.02
	}
	if c.Risk.DefaultStopLossFraction == 0 {
		c.Risk.DefaultStopLossFraction = 0.02
	}
	if c.Feed.Mode == "" {
		c.Feed.Mode = "static"
	}
	if c.Redis.Stream == "" {
		c.Redis.Stream = "arb:trades"
	}
	if c.Redis.RiskKey == "" {
		c.Redis.RiskKey = "arb:risk"
	}
}

// applyEnv lets deployment secrets override the file without editing it.
func applyEnv(c *Config) {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := os.Getenv("FEED_WS_URL"); v != "" {
		c.Feed.WsURL = v
	}
}

func (c *Config) Validate() error {
	if c.StartingBalance <= 0 {
		return fmt.Errorf("config: starting_balance must be positive, got %v", c.StartingBalance)
	}
	if c.Risk.MaxLossPerTrade <= 0 {
		return fmt.Errorf("config: risk.max_loss_per_trade must be positive")
	}
	if c.Risk.MaxDailyLoss <= 0 {
		return fmt.Errorf("config: risk.max_daily_loss must be positive")
	}
	if c.Risk.MaxPositionSizeFraction <= 0 || c.Risk.MaxPositionSizeFraction > 1 {
		return fmt.Errorf("config: risk.max_position_size_fraction must be in (0,1]")
	}
	if c.Risk.ReserveFraction < 0 || c.Risk.ReserveFraction >= 1 {
		return fmt.Errorf("config: risk.reserve_fraction must be in [0,1)")
	}
	if c.Risk.MaxStopLossFraction <= 0 || c.Risk.MaxStopLossFraction > 1 {
		return fmt.Errorf("config: risk.max_stop_loss_fraction must be in (0,1]")
	}
	if c.Risk.DefaultStopLossFraction > c.Risk.MaxStopLossFraction {
		return fmt.Errorf("config: risk.default_stop_loss_fraction exceeds max_stop_loss_fraction")
	}
	if c.Detector.FeePerLeg < 0 {
		return fmt.Errorf("config: detector.fee_per_leg must be non-negative")
	}
	if c.Detector.ProfitThreshold < 0 {
		return fmt.Errorf("config: detector.profit_threshold must be non-negative")
	}
	if len(c.Detector.Paths) == 0 {
		return fmt.Errorf("config: detector.paths is empty")
	}
	return nil
}

func (c *Config) CycleTick() time.Duration {
	return time.Duration(c.Timings.CycleMs) * time.Millisecond
}

func (c *Config) SettleDelay() time.Duration {
	return time.Duration(c.Timings.SettleDelayMs) * time.Millisecond
}
