package store

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Mode     string   `yaml:"mode"` // DRY_RUN or LIVE
	Exchange string   `yaml:"exchange"`
	Universe []string `yaml:"universe"`

	Risk struct {
		StartingBalance      float64 `yaml:"starting_balance"`
		MaxTradesPerDay      int     `yaml:"max_trades_per_day"`
		MaxRiskPerTrade      float64 `yaml:"max_risk_per_trade"`
		MaxDailyLossFraction float64 `yaml:"max_daily_loss_fraction"`
		MaxConsecutiveLosses int     `yaml:"max_consecutive_losses"`
		MaxPositionFraction  float64 `yaml:"max_position_fraction"`
		MaxSpreadPct         float64 `yaml:"max_spread_pct"`
	} `yaml:"risk"`

	Session struct {
		Open              string `yaml:"open"`  // "09:30"
		Close             string `yaml:"close"` // "16:00"
		RestrictedMinutes int    `yaml:"restricted_minutes"`
		Timezone          string `yaml:"timezone"`
	} `yaml:"session"`

	Intake struct {
		DedupWindowSeconds  int `yaml:"dedup_window_seconds"`
		SignalExpirySeconds int `yaml:"signal_expiry_seconds"`
	} `yaml:"intake"`

	Orders struct {
		MaxRetries           int     `yaml:"max_retries"`
		InitialBackoffMillis int     `yaml:"initial_backoff_millis"`
		MaxBackoffMillis     int     `yaml:"max_backoff_millis"`
		BrokerTimeoutSeconds int     `yaml:"broker_timeout_seconds"`
		PollMillis           int     `yaml:"poll_millis"`
		MaxSlippagePct       float64 `yaml:"max_slippage_pct"`
	} `yaml:"orders"`

	Scheduler struct {
		ScanSeconds int `yaml:"scan_seconds"`
	} `yaml:"scheduler"`

	Predictor struct {
		Provider string `yaml:"provider"` // NOOP for now; selection seam for external predictors
	} `yaml:"predictor"`

	Journal struct {
		Path string `yaml:"path"`
	} `yaml:"journal"`

	Webhook struct {
		Addr   string `yaml:"addr"`
		Secret string `yaml:"secret"` // HMAC secret, usually set via env
	} `yaml:"webhook"`

	Metrics struct {
		Addr string `yaml:"addr"`
	} `yaml:"metrics"`

	Notify struct {
		Provider string `yaml:"provider"` // TELEGRAM or NOOP
	} `yaml:"notify"`
}

func (c *Config) Validate() error {
	if c.Mode != "DRY_RUN" && c.Mode != "LIVE" {
		return fmt.Errorf("invalid mode '%s': must be 'DRY_RUN' or 'LIVE'", c.Mode)
	}
	if c.Risk.StartingBalance <= 0 {
		return fmt.Errorf("risk.starting_balance must be positive, got %.2f", c.Risk.StartingBalance)
	}
	if c.Risk.MaxTradesPerDay <= 0 {
		return fmt.Errorf("risk.max_trades_per_day must be positive, got %d", c.Risk.MaxTradesPerDay)
	}
	if c.Risk.MaxRiskPerTrade <= 0 || c.Risk.MaxRiskPerTrade >= 1 {
		return fmt.Errorf("risk.max_risk_per_trade must be in (0,1), got %.4f", c.Risk.MaxRiskPerTrade)
	}
	if c.Risk.MaxDailyLossFraction <= 0 || c.Risk.MaxDailyLossFraction >= 1 {
		return fmt.Errorf("risk.max_daily_loss_fraction must be in (0,1), got %.4f", c.Risk.MaxDailyLossFraction)
	}
	if _, err := parseClock(c.Session.Open); err != nil {
		return fmt.Errorf("session.open: %w", err)
	}
	if _, err := parseClock(c.Session.Close); err != nil {
		return fmt.Errorf("session.close: %w", err)
	}
	if _, err := time.LoadLocation(c.Session.Timezone); err != nil {
		return fmt.Errorf("session.timezone: %w", err)
	}
	if len(c.Universe) == 0 && c.Predictor.Provider != "NOOP" {
		return errors.New("universe cannot be empty when a predictor is configured")
	}
	return nil
}

func LoadConfig(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c Config
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}

	c.applyDefaults()

	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &c, nil
}

func (c *Config) applyDefaults() {
	if c.Mode == "" {
		c.Mode = "DRY_RUN"
	}
	if c.Risk.MaxConsecutiveLosses == 0 {
		c.Risk.MaxConsecutiveLosses = 3
	}
	if c.Risk.MaxPositionFraction == 0 {
		c.Risk.MaxPositionFraction = 1.0
	}
	if c.Risk.MaxSpreadPct == 0 {
		c.Risk.MaxSpreadPct = 0.005
	}
	if c.Session.Open == "" {
		c.Session.Open = "09:30"
	}
	if c.Session.Close == "" {
		c.Session.Close = "16:00"
	}
	if c.Session.RestrictedMinutes == 0 {
		c.Session.RestrictedMinutes = 15
	}
	if c.Session.Timezone == "" {
		c.Session.Timezone = "America/New_York"
	}
	if c.Intake.DedupWindowSeconds == 0 {
		c.Intake.DedupWindowSeconds = 300
	}
	if c.Intake.SignalExpirySeconds == 0 {
		c.Intake.SignalExpirySeconds = 600
	}
	if c.Orders.MaxRetries == 0 {
		c.Orders.MaxRetries = 3
	}
	if c.Orders.InitialBackoffMillis == 0 {
		c.Orders.InitialBackoffMillis = 1000
	}
	if c.Orders.MaxBackoffMillis == 0 {
		c.Orders.MaxBackoffMillis = 8000
	}
	if c.Orders.BrokerTimeoutSeconds == 0 {
		c.Orders.BrokerTimeoutSeconds = 5
	}
	if c.Orders.PollMillis == 0 {
		c.Orders.PollMillis = 1000
	}
	if c.Scheduler.ScanSeconds == 0 {
		c.Scheduler.ScanSeconds = 60
	}
	if c.Predictor.Provider == "" {
		c.Predictor.Provider = "NOOP"
	}
	if c.Journal.Path == "" {
		c.Journal.Path = "trader.db"
	}
	if c.Webhook.Addr == "" {
		c.Webhook.Addr = ":8080"
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = ":9090"
	}
	if c.Notify.Provider == "" {
		c.Notify.Provider = "NOOP"
	}
}

// SessionLocation returns the configured session timezone.
func (c *Config) SessionLocation() *time.Location {
	loc, err := time.LoadLocation(c.Session.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// SessionOpenMinute and SessionCloseMinute return clock times as
// minutes since midnight in the session timezone.
func (c *Config) SessionOpenMinute() int  { m, _ := parseClock(c.Session.Open); return m }
func (c *Config) SessionCloseMinute() int { m, _ := parseClock(c.Session.Close); return m }

func parseClock(s string) (int, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("invalid clock time '%s': %w", s, err)
	}
	return t.Hour()*60 + t.Minute(), nil
}
