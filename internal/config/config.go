// Package config provides configuration management for the trading engine.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	yaml "gopkg.in/yaml.v3"
)

const (
	// defaultMonitorInterval is used when schedule.monitor_interval is unset.
	defaultMonitorInterval = 60 * time.Second
	// defaultRequestTimeout is the default for Broker.RequestTimeout, which
	// is defaulted and validated here but not read by any broker call.
	defaultRequestTimeout = 10 * time.Second
	// defaultFillTimeout bounds how long place_single/place_iron_condor wait
	// for a terminal order status before giving up on a leg.
	defaultFillTimeout = 30 * time.Second
	defaultDashboardPort = 9847
)

// Config represents the complete application configuration. The hard-coded
// risk circuit breakers in internal/risk are intentionally absent here: they
// must not be externally configurable.
type Config struct {
	Environment EnvironmentConfig `yaml:"environment"`
	Broker      BrokerConfig      `yaml:"broker"`
	Schedule    ScheduleConfig    `yaml:"schedule"`
	Strategies  StrategiesConfig  `yaml:"strategies"`
	Storage     StorageConfig     `yaml:"storage"`
	Dashboard   DashboardConfig   `yaml:"dashboard"`
}

// EnvironmentConfig defines the environment settings.
type EnvironmentConfig struct {
	Mode     string `yaml:"mode"`      // paper | live
	LogLevel string `yaml:"log_level"` // debug | info | warn | error
}

// BrokerConfig defines broker API settings. Before the broker is built only
// Mode is checked (anything but "paper" is refused); the base URL is not
// inspected for a paper marker, at construction or on any order.
type BrokerConfig struct {
	Provider       string        `yaml:"provider"`
	APIKey         string        `yaml:"api_key"`
	AccountID      string        `yaml:"account_id"`
	PaperBaseURL   string        `yaml:"paper_base_url"`
	LiveBaseURL    string        `yaml:"live_base_url"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
	FillTimeout    time.Duration `yaml:"fill_timeout"`
}

// ScheduleConfig defines the engine's periodic and windowed timing.
type ScheduleConfig struct {
	Timezone          string        `yaml:"timezone"` // e.g., "America/New_York"
	MonitorInterval   time.Duration `yaml:"monitor_interval"`
	IronCondorStart   string        `yaml:"iron_condor_window_start"` // "HH:MM"
	IronCondorEnd     string        `yaml:"iron_condor_window_end"`
	MomentumStart     string        `yaml:"momentum_window_start"`
	MomentumEnd       string        `yaml:"momentum_window_end"`
}

// StrategiesConfig enables/scopes the three signal generators. Thresholds
// that are part of each strategy's decision function (iv_rank bands, delta
// targets, spread width, momentum condition thresholds) are not listed here:
// they are load-bearing constants of the strategy itself, not operator knobs.
type StrategiesConfig struct {
	IVMeanReversion IVMeanReversionConfig `yaml:"iv_mean_reversion"`
	IronCondor      IronCondorConfig      `yaml:"iron_condor"`
	Momentum        MomentumConfig        `yaml:"momentum"`
}

// IVMeanReversionConfig scopes which symbols the IV mean-reversion scanner
// considers.
type IVMeanReversionConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Underlyings []string `yaml:"underlyings"`
}

// IronCondorConfig scopes the 0DTE iron condor builder.
type IronCondorConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Underlyings []string `yaml:"underlyings"`
}

// MomentumConfig scopes the 0DTE momentum scalper and names its benchmark.
type MomentumConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Underlyings []string `yaml:"underlyings"`
	Benchmark  string   `yaml:"benchmark"`
}

// StorageConfig defines storage settings for position/trade/tick data.
type StorageConfig struct {
	Path string `yaml:"path"`
}

// DashboardConfig defines web dashboard settings.
type DashboardConfig struct {
	Enabled   bool   `yaml:"enabled"`    // Enable web dashboard
	Port      int    `yaml:"port"`       // HTTP server port
	AuthToken string `yaml:"auth_token"` // Optional authentication token
}

// Load reads and parses the configuration file from the specified path.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = "config.yaml"
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- configPath is a user-provided config file path
	if err != nil {
		return nil, fmt.Errorf("reading config file %q: %w", configPath, err)
	}

	expanded := os.ExpandEnv(string(data))

	var config Config
	dec := yaml.NewDecoder(strings.NewReader(expanded))
	dec.KnownFields(true)
	if err := dec.Decode(&config); err != nil {
		return nil, fmt.Errorf("parsing config %q: %w", configPath, err)
	}

	config.Normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &config, nil
}

// resolveLocation returns the configured TZ or NY fallback.
func (c *Config) resolveLocation() (*time.Location, error) {
	tz := c.Schedule.Timezone
	if strings.TrimSpace(tz) == "" {
		tz = "America/New_York"
	}

	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", tz, err)
	}

	return loc, nil
}

// Validate checks that all configuration values are valid and consistent.
func (c *Config) Validate() error {
	if c.Environment.Mode != "paper" && c.Environment.Mode != "live" {
		return fmt.Errorf("environment.mode must be 'paper' or 'live'")
	}

	switch strings.ToLower(c.Environment.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("environment.log_level must be one of: debug, info, warn, error")
	}

	if strings.TrimSpace(c.Broker.APIKey) == "" {
		return fmt.Errorf("broker.api_key is required")
	}
	if strings.TrimSpace(c.Broker.AccountID) == "" {
		return fmt.Errorf("broker.account_id is required")
	}
	if c.Environment.Mode == "paper" && strings.TrimSpace(c.Broker.PaperBaseURL) == "" {
		return fmt.Errorf("broker.paper_base_url is required in paper mode")
	}
	if c.Environment.Mode == "live" && strings.TrimSpace(c.Broker.LiveBaseURL) == "" {
		return fmt.Errorf("broker.live_base_url is required in live mode")
	}
	if c.Broker.RequestTimeout <= 0 {
		return fmt.Errorf("broker.request_timeout must be > 0")
	}
	if c.Broker.FillTimeout <= 0 {
		return fmt.Errorf("broker.fill_timeout must be > 0")
	}

	if c.Schedule.MonitorInterval <= 0 {
		return fmt.Errorf("schedule.monitor_interval must be > 0")
	}
	loc, err := c.resolveLocation()
	if err != nil {
		return fmt.Errorf("timezone resolution failed: %w", err)
	}
	for _, pair := range [][2]string{
		{c.Schedule.IronCondorStart, c.Schedule.IronCondorEnd},
		{c.Schedule.MomentumStart, c.Schedule.MomentumEnd},
	} {
		s, err1 := time.ParseInLocation("15:04", pair[0], loc)
		e, err2 := time.ParseInLocation("15:04", pair[1], loc)
		if err1 != nil || err2 != nil || !s.Before(e) {
			return fmt.Errorf("schedule window invalid: %q-%q", pair[0], pair[1])
		}
	}

	if c.Strategies.Momentum.Enabled && strings.TrimSpace(c.Strategies.Momentum.Benchmark) == "" {
		return fmt.Errorf("strategies.momentum.benchmark is required when momentum is enabled")
	}
	if !c.Strategies.IVMeanReversion.Enabled && !c.Strategies.IronCondor.Enabled && !c.Strategies.Momentum.Enabled {
		return fmt.Errorf("at least one strategy must be enabled")
	}

	if strings.TrimSpace(c.Storage.Path) == "" {
		return fmt.Errorf("storage.path is required")
	}

	if c.Dashboard.Enabled {
		if c.Dashboard.Port <= 0 || c.Dashboard.Port > 65535 {
			return fmt.Errorf("dashboard.port must be between 1 and 65535")
		}
	}

	return nil
}

// IsPaperTrading returns true if the engine is configured for paper trading.
func (c *Config) IsPaperTrading() bool {
	return c.Environment.Mode == "paper"
}

// BrokerBaseURL returns the base URL matching the configured mode.
func (c *Config) BrokerBaseURL() string {
	if c.IsPaperTrading() {
		return c.Broker.PaperBaseURL
	}
	return c.Broker.LiveBaseURL
}

// IsWithinWindow checks whether now (in the configured timezone) falls
// within a "HH:MM"-"HH:MM" window, inclusive start, inclusive end.
func (c *Config) IsWithinWindow(start, end string, now time.Time) (bool, error) {
	loc, err := c.resolveLocation()
	if err != nil {
		return false, err
	}
	local := now.In(loc)
	s, err1 := time.ParseInLocation("15:04", start, loc)
	e, err2 := time.ParseInLocation("15:04", end, loc)
	if err1 != nil || err2 != nil {
		return false, fmt.Errorf("invalid window %q-%q", start, end)
	}
	startT := time.Date(local.Year(), local.Month(), local.Day(), s.Hour(), s.Minute(), 0, 0, loc)
	endT := time.Date(local.Year(), local.Month(), local.Day(), e.Hour(), e.Minute(), 0, 0, loc)
	return !local.Before(startT) && !local.After(endT), nil
}

// Normalize sets default values for configuration fields.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.Environment.Mode) == "" {
		c.Environment.Mode = "paper"
	}
	if strings.TrimSpace(c.Environment.LogLevel) == "" {
		c.Environment.LogLevel = "info"
	}
	if c.Broker.RequestTimeout == 0 {
		c.Broker.RequestTimeout = defaultRequestTimeout
	}
	if c.Broker.FillTimeout == 0 {
		c.Broker.FillTimeout = defaultFillTimeout
	}
	if c.Schedule.MonitorInterval == 0 {
		c.Schedule.MonitorInterval = defaultMonitorInterval
	}
	if strings.TrimSpace(c.Schedule.Timezone) == "" {
		c.Schedule.Timezone = "America/New_York"
	}
	if c.Schedule.IronCondorStart == "" {
		c.Schedule.IronCondorStart = "09:31"
	}
	if c.Schedule.IronCondorEnd == "" {
		c.Schedule.IronCondorEnd = "09:45"
	}
	if c.Schedule.MomentumStart == "" {
		c.Schedule.MomentumStart = "09:31"
	}
	if c.Schedule.MomentumEnd == "" {
		c.Schedule.MomentumEnd = "11:30"
	}
	if c.Dashboard.Port == 0 {
		c.Dashboard.Port = defaultDashboardPort
	}
}
