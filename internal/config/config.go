// Package config exposes strongly typed application configuration structs loaded from YAML.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	// ModeSimulated runs the in-process tick simulation instead of dialing.
	ModeSimulated = "simulated"
	// ModeLive dials the configured websocket endpoint.
	ModeLive = "live"

	// EnvMode overrides Feed.Mode when set.
	EnvMode = "MARKETFEED_MODE"
	// EnvDemo forces simulated mode when "true" or "1".
	EnvDemo = "MARKETFEED_DEMO"

	// NoReconnect as feed.max_reconnect_attempts disables automatic
	// reconnects; zero means the default.
	NoReconnect = -1
	// MaxReconnectAttemptsLimit bounds feed.max_reconnect_attempts.
	MaxReconnectAttemptsLimit = 50
)

// App captures process-wide runtime settings such as name, environment, metrics, and logging levels.
type App struct {
	Name        string `yaml:"name"`
	Env         string `yaml:"env"`
	MetricsAddr string `yaml:"metrics_addr"`
	LogLevel    string `yaml:"log_level"`
}

// Feed configures the connection manager and the tick simulation.
type Feed struct {
	Mode                 string   `yaml:"mode"`
	URL                  string   `yaml:"url"`
	Symbols              []string `yaml:"symbols"`
	MaxReconnectAttempts int      `yaml:"max_reconnect_attempts"`
	BaseReconnectDelayMs int      `yaml:"base_reconnect_delay_ms"`
	TickIntervalMs       int      `yaml:"tick_interval_ms"`
	ConnectDelayMs       int      `yaml:"connect_delay_ms"`
}

// Signals configures the synthetic signal feed.
type Signals struct {
	IntervalMs  int  `yaml:"interval_ms"`
	MaxStandard int  `yaml:"max_standard"`
	MaxPremium  int  `yaml:"max_premium"`
	Premium     bool `yaml:"premium"`
	Paused      bool `yaml:"paused"`
}

// NATS configures the optional NATS fan-out sink.
type NATS struct {
	URL           string `yaml:"url"`
	SubjectPrefix string `yaml:"subject_prefix"`
}

// Redis configures the optional Redis pub/sub fan-out sink.
type Redis struct {
	Addr          string `yaml:"addr"`
	Password      string `yaml:"password"`
	DB            int    `yaml:"db"`
	ChannelPrefix string `yaml:"channel_prefix"`
}

// Tap configures the JSONL event tap; "-" writes to stdout.
type Tap struct {
	Path string `yaml:"path"`
}

// Publish groups the external fan-out sinks. Empty sections are disabled.
type Publish struct {
	Events []string `yaml:"events"`
	NATS   NATS     `yaml:"nats"`
	Redis  Redis    `yaml:"redis"`
	Tap    Tap      `yaml:"tap"`
}

// Risk encodes guard-rails for how much size the order path may take on.
type Risk struct {
	MaxNotionalPerTrade float64 `yaml:"max_notional_per_trade"`
	MaxOrderQty         float64 `yaml:"max_order_qty"`
}

// Paper captures paper portfolio settings.
type Paper struct {
	StartingCash         float64 `yaml:"starting_cash"`
	MaxPositionPerSymbol float64 `yaml:"max_position_per_symbol"`
}

// Trading controls the signal follower that turns signals into paper orders.
type Trading struct {
	FollowSignals bool    `yaml:"follow_signals"`
	MinConfidence int     `yaml:"min_confidence"`
	OrderQty      float64 `yaml:"order_qty"`
}

// Notifications bounds the in-memory notification inbox.
type Notifications struct {
	Capacity int `yaml:"capacity"`
}

// Config collects every configuration leaf for easy marshaling from YAML.
type Config struct {
	App           App           `yaml:"app"`
	Feed          Feed          `yaml:"feed"`
	Signals       Signals       `yaml:"signals"`
	Publish       Publish       `yaml:"publish"`
	Risk          Risk          `yaml:"risk"`
	Paper         Paper         `yaml:"paper"`
	Trading       Trading       `yaml:"trading"`
	Notifications Notifications `yaml:"notifications"`
}

// Default returns a config populated with the documented defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero values with defaults.
func (c *Config) ApplyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "marketfeed"
	}
	if c.App.MetricsAddr == "" {
		c.App.MetricsAddr = ":9102"
	}
	if c.App.LogLevel == "" {
		c.App.LogLevel = "info"
	}
	if c.Feed.Mode == "" {
		c.Feed.Mode = ModeSimulated
	}
	if c.Feed.MaxReconnectAttempts == 0 {
		c.Feed.MaxReconnectAttempts = 5
	}
	if c.Feed.BaseReconnectDelayMs == 0 {
		c.Feed.BaseReconnectDelayMs = 1000
	}
	if c.Feed.TickIntervalMs == 0 {
		c.Feed.TickIntervalMs = 2000
	}
	if c.Feed.ConnectDelayMs == 0 {
		c.Feed.ConnectDelayMs = 100
	}
	if c.Signals.IntervalMs == 0 {
		c.Signals.IntervalMs = 8000
	}
	if c.Signals.MaxStandard == 0 {
		c.Signals.MaxStandard = 10
	}
	if c.Signals.MaxPremium == 0 {
		c.Signals.MaxPremium = 20
	}
	if c.Publish.NATS.SubjectPrefix == "" {
		c.Publish.NATS.SubjectPrefix = "marketfeed"
	}
	if c.Publish.Redis.ChannelPrefix == "" {
		c.Publish.Redis.ChannelPrefix = "marketfeed"
	}
	if c.Paper.StartingCash == 0 {
		c.Paper.StartingCash = 100000
	}
	if c.Trading.MinConfidence == 0 {
		c.Trading.MinConfidence = 85
	}
	if c.Trading.OrderQty == 0 {
		c.Trading.OrderQty = 1
	}
	if c.Notifications.Capacity == 0 {
		c.Notifications.Capacity = 50
	}
}

// Validate rejects configurations the runtime cannot honor.
func (c *Config) Validate() error {
	var errs []error
	switch c.Feed.Mode {
	case ModeSimulated:
	case ModeLive:
		if c.Feed.URL == "" {
			errs = append(errs, errors.New("feed.url is required in live mode"))
		}
	default:
		errs = append(errs, fmt.Errorf("feed.mode %q must be %q or %q", c.Feed.Mode, ModeSimulated, ModeLive))
	}
	if n := c.Feed.MaxReconnectAttempts; n < NoReconnect || n > MaxReconnectAttemptsLimit {
		errs = append(errs, fmt.Errorf("feed.max_reconnect_attempts must be within [%d,%d], got %d", NoReconnect, MaxReconnectAttemptsLimit, n))
	}
	if c.Feed.BaseReconnectDelayMs < 0 {
		errs = append(errs, fmt.Errorf("feed.base_reconnect_delay_ms must be >= 0, got %d", c.Feed.BaseReconnectDelayMs))
	}
	if c.Feed.TickIntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("feed.tick_interval_ms must be positive, got %d", c.Feed.TickIntervalMs))
	}
	if c.Signals.IntervalMs <= 0 {
		errs = append(errs, fmt.Errorf("signals.interval_ms must be positive, got %d", c.Signals.IntervalMs))
	}
	if c.Signals.MaxStandard <= 0 || c.Signals.MaxPremium <= 0 {
		errs = append(errs, errors.New("signals capacities must be positive"))
	}
	if c.Signals.MaxPremium < c.Signals.MaxStandard {
		errs = append(errs, fmt.Errorf("signals.max_premium (%d) below max_standard (%d)", c.Signals.MaxPremium, c.Signals.MaxStandard))
	}
	if c.Trading.MinConfidence < 0 || c.Trading.MinConfidence > 100 {
		errs = append(errs, fmt.Errorf("trading.min_confidence must be within [0,100], got %d", c.Trading.MinConfidence))
	}
	if c.Trading.OrderQty < 0 {
		errs = append(errs, fmt.Errorf("trading.order_qty must be >= 0, got %g", c.Trading.OrderQty))
	}
	return errors.Join(errs...)
}

// ReconnectAttempts is the automatic retry budget; NoReconnect yields 0.
func (f Feed) ReconnectAttempts() int {
	if f.MaxReconnectAttempts < 0 {
		return 0
	}
	return f.MaxReconnectAttempts
}

// ReconnectDelay is the base backoff delay as a duration.
func (f Feed) ReconnectDelay() time.Duration {
	return time.Duration(f.BaseReconnectDelayMs) * time.Millisecond
}

// TickInterval is the generator cadence as a duration.
func (f Feed) TickInterval() time.Duration {
	return time.Duration(f.TickIntervalMs) * time.Millisecond
}

// ConnectDelay is the simulated handshake latency.
func (f Feed) ConnectDelay() time.Duration {
	return time.Duration(f.ConnectDelayMs) * time.Millisecond
}

// Interval is the signal cadence as a duration.
func (s Signals) Interval() time.Duration {
	return time.Duration(s.IntervalMs) * time.Millisecond
}

// ResolveMode returns the feed mode after environment overrides. It is
// evaluated on every connect so a fresh connection picks up changes.
func (f Feed) ResolveMode() string {
	if demo := strings.ToLower(strings.TrimSpace(os.Getenv(EnvDemo))); demo == "true" || demo == "1" {
		return ModeSimulated
	}
	if mode := strings.ToLower(strings.TrimSpace(os.Getenv(EnvMode))); mode == ModeSimulated || mode == ModeLive {
		return mode
	}
	return f.Mode
}

// LoadEnv loads a .env file if present. Missing files are ignored.
func LoadEnv(paths ...string) {
	_ = godotenv.Load(paths...) // best-effort
}

// Load reads a YAML file from disk, applies defaults, and validates the result.
func Load(path string) (*Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	var config Config
	if err := yaml.NewDecoder(file).Decode(&config); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	config.ApplyDefaults()
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return &config, nil
}

// Save persists a Config struct to disk as YAML.
func Save(path string, cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal yaml: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write config: %w", err)
	}
	return nil
}
