package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	path := filepath.Join("testdata", "config.yaml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.App.Name != "marketfeed-test" {
		t.Fatalf("unexpected App.Name: %s", cfg.App.Name)
	}
	if cfg.Feed.Mode != ModeLive {
		t.Fatalf("unexpected Feed.Mode: %s", cfg.Feed.Mode)
	}
	if len(cfg.Feed.Symbols) != 2 || cfg.Feed.Symbols[1] != "NVDA" {
		t.Fatalf("unexpected symbols: %+v", cfg.Feed.Symbols)
	}
	if cfg.Feed.MaxReconnectAttempts != 3 {
		t.Fatalf("unexpected max reconnect attempts: %d", cfg.Feed.MaxReconnectAttempts)
	}
	if cfg.Feed.ReconnectDelay() != 250*time.Millisecond {
		t.Fatalf("unexpected reconnect delay: %s", cfg.Feed.ReconnectDelay())
	}
	if cfg.Feed.TickInterval() != 500*time.Millisecond {
		t.Fatalf("unexpected tick interval: %s", cfg.Feed.TickInterval())
	}
	if cfg.Feed.ConnectDelay() != 100*time.Millisecond {
		t.Fatalf("expected default connect delay, got %s", cfg.Feed.ConnectDelay())
	}
	if cfg.Signals.Interval() != 4*time.Second {
		t.Fatalf("unexpected signal interval: %s", cfg.Signals.Interval())
	}
	if cfg.Signals.MaxStandard != 5 || cfg.Signals.MaxPremium != 15 {
		t.Fatalf("unexpected signal capacities: %d/%d", cfg.Signals.MaxStandard, cfg.Signals.MaxPremium)
	}
	if !cfg.Signals.Premium {
		t.Fatalf("expected premium tier")
	}
	if len(cfg.Publish.Events) != 2 {
		t.Fatalf("unexpected publish events: %+v", cfg.Publish.Events)
	}
	if cfg.Publish.NATS.SubjectPrefix != "marketfeed" {
		t.Fatalf("expected default subject prefix, got %s", cfg.Publish.NATS.SubjectPrefix)
	}
	if cfg.Publish.Redis.ChannelPrefix != "feeds" {
		t.Fatalf("unexpected channel prefix: %s", cfg.Publish.Redis.ChannelPrefix)
	}
	if cfg.Publish.Tap.Path != "-" {
		t.Fatalf("unexpected tap path: %s", cfg.Publish.Tap.Path)
	}
	if cfg.Risk.MaxNotionalPerTrade != 5000 || cfg.Risk.MaxOrderQty != 100 {
		t.Fatalf("unexpected risk: %+v", cfg.Risk)
	}
	if cfg.Paper.StartingCash != 25000 {
		t.Fatalf("unexpected starting cash: %.2f", cfg.Paper.StartingCash)
	}
	if !cfg.Trading.FollowSignals || cfg.Trading.MinConfidence != 90 || cfg.Trading.OrderQty != 2.5 {
		t.Fatalf("unexpected trading: %+v", cfg.Trading)
	}
	if cfg.Notifications.Capacity != 50 {
		t.Fatalf("expected default inbox capacity, got %d", cfg.Notifications.Capacity)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestDefaults(t *testing.T) {
	cfg := Default()
	if cfg.Feed.Mode != ModeSimulated {
		t.Fatalf("expected simulated default, got %s", cfg.Feed.Mode)
	}
	if cfg.Feed.MaxReconnectAttempts != 5 || cfg.Feed.BaseReconnectDelayMs != 1000 {
		t.Fatalf("unexpected reconnect defaults: %+v", cfg.Feed)
	}
	if cfg.Feed.TickIntervalMs != 2000 || cfg.Signals.IntervalMs != 8000 {
		t.Fatalf("unexpected cadence defaults")
	}
	if cfg.Signals.MaxStandard != 10 || cfg.Signals.MaxPremium != 20 {
		t.Fatalf("unexpected capacity defaults")
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("defaults should validate: %v", err)
	}
}

func TestValidateRejectsBadConfig(t *testing.T) {
	cfg := Default()
	cfg.Feed.Mode = ModeLive
	cfg.Signals.MaxPremium = 3
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error")
	}

	cfg = Default()
	cfg.Trading.MinConfidence = 101
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected confidence range error")
	}

	cfg = Default()
	cfg.Feed.Mode = "carrier-pigeon"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected unknown mode error")
	}

	for _, n := range []int{-2, MaxReconnectAttemptsLimit + 1, 100} {
		cfg = Default()
		cfg.Feed.MaxReconnectAttempts = n
		if err := cfg.Validate(); err == nil {
			t.Fatalf("expected attempts range error for %d", n)
		}
	}
}

func TestReconnectAttempts(t *testing.T) {
	cfg := Default()
	if got := cfg.Feed.ReconnectAttempts(); got != 5 {
		t.Fatalf("default attempts = %d, want 5", got)
	}

	cfg.Feed.MaxReconnectAttempts = NoReconnect
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("NoReconnect should validate: %v", err)
	}
	if got := cfg.Feed.ReconnectAttempts(); got != 0 {
		t.Fatalf("NoReconnect attempts = %d, want 0", got)
	}

	cfg.Feed.MaxReconnectAttempts = MaxReconnectAttemptsLimit
	if err := cfg.Validate(); err != nil {
		t.Fatalf("limit should validate: %v", err)
	}
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	cfg := Default()
	cfg.Feed.Symbols = []string{"TSLA"}
	if err := Save(path, cfg); err != nil {
		t.Fatalf("Save returned error: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if len(loaded.Feed.Symbols) != 1 || loaded.Feed.Symbols[0] != "TSLA" {
		t.Fatalf("symbols not persisted: %+v", loaded.Feed.Symbols)
	}
	if err := Save(path, nil); err == nil {
		t.Fatalf("expected error saving nil config")
	}
}

func TestResolveModeEnvOverrides(t *testing.T) {
	feed := Feed{Mode: ModeLive}

	t.Setenv(EnvDemo, "")
	t.Setenv(EnvMode, "")
	if got := feed.ResolveMode(); got != ModeLive {
		t.Fatalf("expected configured mode, got %s", got)
	}

	t.Setenv(EnvMode, "SIMULATED")
	if got := feed.ResolveMode(); got != ModeSimulated {
		t.Fatalf("expected env mode override, got %s", got)
	}

	t.Setenv(EnvMode, ModeLive)
	t.Setenv(EnvDemo, "true")
	if got := feed.ResolveMode(); got != ModeSimulated {
		t.Fatalf("expected demo flag to force simulated, got %s", got)
	}
}

func TestLoadEnvFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env")
	if err := os.WriteFile(path, []byte(EnvMode+"=live\n"), 0o644); err != nil {
		t.Fatalf("write env: %v", err)
	}
	t.Setenv(EnvMode, "")
	os.Unsetenv(EnvMode)
	LoadEnv(path)
	if got := os.Getenv(EnvMode); got != "live" {
		t.Fatalf("expected env loaded from file, got %q", got)
	}
	LoadEnv(filepath.Join(t.TempDir(), "missing.env"))
}
