// Package config loads gattlink settings from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the top-level configuration.
type Config struct {
	Logger     LoggerConfig     `yaml:"logger"`
	Timeouts   TimeoutsConfig   `yaml:"timeouts"`
	Link       LinkConfig       `yaml:"link"`
	Scan       ScanConfig       `yaml:"scan"`
	Reconnect  ReconnectConfig  `yaml:"reconnect"`
	Tracer     TracerConfig     `yaml:"tracer"`
	Simulation SimulationConfig `yaml:"simulation"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level string `yaml:"level"`
}

// TimeoutsConfig holds the default deadline per operation kind. A caller
// passing a zero duration gets these.
type TimeoutsConfig struct {
	Connect      time.Duration `yaml:"connect"`
	Disconnect   time.Duration `yaml:"disconnect"`
	Bond         time.Duration `yaml:"bond"`
	Discovery    time.Duration `yaml:"discovery"`
	Read         time.Duration `yaml:"read"`
	Write        time.Duration `yaml:"write"`
	Notification time.Duration `yaml:"notification"`
	MTU          time.Duration `yaml:"mtu"`
}

// LinkConfig holds link-layer limits.
type LinkConfig struct {
	MaxPayload int `yaml:"max_payload"` // bytes per write before MTU negotiation
}

// ScanConfig holds scan defaults.
type ScanConfig struct {
	Duration         time.Duration `yaml:"duration"`
	Limit            int           `yaml:"limit"` // 0 = unbounded
	HighPowerPreScan bool          `yaml:"high_power_pre_scan"`
	PreScanWindow    time.Duration `yaml:"pre_scan_window"`
}

// ReconnectConfig holds the caller-side retry policy settings.
type ReconnectConfig struct {
	MaxAttempts       int           `yaml:"max_attempts"`
	MaxFailures       uint32        `yaml:"max_failures"` // consecutive failures before the breaker opens
	OpenTimeout       time.Duration `yaml:"open_timeout"`
	AttemptsPerSecond float64       `yaml:"attempts_per_second"`
}

// TracerConfig holds tracing settings.
type TracerConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Exporter string `yaml:"exporter"` // noop, stdout, file
}

// SimulationConfig drives the in-memory radio.
type SimulationConfig struct {
	MinCallbackDelay time.Duration `yaml:"min_callback_delay"`
	MaxCallbackDelay time.Duration `yaml:"max_callback_delay"`
	Seed             int64         `yaml:"seed"` // 0 = time-based
}

// Defaults returns a Config with sensible default values.
func Defaults() *Config {
	return &Config{
		Logger: LoggerConfig{
			Level: "info",
		},
		Timeouts: TimeoutsConfig{
			Connect:      10 * time.Second,
			Disconnect:   5 * time.Second,
			Bond:         30 * time.Second,
			Discovery:    10 * time.Second,
			Read:         5 * time.Second,
			Write:        5 * time.Second,
			Notification: 5 * time.Second,
			MTU:          5 * time.Second,
		},
		Link: LinkConfig{
			MaxPayload: 20,
		},
		Scan: ScanConfig{
			Duration:      10 * time.Second,
			PreScanWindow: time.Second,
		},
		Reconnect: ReconnectConfig{
			MaxAttempts:       3,
			MaxFailures:       5,
			OpenTimeout:       30 * time.Second,
			AttemptsPerSecond: 1,
		},
		Tracer: TracerConfig{
			Enabled:  false,
			Exporter: "noop",
		},
		Simulation: SimulationConfig{
			MinCallbackDelay: 5 * time.Millisecond,
			MaxCallbackDelay: 20 * time.Millisecond,
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps GATTLINK_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("GATTLINK_LOG_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("GATTLINK_TRACER_ENABLED"); v == "true" {
		cfg.Tracer.Enabled = true
	}
	if v := os.Getenv("GATTLINK_TRACER_EXPORTER"); v != "" {
		cfg.Tracer.Exporter = v
	}
}

// Marshal renders cfg as YAML
func Marshal(cfg *Config) ([]byte, error) {
	return yaml.Marshal(cfg)
}
