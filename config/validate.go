package config

import (
	"fmt"
	"strings"
	"time"
)

// ValidationError accumulates config validation errors.
type ValidationError struct {
	Errors []string
}

func (v *ValidationError) Error() string {
	return "config validation failed:\n  - " + strings.Join(v.Errors, "\n  - ")
}

// HasErrors reports whether any validation errors have been recorded.
func (v *ValidationError) HasErrors() bool {
	return len(v.Errors) > 0
}

// Add records a formatted validation error.
func (v *ValidationError) Add(format string, args ...interface{}) {
	v.Errors = append(v.Errors, fmt.Sprintf(format, args...))
}

var validLevels = map[string]bool{
	"trace": true,
	"debug": true,
	"info":  true,
	"warn":  true,
	"error": true,
}

var validExporters = map[string]bool{
	"":       true,
	"noop":   true,
	"stdout": true,
	"file":   true,
}

// Validate checks cfg and returns a *ValidationError listing every problem.
func Validate(cfg *Config) error {
	ve := &ValidationError{}
	validateLogger(cfg, ve)
	validateTimeouts(cfg, ve)
	validateLink(cfg, ve)
	validateScan(cfg, ve)
	validateReconnect(cfg, ve)
	validateTracer(cfg, ve)
	validateSimulation(cfg, ve)
	if ve.HasErrors() {
		return ve
	}
	return nil
}

func validateLogger(cfg *Config, ve *ValidationError) {
	if !validLevels[strings.ToLower(cfg.Logger.Level)] {
		ve.Add("logger.level %q is not one of trace, debug, info, warn, error", cfg.Logger.Level)
	}
}

func validateTimeouts(cfg *Config, ve *ValidationError) {
	t := cfg.Timeouts
	checks := []struct {
		name string
		d    time.Duration
	}{
		{"connect", t.Connect},
		{"disconnect", t.Disconnect},
		{"bond", t.Bond},
		{"discovery", t.Discovery},
		{"read", t.Read},
		{"write", t.Write},
		{"notification", t.Notification},
		{"mtu", t.MTU},
	}
	for _, c := range checks {
		if c.d <= 0 {
			ve.Add("timeouts.%s must be > 0", c.name)
		}
	}
}

func validateLink(cfg *Config, ve *ValidationError) {
	// ATT_MTU ranges 23..517, payload is MTU-3
	if cfg.Link.MaxPayload < 20 || cfg.Link.MaxPayload > 514 {
		ve.Add("link.max_payload must be between 20 and 514")
	}
}

func validateScan(cfg *Config, ve *ValidationError) {
	if cfg.Scan.Duration <= 0 {
		ve.Add("scan.duration must be > 0")
	}
	if cfg.Scan.Limit < 0 {
		ve.Add("scan.limit must be >= 0")
	}
	if cfg.Scan.HighPowerPreScan && cfg.Scan.PreScanWindow <= 0 {
		ve.Add("scan.pre_scan_window must be > 0 when high_power_pre_scan is enabled")
	}
}

func validateReconnect(cfg *Config, ve *ValidationError) {
	if cfg.Reconnect.MaxAttempts < 1 {
		ve.Add("reconnect.max_attempts must be >= 1")
	}
	if cfg.Reconnect.MaxFailures < 1 {
		ve.Add("reconnect.max_failures must be >= 1")
	}
	if cfg.Reconnect.OpenTimeout <= 0 {
		ve.Add("reconnect.open_timeout must be > 0")
	}
	if cfg.Reconnect.AttemptsPerSecond <= 0 {
		ve.Add("reconnect.attempts_per_second must be > 0")
	}
}

func validateTracer(cfg *Config, ve *ValidationError) {
	if !validExporters[cfg.Tracer.Exporter] {
		ve.Add("tracer.exporter %q is not one of noop, stdout, file", cfg.Tracer.Exporter)
	}
}

func validateSimulation(cfg *Config, ve *ValidationError) {
	s := cfg.Simulation
	if s.MinCallbackDelay < 0 || s.MaxCallbackDelay < 0 {
		ve.Add("simulation callback delays must be >= 0")
	}
	if s.MaxCallbackDelay < s.MinCallbackDelay {
		ve.Add("simulation.max_callback_delay must be >= min_callback_delay")
	}
}
