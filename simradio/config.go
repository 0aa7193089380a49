package simradio

import (
	"math/rand"
	"time"

	"github.com/user/gattlink/config"
)

// Config controls timing of the simulated radio
type Config struct {
	// Callback delay range; each completion is delivered after a random
	// delay within it
	MinCallbackDelay time.Duration
	MaxCallbackDelay time.Duration

	// How often each peripheral advertises during a low-latency scan. Lower
	// power scan modes see proportionally fewer reports.
	AdvertisingInterval time.Duration

	// RSSI fluctuation around each peripheral's base RSSI, in dBm
	RSSIVariance int

	// Random seed; 0 picks a time-based seed
	Seed int64
}

// DefaultConfig returns realistic timing
func DefaultConfig() Config {
	return Config{
		MinCallbackDelay:    5 * time.Millisecond,
		MaxCallbackDelay:    20 * time.Millisecond,
		AdvertisingInterval: 50 * time.Millisecond,
		RSSIVariance:        6,
	}
}

// PerfectConfig returns a fast deterministic config for tests
func PerfectConfig() Config {
	return Config{
		MinCallbackDelay:    time.Millisecond,
		MaxCallbackDelay:    time.Millisecond,
		AdvertisingInterval: 5 * time.Millisecond,
		Seed:                1,
	}
}

// FromConfig maps the simulation section of the application config
func FromConfig(c config.SimulationConfig) Config {
	cfg := DefaultConfig()
	cfg.MinCallbackDelay = c.MinCallbackDelay
	cfg.MaxCallbackDelay = c.MaxCallbackDelay
	cfg.Seed = c.Seed
	return cfg
}

func (c Config) newRand() *rand.Rand {
	seed := c.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return rand.New(rand.NewSource(seed))
}

func (c Config) delay(rng *rand.Rand) time.Duration {
	if c.MaxCallbackDelay <= c.MinCallbackDelay {
		return c.MinCallbackDelay
	}
	return c.MinCallbackDelay + time.Duration(rng.Int63n(int64(c.MaxCallbackDelay-c.MinCallbackDelay)))
}

func (c Config) rssi(rng *rand.Rand, base int) int {
	if c.RSSIVariance <= 0 {
		return base
	}
	return base + rng.Intn(2*c.RSSIVariance+1) - c.RSSIVariance
}
