// Package reconnect retries failed connection attempts according to the
// classification of the failure. Sessions never retry on their own; this is
// the caller-side policy.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/user/gattlink/config"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/logger"
	"github.com/user/gattlink/session"
)

// Default policy settings.
const (
	defaultMaxAttempts                     = 3
	defaultMaxFailures       uint32        = 5
	defaultOpenTimeout       time.Duration = 30 * time.Second
	defaultAttemptsPerSecond float64       = 1
)

// ErrPowerCycleAdvised is returned when the peripheral's session has seen
// repeated stack errors. Retrying will not help; the radio needs a power
// cycle.
var ErrPowerCycleAdvised = errors.New("reconnect: stack unstable, power-cycle the radio")

// ErrCircuitOpen is returned without touching the peripheral while its
// breaker is open
var ErrCircuitOpen = errors.New("reconnect: circuit open")

// Policy decides whether and when to retry a failed Connect. One Policy may
// serve many peripherals: attempts share one rate limiter and each address
// gets its own breaker.
type Policy struct {
	maxAttempts int
	maxFailures uint32
	openTimeout time.Duration
	limiter     *rate.Limiter
	log         logger.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker[struct{}]
}

// Option configures a Policy
type Option func(*Policy)

// WithLogger routes retry decisions to l
func WithLogger(l logger.Logger) Option {
	return func(p *Policy) { p.log = logger.OrDefault(l) }
}

// New builds a policy from the reconnect config section. Zero values fall
// back to defaults.
func New(cfg config.ReconnectConfig, opts ...Option) *Policy {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	maxFailures := cfg.MaxFailures
	if maxFailures == 0 {
		maxFailures = defaultMaxFailures
	}
	openTimeout := cfg.OpenTimeout
	if openTimeout <= 0 {
		openTimeout = defaultOpenTimeout
	}
	perSecond := cfg.AttemptsPerSecond
	if perSecond <= 0 {
		perSecond = defaultAttemptsPerSecond
	}

	p := &Policy{
		maxAttempts: maxAttempts,
		maxFailures: maxFailures,
		openTimeout: openTimeout,
		limiter:     rate.NewLimiter(rate.Limit(perSecond), 1),
		log:         logger.Nop(),
		breakers:    make(map[string]*gobreaker.CircuitBreaker[struct{}]),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

func (p *Policy) breaker(address string) *gobreaker.CircuitBreaker[struct{}] {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cb, ok := p.breakers[address]; ok {
		return cb
	}
	cb := gobreaker.NewCircuitBreaker[struct{}](gobreaker.Settings{
		Name:        "connect:" + address,
		MaxRequests: 1,
		Timeout:     p.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= p.maxFailures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			p.log.Warn("reconnect", "breaker %s: %s -> %s", name, from, to)
		},
		// caller mistakes say nothing about the peripheral
		IsSuccessful: func(err error) bool {
			return err == nil ||
				errors.Is(err, gatterr.ErrValidation) ||
				errors.Is(err, gatterr.ErrConnectionState)
		},
	})
	p.breakers[address] = cb
	return cb
}

// State returns the breaker state for address
func (p *Policy) State(address string) gobreaker.State {
	return p.breaker(address).State()
}

// Connect connects periph, retrying by failure class: a Recoverable failure
// is retried once at once; a ReconnectRequired failure disconnects first and
// is retried up to the attempt limit, paced by the limiter; anything else is
// returned as is. d is passed to every attempt.
func (p *Policy) Connect(ctx context.Context, periph session.Peripheral, d time.Duration) error {
	address := periph.Address()
	cb := p.breaker(address)
	retriedRecoverable := false

	for attempt := 1; ; attempt++ {
		_, err := cb.Execute(func() (struct{}, error) {
			return struct{}{}, periph.Connect(ctx, d)
		})
		if err == nil {
			if attempt > 1 {
				p.log.Info("reconnect", "%s connected on attempt %d", address, attempt)
			}
			return nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return fmt.Errorf("%w: %s: %v", ErrCircuitOpen, address, err)
		}
		if periph.IsInstabilityLikely() {
			return fmt.Errorf("%w: %w", ErrPowerCycleAdvised, err)
		}
		if ctx.Err() != nil {
			return err
		}

		switch class := gatterr.ClassOf(err); class {
		case gatterr.Recoverable:
			if retriedRecoverable {
				return err
			}
			retriedRecoverable = true
			p.log.Debug("reconnect", "%s: %v, retrying", address, err)

		case gatterr.ReconnectRequired:
			if attempt >= p.maxAttempts {
				return fmt.Errorf("gave up after %d attempts: %w", attempt, err)
			}
			if derr := periph.Disconnect(ctx, d); derr != nil {
				p.log.Debug("reconnect", "%s: disconnect before retry: %v", address, derr)
			}
			if werr := p.limiter.Wait(ctx); werr != nil {
				return err
			}
			p.log.Debug("reconnect", "%s: %v, reconnecting (attempt %d)", address, err, attempt+1)

		default:
			return err
		}
	}
}
