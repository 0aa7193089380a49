// Package central is the entry point for applications: it owns the adapter
// and hands process-wide defaults (logger, tracer, timeouts, payload limit)
// to every session it creates.
package central

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/trace"

	"github.com/user/gattlink/config"
	"github.com/user/gattlink/criteria"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/logger"
	"github.com/user/gattlink/radio"
	"github.com/user/gattlink/scan"
	"github.com/user/gattlink/session"
	"github.com/user/gattlink/tracing"
)

// Central creates sessions for scanned peripherals. It is safe for
// concurrent use.
type Central struct {
	adapter radio.Adapter
	cfg     *config.Config
	log     logger.Logger
	tracer  trace.Tracer

	mu       sync.Mutex
	sessions map[string]*session.Session
}

// Option configures a Central
type Option func(*Central)

// WithLogger overrides the default logger
func WithLogger(l logger.Logger) Option {
	return func(c *Central) { c.log = logger.OrDefault(l) }
}

// WithTracer overrides the global tracer
func WithTracer(t trace.Tracer) Option {
	return func(c *Central) {
		if t != nil {
			c.tracer = t
		}
	}
}

// New creates a central over adapter. A nil adapter is allowed and means the
// platform has no Bluetooth; a nil cfg uses config.Defaults().
func New(adapter radio.Adapter, cfg *config.Config, opts ...Option) *Central {
	if cfg == nil {
		cfg = config.Defaults()
	}
	c := &Central{
		adapter:  adapter,
		cfg:      cfg,
		log:      logger.Default(),
		tracer:   tracing.Tracer(),
		sessions: make(map[string]*session.Session),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Supported reports whether a Bluetooth adapter is present
func (c *Central) Supported() bool { return c.adapter != nil }

// Powered reports whether the radio is on
func (c *Central) Powered() bool {
	return c.adapter != nil && c.adapter.Powered()
}

// Criteria returns new scan criteria seeded from the scan config section
func (c *Central) Criteria() *criteria.Criteria {
	return criteria.New().
		WithDuration(c.cfg.Scan.Duration).
		WithLimit(c.cfg.Scan.Limit).
		WithHighPowerPreScan(c.cfg.Scan.HighPowerPreScan)
}

// Scan runs a scan with crit, or with Criteria() when crit is nil
func (c *Central) Scan(ctx context.Context, crit *criteria.Criteria, opts ...scan.Option) ([]scan.Result, error) {
	if crit == nil {
		crit = c.Criteria()
	}
	all := append([]scan.Option{
		scan.WithLogger(c.log),
		scan.WithPreScanWindow(c.cfg.Scan.PreScanWindow),
	}, opts...)
	return scan.Run(ctx, c.adapter, crit, all...)
}

// Peripheral returns the session for a scan result. Repeated calls for the
// same address return the same session until it is released. Without a
// usable adapter the result is a session.Disabled.
func (c *Central) Peripheral(r scan.Result, opts ...session.Option) session.Peripheral {
	if !c.Powered() {
		c.log.Warn("central", "no usable adapter, %s disabled", r.Address)
		return session.NewDisabled(r.Address)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if s, ok := c.sessions[r.Address]; ok && !s.Released() {
		return s
	}

	t, err := c.adapter.Open(r.Address)
	if err != nil {
		c.log.Warn("central", "open %s: %v", r.Address, err)
		return session.NewDisabled(r.Address)
	}

	all := append([]session.Option{
		session.WithLogger(c.log),
		session.WithTracer(c.tracer),
		session.WithTimeouts(Timeouts(c.cfg.Timeouts)),
		session.WithMaxPayload(c.cfg.Link.MaxPayload),
		session.WithAdvertisement(r.Name, r.RSSI, r.Data),
	}, opts...)
	s := session.New(t, all...)
	c.sessions[r.Address] = s
	c.log.Debug("central", "session created for %s", r.Address)
	return s
}

// SetPowered turns the radio on or off. Sessions see the resulting link
// loss through their transports.
func (c *Central) SetPowered(on bool) error {
	if c.adapter == nil {
		return &gatterr.ChangePowerStateError{On: on, Err: gatterr.ErrUnsupported}
	}
	if err := c.adapter.SetPowered(on); err != nil {
		return &gatterr.ChangePowerStateError{On: on, Err: err}
	}
	c.log.Info("central", "radio powered %v", on)
	return nil
}

// Close releases every session created by this central
func (c *Central) Close() {
	c.mu.Lock()
	sessions := c.sessions
	c.sessions = make(map[string]*session.Session)
	c.mu.Unlock()

	for _, s := range sessions {
		s.Release()
	}
}

// Timeouts maps the timeouts config section onto session defaults
func Timeouts(t config.TimeoutsConfig) session.Timeouts {
	return session.Timeouts{
		Connect:      t.Connect,
		Disconnect:   t.Disconnect,
		Bond:         t.Bond,
		Discovery:    t.Discovery,
		Read:         t.Read,
		Write:        t.Write,
		Notification: t.Notification,
		MTU:          t.MTU,
	}
}
