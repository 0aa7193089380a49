package session

import (
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/logger"
)

// Timeouts holds the deadline used when a caller passes a zero duration
type Timeouts struct {
	Connect      time.Duration
	Disconnect   time.Duration
	Bond         time.Duration
	Discovery    time.Duration
	Read         time.Duration
	Write        time.Duration
	Notification time.Duration
	MTU          time.Duration
}

// DefaultTimeouts returns the built-in deadlines
func DefaultTimeouts() Timeouts {
	return Timeouts{
		Connect:      10 * time.Second,
		Disconnect:   5 * time.Second,
		Bond:         30 * time.Second,
		Discovery:    10 * time.Second,
		Read:         5 * time.Second,
		Write:        5 * time.Second,
		Notification: 5 * time.Second,
		MTU:          5 * time.Second,
	}
}

func (t Timeouts) forOp(op gatterr.Operation) time.Duration {
	var d time.Duration
	switch op {
	case gatterr.OpConnect:
		d = t.Connect
	case gatterr.OpDisconnect:
		d = t.Disconnect
	case gatterr.OpCreateBond, gatterr.OpRemoveBond:
		d = t.Bond
	case gatterr.OpDiscoverServices, gatterr.OpDiscoverService:
		d = t.Discovery
	case gatterr.OpReadCharacteristic:
		d = t.Read
	case gatterr.OpWriteCommand:
		d = t.Write
	case gatterr.OpEnableNotification, gatterr.OpDisableNotification:
		d = t.Notification
	case gatterr.OpRequestMTU:
		d = t.MTU
	}
	if d <= 0 {
		d = 10 * time.Second
	}
	return d
}

// Option configures a Session
type Option func(*Session)

// WithLogger sets the session logger
func WithLogger(l logger.Logger) Option {
	return func(s *Session) { s.log = logger.OrDefault(l) }
}

// WithTracer sets the tracer used for per-operation spans
func WithTracer(t trace.Tracer) Option {
	return func(s *Session) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithTimeouts sets the default deadlines
func WithTimeouts(t Timeouts) Option {
	return func(s *Session) { s.timeouts = t }
}

// WithMaxPayload sets the payload limit used until an MTU exchange
func WithMaxPayload(n int) Option {
	return func(s *Session) {
		if n > 0 {
			s.defaultPayload = n
		}
	}
}

// WithAdvertisement records what the scan saw for this peripheral
func WithAdvertisement(name string, rssi int, data *advertising.Data) Option {
	return func(s *Session) {
		s.name = name
		s.rssi = rssi
		if data != nil {
			s.adv = data
		}
	}
}

// WithPacketHandler installs h before the link comes up
func WithPacketHandler(h PacketHandler) Option {
	return func(s *Session) { s.handler = h }
}
