package session

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/trace"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/logger"
	"github.com/user/gattlink/radio"
	"github.com/user/gattlink/sched"
	"github.com/user/gattlink/serialqueue"
	"github.com/user/gattlink/tracing"
)

// Session owns the link to one peripheral. State changes happen only on the
// session loop; getters read a locked copy and may be called from anywhere.
type Session struct {
	address   string
	transport radio.Transport
	loop      *sched.Loop
	events    *sched.Loop // packet handler delivery, in arrival order
	queue     *serialqueue.Queue
	tracker   *gatterr.Tracker
	log       logger.Logger
	tracer    trace.Tracer
	timeouts  Timeouts
	tag       string
	cb        *callbacks

	current *operation              // loop only
	stale   map[replyKey][]time.Time // loop only

	released  atomic.Bool
	closeOnce sync.Once

	mu             sync.RWMutex
	name           string
	rssi           int
	adv            *advertising.Data
	conn           radio.ConnectionState
	bond           radio.BondState
	services       map[uuid.UUID]*Service
	discovered     bool
	defaultPayload int
	maxPayload     int
	handler        PacketHandler
}

var _ Peripheral = (*Session)(nil)

// New wraps transport in a session. The session starts Disconnected with
// the bond state the transport reports.
func New(transport radio.Transport, opts ...Option) *Session {
	s := &Session{
		address:        transport.Address(),
		transport:      transport,
		loop:           sched.NewLoop(),
		events:         sched.NewLoop(),
		stale:          make(map[replyKey][]time.Time),
		tracker:        gatterr.NewTracker(),
		log:            logger.Nop(),
		tracer:         tracing.Tracer(),
		timeouts:       DefaultTimeouts(),
		adv:            advertising.Parse(nil),
		conn:           radio.StateDisconnected,
		bond:           transport.BondState(),
		defaultPayload: LegacyMaxPayload,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.maxPayload = s.defaultPayload
	s.tag = "session " + s.address
	s.cb = &callbacks{s: s}
	s.queue = serialqueue.New(s.tag, serialqueue.WithLogger(s.log))
	return s
}

// Address returns the peripheral's device address
func (s *Session) Address() string { return s.address }

// Name returns the advertised name, if any
func (s *Session) Name() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.name
}

// ConnectionStatus returns the current link state
func (s *Session) ConnectionStatus() radio.ConnectionState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.conn
}

// BondStatus returns the last observed bond state
func (s *Session) BondStatus() radio.BondState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.bond
}

// AdvertisingData returns the decoded advertisement seen by the scan
func (s *Session) AdvertisingData() *advertising.Data {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.adv
}

// ScanRSSI returns the signal strength seen by the scan
func (s *Session) ScanRSSI() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rssi
}

// Services returns the discovered service table. The map is a copy; the
// services themselves are shared and read-only.
func (s *Session) Services() map[uuid.UUID]*Service {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[uuid.UUID]*Service, len(s.services))
	for k, v := range s.services {
		out[k] = v
	}
	return out
}

// ServicesDiscovered reports whether discovery completed on the current link
func (s *Session) ServicesDiscovered() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.discovered
}

// MaxPayload returns the largest payload WriteCommand accepts
func (s *Session) MaxPayload() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.maxPayload
}

// IsInstabilityLikely reports whether this session has seen repeated stack
// errors that usually need a radio power cycle
func (s *Session) IsInstabilityLikely() bool {
	return s.tracker.Any()
}

// SetPacketHandler installs the receiver for notifications and link loss
func (s *Session) SetPacketHandler(h PacketHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = h
}

// Snapshot returns session diagnostics as a protobuf Struct
func (s *Session) Snapshot() *structpb.Struct {
	s.mu.RLock()
	ids := make([]interface{}, 0, len(s.services))
	for id := range s.services {
		ids = append(ids, id.String())
	}
	fields := map[string]interface{}{
		"address":             s.address,
		"name":                s.name,
		"rssi":                s.rssi,
		"connection":          s.conn.String(),
		"bond":                s.bond.String(),
		"services_discovered": s.discovered,
		"services":            ids,
		"max_payload":         s.maxPayload,
		"advertising":         s.adv.Key(),
		"released":            s.released.Load(),
	}
	s.mu.RUnlock()
	fields["queue_depth"] = s.queue.Len()
	fields["instability_likely"] = s.tracker.Any()

	st, err := structpb.NewStruct(fields)
	if err != nil {
		s.log.Warn(s.tag, "snapshot: %v", err)
		return &structpb.Struct{}
	}
	return st
}

// Released reports whether Release has been called
func (s *Session) Released() bool { return s.released.Load() }

// Release cancels queued operations, fails the running one, closes the
// transport and stops the session loop. Every later call fails with
// gatterr.ErrReleased.
func (s *Session) Release() {
	s.closeOnce.Do(func() {
		s.released.Store(true)
		s.loop.Do(func() {
			n := s.queue.CancelAll(gatterr.ErrReleased)
			if op := s.current; op != nil {
				s.settle(op, result{err: gatterr.ErrReleased})
			}
			if err := s.transport.Close(); err != nil {
				s.log.Warn(s.tag, "close transport: %v", err)
			}
			s.setConnection(radio.StateDisconnected)
			s.log.Info(s.tag, "released (%d queued operations cancelled)", n)
		})
		s.loop.Stop()
		<-s.loop.Done()
		// not waited on: Release may be called from a handler
		s.events.Stop()
	})
}

func (s *Session) setConnection(state radio.ConnectionState) {
	s.mu.Lock()
	prev := s.conn
	s.conn = state
	s.mu.Unlock()
	if prev != state {
		s.log.Debug(s.tag, "connection %s -> %s", prev, state)
	}
}

func (s *Session) setBond(state radio.BondState) {
	s.mu.Lock()
	prev := s.bond
	s.bond = state
	s.mu.Unlock()
	if prev != state {
		s.log.Debug(s.tag, "bond %s -> %s", prev, state)
	}
}

// linkDown resets per-link state and informs the packet handler
func (s *Session) linkDown() {
	s.mu.Lock()
	s.conn = radio.StateDisconnected
	s.services = nil
	s.discovered = false
	s.maxPayload = s.defaultPayload
	h := s.handler
	s.mu.Unlock()

	// replies owed on the old link will not arrive
	s.stale = make(map[replyKey][]time.Time)

	s.log.Info(s.tag, "link down")
	s.log.DebugJSON(s.tag, "snapshot", s.Snapshot())
	if h != nil {
		s.events.Post(h.OnDisconnected)
	}
}
