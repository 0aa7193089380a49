// Package simradio is an in-memory Bluetooth adapter. Peripherals are
// scripted in process; every completion arrives on a timer goroutine after
// a configurable delay, like a real stack's binder or D-Bus thread.
package simradio

import (
	"bytes"
	"errors"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/logger"
	"github.com/user/gattlink/radio"
)

var (
	ErrPoweredOff    = errors.New("simradio: adapter powered off")
	ErrUnknownDevice = errors.New("simradio: unknown device")
	ErrScanning      = errors.New("simradio: scan already running")
	ErrNotSubscribed = errors.New("simradio: central not subscribed")
	ErrClosed        = errors.New("simradio: transport closed")
)

// Peripheral describes a simulated remote device
type Peripheral struct {
	Address  string
	RSSI     int // base signal strength, dBm
	Records  []advertising.Record
	Services []radio.ServiceInfo
	Values   map[uuid.UUID][]byte // initial characteristic values
	// RejectBond makes bonding fail with AUTH_FAIL
	RejectBond bool
	// Bonded starts the peripheral already bonded
	Bonded bool
	// MaxMTU caps MTU negotiation; 0 means 517
	MaxMTU int
	// EchoTo, if set, turns every write into a notification on this
	// characteristic
	EchoTo uuid.UUID
}

type device struct {
	p          Peripheral
	pdu        []byte
	bond       radio.BondState
	link       *transport
	values     map[uuid.UUID][]byte
	subscribed map[uuid.UUID]bool
	failNext   map[gatterr.Operation]int
	dropNext   map[gatterr.Operation]bool
}

// Adapter implements radio.Adapter over simulated peripherals
type Adapter struct {
	mu        sync.Mutex
	cfg       Config
	rng       *rand.Rand
	log       logger.Logger
	powered   bool
	devices   map[string]*device
	scan      *scanner
	powerFail error
}

// Option configures an Adapter
type Option func(*Adapter)

// WithLogger routes simulator diagnostics to l
func WithLogger(l logger.Logger) Option {
	return func(a *Adapter) { a.log = logger.OrDefault(l) }
}

// New creates a powered-on adapter with no peripherals
func New(cfg Config, opts ...Option) *Adapter {
	a := &Adapter{
		cfg:     cfg,
		rng:     cfg.newRand(),
		log:     logger.Nop(),
		powered: true,
		devices: make(map[string]*device),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// AddPeripheral registers p. Its advertising records must fit a legacy
// advertising PDU.
func (a *Adapter) AddPeripheral(p Peripheral) error {
	addr, err := advertising.ParseAddress(p.Address)
	if err != nil {
		return err
	}
	data, err := advertising.EncodeLegacy(p.Records...)
	if err != nil {
		return fmt.Errorf("peripheral %s: %w", p.Address, err)
	}
	pdu := &advertising.PDU{Type: advertising.PDUTypeAdvInd, AdvA: addr, AdvData: data}
	raw, err := pdu.Encode()
	if err != nil {
		return fmt.Errorf("peripheral %s: %w", p.Address, err)
	}

	d := &device{
		p:          p,
		pdu:        raw,
		values:     make(map[uuid.UUID][]byte),
		subscribed: make(map[uuid.UUID]bool),
		failNext:   make(map[gatterr.Operation]int),
		dropNext:   make(map[gatterr.Operation]bool),
	}
	if p.Bonded {
		d.bond = radio.BondBonded
	}
	for k, v := range p.Values {
		d.values[k] = bytes.Clone(v)
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.devices[pdu.Address()] = d
	a.log.Debug("simradio", "added peripheral %s (%d AD bytes)", pdu.Address(), len(data))
	return nil
}

func (a *Adapter) device(address string) (*device, error) {
	d, ok := a.devices[strings.ToUpper(address)]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownDevice, address)
	}
	return d, nil
}

// StartScan begins reporting advertisements to cb until StopScan
func (a *Adapter) StartScan(mode radio.ScanMode, cb radio.ScanCallback) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.powered {
		return ErrPoweredOff
	}
	if a.scan != nil {
		return ErrScanning
	}

	interval := a.cfg.AdvertisingInterval
	switch mode {
	case radio.ScanBalanced:
		interval *= 2
	case radio.ScanLowPower:
		interval *= 4
	}
	if interval <= 0 {
		interval = time.Millisecond
	}
	a.scan = newScanner(a, interval, cb)
	a.log.Debug("simradio", "scan started (%s, every %v)", mode, interval)
	go a.scan.run()
	return nil
}

// StopScan stops the running scan, if any, and waits for the scan
// goroutine to exit
func (a *Adapter) StopScan() error {
	a.mu.Lock()
	sc := a.scan
	a.scan = nil
	a.mu.Unlock()
	if sc != nil {
		sc.stop()
	}
	return nil
}

// advertisements returns one report per peripheral, in address order
func (a *Adapter) advertisements() []radio.Advertisement {
	a.mu.Lock()
	defer a.mu.Unlock()

	addrs := make([]string, 0, len(a.devices))
	for addr := range a.devices {
		addrs = append(addrs, addr)
	}
	sort.Strings(addrs)

	out := make([]radio.Advertisement, 0, len(addrs))
	for _, addr := range addrs {
		d := a.devices[addr]
		pdu, err := advertising.DecodePDU(d.pdu)
		if err != nil {
			a.log.Warn("simradio", "bad PDU for %s: %v", addr, err)
			continue
		}
		out = append(out, radio.Advertisement{
			Address: pdu.Address(),
			RSSI:    a.cfg.rssi(a.rng, d.p.RSSI),
			Payload: pdu.AdvData,
		})
	}
	return out
}

// Open returns a GATT client handle for address
func (a *Adapter) Open(address string) (radio.Transport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if !a.powered {
		return nil, ErrPoweredOff
	}
	d, err := a.device(address)
	if err != nil {
		return nil, err
	}
	return &transport{a: a, d: d, notify: make(map[uuid.UUID]bool)}, nil
}

// SetPowered switches the radio. Powering off stops the scan and drops
// every link.
func (a *Adapter) SetPowered(on bool) error {
	a.mu.Lock()
	if err := a.powerFail; err != nil {
		a.powerFail = nil
		a.mu.Unlock()
		return err
	}
	a.powered = on
	var links []*transport
	if !on {
		for _, d := range a.devices {
			if d.link != nil {
				links = append(links, d.link)
				d.link = nil
			}
		}
	}
	sc := a.scan
	if !on {
		a.scan = nil
	}
	a.mu.Unlock()

	if !on && sc != nil {
		sc.stop()
	}
	for _, t := range links {
		t.deliver(func(cb radio.TransportCallback) {
			cb.OnConnectionStateChange(gatterr.StatusLocalHostTerminated, radio.StateDisconnected)
		})
	}
	a.log.Info("simradio", "powered %v", on)
	return nil
}

// Powered reports the radio power state
func (a *Adapter) Powered() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.powered
}

// FailPower makes the next SetPowered call fail with err
func (a *Adapter) FailPower(err error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.powerFail = err
}

// FailNext makes the next op on address complete with status
func (a *Adapter) FailNext(address string, op gatterr.Operation, status int) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, err := a.device(address)
	if err != nil {
		return err
	}
	d.failNext[op] = status
	return nil
}

// DropNext makes the next op on address never complete
func (a *Adapter) DropNext(address string, op gatterr.Operation) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, err := a.device(address)
	if err != nil {
		return err
	}
	d.dropNext[op] = true
	return nil
}

// SetBondState changes the bond state without any broadcast
func (a *Adapter) SetBondState(address string, state radio.BondState) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, err := a.device(address)
	if err != nil {
		return err
	}
	d.bond = state
	return nil
}

// Notify sends value from the peripheral on characteristic. The central
// must be connected, have enabled local delivery and written the CCCD.
func (a *Adapter) Notify(address string, service, characteristic uuid.UUID, value []byte) error {
	a.mu.Lock()
	d, err := a.device(address)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	t := d.link
	if t == nil || !d.subscribed[characteristic] || !t.notify[characteristic] {
		a.mu.Unlock()
		return ErrNotSubscribed
	}
	a.mu.Unlock()

	value = bytes.Clone(value)
	t.deliver(func(cb radio.TransportCallback) {
		cb.OnCharacteristicChanged(service, characteristic, value)
	})
	return nil
}

// DropLink simulates the peripheral going out of range
func (a *Adapter) DropLink(address string, status int) error {
	a.mu.Lock()
	d, err := a.device(address)
	if err != nil {
		a.mu.Unlock()
		return err
	}
	t := d.link
	d.link = nil
	d.subscribed = make(map[uuid.UUID]bool)
	a.mu.Unlock()

	if t == nil {
		return nil
	}
	t.deliver(func(cb radio.TransportCallback) {
		cb.OnConnectionStateChange(status, radio.StateDisconnected)
	})
	return nil
}

// Value returns the current value of a characteristic on address
func (a *Adapter) Value(address string, characteristic uuid.UUID) ([]byte, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	d, err := a.device(address)
	if err != nil {
		return nil, false
	}
	v, ok := d.values[characteristic]
	return bytes.Clone(v), ok
}

type scanner struct {
	a        *Adapter
	interval time.Duration
	cb       radio.ScanCallback
	quit     chan struct{}
	done     chan struct{}
	once     sync.Once
}

func newScanner(a *Adapter, interval time.Duration, cb radio.ScanCallback) *scanner {
	return &scanner{
		a:        a,
		interval: interval,
		cb:       cb,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

func (s *scanner) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		for _, adv := range s.a.advertisements() {
			select {
			case <-s.quit:
				return
			default:
			}
			s.cb(adv)
		}
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}
	}
}

func (s *scanner) stop() {
	s.once.Do(func() { close(s.quit) })
	<-s.done
}
