package simradio

import (
	"bytes"
	"time"

	"github.com/google/uuid"

	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/radio"
)

type transport struct {
	a      *Adapter
	d      *device
	cb     radio.TransportCallback
	notify map[uuid.UUID]bool // local delivery, guarded by a.mu
	closed bool
}

var _ radio.Transport = (*transport)(nil)

func (t *transport) Address() string {
	return t.d.p.Address
}

// schedule runs fn after a simulated delay with the status scripted for op.
// fn runs with the adapter lock held so it can update device state, and
// returns the callback to deliver once the lock is released.
func (t *transport) schedule(op gatterr.Operation, fn func(status int) func(cb radio.TransportCallback)) error {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	if !t.a.powered {
		return ErrPoweredOff
	}
	if t.d.dropNext[op] {
		delete(t.d.dropNext, op)
		t.a.log.Debug("simradio", "%s: dropping %s", t.d.p.Address, op)
		return nil
	}
	status := gatterr.StatusSuccess
	if st, ok := t.d.failNext[op]; ok {
		delete(t.d.failNext, op)
		status = st
	}
	cb := t.cb
	delay := t.a.cfg.delay(t.a.rng)

	time.AfterFunc(delay, func() {
		t.a.mu.Lock()
		deliver := fn(status)
		t.a.mu.Unlock()
		if deliver != nil && cb != nil {
			deliver(cb)
		}
	})
	return nil
}

// deliver sends an unsolicited event after a simulated delay
func (t *transport) deliver(fn func(cb radio.TransportCallback)) {
	t.a.mu.Lock()
	cb := t.cb
	delay := t.a.cfg.delay(t.a.rng)
	t.a.mu.Unlock()
	if cb == nil {
		return
	}
	time.AfterFunc(delay, func() { fn(cb) })
}

func (t *transport) Connect(cb radio.TransportCallback) error {
	t.a.mu.Lock()
	t.cb = cb
	t.a.mu.Unlock()

	return t.schedule(gatterr.OpConnect, func(status int) func(radio.TransportCallback) {
		if status != gatterr.StatusSuccess {
			return func(cb radio.TransportCallback) {
				cb.OnConnectionStateChange(status, radio.StateDisconnected)
			}
		}
		t.d.link = t
		return func(cb radio.TransportCallback) {
			cb.OnConnectionStateChange(gatterr.StatusSuccess, radio.StateConnected)
		}
	})
}

func (t *transport) Disconnect() error {
	return t.schedule(gatterr.OpDisconnect, func(status int) func(radio.TransportCallback) {
		if t.d.link == t {
			t.d.link = nil
			t.d.subscribed = make(map[uuid.UUID]bool)
		}
		return func(cb radio.TransportCallback) {
			cb.OnConnectionStateChange(status, radio.StateDisconnected)
		}
	})
}

func (t *transport) CreateBond() error {
	return t.schedule(gatterr.OpCreateBond, func(status int) func(radio.TransportCallback) {
		if status == gatterr.StatusSuccess && t.d.p.RejectBond {
			status = gatterr.StatusAuthFail
		}
		if status != gatterr.StatusSuccess {
			t.d.bond = radio.BondNone
			return func(cb radio.TransportCallback) {
				cb.OnBondStateChange(radio.BondBonding, gatterr.StatusSuccess)
				cb.OnBondStateChange(radio.BondNone, status)
			}
		}
		t.d.bond = radio.BondBonded
		return func(cb radio.TransportCallback) {
			cb.OnBondStateChange(radio.BondBonding, gatterr.StatusSuccess)
			cb.OnBondStateChange(radio.BondBonded, gatterr.StatusSuccess)
		}
	})
}

func (t *transport) RemoveBond() error {
	return t.schedule(gatterr.OpRemoveBond, func(status int) func(radio.TransportCallback) {
		if status != gatterr.StatusSuccess {
			return func(cb radio.TransportCallback) {
				cb.OnBondStateChange(radio.BondBonded, status)
			}
		}
		t.d.bond = radio.BondNone
		return func(cb radio.TransportCallback) {
			cb.OnBondStateChange(radio.BondNone, gatterr.StatusSuccess)
		}
	})
}

func (t *transport) BondState() radio.BondState {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	return t.d.bond
}

func (t *transport) DiscoverServices() error {
	return t.schedule(gatterr.OpDiscoverServices, func(status int) func(radio.TransportCallback) {
		if status == gatterr.StatusSuccess && t.d.link != t {
			status = gatterr.StatusFailure
		}
		var services []radio.ServiceInfo
		if status == gatterr.StatusSuccess {
			services = t.d.p.Services
		}
		return func(cb radio.TransportCallback) {
			cb.OnServicesDiscovered(services, status)
		}
	})
}

func (t *transport) ReadCharacteristic(service, characteristic uuid.UUID) error {
	return t.schedule(gatterr.OpReadCharacteristic, func(status int) func(radio.TransportCallback) {
		if status == gatterr.StatusSuccess && !t.d.has(service, characteristic) {
			status = gatterr.StatusRequestNotSupported
		}
		var value []byte
		if status == gatterr.StatusSuccess {
			value = bytes.Clone(t.d.values[characteristic])
		}
		return func(cb radio.TransportCallback) {
			cb.OnCharacteristicRead(service, characteristic, value, status)
		}
	})
}

func (t *transport) WriteCharacteristic(service, characteristic uuid.UUID, value []byte, withResponse bool) error {
	value = bytes.Clone(value)
	return t.schedule(gatterr.OpWriteCommand, func(status int) func(radio.TransportCallback) {
		if status == gatterr.StatusSuccess && !t.d.has(service, characteristic) {
			status = gatterr.StatusWriteNotPermitted
		}
		if status != gatterr.StatusSuccess {
			return func(cb radio.TransportCallback) {
				cb.OnCharacteristicWrite(service, characteristic, status)
			}
		}
		t.d.values[characteristic] = value
		echo := t.d.p.EchoTo
		echoOn := echo != uuid.Nil && t.d.subscribed[echo] && t.notify[echo]
		return func(cb radio.TransportCallback) {
			cb.OnCharacteristicWrite(service, characteristic, status)
			if echoOn {
				cb.OnCharacteristicChanged(service, echo, value)
			}
		}
	})
}

func (t *transport) WriteDescriptor(service, characteristic, descriptor uuid.UUID, value []byte) error {
	op := gatterr.OpEnableNotification
	if bytes.Equal(value, radio.CCCDDisable) {
		op = gatterr.OpDisableNotification
	}
	return t.schedule(op, func(status int) func(radio.TransportCallback) {
		if status == gatterr.StatusSuccess && !t.d.has(service, characteristic) {
			status = gatterr.StatusRequestNotSupported
		}
		if status == gatterr.StatusSuccess && descriptor == radio.CCCD {
			t.d.subscribed[characteristic] = !bytes.Equal(value, radio.CCCDDisable)
		}
		return func(cb radio.TransportCallback) {
			cb.OnDescriptorWrite(service, characteristic, descriptor, status)
		}
	})
}

func (t *transport) SetNotify(service, characteristic uuid.UUID, enable bool) error {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	if t.closed {
		return ErrClosed
	}
	t.notify[characteristic] = enable
	return nil
}

func (t *transport) RequestMTU(mtu int) error {
	return t.schedule(gatterr.OpRequestMTU, func(status int) func(radio.TransportCallback) {
		limit := t.d.p.MaxMTU
		if limit <= 0 {
			limit = 517
		}
		if mtu > limit {
			mtu = limit
		}
		return func(cb radio.TransportCallback) {
			cb.OnMtuChanged(mtu, status)
		}
	})
}

func (t *transport) Close() error {
	t.a.mu.Lock()
	defer t.a.mu.Unlock()
	t.closed = true
	if t.d.link == t {
		t.d.link = nil
		t.d.subscribed = make(map[uuid.UUID]bool)
	}
	return nil
}

func (d *device) has(service, characteristic uuid.UUID) bool {
	for _, s := range d.p.Services {
		if s.UUID != service {
			continue
		}
		for _, c := range s.Characteristics {
			if c.UUID == characteristic {
				return true
			}
		}
	}
	return false
}
