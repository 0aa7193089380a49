package session

import (
	"bytes"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/user/gattlink/radio"
)

// fakeTransport answers every request from its own goroutine. Per-request
// behaviour is scripted through status, drop and refuse, keyed by the
// request name.
type fakeTransport struct {
	mu       sync.Mutex
	cb       radio.TransportCallback
	bond     radio.BondState
	services []radio.ServiceInfo
	value    []byte
	calls    []string
	status   map[string]int
	drop     map[string]bool
	refuse   map[string]error
	writes   [][]byte
	withResp []bool
	cccd     [][]byte
	notify   []bool
	inFlight int
	maxIn    int
	closed   bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		status: make(map[string]int),
		drop:   make(map[string]bool),
		refuse: make(map[string]error),
	}
}

func (f *fakeTransport) script(req string, status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status[req] = status
}

func (f *fakeTransport) dropNext(req string, drop bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.drop[req] = drop
}

func (f *fakeTransport) refuseNext(req string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refuse[req] = err
}

func (f *fakeTransport) callback() radio.TransportCallback {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cb
}

func (f *fakeTransport) count(req string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		if c == req {
			n++
		}
	}
	return n
}

func (f *fakeTransport) respond(req string, fn func(cb radio.TransportCallback, status int)) error {
	f.mu.Lock()
	f.calls = append(f.calls, req)
	if err := f.refuse[req]; err != nil {
		delete(f.refuse, req)
		f.mu.Unlock()
		return err
	}
	drop := f.drop[req]
	status := f.status[req]
	cb := f.cb
	f.inFlight++
	if f.inFlight > f.maxIn {
		f.maxIn = f.inFlight
	}
	f.mu.Unlock()

	if drop {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
		return nil
	}
	go func() {
		time.Sleep(time.Millisecond)
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
		fn(cb, status)
	}()
	return nil
}

func (f *fakeTransport) Address() string { return "AA:BB:CC:DD:EE:01" }

func (f *fakeTransport) Connect(cb radio.TransportCallback) error {
	f.mu.Lock()
	f.cb = cb
	f.mu.Unlock()
	return f.respond("connect", func(cb radio.TransportCallback, status int) {
		if status != 0 {
			cb.OnConnectionStateChange(status, radio.StateDisconnected)
			return
		}
		cb.OnConnectionStateChange(0, radio.StateConnected)
	})
}

func (f *fakeTransport) Disconnect() error {
	return f.respond("disconnect", func(cb radio.TransportCallback, status int) {
		if cb != nil {
			cb.OnConnectionStateChange(status, radio.StateDisconnected)
		}
	})
}

func (f *fakeTransport) CreateBond() error {
	return f.respond("create_bond", func(cb radio.TransportCallback, status int) {
		cb.OnBondStateChange(radio.BondBonding, 0)
		if status != 0 {
			cb.OnBondStateChange(radio.BondNone, status)
			return
		}
		f.mu.Lock()
		f.bond = radio.BondBonded
		f.mu.Unlock()
		cb.OnBondStateChange(radio.BondBonded, 0)
	})
}

func (f *fakeTransport) RemoveBond() error {
	return f.respond("remove_bond", func(cb radio.TransportCallback, status int) {
		f.mu.Lock()
		f.bond = radio.BondNone
		f.mu.Unlock()
		cb.OnBondStateChange(radio.BondNone, status)
	})
}

func (f *fakeTransport) BondState() radio.BondState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bond
}

func (f *fakeTransport) DiscoverServices() error {
	return f.respond("discover", func(cb radio.TransportCallback, status int) {
		f.mu.Lock()
		services := f.services
		f.mu.Unlock()
		cb.OnServicesDiscovered(services, status)
	})
}

func (f *fakeTransport) ReadCharacteristic(service, characteristic uuid.UUID) error {
	return f.respond("read", func(cb radio.TransportCallback, status int) {
		f.mu.Lock()
		value := f.value
		f.mu.Unlock()
		cb.OnCharacteristicRead(service, characteristic, value, status)
	})
}

func (f *fakeTransport) WriteCharacteristic(service, characteristic uuid.UUID, value []byte, withResponse bool) error {
	f.mu.Lock()
	f.writes = append(f.writes, bytes.Clone(value))
	f.withResp = append(f.withResp, withResponse)
	f.mu.Unlock()
	return f.respond("write", func(cb radio.TransportCallback, status int) {
		cb.OnCharacteristicWrite(service, characteristic, status)
	})
}

func (f *fakeTransport) WriteDescriptor(service, characteristic, descriptor uuid.UUID, value []byte) error {
	f.mu.Lock()
	f.cccd = append(f.cccd, bytes.Clone(value))
	f.mu.Unlock()
	return f.respond("descriptor", func(cb radio.TransportCallback, status int) {
		cb.OnDescriptorWrite(service, characteristic, descriptor, status)
	})
}

func (f *fakeTransport) SetNotify(service, characteristic uuid.UUID, enable bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, "set_notify")
	if err := f.refuse["set_notify"]; err != nil {
		delete(f.refuse, "set_notify")
		return err
	}
	f.notify = append(f.notify, enable)
	return nil
}

func (f *fakeTransport) RequestMTU(mtu int) error {
	return f.respond("mtu", func(cb radio.TransportCallback, status int) {
		cb.OnMtuChanged(mtu, status)
	})
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

type recordingHandler struct {
	mu           sync.Mutex
	packets      [][]byte
	disconnected int
}

func (h *recordingHandler) OnPacket(service, characteristic uuid.UUID, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.packets = append(h.packets, payload)
}

func (h *recordingHandler) OnDisconnected() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.disconnected++
}

func (h *recordingHandler) counts() (int, int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.packets), h.disconnected
}

func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("Timeout waiting for %s", what)
}

var errRefused = errors.New("stack busy")
