package radio

import "github.com/google/uuid"

// TransportCallback receives the single completion of each Transport call,
// plus unsolicited link, bond and notification events. Callbacks may arrive
// on any goroutine; a callback may also never arrive.
type TransportCallback interface {
	OnConnectionStateChange(status int, newState ConnectionState)
	OnBondStateChange(state BondState, reason int)
	OnServicesDiscovered(services []ServiceInfo, status int)
	OnCharacteristicRead(service, characteristic uuid.UUID, value []byte, status int)
	OnCharacteristicWrite(service, characteristic uuid.UUID, status int)
	OnDescriptorWrite(service, characteristic, descriptor uuid.UUID, status int)
	OnMtuChanged(mtu int, status int)
	OnCharacteristicChanged(service, characteristic uuid.UUID, value []byte)
}

// Transport is a GATT client handle for one peripheral. Every call is a
// single-shot request: a nil return means the request was handed to the
// stack, not that it succeeded. A non-nil return means the stack refused to
// start it and no callback will follow.
type Transport interface {
	Address() string
	Connect(cb TransportCallback) error
	Disconnect() error
	CreateBond() error
	RemoveBond() error
	BondState() BondState
	DiscoverServices() error
	ReadCharacteristic(service, characteristic uuid.UUID) error
	WriteCharacteristic(service, characteristic uuid.UUID, value []byte, withResponse bool) error
	WriteDescriptor(service, characteristic, descriptor uuid.UUID, value []byte) error
	// SetNotify toggles local delivery of notifications; it completes synchronously.
	SetNotify(service, characteristic uuid.UUID, enable bool) error
	RequestMTU(mtu int) error
	Close() error
}

// ScanCallback receives raw advertisements while a scan is running
type ScanCallback func(adv Advertisement)

// Adapter is the local Bluetooth controller
type Adapter interface {
	StartScan(mode ScanMode, cb ScanCallback) error
	StopScan() error
	Open(address string) (Transport, error)
	SetPowered(on bool) error
	Powered() bool
}
