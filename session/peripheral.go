// Package session drives one remote GATT peripheral: connection and bond
// state, service discovery, notifications and writes. Every procedure is
// serialized through a per-session queue and guarded by its own timeout.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/radio"
)

// LegacyMaxPayload is the write payload limit before MTU negotiation
const LegacyMaxPayload = 20

// Peripheral is the caller-facing handle for a remote device. *Session is
// the real implementation; Disabled stands in when the platform has no
// usable Bluetooth stack.
type Peripheral interface {
	Address() string
	Name() string
	ConnectionStatus() radio.ConnectionState
	BondStatus() radio.BondState
	AdvertisingData() *advertising.Data
	ScanRSSI() int
	Services() map[uuid.UUID]*Service
	ServicesDiscovered() bool
	MaxPayload() int
	IsInstabilityLikely() bool
	Snapshot() *structpb.Struct

	SetPacketHandler(h PacketHandler)

	Connect(ctx context.Context, d time.Duration) error
	Disconnect(ctx context.Context, d time.Duration) error
	CreateBond(ctx context.Context, d time.Duration) error
	RemoveBond(ctx context.Context, d time.Duration) error
	DiscoverServices(ctx context.Context, d time.Duration) error
	DiscoverService(ctx context.Context, id uuid.UUID, d time.Duration) (*Service, error)
	EnableNotification(ctx context.Context, service, characteristic uuid.UUID, d time.Duration) error
	DisableNotification(ctx context.Context, service, characteristic uuid.UUID, d time.Duration) error
	WriteCommand(ctx context.Context, service, characteristic uuid.UUID, payload []byte, d time.Duration) error
	ReadCharacteristic(ctx context.Context, service, characteristic uuid.UUID, d time.Duration) ([]byte, error)
	RequestMTU(ctx context.Context, mtu int, d time.Duration) (int, error)

	Release()
}

// PacketHandler receives inbound data. OnDisconnected is called on every
// link loss so the handler can drop partial reassembly state.
type PacketHandler interface {
	OnPacket(service, characteristic uuid.UUID, payload []byte)
	OnDisconnected()
}

// Characteristic is one discovered characteristic
type Characteristic struct {
	UUID        uuid.UUID
	Properties  uint8
	Descriptors []uuid.UUID
}

// CanNotify reports whether the characteristic supports notifications
func (c *Characteristic) CanNotify() bool { return c.Properties&radio.PropNotify != 0 }

// CanIndicate reports whether the characteristic supports indications
func (c *Characteristic) CanIndicate() bool { return c.Properties&radio.PropIndicate != 0 }

// Service is one discovered primary service. It is not modified after
// discovery.
type Service struct {
	UUID            uuid.UUID
	Characteristics map[uuid.UUID]*Characteristic
}

// Characteristic looks up a characteristic by UUID
func (s *Service) Characteristic(id uuid.UUID) (*Characteristic, bool) {
	c, ok := s.Characteristics[id]
	return c, ok
}

func buildServiceTable(infos []radio.ServiceInfo) map[uuid.UUID]*Service {
	table := make(map[uuid.UUID]*Service, len(infos))
	for _, si := range infos {
		svc := &Service{
			UUID:            si.UUID,
			Characteristics: make(map[uuid.UUID]*Characteristic, len(si.Characteristics)),
		}
		for _, ci := range si.Characteristics {
			c := &Characteristic{UUID: ci.UUID, Properties: ci.Properties}
			for _, d := range ci.Descriptors {
				c.Descriptors = append(c.Descriptors, d.UUID)
			}
			svc.Characteristics[ci.UUID] = c
		}
		table[si.UUID] = svc
	}
	return table
}
