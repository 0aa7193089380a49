package session

import (
	"context"
	"time"

	"github.com/google/uuid"
	"google.golang.org/protobuf/types/known/structpb"

	"github.com/user/gattlink/advertising"
	"github.com/user/gattlink/gatterr"
	"github.com/user/gattlink/radio"
)

// Disabled is the Peripheral handed out when Bluetooth is unsupported or
// switched off. Getters return empty values and every operation fails with
// gatterr.ErrUnsupported.
type Disabled struct {
	address string
}

var _ Peripheral = Disabled{}

// NewDisabled returns a stub for address
func NewDisabled(address string) Disabled {
	return Disabled{address: address}
}

func (d Disabled) Address() string                               { return d.address }
func (Disabled) Name() string                                    { return "" }
func (Disabled) ConnectionStatus() radio.ConnectionState         { return radio.StateDisconnected }
func (Disabled) BondStatus() radio.BondState                     { return radio.BondNone }
func (Disabled) AdvertisingData() *advertising.Data              { return advertising.Parse(nil) }
func (Disabled) ScanRSSI() int                                   { return 0 }
func (Disabled) Services() map[uuid.UUID]*Service                { return map[uuid.UUID]*Service{} }
func (Disabled) ServicesDiscovered() bool                        { return false }
func (Disabled) MaxPayload() int                                 { return LegacyMaxPayload }
func (Disabled) IsInstabilityLikely() bool                       { return false }
func (Disabled) SetPacketHandler(PacketHandler)                  {}
func (Disabled) Release()                                        {}
func (Disabled) Connect(context.Context, time.Duration) error    { return gatterr.ErrUnsupported }
func (Disabled) Disconnect(context.Context, time.Duration) error { return gatterr.ErrUnsupported }
func (Disabled) CreateBond(context.Context, time.Duration) error { return gatterr.ErrUnsupported }
func (Disabled) RemoveBond(context.Context, time.Duration) error { return gatterr.ErrUnsupported }

func (Disabled) DiscoverServices(context.Context, time.Duration) error {
	return gatterr.ErrUnsupported
}

func (Disabled) DiscoverService(context.Context, uuid.UUID, time.Duration) (*Service, error) {
	return nil, gatterr.ErrUnsupported
}

func (Disabled) EnableNotification(context.Context, uuid.UUID, uuid.UUID, time.Duration) error {
	return gatterr.ErrUnsupported
}

func (Disabled) DisableNotification(context.Context, uuid.UUID, uuid.UUID, time.Duration) error {
	return gatterr.ErrUnsupported
}

func (Disabled) WriteCommand(context.Context, uuid.UUID, uuid.UUID, []byte, time.Duration) error {
	return gatterr.ErrUnsupported
}

func (Disabled) ReadCharacteristic(context.Context, uuid.UUID, uuid.UUID, time.Duration) ([]byte, error) {
	return nil, gatterr.ErrUnsupported
}

func (Disabled) RequestMTU(context.Context, int, time.Duration) (int, error) {
	return 0, gatterr.ErrUnsupported
}

// Snapshot reports the stub's address and that Bluetooth is unavailable
func (d Disabled) Snapshot() *structpb.Struct {
	st, _ := structpb.NewStruct(map[string]interface{}{
		"address":   d.address,
		"supported": false,
	})
	return st
}
