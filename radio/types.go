// Package radio defines the contracts between the session core and a
// platform Bluetooth stack. Implementations live elsewhere (simradio for
// tests and demos, vendor bindings out of tree).
package radio

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// ConnectionState mirrors the link-layer connection state reported by the transport
type ConnectionState int

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateDisconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateDisconnecting:
		return "disconnecting"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// BondState mirrors the platform bond (pairing) state
type BondState int

const (
	BondNone BondState = iota
	BondBonding
	BondBonded
)

func (s BondState) String() string {
	switch s {
	case BondNone:
		return "none"
	case BondBonding:
		return "bonding"
	case BondBonded:
		return "bonded"
	default:
		return fmt.Sprintf("bond(%d)", int(s))
	}
}

// ScanMode is the power/latency hint passed to the scanner
type ScanMode int

const (
	ScanLowPower ScanMode = iota
	ScanBalanced
	ScanLowLatency
)

func (m ScanMode) String() string {
	switch m {
	case ScanLowPower:
		return "low_power"
	case ScanBalanced:
		return "balanced"
	case ScanLowLatency:
		return "low_latency"
	default:
		return fmt.Sprintf("mode(%d)", int(m))
	}
}

// Characteristic property bits (Core Spec Vol 3, Part G, 3.3.1.1)
const (
	PropBroadcast            = 0x01
	PropRead                 = 0x02
	PropWriteWithoutResponse = 0x04
	PropWrite                = 0x08
	PropNotify               = 0x10
	PropIndicate             = 0x20
)

// DescriptorInfo is a descriptor reported by service discovery
type DescriptorInfo struct {
	UUID uuid.UUID
}

// CharacteristicInfo is a characteristic reported by service discovery
type CharacteristicInfo struct {
	UUID        uuid.UUID
	Properties  uint8
	Descriptors []DescriptorInfo
}

// ServiceInfo is a primary service reported by service discovery
type ServiceInfo struct {
	UUID            uuid.UUID
	Characteristics []CharacteristicInfo
}

// Advertisement is one raw scan report
type Advertisement struct {
	Address string
	RSSI    int
	Payload []byte // AD structures, [len][type][data]...
}

// Bluetooth base UUID: 0000xxxx-0000-1000-8000-00805F9B34FB
var baseUUID = uuid.MustParse("00000000-0000-1000-8000-00805F9B34FB")

// UUID16 expands a 16-bit assigned number onto the Bluetooth base UUID.
func UUID16(v uint16) uuid.UUID {
	return UUID32(uint32(v))
}

// UUID32 expands a 32-bit assigned number onto the Bluetooth base UUID.
func UUID32(v uint32) uuid.UUID {
	u := baseUUID
	binary.BigEndian.PutUint32(u[0:4], v)
	return u
}

// CCCD is the Client Characteristic Configuration Descriptor
var CCCD = UUID16(0x2902)

// CCCD values, little-endian
var (
	CCCDEnableNotification = []byte{0x01, 0x00}
	CCCDEnableIndication   = []byte{0x02, 0x00}
	CCCDDisable            = []byte{0x00, 0x00}
)
