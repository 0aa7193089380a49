package advertising

import (
	"errors"
	"fmt"
	"strings"

	"github.com/user/gattlink/bytecodec"
)

// PDU Types for BLE advertising packets (Link Layer)
const (
	PDUTypeAdvInd        = 0x00 // Connectable undirected advertising
	PDUTypeAdvDirectInd  = 0x01 // Connectable directed advertising
	PDUTypeAdvNonconnInd = 0x02 // Non-connectable undirected advertising
	PDUTypeScanReq       = 0x03 // Scan request
	PDUTypeScanRsp       = 0x04 // Scan response
	PDUTypeConnectReq    = 0x05 // Connection request
	PDUTypeAdvScanInd    = 0x06 // Scannable undirected advertising
)

var ErrInvalidAddress = errors.New("advertising: failed to parse device address")

// PDU is a legacy advertising packet at the Link Layer.
// Format: [PDU Type: 1 byte] [Length: 1 byte] [AdvA: 6 bytes] [AdvData: 0-31 bytes]
// AdvA is kept in display order (most significant byte first).
type PDU struct {
	Type    byte
	AdvA    [BLEAddressLen]byte
	AdvData []byte
}

// Encode serializes the advertising PDU to binary format
func (pdu *PDU) Encode() ([]byte, error) {
	if len(pdu.AdvData) > MaxLegacyDataLen {
		return nil, fmt.Errorf("advertising data exceeds %d bytes: %d", MaxLegacyDataLen, len(pdu.AdvData))
	}

	buf := make([]byte, 2+BLEAddressLen+len(pdu.AdvData))
	buf[0] = pdu.Type
	buf[1] = byte(BLEAddressLen + len(pdu.AdvData))
	copy(buf[2:8], pdu.AdvA[:])
	copy(buf[8:], pdu.AdvData)

	return buf, nil
}

// Address returns AdvA formatted as AA:BB:CC:DD:EE:FF
func (pdu *PDU) Address() string {
	return FormatAddress(pdu.AdvA)
}

// DecodePDU parses a binary advertising PDU
func DecodePDU(data []byte) (*PDU, error) {
	if len(data) < 2+BLEAddressLen {
		return nil, errors.New("advertising PDU too short (minimum 8 bytes)")
	}

	payloadLen := int(data[1])
	if payloadLen < BLEAddressLen {
		return nil, errors.New("invalid payload length (must be at least 6 for address)")
	}
	if len(data) < 2+payloadLen {
		return nil, fmt.Errorf("advertising PDU truncated: expected %d bytes, got %d", 2+payloadLen, len(data))
	}

	advDataLen := payloadLen - BLEAddressLen
	if advDataLen > MaxLegacyDataLen {
		return nil, fmt.Errorf("advertising data exceeds %d bytes: %d", MaxLegacyDataLen, advDataLen)
	}

	pdu := &PDU{Type: data[0]}
	copy(pdu.AdvA[:], data[2:8])
	if advDataLen > 0 {
		pdu.AdvData = make([]byte, advDataLen)
		copy(pdu.AdvData, data[8:8+advDataLen])
	}
	return pdu, nil
}

// FormatAddress renders a device address as colon-separated uppercase hex
func FormatAddress(addr [BLEAddressLen]byte) string {
	parts := make([]string, BLEAddressLen)
	for i := range addr {
		parts[i] = bytecodec.ToHex(addr[i : i+1])
	}
	return strings.Join(parts, ":")
}

// ParseAddress parses AA:BB:CC:DD:EE:FF (either case, colons optional)
func ParseAddress(s string) ([BLEAddressLen]byte, error) {
	var addr [BLEAddressLen]byte
	raw, err := bytecodec.FromHex(strings.ReplaceAll(s, ":", ""))
	if err != nil || len(raw) != BLEAddressLen {
		return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	copy(addr[:], raw)
	return addr, nil
}

// PDUTypeName returns a human-readable name for a PDU type
func PDUTypeName(pduType byte) string {
	switch pduType {
	case PDUTypeAdvInd:
		return "ADV_IND"
	case PDUTypeAdvDirectInd:
		return "ADV_DIRECT_IND"
	case PDUTypeAdvNonconnInd:
		return "ADV_NONCONN_IND"
	case PDUTypeScanReq:
		return "SCAN_REQ"
	case PDUTypeScanRsp:
		return "SCAN_RSP"
	case PDUTypeConnectReq:
		return "CONNECT_REQ"
	case PDUTypeAdvScanInd:
		return "ADV_SCAN_IND"
	default:
		return fmt.Sprintf("Unknown(0x%02X)", pduType)
	}
}
