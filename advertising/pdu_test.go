package advertising

import (
	"bytes"
	"testing"
)

func TestPDUEncodeDecodeRoundTrip(t *testing.T) {
	original := &PDU{
		Type:    PDUTypeAdvInd,
		AdvA:    [6]byte{0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF},
		AdvData: []byte{0x02, 0x01, 0x06},
	}

	encoded, err := original.Encode()
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	// [PDU Type: 1] [Length: 1] [AdvA: 6] [AdvData: 3]
	if len(encoded) != 2+6+3 {
		t.Errorf("Expected encoded length %d, got %d", 11, len(encoded))
	}

	decoded, err := DecodePDU(encoded)
	if err != nil {
		t.Fatalf("Decode failed: %v", err)
	}
	if decoded.Type != original.Type {
		t.Errorf("PDU type mismatch: expected 0x%02X, got 0x%02X", original.Type, decoded.Type)
	}
	if decoded.AdvA != original.AdvA {
		t.Errorf("Address mismatch: expected %v, got %v", original.AdvA, decoded.AdvA)
	}
	if !bytes.Equal(decoded.AdvData, original.AdvData) {
		t.Errorf("AdvData mismatch: expected %v, got %v", original.AdvData, decoded.AdvData)
	}
	if decoded.Address() != "AA:BB:CC:DD:EE:FF" {
		t.Errorf("Unexpected address string %s", decoded.Address())
	}
}

func TestPDURejectsOversizedData(t *testing.T) {
	pdu := &PDU{Type: PDUTypeAdvInd, AdvData: make([]byte, MaxLegacyDataLen+1)}
	if _, err := pdu.Encode(); err == nil {
		t.Fatal("Expected error when encoding PDU exceeding max length")
	}
}

func TestDecodePDUTruncated(t *testing.T) {
	if _, err := DecodePDU([]byte{0x00, 0x06, 0x01}); err == nil {
		t.Error("Expected error for short PDU")
	}
	if _, err := DecodePDU([]byte{0x00, 0x0A, 1, 2, 3, 4, 5, 6, 0x02}); err == nil {
		t.Error("Expected error for truncated AdvData")
	}
}

func TestParseAddress(t *testing.T) {
	addr, err := ParseAddress("aa:bb:cc:dd:ee:01")
	if err != nil {
		t.Fatalf("ParseAddress failed: %v", err)
	}
	if FormatAddress(addr) != "AA:BB:CC:DD:EE:01" {
		t.Errorf("Unexpected round trip %s", FormatAddress(addr))
	}
	for _, bad := range []string{"", "AA:BB", "GG:BB:CC:DD:EE:FF", "AA:BB:CC:DD:EE:FF:00"} {
		if _, err := ParseAddress(bad); err == nil {
			t.Errorf("Expected error for %q", bad)
		}
	}
}
