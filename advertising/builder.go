package advertising

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
)

// Encode serializes records into a single advertising data payload
func Encode(records ...Record) ([]byte, error) {
	var buf []byte

	for _, r := range records {
		if r.Type == 0 {
			return nil, fmt.Errorf("AD structure type 0 is reserved")
		}
		if len(r.Payload) > MaxPayloadLen {
			return nil, fmt.Errorf("AD structure too long: %d bytes (max %d)", len(r.Payload), MaxPayloadLen)
		}

		buf = append(buf, byte(1+len(r.Payload))) // Length covers the type byte
		buf = append(buf, r.Type)
		buf = append(buf, r.Payload...)
	}

	return buf, nil
}

// EncodeLegacy is Encode restricted to the 31-byte legacy advertising limit
func EncodeLegacy(records ...Record) ([]byte, error) {
	buf, err := Encode(records...)
	if err != nil {
		return nil, err
	}
	if len(buf) > MaxLegacyDataLen {
		return nil, fmt.Errorf("total advertising data exceeds %d bytes: %d", MaxLegacyDataLen, len(buf))
	}
	return buf, nil
}

// Flags creates a flags AD structure
func Flags(flags byte) Record {
	return Record{Type: ADTypeFlags, Payload: []byte{flags}}
}

// CompleteLocalName creates a complete local name AD structure
func CompleteLocalName(name string) Record {
	return Record{Type: ADTypeCompleteLocalName, Payload: []byte(name)}
}

// ShortenedLocalName creates a shortened local name AD structure
func ShortenedLocalName(name string) Record {
	return Record{Type: ADTypeShortenedLocalName, Payload: []byte(name)}
}

// Complete16BitServiceUUIDs creates a complete 16-bit service UUID list
func Complete16BitServiceUUIDs(uuids ...uint16) Record {
	data := make([]byte, len(uuids)*2)
	for i, v := range uuids {
		binary.LittleEndian.PutUint16(data[i*2:], v)
	}
	return Record{Type: ADTypeComplete16BitServiceUUIDs, Payload: data}
}

// Complete128BitServiceUUIDs creates a complete 128-bit service UUID list
func Complete128BitServiceUUIDs(uuids ...uuid.UUID) Record {
	data := make([]byte, 0, len(uuids)*16)
	for _, u := range uuids {
		data = append(data, uuidToLE(u)...)
	}
	return Record{Type: ADTypeComplete128BitServiceUUIDs, Payload: data}
}

// TxPowerLevel creates a Tx power level AD structure
func TxPowerLevel(dBm int8) Record {
	return Record{Type: ADTypeTxPowerLevel, Payload: []byte{byte(dBm)}}
}

// ManufacturerSpecific creates a manufacturer-specific data AD structure
func ManufacturerSpecific(companyID uint16, data []byte) Record {
	payload := make([]byte, 2+len(data))
	binary.LittleEndian.PutUint16(payload[0:2], companyID)
	copy(payload[2:], data)
	return Record{Type: ADTypeManufacturerSpecificData, Payload: payload}
}
