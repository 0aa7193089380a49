package advertising

import (
	"bytes"
	"encoding/binary"
	"sort"

	"github.com/google/uuid"

	"github.com/user/gattlink/bytecodec"
	"github.com/user/gattlink/radio"
)

// Record is a single AD structure.
// Wire format: [Length: 1 byte] [Type: 1 byte] [Payload: Length-1 bytes]
type Record struct {
	Type    byte
	Payload []byte
}

// Data is the decoded advertising payload of one scan report: every record
// grouped by AD type, types kept in ascending order. It is never modified
// after Parse returns.
type Data struct {
	raw     []byte
	types   []byte
	records map[byte][][]byte
	key     string
}

// Parse decodes raw AD structures. It never fails: a zero length, a zero
// type, a missing type byte or a record running past the end of raw all stop
// parsing, and whatever was decoded up to that point is kept.
func Parse(raw []byte) *Data {
	d := &Data{
		raw:     append([]byte(nil), raw...),
		records: make(map[byte][][]byte),
	}

	offset := 0
	for offset < len(raw) {
		length := int(raw[offset])
		if length == 0 {
			// Padding or end of data
			break
		}
		if offset+1 >= len(raw) {
			break
		}

		adType := raw[offset+1]
		if adType == 0 {
			break
		}

		end := offset + 1 + length
		if end > len(raw) {
			// Truncated record; keep what we have
			break
		}

		payload := make([]byte, length-1)
		copy(payload, raw[offset+2:end])
		if _, seen := d.records[adType]; !seen {
			d.types = append(d.types, adType)
		}
		d.records[adType] = append(d.records[adType], payload)

		offset = end
	}

	sort.Slice(d.types, func(i, j int) bool { return d.types[i] < d.types[j] })
	d.key = d.canonicalKey()
	return d
}

// IsEmpty reports whether no record was decoded
func (d *Data) IsEmpty() bool {
	return len(d.types) == 0
}

// RecordTypes returns the decoded AD types, ascending and de-duplicated
func (d *Data) RecordTypes() []byte {
	out := make([]byte, len(d.types))
	copy(out, d.types)
	return out
}

// RecordsForType returns the payloads of every record of adType in wire order.
func (d *Data) RecordsForType(adType byte) ([][]byte, bool) {
	payloads, ok := d.records[adType]
	if !ok {
		return nil, false
	}
	out := make([][]byte, len(payloads))
	for i, p := range payloads {
		out[i] = append([]byte(nil), p...)
	}
	return out, true
}

// AnyRecordMatches reports whether pred holds for at least one record of adType.
func (d *Data) AnyRecordMatches(adType byte, pred func(payload []byte) bool) bool {
	for _, p := range d.records[adType] {
		if pred(p) {
			return true
		}
	}
	return false
}

// Records returns every record ordered by type, wire order within a type.
func (d *Data) Records() []Record {
	var out []Record
	for _, t := range d.types {
		for _, p := range d.records[t] {
			out = append(out, Record{Type: t, Payload: append([]byte(nil), p...)})
		}
	}
	return out
}

// Raw returns a copy of the bytes Parse was given
func (d *Data) Raw() []byte {
	return append([]byte(nil), d.raw...)
}

// Key is a content hash usable as a map key. Two Data values have the same
// Key exactly when they hold the same records.
func (d *Data) Key() string {
	return d.key
}

// Equal compares decoded record content, ignoring trailing padding in the raw input
func (d *Data) Equal(other *Data) bool {
	if d == nil || other == nil {
		return d == other
	}
	return d.key == other.key
}

func (d *Data) canonicalKey() string {
	var buf bytes.Buffer
	for _, t := range d.types {
		for _, p := range d.records[t] {
			buf.WriteByte(t)
			buf.WriteByte(byte(len(p)))
			buf.Write(p)
		}
	}
	return bytecodec.ToHex(buf.Bytes())
}

// LocalName returns the complete local name, falling back to the shortened one
func (d *Data) LocalName() string {
	if p, ok := d.records[ADTypeCompleteLocalName]; ok {
		return string(p[0])
	}
	if p, ok := d.records[ADTypeShortenedLocalName]; ok {
		return string(p[0])
	}
	return ""
}

// Flags returns the first flags byte
func (d *Data) Flags() (byte, bool) {
	for _, p := range d.records[ADTypeFlags] {
		if len(p) > 0 {
			return p[0], true
		}
	}
	return 0, false
}

// TxPowerLevel returns the advertised transmit power in dBm
func (d *Data) TxPowerLevel() (int8, bool) {
	for _, p := range d.records[ADTypeTxPowerLevel] {
		if len(p) > 0 {
			return int8(p[0]), true
		}
	}
	return 0, false
}

// ServiceUUIDs16 returns the 16-bit service UUIDs from complete and incomplete lists
func (d *Data) ServiceUUIDs16() []uint16 {
	var out []uint16
	for _, t := range []byte{ADTypeIncomplete16BitServiceUUIDs, ADTypeComplete16BitServiceUUIDs} {
		for _, p := range d.records[t] {
			if len(p)%2 != 0 {
				continue
			}
			for i := 0; i < len(p); i += 2 {
				out = append(out, binary.LittleEndian.Uint16(p[i:i+2]))
			}
		}
	}
	return out
}

// ServiceUUIDs returns every advertised service UUID expanded to 128 bits.
// 16- and 32-bit values are placed on the Bluetooth base UUID; 128-bit values
// are little-endian on air.
func (d *Data) ServiceUUIDs() []uuid.UUID {
	var out []uuid.UUID
	for _, v := range d.ServiceUUIDs16() {
		out = append(out, radio.UUID16(v))
	}
	for _, t := range []byte{ADTypeIncomplete32BitServiceUUIDs, ADTypeComplete32BitServiceUUIDs} {
		for _, p := range d.records[t] {
			if len(p)%4 != 0 {
				continue
			}
			for i := 0; i < len(p); i += 4 {
				out = append(out, radio.UUID32(binary.LittleEndian.Uint32(p[i:i+4])))
			}
		}
	}
	for _, t := range []byte{ADTypeIncomplete128BitServiceUUIDs, ADTypeComplete128BitServiceUUIDs} {
		for _, p := range d.records[t] {
			if len(p)%16 != 0 {
				continue
			}
			for i := 0; i < len(p); i += 16 {
				out = append(out, uuidFromLE(p[i:i+16]))
			}
		}
	}
	return out
}

// HasServiceUUID reports whether id is among the advertised service UUIDs
func (d *Data) HasServiceUUID(id uuid.UUID) bool {
	for _, u := range d.ServiceUUIDs() {
		if u == id {
			return true
		}
	}
	return false
}

// ManufacturerData returns the company ID and data of the first
// manufacturer-specific record
func (d *Data) ManufacturerData() (companyID uint16, data []byte, found bool) {
	for _, p := range d.records[ADTypeManufacturerSpecificData] {
		if len(p) >= 2 {
			return binary.LittleEndian.Uint16(p[0:2]), append([]byte(nil), p[2:]...), true
		}
	}
	return 0, nil, false
}

func uuidFromLE(b []byte) uuid.UUID {
	var u uuid.UUID
	for i := 0; i < 16; i++ {
		u[i] = b[15-i]
	}
	return u
}

func uuidToLE(u uuid.UUID) []byte {
	b := make([]byte, 16)
	for i := 0; i < 16; i++ {
		b[i] = u[15-i]
	}
	return b
}
